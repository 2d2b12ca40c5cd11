package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/substratelabs/substrate/pkg/event"
)

// runAppendCmd appends one event to the log.
//
// Exit codes:
//
//	0 = committed or parked
//	1 = event rejected by validation or grounding
//	2 = runtime error
func runAppendCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("append", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		dbPath     string
		eventType  string
		category   string
		actor      string
		payload    string
		claim      string
		refs       string
		operator   string
		inputs     string
		parents    string
		workspace  string
		jsonOutput bool
	)

	cmd.StringVar(&dbPath, "db", "", "Path to substrate database")
	cmd.StringVar(&eventType, "type", "given", "Epistemic type: given | meant | derived")
	cmd.StringVar(&category, "category", "", "Event category (REQUIRED)")
	cmd.StringVar(&actor, "actor", "", "Acting identity (REQUIRED)")
	cmd.StringVar(&payload, "payload", "", "JSON payload")
	cmd.StringVar(&claim, "claim", "", "Frame claim (meant only)")
	cmd.StringVar(&refs, "refs", "", "Grounding references as id:kind, comma separated")
	cmd.StringVar(&operator, "operator", "", "Derivation operator (derived only)")
	cmd.StringVar(&inputs, "inputs", "", "Derivation input event ids, comma separated")
	cmd.StringVar(&parents, "parents", "", "Causal parent event ids, comma separated")
	cmd.StringVar(&workspace, "workspace", "", "Workspace scope")
	cmd.BoolVar(&jsonOutput, "json", false, "Output result as JSON")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if category == "" || actor == "" {
		return fail(stderr, "--category and --actor are required")
	}

	var opts []event.Option
	if parents != "" {
		opts = append(opts, event.WithParents(splitList(parents)...))
	}
	if workspace != "" {
		opts = append(opts, event.WithWorkspace(workspace))
	}
	if payload != "" {
		var v any
		if err := json.Unmarshal([]byte(payload), &v); err != nil {
			return fail(stderr, "invalid --payload JSON: %v", err)
		}
		opts = append(opts, event.WithPayload(v))
	}

	references, err := parseRefs(refs)
	if err != nil {
		return fail(stderr, "%v", err)
	}

	var e *event.Event
	switch eventType {
	case "given":
		e, err = event.NewGiven(category, actor, opts...)
	case "meant":
		if claim == "" {
			return fail(stderr, "--claim is required for meant events")
		}
		e, err = event.NewMeant(category, actor, event.Frame{Claim: claim}, references, opts...)
	case "derived":
		if operator == "" {
			return fail(stderr, "--operator is required for derived events")
		}
		e, err = event.NewDerived(category, actor,
			event.Derivation{Operator: operator, Inputs: splitList(inputs)},
			references, opts...)
	default:
		return fail(stderr, "unknown event type %q", eventType)
	}
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Rejected: %v\n", err)
		return 1
	}

	logger := newLogger(stderr)
	provider, shutdown := newTelemetry(logger)
	defer shutdown()
	_, st, closer, err := openSubstrate(defaultDBPath(dbPath), logger, storeMetrics(provider)...)
	if err != nil {
		return fail(stderr, "cannot open database: %v", err)
	}
	defer closer()

	res, err := st.Append(e)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Rejected: %v\n", err)
		return 1
	}

	if jsonOutput {
		data, _ := json.MarshalIndent(res, "", "  ")
		_, _ = fmt.Fprintln(stdout, string(data))
		return 0
	}
	if res.Parked {
		_, _ = fmt.Fprintf(stdout, "Parked %s (waiting for %s)\n",
			res.EventID, strings.Join(res.WaitingFor, ", "))
	} else {
		_, _ = fmt.Fprintf(stdout, "Committed %s at clock %d\n", res.EventID, res.LogicalClock)
	}
	for _, id := range res.Promoted {
		_, _ = fmt.Fprintf(stdout, "Promoted %s\n", id)
	}
	return 0
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseRefs(s string) ([]event.Reference, error) {
	var out []event.Reference
	for _, item := range splitList(s) {
		id, kind, ok := strings.Cut(item, ":")
		if !ok {
			return nil, fmt.Errorf("invalid reference %q, expected id:kind", item)
		}
		out = append(out, event.Reference{EventID: id, Kind: event.ReferenceKind(kind)})
	}
	return out, nil
}
