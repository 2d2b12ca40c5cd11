package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"

	"github.com/substratelabs/substrate/pkg/event"
	"github.com/substratelabs/substrate/pkg/store"
)

// runLogCmd lists committed events in clock order.
func runLogCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("log", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		dbPath     string
		workspace  string
		eventType  string
		category   string
		jsonOutput bool
	)
	cmd.StringVar(&dbPath, "db", "", "Path to substrate database")
	cmd.StringVar(&workspace, "workspace", "", "Filter by workspace")
	cmd.StringVar(&eventType, "type", "", "Filter by epistemic type")
	cmd.StringVar(&category, "category", "", "Filter by category")
	cmd.BoolVar(&jsonOutput, "json", false, "Output events as JSON")

	if err := cmd.Parse(args); err != nil {
		return 2
	}

	logger := newLogger(stderr)
	_, st, closer, err := openSubstrate(defaultDBPath(dbPath), logger)
	if err != nil {
		return fail(stderr, "cannot open database: %v", err)
	}
	defer closer()

	var events []*event.Event
	switch {
	case category != "":
		events = st.GetByCategory(category)
	case eventType != "":
		events = st.GetByEpistemicType(event.EpistemicType(eventType))
	default:
		events = st.GetAll()
	}

	filtered := events[:0]
	for _, e := range events {
		if workspace != "" && e.Workspace() != workspace {
			continue
		}
		filtered = append(filtered, e)
	}

	if jsonOutput {
		data, _ := json.MarshalIndent(filtered, "", "  ")
		_, _ = fmt.Fprintln(stdout, string(data))
		return 0
	}
	for _, e := range filtered {
		marker := ""
		if st.IsSuperseded(e.ID) {
			marker = " [superseded]"
		}
		_, _ = fmt.Fprintf(stdout, "%6d  %-13s %-20s %s%s\n",
			e.LogicalClock, e.EpistemicType, e.Category, e.ID, marker)
	}
	_, _ = fmt.Fprintf(stdout, "%d events, clock %d, %d parked\n",
		len(filtered), st.Clock(), st.ParkedCount())
	return 0
}

// runShowCmd prints one event.
func runShowCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("show", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var dbPath string
	cmd.StringVar(&dbPath, "db", "", "Path to substrate database")
	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if cmd.NArg() < 1 {
		return fail(stderr, "usage: substrate show <event-id>")
	}
	id := cmd.Arg(0)

	logger := newLogger(stderr)
	_, st, closer, err := openSubstrate(defaultDBPath(dbPath), logger)
	if err != nil {
		return fail(stderr, "cannot open database: %v", err)
	}
	defer closer()

	e, ok := st.Get(id)
	if !ok {
		return fail(stderr, "event %s not found", id)
	}
	data, _ := json.MarshalIndent(e, "", "  ")
	_, _ = fmt.Fprintln(stdout, string(data))

	if by, superseded := st.GetSupersedingEvent(id); superseded {
		_, _ = fmt.Fprintf(stdout, "Superseded by %s\n", by.ID)
	}
	return 0
}

// runProvenanceCmd walks an event's derivation chain back toward givens.
func runProvenanceCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("provenance", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		dbPath     string
		id         string
		depth      int
		jsonOutput bool
	)
	cmd.StringVar(&dbPath, "db", "", "Path to substrate database")
	cmd.StringVar(&id, "id", "", "Event id (REQUIRED)")
	cmd.IntVar(&depth, "depth", store.DefaultProvenanceDepth, "Maximum chain depth")
	cmd.BoolVar(&jsonOutput, "json", false, "Output chain as JSON")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if id == "" && cmd.NArg() > 0 {
		id = cmd.Arg(0)
	}
	if id == "" {
		return fail(stderr, "--id is required")
	}

	logger := newLogger(stderr)
	_, st, closer, err := openSubstrate(defaultDBPath(dbPath), logger)
	if err != nil {
		return fail(stderr, "cannot open database: %v", err)
	}
	defer closer()

	chain := st.GetProvenanceChain(id, depth)
	if len(chain) == 0 {
		return fail(stderr, "event %s not found", id)
	}

	if jsonOutput {
		data, _ := json.MarshalIndent(chain, "", "  ")
		_, _ = fmt.Fprintln(stdout, string(data))
		return 0
	}
	for i, e := range chain {
		prefix := "└─"
		if i == 0 {
			prefix = "●"
		}
		claim := ""
		if e.Frame != nil {
			claim = "  " + e.Frame.Claim
		}
		_, _ = fmt.Fprintf(stdout, "%s %-13s %s%s\n", prefix, e.EpistemicType, e.ID, claim)
	}
	return 0
}
