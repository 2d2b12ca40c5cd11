package main

import (
	"flag"
	"fmt"
	"io"

	"github.com/substratelabs/substrate/pkg/event"
)

// runSupersedeCmd replaces an interpretation with a new one. The target
// stays in the log; supersession is a new event pointing back at it.
//
// Exit codes:
//
//	0 = supersession committed
//	1 = rejected (given target, missing target, invalid replacement)
//	2 = runtime error
func runSupersedeCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("supersede", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		dbPath   string
		targetID string
		sType    string
		reason   string
		claim    string
		category string
		actor    string
		refs     string
	)
	cmd.StringVar(&dbPath, "db", "", "Path to substrate database")
	cmd.StringVar(&targetID, "target", "", "Event id to supersede (REQUIRED)")
	cmd.StringVar(&sType, "type", "correction", "Supersession type: correction | refinement | retraction | tombstone")
	cmd.StringVar(&reason, "reason", "", "Why the target is being replaced")
	cmd.StringVar(&claim, "claim", "", "Replacement frame claim")
	cmd.StringVar(&category, "category", "interpretation", "Replacement category")
	cmd.StringVar(&actor, "actor", "", "Acting identity (REQUIRED)")
	cmd.StringVar(&refs, "refs", "", "Grounding references as id:kind, comma separated")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if targetID == "" || actor == "" {
		return fail(stderr, "--target and --actor are required")
	}

	logger := newLogger(stderr)
	_, st, closer, err := openSubstrate(defaultDBPath(dbPath), logger)
	if err != nil {
		return fail(stderr, "cannot open database: %v", err)
	}
	defer closer()

	var replacement *event.Event
	if event.SupersessionType(sType) == event.SupersedeTombstone {
		replacement, err = event.NewTombstone(targetID, actor, reason)
	} else {
		if claim == "" {
			return fail(stderr, "--claim is required for %s", sType)
		}
		references, rerr := parseRefs(refs)
		if rerr != nil {
			return fail(stderr, "%v", rerr)
		}
		if len(references) == 0 {
			// Default to grounding the replacement where the target was
			// grounded.
			target, ok := st.Get(targetID)
			if !ok {
				_, _ = fmt.Fprintf(stderr, "Rejected: target %s not found\n", targetID)
				return 1
			}
			if target.Grounding != nil {
				references = target.Grounding.References
			}
		}
		replacement, err = event.NewMeant(category, actor, event.Frame{Claim: claim}, references)
	}
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Rejected: %v\n", err)
		return 1
	}

	committed, err := st.CreateSupersession(targetID, replacement, event.SupersessionType(sType), reason)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Rejected: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintf(stdout, "Superseded %s with %s (%s)\n", targetID, committed.ID, sType)
	return 0
}
