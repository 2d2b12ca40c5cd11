//go:build property
// +build property

package store

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/substratelabs/substrate/pkg/event"
)

// TestAppendProperties checks the log invariants over generated inputs.
func TestAppendProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("clock is strictly increasing over distinct appends", prop.ForAll(
		func(ids []string) bool {
			s := New()
			var last uint64
			seen := map[string]bool{}
			for _, id := range ids {
				if id == "" {
					continue
				}
				res, err := s.Append(&event.Event{
					ID: id, EpistemicType: event.Given, Category: "raw_data",
					Timestamp: time.Now(), Actor: "gen",
				})
				if err != nil {
					return false
				}
				if seen[id] {
					if !res.Duplicate {
						return false
					}
					continue
				}
				seen[id] = true
				if res.LogicalClock <= last {
					return false
				}
				last = res.LogicalClock
			}
			return true
		},
		gen.SliceOf(gen.Identifier()),
	))

	properties.Property("store size grows by at most one per append", prop.ForAll(
		func(id string, repeats int) bool {
			if id == "" {
				return true
			}
			s := New()
			n := repeats%5 + 1
			for i := 0; i < n; i++ {
				if _, err := s.Append(&event.Event{
					ID: id, EpistemicType: event.Given, Category: "raw_data",
					Timestamp: time.Now(), Actor: "gen",
				}); err != nil {
					return false
				}
			}
			return s.Len() == 1 && s.Clock() == 1
		},
		gen.Identifier(),
		gen.IntRange(0, 20),
	))

	properties.TestingRun(t)
}
