//go:build property
// +build property

package bloom

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestBloomNeverForgets verifies the no-false-negative guarantee.
// Property: for any set of added items, MightContain(item) == true for each.
func TestBloomNeverForgets(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("added items are always reported present", prop.ForAll(
		func(items []string) bool {
			f := New()
			for _, item := range items {
				f.Add(item)
			}
			for _, item := range items {
				if !f.MightContain(item) {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.AnyString()),
	))

	properties.Property("wire round trip preserves membership", prop.ForAll(
		func(items []string) bool {
			f := New()
			for _, item := range items {
				f.Add(item)
			}
			decoded, err := FromBase64(f.ToBase64())
			if err != nil {
				return false
			}
			for _, item := range items {
				if !decoded.MightContain(item) {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.Identifier()),
	))

	properties.TestingRun(t)
}
