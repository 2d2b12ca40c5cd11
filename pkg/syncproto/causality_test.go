package syncproto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/substratelabs/substrate/pkg/event"
	"github.com/substratelabs/substrate/pkg/vclock"
)

func parentChecker(t *testing.T, events ...*event.Event) ParentLinkChecker {
	t.Helper()
	byID := map[string]*event.Event{}
	for _, e := range events {
		byID[e.ID] = e
	}
	return ParentLinkChecker{Resolve: func(id string) (*event.Event, bool) {
		e, ok := byID[id]
		return e, ok
	}}
}

func TestParentLinkCheckerRelate(t *testing.T) {
	root, err := event.NewGiven("note", "dev", event.WithID("root"))
	require.NoError(t, err)
	mid, err := event.NewGiven("note", "dev", event.WithID("mid"), event.WithParents("root"))
	require.NoError(t, err)
	tip, err := event.NewGiven("note", "dev", event.WithID("tip"), event.WithParents("mid"))
	require.NoError(t, err)
	side, err := event.NewGiven("note", "dev", event.WithID("side"), event.WithParents("root"))
	require.NoError(t, err)

	c := parentChecker(t, root, mid, tip, side)

	assert.Equal(t, vclock.Equal, c.Relate("root", "root"))
	assert.Equal(t, vclock.Before, c.Relate("root", "tip"))
	assert.Equal(t, vclock.After, c.Relate("tip", "root"))
	assert.Equal(t, vclock.Concurrent, c.Relate("mid", "side"))
	assert.Equal(t, vclock.Concurrent, c.Relate("tip", "side"))
}

func TestParentLinkCheckerUnresolvableIsConcurrent(t *testing.T) {
	c := parentChecker(t)
	assert.Equal(t, vclock.Concurrent, c.Relate("ghost-a", "ghost-b"))
}

func TestParentLinkCheckerToleratesParentCycle(t *testing.T) {
	// Malformed input must terminate, not loop.
	a := &event.Event{ID: "a", Parents: []string{"b"}}
	b := &event.Event{ID: "b", Parents: []string{"a"}}
	c := parentChecker(t, a, b)
	assert.Equal(t, vclock.Before, c.Relate("a", "b"))
}

func TestVectorClockCheckerRelate(t *testing.T) {
	earlier := vclock.New()
	earlier.Increment("dev-a")
	later := earlier.Clone()
	later.Increment("dev-a")
	sideways := vclock.New()
	sideways.Increment("dev-b")

	clocks := map[string]*vclock.Clock{
		"e1": earlier,
		"e2": later,
		"e3": sideways,
	}
	c := VectorClockChecker{Clocks: func(id string) *vclock.Clock { return clocks[id] }}

	assert.Equal(t, vclock.Equal, c.Relate("e1", "e1"))
	assert.Equal(t, vclock.Before, c.Relate("e1", "e2"))
	assert.Equal(t, vclock.After, c.Relate("e2", "e1"))
	assert.Equal(t, vclock.Concurrent, c.Relate("e1", "e3"))
	assert.Equal(t, vclock.Concurrent, c.Relate("e1", "missing"))
}
