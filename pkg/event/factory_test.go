package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewGiven(t *testing.T) {
	e, err := NewGiven("raw_data", "importer", WithPayload(map[string]any{"v": 1}))
	require.NoError(t, err)
	assert.Equal(t, Given, e.EpistemicType)
	assert.NotEmpty(t, e.ID)
	assert.False(t, e.Timestamp.IsZero())
}

func TestNewGivenGeneratesUniqueIDs(t *testing.T) {
	a, err := NewGiven("raw_data", "importer")
	require.NoError(t, err)
	b, err := NewGiven("raw_data", "importer")
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestNewMeantFailsFast(t *testing.T) {
	_, err := NewMeant("interpretation", "analyst", Frame{}, []Reference{{EventID: "g1", Kind: KindEpistemic}})
	assert.Error(t, err, "empty claim must fail at construction")

	_, err = NewMeant("interpretation", "analyst", Frame{Claim: "c"}, nil)
	assert.Error(t, err, "missing references must fail at construction")
}

func TestNewMeantWellFormed(t *testing.T) {
	e, err := NewMeant("interpretation", "analyst",
		Frame{Claim: "looks seasonal", EpistemicStatus: "tentative"},
		[]Reference{{EventID: "g1", Kind: KindEpistemic}},
		WithParents("g1"), WithWorkspace("ws1"))
	require.NoError(t, err)
	assert.Empty(t, Validate(e))
	assert.Equal(t, []string{"g1"}, e.Parents)
	assert.Equal(t, "ws1", e.Workspace())
}

func TestNewDerivedFailsFast(t *testing.T) {
	_, err := NewDerived("computed_value", "calc", Derivation{}, []Reference{{EventID: "g1", Kind: KindComputational}})
	assert.Error(t, err, "missing operator must fail at construction")

	_, err = NewDerived("computed_value", "calc", Derivation{Operator: "sum"},
		[]Reference{{EventID: "g1", Kind: KindStructural}})
	assert.Error(t, err, "missing computational reference must fail at construction")
}

func TestNewDerivedWellFormed(t *testing.T) {
	e, err := NewDerived("computed_value", "calc",
		Derivation{Operator: "sum", Inputs: []string{"g1", "g2"}},
		[]Reference{
			{EventID: "g1", Kind: KindComputational},
			{EventID: "g2", Kind: KindComputational},
		})
	require.NoError(t, err)
	assert.Empty(t, Validate(e))
	assert.Equal(t, "sum", e.Grounding.Derivation.Operator)
}

func TestNewTombstone(t *testing.T) {
	e, err := NewTombstone("m1", "editor", "entered by mistake")
	require.NoError(t, err)
	assert.Equal(t, Meant, e.EpistemicType)
	assert.Equal(t, SupersedeTombstone, e.Supersession.Type)
	assert.Equal(t, "m1", e.Supersession.Supersedes)

	_, err = NewTombstone("", "editor", "")
	assert.Error(t, err)
}
