package event

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validGiven() *Event {
	return &Event{
		ID:            "g1",
		EpistemicType: Given,
		Category:      "raw_data",
		Timestamp:     time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Actor:         "importer",
		Payload:       json.RawMessage(`{"value":42}`),
	}
}

func validMeant() *Event {
	return &Event{
		ID:            "m1",
		EpistemicType: Meant,
		Category:      "interpretation",
		Timestamp:     time.Date(2026, 3, 1, 12, 1, 0, 0, time.UTC),
		Actor:         "analyst",
		Frame:         &Frame{Claim: "the value is anomalous"},
		Grounding:     &Grounding{References: []Reference{{EventID: "g1", Kind: KindEpistemic}}},
	}
}

func TestValidateGiven(t *testing.T) {
	assert.Empty(t, Validate(validGiven()))
}

func TestValidateMissingFields(t *testing.T) {
	errs := Validate(&Event{EpistemicType: Given})
	require.NotEmpty(t, errs)
	assert.True(t, errs.Has(CodeStructural))
}

func TestValidateClosedEpistemicTypes(t *testing.T) {
	e := validGiven()
	e.EpistemicType = "guessed"
	errs := Validate(e)
	assert.True(t, errs.Has(CodeRule1))
}

func TestValidateMeantRequiresFrame(t *testing.T) {
	e := validMeant()
	e.Frame = nil
	errs := Validate(e)
	assert.True(t, errs.Has(CodeStructural))
}

func TestValidateMeantRequiresGrounding(t *testing.T) {
	e := validMeant()
	e.Grounding = nil
	errs := Validate(e)
	assert.True(t, errs.Has(CodeRule7))
}

func TestValidateGivenRejectsSemanticReference(t *testing.T) {
	e := validGiven()
	e.Grounding = &Grounding{References: []Reference{{EventID: "m1", Kind: KindSemantic}}}
	errs := Validate(e)
	assert.True(t, errs.Has(CodeRule2), "semantic reference on given must violate RULE_2")
}

func TestValidateDerivedNeedsComputationalRef(t *testing.T) {
	e := &Event{
		ID:            "d1",
		EpistemicType: DerivedValue,
		Category:      "computed_value",
		Timestamp:     time.Now(),
		Actor:         "calc",
		Grounding: &Grounding{
			References: []Reference{{EventID: "g1", Kind: KindStructural}},
			Derivation: &Derivation{Operator: "sum"},
		},
	}
	errs := Validate(e)
	assert.True(t, errs.Has(CodeRule8))

	e.Grounding.References[0].Kind = KindComputational
	assert.Empty(t, Validate(e))
}

func TestValidateDerivedNeedsDerivation(t *testing.T) {
	e := &Event{
		ID:            "d1",
		EpistemicType: DerivedValue,
		Category:      "computed_value",
		Timestamp:     time.Now(),
		Actor:         "calc",
		Grounding: &Grounding{
			References: []Reference{{EventID: "g1", Kind: KindComputational}},
		},
	}
	errs := Validate(e)
	assert.True(t, errs.Has(CodeRule8))
}

func TestValidateSelfSupersession(t *testing.T) {
	e := validMeant()
	e.Supersession = &Supersession{Supersedes: e.ID, Type: SupersedeCorrection}
	errs := Validate(e)
	assert.True(t, errs.Has(CodeRule3))
}

func TestCloneIsDeep(t *testing.T) {
	e := validMeant()
	e.Parents = []string{"g1"}
	e.Context = &Context{Workspace: "ws"}

	c := e.Clone()
	c.Frame.Claim = "mutated"
	c.Grounding.References[0].EventID = "other"
	c.Parents[0] = "mutated"
	c.Context.Workspace = "mutated"

	assert.Equal(t, "the value is anomalous", e.Frame.Claim)
	assert.Equal(t, "g1", e.Grounding.References[0].EventID)
	assert.Equal(t, "g1", e.Parents[0])
	assert.Equal(t, "ws", e.Context.Workspace)
}

func TestContentHashStable(t *testing.T) {
	a, err := ContentHash(validMeant())
	require.NoError(t, err)
	b, err := ContentHash(validMeant())
	require.NoError(t, err)
	assert.Equal(t, a, b)

	// Logical clock must not affect identity.
	withClock := validMeant()
	withClock.LogicalClock = 99
	c, err := ContentHash(withClock)
	require.NoError(t, err)
	assert.Equal(t, a, c)
}

func TestContentHashDiffers(t *testing.T) {
	a, err := ContentHash(validMeant())
	require.NoError(t, err)

	other := validMeant()
	other.Frame.Claim = "a different claim"
	b, err := ContentHash(other)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}
