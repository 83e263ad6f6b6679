package service

import (
	"testing"

	"legalseg-backend/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeStringMode(t *testing.T) {
	n := NewNormalizer()

	sentences := n.Normalize(RawPayload{
		"**Facts** | A.",
		"**Issues** | B.",
	})

	require.Len(t, sentences, 2)
	assert.Equal(t, "A.", sentences[0].Text)
	assert.Equal(t, models.RoleFacts, sentences[0].RoleID)
	assert.Equal(t, 1, sentences[0].OriginalIndex)
	assert.Equal(t, "B.", sentences[1].Text)
	assert.Equal(t, models.RoleIssues, sentences[1].RoleID)
	assert.Equal(t, 2, sentences[1].OriginalIndex)
}

func TestNormalizeStringModeDropsUnmarkedLines(t *testing.T) {
	n := NewNormalizer()

	sentences := n.Normalize(RawPayload{
		"some preamble the model emitted",
		"**Reasoning** | Because of the precedent.",
		"",
	})

	require.Len(t, sentences, 1)
	assert.Equal(t, models.RoleReasoning, sentences[0].RoleID)
	assert.Equal(t, 1, sentences[0].OriginalIndex)
}

func TestNormalizeObjectMode(t *testing.T) {
	n := NewNormalizer()

	sentences := n.Normalize(RawPayload{
		map[string]interface{}{"label": "Facts", "sentence": "The appellant filed a petition."},
		map[string]interface{}{"role": "Decision", "text": "The appeal is dismissed.", "confidence": 0.9},
		map[string]interface{}{"label": "Reasoning"}, // no text, dropped
	})

	require.Len(t, sentences, 2)
	assert.Equal(t, models.RoleFacts, sentences[0].RoleID)
	assert.Equal(t, 1.0, sentences[0].Confidence)
	assert.Equal(t, 1, sentences[0].OriginalIndex)
	assert.Equal(t, models.RoleDecision, sentences[1].RoleID)
	assert.Equal(t, 0.9, sentences[1].Confidence)
	assert.Equal(t, 2, sentences[1].OriginalIndex)
}

func TestNormalizePercentConfidence(t *testing.T) {
	n := NewNormalizer()

	sentences := n.Normalize(RawPayload{
		map[string]interface{}{"label": "Decision", "sentence": "Allowed.", "confidence": float64(87)},
	})

	require.Len(t, sentences, 1)
	assert.InDelta(t, 0.87, sentences[0].Confidence, 1e-9)
}

func TestNormalizeNestedPayload(t *testing.T) {
	n := NewNormalizer()

	sentences := n.Normalize(RawPayload{
		`[[{"label":"Facts","sentence":"A."}]]`,
	})

	require.Len(t, sentences, 1)
	assert.Equal(t, "A.", sentences[0].Text)
	assert.Equal(t, models.RoleFacts, sentences[0].RoleID)
}

func TestNormalizeNestedPayloadParseFailure(t *testing.T) {
	n := NewNormalizer()

	sentences := n.Normalize(RawPayload{"[[not json at all"})

	assert.Empty(t, sentences)
}

func TestNormalizeEmptyPayload(t *testing.T) {
	n := NewNormalizer()

	assert.Empty(t, n.Normalize(nil))
	assert.Empty(t, n.Normalize(RawPayload{}))
}

func TestMapRoleLabelIsTotal(t *testing.T) {
	cases := map[string]models.RoleTag{
		"Facts":                   models.RoleFacts,
		"fact":                    models.RoleFacts,
		"Issue":                   models.RoleIssues,
		"issues":                  models.RoleIssues,
		"Arguments of Petitioner": models.RoleArgumentPetitioner,
		"argument (petitioner)":   models.RoleArgumentPetitioner,
		"Arguments of Respondent": models.RoleArgumentRespondent,
		"argument (respondent)":   models.RoleArgumentRespondent,
		"Reasoning":               models.RoleReasoning,
		"DECISION":                models.RoleDecision,
		"None":                    models.RoleNone,
		"  facts  ":               models.RoleFacts,
		"Unknown":                 models.RoleNone,
		"":                        models.RoleNone,
		"garbage label 42":        models.RoleNone,
	}

	for label, want := range cases {
		assert.Equal(t, want, MapRoleLabel(label), "label %q", label)
	}
}
