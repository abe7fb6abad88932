package ai

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStripCodeFences(t *testing.T) {
	fenced := "```json\n{\"a\": 1}\n```"
	require.Equal(t, `{"a": 1}`, StripCodeFences(fenced))

	plain := `{"a": 1}`
	require.Equal(t, plain, StripCodeFences(plain))

	// Applying it twice must not change the result.
	require.Equal(t, StripCodeFences(fenced), StripCodeFences(StripCodeFences(fenced)))

	bare := "```\n{\"a\": 1}\n```"
	require.Equal(t, `{"a": 1}`, StripCodeFences(bare))
}

func TestParseGradingResponseAcceptsFencedJSON(t *testing.T) {
	content := "```json\n" + `{
		"rubric_points": {"Mentions chlorophyll": true, "Explains light reaction": false},
		"points_earned": ["Mentions chlorophyll"],
		"misconceptions": ["Confuses respiration with photosynthesis"],
		"explanation": "Partial understanding shown."
	}` + "\n```"

	eval, err := parseGradingResponse(content)
	require.NoError(t, err)
	require.True(t, eval.RubricPoints["Mentions chlorophyll"])
	require.False(t, eval.RubricPoints["Explains light reaction"])
	require.Equal(t, []string{"Mentions chlorophyll"}, eval.PointsEarned)
	require.Equal(t, "Partial understanding shown.", eval.Explanation)
}

func TestParseGradingResponseRejectsExtraFields(t *testing.T) {
	content := `{
		"rubric_points": {},
		"points_earned": [],
		"misconceptions": [],
		"explanation": "ok",
		"score": 1.0
	}`

	_, err := parseGradingResponse(content)
	require.Error(t, err)
	require.Contains(t, err.Error(), "schema")
}

func TestParseGradingResponseRejectsMissingFields(t *testing.T) {
	content := `{"rubric_points": {}, "points_earned": []}`

	_, err := parseGradingResponse(content)
	require.Error(t, err)
}

func TestParseGradingResponseRejectsInvalidJSON(t *testing.T) {
	_, err := parseGradingResponse("not json at all")
	require.Error(t, err)
}

func TestMapToRubricWeightsRequirementPoints(t *testing.T) {
	asg := AssignmentContext{
		QuestionText: "Explain photosynthesis.",
		Requirements: []Requirement{
			{Text: "Mentions chlorophyll", Points: 2},
			{Text: "Explains light reaction", Points: 3},
		},
	}
	eval := Evaluation{
		RubricPoints: map[string]bool{
			"Mentions chlorophyll":    true,
			"Explains light reaction": false,
		},
		PointsEarned: []string{"Mentions chlorophyll"},
		Explanation:  "One of two requirements met.",
	}

	result := MapToRubric(eval, asg)

	require.InDelta(t, 0.5, result.RawScore, 1e-9)
	require.InDelta(t, 2.0/5.0, result.WeightedScore, 1e-9)
	require.Equal(t, "1/2", result.TeacherScore)
	require.InDelta(t, gradingConfidence, result.Confidence, 1e-9)
	require.Equal(t, 1, result.EarnedCount())
}

func TestMapToRubricEmptyRubric(t *testing.T) {
	result := MapToRubric(Evaluation{}, AssignmentContext{})

	require.Zero(t, result.RawScore)
	require.Zero(t, result.WeightedScore)
	require.Equal(t, "0/0", result.TeacherScore)
}
