package ai

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFeedbackSanitizerStripsMarkup(t *testing.T) {
	dirty := `<b>You explain</b> the light reaction <img src="x" onerror="alert(1)"> well.`
	clean := strings.TrimSpace(feedbackSanitizer.Sanitize(dirty))

	require.NotContains(t, clean, "<")
	require.Contains(t, clean, "You explain")
	require.Contains(t, clean, "well.")
}

func TestBuildFeedbackPromptIncludesAssessment(t *testing.T) {
	asg := AssignmentContext{
		QuestionText: "Explain photosynthesis.",
		Requirements: []Requirement{{Text: "Mentions chlorophyll", Points: 2}},
	}
	assessment := AssessmentResult{
		RubricPoints: map[string]bool{"Mentions chlorophyll": true},
	}

	prompt := buildFeedbackPrompt(assessment, asg, "Plants use sunlight.")

	require.Contains(t, prompt, "Explain photosynthesis.")
	require.Contains(t, prompt, "Mentions chlorophyll")
	require.Contains(t, prompt, "Plants use sunlight.")
	require.Contains(t, prompt, "~50 word")
}

func TestBuildCritiquePromptListsAllCriteria(t *testing.T) {
	prompt := buildCritiquePrompt("Good work.", AssessmentResult{}, AssignmentContext{QuestionText: "Q"})

	for _, criterion := range []string{
		"scientifically accurate",
		"rubric points",
		"constructive",
		"tone",
		"clear and concise",
		"academic rigor",
	} {
		require.Contains(t, prompt, criterion)
	}
	require.Contains(t, prompt, "criteria_met")
}

func TestBuildTranscriptionPromptMentionsUnclearMarker(t *testing.T) {
	asg := AssignmentContext{
		QuestionText: "Explain photosynthesis.",
		Requirements: []Requirement{{Text: "Mentions chlorophyll", Points: 2}},
	}

	prompt := buildTranscriptionPrompt(asg)

	require.Contains(t, prompt, UnclearMarker)
	require.Contains(t, prompt, "Mentions chlorophyll")
}
