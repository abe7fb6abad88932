package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var feedbackSanitizer = bluemonday.StrictPolicy()

// GenerateFeedback produces short second-person feedback from the rubric
// evaluation. The output is trimmed and stripped of any HTML the model emits.
func (c *Client) GenerateFeedback(parent context.Context, assessment AssessmentResult, asg AssignmentContext, studentResponse string) (string, error) {
	ctx, span := c.tracer.Start(parent, "ai.feedback", trace.WithAttributes(
		attribute.String("model", c.cfg.TextModel),
	))
	defer span.End()

	start := time.Now()
	request := openai.ChatCompletionRequest{
		Model:       c.cfg.TextModel,
		Temperature: 0.7,
		MaxTokens:   500,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: buildFeedbackPrompt(assessment, asg, studentResponse),
			},
		},
	}

	resp, err := c.api.CreateChatCompletion(ctx, request)
	stageDuration.WithLabelValues("feedback", c.cfg.TextModel).Observe(time.Since(start).Seconds())
	if err != nil {
		stageFailures.WithLabelValues("feedback", c.cfg.TextModel).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("feedback request: %w", err)
	}

	if len(resp.Choices) == 0 {
		err := fmt.Errorf("no choices returned from feedback model")
		stageFailures.WithLabelValues("feedback", c.cfg.TextModel).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	feedback := strings.TrimSpace(feedbackSanitizer.Sanitize(resp.Choices[0].Message.Content))
	if feedback == "" {
		err := fmt.Errorf("feedback model returned empty text")
		stageFailures.WithLabelValues("feedback", c.cfg.TextModel).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	return feedback, nil
}

// ValidateFeedback scores generated feedback against a fixed quality rubric.
// It is best-effort telemetry: any transport or parse failure yields a
// zero-score critique rather than an error, so delivery is never blocked.
func (c *Client) ValidateFeedback(parent context.Context, feedback string, assessment AssessmentResult, asg AssignmentContext) FeedbackCritique {
	ctx, span := c.tracer.Start(parent, "ai.feedback_validate")
	defer span.End()

	request := openai.ChatCompletionRequest{
		Model:       c.cfg.TextModel,
		Temperature: 0,
		MaxTokens:   500,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: buildCritiquePrompt(feedback, assessment, asg),
			},
		},
	}

	resp, err := c.api.CreateChatCompletion(ctx, request)
	if err != nil {
		span.RecordError(err)
		c.logger.Warn().Err(err).Msg("feedback validation failed")
		return FeedbackCritique{Issues: []string{err.Error()}}
	}

	if len(resp.Choices) == 0 {
		return FeedbackCritique{Issues: []string{"no choices returned from model"}}
	}

	var critique FeedbackCritique
	content := StripCodeFences(resp.Choices[0].Message.Content)
	if err := json.Unmarshal([]byte(content), &critique); err != nil {
		span.RecordError(err)
		c.logger.Warn().Err(err).Msg("feedback critique parse failed")
		return FeedbackCritique{Issues: []string{err.Error()}}
	}

	return critique
}

func buildFeedbackPrompt(assessment AssessmentResult, asg AssignmentContext, studentResponse string) string {
	rubricPoints, _ := json.MarshalIndent(assessment.RubricPoints, "", "  ")
	requirements, _ := json.MarshalIndent(asg.RequirementTexts(), "", "  ")

	builder := strings.Builder{}
	builder.WriteString("CONTEXT\nQuestion: ")
	builder.WriteString(asg.QuestionText)
	builder.WriteString("\nRubric:\n")
	builder.Write(requirements)
	builder.WriteString("\n\nStudent Response: ")
	builder.WriteString(studentResponse)
	builder.WriteString("\n\nINSTRUCTIONS\n")
	builder.WriteString("1. Identify which rubric points the student addressed or missed using this assessment:\n")
	builder.Write(rubricPoints)
	builder.WriteString("\n\n2. Generate ~50 word feedback that:\n")
	builder.WriteString("   - Acknowledges correct understanding of rubric points\n")
	builder.WriteString("   - Targets 1-2 key missing concepts\n")
	builder.WriteString("   - Uses direct, personal language (\"You explain...\")\n")
	builder.WriteString("   - Maintains precise subject terminology\n\n")
	builder.WriteString("STYLE GUIDANCE\n")
	builder.WriteString("- Direct, conversational academic tone\n")
	builder.WriteString("- Focus on understanding gaps\n")
	builder.WriteString("- No study suggestions\n\n")
	builder.WriteString("OUTPUT FORMAT\n- Feedback text only")

	return builder.String()
}

func buildCritiquePrompt(feedback string, assessment AssessmentResult, asg AssignmentContext) string {
	assessmentJSON, _ := json.MarshalIndent(assessment, "", "  ")

	builder := strings.Builder{}
	builder.WriteString("CONTEXT\nGenerated Feedback: ")
	builder.WriteString(feedback)
	builder.WriteString("\n\nQuestion: ")
	builder.WriteString(asg.QuestionText)
	builder.WriteString("\n\nAssessment Results:\n")
	builder.Write(assessmentJSON)
	builder.WriteString("\n\nEvaluate the feedback against these criteria (Y/N):\n")
	builder.WriteString("1. Is it scientifically accurate?\n")
	builder.WriteString("2. Does it address key rubric points?\n")
	builder.WriteString("3. Is it constructive and actionable?\n")
	builder.WriteString("4. Is the tone appropriate?\n")
	builder.WriteString("5. Is it clear and concise?\n")
	builder.WriteString("6. Does it maintain academic rigor?\n\n")
	builder.WriteString(`Return only a JSON object:
{
  "criteria_met": ["list of passed criteria numbers"],
  "issues": ["list of any problems found"],
  "score": 0-100
}`)

	return builder.String()
}
