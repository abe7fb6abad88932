package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// gradingConfidence is reported as-is; the model is not asked for a
// calibrated confidence value.
const gradingConfidence = 0.95

// evaluationSchema rejects responses that add fields or omit any required
// part of the rubric judgment.
const evaluationSchema = `{
  "type": "object",
  "properties": {
    "rubric_points": {
      "type": "object",
      "additionalProperties": {"type": "boolean"}
    },
    "points_earned": {
      "type": "array",
      "items": {"type": "string"}
    },
    "misconceptions": {
      "type": "array",
      "items": {"type": "string"}
    },
    "explanation": {"type": "string"}
  },
  "required": ["rubric_points", "points_earned", "misconceptions", "explanation"],
  "additionalProperties": false
}`

var compiledEvaluationSchema = jsonschema.MustCompileString("evaluation.json", evaluationSchema)

// Grade evaluates a transcript against the assignment rubric and derives
// the normalized scores. The transcript must be non-empty.
func (c *Client) Grade(parent context.Context, transcript string, asg AssignmentContext) (AssessmentResult, error) {
	if strings.TrimSpace(transcript) == "" {
		return AssessmentResult{}, fmt.Errorf("submission transcript is empty")
	}

	ctx, span := c.tracer.Start(parent, "ai.grade", trace.WithAttributes(
		attribute.String("model", c.cfg.TextModel),
	))
	defer span.End()

	start := time.Now()
	request := openai.ChatCompletionRequest{
		Model:       c.cfg.TextModel,
		Temperature: 0,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: buildGradingPrompt(transcript, asg),
			},
		},
	}

	resp, err := c.api.CreateChatCompletion(ctx, request)
	stageDuration.WithLabelValues("grading", c.cfg.TextModel).Observe(time.Since(start).Seconds())
	if err != nil {
		stageFailures.WithLabelValues("grading", c.cfg.TextModel).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return AssessmentResult{}, fmt.Errorf("grading request: %w", err)
	}

	if len(resp.Choices) == 0 {
		err := fmt.Errorf("no choices returned from grading model")
		stageFailures.WithLabelValues("grading", c.cfg.TextModel).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return AssessmentResult{}, err
	}

	eval, err := parseGradingResponse(resp.Choices[0].Message.Content)
	if err != nil {
		stageFailures.WithLabelValues("grading", c.cfg.TextModel).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return AssessmentResult{}, err
	}

	eval.StudentResponse = transcript
	result := MapToRubric(eval, asg)

	span.SetAttributes(
		attribute.Float64("grading.weighted_score", result.WeightedScore),
		attribute.String("grading.teacher_score", result.TeacherScore),
	)
	c.logger.Info().Str("teacher_score", result.TeacherScore).Msg("transcript graded")

	return result, nil
}

func parseGradingResponse(content string) (Evaluation, error) {
	cleaned := StripCodeFences(content)

	var generic interface{}
	if err := json.Unmarshal([]byte(cleaned), &generic); err != nil {
		return Evaluation{}, fmt.Errorf("parse grading json: %w", err)
	}

	if err := compiledEvaluationSchema.Validate(generic); err != nil {
		return Evaluation{}, fmt.Errorf("grading response rejected by schema: %w", err)
	}

	var eval Evaluation
	if err := json.Unmarshal([]byte(cleaned), &eval); err != nil {
		return Evaluation{}, fmt.Errorf("decode grading json: %w", err)
	}

	return eval, nil
}

// MapToRubric derives the assessment scores from a point-by-point evaluation.
// RawScore counts requirements; WeightedScore honours per-requirement points.
// Both guard against empty rubrics instead of dividing by zero.
func MapToRubric(eval Evaluation, asg AssignmentContext) AssessmentResult {
	earned := 0
	for _, ok := range eval.RubricPoints {
		if ok {
			earned++
		}
	}

	max := len(asg.Requirements)
	rawScore := 0.0
	if max > 0 {
		rawScore = float64(earned) / float64(max)
	}

	earnedPoints := 0
	totalPoints := 0
	for _, req := range asg.Requirements {
		totalPoints += req.Points
		if eval.RubricPoints[req.Text] {
			earnedPoints += req.Points
		}
	}

	weightedScore := 0.0
	if totalPoints > 0 {
		weightedScore = float64(earnedPoints) / float64(totalPoints)
	}

	return AssessmentResult{
		RawScore:       rawScore,
		WeightedScore:  weightedScore,
		TeacherScore:   fmt.Sprintf("%d/%d", earned, max),
		RubricPoints:   eval.RubricPoints,
		PointsEarned:   eval.PointsEarned,
		Misconceptions: eval.Misconceptions,
		Feedback:       eval.Explanation,
		Confidence:     gradingConfidence,
	}
}

func buildGradingPrompt(transcript string, asg AssignmentContext) string {
	requirements, _ := json.MarshalIndent(asg.RequirementTexts(), "", "  ")

	builder := strings.Builder{}
	builder.WriteString("Question: ")
	builder.WriteString(asg.QuestionText)
	builder.WriteString("\n\nStudent Response: ")
	builder.WriteString(transcript)
	builder.WriteString("\n\nEvaluate this response against each of these specific rubric points:\n")
	builder.Write(requirements)
	builder.WriteString("\n\nReturn a JSON evaluation with:\n")
	builder.WriteString(`{
  "rubric_points": {"<point text>": true/false},
  "points_earned": ["list of specific points that were demonstrated"],
  "misconceptions": ["list any misconceptions or errors"],
  "explanation": "detailed feedback explaining the evaluation"
}`)
	if asg.Notes != "" {
		builder.WriteString("\n\nGrading notes:\n")
		builder.WriteString(asg.Notes)
	}
	builder.WriteString("\nReturn JSON only.")

	return builder.String()
}
