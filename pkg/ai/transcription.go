package ai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Transcribe reads the answer image, sends it inline to the vision model with
// the assignment rubric, and returns the transcript plus a preliminary
// point-by-point evaluation. Every supplied requirement must be judged;
// a response without a transcript is an error.
func (c *Client) Transcribe(parent context.Context, imagePath string, asg AssignmentContext) (Evaluation, error) {
	ctx, span := c.tracer.Start(parent, "ai.transcribe", trace.WithAttributes(
		attribute.String("model", c.cfg.VisionModel),
	))
	defer span.End()

	data, err := os.ReadFile(imagePath)
	if err != nil {
		return Evaluation{}, fmt.Errorf("read image %q: %w", imagePath, err)
	}

	encoded := base64.StdEncoding.EncodeToString(data)
	dataURL := fmt.Sprintf("data:%s;base64,%s", mimetype.Detect(data).String(), encoded)

	start := time.Now()
	request := openai.ChatCompletionRequest{
		Model:     c.cfg.VisionModel,
		MaxTokens: c.cfg.MaxTokens,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{
						Type: openai.ChatMessagePartTypeText,
						Text: buildTranscriptionPrompt(asg),
					},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL: dataURL,
						},
					},
				},
			},
		},
	}

	resp, err := c.api.CreateChatCompletion(ctx, request)
	stageDuration.WithLabelValues("transcription", c.cfg.VisionModel).Observe(time.Since(start).Seconds())
	if err != nil {
		stageFailures.WithLabelValues("transcription", c.cfg.VisionModel).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Evaluation{}, fmt.Errorf("transcription request: %w", err)
	}

	if len(resp.Choices) == 0 {
		err := fmt.Errorf("no choices returned from transcription model")
		stageFailures.WithLabelValues("transcription", c.cfg.VisionModel).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Evaluation{}, err
	}

	content := StripCodeFences(resp.Choices[0].Message.Content)

	var eval Evaluation
	if err := json.Unmarshal([]byte(content), &eval); err != nil {
		stageFailures.WithLabelValues("transcription", c.cfg.VisionModel).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Evaluation{}, fmt.Errorf("parse transcription json: %w", err)
	}

	if strings.TrimSpace(eval.StudentResponse) == "" {
		err := fmt.Errorf("transcription response missing student_response")
		stageFailures.WithLabelValues("transcription", c.cfg.VisionModel).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Evaluation{}, err
	}

	c.logger.Info().Int("rubric_points", len(eval.RubricPoints)).Msg("image transcribed")

	return eval, nil
}

func buildTranscriptionPrompt(asg AssignmentContext) string {
	requirements, _ := json.MarshalIndent(asg.RequirementTexts(), "", "  ")

	builder := strings.Builder{}
	builder.WriteString("Question: ")
	builder.WriteString(asg.QuestionText)
	builder.WriteString("\n\nFirst, accurately transcribe the handwritten response from the image.\n")
	builder.WriteString("Then evaluate this response against each of these specific rubric points:\n")
	builder.Write(requirements)
	builder.WriteString("\n\nReturn a JSON evaluation with:\n")
	builder.WriteString(`{
  "student_response": "The transcribed text from the image",
  "rubric_points": {"<point text>": true/false},
  "points_earned": ["list of specific points that were demonstrated"],
  "misconceptions": ["list any misconceptions or errors"],
  "explanation": "detailed feedback explaining the evaluation"
}`)
	builder.WriteString("\n\nIMPORTANT:\n")
	builder.WriteString("1. Include the full transcribed text in student_response\n")
	builder.WriteString(fmt.Sprintf("2. For unclear text in transcription, include %s\n", UnclearMarker))
	builder.WriteString("3. Return ONLY valid JSON with proper commas\n")
	builder.WriteString("4. Evaluate against EACH rubric point")

	return builder.String()
}
