package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/papergrade/papergrade-api/internal/models"
	"github.com/papergrade/papergrade-api/internal/repository"
	"github.com/papergrade/papergrade-api/pkg/ai"
	"github.com/papergrade/papergrade-api/pkg/storage"
)

// Transcriber turns an answer image plus rubric into a transcript and a
// preliminary point-by-point evaluation.
type Transcriber interface {
	Transcribe(ctx context.Context, imagePath string, asg ai.AssignmentContext) (ai.Evaluation, error)
}

// Grader evaluates a transcript against the rubric and derives scores.
type Grader interface {
	Grade(ctx context.Context, transcript string, asg ai.AssignmentContext) (ai.AssessmentResult, error)
}

// FeedbackWriter produces short natural-language feedback from an assessment.
type FeedbackWriter interface {
	GenerateFeedback(ctx context.Context, assessment ai.AssessmentResult, asg ai.AssignmentContext, studentResponse string) (string, error)
}

// FeedbackCritic optionally scores generated feedback against a quality
// rubric. The critique is telemetry only and never gates delivery.
type FeedbackCritic interface {
	ValidateFeedback(ctx context.Context, feedback string, assessment ai.AssessmentResult, asg ai.AssignmentContext) ai.FeedbackCritique
}

// ObjectStore persists uploaded images and issues signed, expiring read URLs.
type ObjectStore interface {
	Upload(ctx context.Context, objectPath string, reader io.Reader, size int64, contentType string) error
	PresignURL(ctx context.Context, objectPath string, expiry time.Duration) (string, error)
}

// Options bounds the pipeline's external calls.
type Options struct {
	MaxRetries    int
	RetryBackoff  time.Duration
	UploadTimeout time.Duration
	ModelTimeout  time.Duration
	SignedURLTTL  time.Duration
}

// ProcessInput identifies one submission run.
type ProcessInput struct {
	ImagePath    string
	AssignmentID string
	StudentID    string
}

// Result is the payload returned on full success.
type Result struct {
	SubmissionID string              `json:"submission_id"`
	Status       string              `json:"status"`
	Feedback     string              `json:"feedback"`
	Score        ai.AssessmentResult `json:"score"`
}

// Processor drives one submission from a local image through upload,
// transcription, grading, and feedback to a persisted terminal state.
// It is the only writer of submission records.
type Processor struct {
	assignments repository.AssignmentRepository
	submissions repository.SubmissionRepository
	store       ObjectStore
	transcriber Transcriber
	grader      Grader
	feedback    FeedbackWriter
	opts        Options
	logger      zerolog.Logger
	tracer      trace.Tracer
	now         func() time.Time
}

// NewProcessor constructs the pipeline orchestrator.
func NewProcessor(
	assignments repository.AssignmentRepository,
	submissions repository.SubmissionRepository,
	store ObjectStore,
	transcriber Transcriber,
	grader Grader,
	feedback FeedbackWriter,
	opts Options,
	logger zerolog.Logger,
) *Processor {
	if opts.UploadTimeout <= 0 {
		opts.UploadTimeout = 30 * time.Second
	}
	if opts.ModelTimeout <= 0 {
		opts.ModelTimeout = 90 * time.Second
	}
	if opts.SignedURLTTL <= 0 {
		opts.SignedURLTTL = 365 * 24 * time.Hour
	}

	return &Processor{
		assignments: assignments,
		submissions: submissions,
		store:       store,
		transcriber: transcriber,
		grader:      grader,
		feedback:    feedback,
		opts:        opts,
		logger:      logger.With().Str("component", "pipeline").Logger(),
		tracer:      otel.Tracer("github.com/papergrade/papergrade-api/internal/pipeline"),
		now:         time.Now,
	}
}

// ProcessSubmission runs the full pipeline for one image. Errors before a
// submission record exists abort with nothing persisted. Errors after that
// point mark the record with status "error" and return a *PipelineError
// carrying the submission id; the record is never re-entered.
func (p *Processor) ProcessSubmission(parent context.Context, input ProcessInput, onStage ProgressFunc) (*Result, error) {
	ctx, span := p.tracer.Start(parent, "pipeline.process_submission", trace.WithAttributes(
		attribute.String("assignment_id", input.AssignmentID),
		attribute.String("student_id", input.StudentID),
	))
	defer span.End()

	assignment, err := p.assignments.GetByID(ctx, input.AssignmentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			span.SetStatus(codes.Error, "assignment_not_found")
			return nil, ErrAssignmentNotFound
		}
		span.RecordError(err)
		return nil, fmt.Errorf("fetch assignment: %w", err)
	}

	rubric, err := assignment.RubricStructure()
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	asgCtx := assignmentContext(assignment, rubric)

	retry := newRetryer(p.opts.MaxRetries, p.opts.RetryBackoff, p.logger)

	report(onStage, StageUpload, "Uploading image...")
	submission, err := p.uploadAndCreate(ctx, retry, input)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "upload_failed")
		return nil, err
	}

	report(onStage, StageOCR, "Processing image with OCR...")
	eval, err := p.transcribe(ctx, retry, input.ImagePath, asgCtx)
	if err != nil {
		return nil, p.fail(ctx, span, submission.ID, StageOCR, &TranscriptionError{Err: err})
	}

	if err := p.submissions.UpdateFields(ctx, submission.ID, map[string]interface{}{
		"transcript":  eval.StudentResponse,
		"status":      models.SubmissionStatusProcessing,
		"retry_count": retry.Retries(),
	}); err != nil {
		return nil, p.fail(ctx, span, submission.ID, StageOCR, &PersistenceError{Op: "transcript", Err: err})
	}

	report(onStage, StageGrading, "Grading submission...")
	var assessment ai.AssessmentResult
	err = retry.Do(ctx, "grading", func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, p.opts.ModelTimeout)
		defer cancel()

		var gradeErr error
		assessment, gradeErr = p.grader.Grade(callCtx, eval.StudentResponse, asgCtx)
		return gradeErr
	})
	if err != nil {
		return nil, p.fail(ctx, span, submission.ID, StageGrading, &ValidationError{Stage: StageGrading, Err: err})
	}

	report(onStage, StageFeedback, "Generating feedback...")
	var feedback string
	err = retry.Do(ctx, "feedback", func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, p.opts.ModelTimeout)
		defer cancel()

		var fbErr error
		feedback, fbErr = p.feedback.GenerateFeedback(callCtx, assessment, asgCtx, eval.StudentResponse)
		return fbErr
	})
	if err != nil {
		return nil, p.fail(ctx, span, submission.ID, StageFeedback, &ValidationError{Stage: StageFeedback, Err: err})
	}

	if critic, ok := p.feedback.(FeedbackCritic); ok {
		go func(ctx context.Context) {
			critique := critic.ValidateFeedback(ctx, feedback, assessment, asgCtx)
			p.logger.Debug().
				Int("critique_score", critique.Score).
				Strs("critique_issues", critique.Issues).
				Msg("feedback critique")
		}(context.WithoutCancel(ctx))
	}

	scoreJSON, err := json.Marshal(assessment)
	if err != nil {
		return nil, p.fail(ctx, span, submission.ID, StageFeedback, &PersistenceError{Op: "score", Err: err})
	}

	completedAt := p.now().UTC()
	if err := p.submissions.UpdateFields(ctx, submission.ID, map[string]interface{}{
		"status":       models.SubmissionStatusComplete,
		"transcript":   eval.StudentResponse,
		"feedback":     feedback,
		"score":        datatypes.JSON(scoreJSON),
		"processed_at": completedAt,
		"retry_count":  retry.Retries(),
	}); err != nil {
		return nil, p.fail(ctx, span, submission.ID, StageComplete, &PersistenceError{Op: "result", Err: err})
	}

	report(onStage, StageComplete, "Processing complete")
	span.SetAttributes(attribute.String("submission_id", submission.ID))
	p.logger.Info().
		Str("submission_id", submission.ID).
		Str("teacher_score", assessment.TeacherScore).
		Msg("submission processed")

	return &Result{
		SubmissionID: submission.ID,
		Status:       models.SubmissionStatusComplete,
		Feedback:     feedback,
		Score:        assessment,
	}, nil
}

func (p *Processor) uploadAndCreate(ctx context.Context, retry *retryer, input ProcessInput) (models.Submission, error) {
	file, err := os.Open(input.ImagePath)
	if err != nil {
		return models.Submission{}, &UploadError{Err: err}
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return models.Submission{}, &UploadError{Err: err}
	}

	contentType := "application/octet-stream"
	if mtype, err := mimetype.DetectFile(input.ImagePath); err == nil {
		contentType = mtype.String()
	}

	objectPath := storage.ObjectPath(input.AssignmentID, input.ImagePath, p.now())
	err = retry.Do(ctx, "upload", func(ctx context.Context) error {
		if _, err := file.Seek(0, io.SeekStart); err != nil {
			return err
		}

		callCtx, cancel := context.WithTimeout(ctx, p.opts.UploadTimeout)
		defer cancel()

		return p.store.Upload(callCtx, objectPath, file, info.Size(), contentType)
	})
	if err != nil {
		return models.Submission{}, &UploadError{Err: err}
	}

	signedURL, err := p.store.PresignURL(ctx, objectPath, p.opts.SignedURLTTL)
	if err != nil {
		return models.Submission{}, &UploadError{Err: err}
	}

	submission := models.Submission{
		ID:           uuid.NewString(),
		AssignmentID: input.AssignmentID,
		StudentID:    input.StudentID,
		Status:       models.SubmissionStatusPending,
		ImageURL:     signedURL,
		ImagePath:    objectPath,
	}

	if err := p.submissions.Create(ctx, &submission); err != nil {
		return models.Submission{}, &PersistenceError{Op: "create submission", Err: err}
	}

	return submission, nil
}

func (p *Processor) transcribe(ctx context.Context, retry *retryer, imagePath string, asgCtx ai.AssignmentContext) (ai.Evaluation, error) {
	var eval ai.Evaluation
	err := retry.Do(ctx, "transcription", func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, p.opts.ModelTimeout)
		defer cancel()

		var trErr error
		eval, trErr = p.transcriber.Transcribe(callCtx, imagePath, asgCtx)
		return trErr
	})
	if err != nil {
		return ai.Evaluation{}, err
	}

	// The stage enforces this too, but the interface makes no promises.
	if strings.TrimSpace(eval.StudentResponse) == "" {
		return ai.Evaluation{}, fmt.Errorf("transcription produced no student response")
	}

	return eval, nil
}

// fail converts the submission to its terminal error state and wraps the
// stage error. The marking write uses a detached context so a cancelled or
// timed-out run still leaves a discoverable error record.
func (p *Processor) fail(ctx context.Context, span trace.Span, submissionID string, stage Stage, stageErr error) error {
	span.RecordError(stageErr)
	span.SetStatus(codes.Error, string(stage))

	markCtx := context.WithoutCancel(ctx)
	if err := p.submissions.UpdateFields(markCtx, submissionID, map[string]interface{}{
		"status":        models.SubmissionStatusError,
		"error_message": stageErr.Error(),
	}); err != nil {
		p.logger.Error().
			Err(err).
			Str("submission_id", submissionID).
			Msg("failed to mark submission as errored")
	}

	p.logger.Error().
		Err(stageErr).
		Str("submission_id", submissionID).
		Str("stage", string(stage)).
		Msg("pipeline processing failed")

	return &PipelineError{SubmissionID: submissionID, Stage: stage, Err: stageErr}
}

func assignmentContext(assignment models.Assignment, rubric models.RubricStructure) ai.AssignmentContext {
	requirements := make([]ai.Requirement, 0, len(rubric.Requirements))
	for _, req := range rubric.Requirements {
		requirements = append(requirements, ai.Requirement{Text: req.Text, Points: req.Points})
	}

	return ai.AssignmentContext{
		QuestionText: assignment.QuestionText,
		Requirements: requirements,
		Notes:        rubric.Metadata.Notes,
		Examples:     rubric.Metadata.Examples,
	}
}
