package handler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/papergrade/papergrade-api/internal/dto"
	"github.com/papergrade/papergrade-api/internal/middleware"
	"github.com/papergrade/papergrade-api/internal/observability"
	"github.com/papergrade/papergrade-api/internal/pipeline"
	"github.com/papergrade/papergrade-api/internal/progress"
	"github.com/papergrade/papergrade-api/internal/service"
	"github.com/papergrade/papergrade-api/internal/utils"
)

// SubmissionHandler accepts handwritten answer uploads, drives them through
// the grading pipeline, and serves the recorded results.
type SubmissionHandler struct {
	processor   *pipeline.Processor
	review      service.ReviewService
	broker      *progress.Broker
	validate    *validator.Validate
	concurrency int
	logger      zerolog.Logger
}

// NewSubmissionHandler constructs the handler. Concurrency bounds the batch
// worker pool.
func NewSubmissionHandler(processor *pipeline.Processor, review service.ReviewService, broker *progress.Broker, validate *validator.Validate, concurrency int, logger zerolog.Logger) *SubmissionHandler {
	if concurrency <= 0 {
		concurrency = 1
	}

	return &SubmissionHandler{
		processor:   processor,
		review:      review,
		broker:      broker,
		validate:    validate,
		concurrency: concurrency,
		logger:      logger.With().Str("component", "submission_handler").Logger(),
	}
}

// Register wires the submission routes into the provided router group.
func (h *SubmissionHandler) Register(router fiber.Router) {
	router.Post("/", h.Create)
	router.Post("/batch", h.CreateBatch)
	router.Get("/", h.List)
	router.Get("/:id", h.Get)
}

// batchAccepted is the payload returned when a batch run is scheduled.
type batchAccepted struct {
	BatchID string   `json:"batch_id"`
	Files   []string `json:"files"`
}

// Create grades a single uploaded answer image synchronously and returns the
// pipeline result.
func (h *SubmissionHandler) Create(c *fiber.Ctx) error {
	logger := requestLogger(h.logger, c)

	assignmentID := strings.TrimSpace(c.FormValue("assignment_id"))
	if assignmentID == "" {
		return utils.SendError(c, fiber.StatusBadRequest, "assignment_id is required")
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "file is required")
	}

	tempDir, err := os.MkdirTemp("", "papergrade-upload-*")
	if err != nil {
		logger.Error().Err(err).Msg("failed to create temp dir")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to stage upload")
	}
	defer os.RemoveAll(tempDir)

	imagePath := filepath.Join(tempDir, filepath.Base(fileHeader.Filename))
	if err := c.SaveFile(fileHeader, imagePath); err != nil {
		logger.Error().Err(err).Msg("failed to save upload")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to stage upload")
	}

	if err := requireImage(imagePath); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	studentID := strings.TrimSpace(c.FormValue("student_id"))
	if studentID == "" {
		studentID = pipeline.StudentIDFromFile(fileHeader.Filename)
	}

	input := pipeline.ProcessInput{
		ImagePath:    imagePath,
		AssignmentID: assignmentID,
		StudentID:    studentID,
	}

	result, err := h.processor.ProcessSubmission(c.UserContext(), input, func(stage pipeline.Stage, message string) {
		logger.Info().Str("stage", string(stage)).Str("file", fileHeader.Filename).Msg(message)
	})
	if err != nil {
		return h.sendPipelineError(c, logger, err)
	}

	observability.SubmissionsGraded().WithLabelValues(result.Status).Inc()

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "submission graded", result)
}

// CreateBatch stages every uploaded file, schedules a bounded-pool batch run,
// and returns the batch id the progress stream is keyed by.
func (h *SubmissionHandler) CreateBatch(c *fiber.Ctx) error {
	logger := requestLogger(h.logger, c)

	assignmentID := strings.TrimSpace(c.FormValue("assignment_id"))
	if assignmentID == "" {
		return utils.SendError(c, fiber.StatusBadRequest, "assignment_id is required")
	}

	form, err := c.MultipartForm()
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid multipart form")
	}

	files := form.File["files"]
	if len(files) == 0 {
		return utils.SendError(c, fiber.StatusBadRequest, "at least one file is required")
	}

	tempDir, err := os.MkdirTemp("", "papergrade-batch-*")
	if err != nil {
		logger.Error().Err(err).Msg("failed to create temp dir")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to stage uploads")
	}

	// Each file gets its own staging directory so same-named uploads in one
	// batch cannot clobber each other. The basename is preserved because the
	// student id is derived from it.
	items := make([]pipeline.BatchItem, 0, len(files))
	names := make([]string, 0, len(files))
	for i, fileHeader := range files {
		imagePath := filepath.Join(tempDir, fmt.Sprintf("item-%03d", i), filepath.Base(fileHeader.Filename))
		if err := os.MkdirAll(filepath.Dir(imagePath), 0o755); err != nil {
			os.RemoveAll(tempDir)
			logger.Error().Err(err).Str("file", fileHeader.Filename).Msg("failed to stage upload")
			return utils.SendError(c, fiber.StatusInternalServerError, "failed to stage uploads")
		}
		if err := c.SaveFile(fileHeader, imagePath); err != nil {
			os.RemoveAll(tempDir)
			logger.Error().Err(err).Str("file", fileHeader.Filename).Msg("failed to save upload")
			return utils.SendError(c, fiber.StatusInternalServerError, "failed to stage uploads")
		}
		if err := requireImage(imagePath); err != nil {
			os.RemoveAll(tempDir)
			return utils.SendError(c, fiber.StatusBadRequest, fmt.Sprintf("%s: %v", fileHeader.Filename, err))
		}
		items = append(items, pipeline.BatchItem{ImagePath: imagePath})
		names = append(names, filepath.Base(fileHeader.Filename))
	}

	batchID := uuid.NewString()
	correlation := middleware.GetCorrelationID(c)

	go h.runBatch(middleware.ContextWithCorrelation(context.Background(), correlation), batchID, assignmentID, tempDir, items)

	return utils.SendSuccessWithStatus(c, fiber.StatusAccepted, "batch scheduled", batchAccepted{
		BatchID: batchID,
		Files:   names,
	})
}

func (h *SubmissionHandler) runBatch(ctx context.Context, batchID, assignmentID, tempDir string, items []pipeline.BatchItem) {
	defer os.RemoveAll(tempDir)

	logger := h.logger.With().Str("batch_id", batchID).Str("assignment_id", assignmentID).Logger()

	observability.BatchItemsInFlight().Add(float64(len(items)))
	defer observability.BatchItemsInFlight().Sub(float64(len(items)))

	outcomes := h.processor.ProcessBatch(ctx, assignmentID, items, h.concurrency, func(imagePath string, stage pipeline.Stage, message string) {
		h.broker.Publish(ctx, progress.StageEvent{
			BatchID:   batchID,
			ImagePath: filepath.Base(imagePath),
			Stage:     string(stage),
			Message:   message,
			SentAt:    time.Now().UTC(),
		})
	})

	succeeded := 0
	for _, outcome := range outcomes {
		if outcome.Err != nil {
			observability.SubmissionsGraded().WithLabelValues("error").Inc()
			logger.Warn().Err(outcome.Err).Str("file", filepath.Base(outcome.ImagePath)).Msg("batch item failed")
			continue
		}
		observability.SubmissionsGraded().WithLabelValues(outcome.Result.Status).Inc()
		succeeded++
	}

	logger.Info().Int("total", len(outcomes)).Int("succeeded", succeeded).Msg("batch completed")
}

// List returns submissions matching the query filters.
func (h *SubmissionHandler) List(c *fiber.Ctx) error {
	logger := requestLogger(h.logger, c)

	var filter dto.SubmissionFilter
	if err := c.QueryParser(&filter); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid query parameters")
	}
	if err := h.validate.Struct(filter); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	submissions, err := h.review.List(c.UserContext(), filter)
	if err != nil {
		logger.Error().Err(err).Msg("failed to list submissions")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to list submissions")
	}

	return utils.SendSuccess(c, "submissions retrieved", submissions)
}

// Get returns one submission by id.
func (h *SubmissionHandler) Get(c *fiber.Ctx) error {
	logger := requestLogger(h.logger, c)

	id := c.Params("id")
	submission, err := h.review.Get(c.UserContext(), id)
	if err != nil {
		if errors.Is(err, service.ErrSubmissionNotFound) {
			return utils.SendError(c, fiber.StatusNotFound, "submission not found")
		}
		logger.Error().Err(err).Str("submission_id", id).Msg("failed to fetch submission")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to fetch submission")
	}

	return utils.SendSuccess(c, "submission retrieved", submission)
}

func (h *SubmissionHandler) sendPipelineError(c *fiber.Ctx, logger *zerolog.Logger, err error) error {
	if errors.Is(err, pipeline.ErrAssignmentNotFound) {
		return utils.SendError(c, fiber.StatusNotFound, "assignment not found")
	}

	var pipelineErr *pipeline.PipelineError
	if errors.As(err, &pipelineErr) {
		observability.SubmissionsGraded().WithLabelValues("error").Inc()
		logger.Warn().Err(err).Str("submission_id", pipelineErr.SubmissionID).Msg("pipeline run failed")
		return utils.SendErrorWithData(c, fiber.StatusUnprocessableEntity, pipelineErr.Error(), fiber.Map{
			"submission_id": pipelineErr.SubmissionID,
			"stage":         string(pipelineErr.Stage),
		})
	}

	var uploadErr *pipeline.UploadError
	if errors.As(err, &uploadErr) {
		logger.Warn().Err(err).Msg("upload failed")
		return utils.SendError(c, fiber.StatusBadGateway, uploadErr.Error())
	}

	logger.Error().Err(err).Msg("submission processing failed")
	return utils.SendError(c, fiber.StatusInternalServerError, "submission processing failed")
}

// requireImage rejects uploads whose bytes are not an image, whatever the
// client claimed.
func requireImage(path string) error {
	detected, err := mimetype.DetectFile(path)
	if err != nil {
		return fmt.Errorf("could not inspect file: %w", err)
	}
	if !strings.HasPrefix(detected.String(), "image/") {
		return fmt.Errorf("unsupported content type %s", detected.String())
	}
	return nil
}
