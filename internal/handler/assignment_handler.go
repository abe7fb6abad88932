package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/papergrade/papergrade-api/internal/dto"
	"github.com/papergrade/papergrade-api/internal/service"
	"github.com/papergrade/papergrade-api/internal/utils"
)

// AssignmentHandler serves the assignment CRUD surface plus the per-assignment
// review endpoints (submission list and aggregate stats).
type AssignmentHandler struct {
	assignments service.AssignmentService
	review      service.ReviewService
	validate    *validator.Validate
	logger      zerolog.Logger
}

// NewAssignmentHandler constructs the handler.
func NewAssignmentHandler(assignments service.AssignmentService, review service.ReviewService, validate *validator.Validate, logger zerolog.Logger) *AssignmentHandler {
	return &AssignmentHandler{
		assignments: assignments,
		review:      review,
		validate:    validate,
		logger:      logger.With().Str("component", "assignment_handler").Logger(),
	}
}

// Register wires the assignment routes into the provided router group.
func (h *AssignmentHandler) Register(router fiber.Router) {
	router.Post("/", h.Create)
	router.Get("/", h.List)
	router.Get("/:id", h.Get)
	router.Get("/:id/submissions", h.ListSubmissions)
	router.Get("/:id/stats", h.Stats)
}

// Create stores a new assignment owned by the authenticated teacher.
func (h *AssignmentHandler) Create(c *fiber.Ctx) error {
	logger := requestLogger(h.logger, c)

	teacherID := teacherIDFromContext(c)
	if teacherID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "teacher identity missing")
	}

	var payload dto.AssignmentCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		logger.Warn().Err(err).Msg("invalid assignment payload")
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	created, err := h.assignments.Create(c.UserContext(), teacherID, payload)
	if err != nil {
		if isValidationError(err) {
			return utils.SendError(c, fiber.StatusBadRequest, err.Error())
		}
		logger.Error().Err(err).Msg("failed to create assignment")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to create assignment")
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "assignment created", created)
}

// List returns the authenticated teacher's assignments.
func (h *AssignmentHandler) List(c *fiber.Ctx) error {
	logger := requestLogger(h.logger, c)

	teacherID := teacherIDFromContext(c)
	if teacherID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "teacher identity missing")
	}

	assignments, err := h.assignments.List(c.UserContext(), teacherID)
	if err != nil {
		logger.Error().Err(err).Msg("failed to list assignments")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to list assignments")
	}

	return utils.SendSuccess(c, "assignments retrieved", assignments)
}

// Get returns one assignment by id.
func (h *AssignmentHandler) Get(c *fiber.Ctx) error {
	logger := requestLogger(h.logger, c)

	id := c.Params("id")
	assignment, err := h.assignments.Get(c.UserContext(), id)
	if err != nil {
		if errors.Is(err, service.ErrAssignmentNotFound) {
			return utils.SendError(c, fiber.StatusNotFound, "assignment not found")
		}
		logger.Error().Err(err).Str("assignment_id", id).Msg("failed to fetch assignment")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to fetch assignment")
	}

	return utils.SendSuccess(c, "assignment retrieved", assignment)
}

// ListSubmissions returns every submission recorded for the assignment, with
// freshly signed image links.
func (h *AssignmentHandler) ListSubmissions(c *fiber.Ctx) error {
	logger := requestLogger(h.logger, c)

	id := c.Params("id")
	submissions, err := h.review.ListByAssignment(c.UserContext(), id)
	if err != nil {
		logger.Error().Err(err).Str("assignment_id", id).Msg("failed to list submissions")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to list submissions")
	}

	return utils.SendSuccess(c, "submissions retrieved", submissions)
}

// Stats returns the aggregate grading outcomes for the assignment.
func (h *AssignmentHandler) Stats(c *fiber.Ctx) error {
	logger := requestLogger(h.logger, c)

	id := c.Params("id")
	stats, err := h.review.Stats(c.UserContext(), id)
	if err != nil {
		logger.Error().Err(err).Str("assignment_id", id).Msg("failed to build assignment stats")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to build assignment stats")
	}

	return utils.SendSuccess(c, "assignment stats retrieved", stats)
}
