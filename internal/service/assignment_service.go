package service

import (
	"context"
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/papergrade/papergrade-api/internal/dto"
	"github.com/papergrade/papergrade-api/internal/models"
	"github.com/papergrade/papergrade-api/internal/repository"
)

// ErrAssignmentNotFound indicates an assignment could not be found.
var ErrAssignmentNotFound = errors.New("assignment not found")

// AssignmentService manages teacher-authored assignments. The grading core
// only ever reads them; mutation stops at creation.
type AssignmentService interface {
	Create(ctx context.Context, teacherID string, payload dto.AssignmentCreateRequest) (dto.AssignmentResponse, error)
	List(ctx context.Context, teacherID string) ([]dto.AssignmentResponse, error)
	Get(ctx context.Context, id string) (dto.AssignmentResponse, error)
}

type assignmentService struct {
	assignments repository.AssignmentRepository
	validator   *validator.Validate
	logger      zerolog.Logger
}

// NewAssignmentService constructs an AssignmentService instance.
func NewAssignmentService(repo repository.AssignmentRepository, validate *validator.Validate, logger zerolog.Logger) AssignmentService {
	return &assignmentService{
		assignments: repo,
		validator:   validate,
		logger:      logger.With().Str("component", "assignment_service").Logger(),
	}
}

func (s *assignmentService) Create(ctx context.Context, teacherID string, payload dto.AssignmentCreateRequest) (dto.AssignmentResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.AssignmentResponse{}, err
	}

	requirements := make([]models.RubricRequirement, 0, len(payload.Requirements))
	for _, req := range payload.Requirements {
		requirements = append(requirements, models.RubricRequirement{Text: req.Text, Points: req.Points})
	}

	rubric := models.RubricStructure{
		Requirements: requirements,
		Metadata: models.RubricMetadata{
			Notes:    payload.Notes,
			Examples: payload.Examples,
			Version:  1,
		},
	}

	assignment := models.Assignment{
		ID:           uuid.NewString(),
		TeacherID:    teacherID,
		Name:         payload.Name,
		QuestionText: payload.QuestionText,
		// Computed once from the rubric, then frozen.
		PointsPossible: rubric.TotalPoints(),
	}

	if err := assignment.SetRubricStructure(rubric); err != nil {
		return dto.AssignmentResponse{}, err
	}

	if err := s.assignments.Create(ctx, &assignment); err != nil {
		return dto.AssignmentResponse{}, err
	}

	s.logger.Info().Str("assignment_id", assignment.ID).Msg("assignment created")

	return dto.NewAssignmentResponse(assignment), nil
}

func (s *assignmentService) List(ctx context.Context, teacherID string) ([]dto.AssignmentResponse, error) {
	assignments, err := s.assignments.ListByTeacher(ctx, teacherID)
	if err != nil {
		return nil, err
	}

	return dto.NewAssignmentResponseSlice(assignments), nil
}

func (s *assignmentService) Get(ctx context.Context, id string) (dto.AssignmentResponse, error) {
	assignment, err := s.assignments.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.AssignmentResponse{}, ErrAssignmentNotFound
		}
		return dto.AssignmentResponse{}, err
	}

	return dto.NewAssignmentResponse(assignment), nil
}
