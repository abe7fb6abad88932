package service

import (
	"context"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/papergrade/papergrade-api/internal/dto"
	"github.com/papergrade/papergrade-api/internal/models"
)

type assignmentRepoStub struct {
	created *models.Assignment
	byID    models.Assignment
	byIDErr error
	listed  []models.Assignment
}

func (s *assignmentRepoStub) GetByID(ctx context.Context, id string) (models.Assignment, error) {
	if s.byIDErr != nil {
		return models.Assignment{}, s.byIDErr
	}
	return s.byID, nil
}

func (s *assignmentRepoStub) ListByTeacher(ctx context.Context, teacherID string) ([]models.Assignment, error) {
	return s.listed, nil
}

func (s *assignmentRepoStub) Create(ctx context.Context, assignment *models.Assignment) error {
	s.created = assignment
	return nil
}

func TestAssignmentServiceCreateComputesPoints(t *testing.T) {
	repo := &assignmentRepoStub{}
	svc := NewAssignmentService(repo, validator.New(validator.WithRequiredStructEnabled()), zerolog.Nop())

	payload := dto.AssignmentCreateRequest{
		Name:         "Photosynthesis",
		QuestionText: "Explain photosynthesis.",
		Requirements: []dto.RubricRequirementPayload{
			{Text: "Mentions chlorophyll", Points: 2},
			{Text: "Explains light reaction", Points: 3},
		},
		Notes: "Accept partial credit for chemical equation.",
	}

	created, err := svc.Create(context.Background(), "teacher-1", payload)
	require.NoError(t, err)
	require.Equal(t, 5, created.PointsPossible)
	require.Equal(t, "teacher-1", created.TeacherID)
	require.NotEmpty(t, created.ID)
	require.Len(t, created.Rubric.Requirements, 2)
	require.Equal(t, 1, created.Rubric.Metadata.Version)
	require.Equal(t, payload.Notes, created.Rubric.Metadata.Notes)

	require.NotNil(t, repo.created)
	require.Equal(t, 5, repo.created.PointsPossible)
}

func TestAssignmentServiceCreateValidatesPayload(t *testing.T) {
	svc := NewAssignmentService(&assignmentRepoStub{}, validator.New(validator.WithRequiredStructEnabled()), zerolog.Nop())

	_, err := svc.Create(context.Background(), "teacher-1", dto.AssignmentCreateRequest{
		Name:         "x",
		QuestionText: "Explain photosynthesis.",
	})
	require.Error(t, err)

	var validationErrors validator.ValidationErrors
	require.ErrorAs(t, err, &validationErrors)
}

func TestAssignmentServiceGetNotFound(t *testing.T) {
	repo := &assignmentRepoStub{byIDErr: gorm.ErrRecordNotFound}
	svc := NewAssignmentService(repo, validator.New(), zerolog.Nop())

	_, err := svc.Get(context.Background(), "missing")
	require.ErrorIs(t, err, ErrAssignmentNotFound)
}
