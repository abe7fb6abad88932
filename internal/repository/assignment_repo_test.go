package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/papergrade/papergrade-api/internal/models"
)

func TestAssignmentRepositoryRoundTrip(t *testing.T) {
	db := setupTestDB(t, &models.Assignment{})
	repo := NewAssignmentRepository(db)
	ctx := context.Background()

	assignment := models.Assignment{
		ID:             "asg-1",
		TeacherID:      "teacher-1",
		Name:           "Photosynthesis",
		QuestionText:   "Explain photosynthesis.",
		PointsPossible: 5,
	}
	require.NoError(t, assignment.SetRubricStructure(models.RubricStructure{
		Requirements: []models.RubricRequirement{
			{Text: "Mentions chlorophyll", Points: 2},
			{Text: "Explains light reaction", Points: 3},
		},
	}))
	require.NoError(t, repo.Create(ctx, &assignment))

	found, err := repo.GetByID(ctx, "asg-1")
	require.NoError(t, err)
	require.Equal(t, "Photosynthesis", found.Name)

	rubric, err := found.RubricStructure()
	require.NoError(t, err)
	require.Len(t, rubric.Requirements, 2)
	require.Equal(t, 5, rubric.TotalPoints())
}

func TestAssignmentRepositoryGetByIDMissing(t *testing.T) {
	db := setupTestDB(t, &models.Assignment{})
	repo := NewAssignmentRepository(db)

	_, err := repo.GetByID(context.Background(), "missing")
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestAssignmentRepositoryListByTeacher(t *testing.T) {
	db := setupTestDB(t, &models.Assignment{})
	repo := NewAssignmentRepository(db)
	ctx := context.Background()

	for i, teacher := range []string{"teacher-1", "teacher-1", "teacher-2"} {
		assignment := models.Assignment{
			ID:           string(rune('a' + i)),
			TeacherID:    teacher,
			Name:         "Assignment",
			QuestionText: "Question",
		}
		require.NoError(t, repo.Create(ctx, &assignment))
	}

	mine, err := repo.ListByTeacher(ctx, "teacher-1")
	require.NoError(t, err)
	require.Len(t, mine, 2)

	theirs, err := repo.ListByTeacher(ctx, "teacher-2")
	require.NoError(t, err)
	require.Len(t, theirs, 1)
}
