package repository

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/papergrade/papergrade-api/internal/models"
)

func setupTestDB(t *testing.T, entities ...interface{}) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(entities...))
	return db
}

func seedSubmission(t *testing.T, db *gorm.DB, id, assignmentID, studentID, status string) models.Submission {
	t.Helper()
	submission := models.Submission{
		ID:           id,
		AssignmentID: assignmentID,
		StudentID:    studentID,
		Status:       status,
		ImageURL:     "https://store.example.com/bucket/" + assignmentID + "/" + id,
		ImagePath:    assignmentID + "/" + id,
	}
	require.NoError(t, db.Create(&submission).Error)
	return submission
}

func TestSubmissionRepositoryListFilters(t *testing.T) {
	db := setupTestDB(t, &models.Submission{})
	repo := NewSubmissionRepository(db)
	ctx := context.Background()

	seedSubmission(t, db, "sub-1", "asg-1", "alice", models.SubmissionStatusComplete)
	seedSubmission(t, db, "sub-2", "asg-1", "bob", models.SubmissionStatusError)
	seedSubmission(t, db, "sub-3", "asg-2", "alice", models.SubmissionStatusPending)

	byAssignment := "asg-1"
	items, err := repo.List(ctx, SubmissionFilter{AssignmentID: &byAssignment})
	require.NoError(t, err)
	require.Len(t, items, 2)

	byStudent := "alice"
	items, err = repo.List(ctx, SubmissionFilter{StudentID: &byStudent})
	require.NoError(t, err)
	require.Len(t, items, 2)

	status := models.SubmissionStatusError
	items, err = repo.List(ctx, SubmissionFilter{AssignmentID: &byAssignment, Status: &status})
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, "sub-2", items[0].ID)

	items, err = repo.List(ctx, SubmissionFilter{})
	require.NoError(t, err)
	require.Len(t, items, 3)
}

func TestSubmissionRepositoryGetByID(t *testing.T) {
	db := setupTestDB(t, &models.Submission{})
	repo := NewSubmissionRepository(db)
	ctx := context.Background()

	seeded := seedSubmission(t, db, "sub-1", "asg-1", "alice", models.SubmissionStatusPending)

	found, err := repo.GetByID(ctx, seeded.ID)
	require.NoError(t, err)
	require.Equal(t, seeded.ID, found.ID)
	require.Equal(t, "alice", found.StudentID)

	_, err = repo.GetByID(ctx, "missing")
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestSubmissionRepositoryUpdateFields(t *testing.T) {
	db := setupTestDB(t, &models.Submission{})
	repo := NewSubmissionRepository(db)
	ctx := context.Background()

	seeded := seedSubmission(t, db, "sub-1", "asg-1", "alice", models.SubmissionStatusPending)

	transcript := "Plants use sunlight."
	err := repo.UpdateFields(ctx, seeded.ID, map[string]interface{}{
		"status":      models.SubmissionStatusProcessing,
		"transcript":  transcript,
		"retry_count": 2,
	})
	require.NoError(t, err)

	updated, err := repo.GetByID(ctx, seeded.ID)
	require.NoError(t, err)
	require.Equal(t, models.SubmissionStatusProcessing, updated.Status)
	require.NotNil(t, updated.Transcript)
	require.Equal(t, transcript, *updated.Transcript)
	require.Equal(t, 2, updated.RetryCount)
}

func TestSubmissionRepositoryUpdateFieldsMissingRow(t *testing.T) {
	db := setupTestDB(t, &models.Submission{})
	repo := NewSubmissionRepository(db)

	err := repo.UpdateFields(context.Background(), "missing", map[string]interface{}{
		"status": models.SubmissionStatusError,
	})
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
}
