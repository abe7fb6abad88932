package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/papergrade/papergrade-api/internal/models"
	"github.com/papergrade/papergrade-api/internal/repository"
	"github.com/papergrade/papergrade-api/pkg/ai"
)

type submissionRepoStub struct {
	items     []models.Submission
	listCalls int
	err       error
}

func (s *submissionRepoStub) List(ctx context.Context, filter repository.SubmissionFilter) ([]models.Submission, error) {
	s.listCalls++
	if s.err != nil {
		return nil, s.err
	}

	var matched []models.Submission
	for _, item := range s.items {
		if filter.AssignmentID != nil && item.AssignmentID != *filter.AssignmentID {
			continue
		}
		if filter.Status != nil && item.Status != *filter.Status {
			continue
		}
		matched = append(matched, item)
	}
	return matched, nil
}

func (s *submissionRepoStub) GetByID(ctx context.Context, id string) (models.Submission, error) {
	for _, item := range s.items {
		if item.ID == id {
			return item, nil
		}
	}
	return models.Submission{}, gorm.ErrRecordNotFound
}

func (s *submissionRepoStub) Create(ctx context.Context, submission *models.Submission) error {
	s.items = append(s.items, *submission)
	return nil
}

func (s *submissionRepoStub) UpdateFields(ctx context.Context, id string, fields map[string]interface{}) error {
	return nil
}

type resignerStub struct {
	url string
	err error
}

func (s resignerStub) Resign(ctx context.Context, imageRef string, expiry time.Duration) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return s.url, nil
}

func scoredSubmission(t *testing.T, id, assignmentID string, weighted, raw float64) models.Submission {
	t.Helper()
	score, err := json.Marshal(ai.AssessmentResult{WeightedScore: weighted, RawScore: raw, TeacherScore: "1/2"})
	require.NoError(t, err)
	return models.Submission{
		ID:           id,
		AssignmentID: assignmentID,
		StudentID:    id,
		Status:       models.SubmissionStatusComplete,
		ImageURL:     "https://store.example.com/bucket/" + assignmentID + "/" + id + "?sig=old",
		ImagePath:    assignmentID + "/" + id,
		Score:        datatypes.JSON(score),
	}
}

func TestReviewServiceListRefreshesImageURLs(t *testing.T) {
	repo := &submissionRepoStub{items: []models.Submission{
		scoredSubmission(t, "sub-1", "asg-1", 0.4, 0.5),
	}}
	svc := NewReviewService(repo, resignerStub{url: "https://store.example.com/bucket/asg-1/sub-1?sig=fresh"}, time.Hour, nil, time.Minute, zerolog.Nop())

	items, err := svc.ListByAssignment(context.Background(), "asg-1")
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Contains(t, items[0].ImageURL, "sig=fresh")
	require.NotNil(t, items[0].Score)
	require.Equal(t, "1/2", items[0].Score.TeacherScore)
}

func TestReviewServiceResignFailureKeepsStoredURL(t *testing.T) {
	repo := &submissionRepoStub{items: []models.Submission{
		scoredSubmission(t, "sub-1", "asg-1", 0.4, 0.5),
	}}
	svc := NewReviewService(repo, resignerStub{err: context.DeadlineExceeded}, time.Hour, nil, time.Minute, zerolog.Nop())

	item, err := svc.Get(context.Background(), "sub-1")
	require.NoError(t, err)
	require.Contains(t, item.ImageURL, "sig=old")
}

func TestReviewServiceGetNotFound(t *testing.T) {
	svc := NewReviewService(&submissionRepoStub{}, nil, time.Hour, nil, time.Minute, zerolog.Nop())

	_, err := svc.Get(context.Background(), "missing")
	require.ErrorIs(t, err, ErrSubmissionNotFound)
}

func TestReviewServiceStatsAggregatesAndCaches(t *testing.T) {
	server, err := miniredis.Run()
	require.NoError(t, err)
	defer server.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: server.Addr()})
	defer redisClient.Close()

	repo := &submissionRepoStub{items: []models.Submission{
		scoredSubmission(t, "sub-1", "asg-1", 0.4, 0.5),
		scoredSubmission(t, "sub-2", "asg-1", 0.8, 1.0),
		{ID: "sub-3", AssignmentID: "asg-1", Status: models.SubmissionStatusError},
		{ID: "sub-4", AssignmentID: "asg-2", Status: models.SubmissionStatusPending},
	}}
	svc := NewReviewService(repo, nil, time.Hour, redisClient, time.Minute, zerolog.Nop())

	ctx := context.Background()
	stats, err := svc.Stats(ctx, "asg-1")
	require.NoError(t, err)
	require.Equal(t, 3, stats.Total)
	require.Equal(t, 2, stats.Complete)
	require.Equal(t, 1, stats.Errored)
	require.InDelta(t, 0.6, stats.AverageScore, 1e-9)
	require.InDelta(t, 0.75, stats.AverageEarned, 1e-9)

	listCallsAfterFirst := repo.listCalls

	cached, err := svc.Stats(ctx, "asg-1")
	require.NoError(t, err)
	require.Equal(t, stats, cached)
	require.Equal(t, listCallsAfterFirst, repo.listCalls, "second read should come from the cache")

	server.FastForward(2 * time.Minute)

	_, err = svc.Stats(ctx, "asg-1")
	require.NoError(t, err)
	require.Greater(t, repo.listCalls, listCallsAfterFirst, "expired cache should trigger a reload")
}
