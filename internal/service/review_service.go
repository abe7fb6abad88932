package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/papergrade/papergrade-api/internal/dto"
	"github.com/papergrade/papergrade-api/internal/models"
	"github.com/papergrade/papergrade-api/internal/repository"
)

// ErrSubmissionNotFound indicates a submission could not be found.
var ErrSubmissionNotFound = errors.New("submission not found")

// URLResigner issues a fresh signed URL for a stored image reference whose
// original link may have expired.
type URLResigner interface {
	Resign(ctx context.Context, imageRef string, expiry time.Duration) (string, error)
}

// ReviewService is the results-review surface: it reads what the pipeline
// wrote, refreshing image links and aggregating per-assignment outcomes.
type ReviewService interface {
	List(ctx context.Context, filter dto.SubmissionFilter) ([]dto.SubmissionResponse, error)
	ListByAssignment(ctx context.Context, assignmentID string) ([]dto.SubmissionResponse, error)
	Get(ctx context.Context, id string) (dto.SubmissionResponse, error)
	Stats(ctx context.Context, assignmentID string) (dto.AssignmentStats, error)
}

type reviewService struct {
	submissions repository.SubmissionRepository
	resigner    URLResigner
	signedTTL   time.Duration
	cache       *redis.Client
	cacheTTL    time.Duration
	logger      zerolog.Logger
}

// NewReviewService constructs the results-review service.
func NewReviewService(submissions repository.SubmissionRepository, resigner URLResigner, signedTTL time.Duration, cache *redis.Client, cacheTTL time.Duration, logger zerolog.Logger) ReviewService {
	if signedTTL <= 0 {
		signedTTL = 365 * 24 * time.Hour
	}

	return &reviewService{
		submissions: submissions,
		resigner:    resigner,
		signedTTL:   signedTTL,
		cache:       cache,
		cacheTTL:    cacheTTL,
		logger:      logger.With().Str("component", "review_service").Logger(),
	}
}

func (s *reviewService) List(ctx context.Context, filter dto.SubmissionFilter) ([]dto.SubmissionResponse, error) {
	repoFilter := repository.SubmissionFilter{
		AssignmentID: filter.AssignmentID,
		StudentID:    filter.StudentID,
		Status:       filter.Status,
	}

	submissions, err := s.submissions.List(ctx, repoFilter)
	if err != nil {
		return nil, err
	}

	responses := dto.NewSubmissionResponseSlice(submissions)
	for i := range responses {
		responses[i].ImageURL = s.refreshURL(ctx, submissions[i])
	}

	return responses, nil
}

func (s *reviewService) ListByAssignment(ctx context.Context, assignmentID string) ([]dto.SubmissionResponse, error) {
	return s.List(ctx, dto.SubmissionFilter{AssignmentID: &assignmentID})
}

func (s *reviewService) Get(ctx context.Context, id string) (dto.SubmissionResponse, error) {
	submission, err := s.submissions.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.SubmissionResponse{}, ErrSubmissionNotFound
		}
		return dto.SubmissionResponse{}, err
	}

	response := dto.NewSubmissionResponse(submission)
	response.ImageURL = s.refreshURL(ctx, submission)

	return response, nil
}

func (s *reviewService) Stats(ctx context.Context, assignmentID string) (dto.AssignmentStats, error) {
	cacheKey := fmt.Sprintf("stats:assignment:%s", assignmentID)

	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, cacheKey).Result(); err == nil {
			var stats dto.AssignmentStats
			if unmarshalErr := json.Unmarshal([]byte(cached), &stats); unmarshalErr == nil {
				s.logger.Debug().Str("assignment_id", assignmentID).Msg("stats cache hit")
				return stats, nil
			}
		} else if err != redis.Nil {
			s.logger.Warn().Err(err).Msg("failed to read stats cache")
		}
	}

	filter := repository.SubmissionFilter{AssignmentID: &assignmentID}
	submissions, err := s.submissions.List(ctx, filter)
	if err != nil {
		return dto.AssignmentStats{}, err
	}

	stats := buildStats(assignmentID, submissions)

	if s.cache != nil {
		if payload, err := json.Marshal(stats); err == nil {
			if err := s.cache.Set(ctx, cacheKey, payload, s.cacheTTL).Err(); err != nil {
				s.logger.Warn().Err(err).Msg("failed to store stats cache")
			}
		}
	}

	return stats, nil
}

// refreshURL swaps in a newly signed link when a resigner is configured.
// The stored URL is the fallback; a signing failure never hides the row.
func (s *reviewService) refreshURL(ctx context.Context, submission models.Submission) string {
	if s.resigner == nil || submission.ImagePath == "" {
		return submission.ImageURL
	}

	refreshed, err := s.resigner.Resign(ctx, submission.ImagePath, s.signedTTL)
	if err != nil {
		s.logger.Warn().Err(err).Str("submission_id", submission.ID).Msg("failed to refresh image url")
		return submission.ImageURL
	}

	return refreshed
}

func buildStats(assignmentID string, submissions []models.Submission) dto.AssignmentStats {
	stats := dto.AssignmentStats{AssignmentID: assignmentID, Total: len(submissions)}

	var weightedTotal, rawTotal float64
	scored := 0
	for _, submission := range submissions {
		switch submission.Status {
		case models.SubmissionStatusPending:
			stats.Pending++
		case models.SubmissionStatusProcessing:
			stats.Processing++
		case models.SubmissionStatusComplete:
			stats.Complete++
		case models.SubmissionStatusError:
			stats.Errored++
		}

		response := dto.NewSubmissionResponse(submission)
		if response.Score != nil {
			weightedTotal += response.Score.WeightedScore
			rawTotal += response.Score.RawScore
			scored++
		}
	}

	if scored > 0 {
		stats.AverageScore = weightedTotal / float64(scored)
		stats.AverageEarned = rawTotal / float64(scored)
	}

	return stats
}
