package dto

import (
	"encoding/json"
	"time"

	"github.com/papergrade/papergrade-api/internal/models"
	"github.com/papergrade/papergrade-api/pkg/ai"
)

// SubmissionFilter describes query string filters for listing submissions.
type SubmissionFilter struct {
	AssignmentID *string `query:"assignment_id"`
	StudentID    *string `query:"student_id"`
	Status       *string `query:"status" validate:"omitempty,oneof=pending processing complete error"`
}

// SubmissionResponse is returned to API clients when viewing submissions.
type SubmissionResponse struct {
	ID           string               `json:"id"`
	AssignmentID string               `json:"assignment_id"`
	StudentID    string               `json:"student_id"`
	Status       string               `json:"status"`
	ImageURL     string               `json:"image_url"`
	Transcript   *string              `json:"transcript"`
	Feedback     *string              `json:"feedback"`
	Score        *ai.AssessmentResult `json:"score"`
	RetryCount   int                  `json:"retry_count"`
	ErrorMessage *string              `json:"error_message"`
	CreatedAt    time.Time            `json:"created_at"`
	ProcessedAt  *time.Time           `json:"processed_at"`
}

// NewSubmissionResponse converts a Submission model into a DTO.
func NewSubmissionResponse(model models.Submission) SubmissionResponse {
	response := SubmissionResponse{
		ID:           model.ID,
		AssignmentID: model.AssignmentID,
		StudentID:    model.StudentID,
		Status:       model.Status,
		ImageURL:     model.ImageURL,
		Transcript:   model.Transcript,
		Feedback:     model.Feedback,
		RetryCount:   model.RetryCount,
		ErrorMessage: model.ErrorMessage,
		CreatedAt:    model.CreatedAt,
		ProcessedAt:  model.ProcessedAt,
	}

	if len(model.Score) > 0 {
		var score ai.AssessmentResult
		if err := json.Unmarshal(model.Score, &score); err == nil {
			response.Score = &score
		}
	}

	return response
}

// NewSubmissionResponseSlice converts submission models into DTOs.
func NewSubmissionResponseSlice(submissions []models.Submission) []SubmissionResponse {
	responses := make([]SubmissionResponse, 0, len(submissions))
	for _, submission := range submissions {
		responses = append(responses, NewSubmissionResponse(submission))
	}

	return responses
}

// AssignmentStats aggregates submission outcomes for one assignment.
type AssignmentStats struct {
	AssignmentID  string  `json:"assignment_id"`
	Total         int     `json:"total"`
	Pending       int     `json:"pending"`
	Processing    int     `json:"processing"`
	Complete      int     `json:"complete"`
	Errored       int     `json:"errored"`
	AverageScore  float64 `json:"average_weighted_score"`
	AverageEarned float64 `json:"average_raw_score"`
}
