package dto

import (
	"time"

	"github.com/papergrade/papergrade-api/internal/models"
)

// RubricRequirementPayload is one rubric criterion in a create request.
type RubricRequirementPayload struct {
	Text   string `json:"text" validate:"required,min=3"`
	Points int    `json:"points" validate:"gte=1"`
}

// AssignmentCreateRequest describes a new assignment. points_possible is not
// accepted from the client; it is computed from the requirement points.
type AssignmentCreateRequest struct {
	Name         string                     `json:"name" validate:"required,min=3,max=255"`
	QuestionText string                     `json:"question_text" validate:"required,min=3"`
	Requirements []RubricRequirementPayload `json:"requirements" validate:"required,min=1,dive"`
	Notes        string                     `json:"notes"`
	Examples     []string                   `json:"examples"`
}

// AssignmentResponse is returned to API clients when viewing assignments.
type AssignmentResponse struct {
	ID             string                 `json:"id"`
	TeacherID      string                 `json:"teacher_id"`
	Name           string                 `json:"name"`
	QuestionText   string                 `json:"question_text"`
	PointsPossible int                    `json:"points_possible"`
	Rubric         models.RubricStructure `json:"rubric_structure"`
	CreatedAt      time.Time              `json:"created_at"`
}

// NewAssignmentResponse converts an Assignment model into a DTO.
func NewAssignmentResponse(model models.Assignment) AssignmentResponse {
	rubric, err := model.RubricStructure()
	if err != nil {
		rubric = models.RubricStructure{}
	}

	return AssignmentResponse{
		ID:             model.ID,
		TeacherID:      model.TeacherID,
		Name:           model.Name,
		QuestionText:   model.QuestionText,
		PointsPossible: model.PointsPossible,
		Rubric:         rubric,
		CreatedAt:      model.CreatedAt,
	}
}

// NewAssignmentResponseSlice converts assignment models into DTOs.
func NewAssignmentResponseSlice(assignments []models.Assignment) []AssignmentResponse {
	responses := make([]AssignmentResponse, 0, len(assignments))
	for _, assignment := range assignments {
		responses = append(responses, NewAssignmentResponse(assignment))
	}

	return responses
}
