package models

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
)

// RubricRequirement is one scored criterion a student response may or may not satisfy.
type RubricRequirement struct {
	Text   string `json:"text"`
	Points int    `json:"points"`
}

// RubricMetadata carries grading notes, example answers, and a structure version.
type RubricMetadata struct {
	Notes    string   `json:"notes"`
	Examples []string `json:"examples"`
	Version  int      `json:"version"`
}

// RubricStructure is the ordered set of requirements plus metadata.
// Requirement order is display-significant, not scoring-significant.
type RubricStructure struct {
	Requirements []RubricRequirement `json:"requirements"`
	Metadata     RubricMetadata      `json:"metadata"`
}

// RequirementTexts flattens the rubric into the requirement texts, in order.
func (r RubricStructure) RequirementTexts() []string {
	texts := make([]string, 0, len(r.Requirements))
	for _, req := range r.Requirements {
		texts = append(texts, req.Text)
	}

	return texts
}

// TotalPoints sums the point values of every requirement.
func (r RubricStructure) TotalPoints() int {
	total := 0
	for _, req := range r.Requirements {
		total += req.Points
	}

	return total
}

// Assignment represents a teacher-authored question plus its grading rubric.
// points_possible is computed once at creation from the requirement points and then frozen.
type Assignment struct {
	ID             string         `gorm:"primaryKey;size:36" json:"id"`
	TeacherID      string         `gorm:"size:36;index;not null" json:"teacher_id"`
	Name           string         `gorm:"size:255;not null" json:"name"`
	QuestionText   string         `gorm:"type:text;not null" json:"question_text"`
	PointsPossible int            `gorm:"not null" json:"points_possible"`
	Rubric         datatypes.JSON `gorm:"column:rubric_structure" json:"rubric_structure"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// RubricStructure deserializes the stored rubric column.
func (a Assignment) RubricStructure() (RubricStructure, error) {
	var rubric RubricStructure
	if len(a.Rubric) == 0 {
		return rubric, nil
	}

	if err := json.Unmarshal(a.Rubric, &rubric); err != nil {
		return RubricStructure{}, fmt.Errorf("decode rubric structure: %w", err)
	}

	return rubric, nil
}

// SetRubricStructure serializes the rubric into the stored column.
func (a *Assignment) SetRubricStructure(rubric RubricStructure) error {
	raw, err := json.Marshal(rubric)
	if err != nil {
		return fmt.Errorf("encode rubric structure: %w", err)
	}

	a.Rubric = datatypes.JSON(raw)
	return nil
}
