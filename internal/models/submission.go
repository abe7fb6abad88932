package models

import (
	"time"

	"gorm.io/datatypes"
)

// Submission statuses form a monotonic lifecycle:
// pending -> processing -> complete | error. Failed runs are terminal;
// re-grading an image always creates a new record.
const (
	SubmissionStatusPending    = "pending"
	SubmissionStatusProcessing = "processing"
	SubmissionStatusComplete   = "complete"
	SubmissionStatusError      = "error"
)

// Submission is one uploaded answer image moving through the grading pipeline.
// StudentID is derived from the uploaded file name and is not a verified identity.
type Submission struct {
	ID           string         `gorm:"primaryKey;size:36" json:"id"`
	AssignmentID string         `gorm:"size:36;index;not null" json:"assignment_id"`
	StudentID    string         `gorm:"size:128;not null" json:"student_id"`
	Status       string         `gorm:"size:32;not null" json:"status"`
	ImageURL     string         `gorm:"size:2048" json:"image_url"`
	ImagePath    string         `gorm:"size:512" json:"image_path"`
	Transcript   *string        `gorm:"type:text" json:"transcript"`
	Feedback     *string        `gorm:"type:text" json:"feedback"`
	Score        datatypes.JSON `json:"score"`
	RetryCount   int            `gorm:"not null;default:0" json:"retry_count"`
	ErrorMessage *string        `gorm:"type:text" json:"error_message"`
	CreatedAt    time.Time      `json:"created_at"`
	ProcessedAt  *time.Time     `json:"processed_at"`
}

// IsTerminal reports whether the submission has reached a final status.
func (s Submission) IsTerminal() bool {
	return s.Status == SubmissionStatusComplete || s.Status == SubmissionStatusError
}
