package pipeline

import (
	"errors"
	"fmt"
)

// ErrAssignmentNotFound aborts a run before any submission state is persisted.
var ErrAssignmentNotFound = errors.New("assignment not found")

// UploadError covers object store or record insert failures before a
// submission record exists. Nothing is persisted when it is returned.
type UploadError struct {
	Err error
}

func (e *UploadError) Error() string { return fmt.Sprintf("upload failed: %v", e.Err) }
func (e *UploadError) Unwrap() error { return e.Err }

// TranscriptionError covers transcription stage failures, including a model
// response that lacks a transcript.
type TranscriptionError struct {
	Err error
}

func (e *TranscriptionError) Error() string { return fmt.Sprintf("transcription failed: %v", e.Err) }
func (e *TranscriptionError) Unwrap() error { return e.Err }

// ValidationError covers malformed or incomplete model responses at the
// grading or feedback stage.
type ValidationError struct {
	Stage Stage
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s stage failed: %v", e.Stage, e.Err)
}
func (e *ValidationError) Unwrap() error { return e.Err }

// PersistenceError covers record store write failures.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string { return fmt.Sprintf("persist %s: %v", e.Op, e.Err) }
func (e *PersistenceError) Unwrap() error { return e.Err }

// PipelineError wraps any failure that happened after a submission record
// was created. The record has already been marked with status "error" and
// carries the message; callers should surface SubmissionID rather than retry.
type PipelineError struct {
	SubmissionID string
	Stage        Stage
	Err          error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("submission %s failed at %s: %v", e.SubmissionID, e.Stage, e.Err)
}
func (e *PipelineError) Unwrap() error { return e.Err }
