package pipeline

import (
	"context"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"
)

// BatchItem is one file in a multi-submission run. StudentID defaults to the
// file name stem when empty, matching single-file behaviour.
type BatchItem struct {
	ImagePath string
	StudentID string
}

// BatchOutcome pairs each input with its pipeline result or error, in input order.
type BatchOutcome struct {
	ImagePath string
	Result    *Result
	Err       error
}

// BatchProgressFunc observes stage transitions for a named file within a batch.
type BatchProgressFunc func(imagePath string, stage Stage, message string)

// StudentIDFromFile derives the unverified student identifier from a file name.
func StudentIDFromFile(imagePath string) string {
	base := filepath.Base(imagePath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// ProcessBatch grades independent submissions concurrently over a bounded
// worker pool. Submissions share no mutable state, so only the pool size
// limits parallelism; stage order within each submission stays strict.
// A failed item never stops the others.
func (p *Processor) ProcessBatch(ctx context.Context, assignmentID string, items []BatchItem, concurrency int, onStage BatchProgressFunc) []BatchOutcome {
	if concurrency <= 0 {
		concurrency = 1
	}

	outcomes := make([]BatchOutcome, len(items))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(concurrency)

	for i, item := range items {
		group.Go(func() error {
			studentID := item.StudentID
			if studentID == "" {
				studentID = StudentIDFromFile(item.ImagePath)
			}

			var progress ProgressFunc
			if onStage != nil {
				progress = func(stage Stage, message string) {
					onStage(item.ImagePath, stage, message)
				}
			}

			result, err := p.ProcessSubmission(groupCtx, ProcessInput{
				ImagePath:    item.ImagePath,
				AssignmentID: assignmentID,
				StudentID:    studentID,
			}, progress)

			outcomes[i] = BatchOutcome{ImagePath: item.ImagePath, Result: result, Err: err}
			return nil
		})
	}

	_ = group.Wait()

	return outcomes
}
