package pipeline

// Stage identifies one of the ordered processing steps a submission moves
// through. Stage tags are reported to the progress observer in execution
// order; a stage that did not run is never reported.
type Stage string

const (
	StageUpload   Stage = "UPLOAD"
	StageOCR      Stage = "OCR"
	StageGrading  Stage = "GRADING"
	StageFeedback Stage = "FEEDBACK"
	StageComplete Stage = "COMPLETE"
)

// ProgressFunc observes stage transitions. It is invoked synchronously,
// in stage order; its return value is never consulted.
type ProgressFunc func(stage Stage, message string)

func report(onStage ProgressFunc, stage Stage, message string) {
	if onStage != nil {
		onStage(stage, message)
	}
}
