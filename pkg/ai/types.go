package ai

// UnclearMarker is inserted by the transcription prompt wherever handwriting
// cannot be read with confidence, instead of omitting or guessing the text.
const UnclearMarker = "[unclear]"

// Requirement is one rubric criterion handed to the model for evaluation.
type Requirement struct {
	Text   string
	Points int
}

// AssignmentContext carries the question and flattened rubric a stage needs.
type AssignmentContext struct {
	QuestionText string
	Requirements []Requirement
	Notes        string
	Examples     []string
}

// RequirementTexts returns the rubric texts in display order.
func (a AssignmentContext) RequirementTexts() []string {
	texts := make([]string, 0, len(a.Requirements))
	for _, req := range a.Requirements {
		texts = append(texts, req.Text)
	}

	return texts
}

// Evaluation is the structured judgment returned by the vision and grading calls.
type Evaluation struct {
	StudentResponse string          `json:"student_response"`
	RubricPoints    map[string]bool `json:"rubric_points"`
	PointsEarned    []string        `json:"points_earned"`
	Misconceptions  []string        `json:"misconceptions"`
	Explanation     string          `json:"explanation"`
}

// AssessmentResult maps an evaluation onto the rubric with derived scores.
// RawScore is the fraction of requirements met; WeightedScore applies the
// per-requirement point values. TeacherScore is the "earned/max" display string.
type AssessmentResult struct {
	RawScore       float64         `json:"raw_score"`
	WeightedScore  float64         `json:"weighted_score"`
	TeacherScore   string          `json:"teacher_score"`
	RubricPoints   map[string]bool `json:"rubric_points_evaluation"`
	PointsEarned   []string        `json:"rubric_points_earned"`
	Misconceptions []string        `json:"misconceptions"`
	Feedback       string          `json:"feedback"`
	Confidence     float64         `json:"confidence"`
}

// EarnedCount returns how many rubric points were judged demonstrated.
func (a AssessmentResult) EarnedCount() int {
	earned := 0
	for _, ok := range a.RubricPoints {
		if ok {
			earned++
		}
	}

	return earned
}

// FeedbackCritique scores generated feedback against a fixed quality rubric.
// It is best-effort telemetry, never a delivery gate.
type FeedbackCritique struct {
	CriteriaMet []string `json:"criteria_met"`
	Issues      []string `json:"issues"`
	Score       int      `json:"score"`
}
