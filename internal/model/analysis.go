package model

// QuestionRow is one row of the question-level analysis table.
//
// SuccessRate is nil when the question has no attempts or a zero MaxScore;
// a nil rate is reported as absent, never conflated with a computed 0%.
// OutcomeCode shows only the first mapped learning outcome code. This is a
// display simplification: the full many-valued mapping still drives the
// outcome and program rollups.
type QuestionRow struct {
	QuestionID   int64    `json:"question_id"`
	Number       int      `json:"number"`
	MaxScore     float64  `json:"max_score"`
	Attempts     int      `json:"attempts"`
	AverageScore float64  `json:"average_score"`
	SuccessRate  *float64 `json:"success_rate,omitempty"`
	OutcomeCode  string   `json:"outcome_code,omitempty"`
}

// OutcomeRow is one row of the learning-outcome analysis. Success is the
// unweighted mean of the contributing questions' success rates; outcomes
// with no scored contributing question are omitted entirely.
type OutcomeRow struct {
	Code          string  `json:"code"`
	Description   string  `json:"description"`
	Success       float64 `json:"success"`
	QuestionCount int     `json:"question_count"`
}

// ProgramRow is one row of the program-outcome analysis. Success is the
// unweighted mean over the contributing learning outcomes' success values.
type ProgramRow struct {
	Code                 string  `json:"code"`
	Description          string  `json:"description"`
	Success              float64 `json:"success"`
	ContributingOutcomes int     `json:"contributing_outcomes"`
}

// Summary is the threshold-driven textual recommendation block.
type Summary struct {
	Recommendations string `json:"recommendations"`
}

// AnalysisReport bundles the three analysis levels with the summary.
type AnalysisReport struct {
	ExamID                  int64         `json:"exam_id"`
	CourseID                int64         `json:"course_id"`
	QuestionAnalysis        []QuestionRow `json:"question_analysis"`
	LearningOutcomeAnalysis []OutcomeRow  `json:"learning_outcome_analysis"`
	ProgramOutcomeAnalysis  []ProgramRow  `json:"program_outcome_analysis"`
	Summary                 Summary       `json:"summary"`
}
