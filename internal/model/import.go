package model

// ReferenceImport is the top-level JSON structure for reference data files
// loaded at startup (courses, exams, questions, outcome mappings).
type ReferenceImport struct {
	ProgramOutcomes []ProgramOutcomeImport `json:"program_outcomes"`
	Courses         []CourseImport         `json:"courses"`
}

// ProgramOutcomeImport declares one program outcome.
type ProgramOutcomeImport struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

// CourseImport declares a course with its outcomes and exams.
type CourseImport struct {
	Code             string                  `json:"code"`
	Name             string                  `json:"name"`
	LearningOutcomes []LearningOutcomeImport `json:"learning_outcomes"`
	Exams            []ExamImport            `json:"exams"`
}

// LearningOutcomeImport declares one learning outcome and the program
// outcomes it maps to.
type LearningOutcomeImport struct {
	Code            string   `json:"code"`
	Description     string   `json:"description"`
	ProgramOutcomes []string `json:"program_outcomes"`
}

// ExamImport declares an exam and its questions.
type ExamImport struct {
	Name      string           `json:"name"`
	Questions []QuestionImport `json:"questions"`
}

// QuestionImport declares one question and the learning outcomes it maps to.
type QuestionImport struct {
	Number           int      `json:"number"`
	MaxScore         float64  `json:"max_score"`
	LearningOutcomes []string `json:"learning_outcomes"`
}
