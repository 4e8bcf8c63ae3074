package model

import "time"

// Course is a course offering whose exams feed the achievement rollups.
type Course struct {
	ID   int64  `json:"id"`
	Code string `json:"code"`
	Name string `json:"name"`
}

// Exam is one exam given for a course.
type Exam struct {
	ID       int64  `json:"id"`
	CourseID int64  `json:"course_id"`
	Name     string `json:"name"`
}

// Question is one scored question on an exam. A question may map to zero,
// one, or many learning outcomes; with zero mappings it still appears in the
// question-level analysis but contributes to no outcome rollup.
type Question struct {
	ID           int64    `json:"id"`
	ExamID       int64    `json:"exam_id"`
	Number       int      `json:"number"`
	MaxScore     float64  `json:"max_score"`
	OutcomeCodes []string `json:"outcome_codes,omitempty"`
}

// LearningOutcome is a course-scoped outcome realized by exam questions.
type LearningOutcome struct {
	ID                  int64    `json:"id"`
	CourseID            int64    `json:"course_id"`
	Code                string   `json:"code"`
	Description         string   `json:"description"`
	ProgramOutcomeCodes []string `json:"program_outcome_codes,omitempty"`
}

// ProgramOutcome is a program-scoped outcome. Its achievement is always
// derived through learning outcomes, never scored directly.
type ProgramOutcome struct {
	ID          int64  `json:"id"`
	Code        string `json:"code"`
	Description string `json:"description"`
}

// ScoreRecord is one persisted scoring event, keyed by
// (student number, exam, question). A later write for the same key wins.
type ScoreRecord struct {
	StudentNumber string    `json:"student_number"`
	ExamID        int64     `json:"exam_id"`
	QuestionID    int64     `json:"question_id"`
	Score         float64   `json:"score"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// DocumentOutcome is the terminal state of one document within a batch.
type DocumentOutcome string

const (
	DocumentSuccess DocumentOutcome = "success"
	DocumentFailed  DocumentOutcome = "failed"
)

// DocumentStatus records the outcome of one processed document. Entries are
// appended once and never mutated; their order follows completion, not
// submission.
type DocumentStatus struct {
	StudentNumber *string         `json:"student_number"`
	Status        DocumentOutcome `json:"status"`
	Message       string          `json:"message"`
}

// Batch tracks one bulk upload of scanned exam documents. It is the durable
// contract for status polling: a tracker restarted mid-batch must be able to
// answer status queries from this record alone.
type Batch struct {
	ID             string           `json:"batch_id"`
	ExamID         int64            `json:"exam_id"`
	CourseID       int64            `json:"course_id"`
	TotalFiles     int              `json:"total_files"`
	ProcessedCount int              `json:"processed_count"`
	SuccessCount   int              `json:"success_count"`
	FailedCount    int              `json:"failed_count"`
	Statuses       []DocumentStatus `json:"statuses"`
	StartedAt      time.Time        `json:"started_at"`
	CompletedAt    *time.Time       `json:"completed_at,omitempty"`
}

// IsComplete reports whether every document in the batch has been processed.
func (b *Batch) IsComplete() bool {
	return b.ProcessedCount >= b.TotalFiles
}

// ScoringConfig holds scoring adapter and worker pool settings, read once at
// startup and injected into the components that need them.
type ScoringConfig struct {
	BaseURL      string
	APIKey       string
	Model        string
	ScoreTimeout time.Duration
	Workers      int
}

// ServerConfig holds runtime server parameters set via CLI flags.
type ServerConfig struct {
	Addr    string
	DBPath  string
	Lang    string
	Scoring ScoringConfig
}
