package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/emrekara/gradescan/internal/model"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// sqlite allows a single writer; one pooled connection also keeps
	// :memory: databases coherent across goroutines.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS courses (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		code TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS exams (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		course_id INTEGER NOT NULL,
		name TEXT NOT NULL,
		FOREIGN KEY (course_id) REFERENCES courses(id)
	);

	CREATE TABLE IF NOT EXISTS questions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		exam_id INTEGER NOT NULL,
		number INTEGER NOT NULL,
		max_score REAL NOT NULL DEFAULT 10,
		UNIQUE (exam_id, number),
		FOREIGN KEY (exam_id) REFERENCES exams(id)
	);

	CREATE TABLE IF NOT EXISTS question_outcomes (
		question_id INTEGER NOT NULL,
		outcome_code TEXT NOT NULL,
		position INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (question_id, outcome_code),
		FOREIGN KEY (question_id) REFERENCES questions(id)
	);

	CREATE TABLE IF NOT EXISTS learning_outcomes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		course_id INTEGER NOT NULL,
		code TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		UNIQUE (course_id, code),
		FOREIGN KEY (course_id) REFERENCES courses(id)
	);

	CREATE TABLE IF NOT EXISTS outcome_programs (
		outcome_id INTEGER NOT NULL,
		program_code TEXT NOT NULL,
		PRIMARY KEY (outcome_id, program_code),
		FOREIGN KEY (outcome_id) REFERENCES learning_outcomes(id)
	);

	CREATE TABLE IF NOT EXISTS program_outcomes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		code TEXT NOT NULL UNIQUE,
		description TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS score_records (
		student_number TEXT NOT NULL,
		exam_id INTEGER NOT NULL,
		question_id INTEGER NOT NULL,
		score REAL NOT NULL,
		updated_at DATETIME NOT NULL,
		PRIMARY KEY (student_number, exam_id, question_id),
		FOREIGN KEY (exam_id) REFERENCES exams(id),
		FOREIGN KEY (question_id) REFERENCES questions(id)
	);

	CREATE TABLE IF NOT EXISTS batches (
		id TEXT PRIMARY KEY,
		exam_id INTEGER NOT NULL,
		course_id INTEGER NOT NULL,
		total_files INTEGER NOT NULL,
		processed_count INTEGER NOT NULL DEFAULT 0,
		success_count INTEGER NOT NULL DEFAULT 0,
		failed_count INTEGER NOT NULL DEFAULT 0,
		started_at DATETIME NOT NULL,
		completed_at DATETIME,
		FOREIGN KEY (exam_id) REFERENCES exams(id),
		FOREIGN KEY (course_id) REFERENCES courses(id)
	);

	CREATE TABLE IF NOT EXISTS batch_statuses (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		batch_id TEXT NOT NULL,
		student_number TEXT,
		status TEXT NOT NULL,
		message TEXT NOT NULL DEFAULT '',
		FOREIGN KEY (batch_id) REFERENCES batches(id)
	);

	CREATE TABLE IF NOT EXISTS import_metadata (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// InsertCourse stores a course.
func (s *Store) InsertCourse(c model.Course) (int64, error) {
	res, err := s.db.Exec(`INSERT INTO courses (code, name) VALUES (?, ?)`, c.Code, c.Name)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// GetCourse returns a course by ID.
func (s *Store) GetCourse(id int64) (model.Course, error) {
	var c model.Course
	err := s.db.QueryRow(`SELECT id, code, name FROM courses WHERE id = ?`, id).
		Scan(&c.ID, &c.Code, &c.Name)
	if err == sql.ErrNoRows {
		return c, fmt.Errorf("course %d: %w", id, ErrNotFound)
	}
	return c, err
}

// GetCourseByCode returns a course by its code.
func (s *Store) GetCourseByCode(code string) (model.Course, error) {
	var c model.Course
	err := s.db.QueryRow(`SELECT id, code, name FROM courses WHERE code = ?`, code).
		Scan(&c.ID, &c.Code, &c.Name)
	if err == sql.ErrNoRows {
		return c, fmt.Errorf("course %q: %w", code, ErrNotFound)
	}
	return c, err
}

// InsertExam stores an exam.
func (s *Store) InsertExam(e model.Exam) (int64, error) {
	res, err := s.db.Exec(`INSERT INTO exams (course_id, name) VALUES (?, ?)`, e.CourseID, e.Name)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// GetExam returns an exam by ID.
func (s *Store) GetExam(id int64) (model.Exam, error) {
	var e model.Exam
	err := s.db.QueryRow(`SELECT id, course_id, name FROM exams WHERE id = ?`, id).
		Scan(&e.ID, &e.CourseID, &e.Name)
	if err == sql.ErrNoRows {
		return e, fmt.Errorf("exam %d: %w", id, ErrNotFound)
	}
	return e, err
}

// ListExamsForCourse returns all exams of a course.
func (s *Store) ListExamsForCourse(courseID int64) ([]model.Exam, error) {
	rows, err := s.db.Query(`SELECT id, course_id, name FROM exams WHERE course_id = ? ORDER BY id`, courseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var exams []model.Exam
	for rows.Next() {
		var e model.Exam
		if err := rows.Scan(&e.ID, &e.CourseID, &e.Name); err != nil {
			return nil, err
		}
		exams = append(exams, e)
	}
	return exams, rows.Err()
}

// InsertQuestion stores a question and its learning outcome mappings.
func (s *Store) InsertQuestion(q model.Question) (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	res, err := tx.Exec(
		`INSERT INTO questions (exam_id, number, max_score) VALUES (?, ?, ?)`,
		q.ExamID, q.Number, q.MaxScore,
	)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	for i, code := range q.OutcomeCodes {
		_, err := tx.Exec(
			`INSERT INTO question_outcomes (question_id, outcome_code, position) VALUES (?, ?, ?)`,
			id, code, i,
		)
		if err != nil {
			return 0, err
		}
	}
	return id, tx.Commit()
}

// ListQuestionsForExam returns the exam's questions with their outcome codes,
// ordered by question number. Outcome codes keep import order.
func (s *Store) ListQuestionsForExam(examID int64) ([]model.Question, error) {
	rows, err := s.db.Query(
		`SELECT id, exam_id, number, max_score FROM questions WHERE exam_id = ? ORDER BY number`, examID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var questions []model.Question
	for rows.Next() {
		var q model.Question
		if err := rows.Scan(&q.ID, &q.ExamID, &q.Number, &q.MaxScore); err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range questions {
		codes, err := s.outcomeCodesForQuestion(questions[i].ID)
		if err != nil {
			return nil, err
		}
		questions[i].OutcomeCodes = codes
	}
	return questions, nil
}

func (s *Store) outcomeCodesForQuestion(questionID int64) ([]string, error) {
	rows, err := s.db.Query(
		`SELECT outcome_code FROM question_outcomes WHERE question_id = ? ORDER BY position`, questionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var codes []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, err
		}
		codes = append(codes, code)
	}
	return codes, rows.Err()
}

// InsertLearningOutcome stores a learning outcome and its program mappings.
func (s *Store) InsertLearningOutcome(lo model.LearningOutcome) (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	res, err := tx.Exec(
		`INSERT INTO learning_outcomes (course_id, code, description) VALUES (?, ?, ?)`,
		lo.CourseID, lo.Code, lo.Description,
	)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	for _, code := range lo.ProgramOutcomeCodes {
		_, err := tx.Exec(
			`INSERT INTO outcome_programs (outcome_id, program_code) VALUES (?, ?)`,
			id, code,
		)
		if err != nil {
			return 0, err
		}
	}
	return id, tx.Commit()
}

// ListOutcomesForCourse returns the course's learning outcomes with their
// program outcome codes, ordered by code.
func (s *Store) ListOutcomesForCourse(courseID int64) ([]model.LearningOutcome, error) {
	rows, err := s.db.Query(
		`SELECT id, course_id, code, description FROM learning_outcomes WHERE course_id = ? ORDER BY code`, courseID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var outcomes []model.LearningOutcome
	for rows.Next() {
		var lo model.LearningOutcome
		if err := rows.Scan(&lo.ID, &lo.CourseID, &lo.Code, &lo.Description); err != nil {
			return nil, err
		}
		outcomes = append(outcomes, lo)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range outcomes {
		prows, err := s.db.Query(
			`SELECT program_code FROM outcome_programs WHERE outcome_id = ? ORDER BY program_code`, outcomes[i].ID,
		)
		if err != nil {
			return nil, err
		}
		var codes []string
		for prows.Next() {
			var code string
			if err := prows.Scan(&code); err != nil {
				prows.Close()
				return nil, err
			}
			codes = append(codes, code)
		}
		if err := prows.Err(); err != nil {
			prows.Close()
			return nil, err
		}
		prows.Close()
		outcomes[i].ProgramOutcomeCodes = codes
	}
	return outcomes, nil
}

// InsertProgramOutcome stores a program outcome.
func (s *Store) InsertProgramOutcome(po model.ProgramOutcome) (int64, error) {
	res, err := s.db.Exec(
		`INSERT INTO program_outcomes (code, description) VALUES (?, ?)`,
		po.Code, po.Description,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// GetProgramOutcome returns a program outcome by code.
func (s *Store) GetProgramOutcome(code string) (model.ProgramOutcome, error) {
	var po model.ProgramOutcome
	err := s.db.QueryRow(
		`SELECT id, code, description FROM program_outcomes WHERE code = ?`, code,
	).Scan(&po.ID, &po.Code, &po.Description)
	if err == sql.ErrNoRows {
		return po, fmt.Errorf("program outcome %q: %w", code, ErrNotFound)
	}
	return po, err
}
