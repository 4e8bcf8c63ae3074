package store

import (
	"time"

	"github.com/emrekara/gradescan/internal/model"
)

// UpsertScoreRecord inserts or overwrites the score for one
// (student, exam, question) key. Last write wins; every writer (batch
// processing, single-document scoring, manual entry) goes through here.
func (s *Store) UpsertScoreRecord(rec model.ScoreRecord) error {
	_, err := s.db.Exec(
		`INSERT INTO score_records (student_number, exam_id, question_id, score, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(student_number, exam_id, question_id) DO UPDATE SET score = ?, updated_at = ?`,
		rec.StudentNumber, rec.ExamID, rec.QuestionID, rec.Score, time.Now(),
		rec.Score, time.Now(),
	)
	return err
}

// ListScoresForExam returns all score records for an exam.
func (s *Store) ListScoresForExam(examID int64) ([]model.ScoreRecord, error) {
	rows, err := s.db.Query(
		`SELECT student_number, exam_id, question_id, score, updated_at
		 FROM score_records WHERE exam_id = ?`, examID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var records []model.ScoreRecord
	for rows.Next() {
		var r model.ScoreRecord
		if err := rows.Scan(&r.StudentNumber, &r.ExamID, &r.QuestionID, &r.Score, &r.UpdatedAt); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}
