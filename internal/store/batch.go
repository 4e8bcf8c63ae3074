package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/emrekara/gradescan/internal/model"
)

// ErrBatchComplete is returned when a document result arrives for a batch
// whose processed count already equals its total.
var ErrBatchComplete = errors.New("batch already complete")

// CreateBatch persists a new batch with all counters at zero.
func (s *Store) CreateBatch(b model.Batch) error {
	_, err := s.db.Exec(
		`INSERT INTO batches (id, exam_id, course_id, total_files, processed_count, success_count, failed_count, started_at)
		 VALUES (?, ?, ?, ?, 0, 0, 0, ?)`,
		b.ID, b.ExamID, b.CourseID, b.TotalFiles, b.StartedAt,
	)
	return err
}

// GetBatch returns the current batch snapshot including its status entries.
func (s *Store) GetBatch(id string) (*model.Batch, error) {
	var b model.Batch
	err := s.db.QueryRow(
		`SELECT id, exam_id, course_id, total_files, processed_count, success_count, failed_count, started_at, completed_at
		 FROM batches WHERE id = ?`, id,
	).Scan(&b.ID, &b.ExamID, &b.CourseID, &b.TotalFiles, &b.ProcessedCount,
		&b.SuccessCount, &b.FailedCount, &b.StartedAt, &b.CompletedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("batch %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query(
		`SELECT student_number, status, message FROM batch_statuses WHERE batch_id = ? ORDER BY id`, id,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var ds model.DocumentStatus
		if err := rows.Scan(&ds.StudentNumber, &ds.Status, &ds.Message); err != nil {
			return nil, err
		}
		b.Statuses = append(b.Statuses, ds)
	}
	return &b, rows.Err()
}

// RecordDocumentResult applies the outcome of one processed document to its
// batch in a single transaction: the counters move together, the status row
// is appended exactly once, and completed_at is stamped on the increment
// that first reaches total_files. The guarded UPDATE linearizes concurrent
// completions; an increment past total_files is refused.
func (s *Store) RecordDocumentResult(batchID string, ds model.DocumentStatus) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	successDelta, failedDelta := 0, 0
	switch ds.Status {
	case model.DocumentSuccess:
		successDelta = 1
	case model.DocumentFailed:
		failedDelta = 1
	default:
		return fmt.Errorf("unknown document status %q", ds.Status)
	}

	res, err := tx.Exec(
		`UPDATE batches
		 SET processed_count = processed_count + 1,
		     success_count = success_count + ?,
		     failed_count = failed_count + ?,
		     completed_at = CASE
		         WHEN processed_count + 1 >= total_files AND completed_at IS NULL THEN ?
		         ELSE completed_at
		     END
		 WHERE id = ? AND processed_count < total_files`,
		successDelta, failedDelta, time.Now(), batchID,
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		// Either the batch does not exist or it is already complete.
		var n int
		if err := tx.QueryRow(`SELECT COUNT(*) FROM batches WHERE id = ?`, batchID).Scan(&n); err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("batch %s: %w", batchID, ErrNotFound)
		}
		return fmt.Errorf("batch %s: %w", batchID, ErrBatchComplete)
	}

	_, err = tx.Exec(
		`INSERT INTO batch_statuses (batch_id, student_number, status, message) VALUES (?, ?, ?, ?)`,
		batchID, ds.StudentNumber, ds.Status, ds.Message,
	)
	if err != nil {
		return err
	}
	return tx.Commit()
}
