// Package batch owns the lifecycle of bulk scoring jobs: it dispatches each
// uploaded document to the scoring adapter through a bounded worker pool and
// keeps authoritative progress state in the store, where polling reads it.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/emrekara/gradescan/internal/model"
	"github.com/emrekara/gradescan/internal/scoring"
	"github.com/emrekara/gradescan/internal/store"
)

var (
	// ErrUnknownExam rejects a batch whose exam reference does not exist.
	ErrUnknownExam = errors.New("unknown exam")
	// ErrEmptyBatch rejects a batch with no documents.
	ErrEmptyBatch = errors.New("batch contains no documents")
)

// Tracker creates batches and processes their documents asynchronously.
// Per-batch progress lives in the store, never in memory: Status answers
// correctly after a restart, and documents in flight when the process died
// simply never complete (the batch stays incomplete, which the contract
// accepts).
type Tracker struct {
	store   *store.Store
	adapter scoring.Adapter
	cfg     model.ScoringConfig

	mu       sync.Mutex
	inFlight map[string]chan struct{}
}

// New creates a tracker. Workers bounds adapter concurrency across the
// whole process; ScoreTimeout caps each adapter call.
func New(s *store.Store, adapter scoring.Adapter, cfg model.ScoringConfig) *Tracker {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.ScoreTimeout <= 0 {
		cfg.ScoreTimeout = 90 * time.Second
	}
	return &Tracker{
		store:    s,
		adapter:  adapter,
		cfg:      cfg,
		inFlight: make(map[string]chan struct{}),
	}
}

// Start validates the request, persists a fresh batch, kicks off background
// processing, and returns immediately. The caller polls Status for progress.
func (t *Tracker) Start(ctx context.Context, examID int64, documents [][]byte) (*model.Batch, error) {
	exam, err := t.store.GetExam(examID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("exam %d: %w", examID, ErrUnknownExam)
		}
		return nil, err
	}
	if len(documents) == 0 {
		return nil, ErrEmptyBatch
	}

	questions, err := t.store.ListQuestionsForExam(examID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	byNumber := make(map[int]int64, len(questions))
	for _, q := range questions {
		byNumber[q.Number] = q.ID
	}

	b := model.Batch{
		ID:         uuid.NewString(),
		ExamID:     examID,
		CourseID:   exam.CourseID,
		TotalFiles: len(documents),
		StartedAt:  time.Now(),
	}
	if err := t.store.CreateBatch(b); err != nil {
		return nil, fmt.Errorf("create batch: %w", err)
	}

	done := make(chan struct{})
	t.mu.Lock()
	t.inFlight[b.ID] = done
	t.mu.Unlock()

	slog.Info("batch started", "batch_id", b.ID, "exam_id", examID, "total_files", len(documents))
	go t.process(b.ID, examID, byNumber, documents, done)

	return &b, nil
}

// Status returns the current batch snapshot from the store. Pure read, safe
// to call concurrently with in-flight processing.
func (t *Tracker) Status(batchID string) (*model.Batch, error) {
	return t.store.GetBatch(batchID)
}

// Done returns a channel closed when the batch's background processing
// finishes. For a batch not in flight (completed, or created before a
// restart) it returns an already-closed channel.
func (t *Tracker) Done(batchID string) <-chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	if ch, ok := t.inFlight[batchID]; ok {
		return ch
	}
	closed := make(chan struct{})
	close(closed)
	return closed
}

func (t *Tracker) process(batchID string, examID int64, byNumber map[int]int64, documents [][]byte, done chan struct{}) {
	defer func() {
		t.mu.Lock()
		delete(t.inFlight, batchID)
		t.mu.Unlock()
		close(done)
	}()

	g := new(errgroup.Group)
	g.SetLimit(t.cfg.Workers)
	for _, doc := range documents {
		doc := doc
		g.Go(func() error {
			t.processDocument(batchID, examID, byNumber, doc)
			return nil
		})
	}
	// Workers never return errors; failures are recorded as batch data.
	_ = g.Wait()

	if b, err := t.store.GetBatch(batchID); err == nil {
		slog.Info("batch finished",
			"batch_id", batchID,
			"success", b.SuccessCount,
			"failed", b.FailedCount,
			"total", b.TotalFiles,
		)
	}
}

// processDocument scores one document and records its outcome. Every exit
// path records exactly one result; no failure here ever aborts the batch.
func (t *Tracker) processDocument(batchID string, examID int64, byNumber map[int]int64, document []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), t.cfg.ScoreTimeout)
	defer cancel()

	result, err := t.adapter.Score(ctx, document)
	if err != nil {
		t.recordFailure(batchID, nil, fmt.Sprintf("score document: %v", err))
		return
	}

	student := result.StudentNumber

	// Resolve every question number before writing anything, so a document
	// with one unknown number fails whole rather than half-written.
	records := make([]model.ScoreRecord, 0, len(result.Scores))
	for _, sc := range result.Scores {
		questionID, ok := byNumber[sc.QuestionNumber]
		if !ok {
			t.recordFailure(batchID, &student, fmt.Sprintf("exam has no question %d", sc.QuestionNumber))
			return
		}
		records = append(records, model.ScoreRecord{
			StudentNumber: student,
			ExamID:        examID,
			QuestionID:    questionID,
			Score:         sc.Score,
		})
	}

	for _, rec := range records {
		if err := t.store.UpsertScoreRecord(rec); err != nil {
			t.recordFailure(batchID, &student, fmt.Sprintf("store score for question %d: %v", rec.QuestionID, err))
			return
		}
	}

	if err := t.store.RecordDocumentResult(batchID, model.DocumentStatus{
		StudentNumber: &student,
		Status:        model.DocumentSuccess,
	}); err != nil {
		slog.Error("record document success", "batch_id", batchID, "error", err)
	}
}

func (t *Tracker) recordFailure(batchID string, student *string, message string) {
	slog.Warn("document failed", "batch_id", batchID, "reason", message)
	err := t.store.RecordDocumentResult(batchID, model.DocumentStatus{
		StudentNumber: student,
		Status:        model.DocumentFailed,
		Message:       message,
	})
	if err != nil {
		slog.Error("record document failure", "batch_id", batchID, "error", err)
	}
}
