package batch

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/emrekara/gradescan/internal/model"
	"github.com/emrekara/gradescan/internal/scoring"
	"github.com/emrekara/gradescan/internal/store"
)

type stubAdapter struct {
	fn func(ctx context.Context, document []byte) (*scoring.Result, error)
}

func (a *stubAdapter) Score(ctx context.Context, document []byte) (*scoring.Result, error) {
	return a.fn(ctx, document)
}

func newTestTracker(t *testing.T, adapter scoring.Adapter) (*Tracker, *store.Store, int64) {
	t.Helper()
	s, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	courseID, err := s.InsertCourse(model.Course{Code: "BLM101", Name: "Intro"})
	if err != nil {
		t.Fatalf("InsertCourse: %v", err)
	}
	examID, err := s.InsertExam(model.Exam{CourseID: courseID, Name: "Midterm"})
	if err != nil {
		t.Fatalf("InsertExam: %v", err)
	}
	for n := 1; n <= 2; n++ {
		if _, err := s.InsertQuestion(model.Question{ExamID: examID, Number: n, MaxScore: 10}); err != nil {
			t.Fatalf("InsertQuestion: %v", err)
		}
	}

	tr := New(s, adapter, model.ScoringConfig{Workers: 2, ScoreTimeout: 5 * time.Second})
	return tr, s, examID
}

func waitForBatch(t *testing.T, tr *Tracker, batchID string) *model.Batch {
	t.Helper()
	select {
	case <-tr.Done(batchID):
	case <-time.After(10 * time.Second):
		t.Fatal("batch did not finish in time")
	}
	b, err := tr.Status(batchID)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	return b
}

func TestBatchPartialFailure(t *testing.T) {
	adapter := &stubAdapter{fn: func(_ context.Context, document []byte) (*scoring.Result, error) {
		switch string(document) {
		case "doc-fail":
			return nil, errors.New("adapter unavailable")
		default:
			return &scoring.Result{
				StudentNumber: "stu-" + string(document),
				Scores:        []scoring.QuestionScore{{QuestionNumber: 1, Score: 8}, {QuestionNumber: 2, Score: 6}},
			}, nil
		}
	}}
	tr, s, examID := newTestTracker(t, adapter)

	b, err := tr.Start(context.Background(), examID, [][]byte{[]byte("a"), []byte("doc-fail"), []byte("b")})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if b.TotalFiles != 3 || b.ProcessedCount != 0 {
		t.Errorf("fresh batch should have total 3 and nothing processed, got %+v", b)
	}

	final := waitForBatch(t, tr, b.ID)
	if final.TotalFiles != 3 || final.ProcessedCount != 3 || final.SuccessCount != 2 || final.FailedCount != 1 {
		t.Errorf("expected 3/3 processed with 2 success 1 failed, got %+v", final)
	}
	if !final.IsComplete() || final.CompletedAt == nil {
		t.Error("batch should be complete with completed_at set")
	}
	if final.ProcessedCount != final.SuccessCount+final.FailedCount {
		t.Error("counter invariant violated")
	}
	if len(final.Statuses) != 3 {
		t.Fatalf("expected 3 status entries, got %d", len(final.Statuses))
	}

	var failed int
	for _, ds := range final.Statuses {
		if ds.Status == model.DocumentFailed {
			failed++
			if ds.Message == "" {
				t.Error("failed status should carry a reason")
			}
		} else if ds.StudentNumber == nil {
			t.Error("success status should carry the student number")
		}
	}
	if failed != 1 {
		t.Errorf("expected 1 failed status, got %d", failed)
	}

	// Two successful documents, two questions each.
	records, err := s.ListScoresForExam(examID)
	if err != nil {
		t.Fatalf("ListScoresForExam: %v", err)
	}
	if len(records) != 4 {
		t.Errorf("expected 4 score records, got %d", len(records))
	}
}

func TestStartValidation(t *testing.T) {
	adapter := &stubAdapter{fn: func(context.Context, []byte) (*scoring.Result, error) {
		return nil, errors.New("unused")
	}}
	tr, _, examID := newTestTracker(t, adapter)

	if _, err := tr.Start(context.Background(), 9999, [][]byte{[]byte("a")}); !errors.Is(err, ErrUnknownExam) {
		t.Errorf("expected ErrUnknownExam, got %v", err)
	}
	if _, err := tr.Start(context.Background(), examID, nil); !errors.Is(err, ErrEmptyBatch) {
		t.Errorf("expected ErrEmptyBatch, got %v", err)
	}
}

func TestUnknownQuestionNumberFailsDocument(t *testing.T) {
	adapter := &stubAdapter{fn: func(context.Context, []byte) (*scoring.Result, error) {
		return &scoring.Result{
			StudentNumber: "20210001",
			Scores:        []scoring.QuestionScore{{QuestionNumber: 1, Score: 8}, {QuestionNumber: 99, Score: 5}},
		}, nil
	}}
	tr, s, examID := newTestTracker(t, adapter)

	b, err := tr.Start(context.Background(), examID, [][]byte{[]byte("a")})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	final := waitForBatch(t, tr, b.ID)
	if final.FailedCount != 1 || final.SuccessCount != 0 {
		t.Errorf("expected document failure, got %+v", final)
	}
	if got := final.Statuses[0].Message; got != "exam has no question 99" {
		t.Errorf("unexpected failure message %q", got)
	}
	if final.Statuses[0].StudentNumber == nil || *final.Statuses[0].StudentNumber != "20210001" {
		t.Error("failure should keep the best-effort student number")
	}

	// The document failed whole: no partial score records.
	records, _ := s.ListScoresForExam(examID)
	if len(records) != 0 {
		t.Errorf("expected no score records, got %d", len(records))
	}
}

func TestScoreTimeoutCountsAsFailure(t *testing.T) {
	adapter := &stubAdapter{fn: func(ctx context.Context, _ []byte) (*scoring.Result, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	tr, s, examID := newTestTracker(t, adapter)
	tr = New(s, adapter, model.ScoringConfig{Workers: 2, ScoreTimeout: 20 * time.Millisecond})

	b, err := tr.Start(context.Background(), examID, [][]byte{[]byte("a")})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	final := waitForBatch(t, tr, b.ID)
	if final.FailedCount != 1 {
		t.Errorf("expected timeout counted as failure, got %+v", final)
	}
}

func TestStatusIsIdempotent(t *testing.T) {
	adapter := &stubAdapter{fn: func(context.Context, []byte) (*scoring.Result, error) {
		return &scoring.Result{StudentNumber: "s1", Scores: []scoring.QuestionScore{{QuestionNumber: 1, Score: 7}}}, nil
	}}
	tr, _, examID := newTestTracker(t, adapter)

	b, err := tr.Start(context.Background(), examID, [][]byte{[]byte("a")})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitForBatch(t, tr, b.ID)

	first, err := tr.Status(b.ID)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	second, err := tr.Status(b.ID)
	if err != nil {
		t.Fatalf("Status repeat: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("repeated Status calls differ:\n%+v\n%+v", first, second)
	}
}

func TestStatusUnknownBatch(t *testing.T) {
	adapter := &stubAdapter{fn: func(context.Context, []byte) (*scoring.Result, error) {
		return nil, errors.New("unused")
	}}
	tr, _, _ := newTestTracker(t, adapter)

	if _, err := tr.Status("no-such-batch"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	// Done for a batch not in flight is already closed.
	select {
	case <-tr.Done("no-such-batch"):
	default:
		t.Error("Done should return a closed channel for unknown batches")
	}
}

func TestLargeBatchBoundedPool(t *testing.T) {
	const docs = 25
	adapter := &stubAdapter{fn: func(_ context.Context, document []byte) (*scoring.Result, error) {
		time.Sleep(time.Millisecond)
		return &scoring.Result{
			StudentNumber: fmt.Sprintf("stu-%s", document),
			Scores:        []scoring.QuestionScore{{QuestionNumber: 1, Score: 5}},
		}, nil
	}}
	tr, _, examID := newTestTracker(t, adapter)

	var documents [][]byte
	for i := 0; i < docs; i++ {
		documents = append(documents, []byte(fmt.Sprintf("%03d", i)))
	}
	b, err := tr.Start(context.Background(), examID, documents)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	final := waitForBatch(t, tr, b.ID)
	if final.ProcessedCount != docs || final.SuccessCount != docs {
		t.Errorf("expected all %d documents processed successfully, got %+v", docs, final)
	}
	if len(final.Statuses) != docs {
		t.Errorf("expected %d status entries, got %d", docs, len(final.Statuses))
	}
}
