package store

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/emrekara/gradescan/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("newTestStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// seedExam creates a course with one exam and the given questions, returning
// the course and exam IDs.
func seedExam(t *testing.T, s *Store, questions []model.Question) (int64, int64) {
	t.Helper()
	courseID, err := s.InsertCourse(model.Course{Code: "BLM101", Name: "Intro to Programming"})
	if err != nil {
		t.Fatalf("InsertCourse: %v", err)
	}
	examID, err := s.InsertExam(model.Exam{CourseID: courseID, Name: "Midterm"})
	if err != nil {
		t.Fatalf("InsertExam: %v", err)
	}
	for _, q := range questions {
		q.ExamID = examID
		if _, err := s.InsertQuestion(q); err != nil {
			t.Fatalf("InsertQuestion: %v", err)
		}
	}
	return courseID, examID
}

func strptr(s string) *string { return &s }

func TestReferenceEntities(t *testing.T) {
	s := newTestStore(t)

	courseID, examID := seedExam(t, s, []model.Question{
		{Number: 1, MaxScore: 10, OutcomeCodes: []string{"ÖÇ1", "ÖÇ2"}},
		{Number: 2, MaxScore: 20},
	})

	course, err := s.GetCourse(courseID)
	if err != nil {
		t.Fatalf("GetCourse: %v", err)
	}
	if course.Code != "BLM101" {
		t.Errorf("expected course code BLM101, got %q", course.Code)
	}

	exam, err := s.GetExam(examID)
	if err != nil {
		t.Fatalf("GetExam: %v", err)
	}
	if exam.CourseID != courseID {
		t.Errorf("expected course %d, got %d", courseID, exam.CourseID)
	}

	questions, err := s.ListQuestionsForExam(examID)
	if err != nil {
		t.Fatalf("ListQuestionsForExam: %v", err)
	}
	if len(questions) != 2 {
		t.Fatalf("expected 2 questions, got %d", len(questions))
	}
	if got := questions[0].OutcomeCodes; len(got) != 2 || got[0] != "ÖÇ1" || got[1] != "ÖÇ2" {
		t.Errorf("expected outcome codes [ÖÇ1 ÖÇ2] in import order, got %v", got)
	}
	if questions[1].OutcomeCodes != nil {
		t.Errorf("expected no outcome codes on question 2, got %v", questions[1].OutcomeCodes)
	}

	// Unknown IDs surface ErrNotFound.
	if _, err := s.GetExam(9999); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.GetCourse(9999); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestOutcomeMappings(t *testing.T) {
	s := newTestStore(t)

	courseID, _ := seedExam(t, s, nil)
	for _, lo := range []model.LearningOutcome{
		{CourseID: courseID, Code: "ÖÇ1", Description: "Writes loops", ProgramOutcomeCodes: []string{"PÇ1", "PÇ2"}},
		{CourseID: courseID, Code: "ÖÇ2", Description: "Uses arrays"},
	} {
		if _, err := s.InsertLearningOutcome(lo); err != nil {
			t.Fatalf("InsertLearningOutcome: %v", err)
		}
	}

	outcomes, err := s.ListOutcomesForCourse(courseID)
	if err != nil {
		t.Fatalf("ListOutcomesForCourse: %v", err)
	}
	if len(outcomes) != 2 {
		t.Fatalf("expected 2 outcomes, got %d", len(outcomes))
	}
	if got := outcomes[0].ProgramOutcomeCodes; len(got) != 2 {
		t.Errorf("expected 2 program codes on ÖÇ1, got %v", got)
	}
	if outcomes[1].ProgramOutcomeCodes != nil {
		t.Errorf("expected no program codes on ÖÇ2, got %v", outcomes[1].ProgramOutcomeCodes)
	}
}

func TestUpsertScoreRecordIdempotent(t *testing.T) {
	s := newTestStore(t)
	_, examID := seedExam(t, s, []model.Question{{Number: 1, MaxScore: 10}})
	questions, _ := s.ListQuestionsForExam(examID)
	qID := questions[0].ID

	rec := model.ScoreRecord{StudentNumber: "20210001", ExamID: examID, QuestionID: qID, Score: 8}
	if err := s.UpsertScoreRecord(rec); err != nil {
		t.Fatalf("UpsertScoreRecord: %v", err)
	}
	if err := s.UpsertScoreRecord(rec); err != nil {
		t.Fatalf("UpsertScoreRecord repeat: %v", err)
	}

	records, err := s.ListScoresForExam(examID)
	if err != nil {
		t.Fatalf("ListScoresForExam: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected exactly 1 record after duplicate upsert, got %d", len(records))
	}
	if records[0].Score != 8 {
		t.Errorf("expected score 8, got %f", records[0].Score)
	}

	// Last write wins.
	rec.Score = 6
	if err := s.UpsertScoreRecord(rec); err != nil {
		t.Fatalf("UpsertScoreRecord overwrite: %v", err)
	}
	records, _ = s.ListScoresForExam(examID)
	if len(records) != 1 || records[0].Score != 6 {
		t.Errorf("expected single record with score 6, got %v", records)
	}
	if records[0].QuestionID != qID {
		t.Errorf("expected record for question %d, got %d", qID, records[0].QuestionID)
	}
}

func TestBatchLifecycle(t *testing.T) {
	s := newTestStore(t)
	courseID, examID := seedExam(t, s, nil)

	b := model.Batch{ID: "batch-1", ExamID: examID, CourseID: courseID, TotalFiles: 3, StartedAt: time.Now()}
	if err := s.CreateBatch(b); err != nil {
		t.Fatalf("CreateBatch: %v", err)
	}

	got, err := s.GetBatch("batch-1")
	if err != nil {
		t.Fatalf("GetBatch: %v", err)
	}
	if got.ProcessedCount != 0 || got.SuccessCount != 0 || got.FailedCount != 0 {
		t.Errorf("expected zero counters, got %+v", got)
	}
	if got.IsComplete() {
		t.Error("fresh batch must not be complete")
	}
	if got.CompletedAt != nil {
		t.Error("expected nil completed_at on fresh batch")
	}

	results := []model.DocumentStatus{
		{StudentNumber: strptr("20210001"), Status: model.DocumentSuccess},
		{StudentNumber: nil, Status: model.DocumentFailed, Message: "score document: adapter unavailable"},
		{StudentNumber: strptr("20210002"), Status: model.DocumentSuccess},
	}
	for i, ds := range results {
		if err := s.RecordDocumentResult("batch-1", ds); err != nil {
			t.Fatalf("RecordDocumentResult %d: %v", i, err)
		}
		got, err := s.GetBatch("batch-1")
		if err != nil {
			t.Fatalf("GetBatch after %d: %v", i, err)
		}
		// Counter invariants hold at every observable state.
		if got.ProcessedCount != got.SuccessCount+got.FailedCount {
			t.Errorf("processed %d != success %d + failed %d", got.ProcessedCount, got.SuccessCount, got.FailedCount)
		}
		if got.ProcessedCount > got.TotalFiles {
			t.Errorf("processed %d exceeds total %d", got.ProcessedCount, got.TotalFiles)
		}
		if got.ProcessedCount != i+1 {
			t.Errorf("expected processed %d, got %d", i+1, got.ProcessedCount)
		}
		if complete := got.ProcessedCount == got.TotalFiles; got.IsComplete() != complete {
			t.Errorf("IsComplete=%v with processed %d of %d", got.IsComplete(), got.ProcessedCount, got.TotalFiles)
		}
		if (got.CompletedAt != nil) != got.IsComplete() {
			t.Errorf("completed_at set=%v but complete=%v", got.CompletedAt != nil, got.IsComplete())
		}
	}

	final, _ := s.GetBatch("batch-1")
	if final.SuccessCount != 2 || final.FailedCount != 1 {
		t.Errorf("expected 2 success / 1 failed, got %d/%d", final.SuccessCount, final.FailedCount)
	}
	if len(final.Statuses) != 3 {
		t.Fatalf("expected 3 status entries, got %d", len(final.Statuses))
	}
	if final.Statuses[1].StudentNumber != nil {
		t.Error("expected nil student number on failed entry")
	}
	if final.Statuses[1].Message == "" {
		t.Error("expected failure message on failed entry")
	}

	// An increment past total_files is refused and completed_at stays put.
	stamped := *final.CompletedAt
	err = s.RecordDocumentResult("batch-1", model.DocumentStatus{Status: model.DocumentSuccess})
	if !errors.Is(err, ErrBatchComplete) {
		t.Errorf("expected ErrBatchComplete, got %v", err)
	}
	after, _ := s.GetBatch("batch-1")
	if after.ProcessedCount != 3 || len(after.Statuses) != 3 {
		t.Errorf("refused increment mutated batch: %+v", after)
	}
	if !after.CompletedAt.Equal(stamped) {
		t.Error("completed_at was re-set")
	}

	// Unknown batch IDs surface ErrNotFound.
	if _, err := s.GetBatch("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	err = s.RecordDocumentResult("nope", model.DocumentStatus{Status: model.DocumentFailed})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRecordDocumentResultConcurrent(t *testing.T) {
	s := newTestStore(t)
	courseID, examID := seedExam(t, s, nil)

	const total = 20
	b := model.Batch{ID: "batch-c", ExamID: examID, CourseID: courseID, TotalFiles: total, StartedAt: time.Now()}
	if err := s.CreateBatch(b); err != nil {
		t.Fatalf("CreateBatch: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < total; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ds := model.DocumentStatus{StudentNumber: strptr("s"), Status: model.DocumentSuccess}
			if i%4 == 0 {
				ds = model.DocumentStatus{Status: model.DocumentFailed, Message: "boom"}
			}
			if err := s.RecordDocumentResult("batch-c", ds); err != nil {
				t.Errorf("RecordDocumentResult: %v", err)
			}
		}(i)
	}
	wg.Wait()

	got, err := s.GetBatch("batch-c")
	if err != nil {
		t.Fatalf("GetBatch: %v", err)
	}
	if got.ProcessedCount != total {
		t.Errorf("expected processed %d, got %d", total, got.ProcessedCount)
	}
	if got.SuccessCount != 15 || got.FailedCount != 5 {
		t.Errorf("expected 15/5 split, got %d/%d", got.SuccessCount, got.FailedCount)
	}
	if len(got.Statuses) != total {
		t.Errorf("expected %d status entries, got %d", total, len(got.Statuses))
	}
	if !got.IsComplete() || got.CompletedAt == nil {
		t.Error("batch should be complete with completed_at set")
	}
}

func TestImportReference(t *testing.T) {
	s := newTestStore(t)

	ref := model.ReferenceImport{
		ProgramOutcomes: []model.ProgramOutcomeImport{
			{Code: "PÇ1", Description: "Engineering knowledge"},
			{Code: "PÇ2", Description: "Problem analysis"},
		},
		Courses: []model.CourseImport{{
			Code: "BLM102",
			Name: "Data Structures",
			LearningOutcomes: []model.LearningOutcomeImport{
				{Code: "ÖÇ1", Description: "Implements lists", ProgramOutcomes: []string{"PÇ1"}},
				{Code: "ÖÇ2", Description: "Analyzes complexity", ProgramOutcomes: []string{"PÇ1", "PÇ2"}},
			},
			Exams: []model.ExamImport{{
				Name: "Final",
				Questions: []model.QuestionImport{
					{Number: 1, MaxScore: 10, LearningOutcomes: []string{"ÖÇ1"}},
					{Number: 2, MaxScore: 15, LearningOutcomes: []string{"ÖÇ1", "ÖÇ2"}},
				},
			}},
		}},
	}

	if err := s.ImportReference(ref); err != nil {
		t.Fatalf("ImportReference: %v", err)
	}

	course, err := s.GetCourseByCode("BLM102")
	if err != nil {
		t.Fatalf("GetCourseByCode: %v", err)
	}
	outcomes, _ := s.ListOutcomesForCourse(course.ID)
	if len(outcomes) != 2 {
		t.Fatalf("expected 2 outcomes, got %d", len(outcomes))
	}
	exams, _ := s.ListExamsForCourse(course.ID)
	if len(exams) != 1 {
		t.Fatalf("expected 1 exam, got %d", len(exams))
	}
	questions, _ := s.ListQuestionsForExam(exams[0].ID)
	if len(questions) != 2 {
		t.Fatalf("expected 2 questions, got %d", len(questions))
	}

	// Re-declaring a program outcome is tolerated.
	if err := s.ImportReference(model.ReferenceImport{
		ProgramOutcomes: []model.ProgramOutcomeImport{{Code: "PÇ1", Description: "dup"}},
	}); err != nil {
		t.Fatalf("ImportReference duplicate program outcome: %v", err)
	}
	po, _ := s.GetProgramOutcome("PÇ1")
	if po.Description != "Engineering knowledge" {
		t.Errorf("first import should win, got %q", po.Description)
	}
}

func TestImportedFileHash(t *testing.T) {
	s := newTestStore(t)

	hash, err := s.GetImportedFileHash("/data/reference.json")
	if err != nil {
		t.Fatalf("GetImportedFileHash: %v", err)
	}
	if hash != "" {
		t.Errorf("expected empty hash, got %q", hash)
	}

	if err := s.SetImportedFileHash("/data/reference.json", "abc123"); err != nil {
		t.Fatalf("SetImportedFileHash: %v", err)
	}
	hash, _ = s.GetImportedFileHash("/data/reference.json")
	if hash != "abc123" {
		t.Errorf("expected 'abc123', got %q", hash)
	}

	if err := s.SetImportedFileHash("/data/reference.json", "def456"); err != nil {
		t.Fatalf("SetImportedFileHash update: %v", err)
	}
	hash, _ = s.GetImportedFileHash("/data/reference.json")
	if hash != "def456" {
		t.Errorf("expected 'def456', got %q", hash)
	}
}
