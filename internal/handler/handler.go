package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/emrekara/gradescan/internal/analysis"
	"github.com/emrekara/gradescan/internal/batch"
	"github.com/emrekara/gradescan/internal/model"
	"github.com/emrekara/gradescan/internal/store"
)

// maxUploadBytes caps one bulk upload request.
const maxUploadBytes = 256 << 20

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store   *store.Store
	tracker *batch.Tracker
	agg     *analysis.Aggregator
}

// New creates a new Handler.
func New(s *store.Store, tracker *batch.Tracker, agg *analysis.Aggregator) *Handler {
	return &Handler{store: s, tracker: tracker, agg: agg}
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/api/healthz", h.handleHealth)
	r.Route("/api/exams/{examID}", func(r chi.Router) {
		r.Post("/batches", h.handleStartBatch)
		r.Get("/batches/{batchID}", h.handleBatchStatus)
		r.Get("/analysis", h.handleAnalysis)
		r.Post("/scores", h.handleManualScores)
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleStartBatch(w http.ResponseWriter, r *http.Request) {
	examID, err := examIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid exam ID")
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "parse upload: "+err.Error())
		return
	}

	var documents [][]byte
	for _, fh := range r.MultipartForm.File["files"] {
		f, err := fh.Open()
		if err != nil {
			writeError(w, http.StatusBadRequest, "open uploaded file: "+err.Error())
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			writeError(w, http.StatusBadRequest, "read uploaded file: "+err.Error())
			return
		}
		documents = append(documents, data)
	}

	b, err := h.tracker.Start(r.Context(), examID, documents)
	switch {
	case errors.Is(err, batch.ErrUnknownExam):
		writeError(w, http.StatusNotFound, err.Error())
		return
	case errors.Is(err, batch.ErrEmptyBatch):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		slog.Error("start batch", "exam_id", examID, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"batch_id":    b.ID,
		"total_files": b.TotalFiles,
	})
}

// batchResponse adds the derived completion flag to the persisted snapshot.
type batchResponse struct {
	*model.Batch
	IsComplete bool `json:"is_complete"`
}

func (h *Handler) handleBatchStatus(w http.ResponseWriter, r *http.Request) {
	examID, err := examIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid exam ID")
		return
	}

	b, err := h.tracker.Status(chi.URLParam(r, "batchID"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if b.ExamID != examID {
		writeError(w, http.StatusNotFound, "batch does not belong to this exam")
		return
	}

	writeJSON(w, http.StatusOK, batchResponse{Batch: b, IsComplete: b.IsComplete()})
}

func (h *Handler) handleAnalysis(w http.ResponseWriter, r *http.Request) {
	examID, err := examIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid exam ID")
		return
	}

	report, err := h.agg.Report(examID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		slog.Error("exam analysis", "exam_id", examID, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, report)
}

// manualScoresRequest is the body of a manual or single-document score
// entry. It writes through the same upsert contract as batch scoring.
type manualScoresRequest struct {
	StudentNumber string `json:"student_number"`
	Scores        []struct {
		QuestionNumber int     `json:"question_number"`
		Score          float64 `json:"score"`
	} `json:"scores"`
}

func (h *Handler) handleManualScores(w http.ResponseWriter, r *http.Request) {
	examID, err := examIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid exam ID")
		return
	}
	if _, err := h.store.GetExam(examID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	var req manualScoresRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "decode request: "+err.Error())
		return
	}
	if req.StudentNumber == "" {
		writeError(w, http.StatusBadRequest, "student_number is required")
		return
	}
	if len(req.Scores) == 0 {
		writeError(w, http.StatusBadRequest, "scores must not be empty")
		return
	}

	questions, err := h.store.ListQuestionsForExam(examID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	byNumber := make(map[int]int64, len(questions))
	for _, q := range questions {
		byNumber[q.Number] = q.ID
	}

	records := make([]model.ScoreRecord, 0, len(req.Scores))
	for _, sc := range req.Scores {
		questionID, ok := byNumber[sc.QuestionNumber]
		if !ok {
			writeError(w, http.StatusBadRequest, "exam has no question "+strconv.Itoa(sc.QuestionNumber))
			return
		}
		if sc.Score < 0 {
			writeError(w, http.StatusBadRequest, "score must not be negative")
			return
		}
		records = append(records, model.ScoreRecord{
			StudentNumber: req.StudentNumber,
			ExamID:        examID,
			QuestionID:    questionID,
			Score:         sc.Score,
		})
	}

	for _, rec := range records {
		if err := h.store.UpsertScoreRecord(rec); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]int{"updated": len(records)})
}

func examIDParam(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "examID"), 10, 64)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
