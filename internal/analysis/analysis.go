package analysis

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/emrekara/gradescan/internal/model"
	"github.com/emrekara/gradescan/internal/store"

	goi18n "github.com/nicksnyder/go-i18n/v2/i18n"
)

// Achievement bands used by the summary generator.
const (
	ThresholdWeak   = 60.0
	ThresholdStrong = 80.0
)

// Aggregator computes achievement rollups from score records. All methods
// are read-only and recompute from current records on every call; nothing
// is cached or persisted above the question level.
type Aggregator struct {
	store *store.Store
	loc   *goi18n.Localizer
}

// New creates an aggregator. The localizer drives the summary language and
// is injected at construction.
func New(s *store.Store, loc *goi18n.Localizer) *Aggregator {
	return &Aggregator{store: s, loc: loc}
}

// QuestionAnalysis returns one row per question of the exam.
func (a *Aggregator) QuestionAnalysis(examID int64) ([]model.QuestionRow, error) {
	questions, err := a.questionStats(examID)
	if err != nil {
		return nil, err
	}

	var rows []model.QuestionRow
	for _, qs := range questions {
		row := model.QuestionRow{
			QuestionID:   qs.question.ID,
			Number:       qs.question.Number,
			MaxScore:     qs.question.MaxScore,
			Attempts:     qs.attempts,
			AverageScore: qs.average,
			SuccessRate:  qs.successRate,
		}
		if len(qs.question.OutcomeCodes) > 0 {
			// Display simplification: the table shows the first mapped code
			// only; the rollups below use the full mapping.
			row.OutcomeCode = qs.question.OutcomeCodes[0]
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// OutcomeAnalysis returns one row per learning outcome of the course that
// has at least one scored contributing question, across all exams of the
// course. Every contributing question counts equally regardless of its
// point value; this unweighted averaging is the accreditation convention,
// not an accident.
func (a *Aggregator) OutcomeAnalysis(courseID int64) ([]model.OutcomeRow, error) {
	outcomes, err := a.store.ListOutcomesForCourse(courseID)
	if err != nil {
		return nil, err
	}
	exams, err := a.store.ListExamsForCourse(courseID)
	if err != nil {
		return nil, err
	}

	rates := make(map[string][]float64)
	for _, exam := range exams {
		questions, err := a.questionStats(exam.ID)
		if err != nil {
			return nil, err
		}
		for _, qs := range questions {
			if qs.successRate == nil {
				continue
			}
			for _, code := range qs.question.OutcomeCodes {
				rates[code] = append(rates[code], *qs.successRate)
			}
		}
	}

	var rows []model.OutcomeRow
	for _, lo := range outcomes {
		contributing := rates[lo.Code]
		if len(contributing) == 0 {
			// No data is not zero: the outcome is omitted entirely.
			continue
		}
		rows = append(rows, model.OutcomeRow{
			Code:          lo.Code,
			Description:   lo.Description,
			Success:       mean(contributing),
			QuestionCount: len(contributing),
		})
	}
	return rows, nil
}

// ProgramAnalysis returns one row per program outcome that at least one
// learning outcome of the course contributes to. Program achievement exists
// only transitively; a program outcome with no contributing learning
// outcome is omitted, never reported as zero.
func (a *Aggregator) ProgramAnalysis(courseID int64) ([]model.ProgramRow, error) {
	outcomeRows, err := a.OutcomeAnalysis(courseID)
	if err != nil {
		return nil, err
	}
	outcomes, err := a.store.ListOutcomesForCourse(courseID)
	if err != nil {
		return nil, err
	}

	programCodes := make(map[string][]string)
	for _, lo := range outcomes {
		for _, pc := range lo.ProgramOutcomeCodes {
			programCodes[pc] = append(programCodes[pc], lo.Code)
		}
	}

	successByOutcome := make(map[string]float64, len(outcomeRows))
	for _, row := range outcomeRows {
		successByOutcome[row.Code] = row.Success
	}

	var rows []model.ProgramRow
	for pc, loCodes := range programCodes {
		var contributing []float64
		for _, code := range loCodes {
			if success, ok := successByOutcome[code]; ok {
				contributing = append(contributing, success)
			}
		}
		if len(contributing) == 0 {
			continue
		}
		row := model.ProgramRow{
			Code:                 pc,
			Success:              mean(contributing),
			ContributingOutcomes: len(contributing),
		}
		po, err := a.store.GetProgramOutcome(pc)
		switch {
		case err == nil:
			row.Description = po.Description
		case !errors.Is(err, store.ErrNotFound):
			return nil, err
		}
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Code < rows[j].Code })
	return rows, nil
}

// Report bundles all three analysis levels plus the summary for one exam.
func (a *Aggregator) Report(examID int64) (*model.AnalysisReport, error) {
	exam, err := a.store.GetExam(examID)
	if err != nil {
		return nil, err
	}

	questionRows, err := a.QuestionAnalysis(examID)
	if err != nil {
		return nil, fmt.Errorf("question analysis: %w", err)
	}
	outcomeRows, err := a.OutcomeAnalysis(exam.CourseID)
	if err != nil {
		return nil, fmt.Errorf("outcome analysis: %w", err)
	}
	programRows, err := a.ProgramAnalysis(exam.CourseID)
	if err != nil {
		return nil, fmt.Errorf("program analysis: %w", err)
	}

	return &model.AnalysisReport{
		ExamID:                  examID,
		CourseID:                exam.CourseID,
		QuestionAnalysis:        questionRows,
		LearningOutcomeAnalysis: outcomeRows,
		ProgramOutcomeAnalysis:  programRows,
		Summary:                 a.Summary(questionRows, outcomeRows, programRows),
	}, nil
}

type questionStat struct {
	question    model.Question
	attempts    int
	average     float64
	successRate *float64
}

// questionStats gathers attempts, average, and success rate per question of
// an exam. The success rate is nil (absent, never zero) when the question
// has no attempts or a zero max score.
func (a *Aggregator) questionStats(examID int64) ([]questionStat, error) {
	questions, err := a.store.ListQuestionsForExam(examID)
	if err != nil {
		return nil, err
	}
	records, err := a.store.ListScoresForExam(examID)
	if err != nil {
		return nil, err
	}

	scores := make(map[int64][]float64)
	for _, rec := range records {
		scores[rec.QuestionID] = append(scores[rec.QuestionID], rec.Score)
	}

	stats := make([]questionStat, 0, len(questions))
	for _, q := range questions {
		qs := questionStat{question: q, attempts: len(scores[q.ID])}
		if qs.attempts > 0 {
			qs.average = mean(scores[q.ID])
			if q.MaxScore > 0 {
				rate := clamp(math.Round(100*qs.average/q.MaxScore), 0, 100)
				qs.successRate = &rate
			}
		}
		stats = append(stats, qs)
	}
	return stats, nil
}

func mean(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
