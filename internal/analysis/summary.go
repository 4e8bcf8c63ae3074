package analysis

import (
	"strings"

	"github.com/emrekara/gradescan/internal/i18n"
	"github.com/emrekara/gradescan/internal/model"
)

// Summary derives the threshold-driven recommendation text from computed
// rows: below 60% is weak, 60-79% adequate, 80% and above strong. Weak
// items are enumerated by code; with no scored data at all a fixed
// insufficient-data message is emitted instead of an error. The outcome and
// program rows span the whole course, so scores from a sibling exam count
// as data even when this exam has no attempts yet.
func (a *Aggregator) Summary(questionRows []model.QuestionRow, outcomeRows []model.OutcomeRow, programRows []model.ProgramRow) model.Summary {
	hasData := len(outcomeRows) > 0 || len(programRows) > 0
	for _, row := range questionRows {
		if row.Attempts > 0 {
			hasData = true
			break
		}
	}
	if !hasData {
		return model.Summary{Recommendations: i18n.T(a.loc, "summary_insufficient")}
	}

	var weakOutcomes, weakPrograms []string
	for _, row := range outcomeRows {
		if row.Success < ThresholdWeak {
			weakOutcomes = append(weakOutcomes, row.Code)
		}
	}
	for _, row := range programRows {
		if row.Success < ThresholdWeak {
			weakPrograms = append(weakPrograms, row.Code)
		}
	}

	var parts []string
	if len(weakOutcomes) > 0 {
		parts = append(parts, i18n.Td(a.loc, "summary_weak_outcomes", map[string]any{
			"Threshold": int(ThresholdWeak),
			"Codes":     strings.Join(weakOutcomes, ", "),
		}))
	}
	if len(weakPrograms) > 0 {
		parts = append(parts, i18n.Td(a.loc, "summary_weak_programs", map[string]any{
			"Threshold": int(ThresholdWeak),
			"Codes":     strings.Join(weakPrograms, ", "),
		}))
	}
	if len(parts) == 0 {
		parts = append(parts, i18n.T(a.loc, "summary_all_adequate"))
	}

	return model.Summary{Recommendations: strings.Join(parts, " ")}
}
