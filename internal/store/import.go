package store

import (
	"fmt"

	"github.com/emrekara/gradescan/internal/model"
)

// ImportReference loads a reference data document: program outcomes,
// courses, their learning outcomes, exams, and questions. Duplicate
// program outcome codes across files are tolerated (first import wins).
func (s *Store) ImportReference(ref model.ReferenceImport) error {
	for _, po := range ref.ProgramOutcomes {
		if _, err := s.GetProgramOutcome(po.Code); err == nil {
			continue
		}
		_, err := s.InsertProgramOutcome(model.ProgramOutcome{
			Code:        po.Code,
			Description: po.Description,
		})
		if err != nil {
			return fmt.Errorf("insert program outcome %q: %w", po.Code, err)
		}
	}

	for _, ci := range ref.Courses {
		courseID, err := s.InsertCourse(model.Course{Code: ci.Code, Name: ci.Name})
		if err != nil {
			return fmt.Errorf("insert course %q: %w", ci.Code, err)
		}

		for _, li := range ci.LearningOutcomes {
			_, err := s.InsertLearningOutcome(model.LearningOutcome{
				CourseID:            courseID,
				Code:                li.Code,
				Description:         li.Description,
				ProgramOutcomeCodes: li.ProgramOutcomes,
			})
			if err != nil {
				return fmt.Errorf("insert learning outcome %q for course %q: %w", li.Code, ci.Code, err)
			}
		}

		for _, ei := range ci.Exams {
			examID, err := s.InsertExam(model.Exam{CourseID: courseID, Name: ei.Name})
			if err != nil {
				return fmt.Errorf("insert exam %q for course %q: %w", ei.Name, ci.Code, err)
			}
			for _, qi := range ei.Questions {
				_, err := s.InsertQuestion(model.Question{
					ExamID:       examID,
					Number:       qi.Number,
					MaxScore:     qi.MaxScore,
					OutcomeCodes: qi.LearningOutcomes,
				})
				if err != nil {
					return fmt.Errorf("insert question %d of exam %q: %w", qi.Number, ei.Name, err)
				}
			}
		}
	}
	return nil
}
