package service

import (
	"strings"

	"refahi/internal/survey/models"
	id "refahi/pkg/domain"
	dErrors "refahi/pkg/domain-errors"
)

// IsResponseComplete reports whether every required question carries at
// least one answered slot.
func (s *Service) IsResponseComplete(survey *models.Survey, r *models.Response) bool {
	return len(missingRequired(survey, r)) == 0
}

// ValidateResponseAnswers is the submission gate. Every required question
// must have at least one answered slot, and every answered slot must still be
// well formed: selections resolve against the question's active option set
// and textual answers carry text. The second half matters for answers loaded
// from storage, which bypass the write-time checks.
func (s *Service) ValidateResponseAnswers(survey *models.Survey, r *models.Response) error {
	missing := missingRequired(survey, r)
	if len(missing) > 0 {
		msg := "required questions are unanswered:"
		for _, text := range missing {
			msg += " " + text + ";"
		}
		s.metrics.RecordPolicyDenial(models.ReasonRequiredNotAnswered)
		return models.PolicyError(models.ReasonRequiredNotAnswered, msg)
	}
	return validateAnswerShapes(survey, r)
}

func validateAnswerShapes(survey *models.Survey, r *models.Response) error {
	for _, a := range r.Answers {
		if !a.HasAnswer() {
			continue
		}
		q, ok := survey.QuestionByID(a.QuestionID)
		if !ok {
			return dErrors.Newf(dErrors.CodeValidation, "answer references unknown question %s", a.QuestionID)
		}
		optionIDs := make([]id.OptionID, 0, len(a.SelectedOptions))
		for _, sel := range a.SelectedOptions {
			optionIDs = append(optionIDs, sel.OptionID)
		}
		if err := q.ValidateSelectedOptions(optionIDs); err != nil {
			return err
		}
		switch q.Kind {
		case models.QuestionTextual:
			if strings.TrimSpace(a.TextAnswer) == "" {
				return dErrors.Newf(dErrors.CodeValidation, "textual question %q carries an empty answer", q.Text)
			}
		default:
			if len(a.SelectedOptions) == 0 {
				return dErrors.Newf(dErrors.CodeValidation, "choice question %q carries no selections", q.Text)
			}
		}
	}
	return nil
}

func missingRequired(survey *models.Survey, r *models.Response) []string {
	var missing []string
	for _, q := range survey.Questions {
		if !q.IsRequired {
			continue
		}
		if len(r.AnswersFor(q.ID)) == 0 {
			missing = append(missing, q.Text)
		}
	}
	return missing
}
