package models

import (
	id "refahi/pkg/domain"
	dErrors "refahi/pkg/domain-errors"
)

// QuestionKind classifies how a question is answered.
type QuestionKind string

const (
	QuestionTextual      QuestionKind = "textual"
	QuestionChoiceSingle QuestionKind = "choice_single"
	QuestionChoiceMulti  QuestionKind = "choice_multi"
)

// Option is a selectable choice on a choice question. Inactive options stay
// in place so historical answers keep resolving, but cannot be selected.
type Option struct {
	ID     id.OptionID
	Text   string
	Active bool
}

// Question is a positioned question within a survey. Order values are unique
// per survey and define the navigation sequence.
type Question struct {
	ID         id.QuestionID
	Kind       QuestionKind
	Text       string
	Order      int
	IsRequired bool
	Repeat     RepeatPolicy
	Options    []Option
}

// NewQuestion validates the kind/options invariants: textual questions carry
// no options; required choice questions need at least one active option.
func NewQuestion(questionID id.QuestionID, kind QuestionKind, text string, order int, required bool, repeat RepeatPolicy, options []Option) (Question, error) {
	if questionID.IsNil() {
		return Question{}, dErrors.New(dErrors.CodeInvalidInput, "question id is required")
	}
	if text == "" {
		return Question{}, dErrors.New(dErrors.CodeInvalidInput, "question text is required")
	}
	switch kind {
	case QuestionTextual:
		if len(options) > 0 {
			return Question{}, dErrors.New(dErrors.CodeInvariantViolation, "textual questions must not carry options")
		}
	case QuestionChoiceSingle, QuestionChoiceMulti:
		if required && countActive(options) == 0 {
			return Question{}, dErrors.New(dErrors.CodeInvariantViolation, "required choice questions need at least one active option")
		}
	default:
		return Question{}, dErrors.Newf(dErrors.CodeInvalidInput, "unknown question kind %q", kind)
	}
	return Question{
		ID:         questionID,
		Kind:       kind,
		Text:       text,
		Order:      order,
		IsRequired: required,
		Repeat:     repeat,
		Options:    options,
	}, nil
}

func countActive(options []Option) int {
	n := 0
	for _, o := range options {
		if o.Active {
			n++
		}
	}
	return n
}

// IsChoice reports whether the question is answered by selecting options.
func (q Question) IsChoice() bool {
	return q.Kind == QuestionChoiceSingle || q.Kind == QuestionChoiceMulti
}

// OptionText resolves an option label for denormalizing into answer
// snapshots, so later reporting does not rejoin mutable option definitions.
func (q Question) OptionText(optionID id.OptionID) (string, bool) {
	for _, o := range q.Options {
		if o.ID == optionID {
			return o.Text, true
		}
	}
	return "", false
}

// ValidateSelectedOptions checks an inbound selection against the question's
// kind and option set.
func (q Question) ValidateSelectedOptions(optionIDs []id.OptionID) error {
	if q.Kind == QuestionTextual {
		if len(optionIDs) > 0 {
			return dErrors.New(dErrors.CodeValidation, "textual questions accept no option selections")
		}
		return nil
	}
	if q.Kind == QuestionChoiceSingle && len(optionIDs) > 1 {
		return dErrors.Newf(dErrors.CodeValidation, "single-choice question accepts one selection, got %d", len(optionIDs))
	}
	seen := make(map[id.OptionID]struct{}, len(optionIDs))
	for _, optID := range optionIDs {
		if _, dup := seen[optID]; dup {
			return dErrors.Newf(dErrors.CodeValidation, "duplicate option selection %s", optID)
		}
		seen[optID] = struct{}{}
		active := false
		for _, o := range q.Options {
			if o.ID == optID {
				active = o.Active
				break
			}
		}
		if !active {
			return dErrors.Newf(dErrors.CodeValidation, "option %s is unknown or inactive", optID)
		}
	}
	return nil
}
