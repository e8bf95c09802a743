package models

import (
	"strings"
	"time"

	id "refahi/pkg/domain"
)

// SelectedOption captures a chosen option together with its label at answer
// time, so reports survive later edits to option definitions.
type SelectedOption struct {
	OptionID id.OptionID
	Text     string
}

// QuestionAnswer is one answer slot within a response. At most one answer
// exists per (QuestionID, RepeatIndex) pair; AnswerQuestion overwrites in
// place.
type QuestionAnswer struct {
	QuestionID      id.QuestionID
	QuestionText    string
	RepeatIndex     int
	TextAnswer      string
	SelectedOptions []SelectedOption
	AnsweredAt      time.Time
}

// HasAnswer reports whether the slot carries any content.
func (a QuestionAnswer) HasAnswer() bool {
	return strings.TrimSpace(a.TextAnswer) != "" || len(a.SelectedOptions) > 0
}
