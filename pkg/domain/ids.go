// Package domain holds shared primitives used across bounded contexts:
// typed identifiers and small parse-time validated value types.
package domain

import (
	"github.com/google/uuid"

	dErrors "refahi/pkg/domain-errors"
)

// Typed IDs prevent accidental cross-assignment between entity identifiers.
// All IDs are UUIDs validated at trust boundaries via the Parse helpers.
type (
	SurveyID   uuid.UUID
	QuestionID uuid.UUID
	OptionID   uuid.UUID
	ResponseID uuid.UUID
	MemberID   uuid.UUID
)

func parseUUID(s, kind string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" id is required")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Newf(dErrors.CodeInvalidInput, "invalid %s id: %s", kind, s)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.Newf(dErrors.CodeInvalidInput, "%s id must not be the nil UUID", kind)
	}
	return u, nil
}

func NewSurveyID() SurveyID     { return SurveyID(uuid.New()) }
func NewQuestionID() QuestionID { return QuestionID(uuid.New()) }
func NewOptionID() OptionID     { return OptionID(uuid.New()) }
func NewResponseID() ResponseID { return ResponseID(uuid.New()) }
func NewMemberID() MemberID     { return MemberID(uuid.New()) }

func ParseSurveyID(s string) (SurveyID, error) {
	u, err := parseUUID(s, "survey")
	return SurveyID(u), err
}

func ParseQuestionID(s string) (QuestionID, error) {
	u, err := parseUUID(s, "question")
	return QuestionID(u), err
}

func ParseOptionID(s string) (OptionID, error) {
	u, err := parseUUID(s, "option")
	return OptionID(u), err
}

func ParseResponseID(s string) (ResponseID, error) {
	u, err := parseUUID(s, "response")
	return ResponseID(u), err
}

func ParseMemberID(s string) (MemberID, error) {
	u, err := parseUUID(s, "member")
	return MemberID(u), err
}

func (id SurveyID) String() string   { return uuid.UUID(id).String() }
func (id QuestionID) String() string { return uuid.UUID(id).String() }
func (id OptionID) String() string   { return uuid.UUID(id).String() }
func (id ResponseID) String() string { return uuid.UUID(id).String() }
func (id MemberID) String() string   { return uuid.UUID(id).String() }

func (id SurveyID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }
func (id QuestionID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id OptionID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }
func (id ResponseID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id MemberID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }
