package models

import (
	"time"

	id "refahi/pkg/domain"
)

// AttemptStatus is the authoritative lifecycle state of a response.
type AttemptStatus string

const (
	AttemptActive    AttemptStatus = "active"
	AttemptSubmitted AttemptStatus = "submitted"
	AttemptCanceled  AttemptStatus = "canceled"
	AttemptExpired   AttemptStatus = "expired"
)

// DisplayStatus mirrors AttemptStatus for presentation, with the additional
// Answering/Reviewing split used by the navigation handlers while an attempt
// is active.
type DisplayStatus string

const (
	DisplayAnswering DisplayStatus = "answering"
	DisplayReviewing DisplayStatus = "reviewing"
	DisplayCompleted DisplayStatus = "completed"
	DisplayCancelled DisplayStatus = "cancelled"
	DisplayExpired   DisplayStatus = "expired"
)

// NavigationCursor tracks where a participant is within the question
// sequence: current question plus 1-based repeat index. A nil question id
// means the cursor was never set and navigation defaults to the first
// question.
type NavigationCursor struct {
	QuestionID  id.QuestionID
	RepeatIndex int
}

// IsSet reports whether the cursor points at a question.
func (c NavigationCursor) IsSet() bool {
	return !c.QuestionID.IsNil()
}

// Response is one participant's attempt at a survey. It lives inside the
// Survey aggregate: cursor and answer mutation go through aggregate methods,
// never through direct field writes, so invariants are checked against the
// same in-memory question list in one transaction.
type Response struct {
	ID            id.ResponseID
	SurveyID      id.SurveyID
	Participant   ParticipantInfo
	AttemptNumber int
	AttemptStatus AttemptStatus
	Status        DisplayStatus
	Answers       []QuestionAnswer
	Cursor        NavigationCursor
	Demography    DemographySnapshot
	StartedAt     time.Time
	SubmittedAt   *time.Time

	// Version is the optimistic-concurrency token. The storage layer performs
	// compare-and-swap on it and surfaces a conflict when it moved.
	Version int64
}

// NewResponse starts an active attempt for the participant.
func NewResponse(responseID id.ResponseID, surveyID id.SurveyID, participant ParticipantInfo, attemptNumber int, demography DemographySnapshot, startedAt time.Time) *Response {
	return &Response{
		ID:            responseID,
		SurveyID:      surveyID,
		Participant:   participant,
		AttemptNumber: attemptNumber,
		AttemptStatus: AttemptActive,
		Status:        DisplayAnswering,
		Demography:    demography,
		StartedAt:     startedAt,
		Version:       1,
	}
}

// IsTerminal reports whether the attempt reached a final state.
func (r *Response) IsTerminal() bool {
	return r.AttemptStatus != AttemptActive
}

// CanTransitionTo is the lifecycle transition table:
// Active -> {Submitted, Canceled}; Submitted -> {Expired}; terminal states
// transition to nothing. Every status write in the aggregate goes through it.
func (r *Response) CanTransitionTo(newState AttemptStatus) bool {
	switch r.AttemptStatus {
	case AttemptActive:
		return newState == AttemptSubmitted || newState == AttemptCanceled
	case AttemptSubmitted:
		return newState == AttemptExpired
	default:
		return false
	}
}

// AnswerAt returns the answer slot for a (question, repeat index) pair.
func (r *Response) AnswerAt(questionID id.QuestionID, repeatIndex int) (*QuestionAnswer, bool) {
	for i := range r.Answers {
		if r.Answers[i].QuestionID == questionID && r.Answers[i].RepeatIndex == repeatIndex {
			return &r.Answers[i], true
		}
	}
	return nil, false
}

// AnswersFor returns all answered slots for a question, in answer order.
func (r *Response) AnswersFor(questionID id.QuestionID) []QuestionAnswer {
	var out []QuestionAnswer
	for _, a := range r.Answers {
		if a.QuestionID == questionID && a.HasAnswer() {
			out = append(out, a)
		}
	}
	return out
}

// AnsweredQuestionCount returns the number of distinct questions with at
// least one answered slot.
func (r *Response) AnsweredQuestionCount() int {
	seen := make(map[id.QuestionID]struct{})
	for _, a := range r.Answers {
		if a.HasAnswer() {
			seen[a.QuestionID] = struct{}{}
		}
	}
	return len(seen)
}

// upsertAnswer replaces the slot for (questionID, repeatIndex) or appends a
// new one. Called by the aggregate only.
func (r *Response) upsertAnswer(answer QuestionAnswer) {
	for i := range r.Answers {
		if r.Answers[i].QuestionID == answer.QuestionID && r.Answers[i].RepeatIndex == answer.RepeatIndex {
			r.Answers[i] = answer
			return
		}
	}
	r.Answers = append(r.Answers, answer)
}
