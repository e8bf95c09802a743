// Package events defines the survey lifecycle events published to the
// message broker for downstream consumers (BI, notification fan-out).
package events

import (
	"time"

	"github.com/google/uuid"

	id "refahi/pkg/domain"
)

// EventType names a survey lifecycle event.
type EventType string

const (
	TypeResponseStarted   EventType = "survey.response.started"
	TypeQuestionAnswered  EventType = "survey.question.answered"
	TypeResponseSubmitted EventType = "survey.response.submitted"
	TypeResponseCancelled EventType = "survey.response.cancelled"
	TypeResponseExpired   EventType = "survey.response.expired"
)

// Event is one survey lifecycle fact. Participant carries the namespaced
// identity key, never a raw member id or full anonymous hash, so the event
// stream stays privacy-safe.
type Event struct {
	ID          string            `json:"id"`
	Type        EventType         `json:"type"`
	SurveyID    string            `json:"survey_id"`
	ResponseID  string            `json:"response_id"`
	Participant string            `json:"participant"`
	OccurredAt  time.Time         `json:"occurred_at"`
	Attributes  map[string]string `json:"attributes,omitempty"`
}

// New builds an event with a fresh id.
func New(eventType EventType, surveyID id.SurveyID, responseID id.ResponseID, participantKey string, occurredAt time.Time) Event {
	return Event{
		ID:          uuid.NewString(),
		Type:        eventType,
		SurveyID:    surveyID.String(),
		ResponseID:  responseID.String(),
		Participant: participantKey,
		OccurredAt:  occurredAt,
	}
}

// WithAttribute attaches a key/value pair for consumers.
func (e Event) WithAttribute(key, value string) Event {
	attrs := make(map[string]string, len(e.Attributes)+1)
	for k, v := range e.Attributes {
		attrs[k] = v
	}
	attrs[key] = value
	e.Attributes = attrs
	return e
}
