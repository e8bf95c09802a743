package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// ArchiveSchema is the DDL for the append-only event archive.
const ArchiveSchema = `
CREATE TABLE IF NOT EXISTS survey_events (
	id UUID PRIMARY KEY,
	type TEXT NOT NULL,
	survey_id UUID NOT NULL,
	response_id UUID NOT NULL,
	participant TEXT NOT NULL,
	occurred_at TIMESTAMPTZ NOT NULL,
	attributes JSONB
);

CREATE INDEX IF NOT EXISTS idx_survey_events_survey ON survey_events(survey_id, occurred_at);
`

// PostgresArchive is an append-only archive of lifecycle events, used for
// audit queries when the broker retention has lapsed. It doubles as a Sink so
// deployments without a broker still keep a durable trail.
type PostgresArchive struct {
	db *sql.DB
}

func NewPostgresArchive(db *sql.DB) *PostgresArchive {
	return &PostgresArchive{db: db}
}

// EnsureArchiveSchema applies the DDL. Idempotent.
func EnsureArchiveSchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, ArchiveSchema)
	return err
}

func (a *PostgresArchive) Publish(ctx context.Context, event Event) error {
	var attrs []byte
	if len(event.Attributes) > 0 {
		var err error
		attrs, err = json.Marshal(event.Attributes)
		if err != nil {
			return fmt.Errorf("encode event attributes: %w", err)
		}
	}
	_, err := a.db.ExecContext(ctx, `
		INSERT INTO survey_events (id, type, survey_id, response_id, participant, occurred_at, attributes)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING`,
		event.ID, string(event.Type), event.SurveyID, event.ResponseID,
		event.Participant, event.OccurredAt, attrs,
	)
	if err != nil {
		return fmt.Errorf("archive event %s: %w", event.ID, err)
	}
	return nil
}

// ListBySurvey returns archived events for a survey in occurrence order.
func (a *PostgresArchive) ListBySurvey(ctx context.Context, surveyID string, since time.Time) ([]Event, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT id, type, survey_id, response_id, participant, occurred_at, attributes
		FROM survey_events
		WHERE survey_id = $1 AND occurred_at >= $2
		ORDER BY occurred_at`,
		surveyID, since,
	)
	if err != nil {
		return nil, fmt.Errorf("list events for survey %s: %w", surveyID, err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var (
			e     Event
			typ   string
			attrs []byte
		)
		if err := rows.Scan(&e.ID, &typ, &e.SurveyID, &e.ResponseID, &e.Participant, &e.OccurredAt, &attrs); err != nil {
			return nil, fmt.Errorf("scan event for survey %s: %w", surveyID, err)
		}
		e.Type = EventType(typ)
		if len(attrs) > 0 {
			if err := json.Unmarshal(attrs, &e.Attributes); err != nil {
				return nil, fmt.Errorf("decode attributes for event %s: %w", e.ID, err)
			}
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events for survey %s: %w", surveyID, err)
	}
	return out, nil
}

// FanoutSink publishes to multiple sinks in order and returns the first
// error. Used to pair the broker publisher with the durable archive.
type FanoutSink []Sink

func (f FanoutSink) Publish(ctx context.Context, event Event) error {
	for _, sink := range f {
		if err := sink.Publish(ctx, event); err != nil {
			return err
		}
	}
	return nil
}
