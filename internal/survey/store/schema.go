package store

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema is the DDL for the survey aggregate. Response rows carry an integer
// version column; every save is a compare-and-swap against it.
const Schema = `
CREATE TABLE IF NOT EXISTS surveys (
	id UUID PRIMARY KEY,
	title TEXT NOT NULL,
	accepting_responses BOOLEAN NOT NULL DEFAULT TRUE,
	start_at TIMESTAMPTZ,
	end_at TIMESTAMPTZ,
	max_attempts INT NOT NULL,
	allow_multiple_submissions BOOLEAN NOT NULL,
	cooldown_seconds BIGINT NOT NULL DEFAULT 0,
	allow_back_navigation BOOLEAN NOT NULL,
	audience JSONB,
	required_features TEXT[] NOT NULL DEFAULT '{}',
	required_capabilities TEXT[] NOT NULL DEFAULT '{}'
);

CREATE TABLE IF NOT EXISTS survey_questions (
	id UUID PRIMARY KEY,
	survey_id UUID NOT NULL REFERENCES surveys(id),
	kind TEXT NOT NULL,
	text TEXT NOT NULL,
	ord INT NOT NULL,
	is_required BOOLEAN NOT NULL,
	repeat_kind TEXT NOT NULL,
	repeat_max INT NOT NULL DEFAULT 0,
	UNIQUE (survey_id, ord)
);

CREATE TABLE IF NOT EXISTS survey_options (
	id UUID PRIMARY KEY,
	question_id UUID NOT NULL REFERENCES survey_questions(id),
	text TEXT NOT NULL,
	active BOOLEAN NOT NULL DEFAULT TRUE,
	ord INT NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS survey_responses (
	id UUID PRIMARY KEY,
	survey_id UUID NOT NULL REFERENCES surveys(id),
	member_id UUID,
	participant_hash TEXT,
	attempt_number INT NOT NULL,
	attempt_status TEXT NOT NULL,
	display_status TEXT NOT NULL,
	cursor_question_id UUID,
	cursor_repeat_index INT NOT NULL DEFAULT 0,
	demography JSONB,
	started_at TIMESTAMPTZ NOT NULL,
	submitted_at TIMESTAMPTZ,
	version BIGINT NOT NULL DEFAULT 1
);

CREATE INDEX IF NOT EXISTS idx_survey_responses_survey ON survey_responses(survey_id);

CREATE TABLE IF NOT EXISTS survey_answers (
	response_id UUID NOT NULL REFERENCES survey_responses(id),
	question_id UUID NOT NULL,
	repeat_index INT NOT NULL,
	question_text TEXT NOT NULL,
	text_answer TEXT NOT NULL DEFAULT '',
	selected_options JSONB,
	answered_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (response_id, question_id, repeat_index)
);
`

// EnsureSchema applies the DDL. Idempotent; used by local bootstrap and
// integration tests.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, Schema)
	return err
}
