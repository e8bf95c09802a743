package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"refahi/internal/survey/models"
	id "refahi/pkg/domain"
	"refahi/pkg/sentinel"
)

// PostgresStore persists Survey aggregates across the surveys, questions,
// options, responses and answers tables. SaveResponse commits all mutations
// of one response in a single transaction guarded by a version compare-and-
// swap on the response row.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// storedOption is the jsonb shape of one selected option inside an answer
// row. IDs are serialized as strings so the column stays queryable.
type storedOption struct {
	OptionID string `json:"option_id"`
	Text     string `json:"text"`
}

func (p *PostgresStore) CreateSurvey(ctx context.Context, s *models.Survey) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin create survey: %w", err)
	}
	defer tx.Rollback(ctx)

	var audience []byte
	if s.Audience != nil {
		audience, err = s.Audience.Encode()
		if err != nil {
			return fmt.Errorf("encode audience filter: %w", err)
		}
	}

	tag, err := tx.Exec(ctx, `
		INSERT INTO surveys (
			id, title, accepting_responses, start_at, end_at,
			max_attempts, allow_multiple_submissions, cooldown_seconds,
			allow_back_navigation, audience, required_features, required_capabilities
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		ON CONFLICT (id) DO NOTHING`,
		uuid.UUID(s.ID), s.Title, s.AcceptingResponses, s.StartAt, s.EndAt,
		s.Policy.MaxAttemptsPerMember, s.Policy.AllowMultipleSubmissions,
		int64(s.Policy.CoolDown/time.Second), s.Policy.AllowBackNavigation,
		audience, s.RequiredFeatures, s.RequiredCapabilities,
	)
	if err != nil {
		return fmt.Errorf("insert survey %s: %w", s.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("survey %s: %w", s.ID, sentinel.ErrConflict)
	}

	for _, q := range s.Questions {
		if _, err := tx.Exec(ctx, `
			INSERT INTO survey_questions (id, survey_id, kind, text, ord, is_required, repeat_kind, repeat_max)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			uuid.UUID(q.ID), uuid.UUID(s.ID), string(q.Kind), q.Text, q.Order,
			q.IsRequired, string(q.Repeat.Kind), q.Repeat.MaxRepeats,
		); err != nil {
			return fmt.Errorf("insert question %s: %w", q.ID, err)
		}
		for i, o := range q.Options {
			if _, err := tx.Exec(ctx, `
				INSERT INTO survey_options (id, question_id, text, active, ord)
				VALUES ($1,$2,$3,$4,$5)`,
				uuid.UUID(o.ID), uuid.UUID(q.ID), o.Text, o.Active, i,
			); err != nil {
				return fmt.Errorf("insert option %s: %w", o.ID, err)
			}
		}
	}

	for _, r := range s.Responses {
		if err := insertResponse(ctx, tx, r); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit create survey: %w", err)
	}
	return nil
}

func (p *PostgresStore) GetWithResponses(ctx context.Context, surveyID id.SurveyID) (*models.Survey, error) {
	return p.loadSurvey(ctx, surveyID)
}

func (p *PostgresStore) GetByResponseID(ctx context.Context, responseID id.ResponseID) (*models.Survey, error) {
	var surveyID uuid.UUID
	err := p.pool.QueryRow(ctx,
		`SELECT survey_id FROM survey_responses WHERE id = $1`,
		uuid.UUID(responseID),
	).Scan(&surveyID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("response %s: %w", responseID, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("lookup owning survey for response %s: %w", responseID, err)
	}
	return p.loadSurvey(ctx, id.SurveyID(surveyID))
}

func (p *PostgresStore) AddResponse(ctx context.Context, s *models.Survey, responseID id.ResponseID) error {
	r, ok := s.Responses[responseID]
	if !ok {
		return fmt.Errorf("response %s: %w", responseID, sentinel.ErrNotFound)
	}
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin add response: %w", err)
	}
	defer tx.Rollback(ctx)

	var exists bool
	if err := tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM survey_responses WHERE id = $1)`,
		uuid.UUID(responseID),
	).Scan(&exists); err != nil {
		return fmt.Errorf("check response %s: %w", responseID, err)
	}
	if exists {
		return fmt.Errorf("response %s: %w", responseID, sentinel.ErrConflict)
	}
	if err := insertResponse(ctx, tx, r); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit add response: %w", err)
	}
	return nil
}

func (p *PostgresStore) SaveResponse(ctx context.Context, s *models.Survey, responseID id.ResponseID) error {
	r, ok := s.Responses[responseID]
	if !ok {
		return fmt.Errorf("response %s: %w", responseID, sentinel.ErrNotFound)
	}
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin save response: %w", err)
	}
	defer tx.Rollback(ctx)

	var cursorQuestion *uuid.UUID
	if r.Cursor.IsSet() {
		q := uuid.UUID(r.Cursor.QuestionID)
		cursorQuestion = &q
	}
	tag, err := tx.Exec(ctx, `
		UPDATE survey_responses SET
			attempt_status = $1,
			display_status = $2,
			cursor_question_id = $3,
			cursor_repeat_index = $4,
			submitted_at = $5,
			version = version + 1
		WHERE id = $6 AND version = $7`,
		string(r.AttemptStatus), string(r.Status),
		cursorQuestion, r.Cursor.RepeatIndex, r.SubmittedAt,
		uuid.UUID(responseID), r.Version,
	)
	if err != nil {
		return fmt.Errorf("update response %s: %w", responseID, err)
	}
	if tag.RowsAffected() == 0 {
		var current int64
		err := tx.QueryRow(ctx,
			`SELECT version FROM survey_responses WHERE id = $1`,
			uuid.UUID(responseID),
		).Scan(&current)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("response %s: %w", responseID, sentinel.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("read response %s version: %w", responseID, err)
		}
		return fmt.Errorf("response %s version %d moved to %d: %w", responseID, r.Version, current, sentinel.ErrConflict)
	}

	// Answer slots are replaced wholesale. The set is small (one row per
	// answered repeat) and the swap keeps upsert edge cases out of SQL.
	if _, err := tx.Exec(ctx,
		`DELETE FROM survey_answers WHERE response_id = $1`,
		uuid.UUID(responseID),
	); err != nil {
		return fmt.Errorf("clear answers for response %s: %w", responseID, err)
	}
	for _, a := range r.Answers {
		selected, err := encodeSelectedOptions(a.SelectedOptions)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO survey_answers (response_id, question_id, repeat_index, question_text, text_answer, selected_options, answered_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			uuid.UUID(responseID), uuid.UUID(a.QuestionID), a.RepeatIndex,
			a.QuestionText, a.TextAnswer, selected, a.AnsweredAt,
		); err != nil {
			return fmt.Errorf("insert answer for response %s question %s: %w", responseID, a.QuestionID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit save response: %w", err)
	}
	r.Version++
	return nil
}

func insertResponse(ctx context.Context, tx pgx.Tx, r *models.Response) error {
	var memberID *uuid.UUID
	var hash *string
	if r.Participant.IsAnonymous {
		h := r.Participant.ParticipantHash
		hash = &h
	} else {
		m := uuid.UUID(r.Participant.MemberID)
		memberID = &m
	}
	var cursorQuestion *uuid.UUID
	if r.Cursor.IsSet() {
		q := uuid.UUID(r.Cursor.QuestionID)
		cursorQuestion = &q
	}
	var demography []byte
	if !r.Demography.IsEmpty() {
		var err error
		demography, err = json.Marshal(r.Demography)
		if err != nil {
			return fmt.Errorf("encode demography for response %s: %w", r.ID, err)
		}
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO survey_responses (
			id, survey_id, member_id, participant_hash, attempt_number,
			attempt_status, display_status, cursor_question_id, cursor_repeat_index,
			demography, started_at, submitted_at, version
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		uuid.UUID(r.ID), uuid.UUID(r.SurveyID), memberID, hash, r.AttemptNumber,
		string(r.AttemptStatus), string(r.Status), cursorQuestion, r.Cursor.RepeatIndex,
		demography, r.StartedAt, r.SubmittedAt, r.Version,
	); err != nil {
		return fmt.Errorf("insert response %s: %w", r.ID, err)
	}
	for _, a := range r.Answers {
		selected, err := encodeSelectedOptions(a.SelectedOptions)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO survey_answers (response_id, question_id, repeat_index, question_text, text_answer, selected_options, answered_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			uuid.UUID(r.ID), uuid.UUID(a.QuestionID), a.RepeatIndex,
			a.QuestionText, a.TextAnswer, selected, a.AnsweredAt,
		); err != nil {
			return fmt.Errorf("insert answer for response %s question %s: %w", r.ID, a.QuestionID, err)
		}
	}
	return nil
}

func encodeSelectedOptions(selected []models.SelectedOption) ([]byte, error) {
	if len(selected) == 0 {
		return nil, nil
	}
	out := make([]storedOption, len(selected))
	for i, so := range selected {
		out[i] = storedOption{OptionID: so.OptionID.String(), Text: so.Text}
	}
	data, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("encode selected options: %w", err)
	}
	return data, nil
}

func decodeSelectedOptions(data []byte) ([]models.SelectedOption, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var stored []storedOption
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("decode selected options: %w", err)
	}
	out := make([]models.SelectedOption, len(stored))
	for i, so := range stored {
		optID, err := id.ParseOptionID(so.OptionID)
		if err != nil {
			return nil, fmt.Errorf("decode selected option id %q: %w", so.OptionID, err)
		}
		out[i] = models.SelectedOption{OptionID: optID, Text: so.Text}
	}
	return out, nil
}

func (p *PostgresStore) loadSurvey(ctx context.Context, surveyID id.SurveyID) (*models.Survey, error) {
	s := &models.Survey{
		ID:        surveyID,
		Responses: make(map[id.ResponseID]*models.Response),
	}

	var (
		audience        []byte
		cooldownSeconds int64
	)
	err := p.pool.QueryRow(ctx, `
		SELECT title, accepting_responses, start_at, end_at,
			max_attempts, allow_multiple_submissions, cooldown_seconds,
			allow_back_navigation, audience, required_features, required_capabilities
		FROM surveys WHERE id = $1`,
		uuid.UUID(surveyID),
	).Scan(
		&s.Title, &s.AcceptingResponses, &s.StartAt, &s.EndAt,
		&s.Policy.MaxAttemptsPerMember, &s.Policy.AllowMultipleSubmissions, &cooldownSeconds,
		&s.Policy.AllowBackNavigation, &audience, &s.RequiredFeatures, &s.RequiredCapabilities,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("survey %s: %w", surveyID, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load survey %s: %w", surveyID, err)
	}
	s.Policy.CoolDown = time.Duration(cooldownSeconds) * time.Second
	if len(audience) > 0 {
		filter, err := models.ParseAudienceFilter(audience)
		if err != nil {
			return nil, fmt.Errorf("load survey %s: %w", surveyID, err)
		}
		s.Audience = &filter
	}

	if err := p.loadQuestions(ctx, s); err != nil {
		return nil, err
	}
	if err := p.loadResponses(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

func (p *PostgresStore) loadQuestions(ctx context.Context, s *models.Survey) error {
	rows, err := p.pool.Query(ctx, `
		SELECT id, kind, text, ord, is_required, repeat_kind, repeat_max
		FROM survey_questions WHERE survey_id = $1 ORDER BY ord`,
		uuid.UUID(s.ID),
	)
	if err != nil {
		return fmt.Errorf("load questions for survey %s: %w", s.ID, err)
	}
	defer rows.Close()

	byID := make(map[id.QuestionID]int)
	for rows.Next() {
		var (
			qid       uuid.UUID
			kind      string
			repeatK   string
			repeatMax int
			q         models.Question
		)
		if err := rows.Scan(&qid, &kind, &q.Text, &q.Order, &q.IsRequired, &repeatK, &repeatMax); err != nil {
			return fmt.Errorf("scan question for survey %s: %w", s.ID, err)
		}
		q.ID = id.QuestionID(qid)
		q.Kind = models.QuestionKind(kind)
		q.Repeat = models.RepeatPolicy{Kind: models.RepeatKind(repeatK), MaxRepeats: repeatMax}
		byID[q.ID] = len(s.Questions)
		s.Questions = append(s.Questions, q)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate questions for survey %s: %w", s.ID, err)
	}

	optRows, err := p.pool.Query(ctx, `
		SELECT o.id, o.question_id, o.text, o.active
		FROM survey_options o
		JOIN survey_questions q ON q.id = o.question_id
		WHERE q.survey_id = $1
		ORDER BY o.ord`,
		uuid.UUID(s.ID),
	)
	if err != nil {
		return fmt.Errorf("load options for survey %s: %w", s.ID, err)
	}
	defer optRows.Close()

	for optRows.Next() {
		var (
			optID uuid.UUID
			qid   uuid.UUID
			o     models.Option
		)
		if err := optRows.Scan(&optID, &qid, &o.Text, &o.Active); err != nil {
			return fmt.Errorf("scan option for survey %s: %w", s.ID, err)
		}
		o.ID = id.OptionID(optID)
		idx, ok := byID[id.QuestionID(qid)]
		if !ok {
			continue
		}
		s.Questions[idx].Options = append(s.Questions[idx].Options, o)
	}
	if err := optRows.Err(); err != nil {
		return fmt.Errorf("iterate options for survey %s: %w", s.ID, err)
	}
	return nil
}

func (p *PostgresStore) loadResponses(ctx context.Context, s *models.Survey) error {
	rows, err := p.pool.Query(ctx, `
		SELECT id, member_id, participant_hash, attempt_number,
			attempt_status, display_status, cursor_question_id, cursor_repeat_index,
			demography, started_at, submitted_at, version
		FROM survey_responses WHERE survey_id = $1`,
		uuid.UUID(s.ID),
	)
	if err != nil {
		return fmt.Errorf("load responses for survey %s: %w", s.ID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			rid            uuid.UUID
			memberID       *uuid.UUID
			hash           *string
			attemptStatus  string
			displayStatus  string
			cursorQuestion *uuid.UUID
			demography     []byte
			r              models.Response
		)
		if err := rows.Scan(
			&rid, &memberID, &hash, &r.AttemptNumber,
			&attemptStatus, &displayStatus, &cursorQuestion, &r.Cursor.RepeatIndex,
			&demography, &r.StartedAt, &r.SubmittedAt, &r.Version,
		); err != nil {
			return fmt.Errorf("scan response for survey %s: %w", s.ID, err)
		}
		r.ID = id.ResponseID(rid)
		r.SurveyID = s.ID
		r.AttemptStatus = models.AttemptStatus(attemptStatus)
		r.Status = models.DisplayStatus(displayStatus)
		if cursorQuestion != nil {
			r.Cursor.QuestionID = id.QuestionID(*cursorQuestion)
		}
		switch {
		case hash != nil && *hash != "":
			r.Participant = models.ParticipantInfo{IsAnonymous: true, ParticipantHash: *hash}
		case memberID != nil:
			r.Participant = models.ParticipantInfo{MemberID: id.MemberID(*memberID)}
		}
		if len(demography) > 0 {
			if err := json.Unmarshal(demography, &r.Demography); err != nil {
				return fmt.Errorf("decode demography for response %s: %w", r.ID, err)
			}
		}
		resp := r
		s.Responses[resp.ID] = &resp
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate responses for survey %s: %w", s.ID, err)
	}

	return p.loadAnswers(ctx, s)
}

func (p *PostgresStore) loadAnswers(ctx context.Context, s *models.Survey) error {
	rows, err := p.pool.Query(ctx, `
		SELECT a.response_id, a.question_id, a.repeat_index, a.question_text,
			a.text_answer, a.selected_options, a.answered_at
		FROM survey_answers a
		JOIN survey_responses r ON r.id = a.response_id
		WHERE r.survey_id = $1
		ORDER BY a.answered_at`,
		uuid.UUID(s.ID),
	)
	if err != nil {
		return fmt.Errorf("load answers for survey %s: %w", s.ID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			rid      uuid.UUID
			qid      uuid.UUID
			selected []byte
			a        models.QuestionAnswer
		)
		if err := rows.Scan(&rid, &qid, &a.RepeatIndex, &a.QuestionText, &a.TextAnswer, &selected, &a.AnsweredAt); err != nil {
			return fmt.Errorf("scan answer for survey %s: %w", s.ID, err)
		}
		a.QuestionID = id.QuestionID(qid)
		a.SelectedOptions, err = decodeSelectedOptions(selected)
		if err != nil {
			return fmt.Errorf("response %s question %s: %w", rid, qid, err)
		}
		if r, ok := s.Responses[id.ResponseID(rid)]; ok {
			r.Answers = append(r.Answers, a)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate answers for survey %s: %w", s.ID, err)
	}
	return nil
}
