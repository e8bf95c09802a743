package rules

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"refahi/internal/survey/models"
	id "refahi/pkg/domain"
	dErrors "refahi/pkg/domain-errors"
)

func testSurvey(t *testing.T, maxAttempts int, coolDown time.Duration, questions ...models.Question) *models.Survey {
	t.Helper()
	policy, err := models.NewParticipationPolicy(maxAttempts, false, coolDown, true)
	require.NoError(t, err)
	s, err := models.NewSurvey(id.NewSurveyID(), "rules", questions, policy)
	require.NoError(t, err)
	return s
}

func memberParticipant(t *testing.T) models.ParticipantInfo {
	t.Helper()
	p, err := models.ParticipantForMember(id.NewMemberID())
	require.NoError(t, err)
	return p
}

func responseFor(t *testing.T, s *models.Survey, p models.ParticipantInfo, attempt int) *models.Response {
	t.Helper()
	r := models.NewResponse(id.NewResponseID(), s.ID, p, attempt, models.DemographySnapshot{}, time.Now())
	require.NoError(t, s.AddResponse(r))
	return r
}

func TestCanParticipantParticipate(t *testing.T) {
	now := time.Now()

	t.Run("all gates pass", func(t *testing.T) {
		s := testSurvey(t, 2, time.Hour)
		last := now.Add(-2 * time.Hour)
		assert.True(t, CanParticipantParticipate(s, 1, &last, now))
	})

	t.Run("survey not accepting", func(t *testing.T) {
		s := testSurvey(t, 2, 0)
		s.AcceptingResponses = false
		assert.False(t, CanParticipantParticipate(s, 0, nil, now))
	})

	t.Run("attempt limit reached", func(t *testing.T) {
		s := testSurvey(t, 2, 0)
		assert.False(t, CanParticipantParticipate(s, 2, nil, now))
	})

	t.Run("cooldown still running", func(t *testing.T) {
		s := testSurvey(t, 5, time.Hour)
		last := now.Add(-10 * time.Minute)
		assert.False(t, CanParticipantParticipate(s, 1, &last, now))
	})

	t.Run("no prior attempt skips cooldown", func(t *testing.T) {
		s := testSurvey(t, 5, time.Hour)
		assert.True(t, CanParticipantParticipate(s, 0, nil, now))
	})
}

func TestValidateNoInterferenceBetweenParticipants(t *testing.T) {
	s := testSurvey(t, 5, 0)
	member := memberParticipant(t)
	responseFor(t, s, member, 1)

	t.Run("same participant same attempt collides", func(t *testing.T) {
		err := ValidateNoInterferenceBetweenParticipants(s.ResponsesList(), member, 1)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
	})

	t.Run("same participant next attempt is fine", func(t *testing.T) {
		assert.NoError(t, ValidateNoInterferenceBetweenParticipants(s.ResponsesList(), member, 2))
	})

	t.Run("anonymous prefix collision is rejected", func(t *testing.T) {
		// Known-approximate behavior: only the first 8 characters are
		// compared, so these two distinct hashes interfere.
		existing, err := models.ParticipantForAnonymous("abcdef12-first")
		require.NoError(t, err)
		incoming, err := models.ParticipantForAnonymous("abcdef12-second")
		require.NoError(t, err)

		s2 := testSurvey(t, 5, 0)
		responseFor(t, s2, existing, 1)
		err = ValidateNoInterferenceBetweenParticipants(s2.ResponsesList(), incoming, 1)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
	})

	t.Run("distinct anonymous prefixes coexist", func(t *testing.T) {
		existing, err := models.ParticipantForAnonymous("11111111-first")
		require.NoError(t, err)
		incoming, err := models.ParticipantForAnonymous("22222222-second")
		require.NoError(t, err)

		s2 := testSurvey(t, 5, 0)
		responseFor(t, s2, existing, 1)
		assert.NoError(t, ValidateNoInterferenceBetweenParticipants(s2.ResponsesList(), incoming, 1))
	})
}

func TestValidateQuestionRepeats(t *testing.T) {
	repeat, err := models.BoundedRepeat(2)
	require.NoError(t, err)
	q, err := models.NewQuestion(id.NewQuestionID(), models.QuestionTextual, "deps", 1, false, repeat, nil)
	require.NoError(t, err)
	s := testSurvey(t, 5, 0, q)
	r := responseFor(t, s, memberParticipant(t), 1)

	t.Run("within cap passes", func(t *testing.T) {
		require.NoError(t, s.SetResponseAnswer(r.ID, q.ID, "", "one", nil, time.Now()))
		assert.NoError(t, ValidateQuestionRepeats(s, r))
	})

	t.Run("out-of-policy index fails", func(t *testing.T) {
		// Bypass the aggregate to simulate a corrupted row.
		r.Answers = append(r.Answers, models.QuestionAnswer{QuestionID: q.ID, RepeatIndex: 3, TextAnswer: "too many"})
		err := ValidateQuestionRepeats(s, r)
		require.Error(t, err)
		assert.True(t, models.HasReason(err, models.ReasonInvalidRepeatIndex))
	})
}

func TestCanTransitionResponseState(t *testing.T) {
	s := testSurvey(t, 5, 0)
	r := responseFor(t, s, memberParticipant(t), 1)

	t.Run("active transitions", func(t *testing.T) {
		assert.True(t, CanTransitionResponseState(r, models.AttemptSubmitted))
		assert.True(t, CanTransitionResponseState(r, models.AttemptCanceled))
		assert.False(t, CanTransitionResponseState(r, models.AttemptExpired))
	})

	t.Run("submitted only expires", func(t *testing.T) {
		require.NoError(t, s.SubmitResponse(r.ID, time.Now()))
		assert.True(t, CanTransitionResponseState(r, models.AttemptExpired))
		assert.False(t, CanTransitionResponseState(r, models.AttemptCanceled))
		assert.False(t, CanTransitionResponseState(r, models.AttemptActive))
	})

	t.Run("terminal states are dead ends", func(t *testing.T) {
		require.NoError(t, s.ExpireResponse(r.ID))
		for _, next := range []models.AttemptStatus{models.AttemptActive, models.AttemptSubmitted, models.AttemptCanceled, models.AttemptExpired} {
			assert.False(t, CanTransitionResponseState(r, next), string(next))
		}
	})
}

func TestValidateMultipleResponsesFromSameParticipant(t *testing.T) {
	member := memberParticipant(t)

	t.Run("contiguous attempts pass", func(t *testing.T) {
		s := testSurvey(t, 3, 0)
		responseFor(t, s, member, 1)
		responseFor(t, s, member, 2)
		assert.NoError(t, ValidateMultipleResponsesFromSameParticipant(s, member, s.ResponsesList()))
	})

	t.Run("gap in attempt numbers fails", func(t *testing.T) {
		s := testSurvey(t, 5, 0)
		responseFor(t, s, member, 1)
		responseFor(t, s, member, 3)
		err := ValidateMultipleResponsesFromSameParticipant(s, member, s.ResponsesList())
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})

	t.Run("over the attempt limit fails", func(t *testing.T) {
		s := testSurvey(t, 1, 0)
		responseFor(t, s, member, 1)
		responseFor(t, s, member, 2)
		err := ValidateMultipleResponsesFromSameParticipant(s, member, s.ResponsesList())
		require.Error(t, err)
		assert.True(t, models.HasReason(err, models.ReasonAttemptLimitReached))
	})

	t.Run("other participants are ignored", func(t *testing.T) {
		s := testSurvey(t, 1, 0)
		responseFor(t, s, member, 1)
		responseFor(t, s, memberParticipant(t), 1)
		assert.NoError(t, ValidateMultipleResponsesFromSameParticipant(s, member, s.ResponsesList()))
	})
}

func TestCalculateUniqueParticipants(t *testing.T) {
	s := testSurvey(t, 5, 0)
	member := memberParticipant(t)
	responseFor(t, s, member, 1)
	responseFor(t, s, member, 2)
	anon, err := models.ParticipantForAnonymous("deadbeefcafe")
	require.NoError(t, err)
	responseFor(t, s, anon, 1)

	assert.Equal(t, 2, CalculateUniqueParticipants(s.ResponsesList()))
}

func TestValidateMemberAuthorization(t *testing.T) {
	t.Run("both groups declared require both", func(t *testing.T) {
		s := testSurvey(t, 1, 0)
		s.WithAccessCodes([]string{"A", "B"}, []string{"X", "Y"})

		assert.True(t, ValidateMemberAuthorization(s, []string{"A"}, []string{"X"}))
		assert.False(t, ValidateMemberAuthorization(s, []string{"A"}, []string{"Z"}))
		assert.False(t, ValidateMemberAuthorization(s, []string{"C"}, []string{"X"}))
	})

	t.Run("single declared group alone suffices", func(t *testing.T) {
		s := testSurvey(t, 1, 0)
		s.WithAccessCodes([]string{"A", "B"}, nil)
		assert.True(t, ValidateMemberAuthorization(s, []string{"A"}, nil))
		assert.False(t, ValidateMemberAuthorization(s, []string{"C"}, nil))
	})

	t.Run("no declared groups authorize everyone", func(t *testing.T) {
		s := testSurvey(t, 1, 0)
		assert.True(t, ValidateMemberAuthorization(s, nil, nil))
	})

	t.Run("details name the unmet groups", func(t *testing.T) {
		s := testSurvey(t, 1, 0)
		s.WithAccessCodes([]string{"A"}, []string{"X"})
		ok, unmet := ValidateMemberAuthorizationWithDetails(s, nil, nil)
		assert.False(t, ok)
		assert.Len(t, unmet, 2)
	})

	t.Run("codes match case-insensitively", func(t *testing.T) {
		s := testSurvey(t, 1, 0)
		s.WithAccessCodes([]string{"loan"}, nil)
		assert.True(t, ValidateMemberAuthorization(s, []string{"LOAN"}, nil))
	})
}
