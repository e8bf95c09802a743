package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"refahi/internal/events"
	"refahi/internal/survey/models"
	id "refahi/pkg/domain"
	dErrors "refahi/pkg/domain-errors"
)

func TestStartResponse(t *testing.T) {
	ctx := testCtx(testNow)

	t.Run("anonymous participant starts at the first question", func(t *testing.T) {
		f := newFixture(t)
		_, q1, _ := f.twoQuestionSurvey(t)
		participant, err := models.ParticipantForAnonymous("a1b2c3d4e5f6a1b2c3d4e5f6")
		require.NoError(t, err)

		started, err := f.svc.StartResponse(ctx, StartRequest{
			SurveyID:    f.surveyID(t),
			Participant: participant,
		})
		require.NoError(t, err)
		assert.Equal(t, 1, started.AttemptNumber)
		assert.Equal(t, q1.ID, started.Navigation.QuestionID)
		assert.Equal(t, 1, started.Navigation.RepeatIndex)
		assert.Equal(t, models.DisplayAnswering, started.Navigation.Status)

		require.Len(t, f.sink.ByType(events.TypeResponseStarted), 1)
	})

	t.Run("closed survey is refused", func(t *testing.T) {
		f := newFixture(t)
		f.twoQuestionSurvey(t, closedSurvey())
		participant, _ := models.ParticipantForAnonymous("deadbeefdeadbeef")

		_, err := f.svc.StartResponse(ctx, StartRequest{SurveyID: f.surveyID(t), Participant: participant})
		require.Error(t, err)
		assert.True(t, models.HasReason(err, models.ReasonSurveyNotActive))
	})

	t.Run("window gates the start", func(t *testing.T) {
		f := newFixture(t)
		f.twoQuestionSurvey(t, withWindow(testNow.Add(time.Hour), testNow.Add(2*time.Hour)))
		participant, _ := models.ParticipantForAnonymous("deadbeefdeadbeef")

		_, err := f.svc.StartResponse(ctx, StartRequest{SurveyID: f.surveyID(t), Participant: participant})
		require.Error(t, err)
		assert.True(t, models.HasReason(err, models.ReasonWindowClosed))
	})

	t.Run("attempt limit is enforced", func(t *testing.T) {
		f := newFixture(t)
		policy, _ := models.NewParticipationPolicy(1, true, 0, true)
		f.twoQuestionSurvey(t, withPolicy(policy))
		participant, _ := models.ParticipantForAnonymous("cafecafecafecafe")

		_, err := f.svc.StartResponse(ctx, StartRequest{SurveyID: f.surveyID(t), Participant: participant})
		require.NoError(t, err)

		_, err = f.svc.StartResponse(ctx, StartRequest{SurveyID: f.surveyID(t), Participant: participant})
		require.Error(t, err)
		assert.True(t, models.HasReason(err, models.ReasonAttemptLimitReached))
	})

	t.Run("cooldown blocks a quick second attempt", func(t *testing.T) {
		f := newFixture(t)
		policy, _ := models.NewParticipationPolicy(5, true, time.Hour, true)
		f.twoQuestionSurvey(t, withPolicy(policy))
		participant, _ := models.ParticipantForAnonymous("0123456789abcdef")

		_, err := f.svc.StartResponse(ctx, StartRequest{SurveyID: f.surveyID(t), Participant: participant})
		require.NoError(t, err)

		_, err = f.svc.StartResponse(testCtx(testNow.Add(10*time.Minute)), StartRequest{SurveyID: f.surveyID(t), Participant: participant})
		require.Error(t, err)
		assert.True(t, models.HasReason(err, models.ReasonCooldownActive))

		_, err = f.svc.StartResponse(testCtx(testNow.Add(2*time.Hour)), StartRequest{SurveyID: f.surveyID(t), Participant: participant})
		require.NoError(t, err)
	})

	t.Run("cooldown holds when the tracker is unavailable", func(t *testing.T) {
		f := newFixture(t)
		policy, _ := models.NewParticipationPolicy(5, true, time.Hour, true)
		f.twoQuestionSurvey(t, withPolicy(policy))
		svc, err := New(f.store, failingTracker{}, WithEventSink(f.sink), WithDirectory(f.directory))
		require.NoError(t, err)
		participant, _ := models.ParticipantForAnonymous("0f0f0f0f0f0f0f0f")

		_, err = svc.StartResponse(ctx, StartRequest{SurveyID: f.surveyID(t), Participant: participant})
		require.NoError(t, err)

		// The stored response's StartedAt alone must keep the gate shut.
		_, err = svc.StartResponse(testCtx(testNow.Add(30*time.Minute)), StartRequest{SurveyID: f.surveyID(t), Participant: participant})
		require.Error(t, err)
		assert.True(t, models.HasReason(err, models.ReasonCooldownActive))

		_, err = svc.StartResponse(testCtx(testNow.Add(2*time.Hour)), StartRequest{SurveyID: f.surveyID(t), Participant: participant})
		require.NoError(t, err)
	})

	t.Run("single submission policy blocks a restart after submit", func(t *testing.T) {
		f := newFixture(t)
		policy, _ := models.NewParticipationPolicy(5, false, 0, true)
		_, q1, q2 := f.twoQuestionSurvey(t, withPolicy(policy))
		participant, _ := models.ParticipantForAnonymous("feedfacefeedface")

		started, err := f.svc.StartResponse(ctx, StartRequest{SurveyID: f.surveyID(t), Participant: participant})
		require.NoError(t, err)
		f.answerBoth(t, started.ResponseID, q1, q2)
		_, err = f.svc.Submit(ctx, started.ResponseID)
		require.NoError(t, err)

		_, err = f.svc.StartResponse(ctx, StartRequest{SurveyID: f.surveyID(t), Participant: participant})
		require.Error(t, err)
		assert.True(t, models.HasReason(err, models.ReasonResponseAlreadySubmitted))
	})

	t.Run("member without access codes is refused", func(t *testing.T) {
		f := newFixture(t)
		f.twoQuestionSurvey(t, withAccessCodes([]string{"HOUSING"}, nil))
		participant := f.memberParticipant(t, []string{"SPORTS"}, nil, nil)

		_, err := f.svc.StartResponse(ctx, StartRequest{SurveyID: f.surveyID(t), Participant: participant})
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	t.Run("member demography is snapshotted with overrides", func(t *testing.T) {
		f := newFixture(t)
		f.twoQuestionSurvey(t)
		memberID := id.NewMemberID()
		f.directory.Seed(memberProfile(memberID))

		participant, err := models.ParticipantForMember(memberID)
		require.NoError(t, err)
		started, err := f.svc.StartResponse(ctx, StartRequest{
			SurveyID:    f.surveyID(t),
			Participant: participant,
			Demography:  map[string]string{models.DemographyAgeGroup: "35-44"},
		})
		require.NoError(t, err)

		survey, err := f.store.GetByResponseID(ctx, started.ResponseID)
		require.NoError(t, err)
		r, err := survey.ResponseByID(started.ResponseID)
		require.NoError(t, err)
		province, _ := r.Demography.Get(models.DemographyProvinceCode)
		assert.Equal(t, "21", province)
		age, _ := r.Demography.Get(models.DemographyAgeGroup)
		assert.Equal(t, "35-44", age)
	})
}

func TestAnswerQuestion(t *testing.T) {
	ctx := testCtx(testNow)

	t.Run("textual answer lands in the cursor slot", func(t *testing.T) {
		f := newFixture(t)
		_, q1, _ := f.twoQuestionSurvey(t)
		responseID := f.start(t)

		result, err := f.svc.AnswerQuestion(ctx, responseID, q1.ID, "Spotless and friendly staff", nil)
		require.NoError(t, err)
		assert.Equal(t, models.DisplayAnswering, result.Status)
		assert.Equal(t, 1, result.Progress.Answered)
		assert.InDelta(t, 50.0, result.Progress.CompletionPercentage, 0.001)
	})

	t.Run("selections are validated and labels denormalized", func(t *testing.T) {
		f := newFixture(t)
		_, _, q2 := f.twoQuestionSurvey(t)
		responseID := f.start(t)
		_, err := f.svc.JumpTo(ctx, responseID, q2.ID, 1, false)
		require.NoError(t, err)

		_, err = f.svc.AnswerQuestion(ctx, responseID, q2.ID, "", []id.OptionID{id.NewOptionID()})
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

		_, err = f.svc.AnswerQuestion(ctx, responseID, q2.ID, "", []id.OptionID{q2.Options[0].ID})
		require.NoError(t, err)

		survey, err := f.store.GetByResponseID(ctx, responseID)
		require.NoError(t, err)
		r, err := survey.ResponseByID(responseID)
		require.NoError(t, err)
		answer, ok := r.AnswerAt(q2.ID, 1)
		require.True(t, ok)
		require.Len(t, answer.SelectedOptions, 1)
		assert.Equal(t, "Would recommend", answer.SelectedOptions[0].Text)
	})

	t.Run("passed question is sealed when back navigation is off", func(t *testing.T) {
		f := newFixture(t)
		_, q1, _ := f.twoQuestionSurvey(t, withPolicy(noBackPolicy(t)))
		responseID := f.start(t)

		_, err := f.svc.AnswerQuestion(ctx, responseID, q1.ID, "first answer", nil)
		require.NoError(t, err)
		nav, err := f.svc.GoNext(ctx, responseID)
		require.NoError(t, err)
		require.True(t, nav.Moved)

		_, err = f.svc.AnswerQuestion(ctx, responseID, q1.ID, "rewrite attempt", nil)
		require.Error(t, err)
		assert.True(t, models.HasReason(err, models.ReasonResponseImmutable))

		// The sealed answer survives untouched.
		survey, err := f.store.GetByResponseID(ctx, responseID)
		require.NoError(t, err)
		r, err := survey.ResponseByID(responseID)
		require.NoError(t, err)
		answer, ok := r.AnswerAt(q1.ID, 1)
		require.True(t, ok)
		assert.Equal(t, "first answer", answer.TextAnswer)
	})

	t.Run("submitted response refuses edits", func(t *testing.T) {
		f := newFixture(t)
		_, q1, q2 := f.twoQuestionSurvey(t)
		responseID := f.start(t)
		f.answerBoth(t, responseID, q1, q2)
		_, err := f.svc.Submit(ctx, responseID)
		require.NoError(t, err)

		_, err = f.svc.AnswerQuestion(ctx, responseID, q1.ID, "too late", nil)
		require.Error(t, err)
		assert.True(t, models.HasReason(err, models.ReasonResponseAlreadySubmitted))
	})
}

func TestSubmit(t *testing.T) {
	ctx := testCtx(testNow)

	t.Run("required questions gate the submit", func(t *testing.T) {
		f := newFixture(t)
		_, q1, _ := f.twoQuestionSurvey(t)
		responseID := f.start(t)
		_, err := f.svc.AnswerQuestion(ctx, responseID, q1.ID, "only one of two", nil)
		require.NoError(t, err)

		_, err = f.svc.Submit(ctx, responseID)
		require.Error(t, err)
		assert.True(t, models.HasReason(err, models.ReasonRequiredNotAnswered))
	})

	t.Run("window closure blocks late submission", func(t *testing.T) {
		f := newFixture(t)
		_, q1, q2 := f.twoQuestionSurvey(t, withWindow(testNow.Add(-time.Hour), testNow.Add(time.Hour)))
		responseID := f.start(t)
		f.answerBoth(t, responseID, q1, q2)

		_, err := f.svc.Submit(testCtx(testNow.Add(2*time.Hour)), responseID)
		require.Error(t, err)
		assert.True(t, models.HasReason(err, models.ReasonWindowClosed))
	})

	t.Run("submit emits an event and stamps the clock", func(t *testing.T) {
		f := newFixture(t)
		_, q1, q2 := f.twoQuestionSurvey(t)
		responseID := f.start(t)
		f.answerBoth(t, responseID, q1, q2)

		result, err := f.svc.Submit(ctx, responseID)
		require.NoError(t, err)
		assert.True(t, result.SubmittedAt.Equal(testNow))
		require.Len(t, f.sink.ByType(events.TypeResponseSubmitted), 1)
	})
}

func TestCancelAndExpire(t *testing.T) {
	ctx := testCtx(testNow)

	t.Run("cancel is terminal", func(t *testing.T) {
		f := newFixture(t)
		_, q1, _ := f.twoQuestionSurvey(t)
		responseID := f.start(t)

		require.NoError(t, f.svc.Cancel(ctx, responseID))
		require.Len(t, f.sink.ByType(events.TypeResponseCancelled), 1)

		_, err := f.svc.AnswerQuestion(ctx, responseID, q1.ID, "after cancel", nil)
		require.Error(t, err)
		assert.True(t, models.HasReason(err, models.ReasonResponseImmutable))

		require.Error(t, f.svc.Cancel(ctx, responseID))
	})

	t.Run("expire sweeps old submitted responses only", func(t *testing.T) {
		f := newFixture(t)
		_, q1, q2 := f.twoQuestionSurvey(t)
		oldID := f.start(t)
		f.answerBoth(t, oldID, q1, q2)
		_, err := f.svc.Submit(testCtx(testNow.Add(-48*time.Hour)), oldID)
		require.NoError(t, err)

		activeID := f.start(t)

		expired, err := f.svc.ExpireResponses(ctx, f.surveyID(t), 24*time.Hour)
		require.NoError(t, err)
		assert.Equal(t, 1, expired)
		require.Len(t, f.sink.ByType(events.TypeResponseExpired), 1)

		survey, err := f.store.GetByResponseID(ctx, oldID)
		require.NoError(t, err)
		r, err := survey.ResponseByID(oldID)
		require.NoError(t, err)
		assert.Equal(t, models.AttemptExpired, r.AttemptStatus)

		active, err := survey.ResponseByID(activeID)
		require.NoError(t, err)
		assert.Equal(t, models.AttemptActive, active.AttemptStatus)
	})
}

// TestAnsweringLifecycle walks the full journey: answer half the questions,
// cross the review threshold, submit, and observe the second submit fail.
func TestAnsweringLifecycle(t *testing.T) {
	ctx := testCtx(testNow)
	f := newFixture(t)
	_, q1, q2 := f.twoQuestionSurvey(t)
	responseID := f.start(t)

	result, err := f.svc.AnswerQuestion(ctx, responseID, q1.ID, "halfway there", nil)
	require.NoError(t, err)
	assert.InDelta(t, 50.0, result.Progress.CompletionPercentage, 0.001)
	assert.Equal(t, models.DisplayAnswering, result.Status)

	nav, err := f.svc.GoNext(ctx, responseID)
	require.NoError(t, err)
	require.True(t, nav.Moved)
	assert.Equal(t, q2.ID, nav.QuestionID)

	result, err = f.svc.AnswerQuestion(ctx, responseID, q2.ID, "", []id.OptionID{q2.Options[0].ID})
	require.NoError(t, err)
	assert.InDelta(t, 100.0, result.Progress.CompletionPercentage, 0.001)
	assert.Equal(t, models.DisplayReviewing, result.Status)

	submitted, err := f.svc.Submit(ctx, responseID)
	require.NoError(t, err)
	assert.Equal(t, 2, submitted.Progress.Answered)

	_, err = f.svc.Submit(ctx, responseID)
	require.Error(t, err)
	assert.True(t, models.HasReason(err, models.ReasonResponseAlreadySubmitted))
}

// helpers

func (f *fixture) surveyID(t *testing.T) id.SurveyID {
	t.Helper()
	require.NotNil(t, f.lastSurvey)
	return f.lastSurvey.ID
}

func (f *fixture) start(t *testing.T) id.ResponseID {
	t.Helper()
	participant, err := models.ParticipantForAnonymous(randomHash())
	require.NoError(t, err)
	started, err := f.svc.StartResponse(testCtx(testNow), StartRequest{
		SurveyID:    f.surveyID(t),
		Participant: participant,
	})
	require.NoError(t, err)
	return started.ResponseID
}

func (f *fixture) answerBoth(t *testing.T, responseID id.ResponseID, q1, q2 models.Question) {
	t.Helper()
	ctx := testCtx(testNow)
	_, err := f.svc.AnswerQuestion(ctx, responseID, q1.ID, "answered", nil)
	require.NoError(t, err)
	_, err = f.svc.GoNext(ctx, responseID)
	require.NoError(t, err)
	_, err = f.svc.AnswerQuestion(ctx, responseID, q2.ID, "", []id.OptionID{q2.Options[0].ID})
	require.NoError(t, err)
}
