package service

import (
	"context"
	"time"

	"refahi/internal/events"
	"refahi/internal/survey/models"
	"refahi/internal/survey/rules"
	id "refahi/pkg/domain"
	dErrors "refahi/pkg/domain-errors"
	"refahi/pkg/requestcontext"
)

// StartRequest opens a new attempt. Demography overrides are merged over the
// member directory's attributes; anonymous participants supply their own.
type StartRequest struct {
	SurveyID    id.SurveyID
	Participant models.ParticipantInfo
	Demography  map[string]string
}

// StartedResponse is the result of StartResponse: the new attempt plus the
// initial cursor position.
type StartedResponse struct {
	ResponseID    id.ResponseID
	AttemptNumber int
	Navigation    *NavigationState
}

// StartResponse opens a new attempt after the full eligibility gate: the
// survey is accepting responses inside its window, the participant passes
// access-code and audience criteria, and attempt-limit, cooldown, and
// interference rules all hold.
func (s *Service) StartResponse(ctx context.Context, req StartRequest) (result *StartedResponse, err error) {
	ctx, span := s.tracer.Start(ctx, "survey.StartResponse")
	defer span.End()
	start := time.Now()
	defer func() { s.metrics.RecordCommand("start_response", s.observeOutcome("start_response", err), start) }()

	survey, err := s.store.GetWithResponses(ctx, req.SurveyID)
	if err != nil {
		return nil, translateStoreErr(err, "load survey")
	}
	now := requestcontext.Now(ctx)

	if err := s.gateSurveyOpen(survey, now); err != nil {
		return nil, err
	}

	demography := req.Demography
	if !req.Participant.IsAnonymous {
		profileDemography, err := s.authorizeMember(ctx, survey, req.Participant.MemberID)
		if err != nil {
			return nil, err
		}
		demography = mergeDemography(profileDemography, req.Demography)
	}
	snapshot, err := models.NewDemographySnapshot(demography)
	if err != nil {
		return nil, err
	}

	if err := s.gateAttempt(ctx, survey, req.Participant, now); err != nil {
		return nil, err
	}

	existing := participantResponses(survey, req.Participant)
	attemptNumber := len(existing) + 1
	if err := rules.ValidateNoInterferenceBetweenParticipants(survey.ResponsesList(), req.Participant, attemptNumber); err != nil {
		return nil, err
	}

	responseID := id.NewResponseID()
	response := models.NewResponse(responseID, survey.ID, req.Participant, attemptNumber, snapshot, now)
	if err := survey.AddResponse(response); err != nil {
		return nil, err
	}
	if err := s.store.AddResponse(ctx, survey, responseID); err != nil {
		return nil, translateStoreErr(err, "persist response")
	}
	if err := s.tracker.RecordAttempt(ctx, survey.ID.String(), req.Participant.Key(), now); err != nil {
		s.logger.Warn("attempt tracking failed",
			"survey_id", survey.ID.String(),
			"participant", req.Participant.ShortIdentifier(),
			"error", err,
		)
	}

	s.publish(ctx, events.New(events.TypeResponseStarted, survey.ID, responseID, req.Participant.Key(), now))

	nav, err := s.navigationState(survey, responseID, false)
	if err != nil {
		return nil, err
	}
	return &StartedResponse{ResponseID: responseID, AttemptNumber: attemptNumber, Navigation: nav}, nil
}

// AnswerResult reports the response state after an answer upsert.
type AnswerResult struct {
	Status   models.DisplayStatus
	Progress models.Progress
}

// AnswerQuestion validates the submitted content against the question's kind
// and option set, writes the answer into the cursor's repeat slot, and
// recomputes the Answering/Reviewing display status.
func (s *Service) AnswerQuestion(ctx context.Context, responseID id.ResponseID, questionID id.QuestionID, textAnswer string, optionIDs []id.OptionID) (result *AnswerResult, err error) {
	ctx, span := s.tracer.Start(ctx, "survey.AnswerQuestion")
	defer span.End()
	start := time.Now()
	defer func() { s.metrics.RecordCommand("answer_question", s.observeOutcome("answer_question", err), start) }()

	survey, err := s.store.GetByResponseID(ctx, responseID)
	if err != nil {
		return nil, translateStoreErr(err, "load response")
	}
	now := requestcontext.Now(ctx)
	if err := s.gateSurveyOpen(survey, now); err != nil {
		return nil, err
	}

	question, ok := survey.QuestionByID(questionID)
	if !ok {
		return nil, dErrors.Newf(dErrors.CodeNotFound, "question %s not found", questionID)
	}
	if err := question.ValidateSelectedOptions(optionIDs); err != nil {
		return nil, err
	}
	selected := make([]models.SelectedOption, 0, len(optionIDs))
	for _, optionID := range optionIDs {
		text, err := survey.OptionText(questionID, optionID)
		if err != nil {
			return nil, err
		}
		selected = append(selected, models.SelectedOption{OptionID: optionID, Text: text})
	}

	if err := survey.SetResponseAnswer(responseID, questionID, question.Text, textAnswer, selected, now); err != nil {
		return nil, err
	}
	if err := survey.RefreshReviewStatus(responseID); err != nil {
		return nil, err
	}
	if err := s.store.SaveResponse(ctx, survey, responseID); err != nil {
		return nil, translateStoreErr(err, "save answer")
	}

	r, err := survey.ResponseByID(responseID)
	if err != nil {
		return nil, err
	}
	progress, err := survey.ResponseProgress(responseID)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.New(events.TypeQuestionAnswered, survey.ID, responseID, r.Participant.Key(), now).
		WithAttribute("question_id", questionID.String()))

	return &AnswerResult{Status: r.Status, Progress: progress}, nil
}

// SubmitResult reports a finalized attempt.
type SubmitResult struct {
	SubmittedAt time.Time
	Progress    models.Progress
}

// Submit finalizes an active attempt. All required questions must carry at
// least one answer and the survey window must still be open.
func (s *Service) Submit(ctx context.Context, responseID id.ResponseID) (result *SubmitResult, err error) {
	ctx, span := s.tracer.Start(ctx, "survey.Submit")
	defer span.End()
	start := time.Now()
	defer func() { s.metrics.RecordCommand("submit", s.observeOutcome("submit", err), start) }()

	survey, err := s.store.GetByResponseID(ctx, responseID)
	if err != nil {
		return nil, translateStoreErr(err, "load response")
	}
	now := requestcontext.Now(ctx)
	if err := s.gateSurveyOpen(survey, now); err != nil {
		return nil, err
	}

	r, err := survey.ResponseByID(responseID)
	if err != nil {
		return nil, err
	}
	if err := s.ValidateResponseAnswers(survey, r); err != nil {
		return nil, err
	}
	if err := rules.ValidateQuestionRepeats(survey, r); err != nil {
		return nil, err
	}

	if err := survey.SubmitResponse(responseID, now); err != nil {
		return nil, err
	}
	if err := s.store.SaveResponse(ctx, survey, responseID); err != nil {
		return nil, translateStoreErr(err, "save submission")
	}
	s.metrics.RecordSubmission()

	progress, err := survey.ResponseProgress(responseID)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.New(events.TypeResponseSubmitted, survey.ID, responseID, r.Participant.Key(), now))

	return &SubmitResult{SubmittedAt: now, Progress: progress}, nil
}

// Cancel abandons an active attempt.
func (s *Service) Cancel(ctx context.Context, responseID id.ResponseID) (err error) {
	ctx, span := s.tracer.Start(ctx, "survey.Cancel")
	defer span.End()
	start := time.Now()
	defer func() { s.metrics.RecordCommand("cancel", s.observeOutcome("cancel", err), start) }()

	survey, err := s.store.GetByResponseID(ctx, responseID)
	if err != nil {
		return translateStoreErr(err, "load response")
	}
	if err := survey.CancelResponse(responseID); err != nil {
		return err
	}
	if err := s.store.SaveResponse(ctx, survey, responseID); err != nil {
		return translateStoreErr(err, "save cancellation")
	}

	r, respErr := survey.ResponseByID(responseID)
	if respErr == nil {
		s.publish(ctx, events.New(events.TypeResponseCancelled, survey.ID, responseID, r.Participant.Key(), requestcontext.Now(ctx)))
	}
	return nil
}

// ExpireResponses retires submitted attempts older than the retention
// window. Returns the number of responses expired. Conflicting saves are
// skipped; a later sweep picks them up.
func (s *Service) ExpireResponses(ctx context.Context, surveyID id.SurveyID, retention time.Duration) (expired int, err error) {
	ctx, span := s.tracer.Start(ctx, "survey.ExpireResponses")
	defer span.End()

	survey, err := s.store.GetWithResponses(ctx, surveyID)
	if err != nil {
		return 0, translateStoreErr(err, "load survey")
	}
	now := requestcontext.Now(ctx)
	cutoff := now.Add(-retention)

	for _, r := range survey.ResponsesList() {
		if r.AttemptStatus != models.AttemptSubmitted || r.SubmittedAt == nil || r.SubmittedAt.After(cutoff) {
			continue
		}
		if err := survey.ExpireResponse(r.ID); err != nil {
			return expired, err
		}
		if err := s.store.SaveResponse(ctx, survey, r.ID); err != nil {
			s.logger.Warn("expire save skipped", "response_id", r.ID.String(), "error", err)
			continue
		}
		expired++
		s.publish(ctx, events.New(events.TypeResponseExpired, survey.ID, r.ID, r.Participant.Key(), now))
	}
	return expired, nil
}

func (s *Service) gateSurveyOpen(survey *models.Survey, now time.Time) error {
	if !survey.AcceptingResponses {
		s.metrics.RecordPolicyDenial(models.ReasonSurveyNotActive)
		return models.PolicyError(models.ReasonSurveyNotActive, "survey is not accepting responses")
	}
	if !survey.IsWindowOpen(now) {
		s.metrics.RecordPolicyDenial(models.ReasonWindowClosed)
		return models.PolicyError(models.ReasonWindowClosed, "survey response window is closed")
	}
	return nil
}

// authorizeMember applies the access-code and audience gates against the
// member directory and returns the member's demography attributes.
func (s *Service) authorizeMember(ctx context.Context, survey *models.Survey, memberID id.MemberID) (map[string]string, error) {
	if s.directory == nil {
		return nil, nil
	}
	profile, err := s.directory.Profile(ctx, memberID)
	if err != nil {
		return nil, translateStoreErr(err, "resolve member profile")
	}
	if ok, unmet := rules.ValidateMemberAuthorizationWithDetails(survey, profile.Features, profile.Capabilities); !ok {
		return nil, dErrors.Newf(dErrors.CodeForbidden, "member does not hold the required access codes: %v", unmet)
	}
	if survey.Audience != nil && !survey.Audience.Matches(profile.Features, profile.Capabilities, profile.Groups) {
		return nil, dErrors.New(dErrors.CodeForbidden, "member is outside the survey's target audience")
	}
	return profile.Demography, nil
}

// gateAttempt enforces attempt-limit, resubmission, and cooldown policy.
func (s *Service) gateAttempt(ctx context.Context, survey *models.Survey, participant models.ParticipantInfo, now time.Time) error {
	existing := participantResponses(survey, participant)
	if !survey.Policy.AllowMultipleSubmissions {
		for _, r := range existing {
			if r.AttemptStatus == models.AttemptSubmitted {
				s.metrics.RecordPolicyDenial(models.ReasonResponseAlreadySubmitted)
				return models.PolicyError(models.ReasonResponseAlreadySubmitted, "participant already submitted a response to this survey")
			}
		}
	}
	last := s.lastAttemptAt(ctx, survey, participant, existing)
	if !rules.CanParticipantParticipate(survey, len(existing), last, now) {
		if !survey.Policy.IsAttemptAllowed(len(existing)) {
			s.metrics.RecordPolicyDenial(models.ReasonAttemptLimitReached)
			return models.PolicyError(models.ReasonAttemptLimitReached, "participant reached the attempt limit for this survey")
		}
		s.metrics.RecordPolicyDenial(models.ReasonCooldownActive)
		return models.PolicyError(models.ReasonCooldownActive, "cooldown since the last attempt has not elapsed")
	}
	return nil
}

// lastAttemptAt resolves the participant's most recent attempt instant. The
// loaded responses are authoritative; the tracker is a fast path that can see
// attempts newer than the aggregate (for example a start whose tracking write
// landed after a concurrent load). A tracker failure therefore narrows the
// view but never opens the cooldown gate.
func (s *Service) lastAttemptAt(ctx context.Context, survey *models.Survey, participant models.ParticipantInfo, existing []*models.Response) *time.Time {
	var last time.Time
	for _, r := range existing {
		if r.StartedAt.After(last) {
			last = r.StartedAt
		}
	}
	if tracked, ok, err := s.tracker.LastAttempt(ctx, survey.ID.String(), participant.Key()); err != nil {
		s.logger.Warn("cooldown fast path unavailable, using stored responses",
			"survey_id", survey.ID.String(),
			"participant", participant.ShortIdentifier(),
			"error", err,
		)
	} else if ok && tracked.After(last) {
		last = tracked
	}
	if last.IsZero() {
		return nil
	}
	return &last
}

func participantResponses(survey *models.Survey, participant models.ParticipantInfo) []*models.Response {
	var out []*models.Response
	for _, r := range survey.ResponsesList() {
		if r.Participant.Equal(participant) {
			out = append(out, r)
		}
	}
	return out
}

func mergeDemography(base, overrides map[string]string) map[string]string {
	if len(base) == 0 {
		return overrides
	}
	merged := make(map[string]string, len(base)+len(overrides))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range overrides {
		merged[k] = v
	}
	return merged
}
