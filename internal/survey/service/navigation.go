package service

import (
	"context"
	"time"

	"refahi/internal/survey/models"
	id "refahi/pkg/domain"
)

// NavigationState is the result of every navigation command: where the
// cursor now points, whether it moved, and the response's progress summary.
type NavigationState struct {
	ResponseID  id.ResponseID
	QuestionID  id.QuestionID
	RepeatIndex int
	Question    *models.Question
	Moved       bool
	Status      models.DisplayStatus
	Progress    models.Progress
}

func (s *Service) navigationState(survey *models.Survey, responseID id.ResponseID, moved bool) (*NavigationState, error) {
	qid, idx, err := survey.CurrentNavigationState(responseID)
	if err != nil {
		return nil, err
	}
	r, err := survey.ResponseByID(responseID)
	if err != nil {
		return nil, err
	}
	progress, err := survey.ResponseProgress(responseID)
	if err != nil {
		return nil, err
	}
	state := &NavigationState{
		ResponseID:  responseID,
		QuestionID:  qid,
		RepeatIndex: idx,
		Moved:       moved,
		Status:      r.Status,
		Progress:    progress,
	}
	if q, ok := survey.QuestionByID(qid); ok {
		state.Question = &q
	}
	return state, nil
}

// CurrentQuestion reports the cursor without moving it.
func (s *Service) CurrentQuestion(ctx context.Context, responseID id.ResponseID) (*NavigationState, error) {
	ctx, span := s.tracer.Start(ctx, "survey.CurrentQuestion")
	defer span.End()

	survey, err := s.store.GetByResponseID(ctx, responseID)
	if err != nil {
		return nil, translateStoreErr(err, "load response")
	}
	return s.navigationState(survey, responseID, false)
}

// GoNext advances the cursor: another repeat of the current question when
// its policy permits one, otherwise the next question in Order. At the end
// of the survey the cursor stays put and Moved is false.
func (s *Service) GoNext(ctx context.Context, responseID id.ResponseID) (state *NavigationState, err error) {
	ctx, span := s.tracer.Start(ctx, "survey.GoNext")
	defer span.End()
	start := time.Now()
	defer func() { s.metrics.RecordCommand("go_next", s.observeOutcome("go_next", err), start) }()

	survey, err := s.store.GetByResponseID(ctx, responseID)
	if err != nil {
		return nil, translateStoreErr(err, "load response")
	}
	moved, err := survey.NavigateResponseToNext(responseID)
	if err != nil {
		return nil, err
	}
	if moved {
		if err := s.store.SaveResponse(ctx, survey, responseID); err != nil {
			return nil, translateStoreErr(err, "save navigation")
		}
	}
	return s.navigationState(survey, responseID, moved)
}

// GoPrevious steps the cursor back when the survey's policy permits backward
// navigation. At the first question, first repeat, the cursor stays put and
// Moved is false.
func (s *Service) GoPrevious(ctx context.Context, responseID id.ResponseID) (state *NavigationState, err error) {
	ctx, span := s.tracer.Start(ctx, "survey.GoPrevious")
	defer span.End()
	start := time.Now()
	defer func() { s.metrics.RecordCommand("go_previous", s.observeOutcome("go_previous", err), start) }()

	survey, err := s.store.GetByResponseID(ctx, responseID)
	if err != nil {
		return nil, translateStoreErr(err, "load response")
	}
	if !survey.Policy.AllowBackNavigation {
		s.metrics.RecordPolicyDenial(models.ReasonBackNotAllowed)
		return nil, models.PolicyError(models.ReasonBackNotAllowed, "this survey does not permit navigating backwards")
	}
	moved, err := survey.NavigateResponseToPrevious(responseID)
	if err != nil {
		return nil, err
	}
	if moved {
		if err := s.store.SaveResponse(ctx, survey, responseID); err != nil {
			return nil, translateStoreErr(err, "save navigation")
		}
	}
	return s.navigationState(survey, responseID, moved)
}

// JumpTo moves the cursor to an explicit question and repeat index. A nil
// target or toFirst jumps to the first question. Jumps to an earlier question
// count as backward navigation and are gated by the same policy as
// GoPrevious.
func (s *Service) JumpTo(ctx context.Context, responseID id.ResponseID, target id.QuestionID, repeatIndex int, toFirst bool) (state *NavigationState, err error) {
	ctx, span := s.tracer.Start(ctx, "survey.JumpTo")
	defer span.End()
	start := time.Now()
	defer func() { s.metrics.RecordCommand("jump_to", s.observeOutcome("jump_to", err), start) }()

	survey, err := s.store.GetByResponseID(ctx, responseID)
	if err != nil {
		return nil, translateStoreErr(err, "load response")
	}

	if !survey.Policy.AllowBackNavigation {
		currentID, _, err := survey.CurrentNavigationState(responseID)
		if err != nil {
			return nil, err
		}
		effectiveTarget := target
		if toFirst || target.IsNil() {
			// A jump-to-first targets the lowest-Order question.
			if len(survey.Questions) > 0 {
				effectiveTarget = survey.Questions[0].ID
			}
		}
		current, currentOK := survey.QuestionByID(currentID)
		targetQ, targetOK := survey.QuestionByID(effectiveTarget)
		if currentOK && targetOK && targetQ.Order < current.Order {
			s.metrics.RecordPolicyDenial(models.ReasonBackNotAllowed)
			return nil, models.PolicyError(models.ReasonBackNotAllowed, "this survey does not permit navigating backwards")
		}
	}

	if err := survey.NavigateResponseToQuestion(responseID, target, repeatIndex, toFirst); err != nil {
		if models.HasReason(err, models.ReasonInvalidRepeatIndex) {
			s.metrics.RecordPolicyDenial(models.ReasonInvalidRepeatIndex)
		}
		return nil, err
	}
	if err := s.store.SaveResponse(ctx, survey, responseID); err != nil {
		return nil, translateStoreErr(err, "save navigation")
	}
	return s.navigationState(survey, responseID, true)
}
