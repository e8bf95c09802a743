package service

import (
	"context"

	"refahi/internal/survey/models"
	"refahi/internal/survey/rules"
	id "refahi/pkg/domain"
	"refahi/pkg/requestcontext"
)

// Eligibility is a read-only pre-flight answer: may this participant start
// an attempt right now, and if not, why. Reasons carry the same machine
// codes the start command would fail with.
type Eligibility struct {
	Eligible bool
	Reasons  []string
}

// CheckEligibility evaluates the full start gate without side effects, so
// clients can disable the entry point before the participant invests time.
func (s *Service) CheckEligibility(ctx context.Context, surveyID id.SurveyID, participant models.ParticipantInfo) (*Eligibility, error) {
	ctx, span := s.tracer.Start(ctx, "survey.CheckEligibility")
	defer span.End()

	survey, err := s.store.GetWithResponses(ctx, surveyID)
	if err != nil {
		return nil, translateStoreErr(err, "load survey")
	}
	now := requestcontext.Now(ctx)

	var reasons []string
	if !survey.AcceptingResponses {
		reasons = append(reasons, models.ReasonSurveyNotActive)
	}
	if !survey.IsWindowOpen(now) {
		reasons = append(reasons, models.ReasonWindowClosed)
	}

	if !participant.IsAnonymous && s.directory != nil {
		profile, err := s.directory.Profile(ctx, participant.MemberID)
		if err != nil {
			return nil, translateStoreErr(err, "resolve member profile")
		}
		if ok, _ := rules.ValidateMemberAuthorizationWithDetails(survey, profile.Features, profile.Capabilities); !ok {
			reasons = append(reasons, "ACCESS_CODES_NOT_HELD")
		}
		if survey.Audience != nil && !survey.Audience.Matches(profile.Features, profile.Capabilities, profile.Groups) {
			reasons = append(reasons, "OUTSIDE_TARGET_AUDIENCE")
		}
	}

	existing := participantResponses(survey, participant)
	if !survey.Policy.AllowMultipleSubmissions {
		for _, r := range existing {
			if r.AttemptStatus == models.AttemptSubmitted {
				reasons = append(reasons, models.ReasonResponseAlreadySubmitted)
				break
			}
		}
	}
	last := s.lastAttemptAt(ctx, survey, participant, existing)
	if !rules.CanParticipantParticipate(survey, len(existing), last, now) {
		if !survey.Policy.IsAttemptAllowed(len(existing)) {
			reasons = append(reasons, models.ReasonAttemptLimitReached)
		}
		if last != nil && !survey.Policy.CooldownElapsed(*last, now) {
			reasons = append(reasons, models.ReasonCooldownActive)
		}
	}

	return &Eligibility{Eligible: len(reasons) == 0, Reasons: reasons}, nil
}
