// Package rules evaluates participation and state-transition rules for the
// survey engine. Everything here is pure domain logic - no I/O, no side
// effects. Functions receive all data they need as arguments so the rules
// stay centralized and testable.
package rules

import (
	"time"

	"refahi/internal/survey/models"
	dErrors "refahi/pkg/domain-errors"
	pstrings "refahi/pkg/platform/strings"
)

// CanParticipantParticipate gates a new attempt. All three must hold: the
// survey is accepting responses, the attempt count is within policy, and the
// cooldown since the last attempt has elapsed.
func CanParticipantParticipate(s *models.Survey, attemptsSoFar int, lastAttempt *time.Time, now time.Time) bool {
	if !s.AcceptingResponses {
		return false
	}
	if !s.Policy.IsAttemptAllowed(attemptsSoFar) {
		return false
	}
	if lastAttempt != nil && !s.Policy.CooldownElapsed(*lastAttempt, now) {
		return false
	}
	return true
}

// ValidateNoInterferenceBetweenParticipants rejects a new attempt that would
// collide with existing responses: the same participant reusing an attempt
// number, or two distinct anonymous participants sharing a short-identifier
// prefix.
//
// The anonymous check compares only the 8-character hash prefix, so it is a
// probabilistic guard, not a true uniqueness guarantee. This mirrors the
// legacy behavior and is deliberately not strengthened.
func ValidateNoInterferenceBetweenParticipants(existing []*models.Response, newParticipant models.ParticipantInfo, newAttemptNumber int) error {
	for _, r := range existing {
		if r.Participant.Equal(newParticipant) && r.AttemptNumber == newAttemptNumber {
			return dErrors.Newf(dErrors.CodeConflict, "participant already has a response for attempt %d", newAttemptNumber)
		}
		if newParticipant.IsAnonymous && r.Participant.IsAnonymous &&
			!r.Participant.Equal(newParticipant) &&
			r.Participant.ShortIdentifier() == newParticipant.ShortIdentifier() {
			return dErrors.New(dErrors.CodeConflict, "anonymous participant short-identifier collision")
		}
	}
	return nil
}

// ValidateQuestionRepeats checks every answered slot of a response against
// the owning question's repeat policy: the answered-repeat count must not
// exceed the cap, and every answered index must be policy-valid.
func ValidateQuestionRepeats(s *models.Survey, r *models.Response) error {
	for _, q := range s.Questions {
		answers := r.AnswersFor(q.ID)
		if max, bounded := q.Repeat.MaxRepeatIndex(); bounded && len(answers) > max {
			return models.PolicyError(models.ReasonRepeatLimitReached, "question answered more times than its repeat policy allows")
		}
		for _, a := range answers {
			if !q.Repeat.IsValidRepeatIndex(a.RepeatIndex) {
				return models.PolicyError(models.ReasonInvalidRepeatIndex, "answered repeat index exceeds the question's repeat policy")
			}
		}
	}
	return nil
}

// ValidateComplexParticipationRules is the single gating call combining the
// interference and repeat checks.
func ValidateComplexParticipationRules(s *models.Survey, r *models.Response, existing []*models.Response) error {
	if err := ValidateNoInterferenceBetweenParticipants(existing, r.Participant, r.AttemptNumber); err != nil {
		return err
	}
	return ValidateQuestionRepeats(s, r)
}

// CalculateUniqueParticipants counts distinct participant identities.
// Member and anonymous identities are keyed in separate namespaces, so
// cross-space collisions are impossible by construction.
func CalculateUniqueParticipants(responses []*models.Response) int {
	seen := make(map[string]struct{}, len(responses))
	for _, r := range responses {
		seen[r.Participant.Key()] = struct{}{}
	}
	return len(seen)
}

// CanTransitionResponseState reports whether a lifecycle transition is legal.
// The table itself lives on the Response entity so the aggregate's status
// writes and this rule can never drift apart.
func CanTransitionResponseState(r *models.Response, newState models.AttemptStatus) bool {
	return r.CanTransitionTo(newState)
}

// ValidateMultipleResponsesFromSameParticipant checks a participant's full
// attempt history: total attempts within policy, and attempt numbers forming
// a contiguous 1..N sequence with no gaps or duplicates.
func ValidateMultipleResponsesFromSameParticipant(s *models.Survey, participant models.ParticipantInfo, responses []*models.Response) error {
	var attempts []int
	for _, r := range responses {
		if r.Participant.Equal(participant) {
			attempts = append(attempts, r.AttemptNumber)
		}
	}
	if len(attempts) > s.Policy.MaxAttemptsPerMember {
		return models.PolicyError(models.ReasonAttemptLimitReached, "participant exceeded the attempt limit")
	}
	seen := make(map[int]struct{}, len(attempts))
	for _, n := range attempts {
		if n < 1 || n > len(attempts) {
			return dErrors.Newf(dErrors.CodeInvariantViolation, "attempt numbers are not contiguous: found %d among %d attempts", n, len(attempts))
		}
		if _, dup := seen[n]; dup {
			return dErrors.Newf(dErrors.CodeInvariantViolation, "duplicate attempt number %d", n)
		}
		seen[n] = struct{}{}
	}
	return nil
}

// ValidateMemberAuthorization applies the survey's access-code gate. When
// both feature and capability groups are declared the member must satisfy
// both (at least one matching code from each group); one declared group alone
// suffices; no declared groups authorizes everyone.
func ValidateMemberAuthorization(s *models.Survey, memberFeatures, memberCapabilities []string) bool {
	ok, _ := ValidateMemberAuthorizationWithDetails(s, memberFeatures, memberCapabilities)
	return ok
}

// ValidateMemberAuthorizationWithDetails additionally reports which declared
// group(s) the member failed to satisfy, for the caller to surface.
func ValidateMemberAuthorizationWithDetails(s *models.Survey, memberFeatures, memberCapabilities []string) (bool, []string) {
	var unmet []string
	if len(s.RequiredFeatures) > 0 && !hasAnyCode(s.RequiredFeatures, memberFeatures) {
		unmet = append(unmet, "member holds none of the survey's required feature codes")
	}
	if len(s.RequiredCapabilities) > 0 && !hasAnyCode(s.RequiredCapabilities, memberCapabilities) {
		unmet = append(unmet, "member holds none of the survey's required capability codes")
	}
	return len(unmet) == 0, unmet
}

func hasAnyCode(required, held []string) bool {
	set := make(map[string]struct{}, len(held))
	for _, code := range pstrings.DedupeAndTrimUpper(held) {
		set[code] = struct{}{}
	}
	for _, code := range required {
		if _, ok := set[code]; ok {
			return true
		}
	}
	return false
}
