package models

import (
	"time"

	dErrors "refahi/pkg/domain-errors"
)

// ParticipationPolicy bounds how often and how quickly a participant may
// attempt a survey, and whether navigation backwards or resubmission is
// permitted.
type ParticipationPolicy struct {
	MaxAttemptsPerMember     int
	AllowMultipleSubmissions bool
	CoolDown                 time.Duration
	AllowBackNavigation      bool
}

// NewParticipationPolicy validates the policy bounds.
func NewParticipationPolicy(maxAttempts int, allowMultiple bool, coolDown time.Duration, allowBack bool) (ParticipationPolicy, error) {
	if maxAttempts < 1 {
		return ParticipationPolicy{}, dErrors.Newf(dErrors.CodeInvalidInput, "max attempts per member must be positive, got %d", maxAttempts)
	}
	if coolDown < 0 {
		return ParticipationPolicy{}, dErrors.New(dErrors.CodeInvalidInput, "cooldown must not be negative")
	}
	return ParticipationPolicy{
		MaxAttemptsPerMember:     maxAttempts,
		AllowMultipleSubmissions: allowMultiple,
		CoolDown:                 coolDown,
		AllowBackNavigation:      allowBack,
	}, nil
}

// IsAttemptAllowed reports whether a participant with attemptsSoFar completed
// attempts may start another. attemptsSoFar must lie in [0, MaxAttempts].
func (p ParticipationPolicy) IsAttemptAllowed(attemptsSoFar int) bool {
	return attemptsSoFar >= 0 && attemptsSoFar < p.MaxAttemptsPerMember
}

// CooldownElapsed reports whether enough time has passed since the last
// attempt. A zero cooldown never blocks.
func (p ParticipationPolicy) CooldownElapsed(lastAttempt, now time.Time) bool {
	if p.CoolDown == 0 || lastAttempt.IsZero() {
		return true
	}
	return now.Sub(lastAttempt) >= p.CoolDown
}
