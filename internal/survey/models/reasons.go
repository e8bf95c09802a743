package models

import (
	"strings"

	dErrors "refahi/pkg/domain-errors"
)

// Machine-readable policy-violation reasons. Reasons prefix the error message
// so clients can branch without parsing free text.
const (
	ReasonBackNotAllowed           = "BACK_NOT_ALLOWED"
	ReasonRepeatLimitReached       = "REPEAT_LIMIT_REACHED"
	ReasonInvalidRepeatIndex       = "INVALID_REPEAT_INDEX"
	ReasonResponseImmutable        = "RESPONSE_IMMUTABLE"
	ReasonResponseAlreadySubmitted = "RESPONSE_ALREADY_SUBMITTED"
	ReasonSurveyNotActive          = "SURVEY_NOT_ACTIVE"
	ReasonWindowClosed             = "WINDOW_CLOSED"
	ReasonRequiredNotAnswered      = "REQUIRED_NOT_ANSWERED"
	ReasonAttemptLimitReached      = "ATTEMPT_LIMIT_REACHED"
	ReasonCooldownActive           = "COOLDOWN_ACTIVE"
)

// PolicyError builds a policy-violation error whose message starts with the
// machine-readable reason.
func PolicyError(reason, message string) error {
	return dErrors.New(dErrors.CodePolicyViolation, reason+": "+message)
}

// HasReason reports whether an error message carries the given reason prefix.
func HasReason(err error, reason string) bool {
	if err == nil {
		return false
	}
	return dErrors.HasCode(err, dErrors.CodePolicyViolation) &&
		strings.Contains(err.Error(), reason)
}
