package models

import (
	dErrors "refahi/pkg/domain-errors"
)

// RepeatKind classifies how often a question may be answered within one
// response.
type RepeatKind string

const (
	RepeatNone      RepeatKind = "none"
	RepeatBounded   RepeatKind = "bounded"
	RepeatUnbounded RepeatKind = "unbounded"
)

// RepeatPolicy is a value object controlling repeatable questions. Repeat
// indices are 1-based everywhere: None permits only index 1, Bounded caps at
// MaxRepeats, Unbounded has no ceiling.
type RepeatPolicy struct {
	Kind       RepeatKind
	MaxRepeats int
}

// NoRepeat returns the policy for questions answered exactly once.
func NoRepeat() RepeatPolicy {
	return RepeatPolicy{Kind: RepeatNone}
}

// BoundedRepeat returns a policy allowing up to max answers per question.
func BoundedRepeat(max int) (RepeatPolicy, error) {
	if max < 1 {
		return RepeatPolicy{}, dErrors.Newf(dErrors.CodeInvalidInput, "bounded repeat policy requires max >= 1, got %d", max)
	}
	return RepeatPolicy{Kind: RepeatBounded, MaxRepeats: max}, nil
}

// UnboundedRepeat returns a policy with no repeat ceiling.
func UnboundedRepeat() RepeatPolicy {
	return RepeatPolicy{Kind: RepeatUnbounded}
}

// IsValidRepeatIndex reports whether a 1-based repeat index is permitted.
func (p RepeatPolicy) IsValidRepeatIndex(i int) bool {
	if i < 1 {
		return false
	}
	switch p.Kind {
	case RepeatNone:
		return i == 1
	case RepeatBounded:
		return i <= p.MaxRepeats
	case RepeatUnbounded:
		return true
	default:
		return false
	}
}

// CanAddMoreRepeats reports whether another repeat may be added given the
// number of repeats already used.
func (p RepeatPolicy) CanAddMoreRepeats(currentCount int) bool {
	switch p.Kind {
	case RepeatNone:
		return currentCount == 0
	case RepeatBounded:
		return currentCount < p.MaxRepeats
	case RepeatUnbounded:
		return true
	default:
		return false
	}
}

// MaxRepeatIndex returns the highest permitted repeat index. The second
// return value is false for unbounded policies, which have no ceiling.
func (p RepeatPolicy) MaxRepeatIndex() (int, bool) {
	switch p.Kind {
	case RepeatNone:
		return 1, true
	case RepeatBounded:
		return p.MaxRepeats, true
	default:
		return 0, false
	}
}
