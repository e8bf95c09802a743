// Package participation tracks per-participant attempt history against a
// survey: how many attempts were started and when the last one happened.
// The survey service consults this record for attempt-limit and cooldown
// gating before creating a response.
package participation

import (
	"context"
	"sync"
	"time"
)

// Tracker records and reports attempt history. Keys are the namespaced
// participant identity keys ("member_<id>" / "anonymous_<hash8>"), never raw
// identifiers.
type Tracker interface {
	// RecordAttempt registers one started attempt at the given instant.
	RecordAttempt(ctx context.Context, surveyKey, participantKey string, at time.Time) error

	// AttemptCount returns the number of recorded attempts.
	AttemptCount(ctx context.Context, surveyKey, participantKey string) (int, error)

	// LastAttempt returns the most recent attempt instant. ok is false when
	// no attempt was recorded.
	LastAttempt(ctx context.Context, surveyKey, participantKey string) (last time.Time, ok bool, err error)
}

type record struct {
	count int
	last  time.Time
}

// MemoryTracker keeps attempt history in process memory.
type MemoryTracker struct {
	mu      sync.RWMutex
	records map[string]record
}

func NewMemoryTracker() *MemoryTracker {
	return &MemoryTracker{records: make(map[string]record)}
}

func trackerKey(surveyKey, participantKey string) string {
	return surveyKey + ":" + participantKey
}

func (t *MemoryTracker) RecordAttempt(_ context.Context, surveyKey, participantKey string, at time.Time) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := trackerKey(surveyKey, participantKey)
	r := t.records[key]
	r.count++
	if at.After(r.last) {
		r.last = at
	}
	t.records[key] = r
	return nil
}

func (t *MemoryTracker) AttemptCount(_ context.Context, surveyKey, participantKey string) (int, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.records[trackerKey(surveyKey, participantKey)].count, nil
}

func (t *MemoryTracker) LastAttempt(_ context.Context, surveyKey, participantKey string) (time.Time, bool, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	r, ok := t.records[trackerKey(surveyKey, participantKey)]
	if !ok || r.last.IsZero() {
		return time.Time{}, false, nil
	}
	return r.last, true, nil
}
