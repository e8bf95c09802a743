// Package service orchestrates survey commands: it loads the aggregate,
// gates participation and navigation policy, delegates state changes to the
// aggregate, and commits each command through a versioned save.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"refahi/internal/events"
	"refahi/internal/member"
	"refahi/internal/participation"
	"refahi/internal/survey/metrics"
	"refahi/internal/survey/store"
	dErrors "refahi/pkg/domain-errors"
	"refahi/pkg/sentinel"
)

// Type aliases for collaborator interfaces defined alongside their
// implementations.
type (
	Store     = store.SurveyStore
	Tracker   = participation.Tracker
	Directory = member.Directory
	EventSink = events.Sink
)

// Service is the survey command handler.
type Service struct {
	store     Store
	tracker   Tracker
	directory Directory
	sink      EventSink
	metrics   *metrics.Metrics
	logger    *slog.Logger
	tracer    trace.Tracer
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithEventSink(sink EventSink) Option {
	return func(s *Service) { s.sink = sink }
}

func WithDirectory(directory Directory) Option {
	return func(s *Service) { s.directory = directory }
}

func New(store Store, tracker Tracker, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("survey store is required")
	}
	if tracker == nil {
		return nil, fmt.Errorf("participation tracker is required")
	}
	svc := &Service{
		store:   store,
		tracker: tracker,
		logger:  slog.Default(),
		tracer:  otel.Tracer("refahi/survey"),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// translateStoreErr maps sentinel store errors onto domain error codes.
// Version conflicts surface as CodeConflict so HTTP callers see 409 and can
// reload and retry.
func translateStoreErr(err error, msg string) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeNotFound, msg)
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.Wrap(err, dErrors.CodeConflict, msg)
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, msg)
	}
}

func (s *Service) observeOutcome(operation string, err error) string {
	if err == nil {
		return "ok"
	}
	switch {
	case dErrors.HasCode(err, dErrors.CodePolicyViolation):
		return "denied"
	case dErrors.HasCode(err, dErrors.CodeConflict):
		s.metrics.RecordSaveConflict()
		return "conflict"
	case dErrors.HasCode(err, dErrors.CodeNotFound):
		return "not_found"
	default:
		s.logger.Error("survey command failed", "operation", operation, "error", err)
		return "error"
	}
}

// publish emits a lifecycle event without failing the command. The state
// change is already committed when this runs.
func (s *Service) publish(ctx context.Context, event events.Event) {
	if s.sink == nil {
		return
	}
	if err := s.sink.Publish(ctx, event); err != nil {
		s.logger.Warn("event publish failed",
			"type", event.Type,
			"survey_id", event.SurveyID,
			"error", err,
		)
	}
}
