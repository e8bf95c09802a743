// Package store persists Survey aggregates. Implementations load the full
// aggregate (questions and responses) and commit response mutations through
// a versioned save, surfacing sentinel.ErrConflict when the optimistic
// concurrency token moved underneath the caller.
package store

import (
	"context"

	"refahi/internal/survey/models"
	id "refahi/pkg/domain"
)

// SurveyStore is interface-driven to keep the domain logic testable and to
// allow swapping in-memory and PostgreSQL persistence without rewiring
// business code.
type SurveyStore interface {
	// CreateSurvey persists a new aggregate with its question set.
	CreateSurvey(ctx context.Context, s *models.Survey) error

	// GetWithResponses loads a full aggregate by survey id.
	GetWithResponses(ctx context.Context, surveyID id.SurveyID) (*models.Survey, error)

	// GetByResponseID loads the full aggregate containing a response.
	GetByResponseID(ctx context.Context, responseID id.ResponseID) (*models.Survey, error)

	// AddResponse persists a newly started attempt attached to the loaded
	// aggregate.
	AddResponse(ctx context.Context, s *models.Survey, responseID id.ResponseID) error

	// SaveResponse commits all in-memory mutations of one response as a unit
	// of work. The stored row's version must match the loaded response's
	// Version; on success both are advanced. A mismatch returns
	// sentinel.ErrConflict (wrapped) for the caller to surface as a
	// retryable conflict.
	SaveResponse(ctx context.Context, s *models.Survey, responseID id.ResponseID) error
}
