package store

import (
	"context"
	"fmt"
	"sync"

	"refahi/internal/survey/models"
	id "refahi/pkg/domain"
	"refahi/pkg/sentinel"
)

// MemoryStore keeps aggregates in process memory. Gets return deep copies so
// callers mutate a private view, which makes the versioned save meaningful:
// two loads of the same response race exactly as they would against a
// database row.
type MemoryStore struct {
	mu      sync.RWMutex
	surveys map[id.SurveyID]*models.Survey
	// byResponse indexes the owning survey for GetByResponseID.
	byResponse map[id.ResponseID]id.SurveyID
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		surveys:    make(map[id.SurveyID]*models.Survey),
		byResponse: make(map[id.ResponseID]id.SurveyID),
	}
}

func (m *MemoryStore) CreateSurvey(_ context.Context, s *models.Survey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.surveys[s.ID]; exists {
		return fmt.Errorf("survey %s: %w", s.ID, sentinel.ErrConflict)
	}
	clone := cloneSurvey(s)
	m.surveys[s.ID] = clone
	for rid := range clone.Responses {
		m.byResponse[rid] = s.ID
	}
	return nil
}

func (m *MemoryStore) GetWithResponses(_ context.Context, surveyID id.SurveyID) (*models.Survey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.surveys[surveyID]
	if !ok {
		return nil, fmt.Errorf("survey %s: %w", surveyID, sentinel.ErrNotFound)
	}
	return cloneSurvey(s), nil
}

func (m *MemoryStore) GetByResponseID(_ context.Context, responseID id.ResponseID) (*models.Survey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	surveyID, ok := m.byResponse[responseID]
	if !ok {
		return nil, fmt.Errorf("response %s: %w", responseID, sentinel.ErrNotFound)
	}
	s, ok := m.surveys[surveyID]
	if !ok {
		return nil, fmt.Errorf("survey %s: %w", surveyID, sentinel.ErrNotFound)
	}
	return cloneSurvey(s), nil
}

func (m *MemoryStore) AddResponse(_ context.Context, s *models.Survey, responseID id.ResponseID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.surveys[s.ID]
	if !ok {
		return fmt.Errorf("survey %s: %w", s.ID, sentinel.ErrNotFound)
	}
	r, ok := s.Responses[responseID]
	if !ok {
		return fmt.Errorf("response %s: %w", responseID, sentinel.ErrNotFound)
	}
	if _, exists := stored.Responses[responseID]; exists {
		return fmt.Errorf("response %s: %w", responseID, sentinel.ErrConflict)
	}
	stored.Responses[responseID] = cloneResponse(r)
	m.byResponse[responseID] = s.ID
	return nil
}

func (m *MemoryStore) SaveResponse(_ context.Context, s *models.Survey, responseID id.ResponseID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.surveys[s.ID]
	if !ok {
		return fmt.Errorf("survey %s: %w", s.ID, sentinel.ErrNotFound)
	}
	loaded, ok := s.Responses[responseID]
	if !ok {
		return fmt.Errorf("response %s: %w", responseID, sentinel.ErrNotFound)
	}
	current, ok := stored.Responses[responseID]
	if !ok {
		return fmt.Errorf("response %s: %w", responseID, sentinel.ErrNotFound)
	}
	if current.Version != loaded.Version {
		return fmt.Errorf("response %s version %d moved to %d: %w", responseID, loaded.Version, current.Version, sentinel.ErrConflict)
	}
	committed := cloneResponse(loaded)
	committed.Version++
	stored.Responses[responseID] = committed
	loaded.Version++
	return nil
}

func cloneSurvey(s *models.Survey) *models.Survey {
	clone := *s
	clone.Questions = make([]models.Question, len(s.Questions))
	for i, q := range s.Questions {
		cq := q
		cq.Options = append([]models.Option(nil), q.Options...)
		clone.Questions[i] = cq
	}
	clone.RequiredFeatures = append([]string(nil), s.RequiredFeatures...)
	clone.RequiredCapabilities = append([]string(nil), s.RequiredCapabilities...)
	if s.Audience != nil {
		audience := *s.Audience
		clone.Audience = &audience
	}
	clone.Responses = make(map[id.ResponseID]*models.Response, len(s.Responses))
	for rid, r := range s.Responses {
		clone.Responses[rid] = cloneResponse(r)
	}
	return &clone
}

func cloneResponse(r *models.Response) *models.Response {
	clone := *r
	clone.Answers = make([]models.QuestionAnswer, len(r.Answers))
	for i, a := range r.Answers {
		ca := a
		ca.SelectedOptions = append([]models.SelectedOption(nil), a.SelectedOptions...)
		clone.Answers[i] = ca
	}
	if r.Demography.Attributes != nil {
		attrs := make(map[string]string, len(r.Demography.Attributes))
		for k, v := range r.Demography.Attributes {
			attrs[k] = v
		}
		clone.Demography.Attributes = attrs
	}
	if r.SubmittedAt != nil {
		at := *r.SubmittedAt
		clone.SubmittedAt = &at
	}
	return &clone
}
