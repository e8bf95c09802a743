package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"refahi/internal/events"
	"refahi/internal/member"
	"refahi/internal/participation"
	"refahi/internal/survey/models"
	"refahi/internal/survey/store"
	id "refahi/pkg/domain"
	"refahi/pkg/requestcontext"
)

type fixture struct {
	svc       *Service
	store     *store.MemoryStore
	tracker   *participation.MemoryTracker
	sink      *events.MemorySink
	directory *member.MemoryDirectory

	lastSurvey *models.Survey
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:     store.NewMemoryStore(),
		tracker:   participation.NewMemoryTracker(),
		sink:      events.NewMemorySink(),
		directory: member.NewMemoryDirectory(),
	}
	svc, err := New(f.store, f.tracker,
		WithEventSink(f.sink),
		WithDirectory(f.directory),
	)
	require.NoError(t, err)
	f.svc = svc
	return f
}

var errTrackerDown = errors.New("tracker unavailable")

// failingTracker simulates an unreachable attempt cache.
type failingTracker struct{}

func (failingTracker) RecordAttempt(context.Context, string, string, time.Time) error {
	return errTrackerDown
}

func (failingTracker) AttemptCount(context.Context, string, string) (int, error) {
	return 0, errTrackerDown
}

func (failingTracker) LastAttempt(context.Context, string, string) (time.Time, bool, error) {
	return time.Time{}, false, errTrackerDown
}

type surveyOption func(*models.Survey)

func withPolicy(p models.ParticipationPolicy) surveyOption {
	return func(s *models.Survey) { s.Policy = p }
}

func withWindow(start, end time.Time) surveyOption {
	return func(s *models.Survey) {
		s.StartAt = &start
		s.EndAt = &end
	}
}

func withAccessCodes(features, capabilities []string) surveyOption {
	return func(s *models.Survey) { s.WithAccessCodes(features, capabilities) }
}

func closedSurvey() surveyOption {
	return func(s *models.Survey) { s.AcceptingResponses = false }
}

// twoQuestionSurvey builds and persists a survey with one required textual
// question followed by one required single-choice question.
func (f *fixture) twoQuestionSurvey(t *testing.T, opts ...surveyOption) (*models.Survey, models.Question, models.Question) {
	t.Helper()
	q1, err := models.NewQuestion(id.NewQuestionID(), models.QuestionTextual, "How was the facility?", 1, true, models.NoRepeat(), nil)
	require.NoError(t, err)
	opt := models.Option{ID: id.NewOptionID(), Text: "Would recommend", Active: true}
	q2, err := models.NewQuestion(id.NewQuestionID(), models.QuestionChoiceSingle, "Overall verdict", 2, true, models.NoRepeat(), []models.Option{opt})
	require.NoError(t, err)

	policy, err := models.NewParticipationPolicy(3, true, 0, true)
	require.NoError(t, err)
	survey, err := models.NewSurvey(id.NewSurveyID(), "Facility feedback", []models.Question{q1, q2}, policy)
	require.NoError(t, err)
	for _, o := range opts {
		o(survey)
	}
	require.NoError(t, f.store.CreateSurvey(context.Background(), survey))
	f.lastSurvey = survey
	return survey, q1, q2
}

// memberProfile builds a directory entry with demography for snapshot tests.
func memberProfile(memberID id.MemberID) *member.Profile {
	return &member.Profile{
		MemberID:     memberID,
		FullName:     "Snapshot Member",
		Features:     []string{"HOUSING"},
		Capabilities: []string{"ACTIVE"},
		Groups:       []string{"ENGINEERS"},
		Demography: map[string]string{
			models.DemographyProvinceCode: "21",
			models.DemographyAgeGroup:     "25-34",
		},
	}
}

// randomHash yields a distinct anonymous participant hash per call. The
// leading segment is unique so short-prefix interference checks never
// collide between test participants.
func randomHash() string {
	return uuid.NewString()
}

func (f *fixture) memberParticipant(t *testing.T, features, capabilities, groups []string) models.ParticipantInfo {
	t.Helper()
	memberID := id.NewMemberID()
	f.directory.Seed(&member.Profile{
		MemberID:     memberID,
		FullName:     "Test Member",
		Features:     features,
		Capabilities: capabilities,
		Groups:       groups,
	})
	p, err := models.ParticipantForMember(memberID)
	require.NoError(t, err)
	return p
}

func testCtx(at time.Time) context.Context {
	return requestcontext.WithTime(context.Background(), at)
}

var testNow = time.Date(2026, 4, 15, 12, 0, 0, 0, time.UTC)
