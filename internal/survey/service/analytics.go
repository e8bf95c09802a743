package service

import (
	"context"
	"math"

	"refahi/internal/survey/models"
	"refahi/internal/survey/rules"
	id "refahi/pkg/domain"
)

// SurveyAnalytics summarizes participation across a survey's responses.
// Percentages are rounded to two decimals.
type SurveyAnalytics struct {
	TotalResponses     int
	SubmittedResponses int
	UniqueParticipants int
	// CompletionRate is submitted responses over all responses, percent.
	CompletionRate float64
	// AverageProgress is the mean per-response answered-question percentage
	// across non-terminal and submitted responses.
	AverageProgress float64
	// ParticipationRate is unique participants over the eligible population,
	// percent. Zero when the population is unknown.
	ParticipationRate float64
}

// Analytics computes the survey-level participation summary. eligibleCount
// is the size of the target population; pass 0 when unknown and the
// participation rate is omitted.
func (s *Service) Analytics(ctx context.Context, surveyID id.SurveyID, eligibleCount int) (*SurveyAnalytics, error) {
	ctx, span := s.tracer.Start(ctx, "survey.Analytics")
	defer span.End()

	survey, err := s.store.GetWithResponses(ctx, surveyID)
	if err != nil {
		return nil, translateStoreErr(err, "load survey")
	}

	responses := survey.ResponsesList()
	out := &SurveyAnalytics{
		TotalResponses:     len(responses),
		UniqueParticipants: rules.CalculateUniqueParticipants(responses),
	}

	var progressSum float64
	var progressCount int
	for _, r := range responses {
		if r.AttemptStatus == models.AttemptSubmitted {
			out.SubmittedResponses++
		}
		if r.AttemptStatus == models.AttemptActive || r.AttemptStatus == models.AttemptSubmitted {
			p, err := survey.ResponseProgress(r.ID)
			if err != nil {
				return nil, err
			}
			progressSum += p.CompletionPercentage
			progressCount++
		}
	}

	if out.TotalResponses > 0 {
		out.CompletionRate = roundPct(float64(out.SubmittedResponses) / float64(out.TotalResponses) * 100)
	}
	if progressCount > 0 {
		out.AverageProgress = roundPct(progressSum / float64(progressCount))
	}
	if eligibleCount > 0 {
		out.ParticipationRate = roundPct(float64(out.UniqueParticipants) / float64(eligibleCount) * 100)
	}
	return out, nil
}

func roundPct(v float64) float64 {
	return math.Round(v*100) / 100
}
