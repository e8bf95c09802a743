package handler

import (
	"time"

	"refahi/internal/survey/models"
	"refahi/internal/survey/service"
)

type startResponseRequest struct {
	Demography map[string]string `json:"demography,omitempty"`
}

type startResponseResponse struct {
	ResponseID    string             `json:"response_id"`
	AttemptNumber int                `json:"attempt_number"`
	Navigation    *navigationStateDTO `json:"navigation"`
}

type answerRequest struct {
	QuestionID string   `json:"question_id"`
	Text       string   `json:"text,omitempty"`
	OptionIDs  []string `json:"option_ids,omitempty"`
}

type answerResponse struct {
	Status   string      `json:"status"`
	Progress progressDTO `json:"progress"`
}

type jumpRequest struct {
	QuestionID  string `json:"question_id,omitempty"`
	RepeatIndex int    `json:"repeat_index"`
	ToFirst     bool   `json:"to_first,omitempty"`
}

type submitResponse struct {
	SubmittedAt time.Time   `json:"submitted_at"`
	Progress    progressDTO `json:"progress"`
}

type eligibilityResponse struct {
	Eligible bool     `json:"eligible"`
	Reasons  []string `json:"reasons,omitempty"`
}

type analyticsResponse struct {
	TotalResponses     int     `json:"total_responses"`
	SubmittedResponses int     `json:"submitted_responses"`
	UniqueParticipants int     `json:"unique_participants"`
	CompletionRate     float64 `json:"completion_rate"`
	AverageProgress    float64 `json:"average_progress"`
	ParticipationRate  float64 `json:"participation_rate"`
}

type progressDTO struct {
	Answered             int     `json:"answered"`
	Total                int     `json:"total"`
	CompletionPercentage float64 `json:"completion_percentage"`
}

type optionDTO struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

type questionDTO struct {
	ID         string      `json:"id"`
	Kind       string      `json:"kind"`
	Text       string      `json:"text"`
	Order      int         `json:"order"`
	IsRequired bool        `json:"is_required"`
	MaxRepeats int         `json:"max_repeats,omitempty"`
	Options    []optionDTO `json:"options,omitempty"`
}

type navigationStateDTO struct {
	ResponseID  string       `json:"response_id"`
	QuestionID  string       `json:"question_id"`
	RepeatIndex int          `json:"repeat_index"`
	Moved       bool         `json:"moved"`
	Status      string       `json:"status"`
	Progress    progressDTO  `json:"progress"`
	Question    *questionDTO `json:"question,omitempty"`
}

func toProgressDTO(p models.Progress) progressDTO {
	return progressDTO{
		Answered:             p.Answered,
		Total:                p.Total,
		CompletionPercentage: p.CompletionPercentage,
	}
}

func toQuestionDTO(q *models.Question) *questionDTO {
	if q == nil {
		return nil
	}
	dto := &questionDTO{
		ID:         q.ID.String(),
		Kind:       string(q.Kind),
		Text:       q.Text,
		Order:      q.Order,
		IsRequired: q.IsRequired,
		MaxRepeats: q.Repeat.MaxRepeats,
	}
	for _, opt := range q.Options {
		if !opt.Active {
			continue
		}
		dto.Options = append(dto.Options, optionDTO{ID: opt.ID.String(), Text: opt.Text})
	}
	return dto
}

func toNavigationDTO(state *service.NavigationState) *navigationStateDTO {
	if state == nil {
		return nil
	}
	return &navigationStateDTO{
		ResponseID:  state.ResponseID.String(),
		QuestionID:  state.QuestionID.String(),
		RepeatIndex: state.RepeatIndex,
		Moved:       state.Moved,
		Status:      string(state.Status),
		Progress:    toProgressDTO(state.Progress),
		Question:    toQuestionDTO(state.Question),
	}
}
