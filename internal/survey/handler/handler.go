// Package handler exposes the survey navigation and response endpoints.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"refahi/internal/platform/metrics"
	"refahi/internal/platform/middleware"
	"refahi/internal/survey/models"
	"refahi/internal/survey/service"
	id "refahi/pkg/domain"
	dErrors "refahi/pkg/domain-errors"
	"refahi/pkg/participanthash"
	"refahi/pkg/requestcontext"
)

// Service defines the interface for survey response operations.
type Service interface {
	StartResponse(ctx context.Context, req service.StartRequest) (*service.StartedResponse, error)
	CheckEligibility(ctx context.Context, surveyID id.SurveyID, participant models.ParticipantInfo) (*service.Eligibility, error)
	Analytics(ctx context.Context, surveyID id.SurveyID, eligibleCount int) (*service.SurveyAnalytics, error)
	CurrentQuestion(ctx context.Context, responseID id.ResponseID) (*service.NavigationState, error)
	GoNext(ctx context.Context, responseID id.ResponseID) (*service.NavigationState, error)
	GoPrevious(ctx context.Context, responseID id.ResponseID) (*service.NavigationState, error)
	JumpTo(ctx context.Context, responseID id.ResponseID, target id.QuestionID, repeatIndex int, toFirst bool) (*service.NavigationState, error)
	AnswerQuestion(ctx context.Context, responseID id.ResponseID, questionID id.QuestionID, textAnswer string, optionIDs []id.OptionID) (*service.AnswerResult, error)
	Submit(ctx context.Context, responseID id.ResponseID) (*service.SubmitResult, error)
	Cancel(ctx context.Context, responseID id.ResponseID) error
}

// Handler handles survey participation endpoints.
type Handler struct {
	logger       *slog.Logger
	surveys      Service
	metrics      *metrics.Metrics
	jwtValidator middleware.JWTValidator
	anonSalt     string
}

// New creates a new survey Handler.
func New(
	surveys Service,
	logger *slog.Logger,
	metrics *metrics.Metrics,
	jwtValidator middleware.JWTValidator,
	anonSalt string) *Handler {
	return &Handler{
		logger:       logger,
		surveys:      surveys,
		metrics:      metrics,
		jwtValidator: jwtValidator,
		anonSalt:     anonSalt,
	}
}

// Register registers the survey routes with the chi router. Authentication is
// optional: members present a bearer token, anonymous participants are keyed
// by an opaque hash derived from their client metadata.
func (h *Handler) Register(r chi.Router) {
	surveyRouter := chi.NewRouter()
	surveyRouter.Use(middleware.Recovery(h.logger))
	surveyRouter.Use(middleware.RequestID)
	surveyRouter.Use(middleware.RequestTime)
	surveyRouter.Use(middleware.ClientMetadata)
	surveyRouter.Use(middleware.Logger(h.logger))
	surveyRouter.Use(middleware.Timeout(30 * time.Second))
	surveyRouter.Use(middleware.ContentTypeJSON)
	surveyRouter.Use(middleware.LatencyMiddleware(h.metrics))
	surveyRouter.Use(middleware.OptionalAuth(h.jwtValidator, h.logger))

	surveyRouter.Post("/surveys/{surveyID}/responses", h.handleStartResponse)
	surveyRouter.Get("/surveys/{surveyID}/eligibility", h.handleEligibility)
	surveyRouter.Get("/surveys/{surveyID}/analytics", h.handleAnalytics)

	surveyRouter.Get("/responses/{responseID}/question", h.handleCurrentQuestion)
	surveyRouter.Post("/responses/{responseID}/next", h.handleNext)
	surveyRouter.Post("/responses/{responseID}/previous", h.handlePrevious)
	surveyRouter.Post("/responses/{responseID}/jump", h.handleJump)
	surveyRouter.Post("/responses/{responseID}/answers", h.handleAnswer)
	surveyRouter.Post("/responses/{responseID}/submit", h.handleSubmit)
	surveyRouter.Post("/responses/{responseID}/cancel", h.handleCancel)

	r.Mount("/", surveyRouter)
}

// participant resolves the respondent identity: the authenticated member when
// a token was presented, otherwise an anonymous identity hashed from the
// client metadata the middleware captured.
func (h *Handler) participant(ctx context.Context) (models.ParticipantInfo, error) {
	if memberID := requestcontext.MemberID(ctx); !memberID.IsNil() {
		return models.ParticipantForMember(memberID)
	}
	raw := requestcontext.ClientIP(ctx) + "|" + requestcontext.UserAgent(ctx) + "|" + requestcontext.Device(ctx)
	return models.ParticipantForAnonymous(participanthash.Derive(h.anonSalt, raw))
}

func (h *Handler) handleStartResponse(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	surveyID, err := id.ParseSurveyID(chi.URLParam(r, "surveyID"))
	if err != nil {
		writeError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid survey id"))
		return
	}

	var req startResponseRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.logger.WarnContext(ctx, "invalid start response request",
				"request_id", middleware.GetRequestID(ctx),
				"error", err.Error(),
			)
			writeError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
			return
		}
	}

	participant, err := h.participant(ctx)
	if err != nil {
		writeError(w, err)
		return
	}

	started, err := h.surveys.StartResponse(ctx, service.StartRequest{
		SurveyID:    surveyID,
		Participant: participant,
		Demography:  req.Demography,
	})
	if err != nil {
		h.logError(ctx, "start response failed", err)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, startResponseResponse{
		ResponseID:    started.ResponseID.String(),
		AttemptNumber: started.AttemptNumber,
		Navigation:    toNavigationDTO(started.Navigation),
	})
}

func (h *Handler) handleEligibility(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	surveyID, err := id.ParseSurveyID(chi.URLParam(r, "surveyID"))
	if err != nil {
		writeError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid survey id"))
		return
	}

	participant, err := h.participant(ctx)
	if err != nil {
		writeError(w, err)
		return
	}

	eligibility, err := h.surveys.CheckEligibility(ctx, surveyID, participant)
	if err != nil {
		h.logError(ctx, "eligibility check failed", err)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, eligibilityResponse{
		Eligible: eligibility.Eligible,
		Reasons:  eligibility.Reasons,
	})
}

func (h *Handler) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	surveyID, err := id.ParseSurveyID(chi.URLParam(r, "surveyID"))
	if err != nil {
		writeError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid survey id"))
		return
	}

	population := 0
	if raw := r.URL.Query().Get("population"); raw != "" {
		population, err = strconv.Atoi(raw)
		if err != nil || population < 0 {
			writeError(w, dErrors.New(dErrors.CodeInvalidInput, "population must be a non-negative integer"))
			return
		}
	}

	analytics, err := h.surveys.Analytics(ctx, surveyID, population)
	if err != nil {
		h.logError(ctx, "analytics failed", err)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, analyticsResponse{
		TotalResponses:     analytics.TotalResponses,
		SubmittedResponses: analytics.SubmittedResponses,
		UniqueParticipants: analytics.UniqueParticipants,
		CompletionRate:     analytics.CompletionRate,
		AverageProgress:    analytics.AverageProgress,
		ParticipationRate:  analytics.ParticipationRate,
	})
}

func (h *Handler) handleCurrentQuestion(w http.ResponseWriter, r *http.Request) {
	h.navigate(w, r, h.surveys.CurrentQuestion)
}

func (h *Handler) handleNext(w http.ResponseWriter, r *http.Request) {
	h.navigate(w, r, h.surveys.GoNext)
}

func (h *Handler) handlePrevious(w http.ResponseWriter, r *http.Request) {
	h.navigate(w, r, h.surveys.GoPrevious)
}

// navigate factors the shared shape of the cursor endpoints: parse the
// response ID, run the command, render the resulting navigation state.
func (h *Handler) navigate(w http.ResponseWriter, r *http.Request,
	cmd func(context.Context, id.ResponseID) (*service.NavigationState, error)) {
	ctx := r.Context()

	responseID, err := id.ParseResponseID(chi.URLParam(r, "responseID"))
	if err != nil {
		writeError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid response id"))
		return
	}

	state, err := cmd(ctx, responseID)
	if err != nil {
		h.logError(ctx, "navigation failed", err)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toNavigationDTO(state))
}

func (h *Handler) handleJump(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	responseID, err := id.ParseResponseID(chi.URLParam(r, "responseID"))
	if err != nil {
		writeError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid response id"))
		return
	}

	var req jumpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	var target id.QuestionID
	if req.QuestionID != "" {
		target, err = id.ParseQuestionID(req.QuestionID)
		if err != nil {
			writeError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid question id"))
			return
		}
	} else if !req.ToFirst {
		writeError(w, dErrors.New(dErrors.CodeInvalidInput, "jump requires a question id or to_first"))
		return
	}

	state, err := h.surveys.JumpTo(ctx, responseID, target, req.RepeatIndex, req.ToFirst)
	if err != nil {
		h.logError(ctx, "jump failed", err)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toNavigationDTO(state))
}

func (h *Handler) handleAnswer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	responseID, err := id.ParseResponseID(chi.URLParam(r, "responseID"))
	if err != nil {
		writeError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid response id"))
		return
	}

	var req answerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	questionID, err := id.ParseQuestionID(req.QuestionID)
	if err != nil {
		writeError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid question id"))
		return
	}

	optionIDs := make([]id.OptionID, 0, len(req.OptionIDs))
	for _, raw := range req.OptionIDs {
		optionID, err := id.ParseOptionID(raw)
		if err != nil {
			writeError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid option id"))
			return
		}
		optionIDs = append(optionIDs, optionID)
	}

	result, err := h.surveys.AnswerQuestion(ctx, responseID, questionID, req.Text, optionIDs)
	if err != nil {
		h.logError(ctx, "answer failed", err)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, answerResponse{
		Status:   string(result.Status),
		Progress: toProgressDTO(result.Progress),
	})
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	responseID, err := id.ParseResponseID(chi.URLParam(r, "responseID"))
	if err != nil {
		writeError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid response id"))
		return
	}

	result, err := h.surveys.Submit(ctx, responseID)
	if err != nil {
		h.logError(ctx, "submit failed", err)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, submitResponse{
		SubmittedAt: result.SubmittedAt,
		Progress:    toProgressDTO(result.Progress),
	})
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	responseID, err := id.ParseResponseID(chi.URLParam(r, "responseID"))
	if err != nil {
		writeError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid response id"))
		return
	}

	if err := h.surveys.Cancel(ctx, responseID); err != nil {
		h.logError(ctx, "cancel failed", err)
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// logError keeps the noise level proportional to severity: expected domain
// outcomes log at warn, everything else at error.
func (h *Handler) logError(ctx context.Context, msg string, err error) {
	code := dErrors.CodeOf(err)
	attrs := []any{
		"request_id", middleware.GetRequestID(ctx),
		"error", err.Error(),
		"code", string(code),
	}
	if code == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, msg, attrs...)
		return
	}
	h.logger.WarnContext(ctx, msg, attrs...)
}
