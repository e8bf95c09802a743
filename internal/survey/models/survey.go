package models

import (
	"math"
	"sort"
	"time"

	id "refahi/pkg/domain"
	dErrors "refahi/pkg/domain-errors"
	pstrings "refahi/pkg/platform/strings"
)

// ReviewThreshold is the distinct-question completion fraction at which an
// active response flips between Answering and Reviewing. The flip has no
// hysteresis: editing answers near the boundary can oscillate the status,
// which matches the legacy behavior.
const ReviewThreshold = 0.80

// Progress summarizes how far a response has come through the question list.
type Progress struct {
	Answered             int
	Total                int
	CompletionPercentage float64
}

// Survey is the aggregate root owning the question sequence, the responses,
// and all navigation and answer behavior. Responses are mutated exclusively
// through aggregate methods so cursor and answer changes are checked against
// the same question list in one unit of work.
type Survey struct {
	ID        id.SurveyID
	Title     string
	Questions []Question
	Responses map[id.ResponseID]*Response
	Policy    ParticipationPolicy
	Audience  *AudienceFilter
	StartAt   *time.Time
	EndAt     *time.Time

	// Access codes gating member participation. Both groups declared means a
	// member must satisfy both; one group declared means that group alone.
	RequiredFeatures     []string
	RequiredCapabilities []string

	AcceptingResponses bool
}

// NewSurvey validates the question set (unique Order values) and returns the
// aggregate with questions sorted into navigation sequence.
func NewSurvey(surveyID id.SurveyID, title string, questions []Question, policy ParticipationPolicy) (*Survey, error) {
	if surveyID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "survey id is required")
	}
	orders := make(map[int]struct{}, len(questions))
	for _, q := range questions {
		if _, dup := orders[q.Order]; dup {
			return nil, dErrors.Newf(dErrors.CodeInvariantViolation, "duplicate question order %d", q.Order)
		}
		orders[q.Order] = struct{}{}
	}
	sorted := make([]Question, len(questions))
	copy(sorted, questions)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Order < sorted[j].Order })

	return &Survey{
		ID:                 surveyID,
		Title:              title,
		Questions:          sorted,
		Responses:          make(map[id.ResponseID]*Response),
		Policy:             policy,
		AcceptingResponses: true,
	}, nil
}

// WithAccessCodes sets the required feature/capability codes, normalized.
func (s *Survey) WithAccessCodes(features, capabilities []string) *Survey {
	s.RequiredFeatures = pstrings.DedupeAndTrimUpper(features)
	s.RequiredCapabilities = pstrings.DedupeAndTrimUpper(capabilities)
	return s
}

// IsWindowOpen reports whether now falls inside the optional response window.
func (s *Survey) IsWindowOpen(now time.Time) bool {
	if s.StartAt != nil && now.Before(*s.StartAt) {
		return false
	}
	if s.EndAt != nil && now.After(*s.EndAt) {
		return false
	}
	return true
}

// QuestionByID looks up a question definition.
func (s *Survey) QuestionByID(questionID id.QuestionID) (Question, bool) {
	for _, q := range s.Questions {
		if q.ID == questionID {
			return q, true
		}
	}
	return Question{}, false
}

// OptionText resolves an option label for denormalizing into answer
// snapshots.
func (s *Survey) OptionText(questionID id.QuestionID, optionID id.OptionID) (string, error) {
	q, ok := s.QuestionByID(questionID)
	if !ok {
		return "", dErrors.Newf(dErrors.CodeNotFound, "question %s not found", questionID)
	}
	text, ok := q.OptionText(optionID)
	if !ok {
		return "", dErrors.Newf(dErrors.CodeNotFound, "option %s not found on question %s", optionID, questionID)
	}
	return text, nil
}

// AddResponse attaches a new attempt to the aggregate.
func (s *Survey) AddResponse(r *Response) error {
	if r.SurveyID != s.ID {
		return dErrors.New(dErrors.CodeInvariantViolation, "response belongs to a different survey")
	}
	if _, exists := s.Responses[r.ID]; exists {
		return dErrors.Newf(dErrors.CodeConflict, "response %s already exists", r.ID)
	}
	s.Responses[r.ID] = r
	return nil
}

// ResponseByID locates an attempt within the aggregate.
func (s *Survey) ResponseByID(responseID id.ResponseID) (*Response, error) {
	r, ok := s.Responses[responseID]
	if !ok {
		return nil, dErrors.Newf(dErrors.CodeNotFound, "response %s not found", responseID)
	}
	return r, nil
}

// ResponsesList returns the responses in no particular order. Read-only use
// (rules, analytics); mutation still goes through aggregate methods.
func (s *Survey) ResponsesList() []*Response {
	out := make([]*Response, 0, len(s.Responses))
	for _, r := range s.Responses {
		out = append(out, r)
	}
	return out
}

func (s *Survey) firstQuestion() (Question, bool) {
	if len(s.Questions) == 0 {
		return Question{}, false
	}
	return s.Questions[0], true
}

func (s *Survey) questionAfter(order int) (Question, bool) {
	for _, q := range s.Questions {
		if q.Order > order {
			return q, true
		}
	}
	return Question{}, false
}

func (s *Survey) questionBefore(order int) (Question, bool) {
	var (
		found Question
		ok    bool
	)
	for _, q := range s.Questions {
		if q.Order < order {
			found, ok = q, true
		}
	}
	return found, ok
}

// CurrentNavigationState returns the cursor for a response. An unset cursor
// defaults to the lowest-Order question at repeat index 1. The question id is
// nil when the survey has no questions.
func (s *Survey) CurrentNavigationState(responseID id.ResponseID) (id.QuestionID, int, error) {
	r, err := s.ResponseByID(responseID)
	if err != nil {
		return id.QuestionID{}, 0, err
	}
	if r.Cursor.IsSet() {
		return r.Cursor.QuestionID, r.Cursor.RepeatIndex, nil
	}
	first, ok := s.firstQuestion()
	if !ok {
		return id.QuestionID{}, 1, nil
	}
	return first.ID, 1, nil
}

// NavigateResponseToNext advances the cursor. Advance rule: when the current
// question permits another repeat, the repeat index increments; otherwise the
// cursor moves to the next question by Order at repeat index 1. Returns false
// and leaves the cursor unchanged at the last question with no further
// repeats.
func (s *Survey) NavigateResponseToNext(responseID id.ResponseID) (bool, error) {
	r, err := s.ResponseByID(responseID)
	if err != nil {
		return false, err
	}
	if r.IsTerminal() {
		return false, PolicyError(ReasonResponseImmutable, "response is no longer editable")
	}
	qid, idx, err := s.CurrentNavigationState(responseID)
	if err != nil {
		return false, err
	}
	if qid.IsNil() {
		return false, nil
	}
	q, ok := s.QuestionByID(qid)
	if !ok {
		return false, dErrors.Newf(dErrors.CodeNotFound, "cursor question %s not found", qid)
	}
	if q.Repeat.CanAddMoreRepeats(idx) {
		r.Cursor = NavigationCursor{QuestionID: qid, RepeatIndex: idx + 1}
		return true, nil
	}
	next, ok := s.questionAfter(q.Order)
	if !ok {
		return false, nil
	}
	r.Cursor = NavigationCursor{QuestionID: next.ID, RepeatIndex: 1}
	return true, nil
}

// NavigateResponseToPrevious steps the cursor back. Symmetric to Next: within
// a question the repeat index decrements; at repeat 1 the cursor moves to the
// previous question's last reachable repeat. Returns false at the first
// question, first repeat. The back-navigation policy gate lives in the
// command handler; this method assumes it already passed.
func (s *Survey) NavigateResponseToPrevious(responseID id.ResponseID) (bool, error) {
	r, err := s.ResponseByID(responseID)
	if err != nil {
		return false, err
	}
	if r.IsTerminal() {
		return false, PolicyError(ReasonResponseImmutable, "response is no longer editable")
	}
	qid, idx, err := s.CurrentNavigationState(responseID)
	if err != nil {
		return false, err
	}
	if qid.IsNil() {
		return false, nil
	}
	if idx > 1 {
		r.Cursor = NavigationCursor{QuestionID: qid, RepeatIndex: idx - 1}
		return true, nil
	}
	q, ok := s.QuestionByID(qid)
	if !ok {
		return false, dErrors.Newf(dErrors.CodeNotFound, "cursor question %s not found", qid)
	}
	prev, ok := s.questionBefore(q.Order)
	if !ok {
		return false, nil
	}
	r.Cursor = NavigationCursor{QuestionID: prev.ID, RepeatIndex: s.lastReachableRepeat(r, prev)}
	return true, nil
}

// lastReachableRepeat mirrors the forward advance rule: for bounded policies
// it is the ceiling; for unbounded ones there is no ceiling, so the highest
// answered repeat (or 1) stands in.
func (s *Survey) lastReachableRepeat(r *Response, q Question) int {
	if max, ok := q.Repeat.MaxRepeatIndex(); ok {
		return max
	}
	highest := 1
	for _, a := range r.AnswersFor(q.ID) {
		if a.RepeatIndex > highest {
			highest = a.RepeatIndex
		}
	}
	return highest
}

// NavigateResponseToQuestion jumps the cursor explicitly. A nil target (or
// isFirst) means the first question. The caller pre-validates the repeat
// index against the target's policy and pre-checks back-navigation when the
// jump targets an earlier Order; the aggregate still refuses indices the
// policy can never permit.
func (s *Survey) NavigateResponseToQuestion(responseID id.ResponseID, target id.QuestionID, targetRepeat int, isFirst bool) error {
	r, err := s.ResponseByID(responseID)
	if err != nil {
		return err
	}
	if r.IsTerminal() {
		return PolicyError(ReasonResponseImmutable, "response is no longer editable")
	}
	if isFirst || target.IsNil() {
		first, ok := s.firstQuestion()
		if !ok {
			return dErrors.New(dErrors.CodeNotFound, "survey has no questions")
		}
		r.Cursor = NavigationCursor{QuestionID: first.ID, RepeatIndex: 1}
		return nil
	}
	q, ok := s.QuestionByID(target)
	if !ok {
		return dErrors.Newf(dErrors.CodeNotFound, "question %s not found", target)
	}
	if targetRepeat < 1 {
		targetRepeat = 1
	}
	if !q.Repeat.IsValidRepeatIndex(targetRepeat) {
		return PolicyError(ReasonInvalidRepeatIndex, "repeat index exceeds the question's repeat policy")
	}
	r.Cursor = NavigationCursor{QuestionID: q.ID, RepeatIndex: targetRepeat}
	return nil
}

// SetResponseAnswer upserts the answer slot for the cursor's current repeat
// index. Re-answering the same (question, repeat) pair overwrites without
// error.
func (s *Survey) SetResponseAnswer(responseID id.ResponseID, questionID id.QuestionID, questionText, textAnswer string, selected []SelectedOption, answeredAt time.Time) error {
	r, err := s.ResponseByID(responseID)
	if err != nil {
		return err
	}
	if r.SubmittedAt != nil {
		return PolicyError(ReasonResponseAlreadySubmitted, "response was already submitted")
	}
	if r.IsTerminal() {
		return PolicyError(ReasonResponseImmutable, "response is no longer editable")
	}
	q, ok := s.QuestionByID(questionID)
	if !ok {
		return dErrors.Newf(dErrors.CodeNotFound, "question %s not found", questionID)
	}
	cursorQID, idx, err := s.CurrentNavigationState(responseID)
	if err != nil {
		return err
	}
	// Without back navigation, questions behind the cursor are sealed: the
	// participant cannot revisit them, so they cannot rewrite them either.
	if !s.Policy.AllowBackNavigation {
		if cq, ok := s.QuestionByID(cursorQID); ok && q.Order < cq.Order {
			return PolicyError(ReasonResponseImmutable, "question was already passed and this survey does not permit navigating backwards")
		}
	}
	if !q.Repeat.IsValidRepeatIndex(idx) {
		return PolicyError(ReasonInvalidRepeatIndex, "cursor repeat index exceeds the question's repeat policy")
	}
	if questionText == "" {
		questionText = q.Text
	}
	r.upsertAnswer(QuestionAnswer{
		QuestionID:      questionID,
		QuestionText:    questionText,
		RepeatIndex:     idx,
		TextAnswer:      textAnswer,
		SelectedOptions: selected,
		AnsweredAt:      answeredAt,
	})
	return nil
}

// SubmitResponse finalizes an active attempt. Submitting twice fails with
// RESPONSE_ALREADY_SUBMITTED.
func (s *Survey) SubmitResponse(responseID id.ResponseID, now time.Time) error {
	r, err := s.ResponseByID(responseID)
	if err != nil {
		return err
	}
	if r.SubmittedAt != nil {
		return PolicyError(ReasonResponseAlreadySubmitted, "response was already submitted")
	}
	if !r.CanTransitionTo(AttemptSubmitted) {
		return PolicyError(ReasonResponseImmutable, "only active responses can be submitted")
	}
	r.AttemptStatus = AttemptSubmitted
	r.Status = DisplayCompleted
	r.SubmittedAt = &now
	return nil
}

// CancelResponse abandons an active attempt. Cancellation is a status
// transition; nothing is deleted.
func (s *Survey) CancelResponse(responseID id.ResponseID) error {
	r, err := s.ResponseByID(responseID)
	if err != nil {
		return err
	}
	if !r.CanTransitionTo(AttemptCanceled) {
		return PolicyError(ReasonResponseImmutable, "only active responses can be cancelled")
	}
	r.AttemptStatus = AttemptCanceled
	r.Status = DisplayCancelled
	return nil
}

// ExpireResponse retires a submitted attempt whose retention window lapsed.
func (s *Survey) ExpireResponse(responseID id.ResponseID) error {
	r, err := s.ResponseByID(responseID)
	if err != nil {
		return err
	}
	if !r.CanTransitionTo(AttemptExpired) {
		return PolicyError(ReasonResponseImmutable, "only submitted responses can expire")
	}
	r.AttemptStatus = AttemptExpired
	r.Status = DisplayExpired
	return nil
}

// ResponseProgress computes the distinct-question progress summary returned
// by every navigation and answer command.
func (s *Survey) ResponseProgress(responseID id.ResponseID) (Progress, error) {
	r, err := s.ResponseByID(responseID)
	if err != nil {
		return Progress{}, err
	}
	total := len(s.Questions)
	answered := r.AnsweredQuestionCount()
	pct := 0.0
	if total > 0 {
		pct = math.Round(float64(answered)/float64(total)*100*100) / 100
	}
	return Progress{Answered: answered, Total: total, CompletionPercentage: pct}, nil
}

// RefreshReviewStatus recomputes the Answering/Reviewing split against
// ReviewThreshold. Only active responses move; the flip is deliberately
// hysteresis-free.
func (s *Survey) RefreshReviewStatus(responseID id.ResponseID) error {
	r, err := s.ResponseByID(responseID)
	if err != nil {
		return err
	}
	if r.AttemptStatus != AttemptActive {
		return nil
	}
	total := len(s.Questions)
	if total == 0 {
		return nil
	}
	fraction := float64(r.AnsweredQuestionCount()) / float64(total)
	switch {
	case fraction >= ReviewThreshold && r.Status == DisplayAnswering:
		r.Status = DisplayReviewing
	case fraction < ReviewThreshold && r.Status == DisplayReviewing:
		r.Status = DisplayAnswering
	}
	return nil
}
