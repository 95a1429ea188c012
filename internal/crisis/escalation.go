package crisis

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/rogercare/roger-go/internal/models"
	"github.com/rogercare/roger-go/internal/notify"
)

// DeceptionWindow is how long after a crisis turn a retraction is still
// recorded against it.
const DeceptionWindow = 60 * time.Second

// persistentCrisisThreshold is the consecutive crisis count at which the
// persistent-crisis override replaces the type-templated response.
const persistentCrisisThreshold = 2

// AuditSink persists crisis events and append-only audit entries.
// Implementations must be safe for concurrent use.
type AuditSink interface {
	AppendAudit(ctx context.Context, alert models.CrisisAlert) error
	CreateCrisisEvent(ctx context.Context, event models.CrisisEvent) error
}

// sessionState is the escalator's per-session record.
type sessionState struct {
	crisis    models.SessionCrisisState
	startedAt time.Time
}

// Escalator is the session-scoped crisis state machine. A crisis turn
// emits a templated response and fire-and-forget notification/audit
// writes; repeated crisis turns escalate to the persistent override.
type Escalator struct {
	classifier *Classifier
	templates  *Templates
	notifier   notify.Notifier
	audit      AuditSink
	logger     *slog.Logger
	now        func() time.Time

	mu       sync.Mutex
	sessions map[string]*sessionState
}

// NewEscalator creates an escalator. notifier and audit may be nil, in
// which case the corresponding write is skipped. now may be nil for the
// wall clock.
func NewEscalator(classifier *Classifier, templates *Templates, notifier notify.Notifier, audit AuditSink, logger *slog.Logger, now func() time.Time) *Escalator {
	if logger == nil {
		logger = slog.Default()
	}
	if now == nil {
		now = time.Now
	}
	return &Escalator{
		classifier: classifier,
		templates:  templates,
		notifier:   notifier,
		audit:      audit,
		logger:     logger,
		now:        now,
		sessions:   make(map[string]*sessionState),
	}
}

// Escalate records a crisis turn (severity must already be medium or
// above) and returns the crisis response. The notification and audit
// writes are launched as fire-and-forget tasks and never block the turn.
func (e *Escalator) Escalate(in models.TurnInput, severity models.Severity, ctype models.CrisisType, loc models.LocationInfo) string {
	now := e.now()

	e.mu.Lock()
	state := e.session(in.SessionID, now)
	state.crisis.ConsecutiveCrisisCount++
	state.crisis.RecentCrisisMessage = in.Text
	state.crisis.LastCrisisTimestamp = now
	count := state.crisis.ConsecutiveCrisisCount
	sessionDuration := now.Sub(state.startedAt).Milliseconds()
	e.mu.Unlock()

	var response string
	if count >= persistentCrisisThreshold {
		response = e.templates.PersistentCrisisResponse()
	} else {
		response = e.templates.CrisisResponse(severity, ctype)
	}

	event := models.CrisisEvent{
		Timestamp:         now,
		SessionID:         in.SessionID,
		CrisisType:        ctype,
		Severity:          severity,
		UserMessage:       in.Text,
		GeneratedResponse: response,
		LocationInfo:      loc,
		RiskAssessment:    riskAssessment(severity),
		DetectionMethod:   e.classifier.DetectionMethod(),
		SessionDuration:   sessionDuration,
	}

	alert := models.CrisisAlert{
		Timestamp:       now,
		SessionID:       in.SessionID,
		CrisisType:      ctype,
		Severity:        severity,
		UserMessage:     in.Text,
		RogerResponse:   response,
		LocationInfo:    loc,
		ClinicalNotes:   clinicalNotes(count),
		RiskAssessment:  event.RiskAssessment,
		UserAgent:       in.UserAgent,
		SessionDuration: sessionDuration,
	}

	go e.dispatch(event, alert)

	return response
}

// dispatch performs the notification and audit writes off the turn's
// critical path. Failures are logged and isolated.
func (e *Escalator) dispatch(event models.CrisisEvent, alert models.CrisisAlert) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if e.notifier != nil {
		if err := e.notifier.SendCrisisAlert(ctx, alert); err != nil {
			e.logger.Error("crisis notification failed", "session_id", alert.SessionID, "error", err)
		}
	}
	if e.audit != nil {
		if err := e.audit.AppendAudit(ctx, alert); err != nil {
			e.logger.Error("audit write failed", "session_id", alert.SessionID, "error", err)
		}
		if err := e.audit.CreateCrisisEvent(ctx, event); err != nil {
			e.logger.Error("crisis event write failed", "session_id", alert.SessionID, "error", err)
		}
	}
}

// RecordDeception checks a message against the deception lexicon. A match
// within DeceptionWindow of the last crisis turn is appended to the
// session's deception history. The already-issued crisis response is
// never retracted or softened.
func (e *Escalator) RecordDeception(sessionID, text string) bool {
	if !e.classifier.MatchesDeception(text) {
		return false
	}

	now := e.now()

	e.mu.Lock()
	defer e.mu.Unlock()

	state := e.session(sessionID, now)
	if !state.crisis.HasRecentCrisis(now, DeceptionWindow) {
		return false
	}

	state.crisis.DeceptionHistory = append(state.crisis.DeceptionHistory, models.DeceptionRecord{
		Timestamp:     now,
		Message:       text,
		CrisisMessage: state.crisis.RecentCrisisMessage,
		SincePrior:    now.Sub(state.crisis.LastCrisisTimestamp).Milliseconds(),
	})
	e.logger.Warn("deception flagged",
		"session_id", sessionID,
		"deceptions", len(state.crisis.DeceptionHistory),
	)
	return true
}

// State returns a copy of the session's crisis state.
func (e *Escalator) State(sessionID string) models.SessionCrisisState {
	e.mu.Lock()
	defer e.mu.Unlock()

	state, ok := e.sessions[sessionID]
	if !ok {
		return models.SessionCrisisState{}
	}
	out := state.crisis
	out.DeceptionHistory = append([]models.DeceptionRecord(nil), state.crisis.DeceptionHistory...)
	return out
}

// Reset clears a session's crisis state. Called only on explicit
// new-conversation.
func (e *Escalator) Reset(sessionID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.sessions, sessionID)
}

// session returns the per-session record, creating it if needed.
// Caller must hold e.mu.
func (e *Escalator) session(sessionID string, now time.Time) *sessionState {
	state, ok := e.sessions[sessionID]
	if !ok {
		state = &sessionState{startedAt: now}
		e.sessions[sessionID] = state
	}
	return state
}

// DetectionMethod names the classification path for audit records.
func (c *Classifier) DetectionMethod() string {
	if c.failsafe {
		return "harm-lexicon-failsafe"
	}
	return "pattern-rules"
}

func riskAssessment(severity models.Severity) string {
	switch {
	case severity >= models.SeverityCritical:
		return "imminent risk: explicit lethal intent or plan"
	case severity >= models.SeverityHigh:
		return "elevated risk: self-harm or hopelessness indicators"
	default:
		return "moderate distress: monitoring indicated"
	}
}

func clinicalNotes(consecutiveCount int) string {
	if consecutiveCount >= persistentCrisisThreshold {
		return "persistent crisis: repeated crisis statements in one session"
	}
	return "first crisis statement this session"
}
