package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rogercare/roger-go/internal/crisis"
	"github.com/rogercare/roger-go/internal/feedback"
	"github.com/rogercare/roger-go/internal/hallucination"
	"github.com/rogercare/roger-go/internal/llm"
	"github.com/rogercare/roger-go/internal/location"
	"github.com/rogercare/roger-go/internal/memory"
	"github.com/rogercare/roger-go/internal/metrics"
	"github.com/rogercare/roger-go/internal/models"
)

// ErrTurnInFlight is returned when a session already has a turn being
// processed. Callers retry; turns are never queued.
var ErrTurnInFlight = errors.New("session turn already in flight")

// depressionAck is prepended by the final verification net when the
// input mentions depression and the response never acknowledges it.
const depressionAck = "I hear how heavy things feel for you right now."

// assistantImportance is the storage weight of the companion's own
// replies. User turns are scored by importanceOf.
const assistantImportance = 0.3

// session bundles the per-session collaborators the assembler owns.
type session struct {
	id          string
	bank        *memory.Bank
	feedback    *feedback.Detector
	concern     models.LocationConcern
	inFlight    bool
	initialized bool
}

// stage is one named step of the turn pipeline.
type stage struct {
	name string
	run  func(context.Context, *TurnContext) error
}

// Options configures an Assembler. Generator, Store, Resolver, and
// Metrics may be nil; Now and NewRNG may be nil for wall clock and
// time-seeded randomness.
type Options struct {
	Classifier    *crisis.Classifier
	Escalator     *crisis.Escalator
	Resolver      location.Resolver
	Generator     llm.Generator
	Hallucination *hallucination.Detector
	Store         memory.Store
	Metrics       *metrics.Collector
	Logger        *slog.Logger
	Now           func() time.Time
	NewRNG        func() *rand.Rand
}

// Assembler runs the ordered turn pipeline and owns the per-session
// memory banks, feedback detectors, and in-flight guards.
type Assembler struct {
	classifier *crisis.Classifier
	escalator  *crisis.Escalator
	resolver   location.Resolver
	generator  llm.Generator
	detector   *hallucination.Detector
	grounder   *memory.Grounder
	store      memory.Store
	metrics    *metrics.Collector
	logger     *slog.Logger
	now        func() time.Time
	newRNG     func() *rand.Rand

	stages []stage

	mu       sync.Mutex
	sessions map[string]*session
}

// NewAssembler creates an assembler with the fixed stage order: crisis,
// feedback-loop, location, deception, generation, grounding,
// hallucination, verification.
func NewAssembler(opts Options) *Assembler {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewRNG == nil {
		opts.NewRNG = func() *rand.Rand {
			return rand.New(rand.NewSource(time.Now().UnixNano()))
		}
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewCollector()
	}
	if opts.Hallucination == nil {
		opts.Hallucination = hallucination.NewDetector(opts.Logger)
	}

	a := &Assembler{
		classifier: opts.Classifier,
		escalator:  opts.Escalator,
		resolver:   opts.Resolver,
		generator:  opts.Generator,
		detector:   opts.Hallucination,
		grounder:   memory.NewGrounder(opts.NewRNG()),
		store:      opts.Store,
		metrics:    opts.Metrics,
		logger:     opts.Logger,
		now:        opts.Now,
		newRNG:     opts.NewRNG,
		sessions:   make(map[string]*session),
	}

	a.stages = []stage{
		{"crisis", a.stageCrisis},
		{"feedback-loop", a.stageFeedback},
		{"location", a.stageLocation},
		{"deception", a.stageDeception},
		{"generate", a.stageGenerate},
		{"memory-grounding", a.stageGround},
		{"hallucination", a.stageHallucination},
		{"verification", a.stageVerify},
	}
	return a
}

// Process runs one turn for a session. A concurrent call for the same
// session is rejected with ErrTurnInFlight. Never returns an error for
// internal stage failures; those degrade to fallback text.
func (a *Assembler) Process(ctx context.Context, in models.TurnInput) (models.TurnOutput, error) {
	start := a.now()

	sess, err := a.beginTurn(in.SessionID)
	if err != nil {
		return models.TurnOutput{}, err
	}
	defer a.endTurn(sess)

	if !sess.initialized {
		sess.bank.Initialize(ctx)
		sess.initialized = true
	}

	tc := &TurnContext{
		Input:      in,
		History:    a.turnHistory(sess, in),
		Confidence: 0.9,
		session:    sess,
	}

	sess.feedback.RecordUserMessage(in.Text)

	for _, st := range a.stages {
		a.runStage(ctx, st, tc)
		if tc.shortCircuit {
			break
		}
	}

	if strings.TrimSpace(tc.Response) == "" {
		tc.Response = crisis.FallbackGeneric
		tc.Confidence = 0.2
		a.metrics.CountFallback()
	}

	sess.feedback.TrackResponse(tc.Response)
	a.remember(ctx, sess, tc)

	elapsed := a.now().Sub(start)
	a.metrics.RecordTiming(metrics.OpTurn, elapsed)

	return models.TurnOutput{
		Text:        tc.Response,
		CrisisFlag:  tc.CrisisFlag,
		ConcernType: tc.ConcernType,
		Metadata: models.TurnMetadata{
			Confidence:       tc.Confidence,
			SystemsEngaged:   tc.Systems,
			ProcessingTimeMs: elapsed.Milliseconds(),
			Flags:            tc.Flags,
		},
	}, nil
}

// runStage executes one stage with panic and error isolation: on either,
// the pre-stage response is restored and the turn proceeds.
func (a *Assembler) runStage(ctx context.Context, st stage, tc *TurnContext) {
	pre := tc.Response
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("stage panicked", "stage", st.name, "recovered", r)
			tc.Response = pre
		}
	}()

	if err := st.run(ctx, tc); err != nil {
		a.logger.Error("stage failed", "stage", st.name, "error", err)
		tc.Response = pre
	}
}

// stageCrisis classifies severity and type. Severity at medium or above
// escalates and short-circuits: the templated crisis response is final.
func (a *Assembler) stageCrisis(ctx context.Context, tc *TurnContext) error {
	start := time.Now()
	severity := a.classifier.ClassifySeverity(tc.Input.Text)
	a.metrics.RecordTiming(metrics.OpClassify, time.Since(start))

	tc.Severity = severity
	if !severity.AtLeast(models.SeverityMedium) {
		return nil
	}

	ctype := a.classifier.ClassifyType(tc.Input.Text)
	loc := location.BestEffort(ctx, a.resolver, tc.Input.SessionID)

	tc.CrisisType = ctype
	tc.Location = loc
	tc.Response = a.escalator.Escalate(tc.Input, severity, ctype, loc)
	tc.CrisisFlag = true
	tc.ConcernType = string(ctype)
	tc.Confidence = 1.0

	if severity.AtLeast(models.SeverityHigh) {
		tc.session.concern = models.AwaitingLocation{
			ConcernType: ctype,
			MessageID:   uuid.NewString(),
		}
	}

	a.metrics.CountCrisisDetection()
	tc.engage("crisis")
	tc.ShortCircuit()
	return nil
}

// stageFeedback substitutes a topic-specific recovery reply when the
// conversation has looped, and short-circuits.
func (a *Assembler) stageFeedback(_ context.Context, tc *TurnContext) error {
	reply, looped := tc.session.feedback.CheckFeedbackLoop(tc.Input.Text)
	if !looped {
		return nil
	}

	tc.Response = reply
	tc.Confidence = 0.8
	a.metrics.CountFeedbackLoop()
	tc.engage("feedback-loop")
	tc.ShortCircuit()
	return nil
}

// stageLocation resolves a pending location concern left by an earlier
// crisis turn. Best-effort: errors yield the fixed fallback location.
func (a *Assembler) stageLocation(ctx context.Context, tc *TurnContext) error {
	concern, ok := tc.session.concern.(models.AwaitingLocation)
	if !ok {
		return nil
	}

	tc.Location = location.BestEffort(ctx, a.resolver, tc.Input.SessionID)
	tc.ConcernType = string(concern.ConcernType)
	tc.session.concern = models.NoLocationConcern{}
	tc.engage("location")
	return nil
}

// stageDeception checks the message against the deception lexicon.
// Annotates only; the prior crisis response is never softened.
func (a *Assembler) stageDeception(_ context.Context, tc *TurnContext) error {
	if a.escalator.RecordDeception(tc.Input.SessionID, tc.Input.Text) {
		tc.engage("deception")
	}
	return nil
}

// stageGenerate calls the baseline generator under its timeout. Failure
// or expiry yields the deterministic fallback, crisis-flavored when the
// turn already classified at medium or above.
func (a *Assembler) stageGenerate(ctx context.Context, tc *TurnContext) error {
	if a.generator == nil {
		tc.Response = a.fallbackFor(tc.Severity)
		tc.Confidence = 0.4
		a.metrics.CountFallback()
		return nil
	}

	memCtx := make([]string, 0, 3)
	for _, p := range a.retrieve(tc) {
		memCtx = append(memCtx, p.Content)
	}

	start := time.Now()
	reply, err := a.generator.GenerateReply(ctx, llm.ReplyRequest{
		Input:         tc.Input.Text,
		History:       tc.History,
		MemoryContext: memCtx,
		Mood:          dominantEmotion(tc.Input.Text),
	})
	a.metrics.RecordTiming(metrics.OpGenerate, time.Since(start))

	if err != nil || strings.TrimSpace(reply) == "" {
		a.logger.Warn("generation failed, using fallback", "session_id", tc.Input.SessionID, "error", err)
		a.metrics.RecordError(metrics.OpGenerate)
		a.metrics.CountFallback()
		tc.Response = a.fallbackFor(tc.Severity)
		tc.Confidence = 0.4
		return nil
	}

	tc.Response = reply
	tc.engage("generate")
	return nil
}

// retrieve runs memory retrieval once per turn. Retrieval reinforces
// access counts, so the generation and grounding stages share one result.
func (a *Assembler) retrieve(tc *TurnContext) []models.MemoryPiece {
	if tc.Retrieved != nil {
		return tc.Retrieved
	}

	start := time.Now()
	top := tc.session.bank.Retrieve(tc.Input.Text, memory.RetrieveOptions{})
	a.metrics.RecordTiming(metrics.OpRetrieve, time.Since(start))

	if top == nil {
		top = []models.MemoryPiece{}
	}
	tc.Retrieved = top
	return top
}

// stageGround weaves the top retrieved memory into the response.
func (a *Assembler) stageGround(_ context.Context, tc *TurnContext) error {
	top := a.retrieve(tc)
	if len(top) == 0 {
		return nil
	}

	tc.Response = a.grounder.Ground(tc.Response, top[0])
	tc.engage("memory-grounding")
	return nil
}

// stageHallucination evaluates the candidate and substitutes offending
// clauses per the decision policy.
func (a *Assembler) stageHallucination(_ context.Context, tc *TurnContext) error {
	flags := a.detector.Detect(tc.Response, tc.Input.Text, tc.History, tc.session.bank)
	if len(flags) == 0 {
		return nil
	}

	tc.Flags = flags
	for _, f := range flags {
		a.metrics.CountHallucination()
		if f.Severity == models.FlagHigh {
			tc.Confidence -= 0.2
		}
	}
	if tc.Confidence < 0.1 {
		tc.Confidence = 0.1
	}

	tc.Response = a.detector.Correct(tc.Response, flags)
	tc.engage("hallucination")
	return nil
}

// stageVerify is the final net: a message mentioning depression must be
// acknowledged before anything else.
func (a *Assembler) stageVerify(_ context.Context, tc *TurnContext) error {
	if !mentionsDepression(tc.Input.Text) || acknowledgesDistress(tc.Response) {
		return nil
	}
	tc.Response = depressionAck + " " + tc.Response
	tc.engage("verification")
	return nil
}

// fallbackFor picks the deterministic fallback reply for a turn.
func (a *Assembler) fallbackFor(severity models.Severity) string {
	if severity.AtLeast(models.SeverityMedium) {
		return crisis.FallbackCrisis
	}
	return crisis.FallbackGeneric
}

// remember stores both sides of the turn in the memory bank. The user
// turn is scored by emotion and severity; the companion's reply is kept
// at a fixed low weight.
func (a *Assembler) remember(ctx context.Context, sess *session, tc *TurnContext) {
	emotions, topics := annotate(tc.Input.Text)
	if tc.Severity.AtLeast(models.SeverityMedium) {
		emotions = append(emotions, "crisis")
	}

	start := time.Now()
	sess.bank.AddMemory(ctx, tc.Input.Text, models.RolePatient, emotions, topics, importanceOf(tc.Severity, emotions))

	_, replyTopics := annotate(tc.Response)
	sess.bank.AddMemory(ctx, tc.Response, models.RoleAssistant, nil, replyTopics, assistantImportance)
	a.metrics.RecordTiming(metrics.OpPersist, time.Since(start))
}

// turnHistory prefers caller-supplied history, falling back to the
// session's tracked user messages.
func (a *Assembler) turnHistory(sess *session, in models.TurnInput) []string {
	if len(in.History) > 0 {
		return in.History
	}
	return sess.feedback.State().UserMessageHistory
}

// beginTurn acquires the session's in-flight guard, creating the session
// on first use.
func (a *Assembler) beginTurn(sessionID string) (*session, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	sess, ok := a.sessions[sessionID]
	if !ok {
		sess = &session{
			id:       sessionID,
			bank:     memory.NewBank(sessionID, a.store, a.logger, a.now),
			feedback: feedback.NewDetector(a.newRNG(), a.logger),
			concern:  models.NoLocationConcern{},
		}
		a.sessions[sessionID] = sess
	}

	if sess.inFlight {
		return nil, ErrTurnInFlight
	}
	sess.inFlight = true
	return sess, nil
}

func (a *Assembler) endTurn(sess *session) {
	a.mu.Lock()
	defer a.mu.Unlock()
	sess.inFlight = false
}

// Reset clears all state for a session: crisis state machine,
// conversation state, memory bank, and the in-flight guard.
func (a *Assembler) Reset(sessionID string) {
	a.mu.Lock()
	delete(a.sessions, sessionID)
	a.mu.Unlock()

	a.escalator.Reset(sessionID)
	a.logger.Info("session reset", "session_id", sessionID)
}

// Banks returns the live memory banks for the consolidation scheduler.
func (a *Assembler) Banks() []*memory.Bank {
	a.mu.Lock()
	defer a.mu.Unlock()

	banks := make([]*memory.Bank, 0, len(a.sessions))
	for _, sess := range a.sessions {
		banks = append(banks, sess.bank)
	}
	return banks
}

// MemoryStats reports a session's tier sizes and patient profile.
func (a *Assembler) MemoryStats(sessionID string) (shortTerm, working, longTerm int, profile models.PatientProfile, ok bool) {
	a.mu.Lock()
	sess, found := a.sessions[sessionID]
	a.mu.Unlock()

	if !found {
		return 0, 0, 0, models.PatientProfile{}, false
	}
	st, w, lt := sess.bank.TierSizes()
	return st, w, lt, sess.bank.Profile(), true
}

// CrisisState returns a copy of a session's crisis state.
func (a *Assembler) CrisisState(sessionID string) models.SessionCrisisState {
	return a.escalator.State(sessionID)
}

// Metrics exposes the collector for the stats surfaces.
func (a *Assembler) Metrics() *metrics.Collector {
	return a.metrics
}

// dominantEmotion names the strongest emotion signal for the prompt.
func dominantEmotion(text string) string {
	emotions, _ := annotate(text)
	if len(emotions) == 0 {
		return ""
	}
	return emotions[0]
}

func mentionsDepression(text string) bool {
	return strings.Contains(strings.ToLower(text), "depress")
}

// acknowledgmentTokens are the phrases that count as acknowledging a
// disclosure of depression.
var acknowledgmentTokens = []string{
	"depress", "heavy", "hard", "sorry", "hear you", "with you", "difficult",
}

func acknowledgesDistress(response string) bool {
	lower := strings.ToLower(response)
	for _, tok := range acknowledgmentTokens {
		if strings.Contains(lower, tok) {
			return true
		}
	}
	return false
}
