package crisis

import (
	"context"
	"math/rand"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rogercare/roger-go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeNotifier struct {
	mu     sync.Mutex
	alerts []models.CrisisAlert
	sent   chan struct{}
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{sent: make(chan struct{}, 16)}
}

func (f *fakeNotifier) SendCrisisAlert(_ context.Context, alert models.CrisisAlert) error {
	f.mu.Lock()
	f.alerts = append(f.alerts, alert)
	f.mu.Unlock()
	f.sent <- struct{}{}
	return nil
}

func (f *fakeNotifier) waitForAlert(t *testing.T) models.CrisisAlert {
	t.Helper()
	select {
	case <-f.sent:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for crisis alert")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.alerts[len(f.alerts)-1]
}

type fakeAudit struct {
	mu     sync.Mutex
	audits []models.CrisisAlert
	events []models.CrisisEvent
}

func (f *fakeAudit) AppendAudit(_ context.Context, alert models.CrisisAlert) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.audits = append(f.audits, alert)
	return nil
}

func (f *fakeAudit) CreateCrisisEvent(_ context.Context, event models.CrisisEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

// fakeClock is an adjustable clock for deception-window tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestEscalator(notifier *fakeNotifier, clock *fakeClock) *Escalator {
	classifier := NewClassifier(testLogger())
	templates := NewTemplates(rand.New(rand.NewSource(42)))
	var now func() time.Time
	if clock != nil {
		now = clock.Now
	}
	if notifier == nil {
		notifier = newFakeNotifier()
	}
	return NewEscalator(classifier, templates, notifier, &fakeAudit{}, testLogger(), now)
}

func TestEscalateFirstCrisisTurn(t *testing.T) {
	notifier := newFakeNotifier()
	esc := newTestEscalator(notifier, nil)

	in := models.TurnInput{Text: "I want to kill myself tonight", SessionID: "s1"}
	response := esc.Escalate(in, models.SeverityCritical, models.CrisisSuicide, models.LocationInfo{City: "Portland"})

	assert.Contains(t, response, "988")
	assert.Contains(t, response, "911")

	state := esc.State("s1")
	assert.Equal(t, 1, state.ConsecutiveCrisisCount)
	assert.Equal(t, in.Text, state.RecentCrisisMessage)
	assert.False(t, state.LastCrisisTimestamp.IsZero())

	alert := notifier.waitForAlert(t)
	assert.Equal(t, "s1", alert.SessionID)
	assert.Equal(t, models.CrisisSuicide, alert.CrisisType)
	assert.Equal(t, models.SeverityCritical, alert.Severity)
	assert.Equal(t, "Portland", alert.LocationInfo.City)
	assert.Equal(t, response, alert.RogerResponse)
}

func TestEscalatePersistentCrisisOverride(t *testing.T) {
	esc := newTestEscalator(nil, nil)
	in := models.TurnInput{Text: "I want to kill myself tonight", SessionID: "s1"}

	first := esc.Escalate(in, models.SeverityCritical, models.CrisisSuicide, models.LocationInfo{})
	second := esc.Escalate(in, models.SeverityCritical, models.CrisisSuicide, models.LocationInfo{})

	assert.NotEqual(t, first, second)
	// The override fires regardless of type, at count >= 2, and still
	// carries the resource list.
	assert.Contains(t, second, "988")
	assert.Contains(t, second, "911")
	assert.Equal(t, 2, esc.State("s1").ConsecutiveCrisisCount)

	// Type no longer matters once persistent.
	third := esc.Escalate(models.TurnInput{Text: "still drinking too much", SessionID: "s1"},
		models.SeverityMedium, models.CrisisSubstanceUse, models.LocationInfo{})
	assert.Contains(t, third, "988")
}

func TestRecordDeceptionWithinWindow(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	esc := newTestEscalator(nil, clock)

	in := models.TurnInput{Text: "I want to kill myself", SessionID: "s1"}
	crisisResponse := esc.Escalate(in, models.SeverityCritical, models.CrisisSuicide, models.LocationInfo{})

	clock.Advance(30 * time.Second)
	flagged := esc.RecordDeception("s1", "jk, just kidding")
	require.True(t, flagged)

	state := esc.State("s1")
	require.Len(t, state.DeceptionHistory, 1)
	assert.Equal(t, in.Text, state.DeceptionHistory[0].CrisisMessage)
	assert.Equal(t, int64(30_000), state.DeceptionHistory[0].SincePrior)

	// The crisis response is never retracted.
	assert.Contains(t, crisisResponse, "988")
}

func TestRecordDeceptionOutsideWindow(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	esc := newTestEscalator(nil, clock)

	esc.Escalate(models.TurnInput{Text: "I want to die", SessionID: "s1"},
		models.SeverityCritical, models.CrisisSuicide, models.LocationInfo{})

	clock.Advance(2 * time.Minute)
	assert.False(t, esc.RecordDeception("s1", "just kidding"))
	assert.Empty(t, esc.State("s1").DeceptionHistory)
}

func TestRecordDeceptionNoLexiconMatch(t *testing.T) {
	esc := newTestEscalator(nil, nil)
	esc.Escalate(models.TurnInput{Text: "I want to die", SessionID: "s1"},
		models.SeverityCritical, models.CrisisSuicide, models.LocationInfo{})

	assert.False(t, esc.RecordDeception("s1", "I really meant it"))
}

func TestReset(t *testing.T) {
	esc := newTestEscalator(nil, nil)
	esc.Escalate(models.TurnInput{Text: "I want to die", SessionID: "s1"},
		models.SeverityCritical, models.CrisisSuicide, models.LocationInfo{})
	require.Equal(t, 1, esc.State("s1").ConsecutiveCrisisCount)

	esc.Reset("s1")
	assert.Equal(t, 0, esc.State("s1").ConsecutiveCrisisCount)
}

func TestTemplatesSeededSelectionIsDeterministic(t *testing.T) {
	a := NewTemplates(rand.New(rand.NewSource(7)))
	b := NewTemplates(rand.New(rand.NewSource(7)))

	for i := 0; i < 5; i++ {
		assert.Equal(t,
			a.CrisisResponse(models.SeverityHigh, models.CrisisSelfHarm),
			b.CrisisResponse(models.SeverityHigh, models.CrisisSelfHarm),
		)
	}
}

func TestCrisisResponseResourcesBySeverity(t *testing.T) {
	tpl := NewTemplates(rand.New(rand.NewSource(1)))

	medium := tpl.CrisisResponse(models.SeverityMedium, models.CrisisGeneral)
	assert.Contains(t, medium, "988")

	high := tpl.CrisisResponse(models.SeverityHigh, models.CrisisSelfHarm)
	assert.Contains(t, high, "988")
	assert.Contains(t, high, "911")

	critical := tpl.CrisisResponse(models.SeverityCritical, models.CrisisSuicide)
	assert.Contains(t, critical, "988")
	assert.Contains(t, critical, "911")
	assert.True(t, strings.Contains(critical, "741741"))
}
