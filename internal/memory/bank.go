// Package memory implements the tiered, decaying conversation memory
// store and its attention-scored retrieval.
package memory

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rogercare/roger-go/internal/models"
)

// Tier capacities.
const (
	ShortTermCap = 50
	WorkingCap   = 20
	LongTermCap  = 200
)

// consolidateAge is how old a short-term item must be before
// consolidation moves or evicts it.
const consolidateAge = 24 * time.Hour

// consolidateImportance is the importance above which an aged short-term
// item is promoted to long-term instead of evicted.
const consolidateImportance = 0.6

// Emotion gates for the working and long-term tiers.
var (
	workingEmotions  = map[string]bool{"angry": true, "sad": true, "anxious": true, "scared": true}
	longTermEmotions = map[string]bool{"trauma": true, "crisis": true, "grief": true}
)

// Store persists memory snapshots. Implementations must tolerate
// concurrent calls.
type Store interface {
	SaveSnapshot(ctx context.Context, sessionID string, snap models.MemorySnapshot) error
	LoadSnapshot(ctx context.Context, sessionID string) (*models.MemorySnapshot, error)
}

// Bank is the tiered memory store for one session. Tiers are views with
// independent capacity policies, not exclusive ownership: a piece may
// live in several tiers at once (shared pointers, so reinforcement in one
// tier is visible in all).
//
// All mutation happens in a single-writer critical section; retrieval
// takes the same lock so readers always observe a consistent snapshot.
type Bank struct {
	mu        sync.Mutex
	sessionID string
	shortTerm []*models.MemoryPiece // FIFO, oldest first
	working   []*models.MemoryPiece
	longTerm  []*models.MemoryPiece
	profile   models.PatientProfile

	store  Store // nil means in-memory only
	logger *slog.Logger
	now    func() time.Time
}

// NewBank creates a bank for a session. store may be nil for pure
// in-memory operation; now may be nil for the wall clock.
func NewBank(sessionID string, store Store, logger *slog.Logger, now func() time.Time) *Bank {
	if logger == nil {
		logger = slog.Default()
	}
	if now == nil {
		now = time.Now
	}
	return &Bank{
		sessionID: sessionID,
		profile:   models.NewPatientProfile(),
		store:     store,
		logger:    logger,
		now:       now,
	}
}

// Initialize loads the persisted snapshot if one exists and is
// schema-valid, otherwise starts empty. Returns whether a snapshot was
// restored; never returns an error.
func (b *Bank) Initialize(ctx context.Context) bool {
	if b.store == nil {
		return false
	}

	snap, err := b.store.LoadSnapshot(ctx, b.sessionID)
	if err != nil {
		b.logger.Error("snapshot load failed, starting empty", "session_id", b.sessionID, "error", err)
		return false
	}
	if snap == nil {
		b.logger.Debug("no snapshot recorded, starting empty", "session_id", b.sessionID)
		return false
	}
	if !snap.Valid() {
		b.logger.Warn("snapshot rejected as schema-invalid, starting empty", "session_id", b.sessionID)
		return false
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	// Rebuild shared pointers: the same ID in several tiers must map to
	// one piece so reinforcement stays coherent.
	byID := make(map[string]*models.MemoryPiece)
	restore := func(tier []models.MemoryPiece) []*models.MemoryPiece {
		out := make([]*models.MemoryPiece, 0, len(tier))
		for _, p := range tier {
			piece, ok := byID[p.ID]
			if !ok {
				copied := p
				piece = &copied
				byID[p.ID] = piece
			}
			out = append(out, piece)
		}
		return out
	}

	b.shortTerm = restore(snap.ShortTermMemory)
	b.working = restore(snap.WorkingMemory)
	b.longTerm = restore(snap.LongTermMemory)
	if snap.PatientProfile.TopicFrequency != nil {
		b.profile = snap.PatientProfile
	}

	b.logger.Info("memory snapshot restored",
		"session_id", b.sessionID,
		"short_term", len(b.shortTerm),
		"working", len(b.working),
		"long_term", len(b.longTerm),
	)
	return true
}

// AddMemory stores one conversational fact. Always lands in short-term;
// mirrored into working and long-term when the importance or emotion
// gates pass. The full snapshot is persisted best-effort afterwards.
func (b *Bank) AddMemory(ctx context.Context, content string, role models.MemoryRole, emotions, topics []string, importance float64) models.MemoryPiece {
	now := b.now()
	piece := &models.MemoryPiece{
		ID:               uuid.NewString(),
		Timestamp:        now,
		Content:          content,
		Role:             role,
		EmotionalContext: emotions,
		TopicContext:     topics,
		Importance:       clamp01(importance),
		LastAccessed:     now,
		AccessCount:      1,
		ForgetFactor:     1,
	}

	b.mu.Lock()

	b.shortTerm = append(b.shortTerm, piece)
	if len(b.shortTerm) > ShortTermCap {
		b.shortTerm = b.shortTerm[len(b.shortTerm)-ShortTermCap:]
	}

	if piece.Importance > 0.7 || hasAnyEmotion(emotions, workingEmotions) {
		b.working = append(b.working, piece)
		if len(b.working) > WorkingCap {
			b.evictLowestImportanceWorking()
		}
	}

	if piece.Importance > 0.8 || hasAnyEmotion(emotions, longTermEmotions) {
		b.longTerm = append(b.longTerm, piece)
		if len(b.longTerm) > LongTermCap {
			b.pruneLongTerm()
		}
	}

	if role == models.RolePatient {
		for _, topic := range topics {
			b.profile.TopicFrequency[topic]++
		}
		for _, emotion := range emotions {
			b.profile.EmotionFrequency[emotion]++
		}
	}

	snap := b.snapshotLocked()
	b.mu.Unlock()

	b.persist(ctx, snap)
	return *piece
}

// Consolidate runs the periodic maintenance pass: short-term items older
// than 24h are promoted to long-term when important enough (idempotent by
// ID) and evicted from short-term either way, and every long-term item
// gets its forget factor recomputed.
func (b *Bank) Consolidate(ctx context.Context) {
	now := b.now()

	b.mu.Lock()

	longTermIDs := make(map[string]bool, len(b.longTerm))
	for _, p := range b.longTerm {
		longTermIDs[p.ID] = true
	}

	kept := b.shortTerm[:0]
	promoted, evicted := 0, 0
	for _, p := range b.shortTerm {
		if now.Sub(p.Timestamp) < consolidateAge {
			kept = append(kept, p)
			continue
		}
		if p.Importance > consolidateImportance && !longTermIDs[p.ID] {
			b.longTerm = append(b.longTerm, p)
			longTermIDs[p.ID] = true
			promoted++
		}
		evicted++
	}
	b.shortTerm = kept

	for _, p := range b.longTerm {
		hours := now.Sub(p.Timestamp).Hours()
		p.ForgetFactor = RetentionFactor(hours, p.Importance, p.AccessCount)
	}

	for len(b.longTerm) > LongTermCap {
		b.pruneLongTerm()
	}

	snap := b.snapshotLocked()
	b.mu.Unlock()

	if promoted > 0 || evicted > 0 {
		b.logger.Info("memory consolidated",
			"session_id", b.sessionID,
			"promoted", promoted,
			"evicted", evicted,
		)
	}
	b.persist(ctx, snap)
}

// Snapshot returns a consistent copy of all tiers and the profile.
func (b *Bank) Snapshot() models.MemorySnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snapshotLocked()
}

// Profile returns a copy of the patient profile counters.
func (b *Bank) Profile() models.PatientProfile {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := models.NewPatientProfile()
	for k, v := range b.profile.TopicFrequency {
		out.TopicFrequency[k] = v
	}
	for k, v := range b.profile.EmotionFrequency {
		out.EmotionFrequency[k] = v
	}
	return out
}

// TierSizes reports current tier occupancy.
func (b *Bank) TierSizes() (shortTerm, working, longTerm int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.shortTerm), len(b.working), len(b.longTerm)
}

// snapshotLocked copies all tiers. Caller must hold b.mu.
func (b *Bank) snapshotLocked() models.MemorySnapshot {
	copyTier := func(tier []*models.MemoryPiece) []models.MemoryPiece {
		out := make([]models.MemoryPiece, len(tier))
		for i, p := range tier {
			out[i] = *p
		}
		return out
	}

	profile := models.NewPatientProfile()
	for k, v := range b.profile.TopicFrequency {
		profile.TopicFrequency[k] = v
	}
	for k, v := range b.profile.EmotionFrequency {
		profile.EmotionFrequency[k] = v
	}

	return models.MemorySnapshot{
		ShortTermMemory: copyTier(b.shortTerm),
		WorkingMemory:   copyTier(b.working),
		LongTermMemory:  copyTier(b.longTerm),
		PatientProfile:  profile,
		SavedAt:         b.now(),
	}
}

// persist writes the snapshot best-effort. A failure is logged and the
// bank keeps serving from memory.
func (b *Bank) persist(ctx context.Context, snap models.MemorySnapshot) {
	if b.store == nil {
		return
	}
	if err := b.store.SaveSnapshot(ctx, b.sessionID, snap); err != nil {
		b.logger.Error("snapshot persist failed, continuing in memory",
			"session_id", b.sessionID, "error", err)
	}
}

// evictLowestImportanceWorking removes the lowest-importance working
// piece. Caller must hold b.mu.
func (b *Bank) evictLowestImportanceWorking() {
	lowest := 0
	for i, p := range b.working {
		if p.Importance < b.working[lowest].Importance {
			lowest = i
		}
	}
	b.working = append(b.working[:lowest], b.working[lowest+1:]...)
}

// pruneLongTerm removes the long-term piece with the lowest
// importance x retention score. Caller must hold b.mu.
func (b *Bank) pruneLongTerm() {
	now := b.now()
	lowest, lowestScore := 0, 0.0
	for i, p := range b.longTerm {
		hours := now.Sub(p.Timestamp).Hours()
		score := p.Importance * RetentionFactor(hours, p.Importance, p.AccessCount)
		if i == 0 || score < lowestScore {
			lowest, lowestScore = i, score
		}
	}
	b.longTerm = append(b.longTerm[:lowest], b.longTerm[lowest+1:]...)
}

func hasAnyEmotion(emotions []string, gate map[string]bool) bool {
	for _, e := range emotions {
		if gate[e] {
			return true
		}
	}
	return false
}
