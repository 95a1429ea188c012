package models

import "time"

// MemoryRole identifies who produced a memory piece.
type MemoryRole string

const (
	RolePatient   MemoryRole = "patient"
	RoleAssistant MemoryRole = "assistant"
)

// MemoryPiece is a single conversational fact stored in the memory bank.
// LastAccessed and AccessCount are mutated on retrieval: reading a memory
// reinforces it.
type MemoryPiece struct {
	ID               string     `json:"id"`
	Timestamp        time.Time  `json:"timestamp"`
	Content          string     `json:"content"`
	Role             MemoryRole `json:"role"`
	EmotionalContext []string   `json:"emotional_context,omitempty"`
	TopicContext     []string   `json:"topic_context,omitempty"`
	Importance       float64    `json:"importance"`
	LastAccessed     time.Time  `json:"last_accessed"`
	AccessCount      int        `json:"access_count"`
	ForgetFactor     float64    `json:"forget_factor"`
}

// PatientProfile aggregates topic and emotion frequencies across all
// patient turns.
type PatientProfile struct {
	TopicFrequency   map[string]int `json:"topic_frequency"`
	EmotionFrequency map[string]int `json:"emotion_frequency"`
}

// NewPatientProfile creates an empty profile with initialized counters.
func NewPatientProfile() PatientProfile {
	return PatientProfile{
		TopicFrequency:   make(map[string]int),
		EmotionFrequency: make(map[string]int),
	}
}

// MemorySnapshot is the serialized form of the memory bank written to
// durable storage after every mutation and read back on init.
type MemorySnapshot struct {
	ShortTermMemory []MemoryPiece  `json:"short_term_memory"`
	WorkingMemory   []MemoryPiece  `json:"working_memory"`
	LongTermMemory  []MemoryPiece  `json:"long_term_memory"`
	PatientProfile  PatientProfile `json:"patient_profile"`
	SavedAt         time.Time      `json:"saved_at"`
}

// Valid reports whether a loaded snapshot is schema-valid enough to
// rebuild a bank from. Nil tier slices are tolerated; a profile without
// counters is not.
func (s *MemorySnapshot) Valid() bool {
	if s == nil {
		return false
	}
	for _, tier := range [][]MemoryPiece{s.ShortTermMemory, s.WorkingMemory, s.LongTermMemory} {
		for _, p := range tier {
			if p.ID == "" || p.Importance < 0 || p.Importance > 1 {
				return false
			}
		}
	}
	return true
}
