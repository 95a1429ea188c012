// Package models defines data structures for the Roger companion pipeline.
package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Severity is the ordinal crisis-risk classification of a message.
type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

var severityNames = [...]string{"low", "medium", "high", "critical"}

func (s Severity) String() string {
	if s < SeverityLow || s > SeverityCritical {
		return "low"
	}
	return severityNames[s]
}

// AtLeast reports whether s is at or above the given threshold.
func (s Severity) AtLeast(threshold Severity) bool {
	return s >= threshold
}

// ParseSeverity converts a severity name to its ordinal value.
func ParseSeverity(name string) (Severity, error) {
	for i, n := range severityNames {
		if n == name {
			return Severity(i), nil
		}
	}
	return SeverityLow, fmt.Errorf("unknown severity: %q", name)
}

// MarshalJSON encodes the severity as its string name.
func (s Severity) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON decodes a severity from its string name.
func (s *Severity) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	parsed, err := ParseSeverity(name)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// CrisisType categorizes the nature of a detected crisis.
type CrisisType string

const (
	CrisisSuicide        CrisisType = "suicide"
	CrisisSelfHarm       CrisisType = "self-harm"
	CrisisEatingDisorder CrisisType = "eating-disorder"
	CrisisSubstanceUse   CrisisType = "substance-use"
	CrisisGeneral        CrisisType = "general-crisis"
)

// LocationInfo is a best-effort location attached to crisis alerts.
type LocationInfo struct {
	City        string `json:"city"`
	Region      string `json:"region"`
	Coordinates string `json:"coordinates"`
}

// CrisisEvent records a detected crisis turn. Immutable once created;
// created only when severity is medium or above.
type CrisisEvent struct {
	Timestamp         time.Time    `json:"timestamp"`
	SessionID         string       `json:"session_id"`
	CrisisType        CrisisType   `json:"crisis_type"`
	Severity          Severity     `json:"severity"`
	UserMessage       string       `json:"user_message"`
	GeneratedResponse string       `json:"generated_response"`
	LocationInfo      LocationInfo `json:"location_info"`
	RiskAssessment    string       `json:"risk_assessment"`
	DetectionMethod   string       `json:"detection_method"`
	SessionDuration   int64        `json:"session_duration_ms"`
}

// CrisisAlert is the payload sent to the external alert transport and
// written to the audit log.
type CrisisAlert struct {
	Timestamp       time.Time    `json:"timestamp"`
	SessionID       string       `json:"session_id"`
	CrisisType      CrisisType   `json:"crisis_type"`
	Severity        Severity     `json:"severity"`
	UserMessage     string       `json:"user_message"`
	RogerResponse   string       `json:"roger_response"`
	LocationInfo    LocationInfo `json:"location_info"`
	ClinicalNotes   string       `json:"clinical_notes"`
	RiskAssessment  string       `json:"risk_assessment"`
	UserAgent       string       `json:"user_agent"`
	SessionDuration int64        `json:"session_duration_ms"`
}

// DeceptionRecord captures an attempt to retract or minimize a prior
// crisis statement ("jk", "just kidding").
type DeceptionRecord struct {
	Timestamp     time.Time `json:"timestamp"`
	Message       string    `json:"message"`
	CrisisMessage string    `json:"crisis_message"`
	SincePrior    int64     `json:"since_prior_ms"`
}

// SessionCrisisState tracks per-session crisis escalation. Lives for the
// session; reset only on explicit new-conversation.
type SessionCrisisState struct {
	ConsecutiveCrisisCount int               `json:"consecutive_crisis_count"`
	RecentCrisisMessage    string            `json:"recent_crisis_message"`
	LastCrisisTimestamp    time.Time         `json:"last_crisis_timestamp"`
	DeceptionHistory       []DeceptionRecord `json:"deception_history"`
}

// HasRecentCrisis reports whether a crisis was recorded within the window
// preceding now.
func (s *SessionCrisisState) HasRecentCrisis(now time.Time, window time.Duration) bool {
	if s.LastCrisisTimestamp.IsZero() {
		return false
	}
	return now.Sub(s.LastCrisisTimestamp) <= window
}
