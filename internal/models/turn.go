package models

// FlagSeverity grades a hallucination flag.
type FlagSeverity string

const (
	FlagLow    FlagSeverity = "low"
	FlagMedium FlagSeverity = "medium"
	FlagHigh   FlagSeverity = "high"
)

// HallucinationFlag marks an unsupported or fabricated claim detected in
// a candidate response.
type HallucinationFlag struct {
	Type            string       `json:"type"`
	Severity        FlagSeverity `json:"severity"`
	Description     string       `json:"description"`
	ConfidenceScore float64      `json:"confidence_score"`
}

// TurnInput is one user message entering the pipeline.
type TurnInput struct {
	Text      string   `json:"text"`
	SessionID string   `json:"session_id"`
	History   []string `json:"history,omitempty"`
	UserAgent string   `json:"user_agent,omitempty"`
}

// TurnMetadata describes how a turn was processed.
type TurnMetadata struct {
	Confidence       float64             `json:"confidence"`
	SystemsEngaged   []string            `json:"systems_engaged"`
	ProcessingTimeMs int64               `json:"processing_time_ms"`
	Flags            []HallucinationFlag `json:"flags,omitempty"`
}

// TurnOutput is the gated response returned to the caller.
type TurnOutput struct {
	Text        string       `json:"text"`
	CrisisFlag  bool         `json:"crisis_flag"`
	ConcernType string       `json:"concern_type,omitempty"`
	Metadata    TurnMetadata `json:"metadata"`
}

// LocationConcern is the tagged state of a pending location request.
// Exactly one of the concrete types below is carried per session.
type LocationConcern interface {
	isLocationConcern()
}

// NoLocationConcern means no location request is pending.
type NoLocationConcern struct{}

func (NoLocationConcern) isLocationConcern() {}

// AwaitingLocation means a crisis turn asked for the user's location and
// the answer has not arrived yet.
type AwaitingLocation struct {
	ConcernType CrisisType
	MessageID   string
}

func (AwaitingLocation) isLocationConcern() {}
