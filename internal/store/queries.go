package store

import (
	"context"
	"fmt"
	"time"

	"github.com/surrealdb/surrealdb.go"

	"github.com/rogercare/roger-go/internal/models"
)

// snapshotRow is the stored shape of a memory snapshot.
type snapshotRow struct {
	SessionID       string                `json:"session_id"`
	ShortTermMemory []models.MemoryPiece  `json:"short_term_memory"`
	WorkingMemory   []models.MemoryPiece  `json:"working_memory"`
	LongTermMemory  []models.MemoryPiece  `json:"long_term_memory"`
	PatientProfile  models.PatientProfile `json:"patient_profile"`
	SavedAt         time.Time             `json:"saved_at"`
}

// crisisRow is the stored shape of a crisis event. Severity is kept as
// its string name so rows stay readable in the database.
type crisisRow struct {
	SessionID         string              `json:"session_id"`
	CrisisType        string              `json:"crisis_type"`
	Severity          string              `json:"severity"`
	UserMessage       string              `json:"user_message"`
	GeneratedResponse string              `json:"generated_response"`
	LocationInfo      models.LocationInfo `json:"location_info"`
	RiskAssessment    string              `json:"risk_assessment"`
	DetectionMethod   string              `json:"detection_method"`
	SessionDurationMs int64               `json:"session_duration_ms"`
	Timestamp         time.Time           `json:"timestamp"`
}

// SaveSnapshot upserts the session's memory snapshot. One row per
// session, keyed by session id.
func (c *Client) SaveSnapshot(ctx context.Context, sessionID string, snap models.MemorySnapshot) error {
	row := snapshotRow{
		SessionID:       sessionID,
		ShortTermMemory: snap.ShortTermMemory,
		WorkingMemory:   snap.WorkingMemory,
		LongTermMemory:  snap.LongTermMemory,
		PatientProfile:  snap.PatientProfile,
		SavedAt:         snap.SavedAt,
	}

	_, err := surrealdb.Query[any](ctx, c.db, `
		UPSERT type::record("memory_snapshot", $sid) CONTENT $row
	`, map[string]any{"sid": sessionID, "row": row})
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot reads the session's memory snapshot. Returns nil when the
// session has none.
func (c *Client) LoadSnapshot(ctx context.Context, sessionID string) (*models.MemorySnapshot, error) {
	results, err := surrealdb.Query[[]snapshotRow](ctx, c.db, `
		SELECT * FROM type::record("memory_snapshot", $sid)
	`, map[string]any{"sid": sessionID})
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, nil
	}

	row := (*results)[0].Result[0]
	return &models.MemorySnapshot{
		ShortTermMemory: row.ShortTermMemory,
		WorkingMemory:   row.WorkingMemory,
		LongTermMemory:  row.LongTermMemory,
		PatientProfile:  row.PatientProfile,
		SavedAt:         row.SavedAt,
	}, nil
}

// AppendAudit writes a crisis alert to the append-only audit log.
func (c *Client) AppendAudit(ctx context.Context, alert models.CrisisAlert) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		CREATE audit_log CONTENT {
			session_id: $sid,
			kind: $kind,
			detail: $detail,
			created: $created
		}
	`, map[string]any{
		"sid":  alert.SessionID,
		"kind": "crisis-alert",
		"detail": map[string]any{
			"crisis_type":         string(alert.CrisisType),
			"severity":            alert.Severity.String(),
			"user_message":        alert.UserMessage,
			"roger_response":      alert.RogerResponse,
			"location_info":       alert.LocationInfo,
			"clinical_notes":      alert.ClinicalNotes,
			"risk_assessment":     alert.RiskAssessment,
			"user_agent":          alert.UserAgent,
			"session_duration_ms": alert.SessionDuration,
		},
		"created": alert.Timestamp,
	})
	if err != nil {
		return fmt.Errorf("append audit: %w", err)
	}
	return nil
}

// CreateCrisisEvent persists a crisis event record.
func (c *Client) CreateCrisisEvent(ctx context.Context, event models.CrisisEvent) error {
	row := crisisRow{
		SessionID:         event.SessionID,
		CrisisType:        string(event.CrisisType),
		Severity:          event.Severity.String(),
		UserMessage:       event.UserMessage,
		GeneratedResponse: event.GeneratedResponse,
		LocationInfo:      event.LocationInfo,
		RiskAssessment:    event.RiskAssessment,
		DetectionMethod:   event.DetectionMethod,
		SessionDurationMs: event.SessionDuration,
		Timestamp:         event.Timestamp,
	}

	_, err := surrealdb.Query[any](ctx, c.db, `
		CREATE crisis_event CONTENT $row
	`, map[string]any{"row": row})
	if err != nil {
		return fmt.Errorf("create crisis event: %w", err)
	}
	return nil
}

// ListCrisisEvents returns the session's crisis events, newest first.
// A limit of zero or less returns all events.
func (c *Client) ListCrisisEvents(ctx context.Context, sessionID string, limit int) ([]models.CrisisEvent, error) {
	sql := `
		SELECT * FROM crisis_event
		WHERE session_id = $sid
		ORDER BY timestamp DESC
	`
	vars := map[string]any{"sid": sessionID}
	if limit > 0 {
		sql += " LIMIT $limit"
		vars["limit"] = limit
	}

	results, err := surrealdb.Query[[]crisisRow](ctx, c.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("list crisis events: %w", err)
	}

	if results == nil || len(*results) == 0 {
		return []models.CrisisEvent{}, nil
	}

	rows := (*results)[0].Result
	events := make([]models.CrisisEvent, 0, len(rows))
	for _, row := range rows {
		severity, err := models.ParseSeverity(row.Severity)
		if err != nil {
			return nil, fmt.Errorf("list crisis events: %w", err)
		}
		events = append(events, models.CrisisEvent{
			SessionID:         row.SessionID,
			CrisisType:        models.CrisisType(row.CrisisType),
			Severity:          severity,
			UserMessage:       row.UserMessage,
			GeneratedResponse: row.GeneratedResponse,
			LocationInfo:      row.LocationInfo,
			RiskAssessment:    row.RiskAssessment,
			DetectionMethod:   row.DetectionMethod,
			SessionDuration:   row.SessionDurationMs,
			Timestamp:         row.Timestamp,
		})
	}
	return events, nil
}
