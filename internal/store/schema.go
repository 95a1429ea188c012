package store

// SchemaSQL contains the database schema initialization SQL.
const SchemaSQL = `
    -- ==========================================================================
    -- MEMORY_SNAPSHOT TABLE (one row per session, keyed by session id)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS memory_snapshot SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS session_id ON memory_snapshot TYPE string;
    DEFINE FIELD IF NOT EXISTS short_term_memory ON memory_snapshot TYPE array<object> FLEXIBLE;
    DEFINE FIELD IF NOT EXISTS working_memory ON memory_snapshot TYPE array<object> FLEXIBLE;
    DEFINE FIELD IF NOT EXISTS long_term_memory ON memory_snapshot TYPE array<object> FLEXIBLE;
    DEFINE FIELD IF NOT EXISTS patient_profile ON memory_snapshot TYPE option<object> FLEXIBLE;
    DEFINE FIELD IF NOT EXISTS saved_at ON memory_snapshot TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS snapshot_session ON memory_snapshot FIELDS session_id UNIQUE;

    -- ==========================================================================
    -- AUDIT_LOG TABLE (append-only)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS audit_log SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS session_id ON audit_log TYPE string;
    DEFINE FIELD IF NOT EXISTS kind ON audit_log TYPE string;
    DEFINE FIELD IF NOT EXISTS detail ON audit_log TYPE option<object> FLEXIBLE;
    DEFINE FIELD IF NOT EXISTS created ON audit_log TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS audit_session ON audit_log FIELDS session_id;
    DEFINE INDEX IF NOT EXISTS audit_created ON audit_log FIELDS created;

    -- ==========================================================================
    -- CRISIS_EVENT TABLE (append-only; created at medium severity and above)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS crisis_event SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS session_id ON crisis_event TYPE string;
    DEFINE FIELD IF NOT EXISTS crisis_type ON crisis_event TYPE string;
    DEFINE FIELD IF NOT EXISTS severity ON crisis_event TYPE string;
    DEFINE FIELD IF NOT EXISTS user_message ON crisis_event TYPE string;
    DEFINE FIELD IF NOT EXISTS generated_response ON crisis_event TYPE string;
    DEFINE FIELD IF NOT EXISTS location_info ON crisis_event TYPE option<object> FLEXIBLE;
    DEFINE FIELD IF NOT EXISTS risk_assessment ON crisis_event TYPE string;
    DEFINE FIELD IF NOT EXISTS detection_method ON crisis_event TYPE string;
    DEFINE FIELD IF NOT EXISTS session_duration_ms ON crisis_event TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS timestamp ON crisis_event TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS crisis_session ON crisis_event FIELDS session_id;
    DEFINE INDEX IF NOT EXISTS crisis_timestamp ON crisis_event FIELDS timestamp;
`
