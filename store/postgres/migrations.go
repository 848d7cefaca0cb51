package postgres

// migration is one named, ordered schema change. Statements run
// sequentially; a migration is recorded only after all of them succeed.
type migration struct {
	name       string
	statements []string
}

// migrations is the ordered schema history. Append only — never edit an
// applied migration.
var migrations = []migration{
	{
		name: "001_create_requests",
		statements: []string{
			`CREATE TABLE IF NOT EXISTS orch_requests (
				id          TEXT PRIMARY KEY,
				type        TEXT NOT NULL,
				payload     JSONB,
				metadata    JSONB,
				status      TEXT NOT NULL DEFAULT 'pending',
				created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`,
			`CREATE INDEX IF NOT EXISTS idx_orch_requests_pending
				ON orch_requests (created_at ASC)
				WHERE status = 'pending'`,
			`CREATE INDEX IF NOT EXISTS idx_orch_requests_type
				ON orch_requests (type)`,
		},
	},
	{
		name: "002_create_responses",
		statements: []string{
			`CREATE TABLE IF NOT EXISTS orch_responses (
				id          TEXT PRIMARY KEY,
				request_id  TEXT NOT NULL,
				status      TEXT NOT NULL,
				result      JSONB,
				error       JSONB,
				created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`,
			`CREATE INDEX IF NOT EXISTS idx_orch_responses_request
				ON orch_responses (request_id, created_at ASC)`,
		},
	},
	{
		name: "003_create_orchestrations",
		statements: []string{
			`CREATE TABLE IF NOT EXISTS orch_orchestrations (
				id              TEXT PRIMARY KEY,
				user_id         TEXT NOT NULL,
				workflow        TEXT NOT NULL,
				status          TEXT NOT NULL DEFAULT 'pending',
				data            JSONB,
				result          JSONB,
				error           TEXT,
				correlation_id  TEXT,
				idempotency_key TEXT,
				completed_at    TIMESTAMPTZ,
				created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`,
			`CREATE UNIQUE INDEX IF NOT EXISTS idx_orch_orchestrations_idem
				ON orch_orchestrations (idempotency_key)
				WHERE idempotency_key <> ''`,
			`CREATE INDEX IF NOT EXISTS idx_orch_orchestrations_status
				ON orch_orchestrations (status, created_at ASC)`,
			`CREATE INDEX IF NOT EXISTS idx_orch_orchestrations_user
				ON orch_orchestrations (user_id)`,
		},
	},
	{
		name: "004_create_assignments",
		statements: []string{
			`CREATE TABLE IF NOT EXISTS orch_assignments (
				id               TEXT PRIMARY KEY,
				orchestration_id TEXT NOT NULL
					REFERENCES orch_orchestrations (id) ON DELETE CASCADE,
				worker_id        TEXT,
				worker_type      TEXT NOT NULL,
				status           TEXT NOT NULL DEFAULT 'pending',
				response         JSONB,
				error            TEXT,
				started_at       TIMESTAMPTZ,
				completed_at     TIMESTAMPTZ,
				retry_count      INTEGER NOT NULL DEFAULT 0,
				max_retries      INTEGER NOT NULL DEFAULT 3,
				created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`,
			`CREATE INDEX IF NOT EXISTS idx_orch_assignments_parent
				ON orch_assignments (orchestration_id, created_at ASC)`,
		},
	},
	{
		name: "005_create_workers",
		statements: []string{
			`CREATE TABLE IF NOT EXISTS orch_workers (
				id                TEXT PRIMARY KEY,
				type              TEXT NOT NULL,
				status            TEXT NOT NULL DEFAULT 'unknown',
				capabilities      JSONB,
				connection        JSONB,
				last_health_check TIMESTAMPTZ,
				created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				updated_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`,
			`CREATE INDEX IF NOT EXISTS idx_orch_workers_type
				ON orch_workers (type)`,
			`CREATE INDEX IF NOT EXISTS idx_orch_workers_status
				ON orch_workers (status)`,
			`CREATE INDEX IF NOT EXISTS idx_orch_workers_heartbeat
				ON orch_workers (last_health_check)`,
		},
	},
	{
		name: "006_create_events",
		statements: []string{
			`CREATE TABLE IF NOT EXISTS orch_events (
				id          TEXT PRIMARY KEY,
				name        TEXT NOT NULL,
				payload     BYTEA,
				user_id     TEXT,
				acked       BOOLEAN NOT NULL DEFAULT FALSE,
				created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`,
			`CREATE INDEX IF NOT EXISTS idx_orch_events_pending
				ON orch_events (name, created_at ASC)
				WHERE acked = FALSE`,
		},
	},
	{
		name: "007_create_dead_letters",
		statements: []string{
			`CREATE TABLE IF NOT EXISTS orch_dead_letters (
				id               TEXT PRIMARY KEY,
				orchestration_id TEXT NOT NULL,
				assignment_id    TEXT NOT NULL,
				worker_type      TEXT NOT NULL,
				user_id          TEXT,
				data             JSONB,
				error            TEXT NOT NULL,
				retry_count      INTEGER NOT NULL DEFAULT 0,
				max_retries      INTEGER NOT NULL DEFAULT 0,
				failed_at        TIMESTAMPTZ NOT NULL,
				replayed_at      TIMESTAMPTZ,
				created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`,
			`CREATE INDEX IF NOT EXISTS idx_orch_dead_letters_type
				ON orch_dead_letters (worker_type, failed_at DESC)`,
		},
	},
}
