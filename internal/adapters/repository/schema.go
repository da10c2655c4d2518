package repository

import (
	"database/sql"
	"fmt"
)

// migration is one named, idempotently-tracked schema step. Applied in order;
// names are recorded in schema_migrations so reruns are no-ops.
type migration struct {
	name string
	stmt string
}

var migrations = []migration{
	{
		name: "001_latent_states",
		stmt: `CREATE TABLE IF NOT EXISTS latent_states (
			employee_id TEXT NOT NULL,
			parameter   TEXT NOT NULL,
			mean        REAL NOT NULL,
			variance    REAL NOT NULL,
			updated_at  TIMESTAMP NOT NULL,
			PRIMARY KEY (employee_id, parameter)
		)`,
	},
	{
		name: "002_employee_profiles",
		stmt: `CREATE TABLE IF NOT EXISTS employee_profiles (
			employee_id    TEXT NOT NULL,
			week_start     TEXT NOT NULL,
			org_id         TEXT NOT NULL,
			team_id        TEXT NOT NULL,
			means          TEXT NOT NULL,
			variances      TEXT NOT NULL,
			withdrawal     REAL NOT NULL,
			overload       REAL NOT NULL,
			trust_fracture REAL NOT NULL,
			confidence     REAL NOT NULL,
			recommendation TEXT NOT NULL,
			created_at     TIMESTAMP NOT NULL,
			PRIMARY KEY (employee_id, week_start)
		)`,
	},
	{
		name: "003_employee_profiles_team_idx",
		stmt: `CREATE INDEX IF NOT EXISTS idx_employee_profiles_team
			ON employee_profiles (org_id, team_id, week_start)`,
	},
	{
		name: "004_team_aggregates",
		stmt: `CREATE TABLE IF NOT EXISTS team_aggregates (
			org_id          TEXT NOT NULL,
			team_id         TEXT NOT NULL,
			week_start      TEXT NOT NULL,
			means           TEXT NOT NULL,
			uncertainty     TEXT NOT NULL,
			strain          REAL NOT NULL,
			withdrawal      REAL NOT NULL,
			trust_gap       REAL NOT NULL,
			breakdown       TEXT NOT NULL,
			participants    INTEGER NOT NULL,
			compute_version TEXT NOT NULL,
			input_hash      TEXT NOT NULL,
			computed_at     TIMESTAMP NOT NULL,
			PRIMARY KEY (org_id, team_id, week_start)
		)`,
	},
	{
		name: "005_team_profiles",
		stmt: `CREATE TABLE IF NOT EXISTS team_profiles (
			org_id       TEXT NOT NULL,
			team_id      TEXT NOT NULL,
			week_start   TEXT NOT NULL,
			profile_type TEXT NOT NULL,
			score        REAL NOT NULL,
			confidence   REAL NOT NULL,
			PRIMARY KEY (org_id, team_id, week_start, profile_type)
		)`,
	},
	{
		name: "006_weekly_locks",
		stmt: `CREATE TABLE IF NOT EXISTS weekly_locks (
			lock_key    TEXT PRIMARY KEY,
			run_id      TEXT NOT NULL,
			acquired_at TIMESTAMP NOT NULL,
			expires_at  TIMESTAMP NOT NULL,
			status      TEXT NOT NULL CHECK (status IN ('ACQUIRED','RELEASED'))
		)`,
	},
	{
		name: "007_org_settings",
		stmt: `CREATE TABLE IF NOT EXISTS org_settings (
			org_id      TEXT PRIMARY KEY,
			k_threshold INTEGER NOT NULL
		)`,
	},
	{
		name: "008_memberships",
		stmt: `CREATE TABLE IF NOT EXISTS memberships (
			employee_id TEXT PRIMARY KEY,
			org_id      TEXT NOT NULL,
			team_id     TEXT NOT NULL
		)`,
	},
	{
		name: "009_memberships_team_idx",
		stmt: `CREATE INDEX IF NOT EXISTS idx_memberships_team
			ON memberships (org_id, team_id)`,
	},
}

// migrate applies all pending migrations, tracking them by name.
func migrate(db *sql.DB) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		name       TEXT PRIMARY KEY,
		applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}

	for _, m := range migrations {
		var applied int
		err := db.QueryRow(`SELECT COUNT(1) FROM schema_migrations WHERE name = ?`, m.name).Scan(&applied)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", m.name, err)
		}
		if applied > 0 {
			continue
		}
		if _, err := db.Exec(m.stmt); err != nil {
			return fmt.Errorf("apply migration %s: %w", m.name, err)
		}
		if _, err := db.Exec(`INSERT INTO schema_migrations (name) VALUES (?)`, m.name); err != nil {
			return fmt.Errorf("record migration %s: %w", m.name, err)
		}
	}
	return nil
}

// verifySchema confirms the tables this build depends on actually exist.
// Failure is fatal for every run: better a loud error with a remediation hint
// than silent partial writes against a half-migrated store.
func verifySchema(db *sql.DB) error {
	required := []string{
		"latent_states", "employee_profiles", "team_aggregates",
		"team_profiles", "weekly_locks", "org_settings", "memberships",
	}
	for _, table := range required {
		var n int
		err := db.QueryRow(`SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&n)
		if err != nil {
			return fmt.Errorf("inspect schema: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("%w: table %q missing; run migrations against this database before starting a rollup", ErrSchema, table)
		}
	}
	return nil
}
