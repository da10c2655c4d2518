package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3" // sqlite driver
	"github.com/okian/pulse/internal/domain/model"
	"github.com/okian/pulse/internal/domain/types"
)

const weekLayout = "2006-01-02"

// defaultKThreshold is the anonymity floor used when an org has no explicit
// setting. It is a privacy floor, not a statistical-power knob.
const defaultKThreshold = 7

// SQLiteStore implements Store on a single SQLite database opened in WAL mode.
type SQLiteStore struct {
	db       *sql.DB
	defaultK int
}

var _ Store = (*SQLiteStore)(nil)

// Option applies a configuration option to the SQLiteStore.
type Option func(*SQLiteStore)

// WithDefaultKThreshold overrides the default anonymity floor for orgs
// without an explicit setting.
func WithDefaultKThreshold(k int) Option {
	return func(s *SQLiteStore) {
		if k > 0 {
			s.defaultK = k
		}
	}
}

// Open opens (creating if needed) the database at path, applies migrations
// and verifies the schema.
func Open(path string, opts ...Option) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// A single writer keeps lock acquisition serialized inside sqlite.
	db.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	if err := verifySchema(db); err != nil {
		db.Close()
		return nil, err
	}

	s := &SQLiteStore{db: db, defaultK: defaultKThreshold}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ---- latent states ----

func (s *SQLiteStore) LatentState(ctx context.Context, employeeID string, p types.Parameter) (model.LatentState, bool, error) {
	var st model.LatentState
	var updated string
	err := s.db.QueryRowContext(ctx,
		`SELECT employee_id, parameter, mean, variance, updated_at
		 FROM latent_states WHERE employee_id = ? AND parameter = ?`,
		employeeID, string(p)).Scan(&st.EmployeeID, (*string)(&st.Parameter), &st.Mean, &st.Variance, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return model.LatentState{}, false, nil
	}
	if err != nil {
		return model.LatentState{}, false, fmt.Errorf("query latent state: %w", err)
	}
	st.UpdatedAt = parseTimestamp(updated)
	return st, true, nil
}

func (s *SQLiteStore) PutLatentState(ctx context.Context, st model.LatentState) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO latent_states (employee_id, parameter, mean, variance, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(employee_id, parameter) DO UPDATE SET
			mean = excluded.mean,
			variance = excluded.variance,
			updated_at = excluded.updated_at`,
		st.EmployeeID, string(st.Parameter), st.Mean, st.Variance, formatTimestamp(st.UpdatedAt))
	if err != nil {
		return fmt.Errorf("upsert latent state: %w", err)
	}
	return nil
}

func (s *SQLiteStore) LatentStates(ctx context.Context, employeeID string) ([]model.LatentState, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT employee_id, parameter, mean, variance, updated_at
		 FROM latent_states WHERE employee_id = ? ORDER BY parameter`,
		employeeID)
	if err != nil {
		return nil, fmt.Errorf("query latent states: %w", err)
	}
	defer rows.Close()

	var out []model.LatentState
	for rows.Next() {
		var st model.LatentState
		var updated string
		if err := rows.Scan(&st.EmployeeID, (*string)(&st.Parameter), &st.Mean, &st.Variance, &updated); err != nil {
			return nil, fmt.Errorf("scan latent state: %w", err)
		}
		st.UpdatedAt = parseTimestamp(updated)
		out = append(out, st)
	}
	return out, rows.Err()
}

// ---- employee profiles ----

func (s *SQLiteStore) UpsertEmployeeProfile(ctx context.Context, p model.EmployeeProfile) error {
	means, err := json.Marshal(p.Means)
	if err != nil {
		return fmt.Errorf("encode means: %w", err)
	}
	variances, err := json.Marshal(p.Variances)
	if err != nil {
		return fmt.Errorf("encode variances: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO employee_profiles
			(employee_id, week_start, org_id, team_id, means, variances,
			 withdrawal, overload, trust_fracture, confidence, recommendation, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(employee_id, week_start) DO UPDATE SET
			org_id = excluded.org_id,
			team_id = excluded.team_id,
			means = excluded.means,
			variances = excluded.variances,
			withdrawal = excluded.withdrawal,
			overload = excluded.overload,
			trust_fracture = excluded.trust_fracture,
			confidence = excluded.confidence,
			recommendation = excluded.recommendation`,
		p.EmployeeID, p.WeekStart.Format(weekLayout), p.OrgID, p.TeamID,
		string(means), string(variances),
		p.Scores.Withdrawal, p.Scores.Overload, p.Scores.TrustFracture,
		p.Confidence, p.Recommendation, formatTimestamp(p.CreatedAt))
	if err != nil {
		return fmt.Errorf("upsert employee profile: %w", err)
	}
	return nil
}

func (s *SQLiteStore) EmployeeProfiles(ctx context.Context, orgID, teamID string, week time.Time) ([]model.EmployeeProfile, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT employee_id, week_start, org_id, team_id, means, variances,
			withdrawal, overload, trust_fracture, confidence, recommendation, created_at
		 FROM employee_profiles
		 WHERE org_id = ? AND team_id = ? AND week_start = ?
		 ORDER BY employee_id`,
		orgID, teamID, week.Format(weekLayout))
	if err != nil {
		return nil, fmt.Errorf("query employee profiles: %w", err)
	}
	defer rows.Close()

	var out []model.EmployeeProfile
	for rows.Next() {
		var p model.EmployeeProfile
		var weekStr, means, variances, created string
		if err := rows.Scan(&p.EmployeeID, &weekStr, &p.OrgID, &p.TeamID, &means, &variances,
			&p.Scores.Withdrawal, &p.Scores.Overload, &p.Scores.TrustFracture,
			&p.Confidence, &p.Recommendation, &created); err != nil {
			return nil, fmt.Errorf("scan employee profile: %w", err)
		}
		if err := json.Unmarshal([]byte(means), &p.Means); err != nil {
			return nil, fmt.Errorf("decode means for %s: %w", p.EmployeeID, err)
		}
		if err := json.Unmarshal([]byte(variances), &p.Variances); err != nil {
			return nil, fmt.Errorf("decode variances for %s: %w", p.EmployeeID, err)
		}
		p.WeekStart, _ = time.Parse(weekLayout, weekStr)
		p.CreatedAt = parseTimestamp(created)
		out = append(out, p)
	}
	return out, rows.Err()
}

// ---- team aggregates ----

// aggregateAudit is the JSON shape of the breakdown column: the per-parameter
// contribution audit plus the skipped-employee records for the run.
type aggregateAudit struct {
	Parameters map[types.Parameter]model.ParameterBreakdown `json:"parameters"`
	Skipped    []model.SkippedEmployee                      `json:"skipped,omitempty"`
}

func (s *SQLiteStore) PutTeamAggregate(ctx context.Context, agg model.TeamAggregate) error {
	means, err := json.Marshal(agg.Means)
	if err != nil {
		return fmt.Errorf("encode means: %w", err)
	}
	uncertainty, err := json.Marshal(agg.Uncertainty)
	if err != nil {
		return fmt.Errorf("encode uncertainty: %w", err)
	}
	breakdown, err := json.Marshal(aggregateAudit{Parameters: agg.Breakdown, Skipped: agg.Skipped})
	if err != nil {
		return fmt.Errorf("encode breakdown: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO team_aggregates
			(org_id, team_id, week_start, means, uncertainty,
			 strain, withdrawal, trust_gap, breakdown, participants,
			 compute_version, input_hash, computed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(org_id, team_id, week_start) DO UPDATE SET
			means = excluded.means,
			uncertainty = excluded.uncertainty,
			strain = excluded.strain,
			withdrawal = excluded.withdrawal,
			trust_gap = excluded.trust_gap,
			breakdown = excluded.breakdown,
			participants = excluded.participants,
			compute_version = excluded.compute_version,
			input_hash = excluded.input_hash,
			computed_at = excluded.computed_at`,
		agg.OrgID, agg.TeamID, agg.WeekStart.Format(weekLayout),
		string(means), string(uncertainty),
		agg.Indices.Strain, agg.Indices.Withdrawal, agg.Indices.TrustGap,
		string(breakdown), agg.Participants,
		agg.ComputeVersion, agg.InputHash, formatTimestamp(agg.ComputedAt))
	if err != nil {
		return fmt.Errorf("upsert team aggregate: %w", err)
	}
	return nil
}

func (s *SQLiteStore) TeamAggregate(ctx context.Context, orgID, teamID string, week time.Time) (model.TeamAggregate, bool, error) {
	var agg model.TeamAggregate
	var weekStr, means, uncertainty, breakdown, computed string
	err := s.db.QueryRowContext(ctx,
		`SELECT org_id, team_id, week_start, means, uncertainty,
			strain, withdrawal, trust_gap, breakdown, participants,
			compute_version, input_hash, computed_at
		 FROM team_aggregates
		 WHERE org_id = ? AND team_id = ? AND week_start = ?`,
		orgID, teamID, week.Format(weekLayout)).Scan(
		&agg.OrgID, &agg.TeamID, &weekStr, &means, &uncertainty,
		&agg.Indices.Strain, &agg.Indices.Withdrawal, &agg.Indices.TrustGap,
		&breakdown, &agg.Participants,
		&agg.ComputeVersion, &agg.InputHash, &computed)
	if errors.Is(err, sql.ErrNoRows) {
		return model.TeamAggregate{}, false, nil
	}
	if err != nil {
		return model.TeamAggregate{}, false, fmt.Errorf("query team aggregate: %w", err)
	}
	if err := json.Unmarshal([]byte(means), &agg.Means); err != nil {
		return model.TeamAggregate{}, false, fmt.Errorf("decode means: %w", err)
	}
	if err := json.Unmarshal([]byte(uncertainty), &agg.Uncertainty); err != nil {
		return model.TeamAggregate{}, false, fmt.Errorf("decode uncertainty: %w", err)
	}
	var audit aggregateAudit
	if err := json.Unmarshal([]byte(breakdown), &audit); err != nil {
		return model.TeamAggregate{}, false, fmt.Errorf("decode breakdown: %w", err)
	}
	agg.Breakdown = audit.Parameters
	agg.Skipped = audit.Skipped
	agg.WeekStart, _ = time.Parse(weekLayout, weekStr)
	agg.ComputedAt = parseTimestamp(computed)
	return agg, true, nil
}

// ---- team profiles ----

func (s *SQLiteStore) ReplaceTeamProfiles(ctx context.Context, orgID, teamID string, week time.Time, profiles []model.TeamProfile) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin team profile replace: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM team_profiles WHERE org_id = ? AND team_id = ? AND week_start = ?`,
		orgID, teamID, week.Format(weekLayout)); err != nil {
		return fmt.Errorf("delete team profiles: %w", err)
	}
	for _, p := range profiles {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO team_profiles (org_id, team_id, week_start, profile_type, score, confidence)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			orgID, teamID, week.Format(weekLayout), string(p.Type), p.Score, p.Confidence); err != nil {
			return fmt.Errorf("insert team profile %s: %w", p.Type, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit team profile replace: %w", err)
	}
	return nil
}

func (s *SQLiteStore) TeamProfiles(ctx context.Context, orgID, teamID string, week time.Time) ([]model.TeamProfile, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT org_id, team_id, week_start, profile_type, score, confidence
		 FROM team_profiles
		 WHERE org_id = ? AND team_id = ? AND week_start = ?
		 ORDER BY profile_type`,
		orgID, teamID, week.Format(weekLayout))
	if err != nil {
		return nil, fmt.Errorf("query team profiles: %w", err)
	}
	defer rows.Close()

	var out []model.TeamProfile
	for rows.Next() {
		var p model.TeamProfile
		var weekStr string
		if err := rows.Scan(&p.OrgID, &p.TeamID, &weekStr, (*string)(&p.Type), &p.Score, &p.Confidence); err != nil {
			return nil, fmt.Errorf("scan team profile: %w", err)
		}
		p.WeekStart, _ = time.Parse(weekLayout, weekStr)
		out = append(out, p)
	}
	return out, rows.Err()
}

// ---- org settings & membership ----

func (s *SQLiteStore) KThreshold(ctx context.Context, orgID string) (int, error) {
	var k int
	err := s.db.QueryRowContext(ctx,
		`SELECT k_threshold FROM org_settings WHERE org_id = ?`, orgID).Scan(&k)
	if errors.Is(err, sql.ErrNoRows) {
		return s.defaultK, nil
	}
	if err != nil {
		return 0, fmt.Errorf("query k threshold: %w", err)
	}
	return k, nil
}

func (s *SQLiteStore) SetKThreshold(ctx context.Context, orgID string, k int) error {
	if k < 1 {
		return fmt.Errorf("k threshold must be positive, got %d", k)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO org_settings (org_id, k_threshold) VALUES (?, ?)
		 ON CONFLICT(org_id) DO UPDATE SET k_threshold = excluded.k_threshold`,
		orgID, k)
	if err != nil {
		return fmt.Errorf("set k threshold: %w", err)
	}
	return nil
}

func (s *SQLiteStore) PutMembership(ctx context.Context, m model.Membership) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO memberships (employee_id, org_id, team_id) VALUES (?, ?, ?)
		 ON CONFLICT(employee_id) DO UPDATE SET org_id = excluded.org_id, team_id = excluded.team_id`,
		m.EmployeeID, m.OrgID, m.TeamID)
	if err != nil {
		return fmt.Errorf("upsert membership: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Members(ctx context.Context, orgID, teamID string) ([]model.Membership, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT employee_id, org_id, team_id FROM memberships
		 WHERE org_id = ? AND team_id = ? ORDER BY employee_id`,
		orgID, teamID)
	if err != nil {
		return nil, fmt.Errorf("query members: %w", err)
	}
	defer rows.Close()

	var out []model.Membership
	for rows.Next() {
		var m model.Membership
		if err := rows.Scan(&m.EmployeeID, &m.OrgID, &m.TeamID); err != nil {
			return nil, fmt.Errorf("scan membership: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Teams(ctx context.Context) ([]model.TeamRef, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT org_id, team_id FROM memberships ORDER BY org_id, team_id`)
	if err != nil {
		return nil, fmt.Errorf("query teams: %w", err)
	}
	defer rows.Close()

	var out []model.TeamRef
	for rows.Next() {
		var t model.TeamRef
		if err := rows.Scan(&t.OrgID, &t.TeamID); err != nil {
			return nil, fmt.Errorf("scan team: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ---- timestamps ----

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTimestamp(s string) time.Time {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
