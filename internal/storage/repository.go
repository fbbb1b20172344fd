package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"match-alerts/internal/domain"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	listActiveRulesSQL = `SELECT
        id,
        name,
        user_id,
        phone,
        condition,
        time_windows,
        sequences,
        created_at
    FROM alert_rules
    WHERE active
    ORDER BY id;`

	fireExistsSQL = `SELECT EXISTS (
        SELECT 1 FROM alert_fires WHERE rule_id = $1 AND fixture_id = $2
    );`

	insertFireSQL = `INSERT INTO alert_fires (
        rule_id,
        fixture_id,
        message,
        status
    ) VALUES (
        $1,$2,$3,$4
    )
    ON CONFLICT (rule_id, fixture_id) DO NOTHING;`

	markFireStatusSQL = `UPDATE alert_fires
    SET status = $3
    WHERE rule_id = $1 AND fixture_id = $2;`

	listRecentFiresSQL = `SELECT
        f.rule_id,
        f.fixture_id,
        COALESCE(r.name, ''),
        f.message,
        f.status,
        f.created_at
    FROM alert_fires f
    LEFT JOIN alert_rules r ON r.id = f.rule_id
    ORDER BY f.created_at DESC
    LIMIT $1;`

	upsertSignalSampleSQL = `INSERT INTO signal_samples (
        fixture_id,
        cycle_ts,
        home_team,
        away_team,
        home_score,
        away_score,
        elapsed,
        xg_home,
        xg_away,
        momentum_home,
        momentum_away,
        pressure_home,
        pressure_away,
        win_prob_home,
        win_prob_away,
        draw_prob
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16
    )
    ON CONFLICT (fixture_id, cycle_ts) DO UPDATE
    SET
        home_score    = EXCLUDED.home_score,
        away_score    = EXCLUDED.away_score,
        elapsed       = EXCLUDED.elapsed,
        xg_home       = EXCLUDED.xg_home,
        xg_away       = EXCLUDED.xg_away,
        momentum_home = EXCLUDED.momentum_home,
        momentum_away = EXCLUDED.momentum_away,
        pressure_home = EXCLUDED.pressure_home,
        pressure_away = EXCLUDED.pressure_away,
        win_prob_home = EXCLUDED.win_prob_home,
        win_prob_away = EXCLUDED.win_prob_away,
        draw_prob     = EXCLUDED.draw_prob;`

	listFixtureSamplesSQL = `SELECT
        fixture_id,
        cycle_ts,
        home_team,
        away_team,
        home_score,
        away_score,
        elapsed,
        xg_home,
        xg_away,
        momentum_home,
        momentum_away,
        pressure_home,
        pressure_away,
        win_prob_home,
        win_prob_away,
        draw_prob,
        created_at
    FROM signal_samples
    WHERE fixture_id = $1
      AND cycle_ts >= $2
      AND cycle_ts < $3
    ORDER BY cycle_ts;`

	listRecentSamplesSQL = `SELECT
        fixture_id,
        cycle_ts,
        home_team,
        away_team,
        home_score,
        away_score,
        elapsed,
        xg_home,
        xg_away,
        momentum_home,
        momentum_away,
        pressure_home,
        pressure_away,
        win_prob_home,
        win_prob_away,
        draw_prob,
        created_at
    FROM signal_samples
    ORDER BY cycle_ts DESC
    LIMIT $1;`

	insertPatternSQL = `INSERT INTO game_patterns (
        fixture_id,
        kind,
        severity,
        confidence,
        side,
        started_at,
        ended_at,
        detected_at
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8
    ) RETURNING id;`

	listRecentPatternsSQL = `SELECT
        id,
        fixture_id,
        kind,
        severity,
        confidence,
        side,
        started_at,
        ended_at,
        detected_at
    FROM game_patterns
    ORDER BY detected_at DESC
    LIMIT $1;`

	deletePatternsBeforeSQL = `DELETE FROM game_patterns WHERE detected_at < $1;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// RuleStore loads the active rule set, a full read-only snapshot per
// poll cycle.
type RuleStore interface {
	LoadActiveRules(ctx context.Context) ([]domain.AlertRule, error)
}

// FireHistoryStore is the at-most-once dedup truth for rule firing.
type FireHistoryStore interface {
	FireExists(ctx context.Context, ruleID, fixtureID int64) (bool, error)
	RecordFire(ctx context.Context, fire FireRecord) (inserted bool, err error)
	MarkFireStatus(ctx context.Context, ruleID, fixtureID int64, status string) error
	ListRecentFires(ctx context.Context, limit int) ([]FireRecord, error)
}

// SignalSampleStore persists per-cycle derived signals.
type SignalSampleStore interface {
	UpsertSignalSample(ctx context.Context, sample SignalSample) error
	ListFixtureSamples(ctx context.Context, fixtureID int64, from, to time.Time) ([]SignalSample, error)
	ListRecentSamples(ctx context.Context, limit int) ([]SignalSample, error)
}

// PatternStore persists detected game patterns.
type PatternStore interface {
	InsertPattern(ctx context.Context, pattern PatternRecord) (int64, error)
	ListRecentPatterns(ctx context.Context, limit int) ([]PatternRecord, error)
	DeletePatternsBefore(ctx context.Context, olderThan time.Time) error
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store aggregates access to rules, fire history, samples, and patterns.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		// Unlock is best effort; the connection release frees the lock
		// server-side if the statement fails.
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

// LoadActiveRules loads and parses every active rule. A rule that fails
// to parse is skipped with its error collected; one broken rule must not
// take the whole cycle down.
func (s *Store) LoadActiveRules(ctx context.Context) ([]domain.AlertRule, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listActiveRulesSQL)
	if queryErr != nil {
		return nil, fmt.Errorf("list active rules: %w", queryErr)
	}
	defer rows.Close()

	var rules []domain.AlertRule
	var parseErrs []error
	for rows.Next() {
		var rec RuleRecord
		if err := rows.Scan(
			&rec.ID,
			&rec.Name,
			&rec.UserID,
			&rec.Phone,
			&rec.Condition,
			&rec.TimeWindows,
			&rec.Sequences,
			&rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		rule, convErr := rec.ToDomain()
		if convErr != nil {
			parseErrs = append(parseErrs, convErr)
			continue
		}
		rules = append(rules, rule)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	if len(parseErrs) > 0 && len(rules) == 0 {
		return nil, fmt.Errorf("all rules failed to parse: %w", errors.Join(parseErrs...))
	}
	return rules, nil
}

// FireExists reports whether a (rule, fixture) pair has already fired.
func (s *Store) FireExists(ctx context.Context, ruleID, fixtureID int64) (bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return false, err
	}
	var exists bool
	if scanErr := pool.QueryRow(ctx, fireExistsSQL, ruleID, fixtureID).Scan(&exists); scanErr != nil {
		return false, fmt.Errorf("fire exists: %w", scanErr)
	}
	return exists, nil
}

// RecordFire claims the (rule, fixture) pair atomically. The unique
// constraint makes this an insert-if-absent: a false return means another
// worker already holds the claim and the caller must not dispatch.
func (s *Store) RecordFire(ctx context.Context, fire FireRecord) (bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return false, err
	}
	tag, execErr := pool.Exec(ctx, insertFireSQL,
		fire.RuleID,
		fire.FixtureID,
		fire.Message,
		fire.Status,
	)
	if execErr != nil {
		return false, fmt.Errorf("record fire: %w", execErr)
	}
	return tag.RowsAffected() > 0, nil
}

// MarkFireStatus updates the dispatch outcome on an existing fire row.
func (s *Store) MarkFireStatus(ctx context.Context, ruleID, fixtureID int64, status string) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	tag, execErr := pool.Exec(ctx, markFireStatusSQL, ruleID, fixtureID, status)
	if execErr != nil {
		return fmt.Errorf("mark fire status: %w", execErr)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// ListRecentFires lists the most recent fire records.
func (s *Store) ListRecentFires(ctx context.Context, limit int) ([]FireRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentFiresSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent fires: %w", queryErr)
	}
	defer rows.Close()

	fires := make([]FireRecord, 0, limit)
	for rows.Next() {
		var rec FireRecord
		if err := rows.Scan(
			&rec.RuleID,
			&rec.FixtureID,
			&rec.RuleName,
			&rec.Message,
			&rec.Status,
			&rec.CreatedAt,
		); err != nil {
			return nil, err
		}
		fires = append(fires, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return fires, nil
}

// UpsertSignalSample persists or updates one cycle's derived signals.
func (s *Store) UpsertSignalSample(ctx context.Context, sample SignalSample) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	_, execErr := pool.Exec(ctx, upsertSignalSampleSQL,
		sample.FixtureID,
		sample.CycleTS,
		sample.HomeTeam,
		sample.AwayTeam,
		sample.HomeScore,
		sample.AwayScore,
		sample.Elapsed,
		sample.XGHome,
		sample.XGAway,
		sample.MomentumHome,
		sample.MomentumAway,
		sample.PressureHome,
		sample.PressureAway,
		sample.WinProbHome,
		sample.WinProbAway,
		sample.DrawProb,
	)
	if execErr != nil {
		return fmt.Errorf("upsert signal sample: %w", execErr)
	}
	return nil
}

// ListFixtureSamples lists a fixture's samples within a time window.
func (s *Store) ListFixtureSamples(ctx context.Context, fixtureID int64, from, to time.Time) ([]SignalSample, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listFixtureSamplesSQL, fixtureID, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list fixture samples: %w", queryErr)
	}
	defer rows.Close()

	return collectSamples(rows)
}

// ListRecentSamples lists the most recent samples across fixtures.
func (s *Store) ListRecentSamples(ctx context.Context, limit int) ([]SignalSample, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentSamplesSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent samples: %w", queryErr)
	}
	defer rows.Close()

	return collectSamples(rows)
}

func collectSamples(rows pgx.Rows) ([]SignalSample, error) {
	var samples []SignalSample
	for rows.Next() {
		var sm SignalSample
		if err := rows.Scan(
			&sm.FixtureID,
			&sm.CycleTS,
			&sm.HomeTeam,
			&sm.AwayTeam,
			&sm.HomeScore,
			&sm.AwayScore,
			&sm.Elapsed,
			&sm.XGHome,
			&sm.XGAway,
			&sm.MomentumHome,
			&sm.MomentumAway,
			&sm.PressureHome,
			&sm.PressureAway,
			&sm.WinProbHome,
			&sm.WinProbAway,
			&sm.DrawProb,
			&sm.CreatedAt,
		); err != nil {
			return nil, err
		}
		samples = append(samples, sm)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return samples, nil
}

// InsertPattern persists one detected pattern.
func (s *Store) InsertPattern(ctx context.Context, pattern PatternRecord) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var id int64
	if scanErr := pool.QueryRow(ctx, insertPatternSQL,
		pattern.FixtureID,
		pattern.Kind,
		pattern.Severity,
		pattern.Confidence,
		pattern.Side,
		pattern.StartedAt,
		pattern.EndedAt,
		pattern.DetectedAt,
	).Scan(&id); scanErr != nil {
		return 0, fmt.Errorf("insert pattern: %w", scanErr)
	}
	return id, nil
}

// ListRecentPatterns lists the most recent detected patterns.
func (s *Store) ListRecentPatterns(ctx context.Context, limit int) ([]PatternRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentPatternsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent patterns: %w", queryErr)
	}
	defer rows.Close()

	patterns := make([]PatternRecord, 0, limit)
	for rows.Next() {
		var rec PatternRecord
		if err := rows.Scan(
			&rec.ID,
			&rec.FixtureID,
			&rec.Kind,
			&rec.Severity,
			&rec.Confidence,
			&rec.Side,
			&rec.StartedAt,
			&rec.EndedAt,
			&rec.DetectedAt,
		); err != nil {
			return nil, err
		}
		patterns = append(patterns, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return patterns, nil
}

// DeletePatternsBefore drops patterns past the retention horizon.
func (s *Store) DeletePatternsBefore(ctx context.Context, olderThan time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, deletePatternsBeforeSQL, olderThan); execErr != nil {
		return fmt.Errorf("delete patterns before: %w", execErr)
	}
	return nil
}
