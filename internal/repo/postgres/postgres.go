package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hamed0406/reachmon/internal/domain"
	"github.com/hamed0406/reachmon/internal/probe"
	"github.com/hamed0406/reachmon/internal/repo"
)

var _ repo.Store = (*Store)(nil)

type Store struct {
	pool *pgxpool.Pool
	log  *zap.Logger
}

// Schema is applied by Migrate. Every statement is idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS targets (
  id                  TEXT PRIMARY KEY,
  name                TEXT NOT NULL DEFAULT '',
  host                TEXT NOT NULL,
  port                INTEGER NOT NULL DEFAULT 0,
  interval_ms         BIGINT NOT NULL,
  timeout_ms          BIGINT NOT NULL,
  failure_threshold   INTEGER NOT NULL,
  recovery_threshold  INTEGER NOT NULL,
  created_at          TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS probe_results (
  id          BIGSERIAL PRIMARY KEY,
  target_id   TEXT NOT NULL,
  host        TEXT NOT NULL,
  port        INTEGER NOT NULL DEFAULT 0,
  method      TEXT NOT NULL,
  success     BOOLEAN NOT NULL,
  latency_ms  DOUBLE PRECISION NULL,
  reason      TEXT NOT NULL DEFAULT '',
  detail      TEXT NOT NULL DEFAULT '',
  checked_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_probe_results_target_time ON probe_results (target_id, checked_at DESC);

CREATE TABLE IF NOT EXISTS transitions (
  id          BIGSERIAL PRIMARY KEY,
  target_id   TEXT NOT NULL,
  host        TEXT NOT NULL,
  port        INTEGER NOT NULL DEFAULT 0,
  from_status TEXT NOT NULL,
  to_status   TEXT NOT NULL,
  at          TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_transitions_target_time ON transitions (target_id, at DESC);

CREATE TABLE IF NOT EXISTS port_scans (
  id          BIGSERIAL PRIMARY KEY,
  host        TEXT NOT NULL,
  port        INTEGER NOT NULL,
  status      TEXT NOT NULL,
  scanned_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_port_scans_host_time ON port_scans (host, scanned_at DESC);

CREATE TABLE IF NOT EXISTS alerts (
  target_id     TEXT PRIMARY KEY,
  last_status   TEXT NOT NULL,
  last_sent_at  TIMESTAMPTZ NULL
);
`

func New(ctx context.Context, dsn string, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	ctxPing, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctxPing); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return &Store{pool: pool, log: log}, nil
}

// Migrate creates the tables if they do not exist yet.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	s.log.Info("postgres_migrated")
	return nil
}

func (s *Store) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

// ---- TargetStore ----

func (s *Store) Save(ctx context.Context, t domain.Target) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO targets
		   (id, name, host, port, interval_ms, timeout_ms, failure_threshold, recovery_threshold, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		 ON CONFLICT (id) DO UPDATE SET
		   name=EXCLUDED.name, host=EXCLUDED.host, port=EXCLUDED.port,
		   interval_ms=EXCLUDED.interval_ms, timeout_ms=EXCLUDED.timeout_ms,
		   failure_threshold=EXCLUDED.failure_threshold, recovery_threshold=EXCLUDED.recovery_threshold`,
		string(t.ID), t.Name, t.Host, t.Port,
		t.Interval.Milliseconds(), t.Timeout.Milliseconds(),
		t.FailureThreshold, t.RecoveryThreshold, t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save target: %w", err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, id domain.TargetID) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM targets WHERE id=$1`, string(id)); err != nil {
		return fmt.Errorf("delete target: %w", err)
	}
	return nil
}

func (s *Store) List(ctx context.Context) ([]domain.Target, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, host, port, interval_ms, timeout_ms, failure_threshold, recovery_threshold, created_at
		   FROM targets
		  ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list targets: %w", err)
	}
	defer rows.Close()

	var out []domain.Target
	for rows.Next() {
		var (
			t                     domain.Target
			id                    string
			intervalMS, timeoutMS int64
		)
		if err := rows.Scan(&id, &t.Name, &t.Host, &t.Port, &intervalMS, &timeoutMS,
			&t.FailureThreshold, &t.RecoveryThreshold, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan target: %w", err)
		}
		t.ID = domain.TargetID(id)
		t.Interval = time.Duration(intervalMS) * time.Millisecond
		t.Timeout = time.Duration(timeoutMS) * time.Millisecond
		out = append(out, t)
	}
	return out, rows.Err()
}

// ---- ResultStore ----

func (s *Store) Append(ctx context.Context, r domain.ProbeResult) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO probe_results
		   (target_id, host, port, method, success, latency_ms, reason, detail, checked_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		string(r.TargetID), r.Host, r.Port, string(r.Method), r.Success,
		r.NullableLatencyMS(), string(r.Reason), r.Detail, r.CheckedAt,
	)
	if err != nil {
		return fmt.Errorf("insert result: %w", err)
	}
	return nil
}

const resultColumns = `target_id, host, port, method, success, latency_ms, reason, detail, checked_at`

func (s *Store) Latest(ctx context.Context) ([]domain.ProbeResult, error) {
	return s.queryResults(ctx, `
SELECT DISTINCT ON (target_id) `+resultColumns+`
  FROM probe_results
 ORDER BY target_id, checked_at DESC`)
}

func (s *Store) History(ctx context.Context, id domain.TargetID, limit int) ([]domain.ProbeResult, error) {
	return s.queryResults(ctx, `
SELECT `+resultColumns+`
  FROM probe_results
 WHERE target_id = $1
 ORDER BY checked_at DESC, id DESC
 LIMIT $2`, string(id), repo.Limit(limit))
}

func (s *Store) queryResults(ctx context.Context, q string, args ...any) ([]domain.ProbeResult, error) {
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}
	defer rows.Close()

	var out []domain.ProbeResult
	for rows.Next() {
		var (
			r                  domain.ProbeResult
			id, method, reason string
			latency            *float64
		)
		if err := rows.Scan(&id, &r.Host, &r.Port, &method, &r.Success, &latency, &reason, &r.Detail, &r.CheckedAt); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		r.TargetID = domain.TargetID(id)
		r.Method = domain.ProbeMethod(method)
		r.Reason = domain.FailureReason(reason)
		if latency != nil {
			r.Latency = time.Duration(*latency * float64(time.Millisecond))
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ---- TransitionStore ----

func (s *Store) AppendTransition(ctx context.Context, e domain.TransitionEvent) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO transitions (target_id, host, port, from_status, to_status, at)
		 VALUES ($1,$2,$3,$4,$5,$6)`,
		string(e.TargetID), e.Host, e.Port, string(e.From), string(e.To), e.At,
	)
	if err != nil {
		return fmt.Errorf("insert transition: %w", err)
	}
	return nil
}

func (s *Store) Transitions(ctx context.Context, id domain.TargetID, limit int) ([]domain.TransitionEvent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT target_id, host, port, from_status, to_status, at
		   FROM transitions
		  WHERE target_id = $1
		  ORDER BY at DESC, id DESC
		  LIMIT $2`, string(id), repo.Limit(limit))
	if err != nil {
		return nil, fmt.Errorf("query transitions: %w", err)
	}
	defer rows.Close()

	var out []domain.TransitionEvent
	for rows.Next() {
		var (
			e             domain.TransitionEvent
			tid, from, to string
		)
		if err := rows.Scan(&tid, &e.Host, &e.Port, &from, &to, &e.At); err != nil {
			return nil, fmt.Errorf("scan transition: %w", err)
		}
		e.TargetID = domain.TargetID(tid)
		e.From, e.To = domain.Status(from), domain.Status(to)
		out = append(out, e)
	}
	return out, rows.Err()
}

// ---- ScanStore ----

func (s *Store) AppendScan(ctx context.Context, rep probe.ScanReport) error {
	if len(rep.Ports) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, p := range rep.Ports {
		row := repo.ScanRow{Host: rep.Host, Port: p.Port, Open: p.Open}
		batch.Queue(`INSERT INTO port_scans (host, port, status, scanned_at) VALUES ($1,$2,$3,$4)`,
			row.Host, row.Port, row.ScanStatus(), rep.StartedAt)
	}
	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert scan: %w", err)
	}
	return nil
}

func (s *Store) Scans(ctx context.Context, host string, limit int) ([]repo.ScanRow, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT host, port, status, scanned_at
		   FROM port_scans
		  WHERE $1 = '' OR host = $1
		  ORDER BY scanned_at DESC, id DESC
		  LIMIT $2`, host, repo.Limit(limit))
	if err != nil {
		return nil, fmt.Errorf("query scans: %w", err)
	}
	defer rows.Close()

	var out []repo.ScanRow
	for rows.Next() {
		var (
			r      repo.ScanRow
			status string
		)
		if err := rows.Scan(&r.Host, &r.Port, &status, &r.ScannedAt); err != nil {
			return nil, fmt.Errorf("scan port row: %w", err)
		}
		r.Open = status == "open"
		out = append(out, r)
	}
	return out, rows.Err()
}

func isNoRows(err error) bool { return errors.Is(err, pgx.ErrNoRows) }
