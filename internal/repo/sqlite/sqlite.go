// Package sqlite is a single-file store for deployments without Postgres.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	"github.com/hamed0406/reachmon/internal/domain"
	"github.com/hamed0406/reachmon/internal/probe"
	"github.com/hamed0406/reachmon/internal/repo"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schema string

// Config configures the SQLite store.
type Config struct {
	// DSN is a file path or sqlite connection string.
	DSN string

	// RetentionAge deletes results, transitions and scans older than this
	// duration. Zero keeps everything.
	RetentionAge time.Duration

	// PruneInterval is how often to prune (default 1 hour).
	PruneInterval time.Duration
}

type Store struct {
	db   *sql.DB
	cfg  Config
	stop chan struct{}
	done chan struct{}
}

var _ repo.Store = (*Store)(nil)

// Open opens (or creates) the database and applies the schema.
func Open(cfg Config) (*Store, error) {
	if cfg.PruneInterval <= 0 {
		cfg.PruneInterval = time.Hour
	}

	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	// One writer at a time; avoids SQLITE_BUSY under concurrent sinks.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: set WAL mode: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: create schema: %w", err)
	}

	s := &Store{
		db:   db,
		cfg:  cfg,
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	if cfg.RetentionAge > 0 {
		go s.pruneLoop()
	} else {
		close(s.done)
	}
	return s, nil
}

// Close stops the pruner and closes the database.
func (s *Store) Close() error {
	select {
	case <-s.stop:
	default:
		close(s.stop)
	}
	<-s.done
	return s.db.Close()
}

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func parseTime(v string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("sqlite: parse time %q: %w", v, err)
	}
	return t, nil
}

// ---- TargetStore ----

func (s *Store) Save(ctx context.Context, t domain.Target) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO targets (id, name, host, port, interval_ms, timeout_ms, failure_threshold, recovery_threshold, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   name=excluded.name, host=excluded.host, port=excluded.port,
		   interval_ms=excluded.interval_ms, timeout_ms=excluded.timeout_ms,
		   failure_threshold=excluded.failure_threshold, recovery_threshold=excluded.recovery_threshold`,
		string(t.ID), t.Name, t.Host, t.Port,
		t.Interval.Milliseconds(), t.Timeout.Milliseconds(),
		t.FailureThreshold, t.RecoveryThreshold, formatTime(t.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("sqlite: save target: %w", err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, id domain.TargetID) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM targets WHERE id = ?`, string(id)); err != nil {
		return fmt.Errorf("sqlite: delete target: %w", err)
	}
	return nil
}

func (s *Store) List(ctx context.Context) ([]domain.Target, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, host, port, interval_ms, timeout_ms, failure_threshold, recovery_threshold, created_at
		   FROM targets ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list targets: %w", err)
	}
	defer rows.Close()

	var out []domain.Target
	for rows.Next() {
		var (
			t                     domain.Target
			id, created           string
			intervalMS, timeoutMS int64
		)
		if err := rows.Scan(&id, &t.Name, &t.Host, &t.Port, &intervalMS, &timeoutMS,
			&t.FailureThreshold, &t.RecoveryThreshold, &created); err != nil {
			return nil, fmt.Errorf("sqlite: scan target: %w", err)
		}
		if t.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
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
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO network_logs (target_id, host, port, method, success, latency_ms, reason, detail, checked_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(r.TargetID), r.Host, r.Port, string(r.Method), r.Success,
		r.NullableLatencyMS(), string(r.Reason), r.Detail, formatTime(r.CheckedAt),
	)
	if err != nil {
		return fmt.Errorf("sqlite: append result: %w", err)
	}
	return nil
}

const resultColumns = `target_id, host, port, method, success, latency_ms, reason, detail, checked_at`

func (s *Store) Latest(ctx context.Context) ([]domain.ProbeResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+resultColumns+` FROM network_logs n
		  WHERE n.id = (
		    SELECT id FROM network_logs
		     WHERE target_id = n.target_id
		     ORDER BY checked_at DESC, id DESC
		     LIMIT 1
		  )
		  ORDER BY n.target_id`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: latest: %w", err)
	}
	defer rows.Close()
	return scanResults(rows)
}

func (s *Store) History(ctx context.Context, id domain.TargetID, limit int) ([]domain.ProbeResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+resultColumns+` FROM network_logs
		  WHERE target_id = ?
		  ORDER BY checked_at DESC, id DESC
		  LIMIT ?`, string(id), repo.Limit(limit))
	if err != nil {
		return nil, fmt.Errorf("sqlite: history: %w", err)
	}
	defer rows.Close()
	return scanResults(rows)
}

func scanResults(rows *sql.Rows) ([]domain.ProbeResult, error) {
	var out []domain.ProbeResult
	for rows.Next() {
		var (
			r                           domain.ProbeResult
			id, method, reason, checked string
			latency                     sql.NullFloat64
		)
		if err := rows.Scan(&id, &r.Host, &r.Port, &method, &r.Success, &latency, &reason, &r.Detail, &checked); err != nil {
			return nil, fmt.Errorf("sqlite: scan result: %w", err)
		}
		at, err := parseTime(checked)
		if err != nil {
			return nil, err
		}
		r.TargetID = domain.TargetID(id)
		r.Method = domain.ProbeMethod(method)
		r.Reason = domain.FailureReason(reason)
		r.CheckedAt = at
		if latency.Valid {
			r.Latency = time.Duration(latency.Float64 * float64(time.Millisecond))
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ---- TransitionStore ----

func (s *Store) AppendTransition(ctx context.Context, e domain.TransitionEvent) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO transitions (target_id, host, port, from_status, to_status, at) VALUES (?, ?, ?, ?, ?, ?)`,
		string(e.TargetID), e.Host, e.Port, string(e.From), string(e.To), formatTime(e.At),
	)
	if err != nil {
		return fmt.Errorf("sqlite: append transition: %w", err)
	}
	return nil
}

func (s *Store) Transitions(ctx context.Context, id domain.TargetID, limit int) ([]domain.TransitionEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT target_id, host, port, from_status, to_status, at FROM transitions
		  WHERE target_id = ?
		  ORDER BY at DESC, id DESC
		  LIMIT ?`, string(id), repo.Limit(limit))
	if err != nil {
		return nil, fmt.Errorf("sqlite: transitions: %w", err)
	}
	defer rows.Close()

	var out []domain.TransitionEvent
	for rows.Next() {
		var (
			e                 domain.TransitionEvent
			tid, from, to, at string
		)
		if err := rows.Scan(&tid, &e.Host, &e.Port, &from, &to, &at); err != nil {
			return nil, fmt.Errorf("sqlite: scan transition: %w", err)
		}
		if e.At, err = parseTime(at); err != nil {
			return nil, err
		}
		e.TargetID = domain.TargetID(tid)
		e.From, e.To = domain.Status(from), domain.Status(to)
		out = append(out, e)
	}
	return out, rows.Err()
}

// ---- ScanStore ----

func (s *Store) AppendScan(ctx context.Context, rep probe.ScanReport) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin scan: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	at := formatTime(rep.StartedAt)
	for _, p := range rep.Ports {
		row := repo.ScanRow{Host: rep.Host, Port: p.Port, Open: p.Open}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO port_logs (host, port, status, scanned_at) VALUES (?, ?, ?, ?)`,
			row.Host, row.Port, row.ScanStatus(), at,
		); err != nil {
			return fmt.Errorf("sqlite: append scan: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit scan: %w", err)
	}
	return nil
}

func (s *Store) Scans(ctx context.Context, host string, limit int) ([]repo.ScanRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT host, port, status, scanned_at FROM port_logs
		  WHERE ? = '' OR host = ?
		  ORDER BY scanned_at DESC, id DESC
		  LIMIT ?`, host, host, repo.Limit(limit))
	if err != nil {
		return nil, fmt.Errorf("sqlite: scans: %w", err)
	}
	defer rows.Close()

	var out []repo.ScanRow
	for rows.Next() {
		var (
			r          repo.ScanRow
			status, at string
		)
		if err := rows.Scan(&r.Host, &r.Port, &status, &at); err != nil {
			return nil, fmt.Errorf("sqlite: scan port row: %w", err)
		}
		if r.ScannedAt, err = parseTime(at); err != nil {
			return nil, err
		}
		r.Open = status == "open"
		out = append(out, r)
	}
	return out, rows.Err()
}

// ---- AlertStore ----

func (s *Store) GetAlert(ctx context.Context, id domain.TargetID) (*repo.AlertRecord, error) {
	var (
		status string
		sent   sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT last_status, last_sent_at FROM alerts WHERE target_id = ?`, string(id),
	).Scan(&status, &sent)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: get alert: %w", err)
	}
	rec := &repo.AlertRecord{TargetID: id, LastStatus: domain.Status(status)}
	if sent.Valid {
		ts, err := parseTime(sent.String)
		if err != nil {
			return nil, err
		}
		rec.LastSentAt = &ts
	}
	return rec, nil
}

func (s *Store) SetAlert(ctx context.Context, id domain.TargetID, status domain.Status, sentAt time.Time) error {
	var sent sql.NullString
	if !sentAt.IsZero() {
		sent = sql.NullString{String: formatTime(sentAt), Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO alerts (target_id, last_status, last_sent_at) VALUES (?, ?, ?)
		 ON CONFLICT(target_id) DO UPDATE SET last_status=excluded.last_status, last_sent_at=excluded.last_sent_at`,
		string(id), string(status), sent,
	)
	if err != nil {
		return fmt.Errorf("sqlite: set alert: %w", err)
	}
	return nil
}

// ---- retention ----

// Prune runs a single retention pass.
func (s *Store) Prune(ctx context.Context) error {
	if s.cfg.RetentionAge <= 0 {
		return nil
	}
	cutoff := formatTime(time.Now().Add(-s.cfg.RetentionAge))
	for _, q := range []string{
		`DELETE FROM network_logs WHERE checked_at < ?`,
		`DELETE FROM transitions WHERE at < ?`,
		`DELETE FROM port_logs WHERE scanned_at < ?`,
	} {
		if _, err := s.db.ExecContext(ctx, q, cutoff); err != nil {
			return fmt.Errorf("sqlite: prune: %w", err)
		}
	}
	return nil
}

func (s *Store) pruneLoop() {
	defer close(s.done)

	ticker := time.NewTicker(s.cfg.PruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			_ = s.Prune(context.Background())
		}
	}
}
