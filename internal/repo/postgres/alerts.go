package postgres

import (
	"context"
	"time"

	"github.com/hamed0406/reachmon/internal/domain"
	"github.com/hamed0406/reachmon/internal/repo"
)

func (s *Store) GetAlert(ctx context.Context, id domain.TargetID) (*repo.AlertRecord, error) {
	const q = `SELECT last_status, last_sent_at FROM alerts WHERE target_id=$1`
	var (
		r      repo.AlertRecord
		status string
	)
	r.TargetID = id
	var lastSent *time.Time
	err := s.pool.QueryRow(ctx, q, string(id)).Scan(&status, &lastSent)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, err
	}
	r.LastStatus = domain.Status(status)
	r.LastSentAt = lastSent
	return &r, nil
}

func (s *Store) SetAlert(ctx context.Context, id domain.TargetID, status domain.Status, sentAt time.Time) error {
	const q = `
		INSERT INTO alerts (target_id, last_status, last_sent_at)
		VALUES ($1,$2,$3)
		ON CONFLICT (target_id)
		DO UPDATE SET last_status=EXCLUDED.last_status, last_sent_at=EXCLUDED.last_sent_at
	`
	var ts *time.Time
	if !sentAt.IsZero() {
		ts = &sentAt
	}
	_, err := s.pool.Exec(ctx, q, string(id), string(status), ts)
	return err
}
