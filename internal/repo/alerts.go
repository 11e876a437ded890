package repo

import (
	"context"
	"time"

	"github.com/hamed0406/reachmon/internal/domain"
)

// AlertRecord holds the last status we alerted on and the last time we sent
// a notification for a target. LastSentAt drives the down-alert cooldown.
type AlertRecord struct {
	TargetID   domain.TargetID
	LastStatus domain.Status
	LastSentAt *time.Time
}

// AlertStore is implemented by a persistence layer to store alert state.
type AlertStore interface {
	// GetAlert returns nil, nil if there's no record yet.
	GetAlert(ctx context.Context, id domain.TargetID) (*AlertRecord, error)
	// SetAlert upserts the record. If sentAt.IsZero() LastSentAt is cleared.
	SetAlert(ctx context.Context, id domain.TargetID, status domain.Status, sentAt time.Time) error
}
