package sink

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/hamed0406/reachmon/internal/domain"
	"github.com/hamed0406/reachmon/internal/notify"
	"github.com/hamed0406/reachmon/internal/repo"
)

type AlertConfig struct {
	AlertOnRecovery bool
	Cooldown        time.Duration
}

// Alert turns status transitions into notifications. Down alerts respect
// the cooldown; recovery alerts bypass it. The last alerted status per
// target lives in the AlertStore so restarts do not re-alert.
type Alert struct {
	alerts   repo.AlertStore
	notifier notify.Notifier
	cfg      AlertConfig
	now      func() time.Time
}

func NewAlert(alerts repo.AlertStore, notifier notify.Notifier, cfg AlertConfig) *Alert {
	return &Alert{alerts: alerts, notifier: notifier, cfg: cfg, now: time.Now}
}

func (a *Alert) RecordResult(context.Context, domain.ProbeResult) error { return nil }

func (a *Alert) RecordTransition(ctx context.Context, e domain.TransitionEvent) error {
	if e.To == domain.StatusUnknown {
		return nil
	}
	rec, err := a.alerts.GetAlert(ctx, e.TargetID)
	if err != nil {
		return fmt.Errorf("get alert state: %w", err)
	}
	now := a.now()

	// Has the status changed compared to what we last recorded?
	changed := rec == nil || rec.LastStatus != e.To
	if !changed {
		return nil
	}

	cooled := true
	if rec != nil && rec.LastSentAt != nil {
		cooled = now.Sub(*rec.LastSentAt) >= a.cfg.Cooldown
	}

	down := e.To == domain.StatusDown && cooled
	// A first Up after startup is not a recovery.
	recovery := e.To == domain.StatusUp && e.From == domain.StatusDown && a.cfg.AlertOnRecovery

	if !down && !recovery {
		// Record the new status; the cooldown keeps counting from the last send.
		var lastSent time.Time
		if rec != nil && rec.LastSentAt != nil {
			lastSent = *rec.LastSentAt
		}
		return a.alerts.SetAlert(ctx, e.TargetID, e.To, lastSent)
	}

	title := "🔴 Target DOWN"
	if e.To == domain.StatusUp {
		title = "🟢 Target RECOVERED"
	}
	sendErr := a.notifier.Send(ctx, title, alertText(e))
	return multierr.Append(sendErr, a.alerts.SetAlert(ctx, e.TargetID, e.To, now))
}

func alertText(e domain.TransitionEvent) string {
	addr := e.Host
	if e.Port > 0 {
		addr = fmt.Sprintf("%s:%d", e.Host, e.Port)
	}
	return fmt.Sprintf("Target: %s (%s)\nStatus: %s -> %s\nAt: %s",
		e.TargetID, addr, e.From, e.To, e.At.Format(time.RFC3339))
}
