package workers

import (
	"context"
	"log/slog"
	"time"

	"fitgent/repositories"
)

// NotificationSweeper periodically removes notifications whose expiry instant
// has passed. The sweep is idempotent and safe to run alongside reads, so a
// crash-restart cycle under the supervisor costs nothing.
type NotificationSweeper struct {
	notifications repositories.INotificationRepository
	interval      time.Duration
	log           *slog.Logger
}

func NewNotificationSweeper(notifications repositories.INotificationRepository,
	interval time.Duration, log *slog.Logger) *NotificationSweeper {
	return &NotificationSweeper{notifications: notifications, interval: interval, log: log}
}

func (w *NotificationSweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Stopping notification sweeper")
			return nil
		case <-ticker.C:
			deleted, err := w.notifications.DeleteExpired(time.Now().UTC())
			if err != nil {
				w.log.Warn("Notification expiry sweep failed", "error", err)
				continue
			}
			if deleted > 0 {
				w.log.Info("Expired notifications removed", "count", deleted)
			}
		}
	}
}
