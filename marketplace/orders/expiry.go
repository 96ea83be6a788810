package orders

import (
	"context"
	"log/slog"
	"time"

	"github.com/bidworks/marketplace/marketplace/database/models"
	"github.com/bidworks/marketplace/marketplace/logger"
	"github.com/bidworks/marketplace/marketplace/notifications"
)

const expirySweepTimeout = 30 * time.Second

// ExpiryWorker sweeps pending_payment orders past their payment
// deadline and expires them server-side. Racing replicas are safe: the
// conditional status flip decides a single owner per order, and only
// the owner runs the side-effect reversal and notifications.
type ExpiryWorker struct {
	service     *Service
	interval    time.Duration
	adminUserID string
	now         func() time.Time
}

func NewExpiryWorker(service *Service, interval time.Duration, adminUserID string) *ExpiryWorker {
	if service == nil {
		panic("order service cannot be nil")
	}
	return &ExpiryWorker{
		service:     service,
		interval:    interval,
		adminUserID: adminUserID,
		now:         time.Now,
	}
}

// Run drives sweeps on the configured interval until ctx is cancelled.
func (w *ExpiryWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweepCtx, cancel := context.WithTimeout(ctx, expirySweepTimeout)
			start := time.Now()
			processed, err := w.Sweep(sweepCtx)
			logger.LogSweep("order_expiry", time.Since(start), processed, err)
			cancel()
		}
	}
}

// Sweep expires every overdue order once and returns how many this
// pass claimed.
func (w *ExpiryWorker) Sweep(ctx context.Context) (int, error) {
	overdue, err := w.service.orders.ListExpired(ctx, w.now())
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, o := range overdue {
		claimed, err := w.expireOne(ctx, o)
		if err != nil {
			slog.Error("Failed to expire order",
				slog.String("order_id", o.ID),
				slog.Any("error", err))
			continue
		}
		if claimed {
			expired++
		}
	}
	return expired, nil
}

func (w *ExpiryWorker) expireOne(ctx context.Context, o *models.Order) (bool, error) {
	claimed, err := w.service.orders.MarkExpired(ctx, o.ID)
	if err != nil {
		return false, err
	}
	if !claimed {
		// Paid, cancelled or expired by another replica in the meantime.
		return false, nil
	}

	expired := *o
	expired.Status = models.OrderStatusPaymentExpired

	w.service.undoSideEffects(ctx, &expired)

	w.service.recordTransaction(ctx, &expired, o.Status, models.ActionStatusChanged)

	w.service.actions.LogAction(ctx, "order_expired", "order", o.ID, map[string]any{
		"order_number": o.OrderNumber,
		"expires_at":   o.ExpiresAt,
	})

	slog.Info("Order payment window expired",
		slog.String("order_id", o.ID),
		slog.String("order_number", o.OrderNumber))

	w.service.notifier.Notify(ctx, o.UserID, notifications.EventOrderExpired, map[string]any{
		"order_id":     o.ID,
		"order_number": o.OrderNumber,
	})
	if w.adminUserID != "" {
		w.service.notifier.Notify(ctx, w.adminUserID, notifications.EventOrderExpired, map[string]any{
			"order_id":     o.ID,
			"order_number": o.OrderNumber,
			"user_id":      o.UserID,
		})
	}

	return true, nil
}
