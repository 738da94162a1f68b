package reconciler

import (
	"context"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/brightmoor/memberpay/internal/app/service/activation"
	"github.com/brightmoor/memberpay/internal/models"
	"github.com/brightmoor/memberpay/internal/platform/razorpay"
	"github.com/brightmoor/memberpay/pkg/config"
	"github.com/brightmoor/memberpay/pkg/metrics"
	"github.com/brightmoor/memberpay/pkg/types"
)

// Ledger is the slice of the attempt store the sweep reads and marks.
type Ledger interface {
	ListStale(ctx context.Context, cutoff time.Time, limit int) ([]*models.PaymentAttempt, error)
	MarkStatus(ctx context.Context, orderID string, status types.PaymentStatus, paymentID *string) error
}

// Gateway polls the authoritative per-order payment list.
type Gateway interface {
	Configured() bool
	ListPayments(ctx context.Context, orderID string) ([]*razorpay.Payment, error)
}

// Scheduler periodically re-checks attempts stuck without a terminal status
// against the gateway, covering webhooks that were lost or crashed
// mid-processing. Overlapping sweeps across instances are safe because the
// activation it drives is idempotent; no cross-instance coordination exists
// or is needed. All "already processed" state lives in the attempt row.
type Scheduler struct {
	ledger    Ledger
	gateway   Gateway
	activator activation.Activator
	prom      *metrics.Prometheus
	log       *zap.SugaredLogger

	interval time.Duration
	grace    time.Duration
	batch    int
}

func NewScheduler(cfg *config.Config, ledger Ledger, gateway Gateway, activator activation.Activator, prom *metrics.Prometheus, log *zap.SugaredLogger) *Scheduler {
	interval := cfg.Reconciler.Interval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	grace := cfg.Reconciler.Grace
	if grace <= 0 {
		grace = 5 * time.Minute
	}
	batch := cfg.Reconciler.BatchSize
	if batch <= 0 {
		batch = 50
	}
	return &Scheduler{
		ledger:    ledger,
		gateway:   gateway,
		activator: activator,
		prom:      prom,
		log:       log,
		interval:  interval,
		grace:     grace,
		batch:     batch,
	}
}

func (s *Scheduler) run(ctx context.Context) {
	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep processes one bounded batch of stale attempts. A failure on one item
// is logged and never aborts the rest; the item stays non-terminal and is
// picked up again next sweep.
func (s *Scheduler) Sweep(ctx context.Context) {
	start := time.Now()
	cutoff := start.Add(-s.grace)

	stale, err := s.ledger.ListStale(ctx, cutoff, s.batch)
	if err != nil {
		s.log.Errorw("reconcile sweep: list stale failed", "err", err)
		return
	}

	var recovered int
	for _, a := range stale {
		if err := s.reconcileOne(ctx, a); err != nil {
			s.log.Warnw("reconcile attempt failed, will retry next sweep",
				"order_id", a.OrderID, "err", err)
			s.prom.CountPaymentEvent("reconcile", "error")
			continue
		}
		recovered++
	}

	s.prom.ObserveSweep(time.Since(start))
	if len(stale) > 0 {
		s.log.Infow("reconcile sweep done",
			"scanned", len(stale), "processed", recovered, "elapsed_ms", time.Since(start).Milliseconds())
	}
}

func (s *Scheduler) reconcileOne(ctx context.Context, a *models.PaymentAttempt) error {
	payments, err := s.gateway.ListPayments(ctx, a.OrderID)
	if err != nil {
		return err
	}

	var captured *razorpay.Payment
	var failures int
	for _, p := range payments {
		if p.Captured() {
			captured = p
			break
		}
		if p.Status == "failed" {
			failures++
		}
	}

	if captured == nil {
		// a gateway ledger of nothing but failures ends the attempt; a
		// capture arriving later still wins via the status ranking
		if failures > 0 && failures == len(payments) {
			if err := s.ledger.MarkStatus(ctx, a.OrderID, types.PaymentStatusFailed, nil); err != nil {
				return err
			}
			s.prom.CountPaymentEvent("reconcile", "failed")
		}
		return nil
	}

	email := captured.Email
	if email == "" {
		email = a.FallbackEmail()
	}
	_, err = s.activator.Activate(ctx, &activation.Claim{
		OrderID:        a.OrderID,
		PaymentID:      captured.ID,
		Email:          email,
		MembershipType: a.MembershipType,
		Amount:         captured.Amount,
		Currency:       captured.Currency,
	})
	if err != nil {
		return err
	}
	s.prom.CountPaymentEvent("reconcile", "recovered")
	s.log.Infow("reconciled captured payment",
		"order_id", a.OrderID, "payment_id", captured.ID)
	return nil
}

// Run wires the sweep loop into the app lifecycle. Without gateway
// credentials there is nothing to poll, so the scheduler stays off.
func Run(lc fx.Lifecycle, s *Scheduler) {
	if !s.gateway.Configured() {
		s.log.Warnw("reconciler disabled: gateway not configured")
		return
	}
	runCtx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			s.log.Infow("starting reconciler",
				"interval", s.interval, "grace", s.grace, "batch", s.batch)
			go s.run(runCtx)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			cancel()
			return nil
		},
	})
}
