package worker

import (
	"context"
	"log/slog"
	"time"

	"bike-storefront/internal/domain"
	"bike-storefront/internal/logkey"
	"bike-storefront/internal/metrics"
	"bike-storefront/internal/service"
)

// StuckOrderFinder lists Pending orders whose payment outcome is still open.
type StuckOrderFinder interface {
	FindStuckOrders(ctx context.Context, olderThan time.Duration, limit int) ([]domain.Order, error)
}

// Verifier applies the gateway verdict for one reference.
type Verifier interface {
	VerifyPayment(ctx context.Context, reference string) (*service.Verification, error)
}

type Options struct {
	Interval   time.Duration
	StuckAfter time.Duration
	BatchSize  int
}

// Summary counts what one sweep did.
type Summary struct {
	Found     int
	Applied   int
	Unsettled int
	Failed    int
}

type ReconciliationWorker struct {
	orders   StuckOrderFinder
	verifier Verifier
	metrics  *metrics.ReconcileMetrics
	opts     Options
}

func NewReconciliationWorker(orders StuckOrderFinder, verifier Verifier, m *metrics.ReconcileMetrics, opts Options) *ReconciliationWorker {
	if opts.Interval <= 0 {
		opts.Interval = time.Minute
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 50
	}
	return &ReconciliationWorker{orders: orders, verifier: verifier, metrics: m, opts: opts}
}

func (rw *ReconciliationWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(rw.opts.Interval)
	defer ticker.Stop()

	slog.Info("reconciliation worker started",
		slog.Duration("interval", rw.opts.Interval),
		slog.Duration("stuck_after", rw.opts.StuckAfter))

	for {
		select {
		case <-ctx.Done():
			slog.Info("reconciliation worker stopped")
			return
		case <-ticker.C:
			if _, err := rw.Sweep(ctx); err != nil {
				slog.Error("reconciliation failed", slog.String(logkey.ERROR, err.Error()))
			}
		}
	}
}

// Sweep verifies one batch of stuck orders. A failure on one order does not
// stop the rest of the batch.
func (rw *ReconciliationWorker) Sweep(ctx context.Context) (Summary, error) {
	var sum Summary
	if rw.metrics != nil {
		rw.metrics.Runs.Inc()
	}

	stuck, err := rw.orders.FindStuckOrders(ctx, rw.opts.StuckAfter, rw.opts.BatchSize)
	if err != nil {
		return sum, err
	}
	sum.Found = len(stuck)
	if len(stuck) == 0 {
		return sum, nil
	}
	slog.Info("found stuck orders", slog.Int("count", len(stuck)))

	for _, order := range stuck {
		if ctx.Err() != nil {
			return sum, ctx.Err()
		}
		if order.Transaction == nil || order.Transaction.GatewayReference == "" {
			continue
		}
		ref := order.Transaction.GatewayReference

		v, err := rw.verifier.VerifyPayment(ctx, ref)
		outcome := "applied"
		switch {
		case err != nil:
			outcome = "failed"
			sum.Failed++
			slog.Warn("could not reconcile order",
				slog.String(logkey.OrderID, order.ID.String()),
				slog.String(logkey.Reference, ref),
				slog.String(logkey.ERROR, err.Error()))
		case v.Verdict == nil:
			outcome = "unsettled"
			sum.Unsettled++
		case v.Applied:
			sum.Applied++
			slog.Info("order reconciled",
				slog.String(logkey.OrderID, order.ID.String()),
				slog.String(logkey.Status, string(v.Order.Status)))
		default:
			outcome = "skipped"
		}
		if rw.metrics != nil {
			rw.metrics.Outcomes.WithLabelValues(outcome).Inc()
		}
	}
	return sum, nil
}
