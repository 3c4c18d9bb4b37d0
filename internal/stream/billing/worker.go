// Package billing runs the periodic driver that ticks every active
// stream. The ledger itself has no internal timer; this worker is the
// external caller that keeps accrual close to real time even when no
// client is polling.
package billing

import (
	"context"
	"errors"
	"time"

	"github.com/payless2025/payless/internal/observability/metrics"
	"github.com/payless2025/payless/internal/observability/tracing"
	streamdomain "github.com/payless2025/payless/internal/stream/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log     *zap.Logger
	Streams streamdomain.Service
	Metrics *metrics.BillingMetrics `optional:"true"`
	Config  Config                  `optional:"true"`
}

type Worker struct {
	log     *zap.Logger
	streams streamdomain.Service
	metrics *metrics.BillingMetrics
	cfg     Config
}

func NewWorker(p Params) *Worker {
	return &Worker{
		log:     p.Log.Named("stream.billing"),
		streams: p.Streams,
		metrics: p.Metrics,
		cfg:     p.Config.withDefaults(),
	}
}

func (w *Worker) RunForever(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if err := w.RunOnce(ctx); err != nil {
			w.log.Warn("billing sweep failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce bills every active stream up to the current instant.
func (w *Worker) RunOnce(ctx context.Context) error {
	ctx, span := otel.Tracer("payless/billing").Start(ctx, "billing.sweep")
	defer span.End()

	active, err := w.streams.ListActive(ctx)
	if err != nil {
		return err
	}
	span.SetAttributes(tracing.SafeAttributes(
		attribute.Int("active_streams", len(active)),
	)...)

	for _, stream := range active {
		if _, err := w.streams.UpdateBilling(ctx, stream.ID.String()); err != nil {
			// A stream can leave the active set between the listing and
			// its tick; that is not a sweep failure.
			if errors.Is(err, streamdomain.ErrStreamNotActive) || errors.Is(err, streamdomain.ErrStreamNotFound) {
				continue
			}
			return err
		}
	}

	if w.metrics != nil {
		w.metrics.IncSweep()
		if summary, err := w.streams.Metrics(ctx); err == nil {
			w.metrics.SetActiveStreams(summary.ActiveStreams)
		}
	}
	return nil
}
