// Package service implements the stream ledger on top of the stream
// repository.
package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/payless2025/payless/internal/clock"
	"github.com/payless2025/payless/internal/observability/metrics"
	streamdomain "github.com/payless2025/payless/internal/stream/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type ServiceParam struct {
	fx.In

	Log     *zap.Logger
	Clock   clock.Clock
	GenID   *snowflake.Node
	Repo    streamdomain.Repository
	Metrics *metrics.BillingMetrics `optional:"true"`
}

type Service struct {
	log   *zap.Logger
	clock clock.Clock

	genID   *snowflake.Node
	repo    streamdomain.Repository
	metrics *metrics.BillingMetrics
}

func NewService(p ServiceParam) streamdomain.Service {
	return &Service{
		log:   p.Log.Named("stream.service"),
		clock: p.Clock,

		genID:   p.GenID,
		repo:    p.Repo,
		metrics: p.Metrics,
	}
}

func (s *Service) Create(ctx context.Context, req streamdomain.CreateStreamRequest) (*streamdomain.PaymentStream, error) {
	req.WalletAddress = strings.TrimSpace(req.WalletAddress)
	req.Config.ServiceName = strings.TrimSpace(req.Config.ServiceName)
	if err := streamdomain.ValidateCreate(req); err != nil {
		return nil, err
	}
	if req.Config.Chain == "" {
		req.Config.Chain = streamdomain.ChainSolana
	}

	now := s.clock.Now()
	balance := req.InitialBalance
	stream := &streamdomain.PaymentStream{
		ID:            s.genID.Generate(),
		WalletAddress: req.WalletAddress,
		Config:        req.Config,
		Status:        streamdomain.StreamStatusActive,
		CreatedAt:     now,
		StartedAt:     now,
		LastBilledAt:  now,

		EstimatedBalance: balance,
		Events: []streamdomain.StreamEvent{{
			Type:      streamdomain.EventStarted,
			Timestamp: now,
			Balance:   &balance,
		}},
	}
	if err := s.repo.Put(ctx, stream); err != nil {
		return nil, err
	}

	s.log.Info("stream created",
		zap.String("stream_id", stream.ID.String()),
		zap.String("service_name", stream.Config.ServiceName),
		zap.String("billing_interval", string(stream.Config.BillingInterval)),
	)
	return stream, nil
}

func (s *Service) Get(ctx context.Context, id string) (*streamdomain.PaymentStream, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) ListByWallet(ctx context.Context, walletAddress string) ([]*streamdomain.PaymentStream, error) {
	all, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	streams := make([]*streamdomain.PaymentStream, 0, len(all))
	for _, stream := range all {
		if stream.WalletAddress == walletAddress {
			streams = append(streams, stream)
		}
	}
	sort.Slice(streams, func(i, j int) bool {
		return streams[i].CreatedAt.After(streams[j].CreatedAt)
	})
	return streams, nil
}

func (s *Service) ListActive(ctx context.Context) ([]*streamdomain.PaymentStream, error) {
	all, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	streams := make([]*streamdomain.PaymentStream, 0, len(all))
	for _, stream := range all {
		if stream.Status == streamdomain.StreamStatusActive {
			streams = append(streams, stream)
		}
	}
	return streams, nil
}

func (s *Service) UpdateBilling(ctx context.Context, id string) (*streamdomain.PaymentStream, error) {
	now := s.clock.Now()
	return s.repo.Mutate(ctx, id, func(stream *streamdomain.PaymentStream) error {
		if stream.Status != streamdomain.StreamStatusActive {
			return streamdomain.ErrStreamNotActive
		}
		s.applyBilling(stream, now)
		return nil
	})
}

func (s *Service) Pause(ctx context.Context, id string) (*streamdomain.PaymentStream, error) {
	now := s.clock.Now()
	stream, err := s.repo.Mutate(ctx, id, func(stream *streamdomain.PaymentStream) error {
		if stream.Status != streamdomain.StreamStatusActive {
			return streamdomain.ErrStreamNotActive
		}
		// Bill up to the pause instant: elapsed time is never free.
		s.applyBilling(stream, now)

		stream.Status = streamdomain.StreamStatusPaused
		pausedAt := now
		stream.PausedAt = &pausedAt
		stream.Events = append(stream.Events, streamdomain.StreamEvent{
			Type:      streamdomain.EventPaused,
			Timestamp: now,
			Balance:   floatPtr(stream.EstimatedBalance),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("stream paused", zap.String("stream_id", id))
	return stream, nil
}

func (s *Service) Resume(ctx context.Context, id string) (*streamdomain.PaymentStream, error) {
	now := s.clock.Now()
	stream, err := s.repo.Mutate(ctx, id, func(stream *streamdomain.PaymentStream) error {
		if stream.Status != streamdomain.StreamStatusPaused {
			return streamdomain.ErrStreamNotPaused
		}
		stream.Status = streamdomain.StreamStatusActive
		// The billing clock restarts here; the paused span is never billed.
		stream.LastBilledAt = now
		stream.Events = append(stream.Events, streamdomain.StreamEvent{
			Type:      streamdomain.EventResumed,
			Timestamp: now,
			Balance:   floatPtr(stream.EstimatedBalance),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("stream resumed", zap.String("stream_id", id))
	return stream, nil
}

func (s *Service) Complete(ctx context.Context, id string) (*streamdomain.PaymentStream, error) {
	now := s.clock.Now()
	stream, err := s.repo.Mutate(ctx, id, func(stream *streamdomain.PaymentStream) error {
		if stream.Status == streamdomain.StreamStatusActive {
			s.applyBilling(stream, now)
		}
		s.finalize(stream, streamdomain.StreamStatusCompleted, now, streamdomain.StreamEvent{
			Type:      streamdomain.EventCompleted,
			Timestamp: now,
			Balance:   floatPtr(stream.EstimatedBalance),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("stream completed", zap.String("stream_id", id))
	return stream, nil
}

func (s *Service) Cancel(ctx context.Context, id string, reason string) (*streamdomain.PaymentStream, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "User cancelled"
	}

	now := s.clock.Now()
	stream, err := s.repo.Mutate(ctx, id, func(stream *streamdomain.PaymentStream) error {
		if stream.Status == streamdomain.StreamStatusActive {
			s.applyBilling(stream, now)
		}
		s.finalize(stream, streamdomain.StreamStatusCancelled, now, streamdomain.StreamEvent{
			Type:      streamdomain.EventCancelled,
			Timestamp: now,
			Balance:   floatPtr(stream.EstimatedBalance),
			Reason:    reason,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("stream cancelled", zap.String("stream_id", id), zap.String("reason", reason))
	return stream, nil
}

func (s *Service) AddFunds(ctx context.Context, id string, amount float64) (*streamdomain.PaymentStream, error) {
	if amount <= 0 {
		return nil, streamdomain.ErrInvalidAmount
	}

	now := s.clock.Now()
	stream, err := s.repo.Mutate(ctx, id, func(stream *streamdomain.PaymentStream) error {
		stream.EstimatedBalance += amount

		// Only a funds-starved stream reactivates; completed and
		// cancelled streams keep the topped-up balance but stay put.
		if stream.Status != streamdomain.StreamStatusInsufficientFunds {
			return nil
		}
		minBalance := 0.0
		if stream.Config.MinBalance != nil {
			minBalance = *stream.Config.MinBalance
		}
		if stream.EstimatedBalance >= minBalance {
			stream.Status = streamdomain.StreamStatusActive
			// Restart the billing clock at reactivation, not at the
			// original shortfall.
			stream.LastBilledAt = now
			stream.Events = append(stream.Events, streamdomain.StreamEvent{
				Type:      streamdomain.EventResumed,
				Timestamp: now,
				Amount:    floatPtr(amount),
				Balance:   floatPtr(stream.EstimatedBalance),
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("funds added", zap.String("stream_id", id), zap.Float64("amount", amount))
	return stream, nil
}

func (s *Service) Metrics(ctx context.Context) (streamdomain.StreamMetrics, error) {
	all, err := s.repo.List(ctx)
	if err != nil {
		return streamdomain.StreamMetrics{}, err
	}

	var out streamdomain.StreamMetrics
	var totalDuration float64
	for _, stream := range all {
		if stream.Status == streamdomain.StreamStatusActive {
			out.ActiveStreams++
		}
		out.TotalRevenue += stream.TotalCharged
		totalDuration += stream.TotalDuration
	}
	out.TotalStreamSessions = len(all)
	if len(all) > 0 {
		out.AverageStreamDuration = totalDuration / float64(len(all))
	}
	return out, nil
}

// applyBilling advances the billing counters to now. The caller must
// hold the stream's lock and have verified status == active.
//
// Check order matters: the charge lands first, then the balance floor,
// then the duration ceiling. When both limits are crossed in the same
// tick the duration check runs last and wins.
func (s *Service) applyBilling(stream *streamdomain.PaymentStream, now time.Time) {
	elapsed := now.Sub(stream.LastBilledAt).Seconds()
	charge := streamdomain.StreamCost(elapsed, stream.Config.RatePerInterval, stream.Config.BillingInterval)

	stream.TotalDuration += elapsed
	stream.TotalCharged += charge
	stream.EstimatedBalance -= charge
	stream.LastBilledAt = now
	stream.Events = append(stream.Events, streamdomain.StreamEvent{
		Type:      streamdomain.EventBilled,
		Timestamp: now,
		Amount:    floatPtr(charge),
		Balance:   floatPtr(stream.EstimatedBalance),
	})
	if s.metrics != nil {
		s.metrics.ObserveCharge(string(stream.Config.BillingInterval), charge)
	}

	if min := stream.Config.MinBalance; min != nil && stream.EstimatedBalance < *min {
		stream.Status = streamdomain.StreamStatusInsufficientFunds
		stream.Events = append(stream.Events, streamdomain.StreamEvent{
			Type:      streamdomain.EventInsufficientFunds,
			Timestamp: now,
			Balance:   floatPtr(stream.EstimatedBalance),
			Reason:    fmt.Sprintf("balance below minimum (%g)", *min),
		})
		if s.metrics != nil {
			s.metrics.IncStopped("insufficient_funds")
		}
	}

	if max := stream.Config.MaxDuration; max != nil && stream.TotalDuration >= *max {
		stream.Status = streamdomain.StreamStatusCompleted
		completedAt := now
		stream.CompletedAt = &completedAt
		stream.Events = append(stream.Events, streamdomain.StreamEvent{
			Type:      streamdomain.EventCompleted,
			Timestamp: now,
			Reason:    "maximum duration reached",
		})
		if s.metrics != nil {
			s.metrics.IncStopped("max_duration")
		}
	}
}

// finalize moves a stream into a terminal status. Streams that are
// already terminal are re-stamped rather than rejected; this is the
// single place to tighten if stricter lifecycle rules are ever wanted.
func (s *Service) finalize(stream *streamdomain.PaymentStream, status streamdomain.StreamStatus, now time.Time, event streamdomain.StreamEvent) {
	stream.Status = status
	completedAt := now
	stream.CompletedAt = &completedAt
	stream.Events = append(stream.Events, event)
}

func floatPtr(v float64) *float64 { return &v }
