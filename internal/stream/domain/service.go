package domain

import (
	"context"
	"errors"
)

// StreamService owns the authoritative state of all payment streams and
// performs every balance and duration computation. Implementations must
// read the clock once per operation and apply one operation's mutations
// atomically per stream.
type StreamService interface {
	Create(ctx context.Context, req CreateStreamRequest) (*PaymentStream, error)
	Get(ctx context.Context, id string) (*PaymentStream, error)
	ListByWallet(ctx context.Context, walletAddress string) ([]*PaymentStream, error)
	ListActive(ctx context.Context) ([]*PaymentStream, error)

	// UpdateBilling is the accrual tick: it converts elapsed active time
	// into a charge. It is the only operation that advances the billing
	// counters.
	UpdateBilling(ctx context.Context, id string) (*PaymentStream, error)

	Pause(ctx context.Context, id string) (*PaymentStream, error)
	Resume(ctx context.Context, id string) (*PaymentStream, error)
	Complete(ctx context.Context, id string) (*PaymentStream, error)
	Cancel(ctx context.Context, id string, reason string) (*PaymentStream, error)
	AddFunds(ctx context.Context, id string, amount float64) (*PaymentStream, error)

	Metrics(ctx context.Context) (StreamMetrics, error)
}

// Service is the package alias for StreamService.
type Service = StreamService

// CreateStreamRequest carries the caller-supplied creation inputs.
type CreateStreamRequest struct {
	WalletAddress  string
	Config         StreamConfig
	InitialBalance float64
}

var (
	ErrStreamNotFound  = errors.New("stream_not_found")
	ErrStreamNotActive = errors.New("stream_not_active")
	ErrStreamNotPaused = errors.New("stream_not_paused")
	ErrInvalidStream   = errors.New("invalid_stream")

	ErrInvalidWallet   = errors.New("invalid_wallet_address")
	ErrInvalidRate     = errors.New("invalid_rate_per_interval")
	ErrInvalidInterval = errors.New("invalid_billing_interval")
	ErrInvalidService  = errors.New("invalid_service_name")
	ErrInvalidBalance  = errors.New("invalid_initial_balance")
	ErrInvalidAmount   = errors.New("invalid_amount")
)
