// Package domain defines the payment stream aggregate and the billing
// vocabulary shared by the ledger service, store and HTTP layer.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// StreamStatus is the lifecycle state of a payment stream.
type StreamStatus string

const (
	StreamStatusActive            StreamStatus = "active"
	StreamStatusPaused            StreamStatus = "paused"
	StreamStatusCompleted         StreamStatus = "completed"
	StreamStatusCancelled         StreamStatus = "cancelled"
	StreamStatusInsufficientFunds StreamStatus = "insufficient_funds"
)

// Terminal reports whether the status is one no operation moves out of.
// insufficient_funds is not terminal: AddFunds can recover it.
func (s StreamStatus) Terminal() bool {
	return s == StreamStatusCompleted || s == StreamStatusCancelled
}

// BillingInterval is the time unit the per-interval rate is normalized to.
type BillingInterval string

const (
	BillingIntervalPerSecond BillingInterval = "per_second"
	BillingIntervalPerMinute BillingInterval = "per_minute"
	BillingIntervalPerHour   BillingInterval = "per_hour"
)

// Seconds returns the interval length in seconds, or 0 for an unknown
// interval.
func (i BillingInterval) Seconds() float64 {
	switch i {
	case BillingIntervalPerSecond:
		return 1
	case BillingIntervalPerMinute:
		return 60
	case BillingIntervalPerHour:
		return 3600
	}
	return 0
}

// Valid reports whether the interval is a known billing unit.
func (i BillingInterval) Valid() bool { return i.Seconds() > 0 }

// Chain identifies the settlement network. Billing treats it as opaque;
// it only drives display formatting.
type Chain string

const (
	ChainSolana   Chain = "solana"
	ChainEthereum Chain = "ethereum"
	ChainBSC      Chain = "bsc"
)

// Symbol returns the display ticker of the chain's native token.
func (c Chain) Symbol() string {
	switch c {
	case ChainSolana:
		return "SOL"
	case ChainBSC:
		return "BNB"
	default:
		return "ETH"
	}
}

// StreamConfig is fixed at creation and never mutated afterwards.
type StreamConfig struct {
	RatePerInterval float64         `json:"rate_per_interval"`
	BillingInterval BillingInterval `json:"billing_interval"`
	Chain           Chain           `json:"chain"`

	// Limits. A nil pointer means the limit is not configured.
	MinBalance  *float64 `json:"min_balance,omitempty"`
	MaxDuration *float64 `json:"max_duration,omitempty"` // total active seconds

	ServiceName string `json:"service_name"`
	Description string `json:"description,omitempty"`
}

// StreamEventType tags an entry in a stream's audit trail.
type StreamEventType string

const (
	EventStarted           StreamEventType = "started"
	EventPaused            StreamEventType = "paused"
	EventResumed           StreamEventType = "resumed"
	EventCompleted         StreamEventType = "completed"
	EventCancelled         StreamEventType = "cancelled"
	EventBilled            StreamEventType = "billed"
	EventInsufficientFunds StreamEventType = "insufficient_funds"
)

// StreamEvent is one entry in a stream's append-only audit trail.
// Events are immutable once appended.
type StreamEvent struct {
	Type      StreamEventType `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Amount    *float64        `json:"amount,omitempty"`
	Balance   *float64        `json:"balance,omitempty"`
	Reason    string          `json:"reason,omitempty"`
}

// PaymentStream is the mutable aggregate for one metered, pay-as-you-go
// session between a payer wallet and a service.
type PaymentStream struct {
	ID            snowflake.ID `json:"id"`
	WalletAddress string       `json:"wallet_address"`
	Config        StreamConfig `json:"config"`

	Status      StreamStatus `json:"status"`
	CreatedAt   time.Time    `json:"created_at"`
	StartedAt   time.Time    `json:"started_at"`
	PausedAt    *time.Time   `json:"paused_at,omitempty"`
	CompletedAt *time.Time   `json:"completed_at,omitempty"`

	// Billing counters. Only a billing tick advances these, and always
	// as a group: elapsed time since LastBilledAt is converted to a
	// charge, then LastBilledAt moves to the tick instant.
	TotalDuration float64   `json:"total_duration"` // cumulative active seconds
	TotalCharged  float64   `json:"total_charged"`
	LastBilledAt  time.Time `json:"last_billed_at"`

	// Local view of remaining prepaid funds. Not verified against the
	// chain, and allowed to go negative between settlement and billing.
	EstimatedBalance float64 `json:"estimated_balance"`

	Events []StreamEvent `json:"events"`
}

// Clone returns a deep copy safe to hand to callers outside the store.
func (s *PaymentStream) Clone() *PaymentStream {
	if s == nil {
		return nil
	}
	out := *s
	out.PausedAt = copyTime(s.PausedAt)
	out.CompletedAt = copyTime(s.CompletedAt)
	out.Events = make([]StreamEvent, len(s.Events))
	for i, event := range s.Events {
		event.Amount = copyFloat(event.Amount)
		event.Balance = copyFloat(event.Balance)
		out.Events[i] = event
	}
	return &out
}

// StreamMetrics aggregates ledger-wide counters, computed on demand.
type StreamMetrics struct {
	ActiveStreams         int     `json:"active_streams"`
	TotalRevenue          float64 `json:"total_revenue"`
	AverageStreamDuration float64 `json:"average_stream_duration"`
	TotalStreamSessions   int     `json:"total_stream_sessions"`
}

// StreamCost converts active seconds into a charge at the configured
// rate. Billing is strictly proportional: partial intervals are charged
// pro rata, never rounded up to whole intervals.
func StreamCost(seconds, ratePerInterval float64, interval BillingInterval) float64 {
	intervalSeconds := interval.Seconds()
	if intervalSeconds <= 0 {
		return 0
	}
	return seconds / intervalSeconds * ratePerInterval
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	value := *t
	return &value
}

func copyFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	value := *f
	return &value
}
