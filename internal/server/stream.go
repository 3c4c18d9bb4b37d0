package server

import (
	"errors"
	"math"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/payless2025/payless/internal/observability/logger"
	"github.com/payless2025/payless/internal/observability/obscontext"
	streamdomain "github.com/payless2025/payless/internal/stream/domain"
	"go.uber.org/zap"
)

type streamConfigRequest struct {
	RatePerInterval float64  `json:"rate_per_interval"`
	BillingInterval string   `json:"billing_interval"`
	Chain           string   `json:"chain"`
	MinBalance      *float64 `json:"min_balance"`
	MaxDuration     *float64 `json:"max_duration"`
	ServiceName     string   `json:"service_name"`
	Description     string   `json:"description"`
}

type createStreamRequest struct {
	WalletAddress  string              `json:"wallet_address"`
	Config         streamConfigRequest `json:"config"`
	InitialBalance float64             `json:"initial_balance"`
}

// CreateStream handles POST /api/streams.
func (s *Server) CreateStream(c *gin.Context) {
	var req createStreamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	wallet := strings.TrimSpace(req.WalletAddress)
	if wallet == "" {
		AbortWithError(c, newValidationError("wallet_address", "required", "wallet address is required"))
		return
	}
	if !s.createLimiter.Allow(wallet) {
		AbortWithError(c, ErrTooManyRequests)
		return
	}

	c.Request = c.Request.WithContext(obscontext.WithWallet(c.Request.Context(), wallet))
	ctx := c.Request.Context()

	if s.log.Core().Enabled(zap.DebugLevel) {
		s.log.Debug("stream create requested", zap.Any("request", logger.MaskJSON(map[string]any{
			"wallet_address":   wallet,
			"service_name":     req.Config.ServiceName,
			"billing_interval": req.Config.BillingInterval,
			"chain":            req.Config.Chain,
		})))
	}

	idempotencyKey := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
	if idempotencyKey != "" {
		if id, ok := s.idempotency.Get(idempotencyKey); ok {
			if existing, err := s.streams.Get(ctx, id); err == nil {
				c.JSON(http.StatusOK, gin.H{"stream": existing})
				return
			}
		}
	}

	stream, err := s.streams.Create(ctx, streamdomain.CreateStreamRequest{
		WalletAddress: wallet,
		Config: streamdomain.StreamConfig{
			RatePerInterval: req.Config.RatePerInterval,
			BillingInterval: streamdomain.BillingInterval(req.Config.BillingInterval),
			Chain:           streamdomain.Chain(req.Config.Chain),
			MinBalance:      req.Config.MinBalance,
			MaxDuration:     req.Config.MaxDuration,
			ServiceName:     req.Config.ServiceName,
			Description:     req.Config.Description,
		},
		InitialBalance: req.InitialBalance,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if idempotencyKey != "" {
		s.idempotency.Set(idempotencyKey, stream.ID.String(), idempotencyTTL)
	}

	c.JSON(http.StatusCreated, gin.H{"stream": stream})
}

// GetStream handles GET /api/streams/:id. A billing tick runs before
// the read so the returned counters are current.
func (s *Server) GetStream(c *gin.Context) {
	id := c.Param("id")
	ctx := c.Request.Context()

	if _, err := s.streams.UpdateBilling(ctx, id); err != nil && !errors.Is(err, streamdomain.ErrStreamNotActive) {
		AbortWithError(c, err)
		return
	}

	stream, err := s.streams.Get(ctx, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"stream": stream})
}

// ListStreams handles GET /api/streams. With ?metrics=true it returns
// the ledger-wide aggregates; otherwise ?wallet= selects a wallet's
// streams, newest first.
func (s *Server) ListStreams(c *gin.Context) {
	ctx := c.Request.Context()

	if c.Query("metrics") == "true" {
		summary, err := s.streams.Metrics(ctx)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"metrics": summary})
		return
	}

	wallet := strings.TrimSpace(c.Query("wallet"))
	if wallet == "" {
		AbortWithError(c, newValidationError("wallet", "required", "wallet address is required"))
		return
	}

	streams, err := s.streams.ListByWallet(ctx, wallet)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"streams": streams,
		"count":   len(streams),
	})
}

type activeStreamResponse struct {
	*streamdomain.PaymentStream
	CurrentAmount     float64 `json:"current_amount"`
	Duration          int     `json:"duration"`
	FormattedDuration string  `json:"formatted_duration"`
	FormattedRate     string  `json:"formatted_rate"`
}

// ListActiveStreams handles GET /api/streams/active: every active
// stream is billed up to now and annotated with its running totals.
func (s *Server) ListActiveStreams(c *gin.Context) {
	ctx := c.Request.Context()

	active, err := s.streams.ListActive(ctx)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var totalVolume float64
	annotated := make([]activeStreamResponse, 0, len(active))
	for _, stream := range active {
		updated, err := s.streams.UpdateBilling(ctx, stream.ID.String())
		if err != nil {
			// The tick itself can retire a stream; fall back to the
			// listed snapshot so the response stays complete.
			updated = stream
		}
		annotated = append(annotated, activeStreamResponse{
			PaymentStream:     updated,
			CurrentAmount:     updated.TotalCharged,
			Duration:          int(math.Floor(updated.TotalDuration)),
			FormattedDuration: streamdomain.FormatDuration(updated.TotalDuration),
			FormattedRate: streamdomain.FormatRate(
				updated.Config.RatePerInterval,
				updated.Config.BillingInterval,
				updated.Config.Chain,
			),
		})
		totalVolume += updated.TotalCharged
	}

	c.JSON(http.StatusOK, gin.H{
		"count":        len(annotated),
		"total_volume": totalVolume,
		"streams":      annotated,
	})
}

type updateStreamRequest struct {
	Action string  `json:"action"`
	Amount float64 `json:"amount"`
	Reason string  `json:"reason"`
}

// UpdateStream handles PATCH /api/streams/:id with one action of
// pause, resume, complete, cancel or add_funds.
func (s *Server) UpdateStream(c *gin.Context) {
	var req updateStreamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	id := c.Param("id")
	ctx := c.Request.Context()

	var (
		stream *streamdomain.PaymentStream
		err    error
	)
	switch req.Action {
	case "pause":
		stream, err = s.streams.Pause(ctx, id)
	case "resume":
		stream, err = s.streams.Resume(ctx, id)
	case "complete":
		stream, err = s.streams.Complete(ctx, id)
	case "cancel":
		stream, err = s.streams.Cancel(ctx, id, req.Reason)
	case "add_funds":
		if req.Amount <= 0 {
			AbortWithError(c, newValidationError("amount", "invalid_amount", "a positive amount is required for add_funds"))
			return
		}
		stream, err = s.streams.AddFunds(ctx, id, req.Amount)
	default:
		AbortWithError(c, newValidationError("action", "invalid_action", "action must be one of pause, resume, complete, cancel, add_funds"))
		return
	}
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.log.Debug("stream updated",
		zap.String("stream_id", id),
		zap.String("action", req.Action),
	)
	c.JSON(http.StatusOK, gin.H{"stream": stream})
}

// DeleteStream handles DELETE /api/streams/:id, which cancels the
// stream rather than removing it from the ledger.
func (s *Server) DeleteStream(c *gin.Context) {
	stream, err := s.streams.Cancel(c.Request.Context(), c.Param("id"), "Deleted by user")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"stream": stream})
}
