package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/payless2025/payless/internal/cache"
	"github.com/payless2025/payless/internal/config"
	streamdomain "github.com/payless2025/payless/internal/stream/domain"
	"github.com/payless2025/payless/internal/stream/service"
	"github.com/payless2025/payless/internal/stream/store"
	"go.uber.org/zap"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type testHarness struct {
	engine  *gin.Engine
	streams streamdomain.Service
	clock   *fakeClock
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("new snowflake node: %v", err)
	}
	clk := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	svc := service.NewService(service.ServiceParam{
		Log:   zap.NewNop(),
		Clock: clk,
		GenID: node,
		Repo:  store.NewMemory(),
	})

	cfg := config.Config{}
	cfg.RateLimit.CreateLimit = 5
	cfg.RateLimit.CreateWindow = time.Minute

	srv := &Server{
		cfg:           cfg,
		log:           zap.NewNop(),
		streams:       svc,
		createLimiter: newRateLimiter(cfg.RateLimit.CreateLimit, cfg.RateLimit.CreateWindow),
		idempotency:   cache.NewTTLCache[string, string](),
	}

	engine := gin.New()
	srv.RegisterAPIRoutes(engine)
	return &testHarness{engine: engine, streams: svc, clock: clk}
}

func (h *testHarness) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.engine.ServeHTTP(rec, req)
	return rec
}

func decodeStream(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload struct {
		Stream map[string]any `json:"stream"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v (body %s)", err, rec.Body.String())
	}
	if payload.Stream == nil {
		t.Fatalf("response has no stream: %s", rec.Body.String())
	}
	return payload.Stream
}

func createBody(wallet string) map[string]any {
	return map[string]any{
		"wallet_address": wallet,
		"config": map[string]any{
			"rate_per_interval": 0.01,
			"billing_interval":  "per_second",
			"service_name":      "ai-chat",
		},
		"initial_balance": 1.0,
	}
}

func (h *testHarness) mustCreate(t *testing.T, wallet string) string {
	t.Helper()
	rec := h.do(t, http.MethodPost, "/api/streams", createBody(wallet), nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create returned %d: %s", rec.Code, rec.Body.String())
	}
	stream := decodeStream(t, rec)
	id, _ := stream["id"].(string)
	if id == "" {
		t.Fatalf("created stream has no id: %v", stream)
	}
	return id
}

func TestCreateStream(t *testing.T) {
	h := newTestHarness(t)

	rec := h.do(t, http.MethodPost, "/api/streams", createBody("wallet-1"), nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	stream := decodeStream(t, rec)
	if stream["status"] != "active" {
		t.Fatalf("expected active stream, got %v", stream["status"])
	}
	if stream["wallet_address"] != "wallet-1" {
		t.Fatalf("expected wallet echoed back, got %v", stream["wallet_address"])
	}
}

func TestCreateStreamValidation(t *testing.T) {
	h := newTestHarness(t)

	body := createBody("")
	rec := h.do(t, http.MethodPost, "/api/streams", body, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing wallet, got %d", rec.Code)
	}

	body = createBody("wallet-1")
	body["config"].(map[string]any)["rate_per_interval"] = 0
	rec = h.do(t, http.MethodPost, "/api/streams", body, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for zero rate, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/streams", bytes.NewBufferString("{not json"))
	rec2 := httptest.NewRecorder()
	h.engine.ServeHTTP(rec2, req)
	if rec2.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed body, got %d", rec2.Code)
	}
}

func TestCreateStreamIdempotency(t *testing.T) {
	h := newTestHarness(t)
	headers := map[string]string{"Idempotency-Key": "req-42"}

	first := h.do(t, http.MethodPost, "/api/streams", createBody("wallet-1"), headers)
	if first.Code != http.StatusCreated {
		t.Fatalf("expected 201 on first create, got %d", first.Code)
	}
	firstID := decodeStream(t, first)["id"]

	second := h.do(t, http.MethodPost, "/api/streams", createBody("wallet-1"), headers)
	if second.Code != http.StatusOK {
		t.Fatalf("expected 200 on replay, got %d", second.Code)
	}
	if got := decodeStream(t, second)["id"]; got != firstID {
		t.Fatalf("replay returned a different stream: %v != %v", got, firstID)
	}

	// A different key creates a fresh stream.
	third := h.do(t, http.MethodPost, "/api/streams", createBody("wallet-1"),
		map[string]string{"Idempotency-Key": "req-43"})
	if third.Code != http.StatusCreated {
		t.Fatalf("expected 201 for a new key, got %d", third.Code)
	}
	if got := decodeStream(t, third)["id"]; got == firstID {
		t.Fatal("new key replayed the old stream")
	}
}

func TestCreateStreamRateLimit(t *testing.T) {
	h := newTestHarness(t)

	for i := 0; i < 5; i++ {
		if rec := h.do(t, http.MethodPost, "/api/streams", createBody("wallet-1"), nil); rec.Code != http.StatusCreated {
			t.Fatalf("create %d returned %d", i, rec.Code)
		}
	}
	rec := h.do(t, http.MethodPost, "/api/streams", createBody("wallet-1"), nil)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 past the limit, got %d", rec.Code)
	}

	// Other wallets have their own window.
	if rec := h.do(t, http.MethodPost, "/api/streams", createBody("wallet-2"), nil); rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 for another wallet, got %d", rec.Code)
	}
}

func TestGetStreamBillsBeforeRead(t *testing.T) {
	h := newTestHarness(t)
	id := h.mustCreate(t, "wallet-1")

	h.clock.Advance(5 * time.Second)
	rec := h.do(t, http.MethodGet, "/api/streams/"+id, nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	stream := decodeStream(t, rec)
	if charged := stream["total_charged"].(float64); charged != 0.05 {
		t.Fatalf("expected counters current on read, got total_charged=%v", charged)
	}
}

func TestGetStreamNotFound(t *testing.T) {
	h := newTestHarness(t)
	rec := h.do(t, http.MethodGet, "/api/streams/1234", nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestGetPausedStream(t *testing.T) {
	h := newTestHarness(t)
	id := h.mustCreate(t, "wallet-1")
	if _, err := h.streams.Pause(context.Background(), id); err != nil {
		t.Fatalf("pause: %v", err)
	}

	// The pre-read billing tick fails on a paused stream; the read
	// still succeeds.
	rec := h.do(t, http.MethodGet, "/api/streams/"+id, nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if decodeStream(t, rec)["status"] != "paused" {
		t.Fatal("expected paused stream returned")
	}
}

func TestListStreamsByWallet(t *testing.T) {
	h := newTestHarness(t)
	h.mustCreate(t, "wallet-1")
	h.mustCreate(t, "wallet-1")
	h.mustCreate(t, "wallet-2")

	rec := h.do(t, http.MethodGet, "/api/streams?wallet=wallet-1", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var payload struct {
		Streams []json.RawMessage `json:"streams"`
		Count   int               `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Count != 2 || len(payload.Streams) != 2 {
		t.Fatalf("expected 2 streams, got count=%d len=%d", payload.Count, len(payload.Streams))
	}

	rec = h.do(t, http.MethodGet, "/api/streams", nil, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without wallet, got %d", rec.Code)
	}
}

func TestListStreamsMetrics(t *testing.T) {
	h := newTestHarness(t)
	id := h.mustCreate(t, "wallet-1")
	h.mustCreate(t, "wallet-2")

	h.clock.Advance(10 * time.Second)
	if _, err := h.streams.UpdateBilling(context.Background(), id); err != nil {
		t.Fatalf("update billing: %v", err)
	}

	rec := h.do(t, http.MethodGet, "/api/streams?metrics=true", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var payload struct {
		Metrics streamdomain.StreamMetrics `json:"metrics"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Metrics.TotalStreamSessions != 2 || payload.Metrics.ActiveStreams != 2 {
		t.Fatalf("unexpected metrics: %+v", payload.Metrics)
	}
	if payload.Metrics.TotalRevenue != 0.1 {
		t.Fatalf("expected revenue 0.1, got %v", payload.Metrics.TotalRevenue)
	}
}

func TestListActiveStreams(t *testing.T) {
	h := newTestHarness(t)
	h.mustCreate(t, "wallet-1")
	pausedID := h.mustCreate(t, "wallet-2")
	if _, err := h.streams.Pause(context.Background(), pausedID); err != nil {
		t.Fatalf("pause: %v", err)
	}

	h.clock.Advance(10 * time.Second)
	rec := h.do(t, http.MethodGet, "/api/streams/active", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var payload struct {
		Count       int     `json:"count"`
		TotalVolume float64 `json:"total_volume"`
		Streams     []struct {
			CurrentAmount     float64 `json:"current_amount"`
			Duration          int     `json:"duration"`
			FormattedDuration string  `json:"formatted_duration"`
			FormattedRate     string  `json:"formatted_rate"`
		} `json:"streams"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Count != 1 {
		t.Fatalf("expected 1 active stream, got %d", payload.Count)
	}
	if payload.TotalVolume != 0.1 {
		t.Fatalf("expected total volume 0.1, got %v", payload.TotalVolume)
	}
	if payload.Streams[0].Duration != 10 || payload.Streams[0].CurrentAmount != 0.1 {
		t.Fatalf("unexpected annotation: %+v", payload.Streams[0])
	}
	if payload.Streams[0].FormattedDuration != "10s" || payload.Streams[0].FormattedRate != "0.01 SOL/second" {
		t.Fatalf("unexpected formatting: %+v", payload.Streams[0])
	}
}

func TestUpdateStreamActions(t *testing.T) {
	h := newTestHarness(t)
	id := h.mustCreate(t, "wallet-1")
	patch := func(body map[string]any) *httptest.ResponseRecorder {
		return h.do(t, http.MethodPatch, "/api/streams/"+id, body, nil)
	}

	rec := patch(map[string]any{"action": "pause"})
	if rec.Code != http.StatusOK || decodeStream(t, rec)["status"] != "paused" {
		t.Fatalf("pause failed: %d %s", rec.Code, rec.Body.String())
	}

	rec = patch(map[string]any{"action": "resume"})
	if rec.Code != http.StatusOK || decodeStream(t, rec)["status"] != "active" {
		t.Fatalf("resume failed: %d %s", rec.Code, rec.Body.String())
	}

	rec = patch(map[string]any{"action": "add_funds", "amount": 2.5})
	if rec.Code != http.StatusOK {
		t.Fatalf("add_funds failed: %d %s", rec.Code, rec.Body.String())
	}
	if balance := decodeStream(t, rec)["estimated_balance"].(float64); balance != 3.5 {
		t.Fatalf("expected balance 3.5, got %v", balance)
	}

	rec = patch(map[string]any{"action": "complete"})
	if rec.Code != http.StatusOK || decodeStream(t, rec)["status"] != "completed" {
		t.Fatalf("complete failed: %d %s", rec.Code, rec.Body.String())
	}
}

func TestUpdateStreamRejectsBadInput(t *testing.T) {
	h := newTestHarness(t)
	id := h.mustCreate(t, "wallet-1")

	rec := h.do(t, http.MethodPatch, "/api/streams/"+id, map[string]any{"action": "explode"}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown action, got %d", rec.Code)
	}

	rec = h.do(t, http.MethodPatch, "/api/streams/"+id, map[string]any{"action": "add_funds", "amount": 0}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for zero amount, got %d", rec.Code)
	}

	// Resuming a stream that is not paused is a state conflict.
	rec = h.do(t, http.MethodPatch, "/api/streams/"+id, map[string]any{"action": "resume"}, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for resume on active, got %d", rec.Code)
	}
}

func TestDeleteStreamCancels(t *testing.T) {
	h := newTestHarness(t)
	id := h.mustCreate(t, "wallet-1")

	rec := h.do(t, http.MethodDelete, "/api/streams/"+id, nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	stream := decodeStream(t, rec)
	if stream["status"] != "cancelled" {
		t.Fatalf("expected cancelled, got %v", stream["status"])
	}

	// The stream stays in the ledger after deletion.
	cancelled, err := h.streams.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get after delete: %v", err)
	}
	last := cancelled.Events[len(cancelled.Events)-1]
	if last.Reason != "Deleted by user" {
		t.Fatalf("expected delete reason recorded, got %q", last.Reason)
	}
}

func TestCancelledStreamStatusCodes(t *testing.T) {
	h := newTestHarness(t)
	id := h.mustCreate(t, "wallet-1")
	if _, err := h.streams.Cancel(context.Background(), id, ""); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	rec := h.do(t, http.MethodPatch, "/api/streams/"+id, map[string]any{"action": "pause"}, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 pausing a cancelled stream, got %d", rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	h := newTestHarness(t)
	rec := h.do(t, http.MethodGet, "/healthz", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestStatusForLedgerError(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{streamdomain.ErrStreamNotFound, http.StatusNotFound},
		{streamdomain.ErrStreamNotActive, http.StatusConflict},
		{streamdomain.ErrStreamNotPaused, http.StatusConflict},
		{streamdomain.ErrInvalidRate, http.StatusBadRequest},
		{streamdomain.ErrInvalidAmount, http.StatusBadRequest},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := statusForLedgerError(tc.err); got != tc.want {
			t.Errorf("statusForLedgerError(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}
