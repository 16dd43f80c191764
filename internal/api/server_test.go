// SPDX-License-Identifier: MIT

package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/IsakPar/the-lml-sub003/internal/bus"
	"github.com/IsakPar/the-lml-sub003/internal/config"
	"github.com/IsakPar/the-lml-sub003/internal/inventory/coordinator"
	"github.com/IsakPar/the-lml-sub003/internal/inventory/ledger"
	"github.com/IsakPar/the-lml-sub003/internal/inventory/projector"
	"github.com/IsakPar/the-lml-sub003/internal/inventory/shadow"
)

type harness struct {
	srv *httptest.Server
}

func newHarness(t *testing.T, mutate func(cfg *config.Config)) *harness {
	t.Helper()
	cfg := config.Default()
	cfg.Ledger.Backend = config.LedgerMemory
	cfg.Shadow.Backend = config.ShadowMemory
	if mutate != nil {
		mutate(cfg)
	}

	l := ledger.NewMemory()
	st := shadow.NewMemory()
	b := bus.NewMemoryBus(cfg.Bus.QueueDepth)
	t.Cleanup(func() { _ = b.Close() })
	seq := bus.NewSequencer()

	coord := coordinator.New(l, st, b, seq, cfg.Limits, nil)
	proj := projector.New(l, st, nil)

	server := NewServer(coord, proj, b, l, st, cfg)
	ts := httptest.NewServer(server.Router())
	t.Cleanup(ts.Close)
	return &harness{srv: ts}
}

type callOpt func(*http.Request)

func withHeader(key, value string) callOpt {
	return func(r *http.Request) { r.Header.Set(key, value) }
}

func (h *harness) call(t *testing.T, method, path string, body any, opts ...callOpt) (*http.Response, map[string]any) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, h.srv.URL+path, rd)
	require.NoError(t, err)
	req.Header.Set("X-Tenant-Id", "T1")
	req.Header.Set("Idempotency-Key", "key-"+method+path+fmt.Sprint(time.Now().UnixNano()))
	for _, opt := range opts {
		opt(req)
	}

	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = res.Body.Close() })

	var decoded map[string]any
	raw, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	if len(raw) > 0 && strings.Contains(res.Header.Get("Content-Type"), "json") {
		require.NoError(t, json.Unmarshal(raw, &decoded), "body: %s", raw)
	}
	return res, decoded
}

func (h *harness) acquire(t *testing.T, seats []string, owner string) map[string]any {
	t.Helper()
	res, body := h.call(t, http.MethodPost, "/v1/holds", map[string]any{
		"performance_id": "P1",
		"seats":          seats,
	}, withHeader("X-Owner-Id", owner))
	require.Equal(t, http.StatusCreated, res.StatusCode, "body: %v", body)
	return body
}

func seatStrings(v any) []string {
	items, _ := v.([]any)
	out := make([]string, len(items))
	for i, it := range items {
		out[i], _ = it.(string)
	}
	return out
}

func TestAcquireEndpoint(t *testing.T) {
	h := newHarness(t, nil)

	body := h.acquire(t, []string{"A1", "A2", "A3"}, "owner-1")
	require.NotEmpty(t, body["hold_id"])
	require.NotEmpty(t, body["hold_token"])
	require.Equal(t, []string{"A1", "A2", "A3"}, seatStrings(body["seats"]))

	// Overlap by another owner: 409 with the exact conflicting subset.
	res, problem := h.call(t, http.MethodPost, "/v1/holds", map[string]any{
		"performance_id": "P1",
		"seats":          []string{"A3", "A4"},
	}, withHeader("X-Owner-Id", "owner-2"))
	require.Equal(t, http.StatusConflict, res.StatusCode)
	require.Equal(t, "urn:ticketing:inventory:conflict", problem["type"])
	require.Equal(t, []string{"A3"}, seatStrings(problem["conflictSeatIds"]))

	// A4 stayed available.
	h.acquire(t, []string{"A4"}, "owner-2")
}

func TestAcquireValidationIs422(t *testing.T) {
	h := newHarness(t, nil)

	res, problem := h.call(t, http.MethodPost, "/v1/holds", map[string]any{
		"performance_id": "P1",
		"seats":          []string{"A1", "A1", "A2"},
	}, withHeader("X-Owner-Id", "owner-1"))
	require.Equal(t, http.StatusUnprocessableEntity, res.StatusCode)
	require.Equal(t, "urn:ticketing:inventory:validation", problem["type"])
	require.Contains(t, problem["detail"], "duplicate seat")
}

func TestAcquireTransportErrorsAre400(t *testing.T) {
	h := newHarness(t, nil)

	// Unparseable JSON.
	req, err := http.NewRequest(http.MethodPost, h.srv.URL+"/v1/holds", strings.NewReader("{nope"))
	require.NoError(t, err)
	req.Header.Set("X-Tenant-Id", "T1")
	req.Header.Set("Idempotency-Key", "k1")
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = res.Body.Close() }()
	require.Equal(t, http.StatusBadRequest, res.StatusCode)

	// Missing tenant header.
	req2, err := http.NewRequest(http.MethodPost, h.srv.URL+"/v1/holds", strings.NewReader("{}"))
	require.NoError(t, err)
	res2, err := http.DefaultClient.Do(req2)
	require.NoError(t, err)
	defer func() { _ = res2.Body.Close() }()
	require.Equal(t, http.StatusBadRequest, res2.StatusCode)

	// Missing idempotency key.
	res3, _ := h.call(t, http.MethodPost, "/v1/holds", map[string]any{
		"performance_id": "P1", "seats": []string{"A1"},
	}, func(r *http.Request) { r.Header.Del("Idempotency-Key") }, withHeader("X-Owner-Id", "o"))
	require.Equal(t, http.StatusBadRequest, res3.StatusCode)
}

func TestIdempotentReplayOverHTTP(t *testing.T) {
	h := newHarness(t, nil)

	req := map[string]any{"performance_id": "P1", "seats": []string{"A1"}}
	res1, body1 := h.call(t, http.MethodPost, "/v1/holds", req,
		withHeader("X-Owner-Id", "owner-1"), withHeader("Idempotency-Key", "fixed"))
	require.Equal(t, http.StatusCreated, res1.StatusCode)

	res2, body2 := h.call(t, http.MethodPost, "/v1/holds", req,
		withHeader("X-Owner-Id", "owner-1"), withHeader("Idempotency-Key", "fixed"))
	require.Equal(t, http.StatusCreated, res2.StatusCode)
	require.Equal(t, body1, body2)

	// Same key, different body: 422 invalid idempotency key.
	res3, problem := h.call(t, http.MethodPost, "/v1/holds",
		map[string]any{"performance_id": "P1", "seats": []string{"A2"}},
		withHeader("X-Owner-Id", "owner-1"), withHeader("Idempotency-Key", "fixed"))
	require.Equal(t, http.StatusUnprocessableEntity, res3.StatusCode)
	require.Equal(t, "urn:ticketing:inventory:invalid-idempotency-key", problem["type"])
}

func TestExtendEndpoint(t *testing.T) {
	h := newHarness(t, nil)
	hold := h.acquire(t, []string{"A1"}, "owner-1")

	res, body := h.call(t, http.MethodPatch, "/v1/holds", map[string]any{
		"hold_id":            hold["hold_id"],
		"performance_id":     "P1",
		"additional_seconds": 30,
		"hold_token":         hold["hold_token"],
	})
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.NotEmpty(t, body["expires_at"])
}

func TestExtendIfMatchMismatchIsStale(t *testing.T) {
	h := newHarness(t, nil)
	hold := h.acquire(t, []string{"A1"}, "owner-1")

	res, problem := h.call(t, http.MethodPatch, "/v1/holds", map[string]any{
		"hold_id":            hold["hold_id"],
		"performance_id":     "P1",
		"additional_seconds": 30,
		"hold_token":         hold["hold_token"],
	}, withHeader("If-Match", "999:0123456789abcdef"))
	require.Equal(t, http.StatusConflict, res.StatusCode)
	require.Equal(t, "urn:ticketing:inventory:expired", problem["type"])
}

func TestReleaseEndpoint(t *testing.T) {
	h := newHarness(t, nil)
	hold := h.acquire(t, []string{"A1", "A2"}, "owner-1")

	res, body := h.call(t, http.MethodDelete, "/v1/holds/"+hold["hold_id"].(string)+"?performance_id=P1", nil,
		withHeader("If-Match", hold["hold_token"].(string)))
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Equal(t, []string{"A1", "A2"}, seatStrings(body["released_seats"]))

	// Second release: the hold is settled.
	res2, _ := h.call(t, http.MethodDelete, "/v1/holds/"+hold["hold_id"].(string), nil,
		withHeader("If-Match", hold["hold_token"].(string)))
	require.Equal(t, http.StatusGone, res2.StatusCode)

	// Unknown hold: 404.
	res3, _ := h.call(t, http.MethodDelete, "/v1/holds/unknown", nil,
		withHeader("If-Match", hold["hold_token"].(string)))
	require.Equal(t, http.StatusNotFound, res3.StatusCode)
}

func TestConvertEndpoint(t *testing.T) {
	h := newHarness(t, nil)
	hold := h.acquire(t, []string{"A1"}, "owner-1")

	res, body := h.call(t, http.MethodPost, "/v1/holds/"+hold["hold_id"].(string)+"/convert", map[string]any{
		"performance_id": "P1",
		"hold_token":     hold["hold_token"],
		"order_id":       "ORD1",
	})
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Equal(t, "ORD1", body["order_id"])
	require.Equal(t, []string{"A1"}, seatStrings(body["seats"]))

	// Availability now reports the seat sold.
	res2, avail := h.call(t, http.MethodGet, "/v1/performances/P1/availability", nil)
	require.Equal(t, http.StatusOK, res2.StatusCode)
	seats := avail["seats"].([]any)
	require.Len(t, seats, 1)
	seat := seats[0].(map[string]any)
	require.Equal(t, "A1", seat["seat_id"])
	require.Equal(t, "sold", seat["status"])
}

func TestAvailabilityEndpoint(t *testing.T) {
	h := newHarness(t, nil)
	h.acquire(t, []string{"A1"}, "owner-1")

	// Snapshot view, requesting principal owns A1.
	res, body := h.call(t, http.MethodGet, "/v1/performances/P1/availability", nil,
		withHeader("X-Owner-Id", "owner-1"))
	require.Equal(t, http.StatusOK, res.StatusCode)
	seats := body["seats"].([]any)
	require.Len(t, seats, 1)
	seat := seats[0].(map[string]any)
	require.Equal(t, "held", seat["status"])
	require.Equal(t, true, seat["owner_self"])

	// Explicit probe includes available seats.
	res2, body2 := h.call(t, http.MethodGet, "/v1/performances/P1/availability?seat_id=A1&seat_id=A2", nil)
	require.Equal(t, http.StatusOK, res2.StatusCode)
	probe := body2["seats"].([]any)
	require.Len(t, probe, 2)
	require.Equal(t, "held", probe[0].(map[string]any)["status"])
	require.Equal(t, "available", probe[1].(map[string]any)["status"])
}

func TestBlocksEndpoints(t *testing.T) {
	h := newHarness(t, nil)

	res, _ := h.call(t, http.MethodPut, "/v1/performances/P1/blocks", map[string]any{
		"seats": []string{"B1", "B2"}, "reason": "tech rehearsal",
	})
	require.Equal(t, http.StatusNoContent, res.StatusCode)

	res2, problem := h.call(t, http.MethodPost, "/v1/holds", map[string]any{
		"performance_id": "P1", "seats": []string{"B1"},
	}, withHeader("X-Owner-Id", "owner-1"))
	require.Equal(t, http.StatusConflict, res2.StatusCode)
	require.Equal(t, []string{"B1"}, seatStrings(problem["conflictSeatIds"]))

	res3, body := h.call(t, http.MethodDelete, "/v1/performances/P1/blocks", map[string]any{
		"seats": []string{"B1"},
	})
	require.Equal(t, http.StatusOK, res3.StatusCode)
	require.Equal(t, []string{"B1"}, seatStrings(body["removed"]))
}

func TestMutationRateLimitRetryAfter(t *testing.T) {
	h := newHarness(t, func(cfg *config.Config) {
		cfg.Rate.Burst = 2
		cfg.Rate.Window = time.Minute
	})

	var last *http.Response
	for i := 0; i < 3; i++ {
		last, _ = h.call(t, http.MethodPost, "/v1/holds", map[string]any{
			"performance_id": "P1", "seats": []string{fmt.Sprintf("S%d", i)},
		}, withHeader("X-Owner-Id", "owner-1"))
	}
	require.Equal(t, http.StatusTooManyRequests, last.StatusCode)
	require.Equal(t, "60", last.Header.Get("Retry-After"))
}

func TestHealthEndpoints(t *testing.T) {
	h := newHarness(t, nil)

	res, _ := h.call(t, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)

	res2, _ := h.call(t, http.MethodGet, "/readyz", nil)
	require.Equal(t, http.StatusOK, res2.StatusCode)
}

func TestStreamDeliversEventsWithSequenceIDs(t *testing.T) {
	h := newHarness(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		h.srv.URL+"/v1/performances/P1/availability/stream", nil)
	require.NoError(t, err)
	req.Header.Set("X-Tenant-Id", "T1")

	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = res.Body.Close() }()
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Contains(t, res.Header.Get("Content-Type"), "text/event-stream")

	// Mutate while the stream is open.
	h.acquire(t, []string{"A1"}, "owner-1")

	reader := bufio.NewReader(res.Body)
	var id, event, data string
	for {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		switch {
		case strings.HasPrefix(line, "id: "):
			id = strings.TrimPrefix(line, "id: ")
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		}
		if data != "" {
			break
		}
	}

	require.Equal(t, "1", id)
	require.Equal(t, "seat.locked", event)

	var ev map[string]any
	require.NoError(t, json.Unmarshal([]byte(data), &ev))
	require.Equal(t, "A1", ev["seat_id"])
	require.Equal(t, float64(1), ev["sequence"])
	cancel()
}
