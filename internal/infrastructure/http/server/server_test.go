package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yuzvak/crowdfund-service/internal/application/use_cases"
	"github.com/yuzvak/crowdfund-service/internal/config"
	"github.com/yuzvak/crowdfund-service/internal/domain/crowdfund"
	"github.com/yuzvak/crowdfund-service/internal/infrastructure/persistence/memory"
	"github.com/yuzvak/crowdfund-service/internal/infrastructure/registry"
	"github.com/yuzvak/crowdfund-service/internal/pkg/clock"
	"github.com/yuzvak/crowdfund-service/internal/pkg/logger"
)

var genesis = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Code    string          `json:"code"`
}

type testServer struct {
	handler http.Handler
	clock   *clock.MockClock
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	mock := clock.NewMockClock(genesis)
	engine := crowdfund.NewEngine(nil, nil, registry.NewMemoryRegistry())
	uc := use_cases.NewCrowdfundUseCase(
		memory.NewCrowdfundRepository(memory.NewStore()),
		memory.NewLocker(),
		engine,
		clock.NewBlockOracle(mock, genesis, 1, time.Second),
		logger.Nop(),
		use_cases.Options{Contract: "crowdfund"},
	)

	srv := NewServer(config.ServerConfig{Host: "127.0.0.1", Port: 0}, uc, nil, nil, logger.Nop())
	return &testServer{handler: srv.Handler(), clock: mock}
}

func (s *testServer) do(t *testing.T, method, path, sender string, body any) (int, envelope) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf).WithContext(context.Background())
	if sender != "" {
		req.Header.Set("X-Sender", sender)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec.Code, env
}

func (s *testServer) startSale(t *testing.T) {
	t.Helper()

	code, _ := s.do(t, http.MethodPost, "/admin/instantiate", "owner", map[string]any{"token_address": "registry"})
	require.Equal(t, http.StatusCreated, code)

	code, _ = s.do(t, http.MethodPost, "/tokens/mint", "owner", map[string]any{
		"tokens": []map[string]string{{"token_id": "a"}, {"token_id": "b"}, {"token_id": "c"}},
	})
	require.Equal(t, http.StatusOK, code)

	code, env := s.do(t, http.MethodPost, "/sales", "owner", map[string]any{
		"expiration":            map[string]any{"kind": "at_height", "height": 100},
		"price":                 map[string]string{"denom": "uusd", "amount": "10"},
		"min_tokens_sold":       1,
		"max_amount_per_wallet": 2,
		"recipient":             map[string]string{"address": "seller"},
	})
	require.Equal(t, http.StatusOK, code, env.Error)
}

func TestPurchaseFlow(t *testing.T) {
	s := newTestServer(t)
	s.startSale(t)

	code, env := s.do(t, http.MethodPost, "/purchase", "alice", map[string]any{
		"funds":            []map[string]string{{"denom": "uusd", "amount": "20"}},
		"number_of_tokens": 2,
	})
	require.Equal(t, http.StatusOK, code, env.Error)

	var resp crowdfund.Response
	require.NoError(t, json.Unmarshal(env.Data, &resp))
	assert.Equal(t, "2", resp.Attribute("number_of_tokens_purchased"))

	code, env = s.do(t, http.MethodGet, "/purchases/alice", "", nil)
	require.Equal(t, http.StatusOK, code)
	var purchases struct {
		Purchaser string               `json:"purchaser"`
		Purchases []crowdfund.Purchase `json:"purchases"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &purchases))
	assert.Len(t, purchases.Purchases, 2)

	code, env = s.do(t, http.MethodGet, "/tokens/available", "", nil)
	require.Equal(t, http.StatusOK, code)
	var tokens struct {
		Tokens []string `json:"tokens"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &tokens))
	assert.Len(t, tokens.Tokens, 1)
}

func TestPurchaseByTokenID(t *testing.T) {
	s := newTestServer(t)
	s.startSale(t)

	code, env := s.do(t, http.MethodPost, "/purchase/b", "bob", map[string]any{
		"funds": []map[string]string{{"denom": "uusd", "amount": "10"}},
	})
	require.Equal(t, http.StatusOK, code, env.Error)

	code, env = s.do(t, http.MethodGet, "/tokens/b/available", "", nil)
	require.Equal(t, http.StatusOK, code)
	var availability struct {
		Available bool `json:"available"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &availability))
	assert.False(t, availability.Available)

	code, env = s.do(t, http.MethodPost, "/purchase/b", "carol", map[string]any{
		"funds": []map[string]string{{"denom": "uusd", "amount": "10"}},
	})
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "resource_exhaustion", env.Code)
}

func TestErrorClassesMapToStatusCodes(t *testing.T) {
	s := newTestServer(t)

	code, env := s.do(t, http.MethodGet, "/config", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "state_conflict", env.Code)

	s.startSale(t)

	code, env = s.do(t, http.MethodPost, "/sales", "mallory", map[string]any{})
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "authorization", env.Code)

	code, env = s.do(t, http.MethodPost, "/purchase", "alice", map[string]any{
		"funds":            []map[string]string{{"denom": "uusd", "amount": "5"}},
		"number_of_tokens": 1,
	})
	assert.Equal(t, http.StatusPaymentRequired, code)
	assert.Equal(t, "funds_mismatch", env.Code)

	code, env = s.do(t, http.MethodPost, "/refund", "alice", nil)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "state_conflict", env.Code)
}

func TestMissingSenderIsRejected(t *testing.T) {
	s := newTestServer(t)

	code, env := s.do(t, http.MethodPost, "/purchase", "", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "validation_error", env.Status)
}

func TestUnknownFieldsAreRejected(t *testing.T) {
	s := newTestServer(t)
	s.startSale(t)

	code, _ := s.do(t, http.MethodPost, "/purchase", "alice", map[string]any{"tokens": 3})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestSettlementOverHTTP(t *testing.T) {
	s := newTestServer(t)
	s.startSale(t)

	code, env := s.do(t, http.MethodPost, "/purchase", "alice", map[string]any{
		"funds":            []map[string]string{{"denom": "uusd", "amount": "10"}},
		"number_of_tokens": 1,
	})
	require.Equal(t, http.StatusOK, code, env.Error)

	code, env = s.do(t, http.MethodPost, "/sales/end", "anyone", nil)
	assert.Equal(t, http.StatusConflict, code, "sale still active")

	s.clock.Advance(200 * time.Second)

	code, env = s.do(t, http.MethodGet, "/sales/phase", "", nil)
	require.Equal(t, http.StatusOK, code)
	var phase struct {
		Phase string `json:"phase"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &phase))
	assert.Equal(t, "closing", phase.Phase)

	cleared := false
	for i := 0; i < 5 && !cleared; i++ {
		code, env = s.do(t, http.MethodPost, "/sales/end", "anyone", map[string]any{"limit": 10})
		require.Equal(t, http.StatusOK, code, env.Error)

		var resp crowdfund.Response
		require.NoError(t, json.Unmarshal(env.Data, &resp))
		cleared = resp.Attribute("sale_cleared") == "true"
	}
	assert.True(t, cleared)

	code, env = s.do(t, http.MethodGet, "/sales/state", "", nil)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "state_conflict", env.Code)
}

func TestHealthReportsDisabledDependencies(t *testing.T) {
	s := newTestServer(t)

	code, env := s.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, code)

	var health struct {
		ServicesStatus map[string]string `json:"services_status"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &health))
	assert.Equal(t, "UP", health.ServicesStatus["app"])
	assert.Equal(t, "DISABLED", health.ServicesStatus["database"])
	assert.Equal(t, "DISABLED", health.ServicesStatus["redis"])
}

func TestRequestIDIsEchoed(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "req-1")
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	assert.Equal(t, "req-1", rec.Header().Get("X-Request-ID"))
}
