package server

import (
	"bytes"
	"context"
	"encoding/json"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"tradesense/internal/challenge"
	"tradesense/internal/config"
	"tradesense/internal/market"
	"tradesense/internal/models"
)

// MockProvider is a mock implementation of market.Provider.
type MockProvider struct {
	mock.Mock
}

func (m *MockProvider) GetQuote(ctx context.Context, ticker string) (*market.Quote, error) {
	args := m.Called(ctx, ticker)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*market.Quote), args.Error(1)
}

// setupTest wires a router against a fresh in-memory database and a mock
// quote provider.
func setupTest(t *testing.T) (*chi.Mux, *MockProvider) {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	// A pooled connection would get its own empty in-memory database,
	// so pin the pool to a single connection.
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&models.Account{}, &models.Challenge{}, &models.Trade{}))

	cfg := &config.Config{
		Challenge: config.Challenge{
			StartBalance:   100000,
			Drawdown:       0.10,
			ProfitTarget:   0.10,
			MaxTradeReturn: 0.05,
			AccountName:    "Trader1",
		},
	}

	mockProvider := new(MockProvider)
	rng := rand.New(rand.NewPCG(1, 2))
	engine := challenge.NewEngine(zap.NewNop(), cfg, mockProvider, db, rng)
	handler := NewHandler(zap.NewNop(), engine, mockProvider)

	return NewRouter(zap.NewNop(), handler), mockProvider
}

func doRequest(router *chi.Mux, method, path string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHomeHandler(t *testing.T) {
	router, _ := setupTest(t)

	rec := doRequest(router, http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "online", body["status"])
}

func TestPriceHandler_Success(t *testing.T) {
	router, mockProvider := setupTest(t)

	mockProvider.On("GetQuote", mock.Anything, "AAPL").
		Return(&market.Quote{Ticker: "AAPL", Price: 150.25, Change: 1.31, Currency: "$"}, nil)

	rec := doRequest(router, http.MethodGet, "/price/AAPL", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "AAPL", body["ticker"])
	assert.Equal(t, 150.25, body["price"])
	assert.Equal(t, 1.31, body["change"])
	assert.Equal(t, "$", body["currency"])
}

func TestPriceHandler_Unavailable(t *testing.T) {
	router, mockProvider := setupTest(t)

	mockProvider.On("GetQuote", mock.Anything, "NOPE").
		Return(nil, &market.UnavailableError{Ticker: "NOPE", Reason: market.ReasonUnknownTicker})

	rec := doRequest(router, http.MethodGet, "/price/NOPE", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	body := decodeBody(t, rec)
	assert.NotEmpty(t, body["error"])
}

func TestStartChallengeHandler(t *testing.T) {
	router, _ := setupTest(t)

	rec := doRequest(router, http.MethodPost, "/start_challenge", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, 100000.0, body["balance"])
	assert.NotEmpty(t, body["message"])
}

func TestTradeHandler_NoActiveChallenge(t *testing.T) {
	router, _ := setupTest(t)

	payload := []byte(`{"ticker": "AAPL", "type": "buy", "amount": 1000}`)
	rec := doRequest(router, http.MethodPost, "/trade", payload)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "no active challenge", body["error"])
}

func TestTradeHandler_Success(t *testing.T) {
	router, mockProvider := setupTest(t)

	mockProvider.On("GetQuote", mock.Anything, "AAPL").
		Return(&market.Quote{Ticker: "AAPL", Price: 150.0, Change: 0.5, Currency: "$"}, nil)

	rec := doRequest(router, http.MethodPost, "/start_challenge", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	payload := []byte(`{"ticker": "AAPL", "type": "buy", "amount": 1000}`)
	rec = doRequest(router, http.MethodPost, "/trade", payload)
	assert.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "active", body["status"])

	newBalance, ok := body["new_balance"].(float64)
	require.True(t, ok)
	assert.InDelta(t, 100000.0, newBalance, 0.05*1000)
}

func TestTradeHandler_MalformedBody(t *testing.T) {
	router, _ := setupTest(t)

	testCases := []struct {
		name    string
		payload string
	}{
		{"InvalidJSON", `{"ticker": "AAPL",`},
		{"NonNumericAmount", `{"ticker": "AAPL", "type": "buy", "amount": "lots"}`},
		{"MissingAmount", `{"ticker": "AAPL", "type": "buy"}`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doRequest(router, http.MethodPost, "/trade", []byte(tc.payload))
			assert.Equal(t, http.StatusBadRequest, rec.Code)

			body := decodeBody(t, rec)
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestTradeHandler_MarketUnavailable(t *testing.T) {
	router, mockProvider := setupTest(t)

	mockProvider.On("GetQuote", mock.Anything, "DOWN").
		Return(nil, &market.UnavailableError{Ticker: "DOWN", Reason: market.ReasonTransient})

	rec := doRequest(router, http.MethodPost, "/start_challenge", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	payload := []byte(`{"ticker": "DOWN", "type": "buy", "amount": 1000}`)
	rec = doRequest(router, http.MethodPost, "/trade", payload)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "market closed or unreachable", body["error"])
}

func TestAccountHandler_NoChallenge(t *testing.T) {
	router, _ := setupTest(t)

	rec := doRequest(router, http.MethodGet, "/account", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "null\n", rec.Body.String())
}

func TestAccountHandler_AfterStart(t *testing.T) {
	router, _ := setupTest(t)

	rec := doRequest(router, http.MethodPost, "/start_challenge", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(router, http.MethodGet, "/account", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, 100000.0, body["balance"])
	assert.Equal(t, 100000.0, body["start_balance"])
	assert.Equal(t, "active", body["status"])
}
