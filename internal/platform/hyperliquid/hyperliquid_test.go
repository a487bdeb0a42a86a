package hyperliquid

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BeerCodeIndustry/hyperliquid/internal/domain"
)

const (
	testKey     = "0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
	testAddress = "0x00000000000000000000000000000000000000aa"
)

type fakeExchange struct {
	t *testing.T

	mu            sync.Mutex
	metaCalls     atomic.Int32
	infoCalls     atomic.Int32
	exchangeCalls atomic.Int32
	infoFailures  int
	exchangeFail  bool
	exchangeBody  map[string]any
	exchangeResp  string
	metaGate      chan struct{} // meta answers wait for it when set
}

func (f *fakeExchange) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	assert.NoError(f.t, err)

	switch r.URL.Path {
	case "/info":
		f.infoCalls.Add(1)
		f.mu.Lock()
		if f.infoFailures > 0 {
			f.infoFailures--
			f.mu.Unlock()
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		f.mu.Unlock()

		var req infoRequest
		assert.NoError(f.t, json.Unmarshal(body, &req))
		switch req.Type {
		case "meta":
			f.metaCalls.Add(1)
			if f.metaGate != nil {
				<-f.metaGate
			}
			_, _ = io.WriteString(w, `{"universe":[{"name":"BTC","szDecimals":5,"maxLeverage":50},{"name":"ETH","szDecimals":4,"maxLeverage":50}]}`)
		case "allMids":
			_, _ = io.WriteString(w, `{"BTC":"65000.5","ETH":"3200.25"}`)
		case "clearinghouseState":
			assert.Equal(f.t, testAddress, req.User)
			_, _ = io.WriteString(w, `{
				"marginSummary":{"accountValue":"1000.5","totalMarginUsed":"200.5","totalNtlPos":"0","totalRawUsd":"0"},
				"crossMarginSummary":{"accountValue":"1000.5","totalMarginUsed":"200.5","totalNtlPos":"0","totalRawUsd":"0"},
				"withdrawable":"800",
				"assetPositions":[{"type":"oneWay","position":{"coin":"ETH","szi":"-1.5","entryPx":"3100","positionValue":"4800","unrealizedPnl":"-10","marginUsed":"960","liquidationPx":null,"leverage":{"type":"isolated","value":5}}}]
			}`)
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	case "/exchange":
		f.exchangeCalls.Add(1)
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.exchangeFail {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		f.exchangeBody = map[string]any{}
		assert.NoError(f.t, json.Unmarshal(body, &f.exchangeBody))
		_, _ = io.WriteString(w, f.exchangeResp)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *fakeExchange) respondWith(resp string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exchangeResp = resp
}

func (f *fakeExchange) failInfo(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.infoFailures = n
}

func (f *fakeExchange) lastExchange() map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.exchangeBody
}

func newTestFactory(t *testing.T) (*Factory, *fakeExchange) {
	t.Helper()
	fx := &fakeExchange{t: t}
	srv := httptest.NewServer(fx)
	t.Cleanup(srv.Close)

	f := NewFactory(FactoryConfig{
		BaseURL: srv.URL,
		Timeout: 2 * time.Second,
		Mainnet: false,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return f, fx
}

func openGateway(t *testing.T, f *Factory) domain.ExchangeGateway {
	t.Helper()
	gw, err := f.Open(context.Background(), domain.AccountConfig{Name: "a1", Address: testAddress, PrivateKey: testKey})
	require.NoError(t, err)
	t.Cleanup(gw.Close)
	return gw
}

func TestGatewayStateBalanceAndPosition(t *testing.T) {
	f, _ := newTestFactory(t)
	gw := openGateway(t, f)
	ctx := context.Background()

	bal, err := gw.Balance(ctx)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(800).Equal(bal), "balance %s", bal)

	pos, err := gw.Position(ctx, "ETH")
	require.NoError(t, err)
	require.NotNil(t, pos)
	assert.Equal(t, "-1.5", pos.Size.String())
	assert.False(t, pos.IsLong())
	assert.True(t, pos.LiquidationPrice.IsZero())
	assert.Equal(t, 5, pos.Leverage)

	none, err := gw.Position(ctx, "BTC")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestGatewayMidPriceAndMeta(t *testing.T) {
	f, fx := newTestFactory(t)
	gw := openGateway(t, f)
	ctx := context.Background()

	px, err := gw.MidPrice(ctx, "BTC")
	require.NoError(t, err)
	assert.Equal(t, "65000.5", px.String())

	_, err = gw.MidPrice(ctx, "DOGE")
	require.ErrorIs(t, err, domain.ErrUnknownAsset)

	am, err := gw.AssetInfo(ctx, "ETH")
	require.NoError(t, err)
	assert.Equal(t, domain.AssetMeta{Name: "ETH", Index: 1, SizeDecimals: 4, MaxLeverage: 50}, am)

	_, err = f.MarketData().AssetInfo(ctx, "BTC")
	require.NoError(t, err)
	_, err = gw.AssetInfo(ctx, "SOL")
	require.ErrorIs(t, err, domain.ErrUnknownAsset)

	assert.Equal(t, int32(1), fx.metaCalls.Load())
}

func TestMetaCacheSharesRefresh(t *testing.T) {
	f, fx := newTestFactory(t)
	fx.metaGate = make(chan struct{})
	gw := openGateway(t, f)

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = gw.AssetInfo(context.Background(), "ETH")
		}()
	}

	// A caller that gives up does not cancel the shared refresh.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := gw.AssetInfo(ctx, "ETH")
	assert.ErrorIs(t, err, context.Canceled)

	require.Eventually(t, func() bool { return fx.metaCalls.Load() == 1 }, time.Second, 5*time.Millisecond)
	close(fx.metaGate)
	wg.Wait()

	for i, err := range errs {
		assert.NoError(t, err, "caller %d", i)
	}
	assert.Equal(t, int32(1), fx.metaCalls.Load())
}

func TestGatewayPlaceOrderFilled(t *testing.T) {
	f, fx := newTestFactory(t)
	fx.respondWith(`{"status":"ok","response":{"type":"order","data":{"statuses":[{"filled":{"totalSz":"0.5","avgPx":"3201.1","oid":77}}]}}}`)
	gw := openGateway(t, f)

	fill, err := gw.PlaceOrder(context.Background(), domain.OrderRequest{
		Asset:       "ETH",
		IsBuy:       true,
		Size:        decimal.RequireFromString("0.5"),
		LimitPrice:  decimal.RequireFromString("3203.4"),
		TimeInForce: domain.TifFrontendMarket,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(77), fill.OrderID)
	assert.Equal(t, "0.5", fill.TotalSize.String())

	body := fx.lastExchange()
	action := body["action"].(map[string]any)
	assert.Equal(t, "order", action["type"])
	assert.Equal(t, "na", action["grouping"])
	order := action["orders"].([]any)[0].(map[string]any)
	assert.Equal(t, float64(1), order["a"])
	assert.Equal(t, true, order["b"])
	assert.Equal(t, "3203.4", order["p"])
	assert.Equal(t, "0.5", order["s"])
	assert.Equal(t, false, order["r"])
	assert.Equal(t, map[string]any{"limit": map[string]any{"tif": "FrontendMarket"}}, order["t"])

	sig := body["signature"].(map[string]any)
	assert.NotEmpty(t, sig["r"])
	assert.NotEmpty(t, sig["s"])
	assert.NotZero(t, body["nonce"])
}

func TestGatewayPlaceOrderFailures(t *testing.T) {
	tests := []struct {
		name    string
		resp    string
		wantIs  error
		wantMsg string
	}{
		{
			name:    "status error",
			resp:    `{"status":"ok","response":{"type":"order","data":{"statuses":[{"error":"Insufficient margin to place order."}]}}}`,
			wantIs:  domain.ErrInvalidOrder,
			wantMsg: "Insufficient margin",
		},
		{
			name:   "resting",
			resp:   `{"status":"ok","response":{"type":"order","data":{"statuses":[{"resting":{"oid":5}}]}}}`,
			wantIs: ErrNotFilled,
		},
		{
			name:    "action rejected",
			resp:    `{"status":"err","response":"User or API Wallet does not exist."}`,
			wantMsg: "does not exist",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, fx := newTestFactory(t)
			fx.respondWith(tt.resp)
			gw := openGateway(t, f)

			_, err := gw.PlaceOrder(context.Background(), domain.OrderRequest{
				Asset:      "BTC",
				Size:       decimal.RequireFromString("0.001"),
				LimitPrice: decimal.RequireFromString("65000"),
			})
			require.Error(t, err)
			if tt.wantIs != nil {
				assert.ErrorIs(t, err, tt.wantIs)
			}
			if tt.wantMsg != "" {
				assert.Contains(t, err.Error(), tt.wantMsg)
			}
		})
	}
}

func TestGatewayUpdateLeverage(t *testing.T) {
	f, fx := newTestFactory(t)
	fx.respondWith(`{"status":"ok","response":{"type":"default"}}`)
	gw := openGateway(t, f)

	require.NoError(t, gw.UpdateLeverage(context.Background(), "ETH", 7, false))
	action := fx.lastExchange()["action"].(map[string]any)
	assert.Equal(t, map[string]any{
		"type":     "updateLeverage",
		"asset":    float64(1),
		"isCross":  false,
		"leverage": float64(7),
	}, action)
}

func TestInfoRetriesTransientFailures(t *testing.T) {
	f, fx := newTestFactory(t)
	fx.failInfo(2)
	gw := openGateway(t, f)

	_, err := gw.MidPrice(context.Background(), "ETH")
	require.NoError(t, err)

	fx.failInfo(5)
	before := fx.infoCalls.Load()
	_, err = gw.MidPrice(context.Background(), "ETH")
	require.ErrorContains(t, err, "HTTP 502")
	assert.Equal(t, int32(infoAttempts), fx.infoCalls.Load()-before)
}

func TestExchangeIsNotRetried(t *testing.T) {
	f, fx := newTestFactory(t)
	gw := openGateway(t, f)
	// Warm the meta cache so only the action hits the server.
	_, err := gw.AssetInfo(context.Background(), "ETH")
	require.NoError(t, err)

	fx.mu.Lock()
	fx.exchangeFail = true
	fx.mu.Unlock()

	err = gw.UpdateLeverage(context.Background(), "ETH", 3, true)
	require.ErrorContains(t, err, "HTTP 502")
	assert.Equal(t, int32(1), fx.exchangeCalls.Load())
}

func TestFactoryOpenValidation(t *testing.T) {
	f, _ := newTestFactory(t)
	ctx := context.Background()

	_, err := f.Open(ctx, domain.AccountConfig{Name: "bad", Address: "nope", PrivateKey: testKey})
	require.ErrorContains(t, err, "invalid public address")

	_, err = f.Open(ctx, domain.AccountConfig{Name: "bad", Address: testAddress, PrivateKey: "0x12"})
	require.Error(t, err)
}

func TestCheckHTTPStatus(t *testing.T) {
	assert.NoError(t, checkHTTPStatus(200, nil))
	assert.ErrorIs(t, checkHTTPStatus(429, []byte("slow down")), domain.ErrRateLimited)
	assert.ErrorIs(t, checkHTTPStatus(401, nil), domain.ErrUnauthorized)
	assert.ErrorIs(t, checkHTTPStatus(404, nil), domain.ErrNotFound)
}

func TestNextNonceIsMonotonic(t *testing.T) {
	c := NewClient(ClientConfig{BaseURL: "http://127.0.0.1:1"}, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	prev := c.nextNonce()
	for i := 0; i < 100; i++ {
		n := c.nextNonce()
		require.Greater(t, n, prev)
		prev = n
	}
}
