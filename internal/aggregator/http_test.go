package aggregator

import (
	"context"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"trader-core/pkg/config"
	"trader-core/pkg/errno"
)

const wethAddr = "0x4200000000000000000000000000000000000006"

func mustDecimal(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("bad decimal %q: %v", s, err)
	}
	return d
}

func newTestSource(t *testing.T, handler http.Handler) *HTTPSource {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewHTTPSource(&config.AggregatorConfig{
		BaseURL: srv.URL,
		APIKey:  "test-key",
		Timeout: 5 * time.Second,
	}, 8453, wethAddr)
}

func TestQuoteParsesResponse(t *testing.T) {
	src := newTestSource(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/prices" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("X-API-Key"); got != "test-key" {
			t.Errorf("missing api key header, got %q", got)
		}
		if got := r.URL.Query().Get("srcToken"); got != wethAddr {
			t.Errorf("buy should quote WETH as srcToken, got %s", got)
		}
		w.Write([]byte(`{"priceRoute":{"srcToken":"` + wethAddr + `","destToken":"0xabc","srcAmount":"1000","destAmount":"2500","priceImpact":"1.25"}}`))
	}))

	q, err := src.Quote(context.Background(), &QuoteRequest{
		TokenAddress: "0xabc",
		Direction:    DirectionBuy,
		AmountIn:     big.NewInt(1000),
	})
	if err != nil {
		t.Fatalf("Quote failed: %v", err)
	}
	if q.AmountOut.Cmp(big.NewInt(2500)) != 0 {
		t.Errorf("AmountOut = %v, want 2500", q.AmountOut)
	}
	if !q.PriceImpactPct.Equal(mustDecimal(t, "1.25")) {
		t.Errorf("PriceImpactPct = %v, want 1.25", q.PriceImpactPct)
	}
	if q.FetchedAt.IsZero() {
		t.Error("FetchedAt should be set")
	}
}

func TestQuoteNoRoute(t *testing.T) {
	src := newTestSource(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	_, err := src.Quote(context.Background(), &QuoteRequest{
		TokenAddress: "0xabc",
		Direction:    DirectionSell,
		AmountIn:     big.NewInt(1),
	})
	if err != errno.ErrNoRoute {
		t.Errorf("err = %v, want ErrNoRoute", err)
	}
}

func TestBuildSwapDecodesCalldata(t *testing.T) {
	src := newTestSource(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		w.Write([]byte(`{"to":"0xrouter","data":"0xdeadbeef","value":"42","gas":210000}`))
	}))

	tx, err := src.BuildSwap(context.Background(), &Quote{
		AmountIn: big.NewInt(1000),
		Route:    []byte(`{}`),
	}, "0xuser", big.NewInt(990))
	if err != nil {
		t.Fatalf("BuildSwap failed: %v", err)
	}
	if len(tx.Data) != 4 || tx.Data[0] != 0xde {
		t.Errorf("calldata not decoded: %x", tx.Data)
	}
	if tx.Value.Cmp(big.NewInt(42)) != 0 {
		t.Errorf("Value = %v, want 42", tx.Value)
	}
	if tx.GasEstimate != 210000 {
		t.Errorf("GasEstimate = %d, want 210000", tx.GasEstimate)
	}
}
