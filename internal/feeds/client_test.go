package feeds

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	xerrors "RebalanceChain/internal/errors"
)

func TestNewClientValidation(t *testing.T) {
	if _, err := NewClient(ClientConfig{}); err == nil {
		t.Fatalf("expected error when url is missing")
	}
	if _, err := NewClient(ClientConfig{Definition: FeedDefinition{URL: "https://example.com"}}); err == nil {
		t.Fatalf("expected error when response path is missing")
	}
}

func TestPriceCoingeckoShape(t *testing.T) {
	var captured struct {
		Query  map[string]string
		APIKey string
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured.Query = map[string]string{
			"ids":           r.URL.Query().Get("ids"),
			"vs_currencies": r.URL.Query().Get("vs_currencies"),
		}
		captured.APIKey = r.Header.Get("x-cg-api-key")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ethereum": map[string]any{"usd": 2345.67},
		})
	}))
	defer srv.Close()

	def := DefaultFeedDefinitions().Feeds["coingecko"]
	def.URL = srv.URL

	client, err := NewClient(ClientConfig{Definition: def, APIKey: "test-key", Timeout: time.Second})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	price, err := client.Price(context.Background(), "ETH")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if price != 2345.67 {
		t.Fatalf("unexpected price: %v", price)
	}
	if captured.Query["ids"] != "ethereum" || captured.Query["vs_currencies"] != "usd" {
		t.Fatalf("unexpected query: %+v", captured.Query)
	}
	if captured.APIKey != "test-key" {
		t.Fatalf("api key header not set: %q", captured.APIKey)
	}
}

func TestPriceCoinMarketCapShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-CMC_PRO_API_KEY") != "cmc-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{
				"USDC": map[string]any{
					"quote": map[string]any{
						"USD": map[string]any{"price": 0.9998},
					},
				},
			},
		})
	}))
	defer srv.Close()

	def := DefaultFeedDefinitions().Feeds["coinmarketcap"]
	def.URL = srv.URL

	client, err := NewClient(ClientConfig{Definition: def, APIKey: "cmc-key", Timeout: time.Second})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	price, err := client.Price(context.Background(), "USDC")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if price != 0.9998 {
		t.Fatalf("unexpected price: %v", price)
	}
}

func TestPriceUnsupportedSymbol(t *testing.T) {
	def := DefaultFeedDefinitions().Feeds["coingecko"]

	client, err := NewClient(ClientConfig{Definition: def})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = client.Price(context.Background(), "DOGE")
	if err == nil {
		t.Fatalf("expected unsupported symbol error")
	}
	if xerrors.CodeOf(err) != xerrors.CodeSymbolUnsupported {
		t.Fatalf("unexpected code: %v", xerrors.CodeOf(err))
	}
}

func TestPriceFeedUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	def := DefaultFeedDefinitions().Feeds["coingecko"]
	def.URL = srv.URL

	client, err := NewClient(ClientConfig{Definition: def, Timeout: time.Second})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = client.Price(context.Background(), "ETH")
	if err == nil {
		t.Fatalf("expected feed unavailable error")
	}
	if xerrors.CodeOf(err) != xerrors.CodeFeedUnavailable {
		t.Fatalf("unexpected code: %v", xerrors.CodeOf(err))
	}
}

func TestLoadFeedDefinitionsDefaults(t *testing.T) {
	defs, err := LoadFeedDefinitions("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := defs.Feeds["coingecko"]; !ok {
		t.Fatalf("expected built-in coingecko definition")
	}
	if _, ok := defs.Feeds["coinmarketcap"]; !ok {
		t.Fatalf("expected built-in coinmarketcap definition")
	}
}

func TestLoadFeedDefinitionsFile(t *testing.T) {
	path := t.TempDir() + "/feeds.yaml"
	content := `
feeds:
  coingecko:
    url: https://example.com/price
    response_path: "{id}.usd"
    symbol_ids:
      ETH: ethereum
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	defs, err := LoadFeedDefinitions(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	def, ok := defs.Feeds["coingecko"]
	if !ok {
		t.Fatalf("expected coingecko definition")
	}
	if def.URL != "https://example.com/price" || def.SymbolIDs["ETH"] != "ethereum" {
		t.Fatalf("unexpected definition: %+v", def)
	}
}
