package price

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Quote is the unit price of an asset in USD and the local currency.
type Quote struct {
	USD   float64 `json:"usd"`
	Local float64 `json:"local"`
}

// Feed fetches quotes for a batch of price-feed identifiers.
type Feed interface {
	Prices(ctx context.Context, ids []string) (map[string]Quote, error)
}

// HTTPFeed queries a CoinGecko compatible simple price endpoint.
type HTTPFeed struct {
	baseURL       string
	apiKey        string
	localCurrency string
	client        *http.Client
}

// NewHTTPFeed creates a feed client for baseURL.
func NewHTTPFeed(baseURL, apiKey, localCurrency string, timeout time.Duration) *HTTPFeed {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPFeed{
		baseURL:       strings.TrimRight(baseURL, "/"),
		apiKey:        apiKey,
		localCurrency: strings.ToLower(localCurrency),
		client:        &http.Client{Timeout: timeout},
	}
}

// Prices issues one request for all ids.
func (f *HTTPFeed) Prices(ctx context.Context, ids []string) (map[string]Quote, error) {
	if len(ids) == 0 {
		return map[string]Quote{}, nil
	}

	query := url.Values{}
	query.Set("ids", strings.Join(ids, ","))
	query.Set("vs_currencies", "usd,"+f.localCurrency)
	endpoint := f.baseURL + "/simple/price?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build price request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if f.apiKey != "" {
		req.Header.Set("x-cg-demo-api-key", f.apiKey)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("price request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("price request: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload map[string]map[string]float64
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode price response: %w", err)
	}

	out := make(map[string]Quote, len(payload))
	for id, values := range payload {
		usd, ok := values["usd"]
		if !ok {
			continue
		}
		out[id] = Quote{USD: usd, Local: values[f.localCurrency]}
	}
	return out, nil
}
