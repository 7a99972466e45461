package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const (
	// DefaultRateURL is the quote API the exchange rate is fetched from.
	DefaultRateURL = "https://pro-api.coinmarketcap.com"

	// DefaultRateCurrency is the fiat currency quotes are converted to.
	DefaultRateCurrency = "CHF"

	// defaultRateTimeout bounds a single quote request.
	defaultRateTimeout = 15 * time.Second
)

// ErrNoRateBackend is returned when an exchange rate is requested but no
// rate client is configured.
var ErrNoRateBackend = errors.New("no exchange rate backend configured")

// RateConfig configures the fiat exchange rate lookup.
type RateConfig struct {
	// URL is the base URL of the quote API.
	URL string

	// APIKey authenticates against the quote API.
	APIKey string

	// Currency is the fiat currency to convert to.
	Currency string

	// RequestTimeout is the timeout for individual HTTP requests.
	RequestTimeout time.Duration
}

// DefaultRateConfig returns a config pointed at the public CoinMarketCap
// instance, converting to CHF. The API key still has to be supplied.
func DefaultRateConfig() *RateConfig {
	return &RateConfig{
		URL:            DefaultRateURL,
		Currency:       DefaultRateCurrency,
		RequestTimeout: defaultRateTimeout,
	}
}

// RateClient fetches the fiat price of BTC from the CoinMarketCap quote
// API. It holds no mutable state, a single instance can serve concurrent
// callers.
type RateClient struct {
	cfg *RateConfig

	httpClient *http.Client
}

// NewRateClient creates a rate client with the given configuration.
func NewRateClient(cfg *RateConfig) *RateClient {
	if cfg.URL == "" {
		cfg.URL = DefaultRateURL
	}
	if cfg.Currency == "" {
		cfg.Currency = DefaultRateCurrency
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = defaultRateTimeout
	}

	return &RateClient{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
	}
}

// rateResponse mirrors the quote payload, reduced to the price field.
type rateResponse struct {
	Data map[string]struct {
		Quote map[string]struct {
			Price float64 `json:"price"`
		} `json:"quote"`
	} `json:"data"`
}

// BTCPrice returns the price of one BTC in the configured fiat currency.
func (c *RateClient) BTCPrice(ctx context.Context) (float64, error) {
	endpoint := c.cfg.URL + "/v1/cryptocurrency/quotes/latest?" +
		"symbol=BTC&convert=" + url.QueryEscape(c.cfg.Currency)

	req, err := http.NewRequestWithContext(
		ctx, http.MethodGet, endpoint, nil,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-CMC_PRO_API_KEY", c.cfg.APIKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch the exchange rate: %w",
			err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("rate API returned status %d: %s",
			resp.StatusCode, string(body))
	}

	var decoded rateResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return 0, fmt.Errorf("failed to decode rate response: %w", err)
	}

	price := decoded.Data["BTC"].Quote[c.cfg.Currency].Price
	if price <= 0 {
		return 0, fmt.Errorf("rate response carries no %s quote "+
			"for BTC", c.cfg.Currency)
	}

	return price, nil
}
