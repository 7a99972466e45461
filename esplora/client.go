// Package esplora implements a thin client for the Esplora REST API as
// exposed by blockstream.info and compatible block explorers. The wallet
// uses it to look up balances and unspent outputs of swept keys and to
// broadcast the resulting transactions.
package esplora

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

const (
	// DefaultURL is the public mainnet Esplora instance queried when no
	// backend is configured.
	DefaultURL = "https://blockstream.info/api"

	// DefaultRequestTimeout is the default timeout for individual HTTP
	// requests.
	DefaultRequestTimeout = 30 * time.Second

	// DefaultMaxRetries is the default number of retries for failed
	// requests.
	DefaultMaxRetries = 2
)

var (
	// ErrNotFound is returned when the API reports that the requested
	// entity does not exist.
	ErrNotFound = errors.New("not found")
)

// Config holds the configuration for the Esplora client.
type Config struct {
	// URL is the base URL of the Esplora API.
	URL string

	// RequestTimeout is the timeout for individual HTTP requests.
	RequestTimeout time.Duration

	// MaxRetries is the maximum number of retries for failed requests.
	MaxRetries int
}

// DefaultConfig returns a config pointed at the public mainnet instance.
func DefaultConfig() *Config {
	return &Config{
		URL:            DefaultURL,
		RequestTimeout: DefaultRequestTimeout,
		MaxRetries:     DefaultMaxRetries,
	}
}

// TxStatus represents transaction confirmation status.
type TxStatus struct {
	Confirmed   bool   `json:"confirmed"`
	BlockHeight int64  `json:"block_height,omitempty"`
	BlockHash   string `json:"block_hash,omitempty"`
	BlockTime   int64  `json:"block_time,omitempty"`
}

// TxVout represents a transaction output.
type TxVout struct {
	ScriptPubKey     string `json:"scriptpubkey"`
	ScriptPubKeyType string `json:"scriptpubkey_type"`
	ScriptPubKeyAddr string `json:"scriptpubkey_address,omitempty"`
	Value            int64  `json:"value"`
}

// TxInfo represents transaction information from the API.
type TxInfo struct {
	TxID     string   `json:"txid"`
	Version  int32    `json:"version"`
	LockTime uint32   `json:"locktime"`
	Size     int      `json:"size"`
	Weight   int      `json:"weight"`
	Fee      int64    `json:"fee"`
	Vout     []TxVout `json:"vout"`
	Status   TxStatus `json:"status"`
}

// UTXO represents an unspent transaction output.
type UTXO struct {
	TxID   string   `json:"txid"`
	Vout   uint32   `json:"vout"`
	Status TxStatus `json:"status"`
	Value  int64    `json:"value"`
}

// FeeEstimates represents fee estimates from the API. Keys are confirmation
// targets (as strings), values are fee rates in sat/vB.
type FeeEstimates map[string]float64

// Client is an HTTP client for the Esplora REST API. It holds no mutable
// state, a single instance can serve concurrent callers.
type Client struct {
	cfg *Config

	httpClient *http.Client
}

// NewClient creates a new Esplora client with the given configuration.
func NewClient(cfg *Config) *Client {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}

	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
	}
}

// doRequest performs an HTTP request with retries.
func (c *Client) doRequest(ctx context.Context, method, path string,
	body []byte) (*http.Response, error) {

	url := c.cfg.URL + path

	var lastErr error
	for i := 0; i <= c.cfg.MaxRetries; i++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}

		req, err := http.NewRequestWithContext(
			ctx, method, url, reader,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w",
				err)
		}
		if body != nil {
			req.Header.Set("Content-Type", "text/plain")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			if i < c.cfg.MaxRetries {
				time.Sleep(
					time.Duration(i+1) * 100 *
						time.Millisecond,
				)
			}
			continue
		}

		return resp, nil
	}

	return nil, fmt.Errorf("request failed after %d attempts: %w",
		c.cfg.MaxRetries+1, lastErr)
}

// doGet performs a GET request and returns the response body.
func (c *Client) doGet(ctx context.Context, path string) ([]byte, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		return body, nil

	case http.StatusNotFound:
		return nil, ErrNotFound

	default:
		return nil, fmt.Errorf("API returned status %d: %s",
			resp.StatusCode, string(body))
	}
}

// GetTipHeight returns the current blockchain tip height.
func (c *Client) GetTipHeight(ctx context.Context) (int64, error) {
	body, err := c.doGet(ctx, "/blocks/tip/height")
	if err != nil {
		return 0, err
	}

	height, err := strconv.ParseInt(string(body), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse height: %w", err)
	}

	return height, nil
}

// GetTransaction fetches transaction information by txid.
func (c *Client) GetTransaction(ctx context.Context, txid string) (*TxInfo,
	error) {

	body, err := c.doGet(ctx, "/tx/"+txid)
	if err != nil {
		return nil, err
	}

	var info TxInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &info, nil
}

// GetAddressTxs fetches transactions for an address.
func (c *Client) GetAddressTxs(ctx context.Context,
	address string) ([]*TxInfo, error) {

	body, err := c.doGet(ctx, "/address/"+address+"/txs")
	if err != nil {
		return nil, err
	}

	var txs []*TxInfo
	if err := json.Unmarshal(body, &txs); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return txs, nil
}

// GetAddressUTXOs fetches unspent outputs for an address.
func (c *Client) GetAddressUTXOs(ctx context.Context,
	address string) ([]*UTXO, error) {

	body, err := c.doGet(ctx, "/address/"+address+"/utxo")
	if err != nil {
		return nil, err
	}

	var utxos []*UTXO
	if err := json.Unmarshal(body, &utxos); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return utxos, nil
}

// GetFeeEstimates fetches fee estimates for various confirmation targets.
func (c *Client) GetFeeEstimates(ctx context.Context) (FeeEstimates, error) {
	body, err := c.doGet(ctx, "/fee-estimates")
	if err != nil {
		return nil, err
	}

	var estimates FeeEstimates
	if err := json.Unmarshal(body, &estimates); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return estimates, nil
}

// BroadcastTransaction broadcasts a raw transaction to the network. Returns
// the txid on success.
func (c *Client) BroadcastTransaction(ctx context.Context,
	txHex string) (string, error) {

	resp, err := c.doRequest(ctx, http.MethodPost, "/tx", []byte(txHex))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("broadcast failed with status %d: %s",
			resp.StatusCode, string(body))
	}

	log.Infof("Broadcast transaction %s", string(body))

	return string(body), nil
}

// BroadcastTx broadcasts a wire.MsgTx to the network.
func (c *Client) BroadcastTx(ctx context.Context,
	tx *wire.MsgTx) (*chainhash.Hash, error) {

	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return nil, fmt.Errorf("failed to serialize tx: %w", err)
	}

	txid, err := c.BroadcastTransaction(
		ctx, hex.EncodeToString(buf.Bytes()),
	)
	if err != nil {
		return nil, err
	}

	return chainhash.NewHashFromStr(txid)
}
