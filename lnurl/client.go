package lnurl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/lightningnetwork/lnd/lnwire"
	"github.com/lightningnetwork/lnd/zpay32"
)

const (
	// DefaultRequestTimeout is the default timeout for individual HTTP
	// requests to an LNURL service.
	DefaultRequestTimeout = 30 * time.Second

	// maxResponseSize caps how much of a service response is read. LNURL
	// payloads are tiny, anything beyond this is garbage.
	maxResponseSize = 1 << 20

	// amountMatchTolerance is the maximum difference accepted between
	// the amount requested from a pay callback and the amount embedded
	// in the invoice it returns. The threshold is a flat 1,000,000 msat
	// regardless of the payment size.
	amountMatchTolerance = lnwire.MilliSatoshi(1_000_000)

	statusError = "ERROR"
	statusOK    = "OK"
)

var (
	// ErrProtocol is returned for transport failures, malformed
	// responses and semantic violations of the LNURL protocol.
	ErrProtocol = errors.New("lnurl protocol error")

	// ErrService wraps an error response the service reported itself.
	// The service supplied reason is surfaced verbatim.
	ErrService = errors.New("lnurl service reported an error")

	// ErrAmountOutOfBounds is returned when a candidate amount lies
	// outside the bounds advertised by the service. It is raised before
	// any callback request is issued.
	ErrAmountOutOfBounds = errors.New("amount outside the permitted bounds")

	// ErrAmountMismatch is returned when a pay callback hands back an
	// invoice whose embedded amount disagrees with the requested one by
	// more than the fixed tolerance.
	ErrAmountMismatch = errors.New("invoice amount does not match the " +
		"requested amount")

	// ErrUnsupportedFlow is returned for LNURL channel requests.
	ErrUnsupportedFlow = errors.New("lnurl channel requests are not " +
		"supported")
)

// Config holds the configuration of an LNURL client.
type Config struct {
	// ChainParams identifies the network returned invoices must belong
	// to.
	ChainParams *chaincfg.Params

	// RequestTimeout is the timeout for individual HTTP requests.
	RequestTimeout time.Duration
}

// DefaultConfig returns a mainnet config with default values populated.
func DefaultConfig() *Config {
	return &Config{
		ChainParams:    &chaincfg.MainNetParams,
		RequestTimeout: DefaultRequestTimeout,
	}
}

// Client resolves LNURL endpoints. All methods issue blocking HTTP requests
// on the calling goroutine; the client itself holds no mutable state, so a
// single instance can serve concurrent callers.
type Client struct {
	cfg *Config

	httpClient *http.Client
}

// NewClient creates a new LNURL client with the given configuration.
func NewClient(cfg *Config) *Client {
	if cfg.ChainParams == nil {
		cfg.ChainParams = &chaincfg.MainNetParams
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

// CheckBounds validates that amount lies within [min, max], inclusive.
// There is no silent clamping: out of range amounts are a hard error naming
// the offending value and both bounds.
func CheckBounds(amount, min, max lnwire.MilliSatoshi) error {
	if amount < min || amount > max {
		return fmt.Errorf("%w: %d msat is not within [%d, %d] msat",
			ErrAmountOutOfBounds, uint64(amount), uint64(min),
			uint64(max))
	}

	return nil
}

// Fetch issues the first GET of an LNURL flow and decodes the tagged
// response. The returned Action is either a *PayRequest or a
// *WithdrawRequest; channel requests and service side errors are reported
// as errors.
func (c *Client) Fetch(ctx context.Context, endpoint string) (Action, error) {
	log.Debugf("Resolving lnurl endpoint %s", endpoint)

	body, err := c.doGet(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	env, err := decodeEnvelope(body)
	if err != nil {
		return nil, err
	}

	switch env.Tag {
	case TagPay:
		var pay PayRequest
		if err := json.Unmarshal(body, &pay); err != nil {
			return nil, fmt.Errorf("%w: malformed pay "+
				"response: %v", ErrProtocol, err)
		}
		if pay.Callback == "" {
			return nil, fmt.Errorf("%w: pay response without "+
				"a callback", ErrProtocol)
		}

		return &pay, nil

	case TagWithdraw:
		var withdraw WithdrawRequest
		if err := json.Unmarshal(body, &withdraw); err != nil {
			return nil, fmt.Errorf("%w: malformed withdraw "+
				"response: %v", ErrProtocol, err)
		}
		if withdraw.Callback == "" {
			return nil, fmt.Errorf("%w: withdraw response "+
				"without a callback", ErrProtocol)
		}

		return &withdraw, nil

	case TagChannel:
		return nil, ErrUnsupportedFlow

	default:
		return nil, fmt.Errorf("%w: unknown response tag %q",
			ErrProtocol, env.Tag)
	}
}

// FetchInvoice completes the pay flow: it bounds checks the amount, calls
// the service callback and decodes and validates the invoice it returns.
// No callback request is issued for an out of bounds amount.
func (c *Client) FetchInvoice(ctx context.Context, pay *PayRequest,
	amount lnwire.MilliSatoshi, comment string) (*zpay32.Invoice, string,
	error) {

	err := CheckBounds(amount, pay.MinSendable, pay.MaxSendable)
	if err != nil {
		return nil, "", err
	}

	callback, err := url.Parse(pay.Callback)
	if err != nil {
		return nil, "", fmt.Errorf("%w: invalid callback %q: %v",
			ErrProtocol, pay.Callback, err)
	}

	query := callback.Query()
	query.Set("amount", strconv.FormatUint(uint64(amount), 10))
	if comment != "" && pay.CommentAllowed > 0 {
		if int64(len(comment)) > pay.CommentAllowed {
			comment = comment[:pay.CommentAllowed]
		}
		query.Set("comment", comment)
	}
	callback.RawQuery = query.Encode()

	body, err := c.doGet(ctx, callback.String())
	if err != nil {
		return nil, "", err
	}

	if _, err := decodeEnvelope(body); err != nil {
		return nil, "", err
	}

	var resp invoiceResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, "", fmt.Errorf("%w: malformed invoice "+
			"response: %v", ErrProtocol, err)
	}
	if resp.PR == "" {
		return nil, "", fmt.Errorf("%w: invoice response without "+
			"an invoice", ErrProtocol)
	}

	invoice, err := zpay32.Decode(
		strings.ToLower(resp.PR), c.cfg.ChainParams,
	)
	if err != nil {
		return nil, "", fmt.Errorf("%w: failed to parse the "+
			"invoice %s: %v", ErrProtocol, resp.PR, err)
	}

	// The service must invoice (nearly) the amount we asked for. The
	// tolerance is a fixed absolute threshold, not a relative one.
	if invoice.MilliSat != nil {
		diff := int64(*invoice.MilliSat) - int64(amount)
		if diff < 0 {
			diff = -diff
		}
		if diff > int64(amountMatchTolerance) {
			return nil, "", fmt.Errorf("%w: invoice pays %d "+
				"msat, requested %d msat", ErrAmountMismatch,
				uint64(*invoice.MilliSat), uint64(amount))
		}
	}

	return invoice, resp.PR, nil
}

// Withdraw triggers the k1 callback of a previously resolved withdraw
// request, handing the service the invoice it should pay.
func (c *Client) Withdraw(ctx context.Context, callbackURL, k1,
	invoice string, amount lnwire.MilliSatoshi) error {

	callback, err := url.Parse(callbackURL)
	if err != nil {
		return fmt.Errorf("%w: invalid callback %q: %v", ErrProtocol,
			callbackURL, err)
	}

	query := callback.Query()
	query.Set("k1", k1)
	query.Set("pr", invoice)
	query.Set("amount", strconv.FormatUint(uint64(amount), 10))
	callback.RawQuery = query.Encode()

	body, err := c.doGet(ctx, callback.String())
	if err != nil {
		return err
	}

	env, err := decodeEnvelope(body)
	if err != nil {
		return err
	}
	if env.Status != statusOK {
		return fmt.Errorf("%w: unexpected callback status %q",
			ErrProtocol, env.Status)
	}

	log.Infof("Withdraw callback accepted for %d msat", uint64(amount))

	return nil
}

// decodeEnvelope decodes the status/tag envelope shared by all service
// responses and surfaces service reported errors verbatim.
func decodeEnvelope(body []byte) (*envelope, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: malformed response: %v",
			ErrProtocol, err)
	}

	if env.Status == statusError {
		return nil, fmt.Errorf("%w: %s", ErrService, env.Reason)
	}

	return &env, nil
}

// doGet performs a GET request and returns the response body.
func (c *Client) doGet(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(
		ctx, http.MethodGet, rawURL, nil,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create request: %v",
			ErrProtocol, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: request to %s failed: %v",
			ErrProtocol, rawURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %v",
			ErrProtocol, err)
	}

	if resp.StatusCode != http.StatusOK {
		// Some services report protocol errors with a non-200 status
		// but still include the regular error envelope.
		var env envelope
		if json.Unmarshal(body, &env) == nil &&
			env.Status == statusError {

			return nil, fmt.Errorf("%w: %s", ErrService,
				env.Reason)
		}

		return nil, fmt.Errorf("%w: endpoint returned status %d",
			ErrProtocol, resp.StatusCode)
	}

	return body, nil
}
