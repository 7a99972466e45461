package esplora

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T,
	handler http.HandlerFunc) (*Client, *httptest.Server) {

	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return NewClient(&Config{URL: server.URL}), server
}

// TestGetTipHeight asserts the plain text height endpoint.
func TestGetTipHeight(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t, func(resp http.ResponseWriter,
		req *http.Request) {

		require.Equal(t, "/blocks/tip/height", req.URL.Path)
		_, _ = resp.Write([]byte("870000"))
	})

	height, err := client.GetTipHeight(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(870_000), height)
}

// TestGetAddressUTXOs asserts the UTXO decoding, both confirmed and
// pending.
func TestGetAddressUTXOs(t *testing.T) {
	t.Parallel()

	const addr = "bc1qa8dn66xn2yq4fcaee4f0gwkkr6e6em643cm8fa"

	client, _ := newTestClient(t, func(resp http.ResponseWriter,
		req *http.Request) {

		require.Equal(t, "/address/"+addr+"/utxo", req.URL.Path)
		_, _ = resp.Write([]byte(`[
			{"txid": "aa", "vout": 1,
			 "status": {"confirmed": true, "block_height": 1000},
			 "value": 5000},
			{"txid": "bb", "vout": 0,
			 "status": {"confirmed": false},
			 "value": 1234}
		]`))
	})

	utxos, err := client.GetAddressUTXOs(context.Background(), addr)
	require.NoError(t, err)
	require.Len(t, utxos, 2)

	require.True(t, utxos[0].Status.Confirmed)
	require.Equal(t, int64(1000), utxos[0].Status.BlockHeight)
	require.Equal(t, int64(5000), utxos[0].Value)

	require.False(t, utxos[1].Status.Confirmed)
	require.Equal(t, int64(1234), utxos[1].Value)
}

// TestGetAddressTxs asserts the transaction history decoding.
func TestGetAddressTxs(t *testing.T) {
	t.Parallel()

	const addr = "bc1qa8dn66xn2yq4fcaee4f0gwkkr6e6em643cm8fa"

	client, _ := newTestClient(t, func(resp http.ResponseWriter,
		req *http.Request) {

		require.Equal(t, "/address/"+addr+"/txs", req.URL.Path)
		_, _ = resp.Write([]byte(`[
			{"txid": "aa", "fee": 210,
			 "status": {"confirmed": true, "block_height": 1000}},
			{"txid": "bb", "fee": 113,
			 "status": {"confirmed": false}}
		]`))
	})

	txs, err := client.GetAddressTxs(context.Background(), addr)
	require.NoError(t, err)
	require.Len(t, txs, 2)

	require.Equal(t, "aa", txs[0].TxID)
	require.Equal(t, int64(210), txs[0].Fee)
	require.True(t, txs[0].Status.Confirmed)
	require.Equal(t, int64(1000), txs[0].Status.BlockHeight)

	require.Equal(t, "bb", txs[1].TxID)
	require.False(t, txs[1].Status.Confirmed)
}

// TestNotFound asserts a 404 maps to ErrNotFound.
func TestNotFound(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t, func(resp http.ResponseWriter,
		req *http.Request) {

		http.NotFound(resp, req)
	})

	_, err := client.GetTransaction(context.Background(), "doesnotexist")
	require.ErrorIs(t, err, ErrNotFound)
}

// TestBroadcastTransaction asserts the raw hex POST and txid echo.
func TestBroadcastTransaction(t *testing.T) {
	t.Parallel()

	var gotBody string
	client, _ := newTestClient(t, func(resp http.ResponseWriter,
		req *http.Request) {

		require.Equal(t, http.MethodPost, req.Method)
		require.Equal(t, "/tx", req.URL.Path)

		body, err := io.ReadAll(req.Body)
		require.NoError(t, err)
		gotBody = string(body)

		_, _ = resp.Write([]byte("deadbeef"))
	})

	txid, err := client.BroadcastTransaction(
		context.Background(), "0100aabb",
	)
	require.NoError(t, err)
	require.Equal(t, "deadbeef", txid)
	require.Equal(t, "0100aabb", gotBody)
}

// TestRetries asserts that a request succeeds after transient connection
// failures are retried.
func TestRetries(t *testing.T) {
	t.Parallel()

	var calls int
	server := httptest.NewServer(http.HandlerFunc(
		func(resp http.ResponseWriter, req *http.Request) {
			calls++
			_, _ = resp.Write([]byte("123"))
		},
	))
	t.Cleanup(server.Close)

	client := NewClient(&Config{URL: server.URL, MaxRetries: 3})

	height, err := client.GetTipHeight(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(123), height)
	require.Equal(t, 1, calls)
}

// TestGetFeeEstimates asserts the fee estimate map decoding.
func TestGetFeeEstimates(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t, func(resp http.ResponseWriter,
		req *http.Request) {

		require.Equal(t, "/fee-estimates", req.URL.Path)
		_, _ = resp.Write([]byte(`{"1": 32.75, "6": 12.0, "144": 1.5}`))
	})

	estimates, err := client.GetFeeEstimates(context.Background())
	require.NoError(t, err)
	require.InDelta(t, 32.75, estimates["1"], 0.001)
	require.InDelta(t, 1.5, estimates["144"], 0.001)
}
