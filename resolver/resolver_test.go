package resolver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ulrichard/utwallet/lnurl"
	"github.com/ulrichard/utwallet/sweepkey"
)

const (
	// testInvoiceNoAmount is an amountless invoice with the description
	// set to a single lightning bolt.
	testInvoiceNoAmount = "lnbc1pjzg3y4sp5t5pqc4w2re6duurq9smwhd78688rwm" +
		"g2hwxhypxn0vqgu9vgjxnspp5z7p6kn5fpnr8zefvhdw90gascnae5a9s2fl" +
		"rwjp45a6tf53gwrrqdq9u2d2zxqr3jscqpjrzjqvp62xyytkuen9rc8asxue" +
		"3fuuzultc89ewwnfxch70zf80yl0gpjzxypyqqxhqqqqqqqqqqqqqqqzqq9q" +
		"9qx3qysgqcnwt6hdzlz3r5k3vqlwcyjrgmyyxrcq7rv304w32q8s6zqe4r7v" +
		"jvvqxq8rk0g8j9udljtr9dw908ye7608z945gpa3h0avudrqtcpsp7zd4mp"

	// testInvoice351877265msat pays 3518772650 pBTC, an amount that does
	// not fall on a whole satoshi.
	testInvoice351877265msat = "lnbc3518772650p1pjzg3x2sp59yemkg0cfmsxmu" +
		"gaesm304av4cx4mrp8q7zl65sses7dya7v725spp52ezaxjly2cvdvzlnyak" +
		"grq8v3gpnc58rtjepwch74gwgx05snvvqd2qw3jhxapqw3jhxapqw3jhxapq" +
		"w3jhxapqw3jhxapqw3jhxapqw3jhxapqw3jhxapqw3jhxapqw3jhxapqw3jh" +
		"xapqw3jhxapqw3jhxapqw3jhxapqw3jhxapqw3jhxapqw3jhxapqw3jhxapq" +
		"w3jhxapqw3jhxapqw3jhxapqw3jhxapqw3jhxapqw3jhxapqw3jhxapqw3jh" +
		"xapqw3jhxapqw3jhxapqw3jhxapqw3jhxapqw3jhxapqw3jhxapqw3jhxapq" +
		"w3jhxapqw3jhxapqw3jhxapqw3jhxapqw3jhxapqw3jhxapqw3jhxapqxqr3" +
		"jscqpjrzjq032f2wvt88a4lpgxa3nlxuuzd6xmm5azq8np92afzqnsfvv09q" +
		"k6za0p5qqjdgqqqqqqqqqqqqqqqqqyu9qx3qysgq8v099gx9mlh9fvs3l0n0" +
		"qlgka7kt0en8kca659maxy3kuww9y4l3utddc3yrx24hs2jwfyx8h0w2t6xl" +
		"tetqzd4a0mlpqwjz2mp5stsqvat45l"

	testXprv = "xprv9z1Nt86QQeoGXTjrvKgbFT924JeV1qmo2QV6m8YYTWkaVVWNc3nm" +
		"eTTKsoq2PKVMfQLUKchQbazkT5FqLo4BUC2P2rVFmDnE46QBNjiAsLP"
)

func resolve(t *testing.T, recipient, amount,
	description string) *ResolvedPayment {

	t.Helper()

	payment, err := New(nil).Resolve(
		context.Background(), recipient, amount, description,
	)
	require.NoError(t, err)

	return payment
}

// TestResolveUnrecognized asserts that input matching no format fails with
// the unrecognized format error.
func TestResolveUnrecognized(t *testing.T) {
	t.Parallel()

	for _, recipient := range []string{"", "1234567890", "hello world"} {
		_, err := New(nil).Resolve(
			context.Background(), recipient, "", "",
		)
		require.ErrorIs(t, err, ErrUnrecognizedFormat, recipient)
	}
}

// TestResolveLegacyAddress asserts resolution of a base58 address with
// caller supplied amount and description.
func TestResolveLegacyAddress(t *testing.T) {
	t.Parallel()

	const addr = "3M5f673Ler6iJbatJNvex7EYANRsydSQXE"

	payment := resolve(t, addr, "1", "d")

	target, ok := payment.Target.(*OnChain)
	require.True(t, ok)
	require.Equal(t, addr, target.String())
	require.Equal(t, addr, target.Address.EncodeAddress())

	require.NotNil(t, payment.Satoshis)
	require.Equal(t, uint64(100_000_000), *payment.Satoshis)
	require.Equal(t, "d", payment.Description)

	require.Equal(t, addr+";1;d", payment.DisplayCSV())
}

// TestResolveBech32Address asserts resolution of a native segwit address
// and that a tiny amount survives the display round trip.
func TestResolveBech32Address(t *testing.T) {
	t.Parallel()

	const addr = "bc1qa8dn66xn2yq4fcaee4f0gwkkr6e6em643cm8fa"

	payment := resolve(t, addr, "0.0000001", "")

	target, ok := payment.Target.(*OnChain)
	require.True(t, ok)
	require.Equal(t, addr, target.String())

	require.NotNil(t, payment.Satoshis)
	require.Equal(t, uint64(10), *payment.Satoshis)
	require.Equal(t, addr+";0.0000001;", payment.DisplayCSV())
}

// TestResolveURI asserts that BIP21 URI parameters win over the caller
// supplied fallbacks.
func TestResolveURI(t *testing.T) {
	t.Parallel()

	const addr = "bc1qa8dn66xn2yq4fcaee4f0gwkkr6e6em643cm8fa"

	payment := resolve(t, "bitcoin:"+addr+"?amount=100", "", "")
	require.NotNil(t, payment.Satoshis)
	require.Equal(t, uint64(10_000_000_000), *payment.Satoshis)
	require.Equal(t, addr+";100;", payment.DisplayCSV())

	payment = resolve(
		t, "bitcoin:"+addr+"?label=test&amount=100", "", "",
	)
	require.NotNil(t, payment.Satoshis)
	require.Equal(t, uint64(10_000_000_000), *payment.Satoshis)
	require.Equal(t, "test", payment.Description)
	require.Equal(t, addr+";100;test", payment.DisplayCSV())
}

// TestResolveInvoiceNoAmount asserts that an amountless invoice resolves
// with a nil amount and the embedded description, and that the original
// serialization is preserved byte for byte.
func TestResolveInvoiceNoAmount(t *testing.T) {
	t.Parallel()

	payment := resolve(t, testInvoiceNoAmount, "", "")

	target, ok := payment.Target.(*LightningInvoice)
	require.True(t, ok)
	require.Equal(t, testInvoiceNoAmount, target.String())
	require.Nil(t, target.Invoice.MilliSat)

	require.Nil(t, payment.Satoshis)
	require.Equal(t, "⚡", payment.Description)
	require.Equal(
		t, testInvoiceNoAmount+";;⚡", payment.DisplayCSV(),
	)
}

// TestResolveInvoiceWithAmount asserts that the embedded amount wins and is
// truncated to whole satoshis.
func TestResolveInvoiceWithAmount(t *testing.T) {
	t.Parallel()

	// The caller amount must lose against the embedded one.
	payment := resolve(t, testInvoice351877265msat, "1", "ignored")

	target, ok := payment.Target.(*LightningInvoice)
	require.True(t, ok)
	require.Equal(t, testInvoice351877265msat, target.String())

	// 351877265 msat truncate to 351877 sat.
	require.NotNil(t, payment.Satoshis)
	require.Equal(t, uint64(351_877), *payment.Satoshis)

	description := strings.Repeat("test ", 40)
	require.Equal(t, description, payment.Description)
	require.Equal(
		t,
		testInvoice351877265msat+";0.00351877;"+description,
		payment.DisplayCSV(),
	)
}

// TestResolveInvoiceScheme asserts the lightning: scheme is stripped case
// insensitively and an all uppercase QR payload decodes.
func TestResolveInvoiceScheme(t *testing.T) {
	t.Parallel()

	payment := resolve(
		t, "lightning:"+testInvoiceNoAmount, "", "",
	)
	require.Equal(t, testInvoiceNoAmount, payment.Target.String())

	upper := strings.ToUpper(testInvoiceNoAmount)
	payment = resolve(t, "LIGHTNING:"+upper, "", "")
	require.Equal(t, upper, payment.Target.String())
}

// TestResolveOffer asserts that BOLT12 offers are recognized but rejected
// as unsupported.
func TestResolveOffer(t *testing.T) {
	t.Parallel()

	offers := []string{
		"lno1pgqpvggr53478rgx3s4uttelcy76ssrepm2kg0ead5n7tc6dvlkj4m" +
			"qkeens",
		"lno1pqpzwrc2936x2um5yp6x2um5yp6x2um5yp6x2um5yp6x2um5yp6x2u" +
			"m5yp6x2um5yp6x2um5zcss8frtuwxsdrptckhnlsfa4pq8jrk4vsln" +
			"6mf8uh356eld9tkpdnn8",
	}
	for _, offer := range offers {
		_, err := New(nil).Resolve(
			context.Background(), offer, "", "",
		)
		require.ErrorIs(t, err, ErrUnsupportedFormat)
	}
}

// TestResolveSweepKeys asserts that loose key material classifies as a
// sweep target.
func TestResolveSweepKeys(t *testing.T) {
	t.Parallel()

	for _, material := range []string{
		"KxWvpvpY9C5weJGWpUMQqHt88Xktt7nZDZPHbpJjEuUaDgeMHJuw",
		"5HueCGU8rMjxEXxiPuD5BDku4MkFqeZyd4dZ1jvhTVqvbTLvyTJ",
		testXprv,
	} {
		payment := resolve(t, material, "", "")

		target, ok := payment.Target.(*SweepKey)
		require.True(t, ok, material)
		require.Equal(t, material, target.String())
	}
}

// TestResolveBadDescriptor asserts that a descriptor shaped string failing
// the sanity check is a hard error, not an unrecognized format.
func TestResolveBadDescriptor(t *testing.T) {
	t.Parallel()

	_, err := New(nil).Resolve(
		context.Background(), "pkh(pkh("+testXprv+"))", "", "",
	)
	require.ErrorIs(t, err, sweepkey.ErrInvalidDescriptor)
	require.NotErrorIs(t, err, ErrUnrecognizedFormat)
}

// TestResolveDescriptor asserts that a sane descriptor resolves to a sweep
// target.
func TestResolveDescriptor(t *testing.T) {
	t.Parallel()

	desc := "pkh(" + testXprv + ")"
	payment := resolve(t, desc, "", "")

	target, ok := payment.Target.(*SweepKey)
	require.True(t, ok)
	require.Equal(t, desc, target.String())
}

// TestParseAddressWrongNetwork asserts that a well formed address of
// another network reports the wrong network error.
func TestParseAddressWrongNetwork(t *testing.T) {
	t.Parallel()

	r := New(nil)

	_, err := r.ParseAddress(
		"tb1qw508d6qejxtdg4y5r3zarvary0c5xw7kxpjzsx",
	)
	require.ErrorIs(t, err, ErrWrongNetwork)

	_, err = r.ParseAddress("bc1qqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqq")
	require.ErrorIs(t, err, ErrInvalidAddress)
}

// TestResolveMalformedAmount asserts that a junk fallback amount aborts
// resolution before any classification.
func TestResolveMalformedAmount(t *testing.T) {
	t.Parallel()

	_, err := New(nil).Resolve(
		context.Background(),
		"bc1qa8dn66xn2yq4fcaee4f0gwkkr6e6em643cm8fa", "abc", "",
	)
	require.ErrorIs(t, err, ErrMalformedAmount)
}

// TestResolveIdempotent asserts that resolving the display form of an
// address resolution yields the same result again.
func TestResolveIdempotent(t *testing.T) {
	t.Parallel()

	first := resolve(
		t, "bc1qa8dn66xn2yq4fcaee4f0gwkkr6e6em643cm8fa",
		"0.0000001", "tip",
	)

	parts := strings.SplitN(first.DisplayCSV(), ";", 3)
	second := resolve(t, parts[0], parts[1], parts[2])

	require.Equal(t, first.DisplayCSV(), second.DisplayCSV())
}

// TestResolveLnurlPay runs the full pay flow against a stub service: the
// endpoint parameters are fetched, the callback produces an invoice and the
// metadata description wins.
func TestResolveLnurlPay(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()

	mux.HandleFunc("/lnurlp", func(resp http.ResponseWriter,
		req *http.Request) {

		_, _ = resp.Write([]byte(`{
			"tag": "payRequest",
			"callback": "` + server.URL + `/cb",
			"minSendable": 351877265,
			"maxSendable": 1000000000,
			"metadata": "[[\"text/plain\",\"donation\"]]"
		}`))
	})
	mux.HandleFunc("/cb", func(resp http.ResponseWriter,
		req *http.Request) {

		require.Equal(
			t, "351877265", req.URL.Query().Get("amount"),
		)

		_, _ = resp.Write([]byte(
			`{"pr": "` + testInvoice351877265msat +
				`", "routes": []}`,
		))
	})

	encoded, err := lnurl.EncodeBech32(server.URL + "/lnurlp")
	require.NoError(t, err)

	// No caller amount: the advertised minimum is requested.
	payment := resolve(t, encoded, "", "")

	target, ok := payment.Target.(*LightningInvoice)
	require.True(t, ok)
	require.Equal(t, testInvoice351877265msat, target.String())

	require.NotNil(t, payment.Satoshis)
	require.Equal(t, uint64(351_877), *payment.Satoshis)
	require.Equal(t, "donation", payment.Description)
}

// TestResolveLnurlWithdraw asserts that a withdraw endpoint resolves to the
// deferred callback descriptor with the advertised maximum as the default
// amount.
func TestResolveLnurlWithdraw(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()

	mux.HandleFunc("/withdraw", func(resp http.ResponseWriter,
		req *http.Request) {

		_, _ = resp.Write([]byte(`{
			"tag": "withdrawRequest",
			"callback": "` + server.URL + `/cb",
			"k1": "a1b2c3",
			"defaultDescription": "card balance",
			"minWithdrawable": 1000,
			"maxWithdrawable": 250000000
		}`))
	})

	encoded, err := lnurl.EncodeBech32(server.URL + "/withdraw")
	require.NoError(t, err)

	payment := resolve(t, encoded, "", "")

	target, ok := payment.Target.(*LnurlWithdraw)
	require.True(t, ok)
	require.Equal(t, server.URL+"/cb", target.Callback)
	require.Equal(t, "a1b2c3", target.K1)

	// 250_000_000 msat default to 250_000 sat.
	require.NotNil(t, payment.Satoshis)
	require.Equal(t, uint64(250_000), *payment.Satoshis)
	require.Equal(t, "card balance", payment.Description)
}

// TestResolveLnurlServiceError asserts that a service reported error is
// surfaced verbatim.
func TestResolveLnurlServiceError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(
		func(resp http.ResponseWriter, req *http.Request) {
			_, _ = resp.Write([]byte(
				`{"status": "ERROR",
				  "reason": "card is empty"}`,
			))
		},
	))
	defer server.Close()

	encoded, err := lnurl.EncodeBech32(server.URL)
	require.NoError(t, err)

	_, err = New(nil).Resolve(context.Background(), encoded, "", "")
	require.ErrorIs(t, err, lnurl.ErrService)
	require.Contains(t, err.Error(), "card is empty")
}
