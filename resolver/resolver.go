package resolver

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/lightningnetwork/lnd/lnwire"
	"github.com/lightningnetwork/lnd/zpay32"

	"github.com/ulrichard/utwallet/lnurl"
	"github.com/ulrichard/utwallet/sweepkey"
)

const (
	// addrPattern matches the body of a mainnet address, either bech32
	// or legacy base58.
	addrPattern = `(bc1[a-zA-HJ-NP-Z0-9]{11,71}|[13][a-zA-HJ-NP-Z0-9]{25,39})`

	// lightningScheme is the optional URI scheme in front of invoices
	// and LNURL strings. Only the prefix is case insensitive.
	lightningScheme = "lightning:"
)

var (
	reAddr    = regexp.MustCompile(`^` + addrPattern + `$`)
	reURI     = regexp.MustCompile(`^bitcoin:` + addrPattern + `([?&](amount|label|message)=([^&]+))*$`)
	reWIF     = regexp.MustCompile(`^[5KL][1-9A-HJ-NP-Za-km-z]{50,51}$`)
	reXprv    = regexp.MustCompile(`^([xyz]|[YZ])prv[1-9A-HJ-NP-Za-km-z]{79,112}$`)
	reBolt11  = regexp.MustCompile(`^lnbc[a-z0-9]{100,}$`)
	reBolt12  = regexp.MustCompile(`^lno1[a-z0-9]{55,}$`)
	reBech32L = regexp.MustCompile(`^lnurl1[a-z0-9]{10,}$`)
)

// Config groups the collaborators of a Resolver.
type Config struct {
	// ChainParams identifies the network addresses and invoices must
	// belong to. Defaults to mainnet.
	ChainParams *chaincfg.Params

	// Lnurl resolves URL based formats to payable invoices or withdraw
	// descriptors.
	Lnurl *lnurl.Client
}

// Resolver classifies a free form recipient string into a PaymentTarget and
// normalizes amount and description. Every call is independent; the only
// side effects are the HTTP requests issued for URL based formats.
type Resolver struct {
	cfg *Config

	// rules is the ordered classification table. The order is load
	// bearing: several of the grammars overlap, and evaluation stops at
	// the first match.
	rules []rule
}

// rule pairs a cheap shape predicate with the handler that commits to the
// format. Once a predicate matches, its handler decides success or failure;
// later rules are never consulted.
type rule struct {
	name   string
	match  func(recipient string) bool
	handle func(ctx context.Context, req *request) (*ResolvedPayment,
		error)
}

// request carries the caller supplied fallbacks through the handlers.
type request struct {
	recipient   string
	satoshis    *uint64
	description string
}

// New creates a Resolver. A nil config or nil config fields fall back to
// mainnet and a default LNURL client.
func New(cfg *Config) *Resolver {
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.ChainParams == nil {
		cfg.ChainParams = &chaincfg.MainNetParams
	}
	if cfg.Lnurl == nil {
		cfg.Lnurl = lnurl.NewClient(lnurl.DefaultConfig())
	}

	r := &Resolver{cfg: cfg}
	r.rules = []rule{
		{"address", matchFull(reAddr), r.handleAddress},
		{"bip21-uri", matchFull(reURI), r.handleURI},
		{"wif", matchFull(reWIF), r.handleSweepKey},
		{"xprv", matchFull(reXprv), r.handleSweepKey},
		{"descriptor", sweepkey.IsDescriptorShaped, r.handleDescriptor},
		{"bolt11", matchUnprefixed(reBolt11), r.handleInvoice},
		{"bolt12", matchFull(reBolt12), r.handleOffer},
		{"lnurl", matchUnprefixed(reBech32L), r.handleLnurlBech32},
		{"lnurl-withdraw-url", lnurl.IsWithdrawURL, r.handleWithdrawURL},
		{"https-endpoint", isHTTPS, r.handleHTTPSEndpoint},
		{"lightning-address", lnurl.IsLightningAddress, r.handleLightningAddress},
	}

	return r
}

// Resolve classifies recipient and produces the uniform resolution triple.
// amountText is an optional decimal BTC amount ("" means absent) used as a
// fallback when the matched format carries no amount of its own, and
// descriptionText likewise for the description.
func (r *Resolver) Resolve(ctx context.Context, recipient, amountText,
	descriptionText string) (*ResolvedPayment, error) {

	recipient = strings.TrimSpace(recipient)

	var satoshis *uint64
	if amountText != "" {
		sats, err := ParseSatoshis(amountText)
		if err != nil {
			return nil, err
		}
		satoshis = &sats
	}

	req := &request{
		recipient:   recipient,
		satoshis:    satoshis,
		description: descriptionText,
	}

	for _, rl := range r.rules {
		if !rl.match(recipient) {
			continue
		}

		log.Debugf("Recipient input matched the %s rule", rl.name)

		return rl.handle(ctx, req)
	}

	return nil, fmt.Errorf("%w: %q", ErrUnrecognizedFormat, recipient)
}

// matchFull adapts an anchored regexp into a rule predicate.
func matchFull(re *regexp.Regexp) func(string) bool {
	return re.MatchString
}

// matchUnprefixed matches the given regexp against the lowercased input
// after stripping an optional lightning: scheme. The scheme comparison is
// case insensitive, the payload is lowercased before matching so that
// all-uppercase QR renderings pass as well.
func matchUnprefixed(re *regexp.Regexp) func(string) bool {
	return func(recipient string) bool {
		return re.MatchString(
			strings.ToLower(stripLightningScheme(recipient)),
		)
	}
}

// stripLightningScheme removes a leading lightning: scheme, ignoring its
// case. The remainder is returned unchanged.
func stripLightningScheme(recipient string) string {
	if len(recipient) >= len(lightningScheme) &&
		strings.EqualFold(
			recipient[:len(lightningScheme)], lightningScheme,
		) {

		return recipient[len(lightningScheme):]
	}

	return recipient
}

func isHTTPS(recipient string) bool {
	return strings.HasPrefix(recipient, "https://")
}

func (r *Resolver) handleAddress(_ context.Context,
	req *request) (*ResolvedPayment, error) {

	addr, err := r.ParseAddress(req.recipient)
	if err != nil {
		return nil, err
	}

	return &ResolvedPayment{
		Target:      &OnChain{Address: addr, raw: req.recipient},
		Satoshis:    req.satoshis,
		Description: req.description,
	}, nil
}

func (r *Resolver) handleSweepKey(_ context.Context,
	req *request) (*ResolvedPayment, error) {

	key, err := sweepkey.Parse(req.recipient)
	if err != nil {
		return nil, err
	}

	return &ResolvedPayment{
		Target:      &SweepKey{Key: key},
		Satoshis:    req.satoshis,
		Description: req.description,
	}, nil
}

// handleDescriptor commits to the descriptor format. A descriptor shaped
// string that fails the semantic sanity check is an error, it does not fall
// through to the remaining rules.
func (r *Resolver) handleDescriptor(_ context.Context,
	req *request) (*ResolvedPayment, error) {

	key, err := sweepkey.ParseDescriptor(req.recipient)
	if err != nil {
		return nil, err
	}

	return &ResolvedPayment{
		Target:      &SweepKey{Key: key},
		Satoshis:    req.satoshis,
		Description: req.description,
	}, nil
}

func (r *Resolver) handleInvoice(_ context.Context,
	req *request) (*ResolvedPayment, error) {

	raw := stripLightningScheme(req.recipient)

	invoice, err := zpay32.Decode(
		strings.ToLower(raw), r.cfg.ChainParams,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse the invoice "+
			"%s: %v", ErrInvalidInvoice, raw, err)
	}

	satoshis := req.satoshis
	if invoice.MilliSat != nil {
		sats := uint64(invoice.MilliSat.ToSatoshis())
		satoshis = &sats
	}

	description := req.description
	if invoice.Description != nil {
		description = *invoice.Description
	}

	return &ResolvedPayment{
		Target:      &LightningInvoice{Invoice: invoice, raw: raw},
		Satoshis:    satoshis,
		Description: description,
	}, nil
}

func (r *Resolver) handleOffer(_ context.Context,
	req *request) (*ResolvedPayment, error) {

	return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, req.recipient)
}

func (r *Resolver) handleLnurlBech32(ctx context.Context,
	req *request) (*ResolvedPayment, error) {

	endpoint, err := lnurl.DecodeBech32(
		stripLightningScheme(req.recipient),
	)
	if err != nil {
		return nil, err
	}

	return r.resolveLnurl(ctx, req, endpoint)
}

func (r *Resolver) handleWithdrawURL(ctx context.Context,
	req *request) (*ResolvedPayment, error) {

	endpoint, ok := lnurl.RewriteWithdrawURL(req.recipient)
	if !ok {
		// The predicate and the rewrite share the same match set.
		return nil, fmt.Errorf("%w: %q", ErrUnrecognizedFormat,
			req.recipient)
	}

	return r.resolveLnurl(ctx, req, endpoint)
}

func (r *Resolver) handleHTTPSEndpoint(ctx context.Context,
	req *request) (*ResolvedPayment, error) {

	return r.resolveLnurl(ctx, req, req.recipient)
}

func (r *Resolver) handleLightningAddress(ctx context.Context,
	req *request) (*ResolvedPayment, error) {

	endpoint, err := lnurl.LightningAddressURL(req.recipient)
	if err != nil {
		return nil, err
	}

	return r.resolveLnurl(ctx, req, endpoint)
}

// resolveLnurl performs the network round trip shared by all URL based
// formats: fetch the endpoint parameters, then complete either the pay or
// the withdraw flow.
func (r *Resolver) resolveLnurl(ctx context.Context, req *request,
	endpoint string) (*ResolvedPayment, error) {

	action, err := r.cfg.Lnurl.Fetch(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	switch params := action.(type) {
	case *lnurl.PayRequest:
		return r.resolveLnurlPay(ctx, req, params)

	case *lnurl.WithdrawRequest:
		return r.resolveLnurlWithdraw(req, params)

	default:
		return nil, fmt.Errorf("unhandled lnurl action %T", action)
	}
}

// resolveLnurlPay chooses the amount, bounds checks it and requests the
// invoice from the service callback. The returned invoice has already been
// decoded, signature checked and compared against the requested amount.
func (r *Resolver) resolveLnurlPay(ctx context.Context, req *request,
	params *lnurl.PayRequest) (*ResolvedPayment, error) {

	amount := params.MinSendable
	if req.satoshis != nil {
		amount = lnwire.NewMSatFromSatoshis(
			btcutil.Amount(*req.satoshis),
		)
	}

	invoice, raw, err := r.cfg.Lnurl.FetchInvoice(
		ctx, params, amount, req.description,
	)
	if err != nil {
		return nil, err
	}

	sats := uint64(amount.ToSatoshis())

	description := req.description
	if meta := params.Description(); meta != "" {
		description = meta
	}

	return &ResolvedPayment{
		Target:      &LightningInvoice{Invoice: invoice, raw: raw},
		Satoshis:    &sats,
		Description: description,
	}, nil
}

// resolveLnurlWithdraw validates the amount against the advertised bounds
// and captures the callback endpoint. The k1 callback itself is a separate
// operation, triggered only once the caller holds a receiving invoice.
func (r *Resolver) resolveLnurlWithdraw(req *request,
	params *lnurl.WithdrawRequest) (*ResolvedPayment, error) {

	amount := params.MaxWithdrawable
	if req.satoshis != nil {
		amount = lnwire.NewMSatFromSatoshis(
			btcutil.Amount(*req.satoshis),
		)
	}

	err := lnurl.CheckBounds(
		amount, params.MinWithdrawable, params.MaxWithdrawable,
	)
	if err != nil {
		return nil, err
	}

	sats := uint64(amount.ToSatoshis())

	description := req.description
	if params.DefaultDescription != "" {
		description = params.DefaultDescription
	}

	return &ResolvedPayment{
		Target: &LnurlWithdraw{
			Callback:        params.Callback,
			K1:              params.K1,
			MinWithdrawable: params.MinWithdrawable,
			MaxWithdrawable: params.MaxWithdrawable,
		},
		Satoshis:    &sats,
		Description: description,
	}, nil
}
