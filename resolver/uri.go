package resolver

import (
	"context"
	"net/url"
	"regexp"
)

// reURIParam extracts the recognized BIP21 query parameters. Parameters
// other than these three never match the URI rule in the first place.
var reURIParam = regexp.MustCompile(`(amount|label|message)=([^&]+)`)

// handleURI processes a bitcoin: payment URI. An amount or label embedded
// in the URI wins over the separately supplied arguments, but not the other
// way around.
func (r *Resolver) handleURI(_ context.Context,
	req *request) (*ResolvedPayment, error) {

	addr := reURI.FindStringSubmatch(req.recipient)[1]

	props := make(map[string]string)
	for _, match := range reURIParam.FindAllStringSubmatch(req.recipient, -1) {
		value := match[2]
		if unescaped, err := url.QueryUnescape(value); err == nil {
			value = unescaped
		}
		props[match[1]] = value
	}

	satoshis := req.satoshis
	if amount, ok := props["amount"]; ok {
		sats, err := ParseSatoshis(amount)
		if err != nil {
			return nil, err
		}
		satoshis = &sats
	}

	// The label names the receiver, the message describes the payment.
	// Either beats the caller supplied description, the label wins when
	// both are present.
	description := req.description
	if message, ok := props["message"]; ok {
		description = message
	}
	if label, ok := props["label"]; ok {
		description = label
	}

	parsed, err := r.ParseAddress(addr)
	if err != nil {
		return nil, err
	}

	return &ResolvedPayment{
		Target:      &OnChain{Address: parsed, raw: addr},
		Satoshis:    satoshis,
		Description: description,
	}, nil
}
