package lnurl

import (
	"encoding/json"

	"github.com/lightningnetwork/lnd/lnwire"
)

// Tag identifies the LNURL sub-protocol a service response belongs to.
type Tag string

const (
	// TagPay marks a LUD-06 pay request.
	TagPay Tag = "payRequest"

	// TagWithdraw marks a LUD-03 withdraw request.
	TagWithdraw Tag = "withdrawRequest"

	// TagChannel marks a LUD-02 channel request, which this client does
	// not support.
	TagChannel Tag = "channelRequest"
)

// envelope is the part of every service response inspected before the
// payload is decoded into its tagged type.
type envelope struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
	Tag    Tag    `json:"tag"`
}

// Action is a resolved first-request response, either a *PayRequest or a
// *WithdrawRequest.
type Action interface {
	lnurlAction()
}

// PayRequest is the LUD-06 response describing how to request an invoice
// from the service.
type PayRequest struct {
	// Callback is the URL that issues the invoice.
	Callback string `json:"callback"`

	// MinSendable and MaxSendable bound the amount the service is
	// willing to receive, in millisatoshis.
	MinSendable lnwire.MilliSatoshi `json:"minSendable"`
	MaxSendable lnwire.MilliSatoshi `json:"maxSendable"`

	// Metadata is the raw metadata string, a JSON encoded array of
	// mime-type/value pairs.
	Metadata string `json:"metadata"`

	// CommentAllowed is the maximum comment length the callback accepts,
	// zero when comments are not supported.
	CommentAllowed int64 `json:"commentAllowed"`

	Tag Tag `json:"tag"`
}

func (p *PayRequest) lnurlAction() {}

// Description extracts the plain text entry from the metadata array, or ""
// when there is none.
func (p *PayRequest) Description() string {
	var entries [][2]string
	if err := json.Unmarshal([]byte(p.Metadata), &entries); err != nil {
		log.Debugf("Unparseable lnurl-pay metadata: %v", err)
		return ""
	}

	for _, entry := range entries {
		if entry[0] == "text/plain" {
			return entry[1]
		}
	}

	return ""
}

// WithdrawRequest is the LUD-03 response describing a pending withdrawal.
type WithdrawRequest struct {
	// Callback is the URL the k1 challenge response is sent to.
	Callback string `json:"callback"`

	// K1 is the challenge token that must be echoed in the callback.
	K1 string `json:"k1"`

	// DefaultDescription is the description suggested by the service.
	DefaultDescription string `json:"defaultDescription"`

	// MinWithdrawable and MaxWithdrawable bound the amount the service
	// will pay out, in millisatoshis. MinWithdrawable is optional and
	// defaults to zero.
	MinWithdrawable lnwire.MilliSatoshi `json:"minWithdrawable"`
	MaxWithdrawable lnwire.MilliSatoshi `json:"maxWithdrawable"`

	Tag Tag `json:"tag"`
}

func (w *WithdrawRequest) lnurlAction() {}

// invoiceResponse is the second LUD-06 response carrying the invoice.
type invoiceResponse struct {
	PR     string          `json:"pr"`
	Routes json.RawMessage `json:"routes"`
}
