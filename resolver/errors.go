package resolver

import "errors"

var (
	// ErrUnrecognizedFormat is returned when no classification rule
	// matches the input.
	ErrUnrecognizedFormat = errors.New("unknown input format")

	// ErrMalformedAmount is returned when an amount string cannot be
	// parsed as a decimal BTC value.
	ErrMalformedAmount = errors.New("malformed bitcoin amount")

	// ErrInvalidAddress is returned when an address shaped string fails
	// to decode.
	ErrInvalidAddress = errors.New("invalid bitcoin address")

	// ErrWrongNetwork is returned when an address decodes correctly but
	// does not belong to the mainnet network.
	ErrWrongNetwork = errors.New("address is not a mainnet address")

	// ErrInvalidInvoice is returned when an invoice shaped string fails
	// decoding or signature validation.
	ErrInvalidInvoice = errors.New("invalid lightning invoice")

	// ErrUnsupportedFormat is returned for recognized formats that are
	// deliberately not implemented, currently BOLT12 offers.
	ErrUnsupportedFormat = errors.New("BOLT12 is not supported yet")
)
