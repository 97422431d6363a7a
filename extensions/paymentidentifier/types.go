// Package paymentidentifier implements the "payment_identifier" protocol
// extension: an opaque, client- or server-chosen ID carried in a
// PaymentPayload's Extensions map so a resource server can correlate a
// payment with an application-level order or invoice.
package paymentidentifier

import "regexp"

// PAYMENT_IDENTIFIER is the key under which this extension's payload is
// stored in PaymentPayload.Extensions and PaymentRequired.Extensions.
const PAYMENT_IDENTIFIER = "payment_identifier"

// PAYMENT_ID_MIN_LENGTH and PAYMENT_ID_MAX_LENGTH bound a valid payment ID.
const (
	PAYMENT_ID_MIN_LENGTH = 16
	PAYMENT_ID_MAX_LENGTH = 128
)

// PAYMENT_ID_PATTERN restricts a payment ID to alphanumerics, hyphens, and underscores.
var PAYMENT_ID_PATTERN = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// PaymentIdentifierExtension is the wire shape of the payment_identifier extension.
type PaymentIdentifierExtension struct {
	Info PaymentIdentifierInfo `json:"info"`
}

// PaymentIdentifierInfo carries the ID itself and whether the server demands one.
type PaymentIdentifierInfo struct {
	ID       string `json:"id,omitempty"`
	Required bool   `json:"required"`
}

// ValidationResult reports whether a payment-identifier extension value is well-formed.
type ValidationResult struct {
	Valid  bool
	Errors []string
}
