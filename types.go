// Package x402 implements the x402 HTTP micropayment protocol: a 402-based
// handshake in which a resource server advertises acceptable payments, a client
// attaches a signed payment proof to its retried request, and a facilitator
// verifies and settles that proof on-chain before the resource is served.
package x402

import (
	"encoding/json"
	"strings"
)

// Network is a CAIP-2 network identifier: "family:reference", e.g.
// "algorand:SGO1GKSzyE7IEPItTxCByw9x8FmnrCDexi9/cOUJOiI=" or "eip155:1".
type Network string

// Family returns the CAIP-2 namespace part of the network ("algorand", "eip155", ...).
func (n Network) Family() string {
	if i := strings.IndexByte(string(n), ':'); i >= 0 {
		return string(n)[:i]
	}
	return string(n)
}

// IsWildcard reports whether n is a family wildcard pattern ("algorand:*").
func (n Network) IsWildcard() bool {
	return strings.HasSuffix(string(n), ":*")
}

// Matches reports whether this concrete network satisfies pattern, which may be
// an exact CAIP-2 string or a family wildcard ("algorand:*").
func (n Network) Matches(pattern Network) bool {
	if n == pattern {
		return true
	}
	if pattern.IsWildcard() {
		return n.Family() == pattern.Family()
	}
	return false
}

// Price is a user-supplied price: a decimal string/number ("$1.50", 1.5) or an
// already-resolved AssetAmount.
type Price interface{}

// AssetAmount is a resolved chain-native amount of a specific asset.
type AssetAmount struct {
	Asset  string                 `json:"asset"`
	Amount string                 `json:"amount"`
	Extra  map[string]interface{} `json:"extra,omitempty"`
}

// PaymentRequirements describes one offered way to pay for a resource.
type PaymentRequirements struct {
	Scheme            string                 `json:"scheme"`
	Network           Network                `json:"network"`
	Asset             string                 `json:"asset"`
	Amount            string                 `json:"amount"`
	PayTo             string                 `json:"payTo"`
	MaxTimeoutSeconds int                    `json:"maxTimeoutSeconds,omitempty"`
	Extra             map[string]interface{} `json:"extra,omitempty"`
}

// CloneExtra returns a PaymentRequirements with its own copy of Extra, so that
// enrichment (EnhancePaymentRequirements) never mutates a caller's map.
func (r PaymentRequirements) CloneExtra() PaymentRequirements {
	if r.Extra == nil {
		r.Extra = map[string]interface{}{}
		return r
	}
	cp := make(map[string]interface{}, len(r.Extra))
	for k, v := range r.Extra {
		cp[k] = v
	}
	r.Extra = cp
	return r
}

// Equal reports whether two PaymentRequirements name the same offer, per the
// fields findMatching compares: scheme, network, asset, amount, payTo.
func (r PaymentRequirements) Equal(o PaymentRequirements) bool {
	return r.Scheme == o.Scheme && r.Network == o.Network && r.Asset == o.Asset &&
		r.Amount == o.Amount && r.PayTo == o.PayTo
}

// ResourceInfo describes the resource being paid for.
type ResourceInfo struct {
	URL         string `json:"url"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

// PaymentPayload is what the client sends back in the X-PAYMENT header.
// Payload is the scheme-defined inner blob (e.g. ExactAvmPayload.ToMap()).
type PaymentPayload struct {
	X402Version int                    `json:"x402Version"`
	Accepted    PaymentRequirements    `json:"accepted"`
	Resource    string                 `json:"resource,omitempty"`
	Extensions  map[string]interface{} `json:"extensions,omitempty"`
	Payload     map[string]interface{} `json:"payload"`
}

// PaymentRequired is the JSON body of a 402 response.
type PaymentRequired struct {
	X402Version int                    `json:"x402Version"`
	Error       string                 `json:"error,omitempty"`
	Resource    string                 `json:"resource,omitempty"`
	Accepts     []PaymentRequirements  `json:"accepts"`
	Extensions  map[string]interface{} `json:"extensions,omitempty"`
}

// VerifyResponse is the verdict returned by a facilitator's verify operation.
type VerifyResponse struct {
	IsValid        bool   `json:"isValid"`
	Payer          string `json:"payer,omitempty"`
	InvalidReason  string `json:"invalidReason,omitempty"`
	InvalidMessage string `json:"invalidMessage,omitempty"`
}

// SettleResponse is the verdict returned by a facilitator's settle operation.
type SettleResponse struct {
	Success      bool    `json:"success"`
	Transaction  string  `json:"transaction,omitempty"`
	Network      Network `json:"network"`
	Payer        string  `json:"payer,omitempty"`
	ErrorReason  string  `json:"errorReason,omitempty"`
	ErrorMessage string  `json:"errorMessage,omitempty"`
}

// SupportedKind is one entry in a facilitator's supported-kinds catalogue.
type SupportedKind struct {
	X402Version int                    `json:"x402Version"`
	Scheme      string                 `json:"scheme"`
	Network     Network                `json:"network"`
	Extra       map[string]interface{} `json:"extra,omitempty"`
}

// SupportedResponse is the body of the facilitator's GET /supported endpoint.
type SupportedResponse struct {
	Kinds      []SupportedKind `json:"kinds"`
	Extensions []string        `json:"extensions,omitempty"`
	Signers    []string        `json:"signers,omitempty"`
}

// ResourceConfig is route-level payment configuration supplied by the integrator.
// PayTo may be a fixed address or resolved dynamically via PayToFunc.
type ResourceConfig struct {
	Scheme            string
	Network           Network
	Price             Price
	PayTo             string
	PayToFunc         func(ctx PayToContext) (string, error)
	MaxTimeoutSeconds int
}

// PayToContext is what a dynamic PayToFunc is permitted to observe.
type PayToContext struct {
	Resource string
	Method   string
	Headers  map[string][]string
}

// DeepEqual compares two JSON-marshalable values after round-tripping through
// JSON, so that struct identity and map key order never affect the comparison.
func DeepEqual(a, b interface{}) bool {
	aj, err := json.Marshal(a)
	if err != nil {
		return false
	}
	bj, err := json.Marshal(b)
	if err != nil {
		return false
	}
	var an, bn interface{}
	if err := json.Unmarshal(aj, &an); err != nil {
		return false
	}
	if err := json.Unmarshal(bj, &bn); err != nil {
		return false
	}
	an2, _ := json.Marshal(an)
	bn2, _ := json.Marshal(bn)
	return string(an2) == string(bn2)
}
