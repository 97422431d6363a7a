// Package v1 bridges the legacy V1 wire protocol to the V2 AVM exact scheme.
// It translates V1 network names and field names (maxAmountRequired -> amount)
// at the boundary and otherwise delegates entirely to the V2 implementation;
// there is no separate V1 verify/settle/construction logic to maintain.
package v1

import (
	"context"
	"fmt"

	x402 "github.com/algorandfoundation/x402"
	"github.com/algorandfoundation/x402/mechanisms/avm"
	"github.com/algorandfoundation/x402/mechanisms/avm/exact"
)

// LegacyPaymentRequirements is the V1-shaped payment requirements dict: a
// legacy network name and maxAmountRequired instead of CAIP-2 network and
// amount.
type LegacyPaymentRequirements struct {
	Scheme            string
	Network           string
	MaxAmountRequired string
	PayTo             string
	Asset             string
	MaxTimeoutSeconds int
	Extra             map[string]interface{}
}

// ClientScheme wraps the V2 exact.ClientScheme to serve V1 requests.
type ClientScheme struct {
	v2 *exact.ClientScheme
}

// NewClientScheme creates a V1 client bridge over a signer and suggested-params
// source, identical to the ones the V2 scheme uses.
func NewClientScheme(signer avm.ClientSigner, suggestedParams exact.SuggestedParamsSource) *ClientScheme {
	return &ClientScheme{v2: exact.NewClientScheme(signer, suggestedParams)}
}

// Scheme returns "exact".
func (s *ClientScheme) Scheme() string { return avm.SchemeExact }

// CreatePaymentPayload converts legacy requirements to V2 shape, builds the
// payment group via the V2 scheme, and returns the inner payload map.
func (s *ClientScheme) CreatePaymentPayload(ctx context.Context, legacy LegacyPaymentRequirements) (map[string]interface{}, error) {
	v2Network, ok := avm.V1ToV2NetworkMap[legacy.Network]
	if !ok {
		return nil, fmt.Errorf("unsupported V1 network: %s", legacy.Network)
	}

	v2Requirements := x402.PaymentRequirements{
		Scheme:            legacy.Scheme,
		Network:           x402.Network(v2Network),
		Amount:            legacy.MaxAmountRequired,
		PayTo:             legacy.PayTo,
		Asset:             legacy.Asset,
		MaxTimeoutSeconds: legacy.MaxTimeoutSeconds,
		Extra:             legacy.Extra,
	}

	return s.v2.CreatePaymentPayload(ctx, v2Requirements)
}
