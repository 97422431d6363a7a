package v1

import (
	"context"
	"fmt"

	x402 "github.com/algorandfoundation/x402"
	"github.com/algorandfoundation/x402/mechanisms/avm"
	"github.com/algorandfoundation/x402/mechanisms/avm/exact"
)

// LegacyPaymentPayload is the V1-shaped payment payload dict.
type LegacyPaymentPayload struct {
	Scheme            string
	Network           string
	MaxAmountRequired string
	PayTo             string
	Asset             string
	MaxTimeoutSeconds int
	Extra             map[string]interface{}
	Payload           map[string]interface{}
	Resource          string
}

// LegacyVerifyResponse is the V1-shaped verify response.
type LegacyVerifyResponse struct {
	IsValid       bool
	InvalidReason string
	Payer         string
}

// LegacySettleResponse is the V1-shaped settle response.
type LegacySettleResponse struct {
	Success     bool
	ErrorReason string
	Transaction string
	Network     string
	Payer       string
}

// FacilitatorScheme wraps the V2 exact.FacilitatorScheme to serve V1 requests.
type FacilitatorScheme struct {
	v2 *exact.FacilitatorScheme
}

// NewFacilitatorScheme creates a V1 facilitator bridge over signer.
func NewFacilitatorScheme(signer avm.FacilitatorSigner) *FacilitatorScheme {
	return &FacilitatorScheme{v2: exact.NewFacilitatorScheme(signer)}
}

// Scheme returns "exact".
func (s *FacilitatorScheme) Scheme() string { return avm.SchemeExact }

// GetSigners translates a V1 network name to CAIP-2 and returns the managed
// fee-payer addresses.
func (s *FacilitatorScheme) GetSigners(network string) ([]string, error) {
	v2Network, ok := avm.V1ToV2NetworkMap[network]
	if !ok {
		return nil, fmt.Errorf("unsupported V1 network: %s", network)
	}
	return s.v2.GetSigners(x402.Network(v2Network)), nil
}

func toV2Requirements(legacy LegacyPaymentRequirements) (x402.PaymentRequirements, error) {
	v2Network, ok := avm.V1ToV2NetworkMap[legacy.Network]
	if !ok {
		return x402.PaymentRequirements{}, fmt.Errorf("unsupported V1 network: %s", legacy.Network)
	}
	return x402.PaymentRequirements{
		Scheme:            legacy.Scheme,
		Network:           x402.Network(v2Network),
		Amount:            legacy.MaxAmountRequired,
		PayTo:             legacy.PayTo,
		Asset:             legacy.Asset,
		MaxTimeoutSeconds: legacy.MaxTimeoutSeconds,
		Extra:             legacy.Extra,
	}, nil
}

func toV2Payload(legacy LegacyPaymentPayload, accepted x402.PaymentRequirements) x402.PaymentPayload {
	return x402.PaymentPayload{
		X402Version: 1,
		Accepted:    accepted,
		Resource:    legacy.Resource,
		Payload:     legacy.Payload,
	}
}

// Verify converts V1 payload/requirements to V2 shape, delegates to the V2
// scheme, and converts the result back to V1 shape.
func (s *FacilitatorScheme) Verify(ctx context.Context, payload LegacyPaymentPayload, requirements LegacyPaymentRequirements) (LegacyVerifyResponse, error) {
	v2Requirements, err := toV2Requirements(requirements)
	if err != nil {
		return LegacyVerifyResponse{}, err
	}
	payloadRequirements := LegacyPaymentRequirements{
		Scheme:            payload.Scheme,
		Network:           payload.Network,
		MaxAmountRequired: payload.MaxAmountRequired,
		PayTo:             payload.PayTo,
		Asset:             payload.Asset,
		MaxTimeoutSeconds: payload.MaxTimeoutSeconds,
		Extra:             payload.Extra,
	}
	v2Accepted, err := toV2Requirements(payloadRequirements)
	if err != nil {
		return LegacyVerifyResponse{}, err
	}

	v2Payload := toV2Payload(payload, v2Accepted)

	result, err := s.v2.Verify(ctx, v2Payload, v2Requirements)
	if err != nil {
		return LegacyVerifyResponse{}, err
	}

	return LegacyVerifyResponse{
		IsValid:       result.IsValid,
		InvalidReason: result.InvalidReason,
		Payer:         result.Payer,
	}, nil
}

// Settle converts V1 payload/requirements to V2 shape, delegates to the V2
// scheme, and converts the result back to V1 shape, translating the returned
// network back to its legacy name.
func (s *FacilitatorScheme) Settle(ctx context.Context, payload LegacyPaymentPayload, requirements LegacyPaymentRequirements) (LegacySettleResponse, error) {
	v2Requirements, err := toV2Requirements(requirements)
	if err != nil {
		return LegacySettleResponse{}, err
	}
	payloadRequirements := LegacyPaymentRequirements{
		Scheme:            payload.Scheme,
		Network:           payload.Network,
		MaxAmountRequired: payload.MaxAmountRequired,
		PayTo:             payload.PayTo,
		Asset:             payload.Asset,
		MaxTimeoutSeconds: payload.MaxTimeoutSeconds,
		Extra:             payload.Extra,
	}
	v2Accepted, err := toV2Requirements(payloadRequirements)
	if err != nil {
		return LegacySettleResponse{}, err
	}

	v2Payload := toV2Payload(payload, v2Accepted)

	result, err := s.v2.Settle(ctx, v2Payload, v2Requirements)
	if err != nil {
		return LegacySettleResponse{}, err
	}

	responseNetwork := string(result.Network)
	if legacyNetwork, ok := avm.V2ToV1NetworkMap[responseNetwork]; ok {
		responseNetwork = legacyNetwork
	}

	return LegacySettleResponse{
		Success:     result.Success,
		ErrorReason: result.ErrorReason,
		Transaction: result.Transaction,
		Network:     responseNetwork,
		Payer:       result.Payer,
	}, nil
}
