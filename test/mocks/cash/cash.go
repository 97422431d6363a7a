// Package cash implements a scheme-agnostic mock payment mechanism used to
// exercise the full client/resource-server/facilitator lifecycle in
// integration tests without touching any real chain.
package cash

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	x402 "github.com/algorandfoundation/x402"
)

// ============================================================================
// Cash Scheme Client
// ============================================================================

// SchemeClient implements the client side of the cash payment scheme.
type SchemeClient struct {
	payer string
}

// NewSchemeClient creates a new cash scheme client.
func NewSchemeClient(payer string) *SchemeClient {
	return &SchemeClient{payer: payer}
}

// Scheme returns the payment scheme identifier.
func (c *SchemeClient) Scheme() string {
	return "cash"
}

// CreatePaymentPayload creates a payment payload for the cash scheme.
func (c *SchemeClient) CreatePaymentPayload(ctx context.Context, requirements x402.PaymentRequirements) (map[string]interface{}, error) {
	validUntil := time.Now().Add(time.Duration(requirements.MaxTimeoutSeconds) * time.Second).Unix()

	return map[string]interface{}{
		"signature":  fmt.Sprintf("~%s", c.payer),
		"validUntil": strconv.FormatInt(validUntil, 10),
		"name":       c.payer,
	}, nil
}

// ============================================================================
// Cash Scheme Facilitator
// ============================================================================

// SchemeFacilitator implements the facilitator side of the cash payment scheme.
type SchemeFacilitator struct{}

// NewSchemeFacilitator creates a new cash scheme facilitator.
func NewSchemeFacilitator() *SchemeFacilitator {
	return &SchemeFacilitator{}
}

// Scheme returns the payment scheme identifier.
func (f *SchemeFacilitator) Scheme() string {
	return "cash"
}

// Verify verifies a payment payload against requirements.
func (f *SchemeFacilitator) Verify(ctx context.Context, payload x402.PaymentPayload, requirements x402.PaymentRequirements) (x402.VerifyResponse, error) {
	signature, ok := payload.Payload["signature"].(string)
	if !ok {
		return x402.VerifyResponse{IsValid: false, InvalidReason: "missing_signature"}, nil
	}

	name, ok := payload.Payload["name"].(string)
	if !ok {
		return x402.VerifyResponse{IsValid: false, InvalidReason: "missing_name"}, nil
	}

	validUntilStr, ok := payload.Payload["validUntil"].(string)
	if !ok {
		return x402.VerifyResponse{IsValid: false, InvalidReason: "missing_validUntil"}, nil
	}

	expectedSig := fmt.Sprintf("~%s", name)
	if signature != expectedSig {
		return x402.VerifyResponse{IsValid: false, InvalidReason: "invalid_signature"}, nil
	}

	validUntil, err := strconv.ParseInt(validUntilStr, 10, 64)
	if err != nil {
		return x402.VerifyResponse{IsValid: false, InvalidReason: "invalid_validUntil"}, nil
	}

	if validUntil < time.Now().Unix() {
		return x402.VerifyResponse{IsValid: false, InvalidReason: "expired_signature"}, nil
	}

	return x402.VerifyResponse{IsValid: true, Payer: signature}, nil
}

// Settle settles a payment based on the payload and requirements.
func (f *SchemeFacilitator) Settle(ctx context.Context, payload x402.PaymentPayload, requirements x402.PaymentRequirements) (x402.SettleResponse, error) {
	verifyResponse, err := f.Verify(ctx, payload, requirements)
	if err != nil {
		return x402.SettleResponse{Success: false, ErrorReason: err.Error(), Network: requirements.Network}, nil
	}

	if !verifyResponse.IsValid {
		return x402.SettleResponse{
			Success:     false,
			ErrorReason: verifyResponse.InvalidReason,
			Payer:       verifyResponse.Payer,
			Network:     requirements.Network,
		}, nil
	}

	name, _ := payload.Payload["name"].(string)

	return x402.SettleResponse{
		Success:     true,
		Transaction: fmt.Sprintf("%s transferred %s %s to %s", name, requirements.Amount, requirements.Asset, requirements.PayTo),
		Network:     requirements.Network,
		Payer:       verifyResponse.Payer,
	}, nil
}

// GetExtra returns no scheme-chosen metadata for the cash scheme.
func (f *SchemeFacilitator) GetExtra(network x402.Network) map[string]interface{} {
	return nil
}

// GetSigners returns no facilitator-managed addresses for the cash scheme.
func (f *SchemeFacilitator) GetSigners(network x402.Network) []string {
	return nil
}

// ============================================================================
// Cash Scheme Server
// ============================================================================

// SchemeServer implements the resource-server side of the cash payment scheme.
type SchemeServer struct{}

// NewSchemeServer creates a new cash scheme server.
func NewSchemeServer() *SchemeServer {
	return &SchemeServer{}
}

// Scheme returns the payment scheme identifier.
func (s *SchemeServer) Scheme() string {
	return "cash"
}

// ParsePrice parses a price into asset amount format.
func (s *SchemeServer) ParsePrice(price x402.Price, network x402.Network) (x402.AssetAmount, error) {
	if assetAmount, ok := price.(x402.AssetAmount); ok {
		return assetAmount, nil
	}

	if priceMap, ok := price.(map[string]interface{}); ok {
		amount, _ := priceMap["amount"].(string)
		asset, _ := priceMap["asset"].(string)
		if asset == "" {
			asset = "USD"
		}
		return x402.AssetAmount{Amount: amount, Asset: asset}, nil
	}

	if priceStr, ok := price.(string); ok {
		cleanPrice := strings.TrimPrefix(priceStr, "$")
		cleanPrice = strings.TrimSuffix(cleanPrice, " USD")
		cleanPrice = strings.TrimSuffix(cleanPrice, "USD")
		cleanPrice = strings.TrimSpace(cleanPrice)
		return x402.AssetAmount{Amount: cleanPrice, Asset: "USD"}, nil
	}

	if priceNum, ok := price.(float64); ok {
		return x402.AssetAmount{Amount: fmt.Sprintf("%.2f", priceNum), Asset: "USD"}, nil
	}

	if priceInt, ok := price.(int); ok {
		return x402.AssetAmount{Amount: strconv.Itoa(priceInt), Asset: "USD"}, nil
	}

	return x402.AssetAmount{}, fmt.Errorf("invalid price format: %v", price)
}

// EnhancePaymentRequirements enhances payment requirements with cash-specific details.
func (s *SchemeServer) EnhancePaymentRequirements(
	ctx context.Context,
	requirements x402.PaymentRequirements,
	supportedKind x402.SupportedKind,
	facilitatorExtensions []string,
) (x402.PaymentRequirements, error) {
	return requirements, nil
}

// ============================================================================
// Cash Facilitator Client
// ============================================================================

// FacilitatorClient wraps a local facilitator for the cash scheme.
type FacilitatorClient struct {
	facilitator *x402.X402Facilitator
}

// NewFacilitatorClient creates a new cash facilitator client.
func NewFacilitatorClient(facilitator *x402.X402Facilitator) *FacilitatorClient {
	return &FacilitatorClient{facilitator: facilitator}
}

// Verify verifies a payment payload against requirements.
func (c *FacilitatorClient) Verify(ctx context.Context, payload x402.PaymentPayload, requirements x402.PaymentRequirements) (x402.VerifyResponse, error) {
	return c.facilitator.Verify(ctx, payload, requirements)
}

// Settle settles a payment based on the payload and requirements.
func (c *FacilitatorClient) Settle(ctx context.Context, payload x402.PaymentPayload, requirements x402.PaymentRequirements) (x402.SettleResponse, error) {
	return c.facilitator.Settle(ctx, payload, requirements)
}

// GetSupported gets supported payment kinds and extensions.
func (c *FacilitatorClient) GetSupported(ctx context.Context) (x402.SupportedResponse, error) {
	return c.facilitator.GetSupported(), nil
}

// ============================================================================
// Helper Functions
// ============================================================================

// BuildPaymentRequirements creates a payment requirements object for the cash scheme.
func BuildPaymentRequirements(payTo string, asset string, amount string) x402.PaymentRequirements {
	return x402.PaymentRequirements{
		Scheme:            "cash",
		Network:           "x402:cash",
		Asset:             asset,
		Amount:            amount,
		PayTo:             payTo,
		MaxTimeoutSeconds: 1000,
	}
}
