package x402

import "context"

// MoneyParser converts a decimal amount into a chain-native AssetAmount.
// Returning (nil, nil) lets the next parser in the chain try; the scheme's
// default conversion is always the last parser tried.
type MoneyParser func(amount float64, network Network) (*AssetAmount, error)

// SchemeClient is implemented by a client-side scheme handler: given matched
// requirements, it builds and signs the scheme-specific inner payload.
type SchemeClient interface {
	Scheme() string
	CreatePaymentPayload(ctx context.Context, requirements PaymentRequirements) (map[string]interface{}, error)
}

// SchemeServer is implemented by a server-side scheme handler: it resolves a
// route's declared Price into a concrete AssetAmount and enriches
// PaymentRequirements with scheme-specific extras before they go on the wire.
type SchemeServer interface {
	Scheme() string
	ParsePrice(price Price, network Network) (AssetAmount, error)
	EnhancePaymentRequirements(ctx context.Context, requirements PaymentRequirements, supported SupportedKind, extensions []string) (PaymentRequirements, error)
}

// SchemeFacilitator is implemented by a facilitator-side scheme handler: it
// verifies an inner payload against requirements and settles it on-chain.
type SchemeFacilitator interface {
	Scheme() string
	Verify(ctx context.Context, payload PaymentPayload, requirements PaymentRequirements) (VerifyResponse, error)
	Settle(ctx context.Context, payload PaymentPayload, requirements PaymentRequirements) (SettleResponse, error)
	// GetExtra returns scheme-chosen metadata for the supported-kinds catalogue
	// (AVM publishes a rotating feePayer address). Returns nil if none.
	GetExtra(network Network) map[string]interface{}
	// GetSigners returns the facilitator-managed addresses this handler can act as.
	GetSigners(network Network) []string
}

// FacilitatorClient is how a resource server talks to a (possibly remote)
// facilitator: verify, settle, and fetch its supported-kinds catalogue.
type FacilitatorClient interface {
	Verify(ctx context.Context, payload PaymentPayload, requirements PaymentRequirements) (VerifyResponse, error)
	Settle(ctx context.Context, payload PaymentPayload, requirements PaymentRequirements) (SettleResponse, error)
	GetSupported(ctx context.Context) (SupportedResponse, error)
}
