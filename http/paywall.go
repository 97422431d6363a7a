package http

import (
	"encoding/json"
	"fmt"
	"html"

	x402 "github.com/algorandfoundation/x402"
)

// ============================================================================
// Paywall Provider Interfaces
// ============================================================================

// PaywallProvider generates HTML for browser-facing 402 responses.
type PaywallProvider interface {
	GenerateHTML(paymentRequired x402.PaymentRequired, config *PaywallConfig) string
}

// PaywallNetworkHandler handles paywall HTML generation for a specific
// network family. Used with PaywallBuilder to compose network-specific
// handlers into a single PaywallProvider.
type PaywallNetworkHandler interface {
	Supports(requirement x402.PaymentRequirements) bool
	GenerateHTML(requirement x402.PaymentRequirements, paymentRequired x402.PaymentRequired, config *PaywallConfig) string
}

// ============================================================================
// Built-in Network Handlers
// ============================================================================

// AVMPaywallHandler generates paywall HTML for Algorand networks (algorand:*).
type AVMPaywallHandler struct{}

// Supports returns true for Algorand networks (algorand:* CAIP-2 identifiers).
func (h *AVMPaywallHandler) Supports(requirement x402.PaymentRequirements) bool {
	return requirement.Network.Family() == "algorand"
}

// GenerateHTML generates paywall HTML using the built-in AVM template.
func (h *AVMPaywallHandler) GenerateHTML(requirement x402.PaymentRequirements, paymentRequired x402.PaymentRequired, config *PaywallConfig) string {
	return injectPaywallConfig(requirement, paymentRequired, config)
}

// ============================================================================
// Paywall Builder
// ============================================================================

// PaywallBuilder composes multiple PaywallNetworkHandlers into a single
// PaywallProvider.
type PaywallBuilder struct {
	handlers []PaywallNetworkHandler
	config   *PaywallConfig
}

// NewPaywallBuilder creates a new PaywallBuilder.
func NewPaywallBuilder() *PaywallBuilder {
	return &PaywallBuilder{}
}

// WithNetwork adds a network handler to the builder.
func (b *PaywallBuilder) WithNetwork(handler PaywallNetworkHandler) *PaywallBuilder {
	b.handlers = append(b.handlers, handler)
	return b
}

// WithConfig sets default paywall configuration for the builder.
func (b *PaywallBuilder) WithConfig(config *PaywallConfig) *PaywallBuilder {
	b.config = config
	return b
}

// Build creates a PaywallProvider that dispatches to the first matching
// network handler.
func (b *PaywallBuilder) Build() PaywallProvider {
	return &compositePaywallProvider{handlers: b.handlers, config: b.config}
}

type compositePaywallProvider struct {
	handlers []PaywallNetworkHandler
	config   *PaywallConfig
}

func (p *compositePaywallProvider) GenerateHTML(paymentRequired x402.PaymentRequired, config *PaywallConfig) string {
	effectiveConfig := config
	if effectiveConfig == nil {
		effectiveConfig = p.config
	}

	for _, req := range paymentRequired.Accepts {
		for _, handler := range p.handlers {
			if handler.Supports(req) {
				return handler.GenerateHTML(req, paymentRequired, effectiveConfig)
			}
		}
	}

	return ""
}

// DefaultPaywallProvider creates a PaywallProvider with the built-in AVM handler.
func DefaultPaywallProvider() PaywallProvider {
	return NewPaywallBuilder().
		WithNetwork(&AVMPaywallHandler{}).
		Build()
}

// ============================================================================
// AVM Template
// ============================================================================

// AVMPaywallTemplate is the built-in paywall page for Algorand payment
// requirements: a minimal page describing the resource and amount, with a
// placeholder for a wallet-connect widget the integrator supplies.
const AVMPaywallTemplate = `<!DOCTYPE html>
<html>
<head>
	<title>Payment Required</title>
	<meta charset="UTF-8">
	<meta name="viewport" content="width=device-width, initial-scale=1.0">
	<style>
		body { font-family: system-ui, -apple-system, sans-serif; margin: 0; padding: 0; background: #f5f5f5; }
		.container { max-width: 600px; margin: 50px auto; padding: 20px; background: white; border-radius: 8px; box-shadow: 0 2px 4px rgba(0,0,0,0.1); }
		.logo { margin-bottom: 20px; }
		h1 { color: #333; }
		.info { margin: 20px 0; }
		.info p { margin: 10px 0; }
		.amount { font-size: 24px; font-weight: bold; color: #00d1b2; margin: 20px 0; }
		#payment-widget { margin-top: 30px; padding: 20px; border: 1px dashed #ccc; border-radius: 4px; background: #fafafa; text-align: center; color: #666; }
	</style>
</head>
<body>
	<div class="container">
		%s
		<h1>Payment Required</h1>
		<div class="info">
			<p><strong>Resource:</strong> %s</p>
			<p><strong>Network:</strong> %s</p>
			<p class="amount">Amount: $%.2f</p>
		</div>
		<div id="payment-widget"
			data-requirements='%s'
			data-app-name="%s"
			data-testnet="%t">
			<p>Connect an Algorand wallet to continue.</p>
		</div>
	</div>
</body>
</html>`

// injectPaywallConfig fills the AVM paywall template with the payment
// requirement, the 402 envelope, and the integrator's branding config.
func injectPaywallConfig(requirement x402.PaymentRequirements, paymentRequired x402.PaymentRequired, config *PaywallConfig) string {
	appLogo := ""
	appName := ""
	testnet := false

	if config != nil {
		if config.AppLogo != "" {
			appLogo = fmt.Sprintf(`<img src="%s" alt="%s" style="max-width: 200px; margin-bottom: 20px;">`,
				html.EscapeString(config.AppLogo), html.EscapeString(config.AppName))
		}
		appName = config.AppName
		testnet = config.Testnet
	}

	resourceDesc := paymentRequired.Resource
	if resourceDesc == "" {
		resourceDesc = "protected resource"
	}

	requirementsJSON, _ := json.Marshal(paymentRequired)

	return fmt.Sprintf(AVMPaywallTemplate,
		appLogo,
		html.EscapeString(resourceDesc),
		html.EscapeString(string(requirement.Network)),
		displayAmount(requirement),
		html.EscapeString(string(requirementsJSON)),
		html.EscapeString(appName),
		testnet,
	)
}
