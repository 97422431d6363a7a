package http

import (
	"context"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	x402 "github.com/algorandfoundation/x402"
)

// ============================================================================
// HTTP Adapter Interface
// ============================================================================

// HTTPAdapter provides framework-agnostic HTTP operations.
// Implement this for each web framework (or net/http directly).
type HTTPAdapter interface {
	GetHeader(name string) string
	GetMethod() string
	GetPath() string
	GetURL() string
	GetAcceptHeader() string
	GetUserAgent() string
}

// ============================================================================
// Configuration Types
// ============================================================================

// PaywallConfig configures the HTML paywall shown to browser requests.
type PaywallConfig struct {
	AppName    string `json:"appName,omitempty"`
	AppLogo    string `json:"appLogo,omitempty"`
	CurrentURL string `json:"currentUrl,omitempty"`
	Testnet    bool   `json:"testnet,omitempty"`
}

// RouteConfig defines payment configuration for an HTTP endpoint.
type RouteConfig struct {
	Scheme            string                 `json:"scheme"`
	PayTo             string                 `json:"payTo"`
	Price             x402.Price             `json:"price"`
	Network           x402.Network           `json:"network"`
	MaxTimeoutSeconds int                    `json:"maxTimeoutSeconds,omitempty"`
	Extra             map[string]interface{} `json:"extra,omitempty"`

	Resource          string `json:"resource,omitempty"`
	Description       string `json:"description,omitempty"`
	MimeType          string `json:"mimeType,omitempty"`
	CustomPaywallHTML string `json:"customPaywallHtml,omitempty"`
}

// RoutesConfig maps route patterns to configurations.
type RoutesConfig map[string]RouteConfig

// CompiledRoute is a parsed route ready for matching.
type CompiledRoute struct {
	Verb   string
	Regex  *regexp.Regexp
	Config RouteConfig
}

// ============================================================================
// Request/Response Types
// ============================================================================

// HTTPRequestContext encapsulates an HTTP request.
type HTTPRequestContext struct {
	Adapter HTTPAdapter
	Path    string
	Method  string
}

// HTTPResponseInstructions tells the framework how to respond.
type HTTPResponseInstructions struct {
	Status  int
	Headers map[string]string
	Body    interface{}
	IsHTML  bool
}

// HTTPProcessResult indicates the result of processing a payment request.
type HTTPProcessResult struct {
	Type                string
	Response            *HTTPResponseInstructions
	PaymentPayload      *x402.PaymentPayload
	PaymentRequirements *x402.PaymentRequirements
}

// Result type constants.
const (
	ResultNoPaymentRequired = "no-payment-required"
	ResultPaymentVerified   = "payment-verified"
	ResultPaymentError      = "payment-error"
)

// ============================================================================
// x402HTTPResourceService
// ============================================================================

// x402HTTPResourceService provides HTTP-specific payment handling on top of
// an X402ResourceServer: route matching, header extraction, and 402/paywall
// response construction.
type x402HTTPResourceService struct {
	*x402.X402ResourceServer
	compiledRoutes  []CompiledRoute
	paywallProvider PaywallProvider
}

// Newx402HTTPResourceService creates a new HTTP resource service.
func Newx402HTTPResourceService(routes RoutesConfig, server *x402.X402ResourceServer) *x402HTTPResourceService {
	service := &x402HTTPResourceService{
		X402ResourceServer: server,
		compiledRoutes:     []CompiledRoute{},
		paywallProvider:    DefaultPaywallProvider(),
	}

	for pattern, config := range routes {
		verb, regex := parseRoutePattern(pattern)
		service.compiledRoutes = append(service.compiledRoutes, CompiledRoute{
			Verb:   verb,
			Regex:  regex,
			Config: config,
		})
	}

	return service
}

// SetPaywallProvider overrides the paywall HTML generator.
func (s *x402HTTPResourceService) SetPaywallProvider(provider PaywallProvider) {
	s.paywallProvider = provider
}

// ProcessHTTPRequest handles an HTTP request and returns the processing result.
func (s *x402HTTPResourceService) ProcessHTTPRequest(ctx context.Context, reqCtx HTTPRequestContext, paywallConfig *PaywallConfig) HTTPProcessResult {
	routeConfig := s.getRouteConfig(reqCtx.Path, reqCtx.Method)
	if routeConfig == nil {
		return HTTPProcessResult{Type: ResultNoPaymentRequired}
	}

	paymentPayload, err := s.extractPayment(reqCtx.Adapter)
	if err != nil {
		return HTTPProcessResult{
			Type: ResultPaymentError,
			Response: &HTTPResponseInstructions{
				Status:  400,
				Headers: map[string]string{"Content-Type": "application/json"},
				Body:    map[string]string{"error": err.Error()},
			},
		}
	}

	resourceConfig := x402.ResourceConfig{
		Scheme:            routeConfig.Scheme,
		Network:           routeConfig.Network,
		Price:             routeConfig.Price,
		PayTo:             routeConfig.PayTo,
		MaxTimeoutSeconds: routeConfig.MaxTimeoutSeconds,
	}
	resourceInfo := x402.ResourceInfo{
		URL:         reqCtx.Adapter.GetURL(),
		Description: routeConfig.Description,
		MimeType:    routeConfig.MimeType,
	}

	result, err := s.X402ResourceServer.ProcessPaymentRequest(ctx, paymentPayload, resourceConfig, resourceInfo, routeConfig.Extra)
	if err != nil {
		return HTTPProcessResult{
			Type: ResultPaymentError,
			Response: &HTTPResponseInstructions{
				Status:  500,
				Headers: map[string]string{"Content-Type": "application/json"},
				Body:    map[string]string{"error": err.Error()},
			},
		}
	}

	if !result.Success {
		paymentRequired := *result.RequiresPayment
		return HTTPProcessResult{
			Type: ResultPaymentError,
			Response: s.createHTTPResponse(
				paymentRequired,
				s.isWebBrowser(reqCtx.Adapter),
				paywallConfig,
				routeConfig.CustomPaywallHTML,
			),
		}
	}

	return HTTPProcessResult{
		Type:                ResultPaymentVerified,
		PaymentPayload:      paymentPayload,
		PaymentRequirements: &paymentPayload.Accepted,
	}
}

// ProcessSettlement handles settlement after a successful response.
func (s *x402HTTPResourceService) ProcessSettlement(ctx context.Context, payload x402.PaymentPayload, requirements x402.PaymentRequirements, responseStatus int) (map[string]string, error) {
	if responseStatus >= 400 {
		return nil, nil
	}

	settleResult, err := s.SettlePayment(ctx, payload, requirements)
	if err != nil {
		return nil, err
	}

	return s.createSettlementHeaders(settleResult), nil
}

// ============================================================================
// Helper Methods
// ============================================================================

func (s *x402HTTPResourceService) getRouteConfig(path, method string) *RouteConfig {
	normalizedPath := normalizePath(path)
	upperMethod := strings.ToUpper(method)

	for _, route := range s.compiledRoutes {
		if route.Regex.MatchString(normalizedPath) &&
			(route.Verb == "*" || route.Verb == upperMethod) {
			config := route.Config
			return &config
		}
	}

	return nil
}

// extractPayment reads the X-PAYMENT header (spec.md §6.1's single wire format,
// used by both the current protocol version and V1-bridged payloads). A
// missing header is not an error: it means the caller hasn't paid yet, and
// the 402 flow takes over. A header that is present but malformed is a
// distinct, reported error so the caller gets 400 instead of a misleading 402.
func (s *x402HTTPResourceService) extractPayment(adapter HTTPAdapter) (*x402.PaymentPayload, error) {
	header := adapter.GetHeader("X-PAYMENT")
	if header == "" {
		return nil, nil
	}

	payload, err := ValidateAndDecodePaymentHeader(header)
	if err != nil {
		return nil, &x402.PaymentError{Code: x402.ErrInvalidPaymentHeader, Message: err.Error()}
	}
	return payload, nil
}

func (s *x402HTTPResourceService) isWebBrowser(adapter HTTPAdapter) bool {
	accept := adapter.GetAcceptHeader()
	userAgent := adapter.GetUserAgent()
	return strings.Contains(accept, "text/html") && strings.Contains(userAgent, "Mozilla")
}

// createHTTPResponse builds the 402 response: a JSON body per spec.md §6.1, or
// an HTML paywall for browser requests.
func (s *x402HTTPResourceService) createHTTPResponse(paymentRequired x402.PaymentRequired, isWebBrowser bool, paywallConfig *PaywallConfig, customHTML string) *HTTPResponseInstructions {
	if isWebBrowser {
		return &HTTPResponseInstructions{
			Status:  402,
			Headers: map[string]string{"Content-Type": "text/html"},
			Body:    s.generatePaywallHTML(paymentRequired, paywallConfig, customHTML),
			IsHTML:  true,
		}
	}

	return &HTTPResponseInstructions{
		Status:  402,
		Headers: map[string]string{"Content-Type": "application/json"},
		Body:    paymentRequired,
	}
}

func (s *x402HTTPResourceService) createSettlementHeaders(response x402.SettleResponse) map[string]string {
	return map[string]string{
		"X-PAYMENT-RESPONSE": encodePaymentResponseHeader(response),
	}
}

func (s *x402HTTPResourceService) generatePaywallHTML(paymentRequired x402.PaymentRequired, config *PaywallConfig, customHTML string) string {
	if customHTML != "" {
		return customHTML
	}
	if s.paywallProvider == nil {
		return ""
	}
	return s.paywallProvider.GenerateHTML(paymentRequired, config)
}

// ============================================================================
// Utility Functions
// ============================================================================

// parseRoutePattern parses a route pattern like "GET /api/*".
func parseRoutePattern(pattern string) (string, *regexp.Regexp) {
	parts := strings.Fields(pattern)

	var verb, path string
	if len(parts) == 2 {
		verb = strings.ToUpper(parts[0])
		path = parts[1]
	} else {
		verb = "*"
		path = pattern
	}

	regexPattern := "^" + regexp.QuoteMeta(path)
	regexPattern = strings.ReplaceAll(regexPattern, `\*`, `.*?`)
	paramRegex := regexp.MustCompile(`\\\[([^\]]+)\\\]`)
	regexPattern = paramRegex.ReplaceAllString(regexPattern, `[^/]+`)
	regexPattern += "$"

	return verb, regexp.MustCompile(regexPattern)
}

// normalizePath normalizes a URL path for matching.
func normalizePath(path string) string {
	if idx := strings.IndexAny(path, "?#"); idx >= 0 {
		path = path[:idx]
	}

	if decoded, err := url.PathUnescape(path); err == nil {
		path = decoded
	}

	path = strings.ReplaceAll(path, `\`, `/`)
	multiSlash := regexp.MustCompile(`/+`)
	path = multiSlash.ReplaceAllString(path, `/`)
	path = strings.TrimSuffix(path, `/`)

	if path == "" {
		path = "/"
	}

	return path
}

// displayAmount converts a requirement's smallest-unit amount into a float64
// display value using its declared decimals (defaulting to 6, USDC's precision).
func displayAmount(req x402.PaymentRequirements) float64 {
	amount, err := strconv.ParseFloat(req.Amount, 64)
	if err != nil {
		return 0
	}
	decimals := 6
	if d, ok := req.Extra["decimals"].(int); ok {
		decimals = d
	}
	divisor := 1.0
	for i := 0; i < decimals; i++ {
		divisor *= 10
	}
	return amount / divisor
}
