package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	x402 "github.com/algorandfoundation/x402"
)

// ============================================================================
// HTTP Facilitator Client
// ============================================================================

// HTTPFacilitatorClient talks to a remote facilitator service over HTTP.
// Implements x402.FacilitatorClient.
type HTTPFacilitatorClient struct {
	url          string
	httpClient   *http.Client
	authProvider AuthProvider
	identifier   string
}

// AuthProvider generates authentication headers for facilitator requests.
type AuthProvider interface {
	GetAuthHeaders(ctx context.Context) (AuthHeaders, error)
}

// AuthHeaders contains authentication headers for facilitator endpoints.
type AuthHeaders struct {
	Verify    map[string]string
	Settle    map[string]string
	Supported map[string]string
}

// FacilitatorConfig configures the HTTP facilitator client.
type FacilitatorConfig struct {
	URL          string
	HTTPClient   *http.Client
	AuthProvider AuthProvider
	Timeout      time.Duration
	Identifier   string
}

// DefaultFacilitatorURL is the default public facilitator.
const DefaultFacilitatorURL = "https://x402.org/facilitator"

// getSupportedRetries is the maximum number of attempts GetSupported makes
// when the facilitator answers 429.
const getSupportedRetries = 3

// getSupportedRetryBaseDelay is the base delay for exponential backoff on retries.
const getSupportedRetryBaseDelay = 1 * time.Second

// NewHTTPFacilitatorClient creates a new HTTP facilitator client.
func NewHTTPFacilitatorClient(config *FacilitatorConfig) *HTTPFacilitatorClient {
	if config == nil {
		config = &FacilitatorConfig{}
	}

	url := config.URL
	if url == "" {
		url = DefaultFacilitatorURL
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		timeout := config.Timeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	identifier := config.Identifier
	if identifier == "" {
		identifier = url
	}

	return &HTTPFacilitatorClient{
		url:          url,
		httpClient:   httpClient,
		authProvider: config.AuthProvider,
		identifier:   identifier,
	}
}

// ============================================================================
// FacilitatorClient Implementation
// ============================================================================

// Verify checks if a payment is valid.
func (c *HTTPFacilitatorClient) Verify(ctx context.Context, payload x402.PaymentPayload, requirements x402.PaymentRequirements) (x402.VerifyResponse, error) {
	requestBody := map[string]interface{}{
		"x402Version":         payload.X402Version,
		"paymentPayload":      payload,
		"paymentRequirements": requirements,
	}

	var verifyResponse x402.VerifyResponse
	err := c.post(ctx, "/verify", requestBody, func(h AuthHeaders) map[string]string { return h.Verify }, &verifyResponse)
	if err != nil {
		return x402.VerifyResponse{}, err
	}
	return verifyResponse, nil
}

// Settle executes a payment.
func (c *HTTPFacilitatorClient) Settle(ctx context.Context, payload x402.PaymentPayload, requirements x402.PaymentRequirements) (x402.SettleResponse, error) {
	requestBody := map[string]interface{}{
		"x402Version":         payload.X402Version,
		"paymentPayload":      payload,
		"paymentRequirements": requirements,
	}

	var settleResponse x402.SettleResponse
	err := c.post(ctx, "/settle", requestBody, func(h AuthHeaders) map[string]string { return h.Settle }, &settleResponse)
	if err != nil {
		return x402.SettleResponse{}, err
	}
	return settleResponse, nil
}

// GetSupported gets supported payment kinds. Makes up to getSupportedRetries
// attempts in all, with exponential backoff between them, on 429 rate limit
// errors.
func (c *HTTPFacilitatorClient) GetSupported(ctx context.Context) (x402.SupportedResponse, error) {
	var lastErr error

	for attempt := 0; attempt < getSupportedRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, "GET", c.url+"/supported", nil)
		if err != nil {
			return x402.SupportedResponse{}, fmt.Errorf("failed to create supported request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		if c.authProvider != nil {
			authHeaders, err := c.authProvider.GetAuthHeaders(ctx)
			if err != nil {
				return x402.SupportedResponse{}, fmt.Errorf("failed to get auth headers: %w", err)
			}
			for k, v := range authHeaders.Supported {
				req.Header.Set(k, v)
			}
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return x402.SupportedResponse{}, fmt.Errorf("supported request failed: %w", err)
		}

		responseBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return x402.SupportedResponse{}, fmt.Errorf("failed to read response body: %w", err)
		}

		if resp.StatusCode == http.StatusOK {
			var supportedResponse x402.SupportedResponse
			if err := json.Unmarshal(responseBody, &supportedResponse); err != nil {
				return x402.SupportedResponse{}, fmt.Errorf("failed to decode supported response: %w", err)
			}
			return supportedResponse, nil
		}

		lastErr = fmt.Errorf("facilitator supported failed (%d): %s", resp.StatusCode, string(responseBody))

		if resp.StatusCode == http.StatusTooManyRequests && attempt < getSupportedRetries-1 {
			delay := getSupportedRetryBaseDelay * time.Duration(1<<uint(attempt))
			select {
			case <-time.After(delay):
				continue
			case <-ctx.Done():
				return x402.SupportedResponse{}, ctx.Err()
			}
		}

		return x402.SupportedResponse{}, lastErr
	}

	return x402.SupportedResponse{}, lastErr
}

// ============================================================================
// Built-in Auth Providers
// ============================================================================

// StaticAuthProvider attaches the same bearer token to every facilitator request.
type StaticAuthProvider struct {
	headers map[string]string
}

// NewStaticAuthProvider creates an AuthProvider that sends a fixed API key as
// an Authorization: Bearer header on all three facilitator endpoints.
func NewStaticAuthProvider(apiKey string) *StaticAuthProvider {
	return &StaticAuthProvider{headers: map[string]string{"Authorization": "Bearer " + apiKey}}
}

// GetAuthHeaders implements AuthProvider.
func (p *StaticAuthProvider) GetAuthHeaders(ctx context.Context) (AuthHeaders, error) {
	return AuthHeaders{Verify: p.headers, Settle: p.headers, Supported: p.headers}, nil
}

// FuncAuthProvider adapts a plain function into an AuthProvider.
type FuncAuthProvider struct {
	fn func(ctx context.Context) (AuthHeaders, error)
}

// NewFuncAuthProvider wraps fn as an AuthProvider.
func NewFuncAuthProvider(fn func(ctx context.Context) (AuthHeaders, error)) *FuncAuthProvider {
	return &FuncAuthProvider{fn: fn}
}

// GetAuthHeaders implements AuthProvider.
func (p *FuncAuthProvider) GetAuthHeaders(ctx context.Context) (AuthHeaders, error) {
	return p.fn(ctx)
}

// ============================================================================
// Multi-Facilitator Client
// ============================================================================

// MultiFacilitatorClient fans Verify/Settle out to whichever of several
// facilitator clients accepts the payment's scheme, and merges their
// supported-kinds catalogues. Clients are tried in the order given.
type MultiFacilitatorClient struct {
	clients []x402.FacilitatorClient
}

// NewMultiFacilitatorClient combines multiple facilitator clients into one.
func NewMultiFacilitatorClient(clients ...x402.FacilitatorClient) *MultiFacilitatorClient {
	return &MultiFacilitatorClient{clients: clients}
}

// Verify tries each facilitator client in order, returning the first success.
func (m *MultiFacilitatorClient) Verify(ctx context.Context, payload x402.PaymentPayload, requirements x402.PaymentRequirements) (x402.VerifyResponse, error) {
	var lastErr error
	for _, client := range m.clients {
		resp, err := client.Verify(ctx, payload, requirements)
		if err == nil {
			return resp, nil
		}
		lastErr = err
	}
	return x402.VerifyResponse{}, lastErr
}

// Settle tries each facilitator client in order, returning the first success.
func (m *MultiFacilitatorClient) Settle(ctx context.Context, payload x402.PaymentPayload, requirements x402.PaymentRequirements) (x402.SettleResponse, error) {
	var lastErr error
	for _, client := range m.clients {
		resp, err := client.Settle(ctx, payload, requirements)
		if err == nil {
			return resp, nil
		}
		lastErr = err
	}
	return x402.SettleResponse{}, lastErr
}

// GetSupported merges the supported-kinds catalogues of every underlying client.
func (m *MultiFacilitatorClient) GetSupported(ctx context.Context) (x402.SupportedResponse, error) {
	merged := x402.SupportedResponse{}
	var lastErr error
	seenExt := map[string]bool{}

	for _, client := range m.clients {
		resp, err := client.GetSupported(ctx)
		if err != nil {
			lastErr = err
			continue
		}
		merged.Kinds = append(merged.Kinds, resp.Kinds...)
		for _, ext := range resp.Extensions {
			if !seenExt[ext] {
				seenExt[ext] = true
				merged.Extensions = append(merged.Extensions, ext)
			}
		}
	}

	if len(merged.Kinds) == 0 && lastErr != nil {
		return x402.SupportedResponse{}, lastErr
	}
	return merged, nil
}

// ============================================================================
// Internal HTTP Helpers
// ============================================================================

func (c *HTTPFacilitatorClient) post(ctx context.Context, path string, requestBody interface{}, pickAuth func(AuthHeaders) map[string]string, out interface{}) error {
	body, err := json.Marshal(requestBody)
	if err != nil {
		return fmt.Errorf("failed to marshal %s request: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.url+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")

	if c.authProvider != nil {
		authHeaders, err := c.authProvider.GetAuthHeaders(ctx)
		if err != nil {
			return fmt.Errorf("failed to get auth headers: %w", err)
		}
		for k, v := range pickAuth(authHeaders) {
			req.Header.Set(k, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", path, err)
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if err := json.Unmarshal(responseBody, out); err != nil {
		return fmt.Errorf("failed to unmarshal %s response: %w", path, err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("facilitator %s failed (%d): %s", path, resp.StatusCode, string(responseBody))
	}

	return nil
}
