package http

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"

	x402 "github.com/algorandfoundation/x402"
)

// ============================================================================
// x402HTTPClient - HTTP-aware payment client
// ============================================================================

// x402HTTPClient wraps an X402Client with HTTP-specific payment handling:
// detecting a 402, building the matching payload, and retrying with the
// X-PAYMENT header attached.
type x402HTTPClient struct {
	client *x402.X402Client
}

// Newx402HTTPClient creates a new HTTP-aware x402 client.
func Newx402HTTPClient(client *x402.X402Client) *x402HTTPClient {
	return &x402HTTPClient{client: client}
}

// ============================================================================
// Header Encoding/Decoding
// ============================================================================

// EncodePaymentSignatureHeader base64-encodes a payment payload for the
// X-PAYMENT header.
func (c *x402HTTPClient) EncodePaymentSignatureHeader(payload x402.PaymentPayload) map[string]string {
	return map[string]string{"X-PAYMENT": encodePaymentSignatureHeader(payload)}
}

// GetPaymentRequiredResponse decodes the 402 JSON body into a PaymentRequired.
func (c *x402HTTPClient) GetPaymentRequiredResponse(body []byte) (x402.PaymentRequired, error) {
	if len(body) == 0 {
		return x402.PaymentRequired{}, fmt.Errorf("empty 402 response body")
	}
	var required x402.PaymentRequired
	if err := json.Unmarshal(body, &required); err != nil {
		return x402.PaymentRequired{}, fmt.Errorf("invalid payment required body: %w", err)
	}
	return required, nil
}

// GetPaymentSettleResponse extracts the settlement receipt from the
// X-PAYMENT-RESPONSE header.
func (c *x402HTTPClient) GetPaymentSettleResponse(headers http.Header) (x402.SettleResponse, error) {
	header := headers.Get("X-PAYMENT-RESPONSE")
	if header == "" {
		return x402.SettleResponse{}, fmt.Errorf("X-PAYMENT-RESPONSE header not found")
	}
	return decodePaymentResponseHeader(header)
}

// ============================================================================
// HTTP Client Wrapper
// ============================================================================

// WrapHTTPClientWithPayment wraps a standard HTTP client with x402 payment handling.
func WrapHTTPClientWithPayment(client *http.Client, x402Client *x402HTTPClient) *http.Client {
	if client == nil {
		client = http.DefaultClient
	}

	originalTransport := client.Transport
	if originalTransport == nil {
		originalTransport = http.DefaultTransport
	}

	client.Transport = &PaymentRoundTripper{
		Transport:  originalTransport,
		x402Client: x402Client,
		retryCount: &sync.Map{},
	}

	return client
}

// PaymentRoundTripper implements http.RoundTripper with x402 payment handling.
type PaymentRoundTripper struct {
	Transport  http.RoundTripper
	x402Client *x402HTTPClient
	retryCount *sync.Map // tracks retry count per request to prevent infinite loops
}

// RoundTrip implements http.RoundTripper.
func (t *PaymentRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	requestID := fmt.Sprintf("%p", req)
	count, _ := t.retryCount.LoadOrStore(requestID, 0)
	retries := count.(int)

	if retries > 1 {
		t.retryCount.Delete(requestID)
		return nil, fmt.Errorf("payment retry limit exceeded")
	}

	resp, err := t.Transport.RoundTrip(req)
	if err != nil {
		t.retryCount.Delete(requestID)
		return nil, err
	}

	if resp.StatusCode != http.StatusPaymentRequired {
		t.retryCount.Delete(requestID)
		return resp, nil
	}

	t.retryCount.Store(requestID, retries+1)

	var body []byte
	if resp.Body != nil {
		body, err = io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			t.retryCount.Delete(requestID)
			return nil, fmt.Errorf("failed to read 402 response body: %w", err)
		}
	}

	paymentRequired, err := t.x402Client.GetPaymentRequiredResponse(body)
	if err != nil {
		t.retryCount.Delete(requestID)
		return nil, fmt.Errorf("failed to parse payment requirements: %w", err)
	}

	ctx := req.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	payload, err := t.x402Client.client.CreatePaymentForRequired(ctx, paymentRequired)
	if err != nil {
		t.retryCount.Delete(requestID)
		return nil, fmt.Errorf("failed to create payment: %w", err)
	}

	paymentReq := req.Clone(ctx)
	for k, v := range t.x402Client.EncodePaymentSignatureHeader(payload) {
		paymentReq.Header.Set(k, v)
	}

	newResp, err := t.Transport.RoundTrip(paymentReq)
	t.retryCount.Delete(requestID)
	return newResp, err
}

// ============================================================================
// Convenience Methods
// ============================================================================

// DoWithPayment performs an HTTP request with automatic payment handling.
func (c *x402HTTPClient) DoWithPayment(ctx context.Context, req *http.Request) (*http.Response, error) {
	client := &http.Client{
		Transport: &PaymentRoundTripper{
			Transport:  http.DefaultTransport,
			x402Client: c,
			retryCount: &sync.Map{},
		},
	}
	return client.Do(req.WithContext(ctx))
}

// GetWithPayment performs a GET request with automatic payment handling.
func (c *x402HTTPClient) GetWithPayment(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, err
	}
	return c.DoWithPayment(ctx, req)
}

// PostWithPayment performs a POST request with automatic payment handling.
func (c *x402HTTPClient) PostWithPayment(ctx context.Context, url string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, "POST", url, body)
	if err != nil {
		return nil, err
	}
	return c.DoWithPayment(ctx, req)
}

// ============================================================================
// Header Encoding/Decoding Functions
// ============================================================================

// encodePaymentSignatureHeader encodes a payment payload as base64 JSON, for
// the X-PAYMENT header.
func encodePaymentSignatureHeader(payload x402.PaymentPayload) string {
	data, err := json.Marshal(payload)
	if err != nil {
		panic(fmt.Sprintf("failed to marshal payment payload: %v", err))
	}
	return base64.StdEncoding.EncodeToString(data)
}

// encodePaymentResponseHeader encodes a settlement response as base64 JSON,
// for the X-PAYMENT-RESPONSE header.
func encodePaymentResponseHeader(response x402.SettleResponse) string {
	data, err := json.Marshal(response)
	if err != nil {
		panic(fmt.Sprintf("failed to marshal settle response: %v", err))
	}
	return base64.StdEncoding.EncodeToString(data)
}

// decodePaymentResponseHeader decodes the X-PAYMENT-RESPONSE header.
func decodePaymentResponseHeader(header string) (x402.SettleResponse, error) {
	data, err := base64.StdEncoding.DecodeString(header)
	if err != nil {
		return x402.SettleResponse{}, fmt.Errorf("invalid base64 encoding: %w", err)
	}

	var response x402.SettleResponse
	if err := json.Unmarshal(data, &response); err != nil {
		return x402.SettleResponse{}, fmt.Errorf("invalid settle response JSON: %w", err)
	}

	return response, nil
}
