package http

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	x402 "github.com/algorandfoundation/x402"
)

// mockSchemeClient is a minimal x402.SchemeClient for testing.
type mockSchemeClient struct {
	scheme        string
	createPayload func(ctx context.Context, requirements x402.PaymentRequirements) (map[string]interface{}, error)
}

func (m *mockSchemeClient) Scheme() string { return m.scheme }

func (m *mockSchemeClient) CreatePaymentPayload(ctx context.Context, requirements x402.PaymentRequirements) (map[string]interface{}, error) {
	if m.createPayload != nil {
		return m.createPayload(ctx, requirements)
	}
	return map[string]interface{}{"sig": "test"}, nil
}

func newMockClient(scheme string, network x402.Network) *x402HTTPClient {
	client := x402.Newx402Client(x402.WithScheme(network, &mockSchemeClient{scheme: scheme}))
	return Newx402HTTPClient(client)
}

func TestNewx402HTTPClient(t *testing.T) {
	client := newMockClient("mock", "test:1")
	if client == nil || client.client == nil {
		t.Fatal("expected client with embedded X402Client")
	}
}

func TestEncodePaymentSignatureHeader(t *testing.T) {
	client := newMockClient("mock", "test:1")

	payload := x402.PaymentPayload{
		X402Version: x402.ProtocolVersion,
		Accepted:    x402.PaymentRequirements{Scheme: "mock", Network: "test:1"},
		Payload:     map[string]interface{}{"sig": "test"},
	}

	headers := client.EncodePaymentSignatureHeader(payload)
	encoded, exists := headers["X-PAYMENT"]
	if !exists {
		t.Fatalf("expected X-PAYMENT header, got %v", headers)
	}

	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		t.Fatalf("failed to decode base64: %v", err)
	}

	var decodedPayload x402.PaymentPayload
	if err := json.Unmarshal(decoded, &decodedPayload); err != nil {
		t.Fatalf("failed to unmarshal JSON: %v", err)
	}
	if decodedPayload.X402Version != payload.X402Version {
		t.Errorf("version mismatch: got %d, want %d", decodedPayload.X402Version, payload.X402Version)
	}
}

func TestGetPaymentRequiredResponse(t *testing.T) {
	client := newMockClient("mock", "test:1")

	requirements := x402.PaymentRequired{
		X402Version: x402.ProtocolVersion,
		Error:       "payment required",
		Accepts: []x402.PaymentRequirements{
			{Scheme: "exact", Network: "test:1", Asset: "USDC", Amount: "1000000", PayTo: "recipient"},
		},
	}
	body, _ := json.Marshal(requirements)

	result, err := client.GetPaymentRequiredResponse(body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.X402Version != x402.ProtocolVersion {
		t.Errorf("expected version %d, got %d", x402.ProtocolVersion, result.X402Version)
	}
	if len(result.Accepts) != 1 {
		t.Errorf("expected 1 requirement, got %d", len(result.Accepts))
	}

	if _, err := client.GetPaymentRequiredResponse(nil); err == nil {
		t.Error("expected error for empty body")
	}
}

func TestGetPaymentSettleResponse(t *testing.T) {
	client := newMockClient("mock", "test:1")

	settleResponse := x402.SettleResponse{Success: true, Transaction: "TXID", Payer: "PAYER", Network: "test:1"}
	encoded := encodePaymentResponseHeader(settleResponse)

	headers := http.Header{}
	headers.Set("X-PAYMENT-RESPONSE", encoded)

	result, err := client.GetPaymentSettleResponse(headers)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Success || result.Transaction != "TXID" {
		t.Errorf("unexpected settle response: %+v", result)
	}

	if _, err := client.GetPaymentSettleResponse(http.Header{}); err == nil {
		t.Error("expected error when X-PAYMENT-RESPONSE header is missing")
	}
}

func TestPaymentRoundTripper(t *testing.T) {
	callCount := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		callCount++

		if callCount == 1 {
			requirements := x402.PaymentRequired{
				X402Version: x402.ProtocolVersion,
				Error:       "payment required",
				Accepts: []x402.PaymentRequirements{
					{Scheme: "mock", Network: "test:1", Asset: "TEST", Amount: "1000", PayTo: "recipient"},
				},
			}
			body, _ := json.Marshal(requirements)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusPaymentRequired)
			w.Write(body)
			return
		}

		if r.Header.Get("X-PAYMENT") == "" {
			t.Error("expected X-PAYMENT header on retry")
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("success"))
	}))
	defer server.Close()

	x402Client := newMockClient("mock", "test:1")
	httpClient := WrapHTTPClientWithPayment(http.DefaultClient, x402Client)

	resp, err := httpClient.Get(server.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected status 200, got %d", resp.StatusCode)
	}

	body, _ := io.ReadAll(resp.Body)
	if string(body) != "success" {
		t.Errorf("expected body 'success', got %s", string(body))
	}
	if callCount != 2 {
		t.Errorf("expected 2 calls to server, got %d", callCount)
	}
}

func TestPaymentRoundTripperNoRetryOn200(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("success"))
	}))
	defer server.Close()

	x402Client := newMockClient("mock", "test:1")
	httpClient := WrapHTTPClientWithPayment(http.DefaultClient, x402Client)

	resp, err := httpClient.Get(server.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected status 200, got %d", resp.StatusCode)
	}
}

func TestDoWithPayment(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("success"))
	}))
	defer server.Close()

	client := newMockClient("mock", "test:1")
	req, _ := http.NewRequest("GET", server.URL, nil)

	resp, err := client.DoWithPayment(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected status 200, got %d", resp.StatusCode)
	}
}

func TestGetWithPayment(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "GET" {
			t.Errorf("expected GET, got %s", r.Method)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := newMockClient("mock", "test:1")
	resp, err := client.GetWithPayment(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()
}

func TestPostWithPayment(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" {
			t.Errorf("expected POST, got %s", r.Method)
		}
		body, _ := io.ReadAll(r.Body)
		if string(body) != "test body" {
			t.Errorf("expected 'test body', got %s", string(body))
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := newMockClient("mock", "test:1")
	resp, err := client.PostWithPayment(context.Background(), server.URL, strings.NewReader("test body"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()
}
