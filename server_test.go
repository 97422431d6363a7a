package x402

import (
	"context"
	"errors"
	"testing"
	"time"
)

// mockSchemeServer is a test double for SchemeServer.
type mockSchemeServer struct {
	scheme string
	asset  string
}

func (m *mockSchemeServer) Scheme() string { return m.scheme }

func (m *mockSchemeServer) ParsePrice(price Price, network Network) (AssetAmount, error) {
	if v, ok := price.(AssetAmount); ok {
		return v, nil
	}
	return AssetAmount{Asset: m.asset, Amount: "1000000"}, nil
}

func (m *mockSchemeServer) EnhancePaymentRequirements(ctx context.Context, requirements PaymentRequirements, supported SupportedKind, extensions []string) (PaymentRequirements, error) {
	enhanced := requirements.CloneExtra()
	enhanced.Extra["enhanced"] = true
	return enhanced, nil
}

// mockFacilitatorClient is a test double for FacilitatorClient.
type mockFacilitatorClient struct {
	verifyResult VerifyResponse
	verifyErr    error
	settleResult SettleResponse
	settleErr    error
	supported    SupportedResponse
	supportedErr error
}

func (m *mockFacilitatorClient) Verify(ctx context.Context, payload PaymentPayload, requirements PaymentRequirements) (VerifyResponse, error) {
	return m.verifyResult, m.verifyErr
}

func (m *mockFacilitatorClient) Settle(ctx context.Context, payload PaymentPayload, requirements PaymentRequirements) (SettleResponse, error) {
	return m.settleResult, m.settleErr
}

func (m *mockFacilitatorClient) GetSupported(ctx context.Context) (SupportedResponse, error) {
	return m.supported, m.supportedErr
}

func TestNewx402ResourceServer(t *testing.T) {
	server := Newx402ResourceServer()
	if server == nil {
		t.Fatal("Expected server to be created")
	}
	if server.schemes == nil {
		t.Fatal("Expected scheme registry to be initialized")
	}
	if server.supportedCache == nil {
		t.Fatal("Expected supported cache to be initialized")
	}
}

func TestServerRegisterScheme(t *testing.T) {
	server := Newx402ResourceServer()
	mockServer := &mockSchemeServer{scheme: "exact", asset: "USDC"}

	server.Register("eip155:1", mockServer)

	got, ok := server.schemes.Lookup("exact", "eip155:1")
	if !ok || got != mockServer {
		t.Fatal("Expected mock server to be registered")
	}
}

func TestServerInitialize(t *testing.T) {
	ctx := context.Background()
	server := Newx402ResourceServer()

	facilitator := &mockFacilitatorClient{
		supported: SupportedResponse{
			Kinds: []SupportedKind{
				{X402Version: ProtocolVersion, Scheme: "exact", Network: "eip155:1"},
			},
		},
	}
	server.facilitatorClients = append(server.facilitatorClients, facilitator)

	if err := server.Initialize(ctx); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	got, ok := server.findFacilitatorForPayment("eip155:1", "exact")
	if !ok || got != facilitator {
		t.Fatal("Expected facilitator to be registered for scheme/network")
	}
}

func TestServerInitializeFirstFacilitatorWins(t *testing.T) {
	ctx := context.Background()
	server := Newx402ResourceServer()

	first := &mockFacilitatorClient{
		supported: SupportedResponse{
			Kinds: []SupportedKind{{X402Version: ProtocolVersion, Scheme: "exact", Network: "eip155:1"}},
		},
	}
	second := &mockFacilitatorClient{
		supported: SupportedResponse{
			Kinds: []SupportedKind{{X402Version: ProtocolVersion, Scheme: "exact", Network: "eip155:1"}},
		},
	}
	server.facilitatorClients = append(server.facilitatorClients, first, second)

	if err := server.Initialize(ctx); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	got, ok := server.findFacilitatorForPayment("eip155:1", "exact")
	if !ok || got != first {
		t.Fatal("Expected first facilitator to win precedence")
	}
}

func TestServerInitializeAllFail(t *testing.T) {
	ctx := context.Background()
	server := Newx402ResourceServer()

	facilitator := &mockFacilitatorClient{supportedErr: errors.New("connection refused")}
	server.facilitatorClients = append(server.facilitatorClients, facilitator)

	if err := server.Initialize(ctx); err == nil {
		t.Fatal("Expected error when all facilitators fail")
	}
}

func TestServerBuildPaymentRequirements(t *testing.T) {
	ctx := context.Background()
	server := Newx402ResourceServer()
	mockServer := &mockSchemeServer{scheme: "exact", asset: "USDC"}
	server.Register("eip155:1", mockServer)

	server.supportedCache.Set("facilitator_0", SupportedResponse{
		Kinds: []SupportedKind{{X402Version: ProtocolVersion, Scheme: "exact", Network: "eip155:1"}},
	})

	config := ResourceConfig{
		Scheme:  "exact",
		Network: "eip155:1",
		Price:   "$1.00",
		PayTo:   "0xrecipient",
	}

	requirements, err := server.BuildPaymentRequirements(ctx, config, PayToContext{Resource: "https://example.com/api"})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(requirements) != 1 {
		t.Fatalf("Expected 1 requirement, got %d", len(requirements))
	}
	if requirements[0].PayTo != "0xrecipient" {
		t.Fatalf("Expected payTo '0xrecipient', got %s", requirements[0].PayTo)
	}
	if requirements[0].MaxTimeoutSeconds != 300 {
		t.Fatalf("Expected default timeout 300, got %d", requirements[0].MaxTimeoutSeconds)
	}
	if requirements[0].Extra["enhanced"] != true {
		t.Fatal("Expected requirements to be enhanced")
	}
}

func TestServerBuildPaymentRequirementsDynamicPayTo(t *testing.T) {
	ctx := context.Background()
	server := Newx402ResourceServer()
	mockServer := &mockSchemeServer{scheme: "exact", asset: "USDC"}
	server.Register("eip155:1", mockServer)

	server.supportedCache.Set("facilitator_0", SupportedResponse{
		Kinds: []SupportedKind{{X402Version: ProtocolVersion, Scheme: "exact", Network: "eip155:1"}},
	})

	config := ResourceConfig{
		Scheme:  "exact",
		Network: "eip155:1",
		Price:   "$1.00",
		PayToFunc: func(ctx PayToContext) (string, error) {
			return "0xresolved:" + ctx.Resource, nil
		},
	}

	requirements, err := server.BuildPaymentRequirements(ctx, config, PayToContext{Resource: "https://example.com/api"})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if requirements[0].PayTo != "0xresolved:https://example.com/api" {
		t.Fatalf("Expected dynamic payTo to be resolved, got %s", requirements[0].PayTo)
	}
}

func TestServerBuildPaymentRequirementsNoFacilitatorSupport(t *testing.T) {
	ctx := context.Background()
	server := Newx402ResourceServer()
	mockServer := &mockSchemeServer{scheme: "exact", asset: "USDC"}
	server.Register("eip155:1", mockServer)

	config := ResourceConfig{
		Scheme:  "exact",
		Network: "eip155:1",
		Price:   "$1.00",
		PayTo:   "0xrecipient",
	}

	_, err := server.BuildPaymentRequirements(ctx, config, PayToContext{})
	if err == nil {
		t.Fatal("Expected error when no facilitator supports the scheme/network")
	}
	var paymentErr *PaymentError
	if !errors.As(err, &paymentErr) || paymentErr.Code != ErrNetworkMismatch {
		t.Fatal("Expected NetworkMismatch error")
	}
}

func TestServerCreatePaymentRequiredResponse(t *testing.T) {
	server := Newx402ResourceServer()
	requirements := []PaymentRequirements{
		{Scheme: "exact", Network: "eip155:1", Asset: "USDC", Amount: "1000000", PayTo: "0xrecipient"},
	}

	response := server.CreatePaymentRequiredResponse(requirements, "https://example.com/api", "", nil)
	if response.X402Version != ProtocolVersion {
		t.Fatalf("Expected version %d, got %d", ProtocolVersion, response.X402Version)
	}
	if response.Error != "Payment required" {
		t.Fatalf("Expected default error message, got %s", response.Error)
	}
	if response.Resource != "https://example.com/api" {
		t.Fatalf("Expected resource to be set, got %s", response.Resource)
	}
	if len(response.Accepts) != 1 {
		t.Fatal("Expected accepts to carry the requirements through")
	}
}

func TestServerVerifyPayment(t *testing.T) {
	ctx := context.Background()
	server := Newx402ResourceServer()

	facilitator := &mockFacilitatorClient{
		verifyResult: VerifyResponse{IsValid: true, Payer: "0xpayer"},
	}
	server.facilitatorClientsMap.Register("exact", "eip155:1", facilitator)

	requirements := PaymentRequirements{Scheme: "exact", Network: "eip155:1", Asset: "USDC", Amount: "1000000", PayTo: "0xrecipient"}
	payload := PaymentPayload{X402Version: ProtocolVersion, Accepted: requirements}

	result, err := server.VerifyPayment(ctx, payload, requirements)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !result.IsValid {
		t.Fatal("Expected verification to succeed")
	}
	if result.Payer != "0xpayer" {
		t.Fatalf("Expected payer '0xpayer', got %s", result.Payer)
	}
}

func TestServerVerifyPaymentFallback(t *testing.T) {
	ctx := context.Background()
	server := Newx402ResourceServer()

	facilitator := &mockFacilitatorClient{
		verifyResult: VerifyResponse{IsValid: true},
	}
	server.facilitatorClients = append(server.facilitatorClients, facilitator)

	requirements := PaymentRequirements{Scheme: "exact", Network: "eip155:1", Asset: "USDC", Amount: "1000000", PayTo: "0xrecipient"}
	payload := PaymentPayload{X402Version: ProtocolVersion, Accepted: requirements}

	result, err := server.VerifyPayment(ctx, payload, requirements)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !result.IsValid {
		t.Fatal("Expected fallback verification to succeed")
	}
}

func TestServerVerifyPaymentHooksAbort(t *testing.T) {
	ctx := context.Background()
	server := Newx402ResourceServer()
	server.OnBeforeVerify(func(c VerifyContext) (*BeforeHookResult, error) {
		return &BeforeHookResult{Abort: true, Reason: "blocked"}, nil
	})

	requirements := PaymentRequirements{Scheme: "exact", Network: "eip155:1"}
	payload := PaymentPayload{X402Version: ProtocolVersion, Accepted: requirements}

	result, err := server.VerifyPayment(ctx, payload, requirements)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if result.IsValid {
		t.Fatal("Expected verification to be aborted")
	}
	if result.InvalidReason != "blocked" {
		t.Fatalf("Expected abort reason to carry through, got %s", result.InvalidReason)
	}
}

func TestServerSettlePayment(t *testing.T) {
	ctx := context.Background()
	server := Newx402ResourceServer()

	facilitator := &mockFacilitatorClient{
		settleResult: SettleResponse{Success: true, Transaction: "abc123", Network: "eip155:1"},
	}
	server.facilitatorClientsMap.Register("exact", "eip155:1", facilitator)

	requirements := PaymentRequirements{Scheme: "exact", Network: "eip155:1", Asset: "USDC", Amount: "1000000", PayTo: "0xrecipient"}
	payload := PaymentPayload{X402Version: ProtocolVersion, Accepted: requirements}

	result, err := server.SettlePayment(ctx, payload, requirements)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !result.Success {
		t.Fatal("Expected settlement to succeed")
	}
	if result.Transaction != "abc123" {
		t.Fatalf("Expected transaction 'abc123', got %s", result.Transaction)
	}
}

func TestServerSettlePaymentFailureRecovery(t *testing.T) {
	ctx := context.Background()
	server := Newx402ResourceServer()

	facilitator := &mockFacilitatorClient{
		settleErr: errors.New("chain congested"),
	}
	server.facilitatorClientsMap.Register("exact", "eip155:1", facilitator)

	recovered := SettleResponse{Success: true, Transaction: "recovered-tx", Network: "eip155:1"}
	server.OnSettleFailure(func(c SettleFailureContext) (*SettleFailureHookResult, error) {
		return &SettleFailureHookResult{Recovered: true, Result: recovered}, nil
	})

	requirements := PaymentRequirements{Scheme: "exact", Network: "eip155:1"}
	payload := PaymentPayload{X402Version: ProtocolVersion, Accepted: requirements}

	result, err := server.SettlePayment(ctx, payload, requirements)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if result.Transaction != "recovered-tx" {
		t.Fatal("Expected recovered settlement result")
	}
}

func TestServerFindMatchingRequirements(t *testing.T) {
	server := Newx402ResourceServer()

	available := []PaymentRequirements{
		{Scheme: "exact", Network: "eip155:1", Asset: "USDC", Amount: "1000000", PayTo: "0xrecipient"},
		{Scheme: "exact", Network: "eip155:8453", Asset: "USDC", Amount: "2000000", PayTo: "0xrecipient"},
	}

	payload := PaymentPayload{
		X402Version: ProtocolVersion,
		Accepted:    available[1],
	}

	matched := server.FindMatchingRequirements(available, payload)
	if matched == nil {
		t.Fatal("Expected a matching requirement")
	}
	if matched.Network != "eip155:8453" {
		t.Fatalf("Expected network 'eip155:8453', got %s", matched.Network)
	}

	noMatchPayload := PaymentPayload{
		X402Version: ProtocolVersion,
		Accepted:    PaymentRequirements{Scheme: "exact", Network: "eip155:999"},
	}
	if server.FindMatchingRequirements(available, noMatchPayload) != nil {
		t.Fatal("Expected no match for unknown network")
	}
}

func TestServerProcessPaymentRequestNoPayload(t *testing.T) {
	ctx := context.Background()
	server := Newx402ResourceServer()
	mockServer := &mockSchemeServer{scheme: "exact", asset: "USDC"}
	server.Register("eip155:1", mockServer)
	server.supportedCache.Set("facilitator_0", SupportedResponse{
		Kinds: []SupportedKind{{X402Version: ProtocolVersion, Scheme: "exact", Network: "eip155:1"}},
	})

	config := ResourceConfig{Scheme: "exact", Network: "eip155:1", Price: "$1.00", PayTo: "0xrecipient"}
	resourceInfo := ResourceInfo{URL: "https://example.com/api"}

	result, err := server.ProcessPaymentRequest(ctx, nil, config, resourceInfo, nil)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if result.Success {
		t.Fatal("Expected processing to fail without a payload")
	}
	if result.RequiresPayment == nil {
		t.Fatal("Expected RequiresPayment to be populated")
	}
	if result.RequiresPayment.Resource != "https://example.com/api" {
		t.Fatal("Expected resource URL to carry through")
	}
}

func TestServerProcessPaymentRequestSuccess(t *testing.T) {
	ctx := context.Background()
	server := Newx402ResourceServer()
	mockServer := &mockSchemeServer{scheme: "exact", asset: "USDC"}
	server.Register("eip155:1", mockServer)
	server.supportedCache.Set("facilitator_0", SupportedResponse{
		Kinds: []SupportedKind{{X402Version: ProtocolVersion, Scheme: "exact", Network: "eip155:1"}},
	})

	facilitator := &mockFacilitatorClient{verifyResult: VerifyResponse{IsValid: true}}
	server.facilitatorClientsMap.Register("exact", "eip155:1", facilitator)

	config := ResourceConfig{Scheme: "exact", Network: "eip155:1", Price: "$1.00", PayTo: "0xrecipient"}
	resourceInfo := ResourceInfo{URL: "https://example.com/api"}

	requirements, err := server.BuildPaymentRequirements(ctx, config, PayToContext{Resource: resourceInfo.URL})
	if err != nil {
		t.Fatalf("Unexpected error building requirements: %v", err)
	}

	payload := &PaymentPayload{X402Version: ProtocolVersion, Accepted: requirements[0]}

	result, err := server.ProcessPaymentRequest(ctx, payload, config, resourceInfo, nil)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !result.Success {
		t.Fatalf("Expected processing to succeed, got error: %s", result.Error)
	}
	if result.VerificationResult == nil || !result.VerificationResult.IsValid {
		t.Fatal("Expected a valid verification result")
	}
}

func TestServerProcessPaymentRequestNoMatch(t *testing.T) {
	ctx := context.Background()
	server := Newx402ResourceServer()
	mockServer := &mockSchemeServer{scheme: "exact", asset: "USDC"}
	server.Register("eip155:1", mockServer)
	server.supportedCache.Set("facilitator_0", SupportedResponse{
		Kinds: []SupportedKind{{X402Version: ProtocolVersion, Scheme: "exact", Network: "eip155:1"}},
	})

	config := ResourceConfig{Scheme: "exact", Network: "eip155:1", Price: "$1.00", PayTo: "0xrecipient"}
	resourceInfo := ResourceInfo{URL: "https://example.com/api"}

	mismatched := &PaymentPayload{
		X402Version: ProtocolVersion,
		Accepted:    PaymentRequirements{Scheme: "exact", Network: "eip155:999", Asset: "USDC", Amount: "1", PayTo: "0xother"},
	}

	result, err := server.ProcessPaymentRequest(ctx, mismatched, config, resourceInfo, nil)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if result.Success {
		t.Fatal("Expected processing to fail with mismatched payload")
	}
}

func TestSupportedCacheExpiry(t *testing.T) {
	cache := &SupportedCache{
		data:   make(map[string]SupportedResponse),
		expiry: make(map[string]time.Time),
		ttl:    1 * time.Millisecond,
	}
	cache.Set("facilitator_0", SupportedResponse{
		Kinds: []SupportedKind{{X402Version: ProtocolVersion, Scheme: "exact", Network: "eip155:1"}},
	})

	time.Sleep(5 * time.Millisecond)

	server := &X402ResourceServer{supportedCache: cache}
	if server.findSupportedKind("eip155:1", "exact") != nil {
		t.Fatal("Expected expired cache entry to be ignored")
	}
}

func TestSupportedCacheClear(t *testing.T) {
	cache := &SupportedCache{
		data:   make(map[string]SupportedResponse),
		expiry: make(map[string]time.Time),
		ttl:    5 * time.Minute,
	}
	cache.Set("facilitator_0", SupportedResponse{Kinds: []SupportedKind{{Scheme: "exact"}}})
	cache.Clear()

	if len(cache.data) != 0 {
		t.Fatal("Expected cache to be empty after Clear")
	}
}

func TestServerNetworkWildcardSupport(t *testing.T) {
	server := Newx402ResourceServer()
	server.supportedCache.Set("facilitator_0", SupportedResponse{
		Kinds: []SupportedKind{{X402Version: ProtocolVersion, Scheme: "exact", Network: "algorand:*"}},
	})

	kind := server.findSupportedKind("algorand:SGO1GKSzyE7IEPItTxCByw9x8FmnrCDexi9/cOUJOiI=", "exact")
	if kind == nil {
		t.Fatal("Expected wildcard network pattern to match a concrete network")
	}
}
