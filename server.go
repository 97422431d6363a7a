package x402

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// X402ResourceServer manages payment requirements and verification for
// protected resources. This is used by servers/APIs that want to charge for access.
type X402ResourceServer struct {
	mu                    sync.RWMutex
	schemes               *registry[SchemeServer]
	facilitatorClients    []FacilitatorClient
	supportedCache        *SupportedCache
	facilitatorClientsMap *registry[FacilitatorClient]

	// Lifecycle hooks.
	beforeVerifyHooks    []BeforeVerifyHook
	afterVerifyHooks     []AfterVerifyHook
	onVerifyFailureHooks []OnVerifyFailureHook
	beforeSettleHooks    []BeforeSettleHook
	afterSettleHooks     []AfterSettleHook
	onSettleFailureHooks []OnSettleFailureHook
}

// SupportedCache caches facilitator capabilities.
type SupportedCache struct {
	mu     sync.RWMutex
	data   map[string]SupportedResponse // key is facilitator identifier
	expiry map[string]time.Time
	ttl    time.Duration
}

// ResourceServerOption configures the server.
type ResourceServerOption func(*X402ResourceServer)

// WithFacilitatorClient adds a facilitator client.
func WithFacilitatorClient(client FacilitatorClient) ResourceServerOption {
	return func(s *X402ResourceServer) {
		s.facilitatorClients = append(s.facilitatorClients, client)
	}
}

// WithSchemeServer registers a scheme server implementation.
func WithSchemeServer(network Network, schemeServer SchemeServer) ResourceServerOption {
	return func(s *X402ResourceServer) {
		s.registerScheme(network, schemeServer)
	}
}

// WithCacheTTL sets the cache TTL for supported kinds.
func WithCacheTTL(ttl time.Duration) ResourceServerOption {
	return func(s *X402ResourceServer) {
		s.supportedCache.ttl = ttl
	}
}

func Newx402ResourceServer(opts ...ResourceServerOption) *X402ResourceServer {
	s := &X402ResourceServer{
		schemes:            newRegistry[SchemeServer](),
		facilitatorClients: []FacilitatorClient{},
		supportedCache: &SupportedCache{
			data:   make(map[string]SupportedResponse),
			expiry: make(map[string]time.Time),
			ttl:    5 * time.Minute,
		},
		facilitatorClientsMap: newRegistry[FacilitatorClient](),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Initialize fetches supported payment kinds from all facilitators. Should be
// called on startup to populate the cache and build the facilitator routing map.
func (s *X402ResourceServer) Initialize(ctx context.Context) error {
	facilitatorMap := newRegistry[FacilitatorClient]()

	var lastErr error
	successCount := 0

	// Process facilitators in order (earlier ones get precedence).
	for i, client := range s.facilitatorClients {
		supported, err := client.GetSupported(ctx)
		if err != nil {
			lastErr = fmt.Errorf("facilitator %d: %w", i, err)
			continue
		}

		key := fmt.Sprintf("facilitator_%d", i)
		s.supportedCache.Set(key, supported)
		successCount++

		for _, kind := range supported.Kinds {
			if _, exists := facilitatorMap.Lookup(kind.Scheme, kind.Network); !exists {
				facilitatorMap.Register(kind.Scheme, kind.Network, client)
			}
		}
	}

	if successCount == 0 && lastErr != nil {
		return fmt.Errorf("failed to initialize any facilitators: %w", lastErr)
	}

	s.mu.Lock()
	s.facilitatorClientsMap = facilitatorMap
	s.mu.Unlock()

	return nil
}

func (s *X402ResourceServer) Register(network Network, schemeServer SchemeServer) *X402ResourceServer {
	return s.registerScheme(network, schemeServer)
}

func (s *X402ResourceServer) registerScheme(network Network, schemeServer SchemeServer) *X402ResourceServer {
	s.schemes.Register(schemeServer.Scheme(), network, schemeServer)
	return s
}

// ============================================================================
// Hook Registration Methods (Chainable)
// ============================================================================

// OnBeforeVerify registers a hook to execute before payment verification.
// Can abort verification by returning a result with Abort=true.
func (s *X402ResourceServer) OnBeforeVerify(hook BeforeVerifyHook) *X402ResourceServer {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.beforeVerifyHooks = append(s.beforeVerifyHooks, hook)
	return s
}

// OnAfterVerify registers a hook to execute after successful payment verification.
func (s *X402ResourceServer) OnAfterVerify(hook AfterVerifyHook) *X402ResourceServer {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.afterVerifyHooks = append(s.afterVerifyHooks, hook)
	return s
}

// OnVerifyFailure registers a hook to execute when payment verification
// fails. Can recover from failure by returning a result with Recovered=true.
func (s *X402ResourceServer) OnVerifyFailure(hook OnVerifyFailureHook) *X402ResourceServer {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onVerifyFailureHooks = append(s.onVerifyFailureHooks, hook)
	return s
}

// OnBeforeSettle registers a hook to execute before payment settlement.
// Can abort settlement by returning a result with Abort=true.
func (s *X402ResourceServer) OnBeforeSettle(hook BeforeSettleHook) *X402ResourceServer {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.beforeSettleHooks = append(s.beforeSettleHooks, hook)
	return s
}

// OnAfterSettle registers a hook to execute after successful payment settlement.
func (s *X402ResourceServer) OnAfterSettle(hook AfterSettleHook) *X402ResourceServer {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.afterSettleHooks = append(s.afterSettleHooks, hook)
	return s
}

// OnSettleFailure registers a hook to execute when payment settlement fails.
// Can recover from failure by returning a result with Recovered=true.
func (s *X402ResourceServer) OnSettleFailure(hook OnSettleFailureHook) *X402ResourceServer {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onSettleFailureHooks = append(s.onSettleFailureHooks, hook)
	return s
}

// BuildPaymentRequirements creates payment requirements for a resource.
func (s *X402ResourceServer) BuildPaymentRequirements(ctx context.Context, config ResourceConfig, payToCtx PayToContext) ([]PaymentRequirements, error) {
	schemeServer, ok := s.schemes.Lookup(config.Scheme, config.Network)
	if !ok {
		return nil, &PaymentError{
			Code:    ErrUnsupportedScheme,
			Message: fmt.Sprintf("no server registered for scheme %s on network %s", config.Scheme, config.Network),
		}
	}

	supportedKind := s.findSupportedKind(config.Network, config.Scheme)
	if supportedKind == nil {
		return nil, &PaymentError{
			Code:    ErrNetworkMismatch,
			Message: fmt.Sprintf("facilitator does not support %s on %s", config.Scheme, config.Network),
			Details: map[string]interface{}{
				"hint": "call Initialize() to fetch supported kinds from facilitators",
			},
		}
	}

	assetAmount, err := schemeServer.ParsePrice(config.Price, config.Network)
	if err != nil {
		return nil, fmt.Errorf("failed to parse price: %w", err)
	}

	payTo := config.PayTo
	if config.PayToFunc != nil {
		payTo, err = config.PayToFunc(payToCtx)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve payTo: %w", err)
		}
	}

	baseRequirements := PaymentRequirements{
		Scheme:            config.Scheme,
		Network:           config.Network,
		Asset:             assetAmount.Asset,
		Amount:            assetAmount.Amount,
		PayTo:             payTo,
		MaxTimeoutSeconds: config.MaxTimeoutSeconds,
		Extra:             assetAmount.Extra,
	}

	if baseRequirements.MaxTimeoutSeconds == 0 {
		baseRequirements.MaxTimeoutSeconds = 300 // 5 minutes default
	}

	extensions := s.getFacilitatorExtensions(config.Network, config.Scheme)

	enhanced, err := schemeServer.EnhancePaymentRequirements(ctx, baseRequirements, *supportedKind, extensions)
	if err != nil {
		return nil, fmt.Errorf("failed to enhance payment requirements: %w", err)
	}

	return []PaymentRequirements{enhanced}, nil
}

// CreatePaymentRequiredResponse creates a 402 response body.
func (s *X402ResourceServer) CreatePaymentRequiredResponse(
	requirements []PaymentRequirements,
	resource string,
	errorMsg string,
	extensions map[string]interface{},
) PaymentRequired {
	response := PaymentRequired{
		X402Version: ProtocolVersion,
		Error:       errorMsg,
		Resource:    resource,
		Accepts:     requirements,
		Extensions:  extensions,
	}

	if errorMsg == "" {
		response.Error = "Payment required"
	}

	return response
}

// VerifyPayment verifies a payment against requirements, routing to the
// facilitator registered for the requirements' (scheme, network).
func (s *X402ResourceServer) VerifyPayment(ctx context.Context, payload PaymentPayload, requirements PaymentRequirements) (VerifyResponse, error) {
	hookCtx := VerifyContext{
		Ctx:          ctx,
		Payload:      payload,
		Requirements: requirements,
		Timestamp:    time.Now(),
	}

	s.mu.RLock()
	beforeHooks := s.beforeVerifyHooks
	s.mu.RUnlock()

	for _, hook := range beforeHooks {
		result, _ := hook(hookCtx)
		if result != nil && result.Abort {
			return VerifyResponse{
				IsValid:       false,
				InvalidReason: result.Reason,
			}, nil
		}
	}

	var verifyResult VerifyResponse
	var verifyErr error

	facilitator, ok := s.findFacilitatorForPayment(requirements.Network, requirements.Scheme)
	if !ok {
		// Fall back to trying every registered facilitator.
		var lastErr error
		for _, client := range s.facilitatorClients {
			resp, err := client.Verify(ctx, payload, requirements)
			if err == nil {
				verifyResult = resp
				lastErr = nil
				break
			}
			lastErr = err
		}
		if lastErr != nil {
			verifyErr = &PaymentError{
				Code:    ErrNetworkMismatch,
				Message: "no facilitator supports this payment type",
			}
			verifyResult = VerifyResponse{
				IsValid:       false,
				InvalidReason: "no facilitator available for verification",
			}
		}
	} else {
		verifyResult, verifyErr = facilitator.Verify(ctx, payload, requirements)
	}

	if verifyErr == nil {
		s.mu.RLock()
		afterHooks := s.afterVerifyHooks
		s.mu.RUnlock()

		resultCtx := VerifyResultContext{
			VerifyContext: hookCtx,
			Result:        verifyResult,
		}
		for _, hook := range afterHooks {
			_ = hook(resultCtx)
		}

		return verifyResult, nil
	}

	s.mu.RLock()
	failureHooks := s.onVerifyFailureHooks
	s.mu.RUnlock()

	failureCtx := VerifyFailureContext{
		VerifyContext: hookCtx,
		Error:         verifyErr,
	}

	for _, hook := range failureHooks {
		result, _ := hook(failureCtx)
		if result != nil && result.Recovered {
			return result.Result, nil
		}
	}

	return verifyResult, verifyErr
}

// SettlePayment settles a verified payment, routing to the facilitator
// registered for the requirements' (scheme, network).
func (s *X402ResourceServer) SettlePayment(ctx context.Context, payload PaymentPayload, requirements PaymentRequirements) (SettleResponse, error) {
	hookCtx := SettleContext{
		Ctx:          ctx,
		Payload:      payload,
		Requirements: requirements,
		Timestamp:    time.Now(),
	}

	s.mu.RLock()
	beforeHooks := s.beforeSettleHooks
	s.mu.RUnlock()

	for _, hook := range beforeHooks {
		result, _ := hook(hookCtx)
		if result != nil && result.Abort {
			return SettleResponse{
				Success:     false,
				ErrorReason: fmt.Sprintf("settlement aborted: %s", result.Reason),
				Network:     requirements.Network,
			}, fmt.Errorf("settlement aborted: %s", result.Reason)
		}
	}

	var settleResult SettleResponse
	var settleErr error

	facilitator, ok := s.findFacilitatorForPayment(requirements.Network, requirements.Scheme)
	if !ok {
		var lastErr error
		for _, client := range s.facilitatorClients {
			resp, err := client.Settle(ctx, payload, requirements)
			if err == nil {
				settleResult = resp
				lastErr = nil
				break
			}
			lastErr = err
		}
		if !settleResult.Success && lastErr != nil {
			settleErr = &PaymentError{
				Code:    ErrTransactionFailed,
				Message: "no facilitator supports this payment type",
			}
			settleResult = SettleResponse{
				Success:     false,
				ErrorReason: "no facilitator available for settlement",
				Network:     requirements.Network,
			}
		}
	} else {
		settleResult, settleErr = facilitator.Settle(ctx, payload, requirements)
	}

	if settleErr == nil && settleResult.Success {
		s.mu.RLock()
		afterHooks := s.afterSettleHooks
		s.mu.RUnlock()

		resultCtx := SettleResultContext{
			SettleContext: hookCtx,
			Result:        settleResult,
		}
		for _, hook := range afterHooks {
			_ = hook(resultCtx)
		}

		return settleResult, nil
	}

	s.mu.RLock()
	failureHooks := s.onSettleFailureHooks
	s.mu.RUnlock()

	failureCtx := SettleFailureContext{
		SettleContext: hookCtx,
		Error:         settleErr,
	}

	for _, hook := range failureHooks {
		result, _ := hook(failureCtx)
		if result != nil && result.Recovered {
			return result.Result, nil
		}
	}

	return settleResult, settleErr
}

// FindMatchingRequirements finds the offered requirements that a payment
// payload's accepted field names.
func (s *X402ResourceServer) FindMatchingRequirements(available []PaymentRequirements, payload PaymentPayload) *PaymentRequirements {
	for i := range available {
		if available[i].Equal(payload.Accepted) {
			return &available[i]
		}
	}
	return nil
}

// ProcessResult contains the result of processing a payment request.
type ProcessResult struct {
	Success            bool
	RequiresPayment    *PaymentRequired
	VerificationResult *VerifyResponse
	SettlementResult   *SettleResponse
	Error              string
}

// ProcessPaymentRequest processes a payment request end-to-end: build the
// requirements, match the submitted payload (if any) against them, and verify.
func (s *X402ResourceServer) ProcessPaymentRequest(
	ctx context.Context,
	paymentPayload *PaymentPayload,
	resourceConfig ResourceConfig,
	resourceInfo ResourceInfo,
	extensions map[string]interface{},
) (*ProcessResult, error) {
	payToCtx := PayToContext{Resource: resourceInfo.URL}
	requirements, err := s.BuildPaymentRequirements(ctx, resourceConfig, payToCtx)
	if err != nil {
		return nil, err
	}

	if paymentPayload == nil {
		return &ProcessResult{
			Success: false,
			RequiresPayment: &PaymentRequired{
				X402Version: ProtocolVersion,
				Error:       "Payment required",
				Resource:    resourceInfo.URL,
				Accepts:     requirements,
				Extensions:  extensions,
			},
		}, nil
	}

	matchingRequirements := s.FindMatchingRequirements(requirements, *paymentPayload)
	if matchingRequirements == nil {
		return &ProcessResult{
			Success: false,
			RequiresPayment: &PaymentRequired{
				X402Version: ProtocolVersion,
				Error:       "No matching payment requirements found",
				Resource:    resourceInfo.URL,
				Accepts:     requirements,
				Extensions:  extensions,
			},
		}, nil
	}

	verificationResult, err := s.VerifyPayment(ctx, *paymentPayload, *matchingRequirements)
	if err != nil {
		return nil, err
	}

	if !verificationResult.IsValid {
		return &ProcessResult{
			Success:            false,
			Error:              verificationResult.InvalidReason,
			VerificationResult: &verificationResult,
		}, nil
	}

	return &ProcessResult{
		Success:            true,
		VerificationResult: &verificationResult,
	}, nil
}

// Helper methods

// findSupportedKind finds a v2 supported kind from the cache matching network+scheme.
func (s *X402ResourceServer) findSupportedKind(network Network, scheme string) *SupportedKind {
	s.supportedCache.mu.RLock()
	defer s.supportedCache.mu.RUnlock()

	for key, supported := range s.supportedCache.data {
		if expiry, exists := s.supportedCache.expiry[key]; exists {
			if time.Now().After(expiry) {
				continue
			}
		}

		for _, kind := range supported.Kinds {
			if kind.X402Version == ProtocolVersion && kind.Scheme == scheme && network.Matches(kind.Network) {
				k := kind
				return &k
			}
		}
	}

	return nil
}

// getFacilitatorExtensions gets the extensions declared alongside a supported kind.
func (s *X402ResourceServer) getFacilitatorExtensions(network Network, scheme string) []string {
	s.supportedCache.mu.RLock()
	defer s.supportedCache.mu.RUnlock()

	for _, supported := range s.supportedCache.data {
		for _, kind := range supported.Kinds {
			if kind.X402Version == ProtocolVersion && kind.Scheme == scheme && network.Matches(kind.Network) {
				return supported.Extensions
			}
		}
	}

	return []string{}
}

// findFacilitatorForPayment finds the facilitator client registered for a payment type.
func (s *X402ResourceServer) findFacilitatorForPayment(network Network, scheme string) (FacilitatorClient, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.facilitatorClientsMap.Lookup(scheme, network)
}

// Set adds an item to the cache.
func (c *SupportedCache) Set(key string, value SupportedResponse) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.data[key] = value
	c.expiry[key] = time.Now().Add(c.ttl)
}

// Clear clears the cache.
func (c *SupportedCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.data = make(map[string]SupportedResponse)
	c.expiry = make(map[string]time.Time)
}
