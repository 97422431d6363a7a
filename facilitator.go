package x402

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// X402Facilitator manages payment verification and settlement. This is used
// by payment processors that execute on-chain transactions.
type X402Facilitator struct {
	mu sync.RWMutex

	// scheme+network -> facilitator implementation, most-specific-wins.
	schemes *registry[SchemeFacilitator]

	// Extensions this facilitator supports (e.g. "bazaar", "sign_in_with_x").
	extensions []string

	// settlementCache gives settle idempotency across client retries.
	settlementCache *SettlementCache

	// Lifecycle hooks.
	beforeVerifyHooks    []FacilitatorBeforeVerifyHook
	afterVerifyHooks     []FacilitatorAfterVerifyHook
	onVerifyFailureHooks []FacilitatorOnVerifyFailureHook
	beforeSettleHooks    []FacilitatorBeforeSettleHook
	afterSettleHooks     []FacilitatorAfterSettleHook
	onSettleFailureHooks []FacilitatorOnSettleFailureHook
}

// FacilitatorOption configures the facilitator.
type FacilitatorOption func(*X402Facilitator)

// WithSettlementCacheTTL sets how long a settle result stays cached for idempotent retries.
func WithSettlementCacheTTL(ttl time.Duration) FacilitatorOption {
	return func(f *X402Facilitator) {
		f.settlementCache = NewSettlementCache(ttl)
	}
}

// Newx402Facilitator creates a new facilitator.
func Newx402Facilitator(opts ...FacilitatorOption) *X402Facilitator {
	f := &X402Facilitator{
		schemes:         newRegistry[SchemeFacilitator](),
		extensions:      []string{},
		settlementCache: NewSettlementCache(5 * time.Minute),
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// RegisterScheme registers a payment mechanism for a network pattern.
func (f *X402Facilitator) RegisterScheme(network Network, facilitator SchemeFacilitator) *X402Facilitator {
	f.schemes.Register(facilitator.Scheme(), network, facilitator)
	return f
}

// RegisterExtension registers a protocol extension.
func (f *X402Facilitator) RegisterExtension(extension string) *X402Facilitator {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, ext := range f.extensions {
		if ext == extension {
			return f
		}
	}

	f.extensions = append(f.extensions, extension)
	return f
}

// ============================================================================
// Hook Registration Methods (Chainable)
// ============================================================================

// OnBeforeVerify registers a hook to execute before payment verification.
func (f *X402Facilitator) OnBeforeVerify(hook FacilitatorBeforeVerifyHook) *X402Facilitator {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.beforeVerifyHooks = append(f.beforeVerifyHooks, hook)
	return f
}

// OnAfterVerify registers a hook to execute after successful payment verification.
func (f *X402Facilitator) OnAfterVerify(hook FacilitatorAfterVerifyHook) *X402Facilitator {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.afterVerifyHooks = append(f.afterVerifyHooks, hook)
	return f
}

// OnVerifyFailure registers a hook to execute when payment verification fails.
func (f *X402Facilitator) OnVerifyFailure(hook FacilitatorOnVerifyFailureHook) *X402Facilitator {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onVerifyFailureHooks = append(f.onVerifyFailureHooks, hook)
	return f
}

// OnBeforeSettle registers a hook to execute before payment settlement.
func (f *X402Facilitator) OnBeforeSettle(hook FacilitatorBeforeSettleHook) *X402Facilitator {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.beforeSettleHooks = append(f.beforeSettleHooks, hook)
	return f
}

// OnAfterSettle registers a hook to execute after successful payment settlement.
func (f *X402Facilitator) OnAfterSettle(hook FacilitatorAfterSettleHook) *X402Facilitator {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.afterSettleHooks = append(f.afterSettleHooks, hook)
	return f
}

// OnSettleFailure registers a hook to execute when payment settlement fails.
func (f *X402Facilitator) OnSettleFailure(hook FacilitatorOnSettleFailureHook) *X402Facilitator {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onSettleFailureHooks = append(f.onSettleFailureHooks, hook)
	return f
}

// Verify checks if a payment is valid without executing it.
func (f *X402Facilitator) Verify(ctx context.Context, payload PaymentPayload, requirements PaymentRequirements) (VerifyResponse, error) {
	hookCtx := FacilitatorVerifyContext{
		Ctx:                 ctx,
		PaymentPayload:      payload,
		PaymentRequirements: requirements,
		Timestamp:           time.Now(),
	}

	f.mu.RLock()
	beforeHooks := f.beforeVerifyHooks
	f.mu.RUnlock()

	for _, hook := range beforeHooks {
		result, _ := hook(hookCtx)
		if result != nil && result.Abort {
			return VerifyResponse{IsValid: false, InvalidReason: result.Reason}, nil
		}
	}

	verifyResult, verifyErr := f.dispatchVerify(ctx, payload, requirements)

	if verifyErr == nil {
		f.mu.RLock()
		afterHooks := f.afterVerifyHooks
		f.mu.RUnlock()

		resultCtx := FacilitatorVerifyResultContext{
			FacilitatorVerifyContext: hookCtx,
			Result:                   verifyResult,
		}
		for _, hook := range afterHooks {
			_ = hook(resultCtx)
		}

		return verifyResult, nil
	}

	f.mu.RLock()
	failureHooks := f.onVerifyFailureHooks
	f.mu.RUnlock()

	failureCtx := FacilitatorVerifyFailureContext{
		FacilitatorVerifyContext: hookCtx,
		Error:                    verifyErr,
	}
	for _, hook := range failureHooks {
		result, _ := hook(failureCtx)
		if result != nil && result.Recovered {
			return result.Result, nil
		}
	}

	return verifyResult, verifyErr
}

func (f *X402Facilitator) dispatchVerify(ctx context.Context, payload PaymentPayload, requirements PaymentRequirements) (VerifyResponse, error) {
	scheme, ok := f.schemes.Lookup(requirements.Scheme, requirements.Network)
	if !ok {
		return VerifyResponse{
				IsValid:       false,
				InvalidReason: fmt.Sprintf("unsupported scheme %s on network %s", requirements.Scheme, requirements.Network),
			}, &PaymentError{
				Code:    ErrUnsupportedScheme,
				Message: fmt.Sprintf("no facilitator for scheme %s on network %s", requirements.Scheme, requirements.Network),
			}
	}
	return scheme.Verify(ctx, payload, requirements)
}

// Settle executes a payment on-chain. Repeated calls with the same payload
// return the cached result instead of resubmitting, so client retries after a
// timeout never double-spend.
func (f *X402Facilitator) Settle(ctx context.Context, payload PaymentPayload, requirements PaymentRequirements) (SettleResponse, error) {
	hookCtx := FacilitatorSettleContext{
		Ctx:                 ctx,
		PaymentPayload:      payload,
		PaymentRequirements: requirements,
		Timestamp:           time.Now(),
	}

	f.mu.RLock()
	beforeHooks := f.beforeSettleHooks
	f.mu.RUnlock()

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

	settleResult, settleErr := f.settleIdempotent(ctx, payload, requirements)

	if settleErr == nil && settleResult.Success {
		f.mu.RLock()
		afterHooks := f.afterSettleHooks
		f.mu.RUnlock()

		resultCtx := FacilitatorSettleResultContext{
			FacilitatorSettleContext: hookCtx,
			Result:                   settleResult,
		}
		for _, hook := range afterHooks {
			_ = hook(resultCtx)
		}

		return settleResult, nil
	}

	f.mu.RLock()
	failureHooks := f.onSettleFailureHooks
	f.mu.RUnlock()

	failureCtx := FacilitatorSettleFailureContext{
		FacilitatorSettleContext: hookCtx,
		Error:                    settleErr,
	}
	for _, hook := range failureHooks {
		result, _ := hook(failureCtx)
		if result != nil && result.Recovered {
			return result.Result, nil
		}
	}

	return settleResult, settleErr
}

func (f *X402Facilitator) settleIdempotent(ctx context.Context, payload PaymentPayload, requirements PaymentRequirements) (SettleResponse, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return SettleResponse{Success: false, ErrorReason: "failed to serialize payload", Network: requirements.Network}, err
	}
	key := GenerateSettlementKey(payloadBytes)

	status, cached, done := f.settlementCache.CheckAndMark(key)
	switch status {
	case StatusCached:
		return *cached, nil
	case StatusInFlight:
		result, err := f.settlementCache.WaitForResult(ctx, key, done)
		if err != nil {
			return SettleResponse{Success: false, ErrorReason: "settlement wait canceled", Network: requirements.Network}, err
		}
		if result != nil {
			return *result, nil
		}
		// The in-flight attempt failed without caching a result; fall through and retry.
		return f.settleAndCache(ctx, payload, requirements)
	default:
		return f.doSettleMarked(ctx, payload, requirements, key, done)
	}
}

func (f *X402Facilitator) doSettleMarked(ctx context.Context, payload PaymentPayload, requirements PaymentRequirements, key string, done chan struct{}) (SettleResponse, error) {
	result, err := f.dispatchSettle(ctx, payload, requirements)
	if err == nil && result.Success {
		f.settlementCache.Complete(key, &result, done)
	} else {
		f.settlementCache.Fail(key, done)
	}
	return result, err
}

func (f *X402Facilitator) settleAndCache(ctx context.Context, payload PaymentPayload, requirements PaymentRequirements) (SettleResponse, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return SettleResponse{Success: false, ErrorReason: "failed to serialize payload", Network: requirements.Network}, err
	}
	key := GenerateSettlementKey(payloadBytes)
	status, cached, done := f.settlementCache.CheckAndMark(key)
	if status == StatusCached {
		return *cached, nil
	}
	return f.doSettleMarked(ctx, payload, requirements, key, done)
}

func (f *X402Facilitator) dispatchSettle(ctx context.Context, payload PaymentPayload, requirements PaymentRequirements) (SettleResponse, error) {
	scheme, ok := f.schemes.Lookup(requirements.Scheme, requirements.Network)
	if !ok {
		return SettleResponse{
				Success:     false,
				ErrorReason: fmt.Sprintf("unsupported scheme %s on network %s", requirements.Scheme, requirements.Network),
				Network:     requirements.Network,
			}, &PaymentError{
				Code:    ErrUnsupportedScheme,
				Message: fmt.Sprintf("no facilitator for scheme %s on network %s", requirements.Scheme, requirements.Network),
			}
	}
	return scheme.Settle(ctx, payload, requirements)
}

// GetSupported returns the payment kinds this facilitator supports.
func (f *X402Facilitator) GetSupported() SupportedResponse {
	f.mu.RLock()
	extensions := f.extensions
	f.mu.RUnlock()

	response := SupportedResponse{
		Kinds:      []SupportedKind{},
		Extensions: extensions,
	}

	seenSigners := make(map[string]bool)
	for _, row := range f.schemes.Registered() {
		response.Kinds = append(response.Kinds, SupportedKind{
			X402Version: ProtocolVersion,
			Scheme:      row.scheme,
			Network:     row.pattern,
			Extra:       row.handler.GetExtra(row.pattern),
		})
		for _, signer := range row.handler.GetSigners(row.pattern) {
			if !seenSigners[signer] {
				seenSigners[signer] = true
				response.Signers = append(response.Signers, signer)
			}
		}
	}

	return response
}

// CanHandle reports whether the facilitator can handle a payment type.
func (f *X402Facilitator) CanHandle(network Network, scheme string) bool {
	_, ok := f.schemes.Lookup(scheme, network)
	return ok
}

// LocalFacilitatorClient wraps a local facilitator to implement FacilitatorClient.
// This allows using a local facilitator in the same process as the resource server.
type LocalFacilitatorClient struct {
	facilitator *X402Facilitator
	identifier  string
}

// NewLocalFacilitatorClient creates a facilitator client backed by a local facilitator.
func NewLocalFacilitatorClient(facilitator *X402Facilitator) *LocalFacilitatorClient {
	return &LocalFacilitatorClient{
		facilitator: facilitator,
		identifier:  "local",
	}
}

// Verify implements FacilitatorClient.
func (c *LocalFacilitatorClient) Verify(ctx context.Context, payload PaymentPayload, requirements PaymentRequirements) (VerifyResponse, error) {
	return c.facilitator.Verify(ctx, payload, requirements)
}

// Settle implements FacilitatorClient.
func (c *LocalFacilitatorClient) Settle(ctx context.Context, payload PaymentPayload, requirements PaymentRequirements) (SettleResponse, error) {
	return c.facilitator.Settle(ctx, payload, requirements)
}

// GetSupported implements FacilitatorClient.
func (c *LocalFacilitatorClient) GetSupported(ctx context.Context) (SupportedResponse, error) {
	return c.facilitator.GetSupported(), nil
}
