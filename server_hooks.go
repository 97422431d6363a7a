package x402

import (
	"context"
	"time"
)

// ============================================================================
// Resource Server Hook Context Types
// ============================================================================

// VerifyContext contains information passed to verify hooks.
type VerifyContext struct {
	Ctx             context.Context
	Payload         PaymentPayload
	Requirements    PaymentRequirements
	Timestamp       time.Time
	RequestMetadata map[string]interface{}
}

// VerifyResultContext contains verify operation result and context.
type VerifyResultContext struct {
	VerifyContext
	Result   VerifyResponse
	Duration time.Duration
}

// VerifyFailureContext contains verify operation failure and context.
type VerifyFailureContext struct {
	VerifyContext
	Error    error
	Duration time.Duration
}

// SettleContext contains information passed to settle hooks.
type SettleContext struct {
	Ctx             context.Context
	Payload         PaymentPayload
	Requirements    PaymentRequirements
	Timestamp       time.Time
	RequestMetadata map[string]interface{}
}

// SettleResultContext contains settle operation result and context.
type SettleResultContext struct {
	SettleContext
	Result   SettleResponse
	Duration time.Duration
}

// SettleFailureContext contains settle operation failure and context.
type SettleFailureContext struct {
	SettleContext
	Error    error
	Duration time.Duration
}

// ============================================================================
// Resource Server Hook Result Types
// ============================================================================

// BeforeHookResult represents the result of a "before" hook. If Abort is
// true, the operation is aborted with the given Reason.
type BeforeHookResult struct {
	Abort  bool
	Reason string
}

// VerifyFailureHookResult represents the result of a verify failure hook.
// If Recovered is true, the hook supplies Result in place of the error.
type VerifyFailureHookResult struct {
	Recovered bool
	Result    VerifyResponse
}

// SettleFailureHookResult represents the result of a settle failure hook.
type SettleFailureHookResult struct {
	Recovered bool
	Result    SettleResponse
}

// ============================================================================
// Resource Server Hook Function Types
// ============================================================================

// BeforeVerifyHook is called before payment verification. If it returns a
// result with Abort=true, verification is skipped and an invalid
// VerifyResponse is returned with the provided reason.
type BeforeVerifyHook func(VerifyContext) (*BeforeHookResult, error)

// AfterVerifyHook is called after successful payment verification.
type AfterVerifyHook func(VerifyResultContext) error

// OnVerifyFailureHook is called when payment verification fails. If it
// returns a result with Recovered=true, the provided VerifyResponse is
// returned instead of the error.
type OnVerifyFailureHook func(VerifyFailureContext) (*VerifyFailureHookResult, error)

// BeforeSettleHook is called before payment settlement. If it returns a
// result with Abort=true, settlement is aborted.
type BeforeSettleHook func(SettleContext) (*BeforeHookResult, error)

// AfterSettleHook is called after successful payment settlement.
type AfterSettleHook func(SettleResultContext) error

// OnSettleFailureHook is called when payment settlement fails. If it returns
// a result with Recovered=true, the provided SettleResponse is returned
// instead of the error.
type OnSettleFailureHook func(SettleFailureContext) (*SettleFailureHookResult, error)

// ============================================================================
// Resource Server Hook Registration Options
// ============================================================================

// WithBeforeVerifyHook registers a hook to execute before payment verification.
func WithBeforeVerifyHook(hook BeforeVerifyHook) ResourceServerOption {
	return func(s *X402ResourceServer) {
		s.beforeVerifyHooks = append(s.beforeVerifyHooks, hook)
	}
}

// WithAfterVerifyHook registers a hook to execute after successful payment verification.
func WithAfterVerifyHook(hook AfterVerifyHook) ResourceServerOption {
	return func(s *X402ResourceServer) {
		s.afterVerifyHooks = append(s.afterVerifyHooks, hook)
	}
}

// WithOnVerifyFailureHook registers a hook to execute when payment verification fails.
func WithOnVerifyFailureHook(hook OnVerifyFailureHook) ResourceServerOption {
	return func(s *X402ResourceServer) {
		s.onVerifyFailureHooks = append(s.onVerifyFailureHooks, hook)
	}
}

// WithBeforeSettleHook registers a hook to execute before payment settlement.
func WithBeforeSettleHook(hook BeforeSettleHook) ResourceServerOption {
	return func(s *X402ResourceServer) {
		s.beforeSettleHooks = append(s.beforeSettleHooks, hook)
	}
}

// WithAfterSettleHook registers a hook to execute after successful payment settlement.
func WithAfterSettleHook(hook AfterSettleHook) ResourceServerOption {
	return func(s *X402ResourceServer) {
		s.afterSettleHooks = append(s.afterSettleHooks, hook)
	}
}

// WithOnSettleFailureHook registers a hook to execute when payment settlement fails.
func WithOnSettleFailureHook(hook OnSettleFailureHook) ResourceServerOption {
	return func(s *X402ResourceServer) {
		s.onSettleFailureHooks = append(s.onSettleFailureHooks, hook)
	}
}
