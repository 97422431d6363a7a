package x402

import (
	"context"
	"fmt"
	"sync"
)

// X402Client manages payment mechanisms and creates payment payloads.
// This is used by applications that need to make payments (have wallets/signers).
type X402Client struct {
	mu sync.RWMutex

	// scheme+network -> client implementation, most-specific-wins.
	schemes *registry[SchemeClient]

	// Function to select payment requirements when multiple options exist.
	requirementsSelector PaymentRequirementsSelector

	// Policies to filter/transform payment requirements.
	policies []PaymentPolicy

	// Lifecycle hooks.
	beforePaymentCreationHooks    []BeforePaymentCreationHook
	afterPaymentCreationHooks     []AfterPaymentCreationHook
	onPaymentCreationFailureHooks []OnPaymentCreationFailureHook
}

// PaymentRequirementsSelector chooses which payment option to use.
type PaymentRequirementsSelector func(requirements []PaymentRequirements) PaymentRequirements

// PaymentPolicy filters or transforms payment requirements. Policies are
// applied in order before the selector chooses the final option.
type PaymentPolicy func(requirements []PaymentRequirements) []PaymentRequirements

// SchemeRegistration defines configuration for registering a payment scheme.
type SchemeRegistration struct {
	Network Network
	Client  SchemeClient
}

// X402ClientConfig holds configuration for creating an x402 client.
type X402ClientConfig struct {
	Schemes                     []SchemeRegistration
	Policies                    []PaymentPolicy
	PaymentRequirementsSelector PaymentRequirementsSelector
}

// ClientOption configures the client.
type ClientOption func(*X402Client)

// WithPaymentSelector sets a custom payment requirements selector.
func WithPaymentSelector(selector PaymentRequirementsSelector) ClientOption {
	return func(c *X402Client) {
		c.requirementsSelector = selector
	}
}

// WithPolicy registers a payment policy at creation time.
func WithPolicy(policy PaymentPolicy) ClientOption {
	return func(c *X402Client) {
		c.policies = append(c.policies, policy)
	}
}

// WithScheme registers a payment mechanism at creation time.
func WithScheme(network Network, client SchemeClient) ClientOption {
	return func(c *X402Client) {
		c.schemes.Register(client.Scheme(), network, client)
	}
}

// Newx402Client creates a new x402 client.
func Newx402Client(opts ...ClientOption) *X402Client {
	c := &X402Client{
		schemes:              newRegistry[SchemeClient](),
		requirementsSelector: defaultPaymentSelector,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Newx402ClientFromConfig creates an x402 client from a configuration object.
func Newx402ClientFromConfig(config X402ClientConfig) *X402Client {
	selector := config.PaymentRequirementsSelector
	if selector == nil {
		selector = defaultPaymentSelector
	}

	c := &X402Client{
		schemes:              newRegistry[SchemeClient](),
		requirementsSelector: selector,
	}

	for _, reg := range config.Schemes {
		c.schemes.Register(reg.Client.Scheme(), reg.Network, reg.Client)
	}

	c.policies = append(c.policies, config.Policies...)

	return c
}

// defaultPaymentSelector chooses the first available payment option.
func defaultPaymentSelector(requirements []PaymentRequirements) PaymentRequirements {
	if len(requirements) == 0 {
		panic("no payment requirements available")
	}
	return requirements[0]
}

// RegisterScheme registers a payment mechanism for a network pattern.
func (c *X402Client) RegisterScheme(network Network, client SchemeClient) *X402Client {
	c.schemes.Register(client.Scheme(), network, client)
	return c
}

// RegisterPolicy registers a policy to filter or transform payment requirements.
// Policies run in order, after filtering by registered schemes and before the
// selector chooses the final payment requirement.
func (c *X402Client) RegisterPolicy(policy PaymentPolicy) *X402Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.policies = append(c.policies, policy)
	return c
}

// OnBeforePaymentCreation registers a hook to execute before payment payload
// creation. Can abort creation by returning a result with Abort=true.
func (c *X402Client) OnBeforePaymentCreation(hook BeforePaymentCreationHook) *X402Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.beforePaymentCreationHooks = append(c.beforePaymentCreationHooks, hook)
	return c
}

// OnAfterPaymentCreation registers a hook to execute after successful payment creation.
func (c *X402Client) OnAfterPaymentCreation(hook AfterPaymentCreationHook) *X402Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.afterPaymentCreationHooks = append(c.afterPaymentCreationHooks, hook)
	return c
}

// OnPaymentCreationFailure registers a hook to execute when payment creation
// fails. Can recover from failure by returning a result with Recovered=true.
func (c *X402Client) OnPaymentCreationFailure(hook OnPaymentCreationFailureHook) *X402Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onPaymentCreationFailureHooks = append(c.onPaymentCreationFailureHooks, hook)
	return c
}

// SelectPaymentRequirements chooses which payment requirements to use.
// Selection:
//  1. Filter to only those a registered scheme can fulfill
//  2. Apply all registered policies in order
//  3. Use the selector to choose the final requirement
func (c *X402Client) SelectPaymentRequirements(requirements []PaymentRequirements) (PaymentRequirements, error) {
	var supported []PaymentRequirements
	for _, req := range requirements {
		if _, ok := c.schemes.Lookup(req.Scheme, req.Network); ok {
			supported = append(supported, req)
		}
	}

	if len(supported) == 0 {
		return PaymentRequirements{}, &PaymentError{
			Code:    ErrUnsupportedScheme,
			Message: "no supported payment schemes available",
			Details: map[string]interface{}{"requirements": requirements},
		}
	}

	c.mu.RLock()
	policies := c.policies
	selector := c.requirementsSelector
	c.mu.RUnlock()

	filtered := supported
	for _, policy := range policies {
		filtered = policy(filtered)
		if len(filtered) == 0 {
			return PaymentRequirements{}, &PaymentError{
				Code:    ErrUnsupportedScheme,
				Message: "all payment requirements were filtered out by policies",
			}
		}
	}

	return selector(filtered), nil
}

// CreatePaymentPayload builds and signs a payment payload for the given
// requirements, by delegating to the registered scheme handler and wrapping
// its scheme-specific inner payload with the envelope fields (accepted,
// resource, extensions) that are common to every scheme.
func (c *X402Client) CreatePaymentPayload(
	ctx context.Context,
	requirements PaymentRequirements,
	resource string,
	extensions map[string]interface{},
) (PaymentPayload, error) {
	client, ok := c.schemes.Lookup(requirements.Scheme, requirements.Network)
	if !ok {
		return PaymentPayload{}, &PaymentError{
			Code:    ErrUnsupportedScheme,
			Message: fmt.Sprintf("no client registered for scheme %s on network %s", requirements.Scheme, requirements.Network),
		}
	}

	inner, err := client.CreatePaymentPayload(ctx, requirements)
	if err != nil {
		return PaymentPayload{}, fmt.Errorf("failed to create payment payload: %w", err)
	}

	return PaymentPayload{
		X402Version: ProtocolVersion,
		Accepted:    requirements,
		Resource:    resource,
		Extensions:  extensions,
		Payload:     inner,
	}, nil
}

// GetRegisteredSchemes returns the registered (network, scheme) pairs, for debugging.
func (c *X402Client) GetRegisteredSchemes() []struct {
	Network Network
	Scheme  string
} {
	var out []struct {
		Network Network
		Scheme  string
	}
	for _, row := range c.schemes.Registered() {
		out = append(out, struct {
			Network Network
			Scheme  string
		}{Network: row.pattern, Scheme: row.scheme})
	}
	return out
}

// CanPay reports whether the client can pay with any of the given requirements.
func (c *X402Client) CanPay(requirements []PaymentRequirements) bool {
	_, err := c.SelectPaymentRequirements(requirements)
	return err == nil
}

// CreatePaymentForRequired creates a payment for a PaymentRequired response.
func (c *X402Client) CreatePaymentForRequired(ctx context.Context, required PaymentRequired) (PaymentPayload, error) {
	selected, err := c.SelectPaymentRequirements(required.Accepts)
	if err != nil {
		return PaymentPayload{}, err
	}

	hookCtx := PaymentCreationContext{
		Ctx:                  ctx,
		PaymentRequired:      required,
		SelectedRequirements: selected,
	}

	c.mu.RLock()
	beforeHooks := c.beforePaymentCreationHooks
	c.mu.RUnlock()

	for _, hook := range beforeHooks {
		result, _ := hook(hookCtx)
		if result != nil && result.Abort {
			return PaymentPayload{}, fmt.Errorf("payment creation aborted: %s", result.Reason)
		}
	}

	payload, paymentErr := c.CreatePaymentPayload(ctx, selected, required.Resource, required.Extensions)

	if paymentErr == nil {
		c.mu.RLock()
		afterHooks := c.afterPaymentCreationHooks
		c.mu.RUnlock()

		createdCtx := PaymentCreatedContext{
			PaymentCreationContext: hookCtx,
			Payload:                payload,
		}
		for _, hook := range afterHooks {
			_ = hook(createdCtx)
		}

		return payload, nil
	}

	c.mu.RLock()
	failureHooks := c.onPaymentCreationFailureHooks
	c.mu.RUnlock()

	failureCtx := PaymentCreationFailureContext{
		PaymentCreationContext: hookCtx,
		Error:                  paymentErr,
	}

	for _, hook := range failureHooks {
		result, _ := hook(failureCtx)
		if result != nil && result.Recovered {
			return result.Payload, nil
		}
	}

	return PaymentPayload{}, paymentErr
}
