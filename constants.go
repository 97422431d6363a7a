package x402

// Protocol version constants.
const (
	// ModuleVersion is the SDK version.
	ModuleVersion = "0.1.0"

	// ProtocolVersion is the current x402 protocol generation: CAIP-2 networks,
	// typed accepted/amount fields. This is the only version the core negotiates
	// directly; v1 wire payloads are translated at the bridge boundary.
	ProtocolVersion = 2

	// ProtocolVersionV1 is the legacy x402 protocol generation: legacy network
	// names, maxAmountRequired.
	ProtocolVersionV1 = 1
)
