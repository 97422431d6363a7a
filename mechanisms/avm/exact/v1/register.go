package v1

import (
	"github.com/algorandfoundation/x402/mechanisms/avm"
	"github.com/algorandfoundation/x402/mechanisms/avm/exact"
)

// RegisterClient builds a V1 client bridge scheme for every legacy AVM network
// name (avm.V1Networks). Callers wire the returned scheme into whatever V1
// registry their integrator-side client exposes; the core client package
// carries no V1 entry point of its own (V1 is bridge-only, both sides).
func RegisterClient(signer avm.ClientSigner, suggestedParams exact.SuggestedParamsSource) map[string]*ClientScheme {
	scheme := NewClientScheme(signer, suggestedParams)
	out := make(map[string]*ClientScheme, len(avm.V1Networks))
	for _, network := range avm.V1Networks {
		out[network] = scheme
	}
	return out
}

// RegisterFacilitator builds a V1 facilitator bridge scheme for every legacy
// AVM network name.
func RegisterFacilitator(signer avm.FacilitatorSigner) map[string]*FacilitatorScheme {
	scheme := NewFacilitatorScheme(signer)
	out := make(map[string]*FacilitatorScheme, len(avm.V1Networks))
	for _, network := range avm.V1Networks {
		out[network] = scheme
	}
	return out
}
