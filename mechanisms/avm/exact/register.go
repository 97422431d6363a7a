package exact

import (
	x402 "github.com/algorandfoundation/x402"
	"github.com/algorandfoundation/x402/mechanisms/avm"
)

// RegisterClient registers the AVM exact client scheme against networks, or
// the "algorand:*" family wildcard when networks is empty.
func RegisterClient(client *x402.X402Client, signer avm.ClientSigner, suggestedParams SuggestedParamsSource, networks ...x402.Network) *x402.X402Client {
	scheme := NewClientScheme(signer, suggestedParams)
	if len(networks) == 0 {
		networks = []x402.Network{avm.CAIPFamily}
	}
	for _, network := range networks {
		client.RegisterScheme(network, scheme)
	}
	return client
}

// RegisterServer registers the AVM exact server scheme against networks, or
// the "algorand:*" family wildcard when networks is empty.
func RegisterServer(server *x402.X402ResourceServer, networks ...x402.Network) *x402.X402ResourceServer {
	scheme := NewServerScheme()
	if len(networks) == 0 {
		networks = []x402.Network{avm.CAIPFamily}
	}
	for _, network := range networks {
		server.Register(network, scheme)
	}
	return server
}

// RegisterFacilitator registers the AVM exact facilitator scheme against
// every network in networks.
func RegisterFacilitator(facilitator *x402.X402Facilitator, signer avm.FacilitatorSigner, networks ...x402.Network) *x402.X402Facilitator {
	scheme := NewFacilitatorScheme(signer)
	for _, network := range networks {
		facilitator.RegisterScheme(network, scheme)
	}
	return facilitator
}
