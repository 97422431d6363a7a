package exact

import (
	"context"
	"fmt"
	"strconv"

	x402 "github.com/algorandfoundation/x402"
	"github.com/algorandfoundation/x402/mechanisms/avm"
)

// ServerScheme is the server-side AVM exact scheme handler: it resolves a
// route's declared Price into a concrete ASA AssetAmount, and enriches
// PaymentRequirements with AVM-specific extras (decimals, feePayer, genesis
// info) before they go on the wire.
//
// feePayer is optional for AVM: unless the facilitator publishes one, the
// client pays its own fees.
type ServerScheme struct {
	moneyParsers []x402.MoneyParser
}

// NewServerScheme creates a ServerScheme with no custom money parsers.
func NewServerScheme() *ServerScheme {
	return &ServerScheme{}
}

// RegisterMoneyParser appends parser to the chain tried before the default
// USDC conversion. Parsers are tried in registration order; the first
// non-nil result wins.
func (s *ServerScheme) RegisterMoneyParser(parser x402.MoneyParser) *ServerScheme {
	s.moneyParsers = append(s.moneyParsers, parser)
	return s
}

// Scheme returns "exact".
func (s *ServerScheme) Scheme() string { return avm.SchemeExact }

// ParsePrice resolves price into a concrete AssetAmount.
func (s *ServerScheme) ParsePrice(price x402.Price, network x402.Network) (x402.AssetAmount, error) {
	switch v := price.(type) {
	case x402.AssetAmount:
		if v.Asset == "" {
			asaID, err := avm.GetUSDCAssetID(string(network))
			if err != nil {
				return x402.AssetAmount{}, err
			}
			v.Asset = strconv.Itoa(asaID)
		}
		return v, nil
	case string:
		amount, err := parseMoneyAmount(v)
		if err != nil {
			return x402.AssetAmount{}, err
		}
		return s.resolveAmount(amount, network)
	case float64:
		return s.resolveAmount(v, network)
	default:
		return x402.AssetAmount{}, fmt.Errorf("unsupported price type %T", price)
	}
}

func (s *ServerScheme) resolveAmount(amount float64, network x402.Network) (x402.AssetAmount, error) {
	for _, parser := range s.moneyParsers {
		result, err := parser(amount, network)
		if err != nil {
			return x402.AssetAmount{}, err
		}
		if result != nil {
			return *result, nil
		}
	}
	return s.defaultMoneyConversion(amount, network)
}

func (s *ServerScheme) defaultMoneyConversion(amount float64, network x402.Network) (x402.AssetAmount, error) {
	asaID, err := avm.GetUSDCAssetID(string(network))
	if err != nil {
		return x402.AssetAmount{}, err
	}
	atomic := avm.ToAtomicAmount(amount, avm.DefaultDecimals)
	return x402.AssetAmount{
		Amount: strconv.FormatUint(atomic, 10),
		Asset:  strconv.Itoa(asaID),
		Extra:  map[string]interface{}{"decimals": avm.DefaultDecimals},
	}, nil
}

// EnhancePaymentRequirements adds decimals, an optional facilitator-published
// feePayer, and genesis binding info to requirements before it is offered to
// the client.
func (s *ServerScheme) EnhancePaymentRequirements(_ context.Context, requirements x402.PaymentRequirements, supported x402.SupportedKind, _ []string) (x402.PaymentRequirements, error) {
	requirements = requirements.CloneExtra()

	if _, ok := requirements.Extra["decimals"]; !ok {
		requirements.Extra["decimals"] = avm.DefaultDecimals
	}

	if supported.Extra != nil {
		if feePayer, ok := supported.Extra["feePayer"]; ok {
			requirements.Extra["feePayer"] = feePayer
		}
	}

	if cfg, err := avm.GetNetworkConfig(string(requirements.Network)); err == nil {
		if _, ok := requirements.Extra["genesisHash"]; !ok {
			requirements.Extra["genesisHash"] = cfg.GenesisHash
		}
		if _, ok := requirements.Extra["genesisId"]; !ok {
			requirements.Extra["genesisId"] = cfg.GenesisID
		}
	}

	return requirements, nil
}

// GetAssetInfo describes asset on network, falling back to a generic name and
// DefaultDecimals for anything other than the network's well-known USDC ASA.
func (s *ServerScheme) GetAssetInfo(network, asset string) (avm.AssetInfo, error) {
	cfg, err := avm.GetNetworkConfig(network)
	if err != nil {
		return avm.AssetInfo{}, err
	}
	asaID, err := strconv.Atoi(asset)
	if err != nil {
		return avm.AssetInfo{}, fmt.Errorf("invalid asset id %q: %w", asset, err)
	}
	if asaID == cfg.DefaultAsset.ASAID {
		return cfg.DefaultAsset, nil
	}
	return avm.AssetInfo{ASAID: asaID, Name: fmt.Sprintf("ASA-%d", asaID), Decimals: avm.DefaultDecimals}, nil
}

func parseMoneyAmount(money string) (float64, error) {
	cleaned := money
	if len(cleaned) > 0 && cleaned[0] == '$' {
		cleaned = cleaned[1:]
	}
	return strconv.ParseFloat(cleaned, 64)
}
