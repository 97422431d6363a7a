// Package avm provides V2 AVM (Algorand Virtual Machine) blockchain support for
// the x402 payment protocol. It implements the exact payment scheme using ASA
// (Algorand Standard Asset) transfers, with optional fee abstraction via a
// facilitator-sponsored fee-payer transaction. For V1 support, use the
// mechanisms/avm/exact/v1 subpackage.
package avm

// SchemeExact is the scheme identifier for ASA exact-amount transfers.
const SchemeExact = "exact"

// CAIPFamily is the network-pattern this mechanism registers against by default.
const CAIPFamily = "algorand:*"

// CAIP-2 network identifiers, bit-exact per the Algorand genesis hash of each network.
const (
	AlgorandMainnetCAIP2 = "algorand:wGHE2Pwdvd7S12BL5FaOP20EGYesN73ktiC1qzkkit8="
	AlgorandTestnetCAIP2 = "algorand:SGO1GKSzyE7IEPItTxCByw9x8FmnrCDexi9/cOUJOiI="
)

// USDC ASA ids, one per network.
const (
	USDCMainnetASAID = 31566704
	USDCTestnetASAID = 10458941
)

// Protocol-level constants.
const (
	DefaultDecimals = 6
	MinTxnFee       = 1000
	MaxGroupSize    = 16
	MaxReasonableFee = 16000
)

// AVMAddressPattern is the shape of a standard Algorand address: 58 chars,
// base32 alphabet A-Z2-7 (the address plus its trailing 2-byte checksum).
const AVMAddressPattern = `^[A-Z2-7]{58}$`

// Algorand transaction type tags, as they appear in the "type" field of a
// decoded transaction.
const (
	TxnTypePayment       = "pay"
	TxnTypeAssetTransfer = "axfer"
	TxnTypeKeyreg        = "keyreg"
	TxnTypeAssetConfig   = "acfg"
	TxnTypeAssetFreeze   = "afrz"
	TxnTypeApplication   = "appl"
)

// BlockedTxnTypes are transaction types never permitted inside a payment group,
// regardless of position. keyreg changes participation/consensus keys and has
// no place in a payment; acfg/afrz/appl are blocked for the same reason — none
// of them is a payment or fee-payer instruction.
var BlockedTxnTypes = map[string]bool{
	TxnTypeKeyreg:      true,
	TxnTypeAssetConfig: true,
	TxnTypeAssetFreeze: true,
	TxnTypeApplication: true,
}

// NetworkConfig carries the per-network values a scheme handler needs to
// validate and construct transactions.
type NetworkConfig struct {
	CAIP2        string
	GenesisHash  string
	GenesisID    string
	AlgodURL     string
	IndexerURL   string
	DefaultAsset AssetInfo
}

// AssetInfo describes a known ASA.
type AssetInfo struct {
	ASAID    int
	Name     string
	Decimals int
}

// NetworkConfigs is the static table of supported AVM networks. AlgodURL and
// IndexerURL are the AlgoNode public-node URLs. No code in this module reads
// environment variables; another algod endpoint is supplied through
// signers/avm's AlgodURLSource.
var NetworkConfigs = map[string]NetworkConfig{
	AlgorandMainnetCAIP2: {
		CAIP2:       AlgorandMainnetCAIP2,
		GenesisHash: "wGHE2Pwdvd7S12BL5FaOP20EGYesN73ktiC1qzkkit8=",
		GenesisID:   "mainnet-v1.0",
		AlgodURL:    "https://mainnet-api.algonode.cloud",
		IndexerURL:  "https://mainnet-idx.algonode.cloud",
		DefaultAsset: AssetInfo{
			ASAID:    USDCMainnetASAID,
			Name:     "USDC",
			Decimals: DefaultDecimals,
		},
	},
	AlgorandTestnetCAIP2: {
		CAIP2:       AlgorandTestnetCAIP2,
		GenesisHash: "SGO1GKSzyE7IEPItTxCByw9x8FmnrCDexi9/cOUJOiI=",
		GenesisID:   "testnet-v1.0",
		AlgodURL:    "https://testnet-api.algonode.cloud",
		IndexerURL:  "https://testnet-idx.algonode.cloud",
		DefaultAsset: AssetInfo{
			ASAID:    USDCTestnetASAID,
			Name:     "USDC",
			Decimals: DefaultDecimals,
		},
	},
}

// GenesisHashToNetwork inverts NetworkConfigs' genesis hash for fast lookup
// from a decoded transaction's "gh" field back to a CAIP-2 network.
var GenesisHashToNetwork = map[string]string{
	"wGHE2Pwdvd7S12BL5FaOP20EGYesN73ktiC1qzkkit8=": AlgorandMainnetCAIP2,
	"SGO1GKSzyE7IEPItTxCByw9x8FmnrCDexi9/cOUJOiI=": AlgorandTestnetCAIP2,
}

// V1 legacy network names and their CAIP-2 equivalents.
const (
	V1NetworkMainnet  = "algorand-mainnet"
	V1NetworkTestnet  = "algorand-testnet"
	V1NetworkShort    = "algorand"
)

// V1Networks enumerates every legacy network name the V1 bridge registers for.
// The bare "algorand" shorthand normalizes to mainnet (see V1ToV2NetworkMap)
// but is not itself a distinct V1 bridge registration.
var V1Networks = []string{V1NetworkMainnet, V1NetworkTestnet}

// V1ToV2NetworkMap and V2ToV1NetworkMap translate between legacy network names
// and CAIP-2 identifiers at the V1 bridge boundary. V1ToV2NetworkMap also
// accepts the bare "algorand" shorthand as an alias for mainnet.
var V1ToV2NetworkMap = map[string]string{
	V1NetworkMainnet: AlgorandMainnetCAIP2,
	V1NetworkTestnet: AlgorandTestnetCAIP2,
	V1NetworkShort:   AlgorandMainnetCAIP2,
}

var V2ToV1NetworkMap = map[string]string{
	AlgorandMainnetCAIP2: V1NetworkMainnet,
	AlgorandTestnetCAIP2: V1NetworkTestnet,
}

// SupportedNetworks lists every CAIP-2 network this mechanism accepts.
var SupportedNetworks = []string{AlgorandMainnetCAIP2, AlgorandTestnetCAIP2}
