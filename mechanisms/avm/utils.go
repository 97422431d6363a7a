package avm

import (
	"encoding/base64"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/algorand/go-algorand-sdk/v2/encoding/msgpack"
	"github.com/algorand/go-algorand-sdk/v2/types"

	x402 "github.com/algorandfoundation/x402"
)

var avmAddressRE = regexp.MustCompile(AVMAddressPattern)

// IsValidAddress reports whether address has the shape of a standard Algorand
// address. It only validates the encoding, not that the account exists.
func IsValidAddress(address string) bool {
	if address == "" {
		return false
	}
	if !avmAddressRE.MatchString(address) {
		return false
	}
	_, err := types.DecodeAddress(address)
	return err == nil
}

// NormalizeNetwork resolves a network identifier, V1 legacy name or CAIP-2, to
// a known CAIP-2 network string.
func NormalizeNetwork(network string) (string, error) {
	if strings.HasPrefix(network, "algorand:") {
		if _, ok := NetworkConfigs[network]; ok {
			return network, nil
		}
		return "", fmt.Errorf("unsupported CAIP-2 network: %s", network)
	}
	if v2, ok := V1ToV2NetworkMap[network]; ok {
		return v2, nil
	}
	return "", fmt.Errorf("unsupported network: %s", network)
}

// IsValidNetwork reports whether network resolves to a known CAIP-2 network.
func IsValidNetwork(network string) bool {
	_, err := NormalizeNetwork(network)
	return err == nil
}

// GetNetworkConfig resolves network to its NetworkConfig.
func GetNetworkConfig(network string) (NetworkConfig, error) {
	caip2, err := NormalizeNetwork(network)
	if err != nil {
		return NetworkConfig{}, err
	}
	cfg, ok := NetworkConfigs[caip2]
	if !ok {
		return NetworkConfig{}, fmt.Errorf("unsupported network: %s", network)
	}
	return cfg, nil
}

// GetUSDCAssetID returns the USDC ASA id for network.
func GetUSDCAssetID(network string) (int, error) {
	cfg, err := GetNetworkConfig(network)
	if err != nil {
		return 0, err
	}
	return cfg.DefaultAsset.ASAID, nil
}

// GetGenesisHash returns the base64-encoded genesis hash for network.
func GetGenesisHash(network string) (string, error) {
	cfg, err := GetNetworkConfig(network)
	if err != nil {
		return "", err
	}
	return cfg.GenesisHash, nil
}

// NetworkFromGenesisHash resolves a base64 genesis hash back to a CAIP-2 network.
func NetworkFromGenesisHash(genesisHash string) (string, bool) {
	network, ok := GenesisHashToNetwork[genesisHash]
	return network, ok
}

// ToAtomicAmount converts a decimal amount to atomic units for decimals places.
func ToAtomicAmount(amount float64, decimals int) uint64 {
	scale := 1.0
	for i := 0; i < decimals; i++ {
		scale *= 10
	}
	return uint64(amount*scale + 0.5)
}

// FromAtomicAmount converts atomic units back to a decimal amount.
func FromAtomicAmount(amount uint64, decimals int) float64 {
	scale := 1.0
	for i := 0; i < decimals; i++ {
		scale *= 10
	}
	return float64(amount) / scale
}

// DecodeTransactionBytes decodes msgpack-encoded transaction bytes, signed or
// unsigned, into a DecodedTransactionInfo.
func DecodeTransactionBytes(raw []byte) (DecodedTransactionInfo, error) {
	var stx types.SignedTxn
	isSigned := false
	txn := stx.Txn

	if err := msgpack.Decode(raw, &stx); err == nil && stx.Txn.Type != "" {
		txn = stx.Txn
		isSigned = stx.Sig != (types.Signature{}) || len(stx.Msig.Subsigs) > 0 || len(stx.Lsig.Logic) > 0
	} else {
		var bare types.Transaction
		if err := msgpack.Decode(raw, &bare); err != nil {
			return DecodedTransactionInfo{}, fmt.Errorf("decode transaction: %w", err)
		}
		txn = bare
	}

	info := DecodedTransactionInfo{
		Type:        string(txn.Type),
		Sender:      txn.Sender.String(),
		Fee:         uint64(txn.Fee),
		FirstValid:  uint64(txn.FirstValid),
		LastValid:   uint64(txn.LastValid),
		GenesisHash: base64.StdEncoding.EncodeToString(txn.GenesisHash[:]),
		GenesisID:   txn.GenesisID,
		IsSigned:    isSigned,
		Note:        txn.Note,
	}
	if txn.Group != (types.Digest{}) {
		info.Group = base64.StdEncoding.EncodeToString(txn.Group[:])
	}
	if txn.RekeyTo != (types.Address{}) {
		info.RekeyTo = txn.RekeyTo.String()
	}

	switch txn.Type {
	case types.PaymentTx:
		info.Receiver = txn.Receiver.String()
		info.Amount = uint64(txn.Amount)
		if txn.CloseRemainderTo != (types.Address{}) {
			info.CloseRemainderTo = txn.CloseRemainderTo.String()
		}
	case types.AssetTransferTx:
		info.AssetIndex = uint64(txn.XferAsset)
		info.AssetReceiver = txn.AssetReceiver.String()
		info.AssetAmount = txn.AssetAmount
		if txn.AssetCloseTo != (types.Address{}) {
			info.AssetCloseTo = txn.AssetCloseTo.String()
		}
	}

	return info, nil
}

// DecodeBase64Transaction decodes a base64-encoded transaction.
func DecodeBase64Transaction(b64Txn string) (DecodedTransactionInfo, error) {
	raw, err := base64.StdEncoding.DecodeString(b64Txn)
	if err != nil {
		return DecodedTransactionInfo{}, fmt.Errorf("invalid base64 encoding: %w", err)
	}
	return DecodeTransactionBytes(raw)
}

// DecodePaymentGroup decodes every transaction in paymentGroup and summarizes
// the result, including a heuristic fee-payer detection: a "pay" txn paying
// itself a zero amount.
func DecodePaymentGroup(paymentGroup []string, paymentIndex int) (TransactionGroupInfo, error) {
	info := TransactionGroupInfo{
		FeePayerIndex: -1,
		PaymentIndex:  paymentIndex,
	}

	for i, b64Txn := range paymentGroup {
		txnInfo, err := DecodeBase64Transaction(b64Txn)
		if err != nil {
			return TransactionGroupInfo{}, err
		}
		info.Transactions = append(info.Transactions, txnInfo)
		info.TotalFee += txnInfo.Fee

		if i == 0 && txnInfo.Group != "" {
			info.GroupID = txnInfo.Group
		}

		if txnInfo.Type == TxnTypePayment && txnInfo.Receiver == txnInfo.Sender && txnInfo.Amount == 0 {
			info.HasFeePayer = true
			info.FeePayerIndex = i
		}
	}

	return info, nil
}

// IsBlockedTransactionType reports whether txnType is never permitted in a
// payment group.
func IsBlockedTransactionType(txnType string) bool {
	return BlockedTxnTypes[txnType]
}

// ValidateNoSecurityRisks checks a single decoded transaction for rekey,
// close-to, and blocked-type risks. Returns an error code, or "" if clean.
func ValidateNoSecurityRisks(info DecodedTransactionInfo) string {
	if info.RekeyTo != "" {
		return x402.ErrRekeyDetected
	}
	if info.Type == TxnTypePayment && info.CloseRemainderTo != "" {
		return x402.ErrCloseToDetected
	}
	if info.Type == TxnTypeAssetTransfer && info.AssetCloseTo != "" {
		return x402.ErrCloseToDetected
	}
	if IsBlockedTransactionType(info.Type) {
		return x402.ErrBlockedTransactionType
	}
	return ""
}

// ValidateFeePayerTransaction checks that info is a well-formed fee-payer
// transaction for expectedFeePayer: a self-payment of zero value, with no
// close-to or rekey. Returns an error code, or "" if valid.
func ValidateFeePayerTransaction(info DecodedTransactionInfo, expectedFeePayer string) string {
	if info.Type != TxnTypePayment {
		return x402.ErrFeePayerInvalidTxn
	}
	if info.Sender != expectedFeePayer || info.Receiver != expectedFeePayer {
		return x402.ErrFeePayerInvalidTxn
	}
	if info.Amount > 0 {
		return x402.ErrFeePayerHasAmount
	}
	if info.CloseRemainderTo != "" {
		return x402.ErrFeePayerHasClose
	}
	if info.RekeyTo != "" {
		return x402.ErrFeePayerHasRekey
	}
	if info.Fee > MaxReasonableFee {
		return x402.ErrFeePayerFeeTooHigh
	}
	return ""
}

// EncodeTransactionGroup base64-encodes a list of msgpack transaction bytes.
func EncodeTransactionGroup(txnBytesList [][]byte) []string {
	out := make([]string, len(txnBytesList))
	for i, b := range txnBytesList {
		out[i] = base64.StdEncoding.EncodeToString(b)
	}
	return out
}

// GetDefaultUSDCInfo returns the well-known USDC AssetInfo for network.
func GetDefaultUSDCInfo(network string) (AssetInfo, error) {
	cfg, err := GetNetworkConfig(network)
	if err != nil {
		return AssetInfo{}, err
	}
	return cfg.DefaultAsset, nil
}

// parseMoneyToDecimal strips a leading currency symbol and thousands
// separators from a decimal money string before parsing.
func parseMoneyToDecimal(money string) (float64, error) {
	cleaned := strings.TrimSpace(money)
	cleaned = strings.TrimPrefix(cleaned, "$")
	cleaned = strings.ReplaceAll(cleaned, ",", "")
	return strconv.ParseFloat(cleaned, 64)
}
