package exact

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"math/big"
	"strconv"

	x402 "github.com/algorandfoundation/x402"
	"github.com/algorandfoundation/x402/mechanisms/avm"
)

// FacilitatorScheme is the facilitator-side AVM exact scheme handler: it
// verifies an ExactAvmPayload against PaymentRequirements and settles it
// on-chain.
type FacilitatorScheme struct {
	signer avm.FacilitatorSigner
}

// NewFacilitatorScheme creates a FacilitatorScheme from a signer managing one
// or more fee-payer accounts.
func NewFacilitatorScheme(signer avm.FacilitatorSigner) *FacilitatorScheme {
	return &FacilitatorScheme{signer: signer}
}

// Scheme returns "exact".
func (s *FacilitatorScheme) Scheme() string { return avm.SchemeExact }

// GetExtra publishes a randomly chosen managed fee-payer address, so load is
// spread across signers when several share a facilitator.
func (s *FacilitatorScheme) GetExtra(_ x402.Network) map[string]interface{} {
	addresses := s.signer.GetAddresses()
	if len(addresses) == 0 {
		return nil
	}
	return map[string]interface{}{"feePayer": addresses[randomIndex(len(addresses))]}
}

// GetSigners returns every fee-payer address this facilitator manages.
func (s *FacilitatorScheme) GetSigners(_ x402.Network) []string {
	return s.signer.GetAddresses()
}

// Verify validates payload against requirements per the exact AVM scheme:
//
//  1. scheme and network must match on both sides
//  2. the payment group must be non-empty and within MaxGroupSize
//  3. every transaction decodes cleanly and shares one group id
//  4. every transaction's genesis hash binds to requirements.Network
//  5. no transaction carries a rekey, close-to, or blocked type
//  6. the transaction at PaymentIndex is a signed axfer paying
//     requirements.Amount of requirements.Asset to requirements.PayTo
//  7. if requirements.Extra["feePayer"] is set, the fee payer's self-payment
//     transaction is present, well-formed, and managed by this signer
//  8. the group, signed by this facilitator's fee payer if applicable,
//     simulates successfully
func (s *FacilitatorScheme) Verify(ctx context.Context, payload x402.PaymentPayload, requirements x402.PaymentRequirements) (x402.VerifyResponse, error) {
	avmPayload := avm.ExactAvmPayloadFromMap(payload.Payload)

	if payload.Accepted.Scheme != avm.SchemeExact || requirements.Scheme != avm.SchemeExact {
		return x402.VerifyResponse{IsValid: false, InvalidReason: x402.ErrUnsupportedScheme}, nil
	}
	if payload.Accepted.Network != requirements.Network {
		return x402.VerifyResponse{IsValid: false, InvalidReason: x402.ErrNetworkMismatch}, nil
	}

	caip2, err := avm.NormalizeNetwork(string(requirements.Network))
	if err != nil {
		return x402.VerifyResponse{IsValid: false, InvalidReason: x402.ErrNetworkMismatch}, nil
	}

	group := avmPayload.PaymentGroup
	if len(group) == 0 {
		return x402.VerifyResponse{IsValid: false, InvalidReason: x402.ErrEmptyGroup}, nil
	}
	if len(group) > avm.MaxGroupSize {
		return x402.VerifyResponse{IsValid: false, InvalidReason: x402.ErrGroupTooLarge}, nil
	}
	if avmPayload.PaymentIndex < 0 || avmPayload.PaymentIndex >= len(group) {
		return x402.VerifyResponse{IsValid: false, InvalidReason: x402.ErrInvalidPaymentIndex}, nil
	}

	decoded := make([]avm.DecodedTransactionInfo, len(group))
	for i, b64Txn := range group {
		info, err := avm.DecodeBase64Transaction(b64Txn)
		if err != nil {
			return x402.VerifyResponse{IsValid: false, InvalidReason: x402.ErrGroupDecodeFailed, InvalidMessage: err.Error()}, nil
		}
		decoded[i] = info
	}

	if len(decoded) > 1 {
		firstGroupID := decoded[0].Group
		if firstGroupID == "" {
			return x402.VerifyResponse{IsValid: false, InvalidReason: x402.ErrMissingGroupID}, nil
		}
		for _, info := range decoded[1:] {
			if info.Group != firstGroupID {
				return x402.VerifyResponse{IsValid: false, InvalidReason: x402.ErrGroupIDMismatch}, nil
			}
		}
	}

	expectedGenesisHash, err := avm.GetGenesisHash(caip2)
	if err != nil {
		return x402.VerifyResponse{IsValid: false, InvalidReason: x402.ErrNetworkMismatch}, nil
	}
	for _, info := range decoded {
		if info.GenesisHash != expectedGenesisHash {
			return x402.VerifyResponse{IsValid: false, InvalidReason: x402.ErrGenesisHashMismatch}, nil
		}
	}

	for _, info := range decoded {
		if reason := avm.ValidateNoSecurityRisks(info); reason != "" {
			return x402.VerifyResponse{IsValid: false, InvalidReason: reason}, nil
		}
	}

	paymentTxn := decoded[avmPayload.PaymentIndex]
	payer := paymentTxn.Sender

	if paymentTxn.Type != avm.TxnTypeAssetTransfer {
		return x402.VerifyResponse{IsValid: false, InvalidReason: x402.ErrInvalidTransactionType, InvalidMessage: "payment transaction must be asset transfer (axfer)", Payer: payer}, nil
	}

	requiredAsset, err := strconv.ParseUint(requirements.Asset, 10, 64)
	if err != nil {
		return x402.VerifyResponse{IsValid: false, InvalidReason: x402.ErrAssetIDMismatch, Payer: payer}, nil
	}
	if paymentTxn.AssetIndex != requiredAsset {
		return x402.VerifyResponse{IsValid: false, InvalidReason: x402.ErrAssetIDMismatch, Payer: payer}, nil
	}

	if paymentTxn.AssetReceiver != requirements.PayTo {
		return x402.VerifyResponse{IsValid: false, InvalidReason: x402.ErrRecipientMismatch, Payer: payer}, nil
	}

	requiredAmount, err := strconv.ParseUint(requirements.Amount, 10, 64)
	if err != nil {
		return x402.VerifyResponse{IsValid: false, InvalidReason: x402.ErrAmountInsufficient, Payer: payer}, nil
	}
	if paymentTxn.AssetAmount < requiredAmount {
		return x402.VerifyResponse{IsValid: false, InvalidReason: x402.ErrAmountInsufficient, Payer: payer}, nil
	}

	if !paymentTxn.IsSigned {
		return x402.VerifyResponse{IsValid: false, InvalidReason: x402.ErrMissingSignature, Payer: payer}, nil
	}

	signerAddresses := s.signer.GetAddresses()
	for _, addr := range signerAddresses {
		if paymentTxn.Sender == addr {
			return x402.VerifyResponse{IsValid: false, InvalidReason: x402.ErrFeePayerTransferringFunds, Payer: payer}, nil
		}
	}

	feePayer, _ := requirements.Extra["feePayer"].(string)
	feePayerIndex := -1
	if feePayer != "" {
		managed := false
		for _, addr := range signerAddresses {
			if addr == feePayer {
				managed = true
				break
			}
		}
		if !managed {
			return x402.VerifyResponse{IsValid: false, InvalidReason: x402.ErrFeePayerNotManaged, Payer: payer}, nil
		}

		for i, info := range decoded {
			if info.Sender == feePayer {
				feePayerIndex = i
				break
			}
		}
		if feePayerIndex == -1 {
			return x402.VerifyResponse{IsValid: false, InvalidReason: x402.ErrMissingFeePayer, Payer: payer}, nil
		}

		if reason := avm.ValidateFeePayerTransaction(decoded[feePayerIndex], feePayer); reason != "" {
			return x402.VerifyResponse{IsValid: false, InvalidReason: reason, Payer: payer}, nil
		}
	}

	groupBytes, err := decodeGroupBytes(group)
	if err != nil {
		return x402.VerifyResponse{IsValid: false, InvalidReason: x402.ErrGroupDecodeFailed, InvalidMessage: err.Error(), Payer: payer}, nil
	}

	if feePayer != "" && feePayerIndex >= 0 {
		groupBytes, err = s.signer.SignGroup(ctx, groupBytes, feePayer, []int{feePayerIndex}, caip2)
		if err != nil {
			return x402.VerifyResponse{IsValid: false, InvalidReason: x402.ErrSimulationFailed, InvalidMessage: err.Error(), Payer: payer}, nil
		}
	}

	if err := s.signer.SimulateGroup(ctx, groupBytes, caip2); err != nil {
		return x402.VerifyResponse{IsValid: false, InvalidReason: x402.ErrSimulationFailed, InvalidMessage: err.Error(), Payer: payer}, nil
	}

	return x402.VerifyResponse{IsValid: true, Payer: payer}, nil
}

// Settle re-verifies payload, signs the fee-payer transaction if present,
// submits the group, and waits for confirmation.
func (s *FacilitatorScheme) Settle(ctx context.Context, payload x402.PaymentPayload, requirements x402.PaymentRequirements) (x402.SettleResponse, error) {
	avmPayload := avm.ExactAvmPayloadFromMap(payload.Payload)
	network := payload.Accepted.Network

	verifyResult, err := s.Verify(ctx, payload, requirements)
	if err != nil {
		return x402.SettleResponse{}, err
	}
	if !verifyResult.IsValid {
		return x402.SettleResponse{
			Success:      false,
			ErrorReason:  verifyResult.InvalidReason,
			ErrorMessage: verifyResult.InvalidMessage,
			Network:      network,
			Payer:        verifyResult.Payer,
		}, nil
	}

	caip2, err := avm.NormalizeNetwork(string(network))
	if err != nil {
		return x402.SettleResponse{Success: false, ErrorReason: x402.ErrNetworkMismatch, Network: network, Payer: verifyResult.Payer}, nil
	}

	groupBytes, err := decodeGroupBytes(avmPayload.PaymentGroup)
	if err != nil {
		return x402.SettleResponse{Success: false, ErrorReason: x402.ErrTransactionFailed, ErrorMessage: err.Error(), Network: network, Payer: verifyResult.Payer}, nil
	}

	if feePayer, ok := requirements.Extra["feePayer"].(string); ok && feePayer != "" {
		feePayerIndex := -1
		for i, b64Txn := range avmPayload.PaymentGroup {
			info, err := avm.DecodeBase64Transaction(b64Txn)
			if err != nil {
				return x402.SettleResponse{Success: false, ErrorReason: x402.ErrTransactionFailed, ErrorMessage: err.Error(), Network: network, Payer: verifyResult.Payer}, nil
			}
			if info.Sender == feePayer {
				feePayerIndex = i
				break
			}
		}
		if feePayerIndex >= 0 {
			groupBytes, err = s.signer.SignGroup(ctx, groupBytes, feePayer, []int{feePayerIndex}, caip2)
			if err != nil {
				return x402.SettleResponse{Success: false, ErrorReason: x402.ErrTransactionFailed, ErrorMessage: err.Error(), Network: network, Payer: verifyResult.Payer}, nil
			}
		}
	}

	txid, err := s.signer.SendGroup(ctx, groupBytes, caip2)
	if err != nil {
		return x402.SettleResponse{Success: false, ErrorReason: x402.ErrTransactionFailed, ErrorMessage: err.Error(), Transaction: txid, Network: network, Payer: verifyResult.Payer}, nil
	}

	if err := s.signer.ConfirmTransaction(ctx, txid, caip2, avm.DefaultConfirmRounds); err != nil {
		return x402.SettleResponse{Success: false, ErrorReason: x402.ErrTransactionFailed, ErrorMessage: err.Error(), Transaction: txid, Network: network, Payer: verifyResult.Payer}, nil
	}

	return x402.SettleResponse{
		Success:     true,
		Transaction: txid,
		Network:     network,
		Payer:       verifyResult.Payer,
	}, nil
}

func decodeGroupBytes(group []string) ([][]byte, error) {
	out := make([][]byte, len(group))
	for i, b64Txn := range group {
		raw, err := base64.StdEncoding.DecodeString(b64Txn)
		if err != nil {
			return nil, fmt.Errorf("decode transaction %d: %w", i, err)
		}
		out[i] = raw
	}
	return out, nil
}

func randomIndex(n int) int {
	if n <= 1 {
		return 0
	}
	max := big.NewInt(int64(n))
	idx, err := rand.Int(rand.Reader, max)
	if err != nil {
		return 0
	}
	return int(idx.Int64())
}
