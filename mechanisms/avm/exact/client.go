// Package exact implements the AVM "exact" payment scheme: client, server,
// and facilitator roles for ASA transfers on Algorand.
package exact

import (
	"context"
	"fmt"

	sdktransaction "github.com/algorand/go-algorand-sdk/v2/transaction"
	"github.com/algorand/go-algorand-sdk/v2/types"

	x402 "github.com/algorandfoundation/x402"
	"github.com/algorandfoundation/x402/mechanisms/avm"
)

// SuggestedParamsSource resolves algod's current suggested network parameters
// for network. Integrators wire this to their algod client; scheme code never
// talks to algod directly.
type SuggestedParamsSource func(ctx context.Context, network string) (types.SuggestedParams, error)

// ClientScheme is the client-side AVM exact scheme handler: it builds an
// atomic transaction group paying requirements.Amount of requirements.Asset to
// requirements.PayTo, optionally sponsoring fees via a facilitator-nominated
// fee payer.
type ClientScheme struct {
	signer           avm.ClientSigner
	suggestedParams  SuggestedParamsSource
}

// NewClientScheme creates a ClientScheme from a signer and a suggested-params
// source.
func NewClientScheme(signer avm.ClientSigner, suggestedParams SuggestedParamsSource) *ClientScheme {
	return &ClientScheme{signer: signer, suggestedParams: suggestedParams}
}

// Scheme returns "exact".
func (s *ClientScheme) Scheme() string { return avm.SchemeExact }

// CreatePaymentPayload builds the atomic transaction group for requirements.
//
// Without a feePayer in requirements.Extra, it builds a single signed ASA
// transfer with a normal fee. With one, it builds a two-transaction group: an
// unsigned self-payment from the fee payer carrying the pooled fee for both
// transactions (flat, so algod never recomputes it), followed by the client's
// ASA transfer at zero fee, signed by the client.
func (s *ClientScheme) CreatePaymentPayload(ctx context.Context, requirements x402.PaymentRequirements) (map[string]interface{}, error) {
	network := string(requirements.Network)
	caip2, err := avm.NormalizeNetwork(network)
	if err != nil {
		return nil, err
	}

	sp, err := s.suggestedParams(ctx, caip2)
	if err != nil {
		return nil, fmt.Errorf("suggested params: %w", err)
	}

	extra := requirements.Extra
	feePayer, _ := extra["feePayer"].(string)

	assetID, err := parseUint(requirements.Asset)
	if err != nil {
		return nil, fmt.Errorf("invalid asset id %q: %w", requirements.Asset, err)
	}
	amount, err := parseUint(requirements.Amount)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", requirements.Amount, err)
	}

	var txns []types.Transaction
	paymentIndex := 0

	if feePayer != "" {
		minFee := sp.MinFee
		if minFee == 0 {
			minFee = avm.MinTxnFee
		}
		pooledFee := minFee * 2

		feePayerSP := sp
		feePayerSP.Fee = types.MicroAlgos(pooledFee)
		feePayerSP.FlatFee = true

		feePayerTxn, err := sdktransaction.MakePaymentTxn(feePayer, feePayer, uint64(feePayerSP.Fee), 0, uint64(sp.FirstRoundValid), uint64(sp.LastRoundValid), []byte("x402-fee-payer"), "", sp.GenesisID, sp.GenesisHash)
		if err != nil {
			return nil, fmt.Errorf("build fee payer txn: %w", err)
		}
		feePayerTxn.Fee = types.MicroAlgos(pooledFee)
		feePayerTxn.FlatFee = true
		txns = append(txns, feePayerTxn)

		assetSP := sp
		assetSP.Fee = 0
		assetSP.FlatFee = true
		paymentIndex = 1

		assetTxn, err := sdktransaction.MakeAssetTransferTxn(s.signer.Address(), requirements.PayTo, amount, []byte("x402-payment"), assetSP, "", assetID)
		if err != nil {
			return nil, fmt.Errorf("build asset transfer txn: %w", err)
		}
		assetTxn.Fee = 0
		assetTxn.FlatFee = true
		txns = append(txns, assetTxn)
	} else {
		assetTxn, err := sdktransaction.MakeAssetTransferTxn(s.signer.Address(), requirements.PayTo, amount, []byte("x402-payment"), sp, "", assetID)
		if err != nil {
			return nil, fmt.Errorf("build asset transfer txn: %w", err)
		}
		txns = append(txns, assetTxn)
	}

	if len(txns) > 1 {
		grouped, err := sdktransaction.AssignGroupID(txns, "")
		if err != nil {
			return nil, fmt.Errorf("assign group id: %w", err)
		}
		txns = grouped
	}

	var clientIndexes []int
	unsignedBytes := make([][]byte, len(txns))
	for i, txn := range txns {
		if txn.Sender.String() == s.signer.Address() {
			clientIndexes = append(clientIndexes, i)
		}
		unsignedBytes[i] = encodeTransaction(txn)
	}

	signedResults, err := s.signer.SignTransactions(ctx, unsignedBytes, clientIndexes)
	if err != nil {
		return nil, fmt.Errorf("sign transactions: %w", err)
	}

	group := make([]string, len(txns))
	for i, unsigned := range unsignedBytes {
		if signed := signedResults[i]; signed != nil {
			group[i] = b64(signed)
		} else {
			group[i] = b64(unsigned)
		}
	}

	payload := avm.ExactAvmPayload{PaymentGroup: group, PaymentIndex: paymentIndex}
	return payload.ToMap(), nil
}
