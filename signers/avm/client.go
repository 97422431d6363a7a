// Package avm provides concrete ClientSigner/FacilitatorSigner implementations
// for the AVM mechanism, using github.com/algorand/go-algorand-sdk/v2.
package avm

import (
	"context"
	"fmt"

	"github.com/algorand/go-algorand-sdk/v2/crypto"
	"github.com/algorand/go-algorand-sdk/v2/encoding/msgpack"
	"github.com/algorand/go-algorand-sdk/v2/mnemonic"
	"github.com/algorand/go-algorand-sdk/v2/types"

	x402avm "github.com/algorandfoundation/x402/mechanisms/avm"
)

// AccountSigner is a client-side signer holding a single Algorand private key.
// It implements x402avm.ClientSigner.
type AccountSigner struct {
	privateKey []byte
	address    string
}

// NewAccountSigner creates a signer from a raw 64-byte Algorand private key.
func NewAccountSigner(privateKey []byte) (*AccountSigner, error) {
	address, err := crypto.GenerateAddressFromSK(privateKey)
	if err != nil {
		return nil, fmt.Errorf("derive address: %w", err)
	}
	return &AccountSigner{privateKey: privateKey, address: address.String()}, nil
}

// NewAccountSignerFromMnemonic creates a signer from a 25-word mnemonic phrase.
func NewAccountSignerFromMnemonic(phrase string) (*AccountSigner, error) {
	privateKey, err := mnemonic.ToPrivateKey(phrase)
	if err != nil {
		return nil, fmt.Errorf("invalid mnemonic: %w", err)
	}
	return NewAccountSigner(privateKey)
}

// Address returns the signer's Algorand address.
func (s *AccountSigner) Address() string { return s.address }

// SignTransactions signs the unsigned transactions at indexesToSign.
func (s *AccountSigner) SignTransactions(_ context.Context, unsignedTxns [][]byte, indexesToSign []int) ([][]byte, error) {
	results := make([][]byte, len(unsignedTxns))

	for _, idx := range indexesToSign {
		if idx < 0 || idx >= len(unsignedTxns) {
			continue
		}

		var txn types.Transaction
		if err := msgpack.Decode(unsignedTxns[idx], &txn); err != nil {
			return nil, fmt.Errorf("decode transaction %d: %w", idx, err)
		}

		_, signedBytes, err := crypto.SignTransaction(s.privateKey, txn)
		if err != nil {
			return nil, fmt.Errorf("sign transaction %d: %w", idx, err)
		}

		results[idx] = signedBytes
	}

	return results, nil
}

var _ x402avm.ClientSigner = (*AccountSigner)(nil)
