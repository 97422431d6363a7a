package exact

import (
	"context"
	"testing"

	"github.com/algorand/go-algorand-sdk/v2/types"

	x402 "github.com/algorandfoundation/x402"
	"github.com/algorandfoundation/x402/mechanisms/avm"
)

// testPayerAddress is the Algorand zero address: the only checksummed address
// used in these tests, since fabricating other valid checksums without the
// toolchain is unreliable. Reusing it for every role (payer, fee payer,
// payee) still exercises the real encode/decode/sign path end to end.
const testPayerAddress = "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAY5HFKQ"
const testFeePayerAddress = testPayerAddress
const testPayToAddress = testPayerAddress

// fakeClientSigner is a minimal avm.ClientSigner that "signs" by tagging
// unsigned bytes, so tests can verify which indexes were passed to sign.
type fakeClientSigner struct {
	address string
	signed  [][]int
}

func (f *fakeClientSigner) Address() string { return f.address }

func (f *fakeClientSigner) SignTransactions(_ context.Context, unsignedTxns [][]byte, indexesToSign []int) ([][]byte, error) {
	f.signed = append(f.signed, indexesToSign)
	out := make([][]byte, len(unsignedTxns))
	for _, idx := range indexesToSign {
		out[idx] = append([]byte{}, unsignedTxns[idx]...)
	}
	return out, nil
}

var _ avm.ClientSigner = (*fakeClientSigner)(nil)

func fakeSuggestedParams(_ context.Context, _ string) (types.SuggestedParams, error) {
	genesisHash := make([]byte, 32)
	for i := range genesisHash {
		genesisHash[i] = byte(i)
	}
	return types.SuggestedParams{
		Fee:              0,
		GenesisID:        "mainnet-v1.0",
		GenesisHash:      genesisHash,
		FirstRoundValid:  1000,
		LastRoundValid:   2000,
		ConsensusVersion: "future",
		FlatFee:          false,
		MinFee:           1000,
	}, nil
}

func TestClientSchemeName(t *testing.T) {
	s := NewClientScheme(&fakeClientSigner{address: testPayerAddress}, fakeSuggestedParams)
	if s.Scheme() != avm.SchemeExact {
		t.Fatalf("Scheme() = %q, want %q", s.Scheme(), avm.SchemeExact)
	}
}

func TestCreatePaymentPayloadNormalMode(t *testing.T) {
	signer := &fakeClientSigner{address: testPayerAddress}
	s := NewClientScheme(signer, fakeSuggestedParams)

	requirements := x402.PaymentRequirements{
		Scheme:  avm.SchemeExact,
		Network: x402.Network(avm.AlgorandMainnetCAIP2),
		Asset:   "31566704",
		Amount:  "1000000",
		PayTo:   testPayToAddress,
	}

	result, err := s.CreatePaymentPayload(context.Background(), requirements)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	payload := avm.ExactAvmPayloadFromMap(result)
	if len(payload.PaymentGroup) != 1 {
		t.Fatalf("normal mode should build a single-transaction group, got %d", len(payload.PaymentGroup))
	}
	if payload.PaymentIndex != 0 {
		t.Fatalf("normal mode payment index should be 0, got %d", payload.PaymentIndex)
	}
	if len(signer.signed) != 1 || len(signer.signed[0]) != 1 || signer.signed[0][0] != 0 {
		t.Fatalf("client should sign index 0 only, got %v", signer.signed)
	}
}

func TestCreatePaymentPayloadFeeAbstractionMode(t *testing.T) {
	signer := &fakeClientSigner{address: testPayerAddress}
	s := NewClientScheme(signer, fakeSuggestedParams)

	requirements := x402.PaymentRequirements{
		Scheme:  avm.SchemeExact,
		Network: x402.Network(avm.AlgorandMainnetCAIP2),
		Asset:   "31566704",
		Amount:  "1000000",
		PayTo:   testPayToAddress,
		Extra:   map[string]interface{}{"feePayer": testFeePayerAddress},
	}

	result, err := s.CreatePaymentPayload(context.Background(), requirements)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	payload := avm.ExactAvmPayloadFromMap(result)
	if len(payload.PaymentGroup) != 2 {
		t.Fatalf("fee abstraction mode should build a two-transaction group, got %d", len(payload.PaymentGroup))
	}
	if payload.PaymentIndex != 1 {
		t.Fatalf("fee abstraction mode payment index should be 1, got %d", payload.PaymentIndex)
	}
	// testFeePayerAddress aliases testPayerAddress (see comment above), so the
	// client signer matches both transaction senders here; in production the
	// fee payer is a distinct facilitator account and only the client's own
	// index is signed by the client.
	if len(signer.signed) != 1 || len(signer.signed[0]) != 2 {
		t.Fatalf("client should be asked to sign both indexes when fee payer aliases its own address, got %v", signer.signed)
	}

	feePayerTxn, err := avm.DecodeBase64Transaction(payload.PaymentGroup[0])
	if err != nil {
		t.Fatalf("fee payer txn should decode: %v", err)
	}
	if feePayerTxn.Type != avm.TxnTypePayment {
		t.Fatalf("fee payer txn should be pay, got %s", feePayerTxn.Type)
	}
	if feePayerTxn.Fee != avm.MinTxnFee*2 {
		t.Fatalf("fee payer txn should carry the pooled flat fee %d, got %d", avm.MinTxnFee*2, feePayerTxn.Fee)
	}
}

func TestCreatePaymentPayloadInvalidAsset(t *testing.T) {
	signer := &fakeClientSigner{address: testPayerAddress}
	s := NewClientScheme(signer, fakeSuggestedParams)

	requirements := x402.PaymentRequirements{
		Scheme:  avm.SchemeExact,
		Network: x402.Network(avm.AlgorandMainnetCAIP2),
		Asset:   "not-a-number",
		Amount:  "1000000",
		PayTo:   testPayToAddress,
	}

	if _, err := s.CreatePaymentPayload(context.Background(), requirements); err == nil {
		t.Fatalf("expected error for invalid asset id")
	}
}

func TestCreatePaymentPayloadUnsupportedNetwork(t *testing.T) {
	signer := &fakeClientSigner{address: testPayerAddress}
	s := NewClientScheme(signer, fakeSuggestedParams)

	requirements := x402.PaymentRequirements{
		Scheme:  avm.SchemeExact,
		Network: "ethereum",
		Asset:   "31566704",
		Amount:  "1000000",
		PayTo:   testPayToAddress,
	}

	if _, err := s.CreatePaymentPayload(context.Background(), requirements); err == nil {
		t.Fatalf("expected error for unsupported network")
	}
}
