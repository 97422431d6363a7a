package avm

import "context"

// ClientSigner is the capability a client-side exact scheme needs: an address
// to pay from, and the ability to sign a subset of an unsigned transaction
// group. Implementations that hold a raw private key, a hardware wallet, or a
// remote signing service all satisfy this the same way.
type ClientSigner interface {
	// Address returns the signer's Algorand address.
	Address() string

	// SignTransactions signs the unsigned transactions at indexesToSign and
	// returns a slice the same length as unsignedTxns, with signed bytes at
	// those indexes and nil elsewhere.
	SignTransactions(ctx context.Context, unsignedTxns [][]byte, indexesToSign []int) ([][]byte, error)
}

// FacilitatorSigner is the capability a facilitator-side exact scheme needs:
// one or more managed fee-payer accounts, and the ability to sign, simulate,
// submit, and confirm a transaction group against a given network.
type FacilitatorSigner interface {
	// GetAddresses returns every fee-payer address this signer manages.
	GetAddresses() []string

	// SignGroup signs the transactions at indexesToSign with feePayer's key
	// and returns the full group with those entries replaced by signed bytes.
	SignGroup(ctx context.Context, group [][]byte, feePayer string, indexesToSign []int, network string) ([][]byte, error)

	// SimulateGroup dry-runs group against network and returns an error if it
	// would fail on submission.
	SimulateGroup(ctx context.Context, group [][]byte, network string) error

	// SendGroup submits a fully-signed group to network and returns its
	// transaction id.
	SendGroup(ctx context.Context, group [][]byte, network string) (string, error)

	// ConfirmTransaction blocks until txid is confirmed or rounds elapse
	// without confirmation.
	ConfirmTransaction(ctx context.Context, txid string, network string, rounds int) error
}

// DefaultConfirmRounds is how many rounds ConfirmTransaction waits by default.
const DefaultConfirmRounds = 4
