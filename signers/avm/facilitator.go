package avm

import (
	"context"
	"fmt"
	"sync"

	"github.com/algorand/go-algorand-sdk/v2/client/v2/algod"
	"github.com/algorand/go-algorand-sdk/v2/client/v2/common/models"
	"github.com/algorand/go-algorand-sdk/v2/crypto"
	"github.com/algorand/go-algorand-sdk/v2/encoding/msgpack"
	sdktransaction "github.com/algorand/go-algorand-sdk/v2/transaction"
	"github.com/algorand/go-algorand-sdk/v2/types"

	x402avm "github.com/algorandfoundation/x402/mechanisms/avm"
)

// AlgodURLSource resolves the algod endpoint to use for a given CAIP-2
// network. Integrators override ALGOD_MAINNET_URL/ALGOD_TESTNET_URL here;
// DefaultAlgodURLSource falls back to the public AlgoNode endpoints in
// x402avm.NetworkConfigs.
type AlgodURLSource func(network string) (string, error)

// DefaultAlgodURLSource resolves network to its AlgoNode public-node URL.
func DefaultAlgodURLSource(network string) (string, error) {
	cfg, err := x402avm.GetNetworkConfig(network)
	if err != nil {
		return "", err
	}
	return cfg.AlgodURL, nil
}

// FacilitatorAccountSigner manages one or more fee-payer accounts and talks to
// algod to simulate, submit, and confirm transaction groups. It implements
// x402avm.FacilitatorSigner.
type FacilitatorAccountSigner struct {
	mu         sync.RWMutex
	accounts   map[string][]byte // address -> private key
	urlSource  AlgodURLSource
	apiToken   string
	clients    map[string]*algod.Client
}

// NewFacilitatorAccountSigner creates a facilitator signer with no accounts
// yet. Call AddAccount to add fee payers.
func NewFacilitatorAccountSigner(urlSource AlgodURLSource, apiToken string) *FacilitatorAccountSigner {
	if urlSource == nil {
		urlSource = DefaultAlgodURLSource
	}
	return &FacilitatorAccountSigner{
		accounts:  map[string][]byte{},
		urlSource: urlSource,
		apiToken:  apiToken,
		clients:   map[string]*algod.Client{},
	}
}

// AddAccount registers a fee-payer account from its raw private key.
func (s *FacilitatorAccountSigner) AddAccount(privateKey []byte) (*FacilitatorAccountSigner, error) {
	address, err := crypto.GenerateAddressFromSK(privateKey)
	if err != nil {
		return nil, fmt.Errorf("derive address: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[address.String()] = privateKey
	return s, nil
}

// GetAddresses returns every managed fee-payer address.
func (s *FacilitatorAccountSigner) GetAddresses() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	addrs := make([]string, 0, len(s.accounts))
	for addr := range s.accounts {
		addrs = append(addrs, addr)
	}
	return addrs
}

func (s *FacilitatorAccountSigner) privateKeyFor(feePayer string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key, ok := s.accounts[feePayer]
	if !ok {
		return nil, fmt.Errorf("fee payer %s not managed by this signer", feePayer)
	}
	return key, nil
}

func (s *FacilitatorAccountSigner) clientFor(network string) (*algod.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if client, ok := s.clients[network]; ok {
		return client, nil
	}
	url, err := s.urlSource(network)
	if err != nil {
		return nil, err
	}
	client, err := algod.MakeClient(url, s.apiToken)
	if err != nil {
		return nil, fmt.Errorf("make algod client: %w", err)
	}
	s.clients[network] = client
	return client, nil
}

// SignGroup signs the transactions at indexesToSign with feePayer's key.
func (s *FacilitatorAccountSigner) SignGroup(_ context.Context, group [][]byte, feePayer string, indexesToSign []int, _ string) ([][]byte, error) {
	privateKey, err := s.privateKeyFor(feePayer)
	if err != nil {
		return nil, err
	}

	out := make([][]byte, len(group))
	copy(out, group)

	for _, idx := range indexesToSign {
		if idx < 0 || idx >= len(group) {
			continue
		}

		var txn types.Transaction
		if err := msgpack.Decode(group[idx], &txn); err != nil {
			return nil, fmt.Errorf("decode transaction %d: %w", idx, err)
		}

		_, signedBytes, err := crypto.SignTransaction(privateKey, txn)
		if err != nil {
			return nil, fmt.Errorf("sign transaction %d: %w", idx, err)
		}
		out[idx] = signedBytes
	}

	return out, nil
}

// SimulateGroup dry-runs group against network, allowing empty signatures on
// transactions the fee payer has not yet co-signed.
func (s *FacilitatorAccountSigner) SimulateGroup(ctx context.Context, group [][]byte, network string) error {
	client, err := s.clientFor(network)
	if err != nil {
		return err
	}

	signedTxns := make([]types.SignedTxn, len(group))
	for i, raw := range group {
		if err := msgpack.Decode(raw, &signedTxns[i]); err != nil {
			return fmt.Errorf("decode transaction %d: %w", i, err)
		}
	}

	request := models.SimulateRequest{
		TxnGroups: []models.SimulateRequestTransactionGroup{
			{Txns: signedTxns},
		},
		AllowEmptySignatures: true,
	}

	result, err := client.SimulateTransaction(request).Do(ctx)
	if err != nil {
		return fmt.Errorf("simulate transaction: %w", err)
	}

	for _, group := range result.TxnGroups {
		if group.FailureMessage != "" {
			return fmt.Errorf("simulation failed: %s", group.FailureMessage)
		}
	}

	return nil
}

// SendGroup submits a fully-signed group to network and returns its txid.
func (s *FacilitatorAccountSigner) SendGroup(ctx context.Context, group [][]byte, network string) (string, error) {
	client, err := s.clientFor(network)
	if err != nil {
		return "", err
	}

	var raw []byte
	for _, txnBytes := range group {
		raw = append(raw, txnBytes...)
	}

	txid, err := client.SendRawTransaction(raw).Do(ctx)
	if err != nil {
		return "", fmt.Errorf("send raw transaction: %w", err)
	}
	return txid, nil
}

// ConfirmTransaction waits for txid to be confirmed, bounded by rounds.
func (s *FacilitatorAccountSigner) ConfirmTransaction(ctx context.Context, txid string, network string, rounds int) error {
	client, err := s.clientFor(network)
	if err != nil {
		return err
	}
	_, err = sdktransaction.WaitForConfirmation(client, txid, uint64(rounds), ctx)
	if err != nil {
		return fmt.Errorf("wait for confirmation: %w", err)
	}
	return nil
}

var _ x402avm.FacilitatorSigner = (*FacilitatorAccountSigner)(nil)
