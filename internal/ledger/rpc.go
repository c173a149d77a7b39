package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
)

// SubmitMethod is the JSON-RPC method the settlement node exposes for
// recording payments. It returns the transaction hash.
const SubmitMethod = "settlement_submit"

// RPC is a Client backed by an EVM JSON-RPC endpoint.
type RPC struct {
	rpc *gethrpc.Client
	eth *ethclient.Client
}

// DialRPC connects to url.
func DialRPC(ctx context.Context, url string) (*RPC, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, errors.New("ledger: rpc url is empty")
	}
	c, err := gethrpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("ledger: dial %s: %w", url, err)
	}
	return &RPC{rpc: c, eth: ethclient.NewClient(c)}, nil
}

// Submit implements Client.
func (r *RPC) Submit(ctx context.Context, s Submission) (string, error) {
	var hash common.Hash
	if err := r.rpc.CallContext(ctx, &hash, SubmitMethod, s); err != nil {
		return "", fmt.Errorf("ledger: submit %s: %w", s.SessionID, err)
	}
	if hash == (common.Hash{}) {
		return "", fmt.Errorf("ledger: submit %s: empty transaction hash", s.SessionID)
	}
	return hash.Hex(), nil
}

// Confirm implements Client using the transaction receipt.
func (r *RPC) Confirm(ctx context.Context, ref string) (bool, error) {
	rcpt, err := r.eth.TransactionReceipt(ctx, common.HexToHash(ref))
	if errors.Is(err, ethereum.NotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("ledger: receipt %s: %w", ref, err)
	}
	if rcpt.Status != types.ReceiptStatusSuccessful {
		return false, fmt.Errorf("%w: %s", ErrReverted, ref)
	}
	return true, nil
}

// GetBalance implements Client.
func (r *RPC) GetBalance(ctx context.Context, account string) (*big.Int, error) {
	if !common.IsHexAddress(account) {
		return nil, fmt.Errorf("ledger: %q is not an address", account)
	}
	bal, err := r.eth.BalanceAt(ctx, common.HexToAddress(account), nil)
	if err != nil {
		return nil, fmt.Errorf("ledger: balance %s: %w", account, err)
	}
	return bal, nil
}

// Close implements Client.
func (r *RPC) Close() { r.rpc.Close() }
