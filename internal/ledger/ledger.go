// Package ledger submits confirmed payments to the settlement ledger and
// checks their finality. Mock keeps everything in memory; RPC talks to an
// EVM-compatible node.
package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
)

// Submission is one settlement instruction.
type Submission struct {
	SessionID   string `json:"sessionId"`
	ContentID   string `json:"contentId"`
	Nullifier   string `json:"nullifier"`
	Amount      int64  `json:"amount"`
	PlatformFee int64  `json:"platformFee"`
}

// Client is the ledger boundary.
type Client interface {
	// Submit records the payment and returns its on-chain reference.
	Submit(ctx context.Context, s Submission) (string, error)
	// Confirm reports whether ref reached finality. An unknown ref is
	// (false, nil); a reverted one is an error.
	Confirm(ctx context.Context, ref string) (bool, error)
	// GetBalance returns the balance of account in the smallest unit.
	GetBalance(ctx context.Context, account string) (*big.Int, error)
	Close()
}

// ErrReverted is returned by Confirm for a settlement that failed on chain.
var ErrReverted = errors.New("ledger: settlement reverted")

// Mock is an in-memory ledger. Submissions are final immediately; the
// platform account accrues fees and every other amount is credited to the
// content id.
type Mock struct {
	mu       sync.Mutex
	platform string
	refs     map[string]Submission
	balances map[string]*big.Int
}

// NewMock returns an empty ledger whose fees go to platform.
func NewMock(platform string) *Mock {
	return &Mock{
		platform: strings.ToLower(platform),
		refs:     map[string]Submission{},
		balances: map[string]*big.Int{},
	}
}

// Submit implements Client. The reference is derived from the session id,
// so resubmitting the same session is idempotent.
func (m *Mock) Submit(ctx context.Context, s Submission) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if s.Amount <= 0 {
		return "", fmt.Errorf("ledger: amount must be positive")
	}
	sum := sha256.Sum256([]byte("settle:" + s.SessionID))
	ref := "0x" + hex.EncodeToString(sum[:])

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, dup := m.refs[ref]; dup {
		return ref, nil
	}
	m.refs[ref] = s
	m.credit(m.platform, s.PlatformFee)
	m.credit(strings.ToLower(s.ContentID), s.Amount-s.PlatformFee)
	return ref, nil
}

func (m *Mock) credit(account string, amount int64) {
	if account == "" || amount == 0 {
		return
	}
	b, ok := m.balances[account]
	if !ok {
		b = new(big.Int)
		m.balances[account] = b
	}
	b.Add(b, big.NewInt(amount))
}

// Confirm implements Client.
func (m *Mock) Confirm(_ context.Context, ref string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.refs[ref]
	return ok, nil
}

// GetBalance implements Client.
func (m *Mock) GetBalance(_ context.Context, account string) (*big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.balances[strings.ToLower(account)]; ok {
		return new(big.Int).Set(b), nil
	}
	return new(big.Int), nil
}

// Close implements Client.
func (m *Mock) Close() {}
