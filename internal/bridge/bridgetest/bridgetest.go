// Package bridgetest signs cross-chain messages with throwaway guardian
// keys for tests.
package bridgetest

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/tbourn/zk-paygate/internal/bridge"
	"github.com/tbourn/zk-paygate/internal/domain"
)

// Guardians is a generated guardian set.
type Guardians struct {
	keys []*ecdsa.PrivateKey
}

// NewGuardians generates n guardian keys.
func NewGuardians(n int) (*Guardians, error) {
	g := &Guardians{keys: make([]*ecdsa.PrivateKey, n)}
	for i := range g.keys {
		k, err := crypto.GenerateKey()
		if err != nil {
			return nil, err
		}
		g.keys[i] = k
	}
	return g, nil
}

// Addresses returns the guardian addresses in index order.
func (g *Guardians) Addresses() []common.Address {
	out := make([]common.Address, len(g.keys))
	for i, k := range g.keys {
		out[i] = crypto.PubkeyToAddress(k.PublicKey)
	}
	return out
}

// Sign returns a signed message over body carrying signatures from the
// first signers guardians.
func (g *Guardians) Sign(body bridge.Body, signers int) ([]byte, error) {
	if signers > len(g.keys) {
		return nil, fmt.Errorf("bridgetest: only %d guardians", len(g.keys))
	}
	raw := body.Marshal()
	digest := crypto.Keccak256Hash(crypto.Keccak256(raw))
	sigs := make([]bridge.Signature, signers)
	for i := 0; i < signers; i++ {
		sig, err := crypto.Sign(digest[:], g.keys[i])
		if err != nil {
			return nil, err
		}
		sigs[i].Index = uint8(i)
		copy(sigs[i].Sig[:], sig)
	}
	return bridge.Assemble(0, sigs, raw), nil
}

// MustSign is Sign that panics.
func (g *Guardians) MustSign(body bridge.Body, signers int) []byte {
	raw, err := g.Sign(body, signers)
	if err != nil {
		panic(err)
	}
	return raw
}

// Emitter returns a 32-byte emitter address from its hex form.
func Emitter(hex64 string) [32]byte {
	var out [32]byte
	copy(out[:], common.FromHex(hex64))
	return out
}

// Fetcher serves one fixed message and counts calls.
type Fetcher struct {
	Raw   []byte
	Err   error
	calls atomic.Int32
}

// Fetch implements bridge.Fetcher.
func (f *Fetcher) Fetch(context.Context, uint16, string, uint64) ([]byte, error) {
	f.calls.Add(1)
	if f.Err != nil {
		return nil, f.Err
	}
	if f.Raw == nil {
		return nil, domain.ErrNotYetAttested
	}
	return f.Raw, nil
}

// Calls reports how many fetches happened.
func (f *Fetcher) Calls() int { return int(f.calls.Load()) }
