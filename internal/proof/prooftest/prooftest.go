// Package prooftest builds throwaway Groth16 verifying keys and matching
// proofs on BN254 for tests. It knows the setup trapdoor, so it can forge a
// proof for any public input vector; never use it outside tests.
package prooftest

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"github.com/tbourn/zk-paygate/internal/proof"
)

// Setup is a trapdoored verifying key.
type Setup struct {
	nPublic                   int
	alpha, beta, gamma, delta fr.Element
	ic                        []fr.Element
	vkey                      []byte
}

// New samples a fresh setup for nPublic public inputs.
func New(nPublic int) (*Setup, error) {
	if nPublic < 1 {
		return nil, fmt.Errorf("prooftest: nPublic must be positive")
	}
	s := &Setup{nPublic: nPublic, ic: make([]fr.Element, nPublic+1)}
	for _, e := range []*fr.Element{&s.alpha, &s.beta, &s.gamma, &s.delta} {
		if err := random(e); err != nil {
			return nil, err
		}
	}
	for i := range s.ic {
		if err := random(&s.ic[i]); err != nil {
			return nil, err
		}
	}

	vk := proof.VerifyingKeyJSON{
		Protocol: "groth16",
		Curve:    "bn128",
		NPublic:  nPublic,
		Alpha1:   g1JSON(g1(&s.alpha)),
		Beta2:    g2JSON(g2(&s.beta)),
		Gamma2:   g2JSON(g2(&s.gamma)),
		Delta2:   g2JSON(g2(&s.delta)),
	}
	for i := range s.ic {
		vk.IC = append(vk.IC, g1JSON(g1(&s.ic[i])))
	}
	raw, err := json.Marshal(vk)
	if err != nil {
		return nil, err
	}
	s.vkey = raw
	return s, nil
}

// MustNew is New that panics.
func MustNew(nPublic int) *Setup {
	s, err := New(nPublic)
	if err != nil {
		panic(err)
	}
	return s
}

// VerifyingKey returns the snarkjs JSON verifying key.
func (s *Setup) VerifyingKey() []byte { return append([]byte(nil), s.vkey...) }

// Prove returns a proof that verifies for exactly these public values.
func (s *Setup) Prove(publics []*big.Int) (proof.Proof, error) {
	if len(publics) != s.nPublic {
		return proof.Proof{}, fmt.Errorf("prooftest: want %d public values, got %d", s.nPublic, len(publics))
	}
	// l = ic0 + sum(s_i * ic_{i+1})
	l := s.ic[0]
	for i, p := range publics {
		var si, term fr.Element
		si.SetBigInt(p)
		term.Mul(&si, &s.ic[i+1])
		l.Add(&l, &term)
	}

	var a, b fr.Element
	if err := random(&a); err != nil {
		return proof.Proof{}, err
	}
	if err := random(&b); err != nil {
		return proof.Proof{}, err
	}
	// a*b = alpha*beta + l*gamma + c*delta
	var ab, albe, lg, c, dinv fr.Element
	ab.Mul(&a, &b)
	albe.Mul(&s.alpha, &s.beta)
	lg.Mul(&l, &s.gamma)
	c.Sub(&ab, &albe)
	c.Sub(&c, &lg)
	dinv.Inverse(&s.delta)
	c.Mul(&c, &dinv)

	pa, pc := g1JSON(g1(&a)), g1JSON(g1(&c))
	return proof.Proof{
		PiA:      append(pa, "1"),
		PiB:      append(g2JSON(g2(&b)), []string{"1", "0"}),
		PiC:      append(pc, "1"),
		Protocol: "groth16",
		Curve:    "bn128",
	}, nil
}

// MustProve is Prove that panics.
func (s *Setup) MustProve(publics []*big.Int) proof.Proof {
	p, err := s.Prove(publics)
	if err != nil {
		panic(err)
	}
	return p
}

// Decimals renders values the way requests carry them.
func Decimals(vals []*big.Int) []string {
	out := make([]string, len(vals))
	for i, v := range vals {
		out[i] = v.String()
	}
	return out
}

func random(e *fr.Element) error {
	for {
		if _, err := e.SetRandom(); err != nil {
			return err
		}
		if !e.IsZero() {
			return nil
		}
	}
}

func g1(e *fr.Element) bn254.G1Affine {
	var p bn254.G1Affine
	p.ScalarMultiplicationBase(e.BigInt(new(big.Int)))
	return p
}

func g2(e *fr.Element) bn254.G2Affine {
	var p bn254.G2Affine
	p.ScalarMultiplicationBase(e.BigInt(new(big.Int)))
	return p
}

func g1JSON(p bn254.G1Affine) []string {
	return []string{
		p.X.BigInt(new(big.Int)).String(),
		p.Y.BigInt(new(big.Int)).String(),
	}
}

func g2JSON(p bn254.G2Affine) [][]string {
	return [][]string{
		{p.X.A0.BigInt(new(big.Int)).String(), p.X.A1.BigInt(new(big.Int)).String()},
		{p.Y.A0.BigInt(new(big.Int)).String(), p.Y.A1.BigInt(new(big.Int)).String()},
	}
}
