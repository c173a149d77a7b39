package proof

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/tbourn/zk-paygate/internal/vkeys"
)

// VerifyingKeyJSON is the snarkjs verification_key.json layout.
type VerifyingKeyJSON struct {
	Protocol string     `json:"protocol"`
	Curve    string     `json:"curve"`
	NPublic  int        `json:"nPublic"`
	Alpha1   []string   `json:"vk_alpha_1"`
	Beta2    [][]string `json:"vk_beta_2"`
	Gamma2   [][]string `json:"vk_gamma_2"`
	Delta2   [][]string `json:"vk_delta_2"`
	IC       [][]string `json:"IC"`
}

type verifyingKey struct {
	alpha bn254.G1Affine
	beta  bn254.G2Affine
	gamma bn254.G2Affine
	delta bn254.G2Affine
	ic    []bn254.G1Affine
}

// Groth16 verifies snarkjs Groth16 proofs on BN254. Parsed keys are
// memoised by params hash.
type Groth16 struct {
	keys *lru.Cache[string, *verifyingKey]
}

// NewGroth16 returns a Groth16 primitive remembering up to 64 parsed keys.
func NewGroth16() *Groth16 {
	c, _ := lru.New[string, *verifyingKey](64)
	return &Groth16{keys: c}
}

// ParseKey reports whether params hold a usable verifying key.
func (g *Groth16) ParseKey(params []byte) error {
	_, err := parseVerifyingKey(params)
	return err
}

// Verify implements Primitive.
func (g *Groth16) Verify(ctx context.Context, key vkeys.Key, p Proof, publics []*big.Int) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	vk, ok := g.keys.Get(key.Hash)
	if !ok {
		parsed, err := parseVerifyingKey(key.Params)
		if err != nil {
			return false, fmt.Errorf("verifying key %s/%s: %w", key.Circuit, key.Version, err)
		}
		vk = parsed
		g.keys.Add(key.Hash, vk)
	}
	if len(publics)+1 != len(vk.ic) {
		return false, fmt.Errorf("verifying key %s/%s expects %d public values, got %d",
			key.Circuit, key.Version, len(vk.ic)-1, len(publics))
	}

	a, err := g1FromStrings(p.PiA)
	if err != nil {
		return false, nil
	}
	b, err := g2FromStrings(p.PiB)
	if err != nil {
		return false, nil
	}
	c, err := g1FromStrings(p.PiC)
	if err != nil {
		return false, nil
	}

	// vk_x = IC[0] + sum(public[i] * IC[i+1])
	var vkx bn254.G1Affine
	vkx.Set(&vk.ic[0])
	for i, s := range publics {
		var term bn254.G1Affine
		term.ScalarMultiplication(&vk.ic[i+1], s)
		vkx.Add(&vkx, &term)
	}

	// e(-A, B) * e(alpha, beta) * e(vk_x, gamma) * e(C, delta) == 1
	var negA bn254.G1Affine
	negA.Neg(&a)
	return bn254.PairingCheck(
		[]bn254.G1Affine{negA, vk.alpha, vkx, c},
		[]bn254.G2Affine{b, vk.beta, vk.gamma, vk.delta},
	)
}

func parseVerifyingKey(raw []byte) (*verifyingKey, error) {
	var j VerifyingKeyJSON
	if err := json.Unmarshal(raw, &j); err != nil {
		return nil, fmt.Errorf("decode verifying key: %w", err)
	}
	if j.Protocol != "" && j.Protocol != "groth16" {
		return nil, fmt.Errorf("unsupported protocol %q", j.Protocol)
	}
	if len(j.IC) < 2 {
		return nil, errors.New("verifying key needs at least one public input")
	}
	if j.NPublic != 0 && j.NPublic+1 != len(j.IC) {
		return nil, fmt.Errorf("nPublic %d does not match %d IC points", j.NPublic, len(j.IC))
	}
	var (
		vk  verifyingKey
		err error
	)
	if vk.alpha, err = g1FromStrings(j.Alpha1); err != nil {
		return nil, fmt.Errorf("vk_alpha_1: %w", err)
	}
	if vk.beta, err = g2FromStrings(j.Beta2); err != nil {
		return nil, fmt.Errorf("vk_beta_2: %w", err)
	}
	if vk.gamma, err = g2FromStrings(j.Gamma2); err != nil {
		return nil, fmt.Errorf("vk_gamma_2: %w", err)
	}
	if vk.delta, err = g2FromStrings(j.Delta2); err != nil {
		return nil, fmt.Errorf("vk_delta_2: %w", err)
	}
	vk.ic = make([]bn254.G1Affine, len(j.IC))
	for i, pt := range j.IC {
		if vk.ic[i], err = g1FromStrings(pt); err != nil {
			return nil, fmt.Errorf("IC[%d]: %w", i, err)
		}
	}
	return &vk, nil
}

func g1FromStrings(coords []string) (bn254.G1Affine, error) {
	var p bn254.G1Affine
	if err := checkG1("point", coords); err != nil {
		return p, err
	}
	x, _ := ParseCanonical(coords[0], baseModulus)
	y, _ := ParseCanonical(coords[1], baseModulus)
	p.X.SetBigInt(x)
	p.Y.SetBigInt(y)
	if p.IsInfinity() {
		return p, errors.New("point at infinity")
	}
	if !p.IsOnCurve() || !p.IsInSubGroup() {
		return p, errors.New("G1 point not on curve")
	}
	return p, nil
}

func g2FromStrings(coords [][]string) (bn254.G2Affine, error) {
	var p bn254.G2Affine
	if err := checkG2("point", coords); err != nil {
		return p, err
	}
	x0, _ := ParseCanonical(coords[0][0], baseModulus)
	x1, _ := ParseCanonical(coords[0][1], baseModulus)
	y0, _ := ParseCanonical(coords[1][0], baseModulus)
	y1, _ := ParseCanonical(coords[1][1], baseModulus)
	p.X.A0.SetBigInt(x0)
	p.X.A1.SetBigInt(x1)
	p.Y.A0.SetBigInt(y0)
	p.Y.A1.SetBigInt(y1)
	if p.IsInfinity() {
		return p, errors.New("point at infinity")
	}
	if !p.IsOnCurve() || !p.IsInSubGroup() {
		return p, errors.New("G2 point not on curve or outside subgroup")
	}
	return p, nil
}
