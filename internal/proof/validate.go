package proof

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/consensys/gnark-crypto/ecc/bn254/fp"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"github.com/tbourn/zk-paygate/internal/domain"
)

var (
	baseModulus   = fp.Modulus()
	scalarModulus = fr.Modulus()
)

// ScalarModulus returns a copy of the BN254 scalar-field order.
func ScalarModulus() *big.Int { return new(big.Int).Set(scalarModulus) }

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{domain.ErrMalformedInput}, args...)...)
}

// ParseCanonical parses a canonical decimal (no sign, no leading zeros)
// strictly below mod.
func ParseCanonical(s string, mod *big.Int) (*big.Int, bool) {
	if s == "" || len(s) > 80 {
		return nil, false
	}
	n, ok := new(big.Int).SetString(s, 10)
	if !ok || n.Sign() < 0 || n.String() != s || n.Cmp(mod) >= 0 {
		return nil, false
	}
	return n, true
}

// validate checks structure only: curve tag, coordinate shapes, canonical
// field elements and the circuit's public-input count.
func (v *Verifier) validate(req Request) ([]*big.Int, error) {
	if strings.TrimSpace(req.Circuit) == "" {
		return nil, malformed("circuit is required")
	}
	if p := strings.ToLower(req.Proof.Protocol); p != "" && p != "groth16" {
		return nil, malformed("unsupported protocol %q", req.Proof.Protocol)
	}
	if c := strings.ToLower(req.Proof.Curve); c != "" && c != "bn128" && c != "bn254" {
		return nil, malformed("unsupported curve %q", req.Proof.Curve)
	}
	if err := checkG1("pi_a", req.Proof.PiA); err != nil {
		return nil, err
	}
	if err := checkG2("pi_b", req.Proof.PiB); err != nil {
		return nil, err
	}
	if err := checkG1("pi_c", req.Proof.PiC); err != nil {
		return nil, err
	}
	want, declared := v.opts.PublicInputs[req.Circuit]
	if declared && len(req.PublicValues) != want {
		return nil, malformed("circuit %q takes %d public values, got %d", req.Circuit, want, len(req.PublicValues))
	}
	if len(req.PublicValues) == 0 {
		return nil, malformed("public values are required")
	}
	publics := make([]*big.Int, len(req.PublicValues))
	for i, s := range req.PublicValues {
		n, ok := ParseCanonical(s, scalarModulus)
		if !ok {
			return nil, malformed("public value %d is not a canonical field element", i)
		}
		publics[i] = n
	}
	return publics, nil
}

func checkG1(name string, coords []string) error {
	switch len(coords) {
	case 2:
	case 3:
		if coords[2] != "1" {
			return malformed("%s must be affine (z = 1)", name)
		}
	default:
		return malformed("%s must have 2 or 3 coordinates", name)
	}
	for i := 0; i < 2; i++ {
		if _, ok := ParseCanonical(coords[i], baseModulus); !ok {
			return malformed("%s[%d] is not a canonical base-field element", name, i)
		}
	}
	return nil
}

func checkG2(name string, coords [][]string) error {
	switch len(coords) {
	case 2:
	case 3:
		if len(coords[2]) != 2 || coords[2][0] != "1" || coords[2][1] != "0" {
			return malformed("%s must be affine (z = [1, 0])", name)
		}
	default:
		return malformed("%s must have 2 or 3 coordinate pairs", name)
	}
	for i := 0; i < 2; i++ {
		if len(coords[i]) != 2 {
			return malformed("%s[%d] must be a pair", name, i)
		}
		for j := 0; j < 2; j++ {
			if _, ok := ParseCanonical(coords[i][j], baseModulus); !ok {
				return malformed("%s[%d][%d] is not a canonical base-field element", name, i, j)
			}
		}
	}
	return nil
}
