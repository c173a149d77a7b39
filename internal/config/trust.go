package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Trust models the YAML trust file: the content catalog, the whitelisted
// cross-chain emitters, the guardian set and seed verification keys.
type Trust struct {
	Contents         []ContentDef `yaml:"contents"`
	Emitters         []EmitterDef `yaml:"emitters"`
	Guardians        []string     `yaml:"guardians"`
	VerificationKeys []VKeyDef    `yaml:"verification_keys"`
}

// ContentDef describes one purchasable content item.
type ContentDef struct {
	ID                    string `yaml:"id"`
	Title                 string `yaml:"title"`
	BasePrice             int64  `yaml:"base_price"`
	CredentialDiscountBps int    `yaml:"credential_discount_bps"`
	Active                *bool  `yaml:"active"`
}

// IsActive defaults to true when the flag is omitted.
func (c ContentDef) IsActive() bool { return c.Active == nil || *c.Active }

// EmitterDef is a (chain, contract) pair allowed to originate payments.
type EmitterDef struct {
	Chain   uint16 `yaml:"chain"`
	Address string `yaml:"address"`
}

// VKeyDef points at a verification-key parameter file to seed the store.
type VKeyDef struct {
	Circuit string `yaml:"circuit"`
	Version string `yaml:"version"`
	File    string `yaml:"file"`
	Active  bool   `yaml:"active"`
}

// LoadTrust parses the trust file. An empty path yields an empty Trust.
// Relative key file paths are resolved against the trust file's directory.
func LoadTrust(path string) (Trust, error) {
	if strings.TrimSpace(path) == "" {
		return Trust{}, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Trust{}, fmt.Errorf("read trust file: %w", err)
	}
	var t Trust
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return Trust{}, fmt.Errorf("parse trust file: %w", err)
	}
	dir := filepath.Dir(path)
	for i := range t.VerificationKeys {
		f := t.VerificationKeys[i].File
		if f != "" && !filepath.IsAbs(f) {
			t.VerificationKeys[i].File = filepath.Join(dir, f)
		}
	}
	for i := range t.Emitters {
		norm, err := NormalizeEmitter(t.Emitters[i].Address)
		if err != nil {
			return Trust{}, fmt.Errorf("emitter %d: %w", i, err)
		}
		t.Emitters[i].Address = norm
	}
	if err := t.Validate(); err != nil {
		return Trust{}, err
	}
	return t, nil
}

// Validate checks catalog and key entries for obviously broken values.
func (t Trust) Validate() error {
	seen := make(map[string]struct{}, len(t.Contents))
	for _, c := range t.Contents {
		id := strings.TrimSpace(c.ID)
		if id == "" || len(id) > 32 {
			return fmt.Errorf("content id %q must be 1..32 bytes", c.ID)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("duplicate content id %q", id)
		}
		seen[id] = struct{}{}
		if c.BasePrice <= 0 {
			return fmt.Errorf("content %q: base_price must be > 0", id)
		}
		if c.CredentialDiscountBps < 0 || c.CredentialDiscountBps > 10000 {
			return fmt.Errorf("content %q: credential_discount_bps must be in [0,10000]", id)
		}
	}
	for _, g := range t.Guardians {
		s := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(g)), "0x")
		if b, err := hex.DecodeString(s); err != nil || len(b) != 20 {
			return fmt.Errorf("guardian %q is not a 20-byte hex address", g)
		}
	}
	for _, k := range t.VerificationKeys {
		if k.Circuit == "" || k.Version == "" || k.File == "" {
			return errors.New("verification_keys entries need circuit, version and file")
		}
	}
	return nil
}

// NormalizeEmitter returns the 32-byte, lowercase, unprefixed hex form of an
// emitter address. 20-byte addresses are left-padded with zeros.
func NormalizeEmitter(addr string) (string, error) {
	s := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(addr)), "0x")
	b, err := hex.DecodeString(s)
	if err != nil {
		return "", fmt.Errorf("emitter address %q: %w", addr, err)
	}
	switch len(b) {
	case 32:
	case 20:
		b = append(make([]byte, 12), b...)
	default:
		return "", fmt.Errorf("emitter address %q must be 20 or 32 bytes", addr)
	}
	return hex.EncodeToString(b), nil
}
