// Package keys derives the per-session decryption key released to a payer
// once the session is confirmed. Keys come from HKDF-SHA256 over a master
// secret, so the content service can re-derive them without a lookup.
package keys

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/hkdf"
)

// KeyLen is the derived key size in bytes.
const KeyLen = 32

const info = "zk-paygate/decryption-key/v1"

// Deriver produces decryption keys.
type Deriver struct {
	master []byte
}

// NewDeriver uses secret as the HKDF input key material. An empty secret
// falls back to a random per-process master; keys already persisted stay
// valid but cannot be re-derived after a restart.
func NewDeriver(secret string) (*Deriver, error) {
	if secret == "" {
		m := make([]byte, KeyLen)
		if _, err := rand.Read(m); err != nil {
			return nil, fmt.Errorf("keys: random master: %w", err)
		}
		log.Warn().Msg("KEY_MASTER_SECRET not set; using an ephemeral key master")
		return &Deriver{master: m}, nil
	}
	if len(secret) < 16 {
		return nil, errors.New("keys: master secret must be at least 16 bytes")
	}
	return &Deriver{master: []byte(secret)}, nil
}

// Derive returns the hex key for (contentID, sessionID).
func (d *Deriver) Derive(contentID, sessionID string) (string, error) {
	salt := sha256.Sum256([]byte(contentID))
	r := hkdf.New(sha256.New, d.master, salt[:], []byte(info+"|"+contentID+"|"+sessionID))
	out := make([]byte, KeyLen)
	if _, err := io.ReadFull(r, out); err != nil {
		return "", fmt.Errorf("keys: derive: %w", err)
	}
	return hex.EncodeToString(out), nil
}
