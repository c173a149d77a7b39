package bridge

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/tbourn/zk-paygate/internal/domain"
)

// Wire sizes of a version 1 signed message.
const (
	headerLen    = 6  // version u8, guardian set u32, signature count u8
	signatureLen = 66 // guardian index u8, r|s|v
	bodyFixedLen = 51 // timestamp u32, nonce u32, chain u16, emitter [32], sequence u64, consistency u8
)

// Signature is one guardian signature over the body digest.
type Signature struct {
	Index uint8
	Sig   [65]byte
}

// VAA is a parsed signed cross-chain message.
type VAA struct {
	Version          uint8
	GuardianSetIndex uint32
	Signatures       []Signature

	Timestamp        uint32
	Nonce            uint32
	EmitterChain     uint16
	EmitterAddress   [32]byte
	Sequence         uint64
	ConsistencyLevel uint8
	Payload          []byte

	body []byte
}

// ParseVAA decodes a version 1 message. Guardian indexes must be strictly
// increasing, which also rules out duplicate signers.
func ParseVAA(raw []byte) (*VAA, error) {
	if len(raw) < headerLen {
		return nil, fmt.Errorf("%w: signed message too short", domain.ErrMalformedInput)
	}
	v := &VAA{
		Version:          raw[0],
		GuardianSetIndex: binary.BigEndian.Uint32(raw[1:5]),
	}
	if v.Version != 1 {
		return nil, fmt.Errorf("%w: unsupported message version %d", domain.ErrMalformedInput, v.Version)
	}
	n := int(raw[5])
	off := headerLen
	if len(raw) < off+n*signatureLen+bodyFixedLen {
		return nil, fmt.Errorf("%w: signed message truncated", domain.ErrMalformedInput)
	}
	v.Signatures = make([]Signature, n)
	for i := 0; i < n; i++ {
		s := &v.Signatures[i]
		s.Index = raw[off]
		copy(s.Sig[:], raw[off+1:off+signatureLen])
		if i > 0 && s.Index <= v.Signatures[i-1].Index {
			return nil, fmt.Errorf("%w: guardian indexes not strictly increasing", domain.ErrMalformedInput)
		}
		off += signatureLen
	}

	v.body = raw[off:]
	b := v.body
	v.Timestamp = binary.BigEndian.Uint32(b[0:4])
	v.Nonce = binary.BigEndian.Uint32(b[4:8])
	v.EmitterChain = binary.BigEndian.Uint16(b[8:10])
	copy(v.EmitterAddress[:], b[10:42])
	v.Sequence = binary.BigEndian.Uint64(b[42:50])
	v.ConsistencyLevel = b[50]
	v.Payload = b[bodyFixedLen:]
	return v, nil
}

// Digest is keccak256(keccak256(body)), the value guardians sign.
func (v *VAA) Digest() common.Hash {
	return crypto.Keccak256Hash(crypto.Keccak256(v.body))
}

// MessageHash is the hex digest used as the replay key. It covers the body
// only, so the same message re-signed by a different guardian subset still
// maps to one hash.
func (v *VAA) MessageHash() string {
	d := v.Digest()
	return hex.EncodeToString(d[:])
}

// Emitter returns the emitter address as lowercase hex.
func (v *VAA) Emitter() string { return hex.EncodeToString(v.EmitterAddress[:]) }

// CountSigners returns how many signatures count towards quorum. With a
// guardian set each signature must recover to the guardian at its index;
// without one every (already de-duplicated) index counts.
func (v *VAA) CountSigners(guardians []common.Address) int {
	if len(guardians) == 0 {
		return len(v.Signatures)
	}
	digest := v.Digest()
	n := 0
	for _, s := range v.Signatures {
		if int(s.Index) >= len(guardians) {
			continue
		}
		pub, err := crypto.SigToPub(digest[:], s.Sig[:])
		if err != nil {
			continue
		}
		if crypto.PubkeyToAddress(*pub) == guardians[s.Index] {
			n++
		}
	}
	return n
}

// Body fields for building messages.
type Body struct {
	Timestamp        uint32
	Nonce            uint32
	EmitterChain     uint16
	EmitterAddress   [32]byte
	Sequence         uint64
	ConsistencyLevel uint8
	Payload          []byte
}

// Marshal encodes the body.
func (b Body) Marshal() []byte {
	out := make([]byte, bodyFixedLen, bodyFixedLen+len(b.Payload))
	binary.BigEndian.PutUint32(out[0:4], b.Timestamp)
	binary.BigEndian.PutUint32(out[4:8], b.Nonce)
	binary.BigEndian.PutUint16(out[8:10], b.EmitterChain)
	copy(out[10:42], b.EmitterAddress[:])
	binary.BigEndian.PutUint64(out[42:50], b.Sequence)
	out[50] = b.ConsistencyLevel
	return append(out, b.Payload...)
}

// Assemble builds a version 1 signed message from a body and signatures
// already sorted by guardian index.
func Assemble(guardianSet uint32, sigs []Signature, body []byte) []byte {
	out := make([]byte, headerLen, headerLen+len(sigs)*signatureLen+len(body))
	out[0] = 1
	binary.BigEndian.PutUint32(out[1:5], guardianSet)
	out[5] = byte(len(sigs))
	for _, s := range sigs {
		out = append(out, s.Index)
		out = append(out, s.Sig[:]...)
	}
	return append(out, body...)
}
