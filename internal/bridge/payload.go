package bridge

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/tbourn/zk-paygate/internal/domain"
)

// PayloadLen is the size of a payment payload.
const PayloadLen = 129

const payloadPayment = 0x01

// Payment is the decoded payload of a bridged payment message:
//
//	0x01 | contentId[32] | sessionId[16] | nullifier[32] | payer[32] | amount u64 | timestamp u64
//
// contentId is ASCII right-padded with zeros; integers are big endian.
type Payment struct {
	ContentID string
	SessionID string
	Nullifier string // 64 lowercase hex
	Payer     string // 64 lowercase hex
	Amount    int64
	Timestamp time.Time
}

// DecodePayment parses the fixed layout. A field made only of zero bytes
// is rejected: the wire format has no way to tell it apart from absent.
func DecodePayment(p []byte) (Payment, error) {
	if len(p) != PayloadLen {
		return Payment{}, fmt.Errorf("%w: payload must be %d bytes, got %d", domain.ErrMalformedInput, PayloadLen, len(p))
	}
	if p[0] != payloadPayment {
		return Payment{}, fmt.Errorf("%w: unknown payload type %d", domain.ErrMalformedInput, p[0])
	}
	fields := []struct {
		name string
		b    []byte
	}{
		{"contentId", p[1:33]},
		{"sessionId", p[33:49]},
		{"nullifier", p[49:81]},
		{"payer", p[81:113]},
		{"amount", p[113:121]},
		{"timestamp", p[121:129]},
	}
	for _, f := range fields {
		if allZero(f.b) {
			return Payment{}, fmt.Errorf("%w: payload field %s is zero", domain.ErrMalformedInput, f.name)
		}
	}

	sid, err := uuid.FromBytes(p[33:49])
	if err != nil {
		return Payment{}, fmt.Errorf("%w: payload sessionId: %v", domain.ErrMalformedInput, err)
	}
	amount := binary.BigEndian.Uint64(p[113:121])
	ts := binary.BigEndian.Uint64(p[121:129])
	if amount > math.MaxInt64 || ts > math.MaxInt64 {
		return Payment{}, fmt.Errorf("%w: payload integer out of range", domain.ErrMalformedInput)
	}
	return Payment{
		ContentID: string(bytes.TrimRight(p[1:33], "\x00")),
		SessionID: sid.String(),
		Nullifier: hex.EncodeToString(p[49:81]),
		Payer:     hex.EncodeToString(p[81:113]),
		Amount:    int64(amount),
		Timestamp: time.Unix(int64(ts), 0).UTC(),
	}, nil
}

// Validate applies the schema checks that need no clock.
func (p Payment) Validate() error {
	if p.Amount <= 0 {
		return fmt.Errorf("%w: amount must be positive", domain.ErrMalformedInput)
	}
	if p.ContentID == "" || len(p.ContentID) > 32 {
		return fmt.Errorf("%w: contentId must be 1..32 bytes", domain.ErrMalformedInput)
	}
	for i := 0; i < len(p.ContentID); i++ {
		if c := p.ContentID[i]; c < 0x21 || c > 0x7e {
			return fmt.Errorf("%w: contentId must be printable ASCII", domain.ErrMalformedInput)
		}
	}
	return nil
}

// Encode renders the payload. Hex fields that fail to decode are left zero.
func (p Payment) Encode() []byte {
	out := make([]byte, PayloadLen)
	out[0] = payloadPayment
	copy(out[1:33], p.ContentID)
	if sid, err := uuid.Parse(p.SessionID); err == nil {
		copy(out[33:49], sid[:])
	}
	if b, err := hex.DecodeString(p.Nullifier); err == nil && len(b) == 32 {
		copy(out[49:81], b)
	}
	if b, err := hex.DecodeString(p.Payer); err == nil && len(b) == 32 {
		copy(out[81:113], b)
	}
	binary.BigEndian.PutUint64(out[113:121], uint64(p.Amount))
	binary.BigEndian.PutUint64(out[121:129], uint64(p.Timestamp.Unix()))
	return out
}

func allZero(b []byte) bool {
	for _, x := range b {
		if x != 0 {
			return false
		}
	}
	return true
}
