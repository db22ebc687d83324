package vault

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

const (
	flagCompleted = 1 << 0
	flagWithdrawn = 1 << 1

	recordLength = 8 + 20 + 20 + 32 + 8 + 1
)

// LockRecord is the custody-side state of one initiation. Completed and
// Withdrawn are mutually exclusive and each is set at most once.
type LockRecord struct {
	Nonce     uint64
	Owner     common.Address
	Asset     common.Address
	Amount    *uint256.Int
	CreatedAt time.Time
	Completed bool
	Withdrawn bool
}

// Open reports whether the record is neither completed nor withdrawn.
func (r *LockRecord) Open() bool {
	return !r.Completed && !r.Withdrawn
}

// RecoverableAt is the earliest time the owner may withdraw the lock.
func (r *LockRecord) RecoverableAt(delay time.Duration) time.Time {
	return r.CreatedAt.Add(delay)
}

func (r *LockRecord) Marshal() []byte {
	buf := new(bytes.Buffer)
	buf.Grow(recordLength)
	mustWrite(buf, binary.BigEndian, r.Nonce)
	buf.Write(r.Owner.Bytes())
	buf.Write(r.Asset.Bytes())
	amount := r.Amount.Bytes32()
	buf.Write(amount[:])
	mustWrite(buf, binary.BigEndian, uint64(r.CreatedAt.UnixNano())) // #nosec G115 -- block times are after 1970

	var flags uint8
	if r.Completed {
		flags |= flagCompleted
	}
	if r.Withdrawn {
		flags |= flagWithdrawn
	}
	mustWrite(buf, binary.BigEndian, flags)
	return buf.Bytes()
}

func UnmarshalLockRecord(data []byte) (*LockRecord, error) {
	if len(data) != recordLength {
		return nil, fmt.Errorf("lock record has %d bytes, want %d", len(data), recordLength)
	}
	r := &LockRecord{}
	reader := bytes.NewReader(data)

	if err := binary.Read(reader, binary.BigEndian, &r.Nonce); err != nil {
		return nil, fmt.Errorf("failed to read nonce: %w", err)
	}
	if _, err := io.ReadFull(reader, r.Owner[:]); err != nil {
		return nil, fmt.Errorf("failed to read owner: %w", err)
	}
	if _, err := io.ReadFull(reader, r.Asset[:]); err != nil {
		return nil, fmt.Errorf("failed to read asset: %w", err)
	}
	var amount [32]byte
	if _, err := io.ReadFull(reader, amount[:]); err != nil {
		return nil, fmt.Errorf("failed to read amount: %w", err)
	}
	r.Amount = new(uint256.Int).SetBytes32(amount[:])

	var createdAt uint64
	if err := binary.Read(reader, binary.BigEndian, &createdAt); err != nil {
		return nil, fmt.Errorf("failed to read created at: %w", err)
	}
	r.CreatedAt = time.Unix(0, int64(createdAt)) // #nosec G115 -- written from a positive int64

	var flags uint8
	if err := binary.Read(reader, binary.BigEndian, &flags); err != nil {
		return nil, fmt.Errorf("failed to read flags: %w", err)
	}
	r.Completed = flags&flagCompleted != 0
	r.Withdrawn = flags&flagWithdrawn != 0
	return r, nil
}

// mustWrite calls binary.Write and panics on errors
func mustWrite(w io.Writer, order binary.ByteOrder, data interface{}) {
	if err := binary.Write(w, order, data); err != nil {
		panic(fmt.Errorf("failed to write binary data: %v", data).Error())
	}
}
