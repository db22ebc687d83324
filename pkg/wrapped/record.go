package wrapped

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/mayur2811/chainbridge/pkg/bridge"
)

const burnRecordLength = 8 + 20 + 20 + 32 + 8 + 20 + 8

// BurnRecord is the irreversible record of a burn.
type BurnRecord struct {
	BurnNonce uint64
	Token     common.Address
	Burner    common.Address
	Amount    *uint256.Int
	DestChain bridge.ChainID
	Recipient common.Address
	CreatedAt time.Time
}

func (r *BurnRecord) Marshal() []byte {
	buf := new(bytes.Buffer)
	buf.Grow(burnRecordLength)
	mustWrite(buf, binary.BigEndian, r.BurnNonce)
	buf.Write(r.Token.Bytes())
	buf.Write(r.Burner.Bytes())
	amount := r.Amount.Bytes32()
	buf.Write(amount[:])
	mustWrite(buf, binary.BigEndian, uint64(r.DestChain))
	buf.Write(r.Recipient.Bytes())
	mustWrite(buf, binary.BigEndian, uint64(r.CreatedAt.UnixNano())) // #nosec G115 -- block times are after 1970
	return buf.Bytes()
}

func UnmarshalBurnRecord(data []byte) (*BurnRecord, error) {
	if len(data) != burnRecordLength {
		return nil, fmt.Errorf("burn record has %d bytes, want %d", len(data), burnRecordLength)
	}
	r := &BurnRecord{}
	reader := bytes.NewReader(data)

	if err := binary.Read(reader, binary.BigEndian, &r.BurnNonce); err != nil {
		return nil, fmt.Errorf("failed to read burn nonce: %w", err)
	}
	if _, err := io.ReadFull(reader, r.Token[:]); err != nil {
		return nil, fmt.Errorf("failed to read token: %w", err)
	}
	if _, err := io.ReadFull(reader, r.Burner[:]); err != nil {
		return nil, fmt.Errorf("failed to read burner: %w", err)
	}
	var amount [32]byte
	if _, err := io.ReadFull(reader, amount[:]); err != nil {
		return nil, fmt.Errorf("failed to read amount: %w", err)
	}
	r.Amount = new(uint256.Int).SetBytes32(amount[:])

	var dest uint64
	if err := binary.Read(reader, binary.BigEndian, &dest); err != nil {
		return nil, fmt.Errorf("failed to read destination chain: %w", err)
	}
	r.DestChain = bridge.ChainID(dest)
	if _, err := io.ReadFull(reader, r.Recipient[:]); err != nil {
		return nil, fmt.Errorf("failed to read recipient: %w", err)
	}
	var createdAt uint64
	if err := binary.Read(reader, binary.BigEndian, &createdAt); err != nil {
		return nil, fmt.Errorf("failed to read created at: %w", err)
	}
	r.CreatedAt = time.Unix(0, int64(createdAt)) // #nosec G115 -- written from a positive int64
	return r, nil
}

// mustWrite calls binary.Write and panics on errors
func mustWrite(w io.Writer, order binary.ByteOrder, data interface{}) {
	if err := binary.Write(w, order, data); err != nil {
		panic(fmt.Errorf("failed to write binary data: %v", data).Error())
	}
}
