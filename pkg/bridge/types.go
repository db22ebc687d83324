package bridge

import (
	"encoding/binary"
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

type (
	// ChainID identifies a ledger. It matches the EVM chain id of the network.
	ChainID uint64

	// MessageKind distinguishes the two cross-chain message types. Lock messages
	// originate from a custody ledger and complete as mints; burn messages originate
	// from a wrapped asset ledger and complete as releases.
	MessageKind uint8

	// Caller is the authenticated identity that submitted a ledger call. Ledger
	// operations check capabilities against it before mutating state.
	Caller struct {
		addr common.Address
	}
)

const (
	MessageKindLock MessageKind = 1
	MessageKindBurn MessageKind = 2
)

// NullAddress is the zero identity. It is never a valid recipient, owner or signer.
var NullAddress = common.Address{}

func (c ChainID) String() string {
	return strconv.FormatUint(uint64(c), 10)
}

func (k MessageKind) String() string {
	switch k {
	case MessageKindLock:
		return "lock"
	case MessageKindBurn:
		return "burn"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

// NewCaller wraps an address that the ledger runtime has authenticated as the
// sender of the current call.
func NewCaller(addr common.Address) Caller {
	return Caller{addr: addr}
}

func (c Caller) Address() common.Address {
	return c.addr
}

func (c Caller) Is(addr common.Address) bool {
	return c.addr == addr
}

func (c Caller) String() string {
	return c.addr.Hex()
}

// MessageID returns keccak256(sourceChainId, nonce), both as 32-byte big-endian words.
func MessageID(source ChainID, nonce uint64) common.Hash {
	return crypto.Keccak256Hash(Uint64Word(uint64(source)), Uint64Word(nonce))
}

// Uint64Word encodes v as a left-padded 32-byte big-endian word.
func Uint64Word(v uint64) []byte {
	w := make([]byte, 32)
	binary.BigEndian.PutUint64(w[24:], v)
	return w
}
