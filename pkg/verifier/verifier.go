// Package verifier builds the domain-separated hashes of lock and burn
// messages and checks them against a validator set.
package verifier

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/mayur2811/chainbridge/pkg/bridge"
	"github.com/mayur2811/chainbridge/pkg/bridgeabi"
	"github.com/mayur2811/chainbridge/pkg/chain"
	"github.com/mayur2811/chainbridge/pkg/validatorset"
)

var (
	lockTag = []byte("BRIDGE_LOCK")
	burnTag = []byte("BRIDGE_BURN")
)

// HashLock is the hash validators sign to approve minting for a lock.
func HashLock(asset, recipient common.Address, amount *big.Int, source, dest bridge.ChainID, nonce uint64) common.Hash {
	return crypto.Keccak256Hash(lockTag, validatorset.PackMessage(asset, recipient, amount, source, dest, nonce))
}

// HashBurn is the hash validators sign to approve a release for a burn.
func HashBurn(asset, recipient common.Address, amount *big.Int, source, dest bridge.ChainID, nonce uint64) common.Hash {
	return crypto.Keccak256Hash(burnTag, validatorset.PackMessage(asset, recipient, amount, source, dest, nonce))
}

// Hash dispatches on kind.
func Hash(kind bridge.MessageKind, asset, recipient common.Address, amount *big.Int, source, dest bridge.ChainID, nonce uint64) (common.Hash, error) {
	switch kind {
	case bridge.MessageKindLock:
		return HashLock(asset, recipient, amount, source, dest, nonce), nil
	case bridge.MessageKindBurn:
		return HashBurn(asset, recipient, amount, source, dest, nonce), nil
	default:
		return common.Hash{}, fmt.Errorf("unknown message kind %s", kind)
	}
}

type Verifier struct {
	addr common.Address
	set  *validatorset.Set
}

func New(addr common.Address, set *validatorset.Set) *Verifier {
	return &Verifier{addr: addr, set: set}
}

func (v *Verifier) Address() common.Address {
	return v.addr
}

func (v *Verifier) ValidatorSet() *validatorset.Set {
	return v.set
}

// VerifyBridgeLock checks that a lock on source is approved for minting on
// the ledger executing tx.
func (v *Verifier) VerifyBridgeLock(tx *chain.Tx, asset, recipient common.Address, amount *big.Int, source bridge.ChainID, nonce uint64, signatures [][]byte) error {
	return v.verify(tx, bridge.MessageKindLock, asset, recipient, amount, source, nonce, signatures)
}

// VerifyBridgeBurn checks that a burn on source is approved for release on
// the ledger executing tx.
func (v *Verifier) VerifyBridgeBurn(tx *chain.Tx, asset, recipient common.Address, amount *big.Int, source bridge.ChainID, nonce uint64, signatures [][]byte) error {
	return v.verify(tx, bridge.MessageKindBurn, asset, recipient, amount, source, nonce, signatures)
}

func (v *Verifier) verify(tx *chain.Tx, kind bridge.MessageKind, asset, recipient common.Address, amount *big.Int, source bridge.ChainID, nonce uint64, signatures [][]byte) error {
	h, err := Hash(kind, asset, recipient, amount, source, tx.ChainID(), nonce)
	if err != nil {
		return err
	}
	ok, err := v.set.Verify(tx, h, signatures)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s message %s: %w", kind, h, bridge.ErrVerificationFailed)
	}
	return tx.Emit(v.addr, bridgeabi.EventMessageVerified, h, uint8(kind))
}
