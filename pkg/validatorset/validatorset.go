// Package validatorset maintains the roster of authorized signers and the
// number of distinct signatures required to approve a cross-chain message.
package validatorset

import (
	"encoding/binary"
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/mayur2811/chainbridge/pkg/bridge"
	"github.com/mayur2811/chainbridge/pkg/bridgeabi"
	"github.com/mayur2811/chainbridge/pkg/chain"
)

// SignatureLength is the length of an [R || S || V] secp256k1 signature.
const SignatureLength = 65

// Set is a validator roster deployed at an address on one ledger.
type Set struct {
	addr common.Address
}

func New(addr common.Address) *Set {
	return &Set{addr: addr}
}

func (s *Set) Address() common.Address {
	return s.addr
}

func (s *Set) key(suffix string) []byte {
	return []byte("vset/" + s.addr.Hex() + "/" + suffix)
}

func (s *Set) memberPrefix() []byte {
	return s.key("member/")
}

func (s *Set) memberKey(signer common.Address) []byte {
	return append(s.memberPrefix(), signer.Hex()...)
}

// Initialize installs the owner, the initial roster and the threshold.
func (s *Set) Initialize(tx *chain.Tx, owner common.Address, validators []common.Address, threshold uint64) error {
	ok, err := tx.Has(s.key("owner"))
	if err != nil {
		return err
	}
	if ok {
		return bridge.ErrAlreadyInitialized
	}
	if owner == bridge.NullAddress {
		return bridge.ErrNotOwner
	}
	if err := tx.SetAddress(s.key("owner"), owner); err != nil {
		return err
	}
	for _, v := range validators {
		if err := s.add(tx, v); err != nil {
			return err
		}
	}
	if threshold == 0 || threshold > uint64(len(validators)) {
		return bridge.ErrInvalidThreshold
	}
	if err := tx.SetUint64(s.key("threshold"), threshold); err != nil {
		return err
	}
	return tx.Emit(s.addr, bridgeabi.EventThresholdChanged, uint64(0), threshold)
}

func (s *Set) onlyOwner(tx *chain.Tx, caller bridge.Caller) error {
	owner, err := tx.GetAddress(s.key("owner"))
	if err != nil {
		return err
	}
	if owner == bridge.NullAddress {
		return bridge.ErrNotInitialized
	}
	if !caller.Is(owner) {
		return bridge.ErrNotOwner
	}
	return nil
}

func (s *Set) Owner(tx *chain.Tx) (common.Address, error) {
	return tx.GetAddress(s.key("owner"))
}

func (s *Set) add(tx *chain.Tx, v common.Address) error {
	if v == bridge.NullAddress {
		return bridge.ErrNullValidator
	}
	ok, err := tx.Has(s.memberKey(v))
	if err != nil {
		return err
	}
	if ok {
		return fmt.Errorf("%s: %w", v.Hex(), bridge.ErrValidatorExists)
	}
	seq, err := tx.GetUint64(s.key("seq"))
	if err != nil {
		return err
	}
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, seq)
	if err := tx.Set(s.memberKey(v), b); err != nil {
		return err
	}
	if err := tx.SetUint64(s.key("seq"), seq+1); err != nil {
		return err
	}
	size, err := tx.GetUint64(s.key("size"))
	if err != nil {
		return err
	}
	if err := tx.SetUint64(s.key("size"), size+1); err != nil {
		return err
	}
	return tx.Emit(s.addr, bridgeabi.EventValidatorAdded, v)
}

// AddValidator appends v to the roster.
func (s *Set) AddValidator(tx *chain.Tx, caller bridge.Caller, v common.Address) error {
	if err := s.onlyOwner(tx, caller); err != nil {
		return err
	}
	return s.add(tx, v)
}

// RemoveValidator drops v from the roster. If the threshold would exceed the
// new roster size it is lowered to match and a ThresholdChanged event follows
// the ValidatorRemoved event. The last validator cannot be removed.
func (s *Set) RemoveValidator(tx *chain.Tx, caller bridge.Caller, v common.Address) error {
	if err := s.onlyOwner(tx, caller); err != nil {
		return err
	}
	ok, err := tx.Has(s.memberKey(v))
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s: %w", v.Hex(), bridge.ErrValidatorNotFound)
	}
	size, err := tx.GetUint64(s.key("size"))
	if err != nil {
		return err
	}
	if size == 1 {
		return fmt.Errorf("cannot remove the last validator: %w", bridge.ErrInvalidThreshold)
	}
	if err := tx.Delete(s.memberKey(v)); err != nil {
		return err
	}
	size--
	if err := tx.SetUint64(s.key("size"), size); err != nil {
		return err
	}
	if err := tx.Emit(s.addr, bridgeabi.EventValidatorRemoved, v); err != nil {
		return err
	}

	threshold, err := s.Threshold(tx)
	if err != nil {
		return err
	}
	if threshold > size {
		if err := tx.SetUint64(s.key("threshold"), size); err != nil {
			return err
		}
		return tx.Emit(s.addr, bridgeabi.EventThresholdChanged, threshold, size)
	}
	return nil
}

// UpdateThreshold sets the number of distinct signatures required.
func (s *Set) UpdateThreshold(tx *chain.Tx, caller bridge.Caller, n uint64) error {
	if err := s.onlyOwner(tx, caller); err != nil {
		return err
	}
	size, err := tx.GetUint64(s.key("size"))
	if err != nil {
		return err
	}
	if n == 0 || n > size {
		return fmt.Errorf("threshold %d with %d validators: %w", n, size, bridge.ErrInvalidThreshold)
	}
	old, err := s.Threshold(tx)
	if err != nil {
		return err
	}
	if err := tx.SetUint64(s.key("threshold"), n); err != nil {
		return err
	}
	return tx.Emit(s.addr, bridgeabi.EventThresholdChanged, old, n)
}

func (s *Set) Threshold(tx *chain.Tx) (uint64, error) {
	return tx.GetUint64(s.key("threshold"))
}

func (s *Set) IsValidator(tx *chain.Tx, addr common.Address) (bool, error) {
	if addr == bridge.NullAddress {
		return false, nil
	}
	return tx.Has(s.memberKey(addr))
}

// Validators returns the roster in insertion order.
func (s *Set) Validators(tx *chain.Tx) ([]common.Address, error) {
	type member struct {
		addr common.Address
		seq  uint64
	}
	prefix := s.memberPrefix()
	var members []member
	err := tx.Iterate(prefix, func(key, val []byte) error {
		members = append(members, member{
			addr: common.HexToAddress(string(key[len(prefix):])),
			seq:  binary.BigEndian.Uint64(val),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(members, func(i, j int) bool { return members[i].seq < members[j].seq })

	resp := make([]common.Address, len(members))
	for i, m := range members {
		resp[i] = m.addr
	}
	return resp, nil
}

// Verify reports whether at least threshold distinct roster members signed
// messageHash. Signatures that are malformed or come from non-members are
// skipped. A member signing twice fails the whole verification with
// ErrDuplicateSignature.
func (s *Set) Verify(tx *chain.Tx, messageHash common.Hash, signatures [][]byte) (bool, error) {
	threshold, err := s.Threshold(tx)
	if err != nil {
		return false, err
	}
	if threshold == 0 {
		return false, bridge.ErrNotInitialized
	}
	if uint64(len(signatures)) < threshold {
		return false, fmt.Errorf("got %d signatures, threshold is %d: %w", len(signatures), threshold, bridge.ErrNotEnoughSignatures)
	}

	digest := SigningDigest(messageHash)
	seen := make(map[common.Address]struct{}, threshold)
	for _, sig := range signatures {
		signer, err := RecoverSigner(digest, sig)
		if err != nil {
			continue
		}
		member, err := s.IsValidator(tx, signer)
		if err != nil {
			return false, err
		}
		if !member {
			continue
		}
		if _, ok := seen[signer]; ok {
			return false, fmt.Errorf("%s signed twice: %w", signer.Hex(), bridge.ErrDuplicateSignature)
		}
		seen[signer] = struct{}{}
		if uint64(len(seen)) >= threshold {
			return true, nil
		}
	}
	return false, nil
}

// PackMessage is the tight packing of a cross-chain message tuple:
// asset (20) | recipient (20) | amount (32) | source (32) | dest (32) | nonce (32).
func PackMessage(asset, recipient common.Address, amount *big.Int, source, dest bridge.ChainID, nonce uint64) []byte {
	b := make([]byte, 0, 20+20+32*4)
	b = append(b, asset.Bytes()...)
	b = append(b, recipient.Bytes()...)
	b = append(b, common.LeftPadBytes(amount.Bytes(), 32)...)
	b = append(b, bridge.Uint64Word(uint64(source))...)
	b = append(b, bridge.Uint64Word(uint64(dest))...)
	b = append(b, bridge.Uint64Word(nonce)...)
	return b
}

// MessageHash is keccak256 of the packed message tuple. It carries no type tag.
func MessageHash(asset, recipient common.Address, amount *big.Int, source, dest bridge.ChainID, nonce uint64) common.Hash {
	return crypto.Keccak256Hash(PackMessage(asset, recipient, amount, source, dest, nonce))
}

// SigningDigest is the EIP-191 personal-sign digest validators sign for messageHash.
func SigningDigest(messageHash common.Hash) []byte {
	return accounts.TextHash(messageHash.Bytes())
}

// RecoverSigner returns the address that produced sig over digest. Both the
// 0/1 and 27/28 recovery id conventions are accepted; high-s signatures are
// rejected.
func RecoverSigner(digest []byte, sig []byte) (common.Address, error) {
	if len(sig) != SignatureLength {
		return common.Address{}, bridge.ErrInvalidSignature
	}
	normalized := make([]byte, SignatureLength)
	copy(normalized, sig)
	if normalized[64] >= 27 {
		normalized[64] -= 27
	}
	r := new(big.Int).SetBytes(normalized[:32])
	sv := new(big.Int).SetBytes(normalized[32:64])
	if !crypto.ValidateSignatureValues(normalized[64], r, sv, true) {
		return common.Address{}, bridge.ErrInvalidSignature
	}

	pubKey, err := crypto.Ecrecover(digest, normalized)
	if err != nil {
		return common.Address{}, fmt.Errorf("%v: %w", err, bridge.ErrInvalidSignature)
	}
	return common.BytesToAddress(crypto.Keccak256(pubKey[1:])[12:]), nil
}
