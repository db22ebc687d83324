// Package signer provides the secp256k1 identity a relayer signs attestations
// and submits transactions with.
package signer

import (
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/mayur2811/chainbridge/pkg/validatorset"
)

type SignerType int

const (
	InvalidSignerType SignerType = iota
	// hex://<hex-encoded-key>, or a bare hex key
	HexSignerType
	// file://<path-to-hex-key-file>
	FileSignerType
)

type Signer interface {
	// Sign expects a 32-byte digest that needs to be signed.
	Sign(digest []byte) (sig []byte, err error)
	// PublicKey returns the ECDSA public key of the signer.
	PublicKey() ecdsa.PublicKey
	// Address returns the EVM address derived from the public key.
	Address() common.Address
	// PrivateKey exposes the key for transaction signing by EVM transactors.
	PrivateKey() *ecdsa.PrivateKey
}

// NewSignerFromUri builds a signer from a signing_key config value.
func NewSignerFromUri(uri string) (Signer, error) {
	signerType, keyConfig := ParseSignerUri(uri)
	switch signerType {
	case HexSignerType:
		key, err := crypto.HexToECDSA(strings.TrimPrefix(keyConfig, "0x"))
		if err != nil {
			return nil, fmt.Errorf("failed to parse hex signing key: %w", err)
		}
		return NewKeySigner(key), nil
	case FileSignerType:
		key, err := crypto.LoadECDSA(keyConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to load signing key from %s: %w", keyConfig, err)
		}
		return NewKeySigner(key), nil
	default:
		return nil, fmt.Errorf("unsupported signer type")
	}
}

func ParseSignerUri(uri string) (SignerType, string) {
	parts := strings.SplitN(uri, "://", 2)
	if len(parts) < 2 {
		if uri == "" {
			return InvalidSignerType, ""
		}
		return HexSignerType, uri
	}
	switch parts[0] {
	case "hex":
		return HexSignerType, parts[1]
	case "file":
		return FileSignerType, parts[1]
	default:
		return InvalidSignerType, ""
	}
}

// KeySigner signs with an in-memory private key.
type KeySigner struct {
	key *ecdsa.PrivateKey
}

func NewKeySigner(key *ecdsa.PrivateKey) *KeySigner {
	return &KeySigner{key: key}
}

// WARNING: only for tests and devnets.
//
// GenerateSigner returns a signer over a fresh random key.
func GenerateSigner() (*KeySigner, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, err
	}
	return NewKeySigner(key), nil
}

func (s *KeySigner) Sign(digest []byte) ([]byte, error) {
	sig, err := crypto.Sign(digest, s.key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign digest: %w", err)
	}
	return sig, nil
}

func (s *KeySigner) PublicKey() ecdsa.PublicKey {
	return s.key.PublicKey
}

func (s *KeySigner) Address() common.Address {
	return crypto.PubkeyToAddress(s.key.PublicKey)
}

func (s *KeySigner) PrivateKey() *ecdsa.PrivateKey {
	return s.key
}

// SignMessage produces the attestation signature for a bridge message hash.
func SignMessage(s Signer, messageHash common.Hash) ([]byte, error) {
	return s.Sign(validatorset.SigningDigest(messageHash))
}
