// Package devnet contains constants and helper functions for the local
// deterministic two-ledger devnet.
package devnet

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/mayur2811/chainbridge/pkg/signer"
)

const (
	ownerKeyIndex = 1000
	userKeyIndex  = 2000
)

// WARNING: devnet keys are not secret.
//
// InsecureDeterministicKeyByIndex derives a secp256k1 key from idx.
func InsecureDeterministicKeyByIndex(idx uint64) *ecdsa.PrivateKey {
	seed := crypto.Keccak256([]byte(fmt.Sprintf("chainbridge devnet key %d", idx)))
	key, err := crypto.ToECDSA(seed)
	if err != nil {
		panic(err)
	}
	return key
}

// ValidatorSigner is the signing identity of devnet validator idx.
func ValidatorSigner(idx uint64) *signer.KeySigner {
	return signer.NewKeySigner(InsecureDeterministicKeyByIndex(idx))
}

// UserSigner is the devnet account that bridges funds in the demo.
func UserSigner() *signer.KeySigner {
	return signer.NewKeySigner(InsecureDeterministicKeyByIndex(userKeyIndex))
}

// OwnerAddress deploys and administers the devnet contracts.
func OwnerAddress() common.Address {
	return crypto.PubkeyToAddress(InsecureDeterministicKeyByIndex(ownerKeyIndex).PublicKey)
}
