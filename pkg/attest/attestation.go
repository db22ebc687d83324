// Package attest exchanges validator signatures over bridge messages between
// relayers and collects them until a message reaches the signing threshold.
package attest

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/mayur2811/chainbridge/pkg/bridge"
	"github.com/mayur2811/chainbridge/pkg/signer"
	"github.com/mayur2811/chainbridge/pkg/validatorset"
)

// Attestation is one validator's signature over a message hash, as gossiped
// between relayers.
type Attestation struct {
	MessageHash common.Hash        `json:"message_hash"`
	Kind        bridge.MessageKind `json:"kind"`
	SourceChain bridge.ChainID     `json:"source_chain"`
	DestChain   bridge.ChainID     `json:"dest_chain"`
	Nonce       uint64             `json:"nonce"`
	Signer      common.Address     `json:"signer"`
	Signature   hexutil.Bytes      `json:"signature"`
}

// Sign produces s's attestation for the message.
func Sign(s signer.Signer, kind bridge.MessageKind, source, dest bridge.ChainID, nonce uint64, messageHash common.Hash) (*Attestation, error) {
	sig, err := signer.SignMessage(s, messageHash)
	if err != nil {
		return nil, err
	}
	return &Attestation{
		MessageHash: messageHash,
		Kind:        kind,
		SourceChain: source,
		DestChain:   dest,
		Nonce:       nonce,
		Signer:      s.Address(),
		Signature:   sig,
	}, nil
}

// Verify checks that the signature was produced by the claimed signer.
func (a *Attestation) Verify() error {
	got, err := validatorset.RecoverSigner(validatorset.SigningDigest(a.MessageHash), a.Signature)
	if err != nil {
		return err
	}
	if got != a.Signer {
		return fmt.Errorf("attestation claims signer %s, signature is from %s", a.Signer.Hex(), got.Hex())
	}
	return nil
}

func (a *Attestation) Marshal() ([]byte, error) {
	return json.Marshal(a)
}

func UnmarshalAttestation(data []byte) (*Attestation, error) {
	a := &Attestation{}
	if err := json.Unmarshal(data, a); err != nil {
		return nil, fmt.Errorf("failed to unmarshal attestation: %w", err)
	}
	return a, nil
}
