package signer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mayur2811/chainbridge/pkg/validatorset"
)

const testKey = "b71c71a67e1177ad4e901695e1b4b9ee17ae16c6668d313eac2f96dbcda3f291"

func TestParseSignerUri(t *testing.T) {
	tests := []struct {
		uri    string
		typ    SignerType
		config string
	}{
		{"hex://abcd", HexSignerType, "abcd"},
		{"abcd", HexSignerType, "abcd"},
		{"file:///tmp/key", FileSignerType, "/tmp/key"},
		{"kms://arn", InvalidSignerType, ""},
		{"", InvalidSignerType, ""},
	}
	for _, tc := range tests {
		t.Run(tc.uri, func(t *testing.T) {
			typ, cfg := ParseSignerUri(tc.uri)
			assert.Equal(t, tc.typ, typ)
			assert.Equal(t, tc.config, cfg)
		})
	}
}

func TestNewSignerFromUri(t *testing.T) {
	key, err := crypto.HexToECDSA(testKey)
	require.NoError(t, err)
	want := crypto.PubkeyToAddress(key.PublicKey)

	s, err := NewSignerFromUri("0x" + testKey)
	require.NoError(t, err)
	assert.Equal(t, want, s.Address())

	path := filepath.Join(t.TempDir(), "key")
	require.NoError(t, os.WriteFile(path, []byte(testKey), 0600))
	s, err = NewSignerFromUri("file://" + path)
	require.NoError(t, err)
	assert.Equal(t, want, s.Address())

	_, err = NewSignerFromUri("hex://zz")
	assert.Error(t, err)
}

func TestSignMessageRecovers(t *testing.T) {
	s, err := GenerateSigner()
	require.NoError(t, err)

	h := common.HexToHash("0x1234")
	sig, err := SignMessage(s, h)
	require.NoError(t, err)

	got, err := validatorset.RecoverSigner(validatorset.SigningDigest(h), sig)
	require.NoError(t, err)
	assert.Equal(t, s.Address(), got)
}
