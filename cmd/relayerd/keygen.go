package relayerd

import (
	"log"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"

	"github.com/mayur2811/chainbridge/pkg/common"
)

var KeygenCmd = &cobra.Command{
	Use:   "keygen [KEYFILE]",
	Short: "Create a relayer signing key at the specified path",
	Run:   runKeygen,
	Args:  cobra.ExactArgs(1),
}

func runKeygen(cmd *cobra.Command, args []string) {
	common.SetRestrictiveUmask()

	log.Print("Creating new key at ", args[0])

	key, err := crypto.GenerateKey()
	if err != nil {
		log.Fatalf("failed to generate key: %v", err)
	}

	if err := crypto.SaveECDSA(args[0], key); err != nil {
		log.Fatalf("failed to write key: %v", err)
	}
	log.Printf("Address %s, use signing_key file://%s", crypto.PubkeyToAddress(key.PublicKey).Hex(), args[0])
}
