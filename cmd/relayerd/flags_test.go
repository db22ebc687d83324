package relayerd

import (
	"testing"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mayur2811/chainbridge/pkg/relayer"
)

func TestRelayerFlagsFeedConfig(t *testing.T) {
	fs := pflag.NewFlagSet("relayer", pflag.ContinueOnError)
	addRelayerFlags(fs)
	v := viper.New()
	relayer.SetDefaults(v)
	require.NoError(t, bindFlagSet(v, fs, relayerBindings...))

	require.NoError(t, fs.Parse([]string{
		"--signingKey", "4646464646464646464646464646464646464646464646464646464646464646",
		"--custodyRPC", "http://localhost:8545",
		"--custodyRouter", "0x5FbDB2315678afecb367f032d93F642f64180aa3",
		"--custodyVault", "0xe7f1725E7734CE288F8367e1Bb143E90bb3F0512",
		"--wrappedRPC", "http://localhost:8546",
		"--wrappedRouter", "0x9fE46736679d2D9a65F0992F2272dE9f3c7fa6e0",
		"--wrappedTokens", "0xCf7Ed3AccA5a467e9e704C703E8D87F634fB0Fc9",
		"--confirmations", "12",
	}))

	cfg, err := relayer.LoadConfig(v)
	require.NoError(t, err)
	assert.Equal(t, uint64(12), cfg.Confirmations)
	assert.Equal(t, "http://localhost:8546", cfg.Wrapped.RPC)
	assert.Len(t, cfg.Wrapped.Tokens, 1)
	// Unset flags fall back to the registered defaults.
	assert.Equal(t, uint64(8), cfg.MaxRetries)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestBindFlagSetRejectsUnknownFlag(t *testing.T) {
	fs := pflag.NewFlagSet("x", pflag.ContinueOnError)
	assert.Error(t, bindFlagSet(viper.New(), fs, flagBinding{"data_dir", "dataDir"}))
}
