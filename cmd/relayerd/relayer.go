package relayerd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/mayur2811/chainbridge/pkg/attest"
	"github.com/mayur2811/chainbridge/pkg/common"
	"github.com/mayur2811/chainbridge/pkg/connectors"
	"github.com/mayur2811/chainbridge/pkg/db"
	"github.com/mayur2811/chainbridge/pkg/relayer"
	"github.com/mayur2811/chainbridge/pkg/signer"
)

var relayerBindings = []flagBinding{
	{"signing_key", "signingKey"},
	{"custody.rpc", "custodyRPC"},
	{"custody.router", "custodyRouter"},
	{"custody.vault", "custodyVault"},
	{"custody.start_block", "custodyStartBlock"},
	{"wrapped.rpc", "wrappedRPC"},
	{"wrapped.router", "wrappedRouter"},
	{"wrapped.tokens", "wrappedTokens"},
	{"wrapped.start_block", "wrappedStartBlock"},
	{"confirmations", "confirmations"},
	{"poll_interval", "pollInterval"},
	{"max_retries", "maxRetries"},
	{"retry_initial", "retryInitial"},
	{"retry_max", "retryMax"},
	{"attestation_timeout", "attestationTimeout"},
	{"rpc_rate_limit", "rpcRateLimit"},
	{"data_dir", "dataDir"},
	{"nats_url", "natsURL"},
	{"nats_subject", "natsSubject"},
	{"status_addr", "statusAddr"},
	{"log_level", "logLevel"},
}

func init() {
	addRelayerFlags(RelayerCmd.Flags())
}

func addRelayerFlags(fs *pflag.FlagSet) {
	fs.String("signingKey", "", "Signing key URI, hex://<key> or file://<path>")
	fs.String("custodyRPC", "", "JSON-RPC endpoint of the custody ledger")
	fs.String("custodyRouter", "", "Router contract address on the custody ledger")
	fs.String("custodyVault", "", "Vault contract address on the custody ledger")
	fs.Uint64("custodyStartBlock", 0, "First block to scan on the custody ledger when no checkpoint exists")
	fs.String("wrappedRPC", "", "JSON-RPC endpoint of the wrapped ledger")
	fs.String("wrappedRouter", "", "Router contract address on the wrapped ledger")
	fs.String("wrappedTokens", "", "Comma-separated wrapped token addresses to watch for burns")
	fs.Uint64("wrappedStartBlock", 0, "First block to scan on the wrapped ledger when no checkpoint exists")
	fs.Uint64("confirmations", 0, "Blocks to wait before acting on a source event (default 3)")
	fs.Duration("pollInterval", 0, "Interval between head polls (default 5s)")
	fs.Uint64("maxRetries", 0, "Retries of a transient failure before a transfer is failed (default 8)")
	fs.Duration("retryInitial", 0, "Initial retry backoff (default 1s)")
	fs.Duration("retryMax", 0, "Maximum retry backoff (default 1m)")
	fs.Duration("attestationTimeout", 0, "Time to wait for a threshold of attestations (default 30s)")
	fs.Float64("rpcRateLimit", 0, "RPC requests per second per ledger, 0 for unlimited")
	fs.String("dataDir", "", "Relayer database directory (default ./data)")
	fs.String("natsURL", "", "NATS server for attestation exchange. Without it only a threshold of 1 can be met")
	fs.String("natsSubject", "", "NATS subject for attestations (default "+attest.DefaultSubject+")")
	fs.String("statusAddr", "", "Listen address of the status server (default [::]:6060)")
	fs.String("logLevel", "", "Logging level (debug, info, warn, error, dpanic, panic, fatal)")
}

var RelayerCmd = &cobra.Command{
	Use:     "relayer",
	Short:   "Run the bridge relayer against two EVM ledgers",
	PreRunE: bindFlags(relayerBindings...),
	RunE:    runRelayer,
}

func runRelayer(cmd *cobra.Command, args []string) error {
	cfg, err := relayer.LoadConfig(viper.GetViper())
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	common.SetRestrictiveUmask()

	s, err := signer.NewSignerFromUri(cfg.SigningKey)
	if err != nil {
		return err
	}
	logger.Info("loaded signing key", zap.Stringer("address", s.Address()))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	custody, err := connectors.NewEthereumConnector(ctx, connectors.EthereumConfig{
		RPC:               cfg.Custody.RPC,
		Router:            cfg.Custody.Router,
		Vault:             cfg.Custody.Vault,
		Tokens:            cfg.Custody.Tokens,
		RequestsPerSecond: cfg.RPCRateLimit,
	}, s, logger)
	if err != nil {
		return err
	}
	defer custody.Close()

	wrapped, err := connectors.NewEthereumConnector(ctx, connectors.EthereumConfig{
		RPC:               cfg.Wrapped.RPC,
		Router:            cfg.Wrapped.Router,
		Tokens:            cfg.Wrapped.Tokens,
		RequestsPerSecond: cfg.RPCRateLimit,
	}, s, logger)
	if err != nil {
		return err
	}
	defer wrapped.Close()

	if err := connectors.CheckDecimals(ctx, custody, wrapped); err != nil {
		return err
	}

	database, err := db.Open(cfg.DataDir, logger)
	if err != nil {
		return err
	}
	defer database.Close()

	transport, err := newTransport(cfg, s.Address().Hex(), logger)
	if err != nil {
		return err
	}
	defer transport.Close()

	r, err := relayer.New(*cfg, s, custody, wrapped, transport, database, logger)
	if err != nil {
		return err
	}

	errC := make(chan error, 1)
	if cfg.StatusAddr != "" {
		router := relayer.StatusRouter(r.Readiness(), database, logger)
		common.RunWithScissors(ctx, errC, "status-server", func(ctx context.Context) error {
			return relayer.RunStatusServer(ctx, cfg.StatusAddr, router, logger)
		})
	}
	go func() {
		if err := <-errC; err != nil {
			logger.Error("status server failed", zap.Error(err))
		}
	}()

	// Blocks until no transfer is in flight.
	if err := r.Run(ctx); err != nil {
		return err
	}
	logger.Info("relayer stopped")
	return nil
}

func newTransport(cfg *relayer.Config, name string, logger *zap.Logger) (attest.Transport, error) {
	if cfg.NATSURL == "" {
		logger.Warn("no nats_url configured, attestations stay in process")
		return attest.NewLocalBus(), nil
	}
	return attest.NewNATSTransport(cfg.NATSURL, cfg.NATSSubject, name, logger)
}
