package relayerd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mayur2811/chainbridge/pkg/attest"
	"github.com/mayur2811/chainbridge/pkg/common"
	"github.com/mayur2811/chainbridge/pkg/connectors"
	"github.com/mayur2811/chainbridge/pkg/db"
	"github.com/mayur2811/chainbridge/pkg/devnet"
	"github.com/mayur2811/chainbridge/pkg/relayer"
)

var (
	devnetValidators    *int
	devnetThreshold     *uint64
	devnetRelayers      *int
	devnetBlockTime     *time.Duration
	devnetConfirmations *uint64
	devnetStatusAddr    *string
	devnetLogLevel      *string
	devnetDemo          *bool
)

const devwarning = `
        +++++++++++++++++++++++++++++++++++++++++++++++++++
        |   DEVNET MODE                                   |
        |                                                 |
        |   Both ledgers run in memory and every key is   |
        |   derived from a public seed. Do not use this   |
        |   for anything of value.                        |
        +++++++++++++++++++++++++++++++++++++++++++++++++++

`

func init() {
	devnetValidators = DevnetCmd.Flags().Int("validators", 3, "Number of validators registered on both ledgers")
	devnetThreshold = DevnetCmd.Flags().Uint64("threshold", 2, "Signatures required to complete a transfer")
	devnetRelayers = DevnetCmd.Flags().Int("relayers", 0, "Number of relayers to run, one per validator key (default all validators)")
	devnetBlockTime = DevnetCmd.Flags().Duration("blockTime", time.Second, "Block interval of both ledgers")
	devnetConfirmations = DevnetCmd.Flags().Uint64("confirmations", 2, "Blocks to wait before acting on a source event")
	devnetStatusAddr = DevnetCmd.Flags().String("statusAddr", "[::]:6060", "Listen address of the status server of the first relayer, empty to disable")
	devnetLogLevel = DevnetCmd.Flags().String("logLevel", "info", "Logging level (debug, info, warn, error, dpanic, panic, fatal)")
	devnetDemo = DevnetCmd.Flags().Bool("demo", true, "Bridge a test balance to the wrapped ledger and back after startup")
}

var DevnetCmd = &cobra.Command{
	Use:   "devnet",
	Short: "Run both ledgers and a relayer set in process",
	RunE:  runDevnet,
}

func runDevnet(cmd *cobra.Command, args []string) error {
	fmt.Print(devwarning)

	logger, err := newLogger(*devnetLogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	relayers := *devnetRelayers
	if relayers == 0 {
		relayers = *devnetValidators
	}
	if relayers > *devnetValidators {
		return fmt.Errorf("cannot run %d relayers with %d validator keys", relayers, *devnetValidators)
	}
	if uint64(relayers) < *devnetThreshold {
		return fmt.Errorf("%d relayers can never reach a threshold of %d", relayers, *devnetThreshold)
	}

	n, err := devnet.New(devnet.Config{
		Validators: *devnetValidators,
		Threshold:  *devnetThreshold,
		Logger:     logger,
	})
	if err != nil {
		return err
	}
	defer n.Close()
	logger.Info("devnet deployed",
		zap.Stringer("custody_router", n.Custody.Router.Address()),
		zap.Stringer("custody_vault", n.Custody.Vault.Address()),
		zap.Stringer("wrapped_router", n.Wrapped.Router.Address()),
		zap.Stringer("asset", n.Asset.Address()),
		zap.Stringer("wrapped_asset", n.WrappedAsset.Address()))

	bus := attest.NewLocalBus()
	var databases []*db.Database
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	var wg sync.WaitGroup
	defer func() {
		cancel()
		wg.Wait()
		_ = bus.Close()
		for _, d := range databases {
			d.Close()
		}
	}()

	errC := make(chan error, 2*relayers+4)
	common.RunWithScissors(ctx, errC, "custody-blocks", func(ctx context.Context) error {
		return n.Custody.Chain.RunBlockProducer(ctx, *devnetBlockTime)
	})
	common.RunWithScissors(ctx, errC, "wrapped-blocks", func(ctx context.Context) error {
		return n.Wrapped.Chain.RunBlockProducer(ctx, *devnetBlockTime)
	})

	cfg := relayer.Config{
		Confirmations:      *devnetConfirmations,
		PollInterval:       *devnetBlockTime / 2,
		MaxRetries:         8,
		RetryInitial:       *devnetBlockTime,
		RetryMax:           30 * time.Second,
		AttestationTimeout: 10 * *devnetBlockTime,
	}
	var first *relayer.Relayer
	var firstDB *db.Database
	for i := 0; i < relayers; i++ {
		s := n.Validators[i]
		rlog := logger.With(zap.Int("relayer", i))
		database, err := db.OpenInMemory(rlog)
		if err != nil {
			return err
		}
		databases = append(databases, database)

		r, err := relayer.New(cfg, s,
			connectors.NewLocalConnector(n.Custody, s, rlog),
			connectors.NewLocalConnector(n.Wrapped, s, rlog),
			bus, database, rlog)
		if err != nil {
			return err
		}
		if first == nil {
			first, firstDB = r, database
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := r.Run(ctx); err != nil {
				errC <- err
			}
		}()
	}

	if *devnetStatusAddr != "" {
		router := relayer.StatusRouter(first.Readiness(), firstDB, logger)
		common.RunWithScissors(ctx, errC, "status-server", func(ctx context.Context) error {
			return relayer.RunStatusServer(ctx, *devnetStatusAddr, router, logger)
		})
	}
	if *devnetDemo {
		common.RunWithScissors(ctx, errC, "demo", func(ctx context.Context) error {
			return runDemo(ctx, n, logger.With(zap.String("component", "demo")))
		})
	}

	select {
	case <-ctx.Done():
		logger.Info("devnet stopping")
		return nil
	case err := <-errC:
		return err
	}
}

// runDemo bridges a test balance to the wrapped ledger and part of it back.
func runDemo(ctx context.Context, n *devnet.Network, logger *zap.Logger) error {
	user := devnet.UserSigner().Address()
	if err := n.Fund(user, uint256.NewInt(1000)); err != nil {
		return err
	}

	nonce, err := n.Lock(user, uint256.NewInt(100), user)
	if err != nil {
		return err
	}
	logger.Info("locked native asset", zap.Stringer("user", user), zap.Uint64("nonce", nonce), zap.Uint64("amount", 100))
	err = waitForBalances(ctx, n, user, func(native, wrapped *uint256.Int) bool {
		return wrapped.Eq(uint256.NewInt(100))
	})
	if err != nil {
		return err
	}
	logger.Info("wrapped asset minted", zap.Stringer("user", user))

	burnNonce, err := n.Burn(user, uint256.NewInt(40), user)
	if err != nil {
		return err
	}
	logger.Info("burned wrapped asset", zap.Uint64("burn_nonce", burnNonce), zap.Uint64("amount", 40))
	err = waitForBalances(ctx, n, user, func(native, wrapped *uint256.Int) bool {
		return native.Eq(uint256.NewInt(940))
	})
	if err != nil {
		return err
	}

	locked, supply, err := n.Peg()
	if err != nil {
		return err
	}
	logger.Info("demo complete",
		zap.Stringer("locked", locked.ToBig()),
		zap.Stringer("wrapped_supply", supply.ToBig()))
	return nil
}

func waitForBalances(ctx context.Context, n *devnet.Network, holder ethcommon.Address, done func(native, wrapped *uint256.Int) bool) error {
	t := time.NewTicker(100 * time.Millisecond)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
		native, wrapped, err := n.Balances(holder)
		if err != nil {
			return err
		}
		if done(native, wrapped) {
			return nil
		}
	}
}
