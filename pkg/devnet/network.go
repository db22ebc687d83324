package devnet

import (
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/mayur2811/chainbridge/pkg/bridge"
	"github.com/mayur2811/chainbridge/pkg/chain"
	"github.com/mayur2811/chainbridge/pkg/db"
	"github.com/mayur2811/chainbridge/pkg/deploy"
	"github.com/mayur2811/chainbridge/pkg/signer"
	"github.com/mayur2811/chainbridge/pkg/token"
	"github.com/mayur2811/chainbridge/pkg/wrapped"
)

const (
	CustodyChainID bridge.ChainID = 1
	WrappedChainID bridge.ChainID = 2

	AssetSymbol   = "DEV"
	AssetDecimals = 18
)

type Config struct {
	Validators    int
	Threshold     uint64
	MinAmount     *uint256.Int
	RecoveryDelay time.Duration
	// Clock defaults to the wall clock.
	Clock  clock.Clock
	Logger *zap.Logger
}

// Network is a custody ledger and a wrapped ledger with the bridge deployed on
// both and one native asset mapped across.
type Network struct {
	Custody      *deploy.Deployment
	Wrapped      *deploy.Deployment
	Asset        *token.Token
	WrappedAsset *wrapped.Token
	Validators   []*signer.KeySigner

	databases []*db.Database
}

func New(cfg Config) (*Network, error) {
	if cfg.Validators == 0 {
		cfg.Validators = 1
	}
	if cfg.Threshold == 0 {
		cfg.Threshold = 1
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	n := &Network{}
	addrs := make([]common.Address, cfg.Validators)
	for i := range addrs {
		s := ValidatorSigner(uint64(i))
		n.Validators = append(n.Validators, s)
		addrs[i] = s.Address()
	}

	custodyChain, err := n.newChain(CustodyChainID, cfg)
	if err != nil {
		return nil, err
	}
	wrappedChain, err := n.newChain(WrappedChainID, cfg)
	if err != nil {
		n.Close()
		return nil, err
	}

	n.Custody, err = deploy.Deploy(custodyChain, deploy.Config{
		Owner:           OwnerAddress(),
		Validators:      addrs,
		Threshold:       cfg.Threshold,
		Custody:         true,
		MinAmount:       cfg.MinAmount,
		RecoveryDelay:   cfg.RecoveryDelay,
		SupportedChains: []bridge.ChainID{WrappedChainID},
	})
	if err != nil {
		n.Close()
		return nil, err
	}
	n.Wrapped, err = deploy.Deploy(wrappedChain, deploy.Config{
		Owner:           OwnerAddress(),
		Validators:      addrs,
		Threshold:       cfg.Threshold,
		SupportedChains: []bridge.ChainID{CustodyChainID},
	})
	if err != nil {
		n.Close()
		return nil, err
	}

	if n.Asset, err = n.Custody.AddNativeAsset(AssetSymbol, AssetDecimals); err != nil {
		n.Close()
		return nil, err
	}
	n.WrappedAsset, err = n.Wrapped.AddWrappedAsset("w"+AssetSymbol, AssetDecimals, CustodyChainID, n.Asset.Address())
	if err != nil {
		n.Close()
		return nil, err
	}
	if err := deploy.CheckDecimals(n.Custody, n.Asset.Address(), n.Wrapped, n.WrappedAsset.Address()); err != nil {
		n.Close()
		return nil, err
	}
	return n, nil
}

func (n *Network) newChain(id bridge.ChainID, cfg Config) (*chain.Chain, error) {
	logger := cfg.Logger.With(zap.Stringer("chain_id", id))
	database, err := db.OpenInMemory(logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger store for chain %s: %w", id, err)
	}
	n.databases = append(n.databases, database)
	return chain.New(id, database, cfg.Clock, logger), nil
}

func (n *Network) Close() {
	for _, d := range n.databases {
		d.Close()
	}
}

// Fund mints amount of the native asset to holder and approves the vault to
// take it.
func (n *Network) Fund(holder common.Address, amount *uint256.Int) error {
	if err := n.Custody.Fund(n.Asset.Address(), holder, amount); err != nil {
		return err
	}
	caller := bridge.NewCaller(holder)
	_, err := n.Custody.Chain.Execute(caller, "approve", func(tx *chain.Tx) error {
		allowance, err := n.Asset.Allowance(tx, holder, n.Custody.Vault.Address())
		if err != nil {
			return err
		}
		total, overflow := new(uint256.Int).AddOverflow(allowance, amount)
		if overflow {
			return bridge.ErrAmountOverflow
		}
		return n.Asset.Approve(tx, caller, n.Custody.Vault.Address(), total)
	})
	return err
}

// Lock bridges amount from holder to recipient on the wrapped ledger and
// returns the lock nonce.
func (n *Network) Lock(holder common.Address, amount *uint256.Int, recipient common.Address) (uint64, error) {
	caller := bridge.NewCaller(holder)
	var nonce uint64
	_, err := n.Custody.Chain.Execute(caller, "bridge", func(tx *chain.Tx) error {
		var err error
		nonce, err = n.Custody.Router.Bridge(tx, caller, n.Asset.Address(), amount, WrappedChainID, recipient)
		return err
	})
	return nonce, err
}

// Burn burns amount of holder's wrapped tokens for release to recipient on the
// custody ledger and returns the burn nonce.
func (n *Network) Burn(holder common.Address, amount *uint256.Int, recipient common.Address) (uint64, error) {
	caller := bridge.NewCaller(holder)
	var nonce uint64
	_, err := n.Wrapped.Chain.Execute(caller, "burnForBridge", func(tx *chain.Tx) error {
		var err error
		nonce, err = n.WrappedAsset.BurnForBridge(tx, caller, amount, CustodyChainID, recipient)
		return err
	})
	return nonce, err
}

// Balances reports holder's native balance on the custody ledger and wrapped
// balance on the wrapped ledger.
func (n *Network) Balances(holder common.Address) (native, wrappedBal *uint256.Int, err error) {
	err = n.Custody.Chain.View(func(tx *chain.Tx) error {
		var err error
		native, err = n.Asset.BalanceOf(tx, holder)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	err = n.Wrapped.Chain.View(func(tx *chain.Tx) error {
		var err error
		wrappedBal, err = n.WrappedAsset.BalanceOf(tx, holder)
		return err
	})
	return native, wrappedBal, err
}

// Peg returns the locked balance of the native asset and the total supply of
// its wrapped representation. They are equal whenever no message is in
// flight.
func (n *Network) Peg() (locked, supply *uint256.Int, err error) {
	err = n.Custody.Chain.View(func(tx *chain.Tx) error {
		var err error
		locked, err = n.Custody.Vault.LockedBalance(tx, n.Asset.Address())
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	err = n.Wrapped.Chain.View(func(tx *chain.Tx) error {
		var err error
		supply, err = n.WrappedAsset.TotalSupply(tx)
		return err
	})
	return locked, supply, err
}
