// Package deploy installs the bridge contracts on an in-process ledger.
package deploy

import (
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"github.com/mayur2811/chainbridge/pkg/bridge"
	"github.com/mayur2811/chainbridge/pkg/chain"
	"github.com/mayur2811/chainbridge/pkg/router"
	"github.com/mayur2811/chainbridge/pkg/token"
	"github.com/mayur2811/chainbridge/pkg/validatorset"
	"github.com/mayur2811/chainbridge/pkg/vault"
	"github.com/mayur2811/chainbridge/pkg/verifier"
	"github.com/mayur2811/chainbridge/pkg/wrapped"
)

type Config struct {
	Owner      common.Address
	Validators []common.Address
	Threshold  uint64
	// Custody deploys a vault behind the router.
	Custody         bool
	MinAmount       *uint256.Int
	RecoveryDelay   time.Duration
	SupportedChains []bridge.ChainID
}

type Deployment struct {
	Chain        *chain.Chain
	Owner        common.Address
	Assets       *token.Registry
	ValidatorSet *validatorset.Set
	Verifier     *verifier.Verifier
	Vault        *vault.Vault
	Router       *router.Router

	mu           sync.Mutex
	created      uint64
	natives      map[common.Address]*token.Token
	wrappedAddrs []common.Address
}

// Deploy initializes a validator set, a verifier, a router and optionally a
// vault on c. Contract addresses are derived from the owner like EVM
// contract creation addresses.
func Deploy(c *chain.Chain, cfg Config) (*Deployment, error) {
	if cfg.Owner == bridge.NullAddress {
		return nil, fmt.Errorf("deployment needs an owner")
	}
	if cfg.RecoveryDelay == 0 {
		cfg.RecoveryDelay = vault.DefaultRecoveryDelay
	}
	if cfg.MinAmount == nil {
		cfg.MinAmount = uint256.NewInt(1)
	}

	d := &Deployment{
		Chain:   c,
		Owner:   cfg.Owner,
		Assets:  token.NewRegistry(),
		natives: make(map[common.Address]*token.Token),
	}
	d.ValidatorSet = validatorset.New(d.nextAddress())
	d.Verifier = verifier.New(d.nextAddress(), d.ValidatorSet)
	routerAddr := d.nextAddress()
	if cfg.Custody {
		d.Vault = vault.New(d.nextAddress(), d.ValidatorSet, d.Assets)
	}
	d.Router = router.New(routerAddr, d.Vault, d.Verifier)

	owner := bridge.NewCaller(cfg.Owner)
	_, err := c.Execute(owner, "deploy", func(tx *chain.Tx) error {
		if err := d.ValidatorSet.Initialize(tx, cfg.Owner, cfg.Validators, cfg.Threshold); err != nil {
			return fmt.Errorf("validator set: %w", err)
		}
		if err := d.Router.Initialize(tx, cfg.Owner); err != nil {
			return fmt.Errorf("router: %w", err)
		}
		for _, id := range cfg.SupportedChains {
			if err := d.Router.AddSupportedChain(tx, owner, id); err != nil {
				return fmt.Errorf("supported chain %s: %w", id, err)
			}
		}
		if d.Vault != nil {
			if err := d.Vault.Initialize(tx, cfg.Owner, cfg.MinAmount, cfg.RecoveryDelay); err != nil {
				return fmt.Errorf("vault: %w", err)
			}
			if err := d.Vault.SetRouter(tx, owner, routerAddr); err != nil {
				return fmt.Errorf("vault: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to deploy bridge on chain %s: %w", c.ID(), err)
	}
	return d, nil
}

func (d *Deployment) nextAddress() common.Address {
	d.mu.Lock()
	defer d.mu.Unlock()
	addr := crypto.CreateAddress(d.Owner, d.created)
	d.created++
	return addr
}

// AddNativeAsset deploys a token and, on a custody ledger, marks it supported.
func (d *Deployment) AddNativeAsset(symbol string, decimals uint8) (*token.Token, error) {
	return d.addNative(token.New(d.nextAddress()), symbol, decimals)
}

// AddFeeOnTransferAsset deploys a token that burns feeBps of every transfer.
func (d *Deployment) AddFeeOnTransferAsset(symbol string, decimals uint8, feeBps uint64) (*token.Token, error) {
	return d.addNative(token.NewFeeOnTransfer(d.nextAddress(), feeBps), symbol, decimals)
}

func (d *Deployment) addNative(t *token.Token, symbol string, decimals uint8) (*token.Token, error) {
	owner := bridge.NewCaller(d.Owner)
	d.Assets.Add(t)
	_, err := d.Chain.Execute(owner, "deployToken", func(tx *chain.Tx) error {
		if err := t.Init(tx, decimals, symbol); err != nil {
			return err
		}
		if d.Vault != nil {
			return d.Vault.SetAssetSupported(tx, owner, t.Address(), true)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to deploy %s: %w", symbol, err)
	}
	d.mu.Lock()
	d.natives[t.Address()] = t
	d.mu.Unlock()
	return t, nil
}

// NativeAsset returns a token deployed with AddNativeAsset.
func (d *Deployment) NativeAsset(addr common.Address) (*token.Token, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, ok := d.natives[addr]
	return t, ok
}

// AddWrappedAsset deploys the wrapped representation of originAsset, minted by
// this ledger's router, and registers the mapping.
func (d *Deployment) AddWrappedAsset(symbol string, decimals uint8, originChain bridge.ChainID, originAsset common.Address) (*wrapped.Token, error) {
	w := wrapped.New(d.nextAddress())
	d.Router.AddToken(w)
	d.Assets.Add(w)

	owner := bridge.NewCaller(d.Owner)
	_, err := d.Chain.Execute(owner, "deployWrapped", func(tx *chain.Tx) error {
		if err := w.Initialize(tx, d.Router.Address(), decimals, symbol, originChain, originAsset); err != nil {
			return err
		}
		return d.Router.RegisterWrappedAsset(tx, owner, originAsset, w.Address())
	})
	if err != nil {
		return nil, fmt.Errorf("failed to deploy %s: %w", symbol, err)
	}
	d.mu.Lock()
	d.wrappedAddrs = append(d.wrappedAddrs, w.Address())
	d.mu.Unlock()
	return w, nil
}

// WrappedAssets lists the wrapped tokens deployed with AddWrappedAsset.
func (d *Deployment) WrappedAssets() []common.Address {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]common.Address(nil), d.wrappedAddrs...)
}

// Fund mints amount of a native asset to holder.
func (d *Deployment) Fund(asset common.Address, holder common.Address, amount *uint256.Int) error {
	t, ok := d.NativeAsset(asset)
	if !ok {
		return fmt.Errorf("%s is not a native asset: %w", asset.Hex(), bridge.ErrUnsupportedAsset)
	}
	_, err := d.Chain.Execute(bridge.NewCaller(d.Owner), "fund", func(tx *chain.Tx) error {
		return t.Mint(tx, holder, amount)
	})
	return err
}

// Decimals reads the decimals of any asset deployed on this ledger.
func (d *Deployment) Decimals(asset common.Address) (uint8, error) {
	a, err := d.Assets.Get(asset)
	if err != nil {
		return 0, err
	}
	var dec uint8
	err = d.Chain.View(func(tx *chain.Tx) error {
		var err error
		dec, err = a.Decimals(tx)
		return err
	})
	return dec, err
}

// CheckDecimals verifies that wrappedAsset on dst has the same denomination as
// originalAsset on src. The ledgers never check this themselves.
func CheckDecimals(src *Deployment, originalAsset common.Address, dst *Deployment, wrappedAsset common.Address) error {
	want, err := src.Decimals(originalAsset)
	if err != nil {
		return fmt.Errorf("failed to read decimals of %s: %w", originalAsset.Hex(), err)
	}
	got, err := dst.Decimals(wrappedAsset)
	if err != nil {
		return fmt.Errorf("failed to read decimals of %s: %w", wrappedAsset.Hex(), err)
	}
	if want != got {
		return fmt.Errorf("wrapped asset %s has %d decimals, original %s has %d", wrappedAsset.Hex(), got, originalAsset.Hex(), want)
	}
	return nil
}
