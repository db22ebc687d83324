package connectors

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/mayur2811/chainbridge/pkg/bridge"
	"github.com/mayur2811/chainbridge/pkg/chain"
	"github.com/mayur2811/chainbridge/pkg/deploy"
	"github.com/mayur2811/chainbridge/pkg/signer"
)

// LocalConnector drives a bridge deployment on the in-process ledger runtime,
// submitting as the relayer's signing identity.
type LocalConnector struct {
	d      *deploy.Deployment
	caller bridge.Caller
	logger *zap.Logger
}

func NewLocalConnector(d *deploy.Deployment, s signer.Signer, logger *zap.Logger) *LocalConnector {
	return &LocalConnector{
		d:      d,
		caller: bridge.NewCaller(s.Address()),
		logger: logger.With(zap.Stringer("chain_id", d.Chain.ID())),
	}
}

func (l *LocalConnector) ChainID() bridge.ChainID {
	return l.d.Chain.ID()
}

func (l *LocalConnector) RouterAddress() common.Address {
	return l.d.Router.Address()
}

func (l *LocalConnector) Sources() []common.Address {
	if l.d.Vault != nil {
		return []common.Address{l.d.Vault.Address()}
	}
	return l.d.WrappedAssets()
}

func (l *LocalConnector) HasCustody() bool {
	return l.d.Vault != nil
}

func (l *LocalConnector) BlockNumber(ctx context.Context) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return l.d.Chain.Head()
}

func (l *LocalConnector) FilterLogs(ctx context.Context, from, to uint64, addresses []common.Address) ([]types.Log, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return l.d.Chain.Logs(from, to, addresses...)
}

func (l *LocalConnector) LogIncluded(ctx context.Context, lg types.Log) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	blk, err := l.d.Chain.BlockByNumber(lg.BlockNumber)
	if errors.Is(err, chain.ErrBlockNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if blk.Hash != lg.BlockHash {
		return false, nil
	}
	logs, err := l.d.Chain.Logs(lg.BlockNumber, lg.BlockNumber, lg.Address)
	if err != nil {
		return false, err
	}
	for _, got := range logs {
		if got.TxHash == lg.TxHash && got.Index == lg.Index {
			return true, nil
		}
	}
	return false, nil
}

func (l *LocalConnector) IsProcessed(ctx context.Context, kind bridge.MessageKind, source bridge.ChainID, nonce uint64) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	var processed bool
	err := l.d.Chain.View(func(tx *chain.Tx) error {
		var err error
		processed, err = l.d.Router.IsProcessed(tx, kind, source, nonce)
		return err
	})
	return processed, err
}

func (l *LocalConnector) LockStatus(ctx context.Context, nonce uint64) (LockStatus, error) {
	if err := ctx.Err(); err != nil {
		return LockStatus{}, err
	}
	if l.d.Vault == nil {
		return LockStatus{}, fmt.Errorf("chain %s has no custody ledger", l.ChainID())
	}
	var status LockStatus
	err := l.d.Chain.View(func(tx *chain.Tx) error {
		rec, err := l.d.Vault.Lock(tx, nonce)
		if errors.Is(err, bridge.ErrLockNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		status = LockStatus{Exists: true, Completed: rec.Completed, Withdrawn: rec.Withdrawn}
		return nil
	})
	return status, err
}

func (l *LocalConnector) OriginalAsset(ctx context.Context, wrapped common.Address) (common.Address, error) {
	if err := ctx.Err(); err != nil {
		return common.Address{}, err
	}
	var original common.Address
	err := l.d.Chain.View(func(tx *chain.Tx) error {
		var err error
		original, err = l.d.Router.OriginalAsset(tx, wrapped)
		return err
	})
	return original, err
}

func (l *LocalConnector) Decimals(ctx context.Context, asset common.Address) (uint8, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return l.d.Decimals(asset)
}

func (l *LocalConnector) Roster(ctx context.Context) ([]common.Address, uint64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	var (
		members   []common.Address
		threshold uint64
	)
	err := l.d.Chain.View(func(tx *chain.Tx) error {
		var err error
		if members, err = l.d.ValidatorSet.Validators(tx); err != nil {
			return err
		}
		threshold, err = l.d.ValidatorSet.Threshold(tx)
		return err
	})
	return members, threshold, err
}

func toU256(amount *big.Int) (*uint256.Int, error) {
	if amount == nil || amount.Sign() < 0 {
		return nil, bridge.ErrZeroAmount
	}
	v, overflow := uint256.FromBig(amount)
	if overflow {
		return nil, bridge.ErrAmountOverflow
	}
	return v, nil
}

func (l *LocalConnector) CompleteBridge(ctx context.Context, t *Transfer, signatures [][]byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	amount, err := toU256(t.Amount)
	if err != nil {
		return err
	}
	receipt, err := l.d.Chain.Execute(l.caller, "completeBridge", func(tx *chain.Tx) error {
		return l.d.Router.CompleteBridge(tx, l.caller, t.Asset, t.Recipient, amount, t.SourceChain, t.Nonce, signatures)
	})
	if err != nil {
		return err
	}
	l.logger.Debug("completeBridge included",
		zap.Stringer("tx", receipt.TxHash),
		zap.Uint64("block", receipt.BlockNumber))
	return nil
}

func (l *LocalConnector) ReleaseBridge(ctx context.Context, t *Transfer, signatures [][]byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	amount, err := toU256(t.Amount)
	if err != nil {
		return err
	}
	receipt, err := l.d.Chain.Execute(l.caller, "releaseBridge", func(tx *chain.Tx) error {
		return l.d.Router.ReleaseBridge(tx, l.caller, t.Asset, t.Recipient, amount, t.SourceChain, t.Nonce, signatures)
	})
	if err != nil {
		return err
	}
	l.logger.Debug("releaseBridge included",
		zap.Stringer("tx", receipt.TxHash),
		zap.Uint64("block", receipt.BlockNumber))
	return nil
}

func (l *LocalConnector) MarkCompleted(ctx context.Context, nonce uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if l.d.Vault == nil {
		return fmt.Errorf("chain %s has no custody ledger", l.ChainID())
	}
	_, err := l.d.Chain.Execute(l.caller, "markCompleted", func(tx *chain.Tx) error {
		return l.d.Vault.MarkCompleted(tx, l.caller, nonce)
	})
	return err
}
