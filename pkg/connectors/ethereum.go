package connectors

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/mayur2811/chainbridge/pkg/bridge"
	"github.com/mayur2811/chainbridge/pkg/bridgeabi"
	"github.com/mayur2811/chainbridge/pkg/signer"
)

// EthereumConfig describes the bridge deployment on one EVM network.
type EthereumConfig struct {
	RPC    string
	Router common.Address
	// Vault is the null address on a network without custody.
	Vault  common.Address
	Tokens []common.Address
	// RequestsPerSecond bounds the RPC request rate. Zero means unlimited.
	RequestsPerSecond float64
}

// EthereumConnector implements Connector against contracts exposing the bridge
// ABI over the standard web3 JSON-RPC.
type EthereumConnector struct {
	chainID bridge.ChainID
	cfg     EthereumConfig
	logger  *zap.Logger
	client  *ethclient.Client
	limiter *rate.Limiter

	router *bind.BoundContract
	vault  *bind.BoundContract
	auth   *bind.TransactOpts
}

func NewEthereumConnector(ctx context.Context, cfg EthereumConfig, s signer.Signer, logger *zap.Logger) (*EthereumConnector, error) {
	rawClient, err := rpc.DialContext(ctx, cfg.RPC)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", cfg.RPC, err)
	}
	client := ethclient.NewClient(rawClient)

	timeout, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	id, err := client.ChainID(timeout)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to query chain id from %s: %w", cfg.RPC, err)
	}
	if !id.IsUint64() {
		client.Close()
		return nil, fmt.Errorf("chain id %s out of range", id)
	}

	auth, err := bind.NewKeyedTransactorWithChainID(s.PrivateKey(), id)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to create transactor: %w", err)
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}

	e := &EthereumConnector{
		chainID: bridge.ChainID(id.Uint64()),
		cfg:     cfg,
		client:  client,
		limiter: rate.NewLimiter(limit, 1),
		router:  bind.NewBoundContract(cfg.Router, bridgeabi.ABI, client, client, client),
		auth:    auth,
	}
	e.logger = logger.With(zap.Stringer("chain_id", e.chainID))
	if cfg.Vault != bridge.NullAddress {
		e.vault = bind.NewBoundContract(cfg.Vault, bridgeabi.ABI, client, client, client)
	}
	return e, nil
}

func (e *EthereumConnector) Close() {
	e.client.Close()
}

func (e *EthereumConnector) ChainID() bridge.ChainID {
	return e.chainID
}

func (e *EthereumConnector) RouterAddress() common.Address {
	return e.cfg.Router
}

func (e *EthereumConnector) Sources() []common.Address {
	if e.vault != nil {
		return []common.Address{e.cfg.Vault}
	}
	return e.cfg.Tokens
}

func (e *EthereumConnector) HasCustody() bool {
	return e.vault != nil
}

func (e *EthereumConnector) BlockNumber(ctx context.Context) (uint64, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return 0, err
	}
	return e.client.BlockNumber(ctx)
}

func (e *EthereumConnector) FilterLogs(ctx context.Context, from, to uint64, addresses []common.Address) ([]types.Log, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return e.client.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: addresses,
	})
}

// LogIncluded checks the receipt of the transaction that emitted l, the same
// way the guardian watchers re-check messages before observing them.
func (e *EthereumConnector) LogIncluded(ctx context.Context, l types.Log) (bool, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return false, err
	}
	receipt, err := e.client.TransactionReceipt(ctx, l.TxHash)
	if errors.Is(err, ethereum.NotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get receipt for %s: %w", l.TxHash.Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful || receipt.BlockHash != l.BlockHash {
		return false, nil
	}
	for _, got := range receipt.Logs {
		if got.Index == l.Index && got.Address == l.Address {
			return true, nil
		}
	}
	return false, nil
}

func (e *EthereumConnector) call(ctx context.Context, c *bind.BoundContract, method string, params ...interface{}) ([]interface{}, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	var out []interface{}
	if err := c.Call(&bind.CallOpts{Context: ctx}, &out, method, params...); err != nil {
		return nil, fmt.Errorf("%s: %w", method, decodeRevert(err))
	}
	return out, nil
}

func (e *EthereumConnector) IsProcessed(ctx context.Context, kind bridge.MessageKind, source bridge.ChainID, nonce uint64) (bool, error) {
	out, err := e.call(ctx, e.router, "isProcessed", uint8(kind), uint64(source), nonce)
	if err != nil {
		return false, err
	}
	return *abi.ConvertType(out[0], new(bool)).(*bool), nil
}

func (e *EthereumConnector) LockStatus(ctx context.Context, nonce uint64) (LockStatus, error) {
	if e.vault == nil {
		return LockStatus{}, fmt.Errorf("chain %s has no custody ledger", e.chainID)
	}
	out, err := e.call(ctx, e.vault, "lockRecord", nonce)
	if errors.Is(err, bridge.ErrLockNotFound) {
		return LockStatus{}, nil
	}
	if err != nil {
		return LockStatus{}, err
	}
	owner := *abi.ConvertType(out[0], new(common.Address)).(*common.Address)
	return LockStatus{
		Exists:    owner != bridge.NullAddress,
		Completed: *abi.ConvertType(out[4], new(bool)).(*bool),
		Withdrawn: *abi.ConvertType(out[5], new(bool)).(*bool),
	}, nil
}

func (e *EthereumConnector) OriginalAsset(ctx context.Context, wrapped common.Address) (common.Address, error) {
	out, err := e.call(ctx, e.router, "originalAsset", wrapped)
	if err != nil {
		return common.Address{}, err
	}
	return *abi.ConvertType(out[0], new(common.Address)).(*common.Address), nil
}

func (e *EthereumConnector) Decimals(ctx context.Context, asset common.Address) (uint8, error) {
	token := bind.NewBoundContract(asset, bridgeabi.ABI, e.client, e.client, e.client)
	out, err := e.call(ctx, token, "decimals")
	if err != nil {
		return 0, err
	}
	return *abi.ConvertType(out[0], new(uint8)).(*uint8), nil
}

func (e *EthereumConnector) Roster(ctx context.Context) ([]common.Address, uint64, error) {
	out, err := e.call(ctx, e.router, "getValidators")
	if err != nil {
		return nil, 0, err
	}
	members := *abi.ConvertType(out[0], new([]common.Address)).(*[]common.Address)
	out, err = e.call(ctx, e.router, "threshold")
	if err != nil {
		return nil, 0, err
	}
	return members, *abi.ConvertType(out[0], new(uint64)).(*uint64), nil
}

func (e *EthereumConnector) transact(ctx context.Context, c *bind.BoundContract, method string, params ...interface{}) error {
	if err := e.limiter.Wait(ctx); err != nil {
		return err
	}
	opts := *e.auth
	opts.Context = ctx
	tx, err := c.Transact(&opts, method, params...)
	if err != nil {
		return fmt.Errorf("%s: %w", method, decodeRevert(err))
	}
	e.logger.Info("submitted transaction", zap.String("method", method), zap.Stringer("tx", tx.Hash()))

	receipt, err := bind.WaitMined(ctx, e.client, tx)
	if err != nil {
		return fmt.Errorf("failed waiting for %s: %w", tx.Hash().Hex(), err)
	}
	return checkReceipt(method, receipt)
}

// checkReceipt fails with ErrExecutionReverted for a mined but reverted
// transaction. The receipt carries no reason, so the revert cannot be mapped
// to a named error.
func checkReceipt(method string, receipt *types.Receipt) error {
	if receipt.Status == types.ReceiptStatusSuccessful {
		return nil
	}
	return fmt.Errorf("%s transaction %s reverted in block %s: %w",
		method, receipt.TxHash.Hex(), receipt.BlockNumber, bridge.ErrExecutionReverted)
}

func (e *EthereumConnector) CompleteBridge(ctx context.Context, t *Transfer, signatures [][]byte) error {
	return e.transact(ctx, e.router, "completeBridge", t.Asset, t.Recipient, t.Amount, uint64(t.SourceChain), t.Nonce, signatures)
}

func (e *EthereumConnector) ReleaseBridge(ctx context.Context, t *Transfer, signatures [][]byte) error {
	return e.transact(ctx, e.router, "releaseBridge", t.Asset, t.Recipient, t.Amount, uint64(t.SourceChain), t.Nonce, signatures)
}

func (e *EthereumConnector) MarkCompleted(ctx context.Context, nonce uint64) error {
	if e.vault == nil {
		return fmt.Errorf("chain %s has no custody ledger", e.chainID)
	}
	return e.transact(ctx, e.vault, "markCompleted", nonce)
}

// decodeRevert maps a contract revert reason back to the bridge error of the
// same name so callers can classify it like an in-process failure. Reverts
// with an unknown reason or no decodable reason wrap ErrExecutionReverted.
// RPC errors without revert data are returned unchanged.
func decodeRevert(err error) error {
	var dataErr rpc.DataError
	if !errors.As(err, &dataErr) || dataErr.ErrorData() == nil {
		if strings.Contains(err.Error(), "execution reverted") {
			return fmt.Errorf("%s: %w", err.Error(), bridge.ErrExecutionReverted)
		}
		return err
	}
	var data []byte
	switch d := dataErr.ErrorData().(type) {
	case string:
		b, decodeErr := hexutil.Decode(d)
		if decodeErr != nil {
			return fmt.Errorf("%s (data %q): %w", err.Error(), d, bridge.ErrExecutionReverted)
		}
		data = b
	case []byte:
		data = d
	default:
		return fmt.Errorf("%s: %w", err.Error(), bridge.ErrExecutionReverted)
	}
	reason, unpackErr := abi.UnpackRevert(data)
	if unpackErr != nil {
		// Custom error or panic code.
		return fmt.Errorf("%s (data %s): %w", err.Error(), hexutil.Encode(data), bridge.ErrExecutionReverted)
	}
	if known, ok := bridge.ErrorByName(strings.TrimSpace(reason)); ok {
		return fmt.Errorf("%s: %w", reason, known)
	}
	return fmt.Errorf("%s: %w", reason, bridge.ErrExecutionReverted)
}
