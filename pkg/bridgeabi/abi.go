// Package bridgeabi holds the contract ABI shared by the in-process ledger runtime,
// which encodes its event log with it, and the EVM connector, which decodes
// on-chain logs and packs calls with it. All event fields are non-indexed so a
// log's data carries the full, ordered tuple.
package bridgeabi

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

const (
	EventInitiated              = "Initiated"
	EventReleased               = "Released"
	EventBurned                 = "Burned"
	EventCompleted              = "Completed"
	EventEmergencyWithdrawn     = "EmergencyWithdrawn"
	EventBridgeInitiated        = "BridgeInitiated"
	EventLockCompleted          = "LockCompleted"
	EventMessageVerified        = "MessageVerified"
	EventValidatorAdded         = "ValidatorAdded"
	EventValidatorRemoved       = "ValidatorRemoved"
	EventThresholdChanged       = "ThresholdChanged"
	EventWrappedAssetRegistered = "WrappedAssetRegistered"
	EventPaused                 = "Paused"
	EventUnpaused               = "Unpaused"
	EventTransfer               = "Transfer"
)

const bridgeABIJSON = `[
 {"type":"event","name":"Initiated","anonymous":false,"inputs":[
  {"name":"owner","type":"address","indexed":false},
  {"name":"asset","type":"address","indexed":false},
  {"name":"amount","type":"uint256","indexed":false},
  {"name":"destChainId","type":"uint64","indexed":false},
  {"name":"recipient","type":"address","indexed":false},
  {"name":"nonce","type":"uint64","indexed":false}]},
 {"type":"event","name":"Released","anonymous":false,"inputs":[
  {"name":"recipient","type":"address","indexed":false},
  {"name":"asset","type":"address","indexed":false},
  {"name":"amount","type":"uint256","indexed":false},
  {"name":"sourceChainId","type":"uint64","indexed":false},
  {"name":"nonce","type":"uint64","indexed":false}]},
 {"type":"event","name":"Burned","anonymous":false,"inputs":[
  {"name":"burner","type":"address","indexed":false},
  {"name":"amount","type":"uint256","indexed":false},
  {"name":"destChainId","type":"uint64","indexed":false},
  {"name":"recipient","type":"address","indexed":false},
  {"name":"burnNonce","type":"uint64","indexed":false}]},
 {"type":"event","name":"Completed","anonymous":false,"inputs":[
  {"name":"recipient","type":"address","indexed":false},
  {"name":"wrappedAsset","type":"address","indexed":false},
  {"name":"amount","type":"uint256","indexed":false},
  {"name":"sourceChainId","type":"uint64","indexed":false},
  {"name":"nonce","type":"uint64","indexed":false}]},
 {"type":"event","name":"EmergencyWithdrawn","anonymous":false,"inputs":[
  {"name":"owner","type":"address","indexed":false},
  {"name":"asset","type":"address","indexed":false},
  {"name":"amount","type":"uint256","indexed":false},
  {"name":"nonce","type":"uint64","indexed":false}]},
 {"type":"event","name":"BridgeInitiated","anonymous":false,"inputs":[
  {"name":"sender","type":"address","indexed":false},
  {"name":"asset","type":"address","indexed":false},
  {"name":"amount","type":"uint256","indexed":false},
  {"name":"destChainId","type":"uint64","indexed":false},
  {"name":"recipient","type":"address","indexed":false},
  {"name":"nonce","type":"uint64","indexed":false}]},
 {"type":"event","name":"LockCompleted","anonymous":false,"inputs":[
  {"name":"nonce","type":"uint64","indexed":false}]},
 {"type":"event","name":"MessageVerified","anonymous":false,"inputs":[
  {"name":"messageHash","type":"bytes32","indexed":false},
  {"name":"kind","type":"uint8","indexed":false}]},
 {"type":"event","name":"ValidatorAdded","anonymous":false,"inputs":[
  {"name":"validator","type":"address","indexed":false}]},
 {"type":"event","name":"ValidatorRemoved","anonymous":false,"inputs":[
  {"name":"validator","type":"address","indexed":false}]},
 {"type":"event","name":"ThresholdChanged","anonymous":false,"inputs":[
  {"name":"oldThreshold","type":"uint64","indexed":false},
  {"name":"newThreshold","type":"uint64","indexed":false}]},
 {"type":"event","name":"WrappedAssetRegistered","anonymous":false,"inputs":[
  {"name":"original","type":"address","indexed":false},
  {"name":"wrapped","type":"address","indexed":false}]},
 {"type":"event","name":"Paused","anonymous":false,"inputs":[
  {"name":"account","type":"address","indexed":false}]},
 {"type":"event","name":"Unpaused","anonymous":false,"inputs":[
  {"name":"account","type":"address","indexed":false}]},
 {"type":"event","name":"Transfer","anonymous":false,"inputs":[
  {"name":"from","type":"address","indexed":false},
  {"name":"to","type":"address","indexed":false},
  {"name":"value","type":"uint256","indexed":false}]},

 {"type":"function","name":"bridge","stateMutability":"nonpayable","inputs":[
  {"name":"asset","type":"address"},{"name":"amount","type":"uint256"},
  {"name":"destChainId","type":"uint64"},{"name":"recipient","type":"address"}],
  "outputs":[{"name":"nonce","type":"uint64"}]},
 {"type":"function","name":"completeBridge","stateMutability":"nonpayable","inputs":[
  {"name":"originalAsset","type":"address"},{"name":"recipient","type":"address"},
  {"name":"amount","type":"uint256"},{"name":"sourceChainId","type":"uint64"},
  {"name":"nonce","type":"uint64"},{"name":"signatures","type":"bytes[]"}],"outputs":[]},
 {"type":"function","name":"releaseBridge","stateMutability":"nonpayable","inputs":[
  {"name":"asset","type":"address"},{"name":"recipient","type":"address"},
  {"name":"amount","type":"uint256"},{"name":"sourceChainId","type":"uint64"},
  {"name":"nonce","type":"uint64"},{"name":"signatures","type":"bytes[]"}],"outputs":[]},
 {"type":"function","name":"isProcessed","stateMutability":"view","inputs":[
  {"name":"kind","type":"uint8"},{"name":"sourceChainId","type":"uint64"},{"name":"nonce","type":"uint64"}],
  "outputs":[{"name":"","type":"bool"}]},
 {"type":"function","name":"originalAsset","stateMutability":"view","inputs":[
  {"name":"wrapped","type":"address"}],"outputs":[{"name":"","type":"address"}]},
 {"type":"function","name":"getValidators","stateMutability":"view","inputs":[],
  "outputs":[{"name":"","type":"address[]"}]},
 {"type":"function","name":"threshold","stateMutability":"view","inputs":[],
  "outputs":[{"name":"","type":"uint64"}]},
 {"type":"function","name":"markCompleted","stateMutability":"nonpayable","inputs":[
  {"name":"nonce","type":"uint64"}],"outputs":[]},
 {"type":"function","name":"emergencyWithdraw","stateMutability":"nonpayable","inputs":[
  {"name":"nonce","type":"uint64"}],"outputs":[]},
 {"type":"function","name":"lockRecord","stateMutability":"view","inputs":[
  {"name":"nonce","type":"uint64"}],"outputs":[
  {"name":"owner","type":"address"},{"name":"asset","type":"address"},
  {"name":"amount","type":"uint256"},{"name":"createdAt","type":"uint64"},
  {"name":"completed","type":"bool"},{"name":"withdrawn","type":"bool"}]},
 {"type":"function","name":"decimals","stateMutability":"view","inputs":[],
  "outputs":[{"name":"","type":"uint8"}]},
 {"type":"function","name":"burnForBridge","stateMutability":"nonpayable","inputs":[
  {"name":"amount","type":"uint256"},{"name":"destChainId","type":"uint64"},{"name":"recipient","type":"address"}],
  "outputs":[{"name":"burnNonce","type":"uint64"}]}
]`

// ABI is the parsed bridge ABI.
var ABI abi.ABI

func init() {
	var err error
	ABI, err = abi.JSON(strings.NewReader(bridgeABIJSON))
	if err != nil {
		panic(fmt.Sprintf("invalid bridge abi: %v", err))
	}
}

var ErrEventMismatch = errors.New("log does not carry the expected event")

type (
	Initiated struct {
		Owner       common.Address
		Asset       common.Address
		Amount      *big.Int
		DestChainId uint64
		Recipient   common.Address
		Nonce       uint64
	}

	Released struct {
		Recipient     common.Address
		Asset         common.Address
		Amount        *big.Int
		SourceChainId uint64
		Nonce         uint64
	}

	Burned struct {
		Burner      common.Address
		Amount      *big.Int
		DestChainId uint64
		Recipient   common.Address
		BurnNonce   uint64
	}

	Completed struct {
		Recipient     common.Address
		WrappedAsset  common.Address
		Amount        *big.Int
		SourceChainId uint64
		Nonce         uint64
	}

	EmergencyWithdrawn struct {
		Owner  common.Address
		Asset  common.Address
		Amount *big.Int
		Nonce  uint64
	}

	ThresholdChanged struct {
		OldThreshold uint64
		NewThreshold uint64
	}
)

// EncodeLog builds the log a contract at address emits for the named event.
// Block, transaction and index fields are filled in by the caller.
func EncodeLog(address common.Address, event string, args ...interface{}) (types.Log, error) {
	ev, ok := ABI.Events[event]
	if !ok {
		return types.Log{}, fmt.Errorf("unknown event %q", event)
	}
	data, err := ev.Inputs.Pack(args...)
	if err != nil {
		return types.Log{}, fmt.Errorf("failed to pack %s: %w", event, err)
	}
	return types.Log{
		Address: address,
		Topics:  []common.Hash{ev.ID},
		Data:    data,
	}, nil
}

// EventName returns the name of the event carried by l.
func EventName(l types.Log) (string, bool) {
	if len(l.Topics) == 0 {
		return "", false
	}
	ev, err := ABI.EventByID(l.Topics[0])
	if err != nil {
		return "", false
	}
	return ev.Name, true
}

// DecodeLog unpacks the named event from l into out.
func DecodeLog(out interface{}, event string, l types.Log) error {
	ev, ok := ABI.Events[event]
	if !ok {
		return fmt.Errorf("unknown event %q", event)
	}
	if len(l.Topics) == 0 || l.Topics[0] != ev.ID {
		return ErrEventMismatch
	}
	return ABI.UnpackIntoInterface(out, event, l.Data)
}

// EventID returns the topic hash of the named event.
func EventID(event string) common.Hash {
	ev, ok := ABI.Events[event]
	if !ok {
		panic("unknown event " + event)
	}
	return ev.ID
}
