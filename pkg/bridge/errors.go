package bridge

import (
	"errors"
	"fmt"
)

// Class groups ledger errors by how a caller should react to them.
type Class int

const (
	ClassValidation Class = iota + 1
	ClassAuthorization
	ClassReplay
	ClassThreshold
	ClassTiming
	ClassState
)

func (c Class) String() string {
	switch c {
	case ClassValidation:
		return "validation"
	case ClassAuthorization:
		return "authorization"
	case ClassReplay:
		return "replay"
	case ClassThreshold:
		return "threshold"
	case ClassTiming:
		return "timing"
	case ClassState:
		return "state"
	default:
		return fmt.Sprintf("unknown(%d)", int(c))
	}
}

// Error is a ledger-level rejection. Its Name is stable and doubles as the revert
// reason of the equivalent contract call.
type Error struct {
	class Class
	name  string
	msg   string
}

func (e *Error) Error() string {
	return e.msg
}

func (e *Error) Name() string {
	return e.name
}

func (e *Error) Class() Class {
	return e.class
}

var registry = map[string]*Error{}

func register(class Class, name string, msg string) *Error {
	if _, ok := registry[name]; ok {
		panic("bridge error registered twice: " + name)
	}
	e := &Error{class: class, name: name, msg: msg}
	registry[name] = e
	return e
}

// Ledger error sentinels
var (
	ErrUnsupportedAsset   = register(ClassValidation, "UnsupportedAsset", "asset is not supported")
	ErrAmountBelowMinimum = register(ClassValidation, "AmountBelowMinimum", "amount is below the configured minimum")
	ErrZeroAmount         = register(ClassValidation, "ZeroAmount", "amount must be positive")
	ErrAmountOverflow     = register(ClassValidation, "AmountOverflow", "amount does not fit in 256 bits")
	ErrNullRecipient      = register(ClassValidation, "NullRecipient", "recipient is the null address")
	ErrSameChain          = register(ClassValidation, "SameChain", "destination chain equals this chain")
	ErrUnsupportedChain   = register(ClassValidation, "UnsupportedChain", "destination chain is not supported")
	ErrUnmappedAsset      = register(ClassValidation, "UnmappedAsset", "no wrapped asset registered for original asset")
	ErrAlreadyMapped      = register(ClassValidation, "AlreadyMapped", "original asset already has a wrapped asset")
	ErrInvalidThreshold   = register(ClassValidation, "InvalidThreshold", "threshold must be between 1 and the roster size")
	ErrNullValidator      = register(ClassValidation, "NullValidator", "validator is the null address")
	ErrValidatorExists    = register(ClassValidation, "ValidatorExists", "validator already in roster")
	ErrValidatorNotFound  = register(ClassValidation, "ValidatorNotFound", "validator not in roster")
	ErrInvalidSignature   = register(ClassValidation, "InvalidSignature", "signature is malformed")

	ErrUnauthorized     = register(ClassAuthorization, "Unauthorized", "caller is not authorized")
	ErrNotOwner         = register(ClassAuthorization, "NotOwner", "caller is not the owner")
	ErrNotValidator     = register(ClassAuthorization, "NotValidator", "caller is not a validator")
	ErrNotBridge        = register(ClassAuthorization, "NotBridge", "caller is not the bridge")
	ErrNotRecordOwner   = register(ClassAuthorization, "NotRecordOwner", "caller does not own the lock record")
	ErrAlreadyProcessed = register(ClassReplay, "AlreadyProcessed", "message already processed")

	ErrNotEnoughSignatures = register(ClassThreshold, "NotEnoughSignatures", "not enough signatures")
	ErrDuplicateSignature  = register(ClassThreshold, "DuplicateSignature", "duplicate signature")
	ErrVerificationFailed  = register(ClassThreshold, "VerificationFailed", "message verification failed")

	ErrRecoveryDelayActive = register(ClassTiming, "RecoveryDelayActive", "recovery delay has not elapsed")
	ErrAlreadyCompleted    = register(ClassTiming, "AlreadyCompleted", "lock record already completed")
	ErrAlreadyWithdrawn    = register(ClassTiming, "AlreadyWithdrawn", "lock record already withdrawn")

	ErrPaused              = register(ClassState, "Paused", "contract is paused")
	ErrNotPaused           = register(ClassState, "NotPaused", "contract is not paused")
	ErrLockNotFound        = register(ClassState, "LockNotFound", "lock record does not exist")
	ErrInsufficientBalance = register(ClassState, "InsufficientBalance", "insufficient balance")
	ErrTransferMismatch    = register(ClassState, "TransferMismatch", "asset transfer moved an unexpected amount")
	ErrAlreadyInitialized  = register(ClassState, "AlreadyInitialized", "contract already initialized")
	ErrNotInitialized      = register(ClassState, "NotInitialized", "contract not initialized")
	// ErrExecutionReverted is a revert without a reason the bridge knows, e.g. a
	// custom error or a failed receipt. It is as final as any named revert.
	ErrExecutionReverted = register(ClassState, "ExecutionReverted", "execution reverted")
)

// ErrorByName returns the sentinel registered under name, typically a revert reason.
func ErrorByName(name string) (*Error, bool) {
	e, ok := registry[name]
	return e, ok
}

// ClassOf returns the class of the ledger error wrapped in err, if any.
func ClassOf(err error) (Class, bool) {
	var be *Error
	if errors.As(err, &be) {
		return be.class, true
	}
	return 0, false
}

// IsLedgerError reports whether err is (or wraps) a ledger-level rejection. Such
// errors are deterministic: resubmitting the same call cannot succeed.
func IsLedgerError(err error) bool {
	_, ok := ClassOf(err)
	return ok
}

// IsReplay reports whether err is a replay rejection, which relayers treat as
// success because the counter-side transition already happened.
func IsReplay(err error) bool {
	c, ok := ClassOf(err)
	return ok && c == ClassReplay
}
