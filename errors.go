package signtx_sdk

import (
	"errors"
	"fmt"
)

// FailureKind classifies a SigningError.
type FailureKind int

const (
	DataError FailureKind = iota + 1
	ProcessError
	NotEnoughFunds
)

func (k FailureKind) String() string {
	switch k {
	case DataError:
		return "DataError"
	case ProcessError:
		return "ProcessError"
	case NotEnoughFunds:
		return "NotEnoughFunds"
	}
	return fmt.Sprintf("FailureKind(%d)", int(k))
}

// Messages shared by several checks.
const (
	MsgTxChanged        = "Transaction has changed during signing"
	MsgPubkeyNotInMulti = "Pubkey not found in multisig script"
	MsgSegwitDisabled   = "Segwit not enabled on this coin"
	MsgMissingAmount    = "Expected input with amount"
)

// SigningError aborts a signing session. No output produced before the
// error is usable.
type SigningError struct {
	Kind    FailureKind
	Message string
}

func (e *SigningError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func dataError(format string, args ...interface{}) error {
	return &SigningError{Kind: DataError, Message: fmt.Sprintf(format, args...)}
}

func processError(format string, args ...interface{}) error {
	return &SigningError{Kind: ProcessError, Message: fmt.Sprintf(format, args...)}
}

func errTxChanged() error {
	return processError(MsgTxChanged)
}

// IsFailure reports whether err is a SigningError of the given kind.
func IsFailure(err error, kind FailureKind) bool {
	var se *SigningError
	return errors.As(err, &se) && se.Kind == kind
}
