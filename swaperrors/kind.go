// Package swaperrors implements the error-kind taxonomy of the swap
// core (see spec §7). Every error that crosses a component boundary is
// wrapped in a SwapError carrying one of the Kind values below, so
// callers can branch on "what kind of failure is this" without string
// matching, the same way the teacher distinguishes retryable RPC
// failures from protocol violations.
package swaperrors

import (
	"fmt"

	goerrors "github.com/go-errors/errors"
)

// Kind classifies a swap error for propagation-policy purposes (spec §7).
type Kind byte

const (
	// KindInvalidArgument is malformed input; no state change.
	KindInvalidArgument Kind = iota

	// KindUnexpectedMessageType is an incoming protocol message that
	// does not match the expected transition for (state, role).
	KindUnexpectedMessageType

	// KindUnexpectedCoinType is a secondary update whose currency
	// disagrees with the trade's declared secondary_currency.
	KindUnexpectedCoinType

	// KindCryptoFailure is an adaptor-signature, multisig, or script
	// verification failure.
	KindCryptoFailure

	// KindTransportFailure is a message that could not be delivered.
	KindTransportFailure

	// KindChainFailure is an RPC/network error talking to either chain.
	KindChainFailure

	// KindTimeout is a deadline that has passed.
	KindTimeout

	// KindStateConflict is a concurrent write losing an optimistic
	// concurrency check.
	KindStateConflict

	// KindFatal is an invariant violation; the trade is frozen.
	KindFatal
)

func (k Kind) String() string {
	switch k {
	case KindInvalidArgument:
		return "InvalidArgument"
	case KindUnexpectedMessageType:
		return "UnexpectedMessageType"
	case KindUnexpectedCoinType:
		return "UnexpectedCoinType"
	case KindCryptoFailure:
		return "CryptoFailure"
	case KindTransportFailure:
		return "TransportFailure"
	case KindChainFailure:
		return "ChainFailure"
	case KindTimeout:
		return "Timeout"
	case KindStateConflict:
		return "StateConflict"
	case KindFatal:
		return "Fatal"
	default:
		return "Unknown"
	}
}

// SwapError wraps an underlying error with its propagation Kind.
type SwapError struct {
	Kind Kind
	Err  error
}

// Error implements the error interface.
func (e *SwapError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Err)
}

// Unwrap allows errors.Is/errors.As to see through to the inner error.
func (e *SwapError) Unwrap() error {
	return e.Err
}

// New builds a SwapError of the given kind from a formatted message,
// capturing a stack trace via go-errors/errors the way the teacher's
// htlcswitch package does for anything worth debugging later.
func New(kind Kind, format string, args ...interface{}) *SwapError {
	return &SwapError{
		Kind: kind,
		Err:  goerrors.Errorf(format, args...),
	}
}

// Wrap attaches a Kind to an existing error.
func Wrap(kind Kind, err error) *SwapError {
	if err == nil {
		return nil
	}
	return &SwapError{Kind: kind, Err: goerrors.Wrap(err, 1)}
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	var se *SwapError
	if se2, ok := err.(*SwapError); ok {
		se = se2
	} else {
		return false
	}
	return se.Kind == kind
}

// Sentinel constructors for the common invariant-violation cases named
// throughout spec §4 and §8.
var (
	ErrInvalidSecondaryAddress = New(KindInvalidArgument, "invalid secondary address for declared network/currency")
	ErrMultisigIncomplete      = New(KindCryptoFailure, "multisig participant data incomplete")
	ErrInvalidAdjust           = New(KindInvalidArgument, "adjust target is not in the whitelist for the current state")
	ErrStateConflict           = New(KindStateConflict, "record revision mismatch, reload and retry")
)

// Retryable reports whether C8 should retry locally per the
// propagation policy in spec §7.
func Retryable(kind Kind) bool {
	switch kind {
	case KindTransportFailure, KindChainFailure, KindStateConflict:
		return true
	default:
		return false
	}
}
