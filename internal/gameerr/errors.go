// Package gameerr holds the error taxonomy shared by the ledger gateway and the game engine.
package gameerr

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidBet is returned when a bet lies outside the configured range.
	ErrInvalidBet = errors.New("bet amount out of range")
	// ErrRoundDiscarded resolves a pending ticket whose round was dropped by reset or restore.
	ErrRoundDiscarded = errors.New("pending round discarded")
)

// PreconditionError means the wallet or network is not ready. Fixable by the player.
type PreconditionError struct {
	Reason string
}

func (e *PreconditionError) Error() string {
	return "precondition failed: " + e.Reason
}

// InvalidStateError means the caller violated a state machine guard.
type InvalidStateError struct {
	Op     string
	State  string
	Reason string
}

func (e *InvalidStateError) Error() string {
	if e.State == "" {
		return fmt.Sprintf("%s: invalid state: %s", e.Op, e.Reason)
	}
	return fmt.Sprintf("%s: invalid state %q: %s", e.Op, e.State, e.Reason)
}

// RejectedError means the ledger reverted the transaction.
type RejectedError struct {
	Op     string
	TxHash string
	Reason string
}

func (e *RejectedError) Error() string {
	reason := e.Reason
	if reason == "" {
		reason = "transaction reverted"
	}
	if e.TxHash == "" {
		return fmt.Sprintf("%s rejected: %s", e.Op, reason)
	}
	return fmt.Sprintf("%s rejected (tx %s): %s", e.Op, e.TxHash, reason)
}

// NetworkError wraps a transport failure or a confirmation timeout.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: network error: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// StateRecoveryError means an event record could not be read back after a confirmed transaction.
type StateRecoveryError struct {
	Op       string
	TxHash   string
	Attempts int
	Err      error
}

func (e *StateRecoveryError) Error() string {
	return fmt.Sprintf("%s: could not recover record for tx %s after %d attempts: %v", e.Op, e.TxHash, e.Attempts, e.Err)
}

func (e *StateRecoveryError) Unwrap() error { return e.Err }

// WrongNetworkError means the connected chain id differs from the expected one.
type WrongNetworkError struct {
	Want uint64
	Got  uint64
}

func (e *WrongNetworkError) Error() string {
	return fmt.Sprintf("wrong network: connected to chain %d, expected %d", e.Got, e.Want)
}

// MismatchKind tells which half of a fairness check failed.
type MismatchKind string

const (
	MismatchCommitment MismatchKind = "commitment"
	MismatchOutcome    MismatchKind = "outcome"
)

// CommitmentMismatchError means fairness verification of a round failed.
type CommitmentMismatchError struct {
	Kind  MismatchKind
	Round int
}

func (e *CommitmentMismatchError) Error() string {
	if e.Kind == MismatchOutcome {
		return fmt.Sprintf("round %d: ledger outcome does not match derived outcome", e.Round)
	}
	return fmt.Sprintf("round %d: client seed does not match published commitment", e.Round)
}
