package entity

import "errors"

var (
	// ErrInvalidInput: malformed request (empty description, budget below minimum, zero amount).
	ErrInvalidInput = errors.New("invalid input")
	// ErrInsufficientFunds: the actor's free balance cannot cover the hold.
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrJobNotFound       = errors.New("job not found")
	// ErrInvalidTransition: the job is not in the state the operation requires.
	ErrInvalidTransition = errors.New("invalid transition")
	ErrUnauthorized      = errors.New("unauthorized")
	// ErrEscrowMismatch signals that the ledger and the custodian disagree.
	// It is a bug, never a user error.
	ErrEscrowMismatch = errors.New("escrow mismatch")
)
