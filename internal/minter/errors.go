package minter

import "errors"

// Sentinel errors surfaced by the minter. None are retried internally;
// every failure aborts the whole transaction.
var (
	// Policy errors.
	ErrProgramPaused               = errors.New("program paused")
	ErrVersionMismatch             = errors.New("attestation version mismatch")
	ErrDestinationDomainMismatch   = errors.New("destination domain mismatch")
	ErrDestinationContractMismatch = errors.New("destination contract mismatch")
	ErrAttestationExpired          = errors.New("attestation expired")
	ErrInvalidAttestationValue     = errors.New("invalid attestation value")

	// Authorization errors.
	ErrInvalidAuthority          = errors.New("invalid authority")
	ErrDestinationCallerMismatch = errors.New("destination caller mismatch")

	// Account-shape errors.
	ErrRemainingAccountsLengthMismatch = errors.New("remaining accounts length mismatch")
	ErrInvalidCustodyTokenAccount      = errors.New("invalid custody token account")
	ErrInvalidDestinationTokenAccount  = errors.New("invalid destination token account")
	ErrInvalidTransferSpecHashAccount  = errors.New("invalid transfer spec hash account")
	ErrDestinationRecipientMismatch    = errors.New("destination recipient mismatch")
	ErrDestinationTokenMismatch        = errors.New("destination token mismatch")

	// Replay.
	ErrTransferSpecHashAlreadyUsed = errors.New("transfer spec hash already used")

	// Admin.
	ErrInvalidAttester       = errors.New("invalid attester")
	ErrAttesterLimitExceeded = errors.New("attester limit exceeded")

	// State shape.
	ErrNotInitialized     = errors.New("gateway minter not initialized")
	ErrAlreadyInitialized = errors.New("gateway minter already initialized")
)
