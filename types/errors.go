package types

import "errors"

var (
	// ErrMalformedSnapshot is returned when a required numeric field of a
	// snapshot cannot be parsed. It is fatal only for the chain or account
	// being resolved.
	ErrMalformedSnapshot = errors.New("malformed snapshot")
	// ErrChainDataMissing marks an absent optional on-chain substructure.
	// Callers recover with an unknown default.
	ErrChainDataMissing = errors.New("chain data missing")

	ErrSnapshotFamilyMismatch = errors.New("snapshot family mismatch")
	ErrUnknownChain           = errors.New("unknown chain")
	ErrAccountNotTracked      = errors.New("account not tracked")
	ErrNotFound               = errors.New("not found")
)
