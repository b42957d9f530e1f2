package buck

import "errors"

// ErrNotFound is returned when a token id was never minted.
var ErrNotFound = errors.New("buck not found")

// ErrAlreadyMinted is returned when minting an id that already has an owner.
var ErrAlreadyMinted = errors.New("buck already minted")

// ErrUnauthorized is returned when the caller lacks rights for a mutation.
var ErrUnauthorized = errors.New("unauthorized")

// ErrNotReady is returned when an attacker is still cooling down.
var ErrNotReady = errors.New("buck not ready")

// ErrInvalidTarget is returned for self-fights and unknown defenders.
var ErrInvalidTarget = errors.New("invalid fight target")

// ErrInvalidAttributes is returned when a mint request carries an unknown
// fighting style or an empty owner.
var ErrInvalidAttributes = errors.New("invalid buck attributes")

// ErrSupplyExceeded is returned when a mint would push total does to or past
// DrawSentinel.
var ErrSupplyExceeded = errors.New("does supply exceeded")
