package vesting

import "errors"

var (
	ErrNilState     = errors.New("vesting: state not configured")
	ErrNilLedger    = errors.New("vesting: token ledger not configured")
	ErrInvalidGrant = errors.New("vesting: grant quantity must be positive")
	ErrInvalidIndex = errors.New("vesting: grant index out of range")
	ErrNoOpVesting  = errors.New("vesting: nothing to release")
	ErrOverflow     = errors.New("vesting: quantity exceeds accumulator width")
	ErrUnauthorized = errors.New("vesting: unauthorized")
	ErrReentry      = errors.New("vesting: reentrant call")
)
