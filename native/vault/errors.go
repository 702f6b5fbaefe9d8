package vault

import "errors"

var (
	ErrNilState           = errors.New("vault: state not configured")
	ErrNilLedger          = errors.New("vault: token ledger not configured")
	ErrNotInitialized     = errors.New("vault: pool not initialized")
	ErrAlreadyInitialized = errors.New("vault: pool already initialized")
	ErrInvalidAmount      = errors.New("vault: amount must be positive")
	ErrInvalidAsset       = errors.New("vault: asset not configured")
	ErrZeroAddress        = errors.New("vault: zero address")
	ErrInsufficientFunds  = errors.New("vault: insufficient balance")
	ErrTransferShortfall  = errors.New("vault: transfer moved no value")
	ErrReentry            = errors.New("vault: reentrant call")
	ErrUnauthorized       = errors.New("vault: unauthorized")
	ErrNoPendingOwner     = errors.New("vault: no ownership proposal pending")
	ErrNotPendingOwner    = errors.New("vault: caller is not the proposed owner")
	ErrNoAdapter          = errors.New("vault: no strategy adapter registered")
	ErrAdapterFailure     = errors.New("vault: strategy adapter call failed")
	ErrRateTooLarge       = errors.New("vault: emission rate exceeds cap")
)
