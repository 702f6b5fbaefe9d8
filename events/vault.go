package events

import "math/big"

const (
	TypeVaultDeposited      = "vault.deposited"
	TypeVaultWithdrawn      = "vault.withdrawn"
	TypeVaultRewardSettled  = "vault.reward.settled"
	TypeVaultDividendAccrue = "vault.dividend.accrued"
	TypeVaultDividendPaid   = "vault.dividend.paid"
	TypeVaultOwnerProposed  = "vault.owner.proposed"
	TypeVaultOwnerAccepted  = "vault.owner.accepted"
)

// VaultDeposited records a completed deposit, including the amount actually
// received after any transfer fees and the shares minted for it.
type VaultDeposited struct {
	Account  [20]byte
	Asset    string
	Received *big.Int
	Shares   *big.Int
}

func (VaultDeposited) EventType() string { return TypeVaultDeposited }

// VaultWithdrawn records a completed withdrawal and the shares burned for it.
type VaultWithdrawn struct {
	Account [20]byte
	Asset   string
	Amount  *big.Int
	Shares  *big.Int
}

func (VaultWithdrawn) EventType() string { return TypeVaultWithdrawn }

// VaultRewardSettled records a pending emission amount handed to the vesting
// ledger on behalf of an account.
type VaultRewardSettled struct {
	Account [20]byte
	Asset   string
	Amount  *big.Int
}

func (VaultRewardSettled) EventType() string { return TypeVaultRewardSettled }

// VaultDividendAccrued records newly realized dividend value folded into the
// dividend index.
type VaultDividendAccrued struct {
	Asset  string
	Amount *big.Int
}

func (VaultDividendAccrued) EventType() string { return TypeVaultDividendAccrue }

// VaultDividendPaid records a dividend payout. Shortfall is the portion of the
// account's entitlement that could not be covered by current holdings and
// remains tracked as unclaimed.
type VaultDividendPaid struct {
	Account   [20]byte
	Asset     string
	Paid      *big.Int
	Shortfall *big.Int
}

func (VaultDividendPaid) EventType() string { return TypeVaultDividendPaid }

// VaultOwnerProposed records the first half of an ownership handover.
type VaultOwnerProposed struct {
	Owner    [20]byte
	Proposed [20]byte
}

func (VaultOwnerProposed) EventType() string { return TypeVaultOwnerProposed }

// VaultOwnerAccepted records a completed ownership handover.
type VaultOwnerAccepted struct {
	Previous [20]byte
	Owner    [20]byte
}

func (VaultOwnerAccepted) EventType() string { return TypeVaultOwnerAccepted }
