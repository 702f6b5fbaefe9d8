package vault

import "math/big"

// StrategyAdapter integrates one external capital-deploying strategy. One
// implementation exists per integrated protocol; the engine selects the
// active one at registration time. Supply and Redeem must surface any error
// reported by the external protocol so the enclosing operation aborts.
type StrategyAdapter interface {
	// UpdateBalance reports the real base-asset balance the strategy holds on
	// behalf of the pool, including externally accrued interest. Engines call
	// it before any amount/share conversion.
	UpdateBalance() (*big.Int, error)
	// Supply deploys pooled base-asset capital into the strategy.
	Supply(amount *big.Int) error
	// Redeem pulls base-asset capital back out of the strategy.
	Redeem(amount *big.Int) error
	// ClaimDividend realizes any pending native-reward entitlement, moving it
	// into the distributor's holdings.
	ClaimDividend() error
	// ReportedUnclaimed returns the accrued-but-unclaimed dividend amount the
	// external protocol tracks for the pool.
	ReportedUnclaimed() (*big.Int, error)
	// DividendAsset names the strategy's native reward asset.
	DividendAsset() string
}

// TokenLedger abstracts asset custody. Transfer amounts are never trusted at
// face value: engines measure actual movement via before/after BalanceOf
// diffs, which tolerates fee-charging assets.
type TokenLedger interface {
	BalanceOf(asset string, holder [20]byte) (*big.Int, error)
	Transfer(asset string, from, to [20]byte, amount *big.Int) error
}

// VestingSink receives settled emission amounts for time-locked release.
type VestingSink interface {
	Create(account [20]byte, asset string, quantity *big.Int, startTick uint64) error
}
