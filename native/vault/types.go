package vault

import "math/big"

// Pool captures the global accounting state for a deposit vault. Amount values
// are expressed as big integers to keep full on-ledger precision.
type Pool struct {
	// DepositAsset is the base asset accepted by the vault.
	DepositAsset string
	// RewardAsset is the asset the fixed-rate emission schedule pays in.
	RewardAsset string
	// TotalDeposit is the aggregate base-asset amount the pool accounts for,
	// including yield reported by an active strategy.
	TotalDeposit *big.Int
	// TotalShare is the outstanding share supply across all accounts.
	TotalShare *big.Int
	// RewardIndex is the cumulative reward-per-share index, scaled by 1e18.
	RewardIndex *big.Int
	// LastRewardTick records when the reward index was last refreshed.
	LastRewardTick uint64
	// RewardPerTick is the fixed emission rate feeding the reward index.
	RewardPerTick *big.Int
	// BootstrapRate is the shares minted per amount unit while the pool is
	// empty. It absorbs early rounding and is fixed at initialization.
	BootstrapRate uint64
}

// Account maintains the vault position for a single participant. Records are
// created lazily on first deposit and never deleted.
type Account struct {
	Address [20]byte
	// Share is the account's claim on the pool.
	Share *big.Int
	// RewardSnapshot is the reward index observed at the account's last
	// settlement. Pending emission is the delta against the current index.
	RewardSnapshot *big.Int
	// LastDepositTick records the most recent deposit.
	LastDepositTick uint64
}

// DividendPool tracks the index state for one externally-sourced reward asset.
type DividendPool struct {
	Asset string
	// Index is the cumulative dividend-per-share index, scaled by 1e18.
	Index *big.Int
	// LastObserved is the watermark of held plus adapter-reported dividend
	// value at the previous accrual or payout. New value is measured against
	// it so direct transfers and reported-but-unclaimed accruals both count
	// exactly once.
	LastObserved *big.Int
}

// DividendAccount holds an account's view of one dividend asset.
type DividendAccount struct {
	Address [20]byte
	Asset   string
	// Snapshot is the dividend index at the last settlement.
	Snapshot *big.Int
	// Unclaimed is entitlement already computed but not yet paid out. It is
	// the explicit "owed" marker: payouts reduce it, shortfalls leave the
	// remainder in place.
	Unclaimed *big.Int
}

// Authority is the two-phase ownership record gating administrative
// mutations.
type Authority struct {
	Owner        [20]byte
	PendingOwner [20]byte
}

// HandoverState describes where an ownership transfer currently stands.
type HandoverState uint8

const (
	HandoverIdle HandoverState = iota
	HandoverProposed
	HandoverCommitted
)

func (s HandoverState) String() string {
	switch s {
	case HandoverIdle:
		return "idle"
	case HandoverProposed:
		return "proposed"
	case HandoverCommitted:
		return "committed"
	default:
		return "unknown"
	}
}

// Position is the query view of an account's standing in the pool.
type Position struct {
	Share             *big.Int
	Redeemable        *big.Int
	PendingReward     *big.Int
	UnclaimedDividend *big.Int
}

func copyBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
