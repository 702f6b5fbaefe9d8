package events

import "math/big"

const (
	TypeVestingGrantCreated = "vesting.grant.created"
	TypeVestingGrantMerged  = "vesting.grant.merged"
	TypeVestingReleased     = "vesting.released"
)

// VestingGrantCreated records a fresh time-locked grant appended to an
// account's schedule.
type VestingGrantCreated struct {
	Account   [20]byte
	Asset     string
	Index     uint64
	StartTick uint64
	EndTick   uint64
	Quantity  *big.Int
}

func (VestingGrantCreated) EventType() string { return TypeVestingGrantCreated }

// VestingGrantMerged records a grant quantity folded into the tail grant with
// an identical window.
type VestingGrantMerged struct {
	Account  [20]byte
	Asset    string
	Index    uint64
	Added    *big.Int
	Quantity *big.Int
}

func (VestingGrantMerged) EventType() string { return TypeVestingGrantMerged }

// VestingReleased records unlocked quantity transferred out to the account.
type VestingReleased struct {
	Account [20]byte
	Asset   string
	Amount  *big.Int
}

func (VestingReleased) EventType() string { return TypeVestingReleased }
