package vesting

import "math/big"

// Grant is one time-locked reward entry. Quantity unlocks linearly between
// StartTick and EndTick; Vested tracks how much has already been released.
// Grants are append-only apart from the tail merge in Create, and a fully
// vested grant persists for audit.
type Grant struct {
	StartTick uint64
	EndTick   uint64
	Quantity  *big.Int
	Vested    *big.Int
}

// Remaining returns the still-locked portion of the grant.
func (g *Grant) Remaining() *big.Int {
	if g == nil || g.Quantity == nil {
		return big.NewInt(0)
	}
	rest := new(big.Int).Sub(g.Quantity, g.Vested)
	if rest.Sign() < 0 {
		return big.NewInt(0)
	}
	return rest
}

// Completed reports whether the grant's window has fully elapsed.
func (g *Grant) Completed(now uint64) bool {
	return g != nil && now >= g.EndTick
}

// Schedule is the ordered grant list for one (account, asset) pair.
type Schedule struct {
	Address [20]byte
	Asset   string
	Grants  []*Grant
}

// Totals caches the escrowed (still locked) and vested (released) aggregates
// for one (account, asset) pair. It is kept incrementally consistent with the
// grant list on every mutation.
type Totals struct {
	Escrowed *big.Int
	Vested   *big.Int
}

func copyBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
