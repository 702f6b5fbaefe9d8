package vault

import "math/big"

// indexScale is the fixed-point scale applied to reward and dividend indices.
var indexScale = big.NewInt(1_000_000_000_000_000_000)

// IndexUnit returns the scaling factor applied to the vault indices.
func IndexUnit() *big.Int {
	return new(big.Int).Set(indexScale)
}

// amountToShare converts a base-asset amount to shares at the pool's current
// exchange rate. While the pool is empty the bootstrap rate applies. Division
// floors, so conversion never over-mints.
func amountToShare(pool *Pool, amount *big.Int) *big.Int {
	if amount == nil || amount.Sign() <= 0 {
		return big.NewInt(0)
	}
	if pool.TotalDeposit.Sign() == 0 || pool.TotalShare.Sign() == 0 {
		rate := new(big.Int).SetUint64(pool.BootstrapRate)
		if rate.Sign() == 0 {
			rate = big.NewInt(1)
		}
		return new(big.Int).Mul(amount, rate)
	}
	share := new(big.Int).Mul(pool.TotalShare, amount)
	return share.Quo(share, pool.TotalDeposit)
}

// shareToAmount converts shares back to the base-asset amount they redeem
// for. A zero share supply yields zero rather than faulting on division.
func shareToAmount(pool *Pool, share *big.Int) *big.Int {
	if share == nil || share.Sign() <= 0 {
		return big.NewInt(0)
	}
	if pool.TotalShare.Sign() == 0 {
		return big.NewInt(0)
	}
	amount := new(big.Int).Mul(pool.TotalDeposit, share)
	return amount.Quo(amount, pool.TotalShare)
}

// indexDelta computes the scaled per-share increment for distributing amount
// across totalShare holders. Returns zero when there is nothing to divide by.
func indexDelta(amount, totalShare *big.Int) *big.Int {
	if amount == nil || amount.Sign() <= 0 || totalShare == nil || totalShare.Sign() == 0 {
		return big.NewInt(0)
	}
	delta := new(big.Int).Mul(amount, indexScale)
	return delta.Quo(delta, totalShare)
}

// entitlement settles the amount owed for share units between two index
// observations.
func entitlement(currentIndex, snapshot, share *big.Int) *big.Int {
	if share == nil || share.Sign() == 0 {
		return big.NewInt(0)
	}
	diff := new(big.Int).Sub(currentIndex, snapshot)
	if diff.Sign() <= 0 {
		return big.NewInt(0)
	}
	owed := diff.Mul(diff, share)
	return owed.Quo(owed, indexScale)
}

func minBig(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}
