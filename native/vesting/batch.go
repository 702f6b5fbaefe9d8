package vesting

import (
	"math/big"

	nativecommon "github.com/zhanglu0523/rifi-vault/native/common"
)

// Batch operations compose the release primitive over computed index sets.
// Unlike VestAtIndices they tolerate an empty selection and return zero.

// VestCompleted releases every grant whose window has fully elapsed.
func (l *Ledger) VestCompleted(account [20]byte, asset string) (*big.Int, error) {
	return l.vestSelected(account, asset, func(g *Grant) bool {
		return g.Completed(l.tick) && g.Remaining().Sign() > 0
	})
}

// VestAll releases the unlocked portion of every grant with anything
// currently vestable.
func (l *Ledger) VestAll(account [20]byte, asset string) (*big.Int, error) {
	return l.vestSelected(account, asset, func(g *Grant) bool {
		return Vestable(g, l.tick).Sign() > 0
	})
}

// VestRange releases grants in the half-open index range [from, to). An empty
// range is a no-op; a range reaching past the schedule is rejected.
func (l *Ledger) VestRange(account [20]byte, asset string, from, to uint64) (*big.Int, error) {
	if l == nil || l.state == nil {
		return nil, ErrNilState
	}
	if err := nativecommon.Guard(l.pauses, moduleName); err != nil {
		return nil, err
	}
	release, err := l.enter()
	if err != nil {
		return nil, err
	}
	defer release()

	schedule, err := l.ensureSchedule(account, asset)
	if err != nil {
		return nil, err
	}
	if to > uint64(len(schedule.Grants)) {
		return nil, ErrInvalidIndex
	}
	if from >= to {
		return big.NewInt(0), nil
	}
	indices := make([]uint64, 0, to-from)
	for idx := from; idx < to; idx++ {
		indices = append(indices, idx)
	}
	return l.vestIndices(account, asset, indices)
}

// VestAssets releases everything vestable across the given assets. A nil
// asset list covers every asset the account holds grants for. The per-asset
// released amounts are returned; assets with nothing vestable are omitted.
func (l *Ledger) VestAssets(account [20]byte, assets []string) (map[string]*big.Int, error) {
	if l == nil || l.state == nil {
		return nil, ErrNilState
	}
	if err := nativecommon.Guard(l.pauses, moduleName); err != nil {
		return nil, err
	}
	release, err := l.enter()
	if err != nil {
		return nil, err
	}
	defer release()

	if assets == nil {
		assets, err = l.state.ListVestingAssets(account)
		if err != nil {
			return nil, err
		}
	}
	out := make(map[string]*big.Int)
	for _, asset := range assets {
		total, err := l.selectAndVest(account, asset, func(g *Grant) bool {
			return Vestable(g, l.tick).Sign() > 0
		})
		if err != nil {
			return nil, err
		}
		if total.Sign() > 0 {
			out[asset] = total
		}
	}
	return out, nil
}

func (l *Ledger) vestSelected(account [20]byte, asset string, match func(*Grant) bool) (*big.Int, error) {
	if l == nil || l.state == nil {
		return nil, ErrNilState
	}
	if err := nativecommon.Guard(l.pauses, moduleName); err != nil {
		return nil, err
	}
	release, err := l.enter()
	if err != nil {
		return nil, err
	}
	defer release()
	return l.selectAndVest(account, asset, match)
}

func (l *Ledger) selectAndVest(account [20]byte, asset string, match func(*Grant) bool) (*big.Int, error) {
	schedule, err := l.ensureSchedule(account, asset)
	if err != nil {
		return nil, err
	}
	var indices []uint64
	for idx, grant := range schedule.Grants {
		if match(grant) {
			indices = append(indices, uint64(idx))
		}
	}
	if len(indices) == 0 {
		return big.NewInt(0), nil
	}
	return l.vestIndices(account, asset, indices)
}
