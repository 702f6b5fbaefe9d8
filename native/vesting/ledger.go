package vesting

import (
	"math/big"

	"github.com/holiman/uint256"

	"github.com/zhanglu0523/rifi-vault/events"
	nativecommon "github.com/zhanglu0523/rifi-vault/native/common"
)

const moduleName = "vesting"

type ledgerState interface {
	GetSchedule(addr [20]byte, asset string) (*Schedule, error)
	PutSchedule(schedule *Schedule) error
	GetVestedTotals(addr [20]byte, asset string) (*Totals, error)
	PutVestedTotals(addr [20]byte, asset string, totals *Totals) error
	GetVestingDuration(asset string) (uint64, error)
	PutVestingDuration(asset string, ticks uint64) error
	ListVestingAssets(addr [20]byte) ([]string, error)
}

// TokenLedger is the asset custody surface the vesting ledger pays out from.
type TokenLedger interface {
	BalanceOf(asset string, holder [20]byte) (*big.Int, error)
	Transfer(asset string, from, to [20]byte, amount *big.Int) error
}

// AdminGate authorizes administrative mutations such as duration changes.
type AdminGate interface {
	IsAuthorized(caller [20]byte) bool
}

// Ledger records, merges, and linearly unlocks time-locked reward grants per
// (account, asset) pair.
type Ledger struct {
	state         ledgerState
	token         TokenLedger
	gate          AdminGate
	moduleAddress [20]byte

	tick    uint64
	pauses  nativecommon.PauseView
	emitter events.Emitter

	entered bool
}

// NewLedger constructs a vesting ledger paying out of the supplied custody
// address.
func NewLedger(moduleAddr [20]byte) *Ledger {
	return &Ledger{moduleAddress: moduleAddr}
}

// SetState wires the ledger to the external persistence layer.
func (l *Ledger) SetState(state ledgerState) { l.state = state }

// SetToken wires the ledger to asset custody.
func (l *Ledger) SetToken(token TokenLedger) { l.token = token }

// SetGate wires the authority consulted for administrative mutations.
func (l *Ledger) SetGate(gate AdminGate) { l.gate = gate }

func (l *Ledger) SetPauses(p nativecommon.PauseView) {
	if l == nil {
		return
	}
	l.pauses = p
}

func (l *Ledger) SetEmitter(emitter events.Emitter) {
	if l == nil {
		return
	}
	l.emitter = emitter
}

// SetCurrentTick records the tick vesting progress is evaluated against.
func (l *Ledger) SetCurrentTick(tick uint64) {
	if l == nil {
		return
	}
	l.tick = tick
}

func (l *Ledger) emit(ev events.Event) {
	if l.emitter != nil {
		l.emitter.Emit(ev)
	}
}

func (l *Ledger) enter() (func(), error) {
	if l.entered {
		return nil, ErrReentry
	}
	l.entered = true
	return func() { l.entered = false }, nil
}

// SetDuration configures the vesting window applied to future grants of the
// asset. Existing grants keep the window fixed at their creation.
func (l *Ledger) SetDuration(caller [20]byte, asset string, ticks uint64) error {
	if l == nil || l.state == nil {
		return ErrNilState
	}
	if l.gate == nil || !l.gate.IsAuthorized(caller) {
		return ErrUnauthorized
	}
	return l.state.PutVestingDuration(asset, ticks)
}

// Duration returns the configured vesting window for the asset.
func (l *Ledger) Duration(asset string) (uint64, error) {
	if l == nil || l.state == nil {
		return 0, ErrNilState
	}
	return l.state.GetVestingDuration(asset)
}

// Create records a new time-locked grant. When the tail grant carries an
// identical window the quantity folds into it instead of appending. The
// quantity accumulator is width-bounded: an overflow aborts the whole call.
func (l *Ledger) Create(account [20]byte, asset string, quantity *big.Int, startTick uint64) error {
	if l == nil || l.state == nil {
		return ErrNilState
	}
	if err := nativecommon.Guard(l.pauses, moduleName); err != nil {
		return err
	}
	if account == ([20]byte{}) || asset == "" {
		return ErrInvalidGrant
	}
	if quantity == nil || quantity.Sign() <= 0 {
		return ErrInvalidGrant
	}
	if err := checkWidth(quantity); err != nil {
		return err
	}

	duration, err := l.state.GetVestingDuration(asset)
	if err != nil {
		return err
	}
	endTick := startTick + duration
	if endTick < startTick {
		return ErrOverflow
	}

	schedule, err := l.ensureSchedule(account, asset)
	if err != nil {
		return err
	}
	totals, err := l.ensureTotals(account, asset)
	if err != nil {
		return err
	}

	escrowed := new(big.Int).Add(totals.Escrowed, quantity)
	if err := checkWidth(escrowed); err != nil {
		return err
	}

	var tail *Grant
	if n := len(schedule.Grants); n > 0 {
		tail = schedule.Grants[n-1]
	}
	if tail != nil && tail.StartTick == startTick && tail.EndTick == endTick {
		merged := new(big.Int).Add(tail.Quantity, quantity)
		if err := checkWidth(merged); err != nil {
			return err
		}
		tail.Quantity = merged
		l.emit(events.VestingGrantMerged{
			Account:  account,
			Asset:    asset,
			Index:    uint64(len(schedule.Grants) - 1),
			Added:    copyBigInt(quantity),
			Quantity: copyBigInt(merged),
		})
	} else {
		schedule.Grants = append(schedule.Grants, &Grant{
			StartTick: startTick,
			EndTick:   endTick,
			Quantity:  copyBigInt(quantity),
			Vested:    big.NewInt(0),
		})
		l.emit(events.VestingGrantCreated{
			Account:   account,
			Asset:     asset,
			Index:     uint64(len(schedule.Grants) - 1),
			StartTick: startTick,
			EndTick:   endTick,
			Quantity:  copyBigInt(quantity),
		})
	}

	totals.Escrowed = escrowed
	if err := l.state.PutSchedule(schedule); err != nil {
		return err
	}
	return l.state.PutVestedTotals(account, asset, totals)
}

// Vestable returns the amount the grant has unlocked but not yet released at
// the given tick. Floor division means it can transiently report zero even
// after time has elapsed; it never over-pays.
func Vestable(g *Grant, now uint64) *big.Int {
	if g == nil || g.Quantity == nil {
		return big.NewInt(0)
	}
	if now >= g.EndTick {
		return g.Remaining()
	}
	if now <= g.StartTick {
		return big.NewInt(0)
	}
	elapsed := new(big.Int).SetUint64(now - g.StartTick)
	window := new(big.Int).SetUint64(g.EndTick - g.StartTick)
	unlocked := new(big.Int).Mul(elapsed, g.Quantity)
	unlocked.Quo(unlocked, window)
	out := unlocked.Sub(unlocked, g.Vested)
	if out.Sign() < 0 {
		return big.NewInt(0)
	}
	return out
}

// VestAtIndices releases the unlocked portion of the selected grants and
// transfers the total out to the account. A zero-total result is rejected;
// use the batch variants for empty-tolerant composition.
func (l *Ledger) VestAtIndices(account [20]byte, asset string, indices []uint64) (*big.Int, error) {
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
	total, err := l.vestIndices(account, asset, indices)
	if err != nil {
		return nil, err
	}
	if total.Sign() == 0 {
		return nil, ErrNoOpVesting
	}
	return total, nil
}

// vestIndices is the release primitive shared by VestAtIndices and the batch
// variants. It validates every index before releasing anything, accumulates
// the vestable amounts, moves the total from escrowed to vested, and pays it
// out. A zero total is returned without error.
func (l *Ledger) vestIndices(account [20]byte, asset string, indices []uint64) (*big.Int, error) {
	schedule, err := l.ensureSchedule(account, asset)
	if err != nil {
		return nil, err
	}
	for _, idx := range indices {
		if idx >= uint64(len(schedule.Grants)) {
			return nil, ErrInvalidIndex
		}
	}

	total := big.NewInt(0)
	for _, idx := range indices {
		grant := schedule.Grants[idx]
		amount := Vestable(grant, l.tick)
		if amount.Sign() == 0 {
			continue
		}
		grant.Vested = new(big.Int).Add(grant.Vested, amount)
		total.Add(total, amount)
	}
	if total.Sign() == 0 {
		return total, nil
	}

	totals, err := l.ensureTotals(account, asset)
	if err != nil {
		return nil, err
	}
	totals.Escrowed = new(big.Int).Sub(totals.Escrowed, total)
	if totals.Escrowed.Sign() < 0 {
		totals.Escrowed = big.NewInt(0)
	}
	totals.Vested = new(big.Int).Add(totals.Vested, total)

	if err := l.state.PutSchedule(schedule); err != nil {
		return nil, err
	}
	if err := l.state.PutVestedTotals(account, asset, totals); err != nil {
		return nil, err
	}

	if l.token == nil {
		return nil, ErrNilLedger
	}
	if err := l.token.Transfer(asset, l.moduleAddress, account, total); err != nil {
		return nil, err
	}
	l.emit(events.VestingReleased{Account: account, Asset: asset, Amount: copyBigInt(total)})
	return total, nil
}

// ScheduleOf returns a copy of the account's grant list for the asset.
func (l *Ledger) ScheduleOf(account [20]byte, asset string) (*Schedule, error) {
	if l == nil || l.state == nil {
		return nil, ErrNilState
	}
	schedule, err := l.ensureSchedule(account, asset)
	if err != nil {
		return nil, err
	}
	clone := &Schedule{Address: schedule.Address, Asset: schedule.Asset}
	for _, g := range schedule.Grants {
		clone.Grants = append(clone.Grants, &Grant{
			StartTick: g.StartTick,
			EndTick:   g.EndTick,
			Quantity:  copyBigInt(g.Quantity),
			Vested:    copyBigInt(g.Vested),
		})
	}
	return clone, nil
}

// TotalsOf returns the cached escrowed/vested aggregates for the pair.
func (l *Ledger) TotalsOf(account [20]byte, asset string) (*Totals, error) {
	if l == nil || l.state == nil {
		return nil, ErrNilState
	}
	totals, err := l.ensureTotals(account, asset)
	if err != nil {
		return nil, err
	}
	return &Totals{Escrowed: copyBigInt(totals.Escrowed), Vested: copyBigInt(totals.Vested)}, nil
}

func (l *Ledger) ensureSchedule(account [20]byte, asset string) (*Schedule, error) {
	schedule, err := l.state.GetSchedule(account, asset)
	if err != nil {
		return nil, err
	}
	if schedule == nil {
		schedule = &Schedule{Address: account, Asset: asset}
	}
	for _, g := range schedule.Grants {
		if g.Quantity == nil {
			g.Quantity = big.NewInt(0)
		}
		if g.Vested == nil {
			g.Vested = big.NewInt(0)
		}
	}
	return schedule, nil
}

func (l *Ledger) ensureTotals(account [20]byte, asset string) (*Totals, error) {
	totals, err := l.state.GetVestedTotals(account, asset)
	if err != nil {
		return nil, err
	}
	if totals == nil {
		totals = &Totals{}
	}
	if totals.Escrowed == nil {
		totals.Escrowed = big.NewInt(0)
	}
	if totals.Vested == nil {
		totals.Vested = big.NewInt(0)
	}
	return totals, nil
}

// checkWidth bounds quantity accumulators to 256 bits so merges fail loudly
// instead of wrapping.
func checkWidth(v *big.Int) error {
	if v.Sign() < 0 {
		return ErrOverflow
	}
	if _, overflow := uint256.FromBig(v); overflow {
		return ErrOverflow
	}
	return nil
}
