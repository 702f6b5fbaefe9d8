package vault

import (
	"fmt"
	"math/big"

	"github.com/zhanglu0523/rifi-vault/events"
	nativecommon "github.com/zhanglu0523/rifi-vault/native/common"
)

const moduleName = "vault"

type engineState interface {
	GetPool() (*Pool, error)
	PutPool(pool *Pool) error
	GetVaultAccount(addr [20]byte) (*Account, error)
	PutVaultAccount(account *Account) error
	GetDividendPool(asset string) (*DividendPool, error)
	PutDividendPool(pool *DividendPool) error
	GetDividendAccount(asset string, addr [20]byte) (*DividendAccount, error)
	PutDividendAccount(account *DividendAccount) error
	GetAuthority() (*Authority, error)
	PutAuthority(auth *Authority) error
}

// Engine orchestrates the share, reward, and dividend accounting for a single
// deposit pool. Every mutating entry point settles both reward streams up to
// the present before touching shares or totals, and reaches out to the
// strategy adapter only after internal state reflects the post-mutation
// values.
type Engine struct {
	state   engineState
	ledger  TokenLedger
	vesting VestingSink
	adapter StrategyAdapter

	moduleAddress  [20]byte
	rewardTreasury [20]byte
	vestingAddress [20]byte

	tick            uint64
	pauses          nativecommon.PauseView
	emitter         events.Emitter
	roundingSubsidy bool
	maxRewardRate   *big.Int

	entered bool
}

// NewEngine constructs a vault engine bound to the module custody address,
// the treasury funding the emission schedule, and the vesting ledger custody
// address.
func NewEngine(moduleAddr, treasuryAddr, vestingAddr [20]byte) *Engine {
	return &Engine{
		moduleAddress:   moduleAddr,
		rewardTreasury:  treasuryAddr,
		vestingAddress:  vestingAddr,
		roundingSubsidy: true,
	}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetLedger wires the engine to asset custody.
func (e *Engine) SetLedger(ledger TokenLedger) { e.ledger = ledger }

// SetVestingSink wires the destination for settled emission amounts.
func (e *Engine) SetVestingSink(sink VestingSink) { e.vesting = sink }

func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

func (e *Engine) SetEmitter(emitter events.Emitter) {
	if e == nil {
		return
	}
	e.emitter = emitter
}

// SetCurrentTick records the tick used for emission and vesting schedules.
func (e *Engine) SetCurrentTick(tick uint64) {
	if e == nil {
		return
	}
	e.tick = tick
}

// SetRoundingSubsidy toggles the anti-dust extra share minted when a deposit
// would otherwise redeem below its nominal amount.
func (e *Engine) SetRoundingSubsidy(enabled bool) {
	if e == nil {
		return
	}
	e.roundingSubsidy = enabled
}

// SetMaxRewardRate caps the emission rate accepted by SetRewardPerTick. A nil
// cap disables the check.
func (e *Engine) SetMaxRewardRate(cap *big.Int) {
	if e == nil {
		return
	}
	if cap == nil {
		e.maxRewardRate = nil
		return
	}
	e.maxRewardRate = new(big.Int).Set(cap)
}

// BindAdapter wires the strategy adapter as part of process setup, without
// the ownership ceremony. RegisterAdapter is the runtime swap path.
func (e *Engine) BindAdapter(adapter StrategyAdapter) {
	if e == nil {
		return
	}
	e.adapter = adapter
}

// Adapter returns the active strategy adapter, if any.
func (e *Engine) Adapter() StrategyAdapter {
	if e == nil {
		return nil
	}
	return e.adapter
}

func (e *Engine) emit(ev events.Event) {
	if e.emitter != nil {
		e.emitter.Emit(ev)
	}
}

// enter acquires the engine's mutual-exclusion flag. The returned release
// function must run on every exit path.
func (e *Engine) enter() (func(), error) {
	if e.entered {
		return nil, ErrReentry
	}
	e.entered = true
	return func() { e.entered = false }, nil
}

// Initialize creates the pool record once. Subsequent calls fail.
func (e *Engine) Initialize(owner [20]byte, depositAsset, rewardAsset string, rewardPerTick *big.Int, bootstrapRate uint64) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if isZeroAddress(owner) {
		return ErrZeroAddress
	}
	if depositAsset == "" || rewardAsset == "" {
		return ErrInvalidAsset
	}
	existing, err := e.state.GetPool()
	if err != nil {
		return err
	}
	if existing != nil {
		return ErrAlreadyInitialized
	}
	if bootstrapRate == 0 {
		bootstrapRate = 1
	}
	pool := &Pool{
		DepositAsset:   depositAsset,
		RewardAsset:    rewardAsset,
		TotalDeposit:   big.NewInt(0),
		TotalShare:     big.NewInt(0),
		RewardIndex:    big.NewInt(0),
		LastRewardTick: e.tick,
		RewardPerTick:  copyBigInt(rewardPerTick),
		BootstrapRate:  bootstrapRate,
	}
	if err := e.state.PutPool(pool); err != nil {
		return err
	}
	return e.state.PutAuthority(&Authority{Owner: owner})
}

// Deposit settles both reward streams for the account, pulls the deposit in,
// and mints shares for the amount actually received. The minted share count
// is returned.
func (e *Engine) Deposit(caller [20]byte, amount *big.Int) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	if e.ledger == nil {
		return nil, ErrNilLedger
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if isZeroAddress(caller) {
		return nil, ErrZeroAddress
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	release, err := e.enter()
	if err != nil {
		return nil, err
	}
	defer release()

	pool, err := e.ensurePool()
	if err != nil {
		return nil, err
	}
	if err := e.refreshPoolBalance(pool); err != nil {
		return nil, err
	}
	e.refreshRewardIndex(pool)
	if err := e.accrueDividend(pool); err != nil {
		return nil, err
	}

	acct, err := e.ensureAccount(caller)
	if err != nil {
		return nil, err
	}
	if err := e.settleReward(pool, acct); err != nil {
		return nil, err
	}
	if err := e.settleDividend(pool, acct); err != nil {
		return nil, err
	}

	received, err := e.collect(pool.DepositAsset, caller, amount)
	if err != nil {
		return nil, err
	}
	if received.Sign() == 0 {
		return nil, ErrTransferShortfall
	}

	minted := amountToShare(pool, received)
	if e.roundingSubsidy {
		// When floor rounding would leave the deposit redeeming below its
		// nominal amount, mint one extra share. The gap is covered by the
		// pooled exchange rate.
		projected := &Pool{
			TotalDeposit: new(big.Int).Add(pool.TotalDeposit, received),
			TotalShare:   new(big.Int).Add(pool.TotalShare, minted),
		}
		if shareToAmount(projected, minted).Cmp(received) < 0 {
			minted = new(big.Int).Add(minted, big.NewInt(1))
		}
	}
	if minted.Sign() == 0 {
		// Only reachable with the subsidy off: the deposit is too small
		// for one share at the current exchange rate.
		return nil, ErrInvalidAmount
	}

	acct.Share = new(big.Int).Add(acct.Share, minted)
	acct.LastDepositTick = e.tick
	pool.TotalShare = new(big.Int).Add(pool.TotalShare, minted)
	pool.TotalDeposit = new(big.Int).Add(pool.TotalDeposit, received)

	if err := e.state.PutVaultAccount(acct); err != nil {
		return nil, err
	}
	if err := e.state.PutPool(pool); err != nil {
		return nil, err
	}

	if e.adapter != nil {
		if err := e.adapter.Supply(received); err != nil {
			return nil, fmt.Errorf("%w: supply: %v", ErrAdapterFailure, err)
		}
	}

	e.emit(events.VaultDeposited{Account: caller, Asset: pool.DepositAsset, Received: received, Shares: minted})
	return minted, nil
}

// Withdraw redeems the requested base-asset amount after settling both reward
// streams. Floor share conversion can leave one unit of share as dust; use
// WithdrawAll to clear a position exactly.
func (e *Engine) Withdraw(caller [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	return e.withdraw(caller, amount, false)
}

// WithdrawAll redeems the account's full redeemable amount and zeroes the
// share balance exactly, leaving no rounding residue.
func (e *Engine) WithdrawAll(caller [20]byte) error {
	return e.withdraw(caller, nil, true)
}

func (e *Engine) withdraw(caller [20]byte, amount *big.Int, all bool) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if e.ledger == nil {
		return ErrNilLedger
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if isZeroAddress(caller) {
		return ErrZeroAddress
	}
	release, err := e.enter()
	if err != nil {
		return err
	}
	defer release()

	pool, err := e.ensurePool()
	if err != nil {
		return err
	}
	if err := e.refreshPoolBalance(pool); err != nil {
		return err
	}
	e.refreshRewardIndex(pool)
	if err := e.accrueDividend(pool); err != nil {
		return err
	}

	acct, err := e.ensureAccount(caller)
	if err != nil {
		return err
	}
	if err := e.settleReward(pool, acct); err != nil {
		return err
	}
	if err := e.settleDividend(pool, acct); err != nil {
		return err
	}

	redeemable := shareToAmount(pool, acct.Share)
	var burned *big.Int
	if all {
		amount = redeemable
		burned = new(big.Int).Set(acct.Share)
	} else {
		if amount.Cmp(redeemable) > 0 {
			return ErrInsufficientFunds
		}
		burned = amountToShare(pool, amount)
		if burned.Cmp(acct.Share) > 0 {
			burned = new(big.Int).Set(acct.Share)
		}
	}

	acct.Share = new(big.Int).Sub(acct.Share, burned)
	pool.TotalShare = new(big.Int).Sub(pool.TotalShare, burned)
	pool.TotalDeposit = new(big.Int).Sub(pool.TotalDeposit, amount)
	if pool.TotalDeposit.Sign() < 0 {
		pool.TotalDeposit = big.NewInt(0)
	}

	if err := e.state.PutVaultAccount(acct); err != nil {
		return err
	}
	if err := e.state.PutPool(pool); err != nil {
		return err
	}

	if amount.Sign() > 0 {
		if e.adapter != nil {
			if err := e.adapter.Redeem(amount); err != nil {
				return fmt.Errorf("%w: redeem: %v", ErrAdapterFailure, err)
			}
		}
		if _, err := e.payout(pool.DepositAsset, caller, amount); err != nil {
			return err
		}
	}

	e.emit(events.VaultWithdrawn{Account: caller, Asset: pool.DepositAsset, Amount: amount, Shares: burned})
	return nil
}

// Harvest settles both reward streams for the caller and pays out as much of
// the unclaimed dividend balance as current holdings cover. The payout and
// the remaining shortfall are returned; a shortfall is not an error.
func (e *Engine) Harvest(caller [20]byte) (*big.Int, *big.Int, error) {
	if e == nil || e.state == nil {
		return nil, nil, ErrNilState
	}
	if e.ledger == nil {
		return nil, nil, ErrNilLedger
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, nil, err
	}
	if isZeroAddress(caller) {
		return nil, nil, ErrZeroAddress
	}
	release, err := e.enter()
	if err != nil {
		return nil, nil, err
	}
	defer release()

	pool, err := e.ensurePool()
	if err != nil {
		return nil, nil, err
	}
	if err := e.refreshPoolBalance(pool); err != nil {
		return nil, nil, err
	}
	e.refreshRewardIndex(pool)
	if err := e.accrueDividend(pool); err != nil {
		return nil, nil, err
	}

	acct, err := e.ensureAccount(caller)
	if err != nil {
		return nil, nil, err
	}
	if err := e.settleReward(pool, acct); err != nil {
		return nil, nil, err
	}
	if err := e.settleDividend(pool, acct); err != nil {
		return nil, nil, err
	}
	if err := e.state.PutVaultAccount(acct); err != nil {
		return nil, nil, err
	}
	if err := e.state.PutPool(pool); err != nil {
		return nil, nil, err
	}

	paid, shortfall, err := e.payDividend(acct)
	if err != nil {
		return nil, nil, err
	}
	return paid, shortfall, nil
}

// SetRewardPerTick updates the fixed emission rate. The reward index is
// refreshed first so the new rate applies only to ticks after this call.
func (e *Engine) SetRewardPerTick(caller [20]byte, rate *big.Int) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	if rate == nil || rate.Sign() < 0 {
		return ErrInvalidAmount
	}
	if e.maxRewardRate != nil && rate.Cmp(e.maxRewardRate) > 0 {
		return ErrRateTooLarge
	}
	release, err := e.enter()
	if err != nil {
		return err
	}
	defer release()

	pool, err := e.ensurePool()
	if err != nil {
		return err
	}
	e.refreshRewardIndex(pool)
	pool.RewardPerTick = new(big.Int).Set(rate)
	return e.state.PutPool(pool)
}

// RegisterAdapter activates a strategy adapter. Any dividend accrued by the
// outgoing adapter is folded into the index before the swap.
func (e *Engine) RegisterAdapter(caller [20]byte, adapter StrategyAdapter) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	release, err := e.enter()
	if err != nil {
		return err
	}
	defer release()

	pool, err := e.ensurePool()
	if err != nil {
		return err
	}
	if e.adapter != nil {
		e.refreshRewardIndex(pool)
		if err := e.accrueDividend(pool); err != nil {
			return err
		}
		if err := e.state.PutPool(pool); err != nil {
			return err
		}
	}
	e.adapter = adapter
	return nil
}

// PoolState returns a copy of the pool record.
func (e *Engine) PoolState() (*Pool, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	pool, err := e.ensurePool()
	if err != nil {
		return nil, err
	}
	clone := *pool
	clone.TotalDeposit = copyBigInt(pool.TotalDeposit)
	clone.TotalShare = copyBigInt(pool.TotalShare)
	clone.RewardIndex = copyBigInt(pool.RewardIndex)
	clone.RewardPerTick = copyBigInt(pool.RewardPerTick)
	return &clone, nil
}

// PositionOf reports the account's share, redeemable amount, and pending
// entitlements projected to the current tick. It does not mutate state.
func (e *Engine) PositionOf(addr [20]byte) (*Position, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	pool, err := e.ensurePool()
	if err != nil {
		return nil, err
	}
	acct, err := e.ensureAccount(addr)
	if err != nil {
		return nil, err
	}

	projected := *pool
	projected.RewardIndex = copyBigInt(pool.RewardIndex)
	e.refreshRewardIndex(&projected)

	pos := &Position{
		Share:             copyBigInt(acct.Share),
		Redeemable:        shareToAmount(pool, acct.Share),
		PendingReward:     entitlement(projected.RewardIndex, acct.RewardSnapshot, acct.Share),
		UnclaimedDividend: big.NewInt(0),
	}
	if e.adapter != nil {
		asset := e.adapter.DividendAsset()
		dp, err := e.ensureDividendPool(asset)
		if err != nil {
			return nil, err
		}
		da, err := e.ensureDividendAccount(asset, addr)
		if err != nil {
			return nil, err
		}
		pos.UnclaimedDividend = new(big.Int).Add(da.Unclaimed, entitlement(dp.Index, da.Snapshot, acct.Share))
	}
	return pos, nil
}

// refreshPoolBalance syncs TotalDeposit with the strategy-reported real
// balance so externally accrued interest is captured before any amount/share
// conversion.
func (e *Engine) refreshPoolBalance(pool *Pool) error {
	if e.adapter == nil {
		return nil
	}
	balance, err := e.adapter.UpdateBalance()
	if err != nil {
		return fmt.Errorf("%w: update balance: %v", ErrAdapterFailure, err)
	}
	if balance != nil && balance.Sign() >= 0 {
		pool.TotalDeposit = new(big.Int).Set(balance)
	}
	return nil
}

// refreshRewardIndex folds elapsed emission into the reward index. It must
// run before any mutation of TotalShare or RewardPerTick in the same
// operation; moving it later retroactively grants new depositors emission
// that accrued before they joined.
func (e *Engine) refreshRewardIndex(pool *Pool) {
	if e.tick <= pool.LastRewardTick {
		return
	}
	elapsed := e.tick - pool.LastRewardTick
	pool.LastRewardTick = e.tick
	if pool.TotalDeposit.Sign() == 0 || pool.TotalShare.Sign() == 0 {
		return
	}
	if pool.RewardPerTick.Sign() == 0 {
		return
	}
	emission := new(big.Int).Mul(new(big.Int).SetUint64(elapsed), pool.RewardPerTick)
	pool.RewardIndex = new(big.Int).Add(pool.RewardIndex, indexDelta(emission, pool.TotalShare))
}

// settleReward advances the account's snapshot and hands any pending
// emission to the vesting ledger. Reward tokens move from the treasury into
// vesting custody, measured by balance diff; the grant records what actually
// arrived.
func (e *Engine) settleReward(pool *Pool, acct *Account) error {
	pending := entitlement(pool.RewardIndex, acct.RewardSnapshot, acct.Share)
	acct.RewardSnapshot = copyBigInt(pool.RewardIndex)
	if pending.Sign() == 0 {
		return nil
	}
	granted, err := e.move(pool.RewardAsset, e.rewardTreasury, e.vestingAddress, pending)
	if err != nil {
		return err
	}
	if granted.Sign() == 0 {
		return nil
	}
	if e.vesting == nil {
		return ErrNilLedger
	}
	if err := e.vesting.Create(acct.Address, pool.RewardAsset, granted, e.tick); err != nil {
		return err
	}
	e.emit(events.VaultRewardSettled{Account: acct.Address, Asset: pool.RewardAsset, Amount: granted})
	return nil
}

// accrueDividend folds newly realized strategy dividends into the dividend
// index. New value is measured against the stored watermark of held plus
// reported-unclaimed balance, capturing both direct transfers and
// externally-tracked accruals exactly once.
func (e *Engine) accrueDividend(pool *Pool) error {
	if e.adapter == nil {
		return nil
	}
	asset := e.adapter.DividendAsset()
	dp, err := e.ensureDividendPool(asset)
	if err != nil {
		return err
	}
	if err := e.adapter.ClaimDividend(); err != nil {
		return fmt.Errorf("%w: claim dividend: %v", ErrAdapterFailure, err)
	}
	held, err := e.ledger.BalanceOf(asset, e.moduleAddress)
	if err != nil {
		return err
	}
	reported, err := e.adapter.ReportedUnclaimed()
	if err != nil {
		return fmt.Errorf("%w: reported unclaimed: %v", ErrAdapterFailure, err)
	}
	observed := new(big.Int).Add(held, copyBigInt(reported))

	newly := new(big.Int).Sub(observed, dp.LastObserved)
	if newly.Sign() < 0 {
		// Watermark drifted above holdings; resync without distributing.
		dp.LastObserved = observed
		return e.state.PutDividendPool(dp)
	}
	if newly.Sign() == 0 {
		return nil
	}
	if pool.TotalShare.Sign() == 0 {
		// No shares outstanding: hold the watermark so the value is
		// distributed once holders exist.
		return nil
	}
	dp.Index = new(big.Int).Add(dp.Index, indexDelta(newly, pool.TotalShare))
	dp.LastObserved = observed
	if err := e.state.PutDividendPool(dp); err != nil {
		return err
	}
	e.emit(events.VaultDividendAccrued{Asset: asset, Amount: newly})
	return nil
}

// settleDividend accumulates the account's dividend entitlement into its
// unclaimed balance. Dividend assets are not time-locked.
func (e *Engine) settleDividend(pool *Pool, acct *Account) error {
	if e.adapter == nil {
		return nil
	}
	asset := e.adapter.DividendAsset()
	dp, err := e.ensureDividendPool(asset)
	if err != nil {
		return err
	}
	da, err := e.ensureDividendAccount(asset, acct.Address)
	if err != nil {
		return err
	}
	owed := entitlement(dp.Index, da.Snapshot, acct.Share)
	da.Snapshot = copyBigInt(dp.Index)
	if owed.Sign() > 0 {
		da.Unclaimed = new(big.Int).Add(da.Unclaimed, owed)
	}
	return e.state.PutDividendAccount(da)
}

// payDividend pays min(unclaimed, held) and leaves any remainder tracked in
// the unclaimed balance. It never fails for lack of holdings.
func (e *Engine) payDividend(acct *Account) (*big.Int, *big.Int, error) {
	zero := big.NewInt(0)
	if e.adapter == nil {
		return zero, zero, nil
	}
	asset := e.adapter.DividendAsset()
	dp, err := e.ensureDividendPool(asset)
	if err != nil {
		return nil, nil, err
	}
	da, err := e.ensureDividendAccount(asset, acct.Address)
	if err != nil {
		return nil, nil, err
	}
	if da.Unclaimed.Sign() == 0 {
		return zero, zero, nil
	}
	held, err := e.ledger.BalanceOf(asset, e.moduleAddress)
	if err != nil {
		return nil, nil, err
	}
	paid := minBig(da.Unclaimed, held)
	if paid.Sign() > 0 {
		moved, err := e.payout(asset, acct.Address, paid)
		if err != nil {
			return nil, nil, err
		}
		da.Unclaimed = new(big.Int).Sub(da.Unclaimed, paid)
		dp.LastObserved = new(big.Int).Sub(dp.LastObserved, moved)
		if dp.LastObserved.Sign() < 0 {
			dp.LastObserved = big.NewInt(0)
		}
		if err := e.state.PutDividendAccount(da); err != nil {
			return nil, nil, err
		}
		if err := e.state.PutDividendPool(dp); err != nil {
			return nil, nil, err
		}
	}
	shortfall := copyBigInt(da.Unclaimed)
	e.emit(events.VaultDividendPaid{Account: acct.Address, Asset: asset, Paid: paid, Shortfall: shortfall})
	return paid, shortfall, nil
}

// collect pulls amount from the payer into module custody and returns what
// actually arrived.
func (e *Engine) collect(asset string, from [20]byte, amount *big.Int) (*big.Int, error) {
	before, err := e.ledger.BalanceOf(asset, e.moduleAddress)
	if err != nil {
		return nil, err
	}
	if err := e.ledger.Transfer(asset, from, e.moduleAddress, amount); err != nil {
		return nil, err
	}
	after, err := e.ledger.BalanceOf(asset, e.moduleAddress)
	if err != nil {
		return nil, err
	}
	received := new(big.Int).Sub(after, before)
	if received.Sign() < 0 {
		received = big.NewInt(0)
	}
	return received, nil
}

// payout transfers amount from module custody to the recipient, measured at
// the recipient.
func (e *Engine) payout(asset string, to [20]byte, amount *big.Int) (*big.Int, error) {
	return e.move(asset, e.moduleAddress, to, amount)
}

func (e *Engine) move(asset string, from, to [20]byte, amount *big.Int) (*big.Int, error) {
	before, err := e.ledger.BalanceOf(asset, to)
	if err != nil {
		return nil, err
	}
	if err := e.ledger.Transfer(asset, from, to, amount); err != nil {
		return nil, err
	}
	after, err := e.ledger.BalanceOf(asset, to)
	if err != nil {
		return nil, err
	}
	moved := new(big.Int).Sub(after, before)
	if moved.Sign() < 0 {
		moved = big.NewInt(0)
	}
	return moved, nil
}

func (e *Engine) ensurePool() (*Pool, error) {
	pool, err := e.state.GetPool()
	if err != nil {
		return nil, err
	}
	if pool == nil {
		return nil, ErrNotInitialized
	}
	if pool.TotalDeposit == nil {
		pool.TotalDeposit = big.NewInt(0)
	}
	if pool.TotalShare == nil {
		pool.TotalShare = big.NewInt(0)
	}
	if pool.RewardIndex == nil {
		pool.RewardIndex = big.NewInt(0)
	}
	if pool.RewardPerTick == nil {
		pool.RewardPerTick = big.NewInt(0)
	}
	return pool, nil
}

func (e *Engine) ensureAccount(addr [20]byte) (*Account, error) {
	acct, err := e.state.GetVaultAccount(addr)
	if err != nil {
		return nil, err
	}
	if acct == nil {
		acct = &Account{Address: addr}
	}
	if acct.Share == nil {
		acct.Share = big.NewInt(0)
	}
	if acct.RewardSnapshot == nil {
		acct.RewardSnapshot = big.NewInt(0)
	}
	return acct, nil
}

func (e *Engine) ensureDividendPool(asset string) (*DividendPool, error) {
	dp, err := e.state.GetDividendPool(asset)
	if err != nil {
		return nil, err
	}
	if dp == nil {
		dp = &DividendPool{Asset: asset}
	}
	if dp.Index == nil {
		dp.Index = big.NewInt(0)
	}
	if dp.LastObserved == nil {
		dp.LastObserved = big.NewInt(0)
	}
	return dp, nil
}

func (e *Engine) ensureDividendAccount(asset string, addr [20]byte) (*DividendAccount, error) {
	da, err := e.state.GetDividendAccount(asset, addr)
	if err != nil {
		return nil, err
	}
	if da == nil {
		da = &DividendAccount{Address: addr, Asset: asset}
	}
	if da.Snapshot == nil {
		da.Snapshot = big.NewInt(0)
	}
	if da.Unclaimed == nil {
		da.Unclaimed = big.NewInt(0)
	}
	return da, nil
}

func isZeroAddress(addr [20]byte) bool {
	return addr == [20]byte{}
}
