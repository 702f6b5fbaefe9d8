package vault

import (
	"errors"
	"math/big"
	"testing"

	nativecommon "github.com/zhanglu0523/rifi-vault/native/common"
)

type mockEngineState struct {
	pool      *Pool
	accounts  map[[20]byte]*Account
	divPools  map[string]*DividendPool
	divAccts  map[string]*DividendAccount
	authority *Authority
}

func newMockEngineState() *mockEngineState {
	return &mockEngineState{
		accounts: make(map[[20]byte]*Account),
		divPools: make(map[string]*DividendPool),
		divAccts: make(map[string]*DividendAccount),
	}
}

func (m *mockEngineState) GetPool() (*Pool, error)     { return m.pool, nil }
func (m *mockEngineState) PutPool(pool *Pool) error    { m.pool = pool; return nil }
func (m *mockEngineState) GetAuthority() (*Authority, error) {
	return m.authority, nil
}
func (m *mockEngineState) PutAuthority(auth *Authority) error {
	m.authority = auth
	return nil
}

func (m *mockEngineState) GetVaultAccount(addr [20]byte) (*Account, error) {
	return m.accounts[addr], nil
}

func (m *mockEngineState) PutVaultAccount(account *Account) error {
	m.accounts[account.Address] = account
	return nil
}

func (m *mockEngineState) GetDividendPool(asset string) (*DividendPool, error) {
	return m.divPools[asset], nil
}

func (m *mockEngineState) PutDividendPool(pool *DividendPool) error {
	m.divPools[pool.Asset] = pool
	return nil
}

func (m *mockEngineState) GetDividendAccount(asset string, addr [20]byte) (*DividendAccount, error) {
	return m.divAccts[asset+string(addr[:])], nil
}

func (m *mockEngineState) PutDividendAccount(account *DividendAccount) error {
	m.divAccts[account.Asset+string(account.Address[:])] = account
	return nil
}

// mockLedger is an in-memory token ledger. feeBps charges a transfer fee so
// deposits can exercise the before/after measurement.
type mockLedger struct {
	balances map[string]*big.Int
	feeBps   uint64
}

func newMockLedger() *mockLedger {
	return &mockLedger{balances: make(map[string]*big.Int)}
}

func (m *mockLedger) key(asset string, holder [20]byte) string {
	return asset + string(holder[:])
}

func (m *mockLedger) balance(asset string, holder [20]byte) *big.Int {
	if b, ok := m.balances[m.key(asset, holder)]; ok {
		return b
	}
	return big.NewInt(0)
}

func (m *mockLedger) mint(asset string, to [20]byte, amount int64) {
	m.balances[m.key(asset, to)] = new(big.Int).Add(m.balance(asset, to), big.NewInt(amount))
}

func (m *mockLedger) BalanceOf(asset string, holder [20]byte) (*big.Int, error) {
	return new(big.Int).Set(m.balance(asset, holder)), nil
}

func (m *mockLedger) Transfer(asset string, from, to [20]byte, amount *big.Int) error {
	source := m.balance(asset, from)
	if source.Cmp(amount) < 0 {
		return errors.New("mock ledger: insufficient balance")
	}
	delivered := new(big.Int).Set(amount)
	if m.feeBps > 0 {
		fee := new(big.Int).Mul(amount, new(big.Int).SetUint64(m.feeBps))
		fee.Quo(fee, big.NewInt(10_000))
		delivered.Sub(delivered, fee)
	}
	m.balances[m.key(asset, from)] = new(big.Int).Sub(source, amount)
	m.balances[m.key(asset, to)] = new(big.Int).Add(m.balance(asset, to), delivered)
	return nil
}

// mockSink records vesting grants handed over by reward settlement.
type mockSink struct {
	grants []sinkGrant
}

type sinkGrant struct {
	account  [20]byte
	asset    string
	quantity *big.Int
	start    uint64
}

func (m *mockSink) Create(account [20]byte, asset string, quantity *big.Int, startTick uint64) error {
	m.grants = append(m.grants, sinkGrant{account: account, asset: asset, quantity: new(big.Int).Set(quantity), start: startTick})
	return nil
}

func (m *mockSink) totalFor(account [20]byte) *big.Int {
	total := big.NewInt(0)
	for _, g := range m.grants {
		if g.account == account {
			total.Add(total, g.quantity)
		}
	}
	return total
}

func addr(suffix byte) [20]byte {
	var a [20]byte
	a[19] = suffix
	return a
}

const (
	depositAsset  = "rusd"
	rewardAsset   = "rifi"
	dividendAsset = "comp"
)

var (
	moduleAddr   = addr(0xA0)
	treasuryAddr = addr(0xA1)
	vestingAddr  = addr(0xA2)
	ownerAddr    = addr(0x01)
	userA        = addr(0x0A)
	userB        = addr(0x0B)
)

func newTestEngine(t *testing.T) (*Engine, *mockEngineState, *mockLedger, *mockSink) {
	t.Helper()
	engine := NewEngine(moduleAddr, treasuryAddr, vestingAddr)
	state := newMockEngineState()
	ledger := newMockLedger()
	sink := &mockSink{}
	engine.SetState(state)
	engine.SetLedger(ledger)
	engine.SetVestingSink(sink)
	ledger.mint(rewardAsset, treasuryAddr, 1_000_000)
	if err := engine.Initialize(ownerAddr, depositAsset, rewardAsset, big.NewInt(10), 1); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	return engine, state, ledger, sink
}

func TestInitializeIsGuarded(t *testing.T) {
	engine, _, _, _ := newTestEngine(t)
	err := engine.Initialize(ownerAddr, depositAsset, rewardAsset, big.NewInt(10), 1)
	if !errors.Is(err, ErrAlreadyInitialized) {
		t.Fatalf("expected ErrAlreadyInitialized, got %v", err)
	}
}

func TestDepositMintsBootstrapShares(t *testing.T) {
	engine, state, ledger, _ := newTestEngine(t)
	ledger.mint(depositAsset, userA, 5_000)

	minted, err := engine.Deposit(userA, big.NewInt(1000))
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if minted.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("expected 1000 shares, got %s", minted)
	}
	if state.pool.TotalDeposit.Cmp(big.NewInt(1000)) != 0 || state.pool.TotalShare.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("unexpected totals: deposit=%s share=%s", state.pool.TotalDeposit, state.pool.TotalShare)
	}
}

func TestDepositCreditsOnlyReceivedAmount(t *testing.T) {
	engine, state, ledger, _ := newTestEngine(t)
	ledger.feeBps = 100 // 1% transfer fee
	ledger.mint(depositAsset, userA, 5_000)

	minted, err := engine.Deposit(userA, big.NewInt(1000))
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if minted.Cmp(big.NewInt(990)) != 0 {
		t.Fatalf("expected shares for received 990, got %s", minted)
	}
	if state.pool.TotalDeposit.Cmp(big.NewInt(990)) != 0 {
		t.Fatalf("expected total deposit 990, got %s", state.pool.TotalDeposit)
	}
}

func TestEmissionNotRetroactiveForLateDepositor(t *testing.T) {
	engine, state, ledger, sink := newTestEngine(t)
	ledger.mint(depositAsset, userA, 5_000)
	ledger.mint(depositAsset, userB, 5_000)

	if _, err := engine.Deposit(userA, big.NewInt(1000)); err != nil {
		t.Fatalf("deposit A: %v", err)
	}

	engine.SetCurrentTick(5)
	if _, err := engine.Deposit(userB, big.NewInt(1000)); err != nil {
		t.Fatalf("deposit B: %v", err)
	}

	// The index refresh ran before B's shares were minted: 5 ticks x 10 per
	// tick over 1000 shares.
	wantIndex := new(big.Int).Mul(big.NewInt(50), IndexUnit())
	wantIndex.Quo(wantIndex, big.NewInt(1000))
	if state.pool.RewardIndex.Cmp(wantIndex) != 0 {
		t.Fatalf("expected index %s, got %s", wantIndex, state.pool.RewardIndex)
	}
	if state.accounts[userB].RewardSnapshot.Cmp(wantIndex) != 0 {
		t.Fatalf("B snapshot must equal post-refresh index")
	}

	if _, _, err := engine.Harvest(userA); err != nil {
		t.Fatalf("harvest A: %v", err)
	}
	if got := sink.totalFor(userA); got.Cmp(big.NewInt(50)) != 0 {
		t.Fatalf("expected A vested 50, got %s", got)
	}
	if _, _, err := engine.Harvest(userB); err != nil {
		t.Fatalf("harvest B: %v", err)
	}
	if got := sink.totalFor(userB); got.Sign() != 0 {
		t.Fatalf("expected B vested 0, got %s", got)
	}
}

func TestHarvestIdempotentWithoutTickAdvance(t *testing.T) {
	engine, _, ledger, sink := newTestEngine(t)
	ledger.mint(depositAsset, userA, 5_000)
	if _, err := engine.Deposit(userA, big.NewInt(1000)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	engine.SetCurrentTick(3)
	if _, _, err := engine.Harvest(userA); err != nil {
		t.Fatalf("first harvest: %v", err)
	}
	first := sink.totalFor(userA)
	if first.Cmp(big.NewInt(30)) != 0 {
		t.Fatalf("expected 30 vested, got %s", first)
	}
	if _, _, err := engine.Harvest(userA); err != nil {
		t.Fatalf("second harvest: %v", err)
	}
	if got := sink.totalFor(userA); got.Cmp(first) != 0 {
		t.Fatalf("second harvest at same tick must settle nothing, got %s", got)
	}
}

func TestRewardIndexMonotonic(t *testing.T) {
	engine, state, ledger, _ := newTestEngine(t)
	ledger.mint(depositAsset, userA, 10_000)
	if _, err := engine.Deposit(userA, big.NewInt(1000)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	last := new(big.Int).Set(state.pool.RewardIndex)
	for tick := uint64(1); tick <= 10; tick++ {
		engine.SetCurrentTick(tick)
		if _, _, err := engine.Harvest(userA); err != nil {
			t.Fatalf("harvest at %d: %v", tick, err)
		}
		if state.pool.RewardIndex.Cmp(last) < 0 {
			t.Fatalf("reward index decreased at tick %d", tick)
		}
		last.Set(state.pool.RewardIndex)
	}
}

func TestWithdrawRequiresBalance(t *testing.T) {
	engine, _, ledger, _ := newTestEngine(t)
	ledger.mint(depositAsset, userA, 5_000)
	if _, err := engine.Deposit(userA, big.NewInt(1000)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	err := engine.Withdraw(userA, big.NewInt(1001))
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
}

func TestWithdrawAllClearsDust(t *testing.T) {
	engine, state, ledger, _ := newTestEngine(t)
	ledger.mint(depositAsset, userA, 5_000)
	if _, err := engine.Deposit(userA, big.NewInt(1000)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	// Simulate externally accrued yield so the exchange rate is fractional.
	state.pool.TotalDeposit = big.NewInt(1500)
	ledger.mint(depositAsset, moduleAddr, 500)

	if err := engine.Withdraw(userA, big.NewInt(100)); err != nil {
		t.Fatalf("partial withdraw: %v", err)
	}
	if err := engine.WithdrawAll(userA); err != nil {
		t.Fatalf("withdraw all: %v", err)
	}
	if state.accounts[userA].Share.Sign() != 0 {
		t.Fatalf("expected zero share after withdraw all, got %s", state.accounts[userA].Share)
	}
	if state.pool.TotalShare.Sign() != 0 {
		t.Fatalf("expected zero total share, got %s", state.pool.TotalShare)
	}
}

func TestShareConservation(t *testing.T) {
	engine, state, ledger, _ := newTestEngine(t)
	ledger.mint(depositAsset, userA, 10_000)
	ledger.mint(depositAsset, userB, 10_000)

	steps := []struct {
		tick   uint64
		action func() error
	}{
		{1, func() error { _, err := engine.Deposit(userA, big.NewInt(1000)); return err }},
		{3, func() error { _, err := engine.Deposit(userB, big.NewInt(777)); return err }},
		{4, func() error { return engine.Withdraw(userA, big.NewInt(500)) }},
		{9, func() error { _, err := engine.Deposit(userA, big.NewInt(123)); return err }},
		{12, func() error { return engine.WithdrawAll(userB) }},
	}
	for _, step := range steps {
		engine.SetCurrentTick(step.tick)
		if err := step.action(); err != nil {
			t.Fatalf("step at tick %d: %v", step.tick, err)
		}
		sum := big.NewInt(0)
		for _, acct := range state.accounts {
			sum.Add(sum, acct.Share)
		}
		if sum.Cmp(state.pool.TotalShare) != 0 {
			t.Fatalf("tick %d: total share %s != sum of accounts %s", step.tick, state.pool.TotalShare, sum)
		}
	}
}

func TestRoundingSubsidyMintsExtraShare(t *testing.T) {
	engine, state, ledger, _ := newTestEngine(t)
	ledger.mint(depositAsset, userA, 10_000)
	ledger.mint(depositAsset, userB, 10_000)

	if _, err := engine.Deposit(userA, big.NewInt(1000)); err != nil {
		t.Fatalf("deposit A: %v", err)
	}
	// Yield pushes the exchange rate to 1.5; a 100 deposit converts to 66
	// shares redeeming 99. The subsidy mints the 67th share.
	state.pool.TotalDeposit = big.NewInt(1500)
	ledger.mint(depositAsset, moduleAddr, 500)

	minted, err := engine.Deposit(userB, big.NewInt(100))
	if err != nil {
		t.Fatalf("deposit B: %v", err)
	}
	if minted.Cmp(big.NewInt(67)) != 0 {
		t.Fatalf("expected 67 shares with subsidy, got %s", minted)
	}

	engine.SetRoundingSubsidy(false)
	minted, err = engine.Deposit(userB, big.NewInt(100))
	if err != nil {
		t.Fatalf("deposit B without subsidy: %v", err)
	}
	if minted.Cmp(big.NewInt(66)) != 0 {
		t.Fatalf("expected floor 66 shares without subsidy, got %s", minted)
	}
}

func TestDustDepositRejectedWithoutSubsidy(t *testing.T) {
	engine, state, ledger, _ := newTestEngine(t)
	engine.SetRoundingSubsidy(false)
	ledger.mint(depositAsset, userA, 10_000)
	ledger.mint(depositAsset, userB, 10_000)

	if _, err := engine.Deposit(userA, big.NewInt(10)); err != nil {
		t.Fatalf("deposit A: %v", err)
	}
	// Yield pushes the exchange rate to 100 per share; a 50 deposit floors
	// to zero shares.
	state.pool.TotalDeposit = big.NewInt(1000)
	ledger.mint(depositAsset, moduleAddr, 990)

	if _, err := engine.Deposit(userB, big.NewInt(50)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected dust rejection, got %v", err)
	}

	engine.SetRoundingSubsidy(true)
	minted, err := engine.Deposit(userB, big.NewInt(50))
	if err != nil {
		t.Fatalf("deposit with subsidy: %v", err)
	}
	if minted.Cmp(big.NewInt(1)) != 0 {
		t.Fatalf("expected subsidized single share, got %s", minted)
	}
}

func TestSetRewardPerTickRefreshesIndexFirst(t *testing.T) {
	engine, state, ledger, sink := newTestEngine(t)
	ledger.mint(depositAsset, userA, 5_000)
	if _, err := engine.Deposit(userA, big.NewInt(1000)); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	engine.SetCurrentTick(5)
	if err := engine.SetRewardPerTick(ownerAddr, big.NewInt(100)); err != nil {
		t.Fatalf("set rate: %v", err)
	}
	engine.SetCurrentTick(10)
	if _, _, err := engine.Harvest(userA); err != nil {
		t.Fatalf("harvest: %v", err)
	}
	// Ticks 0-5 accrue at 10, ticks 5-10 at 100.
	if got := sink.totalFor(userA); got.Cmp(big.NewInt(550)) != 0 {
		t.Fatalf("expected 550 vested, got %s", got)
	}
	if state.pool.RewardPerTick.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("rate not persisted")
	}
}

func TestSetRewardPerTickValidation(t *testing.T) {
	engine, _, _, _ := newTestEngine(t)
	if err := engine.SetRewardPerTick(userA, big.NewInt(1)); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	engine.SetMaxRewardRate(big.NewInt(1_000))
	if err := engine.SetRewardPerTick(ownerAddr, big.NewInt(1_001)); !errors.Is(err, ErrRateTooLarge) {
		t.Fatalf("expected ErrRateTooLarge, got %v", err)
	}
	if err := engine.SetRewardPerTick(ownerAddr, big.NewInt(1_000)); err != nil {
		t.Fatalf("rate at cap must pass: %v", err)
	}
}

func TestPauseBlocksMutations(t *testing.T) {
	engine, _, ledger, _ := newTestEngine(t)
	ledger.mint(depositAsset, userA, 5_000)
	pauses := pauseAll{}
	engine.SetPauses(pauses)
	if _, err := engine.Deposit(userA, big.NewInt(100)); err == nil {
		t.Fatalf("expected pause rejection")
	}
}

func TestPauseBlocksAdminMutations(t *testing.T) {
	engine, _, _, _ := newTestEngine(t)
	engine.SetPauses(pauseAll{})
	if err := engine.SetRewardPerTick(ownerAddr, big.NewInt(1)); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("expected pause rejection, got %v", err)
	}
	if err := engine.RegisterAdapter(ownerAddr, nil); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("expected pause rejection, got %v", err)
	}
}

type pauseAll struct{}

func (pauseAll) IsPaused(string) bool { return true }

// reentrantAdapter calls back into the engine during Supply, mimicking a
// malicious external strategy.
type reentrantAdapter struct {
	engine *Engine
	err    error
}

func (r *reentrantAdapter) UpdateBalance() (*big.Int, error) { return nil, nil }
func (r *reentrantAdapter) Supply(*big.Int) error {
	_, r.err = r.engine.Deposit(userB, big.NewInt(1))
	return nil
}
func (r *reentrantAdapter) Redeem(*big.Int) error            { return nil }
func (r *reentrantAdapter) ClaimDividend() error             { return nil }
func (r *reentrantAdapter) ReportedUnclaimed() (*big.Int, error) { return big.NewInt(0), nil }
func (r *reentrantAdapter) DividendAsset() string            { return dividendAsset }

func TestReentrantAdapterIsRejected(t *testing.T) {
	engine, _, ledger, _ := newTestEngine(t)
	ledger.mint(depositAsset, userA, 5_000)
	ledger.mint(depositAsset, userB, 5_000)
	adapter := &reentrantAdapter{engine: engine}
	if err := engine.RegisterAdapter(ownerAddr, adapter); err != nil {
		t.Fatalf("register adapter: %v", err)
	}
	if _, err := engine.Deposit(userA, big.NewInt(100)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if !errors.Is(adapter.err, ErrReentry) {
		t.Fatalf("expected nested call to fail with ErrReentry, got %v", adapter.err)
	}
}
