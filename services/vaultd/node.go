package vaultd

import (
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/zhanglu0523/rifi-vault/events"
	"github.com/zhanglu0523/rifi-vault/integrations/strategy"
	nativecommon "github.com/zhanglu0523/rifi-vault/native/common"
	"github.com/zhanglu0523/rifi-vault/native/vault"
	"github.com/zhanglu0523/rifi-vault/native/vesting"
	"github.com/zhanglu0523/rifi-vault/state"
	"github.com/zhanglu0523/rifi-vault/storage"
)

// Node owns the database and runs every vault and vesting operation inside a
// state transaction: a failed operation leaves the database untouched. A
// mutex serializes mutations; the engines themselves are rebuilt per
// operation over the transaction's view.
type Node struct {
	cfg    Config
	logger *slog.Logger

	db     storage.Database
	mgr    *state.Manager
	pauses *nativecommon.PauseSet
	sim    *strategy.Simulated

	owner       [20]byte
	treasury    [20]byte
	moduleAddr  [20]byte
	vestingAddr [20]byte
	maxRate     *big.Int

	clock func() time.Time
	mu    sync.Mutex
}

// NewNode wires a node over the supplied database, stamping the schema and
// bootstrapping the pool on first start.
func NewNode(cfg Config, db storage.Database, logger *slog.Logger) (*Node, error) {
	return NewNodeWithClock(cfg, db, logger, time.Now)
}

// NewNodeWithClock is NewNode with an explicit time source. The clock must be
// supplied here rather than patched in afterwards: bootstrap stamps the pool's
// reward cursor from it.
func NewNodeWithClock(cfg Config, db storage.Database, logger *slog.Logger, clock func() time.Time) (*Node, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("vaultd: config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	if clock == nil {
		clock = time.Now
	}
	n := &Node{
		cfg:    cfg,
		logger: logger,
		db:     db,
		mgr:    state.NewManager(db),
		pauses: nativecommon.NewPauseSet(),
		clock:  clock,
	}
	var err error
	if n.owner, err = ParseAddress(cfg.OwnerAddress); err != nil {
		return nil, err
	}
	if n.treasury, err = ParseAddress(cfg.TreasuryAddress); err != nil {
		return nil, err
	}
	if n.moduleAddr, err = ParseAddress(cfg.ModuleAddress); err != nil {
		return nil, err
	}
	if n.vestingAddr, err = ParseAddress(cfg.VestingAddress); err != nil {
		return nil, err
	}
	if cfg.MaxRewardRate != "" {
		if n.maxRate, err = ParseAmount(cfg.MaxRewardRate); err != nil {
			return nil, err
		}
	}
	if cfg.Strategy.CustodyAddress != "" {
		custody, err := ParseAddress(cfg.Strategy.CustodyAddress)
		if err != nil {
			return nil, err
		}
		n.sim = strategy.NewSimulated(n.mgr, cfg.DepositAsset, cfg.Strategy.DividendAsset, custody, n.moduleAddr)
		n.sim.SetInterestBps(cfg.Strategy.InterestBps)
		if cfg.Strategy.DividendPerTick != "" {
			drip, err := ParseAmount(cfg.Strategy.DividendPerTick)
			if err != nil {
				return nil, err
			}
			n.sim.SetDividendPerTick(drip)
		}
		n.sim.AdvanceTo(n.currentTick())
	}

	if err := n.mgr.EnsureSchema(); err != nil {
		return nil, err
	}
	if err := n.bootstrap(); err != nil {
		return nil, err
	}
	return n, nil
}

// bootstrap initializes the pool, funds the treasury, and configures the
// vesting window on a fresh database. An already initialized database is left
// alone.
func (n *Node) bootstrap() error {
	existing, err := n.mgr.GetPool()
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}

	txn := n.mgr.Begin()
	engine, ledger, _ := n.bind(txn, n.currentTick())

	rewardPerTick := big.NewInt(0)
	if n.cfg.RewardPerTick != "" {
		if rewardPerTick, err = ParseAmount(n.cfg.RewardPerTick); err != nil {
			return err
		}
	}
	if err := engine.Initialize(n.owner, n.cfg.DepositAsset, n.cfg.RewardAsset, rewardPerTick, n.cfg.BootstrapRate); err != nil {
		txn.Discard()
		return err
	}
	if n.cfg.TreasuryMint != "" {
		mint, err := ParseAmount(n.cfg.TreasuryMint)
		if err != nil {
			txn.Discard()
			return err
		}
		if mint.Sign() > 0 {
			if err := txn.Mint(n.cfg.RewardAsset, n.treasury, mint); err != nil {
				txn.Discard()
				return err
			}
		}
	}
	if n.cfg.VestingDuration > 0 {
		if err := ledger.SetDuration(n.owner, n.cfg.RewardAsset, n.cfg.VestingDuration); err != nil {
			txn.Discard()
			return err
		}
	}
	if err := txn.Commit(); err != nil {
		return err
	}
	n.logger.Info("pool initialized",
		"deposit_asset", n.cfg.DepositAsset,
		"reward_asset", n.cfg.RewardAsset,
		"reward_per_tick", rewardPerTick.String(),
		"vesting_duration", n.cfg.VestingDuration)
	return nil
}

func (n *Node) currentTick() uint64 {
	return uint64(n.clock().Unix()) / n.cfg.TickSeconds
}

// bind assembles a vault engine and vesting ledger over the given state view.
// The vault engine doubles as the vesting ledger's admin gate, and the
// simulated strategy (when configured) is pointed at the same view so its
// token movements commit or roll back with the operation.
func (n *Node) bind(txn *state.Txn, tick uint64) (*vault.Engine, *vesting.Ledger, *bufferEmitter) {
	buf := &bufferEmitter{}

	engine := vault.NewEngine(n.moduleAddr, n.treasury, n.vestingAddr)
	engine.SetState(txn)
	engine.SetLedger(txn)
	engine.SetPauses(n.pauses)
	engine.SetEmitter(buf)
	engine.SetCurrentTick(tick)
	engine.SetMaxRewardRate(n.maxRate)

	ledger := vesting.NewLedger(n.vestingAddr)
	ledger.SetState(txn)
	ledger.SetToken(txn)
	ledger.SetGate(engine)
	ledger.SetPauses(n.pauses)
	ledger.SetEmitter(buf)
	ledger.SetCurrentTick(tick)

	engine.SetVestingSink(ledger)

	if n.sim != nil {
		n.sim.SetToken(txn)
		n.sim.SetCurrentTick(tick)
		engine.BindAdapter(n.sim)
	}
	return engine, ledger, buf
}

// run executes one mutation atomically and logs the events it emitted.
func (n *Node) run(op string, fn func(*vault.Engine, *vesting.Ledger) error) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	txn := n.mgr.Begin()
	engine, ledger, buf := n.bind(txn, n.currentTick())
	if err := fn(engine, ledger); err != nil {
		txn.Discard()
		return err
	}
	if err := txn.Commit(); err != nil {
		return err
	}
	for _, ev := range buf.events {
		n.logger.Info("event", "op", op, "type", ev.EventType())
	}
	return nil
}

// Deposit pulls amount from the account and mints shares for it.
func (n *Node) Deposit(account [20]byte, amount *big.Int) (*big.Int, error) {
	var minted *big.Int
	err := n.run("deposit", func(engine *vault.Engine, _ *vesting.Ledger) error {
		var err error
		minted, err = engine.Deposit(account, amount)
		return err
	})
	return minted, err
}

// Withdraw redeems amount of the deposit asset back to the account.
func (n *Node) Withdraw(account [20]byte, amount *big.Int) error {
	return n.run("withdraw", func(engine *vault.Engine, _ *vesting.Ledger) error {
		return engine.Withdraw(account, amount)
	})
}

// WithdrawAll redeems the account's entire position.
func (n *Node) WithdrawAll(account [20]byte) error {
	return n.run("withdraw_all", func(engine *vault.Engine, _ *vesting.Ledger) error {
		return engine.WithdrawAll(account)
	})
}

// Harvest settles both reward streams and pays out accrued dividends.
func (n *Node) Harvest(account [20]byte) (paid, shortfall *big.Int, err error) {
	err = n.run("harvest", func(engine *vault.Engine, _ *vesting.Ledger) error {
		var err error
		paid, shortfall, err = engine.Harvest(account)
		return err
	})
	return paid, shortfall, err
}

// Vest releases the unlocked portion of the selected grants.
func (n *Node) Vest(account [20]byte, asset string, indices []uint64) (*big.Int, error) {
	var released *big.Int
	err := n.run("vest", func(_ *vault.Engine, ledger *vesting.Ledger) error {
		var err error
		released, err = ledger.VestAtIndices(account, asset, indices)
		return err
	})
	return released, err
}

// VestAll releases everything currently unlocked for the pair.
func (n *Node) VestAll(account [20]byte, asset string) (*big.Int, error) {
	var released *big.Int
	err := n.run("vest_all", func(_ *vault.Engine, ledger *vesting.Ledger) error {
		var err error
		released, err = ledger.VestAll(account, asset)
		return err
	})
	return released, err
}

// VestAssets releases everything unlocked across the account's assets.
func (n *Node) VestAssets(account [20]byte, assets []string) (map[string]*big.Int, error) {
	var released map[string]*big.Int
	err := n.run("vest_assets", func(_ *vault.Engine, ledger *vesting.Ledger) error {
		var err error
		released, err = ledger.VestAssets(account, assets)
		return err
	})
	return released, err
}

// SetRewardPerTick updates the emission rate. Owner only.
func (n *Node) SetRewardPerTick(caller [20]byte, rate *big.Int) error {
	return n.run("set_reward_per_tick", func(engine *vault.Engine, _ *vesting.Ledger) error {
		return engine.SetRewardPerTick(caller, rate)
	})
}

// ProposeOwner starts an ownership handover. Owner only.
func (n *Node) ProposeOwner(caller, proposed [20]byte) error {
	return n.run("propose_owner", func(engine *vault.Engine, _ *vesting.Ledger) error {
		return engine.ProposeOwner(caller, proposed)
	})
}

// AcceptOwner completes a pending handover. Pending owner only.
func (n *Node) AcceptOwner(caller [20]byte) error {
	return n.run("accept_owner", func(engine *vault.Engine, _ *vesting.Ledger) error {
		return engine.AcceptOwner(caller)
	})
}

// SetPaused halts or resumes a module's mutations. Owner only.
func (n *Node) SetPaused(caller [20]byte, module string, paused bool) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	txn := n.mgr.Begin()
	engine, _, _ := n.bind(txn, n.currentTick())
	authorized := engine.IsAuthorized(caller)
	txn.Discard()
	if !authorized {
		return vault.ErrUnauthorized
	}
	if paused {
		n.pauses.Pause(module)
	} else {
		n.pauses.Resume(module)
	}
	n.logger.Info("pause flag updated", "module", module, "paused", paused)
	return nil
}

// Pool returns the current pool snapshot.
func (n *Node) Pool() (*vault.Pool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	engine, _, _ := n.bind(n.mgr.Begin(), n.currentTick())
	return engine.PoolState()
}

// Position projects the account's standing at the current tick.
func (n *Node) Position(account [20]byte) (*vault.Position, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	engine, _, _ := n.bind(n.mgr.Begin(), n.currentTick())
	return engine.PositionOf(account)
}

// Handover reports the ownership handover state.
func (n *Node) Handover() (vault.HandoverState, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	engine, _, _ := n.bind(n.mgr.Begin(), n.currentTick())
	return engine.HandoverStatus()
}

// Schedule returns the account's grant schedule for the asset.
func (n *Node) Schedule(account [20]byte, asset string) (*vesting.Schedule, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	_, ledger, _ := n.bind(n.mgr.Begin(), n.currentTick())
	return ledger.ScheduleOf(account, asset)
}

// Totals returns the account's escrowed/vested aggregates for the asset.
func (n *Node) Totals(account [20]byte, asset string) (*vesting.Totals, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	_, ledger, _ := n.bind(n.mgr.Begin(), n.currentTick())
	return ledger.TotalsOf(account, asset)
}

// CurrentTick exposes the node clock in tick units.
func (n *Node) CurrentTick() uint64 { return n.currentTick() }

// Balance returns a holder's token balance.
func (n *Node) Balance(asset string, holder [20]byte) (*big.Int, error) {
	return n.mgr.BalanceOf(asset, holder)
}

// Close releases the underlying database.
func (n *Node) Close() error {
	if n.db == nil {
		return nil
	}
	return n.db.Close()
}

// bufferEmitter collects events during an operation so they surface only
// after the transaction commits.
type bufferEmitter struct {
	events []events.Event
}

func (b *bufferEmitter) Emit(ev events.Event) { b.events = append(b.events, ev) }
