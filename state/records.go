package state

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/rlp"

	"github.com/zhanglu0523/rifi-vault/native/vault"
	"github.com/zhanglu0523/rifi-vault/native/vesting"
)

// The persisted layout is decoupled from engine behavior: records below are
// the stable on-disk schema, converted to and from the engine types at the
// boundary. SchemaVersion guards activation of incompatible logic over an
// existing database.

const SchemaVersion uint64 = 1

var keySchema = []byte("schema")

type schemaRecord struct {
	Version uint64
}

// EnsureSchema stamps a fresh database with the current schema version and
// rejects activation over a database written by an incompatible layout.
func (m *Manager) EnsureSchema() error {
	var rec schemaRecord
	ok, err := m.view.getRecord(keySchema, &rec)
	if err != nil {
		return err
	}
	if !ok {
		return m.view.putRecord(keySchema, schemaRecord{Version: SchemaVersion})
	}
	if rec.Version != SchemaVersion {
		return fmt.Errorf("state: schema version %d incompatible with %d", rec.Version, SchemaVersion)
	}
	return nil
}

type poolRecord struct {
	DepositAsset   string
	RewardAsset    string
	TotalDeposit   *big.Int
	TotalShare     *big.Int
	RewardIndex    *big.Int
	LastRewardTick uint64
	RewardPerTick  *big.Int
	BootstrapRate  uint64
}

type vaultAccountRecord struct {
	Address         [20]byte
	Share           *big.Int
	RewardSnapshot  *big.Int
	LastDepositTick uint64
}

type dividendPoolRecord struct {
	Asset        string
	Index        *big.Int
	LastObserved *big.Int
}

type dividendAccountRecord struct {
	Address   [20]byte
	Asset     string
	Snapshot  *big.Int
	Unclaimed *big.Int
}

type authorityRecord struct {
	Owner        [20]byte
	PendingOwner [20]byte
}

type grantRecord struct {
	StartTick uint64
	EndTick   uint64
	Quantity  *big.Int
	Vested    *big.Int
}

type scheduleRecord struct {
	Address [20]byte
	Asset   string
	Grants  []grantRecord
}

type totalsRecord struct {
	Escrowed *big.Int
	Vested   *big.Int
}

type durationRecord struct {
	Ticks uint64
}

type view struct {
	kv backend
}

func (v view) getRecord(key []byte, out interface{}) (bool, error) {
	raw, ok, err := v.kv.get(key)
	if err != nil {
		return false, err
	}
	if !ok || len(raw) == 0 {
		return false, nil
	}
	if err := rlp.DecodeBytes(raw, out); err != nil {
		return false, fmt.Errorf("state: decode %q: %w", key, err)
	}
	return true, nil
}

func (v view) putRecord(key []byte, rec interface{}) error {
	raw, err := rlp.EncodeToBytes(rec)
	if err != nil {
		return fmt.Errorf("state: encode %q: %w", key, err)
	}
	return v.kv.put(key, raw)
}

func nonNil(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return v
}

// GetPool implements the vault engine state interface.
func (v view) GetPool() (*vault.Pool, error) {
	var rec poolRecord
	ok, err := v.getRecord([]byte(keyPool), &rec)
	if err != nil || !ok {
		return nil, err
	}
	return &vault.Pool{
		DepositAsset:   rec.DepositAsset,
		RewardAsset:    rec.RewardAsset,
		TotalDeposit:   rec.TotalDeposit,
		TotalShare:     rec.TotalShare,
		RewardIndex:    rec.RewardIndex,
		LastRewardTick: rec.LastRewardTick,
		RewardPerTick:  rec.RewardPerTick,
		BootstrapRate:  rec.BootstrapRate,
	}, nil
}

func (v view) PutPool(pool *vault.Pool) error {
	if pool == nil {
		return fmt.Errorf("state: nil pool")
	}
	return v.putRecord([]byte(keyPool), poolRecord{
		DepositAsset:   pool.DepositAsset,
		RewardAsset:    pool.RewardAsset,
		TotalDeposit:   nonNil(pool.TotalDeposit),
		TotalShare:     nonNil(pool.TotalShare),
		RewardIndex:    nonNil(pool.RewardIndex),
		LastRewardTick: pool.LastRewardTick,
		RewardPerTick:  nonNil(pool.RewardPerTick),
		BootstrapRate:  pool.BootstrapRate,
	})
}

func (v view) GetVaultAccount(addr [20]byte) (*vault.Account, error) {
	var rec vaultAccountRecord
	ok, err := v.getRecord(vaultAccountKey(addr), &rec)
	if err != nil || !ok {
		return nil, err
	}
	return &vault.Account{
		Address:         rec.Address,
		Share:           rec.Share,
		RewardSnapshot:  rec.RewardSnapshot,
		LastDepositTick: rec.LastDepositTick,
	}, nil
}

func (v view) PutVaultAccount(account *vault.Account) error {
	if account == nil {
		return fmt.Errorf("state: nil vault account")
	}
	return v.putRecord(vaultAccountKey(account.Address), vaultAccountRecord{
		Address:         account.Address,
		Share:           nonNil(account.Share),
		RewardSnapshot:  nonNil(account.RewardSnapshot),
		LastDepositTick: account.LastDepositTick,
	})
}

func (v view) GetDividendPool(asset string) (*vault.DividendPool, error) {
	var rec dividendPoolRecord
	ok, err := v.getRecord(dividendPoolKey(asset), &rec)
	if err != nil || !ok {
		return nil, err
	}
	return &vault.DividendPool{Asset: rec.Asset, Index: rec.Index, LastObserved: rec.LastObserved}, nil
}

func (v view) PutDividendPool(pool *vault.DividendPool) error {
	if pool == nil {
		return fmt.Errorf("state: nil dividend pool")
	}
	return v.putRecord(dividendPoolKey(pool.Asset), dividendPoolRecord{
		Asset:        pool.Asset,
		Index:        nonNil(pool.Index),
		LastObserved: nonNil(pool.LastObserved),
	})
}

func (v view) GetDividendAccount(asset string, addr [20]byte) (*vault.DividendAccount, error) {
	var rec dividendAccountRecord
	ok, err := v.getRecord(dividendAccountKey(asset, addr), &rec)
	if err != nil || !ok {
		return nil, err
	}
	return &vault.DividendAccount{
		Address:   rec.Address,
		Asset:     rec.Asset,
		Snapshot:  rec.Snapshot,
		Unclaimed: rec.Unclaimed,
	}, nil
}

func (v view) PutDividendAccount(account *vault.DividendAccount) error {
	if account == nil {
		return fmt.Errorf("state: nil dividend account")
	}
	return v.putRecord(dividendAccountKey(account.Asset, account.Address), dividendAccountRecord{
		Address:   account.Address,
		Asset:     account.Asset,
		Snapshot:  nonNil(account.Snapshot),
		Unclaimed: nonNil(account.Unclaimed),
	})
}

func (v view) GetAuthority() (*vault.Authority, error) {
	var rec authorityRecord
	ok, err := v.getRecord([]byte(keyAuthority), &rec)
	if err != nil || !ok {
		return nil, err
	}
	return &vault.Authority{Owner: rec.Owner, PendingOwner: rec.PendingOwner}, nil
}

func (v view) PutAuthority(auth *vault.Authority) error {
	if auth == nil {
		return fmt.Errorf("state: nil authority")
	}
	return v.putRecord([]byte(keyAuthority), authorityRecord{
		Owner:        auth.Owner,
		PendingOwner: auth.PendingOwner,
	})
}

// GetSchedule implements the vesting ledger state interface.
func (v view) GetSchedule(addr [20]byte, asset string) (*vesting.Schedule, error) {
	var rec scheduleRecord
	ok, err := v.getRecord(scheduleKey(addr, asset), &rec)
	if err != nil || !ok {
		return nil, err
	}
	schedule := &vesting.Schedule{Address: rec.Address, Asset: rec.Asset}
	for _, g := range rec.Grants {
		schedule.Grants = append(schedule.Grants, &vesting.Grant{
			StartTick: g.StartTick,
			EndTick:   g.EndTick,
			Quantity:  g.Quantity,
			Vested:    g.Vested,
		})
	}
	return schedule, nil
}

func (v view) PutSchedule(schedule *vesting.Schedule) error {
	if schedule == nil {
		return fmt.Errorf("state: nil schedule")
	}
	rec := scheduleRecord{Address: schedule.Address, Asset: schedule.Asset}
	for _, g := range schedule.Grants {
		rec.Grants = append(rec.Grants, grantRecord{
			StartTick: g.StartTick,
			EndTick:   g.EndTick,
			Quantity:  nonNil(g.Quantity),
			Vested:    nonNil(g.Vested),
		})
	}
	return v.putRecord(scheduleKey(schedule.Address, schedule.Asset), rec)
}

func (v view) GetVestedTotals(addr [20]byte, asset string) (*vesting.Totals, error) {
	var rec totalsRecord
	ok, err := v.getRecord(totalsKey(addr, asset), &rec)
	if err != nil || !ok {
		return nil, err
	}
	return &vesting.Totals{Escrowed: rec.Escrowed, Vested: rec.Vested}, nil
}

func (v view) PutVestedTotals(addr [20]byte, asset string, totals *vesting.Totals) error {
	if totals == nil {
		return fmt.Errorf("state: nil totals")
	}
	return v.putRecord(totalsKey(addr, asset), totalsRecord{
		Escrowed: nonNil(totals.Escrowed),
		Vested:   nonNil(totals.Vested),
	})
}

func (v view) GetVestingDuration(asset string) (uint64, error) {
	var rec durationRecord
	ok, err := v.getRecord(durationKey(asset), &rec)
	if err != nil || !ok {
		return 0, err
	}
	return rec.Ticks, nil
}

func (v view) PutVestingDuration(asset string, ticks uint64) error {
	return v.putRecord(durationKey(asset), durationRecord{Ticks: ticks})
}

// ListVestingAssets returns every asset the account holds a grant schedule
// for, in key order.
func (v view) ListVestingAssets(addr [20]byte) ([]string, error) {
	prefix := prefixSchedule + addrHex(addr) + "/"
	var assets []string
	err := v.kv.iterate([]byte(prefix), func(key, _ []byte) bool {
		assets = append(assets, strings.TrimPrefix(string(key), prefix))
		return true
	})
	if err != nil {
		return nil, err
	}
	return assets, nil
}
