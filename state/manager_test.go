package state

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zhanglu0523/rifi-vault/native/vault"
	"github.com/zhanglu0523/rifi-vault/native/vesting"
	"github.com/zhanglu0523/rifi-vault/storage"
)

var (
	testOwner  = [20]byte{0x01}
	testHolder = [20]byte{0x07}
)

func TestPoolRoundTripSurvivesRestart(t *testing.T) {
	db := storage.NewMemDB()
	mgr := NewManager(db)

	pool := &vault.Pool{
		DepositAsset:   "rusd",
		RewardAsset:    "rifi",
		TotalDeposit:   big.NewInt(1_000_000),
		TotalShare:     big.NewInt(999_500),
		RewardIndex:    new(big.Int).Mul(big.NewInt(3), vault.IndexUnit()),
		LastRewardTick: 42,
		RewardPerTick:  big.NewInt(10),
		BootstrapRate:  1,
	}
	require.NoError(t, mgr.PutPool(pool))

	// A fresh manager over the same database must read the same record back.
	reopened := NewManager(db)
	got, err := reopened.GetPool()
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, pool.DepositAsset, got.DepositAsset)
	require.Equal(t, pool.RewardAsset, got.RewardAsset)
	require.Zero(t, pool.TotalDeposit.Cmp(got.TotalDeposit))
	require.Zero(t, pool.TotalShare.Cmp(got.TotalShare))
	require.Zero(t, pool.RewardIndex.Cmp(got.RewardIndex))
	require.Equal(t, pool.LastRewardTick, got.LastRewardTick)
	require.Zero(t, pool.RewardPerTick.Cmp(got.RewardPerTick))
	require.Equal(t, pool.BootstrapRate, got.BootstrapRate)
}

func TestMissingRecordsReadAsNil(t *testing.T) {
	mgr := NewManager(storage.NewMemDB())

	pool, err := mgr.GetPool()
	require.NoError(t, err)
	require.Nil(t, pool)

	account, err := mgr.GetVaultAccount(testHolder)
	require.NoError(t, err)
	require.Nil(t, account)

	auth, err := mgr.GetAuthority()
	require.NoError(t, err)
	require.Nil(t, auth)

	duration, err := mgr.GetVestingDuration("rifi")
	require.NoError(t, err)
	require.Zero(t, duration)
}

func TestVaultAccountAndAuthorityRoundTrip(t *testing.T) {
	mgr := NewManager(storage.NewMemDB())

	require.NoError(t, mgr.PutVaultAccount(&vault.Account{
		Address:         testHolder,
		Share:           big.NewInt(600),
		RewardSnapshot:  vault.IndexUnit(),
		LastDepositTick: 7,
	}))
	account, err := mgr.GetVaultAccount(testHolder)
	require.NoError(t, err)
	require.Equal(t, testHolder, account.Address)
	require.Zero(t, account.Share.Cmp(big.NewInt(600)))
	require.Zero(t, account.RewardSnapshot.Cmp(vault.IndexUnit()))
	require.Equal(t, uint64(7), account.LastDepositTick)

	require.NoError(t, mgr.PutAuthority(&vault.Authority{Owner: testOwner, PendingOwner: testHolder}))
	auth, err := mgr.GetAuthority()
	require.NoError(t, err)
	require.Equal(t, testOwner, auth.Owner)
	require.Equal(t, testHolder, auth.PendingOwner)
}

func TestDividendRecordsRoundTrip(t *testing.T) {
	mgr := NewManager(storage.NewMemDB())

	require.NoError(t, mgr.PutDividendPool(&vault.DividendPool{
		Asset:        "comp",
		Index:        vault.IndexUnit(),
		LastObserved: big.NewInt(400),
	}))
	pool, err := mgr.GetDividendPool("comp")
	require.NoError(t, err)
	require.Zero(t, pool.Index.Cmp(vault.IndexUnit()))
	require.Zero(t, pool.LastObserved.Cmp(big.NewInt(400)))

	require.NoError(t, mgr.PutDividendAccount(&vault.DividendAccount{
		Address:   testHolder,
		Asset:     "comp",
		Snapshot:  vault.IndexUnit(),
		Unclaimed: big.NewInt(55),
	}))
	account, err := mgr.GetDividendAccount("comp", testHolder)
	require.NoError(t, err)
	require.Equal(t, testHolder, account.Address)
	require.Zero(t, account.Unclaimed.Cmp(big.NewInt(55)))
}

func TestScheduleRoundTripAndAssetListing(t *testing.T) {
	mgr := NewManager(storage.NewMemDB())

	require.NoError(t, mgr.PutSchedule(&vesting.Schedule{
		Address: testHolder,
		Asset:   "rifi",
		Grants: []*vesting.Grant{
			{StartTick: 100, EndTick: 200, Quantity: big.NewInt(1000), Vested: big.NewInt(300)},
			{StartTick: 150, EndTick: 250, Quantity: big.NewInt(500), Vested: big.NewInt(0)},
		},
	}))
	require.NoError(t, mgr.PutSchedule(&vesting.Schedule{
		Address: testHolder,
		Asset:   "comp",
		Grants:  []*vesting.Grant{{StartTick: 0, EndTick: 10, Quantity: big.NewInt(9), Vested: big.NewInt(0)}},
	}))

	schedule, err := mgr.GetSchedule(testHolder, "rifi")
	require.NoError(t, err)
	require.Len(t, schedule.Grants, 2)
	require.Equal(t, uint64(200), schedule.Grants[0].EndTick)
	require.Zero(t, schedule.Grants[0].Vested.Cmp(big.NewInt(300)))

	assets, err := mgr.ListVestingAssets(testHolder)
	require.NoError(t, err)
	require.Equal(t, []string{"comp", "rifi"}, assets)

	// Another holder sees no assets.
	assets, err = mgr.ListVestingAssets(testOwner)
	require.NoError(t, err)
	require.Empty(t, assets)

	require.NoError(t, mgr.PutVestedTotals(testHolder, "rifi", &vesting.Totals{
		Escrowed: big.NewInt(1200),
		Vested:   big.NewInt(300),
	}))
	totals, err := mgr.GetVestedTotals(testHolder, "rifi")
	require.NoError(t, err)
	require.Zero(t, totals.Escrowed.Cmp(big.NewInt(1200)))
	require.Zero(t, totals.Vested.Cmp(big.NewInt(300)))
}

func TestTxnCommitAndDiscard(t *testing.T) {
	db := storage.NewMemDB()
	mgr := NewManager(db)
	require.NoError(t, mgr.Mint("rusd", testHolder, big.NewInt(100)))

	// Discarded writes never reach the database.
	txn := mgr.Begin()
	require.NoError(t, txn.Transfer("rusd", testHolder, testOwner, big.NewInt(40)))
	balance, err := txn.BalanceOf("rusd", testOwner)
	require.NoError(t, err)
	require.Zero(t, balance.Cmp(big.NewInt(40)))
	txn.Discard()

	balance, err = mgr.BalanceOf("rusd", testOwner)
	require.NoError(t, err)
	require.Zero(t, balance.Sign())
	balance, err = mgr.BalanceOf("rusd", testHolder)
	require.NoError(t, err)
	require.Zero(t, balance.Cmp(big.NewInt(100)))

	// Committed writes do.
	txn = mgr.Begin()
	require.NoError(t, txn.Transfer("rusd", testHolder, testOwner, big.NewInt(40)))
	require.NoError(t, txn.Commit())
	balance, err = mgr.BalanceOf("rusd", testOwner)
	require.NoError(t, err)
	require.Zero(t, balance.Cmp(big.NewInt(40)))
	balance, err = mgr.BalanceOf("rusd", testHolder)
	require.NoError(t, err)
	require.Zero(t, balance.Cmp(big.NewInt(60)))
}

func TestTxnIterateMergesOverlay(t *testing.T) {
	mgr := NewManager(storage.NewMemDB())
	require.NoError(t, mgr.PutSchedule(&vesting.Schedule{Address: testHolder, Asset: "rifi"}))

	txn := mgr.Begin()
	require.NoError(t, txn.PutSchedule(&vesting.Schedule{Address: testHolder, Asset: "comp"}))

	assets, err := txn.ListVestingAssets(testHolder)
	require.NoError(t, err)
	require.Equal(t, []string{"comp", "rifi"}, assets)

	// The overlay write is invisible outside the transaction.
	assets, err = mgr.ListVestingAssets(testHolder)
	require.NoError(t, err)
	require.Equal(t, []string{"rifi"}, assets)
}

func TestTokenTransferValidation(t *testing.T) {
	mgr := NewManager(storage.NewMemDB())
	require.NoError(t, mgr.Mint("rusd", testHolder, big.NewInt(10)))

	err := mgr.Transfer("rusd", testHolder, testOwner, big.NewInt(11))
	require.ErrorIs(t, err, ErrInsufficientFunds)

	err = mgr.Transfer("rusd", testHolder, testOwner, big.NewInt(0))
	require.ErrorIs(t, err, ErrInvalidTransfer)

	// Failed transfers leave balances untouched.
	balance, err := mgr.BalanceOf("rusd", testHolder)
	require.NoError(t, err)
	require.Zero(t, balance.Cmp(big.NewInt(10)))

	// Self-transfer is a no-op.
	require.NoError(t, mgr.Transfer("rusd", testHolder, testHolder, big.NewInt(5)))
	balance, err = mgr.BalanceOf("rusd", testHolder)
	require.NoError(t, err)
	require.Zero(t, balance.Cmp(big.NewInt(10)))
}

func TestEnsureSchema(t *testing.T) {
	db := storage.NewMemDB()
	mgr := NewManager(db)
	require.NoError(t, mgr.EnsureSchema())

	// Idempotent over a stamped database.
	require.NoError(t, NewManager(db).EnsureSchema())

	// A database written by a different layout is rejected.
	require.NoError(t, mgr.view.putRecord(keySchema, schemaRecord{Version: SchemaVersion + 1}))
	require.Error(t, NewManager(db).EnsureSchema())
}
