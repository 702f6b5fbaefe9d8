package vaultd

import (
	"io"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zhanglu0523/rifi-vault/storage"
)

const custodyHex = "0505050505050505050505050505050505050505"

// A node rebuilt over an existing database must see the same deployed
// balance the previous process left behind: the strategy reads it from the
// custody token balance, not from process memory.
func TestRestartPreservesStrategyAccounting(t *testing.T) {
	cfg := testConfig()
	cfg.Strategy = StrategyConfig{
		CustodyAddress: custodyHex,
		DividendAsset:  "comp",
	}
	db := storage.NewMemDB()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := &testClock{now: time.Unix(1_000_000, 0)}
	tick := func() time.Time { return clock.now }

	node1, err := NewNodeWithClock(cfg, db, logger, tick)
	require.NoError(t, err)

	user, err := ParseAddress(userHex)
	require.NoError(t, err)
	require.NoError(t, node1.mgr.Mint("rusd", user, big.NewInt(10_000)))

	shares, err := node1.Deposit(user, big.NewInt(1000))
	require.NoError(t, err)
	require.Equal(t, "1000", shares.String())

	custody, err := ParseAddress(custodyHex)
	require.NoError(t, err)
	deployed, err := node1.Balance("rusd", custody)
	require.NoError(t, err)
	require.Equal(t, "1000", deployed.String())

	node2, err := NewNodeWithClock(cfg, db, logger, tick)
	require.NoError(t, err)

	require.NoError(t, node2.Withdraw(user, big.NewInt(500)))

	pool, err := node2.Pool()
	require.NoError(t, err)
	require.Equal(t, "500", pool.TotalDeposit.String())
	require.Equal(t, "500", pool.TotalShare.String())

	balance, err := node2.Balance("rusd", user)
	require.NoError(t, err)
	require.Equal(t, "9500", balance.String())
}
