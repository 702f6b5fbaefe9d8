package state

import (
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/zhanglu0523/rifi-vault/storage"
)

var (
	ErrNilDatabase = errors.New("state: database not configured")
)

// backend is the raw key-value surface the typed accessors encode through.
// Both the manager (direct writes) and a transaction (overlay writes)
// implement it.
type backend interface {
	get(key []byte) ([]byte, bool, error)
	put(key, value []byte) error
	iterate(prefix []byte, fn func(key, value []byte) bool) error
}

// Manager persists vault, vesting, and token records through a key-value
// database. All typed accessors live on view, so a Txn exposes the identical
// surface with writes buffered until Commit.
type Manager struct {
	view
	db storage.Database
}

// NewManager wraps the supplied database.
func NewManager(db storage.Database) *Manager {
	m := &Manager{db: db}
	m.view.kv = m
	return m
}

func (m *Manager) get(key []byte) ([]byte, bool, error) {
	if m.db == nil {
		return nil, false, ErrNilDatabase
	}
	return m.db.Get(key)
}

func (m *Manager) put(key, value []byte) error {
	if m.db == nil {
		return ErrNilDatabase
	}
	return m.db.Put(key, value)
}

func (m *Manager) iterate(prefix []byte, fn func(key, value []byte) bool) error {
	if m.db == nil {
		return ErrNilDatabase
	}
	return m.db.Iterate(prefix, fn)
}

// Begin opens a transaction whose writes stay in an overlay until Commit.
// Discarding the transaction (or never committing) leaves the database
// untouched, which gives mutating operations their all-or-nothing semantics.
func (m *Manager) Begin() *Txn {
	t := &Txn{mgr: m, writes: make(map[string][]byte)}
	t.view.kv = t
	return t
}

// Txn is an uncommitted overlay over the manager's database.
type Txn struct {
	view
	mgr    *Manager
	writes map[string][]byte
}

func (t *Txn) get(key []byte) ([]byte, bool, error) {
	if value, ok := t.writes[string(key)]; ok {
		return append([]byte(nil), value...), true, nil
	}
	return t.mgr.get(key)
}

func (t *Txn) put(key, value []byte) error {
	t.writes[string(key)] = append([]byte(nil), value...)
	return nil
}

func (t *Txn) iterate(prefix []byte, fn func(key, value []byte) bool) error {
	merged := make(map[string][]byte)
	err := t.mgr.iterate(prefix, func(key, value []byte) bool {
		merged[string(key)] = value
		return true
	})
	if err != nil {
		return err
	}
	for key, value := range t.writes {
		if strings.HasPrefix(key, string(prefix)) {
			merged[key] = value
		}
	}
	keys := make([]string, 0, len(merged))
	for key := range merged {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if !fn([]byte(key), merged[key]) {
			break
		}
	}
	return nil
}

// Commit flushes the overlay to the database in key order.
func (t *Txn) Commit() error {
	keys := make([]string, 0, len(t.writes))
	for key := range t.writes {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if err := t.mgr.put([]byte(key), t.writes[key]); err != nil {
			return fmt.Errorf("state: commit %q: %w", key, err)
		}
	}
	t.writes = make(map[string][]byte)
	return nil
}

// Discard drops the overlay.
func (t *Txn) Discard() {
	t.writes = make(map[string][]byte)
}

const (
	keyPool            = "vault/pool"
	keyAuthority       = "vault/authority"
	prefixVaultAccount = "vault/acct/"
	prefixDividendPool = "vault/div/pool/"
	prefixDividendAcct = "vault/div/acct/"
	prefixSchedule     = "vesting/sched/"
	prefixTotals       = "vesting/totals/"
	prefixDuration     = "vesting/duration/"
	prefixTokenBalance = "token/"
)

func addrHex(addr [20]byte) string {
	return hex.EncodeToString(addr[:])
}

func vaultAccountKey(addr [20]byte) []byte {
	return []byte(prefixVaultAccount + addrHex(addr))
}

func dividendPoolKey(asset string) []byte {
	return []byte(prefixDividendPool + asset)
}

func dividendAccountKey(asset string, addr [20]byte) []byte {
	return []byte(prefixDividendAcct + asset + "/" + addrHex(addr))
}

func scheduleKey(addr [20]byte, asset string) []byte {
	return []byte(prefixSchedule + addrHex(addr) + "/" + asset)
}

func totalsKey(addr [20]byte, asset string) []byte {
	return []byte(prefixTotals + addrHex(addr) + "/" + asset)
}

func durationKey(asset string) []byte {
	return []byte(prefixDuration + asset)
}

func tokenBalanceKey(asset string, addr [20]byte) []byte {
	return []byte(prefixTokenBalance + asset + "/" + addrHex(addr))
}
