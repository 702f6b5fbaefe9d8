// Package strategy hosts the concrete StrategyAdapter integrations. Each
// external protocol gets one implementation of the capability; the vault
// engine selects the active one at registration time.
package strategy

import (
	"errors"
	"math/big"

	"github.com/zhanglu0523/rifi-vault/native/vault"
)

var basisPoints = big.NewInt(10_000)

// Minter extends the token ledger with supply creation, used to materialize
// simulated yield.
type Minter interface {
	vault.TokenLedger
	Mint(asset string, to [20]byte, amount *big.Int) error
}

// Simulated is a self-contained strategy for development and testing. It
// deploys pooled capital to its own custody address, accrues deposit-asset
// interest at a fixed per-tick rate, and drips a native dividend asset that
// must be claimed like an external protocol's reward. The deployed balance
// is always the custody token balance, never an in-memory counter, so pool
// accounting survives process restarts.
type Simulated struct {
	token         Minter
	depositAsset  string
	dividendAsset string
	custody       [20]byte
	distributor   [20]byte

	interestBps     uint64
	dividendPerTick *big.Int
	pendingDividend *big.Int
	lastTick        uint64
	tick            uint64
}

// NewSimulated constructs a simulated strategy. distributor is the vault
// module address dividends are claimed into.
func NewSimulated(token Minter, depositAsset, dividendAsset string, custody, distributor [20]byte) *Simulated {
	return &Simulated{
		token:           token,
		depositAsset:    depositAsset,
		dividendAsset:   dividendAsset,
		custody:         custody,
		distributor:     distributor,
		pendingDividend: big.NewInt(0),
		dividendPerTick: big.NewInt(0),
	}
}

// SetToken rebinds the ledger the simulation mints and moves through.
// Callers running operations over a transactional state view point the
// strategy at the same view for the duration of the operation.
func (s *Simulated) SetToken(token Minter) { s.token = token }

// SetInterestBps configures the simulated per-tick interest rate in basis
// points.
func (s *Simulated) SetInterestBps(bps uint64) { s.interestBps = bps }

// SetDividendPerTick configures the simulated dividend drip rate.
func (s *Simulated) SetDividendPerTick(rate *big.Int) {
	if rate == nil {
		s.dividendPerTick = big.NewInt(0)
		return
	}
	s.dividendPerTick = new(big.Int).Set(rate)
}

// SetCurrentTick advances the simulation clock.
func (s *Simulated) SetCurrentTick(tick uint64) { s.tick = tick }

// AdvanceTo moves both the clock and the accrual cursor to tick without
// accruing the span in between. A restarted daemon calls this so the gap
// since the epoch is not treated as elapsed interest.
func (s *Simulated) AdvanceTo(tick uint64) {
	s.tick = tick
	s.lastTick = tick
}

// deployed reads the capital currently held at custody.
func (s *Simulated) deployed() (*big.Int, error) {
	return s.token.BalanceOf(s.depositAsset, s.custody)
}

// accrue rolls interest and dividend drip forward to the current tick.
func (s *Simulated) accrue() error {
	if s.tick <= s.lastTick {
		return nil
	}
	elapsed := new(big.Int).SetUint64(s.tick - s.lastTick)
	s.lastTick = s.tick

	if s.interestBps > 0 {
		balance, err := s.deployed()
		if err != nil {
			return err
		}
		if balance.Sign() > 0 {
			interest := new(big.Int).Mul(balance, new(big.Int).SetUint64(s.interestBps))
			interest.Mul(interest, elapsed)
			interest.Quo(interest, basisPoints)
			if interest.Sign() > 0 {
				if err := s.token.Mint(s.depositAsset, s.custody, interest); err != nil {
					return err
				}
			}
		}
	}
	if s.dividendPerTick.Sign() > 0 {
		drip := new(big.Int).Mul(s.dividendPerTick, elapsed)
		s.pendingDividend = new(big.Int).Add(s.pendingDividend, drip)
	}
	return nil
}

// UpdateBalance implements vault.StrategyAdapter.
func (s *Simulated) UpdateBalance() (*big.Int, error) {
	if err := s.accrue(); err != nil {
		return nil, err
	}
	return s.deployed()
}

// Supply implements vault.StrategyAdapter.
func (s *Simulated) Supply(amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return errors.New("simulated strategy: amount must be positive")
	}
	if err := s.accrue(); err != nil {
		return err
	}
	return s.token.Transfer(s.depositAsset, s.distributor, s.custody, amount)
}

// Redeem implements vault.StrategyAdapter.
func (s *Simulated) Redeem(amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return errors.New("simulated strategy: amount must be positive")
	}
	if err := s.accrue(); err != nil {
		return err
	}
	balance, err := s.deployed()
	if err != nil {
		return err
	}
	if balance.Cmp(amount) < 0 {
		return errors.New("simulated strategy: redeem exceeds deployed balance")
	}
	return s.token.Transfer(s.depositAsset, s.custody, s.distributor, amount)
}

// ClaimDividend implements vault.StrategyAdapter. Pending drip is minted
// into the distributor's holdings, mirroring an external claim call.
func (s *Simulated) ClaimDividend() error {
	if err := s.accrue(); err != nil {
		return err
	}
	if s.pendingDividend.Sign() == 0 {
		return nil
	}
	if err := s.token.Mint(s.dividendAsset, s.distributor, s.pendingDividend); err != nil {
		return err
	}
	s.pendingDividend = big.NewInt(0)
	return nil
}

// ReportedUnclaimed implements vault.StrategyAdapter.
func (s *Simulated) ReportedUnclaimed() (*big.Int, error) {
	if err := s.accrue(); err != nil {
		return nil, err
	}
	return new(big.Int).Set(s.pendingDividend), nil
}

// DividendAsset implements vault.StrategyAdapter.
func (s *Simulated) DividendAsset() string { return s.dividendAsset }
