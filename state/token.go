package state

import (
	"errors"
	"math/big"
)

var (
	ErrInvalidTransfer   = errors.New("state: transfer amount must be positive")
	ErrInsufficientFunds = errors.New("state: insufficient token balance")
)

type balanceRecord struct {
	Amount *big.Int
}

// BalanceOf returns the holder's balance of the asset. Missing records are
// zero.
func (v view) BalanceOf(asset string, holder [20]byte) (*big.Int, error) {
	var rec balanceRecord
	ok, err := v.getRecord(tokenBalanceKey(asset, holder), &rec)
	if err != nil {
		return nil, err
	}
	if !ok || rec.Amount == nil {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(rec.Amount), nil
}

// Transfer moves amount between holders, failing with no effect when the
// source balance is short. The built-in ledger charges no transfer fee;
// fee-charging assets live behind external TokenLedger implementations.
func (v view) Transfer(asset string, from, to [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidTransfer
	}
	if from == to {
		return nil
	}
	source, err := v.BalanceOf(asset, from)
	if err != nil {
		return err
	}
	if source.Cmp(amount) < 0 {
		return ErrInsufficientFunds
	}
	dest, err := v.BalanceOf(asset, to)
	if err != nil {
		return err
	}
	if err := v.putRecord(tokenBalanceKey(asset, from), balanceRecord{Amount: source.Sub(source, amount)}); err != nil {
		return err
	}
	return v.putRecord(tokenBalanceKey(asset, to), balanceRecord{Amount: dest.Add(dest, amount)})
}

// Mint credits new supply to the holder. Used at genesis and to fund the
// emission treasury.
func (v view) Mint(asset string, to [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidTransfer
	}
	balance, err := v.BalanceOf(asset, to)
	if err != nil {
		return err
	}
	return v.putRecord(tokenBalanceKey(asset, to), balanceRecord{Amount: balance.Add(balance, amount)})
}
