package state

import (
	"math/big"

	"github.com/google/uuid"

	"PaperPerps/internal/fixedpoint"
)

// InitialBalanceUnits is the paper balance granted on registration,
// in whole quote units before fixed-point scaling.
const InitialBalanceUnits = 10_000

// AccountBook tracks player balances. A player counts as registered
// while their balance is non-zero; an account drained to zero is
// indistinguishable from one that never registered.
type AccountBook struct {
	balances map[uuid.UUID]*big.Int
}

func NewAccountBook() *AccountBook {
	return &AccountBook{
		balances: make(map[uuid.UUID]*big.Int),
	}
}

// Register grants the initial balance. Returns false if the player
// already holds a non-zero balance.
func (ab *AccountBook) Register(player uuid.UUID) bool {
	if bal, ok := ab.balances[player]; ok && bal.Sign() != 0 {
		return false
	}
	ab.balances[player] = fixedpoint.Wad(InitialBalanceUnits)
	return true
}

// IsRegistered reports whether the player holds a non-zero balance.
func (ab *AccountBook) IsRegistered(player uuid.UUID) bool {
	bal, ok := ab.balances[player]
	return ok && bal.Sign() > 0
}

// Balance returns a copy of the player's balance (zero if unknown).
func (ab *AccountBook) Balance(player uuid.UUID) *big.Int {
	bal, ok := ab.balances[player]
	if !ok {
		return new(big.Int)
	}
	return new(big.Int).Set(bal)
}

// Credit adds amount to the player's balance.
func (ab *AccountBook) Credit(player uuid.UUID, amount *big.Int) *big.Int {
	bal, ok := ab.balances[player]
	if !ok {
		bal = new(big.Int)
		ab.balances[player] = bal
	}
	bal.Add(bal, amount)
	return new(big.Int).Set(bal)
}

// DebitClamped subtracts amount from the player's balance, clamping
// at zero instead of going negative.
func (ab *AccountBook) DebitClamped(player uuid.UUID, amount *big.Int) *big.Int {
	bal, ok := ab.balances[player]
	if !ok {
		bal = new(big.Int)
		ab.balances[player] = bal
	}
	bal.Sub(bal, amount)
	if bal.Sign() < 0 {
		bal.SetInt64(0)
	}
	return new(big.Int).Set(bal)
}

// SetBalance directly sets a balance (used for restore).
func (ab *AccountBook) SetBalance(player uuid.UUID, balance *big.Int) {
	ab.balances[player] = new(big.Int).Set(balance)
}

// Snapshot returns a copy of all balances.
func (ab *AccountBook) Snapshot() map[uuid.UUID]*big.Int {
	out := make(map[uuid.UUID]*big.Int, len(ab.balances))
	for k, v := range ab.balances {
		out[k] = new(big.Int).Set(v)
	}
	return out
}
