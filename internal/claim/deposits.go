package claim

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// MakeDeposit credits addr's withdrawable balance.
func (m *Manager) MakeDeposit(addr common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrBadAmount
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	creditLocked(m.deposits, addr, amount)
	m.logger.Debug().
		Str("address", addr.Hex()).
		Str("amount", amount.String()).
		Msg("deposit made")
	return nil
}

// WithdrawDeposit debits addr's withdrawable balance. Funds bonded under a
// claim stay locked until the claim closes.
func (m *Manager) WithdrawDeposit(addr common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrBadAmount
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	free := m.deposits[addr]
	if free == nil || free.Cmp(amount) < 0 {
		return ErrInsufficientDeposit
	}
	free.Sub(free, amount)
	m.logger.Debug().
		Str("address", addr.Hex()).
		Str("amount", amount.String()).
		Msg("deposit withdrawn")
	return nil
}

// Deposit returns addr's withdrawable balance.
func (m *Manager) Deposit(addr common.Address) *big.Int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if free := m.deposits[addr]; free != nil {
		return new(big.Int).Set(free)
	}
	return new(big.Int)
}

// Bonded returns how much addr has locked under the claim for id.
func (m *Manager) Bonded(id common.Hash, addr common.Address) *big.Int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if cl := m.claims[id]; cl != nil {
		if b := cl.bonded[addr]; b != nil {
			return new(big.Int).Set(b)
		}
	}
	return new(big.Int)
}

func creditLocked(balances map[common.Address]*big.Int, addr common.Address, amount *big.Int) {
	if b := balances[addr]; b != nil {
		b.Add(b, amount)
		return
	}
	balances[addr] = new(big.Int).Set(amount)
}

// bondLocked moves amount from addr's withdrawable balance into the claim.
func (m *Manager) bondLocked(cl *Claim, addr common.Address, amount *big.Int) error {
	free := m.deposits[addr]
	if free == nil || free.Cmp(amount) < 0 {
		return ErrInsufficientDeposit
	}
	free.Sub(free, amount)
	creditLocked(cl.bonded, addr, amount)
	return nil
}

// refundLocked reverses an earlier bond. It never moves more than addr
// still has bonded, so a claim settled in the meantime cannot be drained.
func (m *Manager) refundLocked(cl *Claim, addr common.Address, amount *big.Int) {
	b := cl.bonded[addr]
	if b == nil || b.Sign() == 0 {
		return
	}
	if b.Cmp(amount) < 0 {
		amount = new(big.Int).Set(b)
	}
	b.Sub(b, amount)
	creditLocked(m.deposits, addr, amount)
}

// awardLocked hands the loser's entire stake in the claim to the winner.
// Moving an empty stake is a no-op.
func (m *Manager) awardLocked(cl *Claim, loser, winner common.Address) {
	b := cl.bonded[loser]
	if b == nil || b.Sign() == 0 {
		return
	}
	creditLocked(cl.bonded, winner, b)
	b.SetInt64(0)
}

// unbondAllLocked releases every stake left in the claim back to its
// holder's withdrawable balance.
func (m *Manager) unbondAllLocked(cl *Claim) {
	for addr, b := range cl.bonded {
		if b.Sign() > 0 {
			creditLocked(m.deposits, addr, b)
			b.SetInt64(0)
		}
	}
}
