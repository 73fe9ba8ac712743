// Package escrow holds client funds in custody per job until the ledger
// releases them to the freelancer.
package escrow

import (
	"math"
	"sync"

	"github.com/pkg/errors"

	"job-escrow-service/internal/entity"
)

// Totals is a point-in-time view of all value known to the custodian.
// Free + Escrowed always equals Supply.
type Totals struct {
	Free     uint64 `json:"free"`
	Escrowed uint64 `json:"escrowed"`
	Supply   uint64 `json:"supply"`
}

// Custodian tracks free balances per actor and held amounts per job.
// Supply is the total ever deposited; no operation creates or destroys value.
type Custodian struct {
	mu     sync.RWMutex
	free   map[entity.Actor]uint64
	held   map[entity.JobID]uint64
	supply uint64
}

func NewCustodian() *Custodian {
	return &Custodian{
		free: make(map[entity.Actor]uint64),
		held: make(map[entity.JobID]uint64),
	}
}

// Restore replaces the custodian state with a previously persisted one.
func (c *Custodian) Restore(free map[entity.Actor]uint64, held map[entity.JobID]uint64) error {
	var supply uint64
	add := func(v uint64) error {
		if supply > math.MaxUint64-v {
			return errors.Wrap(entity.ErrEscrowMismatch, "restored supply overflows")
		}
		supply += v
		return nil
	}

	f := make(map[entity.Actor]uint64, len(free))
	for a, v := range free {
		if err := add(v); err != nil {
			return err
		}
		f[a] = v
	}
	h := make(map[entity.JobID]uint64, len(held))
	for id, v := range held {
		if err := add(v); err != nil {
			return err
		}
		h[id] = v
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.free, c.held, c.supply = f, h, supply
	return nil
}

// CheckDeposit reports whether Deposit would succeed, without side effects.
func (c *Custodian) CheckDeposit(actor entity.Actor, amount uint64) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.checkDepositLocked(actor, amount)
}

func (c *Custodian) checkDepositLocked(actor entity.Actor, amount uint64) error {
	if actor.IsNone() {
		return errors.Wrap(entity.ErrInvalidInput, "actor is required")
	}
	if amount == 0 {
		return errors.Wrap(entity.ErrInvalidInput, "deposit amount must be positive")
	}
	if c.supply > math.MaxUint64-amount {
		return errors.Wrapf(entity.ErrInvalidInput, "deposit of %d overflows total supply", amount)
	}
	return nil
}

// Deposit credits an actor's free balance with funds arriving from the
// external value-transfer substrate.
func (c *Custodian) Deposit(actor entity.Actor, amount uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkDepositLocked(actor, amount); err != nil {
		return err
	}
	c.free[actor] += amount
	c.supply += amount
	return nil
}

// CheckHold reports whether Hold would succeed, without side effects.
func (c *Custodian) CheckHold(actor entity.Actor, jobID entity.JobID, amount uint64) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.checkHoldLocked(actor, jobID, amount)
}

func (c *Custodian) checkHoldLocked(actor entity.Actor, jobID entity.JobID, amount uint64) error {
	if amount == 0 {
		return errors.Wrap(entity.ErrInvalidInput, "hold amount must be positive")
	}
	if _, exists := c.held[jobID]; exists {
		return errors.Wrapf(entity.ErrEscrowMismatch, "job %d already has an escrow entry", jobID)
	}
	if bal := c.free[actor]; bal < amount {
		return errors.Wrapf(entity.ErrInsufficientFunds, "actor %s has %d, needs %d", actor, bal, amount)
	}
	return nil
}

// Hold debits actor's free balance by amount and credits the escrow of jobID.
func (c *Custodian) Hold(actor entity.Actor, jobID entity.JobID, amount uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkHoldLocked(actor, jobID, amount); err != nil {
		return err
	}
	c.free[actor] -= amount
	c.held[jobID] = amount
	return nil
}

// CheckRelease reports whether Release would succeed, without side effects.
func (c *Custodian) CheckRelease(jobID entity.JobID, to entity.Actor, amount uint64) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.checkReleaseLocked(jobID, to, amount)
}

func (c *Custodian) checkReleaseLocked(jobID entity.JobID, to entity.Actor, amount uint64) error {
	if to.IsNone() {
		return errors.Wrapf(entity.ErrEscrowMismatch, "job %d: release to no actor", jobID)
	}
	held, ok := c.held[jobID]
	if !ok {
		return errors.Wrapf(entity.ErrEscrowMismatch, "job %d: no escrow entry", jobID)
	}
	if held != amount {
		return errors.Wrapf(entity.ErrEscrowMismatch, "job %d: escrow holds %d, budget is %d", jobID, held, amount)
	}
	return nil
}

// Release moves the whole escrow of jobID into to's free balance. amount must
// match the escrowed value exactly.
func (c *Custodian) Release(jobID entity.JobID, to entity.Actor, amount uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkReleaseLocked(jobID, to, amount); err != nil {
		return err
	}
	delete(c.held, jobID)
	c.free[to] += amount
	return nil
}

func (c *Custodian) BalanceOf(actor entity.Actor) uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.free[actor]
}

// EscrowedFor returns the amount held for jobID, zero once released.
func (c *Custodian) EscrowedFor(jobID entity.JobID) uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.held[jobID]
}

// Held returns a copy of every live escrow entry.
func (c *Custodian) Held() map[entity.JobID]uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[entity.JobID]uint64, len(c.held))
	for id, v := range c.held {
		out[id] = v
	}
	return out
}

// Balances returns a copy of every non-zero free balance.
func (c *Custodian) Balances() map[entity.Actor]uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[entity.Actor]uint64, len(c.free))
	for a, v := range c.free {
		if v > 0 {
			out[a] = v
		}
	}
	return out
}

func (c *Custodian) Totals() Totals {
	c.mu.RLock()
	defer c.mu.RUnlock()

	t := Totals{Supply: c.supply}
	for _, v := range c.free {
		t.Free += v
	}
	for _, v := range c.held {
		t.Escrowed += v
	}
	return t
}

// Audit verifies that no value was created or destroyed.
func (c *Custodian) Audit() error {
	t := c.Totals()
	if t.Free+t.Escrowed != t.Supply {
		return errors.Wrapf(entity.ErrEscrowMismatch, "free %d + escrowed %d != supply %d", t.Free, t.Escrowed, t.Supply)
	}
	return nil
}
