package worker

import (
	"sync"

	"github.com/marmos91/smbclient/internal/metrics"
)

// creditBudget tracks the client's credit balance. Consumption blocks until
// the balance covers the charge; grants come from response headers.
//
// The initial balance is one credit: the protocol guarantees a fresh
// connection may send exactly one request (NEGOTIATE).
type creditBudget struct {
	mu        sync.Mutex
	cond      *sync.Cond
	available uint32
	backlog   uint16
	closed    bool
}

func newCreditBudget(backlog uint16) *creditBudget {
	b := &creditBudget{available: 1, backlog: backlog}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// consume blocks until charge credits are available, then deducts them.
// A charge beyond the whole backlog window can never be satisfied and is
// rejected immediately as credit starvation.
func (b *creditBudget) consume(charge uint16) error {
	if charge == 0 {
		charge = 1
	}
	if uint32(charge) > uint32(b.backlog) {
		return ErrCreditStarvation
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for b.available < uint32(charge) && !b.closed {
		b.cond.Wait()
	}
	if b.closed {
		return ErrNotConnected
	}
	b.available -= uint32(charge)
	metrics.CreditsAvailable.Set(float64(b.available))
	return nil
}

// grant adds credits granted by a response.
func (b *creditBudget) grant(credits uint16) {
	if credits == 0 {
		return
	}
	b.mu.Lock()
	b.available += uint32(credits)
	metrics.CreditsAvailable.Set(float64(b.available))
	b.mu.Unlock()
	b.cond.Broadcast()
}

// balance returns the current balance.
func (b *creditBudget) balance() uint32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.available
}

// request computes the credit-request header field: aim to keep backlog
// credits in hand on top of the current charge.
func (b *creditBudget) request(charge uint16) uint16 {
	b.mu.Lock()
	defer b.mu.Unlock()
	want := uint32(b.backlog)
	if b.available >= want {
		return charge
	}
	missing := want - b.available
	if missing > 0xFFFF {
		missing = 0xFFFF
	}
	return uint16(missing)
}

// close releases all waiters.
func (b *creditBudget) close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	b.cond.Broadcast()
}
