package ledger

import (
	"context"
	"fmt"
	"sync"

	"github.com/klokku/fintrack/internal/event_bus"
	log "github.com/sirupsen/logrus"
)

type Counter string

const (
	LedgerCounter Counter = "ledger"
	BudgetCounter Counter = "budget"
)

// Epochs is a reading of both counters.
type Epochs struct {
	Ledger uint64
	Budget uint64
}

// InvalidationClock holds the ledger and budget generations of one session.
// Counters only ever grow; every bump is announced on the bus.
type InvalidationClock struct {
	mu     sync.Mutex
	epochs Epochs
	bus    *event_bus.EventBus
}

func NewInvalidationClock(bus *event_bus.EventBus) *InvalidationClock {
	return &InvalidationClock{bus: bus}
}

// Bump increments the named counter and returns its new value. The returned
// error comes from the subscribers reacting to the bump, never from the bump itself.
func (c *InvalidationClock) Bump(ctx context.Context, which Counter) (uint64, error) {
	var eventType event_bus.EventType
	c.mu.Lock()
	var epoch uint64
	switch which {
	case LedgerCounter:
		c.epochs.Ledger++
		epoch = c.epochs.Ledger
		eventType = event_bus.LedgerEpochAdvanced
	case BudgetCounter:
		c.epochs.Budget++
		epoch = c.epochs.Budget
		eventType = event_bus.BudgetEpochAdvanced
	default:
		c.mu.Unlock()
		return 0, fmt.Errorf("unknown counter %q", which)
	}
	c.mu.Unlock()

	log.Debugf("%s epoch advanced to %d", which, epoch)
	err := c.bus.Publish(event_bus.NewEvent(ctx, eventType, event_bus.EpochAdvanced{Counter: string(which), Epoch: epoch}))
	return epoch, err
}

func (c *InvalidationClock) Current() Epochs {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.epochs
}

func (c *InvalidationClock) Ledger() uint64 {
	return c.Current().Ledger
}

func (c *InvalidationClock) Budget() uint64 {
	return c.Current().Budget
}
