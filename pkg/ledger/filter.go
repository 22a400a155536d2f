package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/klokku/fintrack/internal/event_bus"
	"github.com/klokku/fintrack/pkg/expense"
)

type Bound string

const (
	StartBound Bound = "start"
	EndBound   Bound = "end"
)

// Filter scopes the materialized slice by inclusive created_at days.
// Nil bounds are open. Start after End is passed through unchanged.
type Filter struct {
	Start *time.Time
	End   *time.Time
}

func (f Filter) IsZero() bool {
	return f.Start == nil && f.End == nil
}

func (f Filter) Equal(other Filter) bool {
	return sameBound(f.Start, other.Start) && sameBound(f.End, other.End)
}

// Query returns the list request for this filter.
func (f Filter) Query(limit int) expense.Query {
	return expense.Query{Offset: 0, Limit: limit, Start: f.Start, End: f.End}
}

func (f Filter) String() string {
	return fmt.Sprintf("[%s, %s]", formatBound(f.Start), formatBound(f.End))
}

func (f Filter) clone() Filter {
	return Filter{Start: cloneTime(f.Start), End: cloneTime(f.End)}
}

func sameBound(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func formatBound(t *time.Time) string {
	if t == nil {
		return "*"
	}
	return t.Format("2006-01-02")
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	copied := *t
	return &copied
}

// FilterState is the session's current Filter. Changes never touch the network
// themselves; subscribers of FilterChanged refetch.
type FilterState struct {
	mu      sync.Mutex
	current Filter
	bus     *event_bus.EventBus
}

func NewFilterState(bus *event_bus.EventBus) *FilterState {
	return &FilterState{bus: bus}
}

// SetBound replaces one bound; nil removes it.
func (s *FilterState) SetBound(ctx context.Context, which Bound, value *time.Time) error {
	s.mu.Lock()
	switch which {
	case StartBound:
		s.current.Start = cloneTime(value)
	case EndBound:
		s.current.End = cloneTime(value)
	default:
		s.mu.Unlock()
		return fmt.Errorf("unknown filter bound %q", which)
	}
	current := s.current.clone()
	s.mu.Unlock()
	return s.publish(ctx, current)
}

func (s *FilterState) Clear(ctx context.Context) error {
	s.mu.Lock()
	s.current = Filter{}
	s.mu.Unlock()
	return s.publish(ctx, Filter{})
}

func (s *FilterState) Current() Filter {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current.clone()
}

func (s *FilterState) publish(ctx context.Context, f Filter) error {
	return s.bus.Publish(event_bus.NewEvent(ctx, event_bus.FilterChanged, event_bus.FilterUpdated{Start: f.Start, End: f.End}))
}
