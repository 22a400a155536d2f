package ledger

import (
	"context"
	"fmt"
	"io"
	"slices"
	"sync"
	"time"

	"github.com/klokku/fintrack/internal/event_bus"
	"github.com/klokku/fintrack/internal/utils"
	"github.com/klokku/fintrack/pkg/budget"
	"github.com/klokku/fintrack/pkg/category"
	"github.com/klokku/fintrack/pkg/expense"
	"github.com/klokku/fintrack/pkg/gateway"
	"github.com/klokku/fintrack/pkg/stats"
	"github.com/klokku/fintrack/pkg/user"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

type Config struct {
	// PageSize is the limit of the single list request per materialization.
	PageSize int
}

// AsOf is the (filter, ledger epoch) pair a materialized slice satisfies.
type AsOf struct {
	Filter Filter
	Epoch  uint64
}

type SessionStatus struct {
	Epochs          Epochs
	AsOf            AsOf
	Loaded          bool
	Filter          Filter
	InFlight        []InFlight
	LedgerError     error
	BudgetError     error
	CategoriesError error
}

// view is what readers see. Expenses, budget and summary always change together.
type view struct {
	expenses     []expense.Expense
	asOf         AsOf
	ledgerLoaded bool
	budget       budget.Budget
	budgetEpoch  uint64
	summary      stats.Summary
}

// Session is the ledger core of one user. It owns its own bus, so subscribers
// only ever see their own user's events.
type Session struct {
	user     user.User
	gateway  gateway.Gateway
	pageSize int

	bus         *event_bus.EventBus
	clock       *InvalidationClock
	filter      *FilterState
	drafts      *DraftStaging
	coordinator *Coordinator

	ledger     *Cache[AsOf, []expense.Expense]
	budget     *Cache[uint64, budget.Budget]
	categories *Cache[uint64, []category.Category]

	viewMu sync.RWMutex
	view   view

	loadMu sync.Mutex
	loaded bool

	unsubscribe []func()
}

func NewSession(u user.User, gw gateway.Gateway, cfg Config, now utils.Clock) *Session {
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = expense.DefaultPageSize
	}
	bus := event_bus.NewEventBus()
	s := &Session{
		user:     u,
		gateway:  gw,
		pageSize: pageSize,
		bus:      bus,
		clock:    NewInvalidationClock(bus),
		filter:   NewFilterState(bus),
		drafts:   NewDraftStaging(bus),
	}
	s.coordinator = NewCoordinator(gw, s.clock, s.drafts, bus, now)
	s.view.budget = budget.Unset()
	s.view.summary = stats.Compute(nil, s.view.budget)

	s.ledger = NewCache("ledger", s.commitLedger)
	s.budget = NewCache("budget", s.commitBudget)
	s.categories = NewCache[uint64, []category.Category]("categories", nil)

	s.unsubscribe = append(s.unsubscribe,
		event_bus.SubscribeTyped[event_bus.EpochAdvanced](bus, event_bus.LedgerEpochAdvanced,
			func(e event_bus.EventT[event_bus.EpochAdvanced]) error {
				return s.refreshLedgerAndCategories(e.Context())
			}),
		event_bus.SubscribeTyped[event_bus.EpochAdvanced](bus, event_bus.BudgetEpochAdvanced,
			func(e event_bus.EventT[event_bus.EpochAdvanced]) error {
				return s.RefreshBudget(e.Context())
			}),
		event_bus.SubscribeTyped[event_bus.FilterUpdated](bus, event_bus.FilterChanged,
			func(e event_bus.EventT[event_bus.FilterUpdated]) error {
				return s.RefreshLedger(e.Context())
			}),
	)
	return s
}

func (s *Session) User() user.User {
	return s.user
}

// Bus exposes the session's subscriptions to the presentation layer.
func (s *Session) Bus() *event_bus.EventBus {
	return s.bus
}

// Close drops the session's own subscriptions.
func (s *Session) Close() {
	for _, unsubscribe := range s.unsubscribe {
		unsubscribe()
	}
	s.unsubscribe = nil
}

func (s *Session) ctx(ctx context.Context) context.Context {
	return user.WithUser(ctx, s.user)
}

// Bootstrap materializes ledger, budget and categories concurrently.
func (s *Session) Bootstrap(ctx context.Context) error {
	ctx = s.ctx(ctx)
	var g errgroup.Group
	g.Go(func() error { return s.RefreshLedger(ctx) })
	g.Go(func() error { return s.RefreshBudget(ctx) })
	g.Go(func() error { return s.RefreshCategories(ctx) })
	return g.Wait()
}

// EnsureLoaded bootstraps the session once. A failed bootstrap is retried on the next call.
func (s *Session) EnsureLoaded(ctx context.Context) error {
	s.loadMu.Lock()
	defer s.loadMu.Unlock()
	if s.loaded {
		return nil
	}
	if err := s.Bootstrap(ctx); err != nil {
		return err
	}
	s.loaded = true
	return nil
}

// RefreshLedger materializes the slice for the current filter and ledger epoch.
func (s *Session) RefreshLedger(ctx context.Context) error {
	ctx = s.ctx(ctx)
	committed, err := s.ledger.Materialize(ctx, s.asOf, func(ctx context.Context, key AsOf) ([]expense.Expense, error) {
		log.Debugf("materializing ledger for %s at epoch %d, filter %s", s.user.Uid, key.Epoch, key.Filter)
		return s.gateway.ListExpenses(ctx, key.Filter.Query(s.pageSize))
	})
	if err != nil {
		s.publishFailure(ctx, "ledger", err)
		return err
	}
	if !committed {
		return nil
	}

	s.viewMu.RLock()
	snapshot := event_bus.LedgerSnapshot{
		Expenses: slices.Clone(s.view.expenses),
		Start:    s.view.asOf.Filter.Start,
		End:      s.view.asOf.Filter.End,
		Epoch:    s.view.asOf.Epoch,
	}
	s.viewMu.RUnlock()
	s.publish(ctx, event_bus.LedgerMaterialized, snapshot)
	s.publishStats(ctx)
	return nil
}

// RefreshBudget materializes the budget for the current budget epoch.
func (s *Session) RefreshBudget(ctx context.Context) error {
	ctx = s.ctx(ctx)
	committed, err := s.budget.Materialize(ctx, s.clock.Budget, func(ctx context.Context, epoch uint64) (budget.Budget, error) {
		b, err := s.gateway.GetBudget(ctx)
		return b.Normalize(), err
	})
	if err != nil {
		s.publishFailure(ctx, "budget", err)
		return err
	}
	if !committed {
		return nil
	}

	s.viewMu.RLock()
	snapshot := event_bus.BudgetSnapshot{Budget: s.view.budget, Epoch: s.view.budgetEpoch}
	s.viewMu.RUnlock()
	s.publish(ctx, event_bus.BudgetMaterialized, snapshot)
	s.publishStats(ctx)
	return nil
}

// RefreshCategories materializes the category list. Categories follow the ledger epoch.
func (s *Session) RefreshCategories(ctx context.Context) error {
	ctx = s.ctx(ctx)
	committed, err := s.categories.Materialize(ctx, s.clock.Ledger, func(ctx context.Context, epoch uint64) ([]category.Category, error) {
		return s.gateway.ListCategories(ctx)
	})
	if err != nil {
		s.publishFailure(ctx, "categories", err)
		return err
	}
	if committed {
		categories, epoch, _ := s.categories.Snapshot()
		s.publish(ctx, event_bus.CategoriesMaterialized, event_bus.CategoriesSnapshot{
			Categories: slices.Clone(categories),
			Epoch:      epoch,
		})
	}
	return nil
}

// asOf is the (filter, epoch) pair a ledger request issued now must satisfy.
func (s *Session) asOf() AsOf {
	return AsOf{Filter: s.filter.Current(), Epoch: s.clock.Ledger()}
}

func (s *Session) refreshLedgerAndCategories(ctx context.Context) error {
	ledgerErr := s.RefreshLedger(ctx)
	categoriesErr := s.RefreshCategories(ctx)
	if ledgerErr != nil {
		return ledgerErr
	}
	return categoriesErr
}

func (s *Session) commitLedger(key AsOf, expenses []expense.Expense) {
	s.viewMu.Lock()
	defer s.viewMu.Unlock()
	s.view.expenses = expenses
	s.view.asOf = key
	s.view.ledgerLoaded = true
	s.view.summary = stats.Compute(expenses, s.view.budget)
}

func (s *Session) commitBudget(epoch uint64, b budget.Budget) {
	s.viewMu.Lock()
	defer s.viewMu.Unlock()
	s.view.budget = b
	s.view.budgetEpoch = epoch
	s.view.summary = stats.Compute(s.view.expenses, b)
}

func (s *Session) publishStats(ctx context.Context) {
	s.viewMu.RLock()
	snapshot := event_bus.StatsSnapshot{
		Summary:     s.view.summary,
		LedgerEpoch: s.view.asOf.Epoch,
		BudgetEpoch: s.view.budgetEpoch,
	}
	s.viewMu.RUnlock()
	s.publish(ctx, event_bus.StatsRecomputed, snapshot)
}

func (s *Session) publishFailure(ctx context.Context, resource string, err error) {
	s.publish(ctx, event_bus.MaterializeFailed, event_bus.MaterializationFailure{Resource: resource, Err: err})
}

func (s *Session) publish(ctx context.Context, eventType event_bus.EventType, data any) {
	if err := s.bus.Publish(event_bus.NewEvent(ctx, eventType, data)); err != nil {
		log.Warnf("subscribers of %s failed: %v", eventType, err)
	}
}

// Expenses returns the materialized slice and the (filter, epoch) it satisfies.
func (s *Session) Expenses() ([]expense.Expense, AsOf) {
	s.viewMu.RLock()
	defer s.viewMu.RUnlock()
	return slices.Clone(s.view.expenses), s.view.asOf
}

// Summary returns the aggregation of the current expenses and budget.
func (s *Session) Summary() stats.Summary {
	s.viewMu.RLock()
	defer s.viewMu.RUnlock()
	return s.view.summary
}

func (s *Session) Budget() (budget.Budget, uint64) {
	s.viewMu.RLock()
	defer s.viewMu.RUnlock()
	return s.view.budget, s.view.budgetEpoch
}

func (s *Session) Categories() []category.Category {
	categories, _, ok := s.categories.Snapshot()
	if !ok {
		return []category.Category{}
	}
	return slices.Clone(categories)
}

func (s *Session) categoryNames() []string {
	return category.Names(s.Categories())
}

func (s *Session) Filter() Filter {
	return s.filter.Current()
}

func (s *Session) Epochs() Epochs {
	return s.clock.Current()
}

func (s *Session) Status() SessionStatus {
	s.viewMu.RLock()
	asOf := s.view.asOf
	loaded := s.view.ledgerLoaded
	s.viewMu.RUnlock()
	return SessionStatus{
		Epochs:          s.clock.Current(),
		AsOf:            asOf,
		Loaded:          loaded,
		Filter:          s.filter.Current(),
		InFlight:        s.coordinator.InFlight(),
		LedgerError:     s.ledger.LastError(),
		BudgetError:     s.budget.LastError(),
		CategoriesError: s.categories.LastError(),
	}
}

// SetFilterBound replaces one filter bound and refetches. The returned error is
// the refetch failure; the filter itself is always applied.
func (s *Session) SetFilterBound(ctx context.Context, which Bound, value *time.Time) error {
	return s.filter.SetBound(s.ctx(ctx), which, value)
}

func (s *Session) ClearFilter(ctx context.Context) error {
	return s.filter.Clear(s.ctx(ctx))
}

func (s *Session) Submit(ctx context.Context, m Mutation) (Result, error) {
	return s.coordinator.Submit(s.ctx(ctx), m)
}

func (s *Session) StageDraft(ctx context.Context, d Draft) Draft {
	return s.drafts.Stage(s.ctx(ctx), d)
}

func (s *Session) ClearDraft(ctx context.Context) {
	s.drafts.Clear(s.ctx(ctx))
}

func (s *Session) Draft() (Draft, bool) {
	return s.drafts.Current()
}

// DraftForm returns the staged draft with the form defaults applied.
func (s *Session) DraftForm() (Draft, Form, error) {
	d, ok := s.drafts.Current()
	if !ok {
		return Draft{}, Form{}, ErrNoDraft
	}
	return d, d.Form(s.categoryNames()), nil
}

// StageReceipt extracts a receipt and stages the result. A malformed extraction
// is still staged as a partial draft and returned with ErrMalformedDraft.
func (s *Session) StageReceipt(ctx context.Context, image []byte, filename string) (Draft, error) {
	ctx = s.ctx(ctx)
	fields, err := s.gateway.ExtractReceipt(ctx, image, filename)
	if err != nil {
		return Draft{}, fmt.Errorf("receipt extraction: %w", err)
	}
	draft, parseErr := DraftFromReceipt(fields)
	staged := s.drafts.Stage(ctx, draft)
	if parseErr != nil {
		log.Warnf("staged partial receipt draft %s: %v", staged.ID, parseErr)
	}
	return staged, parseErr
}

// StageEdit stages a materialized expense for editing.
func (s *Session) StageEdit(ctx context.Context, id int64) (Draft, error) {
	expenses, _ := s.Expenses()
	idx := slices.IndexFunc(expenses, func(e expense.Expense) bool { return e.ID == id })
	if idx < 0 {
		return Draft{}, fmt.Errorf("%w: %d", ErrNotMaterialized, id)
	}
	return s.drafts.Stage(s.ctx(ctx), DraftFromExpense(expenses[idx])), nil
}

// Ask forwards a question to the assistant. It never changes session state.
func (s *Session) Ask(ctx context.Context, question string) (gateway.ChatReply, error) {
	return s.gateway.ChatQuery(s.ctx(ctx), question)
}

// ExportCSV writes the materialized slice.
func (s *Session) ExportCSV(w io.Writer) error {
	expenses, _ := s.Expenses()
	return expense.WriteCSV(w, expenses)
}
