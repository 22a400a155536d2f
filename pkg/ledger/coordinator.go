package ledger

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/klokku/fintrack/internal/event_bus"
	"github.com/klokku/fintrack/internal/utils"
	"github.com/klokku/fintrack/pkg/budget"
	"github.com/klokku/fintrack/pkg/category"
	"github.com/klokku/fintrack/pkg/expense"
	"github.com/klokku/fintrack/pkg/gateway"
	log "github.com/sirupsen/logrus"
)

type Kind string

const (
	KindAdd            Kind = "add"
	KindEdit           Kind = "edit"
	KindDelete         Kind = "delete"
	KindImport         Kind = "import"
	KindBudgetSet      Kind = "budget-set"
	KindCategoryAdd    Kind = "category-add"
	KindCategoryDelete Kind = "category-delete"
)

type Status string

const (
	StatusSubmitting Status = "submitting"
	StatusCommitted  Status = "committed"
	StatusFailed     Status = "failed"
)

// Mutation is one user-confirmed change. Which fields are read depends on Kind.
type Mutation struct {
	Kind Kind
	// ExpenseID is the target of edit and delete.
	ExpenseID int64
	// Fields are the submitted values of add and edit.
	Fields expense.Fields
	// DraftID names the draft the submission was made from. That draft is
	// cleared on commit unless it has been replaced in the meantime.
	DraftID  string
	File     []byte
	Budget   budget.Budget
	Category category.Category
}

// Result describes a finished mutation. Only the output matching Kind is filled.
type Result struct {
	RequestID string
	Kind      Kind
	Target    string
	Status    Status
	// Epoch is the counter value the commit advanced to.
	Epoch    uint64
	Expense  expense.Expense
	Import   gateway.ImportResult
	Budget   budget.Budget
	Category category.Category
	// RefreshErr is set when the commit succeeded but the triggered refetch did not.
	RefreshErr error
}

type InFlight struct {
	RequestID string
	Kind      Kind
	Target    string
	Since     time.Time
}

// Coordinator is the only writer to the store. A target has at most one
// mutation in flight; a second one is rejected before any store call.
type Coordinator struct {
	store  gateway.LedgerStore
	clock  *InvalidationClock
	drafts *DraftStaging
	bus    *event_bus.EventBus
	now    utils.Clock

	mu       sync.Mutex
	inFlight map[string]InFlight
}

func NewCoordinator(store gateway.LedgerStore, clock *InvalidationClock, drafts *DraftStaging, bus *event_bus.EventBus, now utils.Clock) *Coordinator {
	return &Coordinator{
		store:    store,
		clock:    clock,
		drafts:   drafts,
		bus:      bus,
		now:      now,
		inFlight: make(map[string]InFlight),
	}
}

// Submit runs m through Submitting to Committed or Failed. Failures wrap
// ErrMutationRejected or ErrConflictingMutation and leave all cached state as it was.
func (c *Coordinator) Submit(ctx context.Context, m Mutation) (Result, error) {
	result := Result{RequestID: uuid.NewString(), Kind: m.Kind, Target: m.target()}

	if err := m.validate(); err != nil {
		result.Status = StatusFailed
		err = fmt.Errorf("%w: %s: %w", ErrMutationRejected, m.Kind, err)
		log.Warn(err)
		c.publish(ctx, result, err)
		return result, err
	}

	if !c.claim(result) {
		result.Status = StatusFailed
		err := fmt.Errorf("%w: %s", ErrConflictingMutation, result.Target)
		log.Warnf("mutation %s rejected: %v", m.Kind, err)
		c.publish(ctx, result, err)
		return result, err
	}
	defer c.release(result.Target)

	result.Status = StatusSubmitting
	c.publish(ctx, result, nil)

	if err := c.apply(ctx, m, &result); err != nil {
		result.Status = StatusFailed
		err = fmt.Errorf("%w: %s %s: %w", ErrMutationRejected, m.Kind, result.Target, err)
		log.Warn(err)
		c.publish(ctx, result, err)
		return result, err
	}

	if m.DraftID != "" && c.drafts.ClearIf(ctx, m.DraftID) {
		log.Debugf("draft %s consumed by %s", m.DraftID, result.RequestID)
	}

	epoch, refreshErr := c.clock.Bump(ctx, m.Kind.counter())
	result.Status = StatusCommitted
	result.Epoch = epoch
	result.RefreshErr = refreshErr
	log.Infof("mutation %s on %s committed at %s epoch %d", m.Kind, result.Target, m.Kind.counter(), epoch)
	c.publish(ctx, result, nil)
	return result, nil
}

// apply issues the single store call of the mutation.
func (c *Coordinator) apply(ctx context.Context, m Mutation, result *Result) error {
	var err error
	switch m.Kind {
	case KindAdd:
		result.Expense, err = c.store.CreateExpense(ctx, m.Fields)
	case KindEdit:
		result.Expense, err = c.store.UpdateExpense(ctx, m.ExpenseID, m.Fields)
	case KindDelete:
		err = c.store.DeleteExpense(ctx, m.ExpenseID)
	case KindImport:
		result.Import, err = c.store.ImportExpenses(ctx, m.File)
	case KindBudgetSet:
		result.Budget, err = c.store.SetBudget(ctx, m.Budget.Normalize())
	case KindCategoryAdd:
		result.Category, err = c.store.CreateCategory(ctx, m.Category.Normalize())
	case KindCategoryDelete:
		err = c.store.DeleteCategory(ctx, m.Category.ID)
	default:
		err = ErrUnknownMutation
	}
	return err
}

func (c *Coordinator) claim(result Result) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, busy := c.inFlight[result.Target]; busy {
		return false
	}
	c.inFlight[result.Target] = InFlight{
		RequestID: result.RequestID,
		Kind:      result.Kind,
		Target:    result.Target,
		Since:     c.now.Now(),
	}
	return true
}

func (c *Coordinator) release(target string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.inFlight, target)
}

// InFlight lists the mutations currently submitting, oldest first.
func (c *Coordinator) InFlight() []InFlight {
	c.mu.Lock()
	pending := make([]InFlight, 0, len(c.inFlight))
	for _, f := range c.inFlight {
		pending = append(pending, f)
	}
	c.mu.Unlock()
	slices.SortFunc(pending, func(a, b InFlight) int {
		if cmp := a.Since.Compare(b.Since); cmp != 0 {
			return cmp
		}
		return strings.Compare(a.Target, b.Target)
	})
	return pending
}

func (c *Coordinator) publish(ctx context.Context, result Result, err error) {
	status := event_bus.MutationStatus{
		RequestId: result.RequestID,
		Kind:      string(result.Kind),
		Target:    result.Target,
		Status:    string(result.Status),
		Epoch:     result.Epoch,
		Err:       err,
	}
	if pubErr := c.bus.Publish(event_bus.NewEvent(ctx, event_bus.MutationStatusChanged, status)); pubErr != nil {
		log.Warnf("mutation status subscribers failed: %v", pubErr)
	}
}

func (k Kind) counter() Counter {
	if k == KindBudgetSet {
		return BudgetCounter
	}
	return LedgerCounter
}

// target is the logical resource a mutation locks while in flight.
func (m Mutation) target() string {
	switch m.Kind {
	case KindAdd:
		if m.DraftID != "" {
			return "draft:" + m.DraftID
		}
		return "expense:new:" + uuid.NewString()
	case KindEdit, KindDelete:
		return "expense:" + strconv.FormatInt(m.ExpenseID, 10)
	case KindImport:
		return "import"
	case KindBudgetSet:
		return "budget"
	case KindCategoryAdd:
		return "category:name:" + strings.TrimSpace(m.Category.Name)
	case KindCategoryDelete:
		return "category:" + strconv.FormatInt(m.Category.ID, 10)
	}
	return string(m.Kind)
}

func (m Mutation) validate() error {
	switch m.Kind {
	case KindAdd:
		return m.Fields.Validate()
	case KindEdit:
		if m.ExpenseID <= 0 {
			return fmt.Errorf("%w: expense id is required", ErrInvalidPayload)
		}
		return m.Fields.Validate()
	case KindDelete:
		if m.ExpenseID <= 0 {
			return fmt.Errorf("%w: expense id is required", ErrInvalidPayload)
		}
	case KindImport:
		if len(m.File) == 0 {
			return fmt.Errorf("%w: import file is empty", ErrInvalidPayload)
		}
	case KindBudgetSet:
		return m.Budget.Validate()
	case KindCategoryAdd:
		return m.Category.Validate()
	case KindCategoryDelete:
		if m.Category.ID <= 0 {
			return fmt.Errorf("%w: category id is required", ErrInvalidPayload)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownMutation, m.Kind)
	}
	return nil
}

// IsValidationError reports whether err was raised before the store was called.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidPayload) ||
		errors.Is(err, ErrUnknownMutation) ||
		errors.Is(err, expense.ErrInvalidAmount) ||
		errors.Is(err, expense.ErrEmptyCategory) ||
		errors.Is(err, budget.ErrNegativeLimit) ||
		errors.Is(err, category.ErrEmptyName) ||
		errors.Is(err, category.ErrInvalidColor)
}
