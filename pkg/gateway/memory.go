package gateway

import (
	"bytes"
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/klokku/fintrack/internal/utils"
	"github.com/klokku/fintrack/pkg/budget"
	"github.com/klokku/fintrack/pkg/category"
	"github.com/klokku/fintrack/pkg/expense"
	"github.com/klokku/fintrack/pkg/stats"
	"github.com/klokku/fintrack/pkg/user"
)

// Operation names passed to a MemoryGateway hook.
const (
	OpListExpenses   = "ListExpenses"
	OpCreateExpense  = "CreateExpense"
	OpUpdateExpense  = "UpdateExpense"
	OpDeleteExpense  = "DeleteExpense"
	OpImportExpenses = "ImportExpenses"
	OpGetBudget      = "GetBudget"
	OpSetBudget      = "SetBudget"
	OpListCategories = "ListCategories"
	OpCreateCategory = "CreateCategory"
	OpDeleteCategory = "DeleteCategory"
	OpExtractReceipt = "ExtractReceipt"
	OpChatQuery      = "ChatQuery"
)

// Hook runs before every MemoryGateway operation, outside the gateway lock.
// A non-nil error fails the call; a hook may also block to hold a request in flight.
type Hook func(ctx context.Context, op string) error

type memoryLedger struct {
	expenses   []expense.Expense
	budget     budget.Budget
	categories []category.Category
	seeded     bool
}

// MemoryGateway is an in-process Gateway keeping every user's ledger in maps.
// It backs the "memory" gateway kind and the tests of the ledger core.
type MemoryGateway struct {
	mu             sync.Mutex
	clock          utils.Clock
	hook           Hook
	ledgers        map[string]*memoryLedger
	nextExpenseId  int64
	nextCategoryId int64
	receipt        ReceiptFields
}

var _ Gateway = (*MemoryGateway)(nil)

func NewMemoryGateway(clock utils.Clock) *MemoryGateway {
	return &MemoryGateway{
		clock:   clock,
		ledgers: make(map[string]*memoryLedger),
	}
}

func (g *MemoryGateway) SetHook(hook Hook) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.hook = hook
}

// SetReceipt sets what ExtractReceipt returns for any image.
func (g *MemoryGateway) SetReceipt(receipt ReceiptFields) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.receipt = receipt
}

// Seed stores expenses as-is for the given user; IDs are kept when set.
func (g *MemoryGateway) Seed(userUid string, expenses ...expense.Expense) {
	g.mu.Lock()
	defer g.mu.Unlock()
	ledger := g.ledger(userUid)
	for _, e := range expenses {
		if e.ID == 0 {
			g.nextExpenseId++
			e.ID = g.nextExpenseId
		} else if e.ID > g.nextExpenseId {
			g.nextExpenseId = e.ID
		}
		if e.CreatedAt.IsZero() {
			e.CreatedAt = g.clock.Now()
		}
		ledger.expenses = append(ledger.expenses, e)
	}
}

func (g *MemoryGateway) enter(ctx context.Context, op string) (string, error) {
	uid, err := user.CurrentUid(ctx)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	g.mu.Lock()
	hook := g.hook
	g.mu.Unlock()
	if hook != nil {
		if err := hook(ctx, op); err != nil {
			return "", err
		}
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return uid, nil
}

func (g *MemoryGateway) ledger(userUid string) *memoryLedger {
	ledger, ok := g.ledgers[userUid]
	if !ok {
		ledger = &memoryLedger{budget: budget.Unset()}
		g.ledgers[userUid] = ledger
	}
	return ledger
}

func (g *MemoryGateway) ListExpenses(ctx context.Context, query expense.Query) ([]expense.Expense, error) {
	uid, err := g.enter(ctx, OpListExpenses)
	if err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	matching := make([]expense.Expense, 0)
	for _, e := range g.ledger(uid).expenses {
		if query.Matches(e) {
			matching = append(matching, e)
		}
	}
	slices.SortStableFunc(matching, func(a, b expense.Expense) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})

	limit := query.Limit
	if limit <= 0 {
		limit = expense.DefaultPageSize
	}
	if query.Offset >= len(matching) {
		return []expense.Expense{}, nil
	}
	end := min(query.Offset+limit, len(matching))
	return slices.Clone(matching[query.Offset:end]), nil
}

func (g *MemoryGateway) CreateExpense(ctx context.Context, fields expense.Fields) (expense.Expense, error) {
	uid, err := g.enter(ctx, OpCreateExpense)
	if err != nil {
		return expense.Expense{}, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.insert(uid, fields, g.clock.Now()), nil
}

func (g *MemoryGateway) insert(uid string, fields expense.Fields, createdAt time.Time) expense.Expense {
	g.nextExpenseId++
	created := expense.Expense{
		ID:          g.nextExpenseId,
		Amount:      fields.Amount,
		Category:    fields.Category,
		Description: fields.Description,
		StoreName:   fields.StoreName,
		CreatedAt:   createdAt,
	}
	ledger := g.ledger(uid)
	ledger.expenses = append(ledger.expenses, created)
	return created
}

func (g *MemoryGateway) UpdateExpense(ctx context.Context, id int64, fields expense.Fields) (expense.Expense, error) {
	uid, err := g.enter(ctx, OpUpdateExpense)
	if err != nil {
		return expense.Expense{}, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	ledger := g.ledger(uid)
	idx := slices.IndexFunc(ledger.expenses, func(e expense.Expense) bool { return e.ID == id })
	if idx < 0 {
		return expense.Expense{}, fmt.Errorf("%s %d: %w", OpUpdateExpense, id, ErrNotFound)
	}
	updated := ledger.expenses[idx]
	updated.Amount = fields.Amount
	updated.Category = fields.Category
	updated.Description = fields.Description
	updated.StoreName = fields.StoreName
	ledger.expenses[idx] = updated
	return updated, nil
}

func (g *MemoryGateway) DeleteExpense(ctx context.Context, id int64) error {
	uid, err := g.enter(ctx, OpDeleteExpense)
	if err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	ledger := g.ledger(uid)
	idx := slices.IndexFunc(ledger.expenses, func(e expense.Expense) bool { return e.ID == id })
	if idx < 0 {
		return fmt.Errorf("%s %d: %w", OpDeleteExpense, id, ErrNotFound)
	}
	ledger.expenses = slices.Delete(ledger.expenses, idx, idx+1)
	return nil
}

func (g *MemoryGateway) ImportExpenses(ctx context.Context, file []byte) (ImportResult, error) {
	uid, err := g.enter(ctx, OpImportExpenses)
	if err != nil {
		return ImportResult{}, err
	}
	batch, err := expense.ParseCSV(bytes.NewReader(file))
	if err != nil {
		return ImportResult{}, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, row := range batch.Rows {
		createdAt := row.Date
		if createdAt.IsZero() {
			createdAt = g.clock.Now()
		}
		g.insert(uid, row.Fields, createdAt)
	}
	return importResult(len(batch.Rows), batch.Skipped), nil
}

func (g *MemoryGateway) GetBudget(ctx context.Context) (budget.Budget, error) {
	uid, err := g.enter(ctx, OpGetBudget)
	if err != nil {
		return budget.Budget{}, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.ledger(uid).budget, nil
}

func (g *MemoryGateway) SetBudget(ctx context.Context, b budget.Budget) (budget.Budget, error) {
	uid, err := g.enter(ctx, OpSetBudget)
	if err != nil {
		return budget.Budget{}, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ledger(uid).budget = b.Normalize()
	return g.ledger(uid).budget, nil
}

func (g *MemoryGateway) ListCategories(ctx context.Context) ([]category.Category, error) {
	uid, err := g.enter(ctx, OpListCategories)
	if err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	ledger := g.ledger(uid)
	if !ledger.seeded && len(ledger.categories) == 0 {
		for _, name := range category.Defaults {
			g.nextCategoryId++
			ledger.categories = append(ledger.categories, category.Category{ID: g.nextCategoryId, Name: name, Color: category.DefaultColor})
		}
	}
	ledger.seeded = true
	return slices.Clone(ledger.categories), nil
}

func (g *MemoryGateway) CreateCategory(ctx context.Context, c category.Category) (category.Category, error) {
	uid, err := g.enter(ctx, OpCreateCategory)
	if err != nil {
		return category.Category{}, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	c = c.Normalize()
	ledger := g.ledger(uid)
	if slices.ContainsFunc(ledger.categories, func(existing category.Category) bool { return existing.Name == c.Name }) {
		return category.Category{}, &StatusError{Op: OpCreateCategory, Code: 400, Body: category.ErrDuplicateName.Error()}
	}
	g.nextCategoryId++
	c.ID = g.nextCategoryId
	ledger.categories = append(ledger.categories, c)
	ledger.seeded = true
	return c, nil
}

func (g *MemoryGateway) DeleteCategory(ctx context.Context, id int64) error {
	uid, err := g.enter(ctx, OpDeleteCategory)
	if err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	ledger := g.ledger(uid)
	idx := slices.IndexFunc(ledger.categories, func(c category.Category) bool { return c.ID == id })
	if idx < 0 {
		return fmt.Errorf("%s %d: %w", OpDeleteCategory, id, ErrNotFound)
	}
	ledger.categories = slices.Delete(ledger.categories, idx, idx+1)
	return nil
}

func (g *MemoryGateway) ExtractReceipt(ctx context.Context, image []byte, filename string) (ReceiptFields, error) {
	if _, err := g.enter(ctx, OpExtractReceipt); err != nil {
		return ReceiptFields{}, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.receipt, nil
}

// ChatQuery answers with a plain summary of the user's whole ledger.
func (g *MemoryGateway) ChatQuery(ctx context.Context, message string) (ChatReply, error) {
	uid, err := g.enter(ctx, OpChatQuery)
	if err != nil {
		return ChatReply{}, err
	}
	g.mu.Lock()
	ledger := g.ledger(uid)
	summary := stats.Compute(ledger.expenses, ledger.budget)
	g.mu.Unlock()

	if summary.Count == 0 {
		return ChatReply{Response: "You have no expenses recorded yet."}, nil
	}
	response := fmt.Sprintf("You have %d expenses totalling $%s. Your top category is %s.",
		summary.Count, summary.Total.StringFixed(2), summary.TopCategory)
	if summary.Progress.IsSet() {
		response += fmt.Sprintf(" You have used %s%% of your budget.", summary.Progress.Percent.Round(0).String())
	}
	return ChatReply{Response: response}, nil
}

func importResult(imported, skipped int) ImportResult {
	message := fmt.Sprintf("Successfully imported %d expenses", imported)
	if skipped > 0 {
		message += fmt.Sprintf(", skipped %d invalid rows", skipped)
	}
	return ImportResult{Message: message, ImportedCount: imported}
}
