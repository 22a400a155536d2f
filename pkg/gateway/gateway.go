package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/klokku/fintrack/pkg/budget"
	"github.com/klokku/fintrack/pkg/category"
	"github.com/klokku/fintrack/pkg/expense"
)

var (
	ErrNotFound    = errors.New("not found")
	ErrUnsupported = errors.New("operation not supported by this gateway")
)

// StatusError is returned when the remote store answers with an unexpected status.
type StatusError struct {
	Op   string
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: remote returned status %d: %s", e.Op, e.Code, e.Body)
}

// ImportResult is the store's acknowledgement of a bulk import.
type ImportResult struct {
	Message       string
	ImportedCount int
}

// ReceiptFields is the raw, best-effort OCR output. Every field may be empty;
// Amount is kept as text so the caller can tell a missing value from a malformed one.
type ReceiptFields struct {
	Text        string
	Amount      string
	StoreName   string
	Category    string
	Description string
}

type ChatReply struct {
	Response string
}

type ExpenseLister interface {
	ListExpenses(ctx context.Context, query expense.Query) ([]expense.Expense, error)
}

// LedgerStore is the persistence side of the remote collaborator. All calls are
// scoped to the user carried by ctx.
type LedgerStore interface {
	ExpenseLister
	CreateExpense(ctx context.Context, fields expense.Fields) (expense.Expense, error)
	UpdateExpense(ctx context.Context, id int64, fields expense.Fields) (expense.Expense, error)
	DeleteExpense(ctx context.Context, id int64) error
	ImportExpenses(ctx context.Context, file []byte) (ImportResult, error)

	GetBudget(ctx context.Context) (budget.Budget, error)
	SetBudget(ctx context.Context, b budget.Budget) (budget.Budget, error)

	ListCategories(ctx context.Context) ([]category.Category, error)
	CreateCategory(ctx context.Context, c category.Category) (category.Category, error)
	DeleteCategory(ctx context.Context, id int64) error
}

// Assistant covers the black-box services: receipt OCR and ledger Q&A.
type Assistant interface {
	ExtractReceipt(ctx context.Context, image []byte, filename string) (ReceiptFields, error)
	ChatQuery(ctx context.Context, message string) (ChatReply, error)
}

// Gateway is everything the ledger core consumes from the outside world.
type Gateway interface {
	LedgerStore
	Assistant
}
