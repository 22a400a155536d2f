package gateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/klokku/fintrack/pkg/budget"
	"github.com/klokku/fintrack/pkg/category"
	"github.com/klokku/fintrack/pkg/expense"
	"github.com/klokku/fintrack/pkg/user"
	log "github.com/sirupsen/logrus"
)

// PostgresStore is a LedgerStore backed directly by the local database.
type PostgresStore struct {
	expenses   expense.Repository
	budgets    budget.Repository
	categories category.Repository
}

var _ LedgerStore = (*PostgresStore)(nil)

func NewPostgresStore(expenses expense.Repository, budgets budget.Repository, categories category.Repository) *PostgresStore {
	return &PostgresStore{
		expenses:   expenses,
		budgets:    budgets,
		categories: categories,
	}
}

func (s *PostgresStore) ListExpenses(ctx context.Context, query expense.Query) ([]expense.Expense, error) {
	uid, err := user.CurrentUid(ctx)
	if err != nil {
		return nil, err
	}
	return s.expenses.List(ctx, uid, query)
}

func (s *PostgresStore) CreateExpense(ctx context.Context, fields expense.Fields) (expense.Expense, error) {
	uid, err := user.CurrentUid(ctx)
	if err != nil {
		return expense.Expense{}, err
	}
	return s.expenses.Create(ctx, uid, fields)
}

func (s *PostgresStore) UpdateExpense(ctx context.Context, id int64, fields expense.Fields) (expense.Expense, error) {
	uid, err := user.CurrentUid(ctx)
	if err != nil {
		return expense.Expense{}, err
	}
	updated, err := s.expenses.Update(ctx, uid, id, fields)
	if errors.Is(err, expense.ErrExpenseNotFound) {
		return expense.Expense{}, fmt.Errorf("update expense %d: %w", id, ErrNotFound)
	}
	return updated, err
}

func (s *PostgresStore) DeleteExpense(ctx context.Context, id int64) error {
	uid, err := user.CurrentUid(ctx)
	if err != nil {
		return err
	}
	err = s.expenses.Delete(ctx, uid, id)
	if errors.Is(err, expense.ErrExpenseNotFound) {
		return fmt.Errorf("delete expense %d: %w", id, ErrNotFound)
	}
	return err
}

func (s *PostgresStore) ImportExpenses(ctx context.Context, file []byte) (ImportResult, error) {
	uid, err := user.CurrentUid(ctx)
	if err != nil {
		return ImportResult{}, err
	}
	batch, err := expense.ParseCSV(bytes.NewReader(file))
	if err != nil {
		return ImportResult{}, err
	}
	imported, err := s.expenses.Import(ctx, uid, batch.Rows)
	if err != nil {
		return ImportResult{}, err
	}
	log.Infof("imported %d expenses for user %s (%d skipped)", imported, uid, batch.Skipped)
	return importResult(imported, batch.Skipped), nil
}

func (s *PostgresStore) GetBudget(ctx context.Context) (budget.Budget, error) {
	uid, err := user.CurrentUid(ctx)
	if err != nil {
		return budget.Budget{}, err
	}
	return s.budgets.Get(ctx, uid)
}

func (s *PostgresStore) SetBudget(ctx context.Context, b budget.Budget) (budget.Budget, error) {
	uid, err := user.CurrentUid(ctx)
	if err != nil {
		return budget.Budget{}, err
	}
	return s.budgets.Store(ctx, uid, b)
}

func (s *PostgresStore) ListCategories(ctx context.Context) ([]category.Category, error) {
	uid, err := user.CurrentUid(ctx)
	if err != nil {
		return nil, err
	}
	return s.categories.GetAll(ctx, uid)
}

func (s *PostgresStore) CreateCategory(ctx context.Context, c category.Category) (category.Category, error) {
	uid, err := user.CurrentUid(ctx)
	if err != nil {
		return category.Category{}, err
	}
	return s.categories.Store(ctx, uid, c)
}

func (s *PostgresStore) DeleteCategory(ctx context.Context, id int64) error {
	uid, err := user.CurrentUid(ctx)
	if err != nil {
		return err
	}
	err = s.categories.Delete(ctx, uid, id)
	if errors.Is(err, category.ErrCategoryNotFound) {
		return fmt.Errorf("delete category %d: %w", id, ErrNotFound)
	}
	return err
}
