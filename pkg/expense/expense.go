package expense

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Uncategorized is the category used when none was given.
const Uncategorized = "Uncategorized"

var (
	ErrExpenseNotFound = errors.New("expense not found")
	ErrInvalidAmount   = errors.New("amount must be greater than zero")
	ErrEmptyCategory   = errors.New("category must not be empty")
)

// Expense is a single ledger entry. ID and CreatedAt are assigned by the remote store.
type Expense struct {
	ID          int64
	Amount      decimal.Decimal
	Category    string
	Description string
	StoreName   string
	CreatedAt   time.Time
}

// Fields are the user-editable attributes of an Expense, used for create and update.
type Fields struct {
	Amount      decimal.Decimal
	Category    string
	Description string
	StoreName   string
}

func (e Expense) Fields() Fields {
	return Fields{
		Amount:      e.Amount,
		Category:    e.Category,
		Description: e.Description,
		StoreName:   e.StoreName,
	}
}

func (f Fields) Validate() error {
	if !f.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	if strings.TrimSpace(f.Category) == "" {
		return ErrEmptyCategory
	}
	return nil
}

// ParseAmount parses a user or OCR supplied amount. Zero and negative values are
// rejected. Separators are read as by ParseDecimal.
func ParseAmount(s string) (decimal.Decimal, error) {
	d, err := ParseDecimal(s)
	if err != nil || !d.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

// ParseDecimal parses an amount written with an optional "$" prefix. A comma
// followed by at most two digits and no later dot is the decimal separator, as
// in "12,50" or "1.234,56"; any other comma groups thousands, as in "1,234".
func ParseDecimal(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "$"))
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(normalizeSeparators(s))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return d, nil
}

func normalizeSeparators(s string) string {
	comma := strings.LastIndex(s, ",")
	if comma < 0 {
		return s
	}
	dot := strings.LastIndex(s, ".")
	if comma > dot && len(s)-comma-1 <= 2 {
		return strings.ReplaceAll(s[:comma], ".", "") + "." + strings.ReplaceAll(s[comma+1:], ",", "")
	}
	return strings.ReplaceAll(s, ",", "")
}
