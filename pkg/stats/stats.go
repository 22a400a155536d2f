package stats

import (
	"slices"

	"github.com/klokku/fintrack/pkg/budget"
	"github.com/klokku/fintrack/pkg/expense"
	"github.com/shopspring/decimal"
)

// NoCategory is the top category of an empty ledger slice.
const NoCategory = "-"

var hundred = decimal.NewFromInt(100)

type CategoryTotal struct {
	Category string
	Amount   decimal.Decimal
}

// Progress is the budget utilization percentage, clamped to [0, 100].
// The zero value is unset, which is not the same as 0% spent.
type Progress struct {
	Percent decimal.Decimal
	set     bool
}

func UnsetProgress() Progress {
	return Progress{}
}

func ProgressOf(percent decimal.Decimal) Progress {
	return Progress{Percent: percent, set: true}
}

func (p Progress) IsSet() bool {
	return p.set
}

func (p Progress) String() string {
	if !p.set {
		return "unset"
	}
	return p.Percent.StringFixed(2) + "%"
}

// Summary is every derived value of one (expenses, budget) snapshot.
type Summary struct {
	Total decimal.Decimal
	Count int
	// CategoryTotals keeps categories in the order they were first seen.
	CategoryTotals []CategoryTotal
	TopCategory    string
	TopAmount      decimal.Decimal
	Budget         budget.Budget
	Progress       Progress
}

// Compute aggregates expenses against b. It is pure: the same input always
// yields the same Summary. Categories are grouped by their exact name.
func Compute(expenses []expense.Expense, b budget.Budget) Summary {
	summary := Summary{
		Total:          decimal.Zero,
		Count:          len(expenses),
		CategoryTotals: make([]CategoryTotal, 0),
		TopCategory:    NoCategory,
		TopAmount:      decimal.Zero,
		Budget:         b,
	}

	index := make(map[string]int)
	for _, e := range expenses {
		summary.Total = summary.Total.Add(e.Amount)
		idx, ok := index[e.Category]
		if !ok {
			idx = len(summary.CategoryTotals)
			index[e.Category] = idx
			summary.CategoryTotals = append(summary.CategoryTotals, CategoryTotal{Category: e.Category, Amount: decimal.Zero})
		}
		summary.CategoryTotals[idx].Amount = summary.CategoryTotals[idx].Amount.Add(e.Amount)
	}

	for i, ct := range summary.CategoryTotals {
		if i == 0 || ct.Amount.GreaterThan(summary.TopAmount) {
			summary.TopCategory = ct.Category
			summary.TopAmount = ct.Amount
		}
	}

	summary.Progress = budgetProgress(summary.Total, b)
	return summary
}

func budgetProgress(total decimal.Decimal, b budget.Budget) Progress {
	if !b.IsSet() {
		return UnsetProgress()
	}
	percent := total.Div(b.LimitAmount).Mul(hundred)
	if percent.GreaterThan(hundred) {
		percent = hundred
	}
	if percent.IsNegative() {
		percent = decimal.Zero
	}
	return ProgressOf(percent)
}

// CategoryTotal returns the spend of one category and whether it occurs at all.
func (s Summary) CategoryTotal(name string) (decimal.Decimal, bool) {
	for _, ct := range s.CategoryTotals {
		if ct.Category == name {
			return ct.Amount, true
		}
	}
	return decimal.Zero, false
}

// Breakdown returns category totals sorted by amount, largest first.
// Equal amounts keep their first-seen order.
func (s Summary) Breakdown() []CategoryTotal {
	breakdown := slices.Clone(s.CategoryTotals)
	slices.SortStableFunc(breakdown, func(a, b CategoryTotal) int {
		return b.Amount.Cmp(a.Amount)
	})
	return breakdown
}
