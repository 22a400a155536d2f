package event_bus

import (
	"time"

	"github.com/klokku/fintrack/pkg/budget"
	"github.com/klokku/fintrack/pkg/category"
	"github.com/klokku/fintrack/pkg/expense"
	"github.com/klokku/fintrack/pkg/stats"
)

const (
	LedgerEpochAdvanced    EventType = "ledger.epoch.advanced"
	BudgetEpochAdvanced    EventType = "budget.epoch.advanced"
	FilterChanged          EventType = "filter.changed"
	LedgerMaterialized     EventType = "ledger.materialized"
	BudgetMaterialized     EventType = "budget.materialized"
	CategoriesMaterialized EventType = "categories.materialized"
	StatsRecomputed        EventType = "stats.recomputed"
	MaterializeFailed      EventType = "materialize.failed"
	DraftChanged           EventType = "draft.changed"
	MutationStatusChanged  EventType = "mutation.status.changed"
)

type EpochAdvanced struct {
	Counter string
	Epoch   uint64
}

type FilterUpdated struct {
	Start *time.Time
	End   *time.Time
}

type LedgerSnapshot struct {
	Expenses []expense.Expense
	Start    *time.Time
	End      *time.Time
	Epoch    uint64
}

type BudgetSnapshot struct {
	Budget budget.Budget
	Epoch  uint64
}

type CategoriesSnapshot struct {
	Categories []category.Category
	Epoch      uint64
}

type StatsSnapshot struct {
	Summary     stats.Summary
	LedgerEpoch uint64
	BudgetEpoch uint64
}

// MaterializationFailure reports a fetch whose result was not committed.
// Resource is "ledger", "budget" or "categories".
type MaterializationFailure struct {
	Resource string
	Err      error
}

// DraftUpdated is published on every stage and clear. DraftId is empty once cleared.
type DraftUpdated struct {
	DraftId string
	Origin  string
}

type MutationStatus struct {
	RequestId string
	Kind      string
	Target    string
	Status    string
	Epoch     uint64
	Err       error
}
