package expense

import "time"

const DefaultPageSize = 100

// Query selects a page of the ledger. Start and End are inclusive calendar days
// compared against CreatedAt; nil means unbounded.
type Query struct {
	Offset int
	Limit  int
	Start  *time.Time
	End    *time.Time
}

// Matches reports whether the expense falls inside the query's date bounds.
func (q Query) Matches(e Expense) bool {
	if q.Start != nil && e.CreatedAt.Before(StartOfDay(*q.Start)) {
		return false
	}
	if q.End != nil && !e.CreatedAt.Before(StartOfDay(*q.End).AddDate(0, 0, 1)) {
		return false
	}
	return true
}

// StartOfDay truncates t to midnight in its own location.
func StartOfDay(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, t.Location())
}
