package ledger

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/klokku/fintrack/internal/event_bus"
	"github.com/klokku/fintrack/internal/test_utils"
	"github.com/klokku/fintrack/internal/utils"
	"github.com/klokku/fintrack/pkg/budget"
	"github.com/klokku/fintrack/pkg/category"
	"github.com/klokku/fintrack/pkg/expense"
	"github.com/klokku/fintrack/pkg/gateway"
	"github.com/klokku/fintrack/pkg/user"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sessionNow = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

func newSession(t *testing.T, seed ...expense.Expense) (*Session, *gateway.MemoryGateway) {
	t.Helper()
	clock := utils.NewMockClock(sessionNow)
	gw := gateway.NewMemoryGateway(clock)
	u := test_utils.NewTestUser()
	gw.Seed(u.Uid, seed...)
	session := NewSession(u, gw, Config{PageSize: 100}, clock)
	require.NoError(t, session.EnsureLoaded(context.Background()))
	t.Cleanup(session.Close)
	return session, gw
}

func amount(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func ids(expenses []expense.Expense) []int64 {
	result := make([]int64, 0, len(expenses))
	for _, e := range expenses {
		result = append(result, e.ID)
	}
	return result
}

func TestSession_BootstrapMaterializesEverything(t *testing.T) {
	// given
	session, _ := newSession(t,
		expense.Expense{ID: 1, Amount: amount("10"), Category: "Food"},
		expense.Expense{ID: 2, Amount: amount("30"), Category: "Food"},
		expense.Expense{ID: 3, Amount: amount("5"), Category: "Gas"},
	)

	// when
	expenses, asOf := session.Expenses()
	summary := session.Summary()

	// then
	assert.Len(t, expenses, 3)
	assert.Equal(t, uint64(0), asOf.Epoch)
	assert.True(t, asOf.Filter.IsZero())
	assert.True(t, summary.Total.Equal(amount("45")))
	assert.Equal(t, "Food", summary.TopCategory)
	assert.False(t, summary.Progress.IsSet())
	assert.NotEmpty(t, session.Categories())
	assert.True(t, session.Status().Loaded)
}

func TestSession_FilterSetThenCleared(t *testing.T) {
	// given
	january := expense.Expense{ID: 1, Amount: amount("10"), Category: "Food", CreatedAt: time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)}
	march := expense.Expense{ID: 2, Amount: amount("25"), Category: "Gas", CreatedAt: time.Date(2024, 3, 2, 9, 0, 0, 0, time.UTC)}
	session, _ := newSession(t, january, march)
	ctx := context.Background()

	// when
	require.NoError(t, session.SetFilterBound(ctx, StartBound, day(2024, 1, 1)))
	require.NoError(t, session.SetFilterBound(ctx, EndBound, day(2024, 1, 31)))
	filtered, filteredAsOf := session.Expenses()
	filteredSummary := session.Summary()

	require.NoError(t, session.ClearFilter(ctx))
	cleared, clearedAsOf := session.Expenses()
	clearedSummary := session.Summary()

	// then
	assert.Equal(t, []int64{1}, ids(filtered))
	assert.True(t, filteredAsOf.Filter.Equal(Filter{Start: day(2024, 1, 1), End: day(2024, 1, 31)}))
	assert.True(t, filteredSummary.Total.Equal(amount("10")))

	assert.ElementsMatch(t, []int64{1, 2}, ids(cleared))
	assert.True(t, clearedAsOf.Filter.IsZero())
	assert.True(t, clearedSummary.Total.Equal(amount("35")))
	gas, ok := clearedSummary.CategoryTotal("Gas")
	require.True(t, ok)
	assert.True(t, gas.Equal(amount("25")))
}

func TestSession_DeleteAdvancesEpochAndRefetches(t *testing.T) {
	// given
	session, _ := newSession(t,
		expense.Expense{ID: 7, Amount: amount("12"), Category: "Food"},
		expense.Expense{ID: 8, Amount: amount("3"), Category: "Gas"},
	)
	before := session.Epochs()

	// when
	result, err := session.Submit(context.Background(), Mutation{Kind: KindDelete, ExpenseID: 7})

	// then
	require.NoError(t, err)
	assert.Equal(t, StatusCommitted, result.Status)
	assert.Equal(t, "expense:7", result.Target)
	assert.Equal(t, before.Ledger+1, result.Epoch)
	assert.Equal(t, before.Budget, session.Epochs().Budget)

	expenses, asOf := session.Expenses()
	assert.Equal(t, []int64{8}, ids(expenses))
	assert.Equal(t, result.Epoch, asOf.Epoch)
	assert.True(t, session.Summary().Total.Equal(amount("3")))
}

func TestSession_AddEditImportEachBumpLedgerOnce(t *testing.T) {
	// given
	session, _ := newSession(t)
	ctx := context.Background()

	// when
	added, err := session.Submit(ctx, Mutation{Kind: KindAdd, Fields: expense.Fields{Amount: amount("4.50"), Category: "Food"}})
	require.NoError(t, err)
	edited, err := session.Submit(ctx, Mutation{Kind: KindEdit, ExpenseID: added.Expense.ID, Fields: expense.Fields{Amount: amount("5"), Category: "Food"}})
	require.NoError(t, err)
	imported, err := session.Submit(ctx, Mutation{Kind: KindImport, File: []byte("amount,category\n2,Gas\n3,Gas\n")})
	require.NoError(t, err)

	// then
	assert.Equal(t, uint64(1), added.Epoch)
	assert.Equal(t, uint64(2), edited.Epoch)
	assert.Equal(t, uint64(3), imported.Epoch)
	assert.Equal(t, 2, imported.Import.ImportedCount)
	assert.Equal(t, Epochs{Ledger: 3, Budget: 0}, session.Epochs())

	summary := session.Summary()
	assert.Equal(t, 3, summary.Count)
	assert.True(t, summary.Total.Equal(amount("10")))
}

func TestSession_BudgetSetBumpsOnlyBudgetAndClampsProgress(t *testing.T) {
	// given
	session, _ := newSession(t,
		expense.Expense{ID: 1, Amount: amount("100"), Category: "Food"},
		expense.Expense{ID: 2, Amount: amount("50"), Category: "Food"},
	)
	_, ledgerAsOf := session.Expenses()

	// when
	result, err := session.Submit(context.Background(), Mutation{
		Kind:   KindBudgetSet,
		Budget: budget.Budget{LimitAmount: amount("100")},
	})

	// then
	require.NoError(t, err)
	assert.Equal(t, uint64(1), result.Epoch)
	assert.Equal(t, budget.Monthly, result.Budget.Period)
	assert.Equal(t, Epochs{Ledger: 0, Budget: 1}, session.Epochs())
	_, asOf := session.Expenses()
	assert.Equal(t, ledgerAsOf, asOf)

	b, epoch := session.Budget()
	assert.Equal(t, uint64(1), epoch)
	assert.True(t, b.LimitAmount.Equal(amount("100")))
	progress := session.Summary().Progress
	require.True(t, progress.IsSet())
	assert.True(t, progress.Percent.Equal(decimal.NewFromInt(100)))
}

func TestSession_ValidationFailsBeforeTheStore(t *testing.T) {
	// given
	session, gw := newSession(t)
	var calls atomic.Int32
	gw.SetHook(func(ctx context.Context, op string) error {
		calls.Add(1)
		return nil
	})

	// when
	_, err := session.Submit(context.Background(), Mutation{Kind: KindAdd, Fields: expense.Fields{Amount: amount("0"), Category: "Food"}})

	// then
	assert.ErrorIs(t, err, ErrMutationRejected)
	assert.ErrorIs(t, err, expense.ErrInvalidAmount)
	assert.True(t, IsValidationError(err))
	assert.Zero(t, calls.Load())
	assert.Equal(t, Epochs{}, session.Epochs())
}

func TestSession_RejectedMutationChangesNothing(t *testing.T) {
	// given
	session, gw := newSession(t, expense.Expense{ID: 1, Amount: amount("10"), Category: "Food"})
	staged := session.StageDraft(context.Background(), Draft{Origin: OriginReceipt, Amount: amount("8"), HasAmount: true})
	storeDown := errors.New("store unavailable")
	gw.SetHook(func(ctx context.Context, op string) error {
		if op == gateway.OpCreateExpense {
			return storeDown
		}
		return nil
	})
	before, beforeAsOf := session.Expenses()

	// when
	result, err := session.Submit(context.Background(), Mutation{
		Kind:    KindAdd,
		Fields:  expense.Fields{Amount: amount("8"), Category: "Food"},
		DraftID: staged.ID,
	})

	// then
	assert.ErrorIs(t, err, ErrMutationRejected)
	assert.ErrorIs(t, err, storeDown)
	assert.Equal(t, StatusFailed, result.Status)
	assert.Equal(t, Epochs{}, session.Epochs())
	after, afterAsOf := session.Expenses()
	assert.Equal(t, before, after)
	assert.Equal(t, beforeAsOf, afterAsOf)
	current, ok := session.Draft()
	require.True(t, ok)
	assert.Equal(t, staged.ID, current.ID)
}

func TestSession_ConflictingMutationIsRejected(t *testing.T) {
	// given a delete of expense 7 held inside the store
	session, gw := newSession(t, expense.Expense{ID: 7, Amount: amount("12"), Category: "Food"})
	entered := make(chan struct{})
	release := make(chan struct{})
	gw.SetHook(func(ctx context.Context, op string) error {
		if op == gateway.OpDeleteExpense {
			close(entered)
			<-release
		}
		return nil
	})

	var wg sync.WaitGroup
	var firstErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, firstErr = session.Submit(context.Background(), Mutation{Kind: KindDelete, ExpenseID: 7})
	}()
	<-entered

	// when
	inFlight := session.Status().InFlight
	_, secondErr := session.Submit(context.Background(), Mutation{Kind: KindEdit, ExpenseID: 7, Fields: expense.Fields{Amount: amount("1"), Category: "Food"}})
	_, otherErr := session.Submit(context.Background(), Mutation{Kind: KindBudgetSet, Budget: budget.Budget{LimitAmount: amount("50")}})
	close(release)
	wg.Wait()

	// then
	assert.ErrorIs(t, secondErr, ErrConflictingMutation)
	assert.NoError(t, otherErr)
	require.Len(t, inFlight, 1)
	assert.Equal(t, "expense:7", inFlight[0].Target)
	assert.Equal(t, KindDelete, inFlight[0].Kind)
	require.NoError(t, firstErr)
	assert.Empty(t, session.Status().InFlight)
	assert.Equal(t, Epochs{Ledger: 1, Budget: 1}, session.Epochs())
}

func TestSession_SupersededFilterResponseIsDiscarded(t *testing.T) {
	// given a filter change whose list request is held inside the store
	january := expense.Expense{ID: 1, Amount: amount("10"), Category: "Food", CreatedAt: time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)}
	march := expense.Expense{ID: 2, Amount: amount("25"), Category: "Gas", CreatedAt: time.Date(2024, 3, 2, 9, 0, 0, 0, time.UTC)}
	session, gw := newSession(t, january, march)

	entered := make(chan struct{})
	release := make(chan struct{})
	var held atomic.Bool
	gw.SetHook(func(ctx context.Context, op string) error {
		if op == gateway.OpListExpenses && held.CompareAndSwap(false, true) {
			close(entered)
			<-release
		}
		return nil
	})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = session.SetFilterBound(context.Background(), EndBound, day(2024, 1, 31))
	}()
	<-entered

	// when the filter is cleared and its response arrives first
	require.NoError(t, session.ClearFilter(context.Background()))
	close(release)
	wg.Wait()

	// then
	expenses, asOf := session.Expenses()
	assert.ElementsMatch(t, []int64{1, 2}, ids(expenses))
	assert.True(t, asOf.Filter.IsZero())
	assert.True(t, session.Summary().Total.Equal(amount("35")))
}

func TestSession_ConcurrentFilterChangesSettleOnTheCurrentFilter(t *testing.T) {
	// given
	session, _ := newSession(t,
		expense.Expense{ID: 1, Amount: amount("10"), Category: "Food", CreatedAt: time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)},
		expense.Expense{ID: 2, Amount: amount("25"), Category: "Gas", CreatedAt: time.Date(2024, 3, 2, 9, 0, 0, 0, time.UTC)},
	)
	starts := []*time.Time{day(2024, 1, 1), day(2024, 2, 1)}

	for i := 0; i < 500; i++ {
		// when two start bounds are set concurrently
		var wg sync.WaitGroup
		for _, start := range starts {
			wg.Add(1)
			go func(start *time.Time) {
				defer wg.Done()
				_ = session.SetFilterBound(context.Background(), StartBound, start)
			}(start)
		}
		wg.Wait()

		// then the committed slice satisfies the filter that won
		_, asOf := session.Expenses()
		require.True(t, asOf.Filter.Equal(session.Filter()), "iteration %d: as-of %s, filter %s", i, asOf.Filter, session.Filter())
		require.Equal(t, session.Epochs().Ledger, asOf.Epoch)
	}
}

func TestSession_RefreshFailureAfterCommitKeepsPreviousSlice(t *testing.T) {
	// given
	session, gw := newSession(t, expense.Expense{ID: 1, Amount: amount("10"), Category: "Food"})
	listDown := errors.New("list timed out")
	gw.SetHook(func(ctx context.Context, op string) error {
		if op == gateway.OpListExpenses {
			return listDown
		}
		return nil
	})

	// when
	result, err := session.Submit(context.Background(), Mutation{Kind: KindAdd, Fields: expense.Fields{Amount: amount("5"), Category: "Gas"}})

	// then
	require.NoError(t, err)
	assert.Equal(t, StatusCommitted, result.Status)
	assert.ErrorIs(t, result.RefreshErr, ErrTransientFetch)

	expenses, asOf := session.Expenses()
	assert.Equal(t, []int64{1}, ids(expenses))
	assert.Equal(t, uint64(0), asOf.Epoch)
	assert.Equal(t, uint64(1), session.Epochs().Ledger)
	assert.ErrorIs(t, session.Status().LedgerError, listDown)

	// and the next successful refresh catches up
	gw.SetHook(nil)
	require.NoError(t, session.RefreshLedger(context.Background()))
	expenses, asOf = session.Expenses()
	assert.Len(t, expenses, 2)
	assert.Equal(t, uint64(1), asOf.Epoch)
	assert.NoError(t, session.Status().LedgerError)
}

func TestSession_ConfirmedDraftIsConsumed(t *testing.T) {
	// given
	session, gw := newSession(t)
	gw.SetReceipt(gateway.ReceiptFields{Text: "DELI 12.50", Amount: "12.50", StoreName: "Deli"})
	draft, err := session.StageReceipt(context.Background(), []byte("image"), "receipt.jpg")
	require.NoError(t, err)
	_, form, err := session.DraftForm()
	require.NoError(t, err)
	assert.Equal(t, "Receipt from Deli", form.Description)

	// when
	result, err := session.Submit(context.Background(), Mutation{
		Kind:    KindAdd,
		Fields:  expense.Fields{Amount: amount(form.Amount), Category: form.Category, Description: form.Description, StoreName: form.StoreName},
		DraftID: draft.ID,
	})

	// then
	require.NoError(t, err)
	assert.Equal(t, "draft:"+draft.ID, result.Target)
	_, ok := session.Draft()
	assert.False(t, ok)
	expenses, _ := session.Expenses()
	require.Len(t, expenses, 1)
	assert.Equal(t, "Deli", expenses[0].StoreName)
}

func TestSession_ReplacedDraftSurvivesCommitOfOlderOne(t *testing.T) {
	// given
	session, _ := newSession(t)
	older := session.StageDraft(context.Background(), Draft{Origin: OriginReceipt})
	newer := session.StageDraft(context.Background(), Draft{Origin: OriginReceipt})

	// when
	_, err := session.Submit(context.Background(), Mutation{
		Kind:    KindAdd,
		Fields:  expense.Fields{Amount: amount("1"), Category: "Food"},
		DraftID: older.ID,
	})

	// then
	require.NoError(t, err)
	current, ok := session.Draft()
	require.True(t, ok)
	assert.Equal(t, newer.ID, current.ID)
}

func TestSession_MalformedReceiptIsStagedAsPartialDraft(t *testing.T) {
	// given
	session, gw := newSession(t)
	gw.SetReceipt(gateway.ReceiptFields{Amount: "1O.OO", StoreName: "Kiosk"})

	// when
	draft, err := session.StageReceipt(context.Background(), []byte("image"), "receipt.png")

	// then
	assert.ErrorIs(t, err, ErrMalformedDraft)
	assert.False(t, draft.HasAmount)
	assert.NotEmpty(t, draft.Problems)
	staged, ok := session.Draft()
	require.True(t, ok)
	assert.Equal(t, draft.ID, staged.ID)
	assert.Equal(t, Epochs{}, session.Epochs())
}

func TestSession_StageEditRequiresMaterializedExpense(t *testing.T) {
	// given
	session, _ := newSession(t, expense.Expense{ID: 4, Amount: amount("6"), Category: "Gas", Description: "fuel"})

	// when
	draft, err := session.StageEdit(context.Background(), 4)
	_, missingErr := session.StageEdit(context.Background(), 99)

	// then
	require.NoError(t, err)
	assert.Equal(t, OriginEdit, draft.Origin)
	assert.Equal(t, "fuel", draft.Description)
	assert.ErrorIs(t, missingErr, ErrNotMaterialized)
}

func TestSession_CategoryDeleteDoesNotCascade(t *testing.T) {
	// given
	session, _ := newSession(t, expense.Expense{ID: 1, Amount: amount("10"), Category: "Coffee"})
	ctx := context.Background()
	added, err := session.Submit(ctx, Mutation{Kind: KindCategoryAdd, Category: category.Category{Name: "Coffee"}})
	require.NoError(t, err)
	assert.Equal(t, category.DefaultColor, added.Category.Color)
	assert.Contains(t, category.Names(session.Categories()), "Coffee")

	// when
	_, err = session.Submit(ctx, Mutation{Kind: KindCategoryDelete, Category: category.Category{ID: added.Category.ID}})

	// then
	require.NoError(t, err)
	assert.NotContains(t, category.Names(session.Categories()), "Coffee")
	expenses, _ := session.Expenses()
	require.Len(t, expenses, 1)
	assert.Equal(t, "Coffee", expenses[0].Category)
	coffee, ok := session.Summary().CategoryTotal("Coffee")
	require.True(t, ok)
	assert.True(t, coffee.Equal(amount("10")))
}

func TestSession_DuplicateCategoryIsRejected(t *testing.T) {
	session, _ := newSession(t)

	_, err := session.Submit(context.Background(), Mutation{Kind: KindCategoryAdd, Category: category.Category{Name: "Food"}})

	assert.ErrorIs(t, err, ErrMutationRejected)
	assert.Equal(t, Epochs{}, session.Epochs())
}

func TestSession_EventsCarryTheCommittedSlice(t *testing.T) {
	// given
	session, _ := newSession(t)
	var snapshots []event_bus.LedgerSnapshot
	var statuses []string
	event_bus.SubscribeTyped(session.Bus(), event_bus.LedgerMaterialized, func(e event_bus.EventT[event_bus.LedgerSnapshot]) error {
		snapshots = append(snapshots, e.Data)
		return nil
	})
	event_bus.SubscribeTyped(session.Bus(), event_bus.MutationStatusChanged, func(e event_bus.EventT[event_bus.MutationStatus]) error {
		statuses = append(statuses, e.Data.Status)
		return nil
	})

	// when
	_, err := session.Submit(context.Background(), Mutation{Kind: KindAdd, Fields: expense.Fields{Amount: amount("2"), Category: "Food"}})

	// then
	require.NoError(t, err)
	require.Len(t, snapshots, 1)
	assert.Equal(t, uint64(1), snapshots[0].Epoch)
	assert.Len(t, snapshots[0].Expenses, 1)
	assert.Equal(t, []string{"submitting", "committed"}, statuses)
}

func TestSession_ValidationFailureIsPublished(t *testing.T) {
	// given
	session, _ := newSession(t)
	var statuses []event_bus.MutationStatus
	event_bus.SubscribeTyped(session.Bus(), event_bus.MutationStatusChanged, func(e event_bus.EventT[event_bus.MutationStatus]) error {
		statuses = append(statuses, e.Data)
		return nil
	})

	// when
	result, err := session.Submit(context.Background(), Mutation{Kind: KindDelete, ExpenseID: 0})

	// then
	require.ErrorIs(t, err, ErrMutationRejected)
	require.Len(t, statuses, 1)
	assert.Equal(t, "failed", statuses[0].Status)
	assert.Equal(t, result.RequestID, statuses[0].RequestId)
	assert.Equal(t, "expense:0", statuses[0].Target)
	assert.ErrorIs(t, statuses[0].Err, ErrInvalidPayload)
	assert.Empty(t, session.Status().InFlight)
}

func TestSession_AskNeedsNoState(t *testing.T) {
	session, _ := newSession(t, expense.Expense{ID: 1, Amount: amount("10"), Category: "Food"})

	reply, err := session.Ask(context.Background(), "how much did I spend?")

	require.NoError(t, err)
	assert.Contains(t, reply.Response, "$10.00")
	assert.Equal(t, Epochs{}, session.Epochs())
}

func TestRegistry_SessionPerUser(t *testing.T) {
	// given
	clock := utils.NewMockClock(sessionNow)
	gw := gateway.NewMemoryGateway(clock)
	registry := NewRegistry(gw, Config{}, clock)
	t.Cleanup(registry.Close)
	created := 0
	registry.OnCreate(func(s *Session) { created++ })
	alice := user.User{Uid: "alice"}
	ctx := test_utils.ContextWithUser(context.Background(), alice)

	// when
	first, err1 := registry.Current(ctx)
	second, err2 := registry.ForUser(context.Background(), alice)
	other, err3 := registry.ForUser(context.Background(), user.User{Uid: "bob"})

	// then
	require.NoError(t, errors.Join(err1, err2, err3))
	assert.Same(t, first, second)
	assert.NotSame(t, first, other)
	assert.Equal(t, 2, created)
}

func TestRegistry_CurrentWithoutUser(t *testing.T) {
	clock := utils.NewMockClock(sessionNow)
	registry := NewRegistry(gateway.NewMemoryGateway(clock), Config{}, clock)

	session, err := registry.Current(context.Background())

	assert.Nil(t, session)
	assert.ErrorIs(t, err, user.ErrNoUser)
}

func TestRegistry_FailedLoadStillReturnsSession(t *testing.T) {
	// given
	clock := utils.NewMockClock(sessionNow)
	gw := gateway.NewMemoryGateway(clock)
	gw.SetHook(func(ctx context.Context, op string) error {
		return errors.New("store unreachable")
	})
	registry := NewRegistry(gw, Config{}, clock)

	// when
	session, err := registry.ForUser(context.Background(), user.User{Uid: "carol"})

	// then
	assert.ErrorIs(t, err, ErrTransientFetch)
	require.NotNil(t, session)
	assert.False(t, session.Status().Loaded)

	// and a later call retries the load
	gw.SetHook(nil)
	_, err = registry.ForUser(context.Background(), user.User{Uid: "carol"})
	assert.NoError(t, err)
	assert.True(t, session.Status().Loaded)
}
