package ledger

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/klokku/fintrack/internal/event_bus"
	"github.com/klokku/fintrack/pkg/expense"
	"github.com/klokku/fintrack/pkg/gateway"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

const unknownStore = "Unknown Store"

type Origin string

const (
	OriginReceipt Origin = "receipt"
	OriginEdit    Origin = "edit"
)

// Draft is a candidate expense awaiting user confirmation. It is never written
// to the ledger cache.
type Draft struct {
	ID     string
	Origin Origin
	// ExpenseID is the expense being edited; zero for receipt drafts.
	ExpenseID   int64
	Amount      decimal.Decimal
	HasAmount   bool
	Category    string
	Description string
	StoreName   string
	RawText     string
	// Problems lists fields that were present but unusable.
	Problems []string
}

// Form is the set of initial values shown to the user for a draft.
type Form struct {
	Amount      string
	Category    string
	Description string
	StoreName   string
}

// DraftFromReceipt turns OCR output into a draft. An amount of zero counts as not
// found. When the amount is present but unusable the partial draft is returned
// together with ErrMalformedDraft.
func DraftFromReceipt(fields gateway.ReceiptFields) (Draft, error) {
	draft := Draft{
		Origin:      OriginReceipt,
		Category:    strings.TrimSpace(fields.Category),
		Description: strings.TrimSpace(fields.Description),
		StoreName:   strings.TrimSpace(fields.StoreName),
		RawText:     fields.Text,
	}

	raw := strings.TrimSpace(fields.Amount)
	if raw == "" {
		return draft, nil
	}
	if parsed, err := expense.ParseDecimal(raw); err == nil && parsed.IsZero() {
		return draft, nil
	}
	amount, err := expense.ParseAmount(raw)
	if err != nil {
		draft.Problems = append(draft.Problems, fmt.Sprintf("amount %q is not a positive number", raw))
		return draft, fmt.Errorf("%w: amount %q: %w", ErrMalformedDraft, raw, err)
	}
	draft.Amount = amount
	draft.HasAmount = true
	return draft, nil
}

// DraftFromExpense stages an existing expense for editing.
func DraftFromExpense(e expense.Expense) Draft {
	return Draft{
		Origin:      OriginEdit,
		ExpenseID:   e.ID,
		Amount:      e.Amount,
		HasAmount:   true,
		Category:    e.Category,
		Description: e.Description,
		StoreName:   e.StoreName,
	}
}

// Form fills in the defaults the expense form starts from. categories are the
// known category names in display order.
func (d Draft) Form(categories []string) Form {
	form := Form{
		Category:    d.Category,
		Description: d.Description,
		StoreName:   d.StoreName,
	}
	if d.HasAmount {
		form.Amount = d.Amount.StringFixed(2)
	}
	if form.Category == "" {
		if len(categories) > 0 {
			form.Category = categories[0]
		} else {
			form.Category = expense.Uncategorized
		}
	}
	if d.Origin == OriginReceipt {
		if form.Description == "" && d.StoreName != "" {
			form.Description = "Receipt from " + d.StoreName
		}
		if form.StoreName == "" {
			form.StoreName = unknownStore
		}
	}
	return form
}

// DraftStaging holds at most one draft. A newer stage always replaces the old one.
type DraftStaging struct {
	mu    sync.Mutex
	draft *Draft
	bus   *event_bus.EventBus
}

func NewDraftStaging(bus *event_bus.EventBus) *DraftStaging {
	return &DraftStaging{bus: bus}
}

// Stage stores d under a fresh ID and returns it.
func (s *DraftStaging) Stage(ctx context.Context, d Draft) Draft {
	d.ID = uuid.NewString()
	d.Problems = append([]string(nil), d.Problems...)
	s.mu.Lock()
	replaced := s.draft
	s.draft = &d
	s.mu.Unlock()

	if replaced != nil {
		log.Debugf("draft %s replaced by %s", replaced.ID, d.ID)
	}
	s.publish(ctx, d.ID, d.Origin)
	return d
}

func (s *DraftStaging) Clear(ctx context.Context) {
	s.mu.Lock()
	had := s.draft != nil
	s.draft = nil
	s.mu.Unlock()
	if had {
		s.publish(ctx, "", "")
	}
}

// ClearIf clears the draft only when it is still the one with the given ID.
func (s *DraftStaging) ClearIf(ctx context.Context, id string) bool {
	s.mu.Lock()
	if s.draft == nil || s.draft.ID != id {
		s.mu.Unlock()
		return false
	}
	s.draft = nil
	s.mu.Unlock()
	s.publish(ctx, "", "")
	return true
}

func (s *DraftStaging) Current() (Draft, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.draft == nil {
		return Draft{}, false
	}
	return *s.draft, true
}

func (s *DraftStaging) publish(ctx context.Context, id string, origin Origin) {
	err := s.bus.Publish(event_bus.NewEvent(ctx, event_bus.DraftChanged, event_bus.DraftUpdated{DraftId: id, Origin: string(origin)}))
	if err != nil {
		log.Warnf("draft change subscribers failed: %v", err)
	}
}
