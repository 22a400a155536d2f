package ledger

import (
	"encoding/json"
	"net/http"

	"github.com/klokku/fintrack/internal/rest"
	"github.com/klokku/fintrack/pkg/budget"
	"github.com/shopspring/decimal"
)

type BudgetDTO struct {
	LimitAmount decimal.Decimal `json:"limit_amount"`
	Period      string          `json:"period"`
	IsSet       bool            `json:"is_set"`
}

type BudgetResponseDTO struct {
	Budget BudgetDTO `json:"budget"`
	Epoch  uint64    `json:"epoch"`
}

// GetBudget godoc
// @Summary Get the monthly budget
// @Tags Budget
// @Produce json
// @Success 200 {object} BudgetResponseDTO
// @Router /api/budget [get]
// @Security XUserId
func (handler *Handler) GetBudget(w http.ResponseWriter, r *http.Request) {
	session, ok := handler.session(w, r)
	if !ok {
		return
	}
	b, epoch := session.Budget()
	rest.WriteJSON(w, http.StatusOK, BudgetResponseDTO{Budget: BudgetToDTO(b), Epoch: epoch})
}

// SetBudget godoc
// @Summary Set the monthly budget
// @Description A limit of 0 unsets the budget.
// @Tags Budget
// @Accept json
// @Produce json
// @Param budget body BudgetDTO true "Budget"
// @Success 200 {object} MutationResultDTO
// @Router /api/budget [put]
// @Security XUserId
func (handler *Handler) SetBudget(w http.ResponseWriter, r *http.Request) {
	session, ok := handler.session(w, r)
	if !ok {
		return
	}
	var request BudgetDTO
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	result, err := session.Submit(r.Context(), Mutation{
		Kind:   KindBudgetSet,
		Budget: budget.Budget{LimitAmount: request.LimitAmount, Period: budget.Period(request.Period)},
	})
	if err != nil {
		writeFailure(w, err)
		return
	}
	rest.WriteJSON(w, http.StatusOK, ResultToDTO(result))
}

func BudgetToDTO(b budget.Budget) BudgetDTO {
	b = b.Normalize()
	return BudgetDTO{
		LimitAmount: b.LimitAmount,
		Period:      string(b.Period),
		IsSet:       b.IsSet(),
	}
}
