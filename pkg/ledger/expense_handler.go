package ledger

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/klokku/fintrack/internal/rest"
	"github.com/klokku/fintrack/pkg/expense"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

const maxUploadSize = 10 << 20

type ExpenseDTO struct {
	ID          int64           `json:"id"`
	Amount      decimal.Decimal `json:"amount"`
	Category    string          `json:"category"`
	Description string          `json:"description,omitempty"`
	StoreName   string          `json:"store_name,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

type ExpenseRequestDTO struct {
	Amount      decimal.Decimal `json:"amount"`
	Category    string          `json:"category"`
	Description string          `json:"description"`
	StoreName   string          `json:"store_name"`
	DraftID     string          `json:"draft_id,omitempty"`
}

type AsOfDTO struct {
	Epoch     uint64  `json:"epoch"`
	StartDate *string `json:"start_date"`
	EndDate   *string `json:"end_date"`
}

type ExpenseListDTO struct {
	Expenses []ExpenseDTO `json:"expenses"`
	AsOf     AsOfDTO      `json:"as_of"`
}

type ImportResultDTO struct {
	Message       string `json:"message"`
	ImportedCount int    `json:"imported_count"`
}

type MutationResultDTO struct {
	RequestID    string           `json:"request_id"`
	Kind         string           `json:"kind"`
	Target       string           `json:"target"`
	Status       string           `json:"status"`
	Epoch        uint64           `json:"epoch"`
	RefreshError string           `json:"refresh_error,omitempty"`
	Expense      *ExpenseDTO      `json:"expense,omitempty"`
	Import       *ImportResultDTO `json:"import,omitempty"`
	Budget       *BudgetDTO       `json:"budget,omitempty"`
	Category     *CategoryDTO     `json:"category,omitempty"`
}

// ListExpenses godoc
// @Summary Materialized expenses
// @Description The expenses matching the current filter, with the filter and epoch they satisfy
// @Tags Expense
// @Produce json
// @Success 200 {object} ExpenseListDTO
// @Router /api/expenses [get]
// @Security XUserId
func (handler *Handler) ListExpenses(w http.ResponseWriter, r *http.Request) {
	session, ok := handler.session(w, r)
	if !ok {
		return
	}
	expenses, asOf := session.Expenses()
	dtos := make([]ExpenseDTO, 0, len(expenses))
	for _, e := range expenses {
		dtos = append(dtos, ExpenseToDTO(e))
	}
	rest.WriteJSON(w, http.StatusOK, ExpenseListDTO{Expenses: dtos, AsOf: asOfToDTO(asOf)})
}

// CreateExpense godoc
// @Summary Add an expense
// @Description Submits an add mutation. A draft_id marks the submission as confirming that draft.
// @Tags Expense
// @Accept json
// @Produce json
// @Param expense body ExpenseRequestDTO true "Expense"
// @Success 201 {object} MutationResultDTO
// @Failure 400 {object} rest.ErrorResponse
// @Failure 409 {object} rest.ErrorResponse
// @Router /api/expenses [post]
// @Security XUserId
func (handler *Handler) CreateExpense(w http.ResponseWriter, r *http.Request) {
	session, ok := handler.session(w, r)
	if !ok {
		return
	}
	var request ExpenseRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	result, err := session.Submit(r.Context(), Mutation{
		Kind:    KindAdd,
		Fields:  request.fields(),
		DraftID: request.DraftID,
	})
	if err != nil {
		writeFailure(w, err)
		return
	}
	rest.WriteJSON(w, http.StatusCreated, ResultToDTO(result))
}

// UpdateExpense godoc
// @Summary Update an expense
// @Tags Expense
// @Accept json
// @Produce json
// @Param id path int true "Expense ID"
// @Param expense body ExpenseRequestDTO true "Expense"
// @Success 200 {object} MutationResultDTO
// @Failure 400 {object} rest.ErrorResponse
// @Failure 409 {object} rest.ErrorResponse
// @Router /api/expenses/{id} [put]
// @Security XUserId
func (handler *Handler) UpdateExpense(w http.ResponseWriter, r *http.Request) {
	session, ok := handler.session(w, r)
	if !ok {
		return
	}
	id, err := pathId(r, "id")
	if err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid expense id", err.Error())
		return
	}
	var request ExpenseRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	result, err := session.Submit(r.Context(), Mutation{
		Kind:      KindEdit,
		ExpenseID: id,
		Fields:    request.fields(),
		DraftID:   request.DraftID,
	})
	if err != nil {
		writeFailure(w, err)
		return
	}
	rest.WriteJSON(w, http.StatusOK, ResultToDTO(result))
}

// DeleteExpense godoc
// @Summary Delete an expense
// @Tags Expense
// @Produce json
// @Param id path int true "Expense ID"
// @Success 200 {object} MutationResultDTO
// @Failure 400 {object} rest.ErrorResponse
// @Failure 409 {object} rest.ErrorResponse
// @Router /api/expenses/{id} [delete]
// @Security XUserId
func (handler *Handler) DeleteExpense(w http.ResponseWriter, r *http.Request) {
	session, ok := handler.session(w, r)
	if !ok {
		return
	}
	id, err := pathId(r, "id")
	if err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid expense id", err.Error())
		return
	}
	result, err := session.Submit(r.Context(), Mutation{Kind: KindDelete, ExpenseID: id})
	if err != nil {
		writeFailure(w, err)
		return
	}
	rest.WriteJSON(w, http.StatusOK, ResultToDTO(result))
}

// ImportExpenses godoc
// @Summary Import expenses from CSV
// @Tags Expense
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "CSV file"
// @Success 200 {object} MutationResultDTO
// @Router /api/expenses/import [post]
// @Security XUserId
func (handler *Handler) ImportExpenses(w http.ResponseWriter, r *http.Request) {
	session, ok := handler.session(w, r)
	if !ok {
		return
	}
	content, _, err := readUpload(r)
	if err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid upload", err.Error())
		return
	}
	result, err := session.Submit(r.Context(), Mutation{Kind: KindImport, File: content})
	if err != nil {
		writeFailure(w, err)
		return
	}
	rest.WriteJSON(w, http.StatusOK, ResultToDTO(result))
}

// ExportExpenses godoc
// @Summary Export the materialized expenses as CSV
// @Tags Expense
// @Produce text/csv
// @Success 200 {string} string "CSV file"
// @Router /api/expenses/export [get]
// @Security XUserId
func (handler *Handler) ExportExpenses(w http.ResponseWriter, r *http.Request) {
	session, ok := handler.session(w, r)
	if !ok {
		return
	}
	var b bytes.Buffer
	if err := session.ExportCSV(&b); err != nil {
		log.Errorf("failed to render expenses csv: %v", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="expenses.csv"`)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(b.Bytes()); err != nil {
		log.Errorf("failed to write expenses csv: %v", err)
	}
}

func readUpload(r *http.Request) ([]byte, string, error) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		return nil, "", err
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, "", err
	}
	defer file.Close()
	content, err := io.ReadAll(io.LimitReader(file, maxUploadSize))
	if err != nil {
		return nil, "", err
	}
	return content, header.Filename, nil
}

func (request ExpenseRequestDTO) fields() expense.Fields {
	return expense.Fields{
		Amount:      request.Amount,
		Category:    request.Category,
		Description: request.Description,
		StoreName:   request.StoreName,
	}
}

func ExpenseToDTO(e expense.Expense) ExpenseDTO {
	return ExpenseDTO{
		ID:          e.ID,
		Amount:      e.Amount,
		Category:    e.Category,
		Description: e.Description,
		StoreName:   e.StoreName,
		CreatedAt:   e.CreatedAt,
	}
}

func asOfToDTO(asOf AsOf) AsOfDTO {
	return AsOfDTO{
		Epoch:     asOf.Epoch,
		StartDate: dateString(asOf.Filter.Start),
		EndDate:   dateString(asOf.Filter.End),
	}
}

func dateString(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(dateLayout)
	return &s
}

func ResultToDTO(result Result) MutationResultDTO {
	dto := MutationResultDTO{
		RequestID: result.RequestID,
		Kind:      string(result.Kind),
		Target:    result.Target,
		Status:    string(result.Status),
		Epoch:     result.Epoch,
	}
	if result.RefreshErr != nil {
		dto.RefreshError = result.RefreshErr.Error()
	}
	switch result.Kind {
	case KindAdd, KindEdit:
		e := ExpenseToDTO(result.Expense)
		dto.Expense = &e
	case KindImport:
		dto.Import = &ImportResultDTO{Message: result.Import.Message, ImportedCount: result.Import.ImportedCount}
	case KindBudgetSet:
		b := BudgetToDTO(result.Budget)
		dto.Budget = &b
	case KindCategoryAdd:
		c := CategoryToDTO(result.Category)
		dto.Category = &c
	}
	return dto
}
