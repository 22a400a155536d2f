package ledger

import (
	"errors"
	"net/http"

	"github.com/klokku/fintrack/internal/rest"
	"github.com/shopspring/decimal"
)

type FormDTO struct {
	Amount      string `json:"amount"`
	Category    string `json:"category"`
	Description string `json:"description"`
	StoreName   string `json:"store_name"`
}

type DraftDTO struct {
	ID          string           `json:"id"`
	Origin      string           `json:"origin"`
	ExpenseID   int64            `json:"expense_id,omitempty"`
	Amount      *decimal.Decimal `json:"amount"`
	Category    string           `json:"category,omitempty"`
	Description string           `json:"description,omitempty"`
	StoreName   string           `json:"store_name,omitempty"`
	Text        string           `json:"text,omitempty"`
	Problems    []string         `json:"problems,omitempty"`
	Form        FormDTO          `json:"form"`
}

type MalformedDraftDTO struct {
	rest.ErrorResponse
	Draft DraftDTO `json:"draft"`
}

// GetDraft godoc
// @Summary Get the staged draft
// @Tags Draft
// @Produce json
// @Success 200 {object} DraftDTO
// @Failure 404 {object} rest.ErrorResponse
// @Router /api/draft [get]
// @Security XUserId
func (handler *Handler) GetDraft(w http.ResponseWriter, r *http.Request) {
	session, ok := handler.session(w, r)
	if !ok {
		return
	}
	draft, form, err := session.DraftForm()
	if err != nil {
		writeFailure(w, err)
		return
	}
	rest.WriteJSON(w, http.StatusOK, DraftToDTO(draft, form))
}

// ClearDraft godoc
// @Summary Discard the staged draft
// @Tags Draft
// @Success 204
// @Router /api/draft [delete]
// @Security XUserId
func (handler *Handler) ClearDraft(w http.ResponseWriter, r *http.Request) {
	session, ok := handler.session(w, r)
	if !ok {
		return
	}
	session.ClearDraft(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

// UploadReceipt godoc
// @Summary Stage a draft from a receipt image
// @Description Runs OCR on the image and stages the result. Malformed fields yield 422 with the partial draft.
// @Tags Draft
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "Receipt image"
// @Success 201 {object} DraftDTO
// @Failure 422 {object} MalformedDraftDTO
// @Router /api/draft/receipt [post]
// @Security XUserId
func (handler *Handler) UploadReceipt(w http.ResponseWriter, r *http.Request) {
	session, ok := handler.session(w, r)
	if !ok {
		return
	}
	image, filename, err := readUpload(r)
	if err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid upload", err.Error())
		return
	}
	draft, err := session.StageReceipt(r.Context(), image, filename)
	if errors.Is(err, ErrMalformedDraft) {
		status, message := ErrorStatus(err)
		rest.WriteJSON(w, status, MalformedDraftDTO{
			ErrorResponse: rest.ErrorResponse{Error: message, Details: err.Error()},
			Draft:         DraftToDTO(draft, draft.Form(session.categoryNames())),
		})
		return
	}
	if err != nil {
		status, message := ErrorStatus(err)
		if status == http.StatusInternalServerError {
			status, message = http.StatusBadGateway, "Receipt extraction failed"
		}
		rest.WriteError(w, status, message, err.Error())
		return
	}
	rest.WriteJSON(w, http.StatusCreated, DraftToDTO(draft, draft.Form(session.categoryNames())))
}

// StageEdit godoc
// @Summary Stage a materialized expense for editing
// @Tags Draft
// @Produce json
// @Param id path int true "Expense ID"
// @Success 201 {object} DraftDTO
// @Failure 404 {object} rest.ErrorResponse
// @Router /api/draft/edit/{id} [post]
// @Security XUserId
func (handler *Handler) StageEdit(w http.ResponseWriter, r *http.Request) {
	session, ok := handler.session(w, r)
	if !ok {
		return
	}
	id, err := pathId(r, "id")
	if err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid expense id", err.Error())
		return
	}
	draft, err := session.StageEdit(r.Context(), id)
	if err != nil {
		writeFailure(w, err)
		return
	}
	rest.WriteJSON(w, http.StatusCreated, DraftToDTO(draft, draft.Form(session.categoryNames())))
}

func DraftToDTO(d Draft, form Form) DraftDTO {
	dto := DraftDTO{
		ID:          d.ID,
		Origin:      string(d.Origin),
		ExpenseID:   d.ExpenseID,
		Category:    d.Category,
		Description: d.Description,
		StoreName:   d.StoreName,
		Text:        d.RawText,
		Problems:    d.Problems,
		Form: FormDTO{
			Amount:      form.Amount,
			Category:    form.Category,
			Description: form.Description,
			StoreName:   form.StoreName,
		},
	}
	if d.HasAmount {
		amount := d.Amount
		dto.Amount = &amount
	}
	return dto
}
