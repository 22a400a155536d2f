package ledger

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/klokku/fintrack/internal/rest"
	log "github.com/sirupsen/logrus"
)

type ChatRequestDTO struct {
	Message string `json:"message"`
}

type ChatResponseDTO struct {
	Response string `json:"response"`
}

type InFlightDTO struct {
	RequestID string    `json:"request_id"`
	Kind      string    `json:"kind"`
	Target    string    `json:"target"`
	Since     time.Time `json:"since"`
}

type StatusDTO struct {
	LedgerEpoch     uint64        `json:"ledger_epoch"`
	BudgetEpoch     uint64        `json:"budget_epoch"`
	Loaded          bool          `json:"loaded"`
	AsOf            AsOfDTO       `json:"as_of"`
	Filter          FilterDTO     `json:"filter"`
	InFlight        []InFlightDTO `json:"in_flight"`
	LedgerError     string        `json:"ledger_error,omitempty"`
	BudgetError     string        `json:"budget_error,omitempty"`
	CategoriesError string        `json:"categories_error,omitempty"`
}

type SheetExportDTO struct {
	Rows int `json:"rows"`
}

// Chat godoc
// @Summary Ask the assistant
// @Tags Assistant
// @Accept json
// @Produce json
// @Param message body ChatRequestDTO true "Message"
// @Success 200 {object} ChatResponseDTO
// @Failure 400 {object} rest.ErrorResponse
// @Failure 502 {object} rest.ErrorResponse
// @Router /api/chat [post]
// @Security XUserId
func (handler *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	session, ok := handler.session(w, r)
	if !ok {
		return
	}
	var request ChatRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	if strings.TrimSpace(request.Message) == "" {
		rest.WriteError(w, http.StatusBadRequest, "Message must not be empty", "")
		return
	}
	reply, err := session.Ask(r.Context(), request.Message)
	if err != nil {
		status, message := ErrorStatus(err)
		if status == http.StatusInternalServerError {
			status, message = http.StatusBadGateway, "Assistant is unavailable"
		}
		rest.WriteError(w, status, message, err.Error())
		return
	}
	rest.WriteJSON(w, http.StatusOK, ChatResponseDTO{Response: reply.Response})
}

// Status godoc
// @Summary Get the session status
// @Description Epochs, load errors and the mutations currently in flight.
// @Tags Status
// @Produce json
// @Success 200 {object} StatusDTO
// @Router /api/status [get]
// @Security XUserId
func (handler *Handler) Status(w http.ResponseWriter, r *http.Request) {
	session, ok := handler.session(w, r)
	if !ok {
		return
	}
	status := session.Status()
	inFlight := make([]InFlightDTO, 0, len(status.InFlight))
	for _, f := range status.InFlight {
		inFlight = append(inFlight, InFlightDTO{RequestID: f.RequestID, Kind: string(f.Kind), Target: f.Target, Since: f.Since})
	}
	rest.WriteJSON(w, http.StatusOK, StatusDTO{
		LedgerEpoch:     status.Epochs.Ledger,
		BudgetEpoch:     status.Epochs.Budget,
		Loaded:          status.Loaded,
		AsOf:            asOfToDTO(status.AsOf),
		Filter:          filterToDTO(status.Filter),
		InFlight:        inFlight,
		LedgerError:     errorDetails(status.LedgerError),
		BudgetError:     errorDetails(status.BudgetError),
		CategoriesError: errorDetails(status.CategoriesError),
	})
}

// ExportToSheets godoc
// @Summary Append the materialized expenses to the configured spreadsheet
// @Tags Expense
// @Produce json
// @Success 200 {object} SheetExportDTO
// @Failure 501 {object} rest.ErrorResponse
// @Failure 502 {object} rest.ErrorResponse
// @Router /api/export/sheets [post]
// @Security XUserId
func (handler *Handler) ExportToSheets(w http.ResponseWriter, r *http.Request) {
	if handler.sheets == nil {
		rest.WriteError(w, http.StatusNotImplemented, "Sheets export is not configured", "")
		return
	}
	session, ok := handler.session(w, r)
	if !ok {
		return
	}
	expenses, _ := session.Expenses()
	rows, err := handler.sheets.Export(r.Context(), expenses)
	if err != nil {
		log.Errorf("sheets export failed: %v", err)
		rest.WriteError(w, http.StatusBadGateway, "Sheets export failed", err.Error())
		return
	}
	rest.WriteJSON(w, http.StatusOK, SheetExportDTO{Rows: rows})
}
