package stats

import (
	"context"
	"net/http"

	"github.com/klokku/fintrack/internal/rest"
	log "github.com/sirupsen/logrus"
)

type CategoryTotalDTO struct {
	Category string `json:"category"`
	Amount   string `json:"amount"`
}

type StatsSummaryDTO struct {
	Total          string             `json:"total"`
	Count          int                `json:"count"`
	CategoryTotals []CategoryTotalDTO `json:"categoryTotals"`
	Breakdown      []CategoryTotalDTO `json:"breakdown"`
	TopCategory    string             `json:"topCategory"`
	TopAmount      string             `json:"topAmount"`
	BudgetLimit    string             `json:"budgetLimit"`
	BudgetPeriod   string             `json:"budgetPeriod"`
	// BudgetProgress is null when no budget is set.
	BudgetProgress *string `json:"budgetProgress"`
}

// SummaryProvider returns the current summary of the caller's session.
type SummaryProvider func(ctx context.Context) (Summary, error)

// ErrorMapper translates a provider error into a status code and message.
type ErrorMapper func(err error) (int, string)

type StatsHandler struct {
	summaries SummaryProvider
	renderer  StatsRenderer
	mapError  ErrorMapper
}

func NewStatsHandler(summaries SummaryProvider, renderer StatsRenderer, mapError ErrorMapper) *StatsHandler {
	if mapError == nil {
		mapError = func(err error) (int, string) {
			return http.StatusInternalServerError, "Failed to compute stats"
		}
	}
	return &StatsHandler{summaries: summaries, renderer: renderer, mapError: mapError}
}

// GetStats godoc
// @Summary Get the summary of the materialized expenses
// @Description Responds with CSV when the request accepts text/csv.
// @Tags Stats
// @Produce json
// @Produce text/csv
// @Success 200 {object} StatsSummaryDTO
// @Router /api/stats [get]
// @Security XUserId
func (handler *StatsHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	summary, err := handler.summaries(r.Context())
	if err != nil {
		status, message := handler.mapError(err)
		rest.WriteError(w, status, message, err.Error())
		return
	}

	if r.Header.Get("Accept") == "text/csv" {
		handler.writeCsv(w, summary)
		return
	}
	rest.WriteJSON(w, http.StatusOK, SummaryToDTO(summary))
}

// ExportStats godoc
// @Summary Export the summary as CSV
// @Tags Stats
// @Produce text/csv
// @Success 200 {string} string "CSV file"
// @Router /api/stats/export [get]
// @Security XUserId
func (handler *StatsHandler) ExportStats(w http.ResponseWriter, r *http.Request) {
	summary, err := handler.summaries(r.Context())
	if err != nil {
		status, message := handler.mapError(err)
		rest.WriteError(w, status, message, err.Error())
		return
	}
	handler.writeCsv(w, summary)
}

func (handler *StatsHandler) writeCsv(w http.ResponseWriter, summary Summary) {
	csv, err := handler.renderer.RenderStats(summary)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="summary.csv"`)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(csv)); err != nil {
		log.Errorf("failed to write stats csv: %v", err)
	}
}

func SummaryToDTO(summary Summary) StatsSummaryDTO {
	dto := StatsSummaryDTO{
		Total:          summary.Total.StringFixed(2),
		Count:          summary.Count,
		CategoryTotals: totalsToDTO(summary.CategoryTotals),
		Breakdown:      totalsToDTO(summary.Breakdown()),
		TopCategory:    summary.TopCategory,
		TopAmount:      summary.TopAmount.StringFixed(2),
		BudgetLimit:    summary.Budget.LimitAmount.StringFixed(2),
		BudgetPeriod:   string(summary.Budget.Period),
	}
	if summary.Progress.IsSet() {
		progress := summary.Progress.Percent.StringFixed(2)
		dto.BudgetProgress = &progress
	}
	return dto
}

func totalsToDTO(totals []CategoryTotal) []CategoryTotalDTO {
	dtos := make([]CategoryTotalDTO, 0, len(totals))
	for _, ct := range totals {
		dtos = append(dtos, CategoryTotalDTO{Category: ct.Category, Amount: ct.Amount.StringFixed(2)})
	}
	return dtos
}
