package app

import (
	"github.com/gorilla/mux"
	"github.com/klokku/fintrack/internal/config"
)

// RegisterRoutes registers all API endpoints.
func RegisterRoutes(r *mux.Router, deps *Dependencies, cfg config.Application) {
	ledgerHandler := deps.LedgerHandler

	// Expenses
	r.HandleFunc("/api/expenses", ledgerHandler.ListExpenses).Methods("GET")
	r.HandleFunc("/api/expenses", ledgerHandler.CreateExpense).Methods("POST")
	r.HandleFunc("/api/expenses/import", ledgerHandler.ImportExpenses).Methods("POST")
	r.HandleFunc("/api/expenses/export", ledgerHandler.ExportExpenses).Methods("GET")
	r.HandleFunc("/api/expenses/{id:[0-9]+}", ledgerHandler.UpdateExpense).Methods("PUT")
	r.HandleFunc("/api/expenses/{id:[0-9]+}", ledgerHandler.DeleteExpense).Methods("DELETE")

	// Filter
	r.HandleFunc("/api/filter", ledgerHandler.GetFilter).Methods("GET")
	r.HandleFunc("/api/filter", ledgerHandler.SetFilter).Methods("PUT")
	r.HandleFunc("/api/filter", ledgerHandler.ClearFilter).Methods("DELETE")

	// Stats
	r.HandleFunc("/api/stats", deps.StatsHandler.GetStats).Methods("GET")
	r.HandleFunc("/api/stats/export", deps.StatsHandler.ExportStats).Methods("GET")

	// Budget
	r.HandleFunc("/api/budget", ledgerHandler.GetBudget).Methods("GET")
	r.HandleFunc("/api/budget", ledgerHandler.SetBudget).Methods("PUT")

	// Categories
	r.HandleFunc("/api/categories", ledgerHandler.ListCategories).Methods("GET")
	r.HandleFunc("/api/categories", ledgerHandler.CreateCategory).Methods("POST")
	r.HandleFunc("/api/categories/{id:[0-9]+}", ledgerHandler.DeleteCategory).Methods("DELETE")

	// Draft
	r.HandleFunc("/api/draft", ledgerHandler.GetDraft).Methods("GET")
	r.HandleFunc("/api/draft", ledgerHandler.ClearDraft).Methods("DELETE")
	r.HandleFunc("/api/draft/receipt", ledgerHandler.UploadReceipt).Methods("POST")
	r.HandleFunc("/api/draft/edit/{id:[0-9]+}", ledgerHandler.StageEdit).Methods("POST")

	// Assistant, status and integrations
	r.HandleFunc("/api/chat", ledgerHandler.Chat).Methods("POST")
	r.HandleFunc("/api/status", ledgerHandler.Status).Methods("GET")
	r.HandleFunc("/api/export/sheets", ledgerHandler.ExportToSheets).Methods("POST")
}
