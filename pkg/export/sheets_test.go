package export

import (
	"context"
	"testing"
	"time"

	"github.com/klokku/fintrack/internal/config"
	"github.com/klokku/fintrack/pkg/expense"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestRows(t *testing.T) {
	// given
	expenses := []expense.Expense{
		{
			ID:          2,
			Amount:      decimal.RequireFromString("12.345"),
			Category:    "Food",
			Description: "Lunch",
			StoreName:   "Deli",
			CreatedAt:   time.Date(2025, 1, 20, 13, 0, 0, 0, time.UTC),
		},
		{
			ID:        1,
			Amount:    decimal.NewFromInt(40),
			Category:  "Gas",
			CreatedAt: time.Date(2025, 1, 3, 8, 0, 0, 0, time.UTC),
		},
	}

	// when
	rows := Rows(expenses)

	// then
	assert.Equal(t, [][]any{
		{"Date", "Amount", "Category", "Description", "Store"},
		{"2025-01-20", 12.35, "Food", "Lunch", "Deli"},
		{"2025-01-03", 40.0, "Gas", "", ""},
	}, rows)
}

func TestRows_EmptyHasOnlyHeader(t *testing.T) {
	rows := Rows(nil)

	assert.Len(t, rows, 1)
}

func TestExport_EmptyWritesNothing(t *testing.T) {
	exporter := &SheetsExporter{spreadsheetId: "sheet", sheetName: "Expenses"}

	n, err := exporter.Export(context.Background(), nil)

	assert.NoError(t, err)
	assert.Zero(t, n)
}

func TestNewSheetsExporter_RequiresSpreadsheetId(t *testing.T) {
	_, err := NewSheetsExporter(context.Background(), config.Export{CredentialsFile: "creds.json"})

	assert.Error(t, err)
}
