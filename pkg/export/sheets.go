package export

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/klokku/fintrack/internal/config"
	"github.com/klokku/fintrack/pkg/expense"
	log "github.com/sirupsen/logrus"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

const dateLayout = "2006-01-02"

var header = []any{"Date", "Amount", "Category", "Description", "Store"}

// SheetsExporter appends expenses to one sheet of a Google spreadsheet.
type SheetsExporter struct {
	svc           *sheets.Service
	spreadsheetId string
	sheetName     string
}

// NewSheetsExporter authenticates with the service account in cfg.CredentialsFile.
func NewSheetsExporter(ctx context.Context, cfg config.Export) (*SheetsExporter, error) {
	if cfg.SpreadsheetId == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	credentials, err := os.ReadFile(cfg.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read service account file: %w", err)
	}
	svc, err := sheets.NewService(ctx,
		option.WithCredentialsJSON(credentials),
		option.WithScopes(sheets.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	log.Infof("Google Sheets export enabled for sheet %s", cfg.SheetName)
	return &SheetsExporter{svc: svc, spreadsheetId: cfg.SpreadsheetId, sheetName: cfg.SheetName}, nil
}

// Export appends a header row followed by one row per expense and returns the
// number of expense rows written.
func (e *SheetsExporter) Export(ctx context.Context, expenses []expense.Expense) (int, error) {
	if len(expenses) == 0 {
		return 0, nil
	}
	rng := fmt.Sprintf("%s!A:E", e.sheetName)
	values := &sheets.ValueRange{Values: Rows(expenses)}
	resp, err := e.svc.Spreadsheets.Values.Append(e.spreadsheetId, rng, values).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return 0, fmt.Errorf("append to %s: %w", rng, err)
	}
	if resp.Updates != nil {
		log.Infof("exported %d expenses to %s", len(expenses), resp.Updates.UpdatedRange)
	}
	return len(expenses), nil
}

// Rows renders expenses as sheet rows, header first. Amounts are plain numbers
// so the sheet can sum them.
func Rows(expenses []expense.Expense) [][]any {
	rows := make([][]any, 0, len(expenses)+1)
	rows = append(rows, header)
	for _, e := range expenses {
		amount, _ := e.Amount.Round(2).Float64()
		rows = append(rows, []any{
			e.CreatedAt.Format(dateLayout),
			amount,
			e.Category,
			e.Description,
			e.StoreName,
		})
	}
	return rows
}
