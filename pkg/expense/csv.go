package expense

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

const csvDateLayout = "2006-01-02"

var ErrMissingAmountColumn = errors.New("csv has no amount column")

// ImportRow is a parsed CSV row. Date is zero when the file had no date column
// or the cell was empty; the store then assigns the creation time.
type ImportRow struct {
	Fields Fields
	Date   time.Time
}

// ImportBatch is the outcome of parsing an import file.
type ImportBatch struct {
	Rows    []ImportRow
	Skipped int
}

var csvHeaderAliases = map[string]string{
	"amount":      "amount",
	"category":    "category",
	"description": "description",
	"desc":        "description",
	"store":       "store",
	"store_name":  "store",
	"date":        "date",
}

// ParseCSV reads an import file. The first row is a header; column order is
// free and names are matched case-insensitively, so a file produced by
// WriteCSV can be imported back. Rows with an unusable amount are skipped.
func ParseCSV(r io.Reader) (ImportBatch, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return ImportBatch{}, nil
		}
		return ImportBatch{}, fmt.Errorf("could not read csv header: %w", err)
	}
	columns := map[string]int{}
	for idx, name := range header {
		key := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		if canonical, ok := csvHeaderAliases[key]; ok {
			if _, seen := columns[canonical]; !seen {
				columns[canonical] = idx
			}
		}
	}
	if _, ok := columns["amount"]; !ok {
		return ImportBatch{}, ErrMissingAmountColumn
	}

	cell := func(record []string, column string) string {
		idx, ok := columns[column]
		if !ok || idx >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[idx])
	}

	var batch ImportBatch
	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return ImportBatch{}, fmt.Errorf("could not read csv line %d: %w", line, err)
		}

		amount, err := ParseAmount(cell(record, "amount"))
		if err != nil {
			log.Debugf("skipping csv line %d: %v", line, err)
			batch.Skipped++
			continue
		}
		row := ImportRow{
			Fields: Fields{
				Amount:      amount,
				Category:    cell(record, "category"),
				Description: cell(record, "description"),
				StoreName:   cell(record, "store"),
			},
		}
		if row.Fields.Category == "" {
			row.Fields.Category = Uncategorized
		}
		if raw := cell(record, "date"); raw != "" {
			date, err := time.Parse(csvDateLayout, raw)
			if err != nil {
				log.Debugf("skipping csv line %d: invalid date %q", line, raw)
				batch.Skipped++
				continue
			}
			row.Date = date
		}
		batch.Rows = append(batch.Rows, row)
	}

	return batch, nil
}

// WriteCSV renders expenses in the export layout.
func WriteCSV(w io.Writer, expenses []Expense) error {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"ID", "Date", "Amount", "Category", "Store", "Description"}); err != nil {
		log.Errorf("Error writing to csv: %v", err)
		return err
	}
	for _, e := range expenses {
		row := []string{
			strconv.FormatInt(e.ID, 10),
			e.CreatedAt.Format(csvDateLayout),
			e.Amount.StringFixed(2),
			e.Category,
			e.StoreName,
			e.Description,
		}
		if err := writer.Write(row); err != nil {
			log.Errorf("Error writing to csv: %v", err)
			return err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		log.Errorf("Error writing to csv: %v", err)
		return err
	}
	return nil
}

// RenderCSV is WriteCSV into a string.
func RenderCSV(expenses []Expense) (string, error) {
	var b bytes.Buffer
	if err := WriteCSV(&b, expenses); err != nil {
		return "", err
	}
	return b.String(), nil
}
