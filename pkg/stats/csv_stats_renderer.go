package stats

import (
	"bytes"
	"encoding/csv"
	"strconv"

	log "github.com/sirupsen/logrus"
)

type StatsRenderer interface {
	RenderStats(summary Summary) (string, error)
}

type CsvStatsRendererImpl struct {
}

func NewCsvStatsRenderer() *CsvStatsRendererImpl {
	return &CsvStatsRendererImpl{}
}

func (t *CsvStatsRendererImpl) RenderStats(summary Summary) (string, error) {
	data := [][]string{
		{"Metric", "Value"},
		{"Total", summary.Total.StringFixed(2)},
		{"Count", strconv.Itoa(summary.Count)},
		{"Top category", summary.TopCategory},
		{"Budget limit", budgetLimit(summary)},
		{"Budget utilization", summary.Progress.String()},
		{},
		{"Category", "Amount"},
	}
	for _, ct := range summary.Breakdown() {
		data = append(data, []string{ct.Category, ct.Amount.StringFixed(2)})
	}

	var b bytes.Buffer
	writer := csv.NewWriter(&b)
	for _, row := range data {
		err := writer.Write(row)
		if err != nil {
			log.Errorf("Error writing to csv: %v", err)
			return "", err
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		log.Errorf("Error writing to csv: %v", err)
		return "", err
	}

	return b.String(), nil
}

func budgetLimit(summary Summary) string {
	if !summary.Budget.IsSet() {
		return "unset"
	}
	return summary.Budget.LimitAmount.StringFixed(2)
}
