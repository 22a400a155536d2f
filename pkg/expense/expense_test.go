package expense

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "dot separator", input: "12.50", want: "12.5"},
		{name: "comma separator", input: "12,50", want: "12.5"},
		{name: "dollar prefix and spaces", input: " $7.25 ", want: "7.25"},
		{name: "integer", input: "3", want: "3"},
		{name: "thousands comma", input: "1,234", want: "1234"},
		{name: "thousands comma with cents", input: "$1,234.56", want: "1234.56"},
		{name: "millions", input: "1,234,567", want: "1234567"},
		{name: "dot grouping with decimal comma", input: "1.234,56", want: "1234.56"},
		{name: "single decimal after comma", input: "12,5", want: "12.5"},
		{name: "empty", input: "", wantErr: true},
		{name: "zero", input: "0", wantErr: true},
		{name: "negative", input: "-4", wantErr: true},
		{name: "words", input: "twelve", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAmount(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidAmount)
				return
			}
			require.NoError(t, err)
			assert.True(t, got.Equal(decimal.RequireFromString(tt.want)), "got %s", got)
		})
	}
}

func TestParseDecimal_KeepsZero(t *testing.T) {
	d, err := ParseDecimal("$0,00")

	require.NoError(t, err)
	assert.True(t, d.IsZero())
}

func TestFields_Validate(t *testing.T) {
	tests := []struct {
		name   string
		fields Fields
		want   error
	}{
		{name: "valid", fields: Fields{Amount: decimal.NewFromInt(1), Category: "Food"}},
		{name: "zero amount", fields: Fields{Amount: decimal.Zero, Category: "Food"}, want: ErrInvalidAmount},
		{name: "negative amount", fields: Fields{Amount: decimal.NewFromInt(-1), Category: "Food"}, want: ErrInvalidAmount},
		{name: "blank category", fields: Fields{Amount: decimal.NewFromInt(1), Category: "  "}, want: ErrEmptyCategory},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.fields.Validate()
			if tt.want == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.want)
			}
		})
	}
}

func TestQuery_MatchesInclusiveDays(t *testing.T) {
	start := time.Date(2024, 1, 1, 15, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 31, 9, 0, 0, 0, time.UTC)
	query := Query{Start: &start, End: &end}

	tests := []struct {
		name      string
		createdAt time.Time
		want      bool
	}{
		{name: "before start day", createdAt: time.Date(2023, 12, 31, 23, 59, 59, 0, time.UTC), want: false},
		{name: "start of first day", createdAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), want: true},
		{name: "end of last day", createdAt: time.Date(2024, 1, 31, 23, 59, 59, 0, time.UTC), want: true},
		{name: "day after end", createdAt: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, query.Matches(Expense{CreatedAt: tt.createdAt}))
		})
	}
}

func TestQuery_MatchesWithoutBounds(t *testing.T) {
	assert.True(t, Query{}.Matches(Expense{CreatedAt: time.Now()}))
	assert.True(t, Query{}.Matches(Expense{}))
}
