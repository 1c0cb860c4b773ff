package dataset

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datasage-io/datasage/internal/errs"
)

func TestReadCSV(t *testing.T) {
	input := "Order Date,Region,Sales Amount\n" +
		"2024-01-01,East,100\n" +
		"2024-01-02,West,250\n"

	table, err := ReadCSV(strings.NewReader(input))
	require.NoError(t, err)

	assert.Equal(t, []string{"order_date", "region", "sales_amount"}, table.ColumnNames())
	assert.Equal(t, "Order Date", table.Columns[0].Original)
	require.Len(t, table.Rows, 2)
	assert.Equal(t, []string{"2024-01-01", "East", "100"}, table.Rows[0])
}

func TestReadCSV_SkipsMisalignedRows(t *testing.T) {
	input := "a,b\n1,2\nonly-one-field\n3,4,5\n6,7\n"

	table, err := ReadCSV(strings.NewReader(input))
	require.NoError(t, err)

	require.Len(t, table.Rows, 2)
	assert.Equal(t, []string{"1", "2"}, table.Rows[0])
	assert.Equal(t, []string{"6", "7"}, table.Rows[1])
}

func TestReadCSV_TrimsCells(t *testing.T) {
	input := "a,b\n x , y \n"

	table, err := ReadCSV(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, table.Rows, 1)
	assert.Equal(t, []string{"x", "y"}, table.Rows[0])
}

func TestReadCSV_EmptyInput(t *testing.T) {
	_, err := ReadCSV(strings.NewReader(""))
	require.Error(t, err)
	assert.True(t, errs.IsInvalidInput(err))
}

func TestNormalizeHeader_Duplicates(t *testing.T) {
	table, err := ReadCSV(strings.NewReader("City,City,city\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"city", "city_1", "city_2"}, table.ColumnNames())
}

func TestNormalizeHeader_BlankBecomesColumn(t *testing.T) {
	table, err := ReadCSV(strings.NewReader("a,,b\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "column", "b"}, table.ColumnNames())
}

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "already clean", in: "region", want: "region"},
		{name: "spaces", in: "Order Date", want: "order_date"},
		{name: "punctuation runs", in: "Sales -- Amount ($)", want: "sales_amount"},
		{name: "leading and trailing junk", in: "  %total%  ", want: "total"},
		{name: "unicode dropped", in: "prix €", want: "prix"},
		{name: "empty", in: "!!!", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeName(tt.in))
		})
	}
}
