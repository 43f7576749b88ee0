package ingest

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/matthieukhl/segmentor/internal/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTransactionReader_MissingColumns(t *testing.T) {
	_, err := NewTransactionReader(strings.NewReader("InvoiceNo,StockCode,Quantity\n"), Options{Source: "raw.csv"})

	var se *apperr.SchemaError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "raw.csv", se.Source)
	assert.Equal(t, []string{ColDescription, ColInvoiceDate, ColUnitPrice, ColCustomerID, ColCountry}, se.Missing)
}

func TestNewTransactionReader_EmptyInput(t *testing.T) {
	_, err := NewTransactionReader(strings.NewReader(""), Options{})

	var se *apperr.SchemaError
	require.True(t, errors.As(err, &se))
	assert.Len(t, se.Missing, len(RequiredColumns))
}

func TestReadAll_Latin1(t *testing.T) {
	// 0xE9 is é in ISO-8859-1
	raw := "\xef\xbb\xbfInvoiceNo,StockCode,Description,Quantity,InvoiceDate,UnitPrice,CustomerID,Country\n" +
		"536365,85123A,CAF\xe9 SET,6,12/1/2010 8:26,2.55,17850.0,United Kingdom\n" +
		"536366,71053,LANTERN,6,12/1/2010 8:28,3.39,,United Kingdom\n"

	tr, err := NewTransactionReader(strings.NewReader(raw), Options{})
	require.NoError(t, err)
	rows, err := tr.ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)

	tx := rows[0]
	assert.Equal(t, "CAFé SET", tx.Description)
	assert.True(t, tx.HasCustomer)
	assert.Equal(t, int64(17850), tx.CustomerID)
	assert.Equal(t, int64(6), tx.Quantity)
	assert.Equal(t, "15.3", tx.TotalAmount().String())
	assert.Equal(t, time.Date(2010, 12, 1, 8, 26, 0, 0, time.UTC), tx.InvoiceDate)

	assert.False(t, rows[1].HasCustomer)
}

func TestReadAll_BadQuantity(t *testing.T) {
	raw := "InvoiceNo,StockCode,Description,Quantity,InvoiceDate,UnitPrice,CustomerID,Country\n" +
		"1,A,x,2,2011-01-01,1.0,12,UK\n" +
		"2,A,x,two,2011-01-01,1.0,12,UK\n"

	tr, err := NewTransactionReader(strings.NewReader(raw), Options{Encoding: "utf8"})
	require.NoError(t, err)
	_, err = tr.ReadAll()

	var pe *apperr.DataParseError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, 2, pe.Row)
	assert.Equal(t, ColQuantity, pe.Column)
	assert.Equal(t, "two", pe.Value)
}

func TestParseCustomerID(t *testing.T) {
	tests := []struct {
		in      string
		id      int64
		ok      bool
		wantErr bool
	}{
		{"17850", 17850, true, false},
		{"17850.0", 17850, true, false},
		{"", 0, false, false},
		{"NaN", 0, false, false},
		{"null", 0, false, false},
		{"12.5", 0, false, true},
		{"abc", 0, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			id, ok, err := ParseCustomerID(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.id, id)
			assert.Equal(t, tt.ok, ok)
		})
	}
}

func TestParseDate(t *testing.T) {
	layouts := []string{"1/2/2006 15:04", "2006-01-02 15:04:05"}

	ts, err := ParseDate("2011-12-09 12:50:00", layouts)
	require.NoError(t, err)
	assert.Equal(t, 2011, ts.Year())

	_, err = ParseDate("09.12.2011", layouts)
	assert.Error(t, err)
}
