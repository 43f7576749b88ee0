package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/matthieukhl/segmentor/internal/apperr"
	"github.com/matthieukhl/segmentor/internal/models"
	"github.com/shopspring/decimal"
	"golang.org/x/text/encoding/charmap"
)

// Required columns of the raw transaction export.
const (
	ColInvoiceNo   = "InvoiceNo"
	ColStockCode   = "StockCode"
	ColDescription = "Description"
	ColQuantity    = "Quantity"
	ColInvoiceDate = "InvoiceDate"
	ColUnitPrice   = "UnitPrice"
	ColCustomerID  = "CustomerID"
	ColCountry     = "Country"
)

var RequiredColumns = []string{
	ColInvoiceNo, ColStockCode, ColDescription, ColQuantity,
	ColInvoiceDate, ColUnitPrice, ColCustomerID, ColCountry,
}

// Options controls how the raw file is decoded.
type Options struct {
	// Encoding is latin1 (default) or utf8.
	Encoding string
	// DateLayouts are tried in order for InvoiceDate.
	DateLayouts []string
	// Source names the input in schema errors.
	Source string
}

// TransactionReader streams transaction rows from a CSV export.
type TransactionReader struct {
	r       *csv.Reader
	index   map[string]int
	layouts []string
	row     int
}

// NewTransactionReader reads and validates the header. A missing required
// column yields *apperr.SchemaError.
func NewTransactionReader(r io.Reader, opts Options) (*TransactionReader, error) {
	cr := csv.NewReader(decoder(r, opts.Encoding))
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &apperr.SchemaError{Source: opts.Source, Missing: append([]string{}, RequiredColumns...)}
		}
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.TrimSpace(trimBOM(name))
		if _, dup := index[name]; !dup {
			index[name] = i
		}
	}

	var missing []string
	for _, col := range RequiredColumns {
		if _, ok := index[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, &apperr.SchemaError{Source: opts.Source, Missing: missing}
	}

	layouts := opts.DateLayouts
	if len(layouts) == 0 {
		layouts = []string{"1/2/2006 15:04", "2006-01-02 15:04:05", time.RFC3339, "2006-01-02"}
	}

	return &TransactionReader{r: cr, index: index, layouts: layouts}, nil
}

// trimBOM drops a UTF-8 byte order mark, whether it arrives intact or as its
// latin1 rendering.
func trimBOM(s string) string {
	s = strings.TrimPrefix(s, "\ufeff")
	return strings.TrimPrefix(s, "\u00ef\u00bb\u00bf")
}

// decoder wraps r so that legacy single-byte input arrives as UTF-8.
func decoder(r io.Reader, encoding string) io.Reader {
	switch strings.ToLower(encoding) {
	case "utf8", "utf-8":
		return r
	case "windows-1252", "cp1252":
		return charmap.Windows1252.NewDecoder().Reader(r)
	default:
		return charmap.ISO8859_1.NewDecoder().Reader(r)
	}
}

// Next returns the next transaction, or io.EOF when the input is exhausted.
func (t *TransactionReader) Next() (models.Transaction, error) {
	rec, err := t.r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return models.Transaction{}, io.EOF
		}
		return models.Transaction{}, fmt.Errorf("failed to read row %d: %w", t.row+1, err)
	}
	t.row++
	return t.parse(rec)
}

// ReadAll drains the reader.
func (t *TransactionReader) ReadAll() ([]models.Transaction, error) {
	var rows []models.Transaction
	for {
		tx, err := t.Next()
		if errors.Is(err, io.EOF) {
			return rows, nil
		}
		if err != nil {
			return nil, err
		}
		rows = append(rows, tx)
	}
}

func (t *TransactionReader) field(rec []string, col string) string {
	i := t.index[col]
	if i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

func (t *TransactionReader) parse(rec []string) (models.Transaction, error) {
	tx := models.Transaction{
		InvoiceNo:   t.field(rec, ColInvoiceNo),
		StockCode:   t.field(rec, ColStockCode),
		Description: t.field(rec, ColDescription),
		Country:     t.field(rec, ColCountry),
	}

	raw := t.field(rec, ColCustomerID)
	id, ok, err := ParseCustomerID(raw)
	if err != nil {
		return tx, t.parseErr(ColCustomerID, raw, err)
	}
	// rows without a customer are dropped before aggregation, so their other
	// fields are never parsed
	if !ok {
		return tx, nil
	}
	tx.CustomerID, tx.HasCustomer = id, true

	raw = t.field(rec, ColQuantity)
	qty, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		f, ferr := strconv.ParseFloat(raw, 64)
		if ferr != nil || f != math.Trunc(f) {
			return tx, t.parseErr(ColQuantity, raw, err)
		}
		qty = int64(f)
	}
	tx.Quantity = qty

	raw = t.field(rec, ColUnitPrice)
	price, err := decimal.NewFromString(raw)
	if err != nil {
		return tx, t.parseErr(ColUnitPrice, raw, err)
	}
	tx.UnitPrice = price

	raw = t.field(rec, ColInvoiceDate)
	date, err := ParseDate(raw, t.layouts)
	if err != nil {
		return tx, t.parseErr(ColInvoiceDate, raw, err)
	}
	tx.InvoiceDate = date

	return tx, nil
}

func (t *TransactionReader) parseErr(col, value string, err error) error {
	return &apperr.DataParseError{Row: t.row, Column: col, Value: value, Err: err}
}

// ParseDate tries each layout in order.
func ParseDate(s string, layouts []string) (time.Time, error) {
	for _, layout := range layouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("no layout matches date %q", s)
}

// ParseCustomerID accepts integral ids, including float renderings such as
// "17850.0". Empty and NaN-like values report ok=false with no error.
func ParseCustomerID(s string) (int64, bool, error) {
	switch strings.ToLower(s) {
	case "", "nan", "na", "null", "none":
		return 0, false, nil
	}
	if id, err := strconv.ParseInt(s, 10, 64); err == nil {
		return id, true, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false, err
	}
	if math.IsNaN(f) {
		return 0, false, nil
	}
	if f != math.Trunc(f) || math.IsInf(f, 0) {
		return 0, false, fmt.Errorf("customer id %q is not integral", s)
	}
	return int64(f), true, nil
}

// ReadFile opens path and reads every transaction.
func ReadFile(path string, opts Options) ([]models.Transaction, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	if opts.Source == "" {
		opts.Source = path
	}
	tr, err := NewTransactionReader(f, opts)
	if err != nil {
		return nil, err
	}
	return tr.ReadAll()
}
