// Package sample writes synthetic transaction exports in the layout the
// pipeline ingests, for demos and tests.
package sample

import (
	"encoding/csv"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/matthieukhl/segmentor/internal/ingest"
	"github.com/shopspring/decimal"
)

type product struct {
	stockCode, description string
	price                  string
}

var catalog = []product{
	{"85123A", "WHITE HANGING HEART T-LIGHT HOLDER", "2.55"},
	{"71053", "WHITE METAL LANTERN", "3.39"},
	{"84406B", "CREAM CUPID HEARTS COAT HANGER", "2.75"},
	{"22752", "SET 7 BABUSHKA NESTING BOXES", "7.65"},
	{"21730", "GLASS STAR FROSTED T-LIGHT HOLDER", "4.25"},
	{"22633", "HAND WARMER UNION JACK", "1.85"},
	{"84879", "ASSORTED COLOUR BIRD ORNAMENT", "1.69"},
	{"22745", "POPPY'S PLAYHOUSE BEDROOM", "2.10"},
	{"21754", "HOME BUILDING BLOCK WORD", "5.95"},
	{"22310", "IVORY KNITTED MUG COSY", "1.65"},
	{"22960", "JAM MAKING SET WITH JARS", "4.25"},
	{"47566", "PARTY BUNTING", "4.95"},
	{"23084", "RABBIT NIGHT LIGHT", "2.08"},
	{"POST", "POSTAGE", "18.00"},
	{"22423", "REGENCY CAKESTAND 3 TIER", "12.75"},
}

var countries = []string{
	"United Kingdom", "United Kingdom", "United Kingdom", "United Kingdom",
	"France", "Germany", "Netherlands", "Australia", "Sweden", "Japan",
}

// profile shapes how a customer buys: how often, how much, and how long ago
// they were last active.
type profile struct {
	weight   int
	qtyMax   int
	lapseMin int
}

var profiles = []profile{
	{weight: 6, qtyMax: 24, lapseMin: 0},  // loyal
	{weight: 1, qtyMax: 6, lapseMin: 120}, // lapsed
	{weight: 3, qtyMax: 96, lapseMin: 0},  // wholesale
	{weight: 2, qtyMax: 8, lapseMin: 30},  // occasional
}

type Options struct {
	Customers int
	Invoices  int
	Start     time.Time
	Days      int
	Seed      int64
	// MissingRate is the share of lines written without a customer id.
	MissingRate float64
}

func DefaultOptions() Options {
	return Options{
		Customers:   200,
		Invoices:    1500,
		Start:       time.Date(2010, 12, 1, 8, 0, 0, 0, time.UTC),
		Days:        373,
		Seed:        42,
		MissingRate: 0.05,
	}
}

// Generate writes a transaction CSV and returns the number of data rows.
// The same options always produce the same bytes.
func Generate(w io.Writer, opts Options) (int, error) {
	if opts.Customers < 1 || opts.Invoices < opts.Customers || opts.Days < 1 {
		return 0, fmt.Errorf("need at least one customer, one invoice per customer and one day")
	}
	rng := rand.New(rand.NewSource(opts.Seed))

	kinds := make([]profile, opts.Customers)
	for i := range kinds {
		kinds[i] = profiles[i%len(profiles)]
	}
	var pool []int
	for i, k := range kinds {
		for j := 0; j < k.weight; j++ {
			pool = append(pool, i)
		}
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(ingest.RequiredColumns); err != nil {
		return 0, err
	}

	rows := 0
	for inv := 0; inv < opts.Invoices; inv++ {
		cust := inv
		if inv >= opts.Customers {
			cust = pool[rng.Intn(len(pool))]
		}
		kind := kinds[cust]

		window := opts.Days - kind.lapseMin
		if window < 1 {
			window = 1
		}
		offset := rng.Intn(window)
		date := opts.Start.Add(time.Duration(offset)*24*time.Hour + time.Duration(rng.Intn(10*60))*time.Minute)

		invoiceNo := strconv.Itoa(536365 + inv)
		refund := rng.Intn(40) == 0
		if refund {
			invoiceNo = "C" + invoiceNo
		}
		country := countries[cust%len(countries)]
		customerID := strconv.Itoa(12346 + cust)

		lines := 1 + rng.Intn(4)
		for l := 0; l < lines; l++ {
			p := catalog[rng.Intn(len(catalog))]
			qty := 1 + rng.Intn(kind.qtyMax)
			if refund {
				qty = -qty
			}
			id := customerID
			if rng.Float64() < opts.MissingRate {
				id = ""
			}
			price := decimal.RequireFromString(p.price)
			rec := []string{
				invoiceNo, p.stockCode, p.description, strconv.Itoa(qty),
				date.Format("1/2/2006 15:04"), price.StringFixed(2), id, country,
			}
			if err := cw.Write(rec); err != nil {
				return rows, err
			}
			rows++
		}
	}
	cw.Flush()
	return rows, cw.Error()
}

// WriteFile generates into path, creating parent directories.
func WriteFile(path string, opts Options) (int, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, fmt.Errorf("failed to create folder: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("failed to create %s: %w", path, err)
	}
	n, err := Generate(f, opts)
	if err != nil {
		f.Close()
		return n, fmt.Errorf("failed to write %s: %w", path, err)
	}
	return n, f.Close()
}
