// Package features aggregates raw transactions into one behavioral row per
// customer.
package features

import (
	"sort"
	"time"

	"github.com/matthieukhl/segmentor/internal/ingest"
	"github.com/matthieukhl/segmentor/internal/models"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

type accumulator struct {
	spend    decimal.Decimal
	invoices map[string]struct{}
	last     time.Time
}

// Build aggregates transactions by customer. Rows without a customer id are
// dropped. Recency is measured against the latest invoice date of the customer
// rows, so it is relative to the dataset's own time window. Output is sorted by
// customer id.
func Build(rows []models.Transaction) []models.CustomerFeatures {
	byCustomer := make(map[int64]*accumulator)
	var datasetMax time.Time
	dropped := 0

	for _, tx := range rows {
		if !tx.HasCustomer {
			dropped++
			continue
		}
		acc, ok := byCustomer[tx.CustomerID]
		if !ok {
			acc = &accumulator{invoices: make(map[string]struct{})}
			byCustomer[tx.CustomerID] = acc
		}
		acc.spend = acc.spend.Add(tx.TotalAmount())
		acc.invoices[tx.InvoiceNo] = struct{}{}
		if tx.InvoiceDate.After(acc.last) {
			acc.last = tx.InvoiceDate
		}
		if tx.InvoiceDate.After(datasetMax) {
			datasetMax = tx.InvoiceDate
		}
	}

	ids := make([]int64, 0, len(byCustomer))
	for id := range byCustomer {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([]models.CustomerFeatures, 0, len(ids))
	for _, id := range ids {
		acc := byCustomer[id]
		spend := acc.spend.InexactFloat64()
		orders := len(acc.invoices)
		out = append(out, models.CustomerFeatures{
			CustomerID:    id,
			TotalSpend:    spend,
			NumOrders:     orders,
			AvgOrderValue: spend / float64(orders),
			RecencyDays:   RecencyDays(datasetMax, acc.last),
		})
	}

	log.WithFields(log.Fields{
		"rows":      len(rows),
		"dropped":   dropped,
		"customers": len(out),
	}).Debug("Aggregated customer features")

	return out
}

// RecencyDays is the number of whole days from last to ref, floored.
func RecencyDays(ref, last time.Time) int {
	d := ref.Sub(last)
	days := int(d / (24 * time.Hour))
	if d < 0 && d%(24*time.Hour) != 0 {
		days--
	}
	return days
}

// BuildFromFile reads the raw export at path and aggregates it.
func BuildFromFile(path string, opts ingest.Options) ([]models.CustomerFeatures, error) {
	log.WithField("path", path).Info("Loading raw dataset")
	rows, err := ingest.ReadFile(path, opts)
	if err != nil {
		return nil, err
	}
	log.WithField("rows", len(rows)).Info("Creating customer-level aggregations")
	return Build(rows), nil
}
