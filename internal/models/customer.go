package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction is one line item of the raw e-commerce export.
type Transaction struct {
	InvoiceNo   string
	StockCode   string
	Description string
	Quantity    int64
	InvoiceDate time.Time
	UnitPrice   decimal.Decimal
	CustomerID  int64
	HasCustomer bool
	Country     string
}

// TotalAmount is Quantity × UnitPrice.
func (t Transaction) TotalAmount() decimal.Decimal {
	return t.UnitPrice.Mul(decimal.NewFromInt(t.Quantity))
}

// CustomerFeatures is the per-customer behavioral vector.
type CustomerFeatures struct {
	CustomerID    int64   `json:"customer_id" db:"customer_id"`
	TotalSpend    float64 `json:"total_spend" db:"total_spend"`
	NumOrders     int     `json:"num_orders" db:"num_orders"`
	AvgOrderValue float64 `json:"avg_order_value" db:"avg_order_value"`
	RecencyDays   int     `json:"recency_days" db:"recency_days"`
}

// SegmentedCustomer is a feature row with its cluster assignment. The optional
// fields are only populated when a segmented file carries them.
type SegmentedCustomer struct {
	CustomerFeatures
	Cluster   int      `json:"cluster" db:"cluster"`
	ChurnRisk string   `json:"churn_risk,omitempty"`
	CLV       *float64 `json:"clv_estimate,omitempty"`
	Segment   string   `json:"segment,omitempty"`
}

// Churn risk labels
const (
	ChurnHigh = "High"
	ChurnLow  = "Low"
)

// CSV column names shared by the file formats.
const (
	ColCustomerID    = "CustomerID"
	ColTotalSpend    = "TotalSpend"
	ColNumOrders     = "NumOrders"
	ColAvgOrderValue = "AvgOrderValue"
	ColRecencyDays   = "RecencyDays"
	ColCluster       = "Cluster"
	ColChurnRisk     = "Churn_Risk"
	ColCLV           = "CLV_Estimate"
	ColSegment       = "Segment"
)

// FeatureColumns is the header of the features file.
var FeatureColumns = []string{ColCustomerID, ColTotalSpend, ColNumOrders, ColAvgOrderValue, ColRecencyDays}

// SegmentColumns is the header of the segmented file.
var SegmentColumns = append(append([]string{}, FeatureColumns...), ColCluster)
