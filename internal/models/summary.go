package models

import (
	"time"
)

// ClusterSummary aggregates one cluster of the segmented table.
type ClusterSummary struct {
	Cluster          int      `json:"cluster"`
	NumCustomers     int      `json:"num_customers"`
	AvgTotalSpend    float64  `json:"avg_total_spend"`
	AvgNumOrders     float64  `json:"avg_num_orders"`
	AvgRecency       float64  `json:"avg_recency"`
	AvgCLV           *float64 `json:"avg_clv,omitempty"`
	NumHighChurnRisk int      `json:"num_high_churn_risk"`
}

// SegmentSummary aggregates one named segment.
type SegmentSummary struct {
	Segment      string   `json:"segment"`
	NumCustomers int      `json:"num_customers"`
	AvgCLV       *float64 `json:"avg_clv,omitempty"`
}

// PipelineRun is one row of the pipeline_runs table.
type PipelineRun struct {
	ID           string     `json:"id" db:"id"`
	StartedAt    time.Time  `json:"started_at" db:"started_at"`
	FinishedAt   *time.Time `json:"finished_at" db:"finished_at"`
	Status       string     `json:"status" db:"status"`
	NumCustomers int        `json:"num_customers" db:"num_customers"`
	K            int        `json:"k" db:"k"`
	Seed         int64      `json:"seed" db:"seed"`
	Inertia      float64    `json:"inertia" db:"inertia"`
	Error        string     `json:"error,omitempty" db:"error"`
}

const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)
