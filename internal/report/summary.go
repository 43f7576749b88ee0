// Package report derives cluster and segment summaries from a segmented table
// and exports them as CSV and XLSX.
package report

import (
	"sort"

	"github.com/matthieukhl/segmentor/internal/models"
)

// ChurnRisk labels a customer High when inactive for strictly more than
// threshold days.
func ChurnRisk(recencyDays, threshold int) string {
	if recencyDays > threshold {
		return models.ChurnHigh
	}
	return models.ChurnLow
}

// RiskOf returns the row's stored label, or derives it from recency when the
// table has none or the row's cell is blank.
func RiskOf(r models.SegmentedCustomer, threshold int) string {
	if r.ChurnRisk != "" {
		return r.ChurnRisk
	}
	return ChurnRisk(r.RecencyDays, threshold)
}

// Summary holds both derived tables. HasCLV controls whether Avg_CLV is
// emitted; HasSegment whether the segment table has any meaning.
type Summary struct {
	Clusters []models.ClusterSummary
	Segments []models.SegmentSummary
	HasCLV   bool
}

type meanAcc struct {
	sum float64
	n   int
}

func (m *meanAcc) add(v *float64) {
	if v != nil {
		m.sum += *v
		m.n++
	}
}

func (m meanAcc) value() *float64 {
	if m.n == 0 {
		return nil
	}
	v := m.sum / float64(m.n)
	return &v
}

// Summarize recomputes both summaries from scratch. Clusters are sorted by id,
// segments by name. Segments is empty when the table has no Segment column.
func Summarize(t *Table, churnThreshold int) Summary {
	type clusterAcc struct {
		n                      int
		spend, orders, recency float64
		clv                    meanAcc
		high                   int
	}
	byCluster := map[int]*clusterAcc{}
	type segmentAcc struct {
		n   int
		clv meanAcc
	}
	bySegment := map[string]*segmentAcc{}

	for _, r := range t.Rows {
		c, ok := byCluster[r.Cluster]
		if !ok {
			c = &clusterAcc{}
			byCluster[r.Cluster] = c
		}
		c.n++
		c.spend += r.TotalSpend
		c.orders += float64(r.NumOrders)
		c.recency += float64(r.RecencyDays)
		c.clv.add(r.CLV)
		if RiskOf(r, churnThreshold) == models.ChurnHigh {
			c.high++
		}

		if t.HasSegment {
			s, ok := bySegment[r.Segment]
			if !ok {
				s = &segmentAcc{}
				bySegment[r.Segment] = s
			}
			s.n++
			s.clv.add(r.CLV)
		}
	}

	out := Summary{HasCLV: t.HasCLV, Clusters: []models.ClusterSummary{}, Segments: []models.SegmentSummary{}}

	ids := make([]int, 0, len(byCluster))
	for id := range byCluster {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		c := byCluster[id]
		n := float64(c.n)
		cs := models.ClusterSummary{
			Cluster:          id,
			NumCustomers:     c.n,
			AvgTotalSpend:    c.spend / n,
			AvgNumOrders:     c.orders / n,
			AvgRecency:       c.recency / n,
			NumHighChurnRisk: c.high,
		}
		if t.HasCLV {
			cs.AvgCLV = c.clv.value()
		}
		out.Clusters = append(out.Clusters, cs)
	}

	names := make([]string, 0, len(bySegment))
	for name := range bySegment {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		s := bySegment[name]
		ss := models.SegmentSummary{Segment: name, NumCustomers: s.n}
		if t.HasCLV {
			ss.AvgCLV = s.clv.value()
		}
		out.Segments = append(out.Segments, ss)
	}
	return out
}
