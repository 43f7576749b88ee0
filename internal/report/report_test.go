package report

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/matthieukhl/segmentor/internal/apperr"
	"github.com/matthieukhl/segmentor/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func tenCustomers() []models.SegmentedCustomer {
	rows := make([]models.SegmentedCustomer, 10)
	for i := range rows {
		rows[i] = models.SegmentedCustomer{
			CustomerFeatures: models.CustomerFeatures{
				CustomerID:    int64(100 + i),
				TotalSpend:    float64(10 * (i + 1)),
				NumOrders:     i + 1,
				AvgOrderValue: 10,
				RecencyDays:   i * 20,
			},
			Cluster: i % 2,
		}
	}
	return rows
}

func writeFixture(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "customer_segments.csv")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestChurnRisk_Boundary(t *testing.T) {
	assert.Equal(t, models.ChurnLow, ChurnRisk(0, 90))
	assert.Equal(t, models.ChurnLow, ChurnRisk(90, 90))
	assert.Equal(t, models.ChurnHigh, ChurnRisk(91, 90))
}

func TestSummarize_EvenSplit(t *testing.T) {
	s := Summarize(NewTable(tenCustomers()), 90)

	require.Len(t, s.Clusters, 2)
	assert.Empty(t, s.Segments)
	assert.False(t, s.HasCLV)

	c0, c1 := s.Clusters[0], s.Clusters[1]
	assert.Equal(t, 0, c0.Cluster)
	assert.Equal(t, 5, c0.NumCustomers)
	assert.Equal(t, 5, c1.NumCustomers)

	// cluster 0 holds i = 0,2,4,6,8
	assert.InDelta(t, 50.0, c0.AvgTotalSpend, 1e-9)
	assert.InDelta(t, 5.0, c0.AvgNumOrders, 1e-9)
	assert.InDelta(t, 80.0, c0.AvgRecency, 1e-9)
	// cluster 0 recencies are 0,40,80,120,160 and cluster 1 recencies are
	// 20,60,100,140,180
	assert.Equal(t, 2, c0.NumHighChurnRisk)
	assert.Equal(t, 3, c1.NumHighChurnRisk)
	assert.Nil(t, c0.AvgCLV)
}

func TestSummarize_StoredChurnWins(t *testing.T) {
	rows := tenCustomers()[:2]
	rows[0].RecencyDays = 500
	rows[0].ChurnRisk = models.ChurnLow
	tbl := &Table{Rows: rows, HasChurn: true}

	s := Summarize(tbl, 90)
	assert.Equal(t, 0, s.Clusters[0].NumHighChurnRisk)
}

func TestLoadSegmented_OptionalColumns(t *testing.T) {
	p := writeFixture(t, ""+
		"CustomerID,TotalSpend,NumOrders,AvgOrderValue,RecencyDays,Cluster,CLV_Estimate,Segment,Churn_Risk\n"+
		"1,100,2,50,10,0,300,Gold,Low\n"+
		"2,50,1,50,200,0,,Bronze,High\n"+
		"3,80,4,20,30,1,100,Gold,Low\n")

	tbl, err := LoadSegmented(p)
	require.NoError(t, err)
	assert.True(t, tbl.HasCLV)
	assert.True(t, tbl.HasSegment)
	assert.True(t, tbl.HasChurn)
	require.Len(t, tbl.Rows, 3)
	assert.Nil(t, tbl.Rows[1].CLV)
	require.NotNil(t, tbl.Rows[0].CLV)
	assert.Equal(t, 300.0, *tbl.Rows[0].CLV)

	s := Summarize(tbl, 90)
	require.Len(t, s.Clusters, 2)
	require.NotNil(t, s.Clusters[0].AvgCLV)
	assert.Equal(t, 300.0, *s.Clusters[0].AvgCLV)
	assert.Equal(t, 1, s.Clusters[0].NumHighChurnRisk)

	require.Len(t, s.Segments, 2)
	assert.Equal(t, "Bronze", s.Segments[0].Segment)
	assert.Nil(t, s.Segments[0].AvgCLV)
	assert.Equal(t, "Gold", s.Segments[1].Segment)
	assert.Equal(t, 2, s.Segments[1].NumCustomers)
	assert.Equal(t, 200.0, *s.Segments[1].AvgCLV)

	var buf bytes.Buffer
	require.NoError(t, WriteClusterCSV(&buf, s))
	assert.Equal(t, ""+
		"Cluster,Num_Customers,Avg_TotalSpend,Avg_NumOrders,Avg_Recency,Avg_CLV,Num_High_ChurnRisk\n"+
		"0,2,75,1.5,105,300,1\n"+
		"1,1,80,4,30,100,0\n", buf.String())
}

func TestRiskOf_BlankStoredLabelIsDerived(t *testing.T) {
	r := tenCustomers()[9]
	assert.Equal(t, models.ChurnHigh, RiskOf(r, 90))
	r.ChurnRisk = models.ChurnLow
	assert.Equal(t, models.ChurnLow, RiskOf(r, 90))
}

func TestLoadSegmented_MissingColumns(t *testing.T) {
	p := writeFixture(t, "CustomerID,TotalSpend,Cluster\n1,2,0\n")

	_, err := LoadSegmented(p)
	var se *apperr.SchemaError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, []string{"NumOrders", "AvgOrderValue", "RecencyDays"}, se.Missing)
}

func TestLoadSegmented_BadCluster(t *testing.T) {
	p := writeFixture(t, ""+
		"CustomerID,TotalSpend,NumOrders,AvgOrderValue,RecencyDays,Cluster\n"+
		"1,100,2,50,10,x\n")

	_, err := LoadSegmented(p)
	var pe *apperr.DataParseError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "Cluster", pe.Column)
}

func TestLoadSegmented_NonFiniteSpend(t *testing.T) {
	for _, v := range []string{"NaN", "Inf", "-Inf"} {
		p := writeFixture(t, ""+
			"CustomerID,TotalSpend,NumOrders,AvgOrderValue,RecencyDays,Cluster\n"+
			"1,"+v+",1,10,3,0\n")

		_, err := LoadSegmented(p)
		var pe *apperr.DataParseError
		require.True(t, errors.As(err, &pe), v)
		assert.Equal(t, "TotalSpend", pe.Column)
		assert.Equal(t, 1, pe.Row)
	}
}

func TestLoadSegmented_EmptyFile(t *testing.T) {
	_, err := LoadSegmented(writeFixture(t, ""))
	var se *apperr.SchemaError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, models.SegmentColumns, se.Missing)
}

func TestLoadSegmented_HeaderOnly(t *testing.T) {
	p := writeFixture(t, "CustomerID,TotalSpend,NumOrders,AvgOrderValue,RecencyDays,Cluster,Segment\n")

	tbl, err := LoadSegmented(p)
	require.NoError(t, err)
	assert.Empty(t, tbl.Rows)
	assert.True(t, tbl.HasSegment)
	assert.False(t, tbl.HasCLV)

	_, err = LoadSegmented(writeFixture(t, "CustomerID,Cluster\n"))
	var se *apperr.SchemaError
	assert.True(t, errors.As(err, &se))
}

func TestWriteSegmentCSV_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteSegmentCSV(&buf, Summarize(NewTable(tenCustomers()), 90)))
	assert.Equal(t, "Segment,Num_Customers\n", buf.String())
}

func TestWriteWorkbook(t *testing.T) {
	p := filepath.Join(t.TempDir(), "out", "summary.xlsx")
	require.NoError(t, WriteWorkbook(p, Summarize(NewTable(tenCustomers()), 90)))

	f, err := excelize.OpenFile(p)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"Clusters", "Segments"}, f.GetSheetList())
	rows, err := f.GetRows("Clusters")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, ClusterHeader(false), rows[0])
	assert.Equal(t, "5", rows[1][1])
}
