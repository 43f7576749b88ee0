package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const segmentsCSV = "CustomerID,TotalSpend,NumOrders,AvgOrderValue,RecencyDays,Cluster\n" +
	"1,100,2,50,10,0\n" +
	"2,300,3,100,200,1\n" +
	"3,50,1,50,91,1\n"

func newTestServer(t *testing.T, body string) *Server {
	t.Helper()
	p := filepath.Join(t.TempDir(), "customer_segments.csv")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return NewServer(CSVSource{Path: p}, nil, 90)
}

func get(t *testing.T, s *Server, url string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, url, nil)
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	w := get(t, newTestServer(t, segmentsCSV), "/api/health")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}

func TestSegments_Filter(t *testing.T) {
	s := newTestServer(t, segmentsCSV)

	w := get(t, s, "/api/segments?cluster=1")
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Cluster string `json:"cluster"`
		Count   int    `json:"count"`
		Rows    []struct {
			CustomerID int64 `json:"customer_id"`
		} `json:"rows"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "1", body.Cluster)
	assert.Equal(t, 2, body.Count)
	assert.Equal(t, int64(2), body.Rows[0].CustomerID)

	assert.Equal(t, http.StatusBadRequest, get(t, s, "/api/segments?cluster=9").Code)
}

func TestDashboard(t *testing.T) {
	s := newTestServer(t, segmentsCSV)

	w := get(t, s, "/api/dashboard?cluster=0")
	require.Equal(t, http.StatusOK, w.Code)
	var v struct {
		Selected string `json:"selected"`
		Metrics  struct {
			Customers int `json:"customers"`
		} `json:"metrics"`
		XRange struct {
			Min float64 `json:"min"`
			Max float64 `json:"max"`
		} `json:"x_range"`
		Churn struct {
			Categories []string `json:"categories"`
			Counts     []int    `json:"counts"`
			YMax       int      `json:"y_max"`
		} `json:"churn"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	assert.Equal(t, "0", v.Selected)
	assert.Equal(t, 1, v.Metrics.Customers)
	assert.Equal(t, 50.0, v.XRange.Min)
	assert.Equal(t, 300.0, v.XRange.Max)
	assert.Equal(t, []string{"Low", "High"}, v.Churn.Categories)
	assert.Equal(t, []int{1, 0}, v.Churn.Counts)
	assert.Equal(t, 2, v.Churn.YMax)

	assert.Equal(t, http.StatusBadRequest, get(t, s, "/api/dashboard?cluster=x").Code)
}

func TestSummary(t *testing.T) {
	w := get(t, newTestServer(t, segmentsCSV), "/api/summary")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Clusters []struct {
			Cluster          int `json:"cluster"`
			NumCustomers     int `json:"num_customers"`
			NumHighChurnRisk int `json:"num_high_churn_risk"`
		} `json:"clusters"`
		Segments []any `json:"segments"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Clusters, 2)
	assert.Equal(t, 2, body.Clusters[1].NumCustomers)
	assert.Equal(t, 2, body.Clusters[1].NumHighChurnRisk)
	assert.Empty(t, body.Segments)
}

func TestPage(t *testing.T) {
	s := newTestServer(t, segmentsCSV)

	w := get(t, s, "/?cluster=1")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Customers in Selection")
	assert.Contains(t, w.Body.String(), `<option value="1" selected>`)
	assert.Contains(t, w.Body.String(), "Spend vs Recency: Cluster 1")
}

func TestMissingSource(t *testing.T) {
	s := NewServer(CSVSource{Path: filepath.Join(t.TempDir(), "absent.csv")}, nil, 90)
	assert.Equal(t, http.StatusInternalServerError, get(t, s, "/api/segments").Code)
}

func TestDashboard_NonFiniteValueIsServerError(t *testing.T) {
	s := newTestServer(t, "CustomerID,TotalSpend,NumOrders,AvgOrderValue,RecencyDays,Cluster\n"+
		"1,NaN,1,NaN,3,0\n")

	w := get(t, s, "/api/dashboard")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	var body struct {
		Error string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Contains(t, body.Error, "TotalSpend")
}
