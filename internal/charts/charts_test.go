package charts

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/matthieukhl/segmentor/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestElbow(t *testing.T) {
	c := Elbow([]int{2, 3, 4}, []float64{30, 12.5, 9})

	assert.Equal(t, "line", c.Type)
	assert.Equal(t, []interface{}{2, 3, 4}, c.Data.Labels)
	require.Len(t, c.Data.DataSets, 1)
	assert.Equal(t, []interface{}{30.0, 12.5, 9.0}, c.Data.DataSets[0].Data)
}

func TestScatter_FixedAxesAndClusterOrder(t *testing.T) {
	c := Scatter("Spend vs Recency", map[int][]Point{
		2: {{X: 1, Y: 2}},
		0: {{X: 5, Y: 6}, {X: 7, Y: 8}},
	}, Range{Min: 0, Max: 100}, Range{Min: 0, Max: 365})

	require.Len(t, c.Data.DataSets, 2)
	assert.Equal(t, "Cluster 0", c.Data.DataSets[0].Label)
	assert.Equal(t, "Cluster 2", c.Data.DataSets[1].Label)
	assert.Equal(t, Color(2), c.Data.DataSets[1].BackgroundColor)

	raw, err := json.Marshal(c)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"ticks":{"min":0,"max":100}`)
	assert.Contains(t, string(raw), `"ticks":{"min":0,"max":365}`)
	assert.Contains(t, string(raw), `{"x":5,"y":6}`)
}

func TestHistogramLabels(t *testing.T) {
	c := Histogram("Spend", []float64{0, 50, 100}, []int{3, 1})
	assert.Equal(t, []interface{}{"0-50", "50-100"}, c.Data.Labels)
	assert.Equal(t, []interface{}{3, 1}, c.Data.DataSets[0].Data)
}

func TestBar_YRange(t *testing.T) {
	c := Bar("Churn", []string{"High", "Low"}, []int{4, 9}, 9)
	y := c.Options.Scales.YAxes[0].Ticks
	require.NotNil(t, y)
	assert.Equal(t, 0.0, *y.Min)
	assert.Equal(t, 9.0, *y.Max)
}

func TestRenderer_WriteArtifactLinkOnly(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "outputs")
	r := NewRenderer(config.ChartsConfig{Width: 800, Height: 500})

	require.NoError(t, r.WriteArtifact(dir, "elbow_curve", Elbow([]int{2}, []float64{1})))

	raw, err := os.ReadFile(filepath.Join(dir, "elbow_curve.url"))
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(raw), "quickchart.io"))
	_, err = os.Stat(filepath.Join(dir, "elbow_curve.png"))
	assert.True(t, os.IsNotExist(err))
}
