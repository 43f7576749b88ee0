package sample

import (
	"bytes"
	"strings"
	"testing"

	"github.com/matthieukhl/segmentor/internal/features"
	"github.com/matthieukhl/segmentor/internal/ingest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate_Deterministic(t *testing.T) {
	opts := DefaultOptions()
	opts.Customers, opts.Invoices = 20, 60

	var a, b bytes.Buffer
	n, err := Generate(&a, opts)
	require.NoError(t, err)
	_, err = Generate(&b, opts)
	require.NoError(t, err)

	assert.Equal(t, a.String(), b.String())
	assert.Equal(t, n+1, strings.Count(a.String(), "\n"))
}

func TestGenerate_Ingestible(t *testing.T) {
	opts := DefaultOptions()
	opts.Customers, opts.Invoices, opts.MissingRate = 12, 40, 0

	var buf bytes.Buffer
	_, err := Generate(&buf, opts)
	require.NoError(t, err)

	tr, err := ingest.NewTransactionReader(&buf, ingest.Options{})
	require.NoError(t, err)
	rows, err := tr.ReadAll()
	require.NoError(t, err)

	feats := features.Build(rows)
	assert.Len(t, feats, 12)
	for _, f := range feats {
		assert.GreaterOrEqual(t, f.NumOrders, 1)
	}
}

func TestGenerate_RejectsBadOptions(t *testing.T) {
	_, err := Generate(&bytes.Buffer{}, Options{Customers: 5, Invoices: 2, Days: 10})
	assert.Error(t, err)
}
