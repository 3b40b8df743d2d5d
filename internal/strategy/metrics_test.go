package strategy

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harunnryd/gmvctl/internal/api"
)

func entriesFromJSON(t *testing.T, raw string) []api.MetricsEntry {
	t.Helper()
	var entries []api.MetricsEntry
	require.NoError(t, json.Unmarshal([]byte(raw), &entries))
	return entries
}

func TestSummarize_SumsAndMeans(t *testing.T) {
	entries := entriesFromJSON(t, `[
		{"date": "2026-08-01", "spend": 100, "gmv": 300, "orders": 10, "ctr": 0.02, "cpc": 0.5, "cpm": 8},
		{"date": "2026-08-02", "spend": "50", "gmv": "150", "orders": "5", "ctr": 0.04, "cpc": 0, "cpm": 12},
		{"date": "2026-08-03", "spend": 0, "gmv": 0, "orders": 0, "ctr": 0, "cpc": 0, "cpm": 0}
	]`)

	s := Summarize(entries)
	assert.Equal(t, 3, s.Rows)
	assert.InDelta(t, 150, s.Spend, 1e-9)
	assert.InDelta(t, 450, s.GMV, 1e-9)
	assert.Equal(t, 15, s.Orders)

	assert.InDelta(t, 0.03, s.AvgCTR, 1e-9, "mean over the two positive rows only")
	assert.InDelta(t, 0.5, s.AvgCPC, 1e-9, "a single positive row is its own mean")
	assert.InDelta(t, 10, s.AvgCPM, 1e-9)
	assert.InDelta(t, 3, s.ROAS, 1e-9, "gmv over spend")
}

func TestSummarize_ZeroSpendLeavesROASZero(t *testing.T) {
	entries := entriesFromJSON(t, `[{"date": "2026-08-01", "spend": 0, "gmv": 500}]`)
	assert.Zero(t, Summarize(entries).ROAS)
}

func TestSummarize_Empty(t *testing.T) {
	s := Summarize(nil)
	assert.Zero(t, s.Rows)
	assert.Zero(t, s.ROAS)
	assert.Zero(t, s.AvgCTR)
}

func TestGroupBy_Dimensions(t *testing.T) {
	entries := entriesFromJSON(t, `[
		{"date": "2026-08-01", "spend": 100, "gmv": 200, "creative_id": "c1", "product_id": 7},
		{"date": "2026-08-01", "spend": 50, "gmv": 250, "creative_id": "c2", "product_id": 7},
		{"date": "2026-08-02", "spend": 25, "gmv": 100, "creative_id": "c1"}
	]`)

	byCreative := GroupBy(entries, ByCreative)
	require.Len(t, byCreative, 2)
	assert.InDelta(t, 125, byCreative["c1"].Spend, 1e-9)
	assert.Equal(t, 2, byCreative["c1"].Rows)
	assert.InDelta(t, 5, byCreative["c2"].ROAS, 1e-9)

	byProduct := GroupBy(entries, ByProduct)
	require.Len(t, byProduct, 2, "numeric product ids normalize to strings; missing ones bucket under empty")
	assert.Equal(t, 2, byProduct["7"].Rows)
	assert.Equal(t, 1, byProduct[""].Rows)

	byDate := GroupBy(entries, ByDate)
	assert.Equal(t, 2, byDate["2026-08-01"].Rows)
}
