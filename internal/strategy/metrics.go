package strategy

import "github.com/harunnryd/gmvctl/internal/api"

// Summary is an aggregate over metrics rows. Spend, GMV, and Orders are
// sums; CTR, CPC, and CPM are means over the rows where the value is
// positive, because zero rows are almost always missing data, not real
// zeros.
type Summary struct {
	Rows   int
	Spend  float64
	GMV    float64
	Orders int

	AvgCTR float64
	AvgCPC float64
	AvgCPM float64
	ROAS   float64
}

// Summarize folds metrics rows into one summary. ROAS is GMV over spend and
// is left zero when nothing was spent.
func Summarize(entries []api.MetricsEntry) Summary {
	var s Summary
	var ctrSum, cpcSum, cpmSum float64
	var ctrN, cpcN, cpmN int

	for _, e := range entries {
		s.Rows++
		s.Spend += e.Spend.Float()
		s.GMV += e.GMV.Float()
		s.Orders += e.Orders.Int()

		if v := e.CTR.Float(); v > 0 {
			ctrSum += v
			ctrN++
		}
		if v := e.CPC.Float(); v > 0 {
			cpcSum += v
			cpcN++
		}
		if v := e.CPM.Float(); v > 0 {
			cpmSum += v
			cpmN++
		}
	}

	if ctrN > 0 {
		s.AvgCTR = ctrSum / float64(ctrN)
	}
	if cpcN > 0 {
		s.AvgCPC = cpcSum / float64(cpcN)
	}
	if cpmN > 0 {
		s.AvgCPM = cpmSum / float64(cpmN)
	}
	if s.Spend > 0 {
		s.ROAS = s.GMV / s.Spend
	}
	return s
}

// Dimension extracts a grouping key from a metrics row.
type Dimension func(api.MetricsEntry) string

func ByCreative(e api.MetricsEntry) string { return e.CreativeID.String() }
func ByProduct(e api.MetricsEntry) string  { return e.ProductID.String() }
func ByDate(e api.MetricsEntry) string     { return e.Date }

// GroupBy buckets rows by dimension and summarizes each bucket. Rows with an
// empty dimension value land under "".
func GroupBy(entries []api.MetricsEntry, dim Dimension) map[string]Summary {
	buckets := make(map[string][]api.MetricsEntry)
	for _, e := range entries {
		key := dim(e)
		buckets[key] = append(buckets[key], e)
	}

	out := make(map[string]Summary, len(buckets))
	for key, rows := range buckets {
		out[key] = Summarize(rows)
	}
	return out
}
