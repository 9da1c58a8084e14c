// Package metrics implements spec.md §4.I: the per-batch QualityMetrics scan
// and the general-purpose StatisticSummary used both there and by pipeline
// stage-timing instrumentation.
package metrics

import (
	"encoding/json"
	"math"
	"sort"
	"strings"

	"github.com/dunimd/zi/internal/record"
)

// QualityMetrics summarizes a batch. Zero-initialized for an empty batch.
type QualityMetrics struct {
	TotalRecords        int     `json:"total_records"`
	AveragePayloadChars float64 `json:"average_payload_chars"`
	AveragePayloadTokens float64 `json:"average_payload_tokens"`
	ToxicityAverage     float64 `json:"toxicity_average"`
	ToxicityMax         float64 `json:"toxicity_max"`
	QualityScoreAverage float64 `json:"quality_score_average"`
	DuplicateCount      int     `json:"duplicate_count"`
	EmptyCount          int     `json:"empty_count"`
	ErrorCount          int     `json:"error_count"`
}

// Compute scans batch: character and whitespace-token counts per record,
// toxicity/quality_score sums when present as numeric metadata, and a count
// of empty (zero-character) payloads. DuplicateCount and ErrorCount are left
// at zero here. Pipeline.RunWithMetrics and RunWithVersion fill in
// DuplicateCount from the dedup stages; no caller sets ErrorCount, since the
// tolerant RunWithProgress path reports its failures through
// Pipeline.LastErrorCount rather than through QualityMetrics.
func Compute(batch record.Batch) QualityMetrics {
	if len(batch) == 0 {
		return QualityMetrics{}
	}

	total := len(batch)
	var totalChars, totalTokens, emptyCount int
	var toxicitySum, toxicityMax, qualitySum float64

	for _, r := range batch {
		payloadStr := payloadString(r.Payload)
		chars := len([]rune(payloadStr))
		tokens := len(strings.Fields(payloadStr))
		totalChars += chars
		totalTokens += tokens
		if chars == 0 {
			emptyCount++
		}
		if r.Metadata != nil {
			if tox, ok := numeric(r.Metadata["toxicity"]); ok {
				toxicitySum += tox
				if tox > toxicityMax {
					toxicityMax = tox
				}
			}
			if q, ok := numeric(r.Metadata["quality_score"]); ok {
				qualitySum += q
			}
		}
	}

	return QualityMetrics{
		TotalRecords:         total,
		AveragePayloadChars:  float64(totalChars) / float64(total),
		AveragePayloadTokens: float64(totalTokens) / float64(total),
		ToxicityAverage:      toxicitySum / float64(total),
		ToxicityMax:          toxicityMax,
		QualityScoreAverage:  qualitySum / float64(total),
		EmptyCount:           emptyCount,
	}
}

func payloadString(payload any) string {
	if s, ok := payload.(string); ok {
		return s
	}
	buf, err := json.Marshal(payload)
	if err != nil {
		return ""
	}
	return string(buf)
}

func numeric(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// StatisticSummary reports distributional statistics over a slice of
// values: count, mean, population standard deviation, extrema, median, and
// p25/p75/p95/p99 via nearest-lower index.
type StatisticSummary struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Median float64 `json:"median"`
	P25    float64 `json:"p25"`
	P75    float64 `json:"p75"`
	P95    float64 `json:"p95"`
	P99    float64 `json:"p99"`
}

// FromSlice computes a StatisticSummary over values. An empty slice yields
// the zero value.
func FromSlice(values []float64) StatisticSummary {
	if len(values) == 0 {
		return StatisticSummary{}
	}

	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	count := len(sorted)
	var sum float64
	for _, v := range sorted {
		sum += v
	}
	mean := sum / float64(count)

	var variance float64
	for _, v := range sorted {
		d := v - mean
		variance += d * d
	}
	variance /= float64(count)

	return StatisticSummary{
		Count:  count,
		Mean:   mean,
		StdDev: math.Sqrt(variance),
		Min:    sorted[0],
		Max:    sorted[count-1],
		Median: sorted[count/2],
		P25:    percentile(sorted, 0.25),
		P75:    percentile(sorted, 0.75),
		P95:    percentile(sorted, 0.95),
		P99:    percentile(sorted, 0.99),
	}
}

// percentile mirrors the nearest-lower-index semantics of the original
// implementation, with a defensive clamp: floating-point rounding can push
// count*p up to count for small slices.
func percentile(sorted []float64, p float64) float64 {
	idx := int(float64(len(sorted)) * p)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
