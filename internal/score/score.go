// Package score implements the importance formula:
//
//	Current = Initial * S^daysUnused + min(cap, ln(1 + D))
//
// where D is the interaction density and S the per-node stability factor.
// Nodes inside the grace period never decay; they can only grow via density.
// All functions here are pure — no I/O, no mutation.
package score

import (
	"math"
	"time"

	"github.com/nerv00kaworu/Sacred-Essence-Viking/internal/store"
)

// Params carries the formula constants. The zero value is not usable; copy
// the fields from configuration or use Defaults.
type Params struct {
	InitialImportance float64
	GracePeriodDays   int
	DensityBase       float64
	WeightAccess      float64
	WeightRetrieval   float64
	MaxDensityBonus   float64
}

// Defaults returns the v3.1 constants.
func Defaults() Params {
	return Params{
		InitialImportance: 10.0,
		GracePeriodDays:   3,
		DensityBase:       0.0,
		WeightAccess:      0.2,
		WeightRetrieval:   0.1,
		MaxDensityBonus:   5.0,
	}
}

// Density measures how actively a node has been used.
// D = base + access*weightAccess + retrieval*weightRetrieval.
func Density(p Params, n *store.Node) float64 {
	return p.DensityBase +
		float64(n.AccessCount)*p.WeightAccess +
		float64(n.RetrievalCount)*p.WeightRetrieval
}

// Importance computes the node's current relevance score at the given time.
//
// Inside the grace period the score is Initial + ln(1+D): a new node cannot
// be evicted before it has had a chance to accrue interactions. Past grace,
// decay runs against days since the last effective interaction — disuse,
// not age — and growth is log-diminishing and hard-capped so volume alone
// cannot make a node immortal.
func Importance(p Params, n *store.Node, now time.Time) float64 {
	ageDays := daysBetween(n.CreatedAt, now)
	if ageDays <= p.GracePeriodDays {
		return p.InitialImportance + math.Log(1+Density(p, n))
	}

	daysUnused := daysBetween(n.LastAccessedAt, now)
	if daysUnused < 0 {
		daysUnused = 0
	}

	decay := p.InitialImportance * math.Pow(n.StabilityFactor, float64(daysUnused))
	growth := math.Min(p.MaxDensityBonus, math.Log(1+Density(p, n)))
	return decay + growth
}

// daysBetween returns whole days from a to b, truncated toward zero.
// Negative deltas (clock skew, malformed timestamps) come out negative and
// are clamped by callers.
func daysBetween(a, b time.Time) int {
	return int(b.Sub(a).Hours() / 24)
}

// CosineSimilarity returns the cosine of the angle between two vectors.
// Empty, dimension-mismatched, or zero-norm inputs yield 0.0 rather than an
// error: callers use this as a soft duplicate-detection signal.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0.0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0.0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
