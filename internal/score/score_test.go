package score

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/nerv00kaworu/Sacred-Essence-Viking/internal/store"
)

func testNode(created, accessed time.Time, access, retrieval int, stability float64) *store.Node {
	return &store.Node{
		ID:              "n1",
		Topic:           "test",
		Title:           "Test Node",
		CreatedAt:       created,
		LastAccessedAt:  accessed,
		AccessCount:     access,
		RetrievalCount:  retrieval,
		StabilityFactor: stability,
		Tier:            store.TierSilver,
	}
}

func TestDensity(t *testing.T) {
	p := Defaults()

	n := testNode(time.Now(), time.Now(), 0, 0, 0.95)
	assert.Equal(t, 0.0, Density(p, n))

	n.AccessCount = 3
	n.RetrievalCount = 4
	assert.InDelta(t, 3*0.2+4*0.1, Density(p, n), 1e-9)
}

func TestImportanceGracePeriod(t *testing.T) {
	p := Defaults()
	now := time.Now()

	// Zero interactions: score is exactly the initial importance.
	n := testNode(now, now, 0, 0, 0.95)
	assert.InDelta(t, p.InitialImportance, Importance(p, n, now), 1e-9)

	// Monotonically non-decreasing in density.
	prev := Importance(p, n, now)
	for access := 1; access <= 50; access += 7 {
		n.AccessCount = access
		cur := Importance(p, n, now)
		assert.GreaterOrEqual(t, cur, prev, "access=%d", access)
		prev = cur
	}

	// Independent of stability factor while in grace.
	a := testNode(now, now, 5, 5, 0.5)
	b := testNode(now, now, 5, 5, 1.0)
	assert.Equal(t, Importance(p, a, now), Importance(p, b, now))
}

func TestImportanceDecay(t *testing.T) {
	p := Defaults()
	now := time.Now()

	// Past grace with zero density: Initial * S^daysUnused, strictly
	// decreasing in daysUnused for S < 1.
	prev := p.InitialImportance
	for _, days := range []int{4, 10, 30, 60, 120} {
		past := now.Add(-time.Duration(days) * 24 * time.Hour)
		n := testNode(past, past, 0, 0, 0.95)
		got := Importance(p, n, now)
		assert.Less(t, got, prev, "days=%d", days)
		prev = got
	}

	// The canonical 60-day case: 10 * 0.95^60 ≈ 0.46, below a dust
	// threshold of 1.0.
	past := now.Add(-60 * 24 * time.Hour)
	n := testNode(past, past, 0, 0, 0.95)
	assert.InDelta(t, 0.4607, Importance(p, n, now), 0.02)
}

func TestImportanceDisuseNotAge(t *testing.T) {
	p := Defaults()
	now := time.Now()

	// Two equally old nodes; the recently touched one scores near full.
	created := now.Add(-200 * 24 * time.Hour)
	stale := testNode(created, created, 0, 0, 0.95)
	fresh := testNode(created, now.Add(-time.Hour), 0, 0, 0.95)

	assert.InDelta(t, p.InitialImportance, Importance(p, fresh, now), 1e-9)
	assert.Less(t, Importance(p, stale, now), 1.0)
}

func TestImportanceGrowthCap(t *testing.T) {
	p := Defaults()
	now := time.Now()
	past := now.Add(-60 * 24 * time.Hour)

	base := testNode(past, past, 0, 0, 0.95)
	decayOnly := Importance(p, base, now)

	heavy := testNode(past, past, 1000, 0, 0.95)
	heavier := testNode(past, past, 100000, 0, 0.95)

	// ln(1+200) ≈ 5.3 exceeds the cap: bonus saturates at 5.0.
	assert.InDelta(t, decayOnly+p.MaxDensityBonus, Importance(p, heavy, now), 1e-9)
	assert.Equal(t, Importance(p, heavy, now), Importance(p, heavier, now))
}

func TestImportanceClampsClockSkew(t *testing.T) {
	p := Defaults()
	now := time.Now()

	// lastAccessedAt in the future: daysUnused clamps to zero instead of
	// producing a negative exponent.
	created := now.Add(-30 * 24 * time.Hour)
	n := testNode(created, now.Add(48*time.Hour), 0, 0, 0.95)
	assert.InDelta(t, p.InitialImportance, Importance(p, n, now), 1e-9)
}

func TestCosineSimilarity(t *testing.T) {
	assert.Equal(t, 0.0, CosineSimilarity(nil, nil))
	assert.Equal(t, 0.0, CosineSimilarity([]float64{1, 2}, nil))
	assert.Equal(t, 0.0, CosineSimilarity([]float64{1, 2}, []float64{1, 2, 3}))
	assert.Equal(t, 0.0, CosineSimilarity([]float64{0, 0}, []float64{1, 2}))

	assert.InDelta(t, 1.0, CosineSimilarity([]float64{1, 2, 3}, []float64{2, 4, 6}), 1e-9)
	assert.InDelta(t, 0.0, CosineSimilarity([]float64{1, 0}, []float64{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, CosineSimilarity([]float64{1, 1}, []float64{-1, -1}), 1e-9)
}
