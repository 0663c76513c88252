package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nerv00kaworu/Sacred-Essence-Viking/internal/config"
	"github.com/nerv00kaworu/Sacred-Essence-Viking/internal/store"
)

func testEngine(t *testing.T, mutate func(*config.Config)) (*Engine, *store.Store) {
	t.Helper()
	st, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	cfg := config.Default()
	cfg.Maintenance.MinKeepNodes = 0
	if mutate != nil {
		mutate(&cfg)
	}
	return New(st, cfg), st
}

// seedNode writes a node whose created/last-accessed timestamps lie the given
// number of days in the past.
func seedNode(t *testing.T, st *store.Store, topic, id string, tier store.Tier, daysOld int, stability float64) *store.Node {
	t.Helper()
	past := time.Now().Add(-time.Duration(daysOld) * 24 * time.Hour)
	n := &store.Node{
		ID:              id,
		Topic:           topic,
		Title:           "Title " + id,
		Abstract:        "abstract " + id,
		CreatedAt:       past,
		LastAccessedAt:  past,
		StabilityFactor: stability,
		Tier:            tier,
	}
	if err := st.Save(n); err != nil {
		t.Fatalf("seed %s/%s: %v", topic, id, err)
	}
	return n
}

func TestDryRunCountsMatchExecute(t *testing.T) {
	eng, st := testEngine(t, nil)
	ctx := context.Background()

	// 60 stale days at 0.95: score ~0.46, below the dust threshold.
	seedNode(t, st, "golang", "stale001", store.TierSilver, 60, 0.95)
	seedNode(t, st, "golang", "fresh001", store.TierSilver, 0, 0.95)

	dry, err := eng.RunGC(ctx, false)
	if err != nil {
		t.Fatalf("dry run: %v", err)
	}
	if !dry.DryRun {
		t.Error("report should be marked dry")
	}
	if dry.Scanned != 2 || dry.MarkedDust != 1 || dry.Trashed != 1 {
		t.Errorf("dry report: %+v", dry)
	}

	// Nothing mutated: the stale node is still live and SILVER.
	n, err := st.Load("golang", "stale001")
	if err != nil || n == nil {
		t.Fatalf("load after dry run: n=%v err=%v", n, err)
	}
	if n.Tier != store.TierSilver {
		t.Errorf("dry run changed tier to %s", n.Tier)
	}
	if trash, _ := st.ListTrash(); len(trash) != 0 {
		t.Errorf("dry run produced trash entries: %v", trash)
	}
	if soil, _ := st.ReadSoil(); soil != "" {
		t.Error("dry run wrote to the soil log")
	}

	wet, err := eng.RunGC(ctx, true)
	if err != nil {
		t.Fatalf("execute run: %v", err)
	}
	if wet.DryRun {
		t.Error("execute report marked dry")
	}
	if wet.Scanned != dry.Scanned || wet.MarkedDust != dry.MarkedDust || wet.Trashed != dry.Trashed {
		t.Errorf("execute counts diverge from dry run: dry=%+v wet=%+v", dry, wet)
	}

	// Now actually gone, with a soil trace and a trash copy.
	n, err = st.Load("golang", "stale001")
	if err != nil {
		t.Fatalf("load after execute: %v", err)
	}
	if n != nil {
		t.Error("stale node survived an execute run")
	}
	trash, _ := st.ListTrash()
	if len(trash) != 1 || !strings.HasPrefix(trash[0], "golang_stale001_") {
		t.Errorf("unexpected trash contents: %v", trash)
	}
	soil, _ := st.ReadSoil()
	if !strings.Contains(soil, "Title stale001") {
		t.Errorf("soil log missing the reclaimed node: %q", soil)
	}

	// Fresh node untouched.
	fresh, _ := st.Load("golang", "fresh001")
	if fresh == nil || fresh.Tier != store.TierSilver {
		t.Errorf("fresh node disturbed: %+v", fresh)
	}
}

func TestSecondCycleIsIdempotent(t *testing.T) {
	eng, st := testEngine(t, nil)
	ctx := context.Background()

	seedNode(t, st, "golang", "stale001", store.TierSilver, 60, 0.95)
	seedNode(t, st, "golang", "mid00001", store.TierSilver, 30, 0.95)
	seedNode(t, st, "golang", "fresh001", store.TierSilver, 0, 0.95)

	if _, err := eng.RunGC(ctx, true); err != nil {
		t.Fatalf("first run: %v", err)
	}
	second, err := eng.RunGC(ctx, true)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if second.Demoted != 0 || second.MarkedDust != 0 || second.Trashed != 0 {
		t.Errorf("second cycle re-transitioned: %+v", second)
	}
}

func TestDemotionLandingTiers(t *testing.T) {
	eng, st := testEngine(t, nil)
	ctx := context.Background()

	// 30 stale days at 0.95: score ~2.1, between dust and silver
	// thresholds. SILVER lands on BRONZE.
	seedNode(t, st, "golang", "fading01", store.TierSilver, 30, 0.95)
	// BRONZE below the dust threshold goes to DUST and out.
	seedNode(t, st, "golang", "gone0001", store.TierBronze, 60, 0.95)

	report, err := eng.RunGC(ctx, true)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.Demoted != 1 || report.MarkedDust != 1 || report.Trashed != 1 {
		t.Errorf("report: %+v", report)
	}

	n, _ := st.Load("golang", "fading01")
	if n == nil || n.Tier != store.TierBronze {
		t.Errorf("expected BRONZE landing, got %+v", n)
	}
	if gone, _ := st.Load("golang", "gone0001"); gone != nil {
		t.Error("dusted bronze node survived")
	}
}

func TestGoldenExemptFromScoreDecay(t *testing.T) {
	eng, st := testEngine(t, nil)

	seedNode(t, st, "core", "anchor01", store.TierGolden, 200, 0.95)

	report, err := eng.RunGC(context.Background(), true)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.Demoted != 0 || report.Trashed != 0 {
		t.Errorf("golden node was touched: %+v", report)
	}
	n, _ := st.Load("core", "anchor01")
	if n == nil || n.Tier != store.TierGolden {
		t.Errorf("golden node disturbed: %+v", n)
	}
}

func TestGoldenSoftCapDemotesOldest(t *testing.T) {
	eng, st := testEngine(t, func(cfg *config.Config) {
		cfg.Maintenance.SoftCapGolden = 2
	})
	ctx := context.Background()

	// The oldest golden node is also long-stale, so its snapshot score is
	// below the dust threshold: soft-cap eviction sends it straight to
	// trash rather than parking it in BRONZE for a cycle.
	seedNode(t, st, "core", "oldest01", store.TierGolden, 60, 0.95)
	seedNode(t, st, "core", "middle01", store.TierGolden, 2, 0.95)
	seedNode(t, st, "core", "newest01", store.TierGolden, 1, 0.95)

	report, err := eng.RunGC(ctx, true)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	// A DUST landing is counted once, as marked dust, same as the
	// score-based path.
	if report.Demoted != 0 || report.MarkedDust != 1 || report.Trashed != 1 {
		t.Errorf("report: %+v", report)
	}

	if gone, _ := st.Load("core", "oldest01"); gone != nil {
		t.Error("soft-cap victim survived")
	}
	for _, id := range []string{"middle01", "newest01"} {
		n, _ := st.Load("core", id)
		if n == nil || n.Tier != store.TierGolden {
			t.Errorf("survivor %s disturbed: %+v", id, n)
		}
	}
}

func TestGoldenSoftCapBronzeLanding(t *testing.T) {
	eng, st := testEngine(t, func(cfg *config.Config) {
		cfg.Maintenance.SoftCapGolden = 1
	})

	// 30 stale days at 0.95: snapshot score ~2.1, a BRONZE landing.
	seedNode(t, st, "core", "oldest01", store.TierGolden, 30, 0.95)
	seedNode(t, st, "core", "newest01", store.TierGolden, 1, 0.95)

	report, err := eng.RunGC(context.Background(), true)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.Demoted != 1 || report.MarkedDust != 0 || report.Trashed != 0 {
		t.Errorf("report: %+v", report)
	}
	n, _ := st.Load("core", "oldest01")
	if n == nil || n.Tier != store.TierBronze {
		t.Errorf("expected BRONZE landing, got %+v", n)
	}
}

func TestSafetyNetAbortsCycle(t *testing.T) {
	eng, st := testEngine(t, func(cfg *config.Config) {
		cfg.Maintenance.MinKeepNodes = 5
	})

	seedNode(t, st, "golang", "stale001", store.TierSilver, 60, 0.95)
	seedNode(t, st, "golang", "fresh001", store.TierSilver, 0, 0.95)

	report, err := eng.RunGC(context.Background(), true)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !report.SafetyTriggered {
		t.Error("expected safety net to trigger")
	}
	if report.Trashed != 0 {
		t.Errorf("safety-aborted cycle still trashed nodes: %+v", report)
	}

	// Pre-mutation abort: even the in-memory demotion never reached disk.
	n, _ := st.Load("golang", "stale001")
	if n == nil || n.Tier != store.TierSilver {
		t.Errorf("node mutated despite safety abort: %+v", n)
	}
}

func TestTrashRetentionSweep(t *testing.T) {
	eng, st := testEngine(t, nil)
	ctx := context.Background()

	trashDir := filepath.Join(st.Root(), ".trash")
	old := "golang_dead0001_" + time.Now().Add(-40*24*time.Hour).Format(store.TrashTimeLayout)
	recent := "golang_dead0002_" + time.Now().Add(-5*24*time.Hour).Format(store.TrashTimeLayout)
	malformed := "not-a-trash-entry"
	for _, name := range []string{old, recent, malformed} {
		if err := os.MkdirAll(filepath.Join(trashDir, name), 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", name, err)
		}
	}

	dry, err := eng.RunGC(ctx, false)
	if err != nil {
		t.Fatalf("dry run: %v", err)
	}
	if dry.CleanedTrash != 1 {
		t.Errorf("dry run should count 1 sweepable entry, got %d", dry.CleanedTrash)
	}
	if names, _ := st.ListTrash(); len(names) != 3 {
		t.Errorf("dry run deleted trash entries: %v", names)
	}

	wet, err := eng.RunGC(ctx, true)
	if err != nil {
		t.Fatalf("execute run: %v", err)
	}
	if wet.CleanedTrash != 1 {
		t.Errorf("expected 1 cleaned entry, got %d", wet.CleanedTrash)
	}

	names, _ := st.ListTrash()
	if len(names) != 2 {
		t.Fatalf("expected 2 surviving entries, got %v", names)
	}
	for _, name := range names {
		if name == old {
			t.Error("expired entry survived the sweep")
		}
	}
}

func TestFailedTrashMoveRecoversNextCycle(t *testing.T) {
	eng, st := testEngine(t, nil)
	ctx := context.Background()

	seedNode(t, st, "golang", "stale001", store.TierSilver, 60, 0.95)

	// Replace the trash directory with a plain file so the rename fails.
	trashDir := filepath.Join(st.Root(), ".trash")
	if err := os.RemoveAll(trashDir); err != nil {
		t.Fatalf("remove trash dir: %v", err)
	}
	if err := os.WriteFile(trashDir, []byte("in the way"), 0o644); err != nil {
		t.Fatalf("block trash dir: %v", err)
	}

	report, err := eng.RunGC(ctx, true)
	if err != nil {
		t.Fatalf("run with blocked trash: %v", err)
	}
	if report.Trashed != 0 || report.Errors == 0 {
		t.Errorf("report: %+v", report)
	}

	// The failed move must not strand the live record: its persisted
	// tier is unchanged, so the next cycle picks it up again.
	n, err := st.Load("golang", "stale001")
	if err != nil || n == nil {
		t.Fatalf("load after failed move: n=%v err=%v", n, err)
	}
	if n.Tier == store.TierSoil {
		t.Errorf("live node persisted as SOIL after failed move")
	}

	if err := os.Remove(trashDir); err != nil {
		t.Fatalf("unblock trash dir: %v", err)
	}
	if err := os.MkdirAll(trashDir, 0o755); err != nil {
		t.Fatalf("restore trash dir: %v", err)
	}

	report, err = eng.RunGC(ctx, true)
	if err != nil {
		t.Fatalf("rerun: %v", err)
	}
	if report.Trashed != 1 || report.Errors != 0 {
		t.Errorf("rerun report: %+v", report)
	}
	if n, _ := st.Load("golang", "stale001"); n != nil {
		t.Error("node still live after healthy rerun")
	}
	trash, _ := st.ListTrash()
	if len(trash) != 1 {
		t.Errorf("trash contents: %v", trash)
	}
}

func TestStrandedSoilNodeRetried(t *testing.T) {
	eng, st := testEngine(t, nil)

	// A live SOIL node is leftover state from an interrupted cycle; it
	// gets moved to trash without a second soil trace.
	seedNode(t, st, "golang", "stuck001", store.TierSoil, 10, 0.95)

	report, err := eng.RunGC(context.Background(), true)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.Trashed != 1 {
		t.Errorf("report: %+v", report)
	}
	if n, _ := st.Load("golang", "stuck001"); n != nil {
		t.Error("stranded SOIL node still live")
	}
	if soil, _ := st.ReadSoil(); soil != "" {
		t.Errorf("retried move wrote a duplicate soil trace: %q", soil)
	}
}

type failingNotifier struct {
	calls int
}

func (f *failingNotifier) NotifyRemoved(ctx context.Context, nodeID string) error {
	f.calls++
	return errors.New("index unavailable")
}

func TestNotifyFailureIsNotFatal(t *testing.T) {
	eng, st := testEngine(t, nil)
	notifier := &failingNotifier{}
	eng.SetNotifier(notifier)

	seedNode(t, st, "golang", "stale001", store.TierSilver, 60, 0.95)

	report, err := eng.RunGC(context.Background(), true)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if notifier.calls != 1 {
		t.Errorf("expected 1 notification attempt, got %d", notifier.calls)
	}
	if report.NotifyFailures != 1 {
		t.Errorf("expected 1 notify failure, got %d", report.NotifyFailures)
	}
	// The eviction itself still went through.
	if report.Trashed != 1 || report.Errors != 0 {
		t.Errorf("report: %+v", report)
	}
	if n, _ := st.Load("golang", "stale001"); n != nil {
		t.Error("node survived despite successful trash phase")
	}
}

func TestConcurrentCycleRejected(t *testing.T) {
	eng, _ := testEngine(t, nil)

	eng.mu.Lock()
	defer eng.mu.Unlock()

	if _, err := eng.RunGC(context.Background(), false); !errors.Is(err, ErrCycleRunning) {
		t.Errorf("expected ErrCycleRunning, got %v", err)
	}
}

func TestTierForScore(t *testing.T) {
	eng, _ := testEngine(t, nil)

	cases := []struct {
		score float64
		want  store.Tier
	}{
		{0.0, store.TierDust},
		{0.99, store.TierDust},
		{1.0, store.TierBronze},
		{4.99, store.TierBronze},
		{5.0, store.TierSilver},
		{12.0, store.TierSilver},
	}
	for _, c := range cases {
		if got := eng.tierForScore(c.score); got != c.want {
			t.Errorf("tierForScore(%.2f) = %s, want %s", c.score, got, c.want)
		}
	}
}

func TestExcerpt(t *testing.T) {
	content := "line one\n\nline two\nline three\nline four\nline five\nline six"
	got := excerpt(content)
	if strings.Contains(got, "line six") {
		t.Error("excerpt should stop at five non-empty lines")
	}
	if !strings.Contains(got, "line five") {
		t.Error("excerpt dropped a line it should keep")
	}

	long := strings.Repeat("x", 1000)
	got = excerpt(long)
	if len([]rune(got)) > 401 {
		t.Errorf("excerpt not bounded: %d runes", len([]rune(got)))
	}
	if !strings.HasSuffix(got, "…") {
		t.Error("truncated excerpt should end with ellipsis")
	}
}
