// Package engine orchestrates the memory lifecycle: the garbage-collection
// cycle (rescore, demote, evict, reclaim), encode-time duplicate detection,
// and context projection.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/nerv00kaworu/Sacred-Essence-Viking/internal/config"
	"github.com/nerv00kaworu/Sacred-Essence-Viking/internal/score"
	"github.com/nerv00kaworu/Sacred-Essence-Viking/internal/store"
)

// ErrCycleRunning is returned when a GC cycle is already in flight. Two
// concurrent cycles racing the same trash paths is unsafe, so the second
// caller fails fast instead of waiting.
var ErrCycleRunning = errors.New("gc cycle already running")

// Store is the persistence contract the engine consumes.
type Store interface {
	ListAll() ([]*store.Node, error)
	ListTopic(topic string) ([]*store.Node, error)
	Load(topic, id string) (*store.Node, error)
	Save(n *store.Node) error
	WriteContent(n *store.Node, content string) error
	ReadContent(n *store.Node) (string, error)
	Siblings(n *store.Node) ([]*store.Node, error)
	MoveToTrash(n *store.Node) error
	ListTrash() ([]string, error)
	DeleteTrashEntry(name string) error
	AppendSoil(e store.SoilEntry) error
}

// Notifier receives "node permanently removed" events for an external search
// index. Failures are logged and never fatal to the cycle.
type Notifier interface {
	NotifyRemoved(ctx context.Context, nodeID string) error
}

// Index is the optional search-index collaborator used at encode time.
type Index interface {
	Notifier
	SyncNode(ctx context.Context, n *store.Node, content string) error
	BestMatch(ctx context.Context, topic, text string) (nodeID string, similarity float64, err error)
}

// Report summarizes one GC cycle. In a dry run the counts are identical to
// what an execute run would do, but nothing is mutated.
type Report struct {
	Scanned         int  `json:"scanned"`
	Demoted         int  `json:"demoted"`
	MarkedDust      int  `json:"marked_dust"`
	Trashed         int  `json:"trashed"`
	CleanedTrash    int  `json:"cleaned_trash"`
	Errors          int  `json:"errors"`
	NotifyFailures  int  `json:"notify_failures"`
	SafetyTriggered bool `json:"safety_triggered"`
	DryRun          bool `json:"dry_run"`
}

// Engine runs maintenance over a node store.
type Engine struct {
	store    Store
	notifier Notifier
	index    Index

	params    score.Params
	maint     config.MaintenanceConfig
	idx       config.IndexConfig
	stability stabilityFactors

	notifyTimeout time.Duration

	mu sync.Mutex // cycle-scoped single-writer guarantee
}

// New creates an Engine from the given store and configuration.
func New(st Store, cfg config.Config) *Engine {
	return &Engine{
		store: st,
		params: score.Params{
			InitialImportance: cfg.Scoring.InitialImportance,
			GracePeriodDays:   cfg.Scoring.GracePeriodDays,
			DensityBase:       cfg.Scoring.DensityBase,
			WeightAccess:      cfg.Scoring.WeightAccess,
			WeightRetrieval:   cfg.Scoring.WeightRetrieval,
			MaxDensityBonus:   cfg.Scoring.MaxDensityBonus,
		},
		maint: cfg.Maintenance,
		idx:   cfg.Index,
		stability: stabilityFactors{
			user:  cfg.Scoring.StabilityUser,
			role:  cfg.Scoring.StabilityRole,
			world: cfg.Scoring.StabilityWorld,
		},
		notifyTimeout: cfg.NotifyTimeout(),
	}
}

// stabilityFactors holds the per-provenance decay bases.
type stabilityFactors struct {
	user, role, world float64
}

// SetNotifier configures the removal-event receiver.
func (e *Engine) SetNotifier(n Notifier) { e.notifier = n }

// SetIndex configures the search-index collaborator. The index also acts as
// the notifier unless one was set explicitly.
func (e *Engine) SetIndex(idx Index) {
	e.index = idx
	if e.notifier == nil {
		e.notifier = idx
	}
}

// Params returns the scoring constants in use.
func (e *Engine) Params() score.Params { return e.params }

// Score returns a node's current importance.
func (e *Engine) Score(n *store.Node) float64 {
	return score.Importance(e.params, n, time.Now())
}

// tierForScore maps a score to the tier it warrants under the configured
// thresholds. Used both for score-based demotion and for picking the landing
// tier of a soft-cap-evicted golden node.
func (e *Engine) tierForScore(s float64) store.Tier {
	switch {
	case s < e.maint.DustThreshold:
		return store.TierDust
	case s < e.maint.SilverThreshold:
		return store.TierBronze
	default:
		return store.TierSilver
	}
}

// RunGC executes one garbage-collection cycle. With execute=false (the
// default mode everywhere) the same report is computed but nothing is
// mutated: no saves, no trash moves, no deletions, no notifications.
func (e *Engine) RunGC(ctx context.Context, execute bool) (Report, error) {
	if !e.mu.TryLock() {
		return Report{}, ErrCycleRunning
	}
	defer e.mu.Unlock()

	report := Report{DryRun: !execute}
	now := time.Now()

	nodes, err := e.store.ListAll()
	if err != nil {
		return report, fmt.Errorf("list nodes: %w", err)
	}

	// Score snapshot, computed once at cycle start. Transitions never
	// re-score mid-cycle, keeping the cycle order-independent.
	scores := make(map[*store.Node]float64, len(nodes))
	for _, n := range nodes {
		scores[n] = score.Importance(e.params, n, now)
	}

	var golden, dust []*store.Node
	for _, n := range nodes {
		report.Scanned++
		s := scores[n]

		switch n.Tier {
		case store.TierGolden:
			// Exempt from score-based decay; only the soft cap
			// below can demote a golden node.
			golden = append(golden, n)
		case store.TierSilver:
			if s < e.maint.SilverThreshold {
				target := e.tierForScore(s)
				n.Tier = target
				n.Dirty = true
				if target == store.TierDust {
					report.MarkedDust++
				} else {
					report.Demoted++
				}
			}
		case store.TierBronze:
			if s < e.maint.DustThreshold {
				n.Tier = store.TierDust
				n.Dirty = true
				report.MarkedDust++
			}
		case store.TierSoil:
			// A live SOIL node is a trash move that failed mid-way in
			// an earlier cycle; retry it.
			dust = append(dust, n)
		}

		if n.Tier == store.TierDust {
			dust = append(dust, n)
		}
	}

	// Golden soft cap: demote the least recently accessed excess. The
	// landing tier comes from the same thresholds as score-based
	// demotion, so a stale golden node can fall straight to DUST rather
	// than waiting a cycle.
	if len(golden) > e.maint.SoftCapGolden {
		sort.Slice(golden, func(i, j int) bool {
			return golden[i].LastAccessedAt.Before(golden[j].LastAccessedAt)
		})
		excess := len(golden) - e.maint.SoftCapGolden
		for _, n := range golden[:excess] {
			target := e.tierForScore(scores[n])
			n.Tier = target
			n.Dirty = true
			if target == store.TierDust {
				report.MarkedDust++
				dust = append(dust, n)
			} else {
				report.Demoted++
			}
		}
	}

	// Safety net: never let a cycle drive the live corpus below the
	// floor. Abort before any mutation has happened.
	active := len(nodes) - len(dust)
	if active < e.maint.MinKeepNodes {
		log.Printf("gc: safety net triggered: active nodes (%d) below minimum (%d), aborting cycle",
			active, e.maint.MinKeepNodes)
		report.SafetyTriggered = true
		return report, nil
	}

	// Dust processing: soil extraction, SOIL, trash, notify.
	for _, n := range dust {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		if execute {
			if err := e.trashNode(n); err != nil {
				log.Printf("gc: trash %s/%s: %v", n.Topic, n.ID, err)
				report.Errors++
				continue
			}
			if e.notifier != nil {
				nctx, cancel := context.WithTimeout(ctx, e.notifyTimeout)
				err := e.notifier.NotifyRemoved(nctx, n.ID)
				cancel()
				if err != nil {
					log.Printf("gc: index notify for %s: %v", n.ID, err)
					report.NotifyFailures++
				}
			}
		}
		report.Trashed++
	}

	// Persist surviving tier changes. Unchanged nodes are skipped to
	// keep write volume proportional to what the cycle actually did.
	if execute {
		for _, n := range nodes {
			if !n.Dirty || n.Tier == store.TierDust || n.Tier == store.TierSoil {
				continue
			}
			if err := e.store.Save(n); err != nil {
				log.Printf("gc: save %s/%s: %v", n.Topic, n.ID, err)
				report.Errors++
			}
		}
	}

	cleaned, sweepErrs := e.sweepTrash(now, execute)
	report.CleanedTrash += cleaned
	report.Errors += sweepErrs

	return report, nil
}

// trashNode runs the soft-removal phase for one dusted node: append a soil
// trace, mark SOIL, move to trash. A node that is already SOIL is a retried
// move; its soil trace was written the first time around.
func (e *Engine) trashNode(n *store.Node) error {
	if n.Tier != store.TierSoil {
		summary := e.soilSummary(n)
		err := e.store.AppendSoil(store.SoilEntry{
			Date:    time.Now(),
			Title:   n.Title,
			Topic:   n.Topic,
			NodeID:  n.ID,
			Summary: summary,
		})
		if err != nil {
			// The trash copy keeps the full record for the retention
			// window, so a missing soil trace is not worth aborting for.
			log.Printf("gc: soil entry for %s/%s: %v", n.Topic, n.ID, err)
		}
	}

	n.Tier = store.TierSoil
	return e.store.MoveToTrash(n)
}

// soilSummary extracts the durable trace for a node headed to soil: its
// full-content excerpt, else its overview, else its abstract.
func (e *Engine) soilSummary(n *store.Node) string {
	content, err := e.store.ReadContent(n)
	if err != nil {
		log.Printf("gc: read content for soil %s/%s: %v", n.Topic, n.ID, err)
	}
	if content != "" {
		return excerpt(content)
	}
	if n.Overview != "" {
		return n.Overview
	}
	if n.Abstract != "" {
		return n.Abstract
	}
	return "(no summary available)"
}

// excerpt takes the first few non-empty lines of content, bounded in size.
func excerpt(content string) string {
	var lines []string
	for _, line := range strings.Split(content, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
		if len(lines) == 5 {
			break
		}
	}
	out := strings.Join(lines, "\n")
	if runes := []rune(out); len(runes) > 400 {
		out = string(runes[:400]) + "…"
	}
	return out
}

// sweepTrash permanently deletes trash entries past the retention window.
// Malformed entry names are skipped, never fatal.
func (e *Engine) sweepTrash(now time.Time, execute bool) (cleaned, errs int) {
	entries, err := e.store.ListTrash()
	if err != nil {
		log.Printf("gc: list trash: %v", err)
		return 0, 1
	}

	retention := time.Duration(e.maint.RetentionDays) * 24 * time.Hour
	for _, name := range entries {
		ts, err := store.ParseTrashTime(name)
		if err != nil {
			log.Printf("gc: skipping trash entry: %v", err)
			continue
		}
		if now.Sub(ts) <= retention {
			continue
		}
		if execute {
			if err := e.store.DeleteTrashEntry(name); err != nil {
				log.Printf("gc: purge %s: %v", name, err)
				errs++
				continue
			}
		}
		cleaned++
	}
	return cleaned, errs
}
