package engine

import (
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/nerv00kaworu/Sacred-Essence-Viking/internal/score"
	"github.com/nerv00kaworu/Sacred-Essence-Viking/internal/store"
)

const (
	maxProjectedSiblings = 5
	maxProjectedGolden   = 10
)

// Projection is the context mask assembled around a target node: the target
// itself in full, its strongest topic siblings, and the global golden
// anchors.
type Projection struct {
	Core     []string `json:"core"`
	Siblings []string `json:"siblings"`
	Golden   []string `json:"golden"`
}

// ProjectContext builds the context mask for one node. Projecting counts as
// a read-style interaction with the target: it resets the decay clock.
func (e *Engine) ProjectContext(topic, id string) (*Projection, error) {
	target, err := e.store.Load(topic, id)
	if err != nil {
		return nil, err
	}
	if target == nil {
		return nil, fmt.Errorf("node %s/%s not found", topic, id)
	}

	now := time.Now()
	target.UpdateRetrieval(now)
	if err := e.store.Save(target); err != nil {
		log.Printf("project: touch %s/%s: %v", topic, id, err)
	}

	proj := &Projection{
		Core: []string{fmt.Sprintf("Title: %s\nTopic: %s\nAbstract: %s\nOverview: %s",
			target.Title, target.Topic, target.Abstract, target.Overview)},
	}

	sibs, err := e.store.Siblings(target)
	if err != nil {
		return nil, err
	}
	for _, sib := range topByScore(e.params, sibs, now, maxProjectedSiblings) {
		proj.Siblings = append(proj.Siblings, fmt.Sprintf("Sibling: %s (Score: %.2f)\nAbstract: %s",
			sib.node.Title, sib.score, sib.node.Abstract))
	}

	all, err := e.store.ListAll()
	if err != nil {
		return nil, err
	}
	var golden []*store.Node
	for _, n := range all {
		if n.Tier == store.TierGolden && n.ID != target.ID {
			golden = append(golden, n)
		}
	}
	for _, g := range topByScore(e.params, golden, now, maxProjectedGolden) {
		proj.Golden = append(proj.Golden, fmt.Sprintf("Global: %s\nAbstract: %s",
			g.node.Title, g.node.Abstract))
	}

	return proj, nil
}

type scoredNode struct {
	node  *store.Node
	score float64
}

func topByScore(p score.Params, nodes []*store.Node, now time.Time, limit int) []scoredNode {
	scored := make([]scoredNode, 0, len(nodes))
	for _, n := range nodes {
		scored = append(scored, scoredNode{node: n, score: score.Importance(p, n, now)})
	}
	sort.Slice(scored, func(i, j int) bool { return scored[i].score > scored[j].score })
	if len(scored) > limit {
		scored = scored[:limit]
	}
	return scored
}

// Render formats the projection for injection into a prompt or terminal.
func (p *Projection) Render() string {
	var b strings.Builder
	b.WriteString("=== CONTEXT MASK ===\n")
	b.WriteString("--- TARGET CORE ---\n")
	b.WriteString(strings.Join(p.Core, "\n"))
	b.WriteString("\n\n--- RELATED SIBLINGS ---\n")
	b.WriteString(strings.Join(p.Siblings, "\n"))
	b.WriteString("\n\n--- GLOBAL ANCHORS ---\n")
	b.WriteString(strings.Join(p.Golden, "\n"))
	return b.String()
}
