package index

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/nerv00kaworu/Sacred-Essence-Viking/internal/score"
	"github.com/nerv00kaworu/Sacred-Essence-Viking/internal/store"
)

// Doc is one indexed node row.
type Doc struct {
	NodeID    string `json:"node_id"`
	Topic     string `json:"topic"`
	Title     string `json:"title"`
	Tier      string `json:"tier"`
	Abstract  string `json:"abstract"`
	Content   string `json:"content"`
	UpdatedAt int64  `json:"updated_at"`
}

// Result is one search hit.
type Result struct {
	Doc   Doc     `json:"doc"`
	Score float64 `json:"score"`
}

// Status summarizes index health.
type Status struct {
	Path    string `json:"path"`
	Docs    int    `json:"docs"`
	Vectors int    `json:"vectors"`
	Model   string `json:"model"`
}

// SyncNode upserts a node's document row and refreshes its embedding.
// Embedding failure degrades vector search but keeps the doc row usable.
func (idx *Index) SyncNode(ctx context.Context, n *store.Node, content string) error {
	now := time.Now().UnixMilli()
	_, err := idx.db.Exec(`
		INSERT INTO index_docs (node_id, topic, title, tier, abstract, content, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(node_id) DO UPDATE SET topic = ?, title = ?, tier = ?, abstract = ?, content = ?, updated_at = ?
	`, n.ID, n.Topic, n.Title, string(n.Tier), n.Abstract, content, now,
		n.Topic, n.Title, string(n.Tier), n.Abstract, content, now)
	if err != nil {
		return fmt.Errorf("sync doc %s: %w", n.ID, err)
	}

	if idx.embedder == nil {
		return nil
	}
	text := n.Abstract
	if text == "" {
		text = content
	}
	if strings.TrimSpace(text) == "" {
		return nil
	}
	vec, err := idx.embedder.Embed(ctx, text)
	if err != nil {
		log.Printf("index: embed %s: %v", n.ID, err)
		return nil
	}
	return idx.saveVector(n.ID, vec, idx.embedder.Model())
}

// NotifyRemoved deletes the document and vector for a removed node. This is
// the removal contract the maintenance engine calls during dust processing.
func (idx *Index) NotifyRemoved(ctx context.Context, nodeID string) error {
	_, err := idx.db.ExecContext(ctx, "DELETE FROM index_docs WHERE node_id = ?", nodeID)
	if err != nil {
		return fmt.Errorf("remove doc %s: %w", nodeID, err)
	}
	// The vector row goes with the doc via ON DELETE CASCADE; delete
	// explicitly as well in case foreign keys were disabled.
	if _, err := idx.db.ExecContext(ctx, "DELETE FROM index_vectors WHERE node_id = ?", nodeID); err != nil {
		return fmt.Errorf("remove vector %s: %w", nodeID, err)
	}
	return nil
}

// BestMatch embeds the given text and returns the most similar indexed node
// within a topic, as (nodeID, cosine similarity). Returns ("", 0, nil) when
// the topic has no vectors.
func (idx *Index) BestMatch(ctx context.Context, topic, text string) (string, float64, error) {
	if idx.embedder == nil {
		return "", 0, nil
	}
	queryVec, err := idx.embedder.Embed(ctx, text)
	if err != nil {
		return "", 0, fmt.Errorf("embed query: %w", err)
	}

	vectors, err := idx.vectorsForTopic(topic)
	if err != nil {
		return "", 0, err
	}

	bestID, bestSim := "", 0.0
	for _, v := range vectors {
		sim := score.CosineSimilarity(queryVec, v.Embedding)
		if sim > bestSim {
			bestID, bestSim = v.NodeID, sim
		}
	}
	return bestID, bestSim, nil
}

// VSearch performs vector similarity search across the whole index.
func (idx *Index) VSearch(ctx context.Context, query string, limit int) ([]Result, error) {
	if idx.embedder == nil {
		return nil, fmt.Errorf("no embedder configured")
	}
	if limit <= 0 {
		limit = 5
	}

	queryVec, err := idx.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	vectors, err := idx.vectorsForTopic("")
	if err != nil {
		return nil, err
	}

	var results []Result
	for _, v := range vectors {
		sim := score.CosineSimilarity(queryVec, v.Embedding)
		if sim <= 0 {
			continue
		}
		doc, err := idx.getDoc(v.NodeID)
		if err != nil || doc == nil {
			continue
		}
		results = append(results, Result{Doc: *doc, Score: sim})
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// Query performs keyword search: each whitespace term that appears in the
// title, abstract, or content counts toward the hit's score.
func (idx *Index) Query(ctx context.Context, query string, limit int) ([]Result, error) {
	if limit <= 0 {
		limit = 5
	}
	terms := strings.Fields(strings.ToLower(query))
	if len(terms) == 0 {
		return nil, nil
	}

	rows, err := idx.db.QueryContext(ctx, `
		SELECT node_id, topic, title, tier, abstract, content, updated_at
		FROM index_docs
	`)
	if err != nil {
		return nil, fmt.Errorf("query docs: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var d Doc
		if err := rows.Scan(&d.NodeID, &d.Topic, &d.Title, &d.Tier, &d.Abstract, &d.Content, &d.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan doc: %w", err)
		}
		haystack := strings.ToLower(d.Title + "\n" + d.Abstract + "\n" + d.Content)
		matched := 0
		for _, term := range terms {
			if strings.Contains(haystack, term) {
				matched++
			}
		}
		if matched == 0 {
			continue
		}
		results = append(results, Result{Doc: d, Score: float64(matched) / float64(len(terms))})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// Source is what SyncAll needs from the node store.
type Source interface {
	ListAll() ([]*store.Node, error)
	ReadContent(n *store.Node) (string, error)
}

// SyncAll re-indexes every node in the store. Per-node failures are logged
// and skipped; the count of synced nodes is returned.
func (idx *Index) SyncAll(ctx context.Context, src Source) (int, error) {
	nodes, err := src.ListAll()
	if err != nil {
		return 0, fmt.Errorf("list nodes: %w", err)
	}

	synced := 0
	for _, n := range nodes {
		if err := ctx.Err(); err != nil {
			return synced, err
		}
		content, err := src.ReadContent(n)
		if err != nil {
			log.Printf("index: read content %s/%s: %v", n.Topic, n.ID, err)
		}
		if err := idx.SyncNode(ctx, n, content); err != nil {
			log.Printf("index: sync %s/%s: %v", n.Topic, n.ID, err)
			continue
		}
		synced++
	}
	return synced, nil
}

// GetStatus reports document and vector counts.
func (idx *Index) GetStatus() (Status, error) {
	st := Status{Path: idx.path}
	if idx.embedder != nil {
		st.Model = idx.embedder.Model()
	}
	if err := idx.db.QueryRow("SELECT COUNT(*) FROM index_docs").Scan(&st.Docs); err != nil {
		return st, fmt.Errorf("count docs: %w", err)
	}
	if err := idx.db.QueryRow("SELECT COUNT(*) FROM index_vectors").Scan(&st.Vectors); err != nil {
		return st, fmt.Errorf("count vectors: %w", err)
	}
	return st, nil
}

func (idx *Index) getDoc(nodeID string) (*Doc, error) {
	var d Doc
	err := idx.db.QueryRow(`
		SELECT node_id, topic, title, tier, abstract, content, updated_at
		FROM index_docs WHERE node_id = ?
	`, nodeID).Scan(&d.NodeID, &d.Topic, &d.Title, &d.Tier, &d.Abstract, &d.Content, &d.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get doc: %w", err)
	}
	return &d, nil
}
