package engine

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nerv00kaworu/Sacred-Essence-Viking/internal/store"
)

// EncodeRequest describes a new memory to ingest.
type EncodeRequest struct {
	Topic      string
	Title      string
	Content    string
	Abstract   string
	Overview   string
	Provenance store.Provenance
}

// Encode ingests a new memory node. If the search index finds an existing
// node in the same topic above the merge threshold, no new node is created:
// the existing node's access count is bumped instead (the duplicate counts
// as an effective interaction with what we already know). The returned bool
// reports whether such a merge happened.
func (e *Engine) Encode(ctx context.Context, req EncodeRequest) (*store.Node, bool, error) {
	if req.Topic == "" || req.Title == "" {
		return nil, false, fmt.Errorf("encode: topic and title are required")
	}

	text := req.Abstract
	if text == "" {
		text = req.Content
	}

	if e.index != nil && strings.TrimSpace(text) != "" {
		matchID, sim, err := e.index.BestMatch(ctx, req.Topic, text)
		if err != nil {
			log.Printf("encode: duplicate check: %v", err)
		} else if matchID != "" && sim >= e.idx.MergeThreshold {
			existing, err := e.store.Load(req.Topic, matchID)
			if err != nil {
				return nil, false, fmt.Errorf("load merge target %s/%s: %w", req.Topic, matchID, err)
			}
			if existing != nil {
				existing.UpdateAccess(time.Now())
				if err := e.store.Save(existing); err != nil {
					return nil, false, err
				}
				log.Printf("encode: merged into %s/%s (similarity %.3f)", existing.Topic, existing.ID, sim)
				return existing, true, nil
			}
		} else if matchID != "" && sim >= e.idx.SimilarityThreshold {
			log.Printf("encode: potential duplicate of %s/%s (similarity %.3f)", req.Topic, matchID, sim)
		}
	}

	now := time.Now()
	n := &store.Node{
		ID:              uuid.NewString()[:8],
		Topic:           req.Topic,
		Title:           req.Title,
		Abstract:        req.Abstract,
		Overview:        req.Overview,
		CreatedAt:       now,
		LastAccessedAt:  now,
		StabilityFactor: e.stabilityFor(req.Provenance),
		Tier:            store.TierSilver,
	}

	if err := e.store.WriteContent(n, req.Content); err != nil {
		return nil, false, err
	}
	if err := e.store.Save(n); err != nil {
		return nil, false, err
	}

	// Index sync is best-effort: a missing index entry costs recall,
	// not correctness.
	if e.index != nil {
		if err := e.index.SyncNode(ctx, n, req.Content); err != nil {
			log.Printf("encode: index sync %s/%s: %v", n.Topic, n.ID, err)
		}
	}

	return n, false, nil
}

func (e *Engine) stabilityFor(p store.Provenance) float64 {
	switch p {
	case store.ProvenanceUser:
		return e.stability.user
	case store.ProvenanceRole:
		return e.stability.role
	default:
		return e.stability.world
	}
}
