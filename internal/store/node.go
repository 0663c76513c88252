package store

import (
	"fmt"
	"time"
)

// Tier is a node's lifecycle stage. It is explicit, persisted state — never
// inferred from score at load time.
type Tier string

const (
	TierGolden Tier = "GOLDEN"
	TierSilver Tier = "SILVER" // default entry tier
	TierBronze Tier = "BRONZE"
	TierDust   Tier = "DUST"
	TierSoil   Tier = "SOIL" // terminal: durable form lives in trash
)

// Valid reports whether t is one of the five known tiers.
func (t Tier) Valid() bool {
	switch t {
	case TierGolden, TierSilver, TierBronze, TierDust, TierSoil:
		return true
	}
	return false
}

// ParseTier converts a persisted string to a Tier.
func ParseTier(s string) (Tier, error) {
	t := Tier(s)
	if !t.Valid() {
		return "", fmt.Errorf("unknown tier %q", s)
	}
	return t, nil
}

// Provenance classifies who authored a node; it selects the stability factor.
type Provenance string

const (
	ProvenanceUser  Provenance = "user"
	ProvenanceRole  Provenance = "role"
	ProvenanceWorld Provenance = "world"
)

// Node is the unit of memory.
type Node struct {
	ID    string `json:"id"`
	Topic string `json:"topic"`
	Title string `json:"title"`

	Abstract string `json:"abstract"` // L0: one-line summary
	Overview string `json:"overview"` // L1: short overview

	// ContentRef points at the full L2 body on disk; owned by the Store.
	ContentRef string `json:"content_ref"`

	CreatedAt      time.Time `json:"created_at"`
	LastAccessedAt time.Time `json:"last_accessed_at"`

	AccessCount    int `json:"access_count"`    // write-style interactions
	RetrievalCount int `json:"retrieval_count"` // read-style interactions

	// StabilityFactor in (0,1]; closer to 1.0 decays slower. Set at
	// creation from provenance, immutable afterwards.
	StabilityFactor float64 `json:"stability_factor"`

	Tier Tier `json:"tier"`

	// Dirty marks unsaved in-memory changes. Never serialized.
	Dirty bool `json:"-"`
}

// UpdateAccess records an edit-style interaction and resets the decay clock.
func (n *Node) UpdateAccess(now time.Time) {
	n.AccessCount++
	n.LastAccessedAt = now
	n.Dirty = true
}

// UpdateRetrieval records a read-style interaction and resets the decay clock.
func (n *Node) UpdateRetrieval(now time.Time) {
	n.RetrievalCount++
	n.LastAccessedAt = now
	n.Dirty = true
}
