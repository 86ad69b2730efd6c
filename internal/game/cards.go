package game

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Catalogue describes the card collection layout: how many cards exist
// per type and where their images live.
type Catalogue interface {
	Count(ct CardType) int
	CardURL(ct CardType, number int) string
}

// cardManifest is the embedded catalogue document. Each folder holds
// images named 1.jpg through N.jpg.
type cardManifest struct {
	BaseURL string         `json:"base_url"`
	Folders map[string]int `json:"folders"`
}

// ManifestCatalogue is a Catalogue backed by the embedded manifest.
type ManifestCatalogue struct {
	baseURL string
	counts  map[CardType]int
}

// NewManifestCatalogue parses a manifest document.
func NewManifestCatalogue(raw []byte) (*ManifestCatalogue, error) {
	var m cardManifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("parse card manifest: %w", err)
	}
	if m.BaseURL == "" {
		return nil, fmt.Errorf("card manifest: base_url is required")
	}
	counts := make(map[CardType]int, len(m.Folders))
	for folder, n := range m.Folders {
		ct := CardType(folder)
		if !ct.Valid() {
			return nil, fmt.Errorf("card manifest: unknown folder %q", folder)
		}
		if n < 0 {
			return nil, fmt.Errorf("card manifest: folder %q has a negative count", folder)
		}
		counts[ct] = n
	}
	return &ManifestCatalogue{
		baseURL: strings.TrimRight(m.BaseURL, "/"),
		counts:  counts,
	}, nil
}

// Count returns how many cards of the given type exist.
func (c *ManifestCatalogue) Count(ct CardType) int { return c.counts[ct] }

// CardURL builds the public image URL for one card.
func (c *ManifestCatalogue) CardURL(ct CardType, number int) string {
	return fmt.Sprintf("%s/%s/%d.jpg", c.baseURL, ct, number)
}
