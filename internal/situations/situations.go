// Package situations feeds rounds with their situation texts. Round
// starts enqueue a job on a Redis list; workers pop jobs, call the
// generator collaborator and write the text back onto the round,
// announcing the outcome on the room bus. Generation is best-effort:
// any failure swaps in one of the built-in fallback texts.
package situations

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/arailymkabykenova/MemeBattle/internal/game"
)

// Request describes one situation to generate.
type Request struct {
	AgeGroup    game.AgeGroup `json:"age_group"`
	Language    string        `json:"language"`
	RoundNumber int           `json:"round_number"`
}

// Generator produces a situation text for a round.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// HTTPGenerator calls the configured generation endpoint.
type HTTPGenerator struct {
	endpoint string
	client   *http.Client
}

// NewHTTPGenerator returns a generator posting to endpoint.
func NewHTTPGenerator(endpoint string, timeout time.Duration) *HTTPGenerator {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &HTTPGenerator{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

// Generate posts the request and returns the generated text.
func (g *HTTPGenerator) Generate(ctx context.Context, req Request) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("situation generator: unexpected status %s", resp.Status)
	}

	var out struct {
		SituationText string `json:"situation_text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("situation generator: decode response: %w", err)
	}
	text := strings.TrimSpace(out.SituationText)
	if text == "" {
		return "", fmt.Errorf("situation generator: empty text")
	}
	return text, nil
}
