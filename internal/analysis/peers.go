package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
)

// PeerLookup resolves a company name to its peer group.
type PeerLookup interface {
	Peers(company string) []string
}

// StaticPeerLookup matches company names against a fixed table by
// case-insensitive substring, so "Apple Inc." resolves via the "apple" key.
type StaticPeerLookup struct {
	groups map[string][]string
}

// NewStaticPeerLookup builds a lookup over the given groups. Keys are
// lowercased on construction.
func NewStaticPeerLookup(groups map[string][]string) *StaticPeerLookup {
	normalized := make(map[string][]string, len(groups))
	for k, v := range groups {
		normalized[strings.ToLower(k)] = v
	}
	return &StaticPeerLookup{groups: normalized}
}

// DefaultPeerGroups covers a handful of well-known names. Unknown companies
// get an empty peer group and the comparison degrades gracefully.
func DefaultPeerGroups() map[string][]string {
	return map[string][]string{
		"apple":     {"Microsoft", "Alphabet", "Samsung"},
		"microsoft": {"Apple", "Alphabet", "Amazon"},
		"alphabet":  {"Microsoft", "Meta", "Amazon"},
		"amazon":    {"Walmart", "Alibaba", "Microsoft"},
		"tesla":     {"BYD", "Ford", "General Motors"},
		"nvidia":    {"AMD", "Intel", "Qualcomm"},
		"jpmorgan":  {"Bank of America", "Citigroup", "Wells Fargo"},
		"exxon":     {"Chevron", "Shell", "BP"},
	}
}

// Peers returns the peer group whose key appears in company, or nil.
func (l *StaticPeerLookup) Peers(company string) []string {
	lower := strings.ToLower(company)
	for key, peers := range l.groups {
		if strings.Contains(lower, key) {
			return peers
		}
	}
	return nil
}

// PeersStage positions the company against its peer group. Peer financials
// are synthesized as a fixed variance of the target metrics rather than
// fetched; the prompt labels them as simulated so the model weighs them
// accordingly.
type PeersStage struct {
	lookup PeerLookup
	gen    Generator
}

// NewPeersStage creates the stage.
func NewPeersStage(lookup PeerLookup, gen Generator) *PeersStage {
	return &PeersStage{lookup: lookup, gen: gen}
}

// syntheticPeerMetrics derives a plausible peer snapshot from the target.
func syntheticPeerMetrics(target FundamentalMetrics) FundamentalMetrics {
	health := target.HealthScore - 1
	if health < 0 {
		health = 0
	}
	return FundamentalMetrics{
		RevenueGrowth: target.RevenueGrowth * 0.9,
		ProfitMargin:  target.ProfitMargin * 0.95,
		ROE:           target.ROE * 0.9,
		DebtToEquity:  target.DebtToEquity * 1.1,
		HealthScore:   health,
		Strengths:     []string{},
		Concerns:      []string{},
	}
}

func fallbackComparison() PeerComparison {
	return PeerComparison{
		CompetitivePosition: "average",
		RelativeStrength:    5,
		PeerMetrics:         map[string]FundamentalMetrics{},
	}
}

// Analyze compares the target metrics against a synthesized peer group.
func (s *PeersStage) Analyze(ctx context.Context, company string, target FundamentalMetrics) PeerComparison {
	peers := s.lookup.Peers(company)
	peerMetrics := make(map[string]FundamentalMetrics, len(peers))
	for _, p := range peers {
		peerMetrics[p] = syntheticPeerMetrics(target)
	}

	targetJSON, _ := json.Marshal(target)
	peersJSON, _ := json.Marshal(peerMetrics)

	prompt := fmt.Sprintf(`Compare %s with its peers: %s.

Target Metrics: %s
Peer Metrics (simulated): %s

Return JSON:
{
    "competitive_position": "<leader|average|laggard>",
    "relative_strength": <int, 0-10>,
    "summary": "Brief comparison summary"
}`, company, strings.Join(peers, ", "), targetJSON, peersJSON)

	text, err := s.gen.Generate(ctx, prompt)
	if err != nil {
		slog.Error("peer comparison generation failed", "company", company, "error", err)
		return fallbackComparison()
	}

	var parsed struct {
		CompetitivePosition string `json:"competitive_position"`
		RelativeStrength    int    `json:"relative_strength"`
	}
	if err := decodeInto(text, &parsed); err != nil {
		slog.Error("peer comparison parse failed", "company", company, "error", err)
		return fallbackComparison()
	}

	result := PeerComparison{
		CompetitivePosition: normalizeEnum(parsed.CompetitivePosition),
		RelativeStrength:    parsed.RelativeStrength,
		PeerMetrics:         peerMetrics,
	}
	if err := result.validate(); err != nil {
		slog.Error("peer comparison invalid", "company", company, "error", err)
		return fallbackComparison()
	}
	return result
}
