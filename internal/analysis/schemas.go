// Package analysis holds the four analysis stages and their typed results.
// Stages never fail the pipeline on generation errors: each one carries its
// own fallback so the orchestrator always receives a usable result.
package analysis

import (
	"fmt"
	"time"
)

// NewsSentiment summarizes recent news coverage of a company.
// Score runs from -10 (very negative) to 10 (very positive).
type NewsSentiment struct {
	Score         int      `json:"score"`
	PositiveCount int      `json:"positive_count"`
	NegativeCount int      `json:"negative_count"`
	NeutralCount  int      `json:"neutral_count"`
	KeyThemes     []string `json:"key_themes"`
	Headlines     []string `json:"headlines"`
	PanicLevel    string   `json:"panic_level"`
}

func (s *NewsSentiment) validate() error {
	if s.Score < -10 || s.Score > 10 {
		return fmt.Errorf("score %d out of range [-10, 10]", s.Score)
	}
	switch s.PanicLevel {
	case "low", "medium", "high":
	default:
		return fmt.Errorf("invalid panic_level %q", s.PanicLevel)
	}
	return nil
}

// FundamentalMetrics are the core financial metrics extracted (or estimated)
// from a company report. Percentages are plain numbers, e.g. 15.5 for 15.5%.
type FundamentalMetrics struct {
	RevenueGrowth float64  `json:"revenue_growth"`
	ProfitMargin  float64  `json:"profit_margin"`
	ROE           float64  `json:"roe"`
	DebtToEquity  float64  `json:"debt_to_equity"`
	HealthScore   int      `json:"health_score"`
	Strengths     []string `json:"strengths"`
	Concerns      []string `json:"concerns"`
}

func (m *FundamentalMetrics) validate() error {
	if m.HealthScore < 0 || m.HealthScore > 10 {
		return fmt.Errorf("health_score %d out of range [0, 10]", m.HealthScore)
	}
	return nil
}

// PeerComparison positions the company against its peer group.
type PeerComparison struct {
	CompetitivePosition string                        `json:"competitive_position"`
	RelativeStrength    int                           `json:"relative_strength"`
	PeerMetrics         map[string]FundamentalMetrics `json:"peer_metrics"`
}

func (p *PeerComparison) validate() error {
	switch p.CompetitivePosition {
	case "leader", "average", "laggard":
	default:
		return fmt.Errorf("invalid competitive_position %q", p.CompetitivePosition)
	}
	if p.RelativeStrength < 0 || p.RelativeStrength > 10 {
		return fmt.Errorf("relative_strength %d out of range [0, 10]", p.RelativeStrength)
	}
	return nil
}

// ContrarianSignal is the terminal, user-facing output of a job.
type ContrarianSignal struct {
	SignalType         string   `json:"signal_type"`
	SignalStrength     int      `json:"signal_strength"`
	Confidence         string   `json:"confidence"`
	Summary            string   `json:"summary"`
	OpportunityReasons []string `json:"opportunity_reasons"`
	RiskFactors        []string `json:"risk_factors"`
	ManagementOutlook  string   `json:"management_outlook"`
	FutureDevelopment  string   `json:"future_development"`
	Timeframe          string   `json:"timeframe"`
	EntryStrategy      string   `json:"entry_strategy"`
}

func (s *ContrarianSignal) validate() error {
	switch s.SignalType {
	case "strong_buy", "buy", "hold", "avoid":
	default:
		return fmt.Errorf("invalid signal_type %q", s.SignalType)
	}
	if s.SignalStrength < 0 || s.SignalStrength > 10 {
		return fmt.Errorf("signal_strength %d out of range [0, 10]", s.SignalStrength)
	}
	switch s.Confidence {
	case "high", "medium", "low":
	default:
		return fmt.Errorf("invalid confidence %q", s.Confidence)
	}
	return nil
}

// AnalysisResult is the terminal aggregate for a completed job. It is built
// exactly once, after all four stages have produced a result.
type AnalysisResult struct {
	CompanyName  string             `json:"company_name"`
	AnalysisDate time.Time          `json:"analysis_date"`
	News         NewsSentiment      `json:"news"`
	Fundamentals FundamentalMetrics `json:"fundamentals"`
	Peers        PeerComparison     `json:"peers"`
	Signal       ContrarianSignal   `json:"signal"`
}
