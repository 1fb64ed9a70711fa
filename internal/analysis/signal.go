package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
)

// SignalStage synthesizes the three upstream results into the final
// investment signal. It performs no retrieval. This is the terminal,
// user-visible output, so any failure degrades to a hold signal with low
// confidence instead of failing the job.
type SignalStage struct {
	gen Generator
}

// NewSignalStage creates the stage.
func NewSignalStage(gen Generator) *SignalStage {
	return &SignalStage{gen: gen}
}

func holdSignal(reason string) ContrarianSignal {
	return ContrarianSignal{
		SignalType:         "hold",
		SignalStrength:     5,
		Confidence:         "low",
		Summary:            reason,
		OpportunityReasons: []string{},
		RiskFactors:        []string{},
		ManagementOutlook:  "unknown",
		FutureDevelopment:  "unknown",
		Timeframe:          "n/a",
		EntryStrategy:      "Wait for a reliable signal before acting.",
	}
}

// Generate asks the model for a contrarian signal given the three upstream
// results.
func (s *SignalStage) Generate(ctx context.Context, company string, news NewsSentiment, fundamentals FundamentalMetrics, peers PeerComparison) ContrarianSignal {
	newsJSON, _ := json.Marshal(news)
	fundJSON, _ := json.Marshal(fundamentals)
	peersJSON, _ := json.Marshal(peers)

	prompt := fmt.Sprintf(`You are a contrarian investment analyst. Strong fundamentals paired with negative news sentiment can signal an overlooked opportunity; euphoric news over weak fundamentals can signal risk.

Company: %s

News Sentiment: %s
Fundamentals: %s
Peer Comparison: %s

Weigh the inputs and produce an investment signal.

Return JSON object (no markdown):
{
    "signal_type": "<strong_buy|buy|hold|avoid>",
    "signal_strength": <int, 0-10>,
    "confidence": "<high|medium|low>",
    "summary": "<2-3 sentence rationale>",
    "opportunity_reasons": [<list of strings>],
    "risk_factors": [<list of strings>],
    "management_outlook": "<1-2 sentences>",
    "future_development": "<1-2 sentences>",
    "timeframe": "<suggested holding period>",
    "entry_strategy": "<1-2 sentences>"
}`, company, newsJSON, fundJSON, peersJSON)

	text, err := s.gen.Generate(ctx, prompt)
	if err != nil {
		slog.Error("signal generation failed", "company", company, "error", err)
		return holdSignal(fmt.Sprintf("Signal generation failed: %v. Defaulting to hold.", err))
	}

	var result ContrarianSignal
	if err := decodeInto(text, &result); err != nil {
		slog.Error("signal parse failed", "company", company, "error", err)
		return holdSignal(fmt.Sprintf("Signal generation failed: %v. Defaulting to hold.", err))
	}
	result.SignalType = normalizeEnum(result.SignalType)
	result.Confidence = normalizeEnum(result.Confidence)
	if err := result.validate(); err != nil {
		slog.Error("signal invalid", "company", company, "error", err)
		return holdSignal(fmt.Sprintf("Signal generation failed: %v. Defaulting to hold.", err))
	}
	return result
}
