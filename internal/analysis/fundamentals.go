package analysis

import (
	"context"
	"fmt"
	"log/slog"
)

// maxContextChars bounds how much retrieved text goes into the prompt.
const maxContextChars = 15000

// FundamentalsStage extracts core financial metrics from retrieved report
// context. When the retrieval index yields too little context it switches to
// a knowledge-fallback prompt that asks the model for conservative estimates
// from general knowledge. The stage must never silently return all zeros:
// it either grounds an answer in context, estimates explicitly, or reports
// the failure inside the result.
type FundamentalsStage struct {
	retriever       ContextRetriever
	gen             Generator
	topK            int
	minContextChars int
}

// NewFundamentalsStage creates the stage. minContextChars is the context
// length below which the knowledge fallback kicks in.
func NewFundamentalsStage(retriever ContextRetriever, gen Generator, topK, minContextChars int) *FundamentalsStage {
	if topK <= 0 {
		topK = 5
	}
	if minContextChars <= 0 {
		minContextChars = 100
	}
	return &FundamentalsStage{retriever: retriever, gen: gen, topK: topK, minContextChars: minContextChars}
}

func errorMetrics(err error) FundamentalMetrics {
	return FundamentalMetrics{
		Strengths: []string{fmt.Sprintf("Error: %v", err)},
		Concerns:  []string{},
	}
}

// Analyze retrieves report context and asks the model for metrics. Retrieval
// errors propagate to the caller (an unavailable index fails the job);
// generation and parse errors degrade to an all-zero result carrying the
// error in strengths.
func (s *FundamentalsStage) Analyze(ctx context.Context, company string) (FundamentalMetrics, error) {
	question := fmt.Sprintf(
		"What are the revenue growth, profit margin, ROE, debt to equity, and key strengths/concerns for %s?",
		company,
	)
	context_, err := s.retriever.Query(ctx, question, company, s.topK)
	if err != nil {
		return FundamentalMetrics{}, fmt.Errorf("retrieving fundamentals context: %w", err)
	}

	var prompt string
	if len(context_) < s.minContextChars {
		slog.Warn("retrieved context too thin, using knowledge fallback",
			"company", company, "context_chars", len(context_))
		prompt = knowledgeFallbackPrompt(company)
	} else {
		if len(context_) > maxContextChars {
			context_ = context_[:maxContextChars]
		}
		prompt = groundedPrompt(company, context_)
	}

	text, err := s.gen.Generate(ctx, prompt)
	if err != nil {
		slog.Error("fundamentals generation failed", "company", company, "error", err)
		return errorMetrics(err), nil
	}

	var result FundamentalMetrics
	if err := decodeInto(text, &result); err != nil {
		slog.Error("fundamentals parse failed", "company", company, "error", err)
		return errorMetrics(err), nil
	}
	if err := result.validate(); err != nil {
		slog.Error("fundamentals invalid", "company", company, "error", err)
		return errorMetrics(err), nil
	}
	return result, nil
}

func groundedPrompt(company, context string) string {
	return fmt.Sprintf(`Analyze the fundamentals of %s based on this context:
%s

Extract logical conservative estimates.
CRITICAL: If a specific percentage is not found, ESTIMATE it based on the text or trends described. Do NOT return 0 unless the report explicitly says 0.
If absolutely no data is available, return null or -1, but try to find *something*.

Return JSON object (no markdown):
{
    "revenue_growth": <float, percentage e.g. 15.5>,
    "profit_margin": <float, percentage>,
    "roe": <float, percentage>,
    "debt_to_equity": <float>,
    "health_score": <int, 0-10>,
    "strengths": [<list of strings>],
    "concerns": [<list of strings>]
}`, company, context)
}

func knowledgeFallbackPrompt(company string) string {
	return fmt.Sprintf(`You are an expert financial analyst.
I do not have the specific documents for %s.

Using your INTERNAL KNOWLEDGE (up to your last training cut-off), estimate the current financial health of %s.

CRITICAL: You MUST provide estimated numbers. Do NOT return 0 or null. Make educated conservative estimates based on public financial trends for this company.

Extract/Estimate:
1. Revenue Growth (YoY %%)
2. Profit Margin (%%)
3. ROE (%%)
4. Debt-to-Equity Ratio

Return JSON object (no markdown):
{
    "revenue_growth": <float>,
    "profit_margin": <float>,
    "roe": <float>,
    "debt_to_equity": <float>,
    "health_score": <int, 0-10>,
    "strengths": ["<strength1>", "<strength2>"],
    "concerns": ["<concern1 - note this is estimated info>", "<concern2>"]
}`, company, company)
}
