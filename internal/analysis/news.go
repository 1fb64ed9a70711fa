package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// NewsStage scores recent news coverage for a company. It never fails the
// pipeline: no articles yields a neutral result, and a generation or parse
// failure yields a neutral result carrying the error as a theme.
type NewsStage struct {
	fetcher     NewsFetcher
	gen         Generator
	maxArticles int
}

// NewNewsStage creates the stage. maxArticles caps how many articles feed
// the sentiment prompt.
func NewNewsStage(fetcher NewsFetcher, gen Generator, maxArticles int) *NewsStage {
	if maxArticles <= 0 {
		maxArticles = 15
	}
	return &NewsStage{fetcher: fetcher, gen: gen, maxArticles: maxArticles}
}

// neutralSentiment is the no-news result.
func neutralSentiment(theme string) NewsSentiment {
	return NewsSentiment{
		Score:      0,
		KeyThemes:  []string{theme},
		Headlines:  []string{},
		PanicLevel: "low",
	}
}

// Analyze fetches news and asks the model for a sentiment breakdown.
func (s *NewsStage) Analyze(ctx context.Context, company string) NewsSentiment {
	articles, err := s.fetcher.Fetch(ctx, company, s.maxArticles)
	if err != nil {
		slog.Warn("news fetch failed, using neutral sentiment", "company", company, "error", err)
		return neutralSentiment("No recent news found")
	}
	if len(articles) == 0 {
		slog.Info("no news articles found", "company", company)
		return neutralSentiment("No recent news found")
	}

	var digest strings.Builder
	for _, a := range articles {
		fmt.Fprintf(&digest, "- %s (%s): %s\n", a.Title, a.Source, a.Description)
	}

	prompt := fmt.Sprintf(`Analyze the news sentiment for %s.

Articles:
%s
Return a JSON object with this EXACT structure (no markdown):
{
    "score": <int, -10 to 10>,
    "positive_count": <int>,
    "negative_count": <int>,
    "neutral_count": <int>,
    "key_themes": [<list of strings>],
    "headlines": [<list of top 5 headlines as strings>],
    "panic_level": "<low|medium|high>"
}`, company, digest.String())

	text, err := s.gen.Generate(ctx, prompt)
	if err != nil {
		slog.Error("news sentiment generation failed", "company", company, "error", err)
		return neutralSentiment(fmt.Sprintf("Error: %v", err))
	}

	var result NewsSentiment
	if err := decodeInto(text, &result); err != nil {
		slog.Error("news sentiment parse failed", "company", company, "error", err)
		return neutralSentiment(fmt.Sprintf("Error: %v", err))
	}
	result.PanicLevel = normalizeEnum(result.PanicLevel)
	if err := result.validate(); err != nil {
		slog.Error("news sentiment invalid", "company", company, "error", err)
		return neutralSentiment(fmt.Sprintf("Error: %v", err))
	}
	if len(result.Headlines) > 5 {
		result.Headlines = result.Headlines[:5]
	}
	return result
}
