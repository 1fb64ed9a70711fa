package analysis

import (
	"context"

	"github.com/kalambet/contrarian/internal/news"
)

// Generator is the resilient generative call every stage goes through.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// ContextRetriever serves retrieval-augmented context for a company.
type ContextRetriever interface {
	Query(ctx context.Context, question, company string, topK int) (string, error)
}

// NewsFetcher returns recent articles about a company, most relevant first.
type NewsFetcher interface {
	Fetch(ctx context.Context, company string, limit int) ([]news.Article, error)
}
