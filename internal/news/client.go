// Package news fetches recent articles for a company from NewsAPI.
// It is an external collaborator of the analysis pipeline: callers get an
// ordered "most relevant first" list and must tolerate an empty one.
package news

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"
)

// Article is one news item as the analysis stages consume it.
type Article struct {
	Title       string `json:"title"`
	Source      string `json:"source"`
	Description string `json:"description"`
	PublishedAt string `json:"publishedAt"`
	URL         string `json:"url"`
}

// Client queries the NewsAPI /v2/everything endpoint.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// New creates a Client. An empty API key makes every fetch fail, which
// callers absorb via their no-news fallback.
func New(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// apiResponse mirrors the NewsAPI everything response.
type apiResponse struct {
	Status   string `json:"status"`
	Code     string `json:"code"`
	Message  string `json:"message"`
	Articles []struct {
		Title  string `json:"title"`
		Source struct {
			Name string `json:"name"`
		} `json:"source"`
		Description string `json:"description"`
		PublishedAt string `json:"publishedAt"`
		URL         string `json:"url"`
	} `json:"articles"`
}

// Fetch returns up to limit articles about company, most relevant first.
// Articles NewsAPI has redacted ("[Removed]") or that carry no description
// are dropped; descriptions are stripped of embedded markup.
func (c *Client) Fetch(ctx context.Context, company string, limit int) ([]Article, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("news api key not configured")
	}
	if limit <= 0 {
		limit = 15
	}

	q := url.Values{}
	q.Set("q", company)
	q.Set("language", "en")
	q.Set("sortBy", "relevancy")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v2/everything?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("X-Api-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching news: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading news response: %w", err)
	}

	var payload apiResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decoding news response: %w", err)
	}
	if resp.StatusCode != http.StatusOK || payload.Status != "ok" {
		return nil, fmt.Errorf("news api error (status %d): %s %s", resp.StatusCode, payload.Code, payload.Message)
	}

	var articles []Article
	for _, a := range payload.Articles {
		if a.Title == "" || a.Title == "[Removed]" || a.Description == "" {
			continue
		}
		articles = append(articles, Article{
			Title:       a.Title,
			Source:      a.Source.Name,
			Description: stripHTML(a.Description),
			PublishedAt: a.PublishedAt,
			URL:         a.URL,
		})
		if len(articles) == limit {
			break
		}
	}
	return articles, nil
}

// stripHTML drops tags and unescapes entities from article descriptions,
// which frequently arrive with embedded markup.
func stripHTML(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return s
	}
	var b strings.Builder
	z := html.NewTokenizer(strings.NewReader(s))
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			break
		}
		if tt == html.TextToken {
			b.Write(z.Text())
		}
	}
	return strings.TrimSpace(b.String())
}
