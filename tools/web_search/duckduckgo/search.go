package duckduckgo

import (
	"context"
	"fmt"
	"strings"

	"github.com/grantforge/grantforge/tools/httpclient"
	"github.com/grantforge/grantforge/tools/web_search/models"
	"github.com/grantforge/grantforge/utils"
)

const defaultBaseURL = "https://api.duckduckgo.com/"

// Search queries the DuckDuckGo Instant Answer API. It needs no API key,
// which makes it the always-available fallback provider.
type Search struct {
	BaseURL string
	HTTP    *httpclient.HTTPClient
}

func (s Search) Search(ctx context.Context, q string, k int, offset int) ([]models.Result, error) {
	if strings.TrimSpace(q) == "" {
		return nil, models.ErrEmptyQuery
	}
	base := s.BaseURL
	if base == "" {
		base = defaultBaseURL
	}
	url := fmt.Sprintf("%s?q=%s&format=json&no_redirect=1&no_html=1&skip_disambig=1", base, utils.UrlQuery(q))

	httpc := s.HTTP
	if httpc == nil {
		httpc = httpclient.New(0, 2, 0)
	}
	var raw struct {
		AbstractText  string `json:"AbstractText"`
		AbstractURL   string `json:"AbstractURL"`
		Heading       string `json:"Heading"`
		RelatedTopics []struct {
			Text     string `json:"Text"`
			FirstURL string `json:"FirstURL"`
			Topics   []struct {
				Text     string `json:"Text"`
				FirstURL string `json:"FirstURL"`
			} `json:"Topics"`
		} `json:"RelatedTopics"`
	}
	if err := httpc.DoJSON(ctx, "GET", url, map[string]string{"Accept": "application/json"}, nil, &raw); err != nil {
		return nil, err
	}

	var out []models.Result
	if raw.AbstractText != "" {
		out = append(out, models.Result{Title: raw.Heading, URL: raw.AbstractURL, Snippet: raw.AbstractText})
	}
	for _, item := range raw.RelatedTopics {
		if item.Text != "" {
			out = append(out, models.Result{Title: raw.Heading, URL: item.FirstURL, Snippet: item.Text})
		}
		for _, sub := range item.Topics {
			if sub.Text != "" {
				out = append(out, models.Result{Title: raw.Heading, URL: sub.FirstURL, Snippet: sub.Text})
			}
		}
		if len(out) >= k+offset {
			break
		}
	}
	if offset > 0 {
		if offset >= len(out) {
			return nil, nil
		}
		out = out[offset:]
	}
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}
