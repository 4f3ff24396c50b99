package serper

import (
	"context"
	"strings"

	"github.com/grantforge/grantforge/tools/httpclient"
	"github.com/grantforge/grantforge/tools/web_search/models"
	"github.com/grantforge/grantforge/utils"
)

type Search struct {
	ApiKey string
	HTTP   *httpclient.HTTPClient
}

func (s Search) Search(ctx context.Context, q string, k int, offset int) ([]models.Result, error) {
	if strings.TrimSpace(q) == "" {
		return nil, models.ErrEmptyQuery
	}
	// https://serper.dev/ docs
	payload := map[string]any{"q": q, "num": k}
	if offset > 0 {
		payload["page"] = offset/k + 1
	}

	httpc := s.HTTP
	if httpc == nil {
		httpc = httpclient.New(0, 2, 0)
	}
	var raw map[string]any
	headers := map[string]string{"X-API-KEY": s.ApiKey}
	if err := httpc.DoJSON(ctx, "POST", "https://google.serper.dev/search", headers, payload, &raw); err != nil {
		return nil, err
	}

	var out []models.Result
	if items, ok := raw["organic"].([]any); ok {
		for i, it := range items {
			if i >= k {
				break
			}
			m, ok := it.(map[string]any)
			if !ok {
				continue
			}
			out = append(out, models.Result{
				Title: utils.Str(m["title"]), URL: utils.Str(m["link"]), Snippet: utils.Str(m["snippet"]),
			})
		}
	}
	return out, nil
}
