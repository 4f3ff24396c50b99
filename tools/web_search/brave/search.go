package brave

import (
	"context"
	"fmt"
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
	// https://api.search.brave.com/app/documentation/web-search
	url := fmt.Sprintf("https://api.search.brave.com/res/v1/web/search?q=%s&count=%d", utils.UrlQuery(q), k)
	if offset > 0 {
		url += fmt.Sprintf("&offset=%d", offset)
	}

	httpc := s.HTTP
	if httpc == nil {
		httpc = httpclient.New(0, 2, 0)
	}
	headers := map[string]string{
		"Accept":               "application/json",
		"X-Subscription-Token": s.ApiKey,
	}
	var raw struct {
		Web struct {
			Results []struct {
				Title   string `json:"title"`
				URL     string `json:"url"`
				Snippet string `json:"description"`
			} `json:"results"`
		} `json:"web"`
	}
	if err := httpc.DoJSON(ctx, "GET", url, headers, nil, &raw); err != nil {
		return nil, err
	}

	var out []models.Result
	for i, r := range raw.Web.Results {
		if i >= k {
			break
		}
		out = append(out, models.Result{Title: r.Title, URL: r.URL, Snippet: r.Snippet})
	}
	return out, nil
}
