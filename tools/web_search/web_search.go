package web_search

import (
	"context"

	"github.com/grantforge/grantforge/tools/web_search/brave"
	"github.com/grantforge/grantforge/tools/web_search/duckduckgo"
	"github.com/grantforge/grantforge/tools/web_search/models"
	"github.com/grantforge/grantforge/tools/web_search/serper"
)

// WebSearcher is the capability agents receive: keyword search returning at
// most k normalized snippets starting at offset.
type WebSearcher interface {
	Search(ctx context.Context, q string, k int, offset int) ([]models.Result, error)
}

type Provider string

const (
	DuckDuckGoProvider Provider = "duckduckgo"
	SerperProvider     Provider = "serper"
	BraveProvider      Provider = "brave"
)

var ErrUnsupportedProvider = &Error{"unsupported provider"}

type Error struct{ msg string }

func (e *Error) Error() string { return e.msg }

func NewWebSearcher(provider Provider, apiKey string) (WebSearcher, error) {
	switch provider {
	case DuckDuckGoProvider:
		return duckduckgo.Search{}, nil
	case SerperProvider:
		return serper.Search{ApiKey: apiKey}, nil
	case BraveProvider:
		return brave.Search{ApiKey: apiKey}, nil
	default:
		return nil, ErrUnsupportedProvider
	}
}
