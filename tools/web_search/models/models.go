package models

import "errors"

// ErrEmptyQuery is returned by every provider before any network call is
// attempted for a blank query.
var ErrEmptyQuery = errors.New("query cannot be empty")

// Result is one normalized search hit. Snippet is what agents consume;
// Title and URL are carried for citation.
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}
