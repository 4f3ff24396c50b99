package duckduckgo

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/grantforge/grantforge/tools/web_search/models"
)

func TestSearchEmptyQueryNoNetwork(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	s := Search{BaseURL: srv.URL + "/"}
	for _, q := range []string{"", "   ", "\t\n"} {
		_, err := s.Search(context.Background(), q, 5, 0)
		if !errors.Is(err, models.ErrEmptyQuery) {
			t.Fatalf("query %q: err = %v, want ErrEmptyQuery", q, err)
		}
	}
	if n := atomic.LoadInt32(&hits); n != 0 {
		t.Fatalf("empty query made %d network calls", n)
	}
}

func TestSearchParsesInstantAnswer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("q"); got != "grant writing" {
			t.Errorf("q = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"Heading": "Grant writing",
			"AbstractText": "Grant writing is the practice of applying for funding.",
			"AbstractURL": "https://example.org/grant-writing",
			"RelatedTopics": [
				{"Text": "Proposal - a funding request", "FirstURL": "https://example.org/proposal"},
				{"Topics": [{"Text": "Budget - itemized costs", "FirstURL": "https://example.org/budget"}]}
			]
		}`))
	}))
	defer srv.Close()

	s := Search{BaseURL: srv.URL + "/"}
	results, err := s.Search(context.Background(), "grant writing", 5, 0)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	if results[0].Snippet != "Grant writing is the practice of applying for funding." {
		t.Fatalf("abstract snippet = %q", results[0].Snippet)
	}
	if results[2].URL != "https://example.org/budget" {
		t.Fatalf("nested topic url = %q", results[2].URL)
	}
}

func TestSearchCapAndOffset(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"Heading": "H",
			"RelatedTopics": [
				{"Text": "one", "FirstURL": "u1"},
				{"Text": "two", "FirstURL": "u2"},
				{"Text": "three", "FirstURL": "u3"}
			]
		}`))
	}))
	defer srv.Close()

	s := Search{BaseURL: srv.URL + "/"}

	results, err := s.Search(context.Background(), "q", 2, 0)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("k cap: got %d results", len(results))
	}

	results, err = s.Search(context.Background(), "q", 2, 1)
	if err != nil {
		t.Fatalf("Search with offset: %v", err)
	}
	if len(results) != 2 || results[0].Snippet != "two" {
		t.Fatalf("offset slice wrong: %+v", results)
	}

	results, err = s.Search(context.Background(), "q", 2, 10)
	if err != nil || results != nil {
		t.Fatalf("oversized offset: %v %v", results, err)
	}
}
