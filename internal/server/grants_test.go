package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/grantforge/grantforge/internal/agent/core"
	"github.com/grantforge/grantforge/internal/export"
)

// fixedGenerator returns a canned extraction result, standing in for the
// whole planning pipeline.
type fixedGenerator struct {
	raw string
}

func (g *fixedGenerator) GenerateGrant(ctx context.Context, req core.GenerationRequest) core.GrantDocument {
	return core.ExtractGrantDocument(g.raw, req)
}

func newTestServer(t *testing.T, gen GrantGenerator) (*echo.Echo, *JobStore) {
	t.Helper()
	jobs, err := NewJobStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewJobStore: %v", err)
	}
	e := echo.New()
	h := &GrantsHandler{Orch: gen, Jobs: jobs, Timeout: 30 * time.Second}
	h.Register(e.Group("/api"))
	return e, jobs
}

func postJSON(e *echo.Echo, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func pollUntilDone(t *testing.T, e *echo.Echo) map[string]interface{} {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		req := httptest.NewRequest(http.MethodGet, "/api/get-grant-status", nil)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("status poll returned %d: %s", rec.Code, rec.Body.String())
		}
		var body map[string]interface{}
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("decoding poll body: %v", err)
		}
		if body["status"] != StatusProcessing {
			return body
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("job never finished")
	return nil
}

func TestGenerateAndPoll(t *testing.T) {
	gen := &fixedGenerator{raw: `Sure! Here it is:
{"title": "Acme Aid Application", "executive_summary": "We help.",
"budget": [{"item": "Laptops", "description": "For staff", "amount": 500}]}
Thanks!`}
	e, _ := newTestServer(t, gen)

	rec := postJSON(e, "/api/generate-grant", `{
		"nonprofit_name": "Acme Aid",
		"nonprofit_mission": "help people",
		"nonprofit_website": "https://acmeaid.org",
		"grant_url": "https://grants.example.org/123"
	}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("generate returned %d: %s", rec.Code, rec.Body.String())
	}
	var accepted map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &accepted); err != nil {
		t.Fatalf("decoding accept body: %v", err)
	}
	if accepted["status"] != StatusProcessing {
		t.Fatalf("accept status = %q", accepted["status"])
	}

	body := pollUntilDone(t, e)
	if body["status"] != StatusCompleted {
		t.Fatalf("final status = %v (%v)", body["status"], body["message"])
	}
	data := body["data"].(map[string]interface{})
	if data["title"] != "Acme Aid Application" {
		t.Fatalf("title = %v", data["title"])
	}
	budget := data["budget"].([]interface{})
	if budget[0].(map[string]interface{})["amount"] != float64(500) {
		t.Fatalf("budget = %v", budget)
	}
	org := data["organization_info"].(map[string]interface{})
	if org["name"] != "Acme Aid" {
		t.Fatalf("organization_info = %v", org)
	}
}

func TestGenerateGarbageOutputStillCompletes(t *testing.T) {
	e, _ := newTestServer(t, &fixedGenerator{raw: "the model refused to emit JSON"})

	rec := postJSON(e, "/api/generate-grant", `{"nonprofit_name": "Acme Aid"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("generate returned %d", rec.Code)
	}

	body := pollUntilDone(t, e)
	if body["status"] != StatusCompleted {
		t.Fatalf("final status = %v", body["status"])
	}
	data := body["data"].(map[string]interface{})
	if data["title"] != "Grant Application for Acme Aid" {
		t.Fatalf("fallback title = %v", data["title"])
	}
	if errMsg, _ := data["error"].(string); errMsg == "" {
		t.Fatalf("fallback document missing error field: %v", data)
	}
}

func TestStatusBeforeAnySubmission(t *testing.T) {
	e, _ := newTestServer(t, &fixedGenerator{})

	req := httptest.NewRequest(http.MethodGet, "/api/get-grant-status", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status returned %d", rec.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if body["status"] != StatusProcessing {
		t.Fatalf("empty slot status = %v", body["status"])
	}
}

func TestSaveGrantReturnsDocx(t *testing.T) {
	e, _ := newTestServer(t, &fixedGenerator{})

	rec := postJSON(e, "/api/save-grant", `{"content": {
		"title": "Acme Aid Application",
		"organization_info": {"name": "Acme Aid", "mission": "help", "website": "https://acmeaid.org"},
		"executive_summary": "We help.",
		"budget": [{"item": "Laptops", "description": "For staff", "amount": 500}]
	}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("save returned %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get(echo.HeaderContentType); ct != export.ContentType {
		t.Fatalf("content type = %q", ct)
	}
	cd := rec.Header().Get(echo.HeaderContentDisposition)
	if !strings.Contains(cd, "grant_application.docx") {
		t.Fatalf("content disposition = %q", cd)
	}
	// DOCX files are zip archives
	if body := rec.Body.Bytes(); len(body) < 4 || body[0] != 'P' || body[1] != 'K' {
		t.Fatalf("body is not a zip archive")
	}
}

func TestGenerateRejectsBadBody(t *testing.T) {
	e, _ := newTestServer(t, &fixedGenerator{})
	rec := postJSON(e, "/api/generate-grant", `{not json`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad body returned %d", rec.Code)
	}
}
