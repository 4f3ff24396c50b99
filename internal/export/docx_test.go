package export

import (
	"archive/zip"
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/grantforge/grantforge/internal/agent/core"
)

func documentXML(t *testing.T, data []byte) string {
	t.Helper()
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("output is not a zip archive: %v", err)
	}
	for _, f := range r.File {
		if f.Name != "word/document.xml" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("opening document.xml: %v", err)
		}
		defer rc.Close()
		content, err := io.ReadAll(rc)
		if err != nil {
			t.Fatalf("reading document.xml: %v", err)
		}
		return string(content)
	}
	t.Fatalf("word/document.xml missing from archive")
	return ""
}

func TestGrantDocx(t *testing.T) {
	doc := core.GrantDocument{
		"title": "Acme Aid Application",
		"organization_info": map[string]interface{}{
			"name":    "Acme Aid",
			"mission": "help people",
			"website": "https://acmeaid.org",
		},
		"executive_summary":    "We help people every day.",
		"problem_statement":    "Too many people need help.",
		"goals_and_objectives": []interface{}{"Help 100 people", "Open 2 centers"},
		"budget": []interface{}{
			map[string]interface{}{"item": "Laptops", "description": "For staff", "amount": float64(500)},
			map[string]interface{}{"item": "Training", "description": "Volunteers", "amount": float64(250)},
		},
		"conclusion": "Thank you for your consideration.",
	}

	data, err := GrantDocx(doc)
	if err != nil {
		t.Fatalf("GrantDocx: %v", err)
	}

	xml := documentXML(t, data)
	for _, want := range []string{
		"Acme Aid Application",
		"Organization Information",
		"Name: Acme Aid",
		"We help people every day.",
		"Help 100 people",
		"Laptops",
		"$500.00",
		"$750.00", // total row
		"Thank you for your consideration.",
	} {
		if !strings.Contains(xml, want) {
			t.Fatalf("document.xml missing %q", want)
		}
	}
	if strings.Contains(xml, "GRANTFORGE_BODY") {
		t.Fatalf("placeholder survived rendering")
	}
}

func TestGrantDocxAlternateKeysAndEscaping(t *testing.T) {
	doc := core.GrantDocument{
		"organization_info": map[string]interface{}{"name": "A & B <Org>"},
		"goals_objectives":  "<ul><li>Goal one</li>\n<li>Goal two</li></ul>",
		"evaluation":        "Measured quarterly.",
		"sustainability":    "Donor funded.",
	}

	data, err := GrantDocx(doc)
	if err != nil {
		t.Fatalf("GrantDocx: %v", err)
	}

	xml := documentXML(t, data)
	if !strings.Contains(xml, "A &amp; B &lt;Org&gt;") {
		t.Fatalf("special characters not escaped")
	}
	for _, want := range []string{"Goal one", "Goal two", "Measured quarterly.", "Donor funded."} {
		if !strings.Contains(xml, want) {
			t.Fatalf("document.xml missing %q", want)
		}
	}
	// default title when the document has none
	if !strings.Contains(xml, "Grant Application") {
		t.Fatalf("default title missing")
	}
}

func TestGrantDocxFallbackDocument(t *testing.T) {
	doc := core.ExtractGrantDocument("nothing structured here", core.GenerationRequest{
		NonprofitName: "Acme Aid",
	})

	data, err := GrantDocx(doc)
	if err != nil {
		t.Fatalf("GrantDocx: %v", err)
	}
	xml := documentXML(t, data)
	if !strings.Contains(xml, "Grant Application for Acme Aid") {
		t.Fatalf("fallback title missing")
	}
	if !strings.Contains(xml, "Error generating content") {
		t.Fatalf("error note missing")
	}
}
