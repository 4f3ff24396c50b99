// Package export renders a grant document as a DOCX file.
package export

import (
	"bytes"
	_ "embed"
	"encoding/xml"
	"fmt"
	"regexp"
	"strings"

	"github.com/nguyenthenguyen/docx"

	"github.com/grantforge/grantforge/internal/agent/core"
	"github.com/grantforge/grantforge/utils"
)

// ContentType is the MIME type served with generated files.
const ContentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

// template.docx is a minimal skeleton whose body holds a single placeholder
// paragraph; generation splices the rendered body in its place.
//
//go:embed template.docx
var templateDocx []byte

const bodyPlaceholder = `<w:p><w:r><w:t>GRANTFORGE_BODY</w:t></w:r></w:p>`

// section holds one heading plus the content keys it may appear under;
// the model is inconsistent about exact key names.
type section struct {
	heading string
	keys    []string
}

var narrativeSections = []section{
	{"Executive Summary", []string{"executive_summary"}},
	{"Problem Statement", []string{"problem_statement"}},
	{"Project Description", []string{"project_description"}},
	{"Goals and Objectives", []string{"goals_and_objectives", "goals_objectives"}},
	{"Implementation Plan", []string{"implementation_plan"}},
	{"Evaluation and Impact", []string{"evaluation_and_impact", "evaluation"}},
	{"Budget", []string{"budget"}},
	{"Sustainability Plan", []string{"sustainability_plan", "sustainability"}},
	{"Conclusion", []string{"conclusion"}},
}

var htmlTags = regexp.MustCompile(`<[^>]+>`)

// GrantDocx renders the grant document into DOCX bytes
func GrantDocx(doc core.GrantDocument) ([]byte, error) {
	tmpl, err := docx.ReadDocxFromMemory(bytes.NewReader(templateDocx), int64(len(templateDocx)))
	if err != nil {
		return nil, fmt.Errorf("opening template: %w", err)
	}
	defer tmpl.Close()

	editable := tmpl.Editable()
	editable.ReplaceRaw(bodyPlaceholder, renderBody(doc), 1)

	var buf bytes.Buffer
	if err := editable.Write(&buf); err != nil {
		return nil, fmt.Errorf("writing document: %w", err)
	}
	return buf.Bytes(), nil
}

func renderBody(doc core.GrantDocument) string {
	var b strings.Builder

	b.WriteString(heading(utils.Str(firstValue(doc, "title", "Grant Application")), 0))

	b.WriteString(heading("Organization Information", 1))
	orgInfo, _ := doc["organization_info"].(map[string]interface{})
	b.WriteString(paragraph("Name: " + utils.Str(orgInfo["name"])))
	b.WriteString(paragraph("Mission: " + utils.Str(orgInfo["mission"])))
	b.WriteString(paragraph("Website: " + utils.Str(orgInfo["website"])))

	if errMsg := utils.Str(doc["error"]); errMsg != "" && doc["error"] != nil {
		b.WriteString(heading("Note", 1))
		b.WriteString(paragraph(errMsg))
	}

	for _, sec := range narrativeSections {
		value := sectionValue(doc, sec.keys)
		b.WriteString(heading(sec.heading, 1))
		switch sec.heading {
		case "Budget":
			b.WriteString(budgetTable(value))
		case "Goals and Objectives":
			for _, goal := range goalLines(value) {
				b.WriteString(bullet(goal))
			}
		default:
			b.WriteString(paragraph(flatten(value)))
		}
	}

	return b.String()
}

func firstValue(doc core.GrantDocument, key, fallback string) interface{} {
	if v, ok := doc[key]; ok && utils.Str(v) != "" {
		return v
	}
	return fallback
}

func sectionValue(doc core.GrantDocument, keys []string) interface{} {
	for _, key := range keys {
		if v, ok := doc[key]; ok && v != nil {
			return v
		}
	}
	return nil
}

// goalLines normalizes the goals section, which arrives as either a string
// array or an HTML-flavored blob of text.
func goalLines(value interface{}) []string {
	switch v := value.(type) {
	case []interface{}:
		var goals []string
		for _, g := range v {
			if s := strings.TrimSpace(utils.Str(g)); s != "" {
				goals = append(goals, s)
			}
		}
		return goals
	case string:
		clean := htmlTags.ReplaceAllString(v, "")
		var goals []string
		for _, line := range strings.Split(clean, "\n") {
			if s := strings.TrimSpace(line); s != "" {
				goals = append(goals, s)
			}
		}
		return goals
	default:
		return nil
	}
}

// budgetTable renders the itemized budget with a trailing total row
func budgetTable(value interface{}) string {
	items, _ := value.([]interface{})

	var b strings.Builder
	b.WriteString(`<w:tbl><w:tblPr><w:tblStyle w:val="TableGrid"/><w:tblW w:w="0" w:type="auto"/></w:tblPr>`)
	b.WriteString(tableRow("Item", "Description", "Amount"))

	var total float64
	for _, raw := range items {
		item, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		amount, hasAmount := item["amount"].(float64)
		amountText := "$" + utils.Str(item["amount"])
		if hasAmount {
			total += amount
			amountText = fmt.Sprintf("$%.2f", amount)
		}
		b.WriteString(tableRow(utils.Str(item["item"]), utils.Str(item["description"]), amountText))
	}
	if len(items) > 0 {
		b.WriteString(tableRow("Total", "", fmt.Sprintf("$%.2f", total)))
	}
	b.WriteString(`</w:tbl>`)
	return b.String()
}

// flatten renders non-string section values as readable text
func flatten(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case []interface{}:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			parts = append(parts, flatten(item))
		}
		return strings.Join(parts, " ")
	case map[string]interface{}:
		var b strings.Builder
		for key, item := range v {
			fmt.Fprintf(&b, "%s: %s ", titleCase(key), flatten(item))
		}
		return strings.TrimSpace(b.String())
	default:
		return utils.Str(v)
	}
}

func titleCase(key string) string {
	words := strings.Split(strings.ReplaceAll(key, "_", " "), " ")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

func heading(text string, level int) string {
	style := "Title"
	if level > 0 {
		style = fmt.Sprintf("Heading%d", level)
	}
	return fmt.Sprintf(`<w:p><w:pPr><w:pStyle w:val=%q/></w:pPr><w:r><w:t xml:space="preserve">%s</w:t></w:r></w:p>`,
		style, escape(text))
}

func paragraph(text string) string {
	return fmt.Sprintf(`<w:p><w:r><w:t xml:space="preserve">%s</w:t></w:r></w:p>`, escape(text))
}

func bullet(text string) string {
	return fmt.Sprintf(`<w:p><w:pPr><w:pStyle w:val="ListBullet"/></w:pPr><w:r><w:rPr><w:b/></w:rPr><w:t xml:space="preserve">%s</w:t></w:r></w:p>`,
		escape(text))
}

func tableRow(cells ...string) string {
	var b strings.Builder
	b.WriteString("<w:tr>")
	for _, cell := range cells {
		fmt.Fprintf(&b, `<w:tc><w:p><w:r><w:t xml:space="preserve">%s</w:t></w:r></w:p></w:tc>`, escape(cell))
	}
	b.WriteString("</w:tr>")
	return b.String()
}

func escape(s string) string {
	var buf bytes.Buffer
	if err := xml.EscapeText(&buf, []byte(s)); err != nil {
		return ""
	}
	return buf.String()
}
