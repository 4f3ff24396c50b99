package core

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/grantforge/grantforge/config"
	"github.com/grantforge/grantforge/internal/agent/telemetry"
)

// scriptedLLM replays canned responses in order across all Chat calls,
// planner and agent alike.
type scriptedLLM struct {
	responses []ChatResponse
	calls     int
	lastTools []ToolDeclaration
}

func (s *scriptedLLM) Chat(ctx context.Context, messages []ChatMessage, tools []ToolDeclaration, model string, options map[string]interface{}) (ChatResponse, error) {
	if tools != nil {
		s.lastTools = tools
	}
	if s.calls >= len(s.responses) {
		return ChatResponse{Content: ""}, nil
	}
	resp := s.responses[s.calls]
	s.calls++
	return resp, nil
}

func (s *scriptedLLM) Generate(ctx context.Context, prompt string, model string, options map[string]interface{}) (string, error) {
	resp, err := s.Chat(ctx, []ChatMessage{{Role: "user", Content: prompt}}, nil, model, options)
	return resp.Content, err
}

func (s *scriptedLLM) GenerateWithTokens(ctx context.Context, prompt string, model string, options map[string]interface{}) (string, int64, int64, error) {
	resp, err := s.Chat(ctx, []ChatMessage{{Role: "user", Content: prompt}}, nil, model, options)
	return resp.Content, resp.InputTokens, resp.OutputTokens, err
}

func (s *scriptedLLM) GetAvailableModels() []string                      { return []string{"test"} }
func (s *scriptedLLM) CalculateCost(in, out int64, model string) float64 { return 0 }

func testConfig() *config.Config {
	return &config.Config{
		LLM: config.LLMConfig{
			Routing: config.LLMRoutingConfig{
				Planning: "test", Research: "test", Writing: "test", Review: "test", Fallback: "test",
			},
		},
		Agents: config.AgentsConfig{MaxPlanIterations: 4},
		Search: config.SearchConfig{MaxResults: 3},
	}
}

func newTestOrchestrator(t *testing.T, llm LLMProvider) *Orchestrator {
	t.Helper()
	tel := telemetry.NewTelemetry(config.TelemetryConfig{})
	orch, err := NewOrchestrator(testConfig(), llm, tel)
	if err != nil {
		t.Fatalf("NewOrchestrator: %v", err)
	}
	return orch
}

func TestExtractGrantDocumentProseWrapped(t *testing.T) {
	req := GenerationRequest{
		NonprofitName:    "Acme Aid",
		NonprofitMission: "help people",
		NonprofitWebsite: "https://acmeaid.org",
	}
	raw := `Sure! Here is the grant application you asked for:
{"title": "Acme Aid Grant", "executive_summary": "We help.",
"budget": [{"item": "Laptops", "description": "For staff", "amount": 500}]}
Let me know if you need anything else. :-}`

	doc := ExtractGrantDocument(raw, req)
	if _, failed := doc["error"]; failed {
		t.Fatalf("expected clean extraction, got error: %v", doc["error"])
	}
	if doc["title"] != "Acme Aid Grant" {
		t.Fatalf("title = %v", doc["title"])
	}
	budget, ok := doc["budget"].([]interface{})
	if !ok || len(budget) != 1 {
		t.Fatalf("budget = %v", doc["budget"])
	}
	first := budget[0].(map[string]interface{})
	if first["amount"] != float64(500) {
		t.Fatalf("amount = %v", first["amount"])
	}
}

func TestExtractGrantDocumentTrailingBraces(t *testing.T) {
	// trailing commentary containing braces must not confuse the scan
	raw := `{"title": "T", "nested": {"a": {"b": 1}}} and here is a stray } plus {another`
	doc := ExtractGrantDocument(raw, GenerationRequest{NonprofitName: "X"})
	if _, failed := doc["error"]; failed {
		t.Fatalf("expected clean extraction, got %v", doc)
	}
	nested := doc["nested"].(map[string]interface{})
	if nested["a"].(map[string]interface{})["b"] != float64(1) {
		t.Fatalf("nested lost: %v", doc)
	}
}

func TestExtractGrantDocumentControlChars(t *testing.T) {
	raw := "\"{ \"title\":\x07 \"T\",\n\"executive_summary\":\t\"Line one.\"}\""
	doc := ExtractGrantDocument(raw, GenerationRequest{NonprofitName: "X"})
	if _, failed := doc["error"]; failed {
		t.Fatalf("expected clean extraction, got %v", doc)
	}
	if doc["title"] != "T" {
		t.Fatalf("title = %v", doc["title"])
	}
}

func TestExtractGrantDocumentQuoteWrapped(t *testing.T) {
	raw := `'{"title": "T"}'`
	doc := ExtractGrantDocument(raw, GenerationRequest{NonprofitName: "X"})
	if doc["title"] != "T" {
		t.Fatalf("title = %v", doc["title"])
	}
}

func TestExtractGrantDocumentUnterminatedObject(t *testing.T) {
	// no matching close brace falls back to end-of-string, then fails
	// parse and produces the fallback document
	doc := ExtractGrantDocument(`{"title": "T"`, GenerationRequest{NonprofitName: "Acme Aid"})
	if doc["title"] != "Grant Application for Acme Aid" {
		t.Fatalf("title = %v", doc["title"])
	}
	if msg, _ := doc["error"].(string); msg == "" {
		t.Fatalf("expected error field, got %v", doc)
	}
}

func TestExtractGrantDocumentFallback(t *testing.T) {
	for _, raw := range []string{"", "no json here at all"} {
		doc := ExtractGrantDocument(raw, GenerationRequest{
			NonprofitName:    "Acme Aid",
			NonprofitMission: "help",
			NonprofitWebsite: "https://acmeaid.org",
		})
		if doc["title"] != "Grant Application for Acme Aid" {
			t.Fatalf("raw %q: title = %v", raw, doc["title"])
		}
		if msg, _ := doc["error"].(string); msg == "" {
			t.Fatalf("raw %q: expected non-empty error", raw)
		}
		org := doc["organization_info"].(map[string]interface{})
		if org["name"] != "Acme Aid" || org["website"] != "https://acmeaid.org" {
			t.Fatalf("raw %q: organization_info = %v", raw, org)
		}
	}
}

func TestExtractGrantDocumentForcesOrganizationInfo(t *testing.T) {
	raw := `{"title": "T", "organization_info": {"name": "Imposter Org"}}`
	doc := ExtractGrantDocument(raw, GenerationRequest{NonprofitName: "Acme Aid", NonprofitMission: "m"})
	org := doc["organization_info"].(map[string]interface{})
	if org["name"] != "Acme Aid" || org["mission"] != "m" {
		t.Fatalf("organization_info not overwritten: %v", org)
	}
}

func TestCoerceJSON(t *testing.T) {
	out := coerceJSON(`Here you go: {"aligned": true, "issues": []} hope that helps`)
	if out["aligned"] != true {
		t.Fatalf("aligned = %v", out["aligned"])
	}

	out = coerceJSON("complete garbage with no structure")
	if out["error"] == nil {
		t.Fatalf("expected error object, got %v", out)
	}
	if raw, _ := out["raw_content"].(string); !strings.Contains(raw, "complete garbage") {
		t.Fatalf("raw_content = %v", out["raw_content"])
	}
}

func TestCoerceJSONBoundsRawContent(t *testing.T) {
	long := strings.Repeat("x", 5000)
	out := coerceJSON(long)
	if raw, _ := out["raw_content"].(string); len(raw) > rawContentLimit+3 {
		t.Fatalf("raw_content not bounded: %d bytes", len(raw))
	}
}

func TestRegistryOrderAndDeclarations(t *testing.T) {
	orch := newTestOrchestrator(t, &scriptedLLM{})
	reg := orch.Registry()

	names := reg.Names()
	if len(names) == 0 {
		t.Fatalf("no functions registered")
	}
	if names[0] != "ResearcherAgent-research_grant" {
		t.Fatalf("first registered function = %s", names[0])
	}

	decls := reg.Declarations()
	if len(decls) != len(names) {
		t.Fatalf("declarations %d != names %d", len(decls), len(names))
	}
	for i, d := range decls {
		if d.Name != names[i] {
			t.Fatalf("declaration order broken at %d: %s != %s", i, d.Name, names[i])
		}
		if d.Parameters == nil {
			t.Fatalf("%s has no parameter schema", d.Name)
		}
	}

	if _, ok := reg.Lookup("WriterAgent-write_full_grant"); !ok {
		t.Fatalf("writer function missing")
	}
	if _, ok := reg.Lookup("nope"); ok {
		t.Fatalf("lookup of unknown name succeeded")
	}
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	reg := NewRegistry()
	fn := AgentFunction{Name: "a", Invoke: func(ctx context.Context, args json.RawMessage) (string, error) { return "", nil }}
	if err := reg.Register(fn); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := reg.Register(fn); err == nil {
		t.Fatalf("duplicate register succeeded")
	}
}

func TestGenerateGrantToolCallThenAnswer(t *testing.T) {
	llm := &scriptedLLM{responses: []ChatResponse{
		// planner asks for a quality score
		{ToolCalls: []ToolCall{{ID: "1", Name: "QualityCheckerAgent-score_quality", Arguments: `{"content": "draft"}`}}},
		// quality agent's own completion
		{Content: `{"overall_score": 8, "scores": {"clarity": 8}}`},
		// planner final answer
		{Content: `{"title": "Final", "executive_summary": "Done."}`},
	}}
	orch := newTestOrchestrator(t, llm)

	doc := orch.GenerateGrant(context.Background(), GenerationRequest{NonprofitName: "Acme Aid"})
	if doc["title"] != "Final" {
		t.Fatalf("title = %v", doc["title"])
	}
	if llm.calls != 3 {
		t.Fatalf("expected 3 LLM calls, got %d", llm.calls)
	}
	if len(llm.lastTools) == 0 {
		t.Fatalf("planner received no tool declarations")
	}
}

func TestGenerateGrantUnknownFunctionDegrades(t *testing.T) {
	llm := &scriptedLLM{responses: []ChatResponse{
		{ToolCalls: []ToolCall{{ID: "1", Name: "NoSuchAgent-do_thing", Arguments: `{}`}}},
		{Content: `{"title": "Recovered"}`},
	}}
	orch := newTestOrchestrator(t, llm)

	doc := orch.GenerateGrant(context.Background(), GenerationRequest{NonprofitName: "Acme Aid"})
	if doc["title"] != "Recovered" {
		t.Fatalf("run did not survive unknown function: %v", doc)
	}
}

func TestGenerateGrantBudgetExhaustion(t *testing.T) {
	// planner never stops calling tools; the loop must end at the
	// iteration budget and fall back deterministically
	loop := ChatResponse{ToolCalls: []ToolCall{{ID: "1", Name: "NoSuchAgent-spin", Arguments: `{}`}}}
	llm := &scriptedLLM{responses: []ChatResponse{loop, loop, loop, loop, loop, loop, loop, loop}}
	orch := newTestOrchestrator(t, llm)

	doc := orch.GenerateGrant(context.Background(), GenerationRequest{NonprofitName: "Acme Aid"})
	if doc["title"] != "Grant Application for Acme Aid" {
		t.Fatalf("expected fallback document, got %v", doc)
	}
	if llm.calls != testConfig().Agents.MaxPlanIterations {
		t.Fatalf("loop ran %d iterations, budget is %d", llm.calls, testConfig().Agents.MaxPlanIterations)
	}
}
