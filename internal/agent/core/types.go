package core

import (
	"context"
	"encoding/json"
	"time"
)

// GenerationRequest is the user's input to a grant generation run. All
// fields are optional strings; agents work with whatever is provided.
type GenerationRequest struct {
	NonprofitWebsite string `json:"nonprofit_website"`
	GrantURL         string `json:"grant_url"`
	NonprofitName    string `json:"nonprofit_name"`
	NonprofitMission string `json:"nonprofit_mission"`
}

// GrantDocument is the structured grant application draft. It is kept as a
// generic map because the model decides which sections to emit; well known
// keys are executive_summary, problem_statement, project_description,
// goals_and_objectives, implementation_plan, evaluation_and_impact, budget,
// sustainability_plan, conclusion, title, organization_info and error.
type GrantDocument map[string]interface{}

// OrganizationInfo mirrors the organization_info block that is always
// stamped onto a GrantDocument from the originating request.
type OrganizationInfo struct {
	Name    string `json:"name"`
	Mission string `json:"mission"`
	Website string `json:"website"`
}

// BudgetItem is one row of the budget section
type BudgetItem struct {
	Item        string  `json:"item"`
	Description string  `json:"description"`
	Amount      float64 `json:"amount"`
}

// PlanStep records one iteration of the planning loop for logging and
// telemetry. Observation holds the tool result handed back to the model.
type PlanStep struct {
	Iteration   int           `json:"iteration"`
	Thought     string        `json:"thought,omitempty"`
	Function    string        `json:"function,omitempty"`
	Arguments   string        `json:"arguments,omitempty"`
	Observation string        `json:"observation,omitempty"`
	Duration    time.Duration `json:"duration"`
}

// ChatMessage is a single message in a chat-completions conversation
type ChatMessage struct {
	Role       string     `json:"role"`
	Content    string     `json:"content,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
}

// ToolCall is a function invocation requested by the model
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ChatResponse carries either assistant content or tool calls, plus usage
type ChatResponse struct {
	Content      string
	ToolCalls    []ToolCall
	InputTokens  int64
	OutputTokens int64
}

// ToolDeclaration describes one callable function in the wire format the
// chat-completions tools parameter expects.
type ToolDeclaration struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// LLMProvider is the interface for LLM backends
type LLMProvider interface {
	// Generate generates text for a single prompt
	Generate(ctx context.Context, prompt string, model string, options map[string]interface{}) (string, error)

	// GenerateWithTokens generates text and returns token usage
	GenerateWithTokens(ctx context.Context, prompt string, model string, options map[string]interface{}) (string, int64, int64, error)

	// Chat runs one chat-completions turn with optional tool declarations.
	// The response carries either assistant content or tool calls.
	Chat(ctx context.Context, messages []ChatMessage, tools []ToolDeclaration, model string, options map[string]interface{}) (ChatResponse, error)

	// GetAvailableModels returns the configured model keys
	GetAvailableModels() []string

	// CalculateCost calculates the dollar cost for token usage on a model
	CalculateCost(inputTokens, outputTokens int64, model string) float64
}

// AgentFunction binds one agent task method into the planner's tool set
type AgentFunction struct {
	Name        string
	Description string
	Parameters  map[string]interface{}
	Invoke      func(ctx context.Context, args json.RawMessage) (string, error)
}

// ModelInfo holds metadata about an available model
type ModelInfo struct {
	Name            string
	Provider        string
	MaxTokens       int
	CostPer1KInput  float64
	CostPer1KOutput float64
}
