package core

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/grantforge/grantforge/config"
	"github.com/grantforge/grantforge/internal/agent/telemetry"
	"github.com/grantforge/grantforge/tools/web_fetch"
)

const plannerInstructions = `You are the Orchestrator Agent. Coordinate the available agent functions
to generate comprehensive grant content for nonprofit organizations:
1. Break the grant writing task into subtasks
2. Call the appropriate agent function for each subtask
3. Collect and integrate the results
4. Ensure the final grant is well-structured and meets all requirements
5. Ensure the final grant aligns with the nonprofit's mission and values
Always maintain a professional tone appropriate for grant applications.`

// Orchestrator drives the stepwise tool-calling planning loop over the
// registered agent functions and extracts one structured grant document
// from the final model answer.
type Orchestrator struct {
	cfg       *config.Config
	llm       LLMProvider
	telemetry *telemetry.Telemetry
	registry  *Registry
	logger    *log.Logger
}

// NewOrchestrator wires the domain agents into a function registry and
// returns a ready orchestrator. Construction fails only on configuration
// errors; missing search providers degrade research instead.
func NewOrchestrator(cfg *config.Config, llm LLMProvider, tel *telemetry.Telemetry) (*Orchestrator, error) {
	searchers := NewSearchers(cfg.Search)
	fetcher, err := web_fetch.NewWebFetcher(web_fetch.ChromedpFetcherType, cfg.Search.Timeout, 0)
	if err != nil {
		return nil, fmt.Errorf("building web fetcher: %w", err)
	}

	researcher := NewResearcherAgent(cfg, llm, tel, searchers)
	writer := NewWriterAgent(cfg, llm, tel)
	alignment := NewMissionAlignmentAgent(cfg, llm, tel)
	quality := NewQualityCheckerAgent(cfg, llm, tel)
	webSurfer := NewWebSurferAgent(cfg, llm, tel, searchers)
	fileSurfer := NewFileSurferAgent(cfg, llm, tel)
	scraper := NewScraperAgent(cfg, llm, tel, fetcher)

	registry := NewRegistry()
	functions := []AgentFunction{
		{
			Name:        "ResearcherAgent-research_grant",
			Description: "Research a grant opportunity by URL: provider, deadline, funding amount, eligibility, priorities, required components, evaluation criteria.",
			Parameters:  stringParams([2]string{"grant_url", "URL of the grant to research"}),
			Invoke: func(ctx context.Context, args json.RawMessage) (string, error) {
				var in struct {
					GrantURL string `json:"grant_url"`
				}
				if err := json.Unmarshal(args, &in); err != nil {
					return "", fmt.Errorf("bad arguments: %w", err)
				}
				return jsonString(researcher.ResearchGrant(ctx, in.GrantURL)), nil
			},
		},
		{
			Name:        "ResearcherAgent-research_nonprofit",
			Description: "Research a nonprofit organization: mission, programs, population served, impact, leadership, funding sources.",
			Parameters: stringParams(
				[2]string{"nonprofit_website", "URL of the nonprofit's website"},
				[2]string{"nonprofit_name", "name of the nonprofit organization"},
			),
			Invoke: func(ctx context.Context, args json.RawMessage) (string, error) {
				var in struct {
					Website string `json:"nonprofit_website"`
					Name    string `json:"nonprofit_name"`
				}
				if err := json.Unmarshal(args, &in); err != nil {
					return "", fmt.Errorf("bad arguments: %w", err)
				}
				return jsonString(researcher.ResearchNonprofit(ctx, in.Website, in.Name)), nil
			},
		},
		{
			Name:        "WriterAgent-write_executive_summary",
			Description: "Write a 1-2 paragraph executive summary from nonprofit and grant information.",
			Parameters: stringParams(
				[2]string{"nonprofit_info", "information about the nonprofit"},
				[2]string{"grant_info", "information about the grant"},
			),
			Invoke: func(ctx context.Context, args json.RawMessage) (string, error) {
				var in struct {
					NonprofitInfo string `json:"nonprofit_info"`
					GrantInfo     string `json:"grant_info"`
				}
				if err := json.Unmarshal(args, &in); err != nil {
					return "", fmt.Errorf("bad arguments: %w", err)
				}
				return writer.WriteExecutiveSummary(ctx, in.NonprofitInfo, in.GrantInfo)
			},
		},
		{
			Name:        "WriterAgent-write_problem_statement",
			Description: "Write a 2-3 paragraph evidence-backed problem statement from research data.",
			Parameters:  stringParams([2]string{"research_data", "research data about the issue"}),
			Invoke: func(ctx context.Context, args json.RawMessage) (string, error) {
				var in struct {
					ResearchData string `json:"research_data"`
				}
				if err := json.Unmarshal(args, &in); err != nil {
					return "", fmt.Errorf("bad arguments: %w", err)
				}
				return writer.WriteProblemStatement(ctx, in.ResearchData)
			},
		},
		{
			Name:        "WriterAgent-write_full_grant",
			Description: "Write a complete grant application as a JSON object with all standard sections including an itemized budget.",
			Parameters: stringParams(
				[2]string{"nonprofit_info", "information about the nonprofit"},
				[2]string{"grant_info", "information about the grant"},
				[2]string{"research_data", "research data for the application"},
			),
			Invoke: func(ctx context.Context, args json.RawMessage) (string, error) {
				var in struct {
					NonprofitInfo string `json:"nonprofit_info"`
					GrantInfo     string `json:"grant_info"`
					ResearchData  string `json:"research_data"`
				}
				if err := json.Unmarshal(args, &in); err != nil {
					return "", fmt.Errorf("bad arguments: %w", err)
				}
				return jsonString(writer.WriteFullGrant(ctx, in.NonprofitInfo, in.GrantInfo, in.ResearchData)), nil
			},
		},
		{
			Name:        "MissionAlignmentAgent-verify_alignment",
			Description: "Verify that grant content aligns with the nonprofit's mission and values; returns aligned flag, issues and assessment.",
			Parameters: stringParams(
				[2]string{"content", "the grant content to verify"},
				[2]string{"nonprofit_info", "information about the nonprofit"},
			),
			Invoke: func(ctx context.Context, args json.RawMessage) (string, error) {
				var in struct {
					Content       string `json:"content"`
					NonprofitInfo string `json:"nonprofit_info"`
				}
				if err := json.Unmarshal(args, &in); err != nil {
					return "", fmt.Errorf("bad arguments: %w", err)
				}
				return jsonString(alignment.VerifyAlignment(ctx, in.Content, in.NonprofitInfo)), nil
			},
		},
		{
			Name:        "MissionAlignmentAgent-revise_content",
			Description: "Revise grant content to address identified mission alignment issues, preserving structure.",
			Parameters: stringParams(
				[2]string{"content", "the original grant content"},
				[2]string{"alignment_issues", "issues identified during verification"},
				[2]string{"nonprofit_info", "information about the nonprofit"},
			),
			Invoke: func(ctx context.Context, args json.RawMessage) (string, error) {
				var in struct {
					Content       string `json:"content"`
					Issues        string `json:"alignment_issues"`
					NonprofitInfo string `json:"nonprofit_info"`
				}
				if err := json.Unmarshal(args, &in); err != nil {
					return "", fmt.Errorf("bad arguments: %w", err)
				}
				return jsonString(alignment.ReviseContent(ctx, in.Content, in.Issues, in.NonprofitInfo)), nil
			},
		},
		{
			Name:        "QualityCheckerAgent-score_quality",
			Description: "Score grant content 1-10 on clarity, persuasiveness, specificity, evidence and completeness with feedback.",
			Parameters:  stringParams([2]string{"content", "the grant content to score"}),
			Invoke: func(ctx context.Context, args json.RawMessage) (string, error) {
				var in struct {
					Content string `json:"content"`
				}
				if err := json.Unmarshal(args, &in); err != nil {
					return "", fmt.Errorf("bad arguments: %w", err)
				}
				return jsonString(quality.ScoreQuality(ctx, in.Content)), nil
			},
		},
		{
			Name:        "WebSurferAgent-search_web",
			Description: "Search the web for a topic and summarize the most relevant findings with key facts and sources.",
			Parameters:  stringParams([2]string{"query", "search query"}),
			Invoke: func(ctx context.Context, args json.RawMessage) (string, error) {
				var in struct {
					Query string `json:"query"`
				}
				if err := json.Unmarshal(args, &in); err != nil {
					return "", fmt.Errorf("bad arguments: %w", err)
				}
				return webSurfer.Browse(ctx, in.Query)
			},
		},
		{
			Name:        "FileSurferAgent-process_file",
			Description: "Extract grant-relevant key points from document text: requirements, eligibility, priorities, deadlines, budget constraints.",
			Parameters:  stringParams([2]string{"file_content", "text content of the document"}),
			Invoke: func(ctx context.Context, args json.RawMessage) (string, error) {
				var in struct {
					FileContent string `json:"file_content"`
				}
				if err := json.Unmarshal(args, &in); err != nil {
					return "", fmt.Errorf("bad arguments: %w", err)
				}
				return fileSurfer.ReviewDocument(ctx, in.FileContent)
			},
		},
		{
			Name:        "ScraperAgent-scrape_website",
			Description: "Render a web page and extract grant-relevant information from its content.",
			Parameters:  stringParams([2]string{"url", "URL of the website to scrape"}),
			Invoke: func(ctx context.Context, args json.RawMessage) (string, error) {
				var in struct {
					URL string `json:"url"`
				}
				if err := json.Unmarshal(args, &in); err != nil {
					return "", fmt.Errorf("bad arguments: %w", err)
				}
				return scraper.Scrape(ctx, in.URL)
			},
		},
	}
	for _, fn := range functions {
		if err := registry.Register(fn); err != nil {
			return nil, fmt.Errorf("registering %s: %w", fn.Name, err)
		}
	}

	return &Orchestrator{
		cfg:       cfg,
		llm:       llm,
		telemetry: tel,
		registry:  registry,
		logger:    log.New(log.Writer(), "[ORCH] ", log.LstdFlags),
	}, nil
}

// Registry exposes the built function registry, mainly for inspection
func (o *Orchestrator) Registry() *Registry { return o.registry }

// GenerateGrant runs the full planning loop for one request and always
// returns a document. Failures of any kind surface inside the document as
// an error field, never as a Go error.
func (o *Orchestrator) GenerateGrant(ctx context.Context, req GenerationRequest) GrantDocument {
	tracer := otel.Tracer("grantforge/orchestrator")
	ctx, span := tracer.Start(ctx, "orchestrator.generate_grant")
	defer span.End()
	span.SetAttributes(
		attribute.String("nonprofit.name", req.NonprofitName),
		attribute.String("grant.url", req.GrantURL),
	)

	start := time.Now()
	o.logger.Printf("starting grant generation for %q", req.NonprofitName)

	finalAnswer, steps, tokens := o.runPlanningLoop(ctx, req)
	span.SetAttributes(attribute.Int("plan.steps", len(steps)))

	_, exSpan := tracer.Start(ctx, "orchestrator.extract_document")
	doc := ExtractGrantDocument(finalAnswer, req)
	if errMsg, ok := doc["error"].(string); ok && errMsg != "" {
		exSpan.RecordError(fmt.Errorf("%s", errMsg))
		exSpan.SetStatus(codes.Error, "extraction fell back")
	}
	exSpan.End()

	_, failed := doc["error"]
	o.telemetry.RecordGenerationEvent(ctx, telemetry.GenerationEvent{
		OrgName:    req.NonprofitName,
		StartTime:  start,
		EndTime:    time.Now(),
		Duration:   time.Since(start),
		Success:    !failed,
		TokensUsed: tokens,
		Cost:       o.llm.CalculateCost(tokens, 0, o.cfg.LLM.Routing.Planning),
		ModelsUsed: []string{o.cfg.LLM.Routing.Planning},
	})

	o.logger.Printf("completed grant generation for %q in %v (%d plan steps)",
		req.NonprofitName, time.Since(start), len(steps))
	return doc
}

// runPlanningLoop drives the bounded plan-act-observe loop and returns the
// final answer text, the recorded steps, and total token usage. An
// exhausted budget or provider failure ends the loop with whatever answer
// text is available, possibly empty.
func (o *Orchestrator) runPlanningLoop(ctx context.Context, req GenerationRequest) (string, []PlanStep, int64) {
	task := fmt.Sprintf(`Generate a comprehensive grant application for %s (website: %s)
applying for the grant at %s. The nonprofit's mission is: %q.

The grant should include the following sections:
- Executive Summary
- Problem Statement
- Project Description
- Goals and Objectives
- Implementation Plan
- Evaluation and Impact
- Budget
- Sustainability Plan
- Conclusion

Format your response as a JSON object with these fields as snake_case keys.
Output only the JSON object, with no additional text, commentary, or
markdown fences.`, req.NonprofitName, req.NonprofitWebsite, req.GrantURL, req.NonprofitMission)

	messages := []ChatMessage{
		{Role: "system", Content: plannerInstructions},
		{Role: "user", Content: task},
	}
	decls := o.registry.Declarations()
	model := o.cfg.LLM.Routing.Planning

	var (
		finalAnswer string
		steps       []PlanStep
		tokens      int64
	)

	for iter := 0; iter < o.cfg.Agents.MaxPlanIterations; iter++ {
		resp, err := o.llm.Chat(ctx, messages, decls, model, nil)
		if err != nil {
			o.logger.Printf("planning iteration %d failed: %v", iter+1, err)
			break
		}
		tokens += resp.InputTokens + resp.OutputTokens

		if len(resp.ToolCalls) == 0 {
			finalAnswer = resp.Content
			break
		}

		// Tool calls execute strictly sequentially; later calls may
		// depend on earlier observations.
		messages = append(messages, ChatMessage{
			Role:      "assistant",
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})
		for _, call := range resp.ToolCalls {
			stepStart := time.Now()
			observation := o.invokeFunction(ctx, call)
			steps = append(steps, PlanStep{
				Iteration:   iter + 1,
				Thought:     resp.Content,
				Function:    call.Name,
				Arguments:   call.Arguments,
				Observation: observation,
				Duration:    time.Since(stepStart),
			})
			messages = append(messages, ChatMessage{
				Role:       "tool",
				ToolCallID: call.ID,
				Content:    observation,
			})
		}
		finalAnswer = resp.Content
	}

	if finalAnswer == "" {
		o.logger.Printf("planning loop ended with empty final answer")
	}
	return finalAnswer, steps, tokens
}

// invokeFunction runs one registered function and renders its result as an
// observation string. Failures become observations the planner can react
// to rather than aborting the run.
func (o *Orchestrator) invokeFunction(ctx context.Context, call ToolCall) string {
	fn, ok := o.registry.Lookup(call.Name)
	if !ok {
		o.logger.Printf("planner requested unknown function %q", call.Name)
		return fmt.Sprintf("error: unknown function %q", call.Name)
	}

	args := call.Arguments
	if strings.TrimSpace(args) == "" {
		args = "{}"
	}
	out, err := fn.Invoke(ctx, json.RawMessage(args))
	if err != nil {
		o.logger.Printf("function %s failed: %v", call.Name, err)
		return fmt.Sprintf("error: %v", err)
	}
	return out
}

var controlChars = regexp.MustCompile("[\x00-\x08\x0b\x0c\x0e-\x1f]")

// ExtractGrantDocument recovers one structured grant document from the
// planner's free-form final answer. Model output routinely arrives wrapped
// in prose, quotes or markdown fences and may embed control characters;
// the brace-depth scan tolerates trailing commentary that itself contains
// braces. On any failure the deterministic fallback document is returned,
// so the caller always receives a usable result.
func ExtractGrantDocument(raw string, req GenerationRequest) GrantDocument {
	orgInfo := map[string]interface{}{
		"name":    req.NonprofitName,
		"mission": req.NonprofitMission,
		"website": req.NonprofitWebsite,
	}
	fallback := func(reason string) GrantDocument {
		return GrantDocument{
			"title":             fmt.Sprintf("Grant Application for %s", req.NonprofitName),
			"organization_info": orgInfo,
			"error":             fmt.Sprintf("Error generating content: %s", reason),
		}
	}

	text := raw
	if len(text) >= 2 {
		first, last := text[0], text[len(text)-1]
		if first == last && (first == '\'' || first == '"' || first == '`') {
			text = text[1 : len(text)-1]
		}
	}

	text = strings.NewReplacer("\n", " ", "\r", " ", "\t", " ", " ", " ").Replace(text)
	text = controlChars.ReplaceAllString(text, "")

	start := strings.Index(text, "{")
	if start < 0 {
		return fallback("no JSON object found in planner output")
	}
	depth := 0
	end := -1
	for i := start; i < len(text); i++ {
		switch text[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				end = i
			}
		}
		if end != -1 {
			break
		}
	}
	if end != -1 {
		text = text[start : end+1]
	} else {
		text = text[start:]
	}

	var doc GrantDocument
	if err := json.Unmarshal([]byte(text), &doc); err != nil {
		return fallback(err.Error())
	}

	// The UI relies on organization_info reflecting the request, whatever
	// the model produced for that key.
	doc["organization_info"] = orgInfo
	return doc
}

func jsonString(v map[string]interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf(`{"error": %q}`, err.Error())
	}
	return string(b)
}
