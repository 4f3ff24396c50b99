package core

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/grantforge/grantforge/config"
	"github.com/grantforge/grantforge/internal/agent/telemetry"
	"github.com/grantforge/grantforge/tools/web_fetch"
	"github.com/grantforge/grantforge/tools/web_search"
	"github.com/grantforge/grantforge/utils"
)

const rawContentLimit = 500

// coerceJSON coerces free-form model output into a structured object.
// It slices from the first '{' to the last '}' and parses strictly; on any
// failure it returns a marked error object carrying a bounded prefix of the
// raw text. It never panics and never loses the model output entirely.
func coerceJSON(raw string) map[string]interface{} {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		var out map[string]interface{}
		if err := json.Unmarshal([]byte(raw[start:end+1]), &out); err == nil {
			return out
		}
	}
	return map[string]interface{}{
		"error":       "could not parse structured response",
		"raw_content": utils.FirstN(raw, rawContentLimit),
	}
}

// NewSearchers builds the configured search providers. Zero providers is
// not an error; research runs degraded without them.
func NewSearchers(cfg config.SearchConfig) []web_search.WebSearcher {
	var searchers []web_search.WebSearcher
	if cfg.DuckDuckGoEnabled {
		if s, err := web_search.NewWebSearcher(web_search.DuckDuckGoProvider, ""); err == nil {
			searchers = append(searchers, s)
		}
	}
	if cfg.SerperAPIKey != "" {
		if s, err := web_search.NewWebSearcher(web_search.SerperProvider, cfg.SerperAPIKey); err == nil {
			searchers = append(searchers, s)
		}
	}
	if cfg.BraveAPIKey != "" {
		if s, err := web_search.NewWebSearcher(web_search.BraveProvider, cfg.BraveAPIKey); err == nil {
			searchers = append(searchers, s)
		}
	}
	return searchers
}

// agentBase carries what every domain agent needs: role instructions bound
// to the LLM provider, plus telemetry.
type agentBase struct {
	name         string
	instructions string
	cfg          *config.Config
	llm          LLMProvider
	telemetry    *telemetry.Telemetry
	logger       *log.Logger
}

// generate runs one completion under the agent's instructions and records
// the invocation.
func (a *agentBase) generate(ctx context.Context, method, model, prompt string) (string, error) {
	if a.cfg.Agents.AgentTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.Agents.AgentTimeout)
		defer cancel()
	}

	start := time.Now()
	out, inTok, outTok, err := a.llm.GenerateWithTokens(ctx, a.instructions+"\n\n"+prompt, model, nil)
	event := telemetry.AgentEvent{
		Agent:      a.name,
		Method:     method,
		Duration:   time.Since(start),
		Success:    err == nil,
		TokensUsed: inTok + outTok,
		ModelUsed:  model,
		Cost:       a.llm.CalculateCost(inTok, outTok, model),
	}
	if err != nil {
		event.Error = err.Error()
		a.logger.Printf("%s failed: %v", method, err)
	}
	a.telemetry.RecordAgentEvent(ctx, event)
	return out, err
}

func (a *agentBase) researchModel() string { return a.cfg.LLM.Routing.Research }
func (a *agentBase) writingModel() string  { return a.cfg.LLM.Routing.Writing }
func (a *agentBase) reviewModel() string   { return a.cfg.LLM.Routing.Review }

// gatherSnippets fans a query across the configured searchers sequentially
// and flattens the hits into a citation-friendly block. Provider errors
// degrade to fewer snippets rather than failing the caller.
func gatherSnippets(ctx context.Context, searchers []web_search.WebSearcher, tel *telemetry.Telemetry, query string, max int) string {
	var b strings.Builder
	for _, searcher := range searchers {
		start := time.Now()
		results, err := searcher.Search(ctx, query, max, 0)
		tel.RecordSearchEvent(ctx, telemetry.SearchEvent{
			Provider: fmt.Sprintf("%T", searcher),
			Query:    query,
			Duration: time.Since(start),
			Success:  err == nil,
			Results:  len(results),
		})
		if err != nil {
			continue
		}
		for _, r := range results {
			fmt.Fprintf(&b, "- %s (%s): %s\n", r.Title, r.URL, r.Snippet)
		}
	}
	return b.String()
}

// ResearcherAgent gathers grant and nonprofit background via web search
type ResearcherAgent struct {
	agentBase
	searchers []web_search.WebSearcher
}

// NewResearcherAgent creates the researcher with injected search providers
func NewResearcherAgent(cfg *config.Config, llm LLMProvider, tel *telemetry.Telemetry, searchers []web_search.WebSearcher) *ResearcherAgent {
	return &ResearcherAgent{
		agentBase: agentBase{
			name: "ResearcherAgent",
			instructions: `You are the Researcher Agent. Your role is to gather information about:
1. Grant opportunities and their requirements
2. Nonprofit organizations and their missions
3. Relevant statistics and data to support grant applications
4. Similar successful grant applications

Always cite your sources. Focus on accurate, relevant, up-to-date information
that will strengthen the grant application.`,
			cfg:       cfg,
			llm:       llm,
			telemetry: tel,
			logger:    log.New(log.Writer(), "[RESEARCHER] ", log.LstdFlags),
		},
		searchers: searchers,
	}
}

// ResearchGrant researches one grant opportunity by URL
func (a *ResearcherAgent) ResearchGrant(ctx context.Context, grantURL string) map[string]interface{} {
	if len(a.searchers) == 0 {
		a.logger.Printf("no search providers configured, research degraded")
		return map[string]interface{}{"error": "search capabilities not available"}
	}

	snippets := gatherSnippets(ctx, a.searchers, a.telemetry, "grant opportunity "+grantURL, a.cfg.Search.MaxResults)
	prompt := fmt.Sprintf(`I need to research the grant opportunity at %s. Web search returned:

%s

Provide details about this grant including:
1. Grant provider/organization
2. Application deadline
3. Funding amount
4. Eligibility criteria
5. Focus areas or priorities
6. Required application components
7. Evaluation criteria

Format your response as a structured JSON object.`, grantURL, snippets)

	out, err := a.generate(ctx, "research_grant", a.researchModel(), prompt)
	if err != nil {
		return map[string]interface{}{"error": err.Error()}
	}
	return coerceJSON(out)
}

// ResearchNonprofit researches one nonprofit organization
func (a *ResearcherAgent) ResearchNonprofit(ctx context.Context, website, name string) map[string]interface{} {
	if len(a.searchers) == 0 {
		a.logger.Printf("no search providers configured, research degraded")
		return map[string]interface{}{"error": "search capabilities not available"}
	}

	snippets := gatherSnippets(ctx, a.searchers, a.telemetry, name+" nonprofit "+website, a.cfg.Search.MaxResults)
	prompt := fmt.Sprintf(`I need to research the nonprofit organization %q with website %s. Web search returned:

%s

Provide information about this organization including:
1. Mission and vision
2. Programs and services
3. Target population served
4. Impact and achievements
5. Leadership team
6. Funding sources
7. Any recent news or developments

Format your response as a structured JSON object.`, name, website, snippets)

	out, err := a.generate(ctx, "research_nonprofit", a.researchModel(), prompt)
	if err != nil {
		return map[string]interface{}{"error": err.Error()}
	}
	return coerceJSON(out)
}

// WriterAgent writes grant content based on research
type WriterAgent struct {
	agentBase
}

// NewWriterAgent creates the writer
func NewWriterAgent(cfg *config.Config, llm LLMProvider, tel *telemetry.Telemetry) *WriterAgent {
	return &WriterAgent{agentBase: agentBase{
		name: "WriterAgent",
		instructions: `You are the Writer Agent. Your role is to craft compelling and persuasive
grant application content: executive summaries, problem statements, project
descriptions, goals and objectives, implementation plans, evaluation
frameworks, sustainability plans and conclusions.

Write professionally and clearly for grant reviewers. Use active voice,
specific details and evidence-based statements. Always align the writing
with the nonprofit's mission and the grant's requirements.`,
		cfg:       cfg,
		llm:       llm,
		telemetry: tel,
		logger:    log.New(log.Writer(), "[WRITER] ", log.LstdFlags),
	}}
}

// WriteExecutiveSummary writes the executive summary section
func (a *WriterAgent) WriteExecutiveSummary(ctx context.Context, nonprofitInfo, grantInfo string) (string, error) {
	prompt := fmt.Sprintf(`Write a compelling executive summary for a grant application.

Nonprofit Information:
%s

Grant Information:
%s

The executive summary should be 1-2 paragraphs that explain who the
nonprofit is, what problem they address, how they plan to address it, why
their approach is effective, how much funding they request, and what impact
the funding will have. Keep the tone professional and persuasive.`, nonprofitInfo, grantInfo)
	return a.generate(ctx, "write_executive_summary", a.writingModel(), prompt)
}

// WriteProblemStatement writes the problem statement section
func (a *WriterAgent) WriteProblemStatement(ctx context.Context, researchData string) (string, error) {
	prompt := fmt.Sprintf(`Write a compelling problem statement for a grant application based on
the following research:

%s

The statement should define the issue, include relevant statistics, explain
why the problem matters and to whom, discuss current gaps, and set the
stage for the nonprofit's solution. Keep it to 2-3 paragraphs, backed by
evidence.`, researchData)
	return a.generate(ctx, "write_problem_statement", a.writingModel(), prompt)
}

// WriteFullGrant writes a complete structured grant application
func (a *WriterAgent) WriteFullGrant(ctx context.Context, nonprofitInfo, grantInfo, researchData string) map[string]interface{} {
	prompt := fmt.Sprintf(`Write a comprehensive grant application.

Nonprofit Information:
%s

Grant Information:
%s

Research Data:
%s

Create a complete grant application with these sections: Executive Summary,
Problem Statement, Project Description, Goals and Objectives (3-5 specific
measurable goals), Implementation Plan, Evaluation and Impact, Budget,
Sustainability Plan, Conclusion.

Format your response as a JSON object with these sections as snake_case
keys. For the budget, create an array of items, each with "item",
"description" and "amount" fields. For goals and objectives, create an
array of specific goal statements.`, nonprofitInfo, grantInfo, researchData)

	out, err := a.generate(ctx, "write_full_grant", a.writingModel(), prompt)
	if err != nil {
		return map[string]interface{}{"error": err.Error()}
	}
	return coerceJSON(out)
}

// MissionAlignmentAgent checks generated content against the nonprofit's
// mission and values and revises it on demand.
type MissionAlignmentAgent struct {
	agentBase
}

// NewMissionAlignmentAgent creates the mission alignment checker
func NewMissionAlignmentAgent(cfg *config.Config, llm LLMProvider, tel *telemetry.Telemetry) *MissionAlignmentAgent {
	return &MissionAlignmentAgent{agentBase: agentBase{
		name: "MissionAlignmentAgent",
		instructions: `You are the Mission Alignment Agent. Ensure that all grant application
content accurately represents and aligns with the nonprofit's mission and
vision, core values, target population, existing programs, organizational
capacity and strategic goals. Flag inconsistencies and suggest specific
revisions.`,
		cfg:       cfg,
		llm:       llm,
		telemetry: tel,
		logger:    log.New(log.Writer(), "[ALIGNMENT] ", log.LstdFlags),
	}}
}

// VerifyAlignment reviews content against the nonprofit's identity
func (a *MissionAlignmentAgent) VerifyAlignment(ctx context.Context, content, nonprofitInfo string) map[string]interface{} {
	prompt := fmt.Sprintf(`Review the following grant application content and verify that it
aligns with the nonprofit's mission, values and capabilities.

Nonprofit Information:
%s

Grant Content:
%s

Analyze consistency with the stated mission, accuracy of claimed
capabilities, alignment with the target population, realism of goals, and
tone. Format your response as a JSON object:
{"aligned": true/false, "issues": [{"section": "...", "issue": "...",
"suggestion": "..."}], "overall_assessment": "..."}`, nonprofitInfo, content)

	out, err := a.generate(ctx, "verify_alignment", a.reviewModel(), prompt)
	if err != nil {
		return map[string]interface{}{"error": err.Error()}
	}
	return coerceJSON(out)
}

// ReviseContent rewrites content to address identified alignment issues
func (a *MissionAlignmentAgent) ReviseContent(ctx context.Context, content, issues, nonprofitInfo string) map[string]interface{} {
	prompt := fmt.Sprintf(`Revise the following grant application content to address the
identified alignment issues while maintaining the overall structure.

Nonprofit Information:
%s

Original Grant Content:
%s

Alignment Issues:
%s

Return the complete revised content as a JSON object with the same keys as
the original content.`, nonprofitInfo, content, issues)

	out, err := a.generate(ctx, "revise_content", a.writingModel(), prompt)
	if err != nil {
		return map[string]interface{}{"error": err.Error()}
	}
	return coerceJSON(out)
}

// QualityCheckerAgent scores draft content for grant-readiness
type QualityCheckerAgent struct {
	agentBase
}

// NewQualityCheckerAgent creates the quality checker
func NewQualityCheckerAgent(cfg *config.Config, llm LLMProvider, tel *telemetry.Telemetry) *QualityCheckerAgent {
	return &QualityCheckerAgent{agentBase: agentBase{
		name: "QualityCheckerAgent",
		instructions: `You are the Quality Checking Agent. Evaluate grant application content
for clarity, persuasiveness, specificity, evidence use, and completeness
against what grant reviewers expect. Be direct about weaknesses.`,
		cfg:       cfg,
		llm:       llm,
		telemetry: tel,
		logger:    log.New(log.Writer(), "[QUALITY] ", log.LstdFlags),
	}}
}

// ScoreQuality produces a structured scorecard for draft content
func (a *QualityCheckerAgent) ScoreQuality(ctx context.Context, content string) map[string]interface{} {
	prompt := fmt.Sprintf(`Score the following grant application content on a 1-10 scale for
each criterion: clarity, persuasiveness, specificity, evidence, completeness.

Content:
%s

Format your response as a JSON object:
{"scores": {"clarity": n, "persuasiveness": n, "specificity": n,
"evidence": n, "completeness": n}, "overall_score": n,
"feedback": ["..."]}`, content)

	out, err := a.generate(ctx, "score_quality", a.reviewModel(), prompt)
	if err != nil {
		return map[string]interface{}{"error": err.Error()}
	}
	return coerceJSON(out)
}

// WebSurferAgent browses the web for supporting material
type WebSurferAgent struct {
	agentBase
	searchers []web_search.WebSearcher
}

// NewWebSurferAgent creates the web surfer with injected search providers
func NewWebSurferAgent(cfg *config.Config, llm LLMProvider, tel *telemetry.Telemetry, searchers []web_search.WebSearcher) *WebSurferAgent {
	return &WebSurferAgent{
		agentBase: agentBase{
			name: "WebSurferAgent",
			instructions: `You are the Web Surfer Agent. Find relevant information on the web:
statistics and data supporting grant proposals, grant writing best
practices, and examples of successful applications. Always cite your
sources.`,
			cfg:       cfg,
			llm:       llm,
			telemetry: tel,
			logger:    log.New(log.Writer(), "[WEBSURFER] ", log.LstdFlags),
		},
		searchers: searchers,
	}
}

// Browse searches the web and summarizes findings for the given query
func (a *WebSurferAgent) Browse(ctx context.Context, query string) (string, error) {
	if len(a.searchers) == 0 {
		a.logger.Printf("no search providers configured, browsing degraded")
		return "", fmt.Errorf("search capabilities not available")
	}

	snippets := gatherSnippets(ctx, a.searchers, a.telemetry, query, a.cfg.Search.MaxResults)
	prompt := fmt.Sprintf(`I searched for information about: %s. The search returned:

%s

Provide a comprehensive summary of the most relevant information and
include 3-5 key facts or statistics useful for a grant application. Cite
your sources.`, query, snippets)
	return a.generate(ctx, "search_web", a.researchModel(), prompt)
}

// FileSurferAgent analyzes document text for grant-relevant facts
type FileSurferAgent struct {
	agentBase
}

// NewFileSurferAgent creates the file surfer
func NewFileSurferAgent(cfg *config.Config, llm LLMProvider, tel *telemetry.Telemetry) *FileSurferAgent {
	return &FileSurferAgent{agentBase: agentBase{
		name: "FileSurferAgent",
		instructions: `You are the File Surfer Agent. Extract relevant information from
documents for grant applications: requirements, guidelines, eligibility
criteria, funding priorities, deadlines and budget constraints. Format
extracted information for use by other agents.`,
		cfg:       cfg,
		llm:       llm,
		telemetry: tel,
		logger:    log.New(log.Writer(), "[FILESURFER] ", log.LstdFlags),
	}}
}

// ReviewDocument extracts grant-relevant key points from document text
func (a *FileSurferAgent) ReviewDocument(ctx context.Context, text string) (string, error) {
	prompt := fmt.Sprintf(`I have a document with the following content:

%s

Extract the key information relevant for a grant application. Identify any
specific requirements or guidelines, eligibility criteria, funding
priorities, application deadlines, and budget constraints. Format your
response as a structured summary.`, utils.FirstN(text, 6000))
	return a.generate(ctx, "process_file", a.reviewModel(), prompt)
}

// ScraperAgent extracts structured information from live web pages
type ScraperAgent struct {
	agentBase
	fetcher web_fetch.WebFetcher
}

// NewScraperAgent creates the scraper with an injected page fetcher
func NewScraperAgent(cfg *config.Config, llm LLMProvider, tel *telemetry.Telemetry, fetcher web_fetch.WebFetcher) *ScraperAgent {
	return &ScraperAgent{
		agentBase: agentBase{
			name: "ScraperAgent",
			instructions: `You are the Scraper Agent. Extract relevant information from website
content: mission statements, program descriptions, eligibility criteria,
deadlines and other information useful for grant applications. Structure
the extracted information for other agents.`,
			cfg:       cfg,
			llm:       llm,
			telemetry: tel,
			logger:    log.New(log.Writer(), "[SCRAPER] ", log.LstdFlags),
		},
		fetcher: fetcher,
	}
}

// Scrape renders a page and summarizes its grant-relevant content
func (a *ScraperAgent) Scrape(ctx context.Context, url string) (string, error) {
	if a.fetcher == nil {
		return "", fmt.Errorf("page fetching not available")
	}

	page, err := a.fetcher.Exec(ctx, url)
	if err != nil {
		a.logger.Printf("fetch %s failed: %v", url, err)
		return "", fmt.Errorf("fetch %s: %w", url, err)
	}

	prompt := fmt.Sprintf(`The website at %s (title: %q) contains:

%s

Extract the information relevant for a grant application in a structured
format: mission statements, program descriptions, eligibility criteria,
deadlines, and anything else useful.`, url, page.Title, utils.FirstN(page.Text, 8000))
	return a.generate(ctx, "scrape_website", a.researchModel(), prompt)
}
