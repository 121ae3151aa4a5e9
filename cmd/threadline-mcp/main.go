// threadline-mcp exposes the cross-reference engine over MCP stdio so LLM
// clients can query and maintain the journal's relationship graph: similarity
// lookup, single-event and full-timeline analysis, pattern detection, tag
// suggestion and embedding maintenance.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/mpyne/threadline/internal/analysis"
	"github.com/mpyne/threadline/internal/classify"
	"github.com/mpyne/threadline/internal/embedding"
	"github.com/mpyne/threadline/internal/llm"
	"github.com/mpyne/threadline/internal/patterns"
	"github.com/mpyne/threadline/internal/settings"
	"github.com/mpyne/threadline/internal/similarity"
	"github.com/mpyne/threadline/internal/store"
	"github.com/mpyne/threadline/internal/tags"
)

type engine struct {
	db       *store.DB
	search   *similarity.Engine
	orch     *analysis.Orchestrator
	patterns *patterns.Detector
	tags     *tags.Engine
	cfg      *settings.Settings
}

func main() {
	// Log to stderr so stdout is clean for JSON-RPC
	log.SetOutput(os.Stderr)
	log.SetPrefix("[threadline-mcp] ")

	// Load .env file if present (don't error if missing)
	if err := godotenv.Load(); err == nil {
		log.Println("Loaded .env file")
	}

	dataDir := os.Getenv("THREADLINE_DATA")
	if dataDir == "" {
		dataDir = "data"
	}

	cfg, err := settings.Load(filepath.Join(dataDir, "settings.yaml"))
	if err != nil {
		log.Fatalf("Failed to load settings: %v", err)
	}

	db, err := store.Open(dataDir)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	provider, err := embedding.New(ctx, embedding.Config{
		Provider: cfg.Embedding.Provider,
		Model:    cfg.Embedding.Model,
		APIKey:   apiKeyFor(cfg.Embedding.Provider),
		BaseURL:  cfg.Embedding.BaseURL,
	})
	if err != nil {
		log.Printf("No embedding provider (%v); embed tools will fail", err)
	}

	chat, err := llm.New(llm.Config{
		Provider: cfg.Classifier.Provider,
		Model:    cfg.Classifier.Model,
		APIKey:   apiKeyFor(cfg.Classifier.Provider),
		BaseURL:  cfg.Classifier.BaseURL,
	})
	if err != nil {
		log.Printf("No LLM classifier (%v); using heuristic fallback", err)
		chat = nil
	}

	search := similarity.NewEngine(db)
	eng := &engine{
		db:       db,
		search:   search,
		orch:     analysis.New(db, search, classify.New(chat), provider),
		patterns: patterns.New(db),
		tags:     tags.New(search, db),
		cfg:      cfg,
	}

	s := server.NewMCPServer(
		"threadline-mcp",
		"1.0.0",
		server.WithToolCapabilities(true),
	)

	s.AddTool(findSimilarTool(), eng.handleFindSimilar)
	s.AddTool(analyzeEventTool(), eng.handleAnalyzeEvent)
	s.AddTool(analyzeTimelineTool(), eng.handleAnalyzeTimeline)
	s.AddTool(suggestTagsTool(), eng.handleSuggestTags)
	s.AddTool(detectPatternsTool(), eng.handleDetectPatterns)
	s.AddTool(embedMissingTool(), eng.handleEmbedMissing)
	s.AddTool(clearEmbeddingsTool(), eng.handleClearEmbeddings)

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
		os.Exit(1)
	}
}

func apiKeyFor(provider string) string {
	switch provider {
	case "openai":
		return os.Getenv("OPENAI_API_KEY")
	case "gemini":
		return os.Getenv("GEMINI_API_KEY")
	case "anthropic":
		return os.Getenv("ANTHROPIC_API_KEY")
	}
	return ""
}

func findSimilarTool() mcp.Tool {
	return mcp.NewTool("find_similar",
		mcp.WithDescription("Find events semantically similar to a given event, ranked by cosine similarity."),
		mcp.WithString("event_id", mcp.Required(), mcp.Description("Source event ID")),
		mcp.WithNumber("threshold", mcp.Description("Minimum similarity score (default: configured threshold)")),
		mcp.WithNumber("limit", mcp.Description("Maximum results (default 10)")),
	)
}

func (e *engine) handleFindSimilar(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := req.Params.Arguments.(map[string]any)
	eventID, _ := args["event_id"].(string)
	if eventID == "" {
		return mcp.NewToolResultError("event_id is required"), nil
	}
	threshold := e.cfg.SimilarityThreshold
	if t, ok := args["threshold"].(float64); ok {
		threshold = t
	}
	limit := 10
	if l, ok := args["limit"].(float64); ok && l > 0 {
		limit = int(l)
	}

	matches, err := e.search.FindSimilar(eventID, threshold, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("similarity search failed: %v", err)), nil
	}
	return jsonResult(matches)
}

func analyzeEventTool() mcp.Tool {
	return mcp.NewTool("analyze_event",
		mcp.WithDescription("Find and classify the events related to one event. Does not persist; returns the discovered relationships."),
		mcp.WithString("event_id", mcp.Required(), mcp.Description("Source event ID")),
		mcp.WithNumber("threshold", mcp.Description("Minimum similarity score (default: configured threshold)")),
	)
}

func (e *engine) handleAnalyzeEvent(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := req.Params.Arguments.(map[string]any)
	eventID, _ := args["event_id"].(string)
	if eventID == "" {
		return mcp.NewToolResultError("event_id is required"), nil
	}
	threshold := e.cfg.SimilarityThreshold
	if t, ok := args["threshold"].(float64); ok {
		threshold = t
	}

	result, err := e.orch.AnalyzeEvent(ctx, eventID, threshold)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("analysis failed: %v", err)), nil
	}
	return jsonResult(result)
}

func analyzeTimelineTool() mcp.Tool {
	return mcp.NewTool("analyze_timeline",
		mcp.WithDescription("Analyze the full timeline: classify every embedded event against its neighbors and persist the discovered cross-references. Reports partial failures, never aborts on one event."),
		mcp.WithNumber("threshold", mcp.Description("Minimum similarity score (default: configured threshold)")),
	)
}

func (e *engine) handleAnalyzeTimeline(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := req.Params.Arguments.(map[string]any)
	threshold := e.cfg.SimilarityThreshold
	if t, ok := args["threshold"].(float64); ok {
		threshold = t
	}

	run, err := e.orch.AnalyzeFullTimeline(ctx, threshold)
	if err != nil && run == nil {
		return mcp.NewToolResultError(fmt.Sprintf("analysis run failed: %v", err)), nil
	}

	out := map[string]any{
		"events_analyzed":    run.EventsAnalyzed,
		"references_written": run.ReferencesWritten,
		"cancelled":          run.Cancelled,
		"errors":             formatErrors(run.Errors),
	}
	return jsonResult(out)
}

func suggestTagsTool() mcp.Tool {
	return mcp.NewTool("suggest_tags",
		mcp.WithDescription("Suggest tags for an event based on the tags of its semantic neighbors."),
		mcp.WithString("event_id", mcp.Required(), mcp.Description("Event ID")),
		mcp.WithNumber("limit", mcp.Description("Maximum suggestions (default 5)")),
	)
}

func (e *engine) handleSuggestTags(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := req.Params.Arguments.(map[string]any)
	eventID, _ := args["event_id"].(string)
	if eventID == "" {
		return mcp.NewToolResultError("event_id is required"), nil
	}
	limit := 5
	if l, ok := args["limit"].(float64); ok && l > 0 {
		limit = int(l)
	}

	suggestions, err := e.tags.SuggestTags(eventID, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("tag suggestion failed: %v", err)), nil
	}
	return jsonResult(suggestions)
}

func detectPatternsTool() mcp.Tool {
	return mcp.NewTool("detect_patterns",
		mcp.WithDescription("Mine the timeline for recurring categories, temporal clusters and era-transition milestones."),
	)
}

func (e *engine) handleDetectPatterns(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	found, err := e.patterns.DetectPatterns()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("pattern detection failed: %v", err)), nil
	}
	return jsonResult(found)
}

func embedMissingTool() mcp.Tool {
	return mcp.NewTool("embed_missing",
		mcp.WithDescription("Generate embeddings for every event that does not have one yet."),
	)
}

func (e *engine) handleEmbedMissing(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	run, err := e.orch.GenerateMissingEmbeddings(ctx)
	if err != nil && run == nil {
		return mcp.NewToolResultError(fmt.Sprintf("embedding run failed: %v", err)), nil
	}

	out := map[string]any{
		"events_considered": run.EventsConsidered,
		"embedded":          run.Embedded,
		"cancelled":         run.Cancelled,
		"errors":            formatErrors(run.Errors),
	}
	return jsonResult(out)
}

func clearEmbeddingsTool() mcp.Tool {
	return mcp.NewTool("clear_embeddings",
		mcp.WithDescription("Delete every stored embedding. Required before switching embedding provider or model."),
	)
}

func (e *engine) handleClearEmbeddings(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := e.db.ClearEmbeddings(); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to clear embeddings: %v", err)), nil
	}
	return mcp.NewToolResultText("All embeddings cleared. Re-run embed_missing before analysis."), nil
}

func formatErrors(errs []analysis.EventError) []map[string]string {
	out := make([]map[string]string, 0, len(errs))
	for _, e := range errs {
		out = append(out, map[string]string{"event_id": e.EventID, "error": e.Err.Error()})
	}
	return out
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
