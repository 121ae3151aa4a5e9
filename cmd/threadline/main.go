// threadline drives the journal's semantic cross-reference engine from the
// command line: embedding generation, timeline analysis, pattern detection
// and tag suggestion.
//
// Usage:
//
//	threadline [-data DIR] [-settings FILE] <command> [flags]
//
// Commands: embed, analyze, similar, suggest, patterns, clear-embeddings, stats
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"

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

func main() {
	dataDir := flag.String("data", "data", "Path to data directory")
	settingsPath := flag.String("settings", "", "Path to settings file (default <data>/settings.yaml)")
	eventID := flag.String("event", "", "Event ID (similar/suggest, optional for analyze/embed)")
	threshold := flag.Float64("threshold", -1, "Similarity threshold override")
	limit := flag.Int("limit", 10, "Result limit for similar/suggest")
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "usage: threadline [flags] <embed|analyze|similar|suggest|patterns|clear-embeddings|stats>")
		os.Exit(2)
	}
	command := flag.Arg(0)

	// Load .env file (optional - won't error if missing)
	if err := godotenv.Load(); err == nil {
		log.Println("[config] Loaded .env file")
	}

	if *settingsPath == "" {
		*settingsPath = filepath.Join(*dataDir, "settings.yaml")
	}
	cfg, err := settings.Load(*settingsPath)
	if err != nil {
		log.Fatalf("Failed to load settings: %v", err)
	}
	if *threshold < 0 {
		*threshold = cfg.SimilarityThreshold
	}

	db, err := store.Open(*dataDir)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	// Ctrl-C cancels long batch runs; partial results are still reported
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	search := similarity.NewEngine(db)

	switch command {
	case "embed":
		orch := newOrchestrator(ctx, db, search, cfg, true)
		runEmbed(ctx, orch, *eventID)
	case "analyze":
		orch := newOrchestrator(ctx, db, search, cfg, false)
		runAnalyze(ctx, orch, *eventID, *threshold)
	case "similar":
		runSimilar(search, *eventID, *threshold, *limit)
	case "suggest":
		runSuggest(search, db, *eventID, *limit)
	case "patterns":
		runPatterns(db)
	case "clear-embeddings":
		if err := db.ClearEmbeddings(); err != nil {
			log.Fatalf("Failed to clear embeddings: %v", err)
		}
		log.Println("All embeddings cleared; re-embed before running analysis")
	case "stats":
		runStats(db)
	default:
		log.Fatalf("Unknown command %q", command)
	}
}

// newOrchestrator wires the engine from settings. needProvider controls
// whether a missing embedding backend is fatal.
func newOrchestrator(ctx context.Context, db *store.DB, search *similarity.Engine, cfg *settings.Settings, needProvider bool) *analysis.Orchestrator {
	provider, err := embedding.New(ctx, embedding.Config{
		Provider: cfg.Embedding.Provider,
		Model:    cfg.Embedding.Model,
		APIKey:   apiKeyFor(cfg.Embedding.Provider),
		BaseURL:  baseURLFor(cfg.Embedding.BaseURL),
	})
	if err != nil {
		if needProvider {
			log.Fatalf("Failed to configure embedding provider: %v", err)
		}
		log.Printf("[config] No embedding provider: %v", err)
	}

	chat, err := llm.New(llm.Config{
		Provider: cfg.Classifier.Provider,
		Model:    cfg.Classifier.Model,
		APIKey:   apiKeyFor(cfg.Classifier.Provider),
		BaseURL:  baseURLFor(cfg.Classifier.BaseURL),
	})
	if err != nil {
		log.Printf("[config] No LLM classifier (%v), using heuristic fallback", err)
		chat = nil
	}

	return analysis.New(db, search, classify.New(chat), provider)
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

func baseURLFor(configured string) string {
	if url := os.Getenv("OLLAMA_URL"); url != "" {
		return url
	}
	return configured
}

func runEmbed(ctx context.Context, orch *analysis.Orchestrator, eventID string) {
	if eventID != "" {
		id, err := orch.GenerateEmbedding(ctx, eventID)
		if err != nil {
			log.Fatalf("Failed to embed event: %v", err)
		}
		log.Printf("Embedded event %s (embedding %s)", eventID, id)
		return
	}

	run, err := orch.GenerateMissingEmbeddings(ctx)
	if run != nil {
		log.Printf("Embedded %d of %d events, %d errors", run.Embedded, run.EventsConsidered, len(run.Errors))
		for _, e := range run.Errors {
			log.Printf("  %s: %v", e.EventID, e.Err)
		}
		if run.Cancelled {
			log.Println("Run cancelled; partial results above")
		}
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("Embedding run failed: %v", err)
	}
}

func runAnalyze(ctx context.Context, orch *analysis.Orchestrator, eventID string, threshold float64) {
	if eventID != "" {
		result, err := orch.AnalyzeEvent(ctx, eventID, threshold)
		if err != nil {
			log.Fatalf("Analysis failed: %v", err)
		}
		log.Printf("Event %s: %s", eventID, result.Status)
		for _, ref := range result.References {
			log.Printf("  %s  %s (%.2f): %s", ref.EventID, ref.Result.Type, ref.Result.Confidence, ref.Result.Explanation)
		}
		return
	}

	run, err := orch.AnalyzeFullTimeline(ctx, threshold)
	if run != nil {
		log.Printf("Analyzed %d events, wrote %d cross-references, %d errors",
			run.EventsAnalyzed, run.ReferencesWritten, len(run.Errors))
		for _, e := range run.Errors {
			log.Printf("  %s: %v", e.EventID, e.Err)
		}
		if run.Cancelled {
			log.Println("Run cancelled; partial results above")
		}
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("Analysis run failed: %v", err)
	}
}

func runSimilar(search *similarity.Engine, eventID string, threshold float64, limit int) {
	if eventID == "" {
		log.Fatal("similar requires -event")
	}
	matches, err := search.FindSimilar(eventID, threshold, limit)
	if err != nil {
		log.Fatalf("Similarity search failed: %v", err)
	}
	if len(matches) == 0 {
		log.Println("No similar events above threshold")
		return
	}
	for _, m := range matches {
		log.Printf("  %s  %.4f", m.EventID, m.Score)
	}
}

func runSuggest(search *similarity.Engine, db *store.DB, eventID string, limit int) {
	if eventID == "" {
		log.Fatal("suggest requires -event")
	}
	suggestions, err := tags.New(search, db).SuggestTags(eventID, limit)
	if err != nil {
		log.Fatalf("Tag suggestion failed: %v", err)
	}
	if len(suggestions) == 0 {
		log.Println("No tag suggestions (no similar events found)")
		return
	}
	for _, s := range suggestions {
		log.Printf("  %s  %.2f", s.TagName, s.Confidence)
	}
}

func runPatterns(db *store.DB) {
	found, err := patterns.New(db).DetectPatterns()
	if err != nil {
		log.Fatalf("Pattern detection failed: %v", err)
	}
	if len(found) == 0 {
		log.Println("No patterns detected")
		return
	}
	for _, p := range found {
		log.Printf("%s: %s", p.Type, p.Description)
		for _, m := range p.Matches {
			log.Printf("  %s (%d)", m.Label, m.Count)
		}
	}
}

func runStats(db *store.DB) {
	stats, err := db.Stats()
	if err != nil {
		log.Fatalf("Failed to get stats: %v", err)
	}
	log.Printf("Database: %s", db.Path())
	for _, table := range []string{"events", "event_tags", "event_embeddings", "cross_references"} {
		log.Printf("  %s: %d", table, stats[table])
	}
}
