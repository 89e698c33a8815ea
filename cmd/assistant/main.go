// Package main provides the interactive chat client for the prebuilt
// assistant workflow. Each session runs on one checkpoint thread:
// submits start a fresh run or resume a clarification pause
// transparently, and /reset abandons the thread for a new one.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/stategraph/stategraph/internal/adapters/repository/memory"
	"github.com/stategraph/stategraph/internal/adapters/repository/sqlite"
	"github.com/stategraph/stategraph/pkg/prebuilt/assistant"
	"github.com/stategraph/stategraph/pkg/stategraph"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	var (
		saverKind = flag.String("saver", envOr("STATEGRAPH_SAVER", "memory"), "checkpoint saver: memory or sqlite")
		dbPath    = flag.String("db", envOr("STATEGRAPH_DB_PATH", "assistant.db"), "sqlite database path (saver=sqlite)")
		chatModel = flag.String("model", envOr("STATEGRAPH_CHAT_MODEL", ""), "chat model name override")
		verbose   = flag.Bool("verbose", false, "log run events")
	)
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel(*verbose),
	}))

	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return errors.New("OPENAI_API_KEY is not set")
	}

	var modelOpts []assistant.OpenAIOption
	if *chatModel != "" {
		modelOpts = append(modelOpts, assistant.WithChatModel(*chatModel))
	}
	model := assistant.NewOpenAIModel(apiKey, modelOpts...)

	ctx := context.Background()

	cfg := assistant.DefaultConfig()
	cfg.Model = model
	tools, cleanup, err := buildTools(ctx, model)
	if err != nil {
		return err
	}
	defer cleanup()
	cfg.Tools = tools

	graph, err := assistant.Build(cfg)
	if err != nil {
		return fmt.Errorf("build assistant graph: %w", err)
	}

	saver, closeSaver, err := openSaver(*saverKind, *dbPath)
	if err != nil {
		return err
	}
	defer closeSaver()

	rt := stategraph.NewRuntime(graph, stategraph.Options{
		Saver:  saver,
		Logger: logger,
	})

	return chat(ctx, rt)
}

// chat reads questions from stdin and prints answers until EOF or /quit.
func chat(ctx context.Context, rt *stategraph.Runtime) error {
	thread := stategraph.NewThreadID()
	fmt.Println("Assistant ready. Type a question, /reset to start over, /quit to exit.")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			fmt.Println()
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "/quit":
			return nil
		case line == "/reset":
			thread = rt.Reset(thread)
			fmt.Println("Conversation reset.")
			continue
		}

		result, err := rt.Submit(ctx, thread, stategraph.State{"question": line})
		if err != nil {
			fmt.Fprintln(os.Stderr, "run failed:", err)
			continue
		}

		if result.Paused() {
			fmt.Println(result.Interrupt.Message)
			continue
		}
		if answer, ok := result.Output["answer"].(string); ok {
			fmt.Println(answer)
		}
	}
}

// buildTools wires the pgvector retrieval tool when a database is
// configured; without one the agent answers from the model alone.
func buildTools(ctx context.Context, embedder assistant.Embedder) ([]assistant.Tool, func(), error) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		return nil, func() {}, nil
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("connect document store: %w", err)
	}
	tool := assistant.NewRetrievalTool(pool, embedder)
	return []assistant.Tool{tool}, pool.Close, nil
}

func openSaver(kind, dbPath string) (stategraph.Saver, func(), error) {
	switch kind {
	case "memory":
		return memory.NewSaver(nil), func() {}, nil
	case "sqlite":
		saver, err := sqlite.Open(dbPath, nil)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite saver: %w", err)
		}
		return saver, func() { _ = saver.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown saver %q (want memory or sqlite)", kind)
	}
}

func logLevel(verbose bool) slog.Level {
	if verbose {
		return slog.LevelDebug
	}
	return slog.LevelWarn
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
