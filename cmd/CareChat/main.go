// CareChat is an interactive patient-facing assistant for hemorrhoid and
// constipation self-management. It classifies each patient message for red
// flag symptoms, grounds replies in a local document corpus, and persists
// conversation history per patient.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/openai/openai-go"

	"github.com/CareBranch/CareChat/internal/engine"
	"github.com/CareBranch/CareChat/internal/genai"
	"github.com/CareBranch/CareChat/internal/lockfile"
	"github.com/CareBranch/CareChat/internal/memory"
	"github.com/CareBranch/CareChat/internal/retrieval"
	"github.com/CareBranch/CareChat/internal/store"
	"github.com/CareBranch/CareChat/internal/triage"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for CareChat state data
	DefaultStateDir = "/var/lib/carechat"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "carechat.db"
	// DefaultPatientID is used when no patient identifier is supplied
	DefaultPatientID = "demo_patient"
)

func main() {
	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(config)
	initializeLogger(*flags.logLevel)

	// Records are overwritten whole at session end, so a second session for
	// the same patient would discard this one's history.
	if *flags.dbDriver != "memory" {
		lock, err := lockfile.AcquireSessionLock(*flags.stateDir, *flags.patientID)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		defer lock.Release()
	}

	st, err := buildStore(flags)
	if err != nil {
		slog.Error("Failed to open conversation store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	retriever, watcher, err := buildRetriever(*flags.docsDir)
	if err != nil {
		slog.Error("Failed to load document corpus", "error", err)
		os.Exit(1)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if watcher != nil {
		if err := watcher.Start(ctx); err != nil {
			slog.Warn("Corpus watcher failed to start, documents will not hot-reload", "error", err)
		} else {
			defer watcher.Stop()
		}
	}

	genaiClient, err := buildGenAIClient(flags)
	if err != nil {
		slog.Error("Failed to initialize GenAI client", "error", err)
		os.Exit(1)
	}

	systemPrompt := ""
	if *flags.promptFile != "" {
		systemPrompt, err = engine.LoadSystemPrompt(*flags.promptFile)
		if err != nil {
			slog.Error("Failed to load system prompt override", "error", err)
			os.Exit(1)
		}
	}

	classifier, err := triage.NewClassifier(triage.DefaultRules())
	if err != nil {
		slog.Error("Failed to compile red flag rules", "error", err)
		os.Exit(1)
	}

	orch, err := engine.NewOrchestrator(classifier, triage.NewComposer(), memory.NewMemory(st), retriever, genaiClient, systemPrompt, *flags.patientID)
	if err != nil {
		slog.Error("Failed to start patient session", "error", err)
		os.Exit(1)
	}

	if err := runChatLoop(ctx, orch, *flags.patientID); err != nil {
		slog.Error("Chat session failed", "error", err)
		os.Exit(1)
	}
}

// Config holds environment configuration
type Config struct {
	DbDriver    string
	DatabaseURL string
	StateDir    string
	OpenAIKey   string
	DocsDir     string
	PromptFile  string
	LogLevel    string
}

// Flags holds command line flag values
type Flags struct {
	patientID  *string
	stateDir   *string
	dbDriver   *string
	dbDSN      *string
	openaiKey  *string
	model      *string
	docsDir    *string
	promptFile *string
	logLevel   *string
}

func initializeLogger(level string) {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}

	config := Config{
		DbDriver:    os.Getenv("CARECHAT_DB_DRIVER"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		StateDir:    os.Getenv("CARECHAT_STATE_DIR"),
		OpenAIKey:   os.Getenv("OPENAI_API_KEY"),
		DocsDir:     os.Getenv("CARECHAT_DOCS_DIR"),
		PromptFile:  os.Getenv("CARECHAT_SYSTEM_PROMPT_FILE"),
		LogLevel:    os.Getenv("CARECHAT_LOG_LEVEL"),
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
	}
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
	}
	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		patientID:  flag.String("patient", DefaultPatientID, "patient identifier for this session"),
		stateDir:   flag.String("state-dir", config.StateDir, "state directory for CareChat data (overrides $CARECHAT_STATE_DIR)"),
		dbDriver:   flag.String("db-driver", config.DbDriver, "storage backend: sqlite3, postgres, or memory (overrides $CARECHAT_DB_DRIVER)"),
		dbDSN:      flag.String("db-dsn", config.DatabaseURL, "database DSN for the conversation store (overrides $DATABASE_URL)"),
		openaiKey:  flag.String("openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)"),
		model:      flag.String("model", "", "OpenAI chat model override"),
		docsDir:    flag.String("docs-dir", config.DocsDir, "directory of medical reference documents (overrides $CARECHAT_DOCS_DIR)"),
		promptFile: flag.String("system-prompt-file", config.PromptFile, "file overriding the built-in system prompt (overrides $CARECHAT_SYSTEM_PROMPT_FILE)"),
		logLevel:   flag.String("log-level", config.LogLevel, "log level: debug, info, warn, error (overrides $CARECHAT_LOG_LEVEL)"),
	}

	flag.Parse()

	// Re-anchor a defaulted SQLite path when only the state dir changed.
	if *flags.dbDSN == config.DatabaseURL && config.DatabaseURL == filepath.Join(config.StateDir, DefaultDBFileName) && *flags.stateDir != config.StateDir {
		*flags.dbDSN = filepath.Join(*flags.stateDir, DefaultDBFileName)
	}
	return flags
}

// buildStore opens the conversation store selected by driver and DSN.
func buildStore(flags Flags) (store.Store, error) {
	driver := *flags.dbDriver
	if driver == "" {
		driver = store.DetectDSNType(*flags.dbDSN)
	}

	switch driver {
	case "memory":
		slog.Info("Using in-memory store, conversations will not survive restart")
		return store.NewInMemoryStore(), nil
	case "postgres":
		slog.Info("Using PostgreSQL conversation store")
		return store.NewPostgresStore(store.WithPostgresDSN(*flags.dbDSN))
	case "sqlite3":
		slog.Info("Using SQLite conversation store", "path", *flags.dbDSN)
		return store.NewSQLiteStore(store.WithSQLiteDSN(*flags.dbDSN))
	default:
		return nil, fmt.Errorf("unknown database driver: %s", driver)
	}
}

// buildRetriever loads the document corpus and, when a directory is
// configured, a watcher that reloads it on file changes.
func buildRetriever(docsDir string) (retrieval.Retriever, *retrieval.Watcher, error) {
	retriever, err := retrieval.NewCorpusRetriever(docsDir)
	if err != nil {
		return nil, nil, err
	}
	if docsDir == "" {
		return retriever, nil, nil
	}
	watcher, err := retrieval.NewWatcher(retriever, docsDir)
	if err != nil {
		slog.Warn("Corpus watcher unavailable, documents will not hot-reload", "error", err)
		return retriever, nil, nil
	}
	return retriever, watcher, nil
}

func buildGenAIClient(flags Flags) (*genai.Client, error) {
	var opts []genai.Option
	if *flags.openaiKey != "" {
		opts = append(opts, genai.WithAPIKey(*flags.openaiKey))
	}
	if *flags.model != "" {
		opts = append(opts, genai.WithModel(openai.ChatModel(*flags.model)))
	}
	return genai.NewClient(opts...)
}

// runChatLoop reads patient messages from stdin until EOF or a quit
// command, saving the conversation on the way out.
func runChatLoop(ctx context.Context, orch *engine.Orchestrator, patientID string) error {
	defer func() {
		if err := orch.EndConversation(); err != nil {
			slog.Error("Failed to save conversation", "error", err)
		}
	}()

	fmt.Printf("CareChat session for %s. Type 'summary' for history, 'quit' to exit.\n", patientID)
	if summary, err := orch.Summary(); err == nil && summary.TotalConversations > 0 {
		fmt.Printf("Welcome back. You have %d saved conversation(s) with %d messages.\n",
			summary.TotalConversations, summary.TotalMessages)
	}
	fmt.Println()

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("You: ")
		if !scanner.Scan() {
			fmt.Println()
			return scanner.Err()
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}

		switch strings.ToLower(input) {
		case "quit", "exit", "bye":
			fmt.Println("Take care. Your conversation has been saved.")
			return nil
		case "summary":
			printSummary(orch)
			continue
		}

		reply, err := orch.Chat(ctx, input)
		if err != nil {
			slog.Error("Failed to generate reply", "error", err)
			fmt.Println("\nSorry, something went wrong generating a reply. Please try again.")
			continue
		}
		fmt.Printf("\nAssistant: %s\n\n", reply)
	}
}

func printSummary(orch *engine.Orchestrator) {
	summary, err := orch.Summary()
	if err != nil {
		slog.Error("Failed to load patient summary", "error", err)
		fmt.Println("\nCould not load your history right now.")
		return
	}
	fmt.Printf("\nSaved conversations: %d\n", summary.TotalConversations)
	fmt.Printf("Saved messages: %d\n", summary.TotalMessages)
	if !summary.LastConversation.IsZero() {
		fmt.Printf("Last conversation: %s\n", summary.LastConversation.Format("2006-01-02 15:04"))
	}
	fmt.Println()
}
