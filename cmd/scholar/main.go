package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"deepscholar/internal/config"
	"deepscholar/internal/embedding"
	"deepscholar/internal/llm"
	"deepscholar/internal/logging"
	"deepscholar/internal/memory"
	"deepscholar/internal/pipeline"
	"deepscholar/internal/store"
	"deepscholar/internal/tools"
	"deepscholar/internal/types"
)

var (
	// Global flags
	verbose   bool
	apiKey    string
	workspace string
	noApprove bool

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "scholar",
	Short: "deepscholar - automated academic research assistant",
	Long: `deepscholar collects papers from scholarly sources, screens them,
extracts structured evidence from full text, and produces a
citation-grounded synthesis report.

Run "scholar chat" for the conversational interface or "scholar research"
for a one-shot pipeline run.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zapCfg := zap.NewProductionConfig()
		if verbose {
			zapCfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zapCfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return logging.Initialize(workspace)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.CloseAll()
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// app bundles the wired subsystems shared by the subcommands.
type app struct {
	cfg      *config.Config
	kv       store.KV
	local    *store.LocalStore
	registry *tools.Registry
	cache    *tools.Cache
	llm      types.LLMClient
	embedder types.Embedder
	fabric   *memory.Fabric
	pipe     *pipeline.Pipeline
}

// buildApp wires every subsystem from configuration.
func buildApp(ctx context.Context, progress types.ProgressFunc, approval types.ApprovalFunc) (*app, error) {
	cfg, err := config.Load(workspace)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if apiKey != "" {
		cfg.LLM.APIKey = apiKey
	}

	var kv store.KV
	if cfg.Store.RedisAddr != "" {
		kv, err = store.NewRedisKV(ctx, cfg.Store.RedisAddr, cfg.Store.RedisPassword, cfg.Store.RedisDB)
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
	} else {
		logger.Info("no redis configured, using in-memory KV")
		kv = store.NewMemoryKV()
	}

	local, err := store.NewLocalStore(cfg.Store.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("open local store: %w", err)
	}

	var llmClient types.LLMClient
	var embedder types.Embedder
	if cfg.LLM.APIKey != "" {
		client, err := llm.NewGeminiClient(ctx, cfg.LLM.APIKey, cfg.LLM.Model, cfg.LLM.Timeout)
		if err != nil {
			return nil, fmt.Errorf("create llm client: %w", err)
		}
		llmClient = client

		engine, err := embedding.NewGenAIEngine(cfg.LLM.APIKey, cfg.LLM.EmbeddingModel)
		if err != nil {
			return nil, fmt.Errorf("create embedder: %w", err)
		}
		embedder = engine
	} else {
		logger.Warn("no API key configured, running with heuristics only")
		embedder = embedding.NewHashEngine(256)
	}

	registry := tools.NewRegistry()
	if err := tools.RegisterBuiltins(registry, cfg.Search.ToolTimeout, cfg.Search.UserAgent, llmClient); err != nil {
		return nil, err
	}
	cache := tools.NewCache(kv)

	pipe := pipeline.New(pipeline.Deps{
		Config:   cfg,
		KV:       kv,
		Local:    local,
		Registry: registry,
		Cache:    cache,
		LLM:      llmClient,
		Embedder: embedder,
		Approval: approval,
		Progress: progress,
	})

	return &app{
		cfg:      cfg,
		kv:       kv,
		local:    local,
		registry: registry,
		cache:    cache,
		llm:      llmClient,
		embedder: embedder,
		fabric:   memory.NewFabric(kv),
		pipe:     pipe,
	}, nil
}

func (a *app) close() {
	if err := a.local.Close(); err != nil {
		logger.Warn("local store close failed", zap.Error(err))
	}
	if err := a.kv.Close(); err != nil {
		logger.Warn("kv close failed", zap.Error(err))
	}
}

// signalContext cancels on SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sig:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sig)
	}()
	return ctx, cancel
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", "", "LLM API key (overrides config and env)")
	rootCmd.PersistentFlags().StringVar(&workspace, "workspace", ".", "workspace directory")
	rootCmd.PersistentFlags().BoolVar(&noApprove, "yes", false, "auto-approve all gates")

	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(researchCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
