package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mentora-bot/mentora/common/version"
	"github.com/mentora-bot/mentora/internal/mentora/classify"
	"github.com/mentora-bot/mentora/internal/mentora/config"
	"github.com/mentora-bot/mentora/internal/mentora/decision"
	"github.com/mentora-bot/mentora/internal/mentora/gateway"
	"github.com/mentora-bot/mentora/internal/mentora/memory"
	"github.com/mentora-bot/mentora/internal/mentora/nlp"
	"github.com/mentora-bot/mentora/internal/mentora/observability"
	"github.com/mentora-bot/mentora/internal/mentora/query"
	"github.com/mentora-bot/mentora/internal/mentora/reminder"
	"github.com/mentora-bot/mentora/internal/mentora/resolver"
	"github.com/mentora-bot/mentora/internal/mentora/rules"
	"github.com/mentora-bot/mentora/internal/mentora/store"
)

var configFlag string

var rootCmd = &cobra.Command{
	Use:   "mentora",
	Short: "mentora - scheduling assistant intent resolver",
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP gateway and background workers",
	RunE:  runServe,
}

var resolveCmd = &cobra.Command{
	Use:   "resolve [text]",
	Short: "Resolve a single utterance and print the outcome as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runResolve,
}

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Rule table utilities",
}

var rulesCheckCmd = &cobra.Command{
	Use:   "check [file]",
	Short: "Validate a rule table file against the schema",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runRulesCheck,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.Info())
	},
}

var resolveUserFlag string

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Path to config file")
	resolveCmd.Flags().StringVarP(&resolveUserFlag, "user", "u", "cli", "User id to resolve as")
	rulesCmd.AddCommand(rulesCheckCmd)
	rootCmd.AddCommand(serveCmd, resolveCmd, rulesCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// app bundles the wired components shared by serve and resolve.
type app struct {
	cfg      *config.Config
	store    store.Store
	patterns *classify.PatternClassifier
	memories *memory.Manager
	contexts *memory.ContextStore
	resolver *resolver.Resolver
}

// buildApp loads configuration and wires the resolution pipeline.
func buildApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configFlag)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	observability.Setup(cfg.Logging.Level, cfg.Logging.Format)

	st, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	table, err := loadRules(cfg)
	if err != nil {
		st.Close()
		return nil, err
	}
	patterns := classify.NewPatternClassifier(table)

	if cfg.Rules.Watch && cfg.Rules.Path != "" {
		go func() {
			err := rules.Watch(ctx, cfg.Rules.Path, func(t *rules.Table) {
				patterns.SetTable(t)
				slog.Info("rule table reloaded", "rules", t.Len())
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				slog.Warn("rule table hot reload stopped", "error", err)
			}
		}()
	}

	memories := memory.NewManager(st, memory.ManagerConfig{
		MaxRecords: cfg.Memory.MaxRecords,
		Cache: memory.CacheConfig{
			Capacity: cfg.Memory.CacheCapacity,
			TTL:      cfg.Memory.CacheTTL,
			MaxBytes: cfg.Memory.CacheMaxBytes,
		},
		FlushInterval:   cfg.Memory.FlushInterval,
		MaxFlushDelay:   cfg.Memory.MaxFlushDelay,
		ImmediateWrites: cfg.Memory.ImmediateWrites,
	})
	contexts := memory.NewContextStore(cfg.Memory.ContextTTL)

	var provider nlp.Provider
	if cfg.Classifier.APIKey != "" {
		provider = nlp.New(nlp.Config{
			APIKey:  cfg.Classifier.APIKey,
			BaseURL: cfg.Classifier.BaseURL,
			Model:   cfg.Classifier.Model,
			Timeout: cfg.Classifier.Timeout,
		})
	} else {
		slog.Warn("no classifier API key configured, running on pattern rules only")
	}

	var limiter *nlp.RateLimiter
	if cfg.Classifier.CallsPerMinute >= 0 {
		limiter = nlp.NewRateLimiter(cfg.Classifier.CallsPerMinute, 0)
	}

	res := resolver.New(resolver.Options{
		Patterns: patterns,
		Engine:   decision.NewEngine(),
		Provider: provider,
		Limiter:  limiter,
		Contexts: contexts,
		Memories: memories,
		Queries:  query.NewRouter(st, memories),
		Config: resolver.Config{
			ClassifyTimeout: cfg.Resolver.ClassifyTimeout,
			ContextTriggers: cfg.Resolver.ContextTriggers,
			DurableIntents:  cfg.Resolver.DurableIntents,
		},
	})

	return &app{
		cfg:      cfg,
		store:    st,
		patterns: patterns,
		memories: memories,
		contexts: contexts,
		resolver: res,
	}, nil
}

func (a *app) close() {
	a.memories.Close()
	if err := a.store.Close(); err != nil {
		slog.Warn("store close failed", "error", err)
	}
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.Database.Driver {
	case "sqlite":
		return store.NewSQLiteStore(cfg.Database.Path)
	case "postgres":
		return store.NewPostgresStore(ctx, cfg.Database.URL)
	case "memory":
		return store.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}
}

func loadRules(cfg *config.Config) (*rules.Table, error) {
	if cfg.Rules.Path == "" {
		return rules.Default(), nil
	}
	table, err := rules.LoadFile(cfg.Rules.Path)
	if err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}
	return table, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	if a.cfg.Reminder.Enabled {
		dispatcher, err := reminder.NewDispatcher(
			a.store,
			logNotifier{},
			a.cfg.Reminder.Schedule,
			a.cfg.Reminder.Lookahead,
		)
		if err != nil {
			return fmt.Errorf("create reminder dispatcher: %w", err)
		}
		dispatcher.Start()
		defer dispatcher.Stop()
	}

	srv := gateway.New(a.cfg.Server.Addr, a.resolver, a.memories, a.cfg.Server.Token)
	if err := srv.Start(ctx); err != nil {
		return err
	}
	defer srv.Stop()

	slog.Info("mentora started", "version", version.Version, "addr", a.cfg.Server.Addr)
	<-ctx.Done()
	slog.Info("shutting down")
	return nil
}

func runResolve(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	outcome := a.resolver.Resolve(ctx, resolveUserFlag, args[0])
	out, err := json.MarshalIndent(outcome, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func runRulesCheck(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		table := rules.Default()
		fmt.Printf("embedded rule table OK (%d rules)\n", table.Len())
		return nil
	}
	table, err := rules.LoadFile(args[0])
	if err != nil {
		return err
	}
	fmt.Printf("%s OK (%d rules)\n", args[0], table.Len())
	return nil
}

// logNotifier delivers reminders to the process log. Deployments with a
// real push channel plug their own reminder.Notifier in here.
type logNotifier struct{}

func (logNotifier) Send(_ context.Context, userID, message string) error {
	slog.Info("reminder", "user_id", userID, "message", message)
	return nil
}
