package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"hearth/internal/agent"
	"hearth/internal/assistant"
	"hearth/internal/booking"
	"hearth/internal/config"
	"hearth/internal/draft"
	hearthErrors "hearth/internal/errors"
	"hearth/internal/llm"
	"hearth/internal/logging"
	"hearth/internal/observability"
	"hearth/internal/session"
	"hearth/internal/session/filestore"
	"hearth/internal/storage/sqlitestore"
)

var (
	version = "0.3.0"

	configPath string
	debug      bool
)

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "hearth",
		Short: "Conversational event planning for homeschool groups",
		Long: `Hearth is an AI assistant that helps homeschool group staff plan and
book events through conversation. It drafts events from chat, checks the
calendar for conflicts, suggests pricing from similar past events, and
publishes the finished draft to the event catalog.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat()
		},
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default: hearth-config.json in $HOME or .)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(newChatCommand())
	rootCmd.AddCommand(newVersionCommand())

	return rootCmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("hearth %s\n", version)
		},
	}
}

func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.LoadFile(configPath)
	}
	return config.Load()
}

// buildAssistant turns the loaded configuration into a wired assistant plus
// a cleanup function for backends that hold resources.
func buildAssistant(cfg *config.Config) (*assistant.Assistant, func(), error) {
	if debug {
		logging.SetLevel(logging.DEBUG)
	} else {
		logging.SetLevel(logging.ParseLevel(cfg.LogLevel))
	}

	metrics := observability.NewMetrics()

	factory := llm.NewFactory()
	factory.SetMetrics(metrics)
	factory.SetRetryConfig(hearthErrors.RetryConfig{
		MaxAttempts:  cfg.Retry.MaxAttempts,
		BaseDelay:    cfg.Retry.BaseDelay(),
		MaxDelay:     cfg.Retry.MaxDelay(),
		JitterFactor: 0.25,
	})
	factory.SetBreakerConfig(hearthErrors.CircuitBreakerConfig{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		SuccessThreshold: 2,
		Timeout:          cfg.Breaker.Cooldown(),
	})

	client, err := factory.GetClient(llm.ProviderConfig{
		Provider: cfg.Provider.Name,
		Model:    cfg.Provider.Model,
		APIKey:   cfg.Provider.APIKey,
		BaseURL:  cfg.Provider.BaseURL,
		Timeout:  cfg.Provider.TimeoutSeconds,
	})
	if err != nil {
		return nil, nil, err
	}

	sessions, drafts, cleanup, err := buildStores(cfg.Store)
	if err != nil {
		return nil, nil, err
	}

	a, err := assistant.New(assistant.Options{
		Client:   client,
		Sessions: sessions,
		Drafts:   drafts,
		Catalog:  booking.NewMemoryCatalog(),
		Agent: agent.Config{
			MaxIterations:  cfg.Agent.MaxIterations,
			HistoryLimit:   cfg.Agent.HistoryLimit,
			RequestTimeout: time.Duration(cfg.Provider.TimeoutSeconds) * time.Second,
			Temperature:    cfg.Provider.Temperature,
			MaxTokens:      cfg.Provider.MaxTokens,
		},
		Metrics: metrics,
	})
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return a, cleanup, nil
}

func buildStores(cfg config.StoreConfig) (session.Store, draft.Store, func(), error) {
	noop := func() {}
	switch strings.ToLower(cfg.Backend) {
	case "memory":
		return session.NewMemoryStore(), draft.NewMemoryStore(), noop, nil

	case "file":
		// The file backend persists sessions only; draft history lives for
		// the process lifetime.
		sessions, err := filestore.New(cfg.Path)
		if err != nil {
			return nil, nil, nil, err
		}
		return sessions, draft.NewMemoryStore(), noop, nil

	case "sqlite":
		db, err := sqlitestore.Open(cfg.Path)
		if err != nil {
			return nil, nil, nil, err
		}
		return db.Sessions(), db.Drafts(), func() { _ = db.Close() }, nil

	default:
		return nil, nil, nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}
