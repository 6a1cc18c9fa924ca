package main

import (
	"context"
	"fmt"
	"sync"

	"github.com/harmonix-run/harmonix/internal/canon"
	"github.com/harmonix-run/harmonix/internal/chatservice"
	"github.com/harmonix-run/harmonix/internal/config"
	"github.com/harmonix-run/harmonix/internal/exec"
	"github.com/harmonix-run/harmonix/internal/observability"
	"github.com/harmonix-run/harmonix/internal/scripts"
	"github.com/harmonix-run/harmonix/internal/sessions"
	"github.com/harmonix-run/harmonix/internal/toolservice"
)

// defaultConfigName is the config file harmonix looks for in the working
// directory when --config is not given.
const defaultConfigName = "harmonix.yaml"

func resolveConfigPath(path string) string {
	if path == "" {
		return defaultConfigName
	}
	return path
}

var (
	metricsOnce sync.Once
	metrics     *observability.Metrics
)

// sharedMetrics returns a process-wide Metrics instance. buildEngine can run
// more than once per process (once per CLI command invocation in tests), and
// observability.NewMetrics registers with Prometheus's default registry, so a
// second call would panic on duplicate registration.
func sharedMetrics() *observability.Metrics {
	metricsOnce.Do(func() {
		metrics = observability.NewMetrics()
	})
	return metrics
}

// engine bundles the collaborators a CLI command needs: the loaded config,
// a logger, a tracer, a process-wide metrics instance, the session service,
// and a script loader for the register command.
type engine struct {
	Config  *config.Config
	Logger  *observability.Logger
	Tracer  *observability.Tracer
	Metrics *observability.Metrics
	Service *sessions.Service
	Loader  *scripts.Loader
	closers []func() error
}

func (e *engine) Close() error {
	var firstErr error
	for _, closer := range e.closers {
		if err := closer(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// buildEngine loads configuration at configPath and wires every collaborator
// the session service needs: a store triple, a lock provider, a chat
// collaborator, a tool registry, and the step interpreter.
func buildEngine(configPath string) (*engine, error) {
	cfg, err := config.Load(resolveConfigPath(configPath))
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	tracer, shutdownTracer := observability.NewTracer(observability.TraceConfig{
		ServiceName:    "harmonix",
		ServiceVersion: version,
		Environment:    cfg.Tracing.Environment,
		Endpoint:       cfg.Tracing.Endpoint,
		SamplingRate:   cfg.Tracing.SampleRate,
		EnableInsecure: cfg.Tracing.Insecure,
	})

	e := &engine{Config: cfg, Logger: logger, Tracer: tracer, Metrics: sharedMetrics()}
	e.closers = append(e.closers, func() error { return shutdownTracer(context.Background()) })

	var (
		scriptStore  sessions.ScriptStore
		sessionStore sessions.SessionStore
		indexStore   sessions.SessionIndexStore
	)

	switch cfg.Store.Backend {
	case "sqlite":
		store, err := sessions.NewSQLStore(sessions.SQLStoreConfig{Path: cfg.Store.Path})
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		e.closers = append(e.closers, store.Close)
		scriptStore, sessionStore, indexStore = store, store, store
	default:
		store := sessions.NewMemoryStore()
		scriptStore, sessionStore, indexStore = store, store, store
	}

	locks := sessions.NewLocalLockProvider(cfg.Lock.Timeout)

	chat, err := buildChatService(cfg.Chat)
	if err != nil {
		// A script whose messages never reach an assistant-message step
		// never calls the chat collaborator, so a missing key only fails
		// the commands that actually need it, not registration/inspection.
		chat = unconfiguredChat{err: err}
	}

	tools := toolservice.NewRegistry(toolservice.RegistryConfig{PerToolTimeout: cfg.Tools.PerToolTimeout})
	interp := exec.NewInterpreter(chat, tools)

	e.Service = sessions.NewService(scriptStore, sessionStore, indexStore, locks, interp, tools)
	e.Loader = scripts.NewLoader(scriptStore, canon.NewJSONSchemaValidator())

	return e, nil
}

// unconfiguredChat stands in for a chat collaborator that failed to build
// (almost always a missing API key), deferring the failure until a script
// actually reaches an assistant-message step.
type unconfiguredChat struct {
	err error
}

func (u unconfiguredChat) GetAssistantReply(ctx context.Context, history []exec.HistoryEntry, filter func(exec.HistoryEntry) bool) (string, error) {
	return "", fmt.Errorf("chat collaborator unavailable: %w", u.err)
}

func buildChatService(cfg config.ChatConfig) (exec.ChatService, error) {
	switch cfg.Provider {
	case "openai":
		return chatservice.NewOpenAIChat(chatservice.OpenAIChatConfig{
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			MaxRetries: cfg.MaxRetries,
			RetryDelay: cfg.RetryDelay,
		})
	default:
		return chatservice.NewAnthropicChat(chatservice.AnthropicChatConfig{
			APIKey:     cfg.APIKey,
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			MaxRetries: cfg.MaxRetries,
			RetryDelay: cfg.RetryDelay,
		})
	}
}
