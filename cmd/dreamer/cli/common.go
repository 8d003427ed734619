package cli

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/dreamer/internal/companion"
	"github.com/felixgeelhaar/dreamer/internal/config"
	"github.com/felixgeelhaar/dreamer/internal/credential"
	"github.com/felixgeelhaar/dreamer/internal/gateway"
	"github.com/felixgeelhaar/dreamer/internal/guard"
	"github.com/felixgeelhaar/dreamer/internal/memory"
	"github.com/felixgeelhaar/dreamer/internal/observe"
	"github.com/felixgeelhaar/dreamer/internal/provider"
	"github.com/felixgeelhaar/dreamer/internal/runtime"
	"github.com/felixgeelhaar/dreamer/internal/store"
)

const shutdownTimeout = 30 * time.Second

// app holds everything a command needs, built once per invocation.
type app struct {
	cfg       *config.Config
	obs       *observe.Observer
	store     *store.SQLiteStore
	vault     *credential.Vault
	llm       provider.Provider
	cache     *memory.CachedEmbedder
	index     memory.Index
	gateway   *gateway.Gateway
	tasks     *runtime.TaskQueue
	companion *companion.Companion
	stop      context.CancelFunc
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if verbose {
		cfg.Log.Verbose = true
	}
	if jsonLogs {
		cfg.Log.JSON = true
	}
	return cfg, nil
}

func newObserver(cmd *cobra.Command, cfg *config.Config) *observe.Observer {
	if cfg.Log.JSON {
		return observe.NewJSON(cmd.ErrOrStderr(), cfg.Log.Verbose)
	}
	return observe.New(cmd.ErrOrStderr(), cfg.Log.Verbose)
}

// openStore opens the facts database and a vault over its configuration
// table.
func openStore(cfg *config.Config) (*store.SQLiteStore, *credential.Vault, error) {
	s, err := store.NewSQLiteStore(cfg.FactsDB())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to init store: %w", err)
	}
	m, err := credential.NewManager()
	if err != nil {
		s.Close()
		return nil, nil, fmt.Errorf("failed to init credentials: %w", err)
	}
	return s, credential.NewVault(s, m), nil
}

// newApp wires config, stores, providers and the companion. The caller must
// call close.
func newApp(cmd *cobra.Command) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	obs := newObserver(cmd, cfg)

	s, vault, err := openStore(cfg)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, obs: obs, store: s, vault: vault}

	if err := a.init(); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *app) init() error {
	cfg := a.cfg
	cfg.LLM.APIKey = a.resolveKey(cfg.LLM.Provider, cfg.LLM.APIKey)
	cfg.Embedding.APIKey = a.resolveKey(cfg.EmbeddingProvider(), cfg.Embedding.APIKey)

	res := cfg.Validate()
	for _, w := range res.Warnings {
		a.obs.Log().Warn().Str("warning", w).Msg("configuration")
	}
	if !res.Valid {
		return fmt.Errorf("invalid configuration: %s", strings.Join(res.Errors, "; "))
	}

	llm, err := a.newProvider()
	if err != nil {
		return err
	}
	a.llm = llm

	embedder, err := a.newEmbedder()
	if err != nil {
		return err
	}
	a.cache, err = memory.NewCachedEmbedder(embedder, cfg.Memory.EmbeddingCache)
	if err != nil {
		return err
	}

	opts := memory.Options{IDMode: memory.IDMode(cfg.Memory.IDMode)}
	switch cfg.Memory.Backend {
	case config.BackendSQLite:
		a.index = memory.NewSQLiteIndex(a.store, a.cache, opts)
	default:
		idx, err := memory.NewChromemIndex(cfg.ChromaDir(), a.cache, opts)
		if err != nil {
			return err
		}
		a.index = idx
	}

	a.tasks, err = runtime.NewTaskQueue(cfg.Workers, a.obs, runtime.WithBacklog(cfg.TaskBacklog))
	if err != nil {
		return err
	}

	a.gateway = gateway.New(a.store, a.index,
		gateway.WithDeduplicator(gateway.NewDeduplicator(cfg.Memory.Dedup)),
		gateway.WithObserver(a.obs),
	)

	// Extraction needs the model; without a Gemini key it would only fail.
	extract := !(strings.EqualFold(cfg.LLM.Provider, "gemini") && cfg.LLM.APIKey == "")
	a.companion = companion.New(a.llm, a.gateway, a.tasks,
		companion.WithGuard(guard.New(cfg.Guard)),
		companion.WithObserver(a.obs),
		companion.WithExtraction(extract),
	)

	bus := a.companion.Events()
	bus.SubscribeAll(a.logEvent)
	ctx, stop := context.WithCancel(context.Background())
	a.stop = stop
	go bus.ForwardTaskErrors(ctx, a.tasks.Errors())

	a.obs.Log().Info().
		Str("provider", a.llm.Name()).
		Str("backend", cfg.Memory.Backend).
		Int("memories", a.index.Count()).
		Msg("dreamer initialized")
	return nil
}

func (a *app) logEvent(e runtime.Event) {
	if e.Type == runtime.EventTaskFailed || e.Type == runtime.EventExtractionFailed {
		a.obs.Log().Warn().Str("event", string(e.Type)).Str("subject", e.Subject).Msg("background work failed")
		return
	}
	a.obs.Log().Info().Str("event", string(e.Type)).Str("subject", e.Subject).Msg("event")
}

// resolveKey prefers the environment over the encrypted configuration table.
func (a *app) resolveKey(kind, fromEnv string) string {
	if fromEnv != "" || !config.NeedsKey(kind) {
		return fromEnv
	}
	key, err := a.vault.Get(config.SecretKey(kind))
	if err != nil {
		a.obs.Log().Warn().Err(err).Str("provider", kind).Msg("failed to read stored api key")
		return ""
	}
	return key
}

func (a *app) newProvider() (provider.Provider, error) {
	cfg := a.cfg
	settings := provider.Settings{
		Kind:    cfg.LLM.Provider,
		APIKey:  cfg.LLM.APIKey,
		BaseURL: cfg.LLM.BaseURL,
		Model:   cfg.LLM.Model,
		CLIPath: cfg.LLM.CLIPath,
		CLIArgs: cfg.LLM.CLIArgs,
	}
	if strings.EqualFold(cfg.EmbeddingProvider(), cfg.LLM.Provider) {
		settings.EmbedModel = cfg.Embedding.Model
	}
	if strings.EqualFold(settings.Kind, "cli") && settings.CLIPath == "" {
		path, err := a.detectCLI()
		if err != nil {
			return nil, err
		}
		settings.CLIPath = path
	}

	p, err := provider.New(settings)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize provider: %w", err)
	}
	return p, nil
}

// newEmbedder reuses the chat provider unless a different embedding provider
// is configured.
func (a *app) newEmbedder() (memory.Embedder, error) {
	cfg := a.cfg
	if strings.EqualFold(cfg.EmbeddingProvider(), cfg.LLM.Provider) && cfg.Embedding.BaseURL == "" {
		return a.llm, nil
	}
	p, err := provider.New(provider.Settings{
		Kind:       cfg.EmbeddingProvider(),
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		EmbedModel: cfg.Embedding.Model,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedding provider: %w", err)
	}
	return p, nil
}

func (a *app) detectCLI() (string, error) {
	if path, _ := a.vault.Get("provider.cli.path"); path != "" {
		return path, nil
	}
	for _, t := range []string{"claude", "codex", "gemini", "llm"} {
		if path, err := exec.LookPath(t); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("no local CLI agents detected (tried claude, codex, gemini, llm)")
}

// close drains background work and releases every store. Safe on a
// partially built app.
func (a *app) close() {
	if a.tasks != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := a.tasks.Shutdown(ctx); err != nil {
			a.obs.Log().Warn().Err(err).Msg("background tasks did not finish")
		}
		cancel()
	}
	if a.stop != nil {
		a.stop()
	}
	if a.index != nil {
		if err := a.index.Close(); err != nil {
			a.obs.Log().Warn().Err(err).Msg("failed to close memory index")
		}
	}
	if a.cache != nil {
		a.cache.Close()
	}
	if a.store != nil {
		a.store.Close()
	}
	a.obs.Close()
}
