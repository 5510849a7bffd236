// Package app wires the daemon together: storage, local state, remote
// client, orchestrator, compaction and the HTTP server.
package app

import (
	"context"
	"fmt"
	"net/http"

	"golang.org/x/time/rate"

	"chatsync/pkg/auth"
	"chatsync/pkg/banner"
	"chatsync/pkg/config"
	"chatsync/pkg/llm"
	"chatsync/pkg/localstate"
	"chatsync/pkg/remote"
	"chatsync/pkg/storage"
	"chatsync/pkg/syncer"

	"chatsync/internal/compaction"
)

// schemaVersion is bumped when the at-rest layout changes; Migrate runs
// the upgrade set on mismatch.
const schemaVersion = "1"

// App encapsulates the daemon components and lifecycle.
type App struct {
	cfg     *config.Config
	addr    string
	dbPath  string
	source  string
	version string

	store  storage.Store
	local  *localstate.State
	orch   *syncer.Orchestrator
	tokens auth.TokenProvider

	srv        *http.Server
	stopCompat context.CancelFunc
}

// New initializes everything that does not need a running context: the
// pebble store, local state, remote client and orchestrator. Call Run to
// start the scheduler and HTTP server.
func New(cfg *config.Config, addr, dbPath, source, version string) (*App, error) {
	if err := validateConfig(cfg, dbPath); err != nil {
		return nil, err
	}
	store, err := storage.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open local store: %w", err)
	}
	if _, err := storage.Migrate(store, schemaVersion, localstate.NormalizeStoredConversation); err != nil {
		store.Close()
		return nil, fmt.Errorf("migrate local store: %w", err)
	}
	local, err := localstate.Load(store)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("load local state: %w", err)
	}

	tokens := auth.NewEnvProvider(cfg.Remote.TokenEnv)

	var rc *remote.Client
	if cfg.Remote.BaseURL != "" {
		rc = remote.New(cfg.Remote.BaseURL)
		if d := cfg.Remote.Timeout.Duration(); d > 0 {
			rc.SetTimeout(d)
		}
	}

	var gen llm.Generator = llm.Noop{}
	if cfg.LLM.APIKey != "" {
		gen = llm.NewOpenAI(cfg.LLM.APIKey, cfg.LLM.BaseURL, cfg.LLM.Model)
	}

	var throttle *rate.Limiter
	if cfg.Sync.ThrottleRPS > 0 {
		burst := cfg.Sync.ThrottleBurst
		if burst <= 0 {
			burst = 1
		}
		throttle = rate.NewLimiter(rate.Limit(cfg.Sync.ThrottleRPS), burst)
	}

	var rs syncer.Remote
	if rc != nil {
		rs = rc
	} else {
		rs = unconfiguredRemote{}
	}

	a := &App{
		cfg:     cfg,
		addr:    addr,
		dbPath:  dbPath,
		source:  source,
		version: version,
		store:   store,
		local:   local,
		tokens:  tokens,
		orch:    syncer.New(local, rs, tokens, gen, throttle),
	}
	return a, nil
}

// Run starts the compaction scheduler and the HTTP server, and blocks
// until ctx is canceled or a fatal server error occurs.
func (a *App) Run(ctx context.Context) error {
	cancel, err := compaction.Start(ctx, a.cfg.Compaction, a.local)
	if err != nil {
		return err
	}
	a.stopCompat = cancel

	a.printBanner()

	errCh := a.startHTTP(ctx)

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// Close releases resources in reverse start order.
func (a *App) Close() error {
	if a.stopCompat != nil {
		a.stopCompat()
	}
	if a.srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
		defer cancel()
		_ = a.srv.Shutdown(ctx)
	}
	return a.store.Close()
}

func (a *App) printBanner() {
	ver := a.version
	if ver == "" {
		ver = "dev"
	}
	banner.Print(a.cfg, a.addr, a.dbPath, a.source, ver)
}

// unconfiguredRemote stands in when no remote base URL is set; every
// call reports the store as unavailable so the daemon still works fully
// offline.
type unconfiguredRemote struct{}

func (unconfiguredRemote) Fetch(context.Context, string, string) ([]byte, error) {
	return nil, fmt.Errorf("%w: remote store not configured", remote.ErrTransient)
}

func (unconfiguredRemote) Put(context.Context, string, string, []byte) error {
	return fmt.Errorf("%w: remote store not configured", remote.ErrTransient)
}

func (unconfiguredRemote) Delete(context.Context, string, string) error {
	return fmt.Errorf("%w: remote store not configured", remote.ErrTransient)
}
