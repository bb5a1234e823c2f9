// Package app owns the application lifecycle: it spawns every actor in
// dependency order, dispatches CLI commands against them, and tears the
// tree down in reverse with a final log flush.
package app

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/lkml-tools/patch-hub/internal/cache"
	"github.com/lkml-tools/patch-hub/internal/config"
	"github.com/lkml-tools/patch-hub/internal/domain"
	"github.com/lkml-tools/patch-hub/internal/env"
	"github.com/lkml-tools/patch-hub/internal/fsys"
	"github.com/lkml-tools/patch-hub/internal/logging"
	"github.com/lkml-tools/patch-hub/internal/lore"
	"github.com/lkml-tools/patch-hub/internal/netio"
	"github.com/lkml-tools/patch-hub/internal/render"
	"github.com/lkml-tools/patch-hub/internal/shell"
	"github.com/lkml-tools/patch-hub/internal/store"
)

// EnvRenderer names the external renderer command for --html output.
const EnvRenderer = "PATCH_HUB_RENDERER"

// Handles collects every collaborator the App drives.
type Handles struct {
	Env    env.Env
	Fs     fsys.Fs
	Config config.Config
	Log    logging.Log
	Logger *slog.Logger
	Net    netio.Net
	Lore   lore.Lore
	Shell  shell.Shell
	Render render.Render

	Lists   cache.MailingListCache
	Feeds   cache.FeedCache
	Patches cache.PatchCache
	Seen    *store.SeenStore
}

// App is the lifecycle owner. Collaborators are spawned by Bootstrap
// and closed exactly once by Shutdown, in reverse start order.
type App struct {
	h     Handles
	exits []<-chan struct{}
	once  sync.Once
}

// New wraps pre-built handles without spawning anything. Shutdown
// still closes them.
func New(h Handles) *App {
	return &App{h: h}
}

// Handles exposes the collaborator set, for the TUI wiring.
func (a *App) Handles() Handles {
	return a.h
}

// Bootstrap spawns the full actor tree in dependency order: Env, Fs,
// Config (load), Log (then garbage collection), Net, LoreApi, caches
// and seen store, Shell, Render.
func Bootstrap() (*App, error) {
	a := &App{}

	environ, envExited := env.Spawn()
	a.h.Env = environ
	a.exits = append(a.exits, envExited)

	fs, fsExited := fsys.Spawn()
	a.h.Fs = fs
	a.exits = append(a.exits, fsExited)

	cfg, cfgExited := config.Spawn(environ)
	a.h.Config = cfg
	a.exits = append(a.exits, cfgExited)
	if err := cfg.Load(); err != nil {
		a.Shutdown()
		return nil, err
	}
	opts := cfg.Get()

	lg, logExited, err := logging.Spawn(opts.LogDir, logging.ParseLevel(opts.LogLevel))
	if err != nil {
		a.Shutdown()
		return nil, err
	}
	a.h.Log = lg
	a.h.Logger = logging.NewLogger(lg)
	a.exits = append(a.exits, logExited)

	for _, w := range cfg.Warnings() {
		a.h.Logger.Warn(w)
	}
	if err := lg.CollectGarbage(opts.MaxAge); err != nil {
		a.h.Logger.Warn("log garbage collection failed", "error", err)
	}

	net, netExited := netio.Spawn()
	a.h.Net = net
	a.exits = append(a.exits, netExited)

	api, loreExited := lore.Spawn(net, opts.LoreDomain)
	a.h.Lore = api
	a.exits = append(a.exits, loreExited)

	lists, listsExited := cache.SpawnMailingListCache(fs, api, a.h.Logger, opts.CacheDir)
	a.h.Lists = lists
	a.exits = append(a.exits, listsExited)

	feeds, feedsExited := cache.SpawnFeedCache(fs, api, a.h.Logger, opts.CacheDir)
	a.h.Feeds = feeds
	a.exits = append(a.exits, feedsExited)

	patches, patchesExited := cache.SpawnPatchCache(fs, api, a.h.Logger, opts.CacheDir)
	a.h.Patches = patches
	a.exits = append(a.exits, patchesExited)

	seen, err := store.NewSeenStore(opts.CacheDir)
	if err != nil {
		a.h.Logger.Warn("seen store unavailable, tracking in memory only", "error", err)
		seen, _ = store.NewSeenStore("")
	}
	a.h.Seen = seen

	sh, shExited := shell.Spawn()
	a.h.Shell = sh
	a.exits = append(a.exits, shExited)

	rendererCmd, _ := environ.Get(EnvRenderer)
	rnd, rndExited := render.Spawn(sh, a.h.Logger, rendererCmd)
	a.h.Render = rnd
	a.exits = append(a.exits, rndExited)

	a.h.Logger.Info("started", "cache_dir", opts.CacheDir, "lore_domain", opts.LoreDomain)
	return a, nil
}

// Shutdown closes every collaborator in reverse start order. The log
// is flushed before its actor terminates so no record is lost.
// Idempotent.
func (a *App) Shutdown() {
	a.once.Do(func() {
		if a.h.Render != nil {
			a.h.Render.Close()
		}
		if a.h.Shell != nil {
			a.h.Shell.Close()
		}
		if a.h.Seen != nil {
			a.h.Seen.Close()
		}
		if a.h.Patches != nil {
			a.h.Patches.Close()
		}
		if a.h.Feeds != nil {
			a.h.Feeds.Close()
		}
		if a.h.Lists != nil {
			a.h.Lists.Close()
		}
		if a.h.Lore != nil {
			a.h.Lore.Close()
		}
		if a.h.Net != nil {
			a.h.Net.Close()
		}
		if a.h.Log != nil {
			a.h.Log.Flush()
			a.h.Log.Close()
		}
		if a.h.Config != nil {
			a.h.Config.Close()
		}
		if a.h.Fs != nil {
			a.h.Fs.Close()
		}
		if a.h.Env != nil {
			a.h.Env.Close()
		}
		for _, exited := range a.exits {
			<-exited
		}
	})
}

// ExitCode maps a command error to the process exit status: 0 for
// success, 2 for upstream failures with no cached fallback, 1 for
// everything else.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, domain.ErrTransport), errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrParse):
		return 2
	default:
		return 1
	}
}

func pageBounds(page, count int) (int, int, error) {
	if page < 0 || count <= 0 {
		return 0, 0, fmt.Errorf("%w: page must be >= 0 and count > 0", domain.ErrConfig)
	}
	start := page * count
	return start, start + count, nil
}
