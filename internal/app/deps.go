package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/moolinks/backend/internal/auth"
	"github.com/moolinks/backend/internal/bookmarks"
	"github.com/moolinks/backend/internal/config"
	"github.com/moolinks/backend/internal/db"
	"github.com/moolinks/backend/internal/handlers"
	"github.com/moolinks/backend/internal/listcache"
	"github.com/moolinks/backend/internal/metadata"
	"github.com/moolinks/backend/internal/middleware"
	"github.com/moolinks/backend/internal/realtime"
	"github.com/moolinks/backend/internal/repositories"
)

// rateLimitTTL is how long an idle client keeps its token bucket.
const rateLimitTTL = 10 * time.Minute

// services holds the wired collaborators plus the background pieces that
// need starting and stopping alongside the HTTP server.
type services struct {
	deps handlers.Dependencies

	folders  listcache.Folders
	links    listcache.Links
	cache    *listcache.Cache
	backfill *metadata.Backfiller
	importer bookmarks.Importer
	// listener is nil when realtime invalidation is disabled.
	listener *realtime.Listener
}

// buildDependencies wires together concrete implementations used by the HTTP handlers.
func buildDependencies(pool db.Pool, cfg config.Config, logger *slog.Logger) (*services, error) {
	if logger == nil {
		logger = slog.Default()
	}

	cache, err := listcache.New(cfg.ListCache.Size)
	if err != nil {
		return nil, fmt.Errorf("create list cache: %w", err)
	}

	folders := listcache.Folders{Cache: cache, Next: repositories.NewPostgresFolderRepository(pool)}
	links := listcache.Links{Cache: cache, Next: repositories.NewPostgresLinkRepository(pool)}

	resolver := metadata.NewResolver(nil, cfg.Metadata.Timeout)
	provider := metadata.NewCachingProvider(resolver, cfg.Metadata.CacheSize, cfg.Metadata.CacheTTL)

	// Backfilled metadata goes through the cached link store so list
	// snapshots of the owner are dropped.
	backfill := metadata.NewBackfiller(provider, links, metadata.BackfillConfig{
		QueueSize: cfg.Backfill.QueueSize,
		Workers:   cfg.Backfill.Workers,
		Timeout:   2 * cfg.Metadata.Timeout,
	}, logger)

	importer := bookmarks.Importer{Links: links, Backfill: backfill}

	sessions := auth.NewManager(cfg.Session.AccessTTL, cfg.Session.RefreshTTL, repositories.NewPostgresSessionStore(pool))

	svc := &services{
		deps: handlers.Dependencies{
			Users:           repositories.NewPostgresUserRepository(pool),
			Sessions:        sessions,
			Authenticator:   sessions,
			Folders:         folders,
			Links:           links,
			Metadata:        provider,
			Importer:        importer,
			AuthLimiter:     middleware.NewIPRateLimiter(cfg.RateLimit.AuthPerMinute, time.Minute, cfg.RateLimit.AuthBurst, rateLimitTTL),
			MetadataLimiter: middleware.NewIPRateLimiter(cfg.RateLimit.MetadataPerMinute, time.Minute, cfg.RateLimit.MetadataBurst, rateLimitTTL),
			CookieName:      cfg.Session.CookieName,
			CreateTimeout:   cfg.Metadata.CreateTimeout,
		},
		folders:  folders,
		links:    links,
		cache:    cache,
		backfill: backfill,
		importer: importer,
	}

	if pinger, ok := pool.(handlers.Pinger); ok {
		svc.deps.DB = pinger
	}

	if cfg.Realtime.Enabled {
		svc.listener = newInvalidationListener(cfg, cache, logger)
	}

	return svc, nil
}

// newInvalidationListener drops an owner's cached lists on every change
// notification for that owner. Notifications sent while the connection was
// down are lost, so every (re)connect drops the whole cache.
func newInvalidationListener(cfg config.Config, cache *listcache.Cache, logger *slog.Logger) *realtime.Listener {
	listener := realtime.NewListener(cfg.Realtime.Channel, realtime.PgxDialer(cfg.DatabaseURL), logger)
	listener.Subscribe(func(event realtime.Event) {
		cache.Invalidate(event.UserID)
	})
	listener.OnConnect = cache.InvalidateAll
	return listener
}

// start launches the background goroutines that outlive a single request.
// The returned channel reports the listener's exit.
func (s *services) start(ctx context.Context) <-chan error {
	done := make(chan error, 1)
	if s.listener == nil {
		close(done)
		return done
	}
	go func() {
		err := s.listener.Run(ctx)
		if errors.Is(err, context.Canceled) {
			err = nil
		}
		done <- err
		close(done)
	}()
	return done
}

// close drains the backfill queue, giving up when ctx expires.
func (s *services) close(ctx context.Context) error {
	if s.backfill == nil {
		return nil
	}
	if err := s.backfill.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown metadata backfill: %w", err)
	}
	return nil
}
