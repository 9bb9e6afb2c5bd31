package metadata

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/moolinks/backend/internal/models"
)

// LinkMetadataUpdater persists resolved metadata onto a stored link.
type LinkMetadataUpdater interface {
	Update(ctx context.Context, userID, linkID string, patch models.LinkPatch) (models.Link, error)
}

// BackfillConfig controls the concurrency characteristics of the backfiller.
type BackfillConfig struct {
	QueueSize int
	Workers   int
	// Timeout bounds a single job, lookup and write included.
	Timeout time.Duration
}

// BackfillJob asks for metadata of an already stored link. ReplaceTitle is set
// when the stored title is a placeholder (typically the hostname).
type BackfillJob struct {
	Link         models.Link
	ReplaceTitle bool
}

// Backfiller resolves metadata for stored links in the background.
type Backfiller struct {
	provider Provider
	updater  LinkMetadataUpdater
	logger   *slog.Logger
	timeout  time.Duration

	jobs   chan BackfillJob
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

var (
	// ErrBackfillClosed is returned by Enqueue after Shutdown.
	ErrBackfillClosed = errors.New("metadata backfill closed")
	// ErrBackfillQueueFull is returned by Enqueue when no queue slot is free.
	ErrBackfillQueueFull = errors.New("metadata backfill queue full")
)

// NewBackfiller starts cfg.Workers goroutines draining the job queue.
func NewBackfiller(provider Provider, updater LinkMetadataUpdater, cfg BackfillConfig, logger *slog.Logger) *Backfiller {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())

	b := &Backfiller{
		provider: provider,
		updater:  updater,
		logger:   logger,
		timeout:  cfg.Timeout,
		jobs:     make(chan BackfillJob, cfg.QueueSize),
		ctx:      ctx,
		cancel:   cancel,
	}

	b.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go b.worker()
	}

	return b
}

// Enqueue schedules a job without blocking. Callers treat a full queue as a
// skipped enhancement; the link is already stored.
func (b *Backfiller) Enqueue(job BackfillJob) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return ErrBackfillClosed
	}

	select {
	case b.jobs <- job:
		return nil
	default:
		return ErrBackfillQueueFull
	}
}

// Shutdown stops accepting jobs and waits for queued ones to finish. When ctx
// expires first, in-flight lookups are cancelled and ctx.Err() is returned.
func (b *Backfiller) Shutdown(ctx context.Context) error {
	b.mu.Lock()
	if !b.closed {
		b.closed = true
		close(b.jobs)
	}
	b.mu.Unlock()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		b.cancel()
		return ctx.Err()
	case <-done:
		b.cancel()
		return nil
	}
}

func (b *Backfiller) worker() {
	defer b.wg.Done()

	for job := range b.jobs {
		if b.ctx.Err() != nil {
			continue
		}
		b.handleJob(job)
	}
}

func (b *Backfiller) handleJob(job BackfillJob) {
	if b.provider == nil || b.updater == nil {
		b.logger.Error("metadata backfill missing dependencies", "hasProvider", b.provider != nil, "hasUpdater", b.updater != nil)
		return
	}

	ctx, cancel := context.WithTimeout(b.ctx, b.timeout)
	defer cancel()

	link := job.Link
	result, err := b.provider.Lookup(ctx, link.URL)
	if err != nil {
		b.logger.Info("metadata backfill lookup failed", "linkId", link.ID, "url", link.URL, "error", err)
		return
	}

	patch := backfillPatch(job, result)
	if patch.Empty() {
		return
	}

	if _, err := b.updater.Update(ctx, link.UserID, link.ID, patch); err != nil {
		b.logger.Error("metadata backfill update failed", "linkId", link.ID, "error", err)
	}
}

func backfillPatch(job BackfillJob, result Result) models.LinkPatch {
	var patch models.LinkPatch
	if job.ReplaceTitle && result.Title != "" && result.Title != job.Link.Title {
		title := result.Title
		patch.Title = &title
	}
	if job.Link.ThumbnailURL == nil && result.ThumbnailURL != nil {
		patch.SetThumbnail = true
		patch.ThumbnailURL = result.ThumbnailURL
	}
	return patch
}
