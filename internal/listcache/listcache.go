// Package listcache keeps read-through copies of each owner's folder and link
// lists. Any write or change notification for an owner drops all of that
// owner's lists; cached lists are never patched in place.
package listcache

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/moolinks/backend/internal/metrics"
	"github.com/moolinks/backend/internal/models"
	"github.com/moolinks/backend/internal/repositories"
)

const defaultSize = 512

// allLinks is the links key for an unfiltered list.
const allLinks = ""

type ownerLists struct {
	mu         sync.Mutex
	folders    []models.Folder
	hasFolders bool
	links      map[string][]models.Link
}

// Cache holds list snapshots for recently active owners.
type Cache struct {
	owners *lru.Cache[string, *ownerLists]
	// epoch advances on every invalidation; a list read that straddles one
	// is returned but not stored.
	epoch atomic.Uint64
	// mu orders invalidations against stores so the epoch check and the
	// store happen with no invalidation in between.
	mu sync.Mutex
}

// New returns a Cache tracking at most size owners.
func New(size int) (*Cache, error) {
	if size <= 0 {
		size = defaultSize
	}
	owners, err := lru.New[string, *ownerLists](size)
	if err != nil {
		return nil, err
	}
	return &Cache{owners: owners}, nil
}

// Invalidate drops every cached list of owner.
func (c *Cache) Invalidate(owner string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.epoch.Add(1)
	c.owners.Remove(owner)
}

// InvalidateAll drops every cached list.
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.epoch.Add(1)
	c.owners.Purge()
}

// Len reports the number of owners with cached lists.
func (c *Cache) Len() int {
	return c.owners.Len()
}

func (c *Cache) entry(owner string) *ownerLists {
	fresh := &ownerLists{links: make(map[string][]models.Link)}
	if prev, ok, _ := c.owners.PeekOrAdd(owner, fresh); ok {
		return prev
	}
	return fresh
}

// Folders decorates a folder repository with the cache.
type Folders struct {
	Cache *Cache
	Next  repositories.FolderRepository
}

// List implements repositories.FolderRepository.
func (f Folders) List(ctx context.Context, userID string) ([]models.Folder, error) {
	if cached, ok := f.Cache.folders(userID); ok {
		metrics.ObserveListCache("folders", true)
		return cached, nil
	}
	metrics.ObserveListCache("folders", false)

	epoch := f.Cache.epoch.Load()
	folders, err := f.Next.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	f.Cache.storeFolders(userID, epoch, folders)
	return slices.Clone(folders), nil
}

// Create implements repositories.FolderRepository.
func (f Folders) Create(ctx context.Context, folder models.Folder) (models.Folder, error) {
	defer f.Cache.Invalidate(folder.UserID)
	return f.Next.Create(ctx, folder)
}

// EnsureDefault implements repositories.FolderRepository.
func (f Folders) EnsureDefault(ctx context.Context, folder models.Folder) (bool, error) {
	created, err := f.Next.EnsureDefault(ctx, folder)
	if created {
		f.Cache.Invalidate(folder.UserID)
	}
	return created, err
}

// Update implements repositories.FolderRepository.
func (f Folders) Update(ctx context.Context, userID, folderID string, patch models.FolderPatch) (models.Folder, error) {
	defer f.Cache.Invalidate(userID)
	return f.Next.Update(ctx, userID, folderID, patch)
}

// Delete implements repositories.FolderRepository.
func (f Folders) Delete(ctx context.Context, userID, folderID string) error {
	defer f.Cache.Invalidate(userID)
	return f.Next.Delete(ctx, userID, folderID)
}

// Links decorates a link repository with the cache.
type Links struct {
	Cache *Cache
	Next  repositories.LinkRepository
}

// List implements repositories.LinkRepository.
func (l Links) List(ctx context.Context, userID, folderID string) ([]models.Link, error) {
	if cached, ok := l.Cache.links(userID, folderID); ok {
		metrics.ObserveListCache("links", true)
		return cached, nil
	}
	metrics.ObserveListCache("links", false)

	epoch := l.Cache.epoch.Load()
	links, err := l.Next.List(ctx, userID, folderID)
	if err != nil {
		return nil, err
	}
	l.Cache.storeLinks(userID, folderID, epoch, links)
	return slices.Clone(links), nil
}

// Create implements repositories.LinkRepository.
func (l Links) Create(ctx context.Context, link models.Link) (models.Link, error) {
	defer l.Cache.Invalidate(link.UserID)
	return l.Next.Create(ctx, link)
}

// Update implements repositories.LinkRepository.
func (l Links) Update(ctx context.Context, userID, linkID string, patch models.LinkPatch) (models.Link, error) {
	defer l.Cache.Invalidate(userID)
	return l.Next.Update(ctx, userID, linkID, patch)
}

// Delete implements repositories.LinkRepository.
func (l Links) Delete(ctx context.Context, userID, linkID string) error {
	defer l.Cache.Invalidate(userID)
	return l.Next.Delete(ctx, userID, linkID)
}

// Move implements repositories.LinkRepository.
func (l Links) Move(ctx context.Context, userID, linkID, folderID string) error {
	defer l.Cache.Invalidate(userID)
	return l.Next.Move(ctx, userID, linkID, folderID)
}

// Reorder implements repositories.LinkRepository.
func (l Links) Reorder(ctx context.Context, userID, folderID string, linkIDs []string) error {
	defer l.Cache.Invalidate(userID)
	return l.Next.Reorder(ctx, userID, folderID, linkIDs)
}

func (c *Cache) folders(owner string) ([]models.Folder, bool) {
	entry, ok := c.owners.Get(owner)
	if !ok {
		return nil, false
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	if !entry.hasFolders {
		return nil, false
	}
	return slices.Clone(entry.folders), true
}

func (c *Cache) storeFolders(owner string, epoch uint64, folders []models.Folder) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch.Load() != epoch {
		return
	}
	entry := c.entry(owner)
	entry.mu.Lock()
	entry.folders = slices.Clone(folders)
	entry.hasFolders = true
	entry.mu.Unlock()
}

func (c *Cache) links(owner, folderID string) ([]models.Link, bool) {
	entry, ok := c.owners.Get(owner)
	if !ok {
		return nil, false
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	links, ok := entry.links[linksKey(folderID)]
	if !ok {
		return nil, false
	}
	return slices.Clone(links), true
}

func (c *Cache) storeLinks(owner, folderID string, epoch uint64, links []models.Link) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch.Load() != epoch {
		return
	}
	entry := c.entry(owner)
	entry.mu.Lock()
	entry.links[linksKey(folderID)] = slices.Clone(links)
	entry.mu.Unlock()
}

func linksKey(folderID string) string {
	if folderID == "" {
		return allLinks
	}
	return folderID
}

var (
	_ repositories.FolderRepository = Folders{}
	_ repositories.LinkRepository   = Links{}
)
