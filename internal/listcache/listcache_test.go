package listcache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moolinks/backend/internal/models"
)

type folderRepoStub struct {
	folders   []models.Folder
	listCalls int
	created   bool
	err       error
}

func (s *folderRepoStub) List(ctx context.Context, userID string) ([]models.Folder, error) {
	s.listCalls++
	if s.err != nil {
		return nil, s.err
	}
	return s.folders, nil
}

func (s *folderRepoStub) Create(ctx context.Context, folder models.Folder) (models.Folder, error) {
	s.folders = append(s.folders, folder)
	return folder, nil
}

func (s *folderRepoStub) Update(ctx context.Context, userID, folderID string, patch models.FolderPatch) (models.Folder, error) {
	return models.Folder{ID: folderID, UserID: userID}, nil
}

func (s *folderRepoStub) Delete(ctx context.Context, userID, folderID string) error {
	return nil
}

func (s *folderRepoStub) EnsureDefault(ctx context.Context, folder models.Folder) (bool, error) {
	return s.created, nil
}

type linkRepoStub struct {
	byFolder  map[string][]models.Link
	listCalls map[string]int
}

func newLinkRepoStub() *linkRepoStub {
	return &linkRepoStub{byFolder: map[string][]models.Link{}, listCalls: map[string]int{}}
}

func (s *linkRepoStub) List(ctx context.Context, userID, folderID string) ([]models.Link, error) {
	s.listCalls[folderID]++
	return s.byFolder[folderID], nil
}

func (s *linkRepoStub) Create(ctx context.Context, link models.Link) (models.Link, error) {
	return link, nil
}

func (s *linkRepoStub) Update(ctx context.Context, userID, linkID string, patch models.LinkPatch) (models.Link, error) {
	return models.Link{ID: linkID, UserID: userID}, nil
}

func (s *linkRepoStub) Delete(ctx context.Context, userID, linkID string) error { return nil }

func (s *linkRepoStub) Move(ctx context.Context, userID, linkID, folderID string) error { return nil }

func (s *linkRepoStub) Reorder(ctx context.Context, userID, folderID string, linkIDs []string) error {
	return nil
}

func newCache(t *testing.T) *Cache {
	t.Helper()
	c, err := New(8)
	require.NoError(t, err)
	return c
}

func TestFoldersReadThrough(t *testing.T) {
	c := newCache(t)
	next := &folderRepoStub{folders: []models.Folder{{ID: "f1", UserID: "u1", Name: "Purgatory"}}}
	repo := Folders{Cache: c, Next: next}
	ctx := context.Background()

	first, err := repo.List(ctx, "u1")
	require.NoError(t, err)
	second, err := repo.List(ctx, "u1")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, next.listCalls)

	_, err = repo.List(ctx, "u2")
	require.NoError(t, err)
	assert.Equal(t, 2, next.listCalls, "owners are cached independently")
}

func TestFoldersListErrorNotCached(t *testing.T) {
	c := newCache(t)
	next := &folderRepoStub{err: errors.New("db down")}
	repo := Folders{Cache: c, Next: next}

	_, err := repo.List(context.Background(), "u1")
	require.Error(t, err)
	_, err = repo.List(context.Background(), "u1")
	require.Error(t, err)
	assert.Equal(t, 2, next.listCalls)
}

func TestFoldersWritesInvalidateOwner(t *testing.T) {
	ctx := context.Background()
	writes := map[string]func(Folders) error{
		"create": func(f Folders) error {
			_, err := f.Create(ctx, models.Folder{ID: "f2", UserID: "u1"})
			return err
		},
		"update": func(f Folders) error {
			name := "Reading"
			_, err := f.Update(ctx, "u1", "f1", models.FolderPatch{Name: &name})
			return err
		},
		"delete": func(f Folders) error {
			return f.Delete(ctx, "u1", "f1")
		},
	}

	for name, write := range writes {
		t.Run(name, func(t *testing.T) {
			c := newCache(t)
			next := &folderRepoStub{folders: []models.Folder{{ID: "f1", UserID: "u1"}}}
			repo := Folders{Cache: c, Next: next}

			_, err := repo.List(ctx, "u1")
			require.NoError(t, err)
			require.NoError(t, write(repo))
			_, err = repo.List(ctx, "u1")
			require.NoError(t, err)

			assert.Equal(t, 2, next.listCalls)
		})
	}
}

func TestEnsureDefaultInvalidatesOnlyWhenCreated(t *testing.T) {
	ctx := context.Background()
	c := newCache(t)
	next := &folderRepoStub{}
	repo := Folders{Cache: c, Next: next}

	_, err := repo.List(ctx, "u1")
	require.NoError(t, err)
	_, err = repo.EnsureDefault(ctx, models.Folder{UserID: "u1", Name: models.DefaultFolderName})
	require.NoError(t, err)
	_, err = repo.List(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, next.listCalls)

	next.created = true
	_, err = repo.EnsureDefault(ctx, models.Folder{UserID: "u1", Name: models.DefaultFolderName})
	require.NoError(t, err)
	_, err = repo.List(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, next.listCalls)
}

func TestLinksCachedPerFolder(t *testing.T) {
	ctx := context.Background()
	c := newCache(t)
	next := newLinkRepoStub()
	next.byFolder["f1"] = []models.Link{{ID: "l1", FolderID: "f1"}}
	next.byFolder[""] = []models.Link{{ID: "l1", FolderID: "f1"}, {ID: "l2", FolderID: "f2"}}
	repo := Links{Cache: c, Next: next}

	for i := 0; i < 2; i++ {
		inFolder, err := repo.List(ctx, "u1", "f1")
		require.NoError(t, err)
		require.Len(t, inFolder, 1)

		all, err := repo.List(ctx, "u1", "")
		require.NoError(t, err)
		require.Len(t, all, 2)
	}

	assert.Equal(t, 1, next.listCalls["f1"])
	assert.Equal(t, 1, next.listCalls[""])

	require.NoError(t, repo.Move(ctx, "u1", "l2", "f1"))
	_, err := repo.List(ctx, "u1", "f1")
	require.NoError(t, err)
	_, err = repo.List(ctx, "u1", "")
	require.NoError(t, err)

	assert.Equal(t, 2, next.listCalls["f1"])
	assert.Equal(t, 2, next.listCalls[""])
}

func TestLinkWritesInvalidateFolderLists(t *testing.T) {
	ctx := context.Background()
	c := newCache(t)
	folders := &folderRepoStub{}
	links := newLinkRepoStub()
	folderRepo := Folders{Cache: c, Next: folders}
	linkRepo := Links{Cache: c, Next: links}

	_, err := folderRepo.List(ctx, "u1")
	require.NoError(t, err)
	_, err = linkRepo.Create(ctx, models.Link{ID: "l1", UserID: "u1", FolderID: "f1"})
	require.NoError(t, err)
	_, err = folderRepo.List(ctx, "u1")
	require.NoError(t, err)

	assert.Equal(t, 2, folders.listCalls, "a link write drops the owner's folder list too")
}

func TestInvalidateAll(t *testing.T) {
	ctx := context.Background()
	c := newCache(t)
	next := &folderRepoStub{}
	repo := Folders{Cache: c, Next: next}

	for _, owner := range []string{"u1", "u2"} {
		_, err := repo.List(ctx, owner)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, c.Len())

	c.InvalidateAll()
	assert.Equal(t, 0, c.Len())

	_, err := repo.List(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 3, next.listCalls)
}

func TestCachedListsAreCopies(t *testing.T) {
	ctx := context.Background()
	c := newCache(t)
	next := newLinkRepoStub()
	next.byFolder["f1"] = []models.Link{{ID: "l1", Title: "original"}}
	repo := Links{Cache: c, Next: next}

	got, err := repo.List(ctx, "u1", "f1")
	require.NoError(t, err)
	got[0].Title = "mutated"

	again, err := repo.List(ctx, "u1", "f1")
	require.NoError(t, err)
	assert.Equal(t, "original", again[0].Title)
}

// versionedFolders names its single folder after the current version.
type versionedFolders struct {
	folderRepoStub
	version atomic.Int64
}

func (s *versionedFolders) List(ctx context.Context, userID string) ([]models.Folder, error) {
	return []models.Folder{{ID: "f1", UserID: userID, Name: fmt.Sprint(s.version.Load())}}, nil
}

func TestConcurrentListsNeverOutliveInvalidation(t *testing.T) {
	c := newCache(t)
	next := &versionedFolders{}
	repo := Folders{Cache: c, Next: next}
	ctx := context.Background()

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
					_, _ = repo.List(ctx, "u1")
				}
			}
		}()
	}

	for i := 0; i < 2000; i++ {
		next.version.Add(1)
		c.Invalidate("u1")
	}
	close(stop)
	wg.Wait()

	got, err := repo.List(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, fmt.Sprint(next.version.Load()), got[0].Name, "a list read before the last invalidation stayed cached")
}
