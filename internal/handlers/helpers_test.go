package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/moolinks/backend/internal/auth"
	"github.com/moolinks/backend/internal/models"
	"github.com/moolinks/backend/internal/repositories"
)

func jsonRequest(t *testing.T, method, target string, payload any) *http.Request {
	t.Helper()
	var body bytes.Buffer
	if payload != nil {
		if raw, ok := payload.(string); ok {
			body.WriteString(raw)
		} else if err := json.NewEncoder(&body).Encode(payload); err != nil {
			t.Fatalf("marshal: %v", err)
		}
	}
	req := httptest.NewRequest(method, target, &body)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func asUser(req *http.Request, userID string) *http.Request {
	return req.WithContext(auth.WithIdentity(req.Context(), auth.Identity{UserID: userID}))
}

func withURLParam(req *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return body["error"]
}

type memFolderStore struct {
	mu      sync.Mutex
	folders map[string][]models.Folder
	err     error
}

func newMemFolderStore() *memFolderStore {
	return &memFolderStore{folders: make(map[string][]models.Folder)}
}

func (s *memFolderStore) List(_ context.Context, userID string) ([]models.Folder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return append([]models.Folder{}, s.folders[userID]...), nil
}

func (s *memFolderStore) Create(_ context.Context, folder models.Folder) (models.Folder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return models.Folder{}, s.err
	}
	if len(s.folders[folder.UserID]) >= models.MaxFolders {
		return models.Folder{}, repositories.ErrFolderLimit
	}
	s.folders[folder.UserID] = append(s.folders[folder.UserID], folder)
	return folder, nil
}

func (s *memFolderStore) Update(_ context.Context, userID, folderID string, patch models.FolderPatch) (models.Folder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, f := range s.folders[userID] {
		if f.ID != folderID {
			continue
		}
		if patch.Name != nil {
			f.Name = *patch.Name
		}
		if patch.Emoji != nil {
			f.Emoji = *patch.Emoji
		}
		s.folders[userID][i] = f
		return f, nil
	}
	return models.Folder{}, repositories.ErrNotFound
}

func (s *memFolderStore) Delete(_ context.Context, userID, folderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, f := range s.folders[userID] {
		if f.ID == folderID {
			s.folders[userID] = append(s.folders[userID][:i], s.folders[userID][i+1:]...)
			return nil
		}
	}
	return repositories.ErrNotFound
}

func (s *memFolderStore) EnsureDefault(_ context.Context, folder models.Folder) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return false, s.err
	}
	existing := s.folders[folder.UserID]
	for _, f := range existing {
		if f.Name == folder.Name {
			return false, nil
		}
	}
	if len(existing) >= models.MaxFolders {
		return false, nil
	}
	s.folders[folder.UserID] = append([]models.Folder{folder}, existing...)
	return true, nil
}

type memLinkStore struct {
	mu      sync.Mutex
	links   []models.Link
	patches []models.LinkPatch
	moves   [][2]string
	orders  map[string][]string
	err     error
}

func newMemLinkStore() *memLinkStore {
	return &memLinkStore{orders: make(map[string][]string)}
}

func (s *memLinkStore) List(_ context.Context, userID, folderID string) ([]models.Link, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	out := []models.Link{}
	for _, l := range s.links {
		if l.UserID == userID && (folderID == "" || l.FolderID == folderID) {
			out = append(out, l)
		}
	}
	return out, nil
}

func (s *memLinkStore) Create(_ context.Context, link models.Link) (models.Link, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return models.Link{}, s.err
	}
	s.links = append(s.links, link)
	return link, nil
}

func (s *memLinkStore) Update(_ context.Context, userID, linkID string, patch models.LinkPatch) (models.Link, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.patches = append(s.patches, patch)
	for i, l := range s.links {
		if l.ID != linkID || l.UserID != userID {
			continue
		}
		if patch.Title != nil {
			l.Title = *patch.Title
		}
		if patch.SetThumbnail {
			l.ThumbnailURL = patch.ThumbnailURL
		}
		s.links[i] = l
		return l, nil
	}
	return models.Link{}, repositories.ErrNotFound
}

func (s *memLinkStore) Delete(_ context.Context, userID, linkID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *memLinkStore) Move(_ context.Context, userID, linkID, folderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.moves = append(s.moves, [2]string{linkID, folderID})
	return nil
}

func (s *memLinkStore) Reorder(_ context.Context, userID, folderID string, linkIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.orders[folderID] = append([]string(nil), linkIDs...)
	return nil
}

type limiterStub struct {
	allow bool
	keys  []string
}

func (l *limiterStub) Allow(key string) bool {
	l.keys = append(l.keys, key)
	return l.allow
}
