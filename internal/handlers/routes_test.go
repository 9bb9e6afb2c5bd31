package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/moolinks/backend/internal/models"
)

func newTestRouter() (chi.Router, *memLinkStore) {
	manager := newTestManager()
	links := newMemLinkStore()
	r := chi.NewRouter()
	RegisterRoutes(r, Dependencies{
		Users:         newInMemoryUserStore(),
		Sessions:      manager,
		Authenticator: manager,
		Folders:       newMemFolderStore(),
		Links:         links,
		Importer:      &importerStub{},
		CookieName:    testCookie,
	})
	return r, links
}

func TestRoutesRequireSession(t *testing.T) {
	router, _ := newTestRouter()

	for _, route := range []struct{ method, path string }{
		{http.MethodGet, "/api/folders"},
		{http.MethodPost, "/api/links"},
		{http.MethodPatch, "/api/links/l1"},
		{http.MethodPost, "/api/links/reorder"},
		{http.MethodGet, "/api/export"},
		{http.MethodGet, "/api/v1/auth/me"},
	} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(route.method, route.path, nil))
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s %s: expected 401 got %d", route.method, route.path, rec.Code)
		}
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected public health check got %d", rec.Code)
	}
}

func TestRoutesSignUpThenUseSession(t *testing.T) {
	router, links := newTestRouter()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, jsonRequest(t, http.MethodPost, "/api/v1/auth/signup", signUpRequest{Email: "cow@example.com", Password: "moomoomoo"}))
	if rec.Code != http.StatusCreated {
		t.Fatalf("signup: expected 201 got %d", rec.Code)
	}
	cookie := sessionCookie(rec)
	if cookie == nil {
		t.Fatal("expected session cookie")
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
	req.AddCookie(cookie)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	var me map[string]string
	if rec.Code != http.StatusOK || json.NewDecoder(rec.Body).Decode(&me) != nil || me["id"] == "" {
		t.Fatalf("me: expected identity, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/folders", nil)
	req.AddCookie(cookie)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("list folders: expected 200 got %d", rec.Code)
	}
	var folders []models.Folder
	if err := json.NewDecoder(rec.Body).Decode(&folders); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(folders) != 1 || folders[0].Name != models.DefaultFolderName {
		t.Fatalf("expected the default folder, got %+v", folders)
	}

	req = jsonRequest(t, http.MethodPost, "/api/links", map[string]any{"folder_id": folders[0].ID, "url": "https://example.com", "title": "Example"})
	req.AddCookie(cookie)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("create link: expected 200 got %d", rec.Code)
	}

	req = jsonRequest(t, http.MethodPost, "/api/links/move", map[string]any{"linkId": links.links[0].ID, "folderId": folders[0].ID})
	req.AddCookie(cookie)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || len(links.moves) != 1 {
		t.Fatalf("move: expected static route to win over {id}, got %d", rec.Code)
	}
	if links.links[0].UserID != folders[0].UserID {
		t.Fatalf("link owner %q does not match session owner %q", links.links[0].UserID, folders[0].UserID)
	}
}
