package handlers

import (
	"bytes"
	"errors"
	"net/http"
	"strings"

	"github.com/moolinks/backend/internal/bookmarks"
	"github.com/moolinks/backend/internal/logging"
	"github.com/moolinks/backend/internal/repositories"
)

// DefaultMaxImportBytes caps the size of an uploaded bookmark file.
const DefaultMaxImportBytes = 5 << 20

// BookmarkHandler exports and imports Netscape bookmark files.
type BookmarkHandler struct {
	Folders        FolderStore
	Links          LinkStore
	Importer       BookmarkImporter
	MaxImportBytes int64
}

// Export handles GET /api/export.
func (h BookmarkHandler) Export(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	if h.Folders == nil || h.Links == nil {
		logging.FromContext(ctx).Error("export dependencies unavailable", "hasFolders", h.Folders != nil, "hasLinks", h.Links != nil)
		respondError(ctx, w, http.StatusInternalServerError, "export service unavailable")
		return
	}

	folders, err := h.Folders.List(ctx, userID)
	if err != nil {
		respondError(ctx, w, http.StatusInternalServerError, err.Error())
		return
	}
	links, err := h.Links.List(ctx, userID, "")
	if err != nil {
		respondError(ctx, w, http.StatusInternalServerError, err.Error())
		return
	}

	var buf bytes.Buffer
	if err := bookmarks.Export(&buf, folders, links); err != nil {
		respondError(ctx, w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="moolinks-bookmarks.html"`)
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

// Import handles POST /api/import?folder_id=. The body is a bookmark file.
func (h BookmarkHandler) Import(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if h.Importer == nil {
		logger.Error("bookmark importer unavailable")
		respondError(ctx, w, http.StatusInternalServerError, "import service unavailable")
		return
	}

	folderID := strings.TrimSpace(r.URL.Query().Get("folder_id"))
	if folderID == "" {
		respondError(ctx, w, http.StatusBadRequest, "folder_id required")
		return
	}

	limit := h.MaxImportBytes
	if limit <= 0 {
		limit = DefaultMaxImportBytes
	}
	entries, err := bookmarks.Parse(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(ctx, w, http.StatusRequestEntityTooLarge, "bookmark file too large")
			return
		}
		logger.Warn("bookmark file rejected", "error", err)
		respondError(ctx, w, http.StatusBadRequest, "invalid bookmark file")
		return
	}

	result, err := h.Importer.Import(ctx, userID, folderID, entries)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			respondError(ctx, w, http.StatusNotFound, "Folder not found")
			return
		}
		respondError(ctx, w, http.StatusInternalServerError, err.Error())
		return
	}

	logger.Info("bookmarks imported", "folderId", folderID, "imported", result.Imported, "skipped", result.Skipped)
	respondJSON(ctx, w, http.StatusOK, result)
}
