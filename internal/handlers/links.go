package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/moolinks/backend/internal/linkurl"
	"github.com/moolinks/backend/internal/logging"
	"github.com/moolinks/backend/internal/metadata"
	"github.com/moolinks/backend/internal/models"
	"github.com/moolinks/backend/internal/repositories"
)

// DefaultCreateTimeout bounds metadata resolution performed while saving a
// link without a title. The link is saved with the degraded title afterwards.
const DefaultCreateTimeout = 4 * time.Second

// LinkHandler implements the link endpoints.
type LinkHandler struct {
	Links         LinkStore
	Metadata      MetadataProvider
	CreateTimeout time.Duration
	NowFunc       func() time.Time
}

// List handles GET /api/links, optionally filtered by ?folder_id=.
func (h LinkHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	if h.Links == nil {
		logging.FromContext(ctx).Error("link store unavailable")
		respondError(ctx, w, http.StatusInternalServerError, "link service unavailable")
		return
	}

	links, err := h.Links.List(ctx, userID, strings.TrimSpace(r.URL.Query().Get("folder_id")))
	if err != nil {
		respondError(ctx, w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(ctx, w, http.StatusOK, links)
}

// Create handles POST /api/links. The URL is canonicalized before it is
// stored. When no title is supplied the metadata is resolved inline.
func (h LinkHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if h.Links == nil {
		logger.Error("link store unavailable")
		respondError(ctx, w, http.StatusInternalServerError, "link service unavailable")
		return
	}

	var req createLinkRequest
	if err := decodeJSON(r, &req); err != nil {
		logger.Warn("invalid link payload", "error", err)
		respondError(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.FolderID = strings.TrimSpace(req.FolderID)
	canonical := linkurl.Canonicalize(req.URL)
	if req.FolderID == "" || canonical == "" {
		respondError(ctx, w, http.StatusBadRequest, "folder_id and url are required")
		return
	}

	link := models.Link{
		ID:        uuid.NewString(),
		UserID:    userID,
		FolderID:  req.FolderID,
		URL:       canonical,
		CreatedAt: h.now(),
	}
	if req.Title != nil {
		link.Title = strings.TrimSpace(*req.Title)
	}
	if req.ThumbnailURL != nil && *req.ThumbnailURL != "" {
		thumb := *req.ThumbnailURL
		link.ThumbnailURL = &thumb
	}

	if link.Title == "" {
		result := h.resolve(ctx, canonical)
		link.Title = result.Title
		if req.ThumbnailURL == nil {
			link.ThumbnailURL = result.ThumbnailURL
		}
	}

	created, err := h.Links.Create(ctx, link)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			respondError(ctx, w, http.StatusNotFound, "Folder not found")
			return
		}
		respondError(ctx, w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(ctx, w, http.StatusOK, created)
}

// Update handles PATCH /api/links/{id}. A blank title is ignored; a null or
// empty thumbnail_url clears the thumbnail.
func (h LinkHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	if h.Links == nil {
		respondError(ctx, w, http.StatusInternalServerError, "link service unavailable")
		return
	}

	var fields map[string]json.RawMessage
	if err := decodeJSON(r, &fields); err != nil {
		respondError(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}

	patch, err := linkPatchFromFields(fields)
	if err != nil {
		respondError(ctx, w, http.StatusBadRequest, err.Error())
		return
	}
	if patch.Empty() {
		respondError(ctx, w, http.StatusBadRequest, "title or thumbnail_url required")
		return
	}

	link, err := h.Links.Update(ctx, userID, chi.URLParam(r, "id"), patch)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			respondError(ctx, w, http.StatusNotFound, "Link not found")
			return
		}
		respondError(ctx, w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(ctx, w, http.StatusOK, link)
}

// Delete handles DELETE /api/links/{id}.
func (h LinkHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	if h.Links == nil {
		respondError(ctx, w, http.StatusInternalServerError, "link service unavailable")
		return
	}

	if err := h.Links.Delete(ctx, userID, chi.URLParam(r, "id")); err != nil {
		respondError(ctx, w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(ctx, w, http.StatusOK, okResponse)
}

// Move handles POST /api/links/move.
func (h LinkHandler) Move(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	if h.Links == nil {
		respondError(ctx, w, http.StatusInternalServerError, "link service unavailable")
		return
	}

	var req moveLinkRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.LinkID == "" || req.FolderID == "" {
		respondError(ctx, w, http.StatusBadRequest, "linkId and folderId required")
		return
	}

	if err := h.Links.Move(ctx, userID, req.LinkID, req.FolderID); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			respondError(ctx, w, http.StatusNotFound, "Link or folder not found")
			return
		}
		respondError(ctx, w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(ctx, w, http.StatusOK, okResponse)
}

// Reorder handles POST /api/links/reorder. link_ids is the folder's complete
// new order; every listed link gets its index as sort_order in one
// transaction.
func (h LinkHandler) Reorder(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	if h.Links == nil {
		respondError(ctx, w, http.StatusInternalServerError, "link service unavailable")
		return
	}

	var req reorderLinksRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.FolderID == "" || len(req.LinkIDs) == 0 {
		respondError(ctx, w, http.StatusBadRequest, "folder_id and link_ids required")
		return
	}

	if err := h.Links.Reorder(ctx, userID, req.FolderID, req.LinkIDs); err != nil {
		respondError(ctx, w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(ctx, w, http.StatusOK, okResponse)
}

func (h LinkHandler) resolve(ctx context.Context, canonical string) metadata.Result {
	timeout := h.CreateTimeout
	if timeout <= 0 {
		timeout = DefaultCreateTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return metadata.Resolve(ctx, h.Metadata, canonical)
}

var errThumbnailType = errors.New("thumbnail_url must be a string or null")

func linkPatchFromFields(fields map[string]json.RawMessage) (models.LinkPatch, error) {
	var patch models.LinkPatch

	if raw, ok := fields["title"]; ok {
		var title string
		if err := json.Unmarshal(raw, &title); err == nil {
			if title = strings.TrimSpace(title); title != "" {
				title = truncateRunes(title, models.MaxLinkTitleLength)
				patch.Title = &title
			}
		}
	}

	if raw, ok := fields["thumbnail_url"]; ok {
		var thumb *string
		if err := json.Unmarshal(raw, &thumb); err != nil {
			return models.LinkPatch{}, errThumbnailType
		}
		patch.SetThumbnail = true
		if thumb != nil && *thumb != "" {
			value := truncateRunes(*thumb, models.MaxThumbnailURLLength)
			patch.ThumbnailURL = &value
		}
	}

	return patch, nil
}

func truncateRunes(s string, limit int) string {
	if runes := []rune(s); len(runes) > limit {
		return string(runes[:limit])
	}
	return s
}

type createLinkRequest struct {
	FolderID     string  `json:"folder_id"`
	URL          string  `json:"url"`
	Title        *string `json:"title"`
	ThumbnailURL *string `json:"thumbnail_url"`
}

type moveLinkRequest struct {
	LinkID   string `json:"linkId"`
	FolderID string `json:"folderId"`
}

type reorderLinksRequest struct {
	FolderID string   `json:"folder_id"`
	LinkIDs  []string `json:"link_ids"`
}

func (h LinkHandler) now() time.Time {
	if h.NowFunc != nil {
		return h.NowFunc()
	}
	return time.Now().UTC()
}
