package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/moolinks/backend/internal/logging"
	"github.com/moolinks/backend/internal/models"
	"github.com/moolinks/backend/internal/repositories"
)

// FolderHandler implements the folder endpoints.
type FolderHandler struct {
	Folders FolderStore
	NowFunc func() time.Time
}

// List handles GET /api/folders. The default folder is created first when
// the owner does not have it yet and still has room.
func (h FolderHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if h.Folders == nil {
		logger.Error("folder store unavailable")
		respondError(ctx, w, http.StatusInternalServerError, "folder service unavailable")
		return
	}

	created, err := h.Folders.EnsureDefault(ctx, models.Folder{
		ID:        uuid.NewString(),
		UserID:    userID,
		Name:      models.DefaultFolderName,
		Emoji:     models.DefaultFolderEmoji,
		CreatedAt: h.now(),
	})
	if err != nil {
		logger.Error("ensure default folder failed", "error", err)
		respondError(ctx, w, http.StatusInternalServerError, err.Error())
		return
	}
	if created {
		logger.Info("default folder created")
	}

	folders, err := h.Folders.List(ctx, userID)
	if err != nil {
		respondError(ctx, w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(ctx, w, http.StatusOK, folders)
}

// Create handles POST /api/folders.
func (h FolderHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	if h.Folders == nil {
		respondError(ctx, w, http.StatusInternalServerError, "folder service unavailable")
		return
	}

	var req createFolderRequest
	if err := decodeJSON(r, &req); err != nil {
		logging.FromContext(ctx).Warn("invalid folder payload", "error", err)
		respondError(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}

	folder := models.Folder{
		ID:        uuid.NewString(),
		UserID:    userID,
		Emoji:     models.FallbackFolderEmoji,
		CreatedAt: h.now(),
	}
	if req.Name != nil {
		folder.Name = strings.TrimSpace(*req.Name)
	}
	if req.Emoji != nil {
		folder.Emoji = *req.Emoji
	}
	if req.SortOrder != nil {
		folder.SortOrder = *req.SortOrder
	}

	created, err := h.Folders.Create(ctx, folder)
	if err != nil {
		switch {
		case errors.Is(err, repositories.ErrFolderLimit):
			respondError(ctx, w, http.StatusBadRequest, "Maximum 5 folders allowed")
		case errors.Is(err, repositories.ErrNotFound):
			respondError(ctx, w, http.StatusUnauthorized, "Unauthorized")
		default:
			respondError(ctx, w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	respondJSON(ctx, w, http.StatusOK, created)
}

// Update handles PATCH /api/folders/{id}.
func (h FolderHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	if h.Folders == nil {
		respondError(ctx, w, http.StatusInternalServerError, "folder service unavailable")
		return
	}

	var req updateFolderRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}

	var patch models.FolderPatch
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		patch.Name = &name
	}
	patch.Emoji = req.Emoji
	if patch.Name == nil && patch.Emoji == nil {
		respondError(ctx, w, http.StatusBadRequest, "name or emoji required")
		return
	}

	folder, err := h.Folders.Update(ctx, userID, chi.URLParam(r, "id"), patch)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			respondError(ctx, w, http.StatusNotFound, "Folder not found")
			return
		}
		respondError(ctx, w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(ctx, w, http.StatusOK, folder)
}

// Delete handles DELETE /api/folders/{id}. The folder's links go with it.
func (h FolderHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	if h.Folders == nil {
		respondError(ctx, w, http.StatusInternalServerError, "folder service unavailable")
		return
	}

	if err := h.Folders.Delete(ctx, userID, chi.URLParam(r, "id")); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			respondError(ctx, w, http.StatusNotFound, "Folder not found")
			return
		}
		respondError(ctx, w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(ctx, w, http.StatusOK, okResponse)
}

type createFolderRequest struct {
	Name      *string `json:"name"`
	Emoji     *string `json:"emoji"`
	SortOrder *int    `json:"sort_order"`
}

type updateFolderRequest struct {
	Name  *string `json:"name"`
	Emoji *string `json:"emoji"`
}

func (h FolderHandler) now() time.Time {
	if h.NowFunc != nil {
		return h.NowFunc()
	}
	return time.Now().UTC()
}
