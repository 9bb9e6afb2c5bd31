package handlers

import (
	"context"

	"github.com/moolinks/backend/internal/bookmarks"
	"github.com/moolinks/backend/internal/metadata"
	"github.com/moolinks/backend/internal/models"
)

// UserStore captures the persistence operations required by the auth handlers.
type UserStore interface {
	Create(ctx context.Context, user models.User) error
	FindByEmail(ctx context.Context, email string) (models.User, error)
}

// SessionManager issues, refreshes and revokes authentication tokens for users.
type SessionManager interface {
	Issue(ctx context.Context, userID string) (models.SessionTokens, error)
	Refresh(ctx context.Context, refreshToken string) (models.SessionTokens, error)
	Revoke(ctx context.Context, refreshToken string)
	RevokeAccess(ctx context.Context, accessToken string)
}

// FolderStore captures the folder operations of the folder handlers. Every
// call is scoped to the authenticated owner.
type FolderStore interface {
	List(ctx context.Context, userID string) ([]models.Folder, error)
	Create(ctx context.Context, folder models.Folder) (models.Folder, error)
	Update(ctx context.Context, userID, folderID string, patch models.FolderPatch) (models.Folder, error)
	Delete(ctx context.Context, userID, folderID string) error
	EnsureDefault(ctx context.Context, folder models.Folder) (bool, error)
}

// LinkStore captures the link operations of the link handlers.
type LinkStore interface {
	List(ctx context.Context, userID, folderID string) ([]models.Link, error)
	Create(ctx context.Context, link models.Link) (models.Link, error)
	Update(ctx context.Context, userID, linkID string, patch models.LinkPatch) (models.Link, error)
	Delete(ctx context.Context, userID, linkID string) error
	Move(ctx context.Context, userID, linkID, folderID string) error
	Reorder(ctx context.Context, userID, folderID string, linkIDs []string) error
}

// MetadataProvider resolves display metadata for canonical URLs.
type MetadataProvider = metadata.Provider

// BookmarkImporter stores entries parsed from a bookmark file.
type BookmarkImporter interface {
	Import(ctx context.Context, userID, folderID string, entries []bookmarks.Entry) (bookmarks.ImportResult, error)
}

// Pinger reports whether a backing service is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}
