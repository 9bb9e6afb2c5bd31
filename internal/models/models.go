package models

import "time"

// MaxFolders is the number of folders a single user may own.
const MaxFolders = 5

const (
	// DefaultFolderName is the folder ensured for every user on first load.
	DefaultFolderName = "Purgatory"
	// DefaultFolderEmoji is the glyph of the default folder.
	DefaultFolderEmoji = "⏳"
	// FallbackFolderEmoji is used when a folder is created without an emoji.
	FallbackFolderEmoji = "📁"
)

const (
	// MaxLinkTitleLength caps titles written through link updates.
	MaxLinkTitleLength = 500
	// MaxThumbnailURLLength caps thumbnail URLs written through link updates.
	MaxThumbnailURLLength = 2000
)

// User represents an account within moolinks.
type User struct {
	ID        string
	Email     string
	Password  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Folder groups a user's links. A user owns at most MaxFolders folders.
type Folder struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Name      string    `json:"name"`
	Emoji     string    `json:"emoji"`
	SortOrder int       `json:"sort_order"`
	CreatedAt time.Time `json:"created_at"`
}

// FolderPatch lists the folder fields an update may change. Nil fields are left untouched.
type FolderPatch struct {
	Name  *string
	Emoji *string
}

// Link is a saved bookmark. URL always holds the canonical form.
type Link struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	FolderID     string    `json:"folder_id"`
	URL          string    `json:"url"`
	Title        string    `json:"title"`
	ThumbnailURL *string   `json:"thumbnail_url"`
	SortOrder    int       `json:"sort_order"`
	CreatedAt    time.Time `json:"created_at"`
}

// LinkPatch lists the link fields an update may change.
// SetThumbnail distinguishes "leave as is" from "clear" when ThumbnailURL is nil.
type LinkPatch struct {
	Title        *string
	SetThumbnail bool
	ThumbnailURL *string
}

// Empty reports whether the patch changes nothing.
func (p LinkPatch) Empty() bool {
	return p.Title == nil && !p.SetThumbnail
}

// SessionTokens groups the bearer credentials issued to authenticated users.
type SessionTokens struct {
	AccessToken      string    `json:"accessToken"`
	AccessExpiresAt  time.Time `json:"accessExpiresAt"`
	RefreshToken     string    `json:"refreshToken"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
}
