package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/moolinks/backend/internal/db"
	"github.com/moolinks/backend/internal/models"
)

// LinkRepository defines the data access contract for links. Every operation
// is scoped to the owning user.
type LinkRepository interface {
	List(ctx context.Context, userID, folderID string) ([]models.Link, error)
	Create(ctx context.Context, link models.Link) (models.Link, error)
	Update(ctx context.Context, userID, linkID string, patch models.LinkPatch) (models.Link, error)
	Delete(ctx context.Context, userID, linkID string) error
	Move(ctx context.Context, userID, linkID, folderID string) error
	Reorder(ctx context.Context, userID, folderID string, linkIDs []string) error
}

// PostgresLinkRepository provides PostgreSQL-backed persistence for links.
type PostgresLinkRepository struct {
	pool db.Pool
}

// NewPostgresLinkRepository constructs a link repository backed by PostgreSQL.
func NewPostgresLinkRepository(pool db.Pool) *PostgresLinkRepository {
	return &PostgresLinkRepository{pool: pool}
}

const linkColumns = `id, user_id, folder_id, url, title, thumbnail_url, sort_order, created_at`

// List returns the owner's links, optionally restricted to one folder, by
// sort_order with the newest first on ties.
func (r *PostgresLinkRepository) List(ctx context.Context, userID, folderID string) ([]models.Link, error) {
	rows, err := r.pool.Query(ctx, `
        SELECT `+linkColumns+`
        FROM links
        WHERE user_id = $1 AND ($2::text = '' OR folder_id = $2::text)
        ORDER BY sort_order ASC, created_at DESC
    `, userID, folderID)
	if err != nil {
		return nil, fmt.Errorf("query links: %w", err)
	}
	defer rows.Close()

	links := []models.Link{}
	for rows.Next() {
		link, err := scanLink(rows)
		if err != nil {
			return nil, fmt.Errorf("scan link: %w", err)
		}
		links = append(links, link)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate links: %w", err)
	}

	return links, nil
}

// Create stores a link in one of the owner's folders and returns the row.
// ErrNotFound is returned when the folder does not belong to the owner.
func (r *PostgresLinkRepository) Create(ctx context.Context, link models.Link) (models.Link, error) {
	row := r.pool.QueryRow(ctx, `
        INSERT INTO links (id, user_id, folder_id, url, title, thumbnail_url, sort_order, created_at)
        SELECT $1::text, $2::text, $3::text, $4::text, $5::text, $6::text, $7::int, $8::timestamptz
        WHERE EXISTS (SELECT 1 FROM folders WHERE id = $3::text AND user_id = $2::text)
        RETURNING `+linkColumns,
		link.ID, link.UserID, link.FolderID, link.URL, link.Title, link.ThumbnailURL, link.SortOrder, link.CreatedAt)

	created, err := scanLink(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Link{}, ErrNotFound
		}
		return models.Link{}, mapWriteError("insert link", err)
	}
	return created, nil
}

// Update applies patch to the owner's link and returns the stored row.
func (r *PostgresLinkRepository) Update(ctx context.Context, userID, linkID string, patch models.LinkPatch) (models.Link, error) {
	row := r.pool.QueryRow(ctx, `
        UPDATE links
        SET title = COALESCE($3::text, title),
            thumbnail_url = CASE WHEN $4::boolean THEN $5::text ELSE thumbnail_url END
        WHERE id = $1 AND user_id = $2
        RETURNING `+linkColumns, linkID, userID, patch.Title, patch.SetThumbnail, patch.ThumbnailURL)

	link, err := scanLink(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Link{}, ErrNotFound
		}
		return models.Link{}, fmt.Errorf("update link: %w", err)
	}
	return link, nil
}

// Delete removes the owner's link. Deleting a missing link is not an error.
func (r *PostgresLinkRepository) Delete(ctx context.Context, userID, linkID string) error {
	if _, err := r.pool.Exec(ctx, `
        DELETE FROM links
        WHERE id = $1 AND user_id = $2
    `, linkID, userID); err != nil {
		return fmt.Errorf("delete link: %w", err)
	}
	return nil
}

// Move reassigns the owner's link to another of the owner's folders.
func (r *PostgresLinkRepository) Move(ctx context.Context, userID, linkID, folderID string) error {
	tag, err := r.pool.Exec(ctx, `
        UPDATE links
        SET folder_id = $3
        WHERE id = $1 AND user_id = $2
          AND EXISTS (SELECT 1 FROM folders WHERE id = $3 AND user_id = $2)
    `, linkID, userID, folderID)
	if err != nil {
		return fmt.Errorf("move link: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Reorder sets sort_order to each id's position in linkIDs, in one
// transaction. Ids outside (folderID, userID) are left untouched.
func (r *PostgresLinkRepository) Reorder(ctx context.Context, userID, folderID string, linkIDs []string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin reorder: %w", err)
	}

	for index, linkID := range linkIDs {
		if _, err := tx.Exec(ctx, `
            UPDATE links
            SET sort_order = $1
            WHERE id = $2 AND user_id = $3 AND folder_id = $4
        `, index, linkID, userID, folderID); err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("reorder link %s: %w", linkID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit reorder: %w", err)
	}
	return nil
}

func scanLink(row pgx.Row) (models.Link, error) {
	var link models.Link
	err := row.Scan(&link.ID, &link.UserID, &link.FolderID, &link.URL, &link.Title, &link.ThumbnailURL, &link.SortOrder, &link.CreatedAt)
	return link, err
}

var _ LinkRepository = (*PostgresLinkRepository)(nil)
