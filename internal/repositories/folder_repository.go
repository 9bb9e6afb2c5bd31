package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/moolinks/backend/internal/db"
	"github.com/moolinks/backend/internal/models"
)

// FolderRepository defines the data access contract for folders. Every
// operation is scoped to the owning user.
type FolderRepository interface {
	List(ctx context.Context, userID string) ([]models.Folder, error)
	Create(ctx context.Context, folder models.Folder) (models.Folder, error)
	Update(ctx context.Context, userID, folderID string, patch models.FolderPatch) (models.Folder, error)
	Delete(ctx context.Context, userID, folderID string) error
	EnsureDefault(ctx context.Context, folder models.Folder) (bool, error)
}

// PostgresFolderRepository provides PostgreSQL-backed persistence for folders.
type PostgresFolderRepository struct {
	pool db.Pool
}

// NewPostgresFolderRepository constructs a folder repository backed by PostgreSQL.
func NewPostgresFolderRepository(pool db.Pool) *PostgresFolderRepository {
	return &PostgresFolderRepository{pool: pool}
}

const folderColumns = `id, user_id, name, emoji, sort_order, created_at`

// List returns the owner's folders by sort_order, oldest first on ties.
func (r *PostgresFolderRepository) List(ctx context.Context, userID string) ([]models.Folder, error) {
	rows, err := r.pool.Query(ctx, `
        SELECT `+folderColumns+`
        FROM folders
        WHERE user_id = $1
        ORDER BY sort_order ASC, created_at ASC
    `, userID)
	if err != nil {
		return nil, fmt.Errorf("query folders: %w", err)
	}
	defer rows.Close()

	folders := []models.Folder{}
	for rows.Next() {
		folder, err := scanFolder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan folder: %w", err)
		}
		folders = append(folders, folder)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate folders: %w", err)
	}

	return folders, nil
}

// Create inserts a folder unless the owner already has models.MaxFolders,
// in which case ErrFolderLimit is returned and nothing is written. The owner's
// user row is locked so concurrent creates cannot both pass the count.
func (r *PostgresFolderRepository) Create(ctx context.Context, folder models.Folder) (models.Folder, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return models.Folder{}, fmt.Errorf("begin folder create: %w", err)
	}

	count, err := lockAndCountFolders(ctx, tx, folder.UserID)
	if err != nil {
		_ = tx.Rollback(ctx)
		return models.Folder{}, err
	}
	if count >= models.MaxFolders {
		_ = tx.Rollback(ctx)
		return models.Folder{}, ErrFolderLimit
	}

	created, err := insertFolder(ctx, tx, folder)
	if err != nil {
		_ = tx.Rollback(ctx)
		return models.Folder{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return models.Folder{}, fmt.Errorf("commit folder create: %w", err)
	}

	return created, nil
}

// EnsureDefault inserts folder (the owner's default) when no folder of that
// name exists and the owner is below the folder limit. An owner with no
// folders gets it at sort_order 0; otherwise it is placed first at -1.
func (r *PostgresFolderRepository) EnsureDefault(ctx context.Context, folder models.Folder) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin ensure default folder: %w", err)
	}

	count, err := lockAndCountFolders(ctx, tx, folder.UserID)
	if err != nil {
		_ = tx.Rollback(ctx)
		return false, err
	}

	var exists bool
	if err := tx.QueryRow(ctx, `
        SELECT EXISTS (SELECT 1 FROM folders WHERE user_id = $1 AND name = $2)
    `, folder.UserID, folder.Name).Scan(&exists); err != nil {
		_ = tx.Rollback(ctx)
		return false, fmt.Errorf("check default folder: %w", err)
	}

	if exists || count >= models.MaxFolders {
		_ = tx.Rollback(ctx)
		return false, nil
	}

	folder.SortOrder = 0
	if count > 0 {
		folder.SortOrder = -1
	}

	if _, err := insertFolder(ctx, tx, folder); err != nil {
		_ = tx.Rollback(ctx)
		return false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit ensure default folder: %w", err)
	}

	return true, nil
}

// Update renames or re-emojis a folder and returns the stored row.
func (r *PostgresFolderRepository) Update(ctx context.Context, userID, folderID string, patch models.FolderPatch) (models.Folder, error) {
	row := r.pool.QueryRow(ctx, `
        UPDATE folders
        SET name = COALESCE($3::text, name),
            emoji = COALESCE($4::text, emoji)
        WHERE id = $1 AND user_id = $2
        RETURNING `+folderColumns, folderID, userID, patch.Name, patch.Emoji)

	folder, err := scanFolder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Folder{}, ErrNotFound
		}
		return models.Folder{}, fmt.Errorf("update folder: %w", err)
	}
	return folder, nil
}

// Delete removes a folder owned by userID. Its links go with it through the
// foreign key cascade.
func (r *PostgresFolderRepository) Delete(ctx context.Context, userID, folderID string) error {
	tag, err := r.pool.Exec(ctx, `
        DELETE FROM folders
        WHERE id = $1 AND user_id = $2
    `, folderID, userID)
	if err != nil {
		return fmt.Errorf("delete folder: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func lockAndCountFolders(ctx context.Context, tx pgx.Tx, userID string) (int, error) {
	var locked string
	if err := tx.QueryRow(ctx, `SELECT id FROM users WHERE id = $1 FOR UPDATE`, userID).Scan(&locked); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("lock folder owner: %w", err)
	}

	var count int
	if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM folders WHERE user_id = $1`, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count folders: %w", err)
	}
	return count, nil
}

func insertFolder(ctx context.Context, tx pgx.Tx, folder models.Folder) (models.Folder, error) {
	row := tx.QueryRow(ctx, `
        INSERT INTO folders (id, user_id, name, emoji, sort_order, created_at)
        VALUES ($1, $2, $3, $4, $5, $6)
        RETURNING `+folderColumns,
		folder.ID, folder.UserID, folder.Name, folder.Emoji, folder.SortOrder, folder.CreatedAt)

	created, err := scanFolder(row)
	if err != nil {
		return models.Folder{}, mapWriteError("insert folder", err)
	}
	return created, nil
}

func scanFolder(row pgx.Row) (models.Folder, error) {
	var folder models.Folder
	err := row.Scan(&folder.ID, &folder.UserID, &folder.Name, &folder.Emoji, &folder.SortOrder, &folder.CreatedAt)
	return folder, err
}

var _ FolderRepository = (*PostgresFolderRepository)(nil)
