package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moolinks/backend/internal/models"
)

var linkRowColumns = []string{"id", "user_id", "folder_id", "url", "title", "thumbnail_url", "sort_order", "created_at"}

func TestLinkCreateReturnsRow(t *testing.T) {
	t.Parallel()

	mock := newMockPool(t)
	repo := NewPostgresLinkRepository(mock)

	now := time.Unix(1700000000, 0).UTC()
	thumb := "https://i.ytimg.com/vi/x/hqdefault.jpg"
	link := models.Link{
		ID:           "l-1",
		UserID:       "u-1",
		FolderID:     "f-1",
		URL:          "https://www.youtube.com/watch?v=x",
		Title:        "Video",
		ThumbnailURL: &thumb,
		CreatedAt:    now,
	}

	mock.ExpectQuery(`INSERT INTO links .* WHERE EXISTS \(SELECT 1 FROM folders`).
		WithArgs("l-1", "u-1", "f-1", link.URL, "Video", &thumb, 0, now).
		WillReturnRows(pgxmock.NewRows(linkRowColumns).AddRow("l-1", "u-1", "f-1", link.URL, "Video", &thumb, 0, now))

	created, err := repo.Create(context.Background(), link)
	require.NoError(t, err)
	assert.Equal(t, link, created)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLinkCreateForeignFolder(t *testing.T) {
	t.Parallel()

	mock := newMockPool(t)
	repo := NewPostgresLinkRepository(mock)

	mock.ExpectQuery(`INSERT INTO links`).
		WithArgs(pgxmock.AnyArg(), "u-1", "someone-elses", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.Create(context.Background(), models.Link{ID: "l", UserID: "u-1", FolderID: "someone-elses", URL: "https://example.com", Title: "x"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLinkListFolderFilter(t *testing.T) {
	t.Parallel()

	mock := newMockPool(t)
	repo := NewPostgresLinkRepository(mock)

	now := time.Unix(1700000000, 0).UTC()
	mock.ExpectQuery(`ORDER BY sort_order ASC, created_at DESC`).
		WithArgs("u-1", "f-1").
		WillReturnRows(pgxmock.NewRows(linkRowColumns).
			AddRow("l-1", "u-1", "f-1", "https://a.example", "A", (*string)(nil), 0, now).
			AddRow("l-2", "u-1", "f-1", "https://b.example", "B", (*string)(nil), 1, now))
	mock.ExpectQuery(`FROM links`).
		WithArgs("u-1", "").
		WillReturnRows(pgxmock.NewRows(linkRowColumns))

	links, err := repo.List(context.Background(), "u-1", "f-1")
	require.NoError(t, err)
	require.Len(t, links, 2)
	assert.Nil(t, links[0].ThumbnailURL)
	assert.Equal(t, 1, links[1].SortOrder)

	all, err := repo.List(context.Background(), "u-1", "")
	require.NoError(t, err)
	assert.NotNil(t, all)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLinkUpdatePatch(t *testing.T) {
	t.Parallel()

	mock := newMockPool(t)
	repo := NewPostgresLinkRepository(mock)

	now := time.Unix(1700000000, 0).UTC()
	title := "Edited"
	patch := models.LinkPatch{Title: &title, SetThumbnail: true}

	mock.ExpectQuery(`UPDATE links`).
		WithArgs("l-1", "u-1", &title, true, (*string)(nil)).
		WillReturnRows(pgxmock.NewRows(linkRowColumns).AddRow("l-1", "u-1", "f-1", "https://a.example", "Edited", (*string)(nil), 0, now))

	updated, err := repo.Update(context.Background(), "u-1", "l-1", patch)
	require.NoError(t, err)
	assert.Equal(t, "Edited", updated.Title)
	assert.Nil(t, updated.ThumbnailURL)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLinkUpdateMissing(t *testing.T) {
	t.Parallel()

	mock := newMockPool(t)
	repo := NewPostgresLinkRepository(mock)

	mock.ExpectQuery(`UPDATE links`).
		WithArgs("l-1", "u-2", pgxmock.AnyArg(), false, pgxmock.AnyArg()).
		WillReturnError(pgx.ErrNoRows)

	title := "x"
	_, err := repo.Update(context.Background(), "u-2", "l-1", models.LinkPatch{Title: &title})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLinkDeleteMissingIsNotAnError(t *testing.T) {
	t.Parallel()

	mock := newMockPool(t)
	repo := NewPostgresLinkRepository(mock)

	mock.ExpectExec(`DELETE FROM links`).
		WithArgs("l-404", "u-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	require.NoError(t, repo.Delete(context.Background(), "u-1", "l-404"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLinkMove(t *testing.T) {
	t.Parallel()

	mock := newMockPool(t)
	repo := NewPostgresLinkRepository(mock)

	mock.ExpectExec(`UPDATE links\s+SET folder_id = \$3`).
		WithArgs("l-1", "u-1", "f-2").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`UPDATE links\s+SET folder_id = \$3`).
		WithArgs("l-1", "u-1", "foreign").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	require.NoError(t, repo.Move(context.Background(), "u-1", "l-1", "f-2"))
	assert.ErrorIs(t, repo.Move(context.Background(), "u-1", "l-1", "foreign"), ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLinkReorderWritesEveryIndexInOneTransaction(t *testing.T) {
	t.Parallel()

	mock := newMockPool(t)
	repo := NewPostgresLinkRepository(mock)

	ids := []string{"c", "a", "b"}
	mock.ExpectBegin()
	for index, id := range ids {
		mock.ExpectExec(`UPDATE links\s+SET sort_order = \$1`).
			WithArgs(index, id, "u-1", "f-1").
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	}
	mock.ExpectCommit()

	require.NoError(t, repo.Reorder(context.Background(), "u-1", "f-1", ids))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLinkReorderRollsBackOnFailure(t *testing.T) {
	t.Parallel()

	mock := newMockPool(t)
	repo := NewPostgresLinkRepository(mock)

	boom := errors.New("serialization failure")
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE links`).
		WithArgs(0, "a", "u-1", "f-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`UPDATE links`).
		WithArgs(1, "b", "u-1", "f-1").
		WillReturnError(boom)
	mock.ExpectRollback()

	err := repo.Reorder(context.Background(), "u-1", "f-1", []string{"a", "b", "c"})
	assert.ErrorIs(t, err, boom)
	require.NoError(t, mock.ExpectationsWereMet())
}
