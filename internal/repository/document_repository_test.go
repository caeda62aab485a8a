package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/docsign-api/internal/models"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func documentRows(doc models.Document) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "group_id", "type", "file_name", "content_type", "size_bytes", "storage_key",
		"description", "uploaded_by", "status", "signing_mode", "deleted", "deleted_at", "created_at", "updated_at",
	}).AddRow(doc.ID, doc.GroupID, doc.Type, doc.FileName, doc.ContentType, doc.SizeBytes, doc.StorageKey,
		doc.Description, doc.UploadedBy, doc.Status, nil, doc.Deleted, nil, time.Now(), time.Now())
}

func TestDocumentRepositoryCreateAndGet(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewDocumentRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO documents")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	doc := &models.Document{
		GroupID:     "group-1",
		Type:        models.DocumentTypeContract,
		FileName:    "contract.pdf",
		ContentType: "application/pdf",
		SizeBytes:   2048,
		StorageKey:  "documents/key-1",
		UploadedBy:  "user-1",
	}
	require.NoError(t, repo.Create(context.Background(), doc))
	require.NotEmpty(t, doc.ID)
	require.Equal(t, models.SignatureStatusDraft, doc.Status)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, group_id, type")).
		WithArgs(doc.ID).
		WillReturnRows(documentRows(*doc))

	found, err := repo.GetByID(context.Background(), doc.ID, false)
	require.NoError(t, err)
	require.Equal(t, doc.ID, found.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentRepositoryGetHidesSoftDeleted(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewDocumentRepository(db)
	mock.ExpectQuery(`SELECT .+ FROM documents WHERE id = \$1 AND deleted = FALSE`).
		WithArgs("doc-gone").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "doc-gone", false)
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentRepositoryListFilters(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewDocumentRepository(db)
	doc := models.Document{ID: "doc-1", GroupID: "group-1", Status: models.SignatureStatusDraft}
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, group_id, type")).
		WithArgs("group-1", models.SignatureStatusDraft, models.SignatureStatusSentForSigning).
		WillReturnRows(documentRows(doc))

	docs, err := repo.List(context.Background(), models.DocumentFilter{
		GroupID: "group-1",
		Status:  []models.SignatureStatus{models.SignatureStatusDraft, models.SignatureStatusSentForSigning},
	})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentRepositorySoftDelete(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewDocumentRepository(db)
	now := time.Now().UTC()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE documents SET deleted = TRUE")).
		WithArgs("doc-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.SoftDelete(context.Background(), "doc-1", now))

	// Already deleted or missing rows affect nothing and surface as ErrNoRows.
	mock.ExpectExec(regexp.QuoteMeta("UPDATE documents SET deleted = TRUE")).
		WithArgs("doc-2", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	require.ErrorIs(t, repo.SoftDelete(context.Background(), "doc-2", now), sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}
