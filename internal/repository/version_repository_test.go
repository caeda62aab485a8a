package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/docsign-api/internal/models"
)

func expectVersionAppend(mock sqlmock.Sqlmock, count int) {
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM documents WHERE id = $1 FOR UPDATE")).
		WithArgs("doc-1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("doc-1"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM document_versions")).
		WithArgs("doc-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(count))
}

func TestAddVersionAllocatesDenseNumber(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewVersionRepository(db)
	mock.ExpectBegin()
	expectVersionAppend(mock, 3)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COALESCE(MAX(version_number), -1)")).
		WithArgs("doc-1").
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(2))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE document_versions SET is_current = FALSE")).
		WithArgs("doc-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO document_versions")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE documents")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	version, err := repo.AddVersion(context.Background(), AddVersionParams{
		Version: &models.DocumentVersion{
			DocumentID:  "doc-1",
			StorageKey:  "versions/v3",
			FileName:    "contract-v3.pdf",
			ContentType: "application/pdf",
			SizeBytes:   512,
			UploadedBy:  "owner-1",
			UploadedAt:  time.Now().UTC(),
		},
	})
	require.NoError(t, err)
	require.Equal(t, 3, version.VersionNumber)
	require.True(t, version.IsCurrent)
	require.NotEmpty(t, version.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAddVersionBootstrapsEmptyHistory(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewVersionRepository(db)
	mock.ExpectBegin()
	expectVersionAppend(mock, 0)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO document_versions")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COALESCE(MAX(version_number), -1)")).
		WithArgs("doc-1").
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(0))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE document_versions SET is_current = FALSE")).
		WithArgs("doc-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO document_versions")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE documents")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	bootstrap := &models.DocumentVersion{
		DocumentID:  "doc-1",
		StorageKey:  "documents/doc-1",
		FileName:    "contract.pdf",
		ContentType: "application/pdf",
		SizeBytes:   256,
		UploadedBy:  "owner-1",
		UploadedAt:  time.Now().UTC(),
	}
	version, err := repo.AddVersion(context.Background(), AddVersionParams{
		Version: &models.DocumentVersion{
			DocumentID:  "doc-1",
			StorageKey:  "versions/v1",
			FileName:    "contract-v1.pdf",
			ContentType: "application/pdf",
			SizeBytes:   512,
			UploadedBy:  "owner-1",
			UploadedAt:  time.Now().UTC(),
		},
		Bootstrap: bootstrap,
	})
	require.NoError(t, err)
	require.Equal(t, 0, bootstrap.VersionNumber)
	require.False(t, bootstrap.IsCurrent)
	require.Equal(t, 1, version.VersionNumber)
	require.True(t, version.IsCurrent)
	require.NoError(t, mock.ExpectationsWereMet())
}
