package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/docsign-api/internal/models"
)

func TestCertificateRepositoryCreateAndGet(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewCertificateRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO signing_certificates")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	now := time.Now().UTC()
	cert := &models.SigningCertificate{
		CertificateID: "CERT-20260315100000-abcd1234",
		DocumentID:    "doc-1",
		ContentHash:   "hash",
		SignerRoster:  []byte(`[]`),
		GeneratedAt:   now,
		ExpiresAt:     now.AddDate(10, 0, 0),
		GeneratedBy:   "user-1",
	}
	require.NoError(t, repo.Create(context.Background(), cert))
	require.NotEmpty(t, cert.ID)

	rows := sqlmock.NewRows([]string{
		"id", "certificate_id", "document_id", "content_hash", "signer_roster",
		"generated_at", "expires_at", "revoked", "revoked_at", "revocation_reason", "generated_by",
	}).AddRow(cert.ID, cert.CertificateID, cert.DocumentID, cert.ContentHash, cert.SignerRoster,
		cert.GeneratedAt, cert.ExpiresAt, false, nil, nil, cert.GeneratedBy)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, certificate_id, document_id")).
		WithArgs(cert.CertificateID).
		WillReturnRows(rows)

	found, err := repo.GetByCertificateID(context.Background(), cert.CertificateID)
	require.NoError(t, err)
	require.Equal(t, cert.CertificateID, found.CertificateID)
	require.False(t, found.Revoked)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCertificateRepositoryRevoke(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewCertificateRepository(db)
	now := time.Now().UTC()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE signing_certificates")).
		WithArgs("CERT-1", sqlmock.AnyArg(), "compromised").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Revoke(context.Background(), "CERT-1", "compromised", now))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCertificateRepositoryRevokeAlreadyRevokedIsNoOp(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewCertificateRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE signing_certificates")).
		WithArgs("CERT-1", sqlmock.AnyArg(), "again").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
		WithArgs("CERT-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	require.NoError(t, repo.Revoke(context.Background(), "CERT-1", "again", time.Now().UTC()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCertificateRepositoryRevokeMissing(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewCertificateRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE signing_certificates")).
		WithArgs("CERT-missing", sqlmock.AnyArg(), "whatever").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
		WithArgs("CERT-missing").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	err := repo.Revoke(context.Background(), "CERT-missing", "whatever", time.Now().UTC())
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}
