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

func ledgerRows(signatures ...models.DocumentSignature) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{
		"id", "document_id", "signer_id", "sign_order", "status", "signing_mode", "token",
		"token_expires_at", "signed_at", "payload_key", "ip_address", "device_info", "due_date", "message", "created_at", "updated_at",
	})
	for _, sig := range signatures {
		rows.AddRow(sig.ID, sig.DocumentID, sig.SignerID, sig.SignOrder, sig.Status, sig.SigningMode, sig.Token,
			sig.TokenExpiresAt, sig.SignedAt, sig.PayloadKey, sig.IPAddress, sig.DeviceInfo, sig.DueDate, sig.Message, time.Now(), time.Now())
	}
	return rows
}

func ledgerEntry(id, signerID string, order int, status models.SignerStatus, mode models.SigningMode) models.DocumentSignature {
	return models.DocumentSignature{
		ID:             id,
		DocumentID:     "doc-1",
		SignerID:       signerID,
		SignOrder:      order,
		Status:         status,
		SigningMode:    mode,
		Token:          "token-" + signerID,
		TokenExpiresAt: time.Now().Add(24 * time.Hour),
	}
}

func TestCreateForSendingIsTransactional(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewSignatureRepository(db)
	signatures := []*models.DocumentSignature{
		{DocumentID: "doc-1", SignerID: "signer-a", SignOrder: 1, SigningMode: models.SigningModeSequential},
		{DocumentID: "doc-1", SignerID: "signer-b", SignOrder: 2, SigningMode: models.SigningModeSequential},
	}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO document_signatures")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO document_signatures")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE documents SET status")).
		WithArgs("doc-1", models.SignatureStatusSentForSigning, models.SigningModeSequential, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.CreateForSending(context.Background(), "doc-1", models.SigningModeSequential, signatures))
	require.NotEmpty(t, signatures[0].ID)
	require.Equal(t, models.SignerStatusSentForSigning, signatures[0].Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCompleteSignatureMarksPartialProgress(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewSignatureRepository(db)
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .+ FROM document_signatures\s+WHERE document_id = \$1 ORDER BY sign_order FOR UPDATE`).
		WithArgs("doc-1").
		WillReturnRows(ledgerRows(
			ledgerEntry("sig-1", "signer-a", 1, models.SignerStatusSentForSigning, models.SigningModeSequential),
			ledgerEntry("sig-2", "signer-b", 2, models.SignerStatusSentForSigning, models.SigningModeSequential),
		))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE document_signatures")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE documents SET status")).
		WithArgs("doc-1", models.SignatureStatusPartiallySigned, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	result, err := repo.CompleteSignature(context.Background(), CompleteSignatureParams{
		DocumentID: "doc-1",
		SignerID:   "signer-a",
		SignedAt:   time.Now().UTC(),
	})
	require.NoError(t, err)
	require.Equal(t, models.SignatureStatusPartiallySigned, result.DocumentStatus)
	require.False(t, result.AllSigned)
	require.NotNil(t, result.NextSignerID)
	require.Equal(t, "signer-b", *result.NextSignerID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCompleteSignatureLastSignerFlipsFullySigned(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewSignatureRepository(db)
	signedAt := time.Now().UTC().Add(-time.Hour)
	first := ledgerEntry("sig-1", "signer-a", 1, models.SignerStatusCompleted, models.SigningModeSequential)
	first.SignedAt = &signedAt

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .+ FOR UPDATE`).
		WithArgs("doc-1").
		WillReturnRows(ledgerRows(
			first,
			ledgerEntry("sig-2", "signer-b", 2, models.SignerStatusSentForSigning, models.SigningModeSequential),
		))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE document_signatures")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE documents SET status")).
		WithArgs("doc-1", models.SignatureStatusFullySigned, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	result, err := repo.CompleteSignature(context.Background(), CompleteSignatureParams{
		DocumentID: "doc-1",
		SignerID:   "signer-b",
		SignedAt:   time.Now().UTC(),
	})
	require.NoError(t, err)
	require.True(t, result.AllSigned)
	require.Equal(t, models.SignatureStatusFullySigned, result.DocumentStatus)
	require.Nil(t, result.NextSignerID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCompleteSignatureEnforcesSequentialOrder(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewSignatureRepository(db)
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .+ FOR UPDATE`).
		WithArgs("doc-1").
		WillReturnRows(ledgerRows(
			ledgerEntry("sig-1", "signer-a", 1, models.SignerStatusSentForSigning, models.SigningModeSequential),
			ledgerEntry("sig-2", "signer-b", 2, models.SignerStatusSentForSigning, models.SigningModeSequential),
		))
	mock.ExpectRollback()

	_, err := repo.CompleteSignature(context.Background(), CompleteSignatureParams{
		DocumentID: "doc-1",
		SignerID:   "signer-b",
		SignedAt:   time.Now().UTC(),
	})
	require.ErrorIs(t, err, ErrPriorSignaturesPending)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCompleteSignatureRejectsDoubleSigning(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewSignatureRepository(db)
	signedAt := time.Now().UTC().Add(-time.Hour)
	done := ledgerEntry("sig-1", "signer-a", 1, models.SignerStatusCompleted, models.SigningModeParallel)
	done.SignedAt = &signedAt

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .+ FOR UPDATE`).
		WithArgs("doc-1").
		WillReturnRows(ledgerRows(done))
	mock.ExpectRollback()

	_, err := repo.CompleteSignature(context.Background(), CompleteSignatureParams{
		DocumentID: "doc-1",
		SignerID:   "signer-a",
		SignedAt:   time.Now().UTC(),
	})
	require.ErrorIs(t, err, ErrAlreadySigned)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCompleteSignatureOnCancelledWorkflow(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewSignatureRepository(db)
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .+ FOR UPDATE`).
		WithArgs("doc-1").
		WillReturnRows(ledgerRows(
			ledgerEntry("sig-1", "signer-a", 1, models.SignerStatusCancelled, models.SigningModeParallel),
		))
	mock.ExpectRollback()

	_, err := repo.CompleteSignature(context.Background(), CompleteSignatureParams{
		DocumentID: "doc-1",
		SignerID:   "signer-a",
		SignedAt:   time.Now().UTC(),
	})
	require.ErrorIs(t, err, ErrWorkflowCancelled)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCancelWorkflowReturnsPendingSigners(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewSignatureRepository(db)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT signer_id FROM document_signatures")).
		WithArgs("doc-1", models.SignerStatusSentForSigning).
		WillReturnRows(sqlmock.NewRows([]string{"signer_id"}).AddRow("signer-b").AddRow("signer-c"))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE document_signatures SET status")).
		WithArgs("doc-1", models.SignerStatusCancelled, sqlmock.AnyArg(), models.SignerStatusSentForSigning).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE documents SET status")).
		WithArgs("doc-1", models.SignatureStatusCancelled, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	pending, err := repo.CancelWorkflow(context.Background(), "doc-1", time.Now().UTC())
	require.NoError(t, err)
	require.Equal(t, []string{"signer-b", "signer-c"}, pending)
	require.NoError(t, mock.ExpectationsWereMet())
}
