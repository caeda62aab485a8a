package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/docsign-api/internal/models"
)

// Sign-transaction outcomes the service layer maps onto the error taxonomy.
var (
	ErrAlreadySigned          = errors.New("signature already completed")
	ErrPriorSignaturesPending = errors.New("prior signers must complete first")
	ErrWorkflowCancelled      = errors.New("signing workflow cancelled")
)

// SignatureRepository persists the per-document, per-signer signature ledger
// and owns the transactional sign unit of work.
type SignatureRepository struct {
	db *sqlx.DB
}

// NewSignatureRepository constructs the repository.
func NewSignatureRepository(db *sqlx.DB) *SignatureRepository {
	return &SignatureRepository{db: db}
}

const signatureColumns = `id, document_id, signer_id, sign_order, status, signing_mode, token,
       token_expires_at, signed_at, payload_key, ip_address, device_info, due_date, message, created_at, updated_at`

// CreateForSending inserts the full signer batch and moves the document to
// SENT_FOR_SIGNING in a single transaction, so a failed insert leaves no
// partial ledger behind.
func (r *SignatureRepository) CreateForSending(ctx context.Context, documentID string, mode models.SigningMode, signatures []*models.DocumentSignature) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin send transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()
	const insert = `INSERT INTO document_signatures
	(id, document_id, signer_id, sign_order, status, signing_mode, token, token_expires_at, signed_at, payload_key, ip_address, device_info, due_date, message, created_at, updated_at)
	VALUES (:id, :document_id, :signer_id, :sign_order, :status, :signing_mode, :token, :token_expires_at, :signed_at, :payload_key, :ip_address, :device_info, :due_date, :message, :created_at, :updated_at)`
	for _, sig := range signatures {
		if sig.ID == "" {
			sig.ID = uuid.NewString()
		}
		if sig.Status == "" {
			sig.Status = models.SignerStatusSentForSigning
		}
		sig.CreatedAt = now
		sig.UpdatedAt = now
		if _, err := tx.NamedExecContext(ctx, insert, sig); err != nil {
			return fmt.Errorf("create signature for %s: %w", sig.SignerID, err)
		}
	}

	const updateDoc = `UPDATE documents SET status = $2, signing_mode = $3, updated_at = $4 WHERE id = $1`
	if _, err := tx.ExecContext(ctx, updateDoc, documentID, models.SignatureStatusSentForSigning, mode, now); err != nil {
		return fmt.Errorf("mark document sent for signing: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit send transaction: %w", err)
	}
	return nil
}

// ListByDocument returns the signature ledger ordered by sign order.
func (r *SignatureRepository) ListByDocument(ctx context.Context, documentID string) ([]models.DocumentSignature, error) {
	const query = `SELECT ` + signatureColumns + ` FROM document_signatures
	WHERE document_id = $1 ORDER BY sign_order`
	var signatures []models.DocumentSignature
	if err := r.db.SelectContext(ctx, &signatures, query, documentID); err != nil {
		return nil, fmt.Errorf("list signatures: %w", err)
	}
	return signatures, nil
}

// GetByDocumentAndSigner fetches a single ledger row.
func (r *SignatureRepository) GetByDocumentAndSigner(ctx context.Context, documentID, signerID string) (*models.DocumentSignature, error) {
	const query = `SELECT ` + signatureColumns + ` FROM document_signatures
	WHERE document_id = $1 AND signer_id = $2`
	var sig models.DocumentSignature
	if err := r.db.GetContext(ctx, &sig, query, documentID, signerID); err != nil {
		return nil, err
	}
	return &sig, nil
}

// CompleteSignatureParams groups the inputs of the sign unit of work.
type CompleteSignatureParams struct {
	DocumentID string
	SignerID   string
	SignedAt   time.Time
	PayloadKey *string
	IPAddress  *string
	DeviceInfo *string
}

// SignResult reports the transaction outcome to the orchestrator.
type SignResult struct {
	Signature      models.DocumentSignature
	DocumentStatus models.SignatureStatus
	NextSignerID   *string
	AllSigned      bool
}

// CompleteSignature marks one signature completed and recomputes the document
// status from the same locked snapshot. The row locks guard both races the
// workflow is exposed to: two signers completing the last two signatures
// concurrently, and a sequential-order check reading a stale predecessor.
func (r *SignatureRepository) CompleteSignature(ctx context.Context, params CompleteSignatureParams) (*SignResult, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin sign transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const lockQuery = `SELECT ` + signatureColumns + ` FROM document_signatures
	WHERE document_id = $1 ORDER BY sign_order FOR UPDATE`
	var ledger []models.DocumentSignature
	if err := tx.SelectContext(ctx, &ledger, lockQuery, params.DocumentID); err != nil {
		return nil, fmt.Errorf("lock signature ledger: %w", err)
	}
	if len(ledger) == 0 {
		return nil, sql.ErrNoRows
	}

	targetIdx := -1
	for i := range ledger {
		if ledger[i].SignerID == params.SignerID {
			targetIdx = i
			break
		}
	}
	if targetIdx == -1 {
		return nil, sql.ErrNoRows
	}
	target := &ledger[targetIdx]

	switch target.Status {
	case models.SignerStatusCompleted:
		return nil, ErrAlreadySigned
	case models.SignerStatusCancelled:
		return nil, ErrWorkflowCancelled
	}

	if target.SigningMode == models.SigningModeSequential {
		for i := range ledger {
			if ledger[i].SignOrder < target.SignOrder && ledger[i].Status != models.SignerStatusCompleted {
				return nil, ErrPriorSignaturesPending
			}
		}
	}

	const updateSig = `UPDATE document_signatures
	SET status = $2, signed_at = $3, payload_key = $4, ip_address = $5, device_info = $6, updated_at = $3
	WHERE id = $1`
	if _, err := tx.ExecContext(ctx, updateSig, target.ID, models.SignerStatusCompleted,
		params.SignedAt, params.PayloadKey, params.IPAddress, params.DeviceInfo); err != nil {
		return nil, fmt.Errorf("complete signature: %w", err)
	}

	target.Status = models.SignerStatusCompleted
	signedAt := params.SignedAt
	target.SignedAt = &signedAt
	target.PayloadKey = params.PayloadKey
	target.IPAddress = params.IPAddress
	target.DeviceInfo = params.DeviceInfo

	allSigned := true
	for i := range ledger {
		if ledger[i].Status != models.SignerStatusCompleted {
			allSigned = false
			break
		}
	}

	docStatus := models.SignatureStatusPartiallySigned
	if allSigned {
		docStatus = models.SignatureStatusFullySigned
	}
	const updateDoc = `UPDATE documents SET status = $2, updated_at = $3 WHERE id = $1`
	if _, err := tx.ExecContext(ctx, updateDoc, params.DocumentID, docStatus, params.SignedAt); err != nil {
		return nil, fmt.Errorf("recompute document status: %w", err)
	}

	var nextSignerID *string
	if !allSigned && target.SigningMode == models.SigningModeSequential {
		for i := range ledger {
			if ledger[i].Status == models.SignerStatusSentForSigning {
				id := ledger[i].SignerID
				nextSignerID = &id
				break
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit sign transaction: %w", err)
	}

	return &SignResult{
		Signature:      *target,
		DocumentStatus: docStatus,
		NextSignerID:   nextSignerID,
		AllSigned:      allSigned,
	}, nil
}

// CancelWorkflow marks every pending signature and the document itself
// CANCELLED in one transaction and returns the signers still pending so the
// caller can notify them.
func (r *SignatureRepository) CancelWorkflow(ctx context.Context, documentID string, cancelledAt time.Time) ([]string, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin cancel transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const pendingQuery = `SELECT signer_id FROM document_signatures
	WHERE document_id = $1 AND status = $2 ORDER BY sign_order FOR UPDATE`
	var pending []string
	if err := tx.SelectContext(ctx, &pending, pendingQuery, documentID, models.SignerStatusSentForSigning); err != nil {
		return nil, fmt.Errorf("lock pending signatures: %w", err)
	}

	const updateSigs = `UPDATE document_signatures SET status = $2, updated_at = $3
	WHERE document_id = $1 AND status = $4`
	if _, err := tx.ExecContext(ctx, updateSigs, documentID, models.SignerStatusCancelled,
		cancelledAt, models.SignerStatusSentForSigning); err != nil {
		return nil, fmt.Errorf("cancel signatures: %w", err)
	}

	const updateDoc = `UPDATE documents SET status = $2, updated_at = $3 WHERE id = $1`
	if _, err := tx.ExecContext(ctx, updateDoc, documentID, models.SignatureStatusCancelled, cancelledAt); err != nil {
		return nil, fmt.Errorf("cancel document workflow: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit cancel transaction: %w", err)
	}
	return pending, nil
}
