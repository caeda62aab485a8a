package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/docsign-api/internal/dto"
	"github.com/noah-isme/docsign-api/internal/models"
	"github.com/noah-isme/docsign-api/internal/repository"
	appErrors "github.com/noah-isme/docsign-api/pkg/errors"
	"github.com/noah-isme/docsign-api/pkg/export"
	"github.com/noah-isme/docsign-api/pkg/signtoken"
	"github.com/noah-isme/docsign-api/pkg/storage"
)

type signatureStore interface {
	CreateForSending(ctx context.Context, documentID string, mode models.SigningMode, signatures []*models.DocumentSignature) error
	ListByDocument(ctx context.Context, documentID string) ([]models.DocumentSignature, error)
	GetByDocumentAndSigner(ctx context.Context, documentID, signerID string) (*models.DocumentSignature, error)
	CompleteSignature(ctx context.Context, params repository.CompleteSignatureParams) (*repository.SignResult, error)
	CancelWorkflow(ctx context.Context, documentID string, cancelledAt time.Time) ([]string, error)
}

type documentGetter interface {
	GetByID(ctx context.Context, id string, includeDeleted bool) (*models.Document, error)
}

type membershipResolver interface {
	IsMember(ctx context.Context, groupID, userID string) (bool, error)
	RoleOf(ctx context.Context, groupID, userID string) (models.GroupRole, error)
}

type tokenCodec interface {
	Issue(documentID, signerID string, expiryDays int) (string, time.Time, error)
	Validate(token string) signtoken.Result
}

type notifier interface {
	Notify(ctx context.Context, n models.Notification)
}

type auditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type statusCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

type signingMetrics interface {
	SignatureCompleted()
	DocumentFullySigned()
}

// SigningConfig tunes the workflow orchestrator.
type SigningConfig struct {
	DefaultTokenExpiryDays int
	StatusCacheTTL         time.Duration
}

// SigningService owns the document signing state machine: it issues the
// signer ledger, applies token-authenticated signatures, enforces the
// sequential ordering policy, and drives document status transitions.
type SigningService struct {
	signatures signatureStore
	documents  documentGetter
	membership membershipResolver
	tokens     tokenCodec
	payloads   storage.BlobStore
	notify     notifier
	audit      auditLogger
	cache      statusCache
	metrics    signingMetrics
	exporter   *export.CSVExporter
	validator  *validator.Validate
	logger     *zap.Logger
	cfg        SigningConfig
}

// NewSigningService constructs the orchestrator.
func NewSigningService(
	signatures signatureStore,
	documents documentGetter,
	membership membershipResolver,
	tokens tokenCodec,
	payloads storage.BlobStore,
	notify notifier,
	audit auditLogger,
	cache statusCache,
	metrics signingMetrics,
	logger *zap.Logger,
	cfg SigningConfig,
) *SigningService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DefaultTokenExpiryDays <= 0 {
		cfg.DefaultTokenExpiryDays = 7
	}
	if cfg.StatusCacheTTL <= 0 {
		cfg.StatusCacheTTL = time.Minute
	}
	return &SigningService{
		signatures: signatures,
		documents:  documents,
		membership: membership,
		tokens:     tokens,
		payloads:   payloads,
		notify:     notify,
		audit:      audit,
		cache:      cache,
		metrics:    metrics,
		exporter:   export.NewCSVExporter(),
		validator:  validator.New(),
		logger:     logger,
		cfg:        cfg,
	}
}

// SendForSigning creates one ledger row per signer, each with a freshly issued
// token and a dense 1-based sign order, and moves the document to
// SENT_FOR_SIGNING. Signer validation happens before any row is written so a
// rejected request leaves no partial ledger.
func (s *SigningService) SendForSigning(ctx context.Context, documentID string, req dto.SendForSigningRequest, requesterID string) ([]models.DocumentSignature, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid signing request")
	}

	doc, err := s.loadDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if doc.Status != models.SignatureStatusDraft {
		return nil, appErrors.Clone(appErrors.ErrInvalidOperation, "document already sent for signing")
	}

	member, err := s.membership.IsMember(ctx, doc.GroupID, requesterID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check requester membership")
	}
	if !member {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "requester is not a member of the document's group")
	}

	seen := make(map[string]struct{}, len(req.SignerIDs))
	for _, signerID := range req.SignerIDs {
		if _, dup := seen[signerID]; dup {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("duplicate signer: %s", signerID))
		}
		seen[signerID] = struct{}{}

		isMember, err := s.membership.IsMember(ctx, doc.GroupID, signerID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check signer membership")
		}
		if !isMember {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("signer %s is not a member of the group", signerID))
		}
	}

	expiryDays := req.ExpiryDays
	if expiryDays <= 0 {
		expiryDays = s.cfg.DefaultTokenExpiryDays
	}

	signatures := make([]*models.DocumentSignature, 0, len(req.SignerIDs))
	for i, signerID := range req.SignerIDs {
		token, expiresAt, err := s.tokens.Issue(documentID, signerID, expiryDays)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to issue signing token")
		}
		signatures = append(signatures, &models.DocumentSignature{
			ID:             uuid.NewString(),
			DocumentID:     documentID,
			SignerID:       signerID,
			SignOrder:      i + 1,
			Status:         models.SignerStatusSentForSigning,
			SigningMode:    req.Mode,
			Token:          token,
			TokenExpiresAt: expiresAt,
			DueDate:        req.DueDate,
			Message:        optionalString(req.Message),
		})
	}

	if err := s.signatures.CreateForSending(ctx, documentID, req.Mode, signatures); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create signature ledger")
	}

	s.invalidateStatus(ctx, documentID)
	s.emitAudit(ctx, &models.AuditLog{
		UserID:     &requesterID,
		Action:     models.AuditActionSendForSigning,
		Resource:   "document",
		ResourceID: &documentID,
		NewValues:  mustJSON(map[string]interface{}{"signers": req.SignerIDs, "mode": req.Mode}),
	})

	for _, sig := range signatures {
		s.notify.Notify(ctx, models.Notification{
			Event:       models.NotificationSignatureRequested,
			RecipientID: sig.SignerID,
			DocumentID:  documentID,
			Message:     req.Message,
		})
	}
	if req.Mode == models.SigningModeSequential {
		s.notify.Notify(ctx, models.Notification{
			Event:       models.NotificationYourTurn,
			RecipientID: signatures[0].SignerID,
			DocumentID:  documentID,
		})
	}

	result := make([]models.DocumentSignature, len(signatures))
	for i, sig := range signatures {
		result[i] = *sig
	}
	return result, nil
}

// SignDocument applies one token-authenticated signature. The ledger write and
// the document status recompute happen in a single store transaction.
func (s *SigningService) SignDocument(ctx context.Context, documentID string, req dto.SignDocumentRequest, callerID string) (*models.DocumentSignature, error) {
	decoded := s.tokens.Validate(req.Token)
	if !decoded.Valid && !decoded.Expired {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid signing token")
	}
	// A token for another document or another signer is indistinguishable from
	// an invalid one on the wire. The mismatch check runs before the expiry
	// check, so an expired token for the wrong resource still reads as invalid.
	if decoded.DocumentID != documentID || decoded.SignerID != callerID {
		s.logger.Info("signing token mismatch",
			zap.String("token_document_id", decoded.DocumentID),
			zap.String("path_document_id", documentID))
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid signing token")
	}
	if decoded.Expired {
		s.logger.Info("rejected expired signing token",
			zap.String("document_id", decoded.DocumentID),
			zap.String("signer_id", decoded.SignerID))
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "signing token expired")
	}

	if strings.TrimSpace(req.SignaturePayload) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "signature payload is required")
	}

	doc, err := s.loadDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}

	row, err := s.signatures.GetByDocumentAndSigner(ctx, documentID, callerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid signing token")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load signature")
	}
	now := time.Now().UTC()
	if now.After(row.TokenExpiresAt) {
		s.logger.Info("rejected signature with expired ledger token",
			zap.String("document_id", documentID),
			zap.String("signer_id", callerID))
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "signing token expired")
	}

	// Conflicts are pre-checked before the payload blob is written; a rejected
	// request must leave no partial state behind. The row locks inside
	// CompleteSignature remain the authoritative gate under concurrent signs.
	switch row.Status {
	case models.SignerStatusCompleted:
		return nil, appErrors.Clone(appErrors.ErrConflict, "document already signed by this signer")
	case models.SignerStatusCancelled:
		return nil, appErrors.Clone(appErrors.ErrConflict, "signing workflow has been cancelled")
	}
	if row.SigningMode == models.SigningModeSequential {
		ledger, err := s.signatures.ListByDocument(ctx, documentID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list signatures")
		}
		for _, sig := range ledger {
			if sig.SignOrder < row.SignOrder && sig.Status != models.SignerStatusCompleted {
				return nil, appErrors.Clone(appErrors.ErrConflict, "prior signers must complete before this signature")
			}
		}
	}

	payloadKey := fmt.Sprintf("signatures/%s/%s-%s", documentID, callerID, uuid.NewString())
	if _, err := s.payloads.Put(payloadKey, strings.NewReader(req.SignaturePayload), "application/octet-stream"); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store signature payload")
	}

	result, err := s.signatures.CompleteSignature(ctx, repository.CompleteSignatureParams{
		DocumentID: documentID,
		SignerID:   callerID,
		SignedAt:   now,
		PayloadKey: &payloadKey,
		IPAddress:  optionalString(req.IP),
		DeviceInfo: optionalString(req.DeviceInfo),
	})
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrAlreadySigned):
			return nil, appErrors.Clone(appErrors.ErrConflict, "document already signed by this signer")
		case errors.Is(err, repository.ErrPriorSignaturesPending):
			return nil, appErrors.Clone(appErrors.ErrConflict, "prior signers must complete before this signature")
		case errors.Is(err, repository.ErrWorkflowCancelled):
			return nil, appErrors.Clone(appErrors.ErrConflict, "signing workflow has been cancelled")
		case errors.Is(err, sql.ErrNoRows):
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid signing token")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to apply signature")
	}

	if s.metrics != nil {
		s.metrics.SignatureCompleted()
		if result.AllSigned {
			s.metrics.DocumentFullySigned()
		}
	}

	s.invalidateStatus(ctx, documentID)
	s.emitAudit(ctx, &models.AuditLog{
		UserID:     &callerID,
		Action:     models.AuditActionSignDocument,
		Resource:   "document",
		ResourceID: &documentID,
		NewValues:  mustJSON(map[string]interface{}{"status": result.DocumentStatus}),
		IPAddress:  req.IP,
		UserAgent:  req.DeviceInfo,
	})

	s.notify.Notify(ctx, models.Notification{
		Event:       models.NotificationSignatureReceived,
		RecipientID: doc.UploadedBy,
		DocumentID:  documentID,
	})
	if result.NextSignerID != nil {
		s.notify.Notify(ctx, models.Notification{
			Event:       models.NotificationYourTurn,
			RecipientID: *result.NextSignerID,
			DocumentID:  documentID,
		})
	}
	if result.AllSigned {
		s.notifyAllParties(ctx, doc, documentID)
	}

	signature := result.Signature
	return &signature, nil
}

// GetSignatureStatus returns the document's signing progress with the
// per-signer breakdown. Responses are cached briefly; every transition
// invalidates the cache.
func (s *SigningService) GetSignatureStatus(ctx context.Context, documentID, callerID string) (*dto.SignatureStatusResponse, error) {
	doc, err := s.loadDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}

	member, err := s.membership.IsMember(ctx, doc.GroupID, callerID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check membership")
	}
	if !member {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "caller is not a member of the document's group")
	}

	if s.cache != nil {
		var cached dto.SignatureStatusResponse
		if err := s.cache.Get(ctx, statusCacheKey(documentID), &cached); err == nil {
			return &cached, nil
		}
	}

	signatures, err := s.signatures.ListByDocument(ctx, documentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list signatures")
	}

	signed := 0
	signers := make([]dto.SignerStatusItem, len(signatures))
	mode := models.SigningModeParallel
	for i, sig := range signatures {
		if sig.Status == models.SignerStatusCompleted {
			signed++
		}
		mode = sig.SigningMode
		signers[i] = dto.SignerStatusItem{
			SignerID:  sig.SignerID,
			SignOrder: sig.SignOrder,
			Status:    sig.Status,
			SignedAt:  sig.SignedAt,
		}
	}

	status := &dto.SignatureStatusResponse{
		DocumentID: documentID,
		Status:     doc.Status,
		Mode:       mode,
		Total:      len(signatures),
		Signed:     signed,
		Percentage: float64(signed) / float64(len(signatures)) * 100,
		Signers:    signers,
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, statusCacheKey(documentID), status, s.cfg.StatusCacheTTL); err != nil {
			s.logger.Warn("failed to cache signature status", zap.Error(err))
		}
	}
	return status, nil
}

// ExportSignatures renders the signature ledger as CSV so the evidence trail
// can be handed off outside the system.
func (s *SigningService) ExportSignatures(ctx context.Context, documentID, callerID string) ([]byte, error) {
	doc, err := s.loadDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	member, err := s.membership.IsMember(ctx, doc.GroupID, callerID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check membership")
	}
	if !member {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "caller is not a member of the document's group")
	}

	signatures, err := s.signatures.ListByDocument(ctx, documentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list signatures")
	}

	dataset := export.Dataset{
		Headers: []string{"signer_id", "sign_order", "status", "signing_mode", "signed_at", "ip_address"},
		Rows:    make([]map[string]string, len(signatures)),
	}
	for i, sig := range signatures {
		row := map[string]string{
			"signer_id":    sig.SignerID,
			"sign_order":   fmt.Sprintf("%d", sig.SignOrder),
			"status":       string(sig.Status),
			"signing_mode": string(sig.SigningMode),
		}
		if sig.SignedAt != nil {
			row["signed_at"] = sig.SignedAt.UTC().Format(time.RFC3339)
		}
		if sig.IPAddress != nil {
			row["ip_address"] = *sig.IPAddress
		}
		dataset.Rows[i] = row
	}

	data, err := s.exporter.Render(dataset)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render signature export")
	}
	return data, nil
}

// CancelSigning terminates an in-flight workflow. Only the uploader or a group
// admin may cancel, and only while signatures are outstanding.
func (s *SigningService) CancelSigning(ctx context.Context, documentID, callerID string) error {
	doc, err := s.loadDocument(ctx, documentID)
	if err != nil {
		return err
	}
	if doc.Status != models.SignatureStatusSentForSigning && doc.Status != models.SignatureStatusPartiallySigned {
		return appErrors.Clone(appErrors.ErrInvalidOperation, "no signing workflow in progress")
	}

	if doc.UploadedBy != callerID {
		role, err := s.membership.RoleOf(ctx, doc.GroupID, callerID)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve caller role")
		}
		if role != models.GroupRoleAdmin {
			return appErrors.Clone(appErrors.ErrUnauthorized, "only the uploader or a group admin may cancel signing")
		}
	}

	pending, err := s.signatures.CancelWorkflow(ctx, documentID, time.Now().UTC())
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel workflow")
	}

	s.invalidateStatus(ctx, documentID)
	s.emitAudit(ctx, &models.AuditLog{
		UserID:     &callerID,
		Action:     models.AuditActionCancelSigning,
		Resource:   "document",
		ResourceID: &documentID,
	})
	for _, signerID := range pending {
		s.notify.Notify(ctx, models.Notification{
			Event:       models.NotificationSigningCancelled,
			RecipientID: signerID,
			DocumentID:  documentID,
		})
	}
	return nil
}

func (s *SigningService) loadDocument(ctx context.Context, documentID string) (*models.Document, error) {
	doc, err := s.documents.GetByID(ctx, documentID, false)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load document")
	}
	return doc, nil
}

func (s *SigningService) notifyAllParties(ctx context.Context, doc *models.Document, documentID string) {
	recipients := map[string]struct{}{doc.UploadedBy: {}}
	signatures, err := s.signatures.ListByDocument(ctx, documentID)
	if err != nil {
		s.logger.Warn("failed to list signers for all-signed notification", zap.Error(err))
	} else {
		for _, sig := range signatures {
			recipients[sig.SignerID] = struct{}{}
		}
	}
	for recipient := range recipients {
		s.notify.Notify(ctx, models.Notification{
			Event:       models.NotificationAllSigned,
			RecipientID: recipient,
			DocumentID:  documentID,
		})
	}
}

func (s *SigningService) invalidateStatus(ctx context.Context, documentID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, statusCacheKey(documentID)); err != nil {
		s.logger.Warn("failed to invalidate status cache", zap.Error(err))
	}
}

func (s *SigningService) emitAudit(ctx context.Context, log *models.AuditLog) {
	if s.audit == nil || log == nil {
		return
	}
	if log.IPAddress == "" {
		log.IPAddress = "system"
	}
	if log.UserAgent == "" {
		log.UserAgent = "signing-service"
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to persist audit log", zap.Error(err))
	}
}

func statusCacheKey(documentID string) string {
	return "signing:status:" + documentID
}

func optionalString(value string) *string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	v := strings.TrimSpace(value)
	return &v
}

func mustJSON(value interface{}) []byte {
	raw, err := json.Marshal(value)
	if err != nil {
		return []byte("{}")
	}
	return raw
}
