package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/docsign-api/internal/dto"
	"github.com/noah-isme/docsign-api/internal/models"
	appErrors "github.com/noah-isme/docsign-api/pkg/errors"
	"github.com/noah-isme/docsign-api/pkg/export"
	"github.com/noah-isme/docsign-api/pkg/storage"
)

type certificateStore interface {
	Create(ctx context.Context, cert *models.SigningCertificate) error
	GetByCertificateID(ctx context.Context, certificateID string) (*models.SigningCertificate, error)
	ListByDocument(ctx context.Context, documentID string) ([]models.SigningCertificate, error)
	Revoke(ctx context.Context, certificateID, reason string, revokedAt time.Time) error
}

type rosterSignatureLister interface {
	ListByDocument(ctx context.Context, documentID string) ([]models.DocumentSignature, error)
}

type memberNameResolver interface {
	IsMember(ctx context.Context, groupID, userID string) (bool, error)
	MemberNames(ctx context.Context, userIDs []string) (map[string]string, error)
}

type certificateRenderer interface {
	Render(report export.CertificateReport) ([]byte, error)
}

type certificateMetrics interface {
	CertificateIssued()
	CertificateRevoked()
}

// CertificateConfig tunes certificate identity and lifetime.
type CertificateConfig struct {
	IDPrefix      string
	ValidityYears int
}

// CertificateService issues, verifies and revokes completion certificates.
// A certificate snapshots the document content hash and the signer roster at
// generation time; neither is ever mutated afterwards.
type CertificateService struct {
	certificates certificateStore
	documents    documentGetter
	signatures   rosterSignatureLister
	membership   memberNameResolver
	blobs        storage.BlobStore
	renderer     certificateRenderer
	audit        auditLogger
	metrics      certificateMetrics
	validator    *validator.Validate
	logger       *zap.Logger
	now          func() time.Time
	cfg          CertificateConfig
}

// NewCertificateService constructs the service.
func NewCertificateService(
	certificates certificateStore,
	documents documentGetter,
	signatures rosterSignatureLister,
	membership memberNameResolver,
	blobs storage.BlobStore,
	renderer certificateRenderer,
	audit auditLogger,
	metrics certificateMetrics,
	logger *zap.Logger,
	cfg CertificateConfig,
) *CertificateService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.IDPrefix == "" {
		cfg.IDPrefix = "CERT"
	}
	if cfg.ValidityYears <= 0 {
		cfg.ValidityYears = 10
	}
	return &CertificateService{
		certificates: certificates,
		documents:    documents,
		signatures:   signatures,
		membership:   membership,
		blobs:        blobs,
		renderer:     renderer,
		audit:        audit,
		metrics:      metrics,
		validator:    validator.New(),
		logger:       logger,
		now:          time.Now,
		cfg:          cfg,
	}
}

// Generate issues a certificate for a fully signed document. Every call
// produces a new certificate row; earlier certificates for the same document
// remain verifiable.
func (s *CertificateService) Generate(ctx context.Context, documentID, callerID string) (*models.SigningCertificate, []byte, error) {
	doc, err := s.documents.GetByID(ctx, documentID, false)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.ErrNotFound
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load document")
	}

	member, err := s.membership.IsMember(ctx, doc.GroupID, callerID)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check membership")
	}
	if !member {
		return nil, nil, appErrors.Clone(appErrors.ErrUnauthorized, "caller is not a member of the document's group")
	}

	if doc.Status != models.SignatureStatusFullySigned {
		return nil, nil, appErrors.Clone(appErrors.ErrInvalidOperation, "certificate requires a fully signed document")
	}

	contentHash, err := s.hashContent(doc.StorageKey)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash document content")
	}

	roster, err := s.buildRoster(ctx, documentID)
	if err != nil {
		return nil, nil, err
	}
	rosterJSON, err := json.Marshal(roster)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode signer roster")
	}

	generatedAt := s.now().UTC()
	cert := &models.SigningCertificate{
		CertificateID: s.newCertificateID(generatedAt),
		DocumentID:    documentID,
		ContentHash:   contentHash,
		SignerRoster:  rosterJSON,
		GeneratedAt:   generatedAt,
		ExpiresAt:     generatedAt.AddDate(s.cfg.ValidityYears, 0, 0),
		GeneratedBy:   callerID,
	}
	if err := s.certificates.Create(ctx, cert); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist certificate")
	}

	report := export.CertificateReport{
		CertificateID: cert.CertificateID,
		DocumentName:  doc.FileName,
		ContentHash:   cert.ContentHash,
		GeneratedAt:   cert.GeneratedAt,
		ExpiresAt:     cert.ExpiresAt,
		Signers:       make([]export.CertificateSigner, len(roster)),
	}
	for i, entry := range roster {
		report.Signers[i] = export.CertificateSigner{
			Name:     entry.Name,
			SignerID: entry.SignerID,
			SignedAt: entry.SignedAt,
		}
	}
	pdf, err := s.renderer.Render(report)
	if err != nil {
		// The certificate row is already durable; the report can be re-rendered.
		s.logger.Error("failed to render certificate report", zap.Error(err),
			zap.String("certificate_id", cert.CertificateID))
	}

	if s.metrics != nil {
		s.metrics.CertificateIssued()
	}
	s.emitCertificateAudit(ctx, callerID, models.AuditActionCertificateIssue, cert.CertificateID)

	return cert, pdf, nil
}

// Verify re-checks a certificate. It never mutates state: an expired or
// revoked certificate is reported as such, and an optional supplied hash is
// compared against the one sealed at generation.
func (s *CertificateService) Verify(ctx context.Context, certificateID string, req dto.VerifyCertificateRequest) (*models.CertificateVerification, error) {
	cert, err := s.certificates.GetByCertificateID(ctx, certificateID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "certificate not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load certificate")
	}

	hashMatches := true
	if req.Hash != "" {
		hashMatches = req.Hash == cert.ContentHash
	}
	isExpired := s.now().UTC().After(cert.ExpiresAt)

	return &models.CertificateVerification{
		CertificateID:    cert.CertificateID,
		IsValid:          !cert.Revoked && !isExpired && hashMatches,
		HashMatches:      hashMatches,
		IsRevoked:        cert.Revoked,
		IsExpired:        isExpired,
		RevocationReason: cert.RevocationReason,
	}, nil
}

// Revoke withdraws a certificate permanently. Revoking an already revoked
// certificate is a no-op that preserves the original reason and timestamp.
func (s *CertificateService) Revoke(ctx context.Context, certificateID string, req dto.RevokeCertificateRequest, callerID string) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Clone(appErrors.ErrValidation, "revocation reason is required")
	}

	if err := s.certificates.Revoke(ctx, certificateID, req.Reason, s.now().UTC()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "certificate not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to revoke certificate")
	}

	if s.metrics != nil {
		s.metrics.CertificateRevoked()
	}
	s.emitCertificateAudit(ctx, callerID, models.AuditActionCertificateRevoke, certificateID)
	return nil
}

// ListForDocument returns every certificate issued for a document, newest
// first, for members of the owning group.
func (s *CertificateService) ListForDocument(ctx context.Context, documentID, callerID string) ([]dto.CertificateResponse, error) {
	doc, err := s.documents.GetByID(ctx, documentID, false)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load document")
	}
	member, err := s.membership.IsMember(ctx, doc.GroupID, callerID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check membership")
	}
	if !member {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "caller is not a member of the document's group")
	}

	certs, err := s.certificates.ListByDocument(ctx, documentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list certificates")
	}

	out := make([]dto.CertificateResponse, len(certs))
	for i, cert := range certs {
		var roster []models.RosterEntry
		if len(cert.SignerRoster) > 0 {
			if err := json.Unmarshal(cert.SignerRoster, &roster); err != nil {
				s.logger.Warn("failed to decode signer roster",
					zap.String("certificate_id", cert.CertificateID), zap.Error(err))
			}
		}
		out[i] = dto.CertificateResponse{
			ID:            cert.ID,
			CertificateID: cert.CertificateID,
			DocumentID:    cert.DocumentID,
			ContentHash:   cert.ContentHash,
			GeneratedAt:   cert.GeneratedAt,
			ExpiresAt:     cert.ExpiresAt,
			Revoked:       cert.Revoked,
			Signers:       roster,
		}
	}
	return out, nil
}

func (s *CertificateService) hashContent(storageKey string) (string, error) {
	reader, err := s.blobs.Get(storageKey)
	if err != nil {
		return "", fmt.Errorf("open document content: %w", err)
	}
	defer reader.Close()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, reader); err != nil {
		return "", fmt.Errorf("hash document content: %w", err)
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

func (s *CertificateService) buildRoster(ctx context.Context, documentID string) ([]models.RosterEntry, error) {
	signatures, err := s.signatures.ListByDocument(ctx, documentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list signatures")
	}

	signerIDs := make([]string, len(signatures))
	for i, sig := range signatures {
		signerIDs[i] = sig.SignerID
	}
	names, err := s.membership.MemberNames(ctx, signerIDs)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve signer names")
	}

	roster := make([]models.RosterEntry, 0, len(signatures))
	for _, sig := range signatures {
		if sig.SignedAt == nil {
			// FULLY_SIGNED guarantees this never happens; guard anyway.
			continue
		}
		roster = append(roster, models.RosterEntry{
			SignerID: sig.SignerID,
			Name:     names[sig.SignerID],
			SignedAt: *sig.SignedAt,
		})
	}
	return roster, nil
}

func (s *CertificateService) newCertificateID(generatedAt time.Time) string {
	suffix := make([]byte, 4)
	if _, err := rand.Read(suffix); err != nil {
		suffix = []byte{0, 0, 0, 0}
	}
	return fmt.Sprintf("%s-%s-%s", s.cfg.IDPrefix,
		generatedAt.Format("20060102150405"), hex.EncodeToString(suffix))
}

func (s *CertificateService) emitCertificateAudit(ctx context.Context, callerID, action, certificateID string) {
	if s.audit == nil {
		return
	}
	log := &models.AuditLog{
		UserID:     &callerID,
		Action:     action,
		Resource:   "certificate",
		ResourceID: &certificateID,
		IPAddress:  "system",
		UserAgent:  "certificate-service",
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to persist audit log", zap.Error(err))
	}
}
