package service

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"io"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/docsign-api/internal/models"
	"github.com/noah-isme/docsign-api/internal/repository"
	appErrors "github.com/noah-isme/docsign-api/pkg/errors"
	"github.com/noah-isme/docsign-api/pkg/storage"
)

type versionStore interface {
	ListByDocument(ctx context.Context, documentID string) ([]models.DocumentVersion, error)
	GetByNumber(ctx context.Context, documentID string, versionNumber int) (*models.DocumentVersion, error)
	AddVersion(ctx context.Context, params repository.AddVersionParams) (*models.DocumentVersion, error)
}

// VersionService maintains the append-only content history of documents.
// Version numbers are dense: 0 is the original upload, each replacement takes
// the next number, and exactly one version is current at any time.
type VersionService struct {
	versions   versionStore
	documents  documentGetter
	membership membershipResolver
	blobs      storage.BlobStore
	scanner    Scanner
	audit      auditLogger
	logger     *zap.Logger
	limits     UploadLimits
}

// NewVersionService constructs the service.
func NewVersionService(
	versions versionStore,
	documents documentGetter,
	membership membershipResolver,
	blobs storage.BlobStore,
	scanner Scanner,
	audit auditLogger,
	logger *zap.Logger,
	limits UploadLimits,
) *VersionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if scanner == nil {
		scanner = PassthroughScanner{}
	}
	return &VersionService{
		versions:   versions,
		documents:  documents,
		membership: membership,
		blobs:      blobs,
		scanner:    scanner,
		audit:      audit,
		logger:     logger,
		limits:     limits,
	}
}

// UploadNewVersion stores replacement content as the next version. Only the
// uploader or a group admin may add versions. Documents created before version
// tracking get a synthetic version 0 from their current metadata first, so the
// history never starts above zero.
func (s *VersionService) UploadNewVersion(ctx context.Context, documentID string, upload Upload, changeDescription, callerID string) (*models.DocumentVersion, error) {
	doc, err := s.documents.GetByID(ctx, documentID, false)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load document")
	}

	if doc.UploadedBy != callerID {
		role, err := s.membership.RoleOf(ctx, doc.GroupID, callerID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve caller role")
		}
		if role != models.GroupRoleAdmin {
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "only the uploader or a group admin may add versions")
		}
	}

	content, err := s.acceptContent(ctx, upload)
	if err != nil {
		return nil, err
	}

	storageKey := "versions/" + uuid.NewString()
	if _, err := s.blobs.Put(storageKey, bytes.NewReader(content), upload.ContentType); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store version content")
	}

	version := &models.DocumentVersion{
		DocumentID:        documentID,
		StorageKey:        storageKey,
		FileName:          upload.FileName,
		ContentType:       upload.ContentType,
		SizeBytes:         int64(len(content)),
		UploadedBy:        callerID,
		ChangeDescription: optionalString(changeDescription),
	}
	bootstrap := &models.DocumentVersion{
		DocumentID:  documentID,
		StorageKey:  doc.StorageKey,
		FileName:    doc.FileName,
		ContentType: doc.ContentType,
		SizeBytes:   doc.SizeBytes,
		UploadedBy:  doc.UploadedBy,
		UploadedAt:  doc.CreatedAt,
	}

	created, err := s.versions.AddVersion(ctx, repository.AddVersionParams{
		Version:   version,
		Bootstrap: bootstrap,
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to append version")
	}

	s.emitVersionAudit(ctx, callerID, documentID)
	return created, nil
}

// GetVersions returns the full version history, newest first.
func (s *VersionService) GetVersions(ctx context.Context, documentID, callerID string) ([]models.DocumentVersion, error) {
	if err := s.authorizeRead(ctx, documentID, callerID); err != nil {
		return nil, err
	}

	versions, err := s.versions.ListByDocument(ctx, documentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list versions")
	}
	return versions, nil
}

// DownloadVersion streams the content of one specific version.
func (s *VersionService) DownloadVersion(ctx context.Context, documentID string, versionNumber int, callerID string) (*models.DocumentVersion, io.ReadCloser, error) {
	if err := s.authorizeRead(ctx, documentID, callerID); err != nil {
		return nil, nil, err
	}

	version, err := s.versions.GetByNumber(ctx, documentID, versionNumber)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "version not found")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load version")
	}

	reader, err := s.blobs.Get(version.StorageKey)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open version content")
	}
	return version, reader, nil
}

func (s *VersionService) authorizeRead(ctx context.Context, documentID, callerID string) error {
	doc, err := s.documents.GetByID(ctx, documentID, false)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.ErrNotFound
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load document")
	}

	member, err := s.membership.IsMember(ctx, doc.GroupID, callerID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check membership")
	}
	if !member {
		return appErrors.Clone(appErrors.ErrUnauthorized, "caller is not a member of the document's group")
	}
	return nil
}

func (s *VersionService) acceptContent(ctx context.Context, upload Upload) ([]byte, error) {
	if upload.Content == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "file content is required")
	}
	if s.limits.MaxFileSizeBytes > 0 && upload.SizeBytes > s.limits.MaxFileSizeBytes {
		return nil, appErrors.Clone(appErrors.ErrValidation, "file exceeds the maximum allowed size")
	}
	if len(s.limits.AllowedMIMEs) > 0 && !mimeAllowed(upload.ContentType, s.limits.AllowedMIMEs) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported content type")
	}

	limit := s.limits.MaxFileSizeBytes
	if limit <= 0 {
		limit = 1 << 30
	}
	content, err := io.ReadAll(io.LimitReader(upload.Content, limit+1))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read upload")
	}
	if len(content) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "empty files are rejected")
	}
	if int64(len(content)) > limit {
		return nil, appErrors.Clone(appErrors.ErrValidation, "file exceeds the maximum allowed size")
	}

	clean, err := s.scanner.Scan(ctx, upload.FileName, bytes.NewReader(content))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "malware scan failed")
	}
	if !clean {
		s.logger.Warn("rejected version after malware scan", zap.String("file_name", upload.FileName))
		return nil, appErrors.Clone(appErrors.ErrValidation, "file failed the malware scan")
	}
	return content, nil
}

func (s *VersionService) emitVersionAudit(ctx context.Context, callerID, documentID string) {
	if s.audit == nil {
		return
	}
	log := &models.AuditLog{
		UserID:     &callerID,
		Action:     models.AuditActionVersionUpload,
		Resource:   "document",
		ResourceID: &documentID,
		IPAddress:  "system",
		UserAgent:  "version-service",
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to persist audit log", zap.Error(err))
	}
}
