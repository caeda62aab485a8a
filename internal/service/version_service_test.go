package service

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/docsign-api/internal/models"
	"github.com/noah-isme/docsign-api/internal/repository"
	appErrors "github.com/noah-isme/docsign-api/pkg/errors"
)

type versionStoreStub struct {
	versions map[string][]*models.DocumentVersion
}

func newVersionStoreStub() *versionStoreStub {
	return &versionStoreStub{versions: make(map[string][]*models.DocumentVersion)}
}

func (v *versionStoreStub) ListByDocument(_ context.Context, documentID string) ([]models.DocumentVersion, error) {
	rows := v.versions[documentID]
	out := make([]models.DocumentVersion, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		out = append(out, *rows[i])
	}
	return out, nil
}

func (v *versionStoreStub) GetByNumber(_ context.Context, documentID string, versionNumber int) (*models.DocumentVersion, error) {
	for _, row := range v.versions[documentID] {
		if row.VersionNumber == versionNumber {
			copy := *row
			return &copy, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (v *versionStoreStub) AddVersion(_ context.Context, params repository.AddVersionParams) (*models.DocumentVersion, error) {
	version := params.Version
	docID := version.DocumentID
	if len(v.versions[docID]) == 0 && params.Bootstrap != nil {
		boot := *params.Bootstrap
		boot.ID = "ver-0"
		boot.VersionNumber = 0
		v.versions[docID] = append(v.versions[docID], &boot)
	}
	next := 0
	for _, row := range v.versions[docID] {
		row.IsCurrent = false
		if row.VersionNumber >= next {
			next = row.VersionNumber + 1
		}
	}
	created := *version
	created.ID = fmt.Sprintf("ver-%d", next)
	created.VersionNumber = next
	created.IsCurrent = true
	created.UploadedAt = time.Now().UTC()
	v.versions[docID] = append(v.versions[docID], &created)
	return &created, nil
}

func (v *versionStoreStub) CreateInitial(_ context.Context, version *models.DocumentVersion) error {
	version.ID = "ver-0"
	version.VersionNumber = 0
	version.IsCurrent = true
	v.versions[version.DocumentID] = append(v.versions[version.DocumentID], version)
	return nil
}

type versionFixture struct {
	svc      *VersionService
	versions *versionStoreStub
	blobs    *blobStoreStub
}

func newVersionFixture(t *testing.T, docs map[string]*models.Document, members map[string]models.GroupRole) *versionFixture {
	t.Helper()
	versions := newVersionStoreStub()
	blobs := newBlobStoreStub()
	svc := NewVersionService(
		versions,
		documentGetterStub{docs: docs},
		membershipStub{members: members},
		blobs,
		nil,
		&auditStub{},
		nil,
		UploadLimits{MaxFileSizeBytes: 1 << 20},
	)
	return &versionFixture{svc: svc, versions: versions, blobs: blobs}
}

func uploadOf(content string) Upload {
	return Upload{
		FileName:    "contract-v2.pdf",
		ContentType: "application/pdf",
		SizeBytes:   int64(len(content)),
		Content:     bytes.NewReader([]byte(content)),
	}
}

func TestUploadNewVersionKeepsNumbersDense(t *testing.T) {
	doc := draftDocument("doc-1")
	doc.StorageKey = "documents/original"
	docs := map[string]*models.Document{"doc-1": doc}
	f := newVersionFixture(t, docs, map[string]models.GroupRole{"owner-1": models.GroupRoleMember})

	for i := 1; i <= 3; i++ {
		created, err := f.svc.UploadNewVersion(context.Background(), "doc-1",
			uploadOf(fmt.Sprintf("revision %d", i)), fmt.Sprintf("change %d", i), "owner-1")
		require.NoError(t, err)
		require.Equal(t, i, created.VersionNumber)
		require.True(t, created.IsCurrent)
	}

	history, err := f.svc.GetVersions(context.Background(), "doc-1", "owner-1")
	require.NoError(t, err)
	require.Len(t, history, 4)

	currents := 0
	numbers := map[int]bool{}
	for _, v := range history {
		numbers[v.VersionNumber] = true
		if v.IsCurrent {
			currents++
			require.Equal(t, 3, v.VersionNumber)
		}
	}
	require.Equal(t, 1, currents)
	for n := 0; n <= 3; n++ {
		require.True(t, numbers[n], "missing version %d", n)
	}
}

func TestUploadNewVersionBootstrapsVersionZero(t *testing.T) {
	doc := draftDocument("doc-1")
	doc.StorageKey = "documents/original"
	doc.FileName = "original.pdf"
	docs := map[string]*models.Document{"doc-1": doc}
	f := newVersionFixture(t, docs, map[string]models.GroupRole{"owner-1": models.GroupRoleMember})

	created, err := f.svc.UploadNewVersion(context.Background(), "doc-1", uploadOf("new body"), "", "owner-1")
	require.NoError(t, err)
	require.Equal(t, 1, created.VersionNumber)

	zero, err := f.versions.GetByNumber(context.Background(), "doc-1", 0)
	require.NoError(t, err)
	require.Equal(t, "original.pdf", zero.FileName)
	require.Equal(t, "documents/original", zero.StorageKey)
	require.False(t, zero.IsCurrent)
}

func TestUploadNewVersionAuthorization(t *testing.T) {
	doc := draftDocument("doc-1")
	docs := map[string]*models.Document{"doc-1": doc}
	members := map[string]models.GroupRole{
		"owner-1":  models.GroupRoleMember,
		"admin-1":  models.GroupRoleAdmin,
		"member-1": models.GroupRoleMember,
	}
	f := newVersionFixture(t, docs, members)

	_, err := f.svc.UploadNewVersion(context.Background(), "doc-1", uploadOf("x"), "", "admin-1")
	require.NoError(t, err)

	_, err = f.svc.UploadNewVersion(context.Background(), "doc-1", uploadOf("x"), "", "member-1")
	require.Error(t, err)
	require.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestUploadNewVersionRejectsEmptyFile(t *testing.T) {
	doc := draftDocument("doc-1")
	docs := map[string]*models.Document{"doc-1": doc}
	f := newVersionFixture(t, docs, map[string]models.GroupRole{"owner-1": models.GroupRoleMember})

	_, err := f.svc.UploadNewVersion(context.Background(), "doc-1", uploadOf(""), "", "owner-1")
	require.Error(t, err)
	require.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	require.Empty(t, f.versions.versions["doc-1"])
}

func TestDownloadVersionStreamsStoredContent(t *testing.T) {
	doc := draftDocument("doc-1")
	docs := map[string]*models.Document{"doc-1": doc}
	f := newVersionFixture(t, docs, map[string]models.GroupRole{"owner-1": models.GroupRoleMember})

	created, err := f.svc.UploadNewVersion(context.Background(), "doc-1", uploadOf("revision body"), "", "owner-1")
	require.NoError(t, err)

	version, reader, err := f.svc.DownloadVersion(context.Background(), "doc-1", created.VersionNumber, "owner-1")
	require.NoError(t, err)
	defer reader.Close()

	require.Equal(t, created.VersionNumber, version.VersionNumber)
	body, err := io.ReadAll(reader)
	require.NoError(t, err)
	require.Equal(t, "revision body", string(body))
}

func TestDownloadVersionUnknownNumber(t *testing.T) {
	doc := draftDocument("doc-1")
	docs := map[string]*models.Document{"doc-1": doc}
	f := newVersionFixture(t, docs, map[string]models.GroupRole{"owner-1": models.GroupRoleMember})

	_, _, err := f.svc.DownloadVersion(context.Background(), "doc-1", 9, "owner-1")
	require.Error(t, err)
	require.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
