package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/docsign-api/internal/dto"
	"github.com/noah-isme/docsign-api/internal/middleware"
	"github.com/noah-isme/docsign-api/internal/models"
	appErrors "github.com/noah-isme/docsign-api/pkg/errors"
)

type signingServiceMock struct {
	sendResp   []models.DocumentSignature
	sendErr    error
	signResp   *models.DocumentSignature
	signErr    error
	statusResp *dto.SignatureStatusResponse
	statusErr  error
	exportData []byte
	exportErr  error
	cancelErr  error
}

func (m *signingServiceMock) SendForSigning(ctx context.Context, documentID string, req dto.SendForSigningRequest, requesterID string) ([]models.DocumentSignature, error) {
	return m.sendResp, m.sendErr
}

func (m *signingServiceMock) SignDocument(ctx context.Context, documentID string, req dto.SignDocumentRequest, callerID string) (*models.DocumentSignature, error) {
	return m.signResp, m.signErr
}

func (m *signingServiceMock) GetSignatureStatus(ctx context.Context, documentID, callerID string) (*dto.SignatureStatusResponse, error) {
	return m.statusResp, m.statusErr
}

func (m *signingServiceMock) ExportSignatures(ctx context.Context, documentID, callerID string) ([]byte, error) {
	return m.exportData, m.exportErr
}

func (m *signingServiceMock) CancelSigning(ctx context.Context, documentID, callerID string) error {
	return m.cancelErr
}

func newGinContext(method, path string, body []byte) (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	return c, w
}

func authenticate(c *gin.Context, userID string) {
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: userID, Email: userID + "@example.com"})
}

func TestSigningHandlerSend(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &signingServiceMock{
		sendResp: []models.DocumentSignature{
			{ID: "sig-1", DocumentID: "doc-1", SignerID: "signer-a", SignOrder: 1},
		},
	}
	handler := NewSigningHandler(mockSvc)

	payload, _ := json.Marshal(dto.SendForSigningRequest{
		SignerIDs: []string{"signer-a"},
		Mode:      models.SigningModeParallel,
	})
	c, w := newGinContext(http.MethodPost, "/documents/doc-1/send", payload)
	c.Params = gin.Params{{Key: "id", Value: "doc-1"}}
	authenticate(c, "owner-1")

	handler.Send(c)
	require.Equal(t, http.StatusCreated, w.Code)
}

func TestSigningHandlerSendRequiresAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewSigningHandler(&signingServiceMock{})

	c, w := newGinContext(http.MethodPost, "/documents/doc-1/send", []byte(`{}`))
	c.Params = gin.Params{{Key: "id", Value: "doc-1"}}

	handler.Send(c)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSigningHandlerSignRejectsBadJSON(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewSigningHandler(&signingServiceMock{})

	c, w := newGinContext(http.MethodPost, "/documents/doc-1/sign", []byte(`{not json`))
	c.Params = gin.Params{{Key: "id", Value: "doc-1"}}
	authenticate(c, "signer-a")

	handler.Sign(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSigningHandlerSignMapsServiceError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &signingServiceMock{
		signErr: appErrors.Clone(appErrors.ErrUnauthorized, "signing token expired"),
	}
	handler := NewSigningHandler(mockSvc)

	payload, _ := json.Marshal(dto.SignDocumentRequest{Token: "tok", SignaturePayload: "data"})
	c, w := newGinContext(http.MethodPost, "/documents/doc-1/sign", payload)
	c.Params = gin.Params{{Key: "id", Value: "doc-1"}}
	authenticate(c, "signer-a")

	handler.Sign(c)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	var envelope struct {
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.NotNil(t, envelope.Error)
	require.Equal(t, "signing token expired", envelope.Error.Message)
}

func TestSigningHandlerStatus(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &signingServiceMock{
		statusResp: &dto.SignatureStatusResponse{
			DocumentID: "doc-1",
			Status:     models.SignatureStatusPartiallySigned,
			Total:      2,
			Signed:     1,
			Percentage: 50,
		},
	}
	handler := NewSigningHandler(mockSvc)

	c, w := newGinContext(http.MethodGet, "/documents/doc-1/signatures", nil)
	c.Params = gin.Params{{Key: "id", Value: "doc-1"}}
	authenticate(c, "owner-1")

	handler.Status(c)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "PARTIALLY_SIGNED")
}

func TestSigningHandlerExport(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &signingServiceMock{
		exportData: []byte("signer_id,sign_order,status\nsigner-a,1,COMPLETED\n"),
	}
	handler := NewSigningHandler(mockSvc)

	c, w := newGinContext(http.MethodGet, "/documents/doc-1/signatures/export", nil)
	c.Params = gin.Params{{Key: "id", Value: "doc-1"}}
	authenticate(c, "owner-1")

	handler.Export(c)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	require.Contains(t, w.Header().Get("Content-Disposition"), "signatures-doc-1.csv")
	require.Contains(t, w.Body.String(), "signer-a")
}

func TestSigningHandlerCancel(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewSigningHandler(&signingServiceMock{})

	c, w := newGinContext(http.MethodDelete, "/documents/doc-1/signing", nil)
	c.Params = gin.Params{{Key: "id", Value: "doc-1"}}
	authenticate(c, "owner-1")

	handler.Cancel(c)
	c.Writer.WriteHeaderNow()
	require.Equal(t, http.StatusNoContent, w.Code)
}
