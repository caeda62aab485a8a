package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/docsign-api/internal/middleware"
	"github.com/noah-isme/docsign-api/internal/service"
)

// Handlers bundles everything the router mounts.
type Handlers struct {
	Auth         *AuthHandler
	Documents    *DocumentHandler
	Signing      *SigningHandler
	Certificates *CertificateHandler
	Versions     *VersionHandler
	Metrics      *MetricsHandler
}

// RegisterRoutes mounts the API under the given prefix. Everything except
// login, certificate verification and observability requires a valid token.
func RegisterRoutes(r *gin.Engine, prefix string, h Handlers, auth *service.AuthService) {
	api := r.Group(prefix)

	api.POST("/auth/login", h.Auth.Login)
	api.GET("/certificates/:certificateId/verify", h.Certificates.Verify)

	protected := api.Group("")
	protected.Use(middleware.JWT(auth))

	protected.GET("/auth/me", h.Auth.Me)

	protected.POST("/documents", h.Documents.Create)
	protected.GET("/documents", h.Documents.List)
	protected.GET("/documents/:id", h.Documents.Get)
	protected.GET("/documents/:id/download", h.Documents.Download)
	protected.DELETE("/documents/:id", h.Documents.Delete)

	protected.POST("/documents/:id/send", h.Signing.Send)
	protected.POST("/documents/:id/sign", h.Signing.Sign)
	protected.GET("/documents/:id/signatures", h.Signing.Status)
	protected.GET("/documents/:id/signatures/export", h.Signing.Export)
	protected.DELETE("/documents/:id/signing", h.Signing.Cancel)

	protected.POST("/documents/:id/certificate", h.Certificates.Generate)
	protected.GET("/documents/:id/certificates", h.Certificates.ListForDocument)
	protected.DELETE("/certificates/:certificateId", h.Certificates.Revoke)

	protected.POST("/documents/:id/versions", h.Versions.Upload)
	protected.GET("/documents/:id/versions", h.Versions.List)
	protected.GET("/documents/:id/versions/:number/download", h.Versions.Download)

	r.GET("/metrics", h.Metrics.Prometheus)
}
