package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ldrseguros/plano-de-saude-sinvest-sub000/internal/service"
	appErrors "github.com/ldrseguros/plano-de-saude-sinvest-sub000/pkg/errors"
	"github.com/ldrseguros/plano-de-saude-sinvest-sub000/pkg/response"
)

// DocumentHandler exposes document generation and download endpoints.
type DocumentHandler struct {
	documents *service.DocumentService
}

// NewDocumentHandler constructs DocumentHandler.
func NewDocumentHandler(documents *service.DocumentService) *DocumentHandler {
	return &DocumentHandler{documents: documents}
}

// Generate godoc
// @Summary Generate enrollment proposal PDF
// @Tags Documents
// @Produce json
// @Param id path string true "Lead ID"
// @Success 201 {object} response.Envelope
// @Router /documents/lead/{id}/enrollment-pdf [post]
func (h *DocumentHandler) Generate(c *gin.Context) {
	doc, _, err := h.documents.GenerateEnrollmentPDF(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, doc)
}

// List godoc
// @Summary List lead documents
// @Tags Documents
// @Produce json
// @Param id path string true "Lead ID"
// @Success 200 {object} response.Envelope
// @Router /documents/lead/{id} [get]
func (h *DocumentHandler) List(c *gin.Context) {
	docs, urls, err := h.documents.ListByLead(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"documents": docs, "download_urls": urls}, nil)
}

// SignedURL godoc
// @Summary Signed download URL for a document
// @Tags Documents
// @Produce json
// @Param id path string true "Document ID"
// @Success 200 {object} response.Envelope
// @Router /documents/{id}/url [get]
func (h *DocumentHandler) SignedURL(c *gin.Context) {
	url, err := h.documents.SignedURLByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"url": url}, nil)
}

// Download godoc
// @Summary Download a document by signed token
// @Description Validates the signed token and streams the file; no JWT required
// @Tags Documents
// @Produce application/pdf
// @Param token query string true "Signed download token"
// @Success 200 {string} binary "File content"
// @Router /documents/download [get]
func (h *DocumentHandler) Download(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token query parameter is required"))
		return
	}
	doc, content, err := h.documents.Download(c.Request.Context(), token)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+doc.DisplayName+`"`)
	c.Data(http.StatusOK, doc.MimeType, content)
}
