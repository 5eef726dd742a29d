package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/campusops/report-portal/internal/service"
	appErrors "github.com/campusops/report-portal/pkg/errors"
	"github.com/campusops/report-portal/pkg/response"
)

// AttachmentHandler exposes file attachment endpoints.
type AttachmentHandler struct {
	attachments *service.AttachmentService
}

// NewAttachmentHandler constructs the attachment handler.
func NewAttachmentHandler(attachments *service.AttachmentService) *AttachmentHandler {
	return &AttachmentHandler{attachments: attachments}
}

// Upload handles POST /reports/:id/attachments as a multipart form with a
// single "file" field.
func (h *AttachmentHandler) Upload(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "missing file field"))
		return
	}

	attachment, err := h.attachments.Upload(c.Request.Context(), c.Param("id"), header, claimsFromContext(c), requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, attachment)
}

// Download handles GET /reports/:id/attachments/:attachmentId, responding
// with a short-lived signed URL.
func (h *AttachmentHandler) Download(c *gin.Context) {
	url, expiresAt, err := h.attachments.Download(c.Request.Context(), c.Param("id"), c.Param("attachmentId"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{
		"url":        url,
		"expires_at": expiresAt,
	}, nil)
}

// ServeSigned handles GET /files?token=..., streaming the file referenced
// by a valid signed token.
func (h *AttachmentHandler) ServeSigned(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.Error(c, appErrors.Validation([]string{"token"}))
		return
	}

	file, _, err := h.attachments.OpenSigned(token)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close() //nolint:errcheck

	info, err := file.Stat()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to stat file"))
		return
	}

	c.DataFromReader(http.StatusOK, info.Size(), "application/octet-stream", file, map[string]string{
		"Content-Disposition": `attachment; filename="` + info.Name() + `"`,
	})
}

// Delete handles DELETE /reports/:id/attachments/:attachmentId.
func (h *AttachmentHandler) Delete(c *gin.Context) {
	if err := h.attachments.Delete(c.Request.Context(), c.Param("id"), c.Param("attachmentId"), claimsFromContext(c), requestMeta(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
