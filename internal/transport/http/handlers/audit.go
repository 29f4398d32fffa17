package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/trinhkhanh29/SmartLock-FaceRecognition/internal/core/domain"
	"github.com/trinhkhanh29/SmartLock-FaceRecognition/internal/usecase"
)

const maxAuditLimit = 1000

// AuditHandler exposes persisted audit entries to administrators.
type AuditHandler struct {
	audit *usecase.AuditService
}

// NewAuditHandler constructs an AuditHandler.
func NewAuditHandler(audit *usecase.AuditService) *AuditHandler {
	return &AuditHandler{audit: audit}
}

// List returns recent audit entries. It is empty when the audit mode does
// not persist entries.
func (h *AuditHandler) List(c *gin.Context) {
	entries, err := h.audit.List(c.Request.Context(), queryLimit(c, 100, maxAuditLimit))
	if err != nil {
		RespondWithMappedError(c, err, storeErrorCases, http.StatusInternalServerError, "failed to list audit entries")
		return
	}
	if entries == nil {
		entries = []domain.AuditEntry{}
	}
	c.JSON(http.StatusOK, AuditResponse{Success: true, Mode: h.audit.Mode(), Entries: entries})
}
