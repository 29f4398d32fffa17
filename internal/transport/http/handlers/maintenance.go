package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/trinhkhanh29/SmartLock-FaceRecognition/internal/usecase"
)

// MaintenanceHandler triggers housekeeping on demand.
type MaintenanceHandler struct {
	cleanup *usecase.CleanupService
}

// NewMaintenanceHandler constructs a MaintenanceHandler.
func NewMaintenanceHandler(cleanup *usecase.CleanupService) *MaintenanceHandler {
	return &MaintenanceHandler{cleanup: cleanup}
}

// RunCleanup runs one cleanup sweep. Partial per-lock failures are reported
// in the body with status 200.
func (h *MaintenanceHandler) RunCleanup(c *gin.Context) {
	report, err := h.cleanup.RunOnce(c.Request.Context())
	if err != nil && report == nil {
		RespondWithMappedError(c, err, storeErrorCases, http.StatusInternalServerError, "cleanup failed")
		return
	}
	c.JSON(http.StatusOK, CleanupResponse{Success: err == nil, Report: *report})
}
