package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/trinhkhanh29/SmartLock-FaceRecognition/internal/transport/http/middleware"
	"github.com/trinhkhanh29/SmartLock-FaceRecognition/internal/usecase"
)

// ServiceHandler toggles the recognizer and trainer jobs.
type ServiceHandler struct {
	jobs *usecase.JobSupervisor
}

// NewServiceHandler constructs a ServiceHandler.
func NewServiceHandler(jobs *usecase.JobSupervisor) *ServiceHandler {
	return &ServiceHandler{jobs: jobs}
}

// Start launches a supervised job.
func (h *ServiceHandler) Start(c *gin.Context) {
	identity, _ := middleware.CurrentIdentity(c)
	handle, err := h.jobs.Start(c.Request.Context(), c.Param("job"), identity, middleware.RequestMeta(c))
	if err != nil {
		RespondWithMappedError(c, err, jobErrorCases, http.StatusInternalServerError, "failed to start job")
		return
	}
	c.JSON(http.StatusOK, JobStatusResponse{Success: true, Job: handle.Status()})
}

// Stop stops a supervised job.
func (h *ServiceHandler) Stop(c *gin.Context) {
	identity, _ := middleware.CurrentIdentity(c)
	status, err := h.jobs.StopAs(c.Request.Context(), c.Param("job"), identity, middleware.RequestMeta(c))
	if err != nil {
		RespondWithMappedError(c, err, jobErrorCases, http.StatusInternalServerError, "failed to stop job")
		return
	}
	c.JSON(http.StatusOK, JobStatusResponse{Success: true, Job: status})
}

// Status reports a supervised job's state.
func (h *ServiceHandler) Status(c *gin.Context) {
	status, err := h.jobs.Status(c.Param("job"))
	if err != nil {
		RespondWithMappedError(c, err, jobErrorCases, http.StatusInternalServerError, "failed to read job status")
		return
	}
	c.JSON(http.StatusOK, JobStatusResponse{Success: true, Job: status})
}
