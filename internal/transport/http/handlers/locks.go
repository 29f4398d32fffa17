package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/trinhkhanh29/SmartLock-FaceRecognition/internal/core/domain"
	"github.com/trinhkhanh29/SmartLock-FaceRecognition/internal/infra/security"
	"github.com/trinhkhanh29/SmartLock-FaceRecognition/internal/transport/http/middleware"
	"github.com/trinhkhanh29/SmartLock-FaceRecognition/internal/usecase"
)

const maxActivityLimit = 500

// LockHandler serves the lock registry and per-lock data.
type LockHandler struct {
	locks *usecase.LockService
}

// NewLockHandler constructs a LockHandler.
func NewLockHandler(locks *usecase.LockService) *LockHandler {
	return &LockHandler{locks: locks}
}

// List returns every registered lock.
func (h *LockHandler) List(c *gin.Context) {
	locks, err := h.locks.ListLocks(c.Request.Context())
	if err != nil {
		RespondWithMappedError(c, err, lockErrorCases, http.StatusInternalServerError, "failed to list locks")
		return
	}
	c.JSON(http.StatusOK, LocksResponse{Success: true, Locks: locks})
}

// Create registers a lock.
func (h *LockHandler) Create(c *gin.Context) {
	var req CreateLockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid request payload"))
		return
	}

	identity, _ := middleware.CurrentIdentity(c)
	lock, err := h.locks.CreateLock(c.Request.Context(), usecase.CreateLockInput{
		ID:        req.LockID,
		Name:      req.Name,
		Password:  req.Password,
		IPAddress: req.IPAddress,
		Actor:     *identity,
		Meta:      middleware.RequestMeta(c),
	})
	if err != nil {
		if respondPasswordPolicy(c, err) {
			return
		}
		RespondWithMappedError(c, err, lockErrorCases, http.StatusInternalServerError, "failed to create lock")
		return
	}
	c.JSON(http.StatusCreated, LockResponse{Success: true, Lock: *lock})
}

// Get returns one lock.
func (h *LockHandler) Get(c *gin.Context) {
	lock, err := h.locks.GetLock(c.Request.Context(), c.Param("lockId"))
	if err != nil {
		RespondWithMappedError(c, err, lockErrorCases, http.StatusInternalServerError, "failed to load lock")
		return
	}
	c.JSON(http.StatusOK, LockResponse{Success: true, Lock: *lock})
}

// Delete removes a lock and all of its data.
func (h *LockHandler) Delete(c *gin.Context) {
	identity, _ := middleware.CurrentIdentity(c)
	deleted, err := h.locks.DeleteLock(c.Request.Context(), c.Param("lockId"), *identity, middleware.RequestMeta(c))
	if err != nil {
		RespondWithMappedError(c, err, lockErrorCases, http.StatusInternalServerError, "failed to delete lock")
		return
	}
	c.JSON(http.StatusOK, DeleteLockResponse{Success: true, Deleted: *deleted})
}

// RegisterDevice creates the registry entry on a controller's first boot and
// refreshes it afterwards.
func (h *LockHandler) RegisterDevice(c *gin.Context) {
	var req RegisterDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid request payload"))
		return
	}

	lock, created, err := h.locks.RegisterDevice(c.Request.Context(), usecase.RegisterDeviceInput{
		LockID:    req.LockID,
		Name:      req.Name,
		IPAddress: ipOrClient(c, req.IPAddress),
	})
	if err != nil {
		RespondWithMappedError(c, err, lockErrorCases, http.StatusInternalServerError, "failed to register device")
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, RegisterDeviceResponse{Success: true, Created: created, Lock: *lock})
}

// Heartbeat refreshes a lock's last-seen time.
func (h *LockHandler) Heartbeat(c *gin.Context) {
	var req HeartbeatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid request payload"))
		return
	}

	lock, err := h.locks.Heartbeat(c.Request.Context(), req.LockID, ipOrClient(c, req.IPAddress))
	if err != nil {
		RespondWithMappedError(c, err, lockErrorCases, http.StatusInternalServerError, "failed to record heartbeat")
		return
	}
	c.JSON(http.StatusOK, LockResponse{Success: true, Lock: *lock})
}

// Activity lists recent lock activity, newest first.
func (h *LockHandler) Activity(c *gin.Context) {
	limit := queryLimit(c, 50, maxActivityLimit)
	entries, err := h.locks.ListActivity(c.Request.Context(), c.Param("lockId"), limit)
	if err != nil {
		RespondWithMappedError(c, err, lockErrorCases, http.StatusInternalServerError, "failed to load activity")
		return
	}
	if entries == nil {
		entries = []domain.ActivityEntry{}
	}
	c.JSON(http.StatusOK, ActivityResponse{Success: true, Entries: entries})
}

// AddPendingUser queues a face enrolment.
func (h *LockHandler) AddPendingUser(c *gin.Context) {
	var req PendingUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid request payload"))
		return
	}

	identity, _ := middleware.CurrentIdentity(c)
	user, err := h.locks.AddPendingUser(c.Request.Context(), usecase.PendingUserInput{
		LockID: c.Param("lockId"),
		Name:   req.Name,
		Actor:  *identity,
	})
	if err != nil {
		RespondWithMappedError(c, err, lockErrorCases, http.StatusInternalServerError, "failed to queue enrolment")
		return
	}
	c.JSON(http.StatusCreated, PendingUserResponse{Success: true, User: *user})
}

// ListPendingUsers lists queued enrolments.
func (h *LockHandler) ListPendingUsers(c *gin.Context) {
	users, err := h.locks.ListPendingUsers(c.Request.Context(), c.Param("lockId"))
	if err != nil {
		RespondWithMappedError(c, err, lockErrorCases, http.StatusInternalServerError, "failed to list enrolments")
		return
	}
	if users == nil {
		users = []domain.PendingUser{}
	}
	c.JSON(http.StatusOK, PendingUsersResponse{Success: true, Users: users})
}

// RemovePendingUser drops a queued enrolment.
func (h *LockHandler) RemovePendingUser(c *gin.Context) {
	if err := h.locks.RemovePendingUser(c.Request.Context(), c.Param("lockId"), c.Param("userId")); err != nil {
		RespondWithMappedError(c, err, lockErrorCases, http.StatusInternalServerError, "failed to remove enrolment")
		return
	}
	c.JSON(http.StatusOK, MessageResponse{Success: true, Message: "Pending user removed"})
}

func respondPasswordPolicy(c *gin.Context, err error) bool {
	var policyErr *security.PasswordValidationError
	if !errors.As(err, &policyErr) {
		return false
	}
	c.JSON(http.StatusBadRequest, NewErrorResponse(c, policyErr.Message))
	return true
}

func ipOrClient(c *gin.Context, reported string) string {
	if reported != "" {
		return reported
	}
	return c.ClientIP()
}

func queryLimit(c *gin.Context, fallback, max int) int {
	raw := c.Query("limit")
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	if n > max {
		return max
	}
	return n
}
