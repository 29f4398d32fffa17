package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/trinhkhanh29/SmartLock-FaceRecognition/internal/core/domain"
	"github.com/trinhkhanh29/SmartLock-FaceRecognition/internal/transport/http/middleware"
	"github.com/trinhkhanh29/SmartLock-FaceRecognition/internal/usecase"
)

// TempCodeHandler serves temporary code issuance and verification.
type TempCodeHandler struct {
	codes *usecase.TempCodeService
}

// NewTempCodeHandler constructs a TempCodeHandler.
func NewTempCodeHandler(codes *usecase.TempCodeService) *TempCodeHandler {
	return &TempCodeHandler{codes: codes}
}

// Create issues a six digit single-use code for the checked lock.
func (h *TempCodeHandler) Create(c *gin.Context) {
	lockID := middleware.RequestLockID(c)
	var req CreateTempCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid request payload"))
		return
	}
	req.LockID = lockID

	created, err := h.issue(c, req, domain.CreatedFromAPI)
	if err != nil {
		RespondWithMappedError(c, err, tempCodeErrorCases, http.StatusInternalServerError, "failed to create temporary code")
		return
	}
	c.JSON(http.StatusCreated, CreateTempCodeResponse{Success: true, TempCodeCreated: *created})
}

// CreateForm handles the dashboard form and redirects back to the lock page.
func (h *TempCodeHandler) CreateForm(c *gin.Context) {
	lockID := middleware.RequestLockID(c)
	var req CreateTempCodeRequest
	_ = c.ShouldBind(&req)
	req.LockID = lockID
	target := "/locks/" + req.LockID

	created, err := h.issue(c, req, domain.CreatedFromDashboard)
	if err != nil {
		middleware.RedirectWithFlash(c, target, "Could not create code: "+mappedMessage(err, tempCodeErrorCases))
		return
	}
	middleware.RedirectWithFlash(c, target, "Code "+created.Code+" valid until "+created.ExpiresAtFormatted)
}

func (h *TempCodeHandler) issue(c *gin.Context, req CreateTempCodeRequest, channel string) (*usecase.TempCodeCreated, error) {
	identity, _ := middleware.CurrentIdentity(c)
	return h.codes.Create(c.Request.Context(), usecase.CreateTempCodeInput{
		LockID:      strings.TrimSpace(req.LockID),
		Duration:    req.Duration,
		Description: req.Description,
		Creator:     identity,
		Channel:     channel,
		Meta:        middleware.RequestMeta(c),
	})
}

// Verify consumes one use of a code. Lock controllers call it without credentials.
func (h *TempCodeHandler) Verify(c *gin.Context) {
	var req VerifyTempCodeRequest
	_ = c.ShouldBindJSON(&req)
	req.Code = strings.TrimSpace(req.Code)
	req.LockID = strings.TrimSpace(req.LockID)
	if req.Code == "" || req.LockID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "valid": false, "error": "Missing code or lockId"})
		return
	}

	result, err := h.codes.Verify(c.Request.Context(), req.LockID, req.Code)
	if err != nil {
		RespondWithMappedError(c, err, tempCodeErrorCases, http.StatusInternalServerError, "failed to verify code")
		return
	}
	c.JSON(http.StatusOK, VerifyTempCodeResponse{Success: result.Valid, VerifyResult: *result})
}

// Active lists the usable codes of a lock.
func (h *TempCodeHandler) Active(c *gin.Context) {
	codes, err := h.codes.ListActive(c.Request.Context(), c.Param("lockId"))
	if err != nil {
		RespondWithMappedError(c, err, tempCodeErrorCases, http.StatusInternalServerError, "failed to list codes")
		return
	}
	if codes == nil {
		codes = []usecase.ActiveTempCode{}
	}
	c.JSON(http.StatusOK, ActiveTempCodesResponse{Success: true, Codes: codes})
}

// Revoke revokes a code of the checked lock.
func (h *TempCodeHandler) Revoke(c *gin.Context) {
	lockID := middleware.RequestLockID(c)
	var req RevokeTempCodeRequest
	_ = c.ShouldBindJSON(&req)
	req.LockID = lockID
	if req.LockID == "" || strings.TrimSpace(req.Code) == "" {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "Missing lockId or code"))
		return
	}

	identity, _ := middleware.CurrentIdentity(c)
	_, err := h.codes.Revoke(c.Request.Context(), usecase.RevokeTempCodeInput{
		LockID: req.LockID,
		Code:   strings.TrimSpace(req.Code),
		Actor:  identity,
		Meta:   middleware.RequestMeta(c),
	})
	if err != nil {
		RespondWithMappedError(c, err, tempCodeErrorCases, http.StatusInternalServerError, "failed to revoke code")
		return
	}
	c.JSON(http.StatusOK, MessageResponse{Success: true, Message: "Code revoked successfully"})
}
