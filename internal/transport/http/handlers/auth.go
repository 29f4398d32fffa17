package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/trinhkhanh29/SmartLock-FaceRecognition/internal/core/domain"
	"github.com/trinhkhanh29/SmartLock-FaceRecognition/internal/transport/http/middleware"
	"github.com/trinhkhanh29/SmartLock-FaceRecognition/internal/usecase"
)

const defaultCookieName = "smartlock_session"

// SessionCookie configures the dashboard session cookie.
type SessionCookie struct {
	Name   string
	Secure bool
}

// AuthHandler serves dashboard and API login.
type AuthHandler struct {
	auth   *usecase.AuthService
	cookie SessionCookie
	logger *zap.Logger
}

// NewAuthHandler constructs an AuthHandler.
func NewAuthHandler(auth *usecase.AuthService, cookie SessionCookie, logger *zap.Logger) *AuthHandler {
	if cookie.Name == "" {
		cookie.Name = defaultCookieName
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthHandler{auth: auth, cookie: cookie, logger: logger}
}

// LoginPage returns and clears the pending flash message for the login form.
func (h *AuthHandler) LoginPage(c *gin.Context) {
	c.JSON(http.StatusOK, FlashResponse{Flash: middleware.PopFlash(c)})
}

// LoginForm authenticates a dashboard form post, sets the session cookie and
// redirects to the dashboard.
func (h *AuthHandler) LoginForm(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBind(&req); err != nil {
		middleware.RedirectWithFlash(c, "/login", "username and password are required")
		return
	}

	result, err := h.auth.Login(c.Request.Context(), usecase.LoginInput{
		Username: req.Username,
		Password: req.Password,
		Meta:     middleware.RequestMeta(c),
	})
	if err != nil {
		middleware.RedirectWithFlash(c, "/login", loginFailureMessage(err))
		return
	}

	h.setSessionCookie(c, result.Session.ID, int(h.auth.SessionTTL().Seconds()))
	c.Redirect(http.StatusFound, "/")
}

// Login authenticates the administrator or a lock user and returns a bearer token.
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid request payload"))
		return
	}

	result, err := h.auth.Login(c.Request.Context(), usecase.LoginInput{
		Username: req.Username,
		Password: req.Password,
		Meta:     middleware.RequestMeta(c),
	})
	if err != nil {
		RespondWithMappedError(c, err, authErrorCases, http.StatusInternalServerError, "failed to log in")
		return
	}

	h.setSessionCookie(c, result.Session.ID, int(h.auth.SessionTTL().Seconds()))
	c.JSON(http.StatusOK, LoginResponse{
		Success:   true,
		Token:     result.Token,
		ExpiresIn: int(h.auth.SessionTTL().Seconds()),
		User:      summarize(result.Identity),
	})
}

// Logout ends the caller's session. Browsers are redirected to the login page.
func (h *AuthHandler) Logout(c *gin.Context) {
	identity, _ := middleware.CurrentIdentity(c)
	sessionID := middleware.SessionID(c)
	if err := h.auth.Logout(c.Request.Context(), sessionID, identity, middleware.RequestMeta(c)); err != nil {
		h.logger.Warn("failed to drop session", zap.Error(err), zap.String("trace_id", middleware.GetTraceID(c)))
	}
	h.setSessionCookie(c, "", -1)

	if middleware.ClientKindOf(c) == domain.ClientBrowser {
		middleware.RedirectWithFlash(c, "/login", "You have been logged out")
		return
	}
	c.JSON(http.StatusOK, MessageResponse{Success: true, Message: "Logged out"})
}

// Me describes the current caller.
func (h *AuthHandler) Me(c *gin.Context) {
	identity, ok := middleware.CurrentIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "Authentication required"))
		return
	}
	c.JSON(http.StatusOK, summarize(*identity))
}

func (h *AuthHandler) setSessionCookie(c *gin.Context, value string, maxAge int) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     h.cookie.Name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func loginFailureMessage(err error) string {
	if msg := mappedMessage(err, authErrorCases); msg != "unexpected error" {
		return msg
	}
	return "login failed, please try again"
}
