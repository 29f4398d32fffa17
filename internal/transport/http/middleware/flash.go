package middleware

import (
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"
)

const (
	// FlashCookieName holds a one-shot message shown on the next page.
	FlashCookieName = "smartlock_flash"
	flashMaxAge     = 60
	loginPath       = "/login"
)

// SetFlash stores message for the next browser request.
func SetFlash(c *gin.Context, message string) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     FlashCookieName,
		Value:    url.QueryEscape(message),
		Path:     "/",
		MaxAge:   flashMaxAge,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// PopFlash returns and clears the pending flash message.
func PopFlash(c *gin.Context) string {
	raw, err := c.Cookie(FlashCookieName)
	if err != nil || raw == "" {
		return ""
	}
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     FlashCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	message, err := url.QueryUnescape(raw)
	if err != nil {
		return ""
	}
	return message
}

// RedirectWithFlash sends a browser back to target with message.
func RedirectWithFlash(c *gin.Context, target, message string) {
	if message != "" {
		SetFlash(c, message)
	}
	c.Redirect(http.StatusFound, target)
	c.Abort()
}
