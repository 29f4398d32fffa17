package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/trinhkhanh29/SmartLock-FaceRecognition/internal/core/domain"
)

// APIKeyHeader carries the shared key used by lock controllers and integrations.
const APIKeyHeader = "x-api-key"

// ClassifyClient decides once per request whether denials should redirect or
// answer with JSON.
func ClassifyClient() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(ClientKindKey, classify(c))
		c.Next()
	}
}

// ClientKindOf returns the stored classification, computing it when
// ClassifyClient did not run.
func ClientKindOf(c *gin.Context) domain.ClientKind {
	if value, ok := c.Get(ClientKindKey); ok {
		if kind, ok := value.(domain.ClientKind); ok {
			return kind
		}
	}
	return classify(c)
}

func classify(c *gin.Context) domain.ClientKind {
	return domain.ClassifyClient(c.Request.URL.Path, c.GetHeader(APIKeyHeader) != "")
}
