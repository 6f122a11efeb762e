package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RequestIDKey is the gin context key the request logger stores the request id under.
const RequestIDKey = "request_id"

type ErrorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// RespondError writes {"error": {...}}. A nil err is reported by code alone.
func RespondError(c *gin.Context, status int, code string, err error) {
	body := ErrorBody{Code: code, Message: code, RequestID: c.GetString(RequestIDKey)}
	if err != nil {
		body.Message = err.Error()
	}
	c.AbortWithStatusJSON(status, gin.H{"error": body})
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

// RespondAccepted acknowledges work that continues after the response.
func RespondAccepted(c *gin.Context, payload any) {
	c.JSON(http.StatusAccepted, payload)
}
