package handlers

import "github.com/gin-gonic/gin"

const (
	CodeInvalidRequest  = "E_INVALID_REQUEST"
	CodeUnauthorized    = "E_UNAUTHORIZED"
	CodeRateLimited     = "E_RATE_LIMITED"
	CodeNotFound        = "E_NOT_FOUND"
	CodeSyncBusy        = "E_SYNC_BUSY"
	CodeInvalidSettings = "E_INVALID_SETTINGS"
	CodeInternalError   = "E_INTERNAL_ERROR"
)

// ControlPlaneError is the control plane's JSON error envelope.
type ControlPlaneError struct {
	ErrorCode string `json:"code"`
	Error     string `json:"error"`
}

// AbortWithError terminates the request with a JSON error envelope.
func AbortWithError(c *gin.Context, status int, code string, err error) {
	c.Abort()
	c.Error(err)
	c.PureJSON(status, &ControlPlaneError{
		ErrorCode: code,
		Error:     err.Error(),
	})
}
