package linksdk

import (
	"errors"
	"fmt"

	"github.com/imroc/req/v3"
)

var (
	ErrNoBaseURL = errors.New("sdk: daemon url missing")
)

const (
	CodeInvalidRequest  = "E_INVALID_REQUEST"  // bad or malformed request
	CodeUnauthorized    = "E_UNAUTHORIZED"     // missing or wrong api token
	CodeRateLimited     = "E_RATE_LIMITED"     // rate limit exceeded
	CodeNotFound        = "E_NOT_FOUND"        // unknown route or vault path
	CodeSyncBusy        = "E_SYNC_BUSY"        // a full sync pass is already running
	CodeInvalidSettings = "E_INVALID_SETTINGS" // settings failed validation
	CodeInternalError   = "E_INTERNAL_ERROR"   // internal daemon error
	CodeUnknownError    = "E_UNKNOWN_ERR"      // unknown error
)

// APIError is the daemon's JSON error envelope.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"error"`
}

func NewAPIError(code, message string) *APIError {
	return &APIError{
		Code:    code,
		Message: message,
	}
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: %s - %s", e.Code, e.Message)
}

// handleAPIError folds the transport error and the API error envelope into
// one error value.
func handleAPIError(resp *req.Response, requestErr error, operation string) error {
	if requestErr != nil {
		return fmt.Errorf("http request error: %s %w", operation, requestErr)
	}

	// got a response, but the api returned an error
	if resp.IsErrorState() {
		if err, ok := resp.ErrorResult().(*APIError); ok {
			return fmt.Errorf("%s: %w", operation, err)
		}

		return fmt.Errorf("api error: %s %s", operation, resp.Dump())
	}

	return nil
}
