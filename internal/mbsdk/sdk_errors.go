package mbsdk

import (
	"errors"
	"fmt"

	"github.com/imroc/req/v3"
)

var (
	ErrNoServerURL = errors.New("sdk: server url missing")
	ErrNoUser      = errors.New("sdk: user missing")

	// ErrNotFound maps the server's not-found responses.
	ErrNotFound = errors.New("sdk: not found")
)

// APIError is the server's coded error envelope.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"error"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: %s - %s", e.Code, e.Message)
}

// handleAPIError normalizes transport and API failures for one operation.
func handleAPIError(resp *req.Response, requestErr error, operation string) error {
	if requestErr != nil {
		return fmt.Errorf("http request error: %s %w", operation, requestErr)
	}

	// got a response, but api returned an error
	if resp.IsErrorState() {
		if apiErr, ok := resp.ErrorResult().(*APIError); ok {
			if resp.StatusCode == 404 {
				return fmt.Errorf("%s: %w: %s", operation, ErrNotFound, apiErr.Message)
			}
			return fmt.Errorf("%s: %w", operation, apiErr)
		}
		return fmt.Errorf("api error: %s %s", operation, resp.Status)
	}

	return nil
}
