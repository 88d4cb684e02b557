// Package httpx holds the pieces shared by the outbound REST adapters.
package httpx

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"freight/internal/workflow"
)

// maxErrorBody caps how much of an error response is kept.
const maxErrorBody = 4 << 10

// StatusError is a non-2xx response from a remote API.
type StatusError struct {
	Service string
	Code    int
	Body    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s responded %d: %s", e.Service, e.Code, e.Body)
}

// Retryable reports whether the same request may succeed later.
func (e *StatusError) Retryable() bool {
	return e.Code == http.StatusTooManyRequests ||
		e.Code == http.StatusRequestTimeout ||
		e.Code >= http.StatusInternalServerError
}

// CheckResponse turns a non-2xx response into a StatusError and closes its
// body. Client errors other than 408 and 429 are marked non-retryable so the
// activity layer stops retrying them.
func CheckResponse(service string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	defer resp.Body.Close()

	b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	statusErr := &StatusError{
		Service: service,
		Code:    resp.StatusCode,
		Body:    strings.TrimSpace(string(b)),
	}
	if statusErr.Retryable() {
		return statusErr
	}
	return workflow.NewNonRetryableError(statusErr)
}
