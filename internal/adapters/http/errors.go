package http

import (
	"fmt"
	"net/http"

	"github.com/go-resty/resty/v2"

	"github.com/nutriai/mealsync/internal/domain"
)

// maxErrorBody caps how much of a response body is kept in errors.
const maxErrorBody = 512

// StatusError is a non-2xx response from the meal service.
// It unwraps to domain.ErrUnauthorized or domain.ErrRejected when the
// status says retrying cannot help; otherwise the failure is transient.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
	kind       error
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: server returned %d: %s", e.Op, e.StatusCode, e.Body)
}

func (e *StatusError) Unwrap() error {
	return e.kind
}

// Retryable reports whether the same request may succeed later.
func (e *StatusError) Retryable() bool {
	return e.kind == nil
}

func checkResponse(op string, resp *resty.Response) error {
	code := resp.StatusCode()
	if code/100 == 2 {
		return nil
	}

	body := resp.String()
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	return &StatusError{Op: op, StatusCode: code, Body: body, kind: classifyStatus(code)}
}

func classifyStatus(code int) error {
	switch code {
	case http.StatusUnauthorized, http.StatusForbidden:
		return domain.ErrUnauthorized
	case http.StatusBadRequest,
		http.StatusNotFound,
		http.StatusConflict,
		http.StatusGone,
		http.StatusRequestEntityTooLarge,
		http.StatusUnsupportedMediaType,
		http.StatusUnprocessableEntity:
		return domain.ErrRejected
	default:
		// 408, 425, 429 and 5xx are worth retrying.
		return nil
	}
}
