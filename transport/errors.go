package transport

import (
	"errors"
	"fmt"
	"net/http"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-turns/core"
)

// APIError is a platform call that answered with ok=false. Code carries the
// remote error value, for example "channel_not_found".
type APIError struct {
	Method     string
	StatusCode int
	Code       string
	Response   map[string]any
}

func (e *APIError) Error() string {
	return fmt.Sprintf("transport: %s failed: %s", e.Method, e.Code)
}

func newAPIError(method string, statusCode int, remote string, response map[string]any) error {
	apiErr := &APIError{Method: method, StatusCode: statusCode, Code: remote, Response: response}
	return transportWrapError(
		apiErr,
		goerrors.CategoryExternal,
		apiErr.Error(),
		http.StatusBadGateway,
		map[string]any{"method": method, "remote_error": remote, "status_code": statusCode},
	)
}

// RemoteError returns the remote error value carried by err, if any.
func RemoteError(err error) (string, bool) {
	if err == nil {
		return "", false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code, true
	}
	var rich *goerrors.Error
	if goerrors.As(err, &rich) && rich.Metadata != nil {
		if remote, ok := rich.Metadata["remote_error"].(string); ok && remote != "" {
			return remote, true
		}
	}
	return "", false
}

func transportError(
	message string,
	category goerrors.Category,
	code int,
	metadata map[string]any,
) error {
	err := goerrors.New(message, category).
		WithCode(code).
		WithTextCode(transportTextCode(category))
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func transportWrapError(
	source error,
	category goerrors.Category,
	message string,
	code int,
	metadata map[string]any,
) error {
	if source == nil {
		return transportError(message, category, code, metadata)
	}
	err := goerrors.Wrap(source, category, message).
		WithCode(code).
		WithTextCode(transportTextCode(category))
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func transportTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return core.ErrorBadInput
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return core.ErrorUnauthorized
	case goerrors.CategoryExternal:
		return core.ErrorExternalAPI
	default:
		return core.ErrorInternal
	}
}
