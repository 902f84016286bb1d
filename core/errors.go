package core

import (
	"errors"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-turns/rotation"
)

const (
	ErrorBadInput           = "TURNS_BAD_INPUT"
	ErrorUnauthorized       = "TURNS_UNAUTHORIZED"
	ErrorNotFound           = "TURNS_NOT_FOUND"
	ErrorConflict           = "TURNS_CONFLICT"
	ErrorExternalAPI        = "TURNS_EXTERNAL_API"
	ErrorHandlerFailed      = "TURNS_HANDLER_FAILED"
	ErrorWorkflowStepFailed = "TURNS_WORKFLOW_STEP_FAILED"
	ErrorInternal           = "TURNS_INTERNAL"
)

var (
	ErrTenantNotFound        = errors.New("core: tenant not found")
	ErrVersionConflict       = errors.New("core: tenant version conflict")
	ErrWorkflowNotConfigured = errors.New("core: workflow rotation is not configured")
	ErrTurnMoved             = errors.New("core: rotation moved past the turn")
)

func serviceErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureErrorEnvelope(richErr)
	}

	switch {
	case errors.Is(err, ErrTenantNotFound), errors.Is(err, ErrWorkflowNotConfigured):
		return wrapServiceError(err, goerrors.CategoryNotFound, ErrorNotFound)
	case errors.Is(err, ErrVersionConflict), errors.Is(err, ErrTurnMoved), errors.Is(err, rotation.ErrNothingToSkip):
		return wrapServiceError(err, goerrors.CategoryConflict, ErrorConflict)
	case errors.Is(err, rotation.ErrEmptyRotation),
		errors.Is(err, rotation.ErrDuplicateParticipant),
		errors.Is(err, rotation.ErrInvalidParticipant):
		return wrapServiceError(err, goerrors.CategoryBadInput, ErrorBadInput)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	if strings.Contains(msg, "required") || strings.Contains(msg, "invalid") {
		return wrapServiceError(err, goerrors.CategoryBadInput, ErrorBadInput)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureErrorEnvelope(mapped)
}

// MapError converts any error into the go-errors envelope used across the
// module. nil stays nil.
func MapError(err error) error {
	if err == nil {
		return nil
	}
	return serviceErrorMapper(err)
}

func NewError(message string, category goerrors.Category, textCode string, metadata map[string]any) *goerrors.Error {
	err := goerrors.New(message, category).
		WithCode(HTTPStatus(category)).
		WithTextCode(textCode)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func WrapError(
	source error,
	category goerrors.Category,
	message string,
	textCode string,
	metadata map[string]any,
) *goerrors.Error {
	if source == nil {
		return NewError(message, category, textCode, metadata)
	}
	err := goerrors.Wrap(source, category, message).
		WithCode(HTTPStatus(category)).
		WithTextCode(textCode)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func wrapServiceError(source error, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureErrorEnvelope(
		goerrors.Wrap(source, category, source.Error()).
			WithTextCode(textCode),
	)
}

func ensureErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = HTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return ErrorBadInput
	case goerrors.CategoryNotFound:
		return ErrorNotFound
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return ErrorUnauthorized
	case goerrors.CategoryConflict:
		return ErrorConflict
	case goerrors.CategoryExternal:
		return ErrorExternalAPI
	case goerrors.CategoryOperation:
		return ErrorHandlerFailed
	default:
		return ErrorInternal
	}
}

func HTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
