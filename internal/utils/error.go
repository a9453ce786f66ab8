package utils

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
	pkgerrors "github.com/pkg/errors"
)

// ErrorKind is the closed set of failure categories exposed by the core
type ErrorKind string

const (
	KindNotFound            ErrorKind = "NOT_FOUND"
	KindAccessDenied        ErrorKind = "ACCESS_DENIED"
	KindNameAlreadyExists   ErrorKind = "NAME_ALREADY_EXISTS"
	KindDuplicateEntry      ErrorKind = "DUPLICATE_ENTRY"
	KindConstraintViolation ErrorKind = "CONSTRAINT_VIOLATION"
	KindInvalidContent      ErrorKind = "INVALID_CONTENT"
	KindInvalidInput        ErrorKind = "INVALID_INPUT"
	KindGeneric             ErrorKind = "GENERIC_ERROR"
)

// HTTPStatus maps the kind to the status code the transport layer should answer with
func (k ErrorKind) HTTPStatus() int {
	switch k {
	case KindNotFound:
		return http.StatusNotFound
	case KindAccessDenied:
		return http.StatusForbidden
	case KindNameAlreadyExists, KindDuplicateEntry, KindConstraintViolation, KindInvalidContent, KindInvalidInput:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Sentinels for errors.Is checks. Matching is done on Kind only.
var (
	ErrNotFound            = &AppError{Kind: KindNotFound}
	ErrAccessDenied        = &AppError{Kind: KindAccessDenied}
	ErrNameAlreadyExists   = &AppError{Kind: KindNameAlreadyExists}
	ErrDuplicateEntry      = &AppError{Kind: KindDuplicateEntry}
	ErrConstraintViolation = &AppError{Kind: KindConstraintViolation}
	ErrInvalidContent      = &AppError{Kind: KindInvalidContent}
	ErrInvalidInput        = &AppError{Kind: KindInvalidInput}
	ErrGeneric             = &AppError{Kind: KindGeneric}
)

// AppError is an error classified into the core taxonomy, wrapping the
// low-level cause it was translated from
type AppError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

// NewError creates a classified error. The cause, when present, is annotated
// with the stack of the translation point.
func NewError(kind ErrorKind, message string, cause error) *AppError {
	if cause != nil {
		cause = pkgerrors.WithStack(cause)
	}
	return &AppError{
		Kind:    kind,
		Message: message,
		Err:     cause,
	}
}

// Error returns the error message
func (e *AppError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is reports whether target is an AppError of the same kind
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func NewNotFoundError(message string, cause error) *AppError {
	return NewError(KindNotFound, message, cause)
}

func NewAccessDeniedError(message string, cause error) *AppError {
	return NewError(KindAccessDenied, message, cause)
}

func NewNameAlreadyExistsError(message string, cause error) *AppError {
	return NewError(KindNameAlreadyExists, message, cause)
}

func NewDuplicateEntryError(message string, cause error) *AppError {
	return NewError(KindDuplicateEntry, message, cause)
}

func NewConstraintViolationError(message string, cause error) *AppError {
	return NewError(KindConstraintViolation, message, cause)
}

func NewInvalidContentError(message string, cause error) *AppError {
	return NewError(KindInvalidContent, message, cause)
}

func NewInvalidInputError(message string, cause error) *AppError {
	return NewError(KindInvalidInput, message, cause)
}

func NewGenericError(message string, cause error) *AppError {
	return NewError(KindGeneric, message, cause)
}

// KindOf returns the taxonomy kind of err. Anything unclassified is GENERIC_ERROR.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindGeneric
}

// IsKind reports whether err carries the given kind
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}

// ErrorResponse represents a standardized error response format
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
	Code    int    `json:"code,omitempty"`
	Kind    string `json:"kind,omitempty"`
}

// SendAppError renders err using the status of its taxonomy kind. Details of
// GENERIC_ERROR failures are not exposed to clients.
func SendAppError(c *fiber.Ctx, err error) error {
	kind := KindOf(err)
	status := kind.HTTPStatus()

	resp := ErrorResponse{
		Error: http.StatusText(status),
		Code:  status,
		Kind:  string(kind),
	}
	var appErr *AppError
	if kind != KindGeneric && errors.As(err, &appErr) {
		resp.Details = appErr.Message
	}

	return c.Status(status).JSON(resp)
}

// FiberErrorHandler is the app-wide error handler. Framework errors such as
// unknown routes keep their own status, everything else goes through SendAppError.
func FiberErrorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(ErrorResponse{Error: fe.Message, Code: fe.Code})
	}
	return SendAppError(c, err)
}
