package core

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a domain error. Transports map kinds to status codes.
type ErrorKind string

const (
	KindValidation          ErrorKind = "VALIDATION"           // 400
	KindUnauthenticated     ErrorKind = "UNAUTHENTICATED"      // 401
	KindForbidden           ErrorKind = "FORBIDDEN"            // 403
	KindNotFound            ErrorKind = "NOT_FOUND"            // 404
	KindConflict            ErrorKind = "CONFLICT"             // 409
	KindPreconditionFailed  ErrorKind = "PRECONDITION_FAILED"  // 409
	KindTokenNotFound       ErrorKind = "TOKEN_NOT_FOUND"      // 400
	KindTokenExpired        ErrorKind = "TOKEN_EXPIRED"        // 410
	KindTokenSuperseded     ErrorKind = "TOKEN_SUPERSEDED"     // 410
	KindUpstreamUnavailable ErrorKind = "UPSTREAM_UNAVAILABLE" // 503
	KindInternal            ErrorKind = "INTERNAL"             // 500
)

// Error is the domain error returned by services.
//
// Two errors are equal under errors.Is when kind and code match, so a sentinel
// still matches after WithMessage or Wrap.
type Error struct {
	Kind    ErrorKind
	Code    string
	Message string
	Err     error
}

func NewError(kind ErrorKind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Code == t.Code
}

// WithMessage returns a copy carrying a more specific message.
func (e *Error) WithMessage(format string, args ...any) *Error {
	c := *e
	c.Message = fmt.Sprintf(format, args...)
	return &c
}

// Wrap returns a copy with err as the cause.
func (e *Error) Wrap(err error) *Error {
	c := *e
	c.Err = err
	return &c
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// CodeOf returns the code of the first *Error in err's chain.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return "INTERNAL_ERROR"
}

// User errors
var (
	ErrUserExists         = NewError(KindConflict, "USER_ALREADY_EXISTS", "user already exists")                  // 409 Conflict
	ErrUserNotFound       = NewError(KindNotFound, "USER_NOT_FOUND", "user not found")                            // 404 Not Found
	ErrInvalidCredentials = NewError(KindUnauthenticated, "INVALID_EMAIL_OR_PASSWORD", "invalid email or password") // 401 Unauthorized
	ErrEmailInUse         = NewError(KindConflict, "EMAIL_IN_USE", "email is already in use")                     // 409
	ErrEmailNotVerified   = NewError(KindForbidden, "EMAIL_NOT_VERIFIED", "email is not verified")                // 403
	ErrUserBanned         = NewError(KindForbidden, "USER_BANNED", "user is banned")                              // 403
	ErrForbidden          = NewError(KindForbidden, "FORBIDDEN", "insufficient permissions")                      // 403
)

// Auth method errors
var (
	ErrAlreadyHasCredential = NewError(KindConflict, "ALREADY_HAS_CREDENTIAL", "user already has a password credential") // 409
	ErrAlreadyLinked        = NewError(KindConflict, "ALREADY_LINKED", "provider is already linked to this user")       // 409
	ErrExternalIDInUse      = NewError(KindConflict, "EXTERNAL_ID_IN_USE", "external account is linked to another user") // 409
	ErrLastMethod           = NewError(KindPreconditionFailed, "LAST_METHOD", "cannot remove the last sign-in method")   // 409
	ErrMethodNotFound       = NewError(KindNotFound, "METHOD_NOT_FOUND", "sign-in method not linked")                  // 404
	ErrInvalidProvider      = NewError(KindValidation, "INVALID_PROVIDER", "invalid provider")                         // 400
)

// Session errors
var (
	ErrMissingAuthHeader = NewError(KindUnauthenticated, "MISSING_AUTH", "missing authorization header") // 401
	ErrInvalidToken      = NewError(KindUnauthenticated, "INVALID_TOKEN", "invalid session token")       // 401
	ErrSessionExpired    = NewError(KindUnauthenticated, "SESSION_EXPIRED", "session expired")           // 401
	ErrSessionNotFound   = NewError(KindNotFound, "SESSION_NOT_FOUND", "session not found")              // 404
	ErrCacheNotFound     = errors.New("session not found in cache")
)

// Confirmation errors
var (
	ErrTokenNotFound       = NewError(KindTokenNotFound, "TOKEN_NOT_FOUND", "token not found or already used")          // 400
	ErrTokenExpired        = NewError(KindTokenExpired, "TOKEN_EXPIRED", "token expired")                               // 410
	ErrTokenSuperseded     = NewError(KindTokenSuperseded, "TOKEN_SUPERSEDED", "token superseded by a newer request")   // 410
	ErrInvalidOTP          = NewError(KindValidation, "INVALID_OTP", "invalid verification code")                      // 400
	ErrOTPAttemptsExceeded = NewError(KindTokenExpired, "OTP_ATTEMPTS_EXCEEDED", "too many attempts, request a new code") // 410
)

// Validation errors (client input)
var (
	ErrValidation        = NewError(KindValidation, "VALIDATION_FAILED", "invalid input")                                          // 400
	ErrInvalidAuthHeader = NewError(KindUnauthenticated, "INVALID_AUTH", "invalid authorization format, expected 'Bearer <token>'") // 401
	ErrEmailRequired     = NewError(KindValidation, "EMAIL_REQUIRED", "email is required")                                         // 400
	ErrPasswordRequired  = NewError(KindValidation, "PASSWORD_REQUIRED", "password is required")                                   // 400
	ErrPasswordTooShort  = NewError(KindValidation, "PASSWORD_TOO_SHORT", "password is too short")                                 // 400
	ErrPasswordTooLong   = NewError(KindValidation, "PASSWORD_TOO_LONG", "password is too long")                                   // 400
	ErrPasswordTooWeak   = NewError(KindValidation, "PASSWORD_TOO_WEAK", "password needs an uppercase letter, a lowercase letter and a digit") // 400
	ErrInvalidEmail      = NewError(KindValidation, "INVALID_EMAIL", "invalid email format")                                       // 400
	ErrSameEmail         = NewError(KindValidation, "SAME_EMAIL", "new email must differ from the current email")                 // 400
	ErrInvalidKind       = NewError(KindValidation, "INVALID_KIND", "unsupported verification kind")                             // 400
)

// Infrastructure errors
var (
	ErrUpstreamUnavailable = NewError(KindUpstreamUnavailable, "UPSTREAM_UNAVAILABLE", "storage is unavailable") // 503
)

// Config errors (server-side configuration)
var (
	ErrDBAdapterRequired   = errors.New("database adapter is required") // 500
	ErrHTTPAdapterRequired = errors.New("http adapter is required")     // 500
	ErrMailerRequired      = errors.New("mailer is required")           // 500
	ErrSecretRequired      = errors.New("secret is required")           // 500
	ErrSecretTooShort      = errors.New("secret too short")             // 500
	ErrBaseURLRequired     = errors.New("base url is required")         // 500
)
