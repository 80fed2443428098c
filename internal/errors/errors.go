// Package errors provides a standardized error taxonomy for the module
// plane core's HTTP surface (§7).
//
// An AppError carries a machine-readable code, a human message, and the
// HTTP status it maps to. Handlers return an *AppError (or call
// AbortWithError) instead of writing ad hoc JSON error bodies, so every
// endpoint produces the same envelope shape.
package errors

import "net/http"

// AppError is a structured, client-facing error.
type AppError struct {
	Code       string            `json:"error"`
	Message    string            `json:"message,omitempty"`
	StatusCode int               `json:"-"`
	Extra      map[string]string `json:"-"`
}

func (e *AppError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Code
}

// ToResponse renders the error as the JSON body clients receive.
func (e *AppError) ToResponse() map[string]string {
	resp := map[string]string{"error": e.Code}
	if e.Message != "" {
		resp["message"] = e.Message
	}
	for k, v := range e.Extra {
		resp[k] = v
	}
	return resp
}

func New(code string, status int, message string) *AppError {
	return &AppError{Code: code, Message: message, StatusCode: status}
}

// Fixed registration error codes, §6.1.
var (
	UsernameMissing        = New("usernameMissing", http.StatusBadRequest, "username is required")
	PasswordMissing        = New("passwordMissing", http.StatusBadRequest, "password is required")
	RepasswordMissing      = New("repasswordMissing", http.StatusBadRequest, "password confirmation is required")
	EmailMissing           = New("emailMissing", http.StatusBadRequest, "email is required")
	InvalidEmail           = New("invalidEmail", http.StatusBadRequest, "email is not a valid address")
	PasswordsDontMatch     = New("passwordsDontMatch", http.StatusBadRequest, "password and repassword do not match")
	InvalidUsernameFormat  = New("invalidUsernameFormat", http.StatusBadRequest, "username may only contain letters, digits and underscores")
	InvalidUsernameLength  = New("invalidUsernameLength", http.StatusBadRequest, "username must be 3-20 characters")
	UsernameTaken          = New("usernameTaken", http.StatusBadRequest, "username is already taken")
	EmailTaken             = New("emailTaken", http.StatusBadRequest, "email is already registered")
	MissingCredentials     = New("missingCredentials", http.StatusBadRequest, "username and password are required")
	InvalidCredentials     = New("invalidCredentials", http.StatusUnauthorized, "username or password is incorrect")
	InvalidToken           = New("invalidToken", http.StatusUnauthorized, "token is missing, malformed, or expired")
)

// NotFound hides endpoint existence behind a generic 404. Used both for
// genuinely missing resources and, deliberately, for forbidden access
// (§9 note c): the caller cannot distinguish "doesn't exist" from
// "exists but you may not see it".
func NotFound(resource string) *AppError {
	return New("notFound", http.StatusNotFound, resource+" not found")
}

// Forbidden access is reported as NotFound per the redesign note; this
// constructor exists so call sites can say what they mean and still get
// the mandated status code.
func Forbidden(resource string) *AppError {
	return NotFound(resource)
}

// Unavailable reports that a module has no live instance to serve a
// request (§4.4).
func Unavailable(module string) *AppError {
	return &AppError{
		Code:       "moduleUnavailable",
		Message:    "Module service unavailable",
		StatusCode: http.StatusServiceUnavailable,
		Extra:      map[string]string{"module": module},
	}
}

// RequestTimeout reports that a dispatched request's deadline elapsed
// before a response arrived (§4.4, §4.6).
func RequestTimeout() *AppError {
	return New("requestTimeout", http.StatusGatewayTimeout, "module did not respond in time")
}

// Internal wraps an unexpected server-side failure. The underlying error
// is logged by the caller; it is never included in the response body.
func Internal() *AppError {
	return New("internalError", http.StatusInternalServerError, "internal server error")
}

// AccountBanned reports that a user with otherwise-valid credentials is
// currently banned (§6.4). Unlike Forbidden, this is reported honestly
// rather than folded into NotFound: the user already proved who they are.
func AccountBanned(reason string) *AppError {
	return &AppError{
		Code:       "accountBanned",
		Message:    "account is banned",
		StatusCode: http.StatusForbidden,
		Extra:      map[string]string{"reason": reason},
	}
}
