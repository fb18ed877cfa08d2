package errors

import (
	"errors"
	"net/http"
)

var (
	// ErrInvalidCredentials is returned when the username/password pair does not match.
	ErrInvalidCredentials = errors.New("Invalid credentials")
	// ErrMalformedRequest is returned when a request payload cannot be decoded.
	ErrMalformedRequest = errors.New("Invalid payload")
	// ErrMissingCredentials is returned when username or password is empty.
	ErrMissingCredentials = errors.New("Username and password are required")
	// ErrUnauthorized is returned when no bearer token is presented.
	ErrUnauthorized = errors.New("Unauthorized")
	// ErrInvalidToken is returned when a bearer token fails verification.
	ErrInvalidToken = errors.New("Invalid or expired token")
	// ErrForbidden is returned when a valid token lacks the required role.
	ErrForbidden = errors.New("Forbidden")
	// ErrUserNotFound is returned when a user record does not exist.
	ErrUserNotFound = errors.New("user not found")
	// ErrMalformedResponse is returned when the login response misses required fields.
	ErrMalformedResponse = errors.New("malformed login response")
	// ErrStorageCorruption is returned when persisted session data fails validation.
	ErrStorageCorruption = errors.New("persisted session is corrupted")
)

// ErrorResponse represents a standardized error response.
type ErrorResponse struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// HTTPError represents an HTTP error with status code.
type HTTPError struct {
	StatusCode int
	Message    string
	Code       string
}

func (e *HTTPError) Error() string {
	return e.Message
}

// NewHTTPError creates a new HTTP error.
func NewHTTPError(statusCode int, message, code string) *HTTPError {
	return &HTTPError{
		StatusCode: statusCode,
		Message:    message,
		Code:       code,
	}
}

// ToErrorResponse converts an HTTPError to ErrorResponse.
func (e *HTTPError) ToErrorResponse() ErrorResponse {
	return ErrorResponse{
		Message: e.Message,
		Code:    e.Code,
	}
}

// MapErrorToHTTP maps domain errors to HTTP errors.
func MapErrorToHTTP(err error) *HTTPError {
	switch {
	case errors.Is(err, ErrMalformedRequest):
		return NewHTTPError(http.StatusBadRequest, ErrMalformedRequest.Error(), "INVALID_PAYLOAD")
	case errors.Is(err, ErrMissingCredentials):
		return NewHTTPError(http.StatusBadRequest, ErrMissingCredentials.Error(), "MISSING_CREDENTIALS")
	case errors.Is(err, ErrInvalidCredentials):
		return NewHTTPError(http.StatusUnauthorized, ErrInvalidCredentials.Error(), "INVALID_CREDENTIALS")
	case errors.Is(err, ErrUnauthorized):
		return NewHTTPError(http.StatusUnauthorized, ErrUnauthorized.Error(), "UNAUTHORIZED")
	case errors.Is(err, ErrInvalidToken):
		return NewHTTPError(http.StatusUnauthorized, ErrInvalidToken.Error(), "INVALID_TOKEN")
	case errors.Is(err, ErrForbidden):
		return NewHTTPError(http.StatusForbidden, ErrForbidden.Error(), "FORBIDDEN")
	case errors.Is(err, ErrUserNotFound):
		return NewHTTPError(http.StatusNotFound, ErrUserNotFound.Error(), "USER_NOT_FOUND")
	default:
		return NewHTTPError(http.StatusInternalServerError, "internal server error", "INTERNAL_ERROR")
	}
}
