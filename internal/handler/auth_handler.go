package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	apperrors "focusflow/internal/errors"
	"focusflow/internal/service"
)

// AuthHandler handles authentication endpoints.
type AuthHandler struct {
	authService service.AuthService
	log         *zap.Logger
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(authService service.AuthService, log *zap.Logger) *AuthHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthHandler{authService: authService, log: log}
}

// maxLoginBody caps the size of a login payload.
const maxLoginBody = 1 << 20

// LoginRequest represents a user login request.
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// Login godoc
// @Summary Login user
// @Tags auth
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Login credentials"
// @Success 200 {object} service.LoginResult
// @Failure 400 {object} errors.ErrorResponse
// @Failure 401 {object} errors.ErrorResponse
// @Failure 500 {object} errors.ErrorResponse
// @Router /auth/login [post]
func (h *AuthHandler) Login(c echo.Context) error {
	// The body must be a JSON document whatever the content type claims; an
	// empty or form-encoded body is malformed, while a JSON null carries no
	// credentials.
	var req LoginRequest
	if err := json.NewDecoder(io.LimitReader(c.Request().Body, maxLoginBody)).Decode(&req); err != nil {
		return errorResponse(apperrors.ErrMalformedRequest)
	}

	if err := c.Validate(&req); err != nil {
		return errorResponse(apperrors.ErrMissingCredentials)
	}

	result, err := h.authService.Login(c.Request().Context(), req.Username, req.Password)
	if err != nil {
		if !errors.Is(err, apperrors.ErrInvalidCredentials) {
			h.log.Error("login failed", zap.String("username", req.Username), zap.Error(err))
		}
		return errorResponse(err)
	}

	return c.JSON(http.StatusOK, result)
}

// errorResponse maps a domain error to an echo error carrying an ErrorResponse.
func errorResponse(err error) *echo.HTTPError {
	httpErr := apperrors.MapErrorToHTTP(err)
	return echo.NewHTTPError(httpErr.StatusCode, httpErr.ToErrorResponse())
}
