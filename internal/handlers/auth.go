package handlers

import (
	"errors"
	"net/http"

	"smart_cash_power/internal/service"

	"github.com/gin-gonic/gin"
)

// Single, shared credentials payload for both sign-up and sign-in.
type authCredentials struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
	// Role is only read on sign-up: USER (default) or ADMIN.
	Role string `json:"role,omitempty" example:"USER"`
}

// bindJSONOrBadRequest tries to bind the request body into dst and writes a 400 JSON on failure.
// Returns false if the request was already handled (aborted), true otherwise.
func (h *Handler) bindJSONOrBadRequest(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		if h.log != nil {
			h.log.Infow("bad_request_body", "path", c.FullPath(), "err", err)
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return false
	}
	return true
}

// @Summary      Sign up
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      authCredentials  true  "Credentials"
// @Success      200   {object}  map[string]int
// @Failure      400   {object}  map[string]string
// @Router       /auth/sign-up [post]
func (h *Handler) signUp(c *gin.Context) {
	var input authCredentials
	if ok := h.bindJSONOrBadRequest(c, &input); !ok {
		return
	}

	id, err := h.services.SignUp(input.Username, input.Password, input.Role)
	if err != nil {
		if h.log != nil {
			h.log.Infow("auth_sign_up_failed", "username", input.Username, "err", err)
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"id": id})
}

// @Summary      Sign in
// @Description  Returns a bearer token and, for non-admin users, starts draining their meters.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      authCredentials  true  "Credentials"
// @Success      200   {object}  map[string]string  "token, role"
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Router       /auth/sign-in [post]
func (h *Handler) signIn(c *gin.Context) {
	var input authCredentials
	if ok := h.bindJSONOrBadRequest(c, &input); !ok {
		return
	}

	token, err := h.services.GenerateToken(input.Username, input.Password)
	if err != nil {
		if h.log != nil {
			h.log.Infow("auth_sign_in_failed", "username", input.Username, "err", err)
		}
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	id, err := h.services.ParseToken(token)
	if err != nil {
		h.logAndJSONError(c, http.StatusInternalServerError, "failed to issue token", "auth_token_roundtrip_failed", err)
		return
	}
	h.services.Dashboard.Open(service.WithCredential(c.Request.Context(), token), id)

	c.JSON(http.StatusOK, gin.H{"token": token, "role": id.Role})
}

// @Summary      Sign out
// @Description  Flushes the last simulated units of every meter. Always succeeds; failed writes are only counted.
// @Tags         auth
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "status, flushed, failed"
// @Failure      401  {object}  map[string]string
// @Router       /api/v1/auth/sign-out [post]
// @Security     BearerAuth
func (h *Handler) signOut(c *gin.Context) {
	id := identityFrom(c)
	res := h.services.Dashboard.Close(c.Request.Context(), id.UserID)
	if res.Err != nil && h.log != nil {
		h.log.Warnw("auth_sign_out_partial_flush", "user_id", id.UserID, "failed", res.Failed, "err", res.Err)
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  statusSignedOut,
		"flushed": res.Attempted - res.Failed,
		"failed":  res.Failed,
	})
}

// Centralized error logging and response.
func (h *Handler) logAndJSONError(c *gin.Context, httpCode int, userMsg, logKey string, err error, kv ...interface{}) {
	if h.log != nil && err != nil {
		fields := append([]interface{}{"err", err}, kv...)
		h.log.Errorw(logKey, fields...)
	}
	c.JSON(httpCode, gin.H{"error": userMsg})
}

// respondServiceError maps service sentinel errors to status codes. Anything
// unknown is logged and reported as 500 with fallbackMsg.
func (h *Handler) respondServiceError(c *gin.Context, fallbackMsg, logKey string, err error, kv ...interface{}) {
	switch {
	case errors.Is(err, service.ErrMeterNotFound), errors.Is(err, service.ErrMeterNotInView):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrMeterExists), errors.Is(err, service.ErrNoSession):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrInvalidMeterNumber),
		errors.Is(err, service.ErrNegativeUnits),
		errors.Is(err, service.ErrUsedUnitsDecrease),
		errors.Is(err, service.ErrInvalidFilter),
		errors.Is(err, service.ErrInvalidAmount),
		errors.Is(err, service.ErrInvalidCredit):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrRemoteCredential):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	default:
		h.logAndJSONError(c, http.StatusInternalServerError, fallbackMsg, logKey, err, kv...)
	}
}
