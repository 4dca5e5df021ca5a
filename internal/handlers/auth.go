package handlers

import (
	"errors"
	"net/http"

	"climate_bridge/internal/service"

	"github.com/gin-gonic/gin"
)

const (
	tokenType = "Bearer"

	errBadCredentials = "invalid credentials"
	errOperatorTaken  = "operator already exists"
	errSignUp         = "failed to create operator"
	errSignIn         = "failed to sign in"
)

// newOperator is the sign-up payload. bcrypt ignores anything past 72 bytes,
// so longer passwords are refused.
type newOperator struct {
	Username string `json:"username" binding:"required,min=3,max=64"`
	Password string `json:"password" binding:"required,min=8,max=72"`
}

// operatorCredentials is the sign-in payload. Length rules are not repeated
// here so accounts created before they existed can still sign in.
type operatorCredentials struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// OperatorCredentials is an exported model for Swagger docs of the auth payload.
type OperatorCredentials struct {
	Username string `json:"username" example:"operador"`
	Password string `json:"password" example:"cambiame123"`
}

// bindJSONOrBadRequest binds the request body into dst and answers 400 on failure.
// Returns false if the request was already answered.
func (h *Handler) bindJSONOrBadRequest(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		if h.log != nil {
			h.log.Infow("bad_request_body", "path", c.FullPath(), "err", err)
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBodyPref + err.Error()})
		return false
	}
	return true
}

// @Summary      Register an operator
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body  OperatorCredentials  true  "Operator credentials"
// @Success      201   {object}  map[string]interface{}  "id, username"
// @Failure      400   {object}  map[string]string
// @Failure      409   {object}  map[string]string
// @Router       /auth/sign-up [post]
func (h *Handler) signUp(c *gin.Context) {
	var in newOperator
	if !h.bindJSONOrBadRequest(c, &in) {
		return
	}
	username := service.NormalizeUsername(in.Username)

	id, err := h.services.SignUp(c.Request.Context(), username, in.Password)
	switch {
	case errors.Is(err, service.ErrUserExists):
		c.JSON(http.StatusConflict, gin.H{"error": errOperatorTaken})
		return
	case err != nil:
		h.logAndJSONError(c, http.StatusInternalServerError, errSignUp, "operator_sign_up_failed", err, "username", username)
		return
	}
	if h.log != nil {
		h.log.Infow("operator_registered", "operator_id", id, "username", username)
	}
	c.JSON(http.StatusCreated, gin.H{"id": id, "username": username})
}

// @Summary      Obtain a bearer token
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body  OperatorCredentials  true  "Operator credentials"
// @Success      200   {object}  map[string]string  "token, token_type"
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Router       /auth/sign-in [post]
func (h *Handler) signIn(c *gin.Context) {
	var in operatorCredentials
	if !h.bindJSONOrBadRequest(c, &in) {
		return
	}

	token, err := h.services.GenerateToken(c.Request.Context(), in.Username, in.Password)
	switch {
	case errors.Is(err, service.ErrUserNotFound), errors.Is(err, service.ErrInvalidPassword):
		// one answer for both so usernames cannot be enumerated
		if h.log != nil {
			h.log.Infow("operator_sign_in_rejected", "username", service.NormalizeUsername(in.Username))
		}
		c.JSON(http.StatusUnauthorized, gin.H{"error": errBadCredentials})
		return
	case err != nil:
		h.logAndJSONError(c, http.StatusInternalServerError, errSignIn, "operator_sign_in_failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "token_type": tokenType})
}

// @Summary      Current operator
// @Tags         auth
// @Produce      json
// @Success      200  {object}  map[string]int  "operator_id"
// @Failure      401  {object}  map[string]string
// @Router       /api/v1/me [get]
// @Security     BearerAuth
func (h *Handler) whoAmI(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"operator_id": operatorID(c)})
}
