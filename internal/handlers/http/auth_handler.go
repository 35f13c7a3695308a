package http

import (
	"net/http"
	"strings"
	"time"

	"duosync/internal/core/domain"
	"duosync/internal/core/services"
	"duosync/pkg/errors"
	"duosync/pkg/validation"

	"github.com/gin-gonic/gin"
)

// AuthHandler issues the bearer tokens UI clients present to the rest of the
// control API.
type AuthHandler struct {
	authService services.AuthService
	tokenTTL    time.Duration
}

func NewAuthHandler(authService services.AuthService, tokenTTL time.Duration) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		tokenTTL:    tokenTTL,
	}
}

func (h *AuthHandler) SetupRoutes(router *gin.Engine) {
	api := router.Group("/api/v1/auth")
	{
		api.POST("/token", h.IssueToken)
	}
}

type TokenRequest struct {
	Account string `json:"account" binding:"required,max=128"`
}

func (h *AuthHandler) IssueToken(c *gin.Context) {
	var req TokenRequest
	if err := c.BindJSON(&req); err != nil {
		c.Error(errors.NewInvalidInputError("invalid request format"))
		return
	}

	req.Account = strings.TrimSpace(req.Account)
	if err := validation.ValidateAccountID(req.Account); err != nil {
		c.Error(errors.NewInvalidInputError(err.Error()))
		return
	}

	token, err := h.authService.GenerateToken(domain.AccountID(req.Account))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"account":      req.Account,
		"access_token": token,
		"expires_in":   int(h.tokenTTL / time.Second),
	})
}
