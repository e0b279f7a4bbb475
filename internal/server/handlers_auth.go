package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type authSetupRequest struct {
	AccountName string `json:"account_name"`
}

func (s *Server) handleAuthSetup(c *gin.Context) {
	var req authSetupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if req.AccountName == "" {
		req.AccountName = "admin"
	}

	secret, url, err := s.AuthService.GenerateSecret(req.AccountName)
	if err != nil {
		s.Logger.Error("Failed to generate TOTP secret", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate secret"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"secret": secret, "otpauth_url": url})
}

type authLoginRequest struct {
	OwnerID string `json:"owner_id"`
	Code    string `json:"code"`
}

func (s *Server) handleAuthLogin(c *gin.Context) {
	var req authLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	token, err := s.AuthService.Login(req.OwnerID, req.Code)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Login failed"})
		return
	}

	c.SetCookie("auth_token", token, 0, "/", "", false, true)
	c.JSON(http.StatusOK, gin.H{"token": token})
}
