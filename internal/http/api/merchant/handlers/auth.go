package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/mps-suite/mps-engine/internal/config"
	"github.com/mps-suite/mps-engine/internal/models"
	"github.com/mps-suite/mps-engine/internal/security"
	"gorm.io/gorm"
)

// AuthHandler handles merchant terminal authentication.
type AuthHandler struct {
	db     *gorm.DB
	jwtCfg config.JWTConfig
}

// NewAuthHandler constructs an AuthHandler.
func NewAuthHandler(db *gorm.DB, jwtCfg config.JWTConfig) *AuthHandler {
	return &AuthHandler{db: db, jwtCfg: jwtCfg}
}

type loginRequest struct {
	Code     string `json:"code"`
	Password string `json:"password"`
}

// Login authenticates a merchant by code and issues a session token.
// The merchant code travels in the token name claim so charge requests
// need no extra lookup parameter.
func (h *AuthHandler) Login(c *gin.Context) {
	var body loginRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	code := strings.TrimSpace(body.Code)
	password := strings.TrimSpace(body.Password)
	if code == "" || password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing code or password"})
		return
	}

	var merchant models.Merchant
	if errFind := h.db.WithContext(c.Request.Context()).
		Where("code = ? AND active = ?", code, true).
		First(&merchant).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	if !security.CheckPassword(merchant.Password, password) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	token, errToken := security.GenerateSessionToken(
		h.jwtCfg.Secret, security.RoleMerchant, merchant.ID, merchant.Code, h.jwtCfg.Expiry)
	if errToken != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "sign token failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"token": token,
		"role":  security.RoleMerchant,
		"code":  merchant.Code,
		"name":  merchant.Name,
	})
}
