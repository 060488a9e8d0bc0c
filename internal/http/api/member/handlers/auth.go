package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/mps-suite/mps-engine/internal/config"
	"github.com/mps-suite/mps-engine/internal/models"
	"github.com/mps-suite/mps-engine/internal/security"
	"github.com/mps-suite/mps-engine/internal/util"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// AuthHandler handles member registration and authentication.
type AuthHandler struct {
	db     *gorm.DB
	jwtCfg config.JWTConfig
}

// NewAuthHandler constructs an AuthHandler.
func NewAuthHandler(db *gorm.DB, jwtCfg config.JWTConfig) *AuthHandler {
	return &AuthHandler{db: db, jwtCfg: jwtCfg}
}

type registerRequest struct {
	Name     string `json:"name"`
	Phone    string `json:"phone"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Register creates a member account.
func (h *AuthHandler) Register(c *gin.Context) {
	var body registerRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	name := strings.TrimSpace(body.Name)
	phone := strings.TrimSpace(body.Phone)
	password := strings.TrimSpace(body.Password)
	if name == "" || phone == "" || password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing name, phone, or password"})
		return
	}

	ctx := c.Request.Context()
	var exists models.Member
	if errCheck := h.db.WithContext(ctx).Where("phone = ?", phone).First(&exists).Error; errCheck == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "phone already registered"})
		return
	} else if !errors.Is(errCheck, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}

	hash, errHash := security.HashPassword(password)
	if errHash != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "hash password failed"})
		return
	}
	member := models.Member{
		Name:     name,
		Phone:    phone,
		Email:    strings.TrimSpace(body.Email),
		Password: hash,
		Status:   models.MemberStatusActive,
	}
	if errCreate := h.db.WithContext(ctx).Create(&member).Error; errCreate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create member failed"})
		return
	}
	log.Infof("member %d registered (phone %s)", member.ID, util.MaskPhone(member.Phone))
	c.JSON(http.StatusCreated, gin.H{"id": member.ID, "name": member.Name, "phone": member.Phone})
}

type loginRequest struct {
	Phone    string `json:"phone"`
	Password string `json:"password"`
}

// Login authenticates a member by phone and issues a session token.
func (h *AuthHandler) Login(c *gin.Context) {
	var body loginRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	phone := strings.TrimSpace(body.Phone)
	password := strings.TrimSpace(body.Password)
	if phone == "" || password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing phone or password"})
		return
	}

	var member models.Member
	if errFind := h.db.WithContext(c.Request.Context()).
		Where("phone = ? AND status = ?", phone, models.MemberStatusActive).
		First(&member).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	if member.Password == "" || !security.CheckPassword(member.Password, password) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	token, errToken := security.GenerateSessionToken(
		h.jwtCfg.Secret, security.RoleMember, member.ID, member.Name, h.jwtCfg.Expiry)
	if errToken != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "sign token failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"token": token,
		"role":  security.RoleMember,
		"name":  member.Name,
	})
}
