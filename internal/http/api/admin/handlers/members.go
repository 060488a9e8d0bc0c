package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/mps-suite/mps-engine/internal/http/api/common"
	"github.com/mps-suite/mps-engine/internal/models"
	"github.com/mps-suite/mps-engine/internal/security"
	"gorm.io/gorm"
)

// MemberHandler administers member accounts.
type MemberHandler struct {
	db *gorm.DB
}

// NewMemberHandler constructs a MemberHandler.
func NewMemberHandler(db *gorm.DB) *MemberHandler {
	return &MemberHandler{db: db}
}

type createMemberRequest struct {
	Name     string `json:"name"`
	Phone    string `json:"phone"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Create registers a member on their behalf.
func (h *MemberHandler) Create(c *gin.Context) {
	var body createMemberRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	name := strings.TrimSpace(body.Name)
	phone := strings.TrimSpace(body.Phone)
	if name == "" || phone == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing name or phone"})
		return
	}

	ctx := c.Request.Context()
	var exists models.Member
	if errCheck := h.db.WithContext(ctx).Where("phone = ?", phone).First(&exists).Error; errCheck == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "phone already registered"})
		return
	} else if !errors.Is(errCheck, gorm.ErrRecordNotFound) {
		common.WriteError(c, errCheck)
		return
	}

	member := models.Member{
		Name:   name,
		Phone:  phone,
		Email:  strings.TrimSpace(body.Email),
		Status: models.MemberStatusActive,
	}
	if password := strings.TrimSpace(body.Password); password != "" {
		hash, errHash := security.HashPassword(password)
		if errHash != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "hash password failed"})
			return
		}
		member.Password = hash
	}
	if errCreate := h.db.WithContext(ctx).Create(&member).Error; errCreate != nil {
		common.WriteError(c, errCreate)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": member.ID, "name": member.Name, "phone": member.Phone})
}

// Get returns one member.
func (h *MemberHandler) Get(c *gin.Context) {
	memberID, ok := common.ParseIDParam(c, "id")
	if !ok {
		return
	}
	var member models.Member
	if errFind := h.db.WithContext(c.Request.Context()).
		Where("id = ?", memberID).
		First(&member).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "member not found"})
			return
		}
		common.WriteError(c, errFind)
		return
	}
	member.Password = ""
	c.JSON(http.StatusOK, member)
}

// List returns a page of members.
func (h *MemberHandler) List(c *gin.Context) {
	page, limit := common.PageParams(c)
	query := h.db.WithContext(c.Request.Context()).Model(&models.Member{})
	if v := strings.TrimSpace(c.Query("status")); v != "" {
		query = query.Where("status = ?", v)
	}

	var total int64
	if errCount := query.Session(&gorm.Session{}).Count(&total).Error; errCount != nil {
		common.WriteError(c, errCount)
		return
	}
	var members []models.Member
	if errFind := query.Session(&gorm.Session{}).
		Order("id DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&members).Error; errFind != nil {
		common.WriteError(c, errFind)
		return
	}
	for i := range members {
		members[i].Password = ""
	}
	c.JSON(http.StatusOK, gin.H{"total": total, "page": page, "limit": limit, "members": members})
}
