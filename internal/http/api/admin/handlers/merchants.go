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

// MerchantHandler administers merchant accounts.
type MerchantHandler struct {
	db *gorm.DB
}

// NewMerchantHandler constructs a MerchantHandler.
func NewMerchantHandler(db *gorm.DB) *MerchantHandler {
	return &MerchantHandler{db: db}
}

type createMerchantRequest struct {
	Code     string `json:"code"`
	Name     string `json:"name"`
	Contact  string `json:"contact"`
	Password string `json:"password"`
}

// Create registers a merchant.
func (h *MerchantHandler) Create(c *gin.Context) {
	var body createMerchantRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	code := strings.TrimSpace(body.Code)
	name := strings.TrimSpace(body.Name)
	password := strings.TrimSpace(body.Password)
	if code == "" || name == "" || password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing code, name, or password"})
		return
	}

	ctx := c.Request.Context()
	var exists models.Merchant
	if errCheck := h.db.WithContext(ctx).Where("code = ?", code).First(&exists).Error; errCheck == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "merchant code already exists"})
		return
	} else if !errors.Is(errCheck, gorm.ErrRecordNotFound) {
		common.WriteError(c, errCheck)
		return
	}

	hash, errHash := security.HashPassword(password)
	if errHash != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "hash password failed"})
		return
	}
	merchant := models.Merchant{
		Code:     code,
		Name:     name,
		Contact:  strings.TrimSpace(body.Contact),
		Active:   true,
		Password: hash,
	}
	if errCreate := h.db.WithContext(ctx).Create(&merchant).Error; errCreate != nil {
		common.WriteError(c, errCreate)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": merchant.ID, "code": merchant.Code, "name": merchant.Name})
}

type updateMerchantRequest struct {
	Name    *string `json:"name"`
	Contact *string `json:"contact"`
	Active  *bool   `json:"active"`
}

// Update edits merchant fields; deactivating blocks charges and refunds.
func (h *MerchantHandler) Update(c *gin.Context) {
	merchantID, ok := common.ParseIDParam(c, "id")
	if !ok {
		return
	}
	var body updateMerchantRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	updates := map[string]any{}
	if body.Name != nil && strings.TrimSpace(*body.Name) != "" {
		updates["name"] = strings.TrimSpace(*body.Name)
	}
	if body.Contact != nil {
		updates["contact"] = strings.TrimSpace(*body.Contact)
	}
	if body.Active != nil {
		updates["active"] = *body.Active
	}
	if len(updates) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "nothing to update"})
		return
	}

	result := h.db.WithContext(c.Request.Context()).
		Model(&models.Merchant{}).
		Where("id = ?", merchantID).
		Updates(updates)
	if result.Error != nil {
		common.WriteError(c, result.Error)
		return
	}
	if result.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "merchant not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": true})
}

// List returns a page of merchants.
func (h *MerchantHandler) List(c *gin.Context) {
	page, limit := common.PageParams(c)
	query := h.db.WithContext(c.Request.Context()).Model(&models.Merchant{})

	var total int64
	if errCount := query.Session(&gorm.Session{}).Count(&total).Error; errCount != nil {
		common.WriteError(c, errCount)
		return
	}
	var merchants []models.Merchant
	if errFind := query.Session(&gorm.Session{}).
		Order("id DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&merchants).Error; errFind != nil {
		common.WriteError(c, errFind)
		return
	}
	for i := range merchants {
		merchants[i].Password = ""
	}
	c.JSON(http.StatusOK, gin.H{"total": total, "page": page, "limit": limit, "merchants": merchants})
}
