package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mps-suite/mps-engine/internal/http/api/common"
	"github.com/mps-suite/mps-engine/internal/policy"
	"gorm.io/gorm"
)

// PolicyHandler exposes the runtime-tunable engine policies.
type PolicyHandler struct {
	db *gorm.DB
}

// NewPolicyHandler constructs a PolicyHandler.
func NewPolicyHandler(db *gorm.DB) *PolicyHandler {
	return &PolicyHandler{db: db}
}

// Get returns the current policy snapshot.
func (h *PolicyHandler) Get(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		policy.KeyQRSingleUse:          policy.QRSingleUse(),
		policy.KeyRechargeAwardsPoints: policy.RechargeAwardsPoints(),
		"updated_at":                   policy.UpdatedAt(),
	})
}

type updatePolicyRequest struct {
	Key   string `json:"key"`
	Value bool   `json:"value"`
}

// Update persists a policy flag and refreshes the in-memory snapshot.
func (h *PolicyHandler) Update(c *gin.Context) {
	var body updatePolicyRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	switch body.Key {
	case policy.KeyQRSingleUse, policy.KeyRechargeAwardsPoints:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown policy key"})
		return
	}

	if errSet := policy.Set(c.Request.Context(), h.db, body.Key, body.Value); errSet != nil {
		common.WriteError(c, errSet)
		return
	}
	c.JSON(http.StatusOK, gin.H{body.Key: body.Value})
}
