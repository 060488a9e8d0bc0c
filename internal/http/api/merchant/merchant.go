// Package merchant registers the merchant terminal route group.
package merchant

import (
	"github.com/gin-gonic/gin"
	"github.com/mps-suite/mps-engine/internal/http/api/common"
	"github.com/mps-suite/mps-engine/internal/http/api/merchant/handlers"
	"github.com/mps-suite/mps-engine/internal/security"
)

// RegisterMerchantRoutes registers the /v0/merchant surface.
func RegisterMerchantRoutes(r *gin.Engine, deps common.Deps) {
	if r == nil || deps.DB == nil {
		return
	}

	group := r.Group("/v0/merchant")

	authHandler := handlers.NewAuthHandler(deps.DB, deps.JWT)
	group.POST("/login", authHandler.Login)

	authed := group.Group("")
	authed.Use(common.Auth(deps.JWT.Secret, security.RoleMerchant))

	qrHandler := handlers.NewQRHandler(deps.Tokens)
	authed.POST("/qr/validate", qrHandler.Validate)

	chargeHandler := handlers.NewChargeHandler(deps.Engine)
	authed.POST("/charge", chargeHandler.Charge)
	authed.POST("/refund", chargeHandler.Refund)
	authed.GET("/transactions", chargeHandler.Transactions)
	authed.GET("/transactions/:tx_no", chargeHandler.Transaction)
	authed.GET("/stats/today", chargeHandler.TodayStats)

	settlementHandler := handlers.NewSettlementHandler(deps.Settlements)
	authed.GET("/settlements", settlementHandler.List)
	authed.GET("/settlements/summary", settlementHandler.Summary)
}
