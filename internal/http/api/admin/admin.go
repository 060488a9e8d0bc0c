// Package admin registers the super admin route group.
package admin

import (
	"github.com/gin-gonic/gin"
	"github.com/mps-suite/mps-engine/internal/http/api/admin/handlers"
	"github.com/mps-suite/mps-engine/internal/http/api/common"
	"github.com/mps-suite/mps-engine/internal/security"
)

// RegisterAdminRoutes registers the /v0/admin surface.
func RegisterAdminRoutes(r *gin.Engine, deps common.Deps) {
	if r == nil || deps.DB == nil {
		return
	}

	group := r.Group("/v0/admin")

	authHandler := handlers.NewAuthHandler(deps.DB, deps.JWT)
	group.POST("/login", authHandler.Login)

	authed := group.Group("")
	authed.Use(common.Auth(deps.JWT.Secret, security.RoleSuperAdmin))

	cardHandler := handlers.NewCardHandler(deps.DB, deps.Ledger, deps.Engine, deps.Bindings)
	authed.POST("/cards", cardHandler.Create)
	authed.GET("/cards", cardHandler.List)
	authed.GET("/cards/:id", cardHandler.Get)
	authed.POST("/cards/:id/freeze", cardHandler.Freeze)
	authed.POST("/cards/:id/unfreeze", cardHandler.Unfreeze)
	authed.POST("/cards/:id/recharge", cardHandler.Recharge)
	authed.POST("/cards/:id/points", cardHandler.AdjustPoints)

	qrHandler := handlers.NewQRHandler(deps.Tokens, deps.QR.SweepTTL)
	authed.POST("/qr/batch-rotate", qrHandler.BatchRotate)

	merchantHandler := handlers.NewMerchantHandler(deps.DB)
	authed.POST("/merchants", merchantHandler.Create)
	authed.GET("/merchants", merchantHandler.List)
	authed.PUT("/merchants/:id", merchantHandler.Update)

	memberHandler := handlers.NewMemberHandler(deps.DB)
	authed.POST("/members", memberHandler.Create)
	authed.GET("/members", memberHandler.List)
	authed.GET("/members/:id", memberHandler.Get)

	txHandler := handlers.NewTransactionHandler(deps.Engine)
	authed.GET("/transactions", txHandler.List)
	authed.GET("/transactions/:tx_no", txHandler.Get)
	authed.POST("/refunds", txHandler.Refund)

	settlementHandler := handlers.NewSettlementHandler(deps.Settlements)
	authed.POST("/settlements", settlementHandler.Create)
	authed.POST("/settlements/:id/settle", settlementHandler.MarkSettled)
	authed.GET("/merchants/:id/settlements", settlementHandler.List)

	policyHandler := handlers.NewPolicyHandler(deps.DB)
	authed.GET("/policies", policyHandler.Get)
	authed.PUT("/policies", policyHandler.Update)
}
