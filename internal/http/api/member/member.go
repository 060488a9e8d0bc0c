// Package member registers the member-facing route group.
package member

import (
	"github.com/gin-gonic/gin"
	"github.com/mps-suite/mps-engine/internal/http/api/common"
	"github.com/mps-suite/mps-engine/internal/http/api/member/handlers"
	"github.com/mps-suite/mps-engine/internal/security"
)

// RegisterMemberRoutes registers the /v0/member surface.
func RegisterMemberRoutes(r *gin.Engine, deps common.Deps) {
	if r == nil || deps.DB == nil {
		return
	}

	group := r.Group("/v0/member")

	authHandler := handlers.NewAuthHandler(deps.DB, deps.JWT)
	group.POST("/register", authHandler.Register)
	group.POST("/login", authHandler.Login)

	authed := group.Group("")
	authed.Use(common.Auth(deps.JWT.Secret, security.RoleMember))

	cardHandler := handlers.NewCardHandler(deps.Bindings, deps.Engine)
	authed.GET("/cards", cardHandler.List)
	authed.GET("/cards/:id", cardHandler.Get)
	authed.GET("/cards/:id/transactions", cardHandler.Transactions)
	authed.POST("/cards/:id/recharge", cardHandler.Recharge)

	qrHandler := handlers.NewQRHandler(deps.Tokens, deps.Bindings, deps.QR.DefaultTTL)
	authed.POST("/cards/:id/qr", qrHandler.Rotate)
	authed.DELETE("/cards/:id/qr", qrHandler.Revoke)

	bindingHandler := handlers.NewBindingHandler(deps.Bindings)
	authed.POST("/cards/:id/bindings", bindingHandler.Bind)
	authed.DELETE("/cards/:id/bindings", bindingHandler.Unbind)
	authed.PUT("/cards/:id/binding-password", bindingHandler.SetBindingPassword)
	authed.POST("/external-identity", bindingHandler.LinkExternalIdentity)
}
