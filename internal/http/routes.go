// Package http assembles the engine's route groups onto a gin engine.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mps-suite/mps-engine/internal/http/api/admin"
	"github.com/mps-suite/mps-engine/internal/http/api/common"
	"github.com/mps-suite/mps-engine/internal/http/api/member"
	"github.com/mps-suite/mps-engine/internal/http/api/merchant"
)

// Register wires every route group and the health endpoint.
func Register(r *gin.Engine, deps common.Deps) {
	if r == nil {
		return
	}

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	admin.RegisterAdminRoutes(r, deps)
	merchant.RegisterMerchantRoutes(r, deps)
	member.RegisterMemberRoutes(r, deps)
}
