// Package common holds the helpers shared by the admin, merchant, and
// member route groups: session authentication, business error
// rendering, and request parsing.
package common

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/mps-suite/mps-engine/internal/binding"
	"github.com/mps-suite/mps-engine/internal/bizerr"
	"github.com/mps-suite/mps-engine/internal/config"
	"github.com/mps-suite/mps-engine/internal/ledger"
	"github.com/mps-suite/mps-engine/internal/qrtoken"
	"github.com/mps-suite/mps-engine/internal/security"
	"github.com/mps-suite/mps-engine/internal/settlement"
	"github.com/mps-suite/mps-engine/internal/txengine"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Deps bundles the services the route groups wire into their handlers.
type Deps struct {
	DB          *gorm.DB
	JWT         config.JWTConfig
	QR          config.QRConfig
	Engine      *txengine.Engine
	Ledger      *ledger.Ledger
	Tokens      *qrtoken.Manager
	Bindings    *binding.Manager
	Settlements *settlement.Service
}

// claimsKey is the gin context key for session claims.
const claimsKey = "sessionClaims"

// Auth validates the bearer session token and restricts the route to
// the given roles.
func Auth(secret string, roles ...security.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			return
		}
		token := strings.TrimPrefix(authHeader, "Bearer ")
		if token == authHeader {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization format"})
			return
		}
		token = strings.TrimSpace(token)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "empty token"})
			return
		}

		claims, errParse := security.ParseSessionToken(secret, token)
		if errParse != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		allowed := false
		for _, role := range roles {
			if claims.Role == role {
				allowed = true
				break
			}
		}
		if !allowed {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "permission denied",
				"code":  string(bizerr.CodePermissionDenied),
			})
			return
		}
		c.Set(claimsKey, claims)
		c.Next()
	}
}

// ClaimsFrom returns the session claims stored by Auth.
func ClaimsFrom(c *gin.Context) *security.SessionClaims {
	val, exists := c.Get(claimsKey)
	if !exists {
		return nil
	}
	claims, ok := val.(*security.SessionClaims)
	if !ok {
		return nil
	}
	return claims
}

// statusOf maps a business error code to its HTTP status class.
func statusOf(code bizerr.Code) int {
	switch code {
	case bizerr.CodeInvalidPrice,
		bizerr.CodeInvalidRefundAmount,
		bizerr.CodeInvalidRechargeAmount,
		bizerr.CodeInvalidQR:
		return http.StatusBadRequest
	case bizerr.CodeTxNotFound,
		bizerr.CodeOriginalTxNotFound,
		bizerr.CodeCardNotFoundOrInactive,
		bizerr.CodeMerchantNotFoundOrInactive:
		return http.StatusNotFound
	case bizerr.CodeNotMerchantUser,
		bizerr.CodePermissionDenied,
		bizerr.CodeInvalidBindingPassword:
		return http.StatusForbidden
	case bizerr.CodeQRExpiredOrInvalid:
		return http.StatusUnprocessableEntity
	default:
		// Business-rule conflicts.
		return http.StatusConflict
	}
}

// WriteError renders an error response. Business errors carry their
// stable code and the mapped status; anything else is an opaque 500.
func WriteError(c *gin.Context, err error) {
	if code, isBiz := bizerr.CodeOf(err); isBiz {
		c.JSON(statusOf(code), gin.H{
			"error": strings.ToLower(strings.ReplaceAll(string(code), "_", " ")),
			"code":  string(code),
		})
		return
	}
	log.Errorf("%s %s failed: %v", c.Request.Method, c.FullPath(), err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}

// ParseIDParam parses a numeric path parameter, answering the request
// with a 400 on failure.
func ParseIDParam(c *gin.Context, name string) (uint64, bool) {
	id, errParse := strconv.ParseUint(strings.TrimSpace(c.Param(name)), 10, 64)
	if errParse != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}

// PageParams parses page/limit query parameters with engine defaults.
func PageParams(c *gin.Context) (page, limit int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", "20"))
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	if limit > 200 {
		limit = 200
	}
	return page, limit
}
