package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"kuji/auth"
)

// SellerIDKey is the gin context key holding the authenticated seller id
const SellerIDKey = "seller_id"

// JWTAuthMiddleware accepts a Bearer header, or an access_token query
// parameter for websocket upgrades that cannot set headers.
func JWTAuthMiddleware(issuer *auth.Issuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := ""
		if header := c.GetHeader("Authorization"); header != "" {
			parts := strings.SplitN(header, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header format must be Bearer {token}"})
				return
			}
			token = parts[1]
		} else {
			token = c.Query("access_token")
		}
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header is required"})
			return
		}

		sellerID, err := issuer.ParseToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			return
		}

		c.Set(SellerIDKey, sellerID)
		c.Next()
	}
}

func sellerID(c *gin.Context) uuid.UUID {
	id, _ := c.Get(SellerIDKey)
	sid, _ := id.(uuid.UUID)
	return sid
}
