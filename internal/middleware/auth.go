package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/quocanhngo/managex/internal/model"
	"github.com/quocanhngo/managex/internal/service"
	"github.com/quocanhngo/managex/pkg/auth"
	"github.com/rs/zerolog"
)

// Context keys set by the auth middlewares
const (
	KeyAdminID  = "admin_id"
	KeyEmail    = "email"
	KeyToken    = "token"
	KeyDeviceID = "device_id"
)

// DeviceTokenHeader carries the device credential
const DeviceTokenHeader = "X-Device-Token"

// DeviceAuthenticator verifies a device credential
type DeviceAuthenticator interface {
	Authenticate(ctx context.Context, deviceID, token string) (*model.Device, error)
}

// AdminAuth validates the admin bearer JWT and injects its claims into context
func AdminAuth(jwtManager *auth.JWTManager, revoker auth.Revoker, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, model.ErrorResponse{Error: "Authorization header required"})
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, model.ErrorResponse{Error: "Invalid authorization format. Use: Bearer <token>"})
			return
		}

		claims, ok := checkAdminToken(c, jwtManager, revoker, log, parts[1])
		if !ok {
			return
		}

		c.Set(KeyAdminID, claims.AdminID)
		c.Set(KeyEmail, claims.Email)
		c.Set(KeyToken, parts[1])
		c.Next()
	}
}

// AdminAuthQuery is AdminAuth for websocket upgrades, where browsers cannot
// set headers: the token comes from ?token=
func AdminAuthQuery(jwtManager *auth.JWTManager, revoker auth.Revoker, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Query("token")
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, model.ErrorResponse{Error: "token query parameter required"})
			return
		}

		claims, ok := checkAdminToken(c, jwtManager, revoker, log, token)
		if !ok {
			return
		}

		c.Set(KeyAdminID, claims.AdminID)
		c.Set(KeyEmail, claims.Email)
		c.Next()
	}
}

func checkAdminToken(c *gin.Context, jwtManager *auth.JWTManager, revoker auth.Revoker, log zerolog.Logger, token string) (*auth.Claims, bool) {
	revoked, err := revoker.IsRevoked(c.Request.Context(), token)
	if err != nil {
		// fail closed
		log.Error().Err(err).Msg("revocation check failed")
		c.AbortWithStatusJSON(http.StatusInternalServerError, model.ErrorResponse{Error: "Auth server error"})
		return nil, false
	}
	if revoked {
		c.AbortWithStatusJSON(http.StatusUnauthorized, model.ErrorResponse{Error: "Token has been revoked"})
		return nil, false
	}

	claims, err := jwtManager.ValidateToken(token)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, model.ErrorResponse{Error: "Invalid or expired token"})
		return nil, false
	}
	return claims, true
}

// DeviceAuth checks X-Device-Token against the device named by deviceId in the
// JSON body (or the query string for websocket upgrades). The body stays readable
// for handlers through ShouldBindBodyWith.
func DeviceAuth(devices DeviceAuthenticator, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.GetHeader(DeviceTokenHeader)
		if token == "" {
			// websocket clients
			token = c.Query("token")
		}

		deviceID := c.Query("deviceId")
		if c.Request.Body != nil && c.Request.ContentLength != 0 {
			var req model.DeviceAuthRequest
			if err := c.ShouldBindBodyWith(&req, binding.JSON); err == nil && req.DeviceID != "" {
				deviceID = req.DeviceID
			}
		}

		if token == "" || deviceID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, model.ErrorResponse{Error: "Missing device credentials"})
			return
		}

		if _, err := devices.Authenticate(c.Request.Context(), deviceID, token); err != nil {
			if errors.Is(err, service.ErrUnauthorized) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, model.ErrorResponse{Error: "Invalid device token"})
				return
			}
			log.Error().Err(err).Str("device_id", deviceID).Msg("device authentication failed")
			c.AbortWithStatusJSON(http.StatusInternalServerError, model.ErrorResponse{Error: "Auth server error"})
			return
		}

		c.Set(KeyDeviceID, deviceID)
		c.Next()
	}
}
