package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/quocanhngo/managex/internal/middleware"
	"github.com/rs/zerolog"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// Routes bundles the handlers and auth middlewares mounted by NewRouter
type Routes struct {
	Auth   *AuthHandler
	Device *DeviceHandler
	Usage  *UsageHandler
	WS     *WSHandler

	AdminAuth   gin.HandlerFunc // Authorization: Bearer <jwt>
	AdminWSAuth gin.HandlerFunc // ?token=<jwt>
	DeviceAuth  gin.HandlerFunc // X-Device-Token + deviceId
}

// NewRouter builds the gin engine with every API route
func NewRouter(routes Routes, corsOrigins []string, log zerolog.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(log))
	router.Use(middleware.CORSMiddleware(corsOrigins))

	// Serve swagger.json at /docs/swagger.json to avoid conflict with /swagger/* wildcard
	router.StaticFile("/docs/swagger.json", "./docs/swagger.json")
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/docs/swagger.json")))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"service": "managex-api",
			"time":    time.Now().UTC().Format(time.RFC3339),
		})
	})

	// ==================== API Routes ====================
	api := router.Group("/api/v1")
	{
		admin := api.Group("/admin")
		{
			admin.POST("/login", routes.Auth.Login)
			admin.POST("/logout", routes.AdminAuth, routes.Auth.Logout)
			admin.GET("/me", routes.AdminAuth, routes.Auth.Me)
		}

		device := api.Group("/device")
		{
			// Agent
			device.POST("/register", routes.Device.Register)
			device.POST("/heartbeat", routes.DeviceAuth, routes.Device.Heartbeat)
			device.POST("/location", routes.DeviceAuth, routes.Device.Location)

			// Admin
			device.GET("/list", routes.AdminAuth, routes.Device.List)
			device.GET("/:deviceId/details", routes.AdminAuth, routes.Device.Detail)
			device.GET("/:deviceId/software-today", routes.AdminAuth, routes.Device.SoftwareToday)
			device.POST("/:deviceId/command", routes.AdminAuth, routes.Device.Command)
		}

		api.POST("/usage/process-snapshot", routes.DeviceAuth, routes.Usage.ProcessSnapshot)
	}

	// WebSocket endpoints (auth via query parameters)
	router.GET("/ws/admin", routes.AdminWSAuth, routes.WS.Admin)
	router.GET("/ws/device", routes.DeviceAuth, routes.WS.Device)

	return router
}
