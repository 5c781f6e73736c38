package api

import (
	"github.com/gin-gonic/gin"

	"tvbridge/service"
)

func SetupRoutes(router *gin.Engine, ds *service.DeviceService, registry *service.SessionRegistry, wsHub *WebSocketHub) {
	router.Use(CORSMiddleware())

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	{
		devices := api.Group("/devices")
		{
			devices.GET("/scan", func(c *gin.Context) {
				ScanDevices(c, ds)
			})
			devices.GET("/current", func(c *gin.Context) {
				GetCurrentDevice(c, registry)
			})
			devices.POST("/connect", func(c *gin.Context) {
				ConnectDevice(c, ds)
			})
			devices.POST("/disconnect", func(c *gin.Context) {
				DisconnectDevice(c, ds)
			})
			devices.POST("/install", func(c *gin.Context) {
				InstallAPK(c, ds)
			})
			devices.GET("/screenshot", func(c *gin.Context) {
				Screenshot(c, ds)
			})
			devices.POST("/shell", func(c *gin.Context) {
				ShellCommand(c, ds)
			})
			devices.GET("/history", func(c *gin.Context) {
				DeviceHistory(c, ds)
			})
		}
	}

	// WebSocket route
	router.GET("/ws", func(c *gin.Context) {
		HandleWebSocket(wsHub, c)
	})
}

func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
