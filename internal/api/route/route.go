package route

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/bassista/plannerd/internal/api/middleware"
	"github.com/bassista/plannerd/internal/app"
)

func SetupRoutes(appCtx *app.App, log *logrus.Logger) *gin.Engine {
	r := gin.New()
	r.Use(middleware.HoneybadgerMiddleware(log))
	r.Use(gin.Recovery())
	r.Use(middleware.CORSMiddleware(appCtx.Config.Server.CORSAllowedOrigins))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "UP",
		})
	})

	apiGroup := r.Group("/api")

	timeout := time.Duration(5) * time.Second

	NewSessionRouter(timeout, apiGroup, appCtx.Session)

	return r
}
