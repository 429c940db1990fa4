package route

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bassista/plannerd/internal/api/controller"
	"github.com/bassista/plannerd/internal/api/middleware"
	"github.com/bassista/plannerd/internal/storage"
)

func NewSessionRouter(timeout time.Duration, group *gin.RouterGroup, s *storage.Session) {
	group.Use(middleware.RequestTimeout(timeout))

	sc := controller.NewSessionController(s)

	group.GET("session", sc.GetSession)
	group.PUT("session", sc.PutSession)
	group.POST("session/save", sc.SaveNow)
	group.POST("session/location", sc.SetLocation)
	group.DELETE("session/location", sc.ForgetLocation)
	group.POST("session/import", sc.Import)
	group.GET("session/export", sc.Export)
	group.GET("session/status", sc.Status)
}
