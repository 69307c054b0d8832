package daemon

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	slogGin "github.com/samber/slog-gin"
	"github.com/ulule/limiter/v3"
	mgin "github.com/ulule/limiter/v3/drivers/middleware/gin"
	"github.com/ulule/limiter/v3/drivers/store/memory"

	"github.com/vaultlink/vaultlink/internal/daemon/handlers"
	"github.com/vaultlink/vaultlink/internal/daemon/middleware"
	"github.com/vaultlink/vaultlink/internal/sync"
	"github.com/vaultlink/vaultlink/internal/version"
)

type RouteConfig struct {
	Auth middleware.TokenAuthConfig
}

func SetupRoutes(engine *sync.Engine, routeConfig *RouteConfig) http.Handler {
	r := gin.New()
	r.HandleMethodNotAllowed = true

	rateLimitStore := memory.NewStore()
	rateLimiter := limiter.New(rateLimitStore, limiter.Rate{
		Period: 1 * time.Second,
		Limit:  10,
	})

	statusH := handlers.NewStatusHandler(engine)
	syncH := handlers.NewSyncHandler(engine)
	settingsH := handlers.NewSettingsHandler(engine)

	httpLogger := slog.Default().WithGroup("http")
	r.Use(slogGin.NewWithConfig(httpLogger, slogGin.Config{
		DefaultLevel:     slog.LevelDebug,
		ClientErrorLevel: slog.LevelWarn,
		ServerErrorLevel: slog.LevelError,
	}))
	r.Use(gin.Recovery())
	r.Use(middleware.CORS())
	r.Use(middleware.Gzip())
	r.Use(mgin.NewMiddleware(rateLimiter))

	r.GET("/", IndexHandler)

	v1 := r.Group("/v1")
	v1.Use(middleware.TokenAuth(routeConfig.Auth))
	{
		v1.GET("/status", statusH.Status)

		v1Sync := v1.Group("/sync")
		{
			v1Sync.POST("/now", syncH.SyncNow)
			v1Sync.POST("/push", syncH.Push)
			v1Sync.POST("/file", syncH.SyncFile)
			v1Sync.GET("/status", syncH.Status)
		}

		v1.GET("/history", syncH.History)

		v1.GET("/settings", settingsH.Get)
		v1.PUT("/settings", settingsH.Update)
	}

	r.NoRoute(func(c *gin.Context) {
		c.PureJSON(http.StatusNotFound, &handlers.ControlPlaneError{
			ErrorCode: handlers.CodeNotFound,
			Error:     "not found",
		})
	})

	r.NoMethod(func(c *gin.Context) {
		c.PureJSON(http.StatusMethodNotAllowed, &handlers.ControlPlaneError{
			ErrorCode: handlers.CodeInvalidRequest,
			Error:     "method not allowed",
		})
	})

	return r.Handler()
}

func init() {
	gin.SetMode(gin.ReleaseMode)
}

// IndexHandler serves the unauthenticated daemon banner.
func IndexHandler(c *gin.Context) {
	c.PureJSON(http.StatusOK, gin.H{
		"name":    version.AppName,
		"version": version.Version,
	})
}
