package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/bassista/plannerd/internal/api/route"
	appctx "github.com/bassista/plannerd/internal/app"
	"github.com/bassista/plannerd/internal/config"
	"github.com/bassista/plannerd/internal/logger"
	"github.com/bassista/plannerd/internal/storage"

	"github.com/enrichman/httpgrace"
)

func main() {
	// A missing .env file is fine; real env vars still apply.
	if err := godotenv.Load(); err == nil {
		logger.WithComponent("main").Debug("loaded environment from .env")
	}

	cfg, err := config.LoadConfig("")
	if err != nil {
		logger.WithComponent("main").Fatalf("configuration error: %v", err)
	}

	logLevel := logger.SetLevel(cfg.Misc.LogLevel)
	logger.WithComponent("main").Debugf("log level set to: %s", logLevel.String())
	logger.WithComponent("main").Infof("App will run on port: %d", cfg.Server.Port)
	logger.WithComponent("main").Infof("State directory: %s", cfg.Data.StateDir)

	sess, err := storage.NewSession(cfg)
	if err != nil {
		logger.WithComponent("main").Fatalf("cannot init storage session: %v", err)
	}

	initRes := sess.Initialize(context.Background())
	switch {
	case initRes.IsNewSession:
		logger.WithComponent("main").Info("no saved session found, starting fresh")
	case initRes.NeedsReacquire:
		logger.WithComponent("main").Warnf("save file at %s needs to be re-selected before file saves resume", initRes.Path)
	default:
		logger.WithComponent("main").Infof("loaded session from %s (%s)", initRes.Path, initRes.Method)
	}

	app, err := appctx.New(cfg, sess)
	if err != nil {
		logger.WithComponent("main").Fatalf("cannot init app: %v", err)
	}
	defer app.Shutdown()

	app.StartWatchers()

	gin.SetMode(cfg.Misc.GinMode)
	gin.DefaultWriter = logger.Logger.Writer()
	gin.DefaultErrorWriter = logger.Logger.Writer()

	r := route.SetupRoutes(app, logger.Logger)
	srv := createGraceHttpServer(app.BaseCtx, "main-server", app.Config.Server, r)

	if err := srv.ListenAndServe(fmt.Sprintf(":%d", cfg.Server.Port)); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithComponent("main").Fatal(err)
	}
}

func createGraceHttpServer(ctx context.Context, name string, serverConfig config.ServerConfig, r *gin.Engine) *httpgrace.Server {
	slogLogger := slog.New(slog.NewTextHandler(logger.Logger.Writer(), nil))

	srv := httpgrace.NewServer(r,
		httpgrace.WithTimeout(serverConfig.ShutDownTimeout),
		httpgrace.WithSignals(syscall.SIGTERM, syscall.SIGINT),
		httpgrace.WithLogger(slogLogger),
		httpgrace.WithBeforeShutdown(func() {
			logger.WithComponent("http").Infof("Shutting down %s server....", name)
		}),
		httpgrace.WithServerOptions(
			httpgrace.WithReadTimeout(serverConfig.ReadTimeout),
			httpgrace.WithWriteTimeout(serverConfig.WriteTimeout),
			httpgrace.WithIdleTimeout(serverConfig.IdleTimeout),
			func(srv *http.Server) {
				srv.BaseContext = func(_ net.Listener) context.Context {
					return ctx
				}
			},
			func(srv *http.Server) {
				srv.ErrorLog = log.New(logger.Logger.Writer(), fmt.Sprintf("[%s] ", name), log.LstdFlags)
			},
		),
	)
	return srv
}
