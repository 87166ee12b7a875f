package cmds

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"cloudrams/internal/config"
	"cloudrams/internal/controllers"
	"cloudrams/internal/logging"
	"cloudrams/internal/routes"
	"cloudrams/internal/services"
	"cloudrams/internal/version"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
)

const (
	secretKeyFile   = ".agent-secret-key"
	shutdownTimeout = 10 * time.Second
)

func NewServeCommand() *cli.Command {
	return &cli.Command{
		Name:   "serve",
		Usage:  "Run the agent's localhost HTTP server",
		Flags:  newConfigFlags(),
		Action: ServeRun,
	}
}

func ServeRun(ctx *cli.Context) error {
	cfg, err := LoadConfig(ctx)
	if err != nil {
		return err
	}
	if err := cfg.EnsureDirs(); err != nil {
		return err
	}
	logging.Setup(cfg.LogDir(), cfg.Debug)

	runCtx, stop := signal.NotifyContext(ctx.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()
	return Serve(runCtx, cfg)
}

// initServices wires every service from cfg and returns the event hub
func initServices(cfg *config.Config) *services.WebSocketHub {
	services.InitAuthService(services.AuthConfig{
		StaticToken:   cfg.Token,
		JWTEnabled:    cfg.JWTAuth,
		SecretKeyFile: filepath.Join(cfg.DataDir, secretKeyFile),
	})
	services.InitProcessService(cfg.TrackedProcesses)
	services.InitArchiveService(cfg.CacheDir(), cfg.MaxZipBytes(), cfg.SafeBaseDirs)
	hub := services.InitWebSocketHub()
	services.InitTransferService(services.TransferConfig{
		DownloadsDir:     cfg.DownloadsDir(),
		MaxDownloadBytes: cfg.MaxDownloadBytes(),
		Timeout:          cfg.TransferTimeout.Duration,
		Retries:          cfg.TransferRetries,
	}, hub)
	services.InitAutorunService(cfg.TaskName, nil)
	controllers.Configure(controllers.Settings{
		Version:        version.Version,
		DataDir:        cfg.DataDir,
		AllowedOrigins: cfg.AllowedOrigins,
	})
	return hub
}

// Serve runs the HTTP server, task collector and event hub until ctx is done
// or one of them fails.
func Serve(ctx context.Context, cfg *config.Config) error {
	hub := initServices(cfg)

	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	router := routes.NewRouter(routes.RouterOptions{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedIPs:     cfg.AllowedIPs,
	})

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	if !services.AuthRequired() {
		logrus.Warn("No agent token configured; any local process can call the agent")
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return hub.Run(ctx)
	})
	g.Go(func() error {
		return services.StartProcessCollector(ctx, cfg.CollectInterval.Duration, hub.PublishTasks)
	})
	g.Go(func() error {
		logrus.Infof("%s %s listening on http://%s", version.Program, version.Version, cfg.Addr())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.WithMessagef(err, "listen on %s", cfg.Addr())
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logrus.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
