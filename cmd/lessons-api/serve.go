package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/cobra"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/lessons-api/api/swagger"
	"github.com/noah-isme/lessons-api/internal/handler"
	"github.com/noah-isme/lessons-api/internal/middleware"
	"github.com/noah-isme/lessons-api/internal/repository"
	"github.com/noah-isme/lessons-api/internal/service"
	"github.com/noah-isme/lessons-api/pkg/cache"
	"github.com/noah-isme/lessons-api/pkg/config"
	"github.com/noah-isme/lessons-api/pkg/database"
	"github.com/noah-isme/lessons-api/pkg/jobs"
	"github.com/noah-isme/lessons-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/lessons-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/lessons-api/pkg/middleware/requestid"
	"github.com/noah-isme/lessons-api/pkg/notify"
)

const (
	shutdownTimeout   = 15 * time.Second
	sentMessageMemory = 100
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server and notification workers",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd)
	},
}

func init() {
	serveCmd.Flags().Bool("migrate", false, "Apply pending migrations before serving")
}

func runServe(cmd *cobra.Command) error {
	cfg, logr, err := bootstrap()
	if err != nil {
		return err
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer db.Close()

	if migrate, _ := cmd.Flags().GetBool("migrate"); migrate {
		migrator, err := database.NewMigrator(db, logr)
		if err != nil {
			return err
		}
		if err := migrator.Up(ctx); err != nil {
			return err
		}
	}

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	defer cacheRepo.Close() //nolint:errcheck

	lessonRepo := repository.NewLessonRepository(db)
	userRepo := repository.NewUserRepository(db)
	validate := validator.New()

	var metrics *service.MetricsService
	if cfg.Metrics.Enabled {
		metrics = service.NewMetricsService()
	}

	worker := service.NewNotificationWorker(lessonRepo, userRepo, buildNotifier(cfg, logr), logr.Named("notifications"))
	router := jobs.NewRouter()
	worker.Register(router)

	queueCfg := jobs.QueueConfig{
		Workers:    cfg.Notifications.Workers,
		BufferSize: cfg.Notifications.BufferSize,
		MaxRetries: cfg.Notifications.MaxRetries,
		RetryDelay: cfg.Notifications.RetryDelay,
		Logger:     logr,
	}
	if metrics != nil {
		queueCfg.Observer = metrics
	}
	queue := jobs.NewQueue("notifications", router.Handle, queueCfg)
	// Workers run on their own context so requests drained after a signal can still enqueue.
	queue.Start(context.Background())
	defer queue.Stop()

	detector := service.NewChangeDetector(cacheRepo, lessonRepo, service.ChangeDetectorConfig{
		TTL:       cfg.ChangeRecords.TTL,
		KeyPrefix: cfg.ChangeRecords.KeyPrefix,
	}, metrics, logr)
	dispatcher := service.NewNotificationDispatcher(queue, metrics, logr)
	lessonSvc := service.NewLessonService(lessonRepo, userRepo, detector, dispatcher, validate, logr)
	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
	})

	engine := newEngine(cfg, logr, metrics)
	handler.RegisterRoutes(engine, handler.Routes{
		APIPrefix: cfg.APIPrefix,
		Tokens:    authSvc,
		Auth:      handler.NewAuthHandler(authSvc),
		Lessons:   handler.NewLessonHandler(lessonSvc),
		Metrics: handler.NewMetricsHandler(metrics, map[string]handler.Pinger{
			"postgres": lessonRepo,
			"redis":    cacheRepo,
		}, logr),
		MetricsEnabled: cfg.Metrics.Enabled,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", srv.Addr, err)
	}
	logr.Sugar().Infow("server starting", "addr", ln.Addr().String(), "env", cfg.Env)
	return serveHTTP(ctx, srv, ln, queue, logr)
}

type stopper interface {
	Stop()
}

// serveHTTP serves until ctx ends, drains in-flight requests and only then
// stops the queue.
func serveHTTP(ctx context.Context, srv *http.Server, ln net.Listener, queue stopper, logr *zap.Logger) error {
	defer queue.Stop()

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func newEngine(cfg *config.Config, logr *zap.Logger, metrics *service.MetricsService) *gin.Engine {
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS))
	r.Use(middleware.Metrics(metrics))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}
	return r
}

// buildNotifier always logs deliveries and adds e-mail when SendGrid is configured.
func buildNotifier(cfg *config.Config, logr *zap.Logger) notify.Notifier {
	channels := []notify.Notifier{notify.NewLogNotifier(logr.Named("notify"), sentMessageMemory)}
	n := cfg.Notifications
	if n.EmailEnabled {
		if n.SendgridKey == "" || n.FromEmail == "" {
			logr.Warn("e-mail notifications enabled without SENDGRID_API_KEY or NOTIFY_FROM_EMAIL, using log channel only")
		} else {
			channels = append(channels, notify.NewSendgridNotifier(n.SendgridKey, n.FromName, n.FromEmail, logr.Named("sendgrid")))
		}
	}
	return notify.NewHub(channels...)
}
