package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"qrattend/internal/api"
	"qrattend/internal/attendance"
	"qrattend/internal/auth"
	"qrattend/internal/cloudinary"
	"qrattend/internal/config"
	"qrattend/internal/dispatch"
	"qrattend/internal/mailer"
	"qrattend/internal/makeup"
	"qrattend/internal/metrics"
	"qrattend/internal/queue"
	"qrattend/internal/salary"
	"qrattend/internal/store"
	"qrattend/internal/subject"
)

func main() {
	cfg := config.Load()

	// Set Gin mode based on environment
	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

// openDB connects and applies the schema. Serving without a schema would
// fail every request, so any error here stops startup.
func openDB(cfg config.App) (*store.DB, error) {
	db, err := store.NewDB(cfg.DBDriver, cfg.DatabaseURL)
	if err != nil {
		if db != nil {
			_ = db.Close()
		}
		return nil, fmt.Errorf("database not ready: %w", err)
	}
	return db, nil
}

func runHTTP(cfg config.App) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	codec, err := cfg.TokenCodec()
	if err != nil {
		return err
	}
	loc := cfg.Location()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	subRepo := subject.NewRepository(db.Client)
	subjects := subject.NewService(subRepo)
	att := attendance.NewService(
		attendance.NewRepository(db.Client),
		subRepo,
		codec,
		attendance.NewResolver(subRepo, codec, cfg.HashLookbackDays),
		attendance.Options{Location: loc},
	)

	if cfg.AdminEmail != "" && cfg.AdminPassword != "" {
		if _, err := subjects.EnsureAdmin(ctx, cfg.AdminName, cfg.AdminEmail, cfg.AdminPassword); err != nil {
			log.Printf("warning: admin bootstrap failed: %v", err)
		}
	}

	checks := map[string]api.HealthChecker{"db": db}
	var redisClient *store.Redis
	if cfg.RedisAddr != "" {
		redisClient = store.NewRedis(cfg.RedisAddr)
		defer redisClient.Close()
		checks["redis"] = redisClient
	}

	sender, err := mailer.NewSender(context.Background(), mailSettings(cfg))
	if err != nil {
		return err
	}
	direct := &mailer.QRDelivery{Codec: codec, Sender: sender, From: cfg.MailFrom}

	var deliverer dispatch.Deliverer = direct
	if cfg.DeliveryMode == "queue" {
		var q queue.Queue
		if cfg.QueueBackend == "memory" {
			mem := queue.NewInMemory(256)
			q = mem
			// no separate worker process can see an in-memory queue
			msgs, err := mem.Consume(ctx)
			if err != nil {
				return err
			}
			w := &dispatch.Worker{Subjects: subRepo, Deliver: direct, Timeout: cfg.MailTimeout, Observer: m}
			go w.Run(ctx, msgs)
		} else {
			if redisClient == nil {
				return errors.New("QUEUE_BACKEND=redis requires REDIS_ADDR")
			}
			q = queue.NewRedisQueue(redisClient.Client, queue.DefaultKey)
		}
		deliverer = dispatch.QueueDeliverer{Queue: q}
		log.Printf("qr delivery via %s queue", cfg.QueueBackend)
	}

	var sched *dispatch.Scheduler
	if cfg.DispatchEnabled {
		opts := dispatch.SchedulerOptions{
			Hour:     cfg.DispatchHour,
			Minute:   cfg.DispatchMinute,
			Location: loc,
			LockTTL:  cfg.DispatchLockTTL,
			Observer: m,
		}
		if redisClient != nil {
			opts.Locker = redisClient
		}
		sched, err = dispatch.NewScheduler(dispatch.NewBroadcaster(subRepo, deliverer, cfg.MailTimeout, m), opts)
		if err != nil {
			return err
		}
		sched.Start(ctx)
		defer sched.Stop()
	}

	// Cloudinary client (nil when not configured)
	var images api.ImageHost
	if cfg.CloudinaryCloudName != "" && cfg.CloudinaryAPIKey != "" && cfg.CloudinaryAPISecret != "" {
		images = cloudinary.New(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret, cfg.CloudinaryFolder)
		log.Println("Cloudinary configured:", cfg.CloudinaryCloudName)
	}

	srv := api.New(api.Options{
		Attendance:      att,
		Subjects:        subjects,
		Issuer:          auth.NewIssuer(cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL, cfg.RefreshTTL),
		Refresh:         auth.NewRefreshStore(db.Client),
		Codec:           codec,
		Delivery:        deliverer,
		Scheduler:       sched,
		Makeup:          makeup.NewRepository(db.Client),
		Salaries:        salary.NewRepository(db.Client),
		Images:          images,
		Metrics:         m,
		MetricsHandler:  promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		Checks:          checks,
		RateLimitPerMin: cfg.RateLimitPerMin,
		AllowOrigins:    cfg.CORSOrigins,
		MailTimeout:     cfg.MailTimeout,
	})

	httpSrv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      srv.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Starting server on :%s", cfg.HTTPPort)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}
	log.Println("Shutting down server...")

	// Give outstanding requests 10 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced shutdown: %v", err)
	}

	log.Println("Server exited")
	return nil
}

func mailSettings(cfg config.App) mailer.Settings {
	return mailer.Settings{
		Transport:         cfg.MailTransport,
		SMTPHost:          cfg.SMTPHost,
		SMTPPort:          cfg.SMTPPort,
		SMTPUser:          cfg.SMTPUser,
		SMTPPass:          cfg.SMTPPass,
		GmailClientID:     cfg.GmailClientID,
		GmailClientSecret: cfg.GmailClientSecret,
		GmailRefreshToken: cfg.GmailRefreshToken,
	}
}
