// Package api exposes the attendance HTTP interface.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"qrattend/internal/attendance"
	"qrattend/internal/auth"
	"qrattend/internal/cloudinary"
	"qrattend/internal/dispatch"
	"qrattend/internal/httpmiddleware"
	"qrattend/internal/makeup"
	"qrattend/internal/metrics"
	"qrattend/internal/salary"
	"qrattend/internal/subject"
	"qrattend/internal/token"
)

// ImageHost stores rendered QR images and returns a public URL.
type ImageHost interface {
	UploadPNG(ctx context.Context, data []byte, publicID string) (*cloudinary.UploadResult, error)
}

// HealthChecker is a dependency reported by /healthz.
type HealthChecker interface {
	Healthy(ctx context.Context) bool
}

// Options wires the server. Scheduler, Images and Metrics may be nil.
type Options struct {
	Attendance *attendance.Service
	Subjects   *subject.Service
	Issuer     *auth.Issuer
	Refresh    *auth.RefreshStore
	Codec      token.Codec
	Delivery   dispatch.Deliverer
	Scheduler  *dispatch.Scheduler
	Makeup     *makeup.Repository
	Salaries   *salary.Repository
	Images     ImageHost
	Metrics    *metrics.Metrics

	MetricsHandler http.Handler
	Checks         map[string]HealthChecker

	RateLimitPerMin int
	AllowOrigins    []string
	MailTimeout     time.Duration
}

// Server holds handler dependencies.
type Server struct {
	opts Options
	loc  *time.Location
}

// New creates a server.
func New(opts Options) *Server {
	if opts.MetricsHandler == nil {
		opts.MetricsHandler = promhttp.Handler()
	}
	if opts.MailTimeout <= 0 {
		opts.MailTimeout = 30 * time.Second
	}
	return &Server{opts: opts, loc: opts.Attendance.Location()}
}

// Router builds the gin engine with middleware and all routes.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(cors.New(s.corsConfig()))
	r.Use(securityHeaders())
	r.Use(s.opts.Metrics.GinMiddleware())
	r.Use(httpmiddleware.NewIPRateLimiter(s.opts.RateLimitPerMin, s.opts.RateLimitPerMin).GinMiddleware())

	r.GET("/metrics", gin.WrapH(s.opts.MetricsHandler))
	r.GET("/healthz", s.healthz)

	authed := auth.Required(s.opts.Issuer)
	admin := []gin.HandlerFunc{authed, auth.AdminOnly()}

	api := r.Group("/api")
	api.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "healthy"}) })

	api.POST("/auth/login", s.login)
	api.POST("/auth/staff-login", s.staffLogin)
	api.POST("/auth/refresh", s.refresh)
	api.POST("/auth/logout", s.logout)
	api.GET("/auth/status", auth.Optional(s.opts.Issuer), s.status)

	api.GET("/users", s.listUsers)
	api.POST("/users", s.createUser)
	api.GET("/users/:id", s.getUser)
	api.DELETE("/users/:id", append(admin, s.deleteUser)...)

	api.POST("/generate-qr", s.generateQR)
	api.POST("/send-qr-email", s.sendQREmail)

	api.POST("/attendance/check", s.checkAttendance)
	api.GET("/attendance", s.listAttendance)
	api.POST("/check-in", authed, s.checkIn)
	api.POST("/check-out", authed, s.checkOut)

	api.POST("/admin/attendance", append(admin, s.overrideAttendance)...)
	api.GET("/admin/dispatch", append(admin, s.dispatchStatus)...)
	api.POST("/admin/dispatch", append(admin, s.runDispatch)...)

	api.GET("/makeup-classes", s.listMakeup)
	api.POST("/makeup-classes", s.createMakeup)
	api.DELETE("/makeup-classes/:id", append(admin, s.deleteMakeup)...)

	api.GET("/teacher-salaries", s.listSalaries)
	api.GET("/teacher-salaries/export", s.exportSalaries)
	api.POST("/teacher-salaries", append(admin, s.saveSalary)...)
	api.DELETE("/teacher-salaries/:id", append(admin, s.deleteSalary)...)

	return r
}

func (s *Server) corsConfig() cors.Config {
	cfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           24 * time.Hour,
	}
	if len(s.opts.AllowOrigins) > 0 {
		cfg.AllowOrigins = s.opts.AllowOrigins
	} else {
		// reflect any origin
		cfg.AllowOriginFunc = func(string) bool { return true }
	}
	return cfg
}

func (s *Server) healthz(c *gin.Context) {
	body := gin.H{"status": "ok"}
	status := http.StatusOK
	for name, check := range s.opts.Checks {
		ok := check.Healthy(c.Request.Context())
		body[name] = ok
		if !ok {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
		}
	}
	c.JSON(status, body)
}

// securityHeaders sets conservative browser headers.
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-XSS-Protection", "1; mode=block")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		// Only add HSTS in production
		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}
