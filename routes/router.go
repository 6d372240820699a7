package routes

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/hanapath/rewards/config"
	"github.com/hanapath/rewards/controllers"
	"github.com/hanapath/rewards/ledger"
	"github.com/hanapath/rewards/metrics"
	"github.com/hanapath/rewards/middleware"
	"github.com/hanapath/rewards/rewards"
	"github.com/hanapath/rewards/utils"
)

// SetupRouter wires routes, middlewares, and controllers.
func SetupRouter(db *gorm.DB) *gin.Engine {
	// Load config and set Gin mode from configuration
	cfg := config.Get()
	switch strings.ToLower(cfg.GinMode) {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	// Replace default console logger with file-based zap logger
	gl, err := utils.NewRollingFileLogger(utils.RollingFile{
		Path:       cfg.GinPath,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		MaxAgeDays: cfg.LogMaxAgeDays,
		Compress:   cfg.LogCompress,
	}, cfg.LogLevel)
	if err == nil {
		r.Use(utils.Ginzap(gl, time.RFC3339, true))
		r.Use(utils.RecoveryWithZap(gl, false))
	} else {
		// fallback to default recovery if logger failed to init
		r.Use(gin.Recovery())
	}

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
		ExposeHeaders:    []string{"Content-Length", middleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}

	if len(cfg.AllowedOrigins) == 1 && cfg.AllowedOrigins[0] == "*" {
		corsCfg.AllowAllOrigins = true
		// wildcard origins cannot be combined with credentials
		corsCfg.AllowCredentials = false
	} else {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
	}

	metrics.Register()
	r.Use(cors.New(corsCfg))
	r.Use(middleware.RequestID())
	r.Use(middleware.Monitor())

	r.GET("/health", func(ctx *gin.Context) {
		utils.Success(ctx, gin.H{"status": "ok"})
	})
	r.GET("/metrics", middleware.MetricsBasicAuth(cfg.MetricsUser, cfg.MetricsPassword), gin.WrapH(promhttp.Handler()))

	attendanceController := controllers.NewAttendanceController(
		NewLedger(db, cfg),
		time.Duration(cfg.StatsCacheTTLSec)*time.Second,
	)

	api := r.Group("/api/v1")

	attendance := api.Group("/attendance")
	attendance.Use(middleware.AuthRequired(cfg.JWTSecret), middleware.RateLimitMiddleware(cfg.RateLimitPerMinute))
	attendance.POST("/check-in", attendanceController.CheckIn)
	attendance.GET("/monthly", attendanceController.Monthly)
	attendance.GET("/stats", attendanceController.Stats)
	attendance.GET("/today", attendanceController.Today)

	r.NoRoute(func(ctx *gin.Context) {
		utils.Error(ctx, http.StatusNotFound, 40400, "api route not found")
	})

	return r
}

// NewLedger builds the attendance ledger over db with the configured rules.
// Invalid bonus rules or time zone fall back to the defaults with a warning.
func NewLedger(db *gorm.DB, cfg config.AppConfig) *ledger.Ledger {
	bonus, err := ledger.ParseBonusTable(cfg.AttendanceBonusRules)
	if err != nil {
		utils.Sugar.Warnf("invalid ATTENDANCE_BONUS_RULES %q, using defaults: %v", cfg.AttendanceBonusRules, err)
		bonus = ledger.DefaultBonusTable
	}
	loc, err := cfg.Location()
	if err != nil {
		utils.Sugar.Warnf("invalid ATTENDANCE_TIMEZONE %q, using server zone: %v", cfg.AttendanceTimezone, err)
		loc = time.Local
	}

	store := ledger.NewGormStore(db)
	return ledger.New(store, store, ledger.Options{
		BasePoints: cfg.AttendanceBasePoints,
		Bonus:      bonus,
		Location:   loc,
		Logger:     utils.Logger.Named("ledger"),
		Hook:       rewards.NewService(db),
	})
}
