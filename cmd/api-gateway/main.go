package main

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/rosswilliamsdev/guitar-strategies-api/api/swagger"
	"github.com/rosswilliamsdev/guitar-strategies-api/internal/handler"
	"github.com/rosswilliamsdev/guitar-strategies-api/internal/middleware"
	"github.com/rosswilliamsdev/guitar-strategies-api/internal/repository"
	"github.com/rosswilliamsdev/guitar-strategies-api/internal/service"
	"github.com/rosswilliamsdev/guitar-strategies-api/pkg/cache"
	"github.com/rosswilliamsdev/guitar-strategies-api/pkg/config"
	"github.com/rosswilliamsdev/guitar-strategies-api/pkg/database"
	"github.com/rosswilliamsdev/guitar-strategies-api/pkg/logger"
	corsmiddleware "github.com/rosswilliamsdev/guitar-strategies-api/pkg/middleware/cors"
	reqidmiddleware "github.com/rosswilliamsdev/guitar-strategies-api/pkg/middleware/requestid"
	"github.com/rosswilliamsdev/guitar-strategies-api/pkg/txn"
)

// @title Guitar Strategies API
// @version 0.1.0
// @description Lesson scheduling and booking engine
// @BasePath /api/v1
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	metricsSvc := service.NewMetricsService()

	var cacheSvc *service.CacheService
	if cfg.Slots.CacheEnabled {
		redisClient, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Warnw("redis unavailable, slot caching disabled", "error", err)
		} else {
			defer redisClient.Close()
			cacheRepo := repository.NewCacheRepository(redisClient, logr)
			cacheSvc = service.NewCacheService(cacheRepo, metricsSvc, cfg.Slots.CacheTTL, logr, true)
		}
	}

	lessonRepo := repository.NewLessonRepository(db)
	recurringRepo := repository.NewRecurringSlotRepository(db)
	availabilityRepo := repository.NewAvailabilityRepository(db)
	blockedRepo := repository.NewBlockedTimeRepository(db)
	settingsRepo := repository.NewLessonSettingsRepository(db)
	teacherRepo := repository.NewTeacherRepository(db)
	studentRepo := repository.NewStudentRepository(db)

	coordinator := txn.NewCoordinator(db, logr)

	slotSvc := service.NewSlotService(availabilityRepo, blockedRepo, lessonRepo, settingsRepo, cacheSvc, cfg.Slots.CacheTTL, logr)
	bookingValidator := service.NewBookingValidator(settingsRepo, studentRepo, slotSvc)
	bookingSvc := service.NewBookingService(lessonRepo, bookingValidator, coordinator, cacheSvc, metricsSvc, nil, logr)
	recurringSvc := service.NewRecurringService(recurringRepo, lessonRepo, teacherRepo, bookingValidator, coordinator, cacheSvc, metricsSvc, nil, logr)
	scheduleSvc := service.NewScheduleService(lessonRepo, recurringSvc, logr)
	availabilitySvc := service.NewAvailabilityService(availabilityRepo, blockedRepo, lessonRepo, cacheSvc, nil, logr)
	settingsSvc := service.NewSettingsService(settingsRepo, cacheSvc, nil, logr)
	rosterSvc := service.NewRosterService(teacherRepo, studentRepo, nil, logr)
	invoiceSvc := service.NewInvoiceService(lessonRepo, recurringRepo, logr)

	slotHandler := handler.NewSlotHandler(slotSvc)
	bookingHandler := handler.NewBookingHandler(bookingSvc)
	recurringHandler := handler.NewRecurringHandler(recurringSvc)
	scheduleHandler := handler.NewScheduleHandler(scheduleSvc)
	availabilityHandler := handler.NewAvailabilityHandler(availabilitySvc)
	settingsHandler := handler.NewSettingsHandler(settingsSvc)
	rosterHandler := handler.NewRosterHandler(rosterSvc)
	invoiceHandler := handler.NewInvoiceHandler(invoiceSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", readiness(coordinator))
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	{
		api.POST("/teachers", rosterHandler.CreateTeacher)
		api.GET("/teachers/:id", rosterHandler.GetTeacher)
		api.POST("/students", rosterHandler.CreateStudent)
		api.GET("/teachers/:id/students", rosterHandler.ListStudents)
		api.PUT("/teachers/:id/students/:studentId", rosterHandler.LinkStudent)

		api.GET("/teachers/:id/availability", availabilityHandler.Get)
		api.PUT("/teachers/:id/availability", availabilityHandler.Set)
		api.GET("/teachers/:id/blocks", availabilityHandler.ListBlocks)
		api.POST("/teachers/:id/blocks", availabilityHandler.Block)
		api.DELETE("/teachers/:id/blocks/:blockId", availabilityHandler.Unblock)

		api.GET("/teachers/:id/lesson-settings", settingsHandler.Get)
		api.PUT("/teachers/:id/lesson-settings", settingsHandler.Upsert)

		api.GET("/teachers/:id/slots", slotHandler.List)
		api.GET("/teachers/:id/schedule", scheduleHandler.GetTeacherSchedule)

		api.POST("/lessons", bookingHandler.Book)
		api.POST("/lessons/batch", bookingHandler.BookBatch)
		api.GET("/lessons/:id", bookingHandler.Get)
		api.POST("/lessons/:id/cancel", bookingHandler.Cancel)
		api.POST("/lessons/:id/complete", bookingHandler.Complete)

		api.POST("/recurring-slots", recurringHandler.Create)
		api.POST("/recurring-slots/:id/cancel", recurringHandler.Cancel)
		api.GET("/teachers/:id/recurring-slots", recurringHandler.ListByTeacher)
		api.GET("/students/:id/recurring-slots", recurringHandler.ListByStudent)

		if cfg.Invoices.Enabled {
			api.GET("/students/:id/invoices/:month", invoiceHandler.Get)
		}
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}

// readiness pings the database inside a short bounded transaction so a stuck
// pool fails the probe instead of hanging it.
func readiness(coordinator *txn.Coordinator) gin.HandlerFunc {
	return func(c *gin.Context) {
		err := coordinator.Execute(c.Request.Context(), txn.HealthCheckOptions(), func(ctx context.Context, tx *sqlx.Tx) error {
			var one int
			return tx.GetContext(ctx, &one, "SELECT 1")
		})
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	}
}
