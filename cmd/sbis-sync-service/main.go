package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/mmdatafocus/billing_backend/config"
	"github.com/mmdatafocus/billing_backend/models"
	"github.com/mmdatafocus/billing_backend/notify"
	"github.com/mmdatafocus/billing_backend/reminders"
	"github.com/mmdatafocus/billing_backend/sbissync"
	"github.com/mmdatafocus/billing_backend/scheduler"
	"github.com/mmdatafocus/billing_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const defaultPort = "8080"

func main() {
	port := os.Getenv("SBIS_SYNC_PORT")
	if port == "" {
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	r := gin.New()
	r.Use(func(c *gin.Context) {
		cid := c.GetHeader("x-correlation-id")
		if cid == "" {
			cid = uuid.NewString()
		}
		c.Request = c.Request.WithContext(utils.SetCorrelationIdInContext(c.Request.Context(), cid))
		c.Next()
	})
	r.Use(func(c *gin.Context) {
		if c.Request.URL.Path == "/healthz" {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		if config.GetDB() == nil {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Next()
	})
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	corsConfig := cors.DefaultConfig()
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		if allowedOrigins == "" {
			corsConfig.AllowOrigins = []string{}
		} else {
			corsConfig.AllowOrigins = splitAndTrim(allowedOrigins)
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "PUT", "DELETE", "OPTIONS")
	corsConfig.AddAllowHeaders("token", "Origin", "Content-Type", "Authorization")
	corsConfig.AddExposeHeaders("Content-Length")
	corsConfig.AllowCredentials = true

	r.Use(cors.New(corsConfig))
	r.Use(serviceTokenMiddleware())
	r.Use(requestLogger(logger))
	r.Use(gin.Recovery())

	syncer, syncerErr := sbissync.NewSyncer(config.GetDB(), logger)
	if syncerErr != nil {
		logger.WithFields(logrus.Fields{"field": "startup"}).Warnf("sbis client not configured: %v; sync endpoints disabled", syncerErr)
	}

	dispatcher := notify.NewDispatcher(logger)
	scanner := reminders.NewScanner(config.GetDB(), logger, dispatcher)

	// API endpoints (SBIS sync)
	r.GET("/api/integrations/sbis/status", sbissync.StatusHandler())
	r.GET("/api/integrations/sbis/sync-logs", sbissync.SyncLogsHandler())
	r.GET("/api/integrations/sbis/balance-checks", sbissync.BalanceChecksHandler(logger))
	if syncer != nil {
		r.POST("/api/integrations/sbis/sync", sbissync.TriggerSyncHandler(syncer))
		r.POST("/api/integrations/sbis/clients/:id/sync", sbissync.TriggerClientSyncHandler(syncer))

		// Pub/Sub push endpoint for externally scheduled syncs.
		r.POST("/pubsub/sbis-sync", sbissync.PubSubPushHandler(syncer))
	}

	// Read-side endpoints for operators.
	r.GET("/api/payments/history", paymentHistoryHandler())
	r.GET("/api/notifications", notificationsHandler())
	r.PUT("/api/notifications/:id/read", markNotificationReadHandler())

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
	})

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- srv.ListenAndServe()
	}()

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()

	db := config.GetDB()
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()

	if !strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
		models.MigrateTable()
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	// Handlers were registered before the database came up; late-bind the
	// handles now that the connections exist.
	scanner.DB = db
	sched := scheduler.New(logger)
	if syncer != nil {
		syncer.DB = db
		syncer.Locker = config.GetRedisLock()
		sched.Add(scheduler.Job{
			Name: "sbis-sync",
			At:   timeOfDayFromEnv("SYNC_HOUR", "02:00", logger),
			Run: func(ctx context.Context) {
				if strings.EqualFold(strings.TrimSpace(os.Getenv("SBIS_SYNC_VIA_PUBSUB")), "true") {
					if err := sbissync.PublishSyncRequest(ctx, 0, models.SyncTriggeredSystem); err == nil {
						return
					} else {
						config.LogError(logger, "main.go", "sbis-sync", "queueing scheduled sync; running inline", nil, err)
					}
				}
				if _, err := syncer.SyncAllClients(ctx); err != nil {
					config.LogError(logger, "main.go", "sbis-sync", "scheduled sync pass", nil, err)
				}
			},
		})
	}
	lowBalanceThreshold := decimalFromEnv("LOW_BALANCE_THRESHOLD", "1000")
	sched.Add(scheduler.Job{
		Name: "low-balance-reminders",
		At:   timeOfDayFromEnv("REMINDER_BALANCE_HOUR", "09:00", logger),
		Run: func(ctx context.Context) {
			if _, err := scanner.ScanLowBalance(ctx, lowBalanceThreshold); err != nil {
				config.LogError(logger, "main.go", "low-balance-reminders", "scheduled scan", nil, err)
			}
		},
	})
	sched.Add(scheduler.Job{
		Name: "pending-payment-reminders",
		At:   timeOfDayFromEnv("REMINDER_PENDING_HOUR", "10:00", logger),
		Run: func(ctx context.Context) {
			if _, err := scanner.ScanPendingPayments(ctx); err != nil {
				config.LogError(logger, "main.go", "pending-payment-reminders", "scheduled scan", nil, err)
			}
		},
	})
	sched.Start(sigCtx)

	select {
	case <-sigCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		sched.Wait()
	case err := <-serverErrCh:
		if err != nil && err != http.ErrServerClosed {
			logger.WithFields(logrus.Fields{"field": "server"}).Error(err)
		}
	}
}

func paymentHistoryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		clientId, err := strconv.Atoi(c.Query("client_id"))
		if err != nil || clientId < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "client_id is required"})
			return
		}
		page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

		filter := models.TransactionFilter{
			ClientId: clientId,
			Type:     models.TransactionType(c.Query("type")),
			Page:     page,
			Limit:    limit,
		}
		if v := c.Query("start_date"); v != "" {
			if t, err := time.Parse("2006-01-02", v); err == nil {
				filter.StartDate = &t
			}
		}
		if v := c.Query("end_date"); v != "" {
			if t, err := time.Parse("2006-01-02", v); err == nil {
				filter.EndDate = &t
			}
		}

		result, err := models.ListTransactions(c.Request.Context(), filter)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func notificationsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		clientId, err := strconv.Atoi(c.Query("client_id"))
		if err != nil || clientId < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "client_id is required"})
			return
		}
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

		notifications, err := models.ListNotifications(c.Request.Context(), clientId, limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, notifications)
	}
}

func markNotificationReadHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		clientId, err := strconv.Atoi(c.Query("client_id"))
		if err != nil || clientId < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "client_id is required"})
			return
		}
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil || id < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid notification id"})
			return
		}
		if err := models.MarkNotificationRead(c.Request.Context(), clientId, id); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "ok"})
	}
}

// serviceTokenMiddleware guards the operator surface with a shared bearer
// token. Identity for end users lives in the main API, not here.
func serviceTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := strings.TrimSpace(os.Getenv("SERVICE_TOKEN"))
		if token == "" {
			c.Next()
			return
		}
		auth := strings.TrimSpace(c.GetHeader("Authorization"))
		if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
			auth = strings.TrimSpace(auth[7:])
		}
		if auth != token && c.GetHeader("token") != token {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

func requestLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		cid, _ := utils.GetCorrelationIdFromContext(c.Request.Context())
		logger.WithFields(logrus.Fields{
			"status":         c.Writer.Status(),
			"method":         c.Request.Method,
			"path":           c.Request.URL.Path,
			"latency":        latency.String(),
			"correlation_id": cid,
		}).Info("request")
	}
}

func timeOfDayFromEnv(key string, def string, logger *logrus.Logger) scheduler.TimeOfDay {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		value = def
	}
	at, err := scheduler.ParseTimeOfDay(value)
	if err != nil {
		logger.WithFields(logrus.Fields{"field": "scheduler", "env": key}).Warnf("invalid time %q; using %s", value, def)
		at, _ = scheduler.ParseTimeOfDay(def)
	}
	return at
}

func decimalFromEnv(key string, def string) decimal.Decimal {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		value = def
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		d, _ = decimal.NewFromString(def)
	}
	return d
}

func splitAndTrim(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
