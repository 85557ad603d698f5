package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/indexbridge/indexbridge/config"
	"github.com/indexbridge/indexbridge/engines"
	"github.com/indexbridge/indexbridge/events"
	"github.com/indexbridge/indexbridge/handlers"
	"github.com/indexbridge/indexbridge/jwt"
	"github.com/indexbridge/indexbridge/middleware"
	"github.com/indexbridge/indexbridge/models"
)

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.WithError(err).Fatal("Failed to load configuration")
	}

	// Bulk item failures are not errors at the call site; they fan out
	// through the event bus. The default subscriber logs them.
	bus := events.NewBus()
	bus.Subscribe(func(event interface{}) {
		failed, ok := event.(*events.BulkFailedEvent)
		if !ok {
			return
		}
		for _, failure := range failed.Failures() {
			log.WithFields(log.Fields{
				"operation": failed.Operation(),
				"index":     failure.Index,
				"id":        failure.ID,
			}).Error(failure.Message)
		}
	})

	engine, err := engines.NewElasticsearch(cfg.Elasticsearch, bus)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize Elasticsearch")
	}
	defer engine.Close()

	// Applications embedding this service register their searchable types
	// here to enable the reindex/flush endpoints.
	registry := models.NewRegistry()

	apiHandler := handlers.NewAPIHandler(engine, registry, time.Now())

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	router.Use(middleware.Recovery())
	router.Use(middleware.CORS())
	router.Use(middleware.RequestID())
	router.Use(middleware.RequestLogger())

	if cfg.Auth.UseJWT {
		auth, err := jwt.New(cfg.Auth)
		if err != nil {
			log.WithError(err).Fatal("Failed to initialize JWT auth")
		}
		router.Use(auth.Middleware())
	} else {
		router.Use(middleware.APIKeyAuth(cfg.Auth.Enabled, cfg.Auth.APIKey))
	}

	v1 := router.Group("/api/v1")
	{
		v1.POST("/documents/batch", apiHandler.BatchUpsert)
		v1.POST("/documents/delete", apiHandler.BatchDelete)
		v1.POST("/search", apiHandler.Search)
		v1.PUT("/mapping", apiHandler.PutMapping)
		v1.POST("/reindex", apiHandler.Reindex)
		v1.POST("/flush", apiHandler.Flush)

		v1.GET("/ping", apiHandler.Ping)
		v1.GET("/status", apiHandler.Status)
		v1.GET("/health/system", apiHandler.SystemInfo)
	}

	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"service": "IndexBridge",
			"version": "1.0.0",
			"engine":  "elasticsearch",
			"status":  "running",
		})
	})

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
		})
	})

	// HTTP/2 over cleartext so in-cluster callers can multiplex without TLS.
	h2s := &http2.Server{}
	h2cHandler := h2c.NewHandler(router, h2s)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      h2cHandler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.WithFields(log.Fields{
			"host": cfg.Server.Host,
			"port": cfg.Server.Port,
		}).Info("Starting IndexBridge with HTTP/2 support")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.WithError(err).Error("Server forced to shutdown")
	}

	log.Info("Server exited")
}
