package main

import (
	"context"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"gradebook-server-go/batch"
	"gradebook-server-go/config"
	"gradebook-server-go/db"
	"gradebook-server-go/handlers"
	"gradebook-server-go/logging"
)

func main() {
	cfg, err := config.Load(".env", ".env.local")
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}
	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		logrus.Fatalf("Failed to configure logging: %v", err)
	}

	ctx := context.Background()

	pool, err := db.OpenPostgres(ctx, cfg.Database, log)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer pool.Close()

	if cfg.Database.Migrate {
		if err := db.Migrate(pool, log); err != nil {
			log.Fatalf("Failed to migrate database: %v", err)
		}
	}

	redisClient, err := db.InitializeRedisClient(ctx, cfg.Redis, log)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewDBStatsCollector(pool, "school"),
	)

	coordinator := batch.NewCoordinator(batch.DBPool{DB: pool}, log, batch.Options{
		MaxInFlight: cfg.Batch.MaxInFlight,
		MaxItems:    cfg.Batch.MaxItems,
		Metrics:     batch.NewMetrics(registry),
	})

	apiHandler := handlers.NewAPIHandler(
		coordinator,
		db.NewReceiptService(redisClient, cfg.Redis.ReceiptTTL),
		db.NewRecordStore(pool),
		log,
		cfg.ImportMaxBytes,
	)

	gin.SetMode(cfg.GinMode)
	router := gin.New()
	router.Use(gin.Recovery(), handlers.RequestLogger(log))
	handlers.RegisterRoutes(router, apiHandler)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	log.WithField("addr", cfg.HTTPAddr).Info("Starting server")
	if err := router.Run(cfg.HTTPAddr); err != nil {
		log.Errorf("Failed to run server: %v", err)
		os.Exit(1)
	}
}
