package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"github.com/elton-saraci/pmrexpo-incident-management-platform/internal/config"
	"github.com/elton-saraci/pmrexpo-incident-management-platform/internal/detector"
	"github.com/elton-saraci/pmrexpo-incident-management-platform/internal/dispatch"
	v1 "github.com/elton-saraci/pmrexpo-incident-management-platform/internal/handler/http/v1"
	"github.com/elton-saraci/pmrexpo-incident-management-platform/internal/repository"
	"github.com/elton-saraci/pmrexpo-incident-management-platform/internal/sensor"
	"github.com/elton-saraci/pmrexpo-incident-management-platform/internal/service"
	"github.com/elton-saraci/pmrexpo-incident-management-platform/internal/webhook"
	"github.com/elton-saraci/pmrexpo-incident-management-platform/pkg/logger"
	"github.com/elton-saraci/pmrexpo-incident-management-platform/pkg/postgres"
	redisclient "github.com/elton-saraci/pmrexpo-incident-management-platform/pkg/redis"

	_ "github.com/elton-saraci/pmrexpo-incident-management-platform/docs"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// @title Incident Management Platform API
// @version 1.0
// @description Emergency incident management and responder dispatching API.
// @host localhost:8080
// @BasePath /api/v1
// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name X-API-Key
func runMigrations(cfg *config.Config, log *logrus.Logger) error {
	log.Info("Running database migrations...")

	migrationURL := cfg.DatabaseURL
	if !strings.HasPrefix(migrationURL, "pgx5://") {
		migrationURL = strings.Replace(migrationURL, "postgres://", "pgx5://", 1)
	}

	m, err := migrate.New(
		"file://migrations",
		migrationURL,
	)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	log.Info("Database migrations applied successfully")
	return nil
}

func main() {
	// Загрузка конфигурации
	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	// Инициализация логгера
	log := logger.New(cfg.LogLevel)

	// Контекст для graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Запуск миграций
	if err := runMigrations(cfg, log); err != nil {
		log.Fatalf("Failed to run database migrations: %v", err)
	}

	// Подключение к PostgreSQL
	dbpool, err := postgres.NewPostgresDB(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to connect to PostgreSQL: %v", err)
	}
	defer dbpool.Close()
	log.Info("Successfully connected to PostgreSQL")

	// Инициализация Redis клиента
	redisClient, err := redisclient.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()
	log.Info("Successfully connected to Redis")

	// Инициализация издателя событий диспетчеризации
	eventPublisher := webhook.NewRedisEventPublisher(redisClient)

	// Инициализация и запуск воркера вебхуков
	webhookWorker := webhook.NewWorker(redisClient, log, cfg)
	webhookWorker.Start(ctx)

	// Инициализация репозиториев
	incidentRepo := repository.NewIncidentRepository(dbpool, redisClient)
	departmentRepo := repository.NewDepartmentRepository(dbpool, redisClient)

	// Координатор работает поверх счетчиков частей в PostgreSQL
	coordinator := dispatch.NewCoordinator(departmentRepo, log)

	// Клиент детектора поддельных изображений
	fakeDetector := detector.NewClient(cfg.DetectorURL, cfg.DetectorTimeout, log)

	// Инициализация сервисов
	incidentService := service.NewIncidentService(incidentRepo, departmentRepo, coordinator, fakeDetector, eventPublisher, log, cfg)
	departmentService := service.NewDepartmentService(departmentRepo, log)

	// Подключение к NATS и запуск потребителя показаний датчиков
	natsConn, err := nats.Connect(cfg.NATSURL, nats.Name("incident-management-platform"))
	if err != nil {
		log.Fatalf("Failed to connect to NATS: %v", err)
	}
	defer natsConn.Close()
	log.Info("Successfully connected to NATS")

	sensorConsumer := sensor.NewConsumer(natsConn, incidentService, log, cfg)
	if err := sensorConsumer.Start(); err != nil {
		log.Fatalf("Failed to start sensor consumer: %v", err)
	}

	// Инициализация хэндлеров
	handler := v1.NewHandler(incidentService, departmentService, log, cfg)

	// Настройка Gin роутера
	router := gin.Default()
	api := router.Group("/api/v1")
	handler.RegisterRoutes(api)

	// Добавление маршрута для Swagger UI
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Запуск HTTP-сервера
	serverAddr := fmt.Sprintf(":%s", cfg.HTTPPort)

	srv := &http.Server{
		Addr:    serverAddr,
		Handler: router,
	}

	// Запуск сервера в горутине
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Error starting HTTP server: %v", err)
		}
	}()
	log.Infof("HTTP server started on port %s", cfg.HTTPPort)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Received shutdown signal, shutting down server...")

	if err := sensorConsumer.Stop(); err != nil {
		log.Errorf("Failed to stop sensor consumer: %v", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Info("Server gracefully stopped")
}
