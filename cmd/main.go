package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"synxronmarket/internal/config"
	"synxronmarket/internal/handler"
	"synxronmarket/internal/health"
	"synxronmarket/internal/logger"
	"synxronmarket/internal/metrics"
	"synxronmarket/internal/repository"
	"synxronmarket/internal/service"
	"synxronmarket/internal/service/s3"
)

func connectWithRetry(cfg config.DatabaseConfig, maxAttempts int, delay time.Duration, log *zap.Logger) (*sqlx.DB, error) {
	// Сначала подключаемся к системной базе postgres, которая всегда существует
	system := cfg
	system.Name = "postgres"
	pgDB, err := sqlx.Connect("postgres", system.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres database: %w", err)
	}
	defer pgDB.Close()

	var exists bool
	err = pgDB.Get(&exists, "SELECT EXISTS(SELECT datname FROM pg_catalog.pg_database WHERE datname = $1)", cfg.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to check database existence: %w", err)
	}

	if !exists {
		log.Info("database does not exist, creating", zap.String("database", cfg.Name))
		// Имя базы нельзя передать параметром в CREATE DATABASE
		if _, err = pgDB.Exec("CREATE DATABASE " + pq.QuoteIdentifier(cfg.Name)); err != nil {
			return nil, fmt.Errorf("failed to create database: %w", err)
		}
	}

	var db *sqlx.DB
	for i := 0; i < maxAttempts; i++ {
		db, err = sqlx.Connect("postgres", cfg.GetDSN())
		if err == nil {
			return db, nil
		}

		log.Warn("failed to connect to database",
			zap.Int("attempt", i+1),
			zap.Int("max_attempts", maxAttempts),
			zap.Error(err))
		time.Sleep(delay)
	}

	return nil, fmt.Errorf("failed to connect after %d attempts: %w", maxAttempts, err)
}

func runMigrations(cfg *config.Config, log *zap.Logger) error {
	var m *migrate.Migrate
	var err error

	for i := 0; i < 5; i++ {
		m, err = migrate.New("file://migrations", cfg.Database.GetURL())
		if err == nil {
			break
		}
		log.Warn("failed to create migrate instance", zap.Int("attempt", i+1), zap.Error(err))
		time.Sleep(time.Second * 5)
	}

	if err != nil {
		return fmt.Errorf("failed to create migrate instance after retries: %w", err)
	}
	defer m.Close()

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("failed to get migration version: %w", err)
	}

	if dirty {
		log.Warn("found dirty database state, forcing version", zap.Uint("version", version))
		if err := m.Force(int(version)); err != nil {
			return fmt.Errorf("failed to force version: %w", err)
		}
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

func main() {
	// Загружаем конфигурации
	appConfig, err := config.NewConfig(".app.env")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logg, err := logger.New(appConfig.Log)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logg.Sync()

	if err := run(appConfig, logg); err != nil {
		logg.Fatal("server stopped with error", zap.Error(err))
	}
	logg.Info("server exited properly")
}

func run(appConfig *config.Config, logg *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := connectWithRetry(appConfig.Database, 5, time.Second*5, logg)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	if err := runMigrations(appConfig, logg); err != nil {
		return err
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}

	// Метрики
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	if err := metrics.Register(registry); err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	// Хранилище артефактов
	s3Config, err := s3.NewConfig(".s3.env")
	if err != nil {
		return fmt.Errorf("load S3 config: %w", err)
	}

	storage, err := s3.NewStorage(s3Config)
	if err != nil {
		return fmt.Errorf("create artifact storage: %w", err)
	}

	// Инициализация репозиториев
	pluginRepo := repository.NewPluginRepository(db)
	versionRepo := repository.NewPluginVersionRepository(db)

	// Инициализация сервисов
	artifacts := service.NewArtifactService(storage, service.ArtifactConfig{
		TempBucket:      s3Config.TempBucket,
		PermanentBucket: s3Config.PermanentBucket,
		IconBucket:      s3Config.IconBucket,
		SignedURLTTL:    s3Config.SignedURLTTL,
	}, logg.Named("artifacts"))

	dispatcher := service.NewDispatcher(4, 256, 5*time.Second, logg.Named("dispatcher"))
	defer dispatcher.Close()

	reader := service.NewPackageReader(appConfig.Submission.MaxPackageSize)
	safety := service.SafetyChecks{
		service.NewPermissionDenylist(appConfig.Review.DeniedPermissions),
	}

	submissionService := service.NewSubmissionService(pluginRepo, versionRepo, artifacts, reader,
		appConfig.Submission.Timeout, logg.Named("submission"))
	reviewService := service.NewReviewService(pluginRepo, versionRepo, artifacts, safety,
		appConfig.Review.Timeout, logg.Named("review"))
	pluginService := service.NewPluginService(pluginRepo, versionRepo, artifacts, dispatcher, logg.Named("catalog"))
	janitor := service.NewArtifactJanitor(versionRepo, artifacts, appConfig.Janitor.Interval, logg.Named("janitor"))

	// Инициализация хендлеров
	pluginHandler := handler.NewPluginHandler(submissionService, pluginService,
		appConfig.Submission.MaxPackageSize, logg.Named("http"))
	adminHandler := handler.NewAdminHandler(reviewService, pluginService, logg.Named("http"))

	// gRPC сервер со стандартной проверкой состояния
	healthServer := health.NewServer(logg.Named("grpc"))
	grpcAddr := fmt.Sprintf(":%s", appConfig.Server.GRPCPort)
	lis, err := net.Listen("tcp", grpcAddr)
	if err != nil {
		return fmt.Errorf("listen for gRPC: %w", err)
	}

	conn, err := grpc.NewClient(fmt.Sprintf("localhost:%s", appConfig.Server.GRPCPort),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return fmt.Errorf("create health client: %w", err)
	}
	defer conn.Close()

	// Настройка HTTP роутера
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logger.Middleware(logg.Named("http")))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Method(http.MethodGet, "/healthz", health.NewGateway(conn))
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	// HTTP маршруты
	r.Route("/v1", func(r chi.Router) {
		pluginHandler.Routes(r)
		r.Route("/admin", adminHandler.Routes)
	})

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%s", appConfig.Server.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logg.Info("starting gRPC server", zap.String("addr", grpcAddr))
		return healthServer.Serve(lis)
	})

	g.Go(func() error {
		logg.Info("starting HTTP server", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		healthServer.Watch(gctx, 10*time.Second, db.PingContext)
		return nil
	})

	// Очистка брошенных временных артефактов
	g.Go(func() error {
		return janitor.Run(gctx)
	})

	// Ожидаем сигнал завершения или падение одного из серверов
	g.Go(func() error {
		<-gctx.Done()
		logg.Info("shutting down servers")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		healthServer.SetServing(false)
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logg.Error("HTTP server forced to shutdown", zap.Error(err))
		}
		healthServer.Stop()
		return nil
	})

	return g.Wait()
}
