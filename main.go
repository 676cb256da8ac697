package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"recipe-api/auth"
	"recipe-api/config"
	"recipe-api/controllers"
	"recipe-api/database"
	grpcserver "recipe-api/grpc_server"
	"recipe-api/logging"
	"recipe-api/registry"
	"recipe-api/repositories"
	"recipe-api/routes"
	"recipe-api/services"
	"recipe-api/storage"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/afero"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const shutdownTimeout = 10 * time.Second

func main() {
	command := pflag.String("command", "serve", "serve, migrate or createsuperuser")
	configPath := pflag.String("config", "", "config file (default: ./config.yaml or ./config/config.yaml)")
	email := pflag.String("email", "", "superuser email for createsuperuser")
	password := pflag.String("password", "", "superuser password for createsuperuser")
	pflag.Parse()

	// Initialize configs
	config.InitConfig(*configPath)
	cfg := &config.AppConfig

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync() // Make sure the buffer is flushed before the program exits

	if cfg.UsesInsecureSecret() {
		logger.Warn("Using the default insecure token secret, set RECIPE_TOKEN_SECRET")
	}

	db, err := database.Open(cfg.Database, logger, cfg.LogLevel == "debug")
	if err != nil {
		logger.Fatal("Failed to open database", zap.Error(err))
	}

	switch *command {
	case "migrate":
		logger.Info("Migrations applied")
	case "createsuperuser":
		users := services.NewUserService(repositories.NewUserRepository(db))
		user, err := users.CreateSuperuser(context.Background(), *email, *password)
		if err != nil {
			logger.Fatal("Failed to create superuser", zap.Error(err))
		}
		logger.Info("Superuser created", zap.Uint("id", user.ID), zap.String("email", user.Email))
	case "serve":
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		if err := serve(ctx, cfg, db, logger); err != nil {
			logger.Fatal("Server stopped with error", zap.Error(err))
		}
	default:
		logger.Fatal("Unknown command", zap.String("command", *command))
	}
}

func serve(ctx context.Context, cfg *config.Config, db *gorm.DB, logger *zap.Logger) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}

	sessions, closeSessions, err := newSessionStore(ctx, cfg.Redis, db, logger)
	if err != nil {
		return err
	}
	defer closeSessions()

	userRepo := repositories.NewUserRepository(db)
	userService := services.NewUserService(userRepo)
	tagService := services.NewTagService(repositories.NewTagRepository(db))
	ingredientService := services.NewIngredientService(repositories.NewIngredientRepository(db))
	images := storage.NewImageStore(afero.NewOsFs(), cfg.Media.Root, cfg.Media.URLPrefix, cfg.Media.MaxUploadBytes)
	recipeService := services.NewRecipeService(repositories.NewRecipeRepository(db), tagService, ingredientService, images, logger)
	issuer := auth.NewIssuer(userService, sessions, []byte(cfg.Token.Secret), cfg.Token.MaxLifetime, cfg.Token.IdleTimeout)

	if cfg.Admin.Email != "" && cfg.Admin.Password != "" {
		admin, created, err := userService.EnsureSuperuser(ctx, cfg.Admin.Email, cfg.Admin.Password)
		if err != nil {
			return fmt.Errorf("failed to seed superuser: %w", err)
		}
		if created {
			logger.Info("Seeded superuser", zap.String("email", admin.Email))
		}
	}

	metricsRegistry := prometheus.NewRegistry()
	metricsRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewDBStatsCollector(sqlDB, cfg.Database.Driver),
	)

	container := routes.NewContainer(routes.Options{
		ServiceName:    cfg.ServiceName,
		MediaURLPrefix: cfg.Media.URLPrefix,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		Logger:         logger,
		Registry:       metricsRegistry,
		DB:             sqlDB,
		Issuer:         issuer,
		Users:          controllers.NewUserController(userService, issuer, logger),
		Tags:           controllers.NewTagController(tagService, logger),
		Ingredients:    controllers.NewIngredientController(ingredientService, logger),
		Recipes:        controllers.NewRecipeController(recipeService, cfg.Media.MaxUploadBytes, logger),
	})

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           container,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("HTTP server listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	var stopGRPC func()
	if cfg.GRPCPort > 0 {
		lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.GRPCPort))
		if err != nil {
			return fmt.Errorf("failed to listen on grpc port %d: %w", cfg.GRPCPort, err)
		}
		grpcServer, healthServer := grpcserver.NewServer(issuer, recipeService, logger)
		go func() {
			logger.Info("gRPC server listening", zap.String("addr", lis.Addr().String()))
			if err := grpcServer.Serve(lis); err != nil {
				errCh <- fmt.Errorf("grpc server: %w", err)
			}
		}()
		stopGRPC = func() {
			healthServer.Shutdown()
			grpcServer.GracefulStop()
		}
	}

	deregister := func() {}
	if cfg.Consul.Enabled {
		consul, err := registry.NewConsulRegistry(cfg.Consul, logger)
		if err != nil {
			logger.Warn("Consul unavailable, continuing without registration", zap.Error(err))
		} else if deregister, err = registry.RegisterAll(consul, registry.Registrations(cfg)); err != nil {
			logger.Warn("Consul registration failed", zap.Error(err))
		}
	}

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutting down")
	case serveErr = <-errCh:
		logger.Error("Server failed, shutting down", zap.Error(serveErr))
	}

	deregister()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", zap.Error(err))
	}
	if stopGRPC != nil {
		stopGRPC()
	}
	return serveErr
}

// newSessionStore picks Redis when an address is configured and the SQL
// sessions table otherwise.
func newSessionStore(ctx context.Context, cfg config.RedisConfig, db *gorm.DB, logger *zap.Logger) (auth.SessionStore, func(), error) {
	if cfg.Addr == "" {
		logger.Info("Using SQL session store")
		return auth.NewSQLSessionStore(db), func() {}, nil
	}

	client := redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}
	logger.Info("Using Redis session store", zap.String("addr", cfg.Addr))
	return auth.NewRedisSessionStore(client), func() { _ = client.Close() }, nil
}
