package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	_ "pluto/api/swagger" // swagger docs
	"pluto/internal/cache"
	"pluto/internal/client"
	"pluto/internal/config"
	"pluto/internal/database"
	"pluto/internal/handler"
	"pluto/internal/logger"
	"pluto/internal/middleware"
	"pluto/internal/repository"
	"pluto/internal/service"
	"pluto/internal/websocket"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"gorm.io/gorm"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	var migrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.NewConfig()
			if err != nil {
				return err
			}
			return serve(cfg, migrate)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", false, "migrate the schema before serving")
	return cmd
}

func serve(cfg *config.Configuration, migrate bool) error {
	log, err := logger.NewLogger(cfg.Logging)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	db, err := database.NewConnection(cfg.Postgres, cfg.Server.Mode == "debug")
	if err != nil {
		return err
	}
	log.Infow("connected to postgres", "host", cfg.Postgres.Host, "dbname", cfg.Postgres.DBName)

	if migrate {
		if err := database.Migrate(db); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	wsHub := websocket.NewHub(log)
	go wsHub.Run(ctx)

	c := cache.New(cfg.Cache)
	guardian := client.NewGuardianClient(cfg.Guardian, c, log)
	geo := client.NewGeoClient(cfg.Geo, c, log)

	// Repository -> Service -> Handler
	taxRepo := repository.NewTaxRepository(db)
	ruleRepo := repository.NewTaxRuleRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	txManager := repository.NewTransactionManager(db)

	taxService := service.NewTaxService(taxRepo, ruleRepo, auditRepo, txManager, wsHub, log)
	ruleService := service.NewTaxRuleService(taxRepo, ruleRepo, auditRepo, txManager, geo, wsHub, log)
	auditService := service.NewAuditService(auditRepo)

	gin.SetMode(cfg.Server.Mode)
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestID(), middleware.RequestLogger(log), middleware.ErrorHandler(log))

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.CORS.AllowOrigins
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "Accept",
		middleware.HeaderUserUUID, middleware.HeaderUserID, middleware.HeaderTransactionID}
	corsConfig.ExposeHeaders = []string{middleware.HeaderTransactionID}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	router.Use(cors.New(corsConfig))

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	handler.NewHealthHandler(healthChecks(db, c)).RegisterRoutes(router)

	company := router.Group("/api/companies/:company_id", middleware.RequireCompanyPermission(guardian, cfg.Auth.JWTSecret))
	handler.NewTaxHandler(taxService).RegisterRoutes(company)
	handler.NewTaxRuleHandler(ruleService).RegisterRoutes(company)
	handler.NewAuditHandler(auditService).RegisterRoutes(company)
	company.GET("/ws", wsHub.ServeWs)

	srv := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infow("server listening", "address", cfg.Server.Address)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Infow("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func healthChecks(db *gorm.DB, c cache.Cache) map[string]handler.Pinger {
	checks := map[string]handler.Pinger{
		"postgres": func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}
	if redisCache, ok := c.(*cache.RedisCache); ok {
		checks["redis"] = redisCache.Ping
	}
	return checks
}
