package server

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/yuzvak/crowdfund-service/internal/application/use_cases"
	"github.com/yuzvak/crowdfund-service/internal/config"
	"github.com/yuzvak/crowdfund-service/internal/infrastructure/http/handlers"
	"github.com/yuzvak/crowdfund-service/internal/pkg/logger"
)

type Server struct {
	server          *http.Server
	logger          *logger.Logger
	requestTimeout  time.Duration
	healthHandler   *handlers.HealthHandler
	saleHandler     *handlers.SaleHandler
	tokenHandler    *handlers.TokenHandler
	purchaseHandler *handlers.PurchaseHandler
	adminHandler    *handlers.AdminHandler
}

// NewServer builds the HTTP surface over the crowdfund use case. db and
// redisClient are only used for health reporting and may be nil.
func NewServer(cfg config.ServerConfig, crowdfundUseCase *use_cases.CrowdfundUseCase, db *sql.DB, redisClient *redis.Client, logger *logger.Logger) *Server {
	readTimeout := cfg.ReadTimeout.Duration
	if readTimeout <= 0 {
		readTimeout = 10 * time.Second
	}
	writeTimeout := cfg.WriteTimeout.Duration
	if writeTimeout <= 0 {
		writeTimeout = 30 * time.Second
	}
	requestTimeout := defaultRequestTimeout
	if writeTimeout < requestTimeout {
		requestTimeout = writeTimeout
	}

	server := &http.Server{
		Addr:         cfg.Addr(),
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  120 * time.Second,
	}

	s := &Server{
		server:          server,
		logger:          logger,
		requestTimeout:  requestTimeout,
		healthHandler:   handlers.NewHealthHandler(db, redisClient, logger),
		saleHandler:     handlers.NewSaleHandler(crowdfundUseCase, logger),
		tokenHandler:    handlers.NewTokenHandler(crowdfundUseCase, logger),
		purchaseHandler: handlers.NewPurchaseHandler(crowdfundUseCase, logger),
		adminHandler:    handlers.NewAdminHandler(crowdfundUseCase, logger),
	}
	server.Handler = s.setupRoutes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

func (s *Server) ListenAndServe() error {
	s.logger.Info("Starting HTTP server", "address", s.server.Addr)

	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}
