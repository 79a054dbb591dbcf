package main

import (
	"database/sql"
	"flag"
	"log"
	"net/http"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	httpapi "xenial-settlement/internal/api/http"
	"xenial-settlement/internal/config"
	"xenial-settlement/internal/logger"
	"xenial-settlement/internal/repository/postgres"
	"xenial-settlement/internal/security"
	"xenial-settlement/internal/service"
)

func main() {
	// Parse command-line flags
	configPath := flag.String("config", "config/config.dev.yaml", "Path to configuration file")
	flag.Parse()

	// Load .env if present, then configuration
	_ = godotenv.Load()
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger.Initialize(cfg.Log.Level, cfg.Log.Format)
	logger.Info("Starting Xenial Settlement Backend...", "log_level", cfg.Log.Level, "log_format", cfg.Log.Format)
	logger.Info("Server configuration", "address", cfg.GetServerAddress())
	logger.Info("Database configuration", "host", cfg.Database.Host, "port", cfg.Database.Port, "database", cfg.Database.Database, "user", cfg.Database.User)

	// Initialize Database
	db, err := sql.Open("postgres", cfg.GetDatabaseConnectionString())
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	// Test database connection
	if err := db.Ping(); err != nil {
		logger.Error("Failed to ping database", "error", err)
		log.Fatalf("Failed to ping database: %v", err)
	}
	logger.Info("Database connection established")

	// Initialize Repositories
	store := postgres.NewStore(db)

	// Initialize Security
	tokenManager := security.NewTokenManager(cfg.JWT.Secret, time.Duration(cfg.JWT.AccessTokenExpiry)*time.Minute)

	// Initialize Email Service
	emailSvc := service.NewEmailService(
		cfg.SMTP.Host,
		cfg.SMTP.Port,
		cfg.SMTP.User,
		cfg.SMTP.Password,
		cfg.SMTP.From,
	)

	// Initialize Services
	fundSvc := service.NewFundService(store.FundRepository, store.OrderRepository, emailSvc, cfg)
	refundSvc := service.NewRefundService(store.RefundRequestRepository, store.OrderRepository, cfg)
	approvalSvc := service.NewApprovalService(
		store.RefundRequestRepository,
		store.RefundApprovalRepository,
		store.ApproverDirectoryRepository,
		store.NotificationRepository,
		store,
		emailSvc,
		cfg,
	)
	negotiationSvc := service.NewNegotiationService(
		store.NegotiationRepository,
		store.OrderRepository,
		store.NotificationRepository,
		emailSvc,
		cfg,
	)
	noteSvc := service.NewNotificationService(store.NotificationRepository)

	// Initialize HTTP API
	router := httpapi.NewRouter(
		tokenManager,
		httpapi.NewRefundHandler(refundSvc, approvalSvc),
		httpapi.NewFundHandler(fundSvc),
		httpapi.NewNegotiationHandler(negotiationSvc),
		httpapi.NewNotificationHandler(noteSvc),
	)

	server := &http.Server{
		Addr:         cfg.GetServerAddress(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	logger.Info("HTTP server listening", "address", cfg.GetServerAddress())
	if err := server.ListenAndServe(); err != nil {
		logger.Error("HTTP server stopped", "error", err)
		log.Fatalf("HTTP server stopped: %v", err)
	}
}
