package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"storefront/internal/config"
	"storefront/internal/db"
	apihttp "storefront/internal/http"
	"storefront/internal/notify"
	"storefront/internal/repository"
	"storefront/internal/service"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	ctx := context.Background()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: loading .env: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		logger.Fatal("db connect", zap.Error(err))
	}
	defer pool.Close()

	userRepo := repository.NewPgUserRepository(pool)
	productRepo := repository.NewPgProductRepository(pool)
	orderRepo := repository.NewPgOrderRepository(pool)
	analyticsRepo := repository.NewPgAnalyticsRepository(pool)

	emailSender := notify.NewDisabledSender("email sender not configured")
	if cfg.SMTPHost != "" {
		sender, err := notify.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPFrom, cfg.SMTPFromName, cfg.SMTPUseTLS)
		if err != nil {
			logger.Warn("smtp sender init failed", zap.Error(err))
		} else {
			emailSender = sender
		}
	}
	smsSender := notify.NewDisabledSender("sms sender not configured")
	if cfg.SMSAPIURL != "" || cfg.SMSDryRun {
		sender, err := notify.NewSMSSender(cfg.SMSAPIURL, cfg.SMSAPIKey, cfg.SMSSender, cfg.SMSDryRun, logger)
		if err != nil {
			logger.Warn("sms sender init failed", zap.Error(err))
		} else {
			smsSender = sender
		}
	}

	var (
		otpLimiter   service.OTPRateLimiter
		sessionStore service.SessionStore
		redisClient  *redis.Client
	)
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := redisClient.Ping(ctxPing).Err(); err != nil {
			logger.Warn("redis ping failed", zap.Error(err))
		} else {
			otpLimiter = service.NewRedisOTPRateLimiter(redisClient, logger, 10*time.Minute, 3)
			sessionStore = service.NewRedisSessionStore(redisClient)
		}
		cancel()
	}

	sessionSvc := service.NewSessionService(
		cfg.SessionSecret,
		time.Duration(cfg.SessionTTLHours)*time.Hour,
		sessionStore,
	)

	userSvc := service.NewUserService(logger, userRepo, emailSender, smsSender, otpLimiter)
	orderSvc := service.NewOrderService(logger, orderRepo, productRepo)

	authHandler := apihttp.NewAuthHandler(logger, userSvc, sessionSvc, cfg.CookieDomain, cfg.CookieSecure)
	catalogHandler := apihttp.NewCatalogHandler(logger, productRepo)
	orderHandler := apihttp.NewOrderHandler(logger, orderSvc)
	adminHandler := apihttp.NewAdminHandler(logger, analyticsRepo)
	router := apihttp.NewRouter(logger, sessionSvc, authHandler, catalogHandler, orderHandler, adminHandler)

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.Info("starting server", zap.String("port", cfg.HTTPPort))

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("server error", zap.Error(err))
	}
}
