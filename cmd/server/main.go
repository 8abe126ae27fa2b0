package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"accesscontrol/config"
	_ "accesscontrol/docs"
	"accesscontrol/internal/adapters/auth"
	"accesscontrol/internal/adapters/controlid"
	"accesscontrol/internal/adapters/email"
	"accesscontrol/internal/adapters/storage"
	httpDelivery "accesscontrol/internal/delivery/http"
	"accesscontrol/internal/delivery/http/controllers"
	"accesscontrol/internal/delivery/http/middleware"
	"accesscontrol/internal/lib/sl"
	"accesscontrol/internal/realtime"
	"accesscontrol/internal/repository/postgres"
	"accesscontrol/internal/services"
)

// @title Access Control Enrollment API
// @version 1.0
// @description Invite tokens, resident enrollment and device synchronization.
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger := config.NewLogger(cfg.Environment, cfg.LogLevel)

	db, err := sql.Open("postgres", cfg.DBUrl)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		log.Fatalf("failed to ping database: %v", err)
	}
	logger.Info("connected to database")

	// Repositories
	inviteRepo := postgres.NewInviteRepository(db)
	siteRepo := postgres.NewSiteRepository(db)
	deviceRepo := postgres.NewDeviceRepository(db)
	enrollmentStore := postgres.NewEnrollmentStore(db)

	// Adapters
	mailer, err := email.NewMailer(email.MailerConfig{
		Provider:    cfg.Email.Provider,
		FromAddress: cfg.Email.FromAddress,
		FromName:    cfg.Email.FromName,
		SES: email.SESConfig{
			Region:             cfg.Email.AWSRegion,
			AccessKeyID:        cfg.Email.AWSAccessKeyID,
			SecretAccessKey:    cfg.Email.AWSSecretAccessKey,
			InsecureSkipVerify: cfg.Email.SESInsecureSkipVerify,
		},
	}, logger)
	if err != nil {
		log.Fatalf("failed to create mailer: %v", err)
	}
	photoStore, err := storage.NewLocalPhotoStore(cfg.PhotoDir, cfg.PhotoURL, cfg.PhotoMaxBytes)
	if err != nil {
		log.Fatalf("failed to create photo store: %v", err)
	}
	pusher := controlid.NewClient(&http.Client{}, cfg.ControlIDAPIKey)
	verifier := auth.NewJWTVerifier(cfg.JWTSecret)
	hub := realtime.NewHub(logger, realtime.DefaultQueueSize)

	// Services
	emailService := services.NewEmailService(mailer, email.NewTemplateRenderer(), logger)
	inviteService := services.NewInviteService(inviteRepo, siteRepo, emailService, logger, cfg.InviteTTL)
	deviceSync := services.NewDeviceSyncService(deviceRepo, pusher, hub, logger, cfg.DeviceSyncTimeout, cfg.DeviceSyncMaxParallel)
	enrollmentService := services.NewEnrollmentService(enrollmentStore, inviteRepo, photoStore, deviceSync, hub, logger, cfg.RequestTimeout)

	// Delivery
	inviteController := controllers.NewInviteController(logger, inviteService)
	enrollmentController := controllers.NewEnrollmentController(logger, enrollmentService, deviceSync, cfg.PhotoMaxBytes)
	router := httpDelivery.NewRouter(inviteController, enrollmentController, realtime.NewServer(hub, logger), verifier, logger)
	handler := middleware.LoggingMiddleware(logger, middleware.CORS(cfg.AllowedOrigins(), router))

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.RequestTimeout,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("server starting", "port", cfg.Port, "env", cfg.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", sl.Err(err))
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("http shutdown", sl.Err(err))
	}
	if err := enrollmentService.Shutdown(ctx); err != nil {
		logger.Warn("device sync still in flight at shutdown", sl.Err(err))
	}
	hub.Close()
	logger.Info("stopped")
}
