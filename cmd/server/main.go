package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"video-accounts/cmd/config"
	"video-accounts/pkg/auth"
	"video-accounts/pkg/database"
	"video-accounts/pkg/handlers"
	"video-accounts/pkg/s3"
	"video-accounts/pkg/service"
)

func newLogger(level string) *logrus.Logger {
	log := logrus.New()
	log.Formatter = &logrus.JSONFormatter{
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "timestamp",
			logrus.FieldKeyLevel: "severity",
			logrus.FieldKeyMsg:   "message",
		},
		TimestampFormat: time.RFC3339Nano,
	}
	log.Out = os.Stdout
	if lvl, err := logrus.ParseLevel(level); err == nil {
		log.SetLevel(lvl)
	}
	return log
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("failed to load config")
	}
	log := newLogger(cfg.LogLevel)

	if err := run(cfg, log); err != nil {
		log.WithError(err).Fatal("server stopped with error")
	}
	log.Info("server stopped")
}

func run(cfg *config.Config, log *logrus.Logger) error {
	db, err := database.Open(cfg.Database, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := database.Close(db); err != nil {
			log.WithError(err).Warn("closing database")
		}
	}()

	// Serving against a missing schema would turn every request into a 500.
	if err := database.Migrate(db); err != nil {
		return err
	}
	log.Info("database schema ensured")

	store := database.NewStore(db, cfg.Database.AcquireTimeout)
	issuer := auth.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)

	var uploader service.Uploader
	if cfg.AWS.S3Bucket != "" {
		exporter, err := s3.NewExporter(cfg.AWS)
		if err != nil {
			return err
		}
		uploader = exporter
		log.WithField("bucket", cfg.AWS.S3Bucket).Info("watch history export enabled")
	}

	accounts := service.NewAccounts(store, issuer)
	watches := service.NewWatches(store, uploader, s3.ExportKey)

	gin.SetMode(gin.ReleaseMode)
	router := handlers.NewRouter(
		handlers.New(accounts, watches, store, log),
		issuer,
		log,
		handlers.RouterOptions{ProtectRenewal: cfg.Auth.ProtectRenewal},
	)

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", srv.Addr).Info("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		log.WithField("signal", sig.String()).Info("shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}
