package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/kafka-go"

	"github.com/josh-kwaku/banking-transfers/internal/config"
	"github.com/josh-kwaku/banking-transfers/internal/handler"
	"github.com/josh-kwaku/banking-transfers/internal/kyc"
	"github.com/josh-kwaku/banking-transfers/internal/logging"
	"github.com/josh-kwaku/banking-transfers/internal/middleware"
	"github.com/josh-kwaku/banking-transfers/internal/notification"
	"github.com/josh-kwaku/banking-transfers/internal/repository"
	"github.com/josh-kwaku/banking-transfers/internal/service/transfer"
	"github.com/josh-kwaku/banking-transfers/internal/session"
	"github.com/josh-kwaku/banking-transfers/internal/verification"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("could not read .env", "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logging.Init("transfers-api", cfg.LogLevel, cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := repository.NewPostgresDB(ctx, cfg.DatabaseURL, repository.PoolConfig{
		MaxOpenConns:     cfg.DBMaxOpenConns,
		MaxIdleConns:     cfg.DBMaxIdleConns,
		ConnMaxLifetimeS: cfg.DBConnMaxLifetimeS,
		ConnMaxIdleTimeS: cfg.DBConnMaxIdleTimeS,
	}, 30)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	var dispatcher verification.Dispatcher
	checks := map[string]handler.Check{
		"database": db.PingContext,
	}
	if len(cfg.KafkaBrokers) > 0 {
		kd := notification.NewKafkaDispatcher(cfg.KafkaBrokers, cfg.KafkaCodeTopic, cfg.KafkaWriteTimeout)
		defer func() {
			if err := kd.Close(); err != nil {
				slog.Error("failed to close kafka writer", "error", err)
			}
		}()
		dispatcher = kd
		checks["kafka"] = kafkaCheck(cfg.KafkaBrokers)
		slog.Info("verification codes dispatched via kafka", "topic", cfg.KafkaCodeTopic)
	} else {
		dispatcher = notification.NewLogDispatcher(cfg.IsDevelopment())
		slog.Warn("KAFKA_BROKERS not set, verification codes go to the log")
	}

	sessions := session.NewMemoryStore()
	if cfg.SessionSweepInterval > 0 {
		go sessions.RunSweeper(ctx, cfg.SessionSweepInterval)
	}

	users := repository.NewUserRepository(db)
	idempotency := repository.NewIdempotencyRepository(db)
	go purgeIdempotencyKeys(ctx, idempotency, time.Hour)
	manager := transfer.NewManager(transfer.Repositories{
		Accounts:      repository.NewAccountRepository(db),
		SubAccounts:   repository.NewSubAccountCreditRepository(db),
		Transactions:  repository.NewTransactionRepository(db),
		Transfers:     repository.NewTransferRepository(db),
		Events:        repository.NewTransferEventRepository(db),
		Beneficiaries: repository.NewBeneficiaryRepository(db),
	}, repository.NewDB(db), verification.NewIssuer(cfg.CodeHashCost), dispatcher, transfer.OptionsFromConfig(cfg))

	creditHandler := handler.NewCreditTransferHandler(manager, sessions)
	transferHandler := handler.NewTransferHandler(manager)
	healthHandler := handler.NewHealthHandler(checks)

	router := mux.NewRouter()
	router.Use(middleware.Recovery, middleware.Tracing, middleware.Metrics)

	router.HandleFunc("/health/live", healthHandler.Liveness).Methods(http.MethodGet)
	router.HandleFunc("/health/ready", healthHandler.Readiness).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	api := router.PathPrefix("/api/v1").Subrouter()
	api.Use(middleware.Auth(cfg.JWTSecret), middleware.Logging, middleware.KYC(kyc.NewGate(users)))

	api.HandleFunc("/sub-accounts/{id}/transfers", creditHandler.Initiate).Methods(http.MethodPost)
	api.HandleFunc("/credit-transfers/confirm", creditHandler.Confirm).Methods(http.MethodPost)
	api.HandleFunc("/credit-transfers/pending", creditHandler.Cancel).Methods(http.MethodDelete)

	api.Handle("/transfers", middleware.Idempotency(idempotency, cfg.IdempotencyTTL)(http.HandlerFunc(transferHandler.Create))).Methods(http.MethodPost)
	api.HandleFunc("/transfers/{id}", transferHandler.Get).Methods(http.MethodGet)
	api.HandleFunc("/transfers/{id}/validate", transferHandler.Validate).Methods(http.MethodPost)
	api.HandleFunc("/transfers/{id}/resend", transferHandler.Resend).Methods(http.MethodPost)
	api.HandleFunc("/transfers/{id}/cancel", transferHandler.Cancel).Methods(http.MethodPost)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		slog.Info("server started", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()

	slog.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
		return
	}
	slog.Info("server stopped")
}

// kafkaCheck reports ready when any broker accepts a connection.
func kafkaCheck(brokers []string) handler.Check {
	return func(ctx context.Context) error {
		var lastErr error
		for _, b := range brokers {
			conn, err := kafka.DialContext(ctx, "tcp", b)
			if err != nil {
				lastErr = err
				continue
			}
			return conn.Close()
		}
		return fmt.Errorf("kafka: no broker reachable: %w", lastErr)
	}
}

func purgeIdempotencyKeys(ctx context.Context, repo *repository.IdempotencyRepository, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := repo.DeleteExpired(ctx)
			if err != nil {
				slog.Error("idempotency key purge failed", "error", err)
				continue
			}
			if n > 0 {
				slog.Debug("expired idempotency keys purged", "removed", n)
			}
		}
	}
}
