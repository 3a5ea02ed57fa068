package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/pcforge/storefront/internal/circuitbreaker"
	"github.com/pcforge/storefront/internal/config"
	"github.com/pcforge/storefront/internal/events"
	"github.com/pcforge/storefront/internal/idempotency"
	"github.com/pcforge/storefront/internal/orders"
	"github.com/pcforge/storefront/internal/payments"
	"github.com/pcforge/storefront/internal/websocket"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(logrus.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}

	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to database")
	}
	defer db.Close()

	// Wait for database to be ready
	for i := 0; i < 30; i++ {
		if err := db.Ping(); err == nil {
			logger.Info("Database connection established")
			break
		}
		logger.Info("Waiting for database...")
		time.Sleep(2 * time.Second)
	}

	store := orders.NewPostgresStore(db)
	if err := store.CreateSchema(); err != nil {
		logger.WithError(err).Fatal("Failed to create schema")
	}

	producer, err := events.NewKafkaProducer(cfg.KafkaBrokers, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create Kafka producer")
	}
	defer producer.Close()

	idempotencyStore := idempotency.NewRedisStore(cfg.RedisAddr, "storefront", 24*time.Hour)
	defer idempotencyStore.Close()

	gatewayBreaker := circuitbreaker.New(circuitbreaker.Config{
		Name:        "payment-gateway",
		MaxFailures: 5,
		CoolDown:    30 * time.Second,
		HalfOpenMax: 1,
	}, logger)
	gateway := payments.NewGatewayClient(cfg.GatewayURL, gatewayBreaker, logger)
	verifier := payments.NewVerifier(cfg.PaymentSecret)

	service := orders.NewService(store, gateway, verifier, producer, cfg.Currency, logger)

	wsHub := websocket.NewHub(logger)
	go wsHub.Run()

	handler := orders.NewHandler(service, idempotencyStore, logger)
	handler.SetWebSocketHub(wsHub)

	router := mux.NewRouter()
	router.HandleFunc("/health", healthCheck(db)).Methods("GET")
	router.HandleFunc("/orders", handler.CreateOrder).Methods("POST")
	router.HandleFunc("/orders", handler.ListOrders).Methods("GET")
	router.HandleFunc("/orders/{id}", handler.GetOrder).Methods("GET")
	router.HandleFunc("/orders/{id}/cancel", handler.CancelOrder).Methods("POST")
	router.HandleFunc("/orders/{id}/status", handler.UpdateStatus).Methods("PUT")
	router.HandleFunc("/orders/{id}/payment/verify", handler.VerifyPayment).Methods("POST")
	router.HandleFunc("/ws", wsHub.HandleWebSocket)

	router.Use(loggingMiddleware(logger))

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.WithField("port", cfg.Port).Info("Starting storefront service")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Failed to start server")
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}

	logger.Info("Server gracefully stopped")
}

func healthCheck(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := db.Ping(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unhealthy","service":"storefront","error":"database connection failed"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy","service":"storefront"}`))
	}
}

func loggingMiddleware(logger *logrus.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			logger.WithFields(logrus.Fields{
				"method":   r.Method,
				"path":     r.URL.Path,
				"duration": time.Since(start).String(),
			}).Info("Request processed")
		})
	}
}
