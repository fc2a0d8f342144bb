package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/dmartins/storefront-core/internal/cart"
	"github.com/dmartins/storefront-core/internal/catalog"
	"github.com/dmartins/storefront-core/internal/checkout"
	"github.com/dmartins/storefront-core/internal/identity"
	"github.com/dmartins/storefront-core/internal/ledger"
	"github.com/dmartins/storefront-core/internal/messaging"
	"github.com/dmartins/storefront-core/internal/telemetry"
)

func main() {
	ctx := context.Background()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	postgresURL := os.Getenv("POSTGRES_URL")
	if postgresURL == "" {
		logger.Error("POSTGRES_URL environment variable is required")
		os.Exit(1)
	}

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, "storefront", "0.1.0")
	if err != nil {
		logger.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(ctx) }()

	metricsHandler, shutdownMeter, err := telemetry.InitMeterProvider("storefront", "0.1.0")
	if err != nil {
		logger.Error("failed to initialize meter", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownMeter(ctx) }()

	db, err := telemetry.OpenDB("postgres", postgresURL)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	if err := db.Ping(); err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	if _, err := db.Exec("SET search_path TO storefront"); err != nil {
		logger.Error("failed to set search_path", "error", err)
		os.Exit(1)
	}

	var producer *messaging.Producer
	kafkaBrokers := os.Getenv("KAFKA_BROKERS")
	if kafkaBrokers != "" {
		brokers := strings.Split(kafkaBrokers, ",")
		producer = messaging.NewProducer(brokers, "ticket.created")
		defer func() { _ = producer.Close() }()
	} else {
		logger.Warn("KAFKA_BROKERS not set, receipt notifications disabled")
	}

	productRepo := catalog.NewProductRepository(db)
	cartRepo := cart.NewCartRepository(db)
	ticketRepo := ledger.NewTicketRepository(db)

	cartService := cart.NewService(cartRepo, productRepo, logger)

	var notifier checkout.Notifier
	if producer != nil {
		notifier = producer
	}
	checkoutService, err := checkout.NewService(cartRepo, productRepo, ticketRepo, notifier, logger)
	if err != nil {
		logger.Error("failed to create checkout service", "error", err)
		os.Exit(1)
	}

	catalogHandler := catalog.NewHandler(productRepo, logger)
	cartHandler := cart.NewHandler(cartService, logger)
	checkoutHandler := checkout.NewHandler(checkoutService, logger)

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", metricsHandler)

	mux.HandleFunc("GET /products", telemetry.WithHTTPRoute(catalogHandler.HandleList))
	mux.HandleFunc("GET /products/{productId}", telemetry.WithHTTPRoute(catalogHandler.HandleGet))
	mux.HandleFunc("POST /products/{productId}/restock", telemetry.WithHTTPRoute(catalogHandler.HandleRestock))

	mux.HandleFunc("GET /cart", telemetry.WithHTTPRoute(identity.Require(cartHandler.HandleGet)))
	mux.HandleFunc("POST /cart/items", telemetry.WithHTTPRoute(identity.Require(cartHandler.HandleAddItem)))
	mux.HandleFunc("PATCH /cart/items/{productId}", telemetry.WithHTTPRoute(identity.Require(cartHandler.HandleUpdateQuantity)))
	mux.HandleFunc("DELETE /cart/items/{productId}", telemetry.WithHTTPRoute(identity.Require(cartHandler.HandleRemoveItem)))
	mux.HandleFunc("DELETE /cart", telemetry.WithHTTPRoute(identity.Require(cartHandler.HandleClear)))

	mux.HandleFunc("POST /checkout", telemetry.WithHTTPRoute(identity.Require(checkoutHandler.HandleCheckout)))
	mux.HandleFunc("GET /tickets", telemetry.WithHTTPRoute(identity.Require(checkoutHandler.HandleListTickets)))
	mux.HandleFunc("GET /tickets/stats", telemetry.WithHTTPRoute(checkoutHandler.HandleStats))
	mux.HandleFunc("GET /tickets/{code}", telemetry.WithHTTPRoute(identity.Require(checkoutHandler.HandleGetTicket)))
	mux.HandleFunc("PATCH /tickets/{code}/status", telemetry.WithHTTPRoute(identity.Require(checkoutHandler.HandleUpdateTicketStatus)))

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	server := &http.Server{
		Addr: ":" + port,
		Handler: otelhttp.NewHandler(mux, "storefront",
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				if r.Pattern != "" {
					return r.Pattern
				}
				return r.Method + " " + r.URL.Path
			}),
		),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting storefront service", "port", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}
