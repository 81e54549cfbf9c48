package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"

	"github.com/studygloqe/relay/internal/broker"
	"github.com/studygloqe/relay/internal/config"
	"github.com/studygloqe/relay/internal/httputil"
	mw "github.com/studygloqe/relay/internal/middleware"
	"github.com/studygloqe/relay/internal/relay"
	"github.com/studygloqe/relay/internal/stream"
	"github.com/studygloqe/relay/internal/token"
)

// shutdownWait bounds how long in-flight stream writes may delay exit.
const shutdownWait = 5 * time.Second

func main() {
	// .env is optional; real deployments set the environment directly.
	godotenv.Load() //nolint:errcheck

	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Registry and dispatcher: the one shared mutable structure and the
	// fan-out path reading it.
	registry := relay.NewRegistry()
	dispatcher := relay.NewDispatcher(registry)

	// Broker consumer and producer. A missing or unreachable broker leaves
	// the relay running in degraded mode: streams, stats, health and token
	// issuance stay available with no live events.
	var consumer *broker.Consumer
	var publisher stream.EventPublisher

	if cfg.KafkaBootstrapServer == "" {
		log.Println("WARNING: KAFKA_BOOTSTRAP_SERVER not set (running without live events)")
	} else {
		kafkaCfg := broker.Config{
			BootstrapServer: cfg.KafkaBootstrapServer,
			APIKey:          cfg.KafkaAPIKey,
			APISecret:       cfg.KafkaAPISecret,
			Topic:           cfg.KafkaTopic,
			ConsumerGroup:   cfg.KafkaConsumerGroup,
		}

		var err error
		consumer, err = broker.NewConsumer(kafkaCfg, dispatcher)
		if err != nil {
			log.Printf("WARNING: kafka consumer setup failed: %v", err)
		} else {
			go func() {
				if err := consumer.Connect(ctx); err != nil {
					log.Printf("ERROR: kafka connection failed, relay degraded: %v", err)
					return
				}
				consumer.Run(ctx)
			}()
		}

		producer, err := broker.NewProducer(kafkaCfg)
		if err != nil {
			log.Printf("WARNING: kafka producer setup failed: %v", err)
		} else {
			defer producer.Close() //nolint:errcheck // best-effort cleanup on shutdown
			publisher = producer
		}
	}

	// Router
	r := mux.NewRouter()

	// Rate limiting: 100 req/s per IP with burst of 200
	r.Use(mw.RateLimitMiddleware(100, 200))

	r.HandleFunc("/healthz", healthzHandler).Methods(http.MethodGet)

	streamHandlers := stream.NewHandlers(registry, publisher)
	streamHandlers.RegisterRoutes(r)

	issuer := token.NewJWTIssuer(cfg.RoomTokenSecret, roomTokenTTL(cfg))
	token.NewHandlers(issuer).RegisterRoutes(r)

	// CORS wraps the entire router so OPTIONS preflight requests are
	// handled before mux routing (which would 404 on OPTIONS).
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           corsMiddleware(cfg.AllowedOrigins, r),
		ReadHeaderTimeout: 10 * time.Second,
		// No ReadTimeout/WriteTimeout: SSE responses stay open indefinitely.
		MaxHeaderBytes: 1 << 20, // 1 MB
	}

	// Graceful shutdown: stop consuming, disconnect from the broker, signal
	// open streams to end, then give in-flight writes a bounded wait.
	go func() {
		<-ctx.Done()
		log.Println("Shutting down relay...")

		if consumer != nil {
			if err := consumer.Disconnect(); err != nil {
				log.Printf("WARNING: broker disconnect failed: %v", err)
			}
		}
		registry.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownWait)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("WARNING: server shutdown timed out: %v", err)
			srv.Close() //nolint:errcheck
		}
	}()

	log.Printf("Starting event relay on :%s", cfg.Port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Server failed to start: %v", err)
	}

	log.Println("Server stopped")
}

func roomTokenTTL(cfg *config.Config) time.Duration {
	seconds, err := strconv.Atoi(cfg.RoomTokenTTLSeconds)
	if err != nil || seconds <= 0 {
		log.Printf("WARNING: invalid ROOM_TOKEN_TTL_SECONDS %q, using 3600", cfg.RoomTokenTTLSeconds)
		seconds = 3600
	}
	return time.Duration(seconds) * time.Second
}

func healthzHandler(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func corsMiddleware(allowedOrigins string, next http.Handler) http.Handler {
	if allowedOrigins == "" {
		allowedOrigins = "http://localhost:3000"
	}

	origins := make(map[string]bool)
	for _, o := range strings.Split(allowedOrigins, ",") {
		origins[strings.TrimSpace(o)] = true
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		switch {
		case origins["*"]:
			w.Header().Set("Access-Control-Allow-Origin", "*")
		case origins[origin]:
			w.Header().Set("Access-Control-Allow-Origin", origin)
		case len(origins) == 1:
			// Single origin mode: always set it (for dev convenience)
			for o := range origins {
				w.Header().Set("Access-Control-Allow-Origin", o)
			}
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
