// cmd/server/main.go is the application entry point.
// It wires together all layers and starts the HTTP server.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/felicity-portal/enrollment/internal/cache"
	"github.com/felicity-portal/enrollment/internal/config"
	"github.com/felicity-portal/enrollment/internal/database"
	"github.com/felicity-portal/enrollment/internal/handler"
	"github.com/felicity-portal/enrollment/internal/notifier"
	"github.com/felicity-portal/enrollment/internal/repository"
	"github.com/felicity-portal/enrollment/internal/service"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

func main() {
	ctx := context.Background()
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(log)

	cfg, err := config.Load()
	if err != nil {
		log.Error("config", "error", err)
		os.Exit(1)
	}

	// ── 1. Connect to PostgreSQL and apply the schema ─────────────────────
	pool, err := database.NewPool(ctx, cfg.DSN())
	if err != nil {
		log.Error("database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	if err := database.Migrate(ctx, pool); err != nil {
		log.Error("migrate", "error", err)
		os.Exit(1)
	}
	log.Info("connected to postgres")

	// ── 2. Optional collaborators ─────────────────────────────────────────
	deps := service.Deps{
		Events:        repository.NewEventRepository(pool),
		Registrations: repository.NewRegistrationRepository(pool),
		Logger:        log,
	}

	// Notifications are best-effort; a missing broker only disables them.
	if cfg.AMQPURL != "" {
		n, err := notifier.New(cfg.AMQPURL)
		if err != nil {
			log.Warn("notifier disabled", "error", err)
		} else {
			defer n.Close()
			deps.Notifier = n
			log.Info("connected to rabbitmq")
		}
	}
	if cfg.RedisAddr != "" {
		c, err := cache.New(ctx, cfg.RedisAddr, cfg.CacheTTL)
		if err != nil {
			log.Warn("listing cache disabled", "error", err)
		} else {
			defer c.Close()
			deps.Cache = c
			log.Info("connected to redis")
		}
	}

	// ── 3. Wire up layers and build the router ────────────────────────────
	svc := service.New(deps)
	h := handler.New(svc)

	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer) // recover from panics, return 500
	r.Use(chimiddleware.RequestID) // attach request IDs
	r.Use(chimiddleware.RealIP)    // trust X-Forwarded-For
	r.Use(handler.Logger)          // structured access log
	r.Use(handler.CORS)            // permissive CORS for browser clients
	r.Use(handler.Identity)        // principal headers from the gateway

	r.Get("/health", handler.HealthCheck)

	r.Route("/events", func(r chi.Router) {
		r.Post("/", h.CreateEvent)
		r.Get("/", h.ListEvents)
		r.Get("/{id}", h.GetEvent)
		r.Put("/{id}", h.UpdateEvent)
		r.Post("/{id}/publish", h.PublishEvent)
		r.Patch("/{id}/status", h.UpdateEventStatus)
		r.Post("/{id}/register", h.Register)
		r.Post("/{id}/purchase", h.Purchase)
		r.Get("/{id}/registrations", h.ListEventRegistrations)
	})

	r.Route("/registrations", func(r chi.Router) {
		r.Get("/mine", h.MyRegistrations)
		r.Post("/{id}/cancel", h.CancelRegistration)
		r.Get("/{id}/ticket", h.Ticket)
		r.Post("/{id}/payment-proof", h.UploadPaymentProof)
		r.Post("/{id}/approve", h.ApproveOrder)
		r.Post("/{id}/reject", h.RejectOrder)
	})

	r.Get("/payments/pending", h.PendingPayments)
	r.Post("/checkin", h.CheckIn)

	// ── 4. Start server with graceful shutdown ────────────────────────────
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("server listening", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}
