package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"srlcanvas/api/internal/app"
	"srlcanvas/api/internal/auth"
	"srlcanvas/api/internal/config"
	"srlcanvas/api/internal/store"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	applied, err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir)
	if err != nil {
		log.Fatalf("migrations failed: %v", err)
	}
	if len(applied) > 0 {
		log.Printf("applied migrations: %s", strings.Join(applied, ", "))
	}

	dataStore := store.NewPostgresStore(db)

	var service *app.Service
	if strings.TrimSpace(cfg.RedisURL) != "" {
		log.Printf("Using Redis for token revocation")
		denylist, err := auth.NewRedisDenylist(cfg.RedisURL)
		if err != nil {
			log.Fatalf("redis configuration failed: %v", err)
		}
		if err := denylist.Ping(ctx); err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		defer denylist.Close()
		service = app.NewServiceWithDenylist(cfg, dataStore, denylist)
	} else {
		log.Printf("Using in-process token revocation")
		service = app.NewService(cfg, dataStore)
	}

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("SRL Canvas API listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
