package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"

	"github.com/reachforge/lead-engine/internal/api"
	"github.com/reachforge/lead-engine/internal/batch"
	"github.com/reachforge/lead-engine/internal/config"
	"github.com/reachforge/lead-engine/internal/gateway"
	"github.com/reachforge/lead-engine/internal/inbound"
	"github.com/reachforge/lead-engine/internal/loop"
	"github.com/reachforge/lead-engine/internal/repository/postgres"
	"github.com/reachforge/lead-engine/internal/scheduler"
)

func main() {
	log.Println("Starting lead-engine API server...")

	cfg, err := config.LoadFromEnv("config/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetimeDuration())

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer pingCancel()
	if err := db.PingContext(pingCtx); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}
	log.Println("Connected to database")

	var rdb *redis.Client
	if cfg.Redis.Enabled {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			log.Printf("Redis unavailable, falling back to Postgres locks: %v", err)
			rdb = nil
		} else {
			log.Println("Connected to Redis")
		}
	}

	leadRepo := postgres.NewLeadRepo(db)

	selector := batch.NewSelector(leadRepo, rdb, db, cfg.Engine)

	smsClient := gateway.NewSMSClient(cfg.Gateway)
	loopStore := loop.NewStore(db)
	engine := loop.NewEngine(loopStore, smsClient, loop.NewRenderer(cfg.Gateway.SenderName))
	engine.SetStepDelay(cfg.Engine.StepInterval())

	router := inbound.NewRouter(leadRepo, inbound.NewStore(db), loopStore, rdb, db)

	executor := gateway.NewExecutorClient(cfg.Executor)
	sched := scheduler.New(leadRepo, executor, cfg.Scheduler.BatchLimit)

	rules := cfg.Scheduler.Rules
	if len(rules) == 0 {
		rules = config.DefaultTransitionRules()
	}

	handlers := api.NewHandlers(selector, engine, router, sched, leadRepo, rules, cfg.Webhook.Token)
	server := api.NewServer(handlers, api.NewHealthChecker(db, rdb))

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		addr := fmt.Sprintf("%s:%d", cfg.Server.GetHost(), cfg.Server.Port)
		log.Printf("Listening on %s", addr)
		if err := server.ListenAndServe(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-done
	log.Println("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	log.Println("Server stopped")
}
