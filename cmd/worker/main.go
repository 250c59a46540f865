package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/reachforge/lead-engine/internal/config"
	"github.com/reachforge/lead-engine/internal/gateway"
	"github.com/reachforge/lead-engine/internal/loop"
	"github.com/reachforge/lead-engine/internal/repository/postgres"
	"github.com/reachforge/lead-engine/internal/scheduler"
	"github.com/reachforge/lead-engine/internal/worker"
)

func main() {
	log.Println("Starting lead-engine worker...")

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
	if err := db.PingContext(pingCtx); err != nil {
		pingCancel()
		log.Fatalf("Failed to ping database: %v", err)
	}
	pingCancel()
	log.Println("Connected to database")

	leadRepo := postgres.NewLeadRepo(db)

	smsClient := gateway.NewSMSClient(cfg.Gateway)
	engine := loop.NewEngine(loop.NewStore(db), smsClient, loop.NewRenderer(cfg.Gateway.SenderName))
	engine.SetStepDelay(cfg.Engine.StepInterval())

	executor := gateway.NewExecutorClient(cfg.Executor)
	sched := scheduler.New(leadRepo, executor, cfg.Scheduler.BatchLimit)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup

	if cfg.Scheduler.Enabled {
		sw := worker.NewSchedulerWorker(db, sched, cfg.Scheduler.Rules, cfg.Scheduler.TickInterval())
		wg.Add(1)
		go func() {
			defer wg.Done()
			sw.Start(ctx)
		}()
	} else {
		log.Println("Inactivity scheduler disabled by config")
	}

	lw := worker.NewLoopWorker(db, engine, 0)
	wg.Add(1)
	go func() {
		defer wg.Done()
		lw.Start(ctx)
	}()

	qs := worker.NewQueueSweeper(db)
	wg.Add(1)
	go func() {
		defer wg.Done()
		qs.Start(ctx)
	}()

	// Heartbeat so a silent worker is visible in logs.
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				log.Println("Worker heartbeat")
			}
		}
	}()

	log.Println("Worker running...")

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	<-done

	log.Println("Shutting down...")
	cancel()
	wg.Wait()
	log.Println("Worker stopped")
}
