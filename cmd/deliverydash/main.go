package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"deliverydash/backend"
	"deliverydash/config"
	"deliverydash/engine"
	"deliverydash/messaging"
	"deliverydash/statecache"
	"deliverydash/store"
	"deliverydash/www"
)

var Version = "dev"

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "deliverydash.yaml", "path to config file")
	flag.Parse()

	if *showVersion {
		fmt.Println("deliverydash", Version)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	// Database
	db, err := store.Open(&cfg.Database)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()
	log.Printf("deliverydash: database open (%s)", cfg.Database.Driver)

	// Redis position cache
	var cache *statecache.RedisStore
	if cfg.Redis.Address != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Printf("deliverydash: redis not available (%v), running without cache", err)
			redisClient.Close()
		} else {
			log.Printf("deliverydash: redis connected (%s)", cfg.Redis.Address)
			cache = statecache.NewRedisStore(redisClient, cfg.Redis.TTL)
			defer cache.Close()
		}
		cancel()
	}

	// Messaging client
	msgClient := messaging.NewClient(&cfg.Messaging)
	if msgClient.Enabled() {
		if err := msgClient.Connect(); err != nil {
			log.Printf("deliverydash: messaging connect failed (%v)", err)
		} else {
			log.Printf("deliverydash: messaging connected (%s)", cfg.Messaging.Backend)
		}
	}
	defer msgClient.Close()

	// Delivery backend
	client := backend.NewClient(cfg.Backend.BaseURL, cfg.Backend.Timeout)

	// Engine
	eng := engine.New(engine.Config{
		AppConfig:  cfg,
		ConfigPath: *configPath,
		DB:         db,
		Backend:    client,
		Cache:      cache,
		MsgClient:  msgClient,
	})
	eng.Start()
	defer eng.Stop()

	// Outbox drainer
	if msgClient.Enabled() {
		drainer := messaging.NewOutboxDrainer(db, msgClient, cfg.Messaging.OutboxDrainInterval)
		drainer.Start()
		defer drainer.Stop()
	}

	// Web server
	handler, stopWeb := www.NewRouter(eng)

	addr := fmt.Sprintf("%s:%d", cfg.Web.Host, cfg.Web.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	go func() {
		log.Printf("deliverydash: web server listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("web server: %v", err)
		}
	}()

	log.Printf("deliverydash: ready")

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Printf("deliverydash: shutting down...")
	stopWeb()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	srv.Shutdown(shutdownCtx)

	log.Printf("deliverydash: stopped")
}
