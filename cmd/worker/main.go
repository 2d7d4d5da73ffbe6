package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"geolock/internal/attendance"
	"geolock/internal/config"
	"geolock/internal/queue"
	"geolock/internal/store"
)

// Worker consumes recorded attendance and maintains per-event live counters
// in Redis for the dashboards. It never touches admission decisions; records
// arriving here are already persisted.
func main() {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	redisClient := store.NewRedis(cfg.RedisAddr)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "geolock:attendance")
	}

	messages, err := q.Consume(ctx)
	if err != nil {
		log.Fatalf("queue consume init failed: %v", err)
	}

	log.Println("worker started, waiting for messages...")
	for msg := range messages {
		if msg.Type != "attendance" {
			continue
		}

		var rec attendance.Record
		if err := json.Unmarshal(msg.Body, &rec); err != nil {
			log.Printf("bad attendance message: %v", err)
			continue
		}

		key := fmt.Sprintf("geolock:event:%s:counts", rec.EventID)
		if err := redisClient.Client.HIncrBy(ctx, key, string(rec.Direction), 1).Err(); err != nil {
			log.Printf("counter update failed for event %s: %v", rec.EventID, err)
			continue
		}
		_ = redisClient.Client.HSet(ctx, key, "last_submitted_at", rec.SubmittedAt.Format(time.RFC3339)).Err()

		log.Printf("event %s: counted %s for %s", rec.EventID, rec.Direction, rec.DeviceID)
	}

	log.Println("worker stopped")
}
