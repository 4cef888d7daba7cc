package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"residency/internal/config"
	"residency/internal/evaluation"
	"residency/internal/notify"
	"residency/internal/queue"
	"residency/internal/store"
)

// Worker consumes notification messages and emails interns about attempts
// awaiting acknowledgement.
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

	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer db.Close()

	redisClient := store.NewRedis(cfg.RedisAddr)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "residency:notifications")
	}

	repo := evaluation.NewRepository(db.Client)
	mailer := notify.NewMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword, cfg.MailFrom, cfg.MailSkip)

	messages, err := q.Consume(ctx)
	if err != nil {
		log.Fatalf("queue consume init failed: %v", err)
	}

	log.Println("worker started, waiting for messages...")
	for msg := range messages {
		if msg.Type != "attempt_pending" {
			continue
		}

		id := string(msg.Body)
		notice, err := repo.GetAttemptNotice(ctx, id)
		if err != nil {
			log.Printf("fetch attempt %s failed: %v", id, err)
			continue
		}
		if notice.Status != evaluation.StatusPendingAck {
			// Acknowledged (or reverted) before we got here; nothing to send.
			continue
		}

		moduleName := evaluation.DisplayName(notice.ModuleCode)
		if err := mailer.PendingAttempt(notice.InternEmail, notice.InternName, moduleName, notice.Seq); err != nil {
			log.Printf("mail for attempt %s failed: %v", id, err)
			continue
		}
		log.Printf("notified %s about %s attempt #%d", notice.InternEmail, notice.ModuleCode, notice.Seq)
	}

	log.Println("worker stopped")
}
