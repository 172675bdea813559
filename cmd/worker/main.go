package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"qrattend/internal/config"
	"qrattend/internal/dispatch"
	"qrattend/internal/mailer"
	"qrattend/internal/queue"
	"qrattend/internal/store"
	"qrattend/internal/subject"
)

// Worker consumes QR delivery jobs from the Redis queue and mails the codes.
func main() {
	cfg := config.Load()

	// Graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.RedisAddr == "" {
		log.Fatalf("worker needs REDIS_ADDR; with QUEUE_BACKEND=memory the api process delivers in-process")
	}

	db, err := store.NewDB(cfg.DBDriver, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer db.Close()

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Close()
	if !redisClient.Healthy(ctx) {
		log.Printf("WARNING: redis %s not reachable yet, consumer will keep retrying", cfg.RedisAddr)
	}

	codec, err := cfg.TokenCodec()
	if err != nil {
		log.Fatalf("qr codec: %v", err)
	}
	sender, err := mailer.NewSender(context.Background(), mailer.Settings{
		Transport:         cfg.MailTransport,
		SMTPHost:          cfg.SMTPHost,
		SMTPPort:          cfg.SMTPPort,
		SMTPUser:          cfg.SMTPUser,
		SMTPPass:          cfg.SMTPPass,
		GmailClientID:     cfg.GmailClientID,
		GmailClientSecret: cfg.GmailClientSecret,
		GmailRefreshToken: cfg.GmailRefreshToken,
	})
	if err != nil {
		log.Fatalf("mail transport: %v", err)
	}

	q := queue.NewRedisQueue(redisClient.Client, queue.DefaultKey)
	messages, err := q.Consume(ctx)
	if err != nil {
		log.Fatalf("queue consume init failed: %v", err)
	}

	w := &dispatch.Worker{
		Subjects: subject.NewRepository(db.Client),
		Deliver:  &mailer.QRDelivery{Codec: codec, Sender: sender, From: cfg.MailFrom},
		Timeout:  cfg.MailTimeout,
	}

	log.Println("worker started, waiting for messages...")
	w.Run(ctx, messages)
	log.Println("worker stopped")
}
