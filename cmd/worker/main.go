// Worker forwards security events from Kafka to Loki. An offset is committed only after Loki
// accepted the event or the push was retried pushAttempts times, so delivery is at-least-once.
// Set KAFKA_BROKERS, SECURITY_KAFKA_TOPIC, KAFKA_GROUP_ID, and LOKI_URL.
package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/segmentio/kafka-go"

	"accessguard/internal/config"
	"accessguard/internal/telemetry/loki"
)

const (
	pushAttempts = 3
	pushTimeout  = 10 * time.Second
	retryBackoff = 2 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	brokers := cfg.KafkaBrokersList()
	switch {
	case len(brokers) == 0:
		log.Fatal("worker: KAFKA_BROKERS is required")
	case cfg.LokiURL == "":
		log.Fatal("worker: LOKI_URL is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    cfg.SecurityKafkaTopic,
		GroupID:  cfg.KafkaGroupID,
		MinBytes: 1,
		MaxBytes: 10e6,
		MaxWait:  time.Second,
	})
	defer reader.Close()

	log.Printf("worker: forwarding %s (group %s) to %s", cfg.SecurityKafkaTopic, cfg.KafkaGroupID, cfg.LokiURL)
	forwarded, dropped := 0, 0
	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Printf("worker: stopped after forwarding %d events (%d dropped)", forwarded, dropped)
				return
			}
			log.Printf("worker: kafka fetch: %v", err)
			continue
		}
		if forward(ctx, cfg.LokiURL, msg) {
			forwarded++
		} else if ctx.Err() != nil {
			// Not committed; redelivered to the group after restart.
			continue
		} else {
			dropped++
		}
		if err := reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			log.Printf("worker: commit offset %d: %v", msg.Offset, err)
		}
	}
}

// forward pushes one event, retrying transient failures. It reports whether Loki accepted it.
func forward(ctx context.Context, lokiURL string, msg kafka.Message) bool {
	for attempt := 1; attempt <= pushAttempts; attempt++ {
		pushCtx, cancel := context.WithTimeout(ctx, pushTimeout)
		err := loki.PushEventJSON(pushCtx, lokiURL, msg.Value)
		cancel()
		if err == nil {
			return true
		}
		log.Printf("worker: loki push of offset %d failed (attempt %d/%d): %v", msg.Offset, attempt, pushAttempts, err)
		select {
		case <-ctx.Done():
			return false
		case <-time.After(time.Duration(attempt) * retryBackoff):
		}
	}
	return false
}
