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

	"mediquery-be/internal/config"
	"mediquery-be/pkg/events"
	pktNats "mediquery-be/pkg/nats"
)

// Tails the analytics event stream. Note: the EVENTS stream uses work-queue
// retention, so messages read here are consumed.
func main() {
	cfg := config.Load()

	sub, err := pktNats.NewSubscriber(cfg.Nats.URL)
	if err != nil {
		log.Fatalf("Error: Failed to connect to NATS: %v", err)
	}
	defer sub.Close()

	err = sub.Subscribe("events.>", "events_tail_debug", func(ctx context.Context, event events.Event) error {
		payload, _ := json.MarshalIndent(event.Payload(), "", "  ")
		fmt.Printf("[%s] %s\n%s\n", event.Timestamp().Format(time.RFC3339), event.EventType(), payload)
		return nil
	})
	if err != nil {
		log.Fatalf("Error: Failed to subscribe: %v", err)
	}

	log.Println("Tailing events.> (Ctrl+C to stop)...")
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
}
