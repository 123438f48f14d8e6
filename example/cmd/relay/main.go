package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/anovik/eventflow"
	"github.com/anovik/eventflow/outbox"

	"github.com/anovik/eventflow-example"
)

func main() {
	es, err := eventflow.New(
		example.NewEncoder(),
		eventflow.WithSQLiteDB("accounts.db"),
	)
	checkErr(err)

	defer func() {
		_ = es.Close()
	}()

	url := os.Getenv("OUTBOX_WEBHOOK_URL")

	if url == "" {
		url = "http://localhost:8081/outbox"
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	defer stop()

	relay := outbox.NewRelay(es, outbox.NewWebhookSender(url))

	checkErr(relay.Run(ctx))
}

func checkErr(err error) {
	if err != nil {
		log.Fatal(err)
	}
}
