package main

import (
	"context"
	"log"

	"github.com/labstack/echo/v4"

	"github.com/anovik/eventflow/outbox/echoinbox"

	"github.com/anovik/eventflow-example"
	"github.com/anovik/eventflow-example/account"
)

// balances is a trivial read model fed by the outbox webhook. Notifications
// arrive at-least-once so updates are keyed by account id and stay
// idempotent
var balances = map[string]int{}

func main() {
	e := echo.New()

	e.POST("/outbox", echoinbox.Wrap(example.NewEncoder(), project))

	log.Fatal(e.Start(":8081"))
}

func project(_ context.Context, item echoinbox.Item) error {
	switch n := item.Notification.(type) {
	case account.AccountGreeting:
		log.Printf("welcome %s (%s)", n.Holder, n.AccountID)

	case account.BalanceChanged:
		balances[n.AccountID] = n.Balance

		log.Printf("account %s balance is now %d", n.AccountID, n.Balance)

	case account.WithdrawalDeclined:
		log.Printf("account %s declined withdrawal of %d", n.AccountID, n.Amount)
	}

	return nil
}
