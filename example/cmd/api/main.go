package main

import (
	"log"

	"github.com/labstack/echo/v4"

	"github.com/anovik/eventflow"

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

	b := example.NewBackend(es)

	defer func() {
		_ = b.Close()
	}()

	e := echo.New()

	e.POST("/accounts", example.NewOpenAccountHandlerFunc(b))
	e.POST("/accounts/:id/deposits", example.NewDepositHandlerFunc(b))
	e.POST("/accounts/:id/withdrawals", example.NewWithdrawHandlerFunc(b))

	checkErr(e.Start(":8080"))
}

func checkErr(err error) {
	if err != nil {
		log.Fatal(err)
	}
}
