// Package example wires the eventflow backend for the account domain and
// exposes http handlers for it
package example

import (
	"github.com/anovik/eventflow"
	"github.com/anovik/eventflow/backend"

	"github.com/anovik/eventflow-example/account"
)

// Backend is the account command handling backend
type Backend = backend.Backend[account.Account, account.Command, account.Event, account.Rejection, account.Notification]

// Command is an account command message
type Command = backend.CommandMessage[account.Command]

// NewEncoder constructs the json encoder with all account event and
// notification types registered
func NewEncoder() *eventflow.JsonEncoder {
	return eventflow.NewJsonEncoder(
		account.AccountOpened{},
		account.DepositMade{},
		account.WithdrawalMade{},
		account.AccountGreeting{},
		account.BalanceChanged{},
		account.WithdrawalDeclined{},
	)
}

// NewBackend wires the account backend over the given store with persisted
// snapshots enabled
func NewBackend(es *eventflow.Store, opts ...backend.Option) *Backend {
	opts = append([]backend.Option{
		backend.WithSnapshotStore(es),
	}, opts...)

	return backend.New[account.Account, account.Command, account.Event, account.Rejection, account.Notification](
		es,
		account.Model{},
		opts...,
	)
}
