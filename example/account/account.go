// Package account is an example domain model - a bank account aggregate
// expressed as a pure decide / transition pair
package account

import (
	"github.com/anovik/eventflow/backend"
	"github.com/anovik/eventflow/decision"
)

// Rejection is a domain-level reason a command or event was declined
type Rejection string

const (
	// RejectionAlreadyOpened indicates the account exists already
	RejectionAlreadyOpened Rejection = "AccountAlreadyOpened"

	// RejectionNotOpened indicates the account has not been opened yet
	RejectionNotOpened Rejection = "AccountNotOpened"

	// RejectionInsufficientFunds indicates the balance cannot cover a withdrawal
	RejectionInsufficientFunds Rejection = "InsufficientFunds"

	// RejectionInvalidAmount indicates a non-positive amount
	RejectionInvalidAmount Rejection = "InvalidAmount"

	// RejectionUnknownCommand indicates a command the model does not understand
	RejectionUnknownCommand Rejection = "UnknownCommand"

	// RejectionUnknownEvent indicates a journaled event the model cannot fold
	RejectionUnknownEvent Rejection = "UnknownEvent"
)

// Account represents account aggregate state
type Account struct {
	Holder  string `json:"holder"`
	Balance int    `json:"balance"`
	Opened  bool   `json:"opened"`
}

// Command is the closed set of account commands
type Command interface{ isCommand() }

// OpenAccount opens a new account for holder
type OpenAccount struct {
	Holder string `json:"holder"`
}

// Deposit adds money to an open account
type Deposit struct {
	Amount int `json:"amount"`
}

// Withdraw removes money from an open account
type Withdraw struct {
	Amount int `json:"amount"`
}

func (OpenAccount) isCommand() {}
func (Deposit) isCommand()     {}
func (Withdraw) isCommand()    {}

// Response is the decision shape the account decider produces
type Response = decision.Response[Rejection, Event, Notification, struct{}]

// Model implements the backend capability for accounts
type Model struct{}

// Initial returns the state of a stream with no events
func (Model) Initial() Account { return Account{} }

// Transition folds a single event into the account state
func (Model) Transition(s Account, e Event) (Account, []Rejection) {
	switch evt := e.(type) {
	case AccountOpened:
		if s.Opened {
			return s, []Rejection{RejectionAlreadyOpened}
		}

		s.Opened = true
		s.Holder = evt.Holder

		return s, nil

	case DepositMade:
		if !s.Opened {
			return s, []Rejection{RejectionNotOpened}
		}

		s.Balance += evt.Amount

		return s, nil

	case WithdrawalMade:
		if !s.Opened {
			return s, []Rejection{RejectionNotOpened}
		}

		if s.Balance < evt.Amount {
			return s, []Rejection{RejectionInsufficientFunds}
		}

		s.Balance -= evt.Amount

		return s, nil
	}

	return s, []Rejection{RejectionUnknownEvent}
}

// Decide runs a command against the current account state
func (Model) Decide(s Account, cmd backend.CommandMessage[Command]) Response {
	switch c := cmd.Payload.(type) {
	case OpenAccount:
		if s.Opened {
			return reject(RejectionAlreadyOpened)
		}

		return accept(AccountOpened{Holder: c.Holder}).
			Publish(AccountGreeting{AccountID: cmd.Address, Holder: c.Holder})

	case Deposit:
		if c.Amount <= 0 {
			return reject(RejectionInvalidAmount)
		}

		if !s.Opened {
			return reject(RejectionNotOpened)
		}

		return accept(DepositMade{Amount: c.Amount}).
			Publish(BalanceChanged{
				AccountID: cmd.Address,
				Balance:   s.Balance + c.Amount,
				Delta:     c.Amount,
			})

	case Withdraw:
		if c.Amount <= 0 {
			return reject(RejectionInvalidAmount)
		}

		if !s.Opened {
			return reject(RejectionNotOpened)
		}

		if s.Balance < c.Amount {
			return reject(RejectionInsufficientFunds).
				PublishOnRejection(WithdrawalDeclined{
					AccountID: cmd.Address,
					Amount:    c.Amount,
				})
		}

		return accept(WithdrawalMade{Amount: c.Amount}).
			Publish(BalanceChanged{
				AccountID: cmd.Address,
				Balance:   s.Balance - c.Amount,
				Delta:     -c.Amount,
			})
	}

	return reject(RejectionUnknownCommand)
}

func accept(e Event) Response {
	return decision.Of[Notification](decision.Accept[Rejection](e))
}

func reject(r Rejection) Response {
	return decision.Of[Notification](decision.Reject[Event, struct{}](r))
}
