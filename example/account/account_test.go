package account_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anovik/eventflow/backend"

	"github.com/anovik/eventflow-example/account"
)

func decide(s account.Account, payload account.Command) account.Response {
	return account.Model{}.Decide(s, backend.CommandMessage[account.Command]{
		ID:      "K1",
		Address: "account-1",
		Payload: payload,
	})
}

func TestShould_Open_Account_And_Greet_Holder(t *testing.T) {
	resp := decide(account.Account{}, account.OpenAccount{Holder: "John Doe"})

	require.True(t, resp.Decision.Accepted())
	assert.Equal(t, []account.Event{account.AccountOpened{Holder: "John Doe"}}, resp.Decision.Events())
	assert.Equal(t, []account.Notification{account.AccountGreeting{AccountID: "account-1", Holder: "John Doe"}}, resp.Notifications)
}

func TestShould_Reject_Opening_Opened_Account(t *testing.T) {
	resp := decide(account.Account{Opened: true}, account.OpenAccount{Holder: "John Doe"})

	assert.Equal(t, []account.Rejection{account.RejectionAlreadyOpened}, resp.Decision.Rejections())
	assert.Empty(t, resp.Notifications)
}

func TestShould_Deposit_And_Publish_New_Balance(t *testing.T) {
	resp := decide(account.Account{Opened: true, Balance: 50}, account.Deposit{Amount: 100})

	require.True(t, resp.Decision.Accepted())
	assert.Equal(t, []account.Event{account.DepositMade{Amount: 100}}, resp.Decision.Events())
	assert.Equal(t, []account.Notification{account.BalanceChanged{AccountID: "account-1", Balance: 150, Delta: 100}}, resp.Notifications)
}

func TestShould_Reject_Withdrawal_Over_Balance_With_Declined_Notification(t *testing.T) {
	resp := decide(account.Account{Opened: true, Balance: 5}, account.Withdraw{Amount: 10})

	assert.Equal(t, []account.Rejection{account.RejectionInsufficientFunds}, resp.Decision.Rejections())
	assert.Equal(t, []account.Notification{account.WithdrawalDeclined{AccountID: "account-1", Amount: 10}}, resp.Notifications)
}

func TestShould_Reject_Non_Positive_Amounts(t *testing.T) {
	resp := decide(account.Account{Opened: true}, account.Deposit{Amount: 0})

	assert.Equal(t, []account.Rejection{account.RejectionInvalidAmount}, resp.Decision.Rejections())

	resp = decide(account.Account{Opened: true}, account.Withdraw{Amount: -1})

	assert.Equal(t, []account.Rejection{account.RejectionInvalidAmount}, resp.Decision.Rejections())
}

func TestShould_Fold_Account_Event_Stream(t *testing.T) {
	model := account.Model{}

	s := model.Initial()

	s, rejections := model.Transition(s, account.AccountOpened{Holder: "John Doe"})
	require.Empty(t, rejections)

	s, rejections = model.Transition(s, account.DepositMade{Amount: 100})
	require.Empty(t, rejections)

	s, rejections = model.Transition(s, account.WithdrawalMade{Amount: 30})
	require.Empty(t, rejections)

	assert.Equal(t, account.Account{Holder: "John Doe", Balance: 70, Opened: true}, s)
}

func TestShould_Conflict_On_Overdrawing_Fold(t *testing.T) {
	model := account.Model{}

	s, rejections := model.Transition(account.Account{Opened: true, Balance: 10}, account.WithdrawalMade{Amount: 50})

	assert.Equal(t, []account.Rejection{account.RejectionInsufficientFunds}, rejections)
	assert.Equal(t, 10, s.Balance)
}

func TestShould_Conflict_On_Event_Before_Open(t *testing.T) {
	model := account.Model{}

	_, rejections := model.Transition(account.Account{}, account.DepositMade{Amount: 50})

	assert.Equal(t, []account.Rejection{account.RejectionNotOpened}, rejections)
}
