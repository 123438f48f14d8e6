package account

// Event is the closed set of account domain events
type Event interface{ isEvent() }

// AccountOpened domain event indicates that a new account has been opened
type AccountOpened struct {
	Holder string `json:"holder"`
}

// DepositMade domain event indicates that a deposit has been made
type DepositMade struct {
	Amount int `json:"amount"`
}

// WithdrawalMade domain event indicates that a withdrawal has been made
type WithdrawalMade struct {
	Amount int `json:"amount"`
}

func (AccountOpened) isEvent()  {}
func (DepositMade) isEvent()    {}
func (WithdrawalMade) isEvent() {}

// Notification is the closed set of outbound account notifications
type Notification interface{ isNotification() }

// AccountGreeting notifies downstream that a holder should be welcomed
type AccountGreeting struct {
	AccountID string `json:"account_id"`
	Holder    string `json:"holder"`
}

// BalanceChanged notifies downstream of the new balance
type BalanceChanged struct {
	AccountID string `json:"account_id"`
	Balance   int    `json:"balance"`
	Delta     int    `json:"delta"`
}

// WithdrawalDeclined notifies downstream that a withdrawal was rejected
type WithdrawalDeclined struct {
	AccountID string `json:"account_id"`
	Amount    int    `json:"amount"`
}

func (AccountGreeting) isNotification()    {}
func (BalanceChanged) isNotification()     {}
func (WithdrawalDeclined) isNotification() {}
