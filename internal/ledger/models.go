package ledger

import "time"

// Account statuses. Only active accounts take part in balance mutation.
const (
	StatusActive = "ACTIVE"
	StatusClosed = "CLOSED"
)

// Transaction types.
const (
	TypeDeposit  = "DEPOSIT"
	TypeWithdraw = "WITHDRAW"
	TypeTransfer = "TRANSFER"
)

// TxnStatusSuccess marks a committed transaction record.
const TxnStatusSuccess = "SUCCESS"

// Account is a ledger account keyed by its caller-visible account number.
// Version is the optimistic concurrency token: every successful Save
// advances it, and a Save carrying a stale value is rejected by the store.
type Account struct {
	ID            string    `json:"id,omitempty"`
	AccountNumber string    `json:"account_number"`
	HolderName    string    `json:"holder_name"`
	Balance       float64   `json:"balance"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
	Version       int64     `json:"version"`
}

// Transaction is an immutable record of a committed balance change.
// DestinationAccount is set only for transfers.
type Transaction struct {
	ID                 string    `json:"id,omitempty"`
	TransactionID      string    `json:"transaction_id"`
	Type               string    `json:"type"`
	Amount             float64   `json:"amount"`
	Timestamp          time.Time `json:"timestamp"`
	Status             string    `json:"status"`
	SourceAccount      string    `json:"source_account"`
	DestinationAccount string    `json:"destination_account,omitempty"`
}
