package domain

import "time"

// TransactionKind represents the direction of a balance transition.
type TransactionKind string

const (
	TransactionKindPurchase TransactionKind = "purchase"
	TransactionKindTopup    TransactionKind = "topup"
)

// TransactionStatus represents the outcome of a balance transition.
// Only completed transactions are persisted.
type TransactionStatus string

const (
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusFailed    TransactionStatus = "failed"
)

// Transaction is an immutable record of one card balance transition.
type Transaction struct {
	ID              int64             `json:"id"`
	CardID          int64             `json:"card_id"`
	ShopID          *int64            `json:"shop_id,omitempty"` // nil for top-ups outside a shop
	Kind            TransactionKind   `json:"kind"`
	Amount          int64             `json:"amount"`
	PreviousBalance int64             `json:"previous_balance"`
	NewBalance      int64             `json:"new_balance"`
	Status          TransactionStatus `json:"status"`
	CreatedAt       time.Time         `json:"created_at"`
}

// ApplyTo returns the balance obtained by applying a transition of kind and
// amount to balance.
func (k TransactionKind) ApplyTo(balance, amount int64) int64 {
	if k == TransactionKindPurchase {
		return balance - amount
	}
	return balance + amount
}

// IsConsistent reports whether NewBalance follows from PreviousBalance,
// Amount and Kind.
func (t *Transaction) IsConsistent() bool {
	return t.Amount > 0 && t.NewBalance >= 0 &&
		t.Kind.ApplyTo(t.PreviousBalance, t.Amount) == t.NewBalance
}
