package domain

import (
	"time"

	"github.com/google/uuid"
)

// TradeStatus represents the lifecycle of a trade awaiting (or past) human
// decision.
type TradeStatus string

const (
	StatusPending  TradeStatus = "PENDING"
	StatusApproved TradeStatus = "APPROVED"
	StatusRejected TradeStatus = "REJECTED"
	StatusExpired  TradeStatus = "EXPIRED"
	StatusExecuted TradeStatus = "EXECUTED"
)

// Terminal reports whether no further transition is possible from s.
func (s TradeStatus) Terminal() bool {
	return s == StatusRejected || s == StatusExpired || s == StatusExecuted
}

// PendingTrade is the persisted record of a trade decision. In manual mode
// it starts PENDING and waits for the user; in auto mode it is created
// already APPROVED. Mutated only through the queue's atomic transitions.
type PendingTrade struct {
	ID         string
	City       string
	Bracket    string
	Side       Side
	Price      float64
	Quantity   float64
	ModelProb  float64
	MarketProb float64 // price-implied probability at creation
	EV         float64
	Fee        float64 // per contract, for P&L reconciliation at settlement
	Confidence string
	Reasoning  string
	Status     TradeStatus
	CreatedAt  time.Time
	ExpiresAt  time.Time
	ActedAt    *time.Time
	ExecError  string             // annotation when placing an approved trade failed
	Sources    map[string]float64 // forecast snapshot at trade time
}

// Expired reports whether the trade's approval window has elapsed.
// Boundary counts as expired: an action arriving at exactly expires-at loses.
func (t PendingTrade) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// Cost is the total cost basis of the trade.
func (t PendingTrade) Cost() float64 {
	return t.Price * t.Quantity
}

// NewPendingTrade builds a trade record from a signal with the given status
// and expiry window.
func NewPendingTrade(sig TradeSignal, status TradeStatus, now time.Time, expiry time.Duration) PendingTrade {
	return PendingTrade{
		ID:         uuid.New().String(),
		City:       sig.City,
		Bracket:    sig.Bracket,
		Side:       sig.Side,
		Price:      sig.Price,
		Quantity:   sig.Quantity,
		ModelProb:  sig.ModelProb,
		MarketProb: sig.Price,
		EV:         sig.EV,
		Fee:        sig.Fee,
		Confidence: sig.Confidence(),
		Reasoning:  sig.Reasoning(),
		Status:     status,
		CreatedAt:  now,
		ExpiresAt:  now.Add(expiry),
		Sources:    sig.Sources,
	}
}
