package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTradeStatus_Terminal(t *testing.T) {
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusApproved.Terminal())
	assert.True(t, StatusRejected.Terminal())
	assert.True(t, StatusExpired.Terminal())
	assert.True(t, StatusExecuted.Terminal())
}

func TestPendingTrade_ExpiredBoundary(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	trade := PendingTrade{ExpiresAt: now.Add(time.Hour)}

	assert.False(t, trade.Expired(now))
	assert.False(t, trade.Expired(now.Add(59*time.Minute)))
	// El límite exacto cuenta como expirado
	assert.True(t, trade.Expired(now.Add(time.Hour)))
	assert.True(t, trade.Expired(now.Add(61*time.Minute)))
}

func TestNewPendingTrade_FromSignal(t *testing.T) {
	sig := TradeSignal{
		City:      "nyc",
		Bracket:   "71-72",
		Side:      SideYes,
		Price:     0.22,
		ModelProb: 0.28,
		EV:        0.05,
		Quantity:  10,
		Fee:       0.01,
		Sources:   map[string]float64{"ecmwf": 0.30, "gfs": 0.25},
	}

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	trade := NewPendingTrade(sig, StatusPending, now, 60*time.Minute)

	assert.NotEmpty(t, trade.ID)
	assert.Equal(t, StatusPending, trade.Status)
	assert.Equal(t, now, trade.CreatedAt)
	assert.Equal(t, now.Add(60*time.Minute), trade.ExpiresAt)
	assert.Nil(t, trade.ActedAt)
	assert.Equal(t, 0.22, trade.MarketProb)
	assert.Equal(t, "medium", trade.Confidence)
	assert.InDelta(t, 2.2, trade.Cost(), 1e-9)
	assert.NotEmpty(t, trade.Reasoning)
	assert.Len(t, trade.Sources, 2)
}

func TestTradeSignal_Confidence(t *testing.T) {
	assert.Equal(t, "high", TradeSignal{EV: 0.12}.Confidence())
	assert.Equal(t, "medium", TradeSignal{EV: 0.05}.Confidence())
	assert.Equal(t, "low", TradeSignal{EV: 0.02}.Confidence())
}
