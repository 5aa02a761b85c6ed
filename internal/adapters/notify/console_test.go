package notify

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmarroquin/skytrader/internal/domain"
)

func sampleTrade() domain.PendingTrade {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return domain.PendingTrade{
		ID:         "a1b2c3d4-0000-0000-0000-000000000000",
		City:       "nyc",
		Bracket:    "71-72",
		Side:       domain.SideYes,
		Price:      0.22,
		Quantity:   10,
		ModelProb:  0.28,
		EV:         0.05,
		Confidence: "medium",
		Reasoning:  "model edge over market",
		Status:     domain.StatusPending,
		CreatedAt:  created,
		ExpiresAt:  created.Add(time.Hour),
	}
}

func TestTradeCreated_PrintsAllFields(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsoleWriter(&buf)

	require.NoError(t, c.TradeCreated(context.Background(), sampleTrade()))

	out := buf.String()
	assert.Contains(t, out, "AWAITING APPROVAL")
	assert.Contains(t, out, "a1b2c3d4")
	assert.Contains(t, out, "nyc")
	assert.Contains(t, out, "71-72")
	assert.Contains(t, out, "YES")
	assert.Contains(t, out, "22¢")
	assert.Contains(t, out, "28.0%")
	assert.Contains(t, out, "medium")
	assert.Contains(t, out, "model edge over market")
	assert.Contains(t, out, "-approve a1b2c3d4-0000-0000-0000-000000000000")
}

func TestTradeResolved_AnnotatesExecError(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsoleWriter(&buf)

	trade := sampleTrade()
	trade.Status = domain.StatusApproved
	trade.ExecError = "insufficient liquidity"

	require.NoError(t, c.TradeResolved(context.Background(), trade))

	out := buf.String()
	assert.Contains(t, out, "a1b2c3d4")
	assert.Contains(t, out, "APPROVED")
	assert.Contains(t, out, "exec_error=insufficient liquidity")
}
