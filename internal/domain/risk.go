package domain

import "time"

// RiskState is the persisted snapshot of the account's risk counters.
// Owned exclusively by the risk manager; everything else reads copies.
type RiskState struct {
	Day               string  // UTC trading day (YYYY-MM-DD) the daily counters belong to
	Exposure          float64 // cost basis of open positions
	DailyLoss         float64 // realized loss accumulated during Day
	ConsecutiveLosses int
	CooldownUntil     time.Time // zero = no cooldown
}

// AuditRecord is one line of the per-cycle audit trail: every evaluated
// (city, bracket, side) produces exactly one, whatever the outcome.
type AuditRecord struct {
	ID      int64
	CycleID string
	City    string
	Bracket string
	Side    Side   // empty for bracket-level data-integrity halts and cycle skips
	Verdict string // PROCEED / SKIP / BLOCK / DATA_ERROR / SKIP_CYCLE
	Reason  string
	EV      float64
	Price   float64
	At      time.Time
}

// AuditDataError marks a bracket halted by malformed input rather than a
// risk decision.
const AuditDataError = "DATA_ERROR"

// AuditSkipCycle marks a whole cycle suppressed by an account-wide cooldown.
const AuditSkipCycle = "SKIP_CYCLE"
