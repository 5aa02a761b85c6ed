package risk

import "time"

// Tracker keeps the loss-driven suppression state: a rolling cooldown window
// plus a consecutive-loss counter that can lock out the rest of the trading
// day. Methods are not goroutine-safe on their own — the Manager serializes
// access under its mutex so cooldown and risk counters mutate atomically.
type Tracker struct {
	PerLoss              time.Duration // 0 disables the per-loss cooldown
	ConsecutiveLossLimit int           // 0 disables the streak lockout

	CooldownUntil     time.Time
	ConsecutiveLosses int
}

// IsActive reports whether trading is currently suppressed.
func (t *Tracker) IsActive(now time.Time) bool {
	return !t.CooldownUntil.IsZero() && now.Before(t.CooldownUntil)
}

// OnLoss extends the cooldown window and advances the loss streak. The
// window only ever moves forward: a new loss never shortens an existing
// cooldown. Hitting the streak limit locks out the rest of the trading day,
// superseding the per-loss window if later.
func (t *Tracker) OnLoss(now time.Time) {
	if t.PerLoss > 0 {
		if until := now.Add(t.PerLoss); until.After(t.CooldownUntil) {
			t.CooldownUntil = until
		}
	}
	t.ConsecutiveLosses++
	if t.ConsecutiveLossLimit > 0 && t.ConsecutiveLosses >= t.ConsecutiveLossLimit {
		if eod := EndOfTradingDay(now); eod.After(t.CooldownUntil) {
			t.CooldownUntil = eod
		}
	}
}

// OnWin resets the loss streak. It does not clear a cooldown already active
// from a prior loss.
func (t *Tracker) OnWin() {
	t.ConsecutiveLosses = 0
}

// EndOfTradingDay returns the close of the current UTC trading day: the
// next UTC midnight after now.
func EndOfTradingDay(now time.Time) time.Time {
	u := now.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
}

// TradingDay returns the UTC day key the daily counters belong to.
func TradingDay(now time.Time) string {
	return now.UTC().Format("2006-01-02")
}
