package risk

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dmarroquin/skytrader/internal/domain"
	"github.com/dmarroquin/skytrader/internal/ports"
)

// Manager holds the account's risk counters and evaluates proposed trades
// against the configured limits.
//
// Evaluate is strictly read-only; mutation happens only through the explicit
// RecordOpen / RecordWin / RecordLoss calls, all serialized under one mutex.
// This separation lets the same evaluation run speculatively without side
// effects, and guarantees concurrent readers always see a consistent
// snapshot. Every mutation persists the state through the store so counters
// survive restart.
type Manager struct {
	mu       sync.RWMutex
	limits   Limits
	cooldown Tracker

	day       string // UTC day the daily counters belong to
	exposure  float64
	dailyLoss float64

	store ports.Store // nil en tests que no necesitan persistencia
}

// NewManager creates a risk manager with fresh counters.
func NewManager(limits Limits, cooldown Tracker, store ports.Store) *Manager {
	return &Manager{
		limits:   limits,
		cooldown: cooldown,
		day:      TradingDay(time.Now()),
		store:    store,
	}
}

// Restore loads a previously persisted state into the manager. Limits and
// cooldown configuration keep their constructor values: only counters are
// restored, configuration is not persisted state.
func (m *Manager) Restore(state domain.RiskState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.day = state.Day
	m.exposure = state.Exposure
	m.dailyLoss = state.DailyLoss
	m.cooldown.ConsecutiveLosses = state.ConsecutiveLosses
	m.cooldown.CooldownUntil = state.CooldownUntil
}

// Evaluate runs the fixed-order gate over a proposed trade. It never
// mutates state. The order matters: each check answers a distinct safety
// question and the first failure wins, so BLOCK reasons are unambiguous.
//
//  1. cooldown active            → BLOCK
//  2. cost >= max trade size     → BLOCK
//  3. exposure+cost >= max daily → BLOCK
//  4. daily loss >= limit        → BLOCK
//  5. ev < threshold             → SKIP
//  6. otherwise                  → PROCEED
func (m *Manager) Evaluate(sig domain.TradeSignal, now time.Time) domain.Decision {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.cooldown.IsActive(now) {
		return domain.Block(fmt.Sprintf("%s until %s",
			domain.ReasonCooldown, m.cooldown.CooldownUntil.UTC().Format(time.RFC3339)))
	}

	cost := sig.Cost()
	if cost >= m.limits.MaxTradeSize {
		return domain.Block(fmt.Sprintf("%s ($%.2f >= $%.2f)",
			domain.ReasonTradeSize, cost, m.limits.MaxTradeSize))
	}

	if m.exposure+cost >= m.limits.MaxDailyExposure {
		return domain.Block(fmt.Sprintf("%s ($%.2f + $%.2f >= $%.2f)",
			domain.ReasonExposure, m.exposure, cost, m.limits.MaxDailyExposure))
	}

	if m.dailyLossFor(now) >= m.limits.DailyLossLimit {
		return domain.Block(fmt.Sprintf("%s ($%.2f >= $%.2f)",
			domain.ReasonDailyLoss, m.dailyLossFor(now), m.limits.DailyLossLimit))
	}

	if sig.EV < m.limits.MinEVThreshold {
		return domain.Skip(fmt.Sprintf("%s (%.4f < %.4f)",
			domain.ReasonLowEV, sig.EV, m.limits.MinEVThreshold))
	}

	return domain.Proceed()
}

// CooldownActive reports whether the account-wide cooldown suppresses the
// whole cycle.
func (m *Manager) CooldownActive(now time.Time) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cooldown.IsActive(now)
}

// RecordOpen registers the cost basis of a newly opened position.
func (m *Manager) RecordOpen(ctx context.Context, cost float64, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollDayLocked(now)
	m.exposure += cost
	return m.persistLocked(ctx)
}

// RecordWin releases the position's cost basis and resets the loss streak.
// An already-active cooldown from a prior loss is not cleared.
func (m *Manager) RecordWin(ctx context.Context, cost float64, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollDayLocked(now)
	m.releaseLocked(cost)
	m.cooldown.OnWin()
	return m.persistLocked(ctx)
}

// RecordLoss releases the position's cost basis, accumulates the realized
// loss into the daily counter, and advances the cooldown state.
func (m *Manager) RecordLoss(ctx context.Context, cost, loss float64, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollDayLocked(now)
	m.releaseLocked(cost)
	if loss > 0 {
		m.dailyLoss += loss
	}
	m.cooldown.OnLoss(now)
	return m.persistLocked(ctx)
}

// Snapshot devuelve una copia consistente del estado actual.
func (m *Manager) Snapshot() domain.RiskState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return domain.RiskState{
		Day:               m.day,
		Exposure:          m.exposure,
		DailyLoss:         m.dailyLoss,
		ConsecutiveLosses: m.cooldown.ConsecutiveLosses,
		CooldownUntil:     m.cooldown.CooldownUntil,
	}
}

// dailyLossFor returns the loss counter as of now without mutating: if the
// trading day rolled over since the last mutation, the counter reads as
// zero. The actual reset happens on the next Record* call.
func (m *Manager) dailyLossFor(now time.Time) float64 {
	if m.day != TradingDay(now) {
		return 0
	}
	return m.dailyLoss
}

// rollDayLocked resets daily counters at the UTC day boundary. Exposure is
// position-based, not daily — it carries across days until positions settle.
func (m *Manager) rollDayLocked(now time.Time) {
	today := TradingDay(now)
	if m.day != today {
		m.day = today
		m.dailyLoss = 0
	}
}

// releaseLocked subtracts a settled position's cost basis from exposure.
func (m *Manager) releaseLocked(cost float64) {
	m.exposure -= cost
	if m.exposure < 0 {
		m.exposure = 0
	}
}

// persistLocked guarda el snapshot — un fallo de persistencia se loggea y
// se propaga, pero los contadores en memoria ya están actualizados.
func (m *Manager) persistLocked(ctx context.Context) error {
	if m.store == nil {
		return nil
	}
	state := domain.RiskState{
		Day:               m.day,
		Exposure:          m.exposure,
		DailyLoss:         m.dailyLoss,
		ConsecutiveLosses: m.cooldown.ConsecutiveLosses,
		CooldownUntil:     m.cooldown.CooldownUntil,
	}
	if err := m.store.SaveRiskState(ctx, state); err != nil {
		slog.Error("risk: failed to persist state", "err", err)
		return fmt.Errorf("risk.Manager: persist state: %w", err)
	}
	return nil
}
