package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dmarroquin/skytrader/internal/domain"
	"github.com/dmarroquin/skytrader/internal/ports"
)

// Errores sentinela de transición — el caller decide cómo presentarlos.
var (
	// ErrAlreadyResolved lo recibe el perdedor de un compare-and-set: otra
	// transición terminal ganó primero, nunca un éxito obsoleto.
	ErrAlreadyResolved = errors.New("trade already resolved")

	// ErrTradeExpired marca una acción que llegó después de expires-at,
	// aunque el sweep todavía no hubiera marcado el trade.
	ErrTradeExpired = errors.New("trade expired")
)

// Queue manages human-approval trades from creation to terminal state.
// Only one terminal transition can ever succeed per trade: every transition
// goes through the store's conditional update keyed by (id, current status),
// never a read-then-write.
type Queue struct {
	store    ports.Store
	notifier ports.Notifier
	expiry   time.Duration
	now      func() time.Time
}

// New creates a queue. expiry is the approval window for new trades.
func New(store ports.Store, notifier ports.Notifier, expiry time.Duration) *Queue {
	return &Queue{store: store, notifier: notifier, expiry: expiry, now: time.Now}
}

// SetClock inyecta un reloj para tests.
func (q *Queue) SetClock(now func() time.Time) {
	q.now = now
}

// Create persists a new trade record from a signal and, when it starts
// PENDING, notifies the user. A notification failure does not roll back the
// queue entry — the trade still exists for the user to discover via the
// dashboard.
func (q *Queue) Create(ctx context.Context, sig domain.TradeSignal, status domain.TradeStatus) (domain.PendingTrade, error) {
	trade := domain.NewPendingTrade(sig, status, q.now(), q.expiry)
	if err := q.store.SaveTrade(ctx, trade); err != nil {
		return domain.PendingTrade{}, fmt.Errorf("queue.Create: save trade: %w", err)
	}

	if status == domain.StatusPending && q.notifier != nil {
		if err := q.notifier.TradeCreated(ctx, trade); err != nil {
			slog.Warn("queue: notify failed, trade remains queued",
				"trade", trade.ID, "err", err)
		}
	}
	return trade, nil
}

// Approve moves a PENDING trade to APPROVED via user action. An action on a
// trade past its expiry is rejected with ErrTradeExpired (and the trade is
// marked EXPIRED), even if the sweep had not yet run.
func (q *Queue) Approve(ctx context.Context, id string) (domain.PendingTrade, error) {
	return q.resolve(ctx, id, domain.StatusApproved)
}

// Reject moves a PENDING trade to REJECTED via user action.
func (q *Queue) Reject(ctx context.Context, id string) (domain.PendingTrade, error) {
	return q.resolve(ctx, id, domain.StatusRejected)
}

// resolve applies a user-driven terminal transition with lazy expiry.
func (q *Queue) resolve(ctx context.Context, id string, to domain.TradeStatus) (domain.PendingTrade, error) {
	trade, err := q.store.GetTrade(ctx, id)
	if err != nil {
		return domain.PendingTrade{}, fmt.Errorf("queue.resolve: get %s: %w", id, err)
	}

	now := q.now()

	// Expiración perezosa: el reloj manda, no el orden de llegada.
	if trade.Status == domain.StatusPending && trade.Expired(now) {
		if _, err := q.expire(ctx, trade, now); err != nil {
			return domain.PendingTrade{}, err
		}
		return domain.PendingTrade{}, fmt.Errorf("queue.resolve %s: %w", id, ErrTradeExpired)
	}

	if trade.Status != domain.StatusPending {
		return domain.PendingTrade{}, fmt.Errorf("queue.resolve %s (status %s): %w", id, trade.Status, ErrAlreadyResolved)
	}

	swapped, err := q.store.TransitionTrade(ctx, id, domain.StatusPending, to, now)
	if err != nil {
		return domain.PendingTrade{}, fmt.Errorf("queue.resolve %s: transition: %w", id, err)
	}
	if !swapped {
		return domain.PendingTrade{}, fmt.Errorf("queue.resolve %s: %w", id, ErrAlreadyResolved)
	}

	trade.Status = to
	trade.ActedAt = &now
	q.notifyResolved(ctx, trade)
	return trade, nil
}

// MarkExecuted moves an APPROVED trade to EXECUTED after confirmed order
// placement.
func (q *Queue) MarkExecuted(ctx context.Context, id string) error {
	now := q.now()
	swapped, err := q.store.TransitionTrade(ctx, id, domain.StatusApproved, domain.StatusExecuted, now)
	if err != nil {
		return fmt.Errorf("queue.MarkExecuted %s: %w", id, err)
	}
	if !swapped {
		return fmt.Errorf("queue.MarkExecuted %s: %w", id, ErrAlreadyResolved)
	}
	return nil
}

// RevertExecution returns a trade taken for execution back to APPROVED
// after the order placement failed, annotating the failure. The approval is
// not lost — the trade does not silently vanish.
func (q *Queue) RevertExecution(ctx context.Context, id, execErr string) error {
	swapped, err := q.store.TransitionTrade(ctx, id, domain.StatusExecuted, domain.StatusApproved, q.now())
	if err != nil {
		return fmt.Errorf("queue.RevertExecution %s: %w", id, err)
	}
	if !swapped {
		return fmt.Errorf("queue.RevertExecution %s: %w", id, ErrAlreadyResolved)
	}
	return q.AnnotateExecFailure(ctx, id, execErr)
}

// AnnotateExecFailure records a placement failure on an APPROVED trade. The
// trade stays APPROVED — it does not silently vanish.
func (q *Queue) AnnotateExecFailure(ctx context.Context, id, execErr string) error {
	if err := q.store.AnnotateExecFailure(ctx, id, execErr); err != nil {
		return fmt.Errorf("queue.AnnotateExecFailure %s: %w", id, err)
	}
	return nil
}

// Sweep eagerly expires every PENDING trade past its window. Returns how
// many were expired. Expiry enforces forward progress independently of any
// human response.
func (q *Queue) Sweep(ctx context.Context) (int, error) {
	pending, err := q.store.ListTrades(ctx, domain.StatusPending)
	if err != nil {
		return 0, fmt.Errorf("queue.Sweep: list pending: %w", err)
	}

	now := q.now()
	expired := 0
	for _, trade := range pending {
		if !trade.Expired(now) {
			continue
		}
		swapped, err := q.expire(ctx, trade, now)
		if err != nil {
			slog.Warn("queue: sweep expire failed", "trade", trade.ID, "err", err)
			continue
		}
		if swapped {
			expired++
		}
	}
	return expired, nil
}

// Pending devuelve los trades aún a la espera de decisión humana.
func (q *Queue) Pending(ctx context.Context) ([]domain.PendingTrade, error) {
	return q.store.ListTrades(ctx, domain.StatusPending)
}

// Approved devuelve los trades aprobados pendientes de ejecución.
func (q *Queue) Approved(ctx context.Context) ([]domain.PendingTrade, error) {
	return q.store.ListTrades(ctx, domain.StatusApproved)
}

// expire applies the PENDING → EXPIRED transition via CAS. Losing the race
// is fine — someone else resolved or expired it first.
func (q *Queue) expire(ctx context.Context, trade domain.PendingTrade, now time.Time) (bool, error) {
	swapped, err := q.store.TransitionTrade(ctx, trade.ID, domain.StatusPending, domain.StatusExpired, now)
	if err != nil {
		return false, fmt.Errorf("queue.expire %s: %w", trade.ID, err)
	}
	if swapped {
		trade.Status = domain.StatusExpired
		trade.ActedAt = &now
		q.notifyResolved(ctx, trade)
	}
	return swapped, nil
}

func (q *Queue) notifyResolved(ctx context.Context, trade domain.PendingTrade) {
	if q.notifier == nil {
		return
	}
	if err := q.notifier.TradeResolved(ctx, trade); err != nil {
		slog.Warn("queue: resolve notification failed", "trade", trade.ID, "err", err)
	}
}
