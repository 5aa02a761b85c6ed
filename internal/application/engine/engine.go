package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmarroquin/skytrader/internal/application/postmortem"
	"github.com/dmarroquin/skytrader/internal/domain"
	"github.com/dmarroquin/skytrader/internal/ports"
	"github.com/dmarroquin/skytrader/internal/queue"
	"github.com/dmarroquin/skytrader/internal/risk"
)

// Trading modes.
const (
	ModeAuto   = "auto"
	ModeManual = "manual"
)

// Config holds configuration for the execution orchestrator.
type Config struct {
	Mode          string
	Interval      time.Duration
	OrderQuantity float64
	FeeDefault    float64
}

// CycleResult contains everything produced by one decision cycle.
type CycleResult struct {
	CycleID      string
	Evaluated    int // (city, bracket, side) evaluations run
	Proceeded    int
	Skipped      int
	Blocked      int
	DataErrors   int // brackets halted by malformed input
	OrdersPlaced int // auto mode
	Queued       int // manual mode
	Executed     int // previously approved trades placed this cycle
	Expired      int // pending trades swept
	SkippedCycle bool
}

// Engine drives the recurring decision cycle: pull predictions and quotes,
// compute EV per bracket and side, run the risk gate, and route PROCEEDs to
// auto-execution or the approval queue. It holds no long-lived state of its
// own beyond injected collaborators — safe to tear down and restart between
// cycles.
type Engine struct {
	forecasts   ports.ForecastProvider
	market      ports.MarketClient
	riskman     *risk.Manager
	trades      *queue.Queue
	store       ports.Store
	postmortems *postmortem.Generator
	cfg         Config
	now         func() time.Time
}

// New creates the orchestrator with all dependencies injected.
func New(
	forecasts ports.ForecastProvider,
	market ports.MarketClient,
	riskman *risk.Manager,
	trades *queue.Queue,
	store ports.Store,
	postmortems *postmortem.Generator,
	cfg Config,
) *Engine {
	if cfg.Interval <= 0 {
		cfg.Interval = 15 * time.Minute
	}
	return &Engine{
		forecasts:   forecasts,
		market:      market,
		riskman:     riskman,
		trades:      trades,
		store:       store,
		postmortems: postmortems,
		cfg:         cfg,
		now:         time.Now,
	}
}

// SetClock inyecta un reloj para tests.
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

// Run ejecuta el loop de ciclos hasta que el contexto se cancele.
func (e *Engine) Run(ctx context.Context) error {
	slog.Info("engine starting", "mode", e.cfg.Mode, "interval", e.cfg.Interval)

	if _, err := e.RunOnce(ctx); err != nil {
		slog.Error("cycle failed", "err", err)
	}

	ticker := time.NewTicker(e.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("engine stopped")
			return nil
		case <-ticker.C:
			if _, err := e.RunOnce(ctx); err != nil {
				slog.Error("cycle failed", "err", err)
			}
		}
	}
}

// RunOnce executes exactly one decision cycle — a finite sequence, no
// unbounded loops, never blocking on a human response.
func (e *Engine) RunOnce(ctx context.Context) (*CycleResult, error) {
	result := &CycleResult{CycleID: uuid.New().String()[:8]}
	now := e.now()

	// 1. Expiry sweep keeps forward progress independent of cycle outcome.
	expired, err := e.trades.Sweep(ctx)
	if err != nil {
		slog.Warn("engine: sweep failed", "err", err)
	}
	result.Expired = expired

	// 2. Act on approvals granted since the last cycle.
	executed, err := e.ExecuteApproved(ctx)
	if err != nil {
		slog.Warn("engine: executing approved trades failed", "err", err)
	}
	result.Executed = executed

	// 3. Account-wide cooldown suppresses the whole cycle.
	if e.riskman.CooldownActive(now) {
		e.audit(ctx, domain.AuditRecord{
			CycleID: result.CycleID,
			Verdict: domain.AuditSkipCycle,
			Reason:  "account cooldown active",
			At:      now,
		})
		slog.Warn("engine: cooldown active, skipping cycle", "cycle", result.CycleID)
		result.SkippedCycle = true
		return result, nil
	}

	// 4. Fetch inputs from collaborators.
	preds, err := e.forecasts.FetchPredictions(ctx)
	if err != nil {
		return nil, fmt.Errorf("engine.RunOnce: fetch predictions: %w", err)
	}
	quotes, err := e.market.FetchQuotes(ctx)
	if err != nil {
		return nil, fmt.Errorf("engine.RunOnce: fetch quotes: %w", err)
	}

	quoteByKey := make(map[string]domain.MarketQuote, len(quotes))
	for _, q := range quotes {
		quoteByKey[q.Key()] = q
	}

	// 5. Evaluate every (city, bracket) present in both inputs.
	for _, pred := range preds {
		quote, ok := quoteByKey[pred.Key()]
		if !ok {
			continue
		}
		e.evaluateBracket(ctx, result, pred, quote, now)
	}

	slog.Info("engine: cycle complete",
		"cycle", result.CycleID,
		"evaluated", result.Evaluated,
		"proceeded", result.Proceeded,
		"skipped", result.Skipped,
		"blocked", result.Blocked,
		"data_errors", result.DataErrors,
		"orders", result.OrdersPlaced,
		"queued", result.Queued,
		"executed", result.Executed,
		"expired", result.Expired,
	)
	return result, nil
}

// evaluateBracket validates the bracket's inputs and evaluates both sides.
// A data-integrity failure halts this bracket only — the rest of the cycle
// continues.
func (e *Engine) evaluateBracket(ctx context.Context, result *CycleResult, pred domain.BracketPrediction, quote domain.MarketQuote, now time.Time) {
	if err := pred.Validate(); err != nil {
		e.auditDataError(ctx, result, pred.City, pred.Bracket, err, now)
		return
	}
	if err := quote.Validate(); err != nil {
		e.auditDataError(ctx, result, quote.City, quote.Bracket, err, now)
		return
	}

	yes, err := domain.YesSignal(pred, quote, e.cfg.FeeDefault, e.cfg.OrderQuantity)
	if err != nil {
		e.auditDataError(ctx, result, pred.City, pred.Bracket, err, now)
		return
	}
	no, err := domain.NoSignal(pred, quote, e.cfg.FeeDefault, e.cfg.OrderQuantity)
	if err != nil {
		e.auditDataError(ctx, result, pred.City, pred.Bracket, err, now)
		return
	}

	e.evaluateSide(ctx, result, yes, now)
	e.evaluateSide(ctx, result, no, now)
}

// evaluateSide runs the risk gate and routes the outcome. Every evaluated
// side writes exactly one audit row, traded or not.
func (e *Engine) evaluateSide(ctx context.Context, result *CycleResult, sig domain.TradeSignal, now time.Time) {
	result.Evaluated++
	decision := e.riskman.Evaluate(sig, now)

	e.audit(ctx, domain.AuditRecord{
		CycleID: result.CycleID,
		City:    sig.City,
		Bracket: sig.Bracket,
		Side:    sig.Side,
		Verdict: string(decision.Verdict),
		Reason:  decision.Reason,
		EV:      sig.EV,
		Price:   sig.Price,
		At:      now,
	})

	switch decision.Verdict {
	case domain.VerdictProceed:
		result.Proceeded++
		e.proceed(ctx, result, sig)
	case domain.VerdictSkip:
		result.Skipped++
		slog.Debug("engine: skip",
			"city", sig.City, "bracket", sig.Bracket, "side", sig.Side,
			"ev", sig.EV, "reason", decision.Reason)
	case domain.VerdictBlock:
		result.Blocked++
		slog.Warn("engine: block",
			"city", sig.City, "bracket", sig.Bracket, "side", sig.Side,
			"ev", sig.EV, "reason", decision.Reason)
	}
}

// proceed routes an authorized signal: auto mode places the order now,
// manual mode queues it for human approval.
func (e *Engine) proceed(ctx context.Context, result *CycleResult, sig domain.TradeSignal) {
	if e.cfg.Mode == ModeAuto {
		e.executeAuto(ctx, result, sig)
		return
	}

	trade, err := e.trades.Create(ctx, sig, domain.StatusPending)
	if err != nil {
		slog.Error("engine: failed to queue trade",
			"city", sig.City, "bracket", sig.Bracket, "side", sig.Side, "err", err)
		return
	}
	result.Queued++
	slog.Info("engine: trade queued for approval",
		"trade", trade.ID, "city", sig.City, "bracket", sig.Bracket,
		"side", sig.Side, "ev", sig.EV)
}

// executeAuto places the order directly. The PROCEED audit row is already
// persisted before placement, so an order never exists without a record of
// the decision. A failed placement is dropped for this cycle — logged, no
// retry, no manual fallback, exposure unchanged.
func (e *Engine) executeAuto(ctx context.Context, result *CycleResult, sig domain.TradeSignal) {
	fill, err := e.market.PlaceOrder(ctx, domain.PlaceOrderRequest{
		City:     sig.City,
		Bracket:  sig.Bracket,
		Side:     sig.Side,
		Price:    sig.Price,
		Quantity: sig.Quantity,
	})
	if err != nil {
		slog.Warn("engine: order placement failed, dropping for this cycle",
			"city", sig.City, "bracket", sig.Bracket, "side", sig.Side, "err", err)
		return
	}

	trade, err := e.trades.Create(ctx, sig, domain.StatusExecuted)
	if err != nil {
		slog.Error("engine: order placed but trade record failed",
			"order", fill.OrderID, "err", err)
	}
	if err := e.riskman.RecordOpen(ctx, sig.Cost(), e.now()); err != nil {
		slog.Error("engine: failed to record open position", "trade", trade.ID, "err", err)
	}
	result.OrdersPlaced++
	slog.Info("engine: order placed",
		"trade", trade.ID, "order", fill.OrderID,
		"city", sig.City, "bracket", sig.Bracket, "side", sig.Side,
		"price", sig.Price, "qty", fill.FilledQuantity)
}

// ExecuteApproved places orders for trades the user approved. The CAS to
// EXECUTED happens before placement so a single approval can never be placed
// twice; a failed placement reverts to APPROVED with an annotation and is
// retried on a later cycle, never within this one.
func (e *Engine) ExecuteApproved(ctx context.Context) (int, error) {
	approved, err := e.trades.Approved(ctx)
	if err != nil {
		return 0, fmt.Errorf("engine.ExecuteApproved: list approved: %w", err)
	}

	executed := 0
	for _, t := range approved {
		if err := e.trades.MarkExecuted(ctx, t.ID); err != nil {
			// Perdedor del CAS — otro runner ya la está ejecutando.
			slog.Debug("engine: approved trade already taken", "trade", t.ID)
			continue
		}

		_, err := e.market.PlaceOrder(ctx, domain.PlaceOrderRequest{
			City:     t.City,
			Bracket:  t.Bracket,
			Side:     t.Side,
			Price:    t.Price,
			Quantity: t.Quantity,
		})
		if err != nil {
			slog.Warn("engine: approved trade placement failed",
				"trade", t.ID, "err", err)
			if rerr := e.trades.RevertExecution(ctx, t.ID, err.Error()); rerr != nil {
				slog.Error("engine: failed to revert execution", "trade", t.ID, "err", rerr)
			}
			continue
		}

		if err := e.riskman.RecordOpen(ctx, t.Cost(), e.now()); err != nil {
			slog.Error("engine: failed to record open position", "trade", t.ID, "err", err)
		}
		executed++
		slog.Info("engine: approved trade executed",
			"trade", t.ID, "city", t.City, "bracket", t.Bracket, "side", t.Side)
	}
	return executed, nil
}

// ApplySettlement resolves every executed trade for the settled city,
// feeds the win/loss back into the risk counters, and generates the
// post-mortem. Re-applying a settlement is safe: trades already reconciled
// are skipped, so counters are never double-updated.
func (e *Engine) ApplySettlement(ctx context.Context, s domain.Settlement) error {
	trades, err := e.store.ListTrades(ctx, domain.StatusExecuted)
	if err != nil {
		return fmt.Errorf("engine.ApplySettlement: list executed: %w", err)
	}

	now := e.now()
	for _, t := range trades {
		if t.City != s.City {
			continue
		}

		pm, created, err := e.postmortems.Generate(ctx, t, s)
		if err != nil {
			slog.Error("engine: post-mortem failed", "trade", t.ID, "err", err)
			continue
		}
		if !created {
			continue // ya reconciliado en una pasada anterior
		}

		if pm.Won {
			err = e.riskman.RecordWin(ctx, pm.Cost, now)
		} else {
			err = e.riskman.RecordLoss(ctx, pm.Cost, -pm.RealizedPnL, now)
		}
		if err != nil {
			slog.Error("engine: failed to record settlement outcome",
				"trade", t.ID, "won", pm.Won, "err", err)
		}

		slog.Info("engine: trade settled",
			"trade", t.ID, "city", t.City, "bracket", t.Bracket, "side", t.Side,
			"won", pm.Won, "pnl", fmt.Sprintf("$%.2f", pm.RealizedPnL))
	}
	return nil
}
