package engine

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmarroquin/skytrader/internal/adapters/storage"
	"github.com/dmarroquin/skytrader/internal/application/postmortem"
	"github.com/dmarroquin/skytrader/internal/domain"
	"github.com/dmarroquin/skytrader/internal/queue"
	"github.com/dmarroquin/skytrader/internal/risk"
)

// --- fakes de colaboradores externos ---

type fakeForecasts struct {
	preds []domain.BracketPrediction
	err   error
}

func (f *fakeForecasts) FetchPredictions(context.Context) ([]domain.BracketPrediction, error) {
	return f.preds, f.err
}

type fakeMarket struct {
	quotes   []domain.MarketQuote
	fetchErr error

	placeErr error
	placed   []domain.PlaceOrderRequest
}

func (f *fakeMarket) FetchQuotes(context.Context) ([]domain.MarketQuote, error) {
	return f.quotes, f.fetchErr
}

func (f *fakeMarket) PlaceOrder(_ context.Context, req domain.PlaceOrderRequest) (domain.OrderFill, error) {
	if f.placeErr != nil {
		return domain.OrderFill{}, f.placeErr
	}
	f.placed = append(f.placed, req)
	return domain.OrderFill{
		OrderID:        "order-1",
		FilledQuantity: req.Quantity,
		AvgPrice:       req.Price,
	}, nil
}

// --- fixture ---

type testEnv struct {
	engine  *Engine
	store   *storage.SQLiteStore
	riskman *risk.Manager
	trades  *queue.Queue
	market  *fakeMarket
	now     time.Time
}

func newTestEnv(t *testing.T, mode string, preds []domain.BracketPrediction, quotes []domain.MarketQuote) *testEnv {
	t.Helper()

	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "engine_test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	limits := risk.Limits{
		MaxTradeSize:     25.00,
		DailyLossLimit:   10.00,
		MaxDailyExposure: 100.00,
		MinEVThreshold:   0.03,
	}
	riskman := risk.NewManager(limits, risk.Tracker{PerLoss: 60 * time.Minute, ConsecutiveLossLimit: 3}, store)

	trades := queue.New(store, nil, 60*time.Minute)
	trades.SetClock(clock)

	pms := postmortem.New(store)
	pms.SetClock(clock)

	market := &fakeMarket{quotes: quotes}
	eng := New(&fakeForecasts{preds: preds}, market, riskman, trades, store, pms, Config{
		Mode:          mode,
		Interval:      15 * time.Minute,
		OrderQuantity: 10,
		FeeDefault:    0.01,
	})
	eng.SetClock(clock)

	return &testEnv{engine: eng, store: store, riskman: riskman, trades: trades, market: market, now: now}
}

func prediction(city, bracket string, p float64) domain.BracketPrediction {
	return domain.BracketPrediction{
		City:        city,
		Bracket:     bracket,
		Probability: p,
		ForecastAt:  time.Date(2026, 3, 1, 11, 45, 0, 0, time.UTC),
		Sources:     map[string]float64{"ecmwf": p},
	}
}

func quote(city, bracket string, yes, no float64) domain.MarketQuote {
	return domain.MarketQuote{
		City:      city,
		Bracket:   bracket,
		YesPrice:  yes,
		NoPrice:   no,
		Size:      500,
		Timestamp: time.Date(2026, 3, 1, 11, 59, 0, 0, time.UTC),
	}
}

// --- tests ---

func TestRunOnce_ManualModeQueuesProceeds(t *testing.T) {
	// YES: 0.28 − 0.22 − 0.01 = +0.05 → PROCEED
	// NO:  0.72 − 0.78 − 0.01 = −0.07 → SKIP
	env := newTestEnv(t, ModeManual,
		[]domain.BracketPrediction{prediction("nyc", "71-72", 0.28)},
		[]domain.MarketQuote{quote("nyc", "71-72", 0.22, 0.78)},
	)
	ctx := context.Background()

	result, err := env.engine.RunOnce(ctx)
	require.NoError(t, err)

	assert.Equal(t, 2, result.Evaluated)
	assert.Equal(t, 1, result.Proceeded)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, 1, result.Queued)
	assert.Zero(t, result.OrdersPlaced)
	assert.Empty(t, env.market.placed)

	pending, err := env.trades.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, domain.SideYes, pending[0].Side)
	assert.InDelta(t, 0.05, pending[0].EV, 1e-9)

	// Cada lado evaluado deja exactamente una fila de auditoría
	audit, err := env.store.ListAudit(ctx, env.now.Add(-time.Minute), env.now.Add(time.Minute))
	require.NoError(t, err)
	assert.Len(t, audit, 2)
}

func TestRunOnce_AutoModePlacesAndRecordsExposure(t *testing.T) {
	env := newTestEnv(t, ModeAuto,
		[]domain.BracketPrediction{prediction("nyc", "71-72", 0.28)},
		[]domain.MarketQuote{quote("nyc", "71-72", 0.22, 0.78)},
	)
	ctx := context.Background()

	result, err := env.engine.RunOnce(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, result.OrdersPlaced)
	assert.Zero(t, result.Queued)
	require.Len(t, env.market.placed, 1)
	assert.Equal(t, domain.SideYes, env.market.placed[0].Side)

	// El trade queda registrado como ejecutado y la exposición abierta
	executed, err := env.store.ListTrades(ctx, domain.StatusExecuted)
	require.NoError(t, err)
	assert.Len(t, executed, 1)
	assert.InDelta(t, 2.20, env.riskman.Snapshot().Exposure, 1e-9)
}

func TestRunOnce_AutoModePlacementFailureDropped(t *testing.T) {
	env := newTestEnv(t, ModeAuto,
		[]domain.BracketPrediction{prediction("nyc", "71-72", 0.28)},
		[]domain.MarketQuote{quote("nyc", "71-72", 0.22, 0.78)},
	)
	env.market.placeErr = errors.New("api unavailable")
	ctx := context.Background()

	result, err := env.engine.RunOnce(ctx)
	require.NoError(t, err)

	// Sin orden, sin registro, sin exposición — se abandona hasta el
	// próximo ciclo
	assert.Zero(t, result.OrdersPlaced)
	executed, err := env.store.ListTrades(ctx, domain.StatusExecuted)
	require.NoError(t, err)
	assert.Empty(t, executed)
	assert.Zero(t, env.riskman.Snapshot().Exposure)

	// La decisión PROCEED quedó auditada antes del intento
	audit, err := env.store.ListAudit(ctx, env.now.Add(-time.Minute), env.now.Add(time.Minute))
	require.NoError(t, err)
	var proceeds int
	for _, rec := range audit {
		if rec.Verdict == string(domain.VerdictProceed) {
			proceeds++
		}
	}
	assert.Equal(t, 1, proceeds)
}

func TestRunOnce_CooldownSkipsCycle(t *testing.T) {
	env := newTestEnv(t, ModeManual,
		[]domain.BracketPrediction{prediction("nyc", "71-72", 0.28)},
		[]domain.MarketQuote{quote("nyc", "71-72", 0.22, 0.78)},
	)
	ctx := context.Background()

	require.NoError(t, env.riskman.RecordLoss(ctx, 0, 1.00, env.now))

	result, err := env.engine.RunOnce(ctx)
	require.NoError(t, err)

	assert.True(t, result.SkippedCycle)
	assert.Zero(t, result.Evaluated)

	audit, err := env.store.ListAudit(ctx, env.now.Add(-time.Minute), env.now.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, audit, 1)
	assert.Equal(t, domain.AuditSkipCycle, audit[0].Verdict)
}

func TestRunOnce_BadPredictionIsolatesBracket(t *testing.T) {
	env := newTestEnv(t, ModeManual,
		[]domain.BracketPrediction{
			prediction("nyc", "71-72", math.NaN()),
			prediction("nyc", "73-74", 0.30),
		},
		[]domain.MarketQuote{
			quote("nyc", "71-72", 0.22, 0.78),
			quote("nyc", "73-74", 0.20, 0.80),
		},
	)
	ctx := context.Background()

	result, err := env.engine.RunOnce(ctx)
	require.NoError(t, err)

	// El bracket corrupto se detiene; el sano se evalúa con normalidad
	assert.Equal(t, 1, result.DataErrors)
	assert.Equal(t, 2, result.Evaluated)
	assert.Equal(t, 1, result.Queued)

	audit, err := env.store.ListAudit(ctx, env.now.Add(-time.Minute), env.now.Add(time.Minute))
	require.NoError(t, err)
	var dataErrs int
	for _, rec := range audit {
		if rec.Verdict == domain.AuditDataError {
			dataErrs++
			assert.Equal(t, "71-72", rec.Bracket)
		}
	}
	assert.Equal(t, 1, dataErrs)
}

func TestRunOnce_InconsistentQuoteIsolatesBracket(t *testing.T) {
	env := newTestEnv(t, ModeManual,
		[]domain.BracketPrediction{prediction("nyc", "71-72", 0.28)},
		// yes+no = 1.10, fuera de la tolerancia de 2¢
		[]domain.MarketQuote{quote("nyc", "71-72", 0.25, 0.85)},
	)
	ctx := context.Background()

	result, err := env.engine.RunOnce(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, result.DataErrors)
	assert.Zero(t, result.Evaluated)
	assert.Zero(t, result.Queued)
}

func TestRunOnce_FetchErrorAbortsCycle(t *testing.T) {
	env := newTestEnv(t, ModeManual, nil, nil)
	env.engine.forecasts = &fakeForecasts{err: errors.New("forecaster down")}

	_, err := env.engine.RunOnce(context.Background())
	assert.Error(t, err)
}

func TestExecuteApproved_PlacesAndMarksExecuted(t *testing.T) {
	env := newTestEnv(t, ModeManual,
		[]domain.BracketPrediction{prediction("nyc", "71-72", 0.28)},
		[]domain.MarketQuote{quote("nyc", "71-72", 0.22, 0.78)},
	)
	ctx := context.Background()

	_, err := env.engine.RunOnce(ctx)
	require.NoError(t, err)

	pending, err := env.trades.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	_, err = env.trades.Approve(ctx, pending[0].ID)
	require.NoError(t, err)

	executed, err := env.engine.ExecuteApproved(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, executed)
	require.Len(t, env.market.placed, 1)

	got, err := env.store.GetTrade(ctx, pending[0].ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusExecuted, got.Status)
	assert.InDelta(t, 2.20, env.riskman.Snapshot().Exposure, 1e-9)

	// La aprobación ya se consumió: otra pasada no coloca de nuevo
	executed, err = env.engine.ExecuteApproved(ctx)
	require.NoError(t, err)
	assert.Zero(t, executed)
	assert.Len(t, env.market.placed, 1)
}

func TestExecuteApproved_PlacementFailureReverts(t *testing.T) {
	env := newTestEnv(t, ModeManual,
		[]domain.BracketPrediction{prediction("nyc", "71-72", 0.28)},
		[]domain.MarketQuote{quote("nyc", "71-72", 0.22, 0.78)},
	)
	ctx := context.Background()

	_, err := env.engine.RunOnce(ctx)
	require.NoError(t, err)
	pending, err := env.trades.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	_, err = env.trades.Approve(ctx, pending[0].ID)
	require.NoError(t, err)

	env.market.placeErr = errors.New("insufficient liquidity")
	executed, err := env.engine.ExecuteApproved(ctx)
	require.NoError(t, err)
	assert.Zero(t, executed)

	// La aprobación no se pierde: vuelve a APPROVED anotada para reintento
	got, err := env.store.GetTrade(ctx, pending[0].ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusApproved, got.Status)
	assert.Equal(t, "insufficient liquidity", got.ExecError)
	assert.Zero(t, env.riskman.Snapshot().Exposure)
}

func TestApplySettlement_FeedsRiskAndIsIdempotent(t *testing.T) {
	env := newTestEnv(t, ModeAuto,
		[]domain.BracketPrediction{prediction("nyc", "71-72", 0.28)},
		[]domain.MarketQuote{quote("nyc", "71-72", 0.22, 0.78)},
	)
	ctx := context.Background()

	_, err := env.engine.RunOnce(ctx)
	require.NoError(t, err)
	require.InDelta(t, 2.20, env.riskman.Snapshot().Exposure, 1e-9)

	// El bracket no ocurrió: la posición YES pierde
	s := domain.Settlement{City: "nyc", Bracket: "68-69", SettledAt: env.now.Add(12 * time.Hour)}
	require.NoError(t, env.engine.ApplySettlement(ctx, s))

	snap := env.riskman.Snapshot()
	assert.Zero(t, snap.Exposure)
	// Pérdida realizada: coste $2.20 + fees $0.10
	assert.InDelta(t, 2.30, snap.DailyLoss, 1e-9)
	assert.Equal(t, 1, snap.ConsecutiveLosses)

	// Re-aplicar el settlement no duplica contadores
	require.NoError(t, env.engine.ApplySettlement(ctx, s))
	snap = env.riskman.Snapshot()
	assert.InDelta(t, 2.30, snap.DailyLoss, 1e-9)
	assert.Equal(t, 1, snap.ConsecutiveLosses)

	pms, err := env.store.ListPostMortems(ctx)
	require.NoError(t, err)
	assert.Len(t, pms, 1)
}

func TestApplySettlement_WinReleasesAndResetsStreak(t *testing.T) {
	env := newTestEnv(t, ModeAuto,
		[]domain.BracketPrediction{prediction("nyc", "71-72", 0.28)},
		[]domain.MarketQuote{quote("nyc", "71-72", 0.22, 0.78)},
	)
	ctx := context.Background()

	_, err := env.engine.RunOnce(ctx)
	require.NoError(t, err)

	s := domain.Settlement{City: "nyc", Bracket: "71-72", SettledAt: env.now.Add(12 * time.Hour)}
	require.NoError(t, env.engine.ApplySettlement(ctx, s))

	snap := env.riskman.Snapshot()
	assert.Zero(t, snap.Exposure)
	assert.Zero(t, snap.DailyLoss)
	assert.Zero(t, snap.ConsecutiveLosses)
}
