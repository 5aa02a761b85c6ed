package postmortem

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/dmarroquin/skytrader/internal/domain"
	"github.com/dmarroquin/skytrader/internal/ports"
)

// Generator reconciles settled trades: predicted vs actual outcome, realized
// P&L after fees, per-source accuracy ranking, and a narrative. Generation
// is idempotent per trade identifier — re-running returns the stored record
// untouched.
type Generator struct {
	store ports.Store
	now   func() time.Time
}

// New creates a post-mortem generator backed by the given store.
func New(store ports.Store) *Generator {
	return &Generator{store: store, now: time.Now}
}

// SetClock inyecta un reloj para tests.
func (g *Generator) SetClock(now func() time.Time) {
	g.now = now
}

// Generate builds and persists the post-mortem for one settled trade.
// Returns created=false (with the existing record) when the trade was
// already reconciled — the caller must not re-apply risk feedback then.
func (g *Generator) Generate(ctx context.Context, trade domain.PendingTrade, s domain.Settlement) (domain.TradePostMortem, bool, error) {
	if existing, found, err := g.store.GetPostMortem(ctx, trade.ID); err != nil {
		return domain.TradePostMortem{}, false, fmt.Errorf("postmortem.Generate %s: lookup: %w", trade.ID, err)
	} else if found {
		return existing, false, nil
	}

	bracketOccurred := trade.Bracket == s.Bracket
	won := (trade.Side == domain.SideYes) == bracketOccurred

	payout := 0.0
	if won {
		payout = trade.Quantity * 1.00 // $1.00 por contrato del lado ganador
	}
	cost := trade.Cost()
	fees := trade.Fee * trade.Quantity

	pm := domain.TradePostMortem{
		TradeID:       trade.ID,
		City:          trade.City,
		Bracket:       trade.Bracket,
		Side:          trade.Side,
		PredictedProb: trade.ModelProb,
		Won:           won,
		Payout:        payout,
		Cost:          cost,
		Fees:          fees,
		RealizedPnL:   (payout - cost) - fees,
		Sources:       rankSources(trade.Sources, bracketOccurred),
		SettledAt:     s.SettledAt,
		CreatedAt:     g.now(),
	}
	pm.Narrative = narrative(trade, s, pm)

	if err := g.store.SavePostMortem(ctx, pm); err != nil {
		return domain.TradePostMortem{}, false, fmt.Errorf("postmortem.Generate %s: save: %w", trade.ID, err)
	}
	return pm, true, nil
}

// rankSources ordena los modelos contribuyentes por error absoluto frente
// al resultado binario realizado. Empates se rompen por nombre para que el
// ranking sea determinista.
func rankSources(sources map[string]float64, bracketOccurred bool) []domain.SourceAccuracy {
	outcome := 0.0
	if bracketOccurred {
		outcome = 1.0
	}

	ranked := make([]domain.SourceAccuracy, 0, len(sources))
	for name, prob := range sources {
		ranked = append(ranked, domain.SourceAccuracy{
			Source:      name,
			Probability: prob,
			AbsError:    math.Abs(prob - outcome),
		})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].AbsError != ranked[j].AbsError {
			return ranked[i].AbsError < ranked[j].AbsError
		}
		return ranked[i].Source < ranked[j].Source
	})
	for i := range ranked {
		ranked[i].Rank = i + 1
	}
	return ranked
}

// narrative arma el texto del post-mortem a partir de la reconciliación.
func narrative(trade domain.PendingTrade, s domain.Settlement, pm domain.TradePostMortem) string {
	var b strings.Builder

	occurred := "did not occur"
	if trade.Bracket == s.Bracket {
		occurred = "occurred"
	}
	verdict := "lost"
	if pm.Won {
		verdict = "won"
	}

	fmt.Fprintf(&b, "%s %s: took %s at %.0f¢ with model at %.1f%%. Bracket %s — the %s side %s. ",
		trade.City, trade.Bracket, trade.Side, trade.Price*100,
		trade.ModelProb*100, occurred, trade.Side, verdict)
	fmt.Fprintf(&b, "Payout $%.2f on $%.2f cost and $%.2f fees: realized P&L %+.2f.",
		pm.Payout, pm.Cost, pm.Fees, pm.RealizedPnL)

	if len(pm.Sources) > 0 {
		best := pm.Sources[0]
		worst := pm.Sources[len(pm.Sources)-1]
		fmt.Fprintf(&b, " Most accurate source: %s (err %.2f); least: %s (err %.2f).",
			best.Source, best.AbsError, worst.Source, worst.AbsError)
	}
	return b.String()
}
