package domain

import "fmt"

// Side is which side of the binary contract a trade takes.
type Side string

const (
	SideYes Side = "YES"
	SideNo  Side = "NO"
)

// TradeSignal is the transient evaluation unit produced each cycle for one
// (city, bracket, side). It either becomes an order, a queued trade, or a
// logged skip — it is never persisted directly.
type TradeSignal struct {
	City      string
	Bracket   string
	Side      Side
	Price     float64
	ModelProb float64 // probability that THIS side wins
	EV        float64 // per contract
	Quantity  float64
	Fee       float64            // per contract
	Sources   map[string]float64 // forecast snapshot, carried through for the post-mortem
}

// Cost is the total cost basis of the proposed trade.
func (s TradeSignal) Cost() float64 {
	return s.Price * s.Quantity
}

// Confidence buckets the signal's edge into a human-readable label.
func (s TradeSignal) Confidence() string {
	switch {
	case s.EV >= 0.10:
		return "high"
	case s.EV >= 0.05:
		return "medium"
	default:
		return "low"
	}
}

// Reasoning renders the trade rationale shown to the human approver.
func (s TradeSignal) Reasoning() string {
	return fmt.Sprintf("model %.1f%% vs market %.0f¢ on %s %s/%s — EV %+.1f¢ per contract after %.1f¢ fee",
		s.ModelProb*100, s.Price*100, s.Side, s.City, s.Bracket, s.EV*100, s.Fee*100)
}

// YesSignal builds the YES-side signal for a bracket: the bracket's own
// probability against the YES price.
func YesSignal(pred BracketPrediction, quote MarketQuote, fee, quantity float64) (TradeSignal, error) {
	ev, err := EV(pred.Probability, quote.YesPrice, fee)
	if err != nil {
		return TradeSignal{}, err
	}
	return TradeSignal{
		City:      pred.City,
		Bracket:   pred.Bracket,
		Side:      SideYes,
		Price:     quote.YesPrice,
		ModelProb: pred.Probability,
		EV:        ev,
		Quantity:  quantity,
		Fee:       fee,
		Sources:   pred.Sources,
	}, nil
}

// NoSignal builds the NO-side signal: the complement probability against the
// NO price. Taking NO is an economically distinct trade from not taking YES,
// with its own fee.
func NoSignal(pred BracketPrediction, quote MarketQuote, fee, quantity float64) (TradeSignal, error) {
	ev, err := EV(1-pred.Probability, quote.NoPrice, fee)
	if err != nil {
		return TradeSignal{}, err
	}
	return TradeSignal{
		City:      pred.City,
		Bracket:   pred.Bracket,
		Side:      SideNo,
		Price:     quote.NoPrice,
		ModelProb: 1 - pred.Probability,
		EV:        ev,
		Quantity:  quantity,
		Fee:       fee,
		Sources:   pred.Sources,
	}, nil
}
