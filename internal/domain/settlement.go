package domain

import "time"

// Settlement is the authoritative resolution of a city's market: which
// bracket actually occurred. External input to the post-mortem generator.
type Settlement struct {
	City      string
	Bracket   string // the bracket that occurred
	SettledAt time.Time
	Raw       string // raw source data, kept for audit
}

// SourceAccuracy ranks one contributing forecast model against the realized
// outcome.
type SourceAccuracy struct {
	Source      string
	Probability float64 // what the model said for the traded bracket
	AbsError    float64 // |probability − realized outcome (0/1)|
	Rank        int     // 1 = most accurate
}

// TradePostMortem is the derived, persisted reconciliation of one settled
// trade: predicted vs actual, realized P&L, and narrative. Immutable after
// creation, one per trade identifier.
type TradePostMortem struct {
	TradeID       string
	City          string
	Bracket       string
	Side          Side
	PredictedProb float64 // probability the held side would win
	Won           bool
	Payout        float64 // $1.00 per contract if the held side won, else $0
	Cost          float64
	Fees          float64
	RealizedPnL   float64 // (payout − cost) − fees
	Sources       []SourceAccuracy
	Narrative     string
	SettledAt     time.Time
	CreatedAt     time.Time
}
