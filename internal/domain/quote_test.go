package domain

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func validQuote() MarketQuote {
	return MarketQuote{
		City:      "nyc",
		Bracket:   "71-72",
		YesPrice:  0.22,
		NoPrice:   0.78,
		Size:      500,
		Timestamp: time.Now(),
	}
}

func TestMarketQuote_Valid(t *testing.T) {
	assert.NoError(t, validQuote().Validate())
}

func TestMarketQuote_SumWithinTolerance(t *testing.T) {
	q := validQuote()
	q.YesPrice = 0.22
	q.NoPrice = 0.79 // suma 1.01, dentro de los 2¢ de tolerancia
	assert.NoError(t, q.Validate())
}

func TestMarketQuote_SumBeyondTolerance(t *testing.T) {
	q := validQuote()
	q.NoPrice = 0.83 // suma 1.05 — malformada
	assert.Error(t, q.Validate())
}

func TestMarketQuote_NaNPrice(t *testing.T) {
	q := validQuote()
	q.YesPrice = math.NaN()
	assert.Error(t, q.Validate())
}

func TestMarketQuote_PriceOutOfRange(t *testing.T) {
	q := validQuote()
	q.YesPrice = 1.20
	q.NoPrice = -0.20
	assert.Error(t, q.Validate())
}

func TestBracketPrediction_Valid(t *testing.T) {
	p := BracketPrediction{City: "nyc", Bracket: "71-72", Probability: 0.28}
	assert.NoError(t, p.Validate())
}

func TestBracketPrediction_NaN(t *testing.T) {
	p := BracketPrediction{City: "nyc", Bracket: "71-72", Probability: math.NaN()}
	assert.Error(t, p.Validate())
}

func TestBracketPrediction_OutOfRange(t *testing.T) {
	p := BracketPrediction{City: "nyc", Bracket: "71-72", Probability: 1.3}
	assert.Error(t, p.Validate())

	p.Probability = -0.1
	assert.Error(t, p.Validate())
}

func TestBracketPrediction_MissingKey(t *testing.T) {
	p := BracketPrediction{Probability: 0.5}
	assert.Error(t, p.Validate())
}
