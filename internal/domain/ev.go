package domain

import (
	"fmt"
	"math"
)

// EV computes the expected value per contract for one side of a binary
// market: modelProb × $1.00 − price − fee. Pure function, no side effects.
//
// Inputs outside their contract (NaN, probability or price outside [0,1],
// negative fee) return an error — never a clamped or zeroed value. The
// caller decides what to do with a bad bracket; this function refuses to
// produce a number from garbage.
func EV(modelProb, price, fee float64) (float64, error) {
	if math.IsNaN(modelProb) || modelProb < 0 || modelProb > 1 {
		return 0, fmt.Errorf("domain.EV: model probability %v outside [0,1]", modelProb)
	}
	if math.IsNaN(price) || price < 0 || price > 1 {
		return 0, fmt.Errorf("domain.EV: price %v outside [0,1]", price)
	}
	if math.IsNaN(fee) || fee < 0 {
		return 0, fmt.Errorf("domain.EV: invalid fee %v", fee)
	}
	return modelProb*1.00 - price - fee, nil
}
