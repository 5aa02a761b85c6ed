package domain

import (
	"fmt"
	"math"
	"time"
)

// BracketPrediction es la probabilidad pronosticada para un par (city, bracket)
// en un instante dado. Inmutable una vez emitida por el forecaster — el core
// solo la consume, nunca la modifica.
type BracketPrediction struct {
	City        string
	Bracket     string
	Probability float64
	ForecastAt  time.Time
	Sources     map[string]float64 // breakdown por modelo contribuyente (opaco para el core)
}

// Key devuelve la clave (city, bracket) usada para cruzar con quotes.
func (p BracketPrediction) Key() string {
	return p.City + "|" + p.Bracket
}

// Validate verifica que la predicción sea apta para calcular EV.
// Una probabilidad NaN o fuera de [0,1] es una violación de contrato del
// forecaster — se aisla el bracket afectado, nunca se ajusta el valor.
func (p BracketPrediction) Validate() error {
	if p.City == "" || p.Bracket == "" {
		return fmt.Errorf("prediction missing city/bracket")
	}
	if math.IsNaN(p.Probability) {
		return fmt.Errorf("prediction %s: probability is NaN", p.Key())
	}
	if p.Probability < 0 || p.Probability > 1 {
		return fmt.Errorf("prediction %s: probability %.4f outside [0,1]", p.Key(), p.Probability)
	}
	return nil
}
