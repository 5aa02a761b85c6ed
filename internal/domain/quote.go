package domain

import (
	"fmt"
	"math"
	"time"
)

// QuoteSumTolerance es la desviación máxima permitida de yes+no respecto a
// $1.00. Books con precios en céntimos acumulan hasta ~2¢ de redondeo.
const QuoteSumTolerance = 0.02

// MarketQuote es el estado actual negociable de un par (city, bracket).
// Input externo de solo lectura.
type MarketQuote struct {
	City      string
	Bracket   string
	YesPrice  float64
	NoPrice   float64
	Size      float64 // contratos disponibles
	Timestamp time.Time
}

// Key devuelve la clave (city, bracket) usada para cruzar con predicciones.
func (q MarketQuote) Key() string {
	return q.City + "|" + q.Bracket
}

// Validate verifica la coherencia de la quote. Una quote con precios NaN,
// fuera de [0,1], o con yes+no lejos de $1.00 se trata como malformada y
// detiene la evaluación de su bracket.
func (q MarketQuote) Validate() error {
	if math.IsNaN(q.YesPrice) || math.IsNaN(q.NoPrice) {
		return fmt.Errorf("quote %s: NaN price", q.Key())
	}
	if q.YesPrice < 0 || q.YesPrice > 1 {
		return fmt.Errorf("quote %s: yes price %.4f outside [0,1]", q.Key(), q.YesPrice)
	}
	if q.NoPrice < 0 || q.NoPrice > 1 {
		return fmt.Errorf("quote %s: no price %.4f outside [0,1]", q.Key(), q.NoPrice)
	}
	if diff := math.Abs(q.YesPrice + q.NoPrice - 1.0); diff > QuoteSumTolerance {
		return fmt.Errorf("quote %s: yes+no = %.4f deviates %.4f from 1.00", q.Key(), q.YesPrice+q.NoPrice, diff)
	}
	if q.Size < 0 || math.IsNaN(q.Size) {
		return fmt.Errorf("quote %s: invalid size %.2f", q.Key(), q.Size)
	}
	return nil
}
