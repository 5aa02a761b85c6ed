package ports

import (
	"context"

	"github.com/dmarroquin/skytrader/internal/domain"
)

// ForecastProvider obtiene las predicciones por (city, bracket) del
// componente de forecasting.
type ForecastProvider interface {
	// FetchPredictions devuelve el set de predicciones activas para el ciclo.
	FetchPredictions(ctx context.Context) ([]domain.BracketPrediction, error)
}
