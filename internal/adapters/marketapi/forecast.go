package marketapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/dmarroquin/skytrader/internal/domain"
	"golang.org/x/time/rate"
)

// ForecastClient obtiene predicciones del servicio de forecasting.
// Implementa ports.ForecastProvider.
type ForecastClient struct {
	client *Client
	base   string
}

// NewForecastClient crea un cliente para el servicio de forecasting.
func NewForecastClient(base string) *ForecastClient {
	return &ForecastClient{
		client: &Client{
			http:          &http.Client{Timeout: 10 * time.Second},
			quotesLimiter: rate.NewLimiter(quotesRatePerSec, 5),
		},
		base: base,
	}
}

// predictionDTO es el wire format de una predicción.
type predictionDTO struct {
	City        string             `json:"city"`
	Bracket     string             `json:"bracket"`
	Probability float64            `json:"probability"`
	ForecastAt  string             `json:"forecast_at"`
	Sources     map[string]float64 `json:"sources"`
}

// FetchPredictions devuelve el set de predicciones activas. No valida las
// probabilidades — el orquestador aisla los brackets con datos malformados
// y los registra como fallos de integridad.
func (f *ForecastClient) FetchPredictions(ctx context.Context) ([]domain.BracketPrediction, error) {
	var dtos []predictionDTO
	if err := f.client.get(ctx, f.client.quotesLimiter, f.base+"/predictions", &dtos); err != nil {
		return nil, fmt.Errorf("marketapi.FetchPredictions: %w", err)
	}

	preds := make([]domain.BracketPrediction, 0, len(dtos))
	for _, d := range dtos {
		at, _ := time.Parse(time.RFC3339, d.ForecastAt)
		preds = append(preds, domain.BracketPrediction{
			City:        d.City,
			Bracket:     d.Bracket,
			Probability: d.Probability,
			ForecastAt:  at,
			Sources:     d.Sources,
		})
	}
	return preds, nil
}
