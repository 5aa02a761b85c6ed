package ports

import (
	"context"

	"github.com/dmarroquin/skytrader/internal/domain"
)

// MarketClient habla con el colaborador de acceso a mercado: quotes en vivo
// y colocación de órdenes. Puede estar inalcanzable — el orquestador trata
// sus fallos como condición recuperable.
type MarketClient interface {
	// FetchQuotes devuelve las quotes actuales por (city, bracket).
	FetchQuotes(ctx context.Context) ([]domain.MarketQuote, error)

	// PlaceOrder envía una orden y devuelve la confirmación de fill.
	PlaceOrder(ctx context.Context, req domain.PlaceOrderRequest) (domain.OrderFill, error)
}
