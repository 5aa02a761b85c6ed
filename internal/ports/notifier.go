package ports

import (
	"context"

	"github.com/dmarroquin/skytrader/internal/domain"
)

// Notifier presenta trades pendientes y cambios de estado al usuario.
// Su fallo nunca revierte una entrada ya persistida en la cola — el trade
// sigue existiendo para que el usuario lo descubra vía dashboard.
type Notifier interface {
	// TradeCreated anuncia un trade recién encolado con todos sus campos.
	TradeCreated(ctx context.Context, trade domain.PendingTrade) error

	// TradeResolved anuncia una transición terminal (o fallo de ejecución).
	TradeResolved(ctx context.Context, trade domain.PendingTrade) error
}
