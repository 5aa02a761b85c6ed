package ports

import (
	"context"
	"time"

	"github.com/dmarroquin/skytrader/internal/domain"
)

// Store persiste el estado que debe sobrevivir reinicios: trades, contadores
// de riesgo, post-mortems y el audit trail.
type Store interface {
	// Trades
	SaveTrade(ctx context.Context, trade domain.PendingTrade) error
	GetTrade(ctx context.Context, id string) (domain.PendingTrade, error)
	ListTrades(ctx context.Context, status domain.TradeStatus) ([]domain.PendingTrade, error)

	// TransitionTrade ejecuta el compare-and-set de estado: solo tiene éxito
	// si el trade sigue en `from`. Devuelve false si otra transición ganó.
	TransitionTrade(ctx context.Context, id string, from, to domain.TradeStatus, actedAt time.Time) (bool, error)

	// AnnotateExecFailure registra un fallo de colocación sobre un trade
	// APPROVED sin cambiar su estado.
	AnnotateExecFailure(ctx context.Context, id, execErr string) error

	// Estado de riesgo
	SaveRiskState(ctx context.Context, state domain.RiskState) error
	LoadRiskState(ctx context.Context) (domain.RiskState, bool, error)

	// Post-mortems
	SavePostMortem(ctx context.Context, pm domain.TradePostMortem) error
	GetPostMortem(ctx context.Context, tradeID string) (domain.TradePostMortem, bool, error)
	ListPostMortems(ctx context.Context) ([]domain.TradePostMortem, error)

	// Audit trail
	SaveAudit(ctx context.Context, rec domain.AuditRecord) error
	ListAudit(ctx context.Context, from, to time.Time) ([]domain.AuditRecord, error)

	// Close cierra la conexión limpiamente.
	Close() error
}
