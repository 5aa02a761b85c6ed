package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/dmarroquin/skytrader/internal/domain"
)

// audit persiste una fila del audit trail. Un fallo de persistencia se
// loggea pero no detiene el ciclo — el log estructurado conserva el rastro.
func (e *Engine) audit(ctx context.Context, rec domain.AuditRecord) {
	if err := e.store.SaveAudit(ctx, rec); err != nil {
		slog.Error("engine: audit write failed",
			"cycle", rec.CycleID, "city", rec.City, "bracket", rec.Bracket,
			"verdict", rec.Verdict, "err", err)
	}
}

// auditDataError registra un fallo de integridad de datos que detuvo la
// evaluación de un bracket. El resto del ciclo continúa.
func (e *Engine) auditDataError(ctx context.Context, result *CycleResult, city, bracket string, cause error, now time.Time) {
	result.DataErrors++
	slog.Error("engine: data integrity failure, bracket halted",
		"cycle", result.CycleID, "city", city, "bracket", bracket, "err", cause)
	e.audit(ctx, domain.AuditRecord{
		CycleID: result.CycleID,
		City:    city,
		Bracket: bracket,
		Verdict: domain.AuditDataError,
		Reason:  cause.Error(),
		At:      now,
	})
}
