package domain

// Verdict es el resultado de evaluar un TradeSignal contra los límites.
type Verdict string

const (
	VerdictProceed Verdict = "PROCEED"
	VerdictSkip    Verdict = "SKIP"
	VerdictBlock   Verdict = "BLOCK"
)

// Razones estándar — cada check del Risk Manager responde una pregunta de
// seguridad distinta, y su razón debe ser inequívoca en los logs.
const (
	ReasonCooldown  = "cooldown active"
	ReasonTradeSize = "trade cost at or above max trade size"
	ReasonExposure  = "exposure would reach max daily exposure"
	ReasonDailyLoss = "daily loss limit reached"
	ReasonLowEV     = "ev below threshold"
)

// Decision es el veredicto del Risk Manager para una señal.
type Decision struct {
	Verdict Verdict
	Reason  string // vacío para PROCEED
}

// Proceed devuelve una decisión que autoriza el trade.
func Proceed() Decision {
	return Decision{Verdict: VerdictProceed}
}

// Skip devuelve una decisión de no operar por falta de atractivo (no es una
// violación de seguridad).
func Skip(reason string) Decision {
	return Decision{Verdict: VerdictSkip, Reason: reason}
}

// Block devuelve una decisión de bloqueo por límite de seguridad.
func Block(reason string) Decision {
	return Decision{Verdict: VerdictBlock, Reason: reason}
}
