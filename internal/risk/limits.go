package risk

// Limits son los límites duros configurados por el usuario. Los rangos
// documentados se validan al cargar la configuración; aquí se asumen válidos.
//
// Todos los límites absolutos usan semántica >=: el valor exactamente en el
// límite cuenta como violación, nunca se redondea permisivamente.
type Limits struct {
	MaxTradeSize     float64 // coste máximo por trade (price × quantity), USD
	DailyLossLimit   float64 // pérdida realizada máxima por día de trading, USD
	MaxDailyExposure float64 // coste base acumulado máximo de posiciones abiertas, USD
	MinEVThreshold   float64 // EV mínimo por contrato para considerar un trade
}
