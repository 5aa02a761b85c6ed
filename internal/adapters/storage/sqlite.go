package storage

// sqlite.go — persistencia del estado que debe sobrevivir reinicios.
//
// Tablas:
//   trades       — registros de trades (cola de aprobación + ejecutados)
//   risk_state   — snapshot único de los contadores de riesgo
//   postmortems  — reconciliación post-settlement, una fila por trade
//   audit_log    — una fila por decisión evaluada en cada ciclo
//
// Las transiciones de estado de trades son compare-and-set a nivel SQL:
// UPDATE ... WHERE id = ? AND status = ?. El perdedor ve 0 filas afectadas.

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dmarroquin/skytrader/internal/domain"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS trades (
    id          TEXT PRIMARY KEY,   -- UUID
    city        TEXT NOT NULL,
    bracket     TEXT NOT NULL,
    side        TEXT NOT NULL,      -- YES / NO
    price       REAL NOT NULL,
    quantity    REAL NOT NULL,
    model_prob  REAL NOT NULL,
    market_prob REAL NOT NULL,
    ev          REAL NOT NULL,
    fee         REAL NOT NULL DEFAULT 0,
    confidence  TEXT NOT NULL DEFAULT '',
    reasoning   TEXT NOT NULL DEFAULT '',
    status      TEXT NOT NULL DEFAULT 'PENDING',
    created_at  DATETIME NOT NULL,
    expires_at  DATETIME NOT NULL,
    acted_at    DATETIME,
    exec_error  TEXT NOT NULL DEFAULT '',
    sources     TEXT NOT NULL DEFAULT '{}'  -- snapshot del forecast, JSON
);

CREATE INDEX IF NOT EXISTS trades_status  ON trades(status);
CREATE INDEX IF NOT EXISTS trades_city    ON trades(city, bracket);

CREATE TABLE IF NOT EXISTS risk_state (
    id                 INTEGER PRIMARY KEY CHECK (id = 1),  -- fila única
    day                TEXT NOT NULL,
    exposure           REAL NOT NULL DEFAULT 0,
    daily_loss         REAL NOT NULL DEFAULT 0,
    consecutive_losses INTEGER NOT NULL DEFAULT 0,
    cooldown_until     DATETIME
);

CREATE TABLE IF NOT EXISTS postmortems (
    trade_id       TEXT PRIMARY KEY,
    city           TEXT NOT NULL,
    bracket        TEXT NOT NULL,
    side           TEXT NOT NULL,
    predicted_prob REAL NOT NULL,
    won            INTEGER NOT NULL,
    payout         REAL NOT NULL,
    cost           REAL NOT NULL,
    fees           REAL NOT NULL,
    realized_pnl   REAL NOT NULL,
    sources        TEXT NOT NULL DEFAULT '[]',  -- ranking por modelo, JSON
    narrative      TEXT NOT NULL DEFAULT '',
    settled_at     DATETIME NOT NULL,
    created_at     DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS audit_log (
    id       INTEGER PRIMARY KEY AUTOINCREMENT,
    cycle_id TEXT NOT NULL,
    city     TEXT NOT NULL DEFAULT '',
    bracket  TEXT NOT NULL DEFAULT '',
    side     TEXT NOT NULL DEFAULT '',
    verdict  TEXT NOT NULL,
    reason   TEXT NOT NULL DEFAULT '',
    ev       REAL NOT NULL DEFAULT 0,
    price    REAL NOT NULL DEFAULT 0,
    at       DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS audit_at    ON audit_log(at DESC);
CREATE INDEX IF NOT EXISTS audit_cycle ON audit_log(cycle_id);
`

// retentionAudit: el audit trail crece una fila por bracket/lado por ciclo —
// 30 días es suficiente histórico para el dashboard.
const retentionAudit = 30 * 24 * time.Hour

// SQLiteStore implementa ports.Store usando SQLite (pure Go, sin CGo).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore abre (o crea) la base de datos en la ruta dada,
// aplica el schema y limpia el audit log antiguo.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteStore: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite es single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStore: apply schema: %w", err)
	}

	s := &SQLiteStore{db: db}
	s.pruneOld(context.Background())
	return s, nil
}

// SaveTrade inserta un nuevo registro de trade.
func (s *SQLiteStore) SaveTrade(ctx context.Context, t domain.PendingTrade) error {
	sources, err := json.Marshal(t.Sources)
	if err != nil {
		return fmt.Errorf("storage.SaveTrade: marshal sources: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO trades
			(id, city, bracket, side, price, quantity, model_prob, market_prob,
			 ev, fee, confidence, reasoning, status, created_at, expires_at,
			 acted_at, exec_error, sources)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.City, t.Bracket, string(t.Side), t.Price, t.Quantity,
		t.ModelProb, t.MarketProb, t.EV, t.Fee, t.Confidence, t.Reasoning,
		string(t.Status), t.CreatedAt.UTC(), t.ExpiresAt.UTC(),
		nullableTime(t.ActedAt), t.ExecError, string(sources),
	)
	if err != nil {
		return fmt.Errorf("storage.SaveTrade: insert %s: %w", t.ID, err)
	}
	return nil
}

// GetTrade devuelve un trade por ID. sql.ErrNoRows si no existe.
func (s *SQLiteStore) GetTrade(ctx context.Context, id string) (domain.PendingTrade, error) {
	row := s.db.QueryRowContext(ctx, selectTrades+` WHERE id = ?`, id)
	t, err := scanTrade(row)
	if err != nil {
		return domain.PendingTrade{}, fmt.Errorf("storage.GetTrade %s: %w", id, err)
	}
	return t, nil
}

// ListTrades devuelve los trades con el status dado, más antiguos primero.
func (s *SQLiteStore) ListTrades(ctx context.Context, status domain.TradeStatus) ([]domain.PendingTrade, error) {
	rows, err := s.db.QueryContext(ctx, selectTrades+` WHERE status = ? ORDER BY created_at ASC`, string(status))
	if err != nil {
		return nil, fmt.Errorf("storage.ListTrades: query: %w", err)
	}
	defer rows.Close()

	var trades []domain.PendingTrade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("storage.ListTrades: scan: %w", err)
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// TransitionTrade es el compare-and-set de estado. Solo tiene éxito si el
// trade sigue exactamente en `from`; devuelve false para el perdedor.
func (s *SQLiteStore) TransitionTrade(ctx context.Context, id string, from, to domain.TradeStatus, actedAt time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE trades SET status = ?, acted_at = ? WHERE id = ? AND status = ?`,
		string(to), actedAt.UTC(), id, string(from),
	)
	if err != nil {
		return false, fmt.Errorf("storage.TransitionTrade %s %s→%s: %w", id, from, to, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("storage.TransitionTrade %s: rows affected: %w", id, err)
	}
	return n == 1, nil
}

// AnnotateExecFailure anota un fallo de ejecución sin tocar el status.
func (s *SQLiteStore) AnnotateExecFailure(ctx context.Context, id, execErr string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE trades SET exec_error = ? WHERE id = ?`, execErr, id)
	if err != nil {
		return fmt.Errorf("storage.AnnotateExecFailure %s: %w", id, err)
	}
	return nil
}

// SaveRiskState guarda el snapshot de contadores (fila única, upsert).
func (s *SQLiteStore) SaveRiskState(ctx context.Context, st domain.RiskState) error {
	var cooldown *time.Time
	if !st.CooldownUntil.IsZero() {
		u := st.CooldownUntil.UTC()
		cooldown = &u
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO risk_state (id, day, exposure, daily_loss, consecutive_losses, cooldown_until)
		VALUES (1, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			day                = excluded.day,
			exposure           = excluded.exposure,
			daily_loss         = excluded.daily_loss,
			consecutive_losses = excluded.consecutive_losses,
			cooldown_until     = excluded.cooldown_until`,
		st.Day, st.Exposure, st.DailyLoss, st.ConsecutiveLosses, cooldown,
	)
	if err != nil {
		return fmt.Errorf("storage.SaveRiskState: %w", err)
	}
	return nil
}

// LoadRiskState devuelve el snapshot guardado; found=false si nunca se guardó.
func (s *SQLiteStore) LoadRiskState(ctx context.Context) (domain.RiskState, bool, error) {
	var st domain.RiskState
	var cooldown sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT day, exposure, daily_loss, consecutive_losses, cooldown_until FROM risk_state WHERE id = 1`,
	).Scan(&st.Day, &st.Exposure, &st.DailyLoss, &st.ConsecutiveLosses, &cooldown)
	if err == sql.ErrNoRows {
		return domain.RiskState{}, false, nil
	}
	if err != nil {
		return domain.RiskState{}, false, fmt.Errorf("storage.LoadRiskState: %w", err)
	}
	if cooldown.Valid {
		st.CooldownUntil = parseStoredTime(cooldown.String)
	}
	return st, true, nil
}

// SavePostMortem inserta el post-mortem. INSERT OR IGNORE: regenerar para un
// trade ya registrado no crea duplicado ni modifica el existente.
func (s *SQLiteStore) SavePostMortem(ctx context.Context, pm domain.TradePostMortem) error {
	sources, err := json.Marshal(pm.Sources)
	if err != nil {
		return fmt.Errorf("storage.SavePostMortem: marshal sources: %w", err)
	}
	won := 0
	if pm.Won {
		won = 1
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO postmortems
			(trade_id, city, bracket, side, predicted_prob, won, payout, cost,
			 fees, realized_pnl, sources, narrative, settled_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		pm.TradeID, pm.City, pm.Bracket, string(pm.Side), pm.PredictedProb,
		won, pm.Payout, pm.Cost, pm.Fees, pm.RealizedPnL, string(sources),
		pm.Narrative, pm.SettledAt.UTC(), pm.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("storage.SavePostMortem %s: %w", pm.TradeID, err)
	}
	return nil
}

// GetPostMortem devuelve el post-mortem de un trade; found=false si no existe.
func (s *SQLiteStore) GetPostMortem(ctx context.Context, tradeID string) (domain.TradePostMortem, bool, error) {
	row := s.db.QueryRowContext(ctx, selectPostMortems+` WHERE trade_id = ?`, tradeID)
	pm, err := scanPostMortem(row)
	if err == sql.ErrNoRows {
		return domain.TradePostMortem{}, false, nil
	}
	if err != nil {
		return domain.TradePostMortem{}, false, fmt.Errorf("storage.GetPostMortem %s: %w", tradeID, err)
	}
	return pm, true, nil
}

// ListPostMortems devuelve todos los post-mortems, más recientes primero.
func (s *SQLiteStore) ListPostMortems(ctx context.Context) ([]domain.TradePostMortem, error) {
	rows, err := s.db.QueryContext(ctx, selectPostMortems+` ORDER BY settled_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("storage.ListPostMortems: query: %w", err)
	}
	defer rows.Close()

	var pms []domain.TradePostMortem
	for rows.Next() {
		pm, err := scanPostMortem(rows)
		if err != nil {
			return nil, fmt.Errorf("storage.ListPostMortems: scan: %w", err)
		}
		pms = append(pms, pm)
	}
	return pms, rows.Err()
}

// SaveAudit registra una decisión del ciclo en el audit trail.
func (s *SQLiteStore) SaveAudit(ctx context.Context, rec domain.AuditRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log (cycle_id, city, bracket, side, verdict, reason, ev, price, at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.CycleID, rec.City, rec.Bracket, string(rec.Side),
		rec.Verdict, rec.Reason, rec.EV, rec.Price, rec.At.UTC(),
	)
	if err != nil {
		return fmt.Errorf("storage.SaveAudit: %w", err)
	}
	return nil
}

// ListAudit devuelve el audit trail en el rango dado, más recientes primero.
func (s *SQLiteStore) ListAudit(ctx context.Context, from, to time.Time) ([]domain.AuditRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, cycle_id, city, bracket, side, verdict, reason, ev, price, at
		FROM audit_log WHERE at BETWEEN ? AND ? ORDER BY at DESC`,
		from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("storage.ListAudit: query: %w", err)
	}
	defer rows.Close()

	var recs []domain.AuditRecord
	for rows.Next() {
		var rec domain.AuditRecord
		var side, at string
		if err := rows.Scan(&rec.ID, &rec.CycleID, &rec.City, &rec.Bracket,
			&side, &rec.Verdict, &rec.Reason, &rec.EV, &rec.Price, &at); err != nil {
			return nil, fmt.Errorf("storage.ListAudit: scan: %w", err)
		}
		rec.Side = domain.Side(side)
		rec.At = parseStoredTime(at)
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// Close cierra la conexión a la base de datos.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- helpers internos ---

const selectTrades = `
	SELECT id, city, bracket, side, price, quantity, model_prob, market_prob,
	       ev, fee, confidence, reasoning, status, created_at, expires_at,
	       acted_at, exec_error, sources
	FROM trades`

const selectPostMortems = `
	SELECT trade_id, city, bracket, side, predicted_prob, won, payout, cost,
	       fees, realized_pnl, sources, narrative, settled_at, created_at
	FROM postmortems`

// rowScanner cubre sql.Row y sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanTrade(row rowScanner) (domain.PendingTrade, error) {
	var t domain.PendingTrade
	var side, status, createdAt, expiresAt, sources string
	var actedAt sql.NullString

	if err := row.Scan(&t.ID, &t.City, &t.Bracket, &side, &t.Price, &t.Quantity,
		&t.ModelProb, &t.MarketProb, &t.EV, &t.Fee, &t.Confidence, &t.Reasoning,
		&status, &createdAt, &expiresAt, &actedAt, &t.ExecError, &sources); err != nil {
		return domain.PendingTrade{}, err
	}

	t.Side = domain.Side(side)
	t.Status = domain.TradeStatus(status)
	t.CreatedAt = parseStoredTime(createdAt)
	t.ExpiresAt = parseStoredTime(expiresAt)
	if actedAt.Valid {
		at := parseStoredTime(actedAt.String)
		t.ActedAt = &at
	}
	if err := json.Unmarshal([]byte(sources), &t.Sources); err != nil {
		return domain.PendingTrade{}, fmt.Errorf("unmarshal sources: %w", err)
	}
	return t, nil
}

func scanPostMortem(row rowScanner) (domain.TradePostMortem, error) {
	var pm domain.TradePostMortem
	var side, sources, settledAt, createdAt string
	var won int

	if err := row.Scan(&pm.TradeID, &pm.City, &pm.Bracket, &side,
		&pm.PredictedProb, &won, &pm.Payout, &pm.Cost, &pm.Fees,
		&pm.RealizedPnL, &sources, &pm.Narrative, &settledAt, &createdAt); err != nil {
		return domain.TradePostMortem{}, err
	}

	pm.Side = domain.Side(side)
	pm.Won = won == 1
	pm.SettledAt = parseStoredTime(settledAt)
	pm.CreatedAt = parseStoredTime(createdAt)
	if err := json.Unmarshal([]byte(sources), &pm.Sources); err != nil {
		return domain.TradePostMortem{}, fmt.Errorf("unmarshal sources: %w", err)
	}
	return pm, nil
}

// parseStoredTime tolera los dos formatos que el driver puede devolver.
func parseStoredTime(s string) time.Time {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t
	}
	t, _ := time.Parse("2006-01-02 15:04:05.999999999-07:00", s)
	return t
}

func nullableTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

// pruneOld elimina audit antiguo para mantener la DB ligera.
func (s *SQLiteStore) pruneOld(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-retentionAudit)
	s.db.ExecContext(ctx, `DELETE FROM audit_log WHERE at < ?`, cutoff)
}
