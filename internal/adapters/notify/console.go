package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dmarroquin/skytrader/internal/domain"
	"github.com/olekukonko/tablewriter"
)

// Console implementa ports.Notifier escribiendo a stdout. En producción el
// dashboard es un colaborador externo; esta implementación cubre operación
// local y tests.
type Console struct {
	out io.Writer
}

// NewConsole crea un notificador que escribe a stdout.
func NewConsole() *Console {
	return &Console{out: os.Stdout}
}

// NewConsoleWriter crea un notificador para tests.
func NewConsoleWriter(w io.Writer) *Console {
	return &Console{out: w}
}

// TradeCreated imprime el trade pendiente con todos sus campos.
func (c *Console) TradeCreated(_ context.Context, t domain.PendingTrade) error {
	fmt.Fprintf(c.out, "\n[%s] TRADE AWAITING APPROVAL — expires %s\n",
		time.Now().Format("15:04:05"), t.ExpiresAt.Format("15:04:05"))

	table := tablewriter.NewWriter(c.out)
	table.Header("ID", "City", "Bracket", "Side", "Price", "Qty", "Model%", "EV", "Conf")
	table.Append(
		shortID(t.ID),
		t.City,
		t.Bracket,
		string(t.Side),
		fmt.Sprintf("%.0f¢", t.Price*100),
		fmt.Sprintf("%.0f", t.Quantity),
		fmt.Sprintf("%.1f%%", t.ModelProb*100),
		fmt.Sprintf("%+.1f¢", t.EV*100),
		t.Confidence,
	)
	table.Render()

	fmt.Fprintf(c.out, "  %s\n", t.Reasoning)
	fmt.Fprintf(c.out, "  approve: trader -approve %s | reject: trader -reject %s\n", t.ID, t.ID)
	return nil
}

// TradeResolved imprime el cambio de estado en una línea.
func (c *Console) TradeResolved(_ context.Context, t domain.PendingTrade) error {
	extra := ""
	if t.ExecError != "" {
		extra = " exec_error=" + t.ExecError
	}
	fmt.Fprintf(c.out, "[%s] trade %s → %s (%s %s/%s %s)%s\n",
		time.Now().Format("15:04:05"), shortID(t.ID), t.Status,
		t.Side, t.City, t.Bracket, fmt.Sprintf("%.0f¢", t.Price*100), extra)
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
