package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dmarroquin/skytrader/internal/adapters/storage"
	"github.com/dmarroquin/skytrader/internal/domain"
	"github.com/olekukonko/tablewriter"
)

// runReport imprime el estado de la cola, el audit trail reciente y los
// post-mortems registrados.
func runReport(ctx context.Context, store *storage.SQLiteStore) {
	fmt.Printf("\n╔══════════════════════════════════════════════════════════════╗\n")
	fmt.Printf("║                     SKYTRADER REPORT                         ║\n")
	fmt.Printf("╚══════════════════════════════════════════════════════════════╝\n")

	if state, found, err := store.LoadRiskState(ctx); err != nil {
		slog.Error("failed to load risk state", "err", err)
		os.Exit(1)
	} else if found {
		fmt.Printf("\n── RISK STATE (%s) ──\n", state.Day)
		fmt.Printf("  Exposure:           $%.2f\n", state.Exposure)
		fmt.Printf("  Daily loss:         $%.2f\n", state.DailyLoss)
		fmt.Printf("  Consecutive losses: %d\n", state.ConsecutiveLosses)
		if !state.CooldownUntil.IsZero() && time.Now().Before(state.CooldownUntil) {
			fmt.Printf("  Cooldown:           ACTIVE until %s\n", state.CooldownUntil.Format("15:04:05"))
		} else {
			fmt.Printf("  Cooldown:           none\n")
		}
	}

	printTradeTable(ctx, store, domain.StatusPending, "PENDING APPROVAL")
	printTradeTable(ctx, store, domain.StatusApproved, "APPROVED, AWAITING EXECUTION")

	printPostMortems(ctx, store)
	printAudit(ctx, store)
	fmt.Println()
}

func printTradeTable(ctx context.Context, store *storage.SQLiteStore, status domain.TradeStatus, title string) {
	trades, err := store.ListTrades(ctx, status)
	if err != nil {
		slog.Error("failed to list trades", "status", status, "err", err)
		return
	}

	fmt.Printf("\n── %s (%d) ──\n", title, len(trades))
	if len(trades) == 0 {
		fmt.Println("  (none)")
		return
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("ID", "City", "Bracket", "Side", "Price", "Qty", "EV", "Conf", "Expires", "ExecErr")
	for _, t := range trades {
		execErr := "-"
		if t.ExecError != "" {
			execErr = truncate(t.ExecError, 24)
		}
		table.Append(
			t.ID[:8],
			t.City,
			t.Bracket,
			string(t.Side),
			fmt.Sprintf("%.0f¢", t.Price*100),
			fmt.Sprintf("%.0f", t.Quantity),
			fmt.Sprintf("%+.1f¢", t.EV*100),
			t.Confidence,
			t.ExpiresAt.Format("15:04:05"),
			execErr,
		)
	}
	table.Render()
}

func printPostMortems(ctx context.Context, store *storage.SQLiteStore) {
	pms, err := store.ListPostMortems(ctx)
	if err != nil {
		slog.Error("failed to list post-mortems", "err", err)
		return
	}

	fmt.Printf("\n── POST-MORTEMS (%d) ──\n", len(pms))
	if len(pms) == 0 {
		fmt.Println("  (none)")
		return
	}

	var totalPnL float64
	wins := 0
	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Trade", "City", "Bracket", "Side", "Model%", "Won", "PnL", "Best source")
	for _, pm := range pms {
		totalPnL += pm.RealizedPnL
		won := "no"
		if pm.Won {
			won = "yes"
			wins++
		}
		best := "-"
		if len(pm.Sources) > 0 {
			best = pm.Sources[0].Source
		}
		table.Append(
			pm.TradeID[:8],
			pm.City,
			pm.Bracket,
			string(pm.Side),
			fmt.Sprintf("%.1f%%", pm.PredictedProb*100),
			won,
			fmt.Sprintf("$%+.2f", pm.RealizedPnL),
			best,
		)
	}
	table.Render()
	fmt.Printf("  Settled: %d | Wins: %d | Total realized P&L: $%+.2f\n", len(pms), wins, totalPnL)
}

func printAudit(ctx context.Context, store *storage.SQLiteStore) {
	recs, err := store.ListAudit(ctx, time.Now().Add(-24*time.Hour), time.Now().Add(time.Minute))
	if err != nil {
		slog.Error("failed to list audit trail", "err", err)
		return
	}

	fmt.Printf("\n── AUDIT TRAIL (last 24h, %d decisions) ──\n", len(recs))
	if len(recs) == 0 {
		fmt.Println("  (none)")
		return
	}

	shown := recs
	if len(shown) > 40 {
		shown = shown[:40]
	}
	for _, rec := range shown {
		target := rec.City + "/" + rec.Bracket
		if rec.Side != "" {
			target += " " + string(rec.Side)
		}
		if target == "/" {
			target = "(account)"
		}
		fmt.Printf("  %s [%s] %-10s %-22s ev=%+.3f %s\n",
			rec.At.Format("15:04:05"), rec.CycleID, rec.Verdict, target, rec.EV, rec.Reason)
	}
	if len(recs) > len(shown) {
		fmt.Printf("  ... %d more\n", len(recs)-len(shown))
	}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
