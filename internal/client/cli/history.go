package cli

import (
	"context"
	"fmt"
	"sort"
	"time"
)

func (c *Cli) runHistory(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: finkeeper history <state|diff|evolution|timeline> [args]")
	}

	accessToken, err := c.authService.AccessToken(ctx)
	if err != nil {
		return fmt.Errorf("not authenticated, run 'finkeeper login' first")
	}

	switch args[0] {
	case "state":
		return c.runHistoryState(ctx, accessToken, args[1:])
	case "diff":
		return c.runHistoryDiff(ctx, accessToken, args[1:])
	case "evolution":
		return c.runHistoryEvolution(ctx, accessToken, args[1:])
	case "timeline":
		return c.runHistoryTimeline(ctx, accessToken, args[1:])
	default:
		return fmt.Errorf("unknown history subcommand %q: use state, diff, evolution or timeline", args[0])
	}
}

func (c *Cli) runHistoryState(ctx context.Context, accessToken string, args []string) error {
	at := time.Now().UTC()
	if len(args) > 0 {
		parsed, err := parseTimeArg(args[0])
		if err != nil {
			return err
		}
		at = parsed
	}

	resp, err := c.apiClient.StateAt(ctx, accessToken, at, false)
	if err != nil {
		return fmt.Errorf("failed to get state: %w", err)
	}

	c.io.Printf("=== State at %s ===\n", resp.AsOf.Format(time.RFC3339))
	c.io.Println()
	c.io.Printf("Balance:        %s\n", resp.Balance)
	c.io.Printf("Total income:   %s\n", resp.TotalIncome)
	c.io.Printf("Total expenses: %s\n", resp.TotalExpenses)
	c.io.Printf("Transactions:   %d\n", resp.TransactionCount)

	if len(resp.Accounts) > 0 {
		c.io.Println()
		c.io.Println("Accounts:")
		for _, name := range sortedKeys(resp.Accounts) {
			c.io.Printf("  %-20s %s\n", name, resp.Accounts[name])
		}
	}
	if len(resp.Categories) > 0 {
		c.io.Println()
		c.io.Println("Categories:")
		for _, name := range sortedKeys(resp.Categories) {
			c.io.Printf("  %-20s %s\n", name, resp.Categories[name])
		}
	}
	if len(resp.Budgets) > 0 {
		c.io.Println()
		c.io.Println("Budgets:")
		for _, budget := range resp.Budgets {
			c.io.Printf("  %-20s %s of %s\n", budget.Category, budget.Spent, budget.Limit)
		}
	}
	if len(resp.Goals) > 0 {
		c.io.Println()
		c.io.Println("Goals:")
		for _, goal := range resp.Goals {
			c.io.Printf("  %-20s %s of %s\n", goal.Name, goal.Saved, goal.Target)
		}
	}
	if resp.Replay != nil {
		c.io.Println()
		if resp.Replay.SnapshotTakenAt != nil {
			c.io.Printf("Replayed %d delta(s) from %s snapshot taken %s in %dms.\n",
				resp.Replay.DeltasApplied,
				resp.Replay.SnapshotType,
				resp.Replay.SnapshotTakenAt.Format(time.RFC3339),
				resp.Replay.DurationMS)
		} else {
			c.io.Printf("Replayed %d delta(s) from scratch in %dms.\n",
				resp.Replay.DeltasApplied, resp.Replay.DurationMS)
		}
	}

	return nil
}

func (c *Cli) runHistoryDiff(ctx context.Context, accessToken string, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: finkeeper history diff <from> <to>")
	}
	from, err := parseTimeArg(args[0])
	if err != nil {
		return err
	}
	to, err := parseTimeArg(args[1])
	if err != nil {
		return err
	}

	resp, err := c.apiClient.Diff(ctx, accessToken, from, to)
	if err != nil {
		return fmt.Errorf("failed to diff states: %w", err)
	}

	c.io.Printf("=== Diff %s .. %s ===\n",
		resp.From.Format("2006-01-02"), resp.To.Format("2006-01-02"))
	c.io.Println()
	c.io.Printf("Balance change:  %s\n", resp.BalanceDelta)
	c.io.Printf("Income change:   %s\n", resp.IncomeDelta)
	c.io.Printf("Expenses change: %s\n", resp.ExpensesDelta)
	c.io.Printf("New records:     %d\n", resp.CountDelta)

	if len(resp.ByCategory) > 0 {
		c.io.Println()
		c.io.Println("By category:")
		for _, name := range sortedKeys(resp.ByCategory) {
			c.io.Printf("  %-20s %s\n", name, resp.ByCategory[name])
		}
	}
	if resp.Summary != "" {
		c.io.Println()
		c.io.Println(resp.Summary)
	}

	return nil
}

func (c *Cli) runHistoryEvolution(ctx context.Context, accessToken string, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: finkeeper history evolution <from> <to> [daily|weekly|monthly]")
	}
	start, err := parseTimeArg(args[0])
	if err != nil {
		return err
	}
	end, err := parseTimeArg(args[1])
	if err != nil {
		return err
	}
	interval := "daily"
	if len(args) > 2 {
		interval = args[2]
	}

	resp, err := c.apiClient.Evolution(ctx, accessToken, start, end, interval)
	if err != nil {
		return fmt.Errorf("failed to get evolution: %w", err)
	}

	c.io.Printf("=== Evolution %s .. %s (%s) ===\n",
		resp.Start.Format("2006-01-02"), resp.End.Format("2006-01-02"), resp.Interval)
	c.io.Println()
	c.io.Printf("%-12s %14s %14s %14s %6s\n", "date", "balance", "income", "expenses", "count")
	for _, point := range resp.Points {
		c.io.Printf("%-12s %14s %14s %14s %6d\n",
			point.At.Format("2006-01-02"),
			point.Balance,
			point.TotalIncome,
			point.TotalExpenses,
			point.TransactionCount)
	}

	return nil
}

func (c *Cli) runHistoryTimeline(ctx context.Context, accessToken string, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: finkeeper history timeline <from> <to>")
	}
	from, err := parseTimeArg(args[0])
	if err != nil {
		return err
	}
	to, err := parseTimeArg(args[1])
	if err != nil {
		return err
	}

	resp, err := c.apiClient.Timeline(ctx, accessToken, from, to)
	if err != nil {
		return fmt.Errorf("failed to get timeline: %w", err)
	}

	c.io.Printf("=== Timeline %s .. %s ===\n",
		resp.From.Format("2006-01-02"), resp.To.Format("2006-01-02"))
	c.io.Println()

	if len(resp.Entries) == 0 {
		c.io.Println("No changes in this period.")
		return nil
	}

	for _, entry := range resp.Entries {
		c.io.Printf("%s  %s\n", entry.Timestamp.Format("2006-01-02 15:04"), entry.Text)
		if entry.CausedBy != "" {
			c.io.Printf("%18s caused by %s\n", "", entry.CausedBy)
		}
	}
	c.io.Println()
	c.io.Printf("%d change(s) total.\n", resp.Total)

	return nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
