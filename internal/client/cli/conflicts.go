package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/iudanet/finkeeper/pkg/api"
)

func (c *Cli) runConflicts(ctx context.Context, args []string) error {
	status := "open"
	if len(args) > 0 {
		status = args[0]
	}
	switch status {
	case "open", "resolved", "all":
	default:
		return fmt.Errorf("unknown status %q: use open, resolved or all", status)
	}
	if status == "all" {
		status = ""
	}

	accessToken, err := c.authService.AccessToken(ctx)
	if err != nil {
		return fmt.Errorf("not authenticated, run 'finkeeper login' first")
	}

	resp, err := c.apiClient.ListConflicts(ctx, accessToken, status)
	if err != nil {
		return fmt.Errorf("failed to list conflicts: %w", err)
	}

	c.io.Println("=== Conflicts ===")
	c.io.Println()

	if len(resp.Conflicts) == 0 {
		c.io.Println("No conflicts found.")
		return nil
	}

	c.io.Printf("Found %d conflict(s):\n", resp.Total)
	c.io.Println()

	for i, conflict := range resp.Conflicts {
		c.io.Printf("%d. %s\n", i+1, conflict.ID)
		c.io.Printf("   Record:       %s\n", conflict.RecordID)
		c.io.Printf("   Device:       %s\n", conflict.DeviceID)
		c.io.Printf("   Detected:     %s\n", conflict.DetectedAt.Format(time.RFC3339))
		c.io.Printf("   Status:       %s\n", conflict.Status)
		c.io.Printf("   Server clock: %s\n", formatClock(conflict.ServerClock))
		c.io.Printf("   Client clock: %s\n", formatClock(conflict.ClientClock))
		if conflict.Status == "resolved" {
			c.io.Printf("   Strategy:     %s\n", conflict.Strategy)
			if conflict.ResolvedAt != nil {
				c.io.Printf("   Resolved:     %s\n", conflict.ResolvedAt.Format(time.RFC3339))
			}
		}
		c.io.Println()
	}

	if status == "open" || status == "" {
		c.io.Println("Use 'finkeeper resolve <id> <client_wins|server_wins|merge>' to settle a conflict.")
	}

	return nil
}

func (c *Cli) runResolve(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: finkeeper resolve <id> <client_wins|server_wins|merge>")
	}
	conflictID, strategy := args[0], args[1]

	switch strategy {
	case "client_wins", "server_wins":
	case "merge":
	default:
		return fmt.Errorf("unknown strategy %q: use client_wins, server_wins or merge", strategy)
	}

	req := api.ResolveConflictRequest{Strategy: strategy}
	if strategy == "merge" {
		merged, err := c.readMergeOverrides()
		if err != nil {
			return err
		}
		req.Merged = merged
	}

	accessToken, err := c.authService.AccessToken(ctx)
	if err != nil {
		return fmt.Errorf("not authenticated, run 'finkeeper login' first")
	}

	resp, err := c.apiClient.ResolveConflict(ctx, accessToken, conflictID, req)
	if err != nil {
		return fmt.Errorf("failed to resolve conflict: %w", err)
	}

	c.io.Printf("Conflict %s resolved with %s.\n", conflictID, strategy)
	c.io.Printf("Record %s now at clock %s.\n", resp.Record.ID, formatClock(resp.Record.Clock))
	c.io.Println("Run 'finkeeper sync' to pull the resolved version.")

	return nil
}

// readMergeOverrides читает пополевые переопределения для стратегии merge.
// Пустая строка завершает ввод.
func (c *Cli) readMergeOverrides() (map[string]any, error) {
	c.io.Println("Enter field overrides as 'field=value', empty line to finish:")
	merged := make(map[string]any)
	for {
		line, err := c.io.ReadInput("> ")
		if err != nil {
			return nil, fmt.Errorf("failed to read override: %w", err)
		}
		if line == "" {
			break
		}
		field, value, ok := strings.Cut(line, "=")
		if !ok || field == "" {
			return nil, fmt.Errorf("invalid override %q: expected field=value", line)
		}
		merged[field] = value
	}
	return merged, nil
}
