package cli

import (
	"context"
	"fmt"

	"github.com/iudanet/finkeeper/internal/models"
)

func (c *Cli) runList(ctx context.Context, args []string) error {
	includeDeleted := false
	for _, arg := range args {
		switch arg {
		case "--all":
			includeDeleted = true
		default:
			return fmt.Errorf("unknown argument %q. Usage: finkeeper list [--all]", arg)
		}
	}

	records, err := c.dataService.List(ctx, includeDeleted)
	if err != nil {
		return fmt.Errorf("failed to list records: %w", err)
	}

	c.io.Println("=== Records ===")
	c.io.Println()

	if len(records) == 0 {
		c.io.Println("No records found.")
		c.io.Println()
		c.io.Println("Use 'finkeeper add' to add your first record.")
		return nil
	}

	c.io.Printf("Found %d record(s):\n", len(records))
	c.io.Println()

	for i, local := range records {
		record := local.Record
		c.io.Printf("%d. %s %s %s\n", i+1, record.Type, record.Amount.String(), record.Currency)
		c.io.Printf("   ID:       %s\n", record.ID)
		c.io.Printf("   Date:     %s\n", record.OccurredAt.Format("2006-01-02 15:04"))
		c.io.Printf("   Category: %s\n", record.Category)
		c.io.Printf("   Account:  %s\n", record.Account)
		if record.CounterAccount != "" {
			c.io.Printf("   To:       %s\n", record.CounterAccount)
		}
		if record.Note != "" {
			c.io.Printf("   Note:     %s\n", record.Note)
		}
		switch {
		case record.Deleted:
			c.io.Println("   Status:   deleted")
		case local.Pending:
			c.io.Println("   Status:   pending sync")
		case record.SyncStatus == models.SyncStatusConflict:
			c.io.Println("   Status:   conflict, run 'finkeeper conflicts'")
		}
		c.io.Println()
	}

	return nil
}
