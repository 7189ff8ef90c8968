package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/iudanet/finkeeper/internal/client/storage"
)

func (c *Cli) runStatus(ctx context.Context) error {
	c.io.Println("=== Status ===")
	c.io.Println()

	session, err := c.authService.Session(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrSessionNotFound) {
			c.io.Println("Status: not authenticated")
			c.io.Println()
			c.io.Println("Run 'finkeeper login' to authenticate.")
			return nil
		}
		return fmt.Errorf("failed to get session: %w", err)
	}

	expiresAt := time.Unix(session.ExpiresAt, 0)
	c.io.Println("Status: authenticated")
	c.io.Printf("Username: %s\n", session.Username)
	c.io.Printf("Token expires: %s\n", expiresAt.Format(time.RFC3339))
	if remaining := time.Until(expiresAt); remaining > 0 {
		c.io.Printf("Time remaining: %s\n", remaining.Round(time.Second))
	} else {
		c.io.Println("Token has expired; it will be refreshed on the next request.")
	}

	if deviceID, err := c.authService.DeviceID(ctx); err == nil {
		c.io.Printf("Device id: %s\n", deviceID)
	}

	pending, err := c.syncService.PendingCount(ctx)
	if err != nil {
		c.io.Printf("\nWarning: failed to get pending sync count: %v\n", err)
		return nil
	}

	c.io.Println()
	if pending > 0 {
		c.io.Printf("Pending sync: %d record(s) with local edits\n", pending)
		c.io.Println("Run 'finkeeper sync' to push them to the server.")
	} else {
		c.io.Println("All records synchronized with the server.")
	}

	return nil
}
