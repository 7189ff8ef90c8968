package cli

import (
	"context"
	"fmt"
)

func (c *Cli) runSync(ctx context.Context) error {
	session, err := c.authService.Session(ctx)
	if err != nil {
		return fmt.Errorf("not authenticated, run 'finkeeper login' first")
	}
	accessToken, err := c.authService.AccessToken(ctx)
	if err != nil {
		return fmt.Errorf("failed to get access token: %w", err)
	}
	deviceID, err := c.authService.DeviceID(ctx)
	if err != nil {
		return fmt.Errorf("failed to get device id: %w", err)
	}

	c.io.Println("=== Synchronization ===")
	c.io.Println()

	result, err := c.syncService.Sync(ctx, accessToken, session.Username, deviceID)
	if err != nil {
		return fmt.Errorf("synchronization failed: %w", err)
	}

	c.io.Println("Synchronization completed.")
	c.io.Println()
	c.io.Printf("Pushed to server:    %d record(s)\n", result.Pushed)
	if result.Created > 0 {
		c.io.Printf("  created:           %d\n", result.Created)
	}
	if result.Updated > 0 {
		c.io.Printf("  updated:           %d\n", result.Updated)
	}
	if result.Ignored > 0 {
		c.io.Printf("  ignored (stale):   %d\n", result.Ignored)
	}
	c.io.Printf("Pulled from server:  %d record(s)\n", result.Pulled)
	if result.Applied != result.Pulled {
		c.io.Printf("  applied locally:   %d\n", result.Applied)
	}
	if result.Conflicts > 0 {
		c.io.Println()
		c.io.Printf("%d conflict(s) recorded on the server.\n", result.Conflicts)
		c.io.Println("Run 'finkeeper conflicts' to inspect and 'finkeeper resolve' to settle them.")
	}

	return nil
}
