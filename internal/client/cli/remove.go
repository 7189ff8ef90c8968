package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/iudanet/finkeeper/internal/client/storage"
)

func (c *Cli) runRemove(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("missing record id. Usage: finkeeper remove <id>")
	}
	id := args[0]

	deviceID, err := c.authService.DeviceID(ctx)
	if err != nil {
		return fmt.Errorf("failed to get device id: %w", err)
	}

	if err := c.dataService.Delete(ctx, deviceID, id); err != nil {
		if errors.Is(err, storage.ErrRecordNotFound) {
			return fmt.Errorf("record %s not found", id)
		}
		return fmt.Errorf("failed to delete record: %w", err)
	}

	c.io.Printf("Record %s marked deleted.\n", id)
	c.io.Println("Run 'finkeeper sync' to push the deletion to the server.")

	return nil
}
