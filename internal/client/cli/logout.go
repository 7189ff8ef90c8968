package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/iudanet/finkeeper/internal/client/storage"
)

func (c *Cli) runLogout(ctx context.Context) error {
	if err := c.authService.Logout(ctx); err != nil {
		if errors.Is(err, storage.ErrSessionNotFound) {
			c.io.Println("Not logged in.")
			return nil
		}
		return fmt.Errorf("logout failed: %w", err)
	}

	c.io.Println("Logged out. Local records are kept and will sync on next login.")
	return nil
}
