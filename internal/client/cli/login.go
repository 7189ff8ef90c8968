package cli

import (
	"context"
	"fmt"
	"time"
)

func (c *Cli) runLogin(ctx context.Context) error {
	c.io.Println("=== Login ===")
	c.io.Println()

	username, err := c.io.ReadInput("Username: ")
	if err != nil {
		return fmt.Errorf("failed to read username: %w", err)
	}
	if username == "" {
		return fmt.Errorf("username cannot be empty")
	}

	password, err := c.io.ReadPassword("Password: ")
	if err != nil {
		return fmt.Errorf("failed to read password: %w", err)
	}
	if password == "" {
		return fmt.Errorf("password cannot be empty")
	}

	result, err := c.authService.Login(ctx, username, password)
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	c.io.Println()
	c.io.Printf("Logged in as %s.\n", result.Username)
	c.io.Printf("Device id: %s\n", result.DeviceID)
	if result.ExpiresIn > 0 {
		c.io.Printf("Token expires in %s.\n", (time.Duration(result.ExpiresIn) * time.Second).String())
	}

	return nil
}
