package cli

import (
	"fmt"
	"time"
)

// readOccurredAt читает дату операции; пустой ввод означает "сейчас"
func (c *Cli) readOccurredAt() (time.Time, error) {
	input, err := c.io.ReadInput("Date (RFC3339 or YYYY-MM-DD, empty = now): ")
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to read date: %w", err)
	}
	if input == "" {
		return time.Time{}, nil
	}
	return parseTimeArg(input)
}
