package cli

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/iudanet/finkeeper/internal/client/data"
	"github.com/iudanet/finkeeper/internal/models"
)

func (c *Cli) runAdd(ctx context.Context) error {
	session, err := c.authService.Session(ctx)
	if err != nil {
		return fmt.Errorf("not authenticated, run 'finkeeper login' first")
	}
	deviceID, err := c.authService.DeviceID(ctx)
	if err != nil {
		return fmt.Errorf("failed to get device id: %w", err)
	}

	c.io.Println("=== New Record ===")
	c.io.Println()

	recordType, err := c.io.ReadInput("Type (income/expense/transfer): ")
	if err != nil {
		return fmt.Errorf("failed to read type: %w", err)
	}
	switch recordType {
	case models.RecordTypeIncome, models.RecordTypeExpense, models.RecordTypeTransfer:
	default:
		return fmt.Errorf("unknown record type %q: use income, expense or transfer", recordType)
	}

	amountStr, err := c.io.ReadInput("Amount: ")
	if err != nil {
		return fmt.Errorf("failed to read amount: %w", err)
	}
	amount, err := decimal.NewFromString(amountStr)
	if err != nil {
		return fmt.Errorf("invalid amount %q: %w", amountStr, err)
	}

	currency, err := c.io.ReadInput("Currency [USD]: ")
	if err != nil {
		return fmt.Errorf("failed to read currency: %w", err)
	}

	category, err := c.io.ReadInput("Category: ")
	if err != nil {
		return fmt.Errorf("failed to read category: %w", err)
	}

	account, err := c.io.ReadInput("Account: ")
	if err != nil {
		return fmt.Errorf("failed to read account: %w", err)
	}

	var counterAccount string
	if recordType == models.RecordTypeTransfer {
		counterAccount, err = c.io.ReadInput("Counter account: ")
		if err != nil {
			return fmt.Errorf("failed to read counter account: %w", err)
		}
	}

	note, err := c.io.ReadInput("Note (optional): ")
	if err != nil {
		return fmt.Errorf("failed to read note: %w", err)
	}

	occurredAt, err := c.readOccurredAt()
	if err != nil {
		return err
	}

	record, err := c.dataService.Add(ctx, session.Username, deviceID, data.AddInput{
		OccurredAt:     occurredAt,
		Type:           recordType,
		Category:       category,
		Account:        account,
		CounterAccount: counterAccount,
		Note:           note,
		Currency:       currency,
		Amount:         amount,
	})
	if err != nil {
		return fmt.Errorf("failed to add record: %w", err)
	}

	c.io.Println()
	c.io.Printf("Record %s added.\n", record.ID)
	c.io.Printf("Clock: %s\n", formatClock(record.Clock))
	c.io.Println("Run 'finkeeper sync' to push it to the server.")

	return nil
}
