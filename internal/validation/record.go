package validation

import (
	"fmt"
	"regexp"

	"github.com/iudanet/finkeeper/internal/models"
)

// CurrencyPattern определяет формат кода валюты: три заглавные латинские
// буквы (ISO 4217)
var CurrencyPattern = regexp.MustCompile(`^[A-Z]{3}$`)

// MaxNoteLen максимальная длина комментария к записи
const MaxNoteLen = 1000

// ValidateRecord проверяет финансовую запись перед согласованием.
// Проверяется форма данных; каузальные проверки (часы, хеш) делает
// сам механизм согласования.
func ValidateRecord(record *models.Record) error {
	if record == nil {
		return fmt.Errorf("record cannot be nil")
	}

	if record.ID == "" {
		return fmt.Errorf("record id cannot be empty")
	}

	if record.UserID == "" {
		return fmt.Errorf("record user id cannot be empty")
	}

	switch record.Type {
	case models.RecordTypeIncome, models.RecordTypeExpense, models.RecordTypeTransfer:
	default:
		return fmt.Errorf("record type must be one of: income, expense, transfer")
	}

	if !record.Amount.IsPositive() {
		return fmt.Errorf("amount must be positive")
	}

	if !CurrencyPattern.MatchString(record.Currency) {
		return fmt.Errorf("currency must be a 3-letter ISO 4217 code")
	}

	if record.Category == "" {
		return fmt.Errorf("category cannot be empty")
	}

	if record.Account == "" {
		return fmt.Errorf("account cannot be empty")
	}

	if record.Type == models.RecordTypeTransfer && record.CounterAccount == "" {
		return fmt.Errorf("counter account is required for transfers")
	}

	if record.Type != models.RecordTypeTransfer && record.CounterAccount != "" {
		return fmt.Errorf("counter account is only allowed for transfers")
	}

	if len(record.Note) > MaxNoteLen {
		return fmt.Errorf("note must not exceed %d characters", MaxNoteLen)
	}

	if record.OccurredAt.IsZero() {
		return fmt.Errorf("occurred_at must be set")
	}

	if len(record.Clock) == 0 {
		return fmt.Errorf("vector clock cannot be empty")
	}

	return nil
}
