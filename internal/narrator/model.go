package narrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/iudanet/finkeeper/internal/models"
	"github.com/iudanet/finkeeper/internal/replay"
)

// CompletionClient — внешняя текстовая модель. Интерфейс узкий:
// наррации достаточно одного вызова "промпт -> текст".
type CompletionClient interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// ModelNarrator переписывает шаблонные описания внешней моделью.
// Любая ошибка модели (сеть, лимиты, пустой ответ) приводит к шаблонному
// тексту: наррация никогда не ломает запрос.
type ModelNarrator struct {
	client   CompletionClient
	fallback *TemplateNarrator
	logger   *slog.Logger
}

func NewModelNarrator(client CompletionClient, logger *slog.Logger) *ModelNarrator {
	return &ModelNarrator{
		client:   client,
		fallback: NewTemplateNarrator(),
		logger:   logger,
	}
}

func (n *ModelNarrator) DescribeDelta(ctx context.Context, delta *models.Delta) string {
	base := n.fallback.DescribeDelta(ctx, delta)
	if base == "" {
		return ""
	}

	prompt := fmt.Sprintf(
		"Rewrite this personal finance ledger event as one short, friendly sentence. "+
			"Keep every number, currency and category name exactly as given. "+
			"Event: %s", base)

	return n.complete(ctx, prompt, base)
}

func (n *ModelNarrator) SummarizeDiff(ctx context.Context, diff *replay.StateDiff, period string) string {
	base := n.fallback.SummarizeDiff(ctx, diff, period)
	if base == "" {
		return ""
	}

	prompt := fmt.Sprintf(
		"Rewrite this personal finance period summary in one or two friendly sentences. "+
			"Keep every number and category name exactly as given. "+
			"Summary: %s", base)

	return n.complete(ctx, prompt, base)
}

func (n *ModelNarrator) complete(ctx context.Context, prompt, fallback string) string {
	text, err := n.client.Complete(ctx, prompt)
	if err != nil {
		n.logger.WarnContext(ctx, "completion failed, using template narration",
			slog.Any("error", err))
		return fallback
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return fallback
	}

	return text
}
