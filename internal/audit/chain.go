package audit

import (
	"context"
	"errors"

	"github.com/iudanet/finkeeper/internal/models"
	"github.com/iudanet/finkeeper/internal/server/storage"
)

// Tracer обходит каузальные цепочки журнала дельт.
type Tracer struct {
	deltas storage.DeltaStorage
}

// NewTracer creates a causal chain tracer over the delta ledger
func NewTracer(deltas storage.DeltaStorage) *Tracer {
	return &Tracer{deltas: deltas}
}

// TraceBack возвращает цепочку причин дельты: сама дельта, затем её причина
// и так далее до корневой. Цепочка по построению ациклична, но обход защищён:
// повторное посещение или оборванная ссылка останавливают обход на уже
// собранной части вместо зацикливания.
func (t *Tracer) TraceBack(ctx context.Context, deltaID string) ([]*models.Delta, error) {
	var chain []*models.Delta
	seen := make(map[string]bool)

	id := deltaID
	for id != "" {
		if seen[id] {
			// Испорченные данные: цикл в caused_by
			break
		}
		seen[id] = true

		delta, err := t.deltas.GetDelta(ctx, id)
		if err != nil {
			if errors.Is(err, storage.ErrDeltaNotFound) && len(chain) > 0 {
				// Оборванная ссылка: отдаем достижимую часть цепочки
				break
			}
			return nil, err
		}

		chain = append(chain, delta)
		id = delta.CausedBy
	}

	return chain, nil
}

// Triggers возвращает дельты, непосредственно вызванные данной.
// Обратные ссылки не хранятся, а вычисляются запросом по caused_by.
func (t *Tracer) Triggers(ctx context.Context, deltaID string) ([]*models.Delta, error) {
	return t.deltas.ListDeltasCausedBy(ctx, deltaID)
}
