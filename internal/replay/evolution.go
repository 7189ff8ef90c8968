package replay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/iudanet/finkeeper/internal/models"
)

// Interval задает шаг выборки эволюции состояния
type Interval string

// Поддерживаемые шаги эволюции
const (
	IntervalDaily   Interval = "daily"
	IntervalWeekly  Interval = "weekly"
	IntervalMonthly Interval = "monthly"
)

var (
	// ErrInvalidInterval indicates an unsupported evolution interval
	ErrInvalidInterval = errors.New("invalid evolution interval")

	// ErrInvalidRange indicates an evolution range whose end precedes its start
	ErrInvalidRange = errors.New("evolution range end before start")
)

// Point — одна точка эволюции: состояние на момент At
type Point struct {
	At    time.Time     `json:"at"`
	State *models.State `json:"state"`
}

// Evolution — ленивый конечный итератор по историческим состояниям
// в стиле sql.Rows:
//
//	evo, err := engine.Evolution(userID, start, end, replay.IntervalDaily)
//	...
//	for evo.Next(ctx) {
//		point := evo.Point()
//		...
//	}
//	if err := evo.Err(); err != nil {
//		...
//	}
//
// Каждая точка — независимый реплей; итератор не держит ресурсов
// и перезапускается через Reset.
type Evolution struct {
	engine   *Engine
	userID   string
	start    time.Time
	end      time.Time
	interval Interval

	next  time.Time
	point *Point
	err   error
	done  bool
}

// Evolution возвращает итератор состояний от start до end включительно
// с шагом interval: трехдневный диапазон с шагом daily дает четыре точки.
func (e *Engine) Evolution(userID string, start, end time.Time, interval Interval) (*Evolution, error) {
	switch interval {
	case IntervalDaily, IntervalWeekly, IntervalMonthly:
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidInterval, interval)
	}
	if end.Before(start) {
		return nil, ErrInvalidRange
	}

	return &Evolution{
		engine:   e,
		userID:   userID,
		start:    start,
		end:      end,
		interval: interval,
		next:     start,
	}, nil
}

// Next вычисляет следующую точку эволюции. Возвращает false по исчерпании
// диапазона, ошибке реплея или отмене контекста; причину различает Err.
func (evo *Evolution) Next(ctx context.Context) bool {
	if evo.done || evo.err != nil {
		return false
	}
	if err := ctx.Err(); err != nil {
		evo.err = err
		return false
	}
	if evo.next.After(evo.end) {
		evo.done = true
		return false
	}

	state, _, err := evo.engine.ReplayToDate(ctx, evo.userID, evo.next, Options{})
	if err != nil {
		evo.err = err
		return false
	}

	evo.point = &Point{At: evo.next, State: state}
	evo.next = step(evo.next, evo.interval)

	return true
}

// Point возвращает точку, вычисленную последним успешным Next
func (evo *Evolution) Point() *Point {
	return evo.point
}

// Err возвращает ошибку, прервавшую итерацию, либо nil
func (evo *Evolution) Err() error {
	return evo.err
}

// Reset возвращает итератор к началу диапазона
func (evo *Evolution) Reset() {
	evo.next = evo.start
	evo.point = nil
	evo.err = nil
	evo.done = false
}

func step(t time.Time, interval Interval) time.Time {
	switch interval {
	case IntervalWeekly:
		return t.AddDate(0, 0, 7)
	case IntervalMonthly:
		return t.AddDate(0, 1, 0)
	default:
		return t.AddDate(0, 0, 1)
	}
}
