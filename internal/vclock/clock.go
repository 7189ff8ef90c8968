package vclock

import (
	"fmt"
	"sort"
	"strings"
)

// Relation представляет результат сравнения двух векторных часов.
type Relation int

const (
	// Equal — все счетчики совпадают.
	Equal Relation = iota
	// Less — первые часы каузально предшествуют вторым (устаревшее состояние).
	Less
	// Greater — первые часы каузально доминируют над вторыми.
	Greater
	// Concurrent — ни одни часы не доминируют: конкурентные изменения.
	Concurrent
)

// String возвращает текстовое представление отношения для логов и ошибок.
func (r Relation) String() string {
	switch r {
	case Equal:
		return "equal"
	case Less:
		return "less"
	case Greater:
		return "greater"
	case Concurrent:
		return "concurrent"
	default:
		return fmt.Sprintf("unknown(%d)", int(r))
	}
}

// Clock представляет векторные часы: отображение идентификатора актора
// (устройство или сервер) в монотонно возрастающий счетчик событий.
// Отсутствующий актор эквивалентен счетчику 0.
//
// Все операции чистые: ни один метод не изменяет исходные часы,
// результат всегда новая копия. Это позволяет безопасно хранить часы
// в записях и сравнивать их без блокировок.
type Clock map[string]uint64

// New создает пустые векторные часы.
func New() Clock {
	return Clock{}
}

// Get возвращает счетчик актора. Для неизвестного актора возвращает 0.
func (c Clock) Get(actor string) uint64 {
	return c[actor]
}

// Copy возвращает независимую копию часов.
// Копия никогда не равна nil, даже для nil-часов.
func (c Clock) Copy() Clock {
	out := make(Clock, len(c))
	for actor, counter := range c {
		out[actor] = counter
	}
	return out
}

// Increment возвращает копию часов с увеличенным на единицу счетчиком актора.
// Неизвестный актор начинает с 0 и после инкремента получает 1.
func (c Clock) Increment(actor string) Clock {
	out := c.Copy()
	out[actor]++
	return out
}

// Merge возвращает поточечный максимум двух часов по объединению акторов.
// Результат доминирует над обоими аргументами (greater-or-equal).
func Merge(a, b Clock) Clock {
	out := a.Copy()
	for actor, counter := range b {
		if counter > out[actor] {
			out[actor] = counter
		}
	}
	return out
}

// Compare сравнивает две пары часов по объединению множеств акторов.
// Отсутствующие акторы трактуются как счетчик 0.
//
// Less: каждый счетчик a не больше счетчика b и хотя бы один строго меньше.
// Greater: симметрично. Equal: все счетчики совпадают.
// Concurrent: есть актор, где a больше, и актор, где b больше, —
// ни одни часы не доминируют.
func Compare(a, b Clock) Relation {
	aAhead := false // есть актор, где a > b
	bAhead := false // есть актор, где b > a

	for actor, counter := range a {
		other := b[actor]
		if counter > other {
			aAhead = true
		} else if counter < other {
			bAhead = true
		}
	}
	for actor, counter := range b {
		if _, ok := a[actor]; ok {
			continue // уже сравнили в первом проходе
		}
		if counter > 0 {
			bAhead = true
		}
	}

	switch {
	case aAhead && bAhead:
		return Concurrent
	case aAhead:
		return Greater
	case bAhead:
		return Less
	default:
		return Equal
	}
}

// String возвращает детерминированное представление часов вида {C:1 S:2}.
// Акторы отсортированы, поэтому строка пригодна для логов и сравнения в тестах.
func (c Clock) String() string {
	actors := make([]string, 0, len(c))
	for actor := range c {
		actors = append(actors, actor)
	}
	sort.Strings(actors)

	var sb strings.Builder
	sb.WriteByte('{')
	for i, actor := range actors {
		if i > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "%s:%d", actor, c[actor])
	}
	sb.WriteByte('}')
	return sb.String()
}
