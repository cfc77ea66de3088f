package recurrence

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shaiso/conveyor/internal/domain"
)

// Ошибки вычисления расписаний.
var (
	// ErrInvalidSchedule — расписание не содержит payload своего типа.
	ErrInvalidSchedule = errors.New("invalid schedule")

	// ErrNoWeekdays — weekly расписание без выбранных дней недели.
	ErrNoWeekdays = errors.New("weekly schedule selects no weekdays")
)

// Next вычисляет следующий occurrence расписания.
//
// Контракт: результат не раньше max(ref, now, anchor). Для weekly и
// monthly вариантов обновляет CachedNext в payload'е — сохранение
// обновлённого расписания остаётся на вызывающем.
func Next(s *domain.Schedule, ref, now time.Time) (time.Time, error) {
	effective := ref
	if now.After(effective) {
		effective = now
	}

	switch s.Type {
	case domain.ScheduleFixed:
		if s.Fixed == nil {
			return time.Time{}, fmt.Errorf("%w: missing fixed payload", ErrInvalidSchedule)
		}
		return nextFixed(s.Fixed, effective), nil

	case domain.ScheduleWeekly:
		if s.Weekly == nil {
			return time.Time{}, fmt.Errorf("%w: missing weekly payload", ErrInvalidSchedule)
		}
		return nextWeekly(s.Weekly, effective)

	case domain.ScheduleMonthly:
		if s.Monthly == nil {
			return time.Time{}, fmt.Errorf("%w: missing monthly payload", ErrInvalidSchedule)
		}
		return nextMonthly(s.Monthly, effective)

	case domain.ScheduleLogical:
		if s.Logical == nil {
			return time.Time{}, fmt.Errorf("%w: missing logical payload", ErrInvalidSchedule)
		}
		return nextLogical(s.Logical, effective)

	default:
		return time.Time{}, fmt.Errorf("%w: unknown type %q", ErrInvalidSchedule, s.Type)
	}
}

// nextFixed продвигает anchor целым числом интервалов до первого
// значения >= ref. Никогда не возвращает время раньше anchor.
func nextFixed(f *domain.FixedSchedule, ref time.Time) time.Time {
	interval := time.Duration(f.IntervalSec) * time.Second
	if interval <= 0 {
		interval = time.Second
	}

	if !ref.After(f.Anchor) {
		return f.Anchor
	}

	elapsed := ref.Sub(f.Anchor)
	next := f.Anchor.Add(elapsed / interval * interval)
	if next.Before(ref) {
		next = next.Add(interval)
	}
	return next
}

// nextLogical ищет первую минуту >= max(ref, anchor), удовлетворяющую
// всем пяти полям.
func nextLogical(l *domain.LogicalSchedule, ref time.Time) (time.Time, error) {
	spec, err := Parse(l.Month, l.Day, l.Weekday, l.Hour, l.Minute)
	if err != nil {
		return time.Time{}, err
	}

	base := ref
	if l.Anchor != nil && l.Anchor.After(base) {
		base = *l.Anchor
	}
	// Next строго после аргумента; отступаем на минуту, чтобы
	// допустить сам base.
	return spec.Next(base.Add(-time.Minute)), nil
}

// nextWeekly вычисляет occurrence для weekly расписания: выбранные дни
// недели во время суток anchor'а, только в недели, отстоящие от недели
// anchor'а на кратное Interval число недель.
func nextWeekly(w *domain.WeeklySchedule, ref time.Time) (time.Time, error) {
	if w.CachedNext != nil && !w.CachedNext.Before(ref) {
		return *w.CachedNext, nil
	}

	spec, err := weeklySpec(w)
	if err != nil {
		return time.Time{}, err
	}

	interval := w.Interval
	if interval < 1 {
		interval = 1
	}

	base := ref
	if w.Anchor.After(base) {
		base = w.Anchor
	}

	anchorWeek := weekStart(w.Anchor)
	candidate := spec.Next(base.Add(-time.Minute))
	for {
		weeks := weeksBetween(anchorWeek, weekStart(candidate))
		if weeks%interval == 0 {
			break
		}
		// Прыгаем к началу следующей недели, попадающей в период.
		skip := interval - weeks%interval
		cursor := weekStart(candidate).AddDate(0, 0, 7*skip)
		candidate = spec.Next(cursor.Add(-time.Minute))
	}

	w.CachedNext = &candidate
	return candidate, nil
}

// nextMonthly продвигает baseline (cachedNext либо anchor) по Interval
// месяцев за шаг, пока кандидат не окажется >= ref.
func nextMonthly(m *domain.MonthlySchedule, ref time.Time) (time.Time, error) {
	if m.CachedNext != nil && !m.CachedNext.Before(ref) {
		return *m.CachedNext, nil
	}

	spec, err := monthlySpec(m)
	if err != nil {
		return time.Time{}, err
	}

	interval := m.Interval
	if interval < 1 {
		interval = 1
	}

	candidate := m.Anchor
	if m.CachedNext != nil && m.CachedNext.After(candidate) {
		candidate = *m.CachedNext
	}
	for candidate.Before(ref) {
		candidate = nextMonthlyInterval(spec, interval, candidate)
	}

	m.CachedNext = &candidate
	return candidate, nil
}

// nextMonthlyInterval — первый подходящий момент, начиная с первого
// числа месяца, отстоящего от occurrence на interval месяцев.
func nextMonthlyInterval(spec *Specification, interval int, occurrence time.Time) time.Time {
	cursor := time.Date(occurrence.Year(), occurrence.Month(), 1,
		0, 0, 0, 0, occurrence.Location())
	cursor = cursor.AddDate(0, interval, 0)
	return spec.Next(cursor.Add(-time.Minute))
}

// weeklySpec строит синтетическую спецификацию из выбранных weekday
// и времени суток anchor'а.
func weeklySpec(w *domain.WeeklySchedule) (*Specification, error) {
	var weekdays []string
	for wd := 0; wd < 7; wd++ {
		if !w.Weekdays[wd] {
			continue
		}
		iso := wd
		if iso == 0 {
			iso = 7
		}
		weekdays = append(weekdays, strconv.Itoa(iso))
	}
	if len(weekdays) == 0 {
		return nil, ErrNoWeekdays
	}

	return Parse("*", "*", strings.Join(weekdays, ";"),
		strconv.Itoa(w.Anchor.Hour()), strconv.Itoa(w.Anchor.Minute()))
}

// monthlySpec строит синтетическую спецификацию, закреплённую либо за
// днём месяца anchor'а, либо за его weekday в том же порядковом
// вхождении (стратегия).
func monthlySpec(m *domain.MonthlySchedule) (*Specification, error) {
	day, weekday := "*", "*"
	switch m.Strategy {
	case domain.MonthlyByWeekday:
		weekday = fmt.Sprintf("%d/%d", isoWeekday(m.Anchor), weekdayStep(m.Anchor))
	default:
		day = strconv.Itoa(m.Anchor.Day())
	}

	return Parse("*", day, weekday,
		strconv.Itoa(m.Anchor.Hour()), strconv.Itoa(m.Anchor.Minute()))
}

// weekStart возвращает воскресенье 00:00 недели, содержащей value.
// Недельное окно — воскресенье–суббота.
func weekStart(value time.Time) time.Time {
	day := time.Date(value.Year(), value.Month(), value.Day(),
		0, 0, 0, 0, value.Location())
	return day.AddDate(0, 0, -int(day.Weekday()))
}

// weeksBetween — количество полных недель между началами недель a и b.
// Сутки считаются по календарю: переход на летнее время укорачивает или
// удлиняет неделю в часах, но не в днях.
func weeksBetween(a, b time.Time) int {
	ad := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	bd := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	days := int(bd.Sub(ad).Hours() / 24)
	return days / 7
}
