package recurrence

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/conveyor/internal/domain"
)

func fixedSchedule(anchor time.Time, intervalSec int) *domain.Schedule {
	return &domain.Schedule{
		ID:    uuid.New(),
		Name:  "fixed",
		Type:  domain.ScheduleFixed,
		Fixed: &domain.FixedSchedule{Anchor: anchor, IntervalSec: intervalSec},
	}
}

// --- Fixed ---

func TestNextFixed_BeforeAnchor(t *testing.T) {
	anchor := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	sched := fixedSchedule(anchor, 3600)

	now := anchor.Add(-48 * time.Hour)
	next, err := Next(sched, now, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !next.Equal(anchor) {
		t.Errorf("expected anchor %v, got %v", anchor, next)
	}
}

func TestNextFixed_MultipleOfInterval(t *testing.T) {
	anchor := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	sched := fixedSchedule(anchor, 60)

	ref := anchor.Add(90 * time.Second)
	next, err := Next(sched, ref, ref)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if next.Before(ref) {
		t.Errorf("next %v before reference %v", next, ref)
	}
	if elapsed := next.Sub(anchor); elapsed%(60*time.Second) != 0 {
		t.Errorf("offset from anchor %v is not a multiple of the interval", elapsed)
	}
	if want := anchor.Add(120 * time.Second); !next.Equal(want) {
		t.Errorf("expected %v, got %v", want, next)
	}
}

func TestNextFixed_ExactBoundary(t *testing.T) {
	anchor := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	sched := fixedSchedule(anchor, 60)

	// Ровно на границе интервала occurrence совпадает с ref.
	ref := anchor.Add(10 * 60 * time.Second)
	next, err := Next(sched, ref, ref)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !next.Equal(ref) {
		t.Errorf("expected %v, got %v", ref, next)
	}
}

func TestNextFixed_SequenceIsMonotonic(t *testing.T) {
	anchor := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	sched := fixedSchedule(anchor, 300)

	now := anchor.Add(17 * time.Minute)
	prev, err := Next(sched, now, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for i := 0; i < 10; i++ {
		next, err := Next(sched, prev.Add(time.Second), prev.Add(time.Second))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !next.After(prev) {
			t.Fatalf("sequence not monotonic: %v then %v", prev, next)
		}
		if next.Sub(prev)%(300*time.Second) != 0 {
			t.Errorf("step %v is not a multiple of the interval", next.Sub(prev))
		}
		prev = next
	}
}

// --- Logical ---

func TestNextLogical_RespectsAnchor(t *testing.T) {
	anchor := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	sched := &domain.Schedule{
		Type: domain.ScheduleLogical,
		Logical: &domain.LogicalSchedule{
			Anchor: &anchor,
			Month:  "*", Day: "*", Weekday: "*", Hour: "6", Minute: "0",
		},
	}

	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	next, err := Next(sched, now, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := time.Date(2026, 7, 1, 6, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("expected %v, got %v", want, next)
	}
}

func TestNextLogical_NotBeforeNow(t *testing.T) {
	sched := &domain.Schedule{
		Type: domain.ScheduleLogical,
		Logical: &domain.LogicalSchedule{
			Month: "*", Day: "*", Weekday: "*", Hour: "*", Minute: "*/5",
		},
	}

	ref := time.Date(2026, 2, 10, 11, 0, 0, 0, time.UTC)
	now := ref.Add(2 * time.Hour)
	next, err := Next(sched, ref, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if next.Before(now) {
		t.Errorf("next %v is before now %v", next, now)
	}
}

// --- Weekly ---

func TestNextWeekly_SelectedWeekdays(t *testing.T) {
	// Anchor: понедельник 2026-01-05 09:00, каждую неделю по
	// понедельникам и четвергам.
	anchor := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	weekly := &domain.WeeklySchedule{Anchor: anchor, Interval: 1}
	weekly.Weekdays[time.Monday] = true
	weekly.Weekdays[time.Thursday] = true
	sched := &domain.Schedule{Type: domain.ScheduleWeekly, Weekly: weekly}

	now := anchor.Add(time.Hour)
	next, err := Next(sched, now, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Следующее вхождение — четверг той же недели.
	want := time.Date(2026, 1, 8, 9, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("expected %v, got %v", want, next)
	}
	if weekly.CachedNext == nil || !weekly.CachedNext.Equal(next) {
		t.Error("cached next should be updated")
	}
}

func TestNextWeekly_IntervalSkipsWeeks(t *testing.T) {
	// Каждые 2 недели по понедельникам.
	anchor := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	weekly := &domain.WeeklySchedule{Anchor: anchor, Interval: 2}
	weekly.Weekdays[time.Monday] = true
	sched := &domain.Schedule{Type: domain.ScheduleWeekly, Weekly: weekly}

	// Сразу после anchor: следующий допустимый понедельник — через
	// 2 недели, 19 января.
	now := anchor.Add(time.Minute)
	next, err := Next(sched, now, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := time.Date(2026, 1, 19, 9, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("expected %v, got %v", want, next)
	}
}

func TestNextWeekly_CachedValueReused(t *testing.T) {
	anchor := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	cached := time.Date(2026, 1, 12, 9, 0, 0, 0, time.UTC)
	weekly := &domain.WeeklySchedule{Anchor: anchor, Interval: 1, CachedNext: &cached}
	weekly.Weekdays[time.Monday] = true
	sched := &domain.Schedule{Type: domain.ScheduleWeekly, Weekly: weekly}

	now := anchor.Add(time.Hour)
	next, err := Next(sched, now, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !next.Equal(cached) {
		t.Errorf("expected cached %v, got %v", cached, next)
	}
}

func TestNextWeekly_StaleCacheRecomputed(t *testing.T) {
	anchor := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	cached := anchor // уже в прошлом к моменту вызова
	weekly := &domain.WeeklySchedule{Anchor: anchor, Interval: 1, CachedNext: &cached}
	weekly.Weekdays[time.Monday] = true
	sched := &domain.Schedule{Type: domain.ScheduleWeekly, Weekly: weekly}

	now := anchor.Add(72 * time.Hour)
	next, err := Next(sched, now, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := time.Date(2026, 1, 12, 9, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("expected %v, got %v", want, next)
	}
}

func TestNextWeekly_IntervalAcrossDSTChange(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}

	// Каждые 2 недели по воскресеньям. 8 марта 2026 начинается летнее
	// время, и неделя после перехода длится 167 часов вместо 168.
	anchor := time.Date(2026, 2, 22, 10, 0, 0, 0, loc)
	weekly := &domain.WeeklySchedule{Anchor: anchor, Interval: 2}
	weekly.Weekdays[time.Sunday] = true
	sched := &domain.Schedule{Type: domain.ScheduleWeekly, Weekly: weekly}

	// Предыдущее вхождение — 8 марта; следующее должно попасть на
	// 22 марта, а не на пропускаемую неделю 15-го.
	now := time.Date(2026, 3, 8, 10, 0, 0, 0, loc).Add(time.Minute)
	next, err := Next(sched, now, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := time.Date(2026, 3, 22, 10, 0, 0, 0, loc)
	if !next.Equal(want) {
		t.Errorf("expected %v, got %v", want, next)
	}
}

func TestNextWeekly_NoWeekdays(t *testing.T) {
	anchor := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	sched := &domain.Schedule{
		Type:   domain.ScheduleWeekly,
		Weekly: &domain.WeeklySchedule{Anchor: anchor, Interval: 1},
	}

	if _, err := Next(sched, anchor, anchor); !errors.Is(err, ErrNoWeekdays) {
		t.Errorf("expected ErrNoWeekdays, got %v", err)
	}
}

// --- Monthly ---

func TestNextMonthly_ByDay(t *testing.T) {
	// 14-е число каждого месяца в 08:30.
	anchor := time.Date(2026, 1, 14, 8, 30, 0, 0, time.UTC)
	monthly := &domain.MonthlySchedule{
		Anchor:   anchor,
		Interval: 1,
		Strategy: domain.MonthlyByDay,
	}
	sched := &domain.Schedule{Type: domain.ScheduleMonthly, Monthly: monthly}

	now := anchor.Add(time.Minute)
	next, err := Next(sched, now, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := time.Date(2026, 2, 14, 8, 30, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("expected %v, got %v", want, next)
	}
	if monthly.CachedNext == nil || !monthly.CachedNext.Equal(next) {
		t.Error("cached next should be updated")
	}
}

func TestNextMonthly_ByWeekdayOrdinal(t *testing.T) {
	// Anchor — второй вторник января 2026 (13-е), стратегия weekday.
	anchor := time.Date(2026, 1, 13, 10, 0, 0, 0, time.UTC)
	monthly := &domain.MonthlySchedule{
		Anchor:   anchor,
		Interval: 1,
		Strategy: domain.MonthlyByWeekday,
	}
	sched := &domain.Schedule{Type: domain.ScheduleMonthly, Monthly: monthly}

	now := anchor.Add(time.Minute)
	next, err := Next(sched, now, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Второй вторник февраля 2026 — 10-е.
	want := time.Date(2026, 2, 10, 10, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("expected %v, got %v", want, next)
	}
}

func TestNextMonthly_IntervalAndStaleCache(t *testing.T) {
	// Каждые 3 месяца от января; cached далеко в прошлом.
	anchor := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	cached := anchor
	monthly := &domain.MonthlySchedule{
		Anchor:     anchor,
		Interval:   3,
		Strategy:   domain.MonthlyByDay,
		CachedNext: &cached,
	}
	sched := &domain.Schedule{Type: domain.ScheduleMonthly, Monthly: monthly}

	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	next, err := Next(sched, now, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Апрель пропущен (прошёл бы), следующий шаг — июль.
	want := time.Date(2026, 7, 10, 12, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("expected %v, got %v", want, next)
	}
}

func TestNext_InvalidSchedule(t *testing.T) {
	sched := &domain.Schedule{Type: domain.ScheduleFixed}
	if _, err := Next(sched, time.Now(), time.Now()); !errors.Is(err, ErrInvalidSchedule) {
		t.Errorf("expected ErrInvalidSchedule, got %v", err)
	}
}
