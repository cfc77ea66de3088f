package recurrence

import (
	"testing"
	"time"
)

func mustParse(t *testing.T, month, day, weekday, hour, minute string) *Specification {
	t.Helper()
	spec, err := Parse(month, day, weekday, hour, minute)
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	return spec
}

// --- Грамматика полей ---

func TestParse_Wildcards(t *testing.T) {
	spec := mustParse(t, "*", "*", "*", "*", "*")

	if len(spec.month) != 12 {
		t.Errorf("expected 12 months, got %d", len(spec.month))
	}
	if len(spec.day) != 31 {
		t.Errorf("expected 31 days, got %d", len(spec.day))
	}
	if spec.weekday != nil {
		t.Error("wildcard weekday should parse to nil (any)")
	}
	if len(spec.hour) != 24 || len(spec.minute) != 60 {
		t.Errorf("expected full hour/minute sets, got %d/%d", len(spec.hour), len(spec.minute))
	}
}

func TestParse_EmptyFieldMeansWildcard(t *testing.T) {
	spec := mustParse(t, "", "", "", "", "")
	if len(spec.minute) != 60 {
		t.Errorf("empty minute should mean *, got %d values", len(spec.minute))
	}
}

func TestParse_Steps(t *testing.T) {
	spec := mustParse(t, "*", "*", "*", "*", "*/15")

	for _, v := range []int{0, 15, 30, 45} {
		if !spec.minute[v] {
			t.Errorf("minute %d should match */15", v)
		}
	}
	if len(spec.minute) != 4 {
		t.Errorf("*/15 should yield 4 minutes, got %d", len(spec.minute))
	}
}

func TestParse_ListsAndRanges(t *testing.T) {
	spec := mustParse(t, "1,6-8", "*", "*", "9-17/4", "0")

	for _, v := range []int{1, 6, 7, 8} {
		if !spec.month[v] {
			t.Errorf("month %d should match 1,6-8", v)
		}
	}
	if len(spec.month) != 4 {
		t.Errorf("expected 4 months, got %d", len(spec.month))
	}

	// 9-17/4 — часы 9, 13, 17.
	for _, v := range []int{9, 13, 17} {
		if !spec.hour[v] {
			t.Errorf("hour %d should match 9-17/4", v)
		}
	}
	if len(spec.hour) != 3 {
		t.Errorf("expected 3 hours, got %d", len(spec.hour))
	}
}

func TestParse_WeekdayOrdinals(t *testing.T) {
	// Понедельник в первое и третье вхождение, пятница — в любое.
	spec := mustParse(t, "*", "*", "1/1;3;5", "*", "*")

	if spec.weekday == nil {
		t.Fatal("weekday set should not be nil")
	}
	steps, ok := spec.weekday[1]
	if !ok {
		t.Fatal("monday should be present")
	}
	if !steps[1] || !steps[3] || steps[2] {
		t.Errorf("monday ordinals wrong: %v", steps)
	}
	if _, ok := spec.weekday[5]; !ok {
		t.Error("friday should be present")
	}
}

func TestParse_Invalid(t *testing.T) {
	cases := []struct {
		name                             string
		month, day, weekday, hour, minue string
	}{
		{"minute out of range", "*", "*", "*", "*", "60"},
		{"month zero", "0", "*", "*", "*", "*"},
		{"weekday eight", "*", "*", "8", "*", "*"},
		{"duplicate weekday", "*", "*", "2;2", "*", "*"},
		{"garbage", "*", "*", "*", "x", "*"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Parse(tc.month, tc.day, tc.weekday, tc.hour, tc.minue); err == nil {
				t.Error("expected parse error")
			}
		})
	}
}

// --- Specification.Next ---

func TestNext_SameDay(t *testing.T) {
	spec := mustParse(t, "*", "*", "*", "14", "30")

	from := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	next := spec.Next(from)

	want := time.Date(2026, 3, 10, 14, 30, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("expected %v, got %v", want, next)
	}
}

func TestNext_StrictlyAfter(t *testing.T) {
	spec := mustParse(t, "*", "*", "*", "14", "30")

	from := time.Date(2026, 3, 10, 14, 30, 0, 0, time.UTC)
	next := spec.Next(from)

	want := time.Date(2026, 3, 11, 14, 30, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("expected next day, got %v", next)
	}
}

func TestNext_AdvancesToMatchingMonth(t *testing.T) {
	// Только июнь, первое число.
	spec := mustParse(t, "6", "1", "*", "0", "0")

	from := time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)
	next := spec.Next(from)

	want := time.Date(2027, 6, 1, 0, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("expected %v, got %v", want, next)
	}
}

func TestNext_SecondTuesday(t *testing.T) {
	// Второй вторник месяца в 10:00.
	spec := mustParse(t, "*", "*", "2/2", "10", "0")

	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	next := spec.Next(from)

	// Март 2026: вторники 3, 10, 17, 24, 31 — второй это 10-е.
	want := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("expected %v, got %v", want, next)
	}

	// Следующее вхождение — 14 апреля (вторники апреля: 7, 14...).
	next = spec.Next(next)
	want = time.Date(2026, 4, 14, 10, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("expected %v, got %v", want, next)
	}
}

func TestNext_SatisfiesAllFields(t *testing.T) {
	spec := mustParse(t, "3,9", "*", "1;3", "8,18", "0,30")

	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	occurrence := from
	for i := 0; i < 25; i++ {
		occurrence = spec.Next(occurrence)

		if !occurrence.After(from) {
			t.Fatalf("occurrence %v not after start", occurrence)
		}
		if m := int(occurrence.Month()); m != 3 && m != 9 {
			t.Errorf("month %d violates constraint", m)
		}
		if wd := isoWeekday(occurrence); wd != 1 && wd != 3 {
			t.Errorf("weekday %d violates constraint", wd)
		}
		if h := occurrence.Hour(); h != 8 && h != 18 {
			t.Errorf("hour %d violates constraint", h)
		}
		if min := occurrence.Minute(); min != 0 && min != 30 {
			t.Errorf("minute %d violates constraint", min)
		}
	}
}

func TestGenerate(t *testing.T) {
	spec := mustParse(t, "*", "*", "*", "*", "0")

	from := time.Date(2026, 5, 1, 10, 30, 0, 0, time.UTC)
	occurrences := spec.Generate(3, from)

	if len(occurrences) != 3 {
		t.Fatalf("expected 3 occurrences, got %d", len(occurrences))
	}
	for i, want := range []time.Time{
		time.Date(2026, 5, 1, 11, 0, 0, 0, time.UTC),
		time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC),
		time.Date(2026, 5, 1, 13, 0, 0, 0, time.UTC),
	} {
		if !occurrences[i].Equal(want) {
			t.Errorf("occurrence %d: expected %v, got %v", i, want, occurrences[i])
		}
	}
}

func TestWeekdayStep(t *testing.T) {
	cases := []struct {
		date time.Time
		step int
	}{
		{time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC), 1},  // первый вторник
		{time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC), 2}, // второй вторник
		{time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC), 5}, // пятый вторник
		{time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), 1},  // первое воскресенье
	}

	for _, tc := range cases {
		if got := weekdayStep(tc.date); got != tc.step {
			t.Errorf("weekdayStep(%v): expected %d, got %d", tc.date, tc.step, got)
		}
	}
}
