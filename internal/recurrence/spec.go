package recurrence

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Границы календарных полей.
var fieldBounds = map[string][2]int{
	"minute": {0, 59},
	"hour":   {0, 23},
	"day":    {1, 31},
	"week":   {1, 5},
	"month":  {1, 12},
}

// Specification — разобранный набор календарных ограничений
// (месяц, день, weekday, час, минута). Чистый value type без identity.
//
// Weekday нумеруется по ISO (1 = понедельник ... 7 = воскресенье)
// и может быть ограничен порядковыми вхождениями внутри месяца:
// "2/1;3" — второй weekday (вторник) только в первое и третье вхождение.
type Specification struct {
	// nil-карта weekday означает «любой день недели».
	month   map[int]bool
	day     map[int]bool
	weekday map[int]map[int]bool
	hour    map[int]bool
	minute  map[int]bool
}

// Parse разбирает пять полей спецификации.
//
// Грамматика числового поля: `*`, `*/n`, список через запятую, `a-b`,
// `a-b/n`. Пустое поле эквивалентно `*`. Грамматика weekday описана
// у parseWeekday.
func Parse(month, day, weekday, hour, minute string) (*Specification, error) {
	spec := &Specification{}

	var err error
	if spec.month, err = parseRange("month", month); err != nil {
		return nil, err
	}
	if spec.day, err = parseRange("day", day); err != nil {
		return nil, err
	}
	if spec.weekday, err = parseWeekday(weekday); err != nil {
		return nil, err
	}
	if spec.hour, err = parseRange("hour", hour); err != nil {
		return nil, err
	}
	if spec.minute, err = parseRange("minute", minute); err != nil {
		return nil, err
	}
	return spec, nil
}

// parseRange разбирает одно числовое поле в множество допустимых значений.
func parseRange(quantity, value string) (map[int]bool, error) {
	bounds, ok := fieldBounds[quantity]
	if !ok {
		return nil, fmt.Errorf("unknown field %q", quantity)
	}
	minimum, maximum := bounds[0], bounds[1]

	value = strings.TrimSpace(value)
	if value == "" {
		value = "*"
	}

	candidates := make(map[int]bool)

	if strings.HasPrefix(value, "*") {
		step := 1
		if value != "*" {
			if !strings.HasPrefix(value, "*/") {
				return nil, fmt.Errorf("invalid field %q", value)
			}
			var err error
			step, err = strconv.Atoi(value[2:])
			if err != nil || step < 1 {
				return nil, fmt.Errorf("invalid step in %q", value)
			}
		}
		for i := minimum; i <= maximum; i += step {
			candidates[i] = true
		}
		return candidates, nil
	}

	for _, candidate := range strings.Split(value, ",") {
		if strings.Contains(candidate, "-") {
			step := 1
			if idx := strings.Index(candidate, "/"); idx >= 0 {
				var err error
				step, err = strconv.Atoi(candidate[idx+1:])
				if err != nil || step < 1 {
					return nil, fmt.Errorf("invalid step in %q", candidate)
				}
				candidate = candidate[:idx]
			}
			parts := strings.SplitN(candidate, "-", 2)
			start, err := strconv.Atoi(parts[0])
			if err != nil {
				return nil, fmt.Errorf("invalid range start in %q", value)
			}
			stop, err := strconv.Atoi(parts[1])
			if err != nil {
				return nil, fmt.Errorf("invalid range end in %q", value)
			}
			for i := start; i <= stop; i += step {
				candidates[i] = true
			}
		} else {
			v, err := strconv.Atoi(candidate)
			if err != nil {
				return nil, fmt.Errorf("invalid value in %q", value)
			}
			candidates[v] = true
		}
	}

	if len(candidates) == 0 {
		return nil, fmt.Errorf("empty field %q", value)
	}
	for v := range candidates {
		if v < minimum || v > maximum {
			return nil, fmt.Errorf("value %d out of range [%d, %d]", v, minimum, maximum)
		}
	}
	return candidates, nil
}

// parseWeekday разбирает поле weekday.
//
// Кандидаты разделяются `;`; каждый кандидат — `d` или `d/steps`,
// где steps — поле недель (1-5) в обычной числовой грамматике.
// Weekday без steps допускает любое вхождение внутри месяца.
func parseWeekday(value string) (map[int]map[int]bool, error) {
	value = strings.TrimSpace(value)
	if value == "" || value == "*" {
		return nil, nil
	}

	candidates := make(map[int]map[int]bool)
	for _, candidate := range strings.Split(value, ";") {
		steps := map[int]bool{1: true, 2: true, 3: true, 4: true, 5: true}
		if idx := strings.Index(candidate, "/"); idx >= 0 {
			var err error
			steps, err = parseRange("week", candidate[idx+1:])
			if err != nil {
				return nil, err
			}
			candidate = candidate[:idx]
		}

		day, err := strconv.Atoi(candidate)
		if err != nil || day < 1 || day > 7 {
			return nil, fmt.Errorf("invalid weekday %q", candidate)
		}
		if _, exists := candidates[day]; exists {
			return nil, fmt.Errorf("duplicate weekday %d in %q", day, value)
		}
		candidates[day] = steps
	}
	return candidates, nil
}

// isoWeekday возвращает день недели по ISO (1 = понедельник, 7 = воскресенье).
func isoWeekday(t time.Time) int {
	wd := int(t.Weekday())
	if wd == 0 {
		return 7
	}
	return wd
}

// weekdayStep возвращает порядковое вхождение weekday внутри месяца:
// 1 для первой даты месяца с этим weekday, 2 для второй и т.д.
func weekdayStep(t time.Time) int {
	return (t.Day()-1)/7 + 1
}

// Next возвращает ближайшее время строго после occurrence,
// удовлетворяющее всем полям спецификации. Поиск не ограничен.
func (s *Specification) Next(occurrence time.Time) time.Time {
	occurrence = occurrence.Truncate(time.Minute)
	if s.checkDate(occurrence) {
		if candidate, ok := s.nextTime(occurrence.Add(time.Minute), occurrence); ok {
			return candidate
		}
	}

	day := time.Date(occurrence.Year(), occurrence.Month(), occurrence.Day(),
		0, 0, 0, 0, occurrence.Location())
	for {
		day = day.AddDate(0, 0, 1)
		if s.checkDate(day) {
			if candidate, ok := s.nextTime(day, day); ok {
				return candidate
			}
		}
	}
}

// Generate возвращает count последовательных occurrence, начиная
// строго после from. Используется для предпросмотра расписаний в API.
func (s *Specification) Generate(count int, from time.Time) []time.Time {
	occurrences := make([]time.Time, 0, count)
	for i := 0; i < count; i++ {
		from = s.Next(from)
		occurrences = append(occurrences, from)
	}
	return occurrences
}

// checkDate проверяет ограничения даты (месяц, день, weekday с ordinal).
func (s *Specification) checkDate(value time.Time) bool {
	if !s.month[int(value.Month())] {
		return false
	}
	if !s.day[value.Day()] {
		return false
	}
	if s.weekday == nil {
		return true
	}

	steps, ok := s.weekday[isoWeekday(value)]
	if !ok {
		return false
	}
	return steps[weekdayStep(value)]
}

// nextTime ищет первую минуту не раньше from в пределах даты date,
// удовлетворяющую полям hour и minute.
func (s *Specification) nextTime(from, date time.Time) (time.Time, bool) {
	candidate := from.Truncate(time.Minute)
	for sameDate(candidate, date) {
		switch {
		case !s.hour[candidate.Hour()]:
			if candidate.Hour() >= 23 {
				return time.Time{}, false
			}
			candidate = time.Date(candidate.Year(), candidate.Month(), candidate.Day(),
				candidate.Hour()+1, 0, 0, 0, candidate.Location())
		case !s.minute[candidate.Minute()]:
			candidate = candidate.Add(time.Minute)
		default:
			return candidate, true
		}
	}
	return time.Time{}, false
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
