package domain

import (
	"time"

	"github.com/google/uuid"
)

// ScheduleType — дискриминатор варианта расписания.
type ScheduleType string

const (
	// ScheduleFixed — фиксированный интервал в секундах от anchor.
	ScheduleFixed ScheduleType = "fixed"

	// ScheduleWeekly — выбранные дни недели, каждые N недель.
	ScheduleWeekly ScheduleType = "weekly"

	// ScheduleMonthly — каждый N-й месяц, в день месяца anchor
	// или в тот же порядковый weekday (стратегия).
	ScheduleMonthly ScheduleType = "monthly"

	// ScheduleLogical — cron-подобный набор из пяти полей.
	ScheduleLogical ScheduleType = "logical"
)

// MonthlyStrategy — стратегия выбора дня для monthly расписания.
type MonthlyStrategy string

const (
	// MonthlyByDay — тот же день месяца, что у anchor (например 14-е число).
	MonthlyByDay MonthlyStrategy = "day"

	// MonthlyByWeekday — тот же weekday в том же порядковом вхождении,
	// что у anchor (например второй вторник).
	MonthlyByWeekday MonthlyStrategy = "weekday"
)

// Schedule — именованное правило повторения.
//
// Tagged union: поле Type определяет, какой из payload-указателей заполнен.
// Вычисление следующего occurrence выполняет internal/recurrence.
type Schedule struct {
	// ID — уникальный идентификатор расписания.
	ID uuid.UUID `json:"id"`

	// Name — уникальное имя для удобства.
	Name string `json:"name"`

	// Type — вариант расписания.
	Type ScheduleType `json:"type"`

	Fixed   *FixedSchedule   `json:"fixed,omitempty"`
	Weekly  *WeeklySchedule  `json:"weekly,omitempty"`
	Monthly *MonthlySchedule `json:"monthly,omitempty"`
	Logical *LogicalSchedule `json:"logical,omitempty"`
}

// FixedSchedule — anchor + интервал в секундах.
type FixedSchedule struct {
	// Anchor — опорная точка; occurrence никогда не раньше anchor.
	Anchor time.Time `json:"anchor"`

	// IntervalSec — интервал между occurrence в секундах.
	IntervalSec int `json:"interval_sec"`
}

// WeeklySchedule — выбранные дни недели каждые Interval недель.
//
// Weekdays индексируется time.Weekday (0 = воскресенье).
// Время суток берётся из anchor.
type WeeklySchedule struct {
	Anchor time.Time `json:"anchor"`

	// Interval — период в неделях.
	Interval int `json:"interval"`

	Weekdays [7]bool `json:"weekdays"`

	// CachedNext — последний вычисленный occurrence; пересчитывается,
	// когда значение оказывается в прошлом.
	CachedNext *time.Time `json:"cached_next,omitempty"`
}

// MonthlySchedule — каждый Interval-й месяц от anchor.
type MonthlySchedule struct {
	Anchor time.Time `json:"anchor"`

	// Interval — период в месяцах.
	Interval int `json:"interval"`

	Strategy MonthlyStrategy `json:"strategy"`

	CachedNext *time.Time `json:"cached_next,omitempty"`
}

// LogicalSchedule — пять cron-подобных полей.
//
// Грамматика поля: `*`, `*/n`, список через запятую, `a-b`, `a-b/n`.
// Weekday дополнительно допускает `d/w1;w2` — weekday d только
// в указанные порядковые вхождения внутри месяца.
type LogicalSchedule struct {
	Anchor *time.Time `json:"anchor,omitempty"`

	Month   string `json:"month"`
	Day     string `json:"day"`
	Weekday string `json:"weekday"`
	Hour    string `json:"hour"`
	Minute  string `json:"minute"`
}
