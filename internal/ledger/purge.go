package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/conveyor/internal/domain"
	"github.com/shaiso/conveyor/internal/repo"
	"github.com/shaiso/conveyor/internal/telemetry"
)

// Идентификаторы bootstrap purge-задачи. Фиксированные, чтобы рестарт
// движка не плодил дубликаты.
var (
	purgeScheduleID = uuid.MustParse("00000000-0000-0000-0000-000000000001")
	purgeActionID   = uuid.MustParse("00000000-0000-0000-0000-000000000001")
	purgeTaskID     = uuid.MustParse("00000000-0000-0000-0000-000000000001")
)

// purgeTag — метка служебной recurring задачи очистки.
const purgeTag = "purge-database"

// Purge удаляет записи за пределами retention: завершённые задачи,
// обработанные события и истёкшие подписки.
func (l *Ledger) Purge(ctx context.Context) error {
	now := time.Now().UTC()

	purgedTasks, err := l.tasks.PurgeCompleted(ctx, now.Add(-l.taskLifetime))
	if err != nil {
		return err
	}
	purgedEvents, err := l.events.Purge(ctx, now.Add(-l.eventLifetime))
	if err != nil {
		return err
	}
	purgedSubscriptions, err := l.subscriptions.PurgeExpired(ctx, now, now.Add(-l.taskLifetime))
	if err != nil {
		return err
	}

	telemetry.PurgedRecords.WithLabelValues("tasks").Add(float64(purgedTasks))
	telemetry.PurgedRecords.WithLabelValues("events").Add(float64(purgedEvents))
	telemetry.PurgedRecords.WithLabelValues("subscriptions").Add(float64(purgedSubscriptions))

	l.logger.Info("purge finished",
		"tasks", purgedTasks, "events", purgedEvents, "subscriptions", purgedSubscriptions)
	return nil
}

// EnsurePurgeTask создаёт служебную recurring задачу очистки, если её
// ещё нет: фиксированное расписание раз в сутки в 02:00 UTC.
func (l *Ledger) EnsurePurgeTask(ctx context.Context) error {
	_, err := l.tasks.FindRecurringByTag(ctx, purgeTag)
	if err == nil {
		// Задача уже есть; reschedule восстановит дочернюю задачу,
		// если та была потеряна.
		return l.Reschedule(ctx, purgeTaskID)
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return err
	}

	schedule := &domain.Schedule{
		ID:   purgeScheduleID,
		Name: "Purge Schedule",
		Type: domain.ScheduleFixed,
		Fixed: &domain.FixedSchedule{
			Anchor:      time.Date(2000, 1, 1, 2, 0, 0, 0, time.UTC),
			IntervalSec: 86400,
		},
	}
	if err := l.schedules.Create(ctx, schedule); err != nil {
		return err
	}

	task := &domain.RecurringTask{
		Task: domain.Task{
			ID:  purgeTaskID,
			Tag: purgeTag,
			Action: domain.Action{
				ID:       purgeActionID,
				Type:     domain.ActionInternal,
				Internal: &domain.InternalAction{Purpose: domain.PurgePurpose},
			},
			RetryLimit: 0,
			Created:    time.Now().UTC(),
		},
		Status:     domain.RecurringActive,
		ScheduleID: schedule.ID,
	}
	return l.CreateRecurring(ctx, task)
}
