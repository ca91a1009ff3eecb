package scheduler

import (
	"fmt"
	"time"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/trigger"
)

// CalculateNextDue вычисляет следующее время выполнения для schedule.
// Для интервалов просто добавляет IntervalSec к from.
//
// Учитывает timezone schedule. Результат в UTC.
func CalculateNextDue(sched *domain.Schedule, from time.Time) (time.Time, error) {
	if sched.IsCron() {
		return trigger.NextCron(sched.CronExpr, from, sched.Timezone)
	}

	if sched.IsInterval() {
		return from.Add(time.Duration(sched.IntervalSec) * time.Second).UTC(), nil
	}

	// Ни cron, ни interval — schedule некорректный
	return time.Time{}, fmt.Errorf("%w: schedule has neither cron_expr nor interval_sec", ErrInvalidSchedule)
}

// ValidateSchedule проверяет расписание, созданное через API.
func ValidateSchedule(sched *domain.Schedule) error {
	switch {
	case sched.IsCron():
		if err := trigger.ValidateCron(sched.CronExpr); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidSchedule, err)
		}
	case sched.IntervalSec < 0:
		return fmt.Errorf("%w: interval_sec must be positive", ErrInvalidSchedule)
	case !sched.IsInterval():
		return fmt.Errorf("%w: schedule has neither cron_expr nor interval_sec", ErrInvalidSchedule)
	}
	if sched.Timezone != "" {
		if _, err := time.LoadLocation(sched.Timezone); err != nil {
			return fmt.Errorf("%w: unknown timezone %q", ErrInvalidSchedule, sched.Timezone)
		}
	}
	return nil
}
