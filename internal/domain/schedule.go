package domain

import (
	"time"

	"github.com/google/uuid"
)

// Schedule — расписание автоматического запуска пайплайна.
//
// Расписания создаются из узлов trigger.schedule при сохранении пайплайна
// либо вручную через API. Scheduler запускает пайплайн, когда
// next_due_at наступил.
type Schedule struct {
	// ID — уникальный идентификатор schedule.
	ID uuid.UUID `json:"id"`

	// PipelineID — пайплайн, который нужно запускать.
	PipelineID uuid.UUID `json:"pipeline_id"`

	// NodeID — узел trigger.schedule, из которого получено расписание.
	// Пусто для расписаний, созданных вручную.
	NodeID string `json:"node_id,omitempty"`

	// Name — имя расписания для удобства.
	Name string `json:"name,omitempty"`

	// CronExpr — cron-выражение из пяти полей.
	// Примеры:
	//   "0 9 * * *"     — каждый день в 9:00
	//   "*/5 * * * *"   — каждые 5 минут
	// Если задан CronExpr, IntervalSec игнорируется.
	CronExpr string `json:"cron_expr,omitempty"`

	// IntervalSec — интервал в секундах между запусками.
	IntervalSec int `json:"interval_sec,omitempty"`

	// Timezone — часовой пояс для cron. По умолчанию "UTC".
	Timezone string `json:"timezone"`

	// Enabled — если false, scheduler игнорирует расписание.
	Enabled bool `json:"enabled"`

	// NextDueAt — время следующего запуска.
	NextDueAt *time.Time `json:"next_due_at,omitempty"`

	// LastRunAt — время последнего запуска.
	LastRunAt *time.Time `json:"last_run_at,omitempty"`

	// LastRequestID — ID последнего запроса на запуск.
	LastRequestID *uuid.UUID `json:"last_request_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsCron возвращает true, если расписание использует cron-выражение.
func (s *Schedule) IsCron() bool {
	return s.CronExpr != ""
}

// IsInterval возвращает true, если расписание использует интервал.
func (s *Schedule) IsInterval() bool {
	return s.CronExpr == "" && s.IntervalSec > 0
}

// IsDue проверяет, пора ли запускать.
func (s *Schedule) IsDue(now time.Time) bool {
	if !s.Enabled || s.NextDueAt == nil {
		return false
	}
	return !now.Before(*s.NextDueAt)
}

// RecordRun записывает информацию о запуске.
func (s *Schedule) RecordRun(requestID uuid.UUID, nextDue time.Time) {
	now := time.Now()
	s.LastRunAt = &now
	s.LastRequestID = &requestID
	s.NextDueAt = &nextDue
	s.UpdatedAt = now
}
