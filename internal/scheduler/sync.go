package scheduler

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/trigger"
)

// SchedulesFromPipeline строит расписания из узлов trigger.schedule.
//
// Каждое расписание получает NextDueAt относительно now. Выключенный
// пайплайн даёт выключенные расписания. Невалидный cron — ошибка.
func SchedulesFromPipeline(p *domain.Pipeline, now time.Time) ([]domain.Schedule, error) {
	var out []domain.Schedule

	for _, tr := range trigger.FromNodes(p.Graph.Nodes) {
		if tr.Kind != trigger.KindSchedule {
			continue
		}
		if err := tr.Validate(); err != nil {
			return nil, err
		}

		name := tr.NodeID
		if n := p.Graph.Node(tr.NodeID); n != nil {
			name = n.Name()
		}

		sched := domain.Schedule{
			ID:         uuid.New(),
			PipelineID: p.ID,
			NodeID:     tr.NodeID,
			Name:       name,
			CronExpr:   tr.Cron,
			Timezone:   tr.Timezone,
			Enabled:    p.IsActive,
			CreatedAt:  now,
			UpdatedAt:  now,
		}

		next, err := CalculateNextDue(&sched, now)
		if err != nil {
			return nil, fmt.Errorf("node %s: %w", tr.NodeID, err)
		}
		sched.NextDueAt = &next

		out = append(out, sched)
	}

	return out, nil
}
