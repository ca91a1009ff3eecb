// Package repo — хранилище Conveyor в PostgreSQL (pgx/v5).
//
// Таблицы (см. Schema, EnsureSchema):
//   - pipelines  — сохранённые графы (JSONB)
//   - executions — журнал прогонов, ExecutionRepo реализует executor.History
//   - schedules  — расписания из узлов trigger.schedule
//
// LeaderLock даёт лидерство одному экземпляру scheduler'а
// через pg_try_advisory_lock.
package repo
