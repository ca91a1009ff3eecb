// Package scheduler запускает пайплайны по расписанию.
//
// Scheduler периодически проверяет schedules с истекшим next_due_at
// и отправляет запросы на прогон через runner.Dispatcher.
//
// Структура:
//   - scheduler.go — основная логика Scheduler (Tick, Run)
//   - cron.go      — вычисление следующего времени и проверка расписаний
//   - sync.go      — расписания из узлов trigger.schedule
//
// Использование:
//
//	sched := scheduler.New(scheduler.Config{
//	    Schedules:  scheduleRepo,
//	    Dispatcher: dispatcher,
//	    Metrics:    metrics,
//	    Logger:     logger,
//	})
//
//	sched.Run(ctx, time.Second, repo.NewLeaderLock(pool, "conveyor-scheduler"))
//
// Leader Election:
//
// Run вызывает Tick только пока удерживается advisory lock. Повторный
// запуск одного и того же срабатывания отсекается ключом идемпотентности.
package scheduler
