// Package trigger разбирает триггерные узлы графа.
//
// Триггер не участвует в обычной компиляции шагов: его настройки
// собираются отдельно в секцию запуска документа (on:, workflow.rules,
// triggers {}) и используются планировщиком для узлов trigger.schedule.
package trigger
