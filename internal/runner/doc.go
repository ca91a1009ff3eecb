// Package runner выполняет сохранённые пайплайны.
//
// Service загружает пайплайн из PipelineStore, проверяет ключ
// идемпотентности и передаёт копию графа Executor'у. Запись прогона
// сохраняет History Executor'а, события уходят в его EventSink.
//
// Запуск:
//   - синхронно — Service.RunPipeline / Service.RunGraph
//   - через RabbitMQ — QueueDispatcher публикует run.requested,
//     consumer (NewConsumer) вызывает HandleRunRequested
//   - в фоне без брокера — LocalDispatcher
package runner
