// Package mq предоставляет инфраструктуру для работы с RabbitMQ.
//
// Структура:
//   - connection.go — соединение с RabbitMQ: переподключение с backoff,
//     оповещение всех подписчиков, отдельные каналы для consumers
//   - topology.go   — объявление exchanges, queues, bindings
//   - publisher.go  — публикация сообщений в очереди
//   - consumer.go   — потребление run.requested: ack при успехе, одна
//     повторная доставка при ошибке, затем DLQ
//   - events.go     — EventPublisher: события Executor'а в conveyor.events
//
// Типы сообщений:
//   - run.requested — запрос на прогон сохранённого пайплайна
//   - node.status   — смена статуса узла (ключ node.<status>)
//   - run.finished  — итог прогона
//
// Exchanges:
//   - conveyor.runs   — запросы на прогон
//   - conveyor.events — живые события (topic)
//   - conveyor.dlq    — dead letter queue
package mq
