// Package api содержит HTTP API сервер.
//
// Структура:
//   - handler.go          — Handler с DI (хранилища, компилятор, runner, logger)
//   - routes.go           — регистрация маршрутов
//   - middleware.go       — middleware (logging, recovery, metrics)
//   - response.go         — унифицированные JSON-ответы и обработка ошибок
//   - dto.go              — Data Transfer Objects (request/response)
//   - pipeline_handler.go — обработчики для /pipelines
//   - compile_handler.go  — /compile, /validate, /step-types, /backends
//   - run_handler.go      — обработчики для /runs и /executions
//   - schedule_handler.go — обработчики для /schedules
//
// Ошибки возвращаются конвертом {"error": {"code": ..., "message": ...}}.
package api
