// Package cli реализует инструмент командной строки Conveyor.
//
// # Обзор
//
// CLI работает в двух режимах:
//   - локально с файлом графа (JSON или DOT): compile, run, stages,
//     validate, backends, types. Используются compiler, executor и
//     встроенный каталог шагов напрямую, сервер не нужен;
//   - через HTTP API: pipeline, execution, schedule. Удалённые команды
//     не импортируют internal/api и дублируют нужные DTO.
//
// # Ключевые компоненты
//
// ## Client
//
// HTTP-клиент для Conveyor API. Инкапсулирует все HTTP-запросы,
// парсинг ответов (DataResponse, ListResponse, ErrorResponse)
// и обработку ошибок.
//
//	client := cli.NewClient("http://localhost:8080")
//	pipelines, err := client.ListPipelines()
//
// ## Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы (text/tabwriter) — по умолчанию
//   - JSON (json.MarshalIndent) — с флагом --json
//
// Данные выводятся в stdout, сообщения (Success/Error) и логи — в stderr.
// Это позволяет использовать pipe: conveyor compile graph.json | tee ci.yml
//
// ## Commands
//
//   - compile FILE --backend B [-o out]
//   - run FILE [--parallel N]
//   - stages FILE [--mode longest|bfs] [--format text|dot]
//   - validate FILE, backends, types
//   - pipeline: list, create, show, delete, compile, run
//   - execution: list, show
//   - schedule: list, create, show, update, delete, enable, disable
//
// Удалённые группы создаются фабриками (NewPipelineCmd и т.д.),
// принимающими clientFn и outputFn — замыкания для ленивого создания
// Client и Output после парсинга PersistentFlags.
package cli
