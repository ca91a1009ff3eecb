// Package executor выполняет граф пайплайна и формирует ExecutionRecord.
//
// Прогон устроен как одна очередь:
//
//  1. Все узлы сбрасываются в idle, граф проверяется на циклы.
//  2. В очередь попадают корни (узлы без входящих рёбер).
//  3. Узел из очереди выполняется, только если выполнены все его родители;
//     иначе он возвращается в конец очереди.
//  4. После успеха в очередь добавляются дети узла.
//  5. Первая ошибка останавливает прогон: оставшиеся узлы не выполняются.
//
// Входы узла собираются из результатов родителей по ключу
// targetHandle → sourceHandle → ID источника.
//
// Callback узла выбирается так: явный callback прогона, затем Execute
// из реестра, затем результат по умолчанию {status, timestamp, inputs}.
//
// При Parallelism > 1 готовые одновременно узлы выполняются параллельно
// (errgroup с ограничением), а результаты применяются в порядке очереди.
//
// Run никогда не возвращает ошибку: всё, включая цикл, отмену контекста
// и недостижимые узлы, попадает в ExecutionRecord.
package executor
