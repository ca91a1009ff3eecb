// Package engine содержит общую для компилятора и исполнителя модель обхода графа.
//
// Включает:
//   - dag.go      — индекс графа, корни, топологическая сортировка, поиск циклов
//   - stage.go    — разбиение графа на стадии (BFS или longest path)
//   - parser.go   — парсинг графа из JSON и структурная валидация
//   - dot.go      — импорт графа из Graphviz DOT и экспорт плана стадий
//   - template.go — рендеринг свойств узла через Go templates ({{ .Inputs.x }})
//
// Стадии вычисляются заново при каждой компиляции и нигде не хранятся.
package engine
