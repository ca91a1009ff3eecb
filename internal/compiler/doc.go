// Package compiler превращает граф пайплайна в конфигурацию целевой системы.
//
// Ядро (CompileWith) не знает о синтаксисе результата: оно разбивает граф
// на стадии, прогоняет узлы через генераторы реестра и складывает фрагменты
// стратегией. Синтаксис определяют обёртка и formatter backend'а.
//
// Стратегии:
//   - FlatStrategy        — строки, склеенные по стадиям (shell)
//   - JobGraphStrategy    — задания со steps и needs (GitHub Actions)
//   - ScriptBlockStrategy — задания со script и needs (GitLab CI, Jenkins)
//   - FileSetStrategy     — набор файлов (files)
//
// Компиляция не падает из-за узлов: неизвестный тип или отсутствие генератора
// для backend'а означает, что узел пропускается (Result.Skipped).
// Ошибку возвращают только неизвестный backend и сбой formatter'а.
package compiler
