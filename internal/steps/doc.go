// Package steps содержит стандартный каталог типов шагов.
//
// # Обзор
//
// Каждый тип каталога описан Definition и превращается в registry.Item:
//   - генераторы фрагментов для всех встроенных backend'ов компилятора
//   - функция выполнения для Executor (симуляция или реальное действие)
//   - список свойств для внешнего редактора
//
// Реестр создаётся явно и передаётся компилятору и Executor'у:
//
//	reg := steps.DefaultRegistry()
//	c := compiler.New(compiler.Config{Registry: reg})
//	e := executor.New(executor.Config{Registry: reg})
//
// # Генераторы
//
// Definition.Command строит shell-команду узла. Из неё получаются
// фрагменты gitlab-ci, jenkins и shell, а для github-actions — шаг
// {"name": ..., "run": ...}. Definition.Action заменяет run: готовым
// действием (checkout → actions/checkout@v4). Definition.Files даёт
// файлы для backend'а files.
//
// Тип без Command (триггеры, transform, condition) не даёт фрагментов:
// компилятор пропускает такие узлы.
//
// # Интерфейс Step
//
// Выполнение описывается интерфейсом Step:
//
//	type Step interface {
//	    Type() string
//	    Execute(ctx context.Context, req *Request) (*Response, error)
//	}
//
// Executor(step) адаптирует Step к registry.ExecFunc: свойства узла
// рендерятся шаблонами с входами ({{ .Inputs.build.artifact }}),
// свойство "timeout_sec" ограничивает время выполнения.
//
// # Типы шагов
//
//   - trigger, trigger.push, trigger.pull_request, trigger.schedule,
//     trigger.manual, trigger.tag — описание события (source.go)
//   - checkout — получение кода (source.go)
//   - build, test, scan — сборка и проверки (build.go)
//   - deploy — helm, kubectl или скрипт (deploy.go)
//   - notify, http — webhook и HTTP запросы (http.go)
//   - delay — пауза (delay.go)
//   - transform, condition — шаблоны над входами (transform.go)
//   - file — файл в рабочей копии (file.go)
//
// Командные шаги (checkout, build, test, scan, deploy, file) в симуляции
// не запускают команду, а возвращают её текст. Свойство "fail" заставляет
// такой шаг упасть.
//
// # Обработка ошибок
//
//	var (
//	    ErrInvalidConfig   // неверная конфигурация
//	    ErrStepTimeout     // превышен timeout_sec
//	    ErrStepCancelled   // context cancelled
//	    ErrStepFailed      // шаг упал (в том числе по "fail")
//	)
//
// notify возвращает *HTTPError для ответа 4xx/5xx.
// Повторы выполняет Executor по свойству "retry" узла.
package steps
