package compiler

import "errors"

// Ошибки компиляции.
//
// Отсутствие типа или генератора ошибкой не считается:
// такие узлы пропускаются и попадают в Result.Skipped.
var (
	// ErrUnknownBackend — backend не зарегистрирован в компиляторе.
	ErrUnknownBackend = errors.New("unknown backend")

	// ErrFormat — formatter не смог сериализовать документ.
	ErrFormat = errors.New("format failed")
)
