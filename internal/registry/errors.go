package registry

import "errors"

// Ошибки реестра.
var (
	// ErrTypeNotFound — тип шага не зарегистрирован.
	ErrTypeNotFound = errors.New("step type not found")

	// ErrNoGenerator — у типа нет генератора для backend'а.
	ErrNoGenerator = errors.New("no generator for backend")
)
