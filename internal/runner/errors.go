package runner

import "errors"

// Ошибки runner'а.
var (
	// ErrPipelineNotFound — пайплайн для прогона не найден.
	ErrPipelineNotFound = errors.New("pipeline not found")

	// ErrPipelineInactive — пайплайн выключен.
	ErrPipelineInactive = errors.New("pipeline is inactive")
)
