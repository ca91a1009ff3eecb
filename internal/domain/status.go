package domain

// ExecutionStatus — статус узла в рамках одного прогона.
//
// Жизненный цикл:
//
//	idle → executing → success
//	                 ↘ error
//
// В начале каждого прогона все узлы сбрасываются в idle.
type ExecutionStatus string

const (
	// StatusIdle — узел ещё не выполнялся в этом прогоне.
	StatusIdle ExecutionStatus = "idle"

	// StatusExecuting — callback узла выполняется.
	StatusExecuting ExecutionStatus = "executing"

	// StatusSuccess — узел выполнен успешно.
	StatusSuccess ExecutionStatus = "success"

	// StatusError — узел завершился с ошибкой.
	StatusError ExecutionStatus = "error"
)

// IsTerminal возвращает true, если статус финальный.
func (s ExecutionStatus) IsTerminal() bool {
	switch s {
	case StatusSuccess, StatusError:
		return true
	default:
		return false
	}
}

// RecordStatus — итоговый статус прогона.
type RecordStatus string

const (
	// RecordSuccess — все выполненные узлы завершились успешно.
	RecordSuccess RecordStatus = "success"

	// RecordError — прогон остановлен ошибкой.
	RecordError RecordStatus = "error"
)

// ParseRecordStatus парсит строку в RecordStatus.
func ParseRecordStatus(s string) RecordStatus {
	if s == string(RecordSuccess) {
		return RecordSuccess
	}
	return RecordError
}
