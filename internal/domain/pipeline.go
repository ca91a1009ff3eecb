package domain

import (
	"time"

	"github.com/google/uuid"
)

// Pipeline — сохранённый граф пайплайна.
//
// Граф хранится целиком (JSONB). Compiler и Executor работают
// со снимком Graph и ничего не знают о хранилище.
type Pipeline struct {
	// ID — уникальный идентификатор пайплайна.
	ID uuid.UUID `json:"id"`

	// Name — уникальное имя ("web-app", "nightly-scan").
	Name string `json:"name"`

	// Description — описание для людей.
	Description string `json:"description,omitempty"`

	// Graph — узлы и рёбра.
	Graph Graph `json:"graph"`

	// IsActive — неактивные пайплайны не запускаются по расписанию.
	IsActive bool `json:"is_active"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
