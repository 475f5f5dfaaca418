package domain

import (
	"time"

	"github.com/google/uuid"
)

// EventKind — вид события жизненного цикла.
type EventKind string

const (
	EventPipelineStarted   EventKind = "pipeline.started"
	EventPipelineCompleted EventKind = "pipeline.completed"
	EventPipelineFailed    EventKind = "pipeline.failed"
	EventPipelineCancelled EventKind = "pipeline.cancelled"

	EventNodeStarted   EventKind = "node.started"
	EventNodeCompleted EventKind = "node.completed"
	EventNodeFailed    EventKind = "node.failed"
	EventNodeRetrying  EventKind = "node.retrying"
	EventNodeCancelled EventKind = "node.cancelled"
)

// IsTerminal возвращает true для события, завершающего поток pipeline.
// После терминального события новых событий в потоке не появляется.
func (k EventKind) IsTerminal() bool {
	switch k {
	case EventPipelineCompleted, EventPipelineFailed, EventPipelineCancelled:
		return true
	default:
		return false
	}
}

// EventRecord — запись потока событий pipeline.
//
// Sequence монотонно растёт в рамках одного pipeline — это инвариант
// упорядоченности, на который опираются внешние подписчики:
// переподключившийся клиент возобновляет чтение с любого номера без пропусков.
type EventRecord struct {
	// PipelineID — pipeline, к которому относится событие.
	PipelineID uuid.UUID `json:"pipeline_id"`

	// Sequence — номер события в рамках pipeline, начиная с 1.
	Sequence uint64 `json:"sequence"`

	// NodeID — узел события; пустой для событий уровня pipeline.
	NodeID string `json:"node_id,omitempty"`

	// Kind — вид события.
	Kind EventKind `json:"kind"`

	// Payload — снимок данных на момент события (outputs, ошибка, подсказка).
	Payload map[string]any `json:"payload,omitempty"`

	// CreatedAt — время записи события.
	CreatedAt time.Time `json:"created_at"`
}
