package domain

import (
	"time"

	"github.com/google/uuid"
)

// Schedule — расписание периодической подачи pipeline.
//
// Schedule хранит шаблон графа; когда время подошло, оркестратор создаёт
// новый PipelineInstance из шаблона и ставит его на выполнение.
// Поддерживается cron-выражение или фиксированный интервал.
type Schedule struct {
	// ID — уникальный идентификатор расписания.
	ID uuid.UUID `json:"id"`

	// Name — имя расписания.
	Name string `json:"name,omitempty"`

	// Graph — шаблон графа. ID графа игнорируется: каждая подача
	// получает новый pipeline ID.
	Graph PipelineGraph `json:"graph"`

	// CronExpr — cron-выражение ("0 3 * * *" — каждый день в 3:00).
	// Если задано, IntervalSec игнорируется.
	CronExpr string `json:"cron_expr,omitempty"`

	// IntervalSec — интервал в секундах между подачами.
	IntervalSec int `json:"interval_sec,omitempty"`

	// Timezone — часовой пояс для cron. По умолчанию UTC.
	Timezone string `json:"timezone"`

	// Enabled — флаг активности.
	Enabled bool `json:"enabled"`

	// NextDueAt — время следующей подачи.
	NextDueAt *time.Time `json:"next_due_at,omitempty"`

	// LastRunAt — время последней подачи.
	LastRunAt *time.Time `json:"last_run_at,omitempty"`

	// LastPipelineID — ID последнего созданного pipeline.
	LastPipelineID *uuid.UUID `json:"last_pipeline_id,omitempty"`

	// CreatedAt — время создания расписания.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt — время последнего обновления.
	UpdatedAt time.Time `json:"updated_at"`
}

// IsCron возвращает true, если расписание использует cron-выражение.
func (s *Schedule) IsCron() bool {
	return s.CronExpr != ""
}

// IsInterval возвращает true, если расписание использует интервал.
func (s *Schedule) IsInterval() bool {
	return s.CronExpr == "" && s.IntervalSec > 0
}

// IsDue проверяет, пора ли подавать pipeline.
func (s *Schedule) IsDue(now time.Time) bool {
	if !s.Enabled || s.NextDueAt == nil {
		return false
	}
	return !now.Before(*s.NextDueAt)
}

// RecordRun записывает информацию о подаче и следующее время срабатывания.
func (s *Schedule) RecordRun(pipelineID uuid.UUID, nextDue time.Time) {
	now := time.Now()
	s.LastRunAt = &now
	s.LastPipelineID = &pipelineID
	s.NextDueAt = &nextDue
	s.UpdatedAt = now
}
