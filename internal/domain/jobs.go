package domain

import (
	"context"
	"time"
)

// RenderJobCause описывает источник задачи рендеринга.
type RenderJobCause string

const (
	// RenderCauseManual — сводка запрошена вручную.
	RenderCauseManual RenderJobCause = "manual"
	// RenderCauseScheduled — сводка построена по расписанию.
	RenderCauseScheduled RenderJobCause = "scheduled"
)

// RenderJob — задача построения документа по сохранённой сводке.
type RenderJob struct {
	ID          string         `json:"job_id,omitempty"`
	SummaryID   string         `json:"summary_id"`
	RequestedAt time.Time      `json:"requested_at"`
	Cause       RenderJobCause `json:"cause"`
}

// RenderAckFunc подтверждает успешную обработку или запрашивает повтор
// доставки задачи.
type RenderAckFunc func(success bool) error

// RenderQueue описывает очередь задач рендеринга.
type RenderQueue interface {
	Enqueue(ctx context.Context, job RenderJob) error
	Receive(ctx context.Context) (RenderJob, RenderAckFunc, error)
}
