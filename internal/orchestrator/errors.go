package orchestrator

import "errors"

var (
	// ErrNotCancellable — pipeline уже в терминальном состоянии,
	// отменять нечего.
	ErrNotCancellable = errors.New("pipeline is not cancellable")

	// ErrStopped — оркестратор остановлен и не принимает новые pipelines.
	ErrStopped = errors.New("orchestrator is stopped")
)
