package orchestrator

import (
	"time"

	"github.com/shaiso/Forge/internal/domain"
)

const (
	defaultInitialDelay = time.Second
	defaultMaxDelay     = 30 * time.Second
)

// retryDelay вычисляет задержку перед попыткой attempt+1 по политике
// retry задачи. Для exponential задержка удваивается с каждой
// неудачной попыткой и ограничивается сверху MaxDelayMs.
func retryDelay(policy domain.RetryPolicy, attempt int) time.Duration {
	initial := time.Duration(policy.InitialDelayMs) * time.Millisecond
	if initial <= 0 {
		initial = defaultInitialDelay
	}
	max := time.Duration(policy.MaxDelayMs) * time.Millisecond
	if max <= 0 {
		max = defaultMaxDelay
	}

	delay := initial
	if policy.Backoff == "exponential" {
		// attempt=1 — первая неудача, задержка initial; дальше ×2.
		for i := 1; i < attempt; i++ {
			delay *= 2
			if delay >= max {
				delay = max
				break
			}
		}
	}

	if delay > max {
		delay = max
	}
	return delay
}
