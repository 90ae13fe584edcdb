package ports

import "github.com/JeanGrijp/request-guard/internal/core/domain"

// Metrics receives limiter events for observability. Implementations must be
// safe for concurrent use.
type Metrics interface {
	ObserveDecision(prefix string, allowed bool)
	ObserveBlock(action string)
	ObserveViolation(reason string)
	ObserveSweep(result domain.SweepResult)
}
