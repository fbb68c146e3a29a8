package orchestrator

import (
	"fmt"
	"time"
)

// Event is emitted on every state transition and before every retry wait.
type Event struct {
	RunID   string
	State   State
	Section int // -1 outside GeneratingSection
	Title   string
	Total   int

	// Retry is set for retry notifications; State is unchanged.
	Retry *RetryInfo

	Err error
}

type RetryInfo struct {
	Attempt int
	Wait    time.Duration
	Err     error
}

// Observer receives events synchronously on the run's goroutine.
type Observer func(Event)

// FormatProgress renders an event as a human-readable status line.
func FormatProgress(e Event) string {
	if e.Retry != nil {
		return fmt.Sprintf("  ↻ attempt %d failed, retrying in %s: %v", e.Retry.Attempt, e.Retry.Wait, e.Retry.Err)
	}
	switch e.State {
	case StatePlanning:
		return "🧭 Planning script structure..."
	case StateGeneratingSection:
		return fmt.Sprintf("  ● Step %d/%d: generating `%s`...", e.Section+1, e.Total, e.Title)
	case StateAssembling:
		return fmt.Sprintf("🧩 Assembling %d sections...", e.Total)
	case StateDone:
		return "✅ Code generation completed."
	case StateFailed:
		if e.Section >= 0 {
			return fmt.Sprintf("  ✗ `%s` failed: %v", e.Title, e.Err)
		}
		return fmt.Sprintf("  ✗ planning failed: %v", e.Err)
	default:
		return fmt.Sprintf("  ? %s", e.State)
	}
}
