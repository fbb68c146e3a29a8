package orchestrator

import (
	"errors"
	"fmt"
)

// ErrEmptyPrompt is returned before any call is made when the request has
// nothing to plan.
var ErrEmptyPrompt = errors.New("prompt is empty")

// RunError is the error returned by a failed run. Use errors.As on it to
// reach a *planner.ParseError or *llm.ProviderError.
type RunError struct {
	RunID string
	// Phase is StatePlanning or StateGeneratingSection.
	Phase State
	// Section is the index of the failing section, -1 during planning.
	Section int
	Title   string
	Err     error
}

func (e *RunError) Error() string {
	if e.Phase == StateGeneratingSection {
		return fmt.Sprintf("run %s failed generating section %d (%s): %v", e.RunID, e.Section+1, e.Title, e.Err)
	}
	return fmt.Sprintf("run %s failed during %s: %v", e.RunID, e.Phase, e.Err)
}

func (e *RunError) Unwrap() error { return e.Err }
