// Package playthrough drives one game through its walkthrough and
// exploration branches, turning every transition into a record.
package playthrough

import (
	"context"
	"fmt"

	"playgraph/internal/types"
)

// Observation is what the environment reports after a reset or a step.
type Observation struct {
	Text        string
	Facts       types.FactSet
	LastAction  *types.Action
	Admissible  []string
	Done        bool
	Walkthrough []string
}

// Environment is the interactive world. Step may be slow; callers own any
// timeout through ctx. Fork returns an independent copy positioned at the
// same state.
type Environment interface {
	Reset(ctx context.Context) (Observation, error)
	Step(ctx context.Context, command string) (Observation, error)
	Fork() (Environment, error)
}

// EnvironmentError wraps a failed environment call.
type EnvironmentError struct {
	Command string
	Err     error
}

func (e *EnvironmentError) Error() string {
	if e.Command == "" {
		return fmt.Sprintf("environment reset failed: %v", e.Err)
	}
	return fmt.Sprintf("environment step %q failed: %v", e.Command, e.Err)
}

func (e *EnvironmentError) Unwrap() error {
	return e.Err
}
