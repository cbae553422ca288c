// Package record assembles the per-transition training examples handed to
// the output sinks.
package record

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// RestartCommand is the pseudo-action that opens every playthrough.
const RestartCommand = "restart"

// ErrInvalidRecord reports a transition that cannot become a record.
var ErrInvalidRecord = errors.New("invalid record")

// Step locates a record within a playthrough: Main is the walkthrough index,
// Branch the depth within an exploration branch (0 on the walkthrough).
// It encodes as a two-element JSON array.
type Step struct {
	Main   int
	Branch int
}

// IsStart reports whether the step is (0, 0).
func (s Step) IsStart() bool {
	return s.Main == 0 && s.Branch == 0
}

func (s Step) String() string {
	return fmt.Sprintf("(%d, %d)", s.Main, s.Branch)
}

// MarshalJSON encodes the step as [main, branch].
func (s Step) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]int{s.Main, s.Branch})
}

// UnmarshalJSON decodes [main, branch].
func (s *Step) UnmarshalJSON(data []byte) error {
	var pair [2]int
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("step must be a two-element array: %w", err)
	}
	s.Main, s.Branch = pair[0], pair[1]
	return nil
}

// Record is one transition. It is never modified after Assemble.
type Record struct {
	Game              string   `json:"game"`
	Step              Step     `json:"step"`
	PreviousAction    string   `json:"previous_action"`
	Observation       string   `json:"observation"`
	PreviousGraphSeen []string `json:"previous_graph_seen"`
	GraphSeen         []string `json:"graph_seen"`
	TargetCommands    []string `json:"target_commands"`
	GraphLocal        []string `json:"graph_local,omitempty"`
	GraphFull         []string `json:"graph_full,omitempty"`
}

// Transition is the raw material of a record.
type Transition struct {
	Game         string
	Step         Step
	Action       string
	Observation  string
	PreviousSeen []string
	Seen         []string
	Commands     []string
	Local        []string
	Full         []string
}

// Assemble validates a transition and packages it.
func Assemble(t Transition) (Record, error) {
	action := strings.ToLower(strings.TrimSpace(t.Action))
	switch {
	case t.Game == "":
		return Record{}, fmt.Errorf("%w: game id is empty", ErrInvalidRecord)
	case action == "":
		return Record{}, fmt.Errorf("%w: step %s has no action", ErrInvalidRecord, t.Step)
	case t.Step.Main < 0 || t.Step.Branch < 0:
		return Record{}, fmt.Errorf("%w: negative step %s", ErrInvalidRecord, t.Step)
	case action == RestartCommand && !t.Step.IsStart():
		return Record{}, fmt.Errorf("%w: %q is only valid at step (0, 0), got %s", ErrInvalidRecord, RestartCommand, t.Step)
	case t.Step.IsStart() && action != RestartCommand:
		return Record{}, fmt.Errorf("%w: step (0, 0) must be %q, got %q", ErrInvalidRecord, RestartCommand, action)
	}

	return Record{
		Game:              t.Game,
		Step:              t.Step,
		PreviousAction:    action,
		Observation:       t.Observation,
		PreviousGraphSeen: nonNil(t.PreviousSeen),
		GraphSeen:         nonNil(t.Seen),
		TargetCommands:    nonNil(t.Commands),
		GraphLocal:        t.Local,
		GraphFull:         t.Full,
	}, nil
}

// Key is the record's storage key: record/<game>/<main>/<branch>.
func (r Record) Key() string {
	return fmt.Sprintf("record/%s/%06d/%06d", r.Game, r.Step.Main, r.Step.Branch)
}

// nonNil keeps empty lists encoding as [] rather than null.
func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
