package playthrough

import (
	"context"
	"errors"
	"fmt"

	"playgraph/internal/diff"
	"playgraph/internal/logging"
	"playgraph/internal/record"
	"playgraph/internal/types"
)

// State is a branch's lifecycle state.
type State int

const (
	NotStarted State = iota
	Stepping
	Done
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "not-started"
	case Stepping:
		return "stepping"
	case Done:
		return "done"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Reasons a branch reaches Done. None of them is a failure.
var (
	ErrEpisodeOver     = errors.New("environment reported episode completion")
	ErrBranchExhausted = errors.New("no eligible commands remain")
	ErrDepthReached    = errors.New("branching depth reached")
)

// Branch is one continuation of a playthrough: an environment, the seen
// accumulator and the step counter. The main walkthrough is a branch too.
type Branch struct {
	game      string
	tracker   *Tracker
	env       Environment
	emitViews bool

	state     State
	reason    error
	step      record.Step
	exploring bool
	seen      types.FactSet
	last      Observation
}

// NewBranch returns a branch in the NotStarted state.
func NewBranch(game string, tracker *Tracker, env Environment, emitViews bool) *Branch {
	return &Branch{
		game:      game,
		tracker:   tracker,
		env:       env,
		emitViews: emitViews,
		seen:      types.EmptySet(),
	}
}

// State returns the lifecycle state.
func (b *Branch) State() State { return b.state }

// Reason returns why the branch is Done, or nil.
func (b *Branch) Reason() error { return b.reason }

// Seen returns the current seen accumulator.
func (b *Branch) Seen() types.FactSet { return b.seen }

// Observation returns the last observation.
func (b *Branch) Observation() Observation { return b.last }

// Position returns the index of the last record produced.
func (b *Branch) Position() record.Step { return b.step }

// Start resets the environment and produces the (0, 0) restart record.
func (b *Branch) Start(ctx context.Context) (record.Record, error) {
	if b.state != NotStarted {
		return record.Record{}, fmt.Errorf("cannot start a branch that is %s", b.state)
	}
	obs, err := b.env.Reset(ctx)
	if err != nil {
		return record.Record{}, &EnvironmentError{Err: err}
	}
	b.state = Stepping
	b.step = record.Step{}
	b.seen = types.EmptySet()
	return b.advance(obs, record.RestartCommand, b.step)
}

// Step executes one command and produces its record. When the environment
// reports completion the record is still produced and the branch becomes Done.
func (b *Branch) Step(ctx context.Context, command string) (record.Record, error) {
	if b.state != Stepping {
		return record.Record{}, fmt.Errorf("cannot step a branch that is %s", b.state)
	}
	if err := ctx.Err(); err != nil {
		return record.Record{}, err
	}
	obs, err := b.env.Step(ctx, command)
	if err != nil {
		return record.Record{}, &EnvironmentError{Command: command, Err: err}
	}

	next := b.step
	if b.exploring {
		next.Branch++
	} else {
		next.Main++
	}
	return b.advance(obs, command, next)
}

func (b *Branch) advance(obs Observation, command string, at record.Step) (record.Record, error) {
	snap, err := b.tracker.Advance(b.seen, obs, command)
	if err != nil {
		return record.Record{}, err
	}

	tr := record.Transition{
		Game:         b.game,
		Step:         at,
		Action:       command,
		Observation:  obs.Text,
		PreviousSeen: snap.PreviousSeenView,
		Seen:         snap.SeenView,
		Commands:     diff.Strings(snap.Commands),
	}
	if b.emitViews {
		tr.Local = snap.LocalView(b.tracker.Serializer())
		tr.Full = snap.FullView(b.tracker.Serializer())
	}
	rec, err := record.Assemble(tr)
	if err != nil {
		return record.Record{}, err
	}

	b.seen = snap.Seen
	b.last = obs
	b.step = at
	if obs.Done {
		b.Finish(ErrEpisodeOver)
	}
	return rec, nil
}

// Fork returns an independent branch at the same state. Its first step is
// numbered (main, first). The seen accumulator is shared by value; neither
// branch can observe the other's later steps.
func (b *Branch) Fork(first int) (*Branch, error) {
	if b.state != Stepping {
		return nil, fmt.Errorf("cannot fork a branch that is %s", b.state)
	}
	env, err := b.env.Fork()
	if err != nil {
		return nil, &EnvironmentError{Command: "fork", Err: err}
	}
	fork := *b
	fork.env = env
	fork.exploring = true
	fork.step = record.Step{Main: b.step.Main, Branch: first - 1}
	return &fork, nil
}

// Finish moves the branch to Done. Done is terminal.
func (b *Branch) Finish(reason error) {
	if b.state == Done {
		return
	}
	b.state = Done
	b.reason = reason
	logging.PlaythroughDebug("branch %s at %s done: %v", b.game, b.step, reason)
}
