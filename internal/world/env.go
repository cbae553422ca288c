package world

import (
	"context"
	"fmt"

	"playgraph/internal/logging"
	"playgraph/internal/playthrough"
	"playgraph/internal/types"
)

// Env plays one game. Envs are cheap; Fork copies the cursor only.
type Env struct {
	game    *Game
	current *state
}

var _ playthrough.Environment = (*Env)(nil)

// Reset moves to the start state.
func (e *Env) Reset(ctx context.Context) (playthrough.Observation, error) {
	if err := ctx.Err(); err != nil {
		return playthrough.Observation{}, err
	}
	e.current = e.game.states[e.game.start]
	return e.observe(nil), nil
}

// Step executes an admissible command.
func (e *Env) Step(ctx context.Context, command string) (playthrough.Observation, error) {
	if err := ctx.Err(); err != nil {
		return playthrough.Observation{}, err
	}
	if e.current == nil {
		return playthrough.Observation{}, fmt.Errorf("game %s: step before reset", e.game.ID)
	}
	if e.current.done {
		return playthrough.Observation{}, fmt.Errorf("game %s: step after the game ended", e.game.ID)
	}
	tr, ok := e.current.commands[command]
	if !ok {
		return playthrough.Observation{}, fmt.Errorf("game %s, state %s: %w %q", e.game.ID, e.current.id, ErrUnknownCommand, command)
	}
	logging.WorldDebug("game %s: %s --%s--> %s", e.game.ID, e.current.id, command, tr.to)
	e.current = e.game.states[tr.to]
	action := tr.action
	return e.observe(&action), nil
}

// Fork returns an environment at the same state.
func (e *Env) Fork() (playthrough.Environment, error) {
	cp := *e
	return &cp, nil
}

// State returns the id of the current state.
func (e *Env) State() string {
	if e.current == nil {
		return ""
	}
	return e.current.id
}

func (e *Env) observe(action *types.Action) playthrough.Observation {
	return playthrough.Observation{
		Text:        e.current.observation,
		Facts:       e.current.facts,
		LastAction:  action,
		Admissible:  append([]string(nil), e.current.admissible...),
		Done:        e.current.done,
		Walkthrough: append([]string(nil), e.game.Walkthrough...),
	}
}
