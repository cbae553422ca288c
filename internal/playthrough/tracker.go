package playthrough

import (
	"fmt"

	"playgraph/internal/diff"
	"playgraph/internal/inference"
	"playgraph/internal/logging"
	"playgraph/internal/mangle"
	"playgraph/internal/metrics"
	"playgraph/internal/rules"
	"playgraph/internal/serialize"
	"playgraph/internal/types"
	"playgraph/internal/views"
)

// TrackerOptions configures the per-step pipeline.
type TrackerOptions struct {
	Inference inference.Config
	Serialize serialize.Options
	// Verify cross-checks every closure against the Mangle evaluator.
	Verify bool
}

// Tracker runs closure, views, serialization and diffing for one step. It is
// stateless between calls and safe for concurrent use.
type Tracker struct {
	rb        *rules.RuleBase
	engine    *inference.Engine
	reference *mangle.Evaluator
	ser       *serialize.Serializer
	differ    *diff.Differ
}

// NewTracker builds a tracker for one rule base.
func NewTracker(rb *rules.RuleBase, opts TrackerOptions) (*Tracker, error) {
	engine, err := inference.NewEngine(rb, opts.Inference)
	if err != nil {
		return nil, err
	}
	t := &Tracker{
		rb:     rb,
		engine: engine,
		ser:    serialize.New(opts.Serialize),
	}
	t.differ = diff.NewDiffer(t.ser, rb)
	if opts.Verify {
		t.reference, err = mangle.NewEvaluator(rb, opts.Inference)
		if err != nil {
			return nil, err
		}
	}
	return t, nil
}

// Serializer returns the tracker's serializer.
func (t *Tracker) Serializer() *serialize.Serializer {
	return t.ser
}

// Snapshot is the outcome of one step.
type Snapshot struct {
	Closure types.FactSet
	Full    types.FactSet
	Local   types.FactSet
	Seen    types.FactSet

	PreviousSeenView []string
	SeenView         []string
	Commands         []diff.Command
	Stats            inference.Stats
}

// LocalView serializes the local view.
func (s Snapshot) LocalView(ser *serialize.Serializer) []string {
	return ser.SerializeSet(s.Local)
}

// FullView serializes the full view.
func (s Snapshot) FullView(ser *serialize.Serializer) []string {
	return ser.SerializeSet(s.Full)
}

// Advance runs the pipeline for one observation. prevSeen is read, never
// modified.
func (t *Tracker) Advance(prevSeen types.FactSet, obs Observation, command string) (Snapshot, error) {
	in := inference.Input{Facts: obs.Facts, LastAction: obs.LastAction, Command: command}

	var (
		closure types.FactSet
		stats   inference.Stats
		err     error
	)
	if t.reference != nil {
		closure, stats, err = mangle.Check(t.engine, t.reference, in)
	} else {
		closure, stats, err = t.engine.Closure(in)
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("closure after %q: %w", command, err)
	}
	metrics.ObserveClosure(stats.Passes, stats.Duration)

	scope := views.ComputeScope(closure, t.rb.Policy)
	full := views.Full(obs.Facts)
	seen := views.Seen(views.SeenInput{
		Previous: prevSeen,
		Closure:  closure,
		Scope:    scope,
		Action:   obs.LastAction,
		Rules:    t.rb,
	})

	cmds := t.differ.Commands(prevSeen, seen)
	if err := t.differ.CheckRoundTrip(prevSeen, seen, cmds); err != nil {
		return Snapshot{}, fmt.Errorf("step %q: %w", command, err)
	}
	for _, c := range cmds {
		metrics.CommandsTotal.WithLabelValues(string(c.Op)).Inc()
	}

	snap := Snapshot{
		Closure:          closure,
		Full:             full,
		Local:            views.Local(full, scope),
		Seen:             seen,
		PreviousSeenView: t.ser.SerializeSet(prevSeen),
		SeenView:         t.ser.SerializeSet(seen),
		Commands:         cmds,
		Stats:            stats,
	}
	logging.PlaythroughDebug("advance %q: %d raw, %d closure, %d seen, %d commands",
		command, obs.Facts.Len(), closure.Len(), seen.Len(), len(cmds))
	if logging.IsDebugMode() && len(cmds) > 0 {
		logging.PlaythroughDebug("commands %q: %v", command, diff.Strings(cmds))
	}
	return snap, nil
}
