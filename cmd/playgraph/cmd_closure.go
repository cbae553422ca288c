package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"playgraph/internal/inference"
	"playgraph/internal/mangle"
	"playgraph/internal/rules"
	"playgraph/internal/serialize"
	"playgraph/internal/types"
	"playgraph/internal/views"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	closureFactsFile string
	closureCommand   string
	closureAction    string
	closureVerify    bool
	closureRaw       bool
	closureView      string
)

// closureCmd evaluates the rule base over a fact set
var closureCmd = &cobra.Command{
	Use:   "closure [fact]...",
	Short: "Compute the closure of a fact set under the rule base",
	Long: `Closes the given facts under the configured rule base and prints the result.

Facts use Mangle atom syntax and may also be read from --facts (one per line,
# starts a comment).

Example:
  playgraph closure 'at(/P/player, /r/kitchen)' 'north_of(/r/hallway, /r/kitchen)'
  playgraph closure --facts state.mg --view local --verify`,
	RunE: runClosure,
}

func init() {
	closureCmd.Flags().StringVar(&closureFactsFile, "facts", "", "File of facts, one per line")
	closureCmd.Flags().StringVar(&closureCommand, "command", "", "Raw command text to inject")
	closureCmd.Flags().StringVar(&closureAction, "action", "", "Action fact to inject, e.g. 'open(/c/fridge)'")
	closureCmd.Flags().BoolVar(&closureVerify, "verify", false, "Cross-check against the Mangle engine")
	closureCmd.Flags().BoolVar(&closureRaw, "raw", false, "Print typed facts instead of canonical serialization")
	closureCmd.Flags().StringVar(&closureView, "view", "full", "View to print: full or local")
}

func readFactLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	return lines, sc.Err()
}

func runClosure(cmd *cobra.Command, args []string) error {
	texts := append([]string(nil), args...)
	if closureFactsFile != "" {
		lines, err := readFactLines(closureFactsFile)
		if err != nil {
			return fmt.Errorf("failed to read facts: %w", err)
		}
		texts = append(texts, lines...)
	}
	facts, err := rules.ParseFacts(texts)
	if err != nil {
		return err
	}

	rb, err := loadRules(cfg)
	if err != nil {
		return err
	}
	in := inference.Input{Facts: facts, Command: closureCommand}
	if closureAction != "" {
		f, err := rules.ParseFact(closureAction)
		if err != nil {
			return err
		}
		in.LastAction = &types.Action{Name: f.Predicate, Fact: &f}
	}

	engine, err := inference.NewEngine(rb, inferenceConfig(cfg))
	if err != nil {
		return err
	}
	var (
		closure types.FactSet
		stats   inference.Stats
	)
	if closureVerify || cfg.Rules.Verify {
		ev, err := mangle.NewEvaluator(rb, inferenceConfig(cfg))
		if err != nil {
			return err
		}
		closure, stats, err = mangle.Check(engine, ev, in)
		if err != nil {
			return err
		}
	} else if closure, stats, err = engine.Closure(in); err != nil {
		return err
	}

	view := closure
	switch closureView {
	case "full":
	case "local":
		view = views.Local(closure, views.ComputeScope(closure, rb.Policy))
	default:
		return fmt.Errorf("unknown view %q (valid: full, local)", closureView)
	}

	out := cmd.OutOrStdout()
	if closureRaw {
		for _, f := range view.Facts() {
			fmt.Fprintln(out, f.String())
		}
	} else {
		ser := serialize.New(serialize.Options{ConstantNames: cfg.Rules.ConstantNames, Discard: cfg.Rules.Discard})
		for _, line := range ser.SerializeSet(view) {
			fmt.Fprintln(out, line)
		}
	}
	logger.Info("Closure computed",
		zap.Int("input", facts.Len()),
		zap.Int("closure", closure.Len()),
		zap.Int("passes", stats.Passes),
		zap.Int("derived", stats.Derived),
		zap.Duration("duration", stats.Duration))
	return nil
}
