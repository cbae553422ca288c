package rules

import "fmt"

// ConfigurationError reports a malformed rule base. It is detected at load
// time and is fatal for the game that ships the rule base.
type ConfigurationError struct {
	Rule      string
	Predicate string
	Reason    string
}

func (e *ConfigurationError) Error() string {
	switch {
	case e.Rule != "" && e.Predicate != "":
		return fmt.Sprintf("rule configuration error: rule %s: predicate %s: %s", e.Rule, e.Predicate, e.Reason)
	case e.Rule != "":
		return fmt.Sprintf("rule configuration error: rule %s: %s", e.Rule, e.Reason)
	case e.Predicate != "":
		return fmt.Sprintf("rule configuration error: predicate %s: %s", e.Predicate, e.Reason)
	default:
		return "rule configuration error: " + e.Reason
	}
}

func configErr(rule, predicate, format string, args ...interface{}) *ConfigurationError {
	return &ConfigurationError{Rule: rule, Predicate: predicate, Reason: fmt.Sprintf(format, args...)}
}
