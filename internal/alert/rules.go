package alert

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"netsentry/internal/metrics"
)

// RuleSpec is one threshold rule as loaded from an alert rule file.
type RuleSpec struct {
	Name       string  `yaml:"name"`
	Metric     string  `yaml:"metric"`
	Comparator string  `yaml:"comparator"`
	Threshold  float64 `yaml:"threshold"`
	Severity   string  `yaml:"severity"`
}

// RuleFile is the top-level shape of an alert rule file: a flat list of
// rules under a "rules" key. Rule files use YAML, unlike the flat
// key:value main config, since they carry structured, list-shaped data.
type RuleFile struct {
	Rules []RuleSpec `yaml:"rules"`
}

// LoadRuleFile parses a YAML alert rule file.
func LoadRuleFile(path string) (*RuleFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("alert: read rule file: %w", err)
	}
	var rf RuleFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("alert: parse rule file: %w", err)
	}
	return &rf, nil
}

func parseSeverity(s string) (Severity, error) {
	switch s {
	case "info", "INFO":
		return Info, nil
	case "warning", "WARNING", "":
		return Warning, nil
	case "error", "ERROR":
		return Error, nil
	case "critical", "CRITICAL":
		return Critical, nil
	default:
		return 0, fmt.Errorf("alert: unknown severity %q", s)
	}
}

// ApplyRuleFile resolves every rule's metric against reg and registers it on
// e. It stops at the first rule that references an unknown metric or uses
// an invalid comparator/severity, returning that error.
func ApplyRuleFile(e *Engine, reg *metrics.Registry, rf *RuleFile) error {
	for _, rule := range rf.Rules {
		comparator, err := ParseComparator(rule.Comparator)
		if err != nil {
			return fmt.Errorf("alert: rule %q: %w", rule.Name, err)
		}
		severity, err := parseSeverity(rule.Severity)
		if err != nil {
			return fmt.Errorf("alert: rule %q: %w", rule.Name, err)
		}
		if err := e.AddMetricThresholdAlert(reg, rule.Name, rule.Metric, comparator, rule.Threshold, severity); err != nil {
			return fmt.Errorf("alert: rule %q: %w", rule.Name, err)
		}
	}
	return nil
}
