package compare

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	// ErrUnknownRule is returned when a rule document names an unknown kind
	ErrUnknownRule = errors.New("unknown rule type")
	// ErrInvalidRule is returned when a rule is missing its threshold(s)
	ErrInvalidRule = errors.New("invalid rule")
)

// RuleKind selects which statistic a rule checks
type RuleKind int

const (
	None RuleKind = iota
	Furthest
	RMS
	DiffRMS
	PixelPercent
	Intervals
)

var ruleKindNames = [...]string{
	None:         "None",
	Furthest:     "Furthest",
	RMS:          "RMS",
	DiffRMS:      "DiffRMS",
	PixelPercent: "PixelPercent",
	Intervals:    "Intervals",
}

func (k RuleKind) String() string {
	if k < 0 || int(k) >= len(ruleKindNames) {
		return fmt.Sprintf("RuleKind(%d)", int(k))
	}
	return ruleKindNames[k]
}

// ParseRuleKind maps a rule name to its kind. "None" is not accepted.
func ParseRuleKind(name string) (RuleKind, error) {
	for i, n := range ruleKindNames {
		if i != int(None) && n == name {
			return RuleKind(i), nil
		}
	}
	return None, fmt.Errorf("%w: %q", ErrUnknownRule, name)
}

func (k RuleKind) MarshalText() ([]byte, error) {
	if k <= None || int(k) >= len(ruleKindNames) {
		return nil, fmt.Errorf("%w: %d", ErrUnknownRule, int(k))
	}
	return []byte(k.String()), nil
}

func (k *RuleKind) UnmarshalText(text []byte) error {
	parsed, err := ParseRuleKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Rule is one pass/fail check against finalized statistics. Intervals uses
// Vals, one percentage threshold per histogram bucket (thresholds beyond
// the last bucket are ignored); every other kind uses Val.
type Rule struct {
	Type RuleKind  `yaml:"Type" json:"Type"`
	Val  float64   `yaml:"Val,omitempty" json:"Val,omitempty"`
	Vals []float64 `yaml:"Vals,omitempty" json:"Vals,omitempty"`
}

func (r Rule) String() string {
	if r.Type == Intervals {
		return fmt.Sprintf("%s%v", r.Type, r.Vals)
	}
	return fmt.Sprintf("%s(%g)", r.Type, r.Val)
}

// DefaultRules is the rule set used when none is configured
func DefaultRules() []Rule {
	return []Rule{{Type: Furthest, Val: 2.3}}
}

type ruleDoc struct {
	Type *RuleKind `yaml:"Type"`
	Val  *float64  `yaml:"Val"`
	Vals []float64 `yaml:"Vals"`
}

// ParseRules decodes a YAML or JSON rule list. The document is either a
// sequence of rules or a mapping with a Rules sequence.
func ParseRules(data []byte) ([]Rule, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("failed to parse rules: %w", err)
	}
	if len(root.Content) == 0 {
		return nil, nil
	}

	node := root.Content[0]
	if node.Kind == yaml.MappingNode {
		var wrapped struct {
			Rules yaml.Node `yaml:"Rules"`
		}
		if err := node.Decode(&wrapped); err != nil {
			return nil, fmt.Errorf("failed to parse rules: %w", err)
		}
		if wrapped.Rules.Kind == 0 {
			return nil, fmt.Errorf("%w: missing Rules", ErrInvalidRule)
		}
		node = &wrapped.Rules
	}

	var docs []ruleDoc
	if err := node.Decode(&docs); err != nil {
		return nil, fmt.Errorf("failed to parse rules: %w", err)
	}

	rules := make([]Rule, 0, len(docs))
	for i, d := range docs {
		if d.Type == nil {
			return nil, fmt.Errorf("%w: rule %d: missing Type", ErrInvalidRule, i)
		}
		r := Rule{Type: *d.Type}
		if r.Type == Intervals {
			if d.Vals == nil {
				return nil, fmt.Errorf("%w: rule %d: Intervals requires Vals", ErrInvalidRule, i)
			}
			r.Vals = d.Vals
		} else {
			if d.Val == nil {
				return nil, fmt.Errorf("%w: rule %d: %s requires Val", ErrInvalidRule, i, r.Type)
			}
			r.Val = *d.Val
		}
		rules = append(rules, r)
	}
	return rules, nil
}

// LoadRules reads a rule document from disk
func LoadRules(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules: %w", err)
	}
	return ParseRules(data)
}

// Evaluate checks one rule against finalized statistics. A statistic equal
// to its threshold passes. On failure the returned message describes the
// violation.
func Evaluate(r Rule, s *Stats) (bool, string) {
	switch r.Type {
	case Furthest:
		if s.Furthest > r.Val {
			return false, fmt.Sprintf("Furthest color distance check failed: %g above threshold %g", s.Furthest, r.Val)
		}
	case RMS:
		if s.RMS > r.Val {
			return false, fmt.Sprintf("RMS check failed. RMS %g above threshold %g", s.RMS, r.Val)
		}
	case DiffRMS:
		if s.DiffRMS > r.Val {
			return false, fmt.Sprintf("Differing RMS check failed. RMS of differing pixels %g above threshold %g", s.DiffRMS, r.Val)
		}
	case PixelPercent:
		if p := s.VisiblePercent(); p > r.Val {
			return false, fmt.Sprintf("PixelPercent check failed. Difference percent %g above threshold %g", p, r.Val)
		}
	case Intervals:
		return evaluateIntervals(r.Vals, s)
	default:
		return false, fmt.Sprintf("rule %s cannot be evaluated", r.Type)
	}
	return true, ""
}

func evaluateIntervals(vals []float64, s *Stats) (bool, string) {
	for i := 0; i < HistogramBuckets; i++ {
		if i >= len(vals) {
			if s.Histogram[i] != 0 {
				return false, fmt.Sprintf("Interval[%d]: Contains non-zero value: %d", i, s.Histogram[i])
			}
			continue
		}
		if p := s.BucketPercent(i); p > vals[i] {
			return false, fmt.Sprintf("Interval[%d]: Out of range. Maximum: %g Actual: %g", i, vals[i], p)
		}
	}
	return true, ""
}

// EvaluateAll checks rules in order and stops at the first failure
func EvaluateAll(rules []Rule, s *Stats) (bool, string) {
	for _, r := range rules {
		if ok, msg := Evaluate(r, s); !ok {
			return false, msg
		}
	}
	return true, ""
}

func formatRules(rules []Rule) string {
	parts := make([]string, len(rules))
	for i, r := range rules {
		parts[i] = r.String()
	}
	return strings.Join(parts, ", ")
}
