package internal

import (
	"fmt"
	"log"
	"regexp"
	"strings"

	"github.com/Knetic/govaluate"
	"github.com/PaesslerAG/jsonpath"
)

// Rule is an operator-defined suppression rule. When is a boolean
// expression over the inbound payload; any matching rule suppresses the
// notification before an embed is composed. Field paths may be written
// bare (`data.priority`) or JSONPath-style (`$.data.priority`); top-level
// scalars (`event`, `action`) are plain identifiers.
type Rule struct {
	When string `yaml:"when"`
}

// RulesConfig bundles what the rule engine needs at construction.
type RulesConfig struct {
	Rules  []Rule
	Strict bool
	Logger *log.Logger
}

type compiledRule struct {
	source string
	expr   *govaluate.EvaluableExpression
	// paths maps synthetic parameter names back to the JSONPath they
	// replaced in the source expression.
	paths map[string]string
}

// RuleEngine evaluates suppression rules against incoming events. Rules
// compile once at startup; a rule that fails to compile is a startup
// error, a rule that fails to evaluate simply does not match (logged in
// strict mode).
type RuleEngine struct {
	rules  []compiledRule
	strict bool
	logger *log.Logger
}

// pathTokenRE matches dotted or indexed field paths inside a rule
// expression, with or without the `$.` prefix. Plain identifiers are left
// alone for govaluate to resolve as parameters.
var pathTokenRE = regexp.MustCompile(
	`\$\.[A-Za-z_][A-Za-z0-9_]*(?:\.[A-Za-z_][A-Za-z0-9_]*|\[\d+\])*` +
		`|[A-Za-z_][A-Za-z0-9_]*(?:\.[A-Za-z_][A-Za-z0-9_]*|\[\d+\])+`)

func NewRuleEngine(cfg RulesConfig) (*RuleEngine, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}

	rules := make([]compiledRule, 0, len(cfg.Rules))
	for _, rule := range cfg.Rules {
		rewritten, paths := rewritePaths(rule.When)
		expr, err := govaluate.NewEvaluableExpression(rewritten)
		if err != nil {
			return nil, fmt.Errorf("compile rule %q: %w", rule.When, err)
		}
		rules = append(rules, compiledRule{source: rule.When, expr: expr, paths: paths})
	}

	return &RuleEngine{rules: rules, strict: cfg.Strict, logger: logger}, nil
}

// Suppress reports whether any rule matches the event.
func (r *RuleEngine) Suppress(ev *Event) bool {
	if len(r.rules) == 0 {
		return false
	}

	doc := ev.Document()
	flat := Flatten(doc)

	for _, rule := range r.rules {
		params := make(map[string]interface{}, len(doc)+len(rule.paths))
		for key, value := range doc {
			switch value.(type) {
			case map[string]interface{}, []interface{}:
			default:
				params[key] = value
			}
		}

		resolved := true
		for name, path := range rule.paths {
			value, ok := resolvePath(path, flat, doc)
			if !ok {
				if r.strict {
					r.logger.Printf("rule %q: path %s not found", rule.source, path)
				}
				resolved = false
				break
			}
			params[name] = value
		}
		if !resolved {
			continue
		}

		result, err := rule.expr.Evaluate(params)
		if err != nil {
			if r.strict {
				r.logger.Printf("rule %q: eval failed: %v", rule.source, err)
			}
			continue
		}
		if matched, _ := result.(bool); matched {
			return true
		}
	}
	return false
}

// resolvePath looks a field path up in the flattened payload first and
// falls back to JSONPath evaluation over the document.
func resolvePath(path string, flat map[string]interface{}, doc map[string]interface{}) (interface{}, bool) {
	if value, ok := flat[strings.TrimPrefix(path, "$.")]; ok {
		return value, true
	}
	var root interface{} = doc
	value, err := jsonpath.Get(path, root)
	if err != nil {
		return nil, false
	}
	return value, true
}

// rewritePaths replaces every field-path token outside string literals
// with a synthetic govaluate parameter name and returns the mapping from
// parameter names to normalized JSONPaths.
func rewritePaths(when string) (string, map[string]string) {
	var out strings.Builder
	paths := make(map[string]string)
	byPath := make(map[string]string)

	replace := func(segment string) {
		out.WriteString(pathTokenRE.ReplaceAllStringFunc(segment, func(token string) string {
			path := token
			if !strings.HasPrefix(path, "$.") {
				path = "$." + path
			}
			name, ok := byPath[path]
			if !ok {
				name = fmt.Sprintf("field%d", len(byPath))
				byPath[path] = name
				paths[name] = path
			}
			return name
		}))
	}

	i := 0
	for i < len(when) {
		quote := when[i]
		if quote == '"' || quote == '\'' {
			j := i + 1
			for j < len(when) {
				if when[j] == '\\' {
					j += 2
					continue
				}
				if when[j] == quote {
					j++
					break
				}
				j++
			}
			if j > len(when) {
				j = len(when)
			}
			out.WriteString(when[i:j])
			i = j
			continue
		}
		j := i
		for j < len(when) && when[j] != '"' && when[j] != '\'' {
			j++
		}
		replace(when[i:j])
		i = j
	}

	return out.String(), paths
}
