package internal

import (
	"strings"
	"testing"
)

func eventFromJSON(t *testing.T, raw string) *Event {
	t.Helper()
	return &Event{RawPayload: []byte(raw)}
}

// TestRuleEngineSuppressSimple tests that a rule over top-level fields matches.
func TestRuleEngineSuppressSimple(t *testing.T) {
	engine, err := NewRuleEngine(RulesConfig{
		Rules: []Rule{{When: `event == "issue" && action == "updated"`}},
	})
	if err != nil {
		t.Fatalf("new rule engine: %v", err)
	}

	if !engine.Suppress(eventFromJSON(t, `{"event":"issue","action":"updated"}`)) {
		t.Fatalf("expected matching event to be suppressed")
	}
	if engine.Suppress(eventFromJSON(t, `{"event":"project","action":"updated"}`)) {
		t.Fatalf("expected non-matching event to pass")
	}
}

// TestRuleEngineBarePath tests that bare dotted paths resolve against the payload.
func TestRuleEngineBarePath(t *testing.T) {
	engine, err := NewRuleEngine(RulesConfig{
		Rules: []Rule{{When: `data.priority == "none"`}},
	})
	if err != nil {
		t.Fatalf("new rule engine: %v", err)
	}

	if !engine.Suppress(eventFromJSON(t, `{"event":"issue","data":{"priority":"none"}}`)) {
		t.Fatalf("expected priority rule to match")
	}
	if engine.Suppress(eventFromJSON(t, `{"event":"issue","data":{"priority":"urgent"}}`)) {
		t.Fatalf("expected urgent priority to pass")
	}
}

// TestRuleEngineJSONPath tests that $.-prefixed paths resolve via JSONPath.
func TestRuleEngineJSONPath(t *testing.T) {
	engine, err := NewRuleEngine(RulesConfig{
		Rules: []Rule{{When: `$.data.archived == true`}},
	})
	if err != nil {
		t.Fatalf("new rule engine: %v", err)
	}

	if !engine.Suppress(eventFromJSON(t, `{"event":"project","data":{"archived":true}}`)) {
		t.Fatalf("expected archived rule to match")
	}
}

// TestRuleEngineIndexedPath tests that indexed paths into arrays resolve.
func TestRuleEngineIndexedPath(t *testing.T) {
	engine, err := NewRuleEngine(RulesConfig{
		Rules: []Rule{{When: `data.labels[0].name == "noise"`}},
	})
	if err != nil {
		t.Fatalf("new rule engine: %v", err)
	}

	if !engine.Suppress(eventFromJSON(t, `{"event":"issue","data":{"labels":[{"name":"noise"}]}}`)) {
		t.Fatalf("expected label rule to match")
	}
}

// TestRuleEngineMissingField tests that a rule with an unresolvable path does not match.
func TestRuleEngineMissingField(t *testing.T) {
	engine, err := NewRuleEngine(RulesConfig{
		Rules: []Rule{{When: `data.missing == true`}},
	})
	if err != nil {
		t.Fatalf("new rule engine: %v", err)
	}

	if engine.Suppress(eventFromJSON(t, `{"event":"issue","data":{}}`)) {
		t.Fatalf("expected missing field to not match")
	}
}

// TestRuleEngineStringLiteralUntouched tests that path-like text inside string literals is not rewritten.
func TestRuleEngineStringLiteralUntouched(t *testing.T) {
	engine, err := NewRuleEngine(RulesConfig{
		Rules: []Rule{{When: `action == "data.priority"`}},
	})
	if err != nil {
		t.Fatalf("new rule engine: %v", err)
	}

	if !engine.Suppress(eventFromJSON(t, `{"event":"issue","action":"data.priority"}`)) {
		t.Fatalf("expected literal comparison to match")
	}
}

// TestRuleEngineCompileError tests that an invalid expression is a construction error.
func TestRuleEngineCompileError(t *testing.T) {
	_, err := NewRuleEngine(RulesConfig{
		Rules: []Rule{{When: `action == `}},
	})
	if err == nil {
		t.Fatalf("expected compile error")
	}
	if !strings.Contains(err.Error(), "compile rule") {
		t.Fatalf("expected compile rule error, got %v", err)
	}
}

// TestRuleEngineNoRules tests that an engine without rules never suppresses.
func TestRuleEngineNoRules(t *testing.T) {
	engine, err := NewRuleEngine(RulesConfig{})
	if err != nil {
		t.Fatalf("new rule engine: %v", err)
	}
	if engine.Suppress(eventFromJSON(t, `{"event":"issue","action":"created"}`)) {
		t.Fatalf("expected no suppression without rules")
	}
}

// TestRewritePathsDedup tests that the same path used twice maps to one parameter.
func TestRewritePathsDedup(t *testing.T) {
	rewritten, paths := rewritePaths(`data.priority == "high" || data.priority == "urgent"`)
	if len(paths) != 1 {
		t.Fatalf("expected 1 path, got %d", len(paths))
	}
	if strings.Contains(rewritten, "data.priority") {
		t.Fatalf("expected path token to be rewritten, got %q", rewritten)
	}
	for name, path := range paths {
		if path != "$.data.priority" {
			t.Fatalf("expected normalized path, got %q", path)
		}
		if !strings.Contains(rewritten, name) {
			t.Fatalf("expected parameter %q in %q", name, rewritten)
		}
	}
}
