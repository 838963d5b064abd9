// Package discord composes and relays embed notifications to a Discord
// incoming webhook.
package discord

import (
	"fmt"
	"regexp"
	"strings"
)

// Placeholder replaces values that carry no human meaning: empties and
// machine identifiers.
const Placeholder = "—"

var (
	uuidRE = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)
	urlRE  = regexp.MustCompile(`(?i)^(https?://|attachment://)`)
)

// Sanitize renders an arbitrary decoded-JSON value as a display-safe
// string. Empty values and UUID-shaped strings become the placeholder;
// slices are sanitized element-wise and joined; maps yield their first
// human-meaning key (display_name, name, title). Pure and deterministic,
// and idempotent on its own string output.
func Sanitize(value interface{}) string {
	switch typed := value.(type) {
	case nil:
		return Placeholder
	case string:
		if typed == "" || uuidRE.MatchString(typed) {
			return Placeholder
		}
		return typed
	case []interface{}:
		if len(typed) == 0 {
			return Placeholder
		}
		pretty := make([]string, 0, len(typed))
		for _, elem := range typed {
			if s := Sanitize(elem); s != Placeholder {
				pretty = append(pretty, s)
			}
		}
		if len(pretty) == 0 {
			return Placeholder
		}
		return strings.Join(pretty, ", ")
	case map[string]interface{}:
		if len(typed) == 0 {
			return Placeholder
		}
		for _, key := range []string{"display_name", "name", "title"} {
			v, ok := typed[key]
			if !ok || v == nil {
				continue
			}
			if s, ok := v.(string); ok {
				if s != "" {
					return s
				}
				continue
			}
			return fmt.Sprint(v)
		}
		return fmt.Sprint(typed)
	default:
		return fmt.Sprint(value)
	}
}

// ArrowChange renders a before/after delta as "old ➜ new".
func ArrowChange(old, new interface{}) string {
	return fmt.Sprintf("%s ➜ %s", Sanitize(old), Sanitize(new))
}

// validURL accepts absolute http(s) URLs and attachment references; it is
// the gate for thumbnails and author icons so malformed input never
// reaches the outbound embed.
func validURL(s string) bool {
	return s != "" && urlRE.MatchString(s)
}
