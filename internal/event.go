package internal

import "encoding/json"

// Actor is the Plane user that triggered an event. The ID is an opaque
// UUID and is never shown to users.
type Actor struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name,omitempty"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

// Activity describes a single field-level change carried by an event.
type Activity struct {
	Field    string      `json:"field,omitempty"`
	OldValue interface{} `json:"old_value,omitempty"`
	NewValue interface{} `json:"new_value,omitempty"`
	Actor    *Actor      `json:"actor,omitempty"`
}

// Event is an incoming Plane webhook payload. Data is an open mapping of
// whatever domain object fields Plane sends; access goes through the typed
// accessors below rather than ad-hoc map lookups.
type Event struct {
	Category string                 `json:"event"`
	Action   string                 `json:"action"`
	Data     map[string]interface{} `json:"data"`
	Activity *Activity              `json:"activity,omitempty"`

	// RawPayload is the request body exactly as received. Kept for
	// archiving and rule evaluation, never re-serialized outbound.
	RawPayload []byte `json:"-"`
}

// DataString returns the string at the given top-level data key, or "".
func (e *Event) DataString(key string) string {
	if e.Data == nil {
		return ""
	}
	s, _ := e.Data[key].(string)
	return s
}

// Name returns data.name, the human title of the event's subject.
func (e *Event) Name() string {
	return e.DataString("name")
}

// StateName returns data.state.name, the current human-readable state of
// an issue, or "" when absent.
func (e *Event) StateName() string {
	if e.Data == nil {
		return ""
	}
	state, _ := e.Data["state"].(map[string]interface{})
	if state == nil {
		return ""
	}
	name, _ := state["name"].(string)
	return name
}

// AssigneeNames returns the display name of each assignee, falling back to
// the generic name key. Entries with neither stay empty and are dropped
// later by sanitization.
func (e *Event) AssigneeNames() []interface{} {
	if e.Data == nil {
		return nil
	}
	raw, _ := e.Data["assignees"].([]interface{})
	if raw == nil {
		return nil
	}
	names := make([]interface{}, 0, len(raw))
	for _, entry := range raw {
		assignee, _ := entry.(map[string]interface{})
		if assignee == nil {
			names = append(names, "")
			continue
		}
		name, _ := assignee["display_name"].(string)
		if name == "" {
			name, _ = assignee["name"].(string)
		}
		names = append(names, name)
	}
	return names
}

// CoverImage returns data.cover_image_url or data.cover_image, whichever
// is a non-empty string first. Validity is the caller's concern.
func (e *Event) CoverImage() string {
	if url := e.DataString("cover_image_url"); url != "" {
		return url
	}
	return e.DataString("cover_image")
}

// ActorName returns the display name of the acting user, or "Unknown".
func (e *Event) ActorName() string {
	if e.Activity != nil && e.Activity.Actor != nil && e.Activity.Actor.DisplayName != "" {
		return e.Activity.Actor.DisplayName
	}
	return "Unknown"
}

// AvatarRef returns the acting user's avatar reference, or "".
func (e *Event) AvatarRef() string {
	if e.Activity != nil && e.Activity.Actor != nil {
		return e.Activity.Actor.AvatarURL
	}
	return ""
}

// Document returns the event as a generic JSON object for rule
// evaluation: the raw payload when available, else a reconstruction from
// the typed fields.
func (e *Event) Document() map[string]interface{} {
	if len(e.RawPayload) > 0 {
		if doc := unmarshalObject(e.RawPayload); doc != nil {
			return doc
		}
	}
	doc := map[string]interface{}{
		"event":  e.Category,
		"action": e.Action,
	}
	if e.Data != nil {
		doc["data"] = e.Data
	}
	if e.Activity != nil {
		activity := map[string]interface{}{
			"field":     e.Activity.Field,
			"old_value": e.Activity.OldValue,
			"new_value": e.Activity.NewValue,
		}
		if e.Activity.Actor != nil {
			activity["actor"] = map[string]interface{}{
				"id":           e.Activity.Actor.ID,
				"display_name": e.Activity.Actor.DisplayName,
				"avatar_url":   e.Activity.Actor.AvatarURL,
			}
		}
		doc["activity"] = activity
	}
	return doc
}

func unmarshalObject(raw []byte) map[string]interface{} {
	var out interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	doc, _ := out.(map[string]interface{})
	return doc
}
