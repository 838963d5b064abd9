package discord

import (
	"strings"
	"time"

	"planehook/internal"
)

// Embed colors per action verb.
const (
	colorGreen  = 0x2ECC71
	colorYellow = 0xF1C40F
	colorRed    = 0xE74C3C
	colorBlue   = 0x3498DB
)

var actionColor = map[string]int{
	"create":  colorGreen,
	"created": colorGreen,
	"update":  colorYellow,
	"updated": colorYellow,
	"delete":  colorRed,
	"deleted": colorRed,
}

var categoryIcon = map[string]string{
	"issue":   "🐛",
	"project": "📁",
	"cycle":   "🗓️",
	"comment": "💬",
}

const defaultIcon = "ℹ️"

// Embed is the Discord embed object serialized into the webhook payload.
type Embed struct {
	Title     string       `json:"title"`
	Color     int          `json:"color"`
	Fields    []EmbedField `json:"fields"`
	Timestamp string       `json:"timestamp"`
	Thumbnail *EmbedMedia  `json:"thumbnail,omitempty"`
	Author    *EmbedAuthor `json:"author,omitempty"`
}

type EmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type EmbedMedia struct {
	URL string `json:"url"`
}

type EmbedAuthor struct {
	Name    string `json:"name"`
	IconURL string `json:"icon_url,omitempty"`
}

func makeField(name string, value interface{}, inline bool) EmbedField {
	return EmbedField{Name: name, Value: Sanitize(value), Inline: inline}
}

// BuildEmbed turns an event into a human-focused embed: no raw IDs or
// UUIDs, and changes rendered as "Backlog ➜ Todo" arrows. A nil return
// means the event carries nothing worth telling a human about and the
// notification is suppressed entirely.
func BuildEmbed(ev *internal.Event, authorIconURL string) *Embed {
	action := strings.ToLower(ev.Action)
	color, ok := actionColor[action]
	if !ok {
		color = colorBlue
	}
	icon, ok := categoryIcon[ev.Category]
	if !ok {
		icon = defaultIcon
	}

	actorName := ev.ActorName()

	fields := []EmbedField{
		makeField("Event", capitalize(ev.Category), true),
		makeField("Action", capitalize(ev.Action), true),
		makeField("By", actorName, true),
	}

	var title string
	switch ev.Category {
	case "issue":
		// Current state name, never the state ID.
		fields = append(fields, makeField("State", ev.StateName(), true))
		fields = append(fields, makeField("Assignees", ev.AssigneeNames(), true))
		title = ev.Name()
		if title == "" {
			title = "<untitled>"
		}
	case "project":
		title = ev.Name()
		if title == "" {
			title = "<untitled>"
		}
	default:
		title = capitalize(ev.Category)
	}

	if ev.Activity != nil && ev.Activity.Field != "" {
		field := ev.Activity.Field
		// A change to a bare identifier field says nothing to a human
		// reader, so the whole notification is dropped. state_id is the
		// exception: its new value maps to the current state name.
		if strings.HasSuffix(field, "_id") && field != "state_id" {
			return nil
		}

		label := capitalize(strings.ReplaceAll(strings.TrimSuffix(field, "_id"), "_", " "))

		oldVal := ev.Activity.OldValue
		newVal := ev.Activity.NewValue
		if field == "state_id" {
			if name := ev.StateName(); name != "" {
				newVal = name
			}
		}

		fields = append(fields, makeField(label, ArrowChange(oldVal, newVal), false))
	}

	embed := &Embed{
		Title:     icon + "  " + title,
		Color:     color,
		Fields:    fields,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	if thumb := ev.CoverImage(); validURL(thumb) {
		embed.Thumbnail = &EmbedMedia{URL: thumb}
	}

	embed.Author = &EmbedAuthor{Name: actorName}
	if authorIconURL != "" {
		embed.Author.IconURL = authorIconURL
	}

	return embed
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
}
