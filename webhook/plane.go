// Package webhook holds the inbound HTTP handlers.
package webhook

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"

	"planehook/internal"
	"planehook/pkg/discord"
	"planehook/pkg/plane"
)

// PlaneHandler accepts Plane webhook events, turns them into Discord
// embed notifications, and relays them. Each request runs on its own
// goroutine; the handler itself holds no mutable state.
type PlaneHandler struct {
	rules        *internal.RuleEngine
	archive      internal.Archiver
	archiveTopic string
	avatars      *plane.AvatarFetcher
	discord      *discord.Client
	logger       *log.Logger
}

func NewPlaneHandler(
	rules *internal.RuleEngine,
	archive internal.Archiver,
	archiveTopic string,
	avatars *plane.AvatarFetcher,
	client *discord.Client,
	logger *log.Logger,
) *PlaneHandler {
	if logger == nil {
		logger = log.Default()
	}
	return &PlaneHandler{
		rules:        rules,
		archive:      archive,
		archiveTopic: archiveTopic,
		avatars:      avatars,
		discord:      client,
		logger:       logger,
	}
}

func (h *PlaneHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	rawBody, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "read body failed"})
		return
	}

	var ev internal.Event
	if err := json.Unmarshal(rawBody, &ev); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON payload"})
		return
	}
	if ev.Category == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "event is required"})
		return
	}
	if ev.Action == "" {
		ev.Action = "unknown"
	}
	if ev.Data == nil {
		ev.Data = map[string]interface{}{}
	}
	ev.RawPayload = rawBody

	internal.IncRequest(ev.Category)

	if h.archive != nil {
		if err := h.archive.Archive(r.Context(), h.archiveTopic, &ev); err != nil {
			h.logger.Printf("archive failed: %v", err)
		}
	}

	if h.rules != nil && h.rules.Suppress(&ev) {
		internal.IncSuppressed("rule")
		h.logger.Printf("event %s %s suppressed by rule", ev.Category, ev.Action)
		writeJSON(w, http.StatusOK, map[string]string{"status": "suppressed by rule"})
		return
	}

	var file *discord.File
	var authorIcon string
	if ref := ev.AvatarRef(); ref != "" && h.avatars != nil {
		if avatar := h.avatars.Fetch(r.Context(), ref); avatar != nil {
			file = &discord.File{
				Name:        avatar.Filename,
				ContentType: avatar.ContentType,
				Data:        avatar.Data,
			}
			authorIcon = "attachment://" + avatar.Filename
		} else {
			internal.IncAvatarError()
		}
	}

	embed := discord.BuildEmbed(&ev, authorIcon)
	if embed == nil {
		internal.IncSuppressed("identifier_change")
		h.logger.Printf("no relevant changes to report for event: %s", ev.Category)
		writeJSON(w, http.StatusOK, map[string]string{"status": "no relevant changes to report"})
		return
	}

	if err := h.discord.Execute(r.Context(), embed, file); err != nil {
		var relayErr *discord.RelayError
		if errors.As(err, &relayErr) {
			internal.IncRelayError(strconv.Itoa(relayErr.StatusCode))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": relayErr.Error()})
			return
		}
		internal.IncRelayError("transport")
		h.logger.Printf("discord relay failed: %v", err)
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "discord relay failed"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "forwarded to discord"})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
