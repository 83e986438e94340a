package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/koustubh-k/Synk-App/internal/app/bridge"
	"github.com/koustubh-k/Synk-App/internal/core/domain"
	"github.com/koustubh-k/Synk-App/internal/core/services"
	"github.com/koustubh-k/Synk-App/pkg/logging"
)

const maxPresenceIDs = 500

type StatsSource interface {
	Stats() (users, conns int)
}

type RoomStats interface {
	Stats() (rooms int)
}

type BridgeStats interface {
	Stats() bridge.Stats
}

type StatusHandler struct {
	instanceID string
	backend    string
	registry   StatsSource
	rooms      RoomStats
	bridge     BridgeStats
	presence   *services.PresenceService
}

func NewStatusHandler(
	instanceID, backend string,
	registry StatsSource,
	rooms RoomStats,
	relay BridgeStats,
	presence *services.PresenceService,
) *StatusHandler {
	return &StatusHandler{
		instanceID: instanceID,
		backend:    backend,
		registry:   registry,
		rooms:      rooms,
		bridge:     relay,
		presence:   presence,
	}
}

func (h *StatusHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":           "ok",
		"instance_id":      h.instanceID,
		"presence_backend": h.backend,
	})
}

func (h *StatusHandler) Stats(w http.ResponseWriter, r *http.Request) {
	users, conns := h.registry.Stats()
	writeJSON(w, http.StatusOK, map[string]any{
		"instance_id": h.instanceID,
		"users":       users,
		"connections": conns,
		"rooms":       h.rooms.Stats(),
		"bridge":      h.bridge.Stats(),
	})
}

// Presence is the HTTP rendition of "check online status":
// GET /api/presence?ids=a,b answers [{"isOnline":bool}, ...] in input order.
func (h *StatusHandler) Presence(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("ids")
	if raw == "" {
		writeJSON(w, http.StatusBadRequest, domain.ErrorMessage{Code: domain.CodeInvalidPayload, Message: "ids is required"})
		return
	}
	ids := strings.Split(raw, ",")
	if len(ids) > maxPresenceIDs {
		writeJSON(w, http.StatusBadRequest, domain.ErrorMessage{Code: domain.CodeInvalidPayload, Message: "too many ids"})
		return
	}
	for i := range ids {
		ids[i] = strings.TrimSpace(ids[i])
	}
	statuses := h.presence.CheckOnline(r.Context(), ids)
	logging.FromContext(r.Context()).DebugContext(r.Context(), "status handler - presence - answered", "count", len(ids))
	writeJSON(w, http.StatusOK, statuses)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
