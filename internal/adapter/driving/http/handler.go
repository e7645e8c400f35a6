package http

import (
	"encoding/json"
	"net/http"

	"github.com/glimchat/glim/internal/adapter/driven/presence/memory"
	"github.com/glimchat/glim/internal/core/domain"
	"github.com/glimchat/glim/internal/core/service"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type Handler struct {
	Coordinator *service.Coordinator
	Presence    *memory.Registry

	sendBuffer    int
	allowedOrigin string
}

func NewHandler(coordinator *service.Coordinator, presence *memory.Registry, sendBuffer int, allowedOrigin string) *Handler {
	if sendBuffer <= 0 {
		sendBuffer = 32
	}
	return &Handler{
		Coordinator:   coordinator,
		Presence:      presence,
		sendBuffer:    sendBuffer,
		allowedOrigin: allowedOrigin,
	}
}

func (h *Handler) NewRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/presence/connect", h.ServePresence)
	r.Get("/rtc/connect", h.ServeRTC)
	r.Get("/rtc/members", h.GetRoomMembers)

	return r
}

// GetRoomMembers returns the currently-busy usernames in a room,
// excluding the caller. Backs the in-call membership view.
func (h *Handler) GetRoomMembers(w http.ResponseWriter, r *http.Request) {
	room := r.URL.Query().Get("room")
	caller := r.URL.Query().Get("username")
	if room == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"code": http.StatusBadRequest, "msg": "room is required"})
		return
	}

	members := h.Coordinator.RoomMembers(domain.RoomID(room), caller)
	writeJSON(w, http.StatusOK, map[string]any{"code": http.StatusOK, "data": members})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
