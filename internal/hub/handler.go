package hub

import (
	"encoding/json"
	"io"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/VittorioRossetto/dogTrainer/internal/event"
	middlewarePkg "github.com/VittorioRossetto/dogTrainer/internal/middleware"
	"github.com/VittorioRossetto/dogTrainer/pkg/utils"
)

// Handler exposes the hub over HTTP: the websocket endpoint plus the status
// ingestion fallback and a small clients probe.
type Handler struct {
	hub      *Hub
	upgrader websocket.Upgrader
}

// NewHandler wraps h for serving.
func NewHandler(h *Hub) *Handler {
	return &Handler{
		hub: h,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// NewRouter wires the hub's HTTP routes.
func NewRouter(h *Hub) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	handler := NewHandler(h)
	r.Get("/ws", handler.handleWS)
	r.Post("/api/status", handler.handleStatus)
	r.Get("/api/clients", handler.handleClients)

	return r
}

func (h *Handler) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[hub] upgrade failed: %v", err)
		return
	}

	client := newClient(h.hub, conn)
	go client.run()
}

// handleStatus is the HTTP ingestion fallback: an event envelope body is
// broadcast as-is, any other JSON body is wrapped into a status envelope
// first. Either way the result reaches UIs exactly like a device message.
func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxMessageSize))
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "body_read_failed")
		return
	}

	if _, ok := event.Decode(raw); ok {
		h.hub.Broadcast(raw)
		utils.RespondJSON(w, http.StatusOK, map[string]bool{"ok": true})
		return
	}

	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid_json")
		return
	}

	env := event.New(event.Status, body)
	msg, err := json.Marshal(env)
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "encode_failed")
		return
	}

	h.hub.Broadcast(msg)
	utils.RespondJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handler) handleClients(w http.ResponseWriter, r *http.Request) {
	deviceConnected, uiCount := h.hub.Counts()
	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"deviceConnected": deviceConnected,
		"uiCount":         uiCount,
	})
}
