package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"homesentry/internal/command"
	"homesentry/internal/store"
)

// Server is the operator-facing HTTP surface: live overview, device control,
// notifications, and threshold/security settings. Authentication happens at
// the gateway in front of this service.
type Server struct {
	repo  *store.Repo
	pub   *command.Publisher
	cache *store.StateCache
	ws    http.Handler
}

func New(repo *store.Repo, pub *command.Publisher, cache *store.StateCache, ws http.Handler) *Server {
	return &Server{repo: repo, pub: pub, cache: cache, ws: ws}
}

func (s *Server) Routes(extra ...func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	for _, mw := range extra {
		r.Use(mw)
	}

	health := func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	}
	r.Get("/health", health)
	r.Get("/healthz", health)

	if s.ws != nil {
		r.Get("/ws", s.ws.ServeHTTP)
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/overview", s.handleOverview)
		r.Get("/devices", s.handleListDevices)
		r.Get("/devices/{id}", s.handleGetDevice)
		r.Patch("/devices/{id}", s.handleRenameDevice)

		r.Route("/rooms/{room}", func(r chi.Router) {
			r.Delete("/devices/{id}", s.handleDeleteDevice)
			r.Post("/lights", s.handleControlAll(store.DeviceLight))
			r.Post("/lights/{id}", s.handleControlLight)
			r.Post("/doors", s.handleControlAll(store.DeviceDoor))
			r.Post("/doors/{id}", s.handleControlDoor)
			r.Post("/windows", s.handleControlAll(store.DeviceWindow))
			r.Post("/windows/{id}", s.handleControlWindow)
			r.Post("/auto", s.handleControlAuto)
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", s.handleListNotifications)
			r.Get("/unread-count", s.handleUnreadCount)
			r.Post("/{id}/read", s.handleMarkRead)
			r.Post("/read-all", s.handleMarkAllRead)
		})

		r.Route("/settings", func(r chi.Router) {
			r.Get("/sensors", s.handleListSensorSettings)
			r.Put("/sensors/{type}", s.handleUpdateSensorSetting)
			r.Get("/security", s.handleListSecuritySettings)
			r.Put("/security/{key}", s.handleUpdateSecuritySetting)
		})
	})

	return r
}

// --- Overview ---

func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	devices, err := s.repo.ListDevices(r.Context(), "")
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list devices")
		return
	}
	snapshots, err := s.repo.ListRoomSnapshots(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list room snapshots")
		return
	}
	unread, err := s.repo.UnreadNotificationCount(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to count notifications")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"devices":             devices,
		"statistics":          store.ComputeStatistics(devices),
		"rooms":               snapshots,
		"unreadNotifications": unread,
	})
}

func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := s.repo.ListDevices(r.Context(), r.URL.Query().Get("location"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list devices")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": devices})
}

// handleGetDevice serves one device row, preferring the cached live state when
// it is fresher than what postgres has.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	d, err := s.repo.FindDevice(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load device")
		return
	}
	if d == nil {
		writeError(w, http.StatusNotFound, "device not found")
		return
	}
	if cached, err := s.cache.Get(r.Context(), id); err == nil && cached != nil && cached.UpdatedAt.After(d.UpdatedAt) {
		d.LastState = cached.LastState
		d.Status = cached.Status
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleRenameDevice(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	d, err := s.repo.RenameDevice(r.Context(), chi.URLParam(r, "id"), req.Name)
	if errors.Is(err, store.ErrDeviceNotFound) {
		writeError(w, http.StatusNotFound, "device not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to rename device")
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleDeleteDevice(w http.ResponseWriter, r *http.Request) {
	room := chi.URLParam(r, "room")
	id := chi.URLParam(r, "id")
	err := s.repo.DeleteOfflineDevice(r.Context(), room, id)
	switch {
	case errors.Is(err, store.ErrDeviceNotFound):
		writeError(w, http.StatusNotFound, "device not found")
	case errors.Is(err, store.ErrDeviceOnline):
		writeError(w, http.StatusConflict, "only offline devices can be deleted")
	case err != nil:
		writeError(w, http.StatusInternalServerError, "failed to delete device")
	default:
		if err := s.cache.Delete(r.Context(), id); err != nil {
			slog.Warn("state cache delete failed", "device_id", id, "error", err)
		}
		writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
	}
}

// --- Device control ---

type controlRequest struct {
	On *bool `json:"on"`
}

func decodeControl(w http.ResponseWriter, r *http.Request) (bool, bool) {
	var req controlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.On == nil {
		writeError(w, http.StatusBadRequest, "body must be {\"on\": true|false}")
		return false, false
	}
	return *req.On, true
}

func (s *Server) handleControlLight(w http.ResponseWriter, r *http.Request) {
	on, ok := decodeControl(w, r)
	if !ok {
		return
	}
	s.finishControl(w, s.pub.ControlLight(chi.URLParam(r, "room"), chi.URLParam(r, "id"), on))
}

func (s *Server) handleControlDoor(w http.ResponseWriter, r *http.Request) {
	on, ok := decodeControl(w, r)
	if !ok {
		return
	}
	s.finishControl(w, s.pub.ControlDoor(chi.URLParam(r, "room"), chi.URLParam(r, "id"), on))
}

func (s *Server) handleControlWindow(w http.ResponseWriter, r *http.Request) {
	on, ok := decodeControl(w, r)
	if !ok {
		return
	}
	s.finishControl(w, s.pub.ControlWindow(chi.URLParam(r, "room"), chi.URLParam(r, "id"), on))
}

func (s *Server) handleControlAuto(w http.ResponseWriter, r *http.Request) {
	on, ok := decodeControl(w, r)
	if !ok {
		return
	}
	s.finishControl(w, s.pub.ControlAuto(chi.URLParam(r, "room"), on))
}

// handleControlAll fans one command out to every device of the given type in
// the room. Partial failure is reported but does not stop the remaining sends.
func (s *Server) handleControlAll(deviceType string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		on, ok := decodeControl(w, r)
		if !ok {
			return
		}
		room := chi.URLParam(r, "room")
		devices, err := s.repo.ListDevices(r.Context(), room)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to list devices")
			return
		}

		sent, failed := 0, 0
		for _, d := range devices {
			if d.Type != deviceType {
				continue
			}
			var err error
			switch deviceType {
			case store.DeviceLight:
				err = s.pub.ControlLight(room, d.ID, on)
			case store.DeviceDoor:
				err = s.pub.ControlDoor(room, d.ID, on)
			case store.DeviceWindow:
				err = s.pub.ControlWindow(room, d.ID, on)
			}
			if err != nil {
				slog.Error("bulk control failed", "room", room, "device_id", d.ID, "error", err)
				failed++
				continue
			}
			sent++
		}
		if sent == 0 && failed > 0 {
			writeError(w, http.StatusBadGateway, "broker unavailable")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"sent": sent, "failed": failed})
	}
}

func (s *Server) finishControl(w http.ResponseWriter, err error) {
	if errors.Is(err, command.ErrNotConnected) {
		writeError(w, http.StatusBadGateway, "broker unavailable")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to publish command")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sent": true})
}

// --- Notifications ---

func (s *Server) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	unreadOnly := r.URL.Query().Get("unread") == "true"
	rows, err := s.repo.ListNotifications(r.Context(), unreadOnly)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list notifications")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"notifications": rows})
}

func (s *Server) handleUnreadCount(w http.ResponseWriter, r *http.Request) {
	n, err := s.repo.UnreadNotificationCount(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to count notifications")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"unread": n})
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid notification id")
		return
	}
	if err := s.repo.MarkNotificationRead(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to mark notification read")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"read": true})
}

func (s *Server) handleMarkAllRead(w http.ResponseWriter, r *http.Request) {
	if err := s.repo.MarkAllNotificationsRead(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to mark notifications read")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"read": true})
}

// --- Settings ---

func (s *Server) handleListSensorSettings(w http.ResponseWriter, r *http.Request) {
	rows, err := s.repo.ListSensorSettings(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list sensor settings")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"settings": rows})
}

func (s *Server) handleUpdateSensorSetting(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MinValue *float64 `json:"minValue"`
		MaxValue *float64 `json:"maxValue"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.MinValue == nil || req.MaxValue == nil {
		writeError(w, http.StatusBadRequest, "minValue and maxValue are required")
		return
	}
	if *req.MinValue > *req.MaxValue {
		writeError(w, http.StatusBadRequest, "minValue must not exceed maxValue")
		return
	}
	sensorType := chi.URLParam(r, "type")
	if err := s.repo.UpsertSensorSetting(r.Context(), sensorType, *req.MinValue, *req.MaxValue); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to save sensor setting")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sensorType": sensorType, "minValue": *req.MinValue, "maxValue": *req.MaxValue})
}

func (s *Server) handleListSecuritySettings(w http.ResponseWriter, r *http.Request) {
	rows, err := s.repo.ListSecuritySettings(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list security settings")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"settings": rows})
}

func (s *Server) handleUpdateSecuritySetting(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Value       string `json:"value"`
		ValueType   string `json:"valueType"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Value) == "" {
		writeError(w, http.StatusBadRequest, "value is required")
		return
	}
	key := chi.URLParam(r, "key")
	if err := s.repo.UpsertSecuritySetting(r.Context(), key, req.Value, req.ValueType, req.Description); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to save security setting")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"key": key, "value": req.Value})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg, "code": status})
}
