package ingest

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"homesentry/internal/alert"
	"homesentry/internal/realtime"
	"homesentry/internal/store"
)

// stateForToken maps a raw firmware payload token to the canonical state for
// the device type. Unmapped tokens mean noise on the wire, not an error.
func stateForToken(deviceType, token string) (string, bool) {
	switch deviceType {
	case store.DeviceLight:
		switch token {
		case "ON":
			return store.StateOn, true
		case "OFF":
			return store.StateOff, true
		}
	case store.DeviceDoor:
		switch token {
		case "LOCKED":
			return store.StateLocked, true
		case "UNLOCKED":
			return store.StateUnlocked, true
		}
	case store.DeviceWindow:
		switch token {
		case "CLOSED":
			return store.StateClosed, true
		case "OPENED":
			return store.StateOpened, true
		}
	}
	return "", false
}

// safeState is what a device is forced to when its room drops offline: a
// disconnected room cannot be trusted to report, so assume the safe default.
func safeState(deviceType string) (string, bool) {
	switch deviceType {
	case store.DeviceLight:
		return store.StateOff, true
	case store.DeviceDoor:
		return store.StateLocked, true
	case store.DeviceWindow:
		return store.StateClosed, true
	}
	return "", false
}

// applyStatus reconciles one device-status message into the device row and
// pushes refreshed statistics to live viewers.
func (i *Ingestor) applyStatus(ctx context.Context, room, deviceType, deviceID, token string) {
	state, ok := stateForToken(deviceType, token)
	if !ok {
		slog.Debug("ignoring unmapped status token", "room", room, "device_id", deviceID, "token", token)
		return
	}

	d := &store.Device{
		ID:        deviceID,
		Type:      deviceType,
		Location:  room,
		LastState: state,
		Status:    store.DeviceStatusOnline,
	}
	if err := i.repo.UpsertDevice(ctx, d); err != nil {
		slog.Error("device status upsert failed", "room", room, "device_id", deviceID, "error", err)
		return
	}
	if err := i.cache.Set(ctx, deviceID, store.CachedState{
		Location:  room,
		LastState: state,
		Status:    store.DeviceStatusOnline,
		UpdatedAt: time.Now().UTC(),
	}); err != nil {
		slog.Warn("state cache write failed", "device_id", deviceID, "error", err)
	}

	i.broadcastStats(ctx, room)
}

// handleRoomConnectivity applies a room-wide online/offline transition. Going
// offline cascades: every device is marked offline and actuators are forced
// to their safe state before the statistics broadcast and the alert, so
// viewers never see a half-applied room.
func (i *Ingestor) handleRoomConnectivity(ctx context.Context, room string, payload []byte, at time.Time) {
	var online bool
	switch strings.TrimSpace(string(payload)) {
	case store.DeviceStatusOnline:
		online = true
	case store.DeviceStatusOffline:
		online = false
	default:
		slog.Warn("invalid current-status payload", "room", room, "payload", string(payload))
		return
	}

	devices, err := i.repo.ListDevices(ctx, room)
	if err != nil {
		slog.Error("room connectivity device list failed", "room", room, "error", err)
		return
	}

	status := store.DeviceStatusOffline
	if online {
		status = store.DeviceStatusOnline
	}
	for idx := range devices {
		d := &devices[idx]
		d.Status = status
		if !online {
			if forced, ok := safeState(d.Type); ok {
				d.LastState = forced
			}
		}
		if err := i.repo.SaveDevice(ctx, d); err != nil {
			// Partial cascade is acceptable; the next message self-heals.
			slog.Error("room connectivity save failed", "room", room, "device_id", d.ID, "error", err)
			continue
		}
		if err := i.cache.Set(ctx, d.ID, store.CachedState{
			Location:  room,
			LastState: d.LastState,
			Status:    d.Status,
			UpdatedAt: at,
		}); err != nil {
			slog.Warn("state cache write failed", "device_id", d.ID, "error", err)
		}
	}

	slog.Info("room connectivity applied", "room", room, "status", status, "devices", len(devices))
	i.broadcastStats(ctx, room)

	if online {
		return
	}

	i.mu.Lock()
	last, seen := i.lastOfflineAt[room]
	fire := !seen || at.Sub(last) > offlineAlertCooldown
	if fire {
		i.lastOfflineAt[room] = at
	}
	i.mu.Unlock()
	if !fire {
		return
	}

	i.alerter.Raise(ctx, alert.Alert{
		Type:     store.NotificationDeviceOffline,
		Title:    "Thiết bị mất kết nối",
		Message:  "Phòng " + room + " đã mất kết nối, các thiết bị được chuyển về trạng thái an toàn",
		Severity: store.SeverityHigh,
		Location: room,
		Metadata: map[string]any{"devices": len(devices)},
	})
}

type statsPayload struct {
	Room store.Statistics `json:"room"`
	Home store.Statistics `json:"home"`
}

func (i *Ingestor) broadcastStats(ctx context.Context, room string) {
	if i.hub == nil {
		return
	}
	roomDevices, err := i.repo.ListDevices(ctx, room)
	if err != nil {
		slog.Error("stats room query failed", "room", room, "error", err)
		return
	}
	allDevices, err := i.repo.ListDevices(ctx, "")
	if err != nil {
		slog.Error("stats global query failed", "error", err)
		return
	}
	i.hub.Broadcast(realtime.Event{
		Type: realtime.EventDeviceStats,
		Room: room,
		Data: statsPayload{
			Room: store.ComputeStatistics(roomDevices),
			Home: store.ComputeStatistics(allDevices),
		},
	})
}
