package ingest

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	paho "github.com/eclipse/paho.mqtt.golang"

	"homesentry/internal/alert"
	"homesentry/internal/command"
	"homesentry/internal/mqtt"
	"homesentry/internal/observability"
	"homesentry/internal/realtime"
	"homesentry/internal/store"
)

type Alerter interface {
	Raise(ctx context.Context, a alert.Alert)
}

type Broadcaster interface {
	Broadcast(ev realtime.Event)
}

// AttemptMonitor is the security monitor's message-facing surface.
type AttemptMonitor interface {
	RecordFailure(ctx context.Context, room, deviceID string, at time.Time)
	RecordSuccess(room, deviceID string)
}

// Ingestor is the inbound entry point: it parses topics and dispatches to the
// per-category handlers. Handlers run on paho's delivery goroutines, so any
// shared state lives behind the mutex below; everything else goes straight to
// the store, which is atomic per call.
type Ingestor struct {
	repo    *store.Repo
	cache   *store.StateCache
	monitor AttemptMonitor
	alerter Alerter
	hub     Broadcaster
	pub     *command.Publisher

	mu            sync.Mutex
	lastSensorSig map[string]string
	lastOfflineAt map[string]time.Time
}

// offlineAlertCooldown suppresses repeat device_offline alerts while a room
// stays disconnected and flapping.
const offlineAlertCooldown = 10 * time.Minute

func New(repo *store.Repo, cache *store.StateCache, monitor AttemptMonitor, alerter Alerter, hub Broadcaster, pub *command.Publisher) *Ingestor {
	return &Ingestor{
		repo:          repo,
		cache:         cache,
		monitor:       monitor,
		alerter:       alerter,
		hub:           hub,
		pub:           pub,
		lastSensorSig: map[string]string{},
		lastOfflineAt: map[string]time.Time{},
	}
}

// Start subscribes to every inbound topic family. QoS 1: the broker may
// redeliver, and every handler is an idempotent upsert.
func (i *Ingestor) Start(ctx context.Context, mq mqtt.ClientAPI) error {
	filters := []string{
		"+/device-register",
		"+/device-status/#",
		"+/sensor-device",
		"+/request/password/#",
		"+/password-validation/+",
		"+/current-status",
	}
	for _, f := range filters {
		if err := mq.Subscribe(f, func(_ paho.Client, msg mqtt.Message) {
			i.HandleMessage(ctx, msg.Topic(), msg.Payload(), time.Now().UTC())
		}); err != nil {
			return err
		}
	}
	return nil
}

// HandleMessage routes one inbound message. A failure in one message never
// affects processing of the next; nothing here panics or returns an error up
// into the mqtt client.
func (i *Ingestor) HandleMessage(ctx context.Context, topic string, payload []byte, at time.Time) {
	if !utf8.Valid(payload) {
		slog.Warn("dropping non-utf8 payload", "topic", topic)
		return
	}

	route, ok := ParseTopic(topic)
	if !ok {
		slog.Warn("unparseable topic", "topic", topic)
		return
	}
	observability.MessagesIngested.WithLabelValues(route.Category.String()).Inc()

	switch route.Category {
	case CategoryDeviceRegister:
		i.handleRegister(ctx, route.Room, payload)
	case CategoryDeviceStatus:
		i.handleDeviceStatus(ctx, route, payload)
	case CategorySensorDevice:
		i.handleSensor(ctx, route.Room, payload)
	case CategoryRequest:
		if len(route.Path) == 0 || route.Path[0] != "password" {
			return
		}
		deviceID := ""
		if len(route.Path) > 1 {
			deviceID = route.Path[1]
		}
		i.handlePasswordRequest(ctx, route.Room, deviceID)
	case CategoryPasswordValidation:
		if len(route.Path) == 0 || route.Path[0] == "" {
			slog.Warn("password validation without device id", "topic", topic)
			return
		}
		i.handleValidationResult(ctx, route.Room, route.Path[0], payload, at)
	case CategoryCurrentStatus:
		i.handleRoomConnectivity(ctx, route.Room, payload, at)
	case CategoryUnknown:
		// Unused topic family; drop quietly.
	}
}

func (i *Ingestor) handleDeviceStatus(ctx context.Context, route Route, payload []byte) {
	if len(route.Path) == 1 && route.Path[0] == "auto" {
		// Auto-mode announcements are not device state; forward to viewers.
		if i.hub != nil {
			i.hub.Broadcast(realtime.Event{Type: realtime.EventAutoMode, Room: route.Room, Data: strings.TrimSpace(string(payload))})
		}
		return
	}
	if len(route.Path) < 2 || route.Path[1] == "" {
		slog.Warn("device status without device id", "room", route.Room, "path", strings.Join(route.Path, "/"))
		return
	}
	i.applyStatus(ctx, route.Room, route.Path[0], route.Path[1], strings.TrimSpace(string(payload)))
}

type registerPayload struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

// handleRegister upserts a device from its self-announcement.
func (i *Ingestor) handleRegister(ctx context.Context, room string, payload []byte) {
	var reg registerPayload
	if err := json.Unmarshal(payload, &reg); err != nil {
		slog.Warn("invalid device-register payload", "room", room, "error", err)
		return
	}
	if strings.TrimSpace(reg.ID) == "" || strings.TrimSpace(reg.Type) == "" {
		slog.Warn("device-register missing id or type", "room", room)
		return
	}

	d := &store.Device{
		ID:       strings.TrimSpace(reg.ID),
		Name:     strings.TrimSpace(reg.Name),
		Type:     strings.TrimSpace(reg.Type),
		Location: room,
		Status:   store.DeviceStatusOnline,
		Password: reg.Password,
	}
	if err := i.repo.UpsertDevice(ctx, d); err != nil {
		slog.Error("device register upsert failed", "room", room, "device_id", d.ID, "error", err)
		return
	}
	slog.Info("device registered", "room", room, "device_id", d.ID, "type", d.Type)
	i.broadcastStats(ctx, room)
}

func (i *Ingestor) handleValidationResult(ctx context.Context, room, deviceID string, payload []byte, at time.Time) {
	switch strings.TrimSpace(string(payload)) {
	case "SUCCESS":
		i.monitor.RecordSuccess(room, deviceID)
	case "FAILED":
		i.monitor.RecordFailure(ctx, room, deviceID, at)
	default:
		// Not a validation token; ignore.
	}
}

// handlePasswordRequest answers a device's request for its shared secret.
// When the topic names no device, the room's door is assumed: the keypad
// firmware predates per-device request topics.
func (i *Ingestor) handlePasswordRequest(ctx context.Context, room, deviceID string) {
	var d *store.Device
	var err error
	if deviceID != "" {
		d, err = i.repo.FindDevice(ctx, deviceID)
	} else {
		var devices []store.Device
		devices, err = i.repo.ListDevices(ctx, room)
		if err == nil {
			for idx := range devices {
				if devices[idx].Type == store.DeviceDoor && devices[idx].Password != "" {
					d = &devices[idx]
					break
				}
			}
		}
	}
	if err != nil {
		slog.Error("password request lookup failed", "room", room, "device_id", deviceID, "error", err)
		return
	}
	if d == nil || d.Password == "" {
		slog.Warn("password request for unknown device", "room", room, "device_id", deviceID)
		return
	}
	if err := i.pub.SendPasswordResponse(room, d.ID, d.Password); err != nil {
		slog.Error("password response publish failed", "room", room, "device_id", d.ID, "error", err)
	}
}
