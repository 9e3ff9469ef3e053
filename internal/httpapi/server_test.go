package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"homesentry/internal/command"
	"homesentry/internal/mqtt"
	"homesentry/internal/store"
)

type fakeMQTT struct {
	connected bool
	published map[string]string
}

func (f *fakeMQTT) Subscribe(string, mqtt.Handler) error { return nil }
func (f *fakeMQTT) IsConnected() bool                    { return f.connected }

func (f *fakeMQTT) Publish(topic string, payload []byte) error {
	if f.published == nil {
		f.published = map[string]string{}
	}
	f.published[topic] = string(payload)
	return nil
}

func newTestServer(t *testing.T) (*Server, *fakeMQTT) {
	t.Helper()
	// Use a unique in-memory DB per test to avoid cross-test contamination.
	dsn := "file:httpapi_" + strings.NewReplacer("/", "_", " ", "_").Replace(t.Name()) + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	repo, err := store.New(db)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	mq := &fakeMQTT{connected: true}
	return New(repo, command.NewPublisher(mq), nil, nil), mq
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rw := httptest.NewRecorder()
	s.Routes().ServeHTTP(rw, req)
	return rw
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t)
	rw := do(t, s, http.MethodGet, "/health", "")
	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rw.Code)
	}
}

func TestOverview(t *testing.T) {
	s, _ := newTestServer(t)
	ctx := context.Background()
	_ = s.repo.SaveDevice(ctx, &store.Device{ID: "lamp-1", Type: store.DeviceLight, Location: "kitchen", LastState: store.StateOn, Status: store.DeviceStatusOnline})
	_ = s.repo.UpsertRoomSnapshot(ctx, &store.RoomSensorSnapshot{Location: "kitchen", HasWarning: true, WarningMessage: "w"})
	_ = s.repo.CreateNotification(ctx, &store.Notification{Type: store.NotificationSensorWarning, Title: "t", Message: "m"})

	rw := do(t, s, http.MethodGet, "/api/overview", "")
	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rw.Code, rw.Body.String())
	}
	var resp struct {
		Devices             []store.Device             `json:"devices"`
		Statistics          store.Statistics           `json:"statistics"`
		Rooms               []store.RoomSensorSnapshot `json:"rooms"`
		UnreadNotifications int64                      `json:"unreadNotifications"`
	}
	if err := json.Unmarshal(rw.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Devices) != 1 || resp.Statistics.LightsOn != 1 {
		t.Fatalf("unexpected overview: %+v", resp)
	}
	if len(resp.Rooms) != 1 || !resp.Rooms[0].HasWarning {
		t.Fatalf("unexpected rooms: %+v", resp.Rooms)
	}
	if resp.UnreadNotifications != 1 {
		t.Fatalf("expected 1 unread, got %d", resp.UnreadNotifications)
	}
}

func TestControlLightPublishes(t *testing.T) {
	s, mq := newTestServer(t)
	rw := do(t, s, http.MethodPost, "/api/rooms/kitchen/lights/lamp-1", `{"on":true}`)
	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rw.Code, rw.Body.String())
	}
	if mq.published["kitchen/command/light/lamp-1"] != "ON" {
		t.Fatalf("expected publish, got %v", mq.published)
	}
}

func TestControlRejectsBadBody(t *testing.T) {
	s, mq := newTestServer(t)
	rw := do(t, s, http.MethodPost, "/api/rooms/kitchen/lights/lamp-1", `{}`)
	if rw.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rw.Code)
	}
	if len(mq.published) != 0 {
		t.Fatalf("bad body must not publish, got %v", mq.published)
	}
}

func TestControlBrokerDown(t *testing.T) {
	s, mq := newTestServer(t)
	mq.connected = false
	rw := do(t, s, http.MethodPost, "/api/rooms/hall/auto", `{"on":false}`)
	if rw.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rw.Code)
	}
}

func TestControlAllLightsInRoom(t *testing.T) {
	s, mq := newTestServer(t)
	ctx := context.Background()
	_ = s.repo.SaveDevice(ctx, &store.Device{ID: "lamp-1", Type: store.DeviceLight, Location: "kitchen"})
	_ = s.repo.SaveDevice(ctx, &store.Device{ID: "lamp-2", Type: store.DeviceLight, Location: "kitchen"})
	_ = s.repo.SaveDevice(ctx, &store.Device{ID: "door-1", Type: store.DeviceDoor, Location: "kitchen"})
	_ = s.repo.SaveDevice(ctx, &store.Device{ID: "lamp-3", Type: store.DeviceLight, Location: "hall"})

	rw := do(t, s, http.MethodPost, "/api/rooms/kitchen/lights", `{"on":false}`)
	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rw.Code, rw.Body.String())
	}
	if mq.published["kitchen/command/light/lamp-1"] != "OFF" || mq.published["kitchen/command/light/lamp-2"] != "OFF" {
		t.Fatalf("expected both kitchen lamps commanded, got %v", mq.published)
	}
	if _, ok := mq.published["kitchen/command/door/door-1"]; ok {
		t.Fatal("door must not receive a light command")
	}
	if _, ok := mq.published["hall/command/light/lamp-3"]; ok {
		t.Fatal("other rooms must not be commanded")
	}
}

func TestGetDevice(t *testing.T) {
	s, _ := newTestServer(t)
	_ = s.repo.SaveDevice(context.Background(), &store.Device{ID: "lamp-1", Type: store.DeviceLight, Location: "kitchen", LastState: store.StateOn})

	rw := do(t, s, http.MethodGet, "/api/devices/lamp-1", "")
	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rw.Code, rw.Body.String())
	}
	var dev store.Device
	if err := json.Unmarshal(rw.Body.Bytes(), &dev); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if dev.LastState != store.StateOn {
		t.Fatalf("unexpected device: %+v", dev)
	}

	rw = do(t, s, http.MethodGet, "/api/devices/ghost", "")
	if rw.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rw.Code)
	}
}

func TestRenameDevice(t *testing.T) {
	s, _ := newTestServer(t)
	_ = s.repo.SaveDevice(context.Background(), &store.Device{ID: "lamp-1", Type: store.DeviceLight, Location: "kitchen"})

	rw := do(t, s, http.MethodPatch, "/api/devices/lamp-1", `{"name":"Đèn bếp"}`)
	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rw.Code, rw.Body.String())
	}
	got, _ := s.repo.FindDevice(context.Background(), "lamp-1")
	if got.Name != "Đèn bếp" {
		t.Fatalf("expected renamed device, got %q", got.Name)
	}

	rw = do(t, s, http.MethodPatch, "/api/devices/ghost", `{"name":"x"}`)
	if rw.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rw.Code)
	}
}

func TestDeleteDevice(t *testing.T) {
	s, _ := newTestServer(t)
	ctx := context.Background()
	_ = s.repo.SaveDevice(ctx, &store.Device{ID: "lamp-1", Type: store.DeviceLight, Location: "kitchen", Status: store.DeviceStatusOnline})

	rw := do(t, s, http.MethodDelete, "/api/rooms/kitchen/devices/lamp-1", "")
	if rw.Code != http.StatusConflict {
		t.Fatalf("online device delete should be 409, got %d", rw.Code)
	}

	_ = s.repo.SaveDevice(ctx, &store.Device{ID: "lamp-1", Type: store.DeviceLight, Location: "kitchen", Status: store.DeviceStatusOffline})
	rw = do(t, s, http.MethodDelete, "/api/rooms/kitchen/devices/lamp-1", "")
	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rw.Code, rw.Body.String())
	}

	rw = do(t, s, http.MethodDelete, "/api/rooms/kitchen/devices/lamp-1", "")
	if rw.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", rw.Code)
	}
}

func TestNotificationEndpoints(t *testing.T) {
	s, _ := newTestServer(t)
	ctx := context.Background()
	n := &store.Notification{Type: store.NotificationSensorWarning, Title: "t", Message: "m"}
	_ = s.repo.CreateNotification(ctx, n)

	rw := do(t, s, http.MethodGet, "/api/notifications?unread=true", "")
	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rw.Code)
	}

	rw = do(t, s, http.MethodPost, "/api/notifications/"+n.ID.String()+"/read", "")
	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rw.Code, rw.Body.String())
	}
	unread, _ := s.repo.UnreadNotificationCount(ctx)
	if unread != 0 {
		t.Fatalf("expected 0 unread, got %d", unread)
	}

	rw = do(t, s, http.MethodPost, "/api/notifications/not-a-uuid/read", "")
	if rw.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rw.Code)
	}
}

func TestSensorSettingValidation(t *testing.T) {
	s, _ := newTestServer(t)

	rw := do(t, s, http.MethodPut, "/api/settings/sensors/temperature", `{"minValue":40,"maxValue":10}`)
	if rw.Code != http.StatusBadRequest {
		t.Fatalf("inverted bounds should be 400, got %d", rw.Code)
	}

	rw = do(t, s, http.MethodPut, "/api/settings/sensors/temperature", `{"minValue":15,"maxValue":30}`)
	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rw.Code, rw.Body.String())
	}
	bounds, err := s.repo.SensorBounds(context.Background(), "temperature")
	if err != nil {
		t.Fatalf("bounds: %v", err)
	}
	if bounds == nil || bounds.MinValue != 15 || bounds.MaxValue != 30 {
		t.Fatalf("unexpected bounds: %+v", bounds)
	}
}

func TestSecuritySettingUpdate(t *testing.T) {
	s, _ := newTestServer(t)

	rw := do(t, s, http.MethodPut, "/api/settings/security/"+store.KeyMaxDoorPasswordAttempts, `{"value":"3"}`)
	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rw.Code, rw.Body.String())
	}
	if got := s.repo.SecurityInt(context.Background(), store.KeyMaxDoorPasswordAttempts, 99); got != 3 {
		t.Fatalf("expected 3, got %d", got)
	}

	rw = do(t, s, http.MethodGet, "/api/settings/security", "")
	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rw.Code)
	}
}
