package ingest

import "testing"

func TestParseTopic(t *testing.T) {
	cases := []struct {
		topic    string
		ok       bool
		room     string
		category Category
		path     []string
	}{
		{"living-room/device-register", true, "living-room", CategoryDeviceRegister, nil},
		{"kitchen/device-status/light/lamp-1", true, "kitchen", CategoryDeviceStatus, []string{"light", "lamp-1"}},
		{"kitchen/sensor-device", true, "kitchen", CategorySensorDevice, nil},
		{"hall/request/password/door-1", true, "hall", CategoryRequest, []string{"password", "door-1"}},
		{"hall/password-validation/door-1", true, "hall", CategoryPasswordValidation, []string{"door-1"}},
		{"garage/current-status", true, "garage", CategoryCurrentStatus, nil},
		{"garage/some-new-topic", true, "garage", CategoryUnknown, nil},
		{"justonesegment", false, "", CategoryUnknown, nil},
		{"/device-register", false, "", CategoryUnknown, nil},
		{"room/", false, "", CategoryUnknown, nil},
	}

	for _, tc := range cases {
		route, ok := ParseTopic(tc.topic)
		if ok != tc.ok {
			t.Fatalf("%q: expected ok=%v, got %v", tc.topic, tc.ok, ok)
		}
		if !ok {
			continue
		}
		if route.Room != tc.room {
			t.Fatalf("%q: expected room %q, got %q", tc.topic, tc.room, route.Room)
		}
		if route.Category != tc.category {
			t.Fatalf("%q: expected category %v, got %v", tc.topic, tc.category, route.Category)
		}
		if len(route.Path) != len(tc.path) {
			t.Fatalf("%q: expected path %v, got %v", tc.topic, tc.path, route.Path)
		}
		for i := range tc.path {
			if route.Path[i] != tc.path[i] {
				t.Fatalf("%q: expected path %v, got %v", tc.topic, tc.path, route.Path)
			}
		}
	}
}

func TestCategoryString(t *testing.T) {
	if got := CategoryDeviceStatus.String(); got != "device-status" {
		t.Fatalf("expected device-status, got %q", got)
	}
	if got := Category(99).String(); got != "unknown" {
		t.Fatalf("expected unknown, got %q", got)
	}
}
