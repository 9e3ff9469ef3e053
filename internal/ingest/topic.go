package ingest

import "strings"

// Category is the closed set of inbound topic families. Anything else parses
// to CategoryUnknown and is dropped without noise: firmware publishes a few
// topics this service has no business reading.
type Category int

const (
	CategoryUnknown Category = iota
	CategoryDeviceRegister
	CategoryDeviceStatus
	CategorySensorDevice
	CategoryRequest
	CategoryPasswordValidation
	CategoryCurrentStatus
)

func (c Category) String() string {
	switch c {
	case CategoryDeviceRegister:
		return "device-register"
	case CategoryDeviceStatus:
		return "device-status"
	case CategorySensorDevice:
		return "sensor-device"
	case CategoryRequest:
		return "request"
	case CategoryPasswordValidation:
		return "password-validation"
	case CategoryCurrentStatus:
		return "current-status"
	default:
		return "unknown"
	}
}

// Route is a parsed topic: `<room>/<category>[/...path]`.
type Route struct {
	Room     string
	Category Category
	Path     []string
}

func ParseTopic(topic string) (Route, bool) {
	parts := strings.Split(topic, "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return Route{}, false
	}

	r := Route{Room: parts[0], Path: parts[2:]}
	switch parts[1] {
	case "device-register":
		r.Category = CategoryDeviceRegister
	case "device-status":
		r.Category = CategoryDeviceStatus
	case "sensor-device":
		r.Category = CategorySensorDevice
	case "request":
		r.Category = CategoryRequest
	case "password-validation":
		r.Category = CategoryPasswordValidation
	case "current-status":
		r.Category = CategoryCurrentStatus
	default:
		r.Category = CategoryUnknown
	}
	return r, true
}
