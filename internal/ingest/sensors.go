package ingest

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"homesentry/internal/alert"
	"homesentry/internal/realtime"
	"homesentry/internal/store"
)

const (
	msgGasLeak       = "Phát hiện rò rỉ khí gas"
	msgTempBelow     = "Nhiệt độ dưới mức cho phép"
	msgTempAbove     = "Nhiệt độ trên mức cho phép"
	msgHumidityBelow = "Độ ẩm dưới mức cho phép"
	msgHumidityAbove = "Độ ẩm trên mức cho phép"
)

// handleSensor evaluates one sensor payload for a room: range checks against
// the configured thresholds, one overwritten snapshot per room, and a
// signature-deduplicated warning alert.
func (i *Ingestor) handleSensor(ctx context.Context, room string, payload []byte) {
	var raw map[string]any
	if err := json.Unmarshal(payload, &raw); err != nil {
		slog.Warn("invalid sensor payload", "room", room, "error", err)
		return
	}

	temperature := numField(raw, "temperature")
	humidity := numField(raw, "humidity")
	lightLevel := numField(raw, "lightLevel")
	gasValue, gasLeak := gasField(raw)

	gasMsg := ""
	if gasLeak {
		// Gas is a safety-critical boolean, never range-checked.
		gasMsg = msgGasLeak
	}
	tempMsg := i.rangeWarning(ctx, "temperature", temperature, msgTempBelow, msgTempAbove)
	humidMsg := i.rangeWarning(ctx, "humidity", humidity, msgHumidityBelow, msgHumidityAbove)

	var warnings []string
	for _, m := range []string{gasMsg, tempMsg, humidMsg} {
		if m != "" {
			warnings = append(warnings, m)
		}
	}
	hasWarning := len(warnings) > 0

	snap := &store.RoomSensorSnapshot{
		Location:       room,
		Temperature:    temperature,
		Humidity:       humidity,
		GasLevel:       gasValue,
		LightLevel:     lightLevel,
		HasWarning:     hasWarning,
		WarningMessage: strings.Join(warnings, "; "),
	}
	if err := i.repo.UpsertRoomSnapshot(ctx, snap); err != nil {
		slog.Error("room snapshot upsert failed", "room", room, "error", err)
		return
	}

	if i.hub != nil {
		i.hub.Broadcast(realtime.Event{Type: realtime.EventRoomSnapshot, Room: room, Data: snap})
	}

	signature := strings.Join(warnings, "|")

	i.mu.Lock()
	last := i.lastSensorSig[room]
	fire := hasWarning && signature != last
	if fire {
		i.lastSensorSig[room] = signature
	}
	if !hasWarning && last != "" {
		// Condition cleared: forget the signature so the same warning
		// coming back after a clean interval alerts again.
		delete(i.lastSensorSig, room)
	}
	i.mu.Unlock()

	if !fire {
		return
	}

	severity := store.SeverityMedium
	if gasLeak {
		severity = store.SeverityHigh
	}
	i.alerter.Raise(ctx, alert.Alert{
		Type:     store.NotificationSensorWarning,
		Title:    "Cảnh báo cảm biến",
		Message:  snap.WarningMessage,
		Severity: severity,
		Location: room,
		Metadata: map[string]any{
			"temperature": temperature,
			"humidity":    humidity,
			"gasLeak":     gasLeak,
		},
	})
}

// rangeWarning checks a value against its configured bounds. Missing value or
// missing bounds yield the empty string, which downstream stores as an
// explicitly cleared warning rather than an omitted field.
func (i *Ingestor) rangeWarning(ctx context.Context, sensorType string, value *float64, belowMsg, aboveMsg string) string {
	if value == nil {
		return ""
	}
	bounds, err := i.repo.SensorBounds(ctx, sensorType)
	if err != nil {
		slog.Error("sensor bounds lookup failed", "sensor_type", sensorType, "error", err)
		return ""
	}
	if bounds == nil {
		return ""
	}
	if *value < bounds.MinValue {
		return belowMsg
	}
	if *value > bounds.MaxValue {
		return aboveMsg
	}
	return ""
}

func numField(raw map[string]any, key string) *float64 {
	v, ok := raw[key]
	if !ok {
		return nil
	}
	f, ok := toFloat(v)
	if !ok {
		return nil
	}
	return &f
}

// gasField accepts the gas reading as either a boolean leak flag or a numeric
// level, depending on the sensor firmware generation.
func gasField(raw map[string]any) (*float64, bool) {
	v, ok := raw["gas"]
	if !ok {
		return nil, false
	}
	if b, isBool := v.(bool); isBool {
		level := 0.0
		if b {
			level = 1.0
		}
		return &level, b
	}
	f, ok := toFloat(v)
	if !ok {
		return nil, false
	}
	return &f, f != 0
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		var num json.Number = json.Number(strings.TrimSpace(t))
		f, err := num.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
