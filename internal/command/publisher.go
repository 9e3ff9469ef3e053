package command

import (
	"errors"
	"log/slog"

	"homesentry/internal/mqtt"
)

// ErrNotConnected reports a publish attempted while the broker link is down.
// Commands are not queued; the caller decides whether to retry.
var ErrNotConnected = errors.New("mqtt client is not connected")

// Publisher builds and publishes outbound device commands. Delivery is QoS 1
// without the retained flag, so a command fires once per send and is never
// replayed to devices that reconnect later.
type Publisher struct {
	mq mqtt.ClientAPI
}

func NewPublisher(mq mqtt.ClientAPI) *Publisher {
	return &Publisher{mq: mq}
}

func (p *Publisher) ControlLight(room, deviceID string, on bool) error {
	token := "OFF"
	if on {
		token = "ON"
	}
	return p.publish(room+"/command/light/"+deviceID, token)
}

func (p *Publisher) ControlDoor(room, deviceID string, unlock bool) error {
	token := "LOCK"
	if unlock {
		token = "UNLOCK"
	}
	return p.publish(room+"/command/door/"+deviceID, token)
}

func (p *Publisher) ControlWindow(room, deviceID string, open bool) error {
	token := "CLOSE"
	if open {
		token = "OPEN"
	}
	return p.publish(room+"/command/window/"+deviceID, token)
}

func (p *Publisher) ControlAuto(room string, on bool) error {
	token := "OFF"
	if on {
		token = "ON"
	}
	return p.publish(room+"/command/auto", token)
}

// SendPasswordResponse answers a device's password request on its response
// topic.
func (p *Publisher) SendPasswordResponse(room, deviceID, password string) error {
	return p.publish(room+"/response/password/"+deviceID, password)
}

func (p *Publisher) publish(topic, payload string) error {
	if p.mq == nil || !p.mq.IsConnected() {
		slog.Error("cannot publish command", "topic", topic, "error", ErrNotConnected)
		return ErrNotConnected
	}
	if err := p.mq.Publish(topic, []byte(payload)); err != nil {
		slog.Error("command publish failed", "topic", topic, "error", err)
		return err
	}
	slog.Info("command published", "topic", topic, "payload", payload)
	return nil
}
