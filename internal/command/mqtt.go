package command

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"

	"github.com/safetrack-gps/safetrack/internal"
	"github.com/safetrack-gps/safetrack/internal/safety"
)

const (
	publishTimeout = 10 * time.Second

	commandEngineStop   = "engineStop"
	commandEngineResume = "engineResume"
)

type (
	// MqttDispatcher is a safety.CommandDispatcher for trackers that accept
	// commands directly over MQTT instead of through the telemetry server's
	// REST API. Commands are published to a per-device topic.
	MqttDispatcher struct {
		client       mqtt.Client
		topicPattern string // e.g. "commands/%s"
	}

	commandMessage struct {
		CommandID string `json:"commandId"`
		DeviceKey string `json:"deviceKey"`
		Command   string `json:"command"`
		IssuedAt  int64  `json:"issuedAt"`
	}
)

func NewMqttDispatcher(client mqtt.Client, topicPattern string) (*MqttDispatcher, error) {
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect: %w", token.Error())
	}
	return &MqttDispatcher{
		client:       client,
		topicPattern: topicPattern,
	}, nil
}

func (d *MqttDispatcher) Close() {
	d.client.Disconnect(250)
}

func (d *MqttDispatcher) SendCommand(ctx context.Context, deviceKey string, kind safety.CommandKind) (string, error) {
	var command string
	switch kind {
	case safety.CommandCutoff:
		command = commandEngineStop
	case safety.CommandResume:
		command = commandEngineResume
	default:
		return "", fmt.Errorf("command kind %q: %w", kind, safety.ErrInvalidConfig)
	}

	msg := commandMessage{
		CommandID: internal.XID(),
		DeviceKey: deviceKey,
		Command:   command,
		IssuedAt:  time.Now().Unix(),
	}
	payload, err := json.Marshal(&msg)
	if err != nil {
		return "", err
	}

	topic := fmt.Sprintf(d.topicPattern, deviceKey)
	token := d.client.Publish(topic, internal.AtLeastOnce, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		return "", fmt.Errorf("publish to %s timed out: %w", topic, safety.ErrUpstreamUnavailable)
	}
	if token.Error() != nil {
		return "", fmt.Errorf("publish to %s: %w", topic, safety.ErrUpstreamUnavailable)
	}

	log.Debug().Str("topic", topic).Str("command", command).Str("id", msg.CommandID).Msg("command published")
	return msg.CommandID, nil
}
