package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Sender is the part of *modem.Modem the MQTT bridge uses.
type Sender interface {
	SendSMS(ctx context.Context, number, text string) (int, error)
}

const (
	mqttSendTimeout    = 2 * time.Minute
	mqttPublishTimeout = 5 * time.Second
)

// MQTTBridge accepts send requests on a topic and publishes received
// messages on another. Each request gets exactly one send attempt.
type MQTTBridge struct {
	config MQTTConfig
	sender Sender
	logger *slog.Logger

	ctx    context.Context
	client mqtt.Client
}

func NewMQTTBridge(config MQTTConfig, sender Sender, logger *slog.Logger) *MQTTBridge {
	return &MQTTBridge{
		config: config,
		sender: sender,
		logger: logger,
		ctx:    context.Background(),
	}
}

// Start connects to the broker and subscribes to the send topic, again on
// every reconnect. Requests in flight are cancelled with ctx.
func (b *MQTTBridge) Start(ctx context.Context) error {
	b.ctx = ctx

	opts := mqtt.NewClientOptions()
	opts.AddBroker(b.config.Broker)
	opts.SetClientID(b.config.ClientID)
	if b.config.Username != "" {
		opts.SetUsername(b.config.Username)
		opts.SetPassword(b.config.Password)
	}
	opts.SetOrderMatters(false)
	opts.SetAutoReconnect(true)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		b.logger.Warn("MQTT connection lost", "error", err)
	})
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		b.logger.Info("MQTT connected, subscribing", "topic", b.config.SendTopic)
		if token := c.Subscribe(b.config.SendTopic, 1, b.handleSend); token.Wait() && token.Error() != nil {
			b.logger.Error("MQTT subscribe failed", "topic", b.config.SendTopic, "error", token.Error())
		}
	})

	b.client = mqtt.NewClient(opts)
	if token := b.client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("connect to %s: %w", b.config.Broker, token.Error())
	}
	return nil
}

func (b *MQTTBridge) Stop() {
	if b.client != nil {
		b.client.Disconnect(500)
	}
}

func (b *MQTTBridge) handleSend(_ mqtt.Client, msg mqtt.Message) {
	if err := b.process(msg.Payload()); err != nil {
		b.logger.Error("MQTT send request failed", "topic", msg.Topic(), "error", err)
	}
}

// process decodes one request and sends it. Nothing is retried.
func (b *MQTTBridge) process(payload []byte) error {
	var req SendRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return fmt.Errorf("bad payload: %w", err)
	}
	if err := req.validate(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(b.ctx, mqttSendTimeout)
	defer cancel()
	parts, err := b.sender.SendSMS(ctx, req.To, req.Message)
	if err != nil {
		return fmt.Errorf("send %s to %s after %d parts: %w", req.ID, req.To, parts, err)
	}
	b.logger.Info("SMS sent successfully", "id", req.ID, "to", req.To, "parts", parts)
	return nil
}

// Publish implements Sink.
func (b *MQTTBridge) Publish(ev InboxEvent) {
	if b.client == nil || b.config.InboxTopic == "" {
		return
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		b.logger.Error("Failed to encode inbox event", "error", err)
		return
	}
	token := b.client.Publish(b.config.InboxTopic, 1, false, payload)
	if !token.WaitTimeout(mqttPublishTimeout) {
		b.logger.Warn("MQTT publish timed out", "topic", b.config.InboxTopic, "id", ev.ID)
		return
	}
	if err := token.Error(); err != nil {
		b.logger.Error("MQTT publish failed", "topic", b.config.InboxTopic, "id", ev.ID, "error", err)
	}
}
