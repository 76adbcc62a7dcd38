// internal/publish/mqtt.go
package publish

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/tamzrod/imu-bridge/internal/poller"
)

const publishTimeout = 2 * time.Second

// mqttClient is the part of mqtt.Client the publisher uses.
type mqttClient interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

type MQTTConfig struct {
	Broker   string
	ClientID string
	Topic    string
	Retained bool
}

// MQTT publishes the view as JSON on <topic>/view and each device on
// <topic>/device/<address>.
type MQTT struct {
	cli      mqttClient
	topic    string
	retained bool
}

func NewMQTT(cfg MQTTConfig) (*MQTT, error) {
	if cfg.Broker == "" {
		return nil, errors.New("publish: mqtt broker required")
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(5 * time.Second)

	cli := mqtt.NewClient(opts)
	if token := cli.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("publish: mqtt connect %s: %w", cfg.Broker, token.Error())
	}

	return newMQTT(cli, cfg), nil
}

func newMQTT(cli mqttClient, cfg MQTTConfig) *MQTT {
	return &MQTT{
		cli:      cli,
		topic:    strings.TrimSuffix(cfg.Topic, "/"),
		retained: cfg.Retained,
	}
}

func (m *MQTT) Publish(v poller.View) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if err := m.send(m.topic+"/view", payload); err != nil {
		return err
	}

	for _, d := range v.Devices {
		payload, err := json.Marshal(d)
		if err != nil {
			return err
		}
		if err := m.send(m.topic+"/device/"+topicSafe(d.Address), payload); err != nil {
			return err
		}
	}
	return nil
}

func (m *MQTT) send(topic string, payload []byte) error {
	token := m.cli.Publish(topic, 0, m.retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("mqtt publish %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt publish %s: %w", topic, err)
	}
	return nil
}

func (m *MQTT) Close() error {
	m.cli.Disconnect(250)
	return nil
}

var topicReplacer = strings.NewReplacer("/", "_", "+", "_", "#", "_")

// topicSafe keeps an address inside one topic level.
func topicSafe(address string) string {
	return topicReplacer.Replace(strings.TrimPrefix(address, "/"))
}
