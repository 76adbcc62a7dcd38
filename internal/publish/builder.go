// internal/publish/builder.go
package publish

import (
	"io"

	cfg "github.com/tamzrod/imu-bridge/internal/config"
)

// Build assembles the configured publishers. hub may be nil when no HTTP
// surface is configured.
func Build(pc cfg.PublishConfig, hub *Hub, console io.Writer) (*Fanout, error) {
	f := NewFanout()

	if pc.Console.Enabled && console != nil {
		f.Add("console", NewConsole(console))
	}

	if pc.MQTT.Broker != "" {
		m, err := NewMQTT(MQTTConfig{
			Broker:   pc.MQTT.Broker,
			ClientID: pc.MQTT.ClientID,
			Topic:    pc.MQTT.Topic,
			Retained: pc.MQTT.Retained,
		})
		if err != nil {
			_ = f.Close()
			return nil, err
		}
		f.Add("mqtt", m)
	}

	if hub != nil {
		f.Add("ws", hub)
	}

	return f, nil
}
