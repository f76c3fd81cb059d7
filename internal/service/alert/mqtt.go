package alert

import (
	"context"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"camwatch/internal/logger"
)

// MQTTOptions configures the broker connection.
type MQTTOptions struct {
	Broker   string
	ClientID string
	Topic    string
	Camera   string
}

// MQTTNotifier publishes an Event per alert at QoS 1.
type MQTTNotifier struct {
	client mqtt.Client
	topic  string
	camera string
	log    *logger.Logger
}

// NewMQTTNotifier connects to the broker and waits for the connection.
func NewMQTTNotifier(opts MQTTOptions, log *logger.Logger) (*MQTTNotifier, error) {
	co := mqtt.NewClientOptions()
	co.AddBroker(opts.Broker)
	// client ids must be unique per broker
	co.SetClientID(opts.ClientID + "-" + uuid.NewString()[:8])
	co.SetAutoReconnect(true)
	co.SetKeepAlive(30 * time.Second)
	co.SetConnectTimeout(10 * time.Second)
	co.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Warning("MQTT connection lost: %v", err)
	})

	client := mqtt.NewClient(co)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, errors.Errorf("mqtt connect to %s timed out", opts.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, errors.Wrapf(err, "mqtt connect to %s", opts.Broker)
	}
	log.Info("Connected to MQTT broker %s", opts.Broker)

	return &MQTTNotifier{client: client, topic: opts.Topic, camera: opts.Camera, log: log}, nil
}

func (n *MQTTNotifier) Send(ctx context.Context, imagePath, caption string) error {
	payload, err := NewEvent(n.camera, imagePath, caption, time.Now()).Marshal()
	if err != nil {
		return errors.Wrap(err, "encode mqtt event")
	}

	token := n.client.Publish(n.topic, 1, false, payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	return errors.Wrap(token.Error(), "mqtt publish")
}

// Close disconnects from the broker.
func (n *MQTTNotifier) Close() {
	n.client.Disconnect(250)
}
