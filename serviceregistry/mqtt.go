package serviceregistry

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sparesparrow/ai-servis/config"
	"github.com/sparesparrow/ai-servis/telemetry"
)

const mqttTopicPrefix = "ai-servis/services/"

// mqttRegistration is the wire payload published/subscribed on the
// register/heartbeat topics; it matches the register_service parameters
// (spec.md §4.3 "MQTT bridge").
type mqttRegistration struct {
	Name           string            `json:"name"`
	Host           string            `json:"host"`
	Port           int               `json:"port"`
	Capabilities   []string          `json:"capabilities"`
	HealthEndpoint string            `json:"health_endpoint,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// MQTTBridge mirrors local registrations onto an MQTT broker and applies
// peer registrations/heartbeats/unregistrations received over the same
// topics (spec.md §4.3 "MQTT bridge").
type MQTTBridge struct {
	client   mqtt.Client
	registry *Registry
	logger   telemetry.Logger
}

// NewMQTTBridge connects to the broker configured by mqtt_broker in cfg and
// subscribes to the registration topic tree.
func NewMQTTBridge(ctx context.Context, cfg *config.Store, registry *Registry, logger telemetry.Logger) (*MQTTBridge, error) {
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	broker := cfg.String("mqtt_broker", config.DefaultMQTTBroker)

	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID("ai-servis-registry-" + time.Now().Format("150405.000")).
		SetAutoReconnect(true).
		SetConnectTimeout(5 * time.Second)

	b := &MQTTBridge{registry: registry, logger: logger}
	opts.SetDefaultPublishHandler(b.onMessage)
	b.client = mqtt.NewClient(opts)

	token := b.client.Connect()
	if token.WaitTimeout(5*time.Second) && token.Error() != nil {
		return nil, token.Error()
	}
	if err := token.Error(); err != nil {
		return nil, err
	}

	subTopic := mqttTopicPrefix + "+/+"
	if tok := b.client.Subscribe(subTopic, 1, b.onMessage); tok.Wait() && tok.Error() != nil {
		return nil, tok.Error()
	}
	return b, nil
}

func (b *MQTTBridge) onMessage(_ mqtt.Client, msg mqtt.Message) {
	parts := strings.Split(strings.TrimPrefix(msg.Topic(), mqttTopicPrefix), "/")
	if len(parts) != 2 {
		return
	}
	name, action := parts[0], parts[1]
	ctx := context.Background()

	switch action {
	case "register", "heartbeat":
		var reg mqttRegistration
		if err := json.Unmarshal(msg.Payload(), &reg); err != nil {
			b.logger.Warn(ctx, "serviceregistry: mqtt bad registration payload", "topic", msg.Topic(), "error", err.Error())
			return
		}
		if action == "heartbeat" {
			if err := b.registry.Heartbeat(ctx, name); err != nil {
				// Unknown peer heartbeating: treat as a fresh registration.
				_, _ = b.registry.Register(ctx, RegisterParams{
					Name: reg.Name, Host: reg.Host, Port: reg.Port,
					Capabilities: reg.Capabilities, HealthEndpoint: reg.HealthEndpoint, Metadata: reg.Metadata,
				})
			}
			return
		}
		if _, err := b.registry.Register(ctx, RegisterParams{
			Name: reg.Name, Host: reg.Host, Port: reg.Port,
			Capabilities: reg.Capabilities, HealthEndpoint: reg.HealthEndpoint, Metadata: reg.Metadata,
		}); err != nil {
			_, _ = b.registry.Restart(ctx, RegisterParams{
				Name: reg.Name, Host: reg.Host, Port: reg.Port,
				Capabilities: reg.Capabilities, HealthEndpoint: reg.HealthEndpoint, Metadata: reg.Metadata,
			})
		}
	case "unregister":
		_ = b.registry.Unregister(ctx, name)
	}
}

// Announce publishes svc to ai-servis/services/{name}/register for peers.
func (b *MQTTBridge) Announce(svc Service) error {
	payload, err := json.Marshal(mqttRegistration{
		Name: svc.Name, Host: svc.Host, Port: svc.Port,
		Capabilities: svc.Capabilities, HealthEndpoint: svc.HealthEndpoint, Metadata: svc.Metadata,
	})
	if err != nil {
		return err
	}
	token := b.client.Publish(mqttTopicPrefix+svc.Name+"/register", 1, true, payload)
	token.Wait()
	return token.Error()
}

// Withdraw publishes an empty JSON object, not retained, to the unregister
// topic.
func (b *MQTTBridge) Withdraw(name string) error {
	token := b.client.Publish(mqttTopicPrefix+name+"/unregister", 1, false, []byte("{}"))
	token.Wait()
	return token.Error()
}

// Close disconnects from the broker.
func (b *MQTTBridge) Close() error {
	b.client.Disconnect(250)
	return nil
}
