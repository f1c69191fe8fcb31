package mqtt

import (
	"encoding/json"
	"fmt"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"

	"github.com/ericogr/ina226-power-logger/pkg/config"
	"github.com/ericogr/ina226-power-logger/pkg/output"
	"github.com/ericogr/ina226-power-logger/pkg/sampler"
)

const (
	// defaults
	DefaultServer     = "tcp://localhost:1883"
	DefaultClientID   = "ina226-logger"
	DefaultStateTopic = "ina226/power"
	statusTopicSuffix = "/status"
	// discovery payload keys/values
	keyName               = "name"
	keyStateTopic         = "state_topic"
	keyUnitOfMeasurement  = "unit_of_measurement"
	keyDeviceClass        = "device_class"
	keyStateClass         = "state_class"
	keyValueTemplate      = "value_template"
	keyUniqueID           = "unique_id"
	unitMilliwatts        = "mW"
	deviceClassPower      = "power"
	stateClassMeasurement = "measurement"
	valueTemplatePower    = "{{ value_json.power_mw }}"
)

// MQTTOutput mirrors the record stream as JSON objects on a state topic and
// comment lines on a status topic.
type MQTTOutput struct {
	client      mqtt.Client
	stateTopic  string
	statusTopic string
}

func New(cfg config.MQTTConfig) (output.Output, error) {
	if cfg.Server == "" {
		cfg.Server = DefaultServer
	}
	if cfg.ClientID == "" {
		cfg.ClientID = DefaultClientID
	}
	if cfg.StateTopic == "" {
		cfg.StateTopic = DefaultStateTopic
	}

	opts := mqtt.NewClientOptions().AddBroker(cfg.Server).SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	client := mqtt.NewClient(opts)
	token := client.Connect()
	if token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect: %w", token.Error())
	}

	m := &MQTTOutput{
		client:      client,
		stateTopic:  cfg.StateTopic,
		statusTopic: cfg.StateTopic + statusTopicSuffix,
	}

	// Publish a Home Assistant discovery payload if requested
	if cfg.DiscoveryTopic != "" {
		name := cfg.DiscoveryName
		if name == "" {
			name = fmt.Sprintf("INA226 %s", cfg.ClientID)
		}
		payload := map[string]interface{}{
			keyName:              name,
			keyStateTopic:        m.stateTopic,
			keyUnitOfMeasurement: unitMilliwatts,
			keyDeviceClass:       deviceClassPower,
			keyStateClass:        stateClassMeasurement,
			keyValueTemplate:     valueTemplatePower,
			keyUniqueID:          cfg.ClientID,
		}
		if err := publishJSON(client, cfg.DiscoveryTopic, true, payload); err != nil {
			log.Warn().Err(err).Msg("mqtt discovery publish failed")
		}
	}

	return m, nil
}

func (m *MQTTOutput) Publish(r sampler.Record) error {
	b, err := json.Marshal(r)
	if err != nil {
		return err
	}
	token := m.client.Publish(m.stateTopic, 0, false, b)
	token.Wait()
	return token.Error()
}

func (m *MQTTOutput) Comment(line string) error {
	token := m.client.Publish(m.statusTopic, 0, false, []byte(line))
	token.Wait()
	return token.Error()
}

func (m *MQTTOutput) Close() error {
	if m.client != nil {
		m.client.Disconnect(250)
	}
	return nil
}

// helper: marshal and publish JSON payload
func publishJSON(client mqtt.Client, topic string, retained bool, payload map[string]interface{}) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	token := client.Publish(topic, 0, retained, b)
	token.Wait()
	return token.Error()
}
