package config

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
)

type SerialConfig struct {
	Port     string `json:"port"`
	BaudRate uint   `json:"baud_rate"`
}

type MQTTConfig struct {
	Server         string `json:"server"`
	Username       string `json:"username"`
	Password       string `json:"password"`
	ClientID       string `json:"client_id"`
	StateTopic     string `json:"state_topic"`
	DiscoveryTopic string `json:"discovery_topic,omitempty"`
	DiscoveryName  string `json:"discovery_name,omitempty"`
}

type OutputConfig struct {
	Type   string        `json:"type"`
	Serial *SerialConfig `json:"serial,omitempty"`
	MQTT   *MQTTConfig   `json:"mqtt,omitempty"`
}

type Config struct {
	I2CBus           string         `json:"i2c_bus"`
	I2CAddress       int            `json:"i2c_address"`
	ShuntOhms        float64        `json:"shunt_ohms"`
	MaxCurrentAmps   float64        `json:"max_current_amps"`
	CorrectionFactor float64        `json:"correction_factor"`
	IntervalMs       int            `json:"interval_ms"`
	CalibrationMs    int            `json:"calibration_ms"`
	SensorType       string         `json:"sensor_type"`
	Outputs          []OutputConfig `json:"outputs"`
	Verbose          bool           `json:"verbose"`
}

func DefaultConfig() Config {
	return Config{
		I2CBus:           "1",
		I2CAddress:       0x40,
		ShuntOhms:        0.1,
		MaxCurrentAmps:   3.2,
		CorrectionFactor: 0.968,
		IntervalMs:       50,
		CalibrationMs:    5000,
		SensorType:       "ina226",
		Outputs:          []OutputConfig{{Type: "console"}},
	}
}

// LoadFromFlags loads configuration from a JSON file (optional) and flags.
// Flags override values present in the JSON file.
func LoadFromFlags() (Config, error) {
	cfgPath := flag.String("config", "", "Path to JSON config file")
	flagI2CBus := flag.String("i2c-bus", "", "I2C bus (e.g., '1' -> /dev/i2c-1)")
	flagI2CAddStr := flag.String("i2c-address", "", "I2C address (decimal or 0x hex)")
	flagShunt := flag.Float64("shunt", math.NaN(), "Shunt resistance in ohms")
	flagMaxCurrent := flag.Float64("max-current", math.NaN(), "Full-scale current in amps")
	flagCorrection := flag.Float64("correction", math.NaN(), "Empirical current correction factor")
	flagInterval := flag.Int("interval-ms", -1, "Transmission interval in ms")
	flagCalibration := flag.Int("calibration-ms", -1, "Baseline calibration window in ms")
	flagSensorType := flag.String("sensor-type", "", "sensor type: ina226|simulation")
	flagOutputs := flag.String("outputs", "", "Comma-separated outputs (console,serial,mqtt)")
	flagSerialPort := flag.String("serial-port", "", "Serial device for the serial output")
	flagSerialBaud := flag.Uint("serial-baud", 0, "Serial baud rate")
	flagMQTTServer := flag.String("mqtt-server", "", "MQTT server (tcp://host:port)")
	flagMQTTUser := flag.String("mqtt-user", "", "MQTT username")
	flagMQTTPass := flag.String("mqtt-pass", "", "MQTT password")
	flagClientID := flag.String("mqtt-client-id", "", "MQTT client id")
	flagTopic := flag.String("mqtt-topic", "", "MQTT state topic")
	flagVerbose := flag.Bool("verbose", false, "Verbose logging to stderr")

	flag.Parse()

	cfg := DefaultConfig()

	if *cfgPath != "" {
		b, err := os.ReadFile(*cfgPath)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}

	if *flagI2CBus != "" {
		cfg.I2CBus = *flagI2CBus
	}
	if *flagI2CAddStr != "" {
		v, err := parseIntOrHex(*flagI2CAddStr)
		if err != nil {
			return cfg, fmt.Errorf("i2c-address: %w", err)
		}
		cfg.I2CAddress = v
	}
	if !math.IsNaN(*flagShunt) {
		cfg.ShuntOhms = *flagShunt
	}
	if !math.IsNaN(*flagMaxCurrent) {
		cfg.MaxCurrentAmps = *flagMaxCurrent
	}
	if !math.IsNaN(*flagCorrection) {
		cfg.CorrectionFactor = *flagCorrection
	}
	if *flagInterval != -1 {
		cfg.IntervalMs = *flagInterval
	}
	if *flagCalibration != -1 {
		cfg.CalibrationMs = *flagCalibration
	}
	if *flagSensorType != "" {
		cfg.SensorType = *flagSensorType
	}
	if *flagOutputs != "" {
		// convert simple CSV of types into structured OutputConfig entries
		parts := parseCSV(*flagOutputs)
		outs := make([]OutputConfig, 0, len(parts))
		for _, p := range parts {
			outs = append(outs, OutputConfig{Type: p})
		}
		cfg.Outputs = outs
	}
	// map serial flags into serial outputs (create one if missing)
	if *flagSerialPort != "" || *flagSerialBaud != 0 {
		applied := false
		for i := range cfg.Outputs {
			if strings.ToLower(cfg.Outputs[i].Type) == "serial" {
				if cfg.Outputs[i].Serial == nil {
					cfg.Outputs[i].Serial = &SerialConfig{}
				}
				applySerialFlags(cfg.Outputs[i].Serial, *flagSerialPort, *flagSerialBaud)
				applied = true
			}
		}
		if !applied {
			sc := &SerialConfig{}
			applySerialFlags(sc, *flagSerialPort, *flagSerialBaud)
			cfg.Outputs = append(cfg.Outputs, OutputConfig{Type: "serial", Serial: sc})
		}
	}
	// map mqtt flags into mqtt outputs (create one if missing)
	if *flagMQTTServer != "" || *flagMQTTUser != "" || *flagMQTTPass != "" || *flagClientID != "" || *flagTopic != "" {
		applied := false
		for i := range cfg.Outputs {
			if strings.ToLower(cfg.Outputs[i].Type) == "mqtt" {
				if cfg.Outputs[i].MQTT == nil {
					cfg.Outputs[i].MQTT = &MQTTConfig{}
				}
				applyMQTTFlags(cfg.Outputs[i].MQTT, *flagMQTTServer, *flagMQTTUser, *flagMQTTPass, *flagClientID, *flagTopic)
				applied = true
			}
		}
		if !applied {
			mc := &MQTTConfig{}
			applyMQTTFlags(mc, *flagMQTTServer, *flagMQTTUser, *flagMQTTPass, *flagClientID, *flagTopic)
			cfg.Outputs = append(cfg.Outputs, OutputConfig{Type: "mqtt", MQTT: mc})
		}
	}
	cfg.Verbose = cfg.Verbose || *flagVerbose

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate rejects values that would break the measurement math or the
// scheduler before anything touches the bus.
func (c Config) Validate() error {
	if c.ShuntOhms <= 0 {
		return errors.New("shunt resistance must be > 0")
	}
	if c.MaxCurrentAmps <= 0 {
		return errors.New("max current must be > 0")
	}
	if c.CorrectionFactor <= 0 {
		return errors.New("correction factor must be > 0")
	}
	if c.IntervalMs <= 0 {
		return errors.New("interval-ms must be > 0")
	}
	if c.CalibrationMs < 0 {
		return errors.New("calibration-ms must be >= 0")
	}
	for _, o := range c.Outputs {
		switch strings.ToLower(o.Type) {
		case "console", "serial", "mqtt":
		default:
			return fmt.Errorf("unknown output type %q", o.Type)
		}
	}
	return nil
}

func applySerialFlags(sc *SerialConfig, port string, baud uint) {
	if port != "" {
		sc.Port = port
	}
	if baud != 0 {
		sc.BaudRate = baud
	}
}

func applyMQTTFlags(mc *MQTTConfig, server, user, pass, clientID, topic string) {
	if server != "" {
		mc.Server = server
	}
	if user != "" {
		mc.Username = user
	}
	if pass != "" {
		mc.Password = pass
	}
	if clientID != "" {
		mc.ClientID = clientID
	}
	if topic != "" {
		mc.StateTopic = topic
	}
}

func parseIntOrHex(s string) (int, error) {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		v, err := strconv.ParseInt(s[2:], 16, 0)
		return int(v), err
	}
	v, err := strconv.Atoi(s)
	return v, err
}

func parseCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
