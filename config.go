package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"i4.energy/across/gsmmodem/modem"
)

// Config holds the application configuration
type Config struct {
	// BindAddress is the address the server listens on (e.g. "0.0.0.0:8080")
	BindAddress string `yaml:"bind_address"`
	// SerialPort is the path to the modem's serial port (e.g. "/dev/ttyUSB0")
	SerialPort string `yaml:"serial_port"`
	// BaudRate is the baud rate for serial communication with the modem (e.g. 115200)
	BaudRate int `yaml:"baud_rate"`
	// LogLevel sets the logging level (e.g. "debug", "info", "warn", "error")
	LogLevel string `yaml:"log_level"`

	// ServiceCenter is the SMSC number put into outgoing PDUs. Empty uses
	// the one stored on the SIM.
	ServiceCenter string `yaml:"service_center"`
	// AutoDelete removes messages from the SIM once they have been read
	AutoDelete bool `yaml:"auto_delete"`
	// MergeParts joins concatenated messages before they are published
	MergeParts bool `yaml:"merge_parts"`
	// ATTimeout bounds a single AT exchange
	ATTimeout time.Duration `yaml:"at_timeout"`
	// MinSendInterval spaces consecutive PDU submissions
	MinSendInterval time.Duration `yaml:"min_send_interval"`

	MQTT MQTTConfig `yaml:"mqtt"`
}

// MQTTConfig configures the optional MQTT bridge. An empty Broker disables it.
type MQTTConfig struct {
	Broker     string `yaml:"broker"`
	ClientID   string `yaml:"client_id"`
	Username   string `yaml:"username"`
	Password   string `yaml:"password"`
	SendTopic  string `yaml:"send_topic"`
	InboxTopic string `yaml:"inbox_topic"`
}

// ConfigOption is a function that modifies a Config
type ConfigOption func(*Config) error

// LoadConfig creates a new config by applying the given options in order
func LoadConfig(opts ...ConfigOption) (*Config, error) {
	config := &Config{}

	for _, opt := range opts {
		if err := opt(config); err != nil {
			return nil, err
		}
	}

	return config, nil
}

// WithDefaults applies default configuration values
func WithDefaults() ConfigOption {
	return func(c *Config) error {
		c.BindAddress = "0.0.0.0:8080"
		c.SerialPort = "/dev/ttyUSB0"
		c.BaudRate = 115200
		c.LogLevel = "info"
		c.ATTimeout = modem.DefaultATTimeout
		c.MQTT.ClientID = "smsgw"
		c.MQTT.SendTopic = "sms/send"
		c.MQTT.InboxTopic = "sms/inbox"
		return nil
	}
}

// WithFile overlays the YAML file at path. Keys missing from the file keep
// their current value; an empty path is a no-op.
func WithFile(path string) ConfigOption {
	return func(c *Config) error {
		if path == "" {
			return nil
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(content, c); err != nil {
			return fmt.Errorf("parse config file %s: %w", path, err)
		}
		return nil
	}
}

// WithEnv loads configuration from environment variables
func WithEnv() ConfigOption {
	return func(c *Config) error {
		if addr := os.Getenv("BIND_ADDRESS"); addr != "" {
			c.BindAddress = addr
		}

		if serial := os.Getenv("SERIAL_PORT"); serial != "" {
			c.SerialPort = serial
		}

		if baud := os.Getenv("BAUD_RATE"); baud != "" {
			if b, err := strconv.Atoi(baud); err == nil {
				c.BaudRate = b
			}
		}

		if level := os.Getenv("LOG_LEVEL"); level != "" {
			c.LogLevel = level
		}

		if smsc := os.Getenv("SERVICE_CENTER"); smsc != "" {
			c.ServiceCenter = smsc
		}

		if del := os.Getenv("AUTO_DELETE"); del != "" {
			if b, err := strconv.ParseBool(del); err == nil {
				c.AutoDelete = b
			}
		}

		if merge := os.Getenv("MERGE_PARTS"); merge != "" {
			if b, err := strconv.ParseBool(merge); err == nil {
				c.MergeParts = b
			}
		}

		if timeout := os.Getenv("AT_TIMEOUT"); timeout != "" {
			if d, err := time.ParseDuration(timeout); err == nil {
				c.ATTimeout = d
			}
		}

		if broker := os.Getenv("MQTT_BROKER"); broker != "" {
			c.MQTT.Broker = broker
		}
		if id := os.Getenv("MQTT_CLIENT_ID"); id != "" {
			c.MQTT.ClientID = id
		}
		if user := os.Getenv("MQTT_USERNAME"); user != "" {
			c.MQTT.Username = user
		}
		if pass := os.Getenv("MQTT_PASSWORD"); pass != "" {
			c.MQTT.Password = pass
		}

		return nil
	}
}

// WithFlags loads configuration from command-line flags
func WithFlags(fSet *flag.FlagSet) ConfigOption {
	return func(c *Config) error {
		var err error
		fSet.Visit(func(f *flag.Flag) {
			switch f.Name {
			case "bind-address":
				c.BindAddress = f.Value.String()
			case "serial-port":
				c.SerialPort = f.Value.String()
			case "baud-rate":
				if b, perr := strconv.Atoi(f.Value.String()); perr == nil {
					c.BaudRate = b
				}
			case "log-level":
				c.LogLevel = f.Value.String()
			case "service-center":
				c.ServiceCenter = f.Value.String()
			case "auto-delete":
				c.AutoDelete = f.Value.String() == "true"
			case "merge-parts":
				c.MergeParts = f.Value.String() == "true"
			case "at-timeout":
				d, perr := time.ParseDuration(f.Value.String())
				if perr != nil {
					err = fmt.Errorf("flag -at-timeout: %w", perr)
					return
				}
				c.ATTimeout = d
			case "mqtt-broker":
				c.MQTT.Broker = f.Value.String()
			}
		})
		return err
	}
}
