package modem

import (
	"io"
	"log/slog"
	"time"
)

// Default timeouts applied by Build and New.
const (
	DefaultATTimeout   = 10 * time.Second
	DefaultInitTimeout = 30 * time.Second
)

type Config struct {
	Dialer Dialer
	// ATTimeout bounds the wait for the terminator of a single command.
	ATTimeout time.Duration
	// InitTimeout bounds the whole Open sequence.
	InitTimeout time.Duration
	// MinSendInterval spaces consecutive PDU submissions. Zero disables
	// pacing.
	MinSendInterval time.Duration
	// ServiceCenter is the SMSC number written into every PDU. Empty lets
	// the device use the number stored on the SIM.
	ServiceCenter string
	// AutoDelete removes a message from SIM storage once it has been read.
	AutoDelete bool
	Logger     *slog.Logger
}

func (c *Config) validate() error {
	if c.Dialer == nil {
		return ErrNoDialer
	}
	return nil
}

func (c *Config) setDefaults() {
	if c.ATTimeout <= 0 {
		c.ATTimeout = DefaultATTimeout
	}
	if c.InitTimeout <= 0 {
		c.InitTimeout = DefaultInitTimeout
	}
	if c.MinSendInterval < 0 {
		c.MinSendInterval = 0
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
}

// ConfigBuilder assembles a Config step by step.
//
//	cfg, err := modem.NewConfigBuilder().
//		WithDialer(modem.SerialDialer{PortName: "/dev/ttyUSB2"}).
//		WithAutoDelete(true).
//		Build()
type ConfigBuilder struct {
	config Config
}

func NewConfigBuilder() *ConfigBuilder {
	return &ConfigBuilder{}
}

func (b *ConfigBuilder) WithDialer(d Dialer) *ConfigBuilder {
	b.config.Dialer = d
	return b
}

func (b *ConfigBuilder) WithATTimeout(d time.Duration) *ConfigBuilder {
	b.config.ATTimeout = d
	return b
}

func (b *ConfigBuilder) WithInitTimeout(d time.Duration) *ConfigBuilder {
	b.config.InitTimeout = d
	return b
}

func (b *ConfigBuilder) WithMinSendInterval(d time.Duration) *ConfigBuilder {
	b.config.MinSendInterval = d
	return b
}

func (b *ConfigBuilder) WithServiceCenter(number string) *ConfigBuilder {
	b.config.ServiceCenter = number
	return b
}

func (b *ConfigBuilder) WithAutoDelete(on bool) *ConfigBuilder {
	b.config.AutoDelete = on
	return b
}

func (b *ConfigBuilder) WithLogger(l *slog.Logger) *ConfigBuilder {
	b.config.Logger = l
	return b
}

// Build validates the configuration and fills in defaults.
func (b *ConfigBuilder) Build() (Config, error) {
	c := b.config
	if err := c.validate(); err != nil {
		return Config{}, err
	}
	c.setDefaults()
	return c, nil
}
