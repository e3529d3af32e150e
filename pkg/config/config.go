package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-ble/ble"
	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"github.com/srg/blerelay/internal/rendezvous"
	"gopkg.in/yaml.v3"
)

// DefaultTargets are the sensor addresses used when none are configured.
var DefaultTargets = []string{"ED:0A:39:F0:0E:1C", "D9:42:7E:11:5A:C3"}

// Config holds application configuration
type Config struct {
	LogLevel       string        `yaml:"log_level" default:"info"`
	Name           string        `yaml:"name" default:"blerelay"`
	DeviceID       int           `yaml:"device_id" default:"0"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" default:"10s"`

	Targets              []string `yaml:"targets"`
	TargetService        string   `yaml:"target_service" default:"12345678-1234-5678-1234-56789abcdef0"`
	TargetCharacteristic string   `yaml:"target_characteristic" default:"12345678-1234-5678-1234-56789abcdef1"`
	PhoneService         string   `yaml:"phone_service" default:"12345678-1234-5678-1234-56789abcdef2"`
	PhoneCharacteristic  string   `yaml:"phone_characteristic" default:"12345678-1234-5678-1234-56789abcdef3"`

	AggregateCapacity int    `yaml:"aggregate_capacity" default:"64"`
	MailboxSize       int    `yaml:"mailbox_size" default:"256"`
	SnapshotBuffer    int    `yaml:"snapshot_buffer" default:"16"`
	JournalSize       uint32 `yaml:"journal_size" default:"64"`

	Mirror MirrorConfig `yaml:"mirror"`
}

// MirrorConfig controls the pseudo-terminal copy of relayed values.
type MirrorConfig struct {
	Enabled    bool   `yaml:"enabled" default:"false"`
	Link       string `yaml:"link"`
	BufferSize int    `yaml:"buffer_size" default:"4096"`
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	c := &Config{}
	defaults.SetDefaults(c)
	c.Targets = append([]string(nil), DefaultTargets...)
	return c
}

// Load reads a YAML file over the defaults. An empty path yields the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	c := DefaultConfig()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks every field that can be checked without a radio.
func (c *Config) Validate() error {
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	if c.Name == "" {
		return errors.New("name must not be empty")
	}
	if c.ConnectTimeout <= 0 {
		return errors.New("connect_timeout must be positive")
	}
	if _, err := c.Registry(); err != nil {
		return fmt.Errorf("targets: %w", err)
	}
	for field, s := range map[string]string{
		"target_service":        c.TargetService,
		"target_characteristic": c.TargetCharacteristic,
		"phone_service":         c.PhoneService,
		"phone_characteristic":  c.PhoneCharacteristic,
	} {
		if _, err := ble.Parse(s); err != nil {
			return fmt.Errorf("%s: %w", field, err)
		}
	}
	if c.AggregateCapacity <= 0 {
		return errors.New("aggregate_capacity must be positive")
	}
	if c.MailboxSize <= 0 || c.SnapshotBuffer <= 0 || c.JournalSize == 0 {
		return errors.New("mailbox_size, snapshot_buffer and journal_size must be positive")
	}
	if c.Mirror.Enabled && c.Mirror.BufferSize <= 0 {
		return errors.New("mirror.buffer_size must be positive")
	}
	return nil
}

// Level returns the configured log level, falling back to info.
func (c *Config) Level() logrus.Level {
	lvl, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}

// NewLogger creates a configured logger instance
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(c.Level())
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})
	return logger
}

// Registry builds the target registry.
func (c *Config) Registry() (*rendezvous.Registry, error) {
	return rendezvous.ParseRegistry(c.Targets)
}

// NodeOptions converts the configuration into node options.
func (c *Config) NodeOptions(logger *logrus.Logger) (rendezvous.Options, error) {
	uuids := make([]ble.UUID, 4)
	for i, s := range []string{c.TargetService, c.TargetCharacteristic, c.PhoneService, c.PhoneCharacteristic} {
		u, err := ble.Parse(s)
		if err != nil {
			return rendezvous.Options{}, fmt.Errorf("uuid %q: %w", s, err)
		}
		uuids[i] = u
	}

	return rendezvous.Options{
		Name:               c.Name,
		ServiceUUID:        uuids[0],
		CharacteristicUUID: uuids[1],
		PhoneServiceUUID:   uuids[2],
		PhoneValueUUID:     uuids[3],
		AggregateCapacity:  c.AggregateCapacity,
		MailboxSize:        c.MailboxSize,
		SnapshotBuffer:     c.SnapshotBuffer,
		JournalSize:        c.JournalSize,
		Logger:             logger,
	}, nil
}

// YAML renders the configuration.
func (c *Config) YAML() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
