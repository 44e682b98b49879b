package config

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/womat/debug"
	"gopkg.in/yaml.v2"
)

// Config holds the application configuration. Attention!
// Each of the struct fields must be in the format
// first letter uppercase -> followed by CamelCase as in the config file.
// Config defines the struct of global config and the struct of the configuration file
type Config struct {
	Flag      FlagConfig      `yaml:"-"`
	Gpio      GpioConfig      `yaml:"gpio"`
	Link      LinkConfig      `yaml:"link"`
	Serial    SerialConfig    `yaml:"serial"`
	Debug     DebugConfig     `yaml:"debug"`
	Webserver WebserverConfig `yaml:"webserver"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
}

// FlagConfig defines the configured flags (parameters)
type FlagConfig struct {
	Debug      string
	ConfigFile string
}

// GpioConfig defines the lines of the audio jack interface.
//  driver: gpiod (character device), gpiomem (tx pin via /dev/gpiomem) or emu (loopback, no hardware)
type GpioConfig struct {
	Chip          string        `yaml:"chip"`
	Driver        string        `yaml:"driver"`
	RxLine        int           `yaml:"rxline"`
	TxLine        int           `yaml:"txline"`
	Terminator    string        `yaml:"terminator"`
	BounceTimeInt int           `yaml:"bouncetime"`
	BounceTime    time.Duration `yaml:"-"`
}

// LinkConfig defines the behaviour of the manchester link.
type LinkConfig struct {
	IdleLevel    string        `yaml:"idlelevel"`
	RxTimeoutInt int           `yaml:"rxtimeout"`
	RxTimeout    time.Duration `yaml:"-"`
	HalfDuplex   bool          `yaml:"halfduplex"`
	Handshake    bool          `yaml:"handshake"`
}

// SerialConfig defines the host serial port of the transport bridge, an empty device disables the bridge.
type SerialConfig struct {
	Device   string `yaml:"device"`
	BaudRate int    `yaml:"baudrate"`
}

// WebserverConfig defines the struct of the webserver and webservice configuration and configuration file
type WebserverConfig struct {
	URL         string          `yaml:"url"`
	Webservices map[string]bool `yaml:"webservices"`
}

// MQTTConfig defines the struct of the mqtt client configuration and configuration file
type MQTTConfig struct {
	Connection string `yaml:"connection"`
	ClientID   string `yaml:"clientid"`
	Topic      string `yaml:"topic"`
}

// DebugConfig defines the struct of the debug configuration and configuration file
type DebugConfig struct {
	File       io.WriteCloser `yaml:"-"`
	Flag       int            `yaml:"-"`
	FlagString string         `yaml:"flag"`
	FileString string         `yaml:"file"`
}

func NewConfig() *Config {
	return &Config{
		Flag: FlagConfig{},
		Gpio: GpioConfig{
			Chip:       "gpiochip0",
			Driver:     "gpiod",
			RxLine:     23,
			TxLine:     24,
			Terminator: "none",
		},
		Link: LinkConfig{
			IdleLevel:  "low",
			HalfDuplex: true,
			Handshake:  true,
		},
		Serial: SerialConfig{
			BaudRate: 2400,
		},
		Debug: DebugConfig{
			FileString: "stderr",
			FlagString: "standard",
		},
		Webserver: WebserverConfig{
			URL: "http://0.0.0.0:4000",
			Webservices: map[string]bool{
				"version": true,
				"health":  true,
				"data":    true,
				"send":    true,
			},
		},
		MQTT: MQTTConfig{
			ClientID: "quickjack",
			Topic:    "/quickjack/rx",
		},
	}
}

func (c *Config) LoadConfig() error {
	if c.Flag.ConfigFile != "" {
		if err := c.readConfigFile(); err != nil {
			return fmt.Errorf("error reading config file %q: %w", c.Flag.ConfigFile, err)
		}
	}

	if c.Flag.Debug != "" {
		c.Debug.FlagString = c.Flag.Debug
	}
	if err := c.setDebugConfig(); err != nil {
		return fmt.Errorf("unable to open debug file %q: %w", c.Debug.FileString, err)
	}

	switch c.Gpio.Driver {
	case "gpiod", "gpiomem", "emu":
	default:
		return fmt.Errorf("invalid gpio driver %q", c.Gpio.Driver)
	}

	switch c.Link.IdleLevel {
	case "low", "high":
	default:
		return fmt.Errorf("invalid idle level %q", c.Link.IdleLevel)
	}

	c.Gpio.BounceTime = time.Duration(c.Gpio.BounceTimeInt) * time.Microsecond
	c.Link.RxTimeout = time.Duration(c.Link.RxTimeoutInt) * time.Millisecond

	return nil
}

func (c *Config) readConfigFile() error {
	file, err := os.Open(c.Flag.ConfigFile)
	if err != nil {
		return err
	}
	defer func() { _ = file.Close() }()

	decoder := yaml.NewDecoder(file)
	if err = decoder.Decode(c); err != nil {
		return err
	}

	return nil
}

func (c *Config) setDebugConfig() (err error) {
	// defines Debug section of global.Config
	switch c.Debug.FlagString {
	case "trace", "full":
		c.Debug.Flag = debug.Full
	case "debug":
		c.Debug.Flag = debug.Warning | debug.Info | debug.Error | debug.Fatal | debug.Debug
	case "standard":
		c.Debug.Flag = debug.Standard
	default:
		return fmt.Errorf("invalid log level %q", c.Debug.FlagString)
	}

	switch c.Debug.FileString {
	case "stderr":
		c.Debug.File = os.Stderr
	case "stdout":
		c.Debug.File = os.Stdout
	default:
		if c.Debug.File, err = os.OpenFile(c.Debug.FileString, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o666); err != nil {
			return
		}
	}

	return
}
