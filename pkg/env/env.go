// Package env provides the common configuration of probe programs.
//
// Values are resolved in this order, later ones win: built-in defaults,
// environment variables (PROBE_LINK_URL, PROBE_MQTT_URL, PROBE_ID),
// the TOML file given by -config, command line flags.
package env

import (
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/denisbrodbeck/machineid"
	"github.com/golang/glog"

	"github.com/robotalks/probe.go/pkg/probe"
)

// DefaultMQTTBrokerURL is used by programs requiring a broker when none
// is configured.
const DefaultMQTTBrokerURL = "mqtt://localhost:1883/probe/"

// Config provides common options of probe programs.
type Config struct {
	// File is the optional TOML config file.
	File string

	// LinkURL addresses the byte channel between host and probe.
	// e.g. serial:///dev/ttyACM0?baud=115200, tcp://host:port, ws://host:port/path
	LinkURL string
	// MQTTBrokerURL enables telemetry when set.
	// e.g. mqtt://host:port/topic-prefix/
	MQTTBrokerURL string
	// ProbeID identifies the probe in telemetry topics.
	ProbeID string

	MaxRate     uint16
	ReadTimeout time.Duration
	Resync      string
	BurstSize   int
}

var defaultConfig = Config{
	LinkURL:     "tcp://localhost:7070",
	MaxRate:     probe.DefaultMaxRate,
	ReadTimeout: 3 * time.Second,
	Resync:      probe.ResyncDumpAll.String(),
	BurstSize:   64,
}

func init() {
	defaultConfig.ProbeID = MachineID()
	defaultConfig.ApplyEnv(os.Getenv)
}

// MachineID retrieves the unique ID identifying the machine, falling
// back to the host name.
func MachineID() string {
	if id, err := machineid.ID(); err == nil {
		return id
	}
	if name, err := os.Hostname(); err == nil {
		return name
	}
	return "probe"
}

// ApplyEnv overrides the config with environment variables.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if val := getenv("PROBE_LINK_URL"); val != "" {
		c.LinkURL = val
	}
	if val := getenv("PROBE_MQTT_URL"); val != "" {
		c.MQTTBrokerURL = val
	}
	if val := getenv("PROBE_ID"); val != "" {
		c.ProbeID = val
	}
}

// Default gets the default config.
func Default() *Config {
	return &defaultConfig
}

// SetupFlags registers the default config on flag.CommandLine.
func SetupFlags() {
	defaultConfig.SetupFlags(flag.CommandLine)
}

// SetupFlags registers command line flags on fs.
func (c *Config) SetupFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.File, "config", c.File, "TOML config file")
	fs.StringVar(&c.LinkURL, "link", c.LinkURL, "Link URL")
	fs.StringVar(&c.MQTTBrokerURL, "mqtt", c.MQTTBrokerURL, "MQTT broker URL for telemetry")
	fs.StringVar(&c.ProbeID, "id", c.ProbeID, "Probe ID")
	fs.Var((*rateValue)(&c.MaxRate), "max-rate", "Max streaming rate in samples per second")
	fs.DurationVar(&c.ReadTimeout, "read-timeout", c.ReadTimeout, "Link read timeout, 0 to wait forever")
	fs.StringVar(&c.Resync, "resync", c.Resync, "Resync policy: dump-all or to-command")
	fs.IntVar(&c.BurstSize, "burst-size", c.BurstSize, "Samples per telemetry burst")
}

// Load resolves the default config after flags are parsed.
func Load() (*Config, error) {
	conf := defaultConfig
	if err := conf.Resolve(flag.CommandLine); err != nil {
		return nil, err
	}
	return &conf, nil
}

// MustLoad is Load and fails on error.
func MustLoad() *Config {
	conf, err := Load()
	if err != nil {
		log.Fatalln(err)
	}
	return conf
}

// Resolve applies the config file, keeping values of flags explicitly
// set on fs, and validates the result.
func (c *Config) Resolve(fs *flag.FlagSet) error {
	if c.File != "" {
		explicit := make(map[string]bool)
		fs.Visit(func(f *flag.Flag) { explicit[f.Name] = true })
		if err := c.LoadFile(c.File, explicit); err != nil {
			return err
		}
	}
	return c.Validate()
}

type fileConfig struct {
	Link        string `toml:"link"`
	MQTT        string `toml:"mqtt"`
	ID          string `toml:"id"`
	MaxRate     int64  `toml:"max_rate"`
	ReadTimeout string `toml:"read_timeout"`
	Resync      string `toml:"resync"`
	BurstSize   int    `toml:"burst_size"`
}

// LoadFile overlays keys defined in a TOML file. Keys whose flag name is
// in skip are left alone.
func (c *Config) LoadFile(path string, skip map[string]bool) error {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	defined := func(key, flagName string) bool {
		return meta.IsDefined(key) && !skip[flagName]
	}
	if defined("link", "link") {
		c.LinkURL = raw.Link
	}
	if defined("mqtt", "mqtt") {
		c.MQTTBrokerURL = raw.MQTT
	}
	if defined("id", "id") {
		c.ProbeID = raw.ID
	}
	if defined("max_rate", "max-rate") {
		if raw.MaxRate < 0 || raw.MaxRate > math.MaxUint16 {
			return fmt.Errorf("load config: max_rate %d out of range", raw.MaxRate)
		}
		c.MaxRate = uint16(raw.MaxRate)
	}
	if defined("read_timeout", "read-timeout") {
		dur, err := time.ParseDuration(raw.ReadTimeout)
		if err != nil {
			return fmt.Errorf("load config: read_timeout: %w", err)
		}
		c.ReadTimeout = dur
	}
	if defined("resync", "resync") {
		c.Resync = raw.Resync
	}
	if defined("burst_size", "burst-size") {
		c.BurstSize = raw.BurstSize
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		glog.Warningf("config %s: unknown keys %v", path, undecoded)
	}
	return nil
}

// Validate checks the config.
func (c *Config) Validate() error {
	if c.LinkURL == "" {
		return fmt.Errorf("link URL is required")
	}
	if _, err := probe.ParseResyncPolicy(c.Resync); err != nil {
		return err
	}
	if c.ReadTimeout < 0 {
		return fmt.Errorf("invalid read timeout %v", c.ReadTimeout)
	}
	if c.BurstSize <= 0 {
		return fmt.Errorf("invalid burst size %d", c.BurstSize)
	}
	return nil
}

// NewStreamLink creates a probe.StreamLink with the configured timeout.
func (c *Config) NewStreamLink(rw io.ReadWriter) *probe.StreamLink {
	link := probe.NewStreamLink(rw)
	link.ReadTimeout = c.ReadTimeout
	return link
}

// NewDispatcher creates a probe.Dispatcher with the configured rate
// limit and resync policy.
func (c *Config) NewDispatcher(link probe.Link, actuator probe.Actuator) (*probe.Dispatcher, error) {
	policy, err := probe.ParseResyncPolicy(c.Resync)
	if err != nil {
		return nil, err
	}
	d := probe.NewDispatcher(link, actuator)
	d.MaxRate = c.MaxRate
	d.Resync = policy
	return d, nil
}

type rateValue uint16

func (v *rateValue) String() string {
	return strconv.FormatUint(uint64(*v), 10)
}

func (v *rateValue) Set(s string) error {
	n, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return err
	}
	*v = rateValue(n)
	return nil
}
