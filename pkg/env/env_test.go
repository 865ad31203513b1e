package env

import (
	"flag"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/probe.go/pkg/probe"
)

func writeConfig(t *testing.T, content string) string {
	fn := filepath.Join(t.TempDir(), "probe.toml")
	require.NoError(t, os.WriteFile(fn, []byte(content), 0644))
	return fn
}

func TestApplyEnv(t *testing.T) {
	vars := map[string]string{
		"PROBE_LINK_URL": "serial:///dev/ttyACM0",
		"PROBE_MQTT_URL": "mqtt://broker:1883/lab/",
	}
	conf := Config{LinkURL: "tcp://localhost:7070", ProbeID: "machine"}
	conf.ApplyEnv(func(name string) string { return vars[name] })
	require.Equal(t, "serial:///dev/ttyACM0", conf.LinkURL)
	require.Equal(t, "mqtt://broker:1883/lab/", conf.MQTTBrokerURL)
	require.Equal(t, "machine", conf.ProbeID)
}

func TestFlagsOverrideFile(t *testing.T) {
	fn := writeConfig(t, `
link = "ws://probe:8080/link"
id = "bench-1"
max_rate = 2000
read_timeout = "500ms"
resync = "to-command"
burst_size = 16
`)
	conf := defaultConfig
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	conf.SetupFlags(fs)
	require.NoError(t, fs.Parse([]string{"-config", fn, "-id", "bench-2", "-max-rate", "3000"}))
	require.NoError(t, conf.Resolve(fs))

	require.Equal(t, "ws://probe:8080/link", conf.LinkURL)
	require.Equal(t, "bench-2", conf.ProbeID)
	require.EqualValues(t, 3000, conf.MaxRate)
	require.Equal(t, 500*time.Millisecond, conf.ReadTimeout)
	require.Equal(t, "to-command", conf.Resync)
	require.Equal(t, 16, conf.BurstSize)
}

func TestLoadFileErrors(t *testing.T) {
	conf := defaultConfig
	require.Error(t, conf.LoadFile(filepath.Join(t.TempDir(), "missing.toml"), nil))
	require.Error(t, conf.LoadFile(writeConfig(t, "max_rate = 70000\n"), nil))
	require.Error(t, conf.LoadFile(writeConfig(t, "read_timeout = \"soon\"\n"), nil))
}

func TestValidate(t *testing.T) {
	conf := defaultConfig
	require.NoError(t, conf.Validate())

	bad := conf
	bad.Resync = "sometimes"
	require.Error(t, bad.Validate())

	bad = conf
	bad.LinkURL = ""
	require.Error(t, bad.Validate())

	bad = conf
	bad.BurstSize = 0
	require.Error(t, bad.Validate())
}

func TestMaxRateFlag(t *testing.T) {
	conf := defaultConfig
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	conf.SetupFlags(fs)
	require.Error(t, fs.Parse([]string{"-max-rate", "70000"}))
}

func TestNewDispatcher(t *testing.T) {
	conf := defaultConfig
	conf.MaxRate = 1234
	conf.Resync = "to-command"
	d, err := conf.NewDispatcher(nil, nil)
	require.NoError(t, err)
	require.EqualValues(t, 1234, d.MaxRate)
	require.Equal(t, probe.ResyncToCommand, d.Resync)
}
