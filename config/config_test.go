package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"lautenbacher.net/wifinode/session"
)

const validNode = `
Node:
  Name: "CA3 IOT NODE(main node)"
  Type: "B-L475E-IOT01A"
  Position: "westcove 16"
`

const validNetwork = `
Network:
  SSID: "net"
  Passphrase: "secret"
  Security: "mixed"
  DHCP: true
`

const validServer = `
Server:
  Address: "47.108.170.207"
  Port: 6666
  Protocol: "tcp"
`

const validModule = `
Module:
  Timeout: 2s
  TxBuffer: 512
  RxBuffer: 1024
Hardware:
  Backend: "sim"
`

const validLogging = `
Logging:
  Monitor:
    Level: "DEBUG"
    Format: "text"
    File: "/tmp/wifinode-monitor.log"
  Headless:
    Level: "WARN"
    Format: "json"
    File: "/var/log/wifinode.log"
`

func getBaseConfig() string {
	return validNode + validNetwork + validServer + validModule + validLogging
}

func createConfigFile(t *testing.T, configData string) string {
	tempDir, err := os.MkdirTemp("", "wifinode-test")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tempDir) })

	configFile := filepath.Join(tempDir, "wifinode.yml")
	err = os.WriteFile(configFile, []byte(configData), 0o644)
	if err != nil {
		t.Fatalf("Failed to write dummy config file: %v", err)
	}
	return configFile
}

func TestReadConfig(t *testing.T) {
	configFile := createConfigFile(t, getBaseConfig())

	conf, err := ReadConfig(configFile)
	require.NoError(t, err, "ReadConfig should not return an error")

	assert.Equal(t, "CA3 IOT NODE(main node)", conf.Node.Name)
	assert.Equal(t, "westcove 16", conf.Node.Position)
	assert.Equal(t, 2*time.Second, conf.Module.Timeout, "Module.Timeout should be 2s")
	assert.Equal(t, 512, conf.Module.TxBuffer)
	assert.Equal(t, BackendSim, conf.Hardware.Backend)

	assert.Equal(t, "DEBUG", conf.Logging.Monitor.Level)
	assert.Equal(t, "json", conf.Logging.Headless.Format)
	assert.Equal(t, "/var/log/wifinode.log", conf.Logging.Headless.File)
}

func TestReadConfig_Defaults(t *testing.T) {
	conf, err := ReadConfig(createConfigFile(t, validNetwork+validServer))
	require.NoError(t, err)

	assert.Equal(t, "\r\n> ", conf.Module.Banner)
	assert.Equal(t, 500*time.Millisecond, conf.Module.BootDelay)
	assert.Equal(t, 1024, conf.Module.RxBuffer)
	assert.Equal(t, []string{"idle", "walking", "running"}, conf.Inference.Labels)
	assert.Equal(t, 3*time.Second, conf.Tasks.Clock)
}

func TestReadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		from    string
		to      string
		wantErr string
	}{
		{"odd buffer", "TxBuffer: 512", "TxBuffer: 511", "Module.TxBuffer must be an even number"},
		{"tiny buffer", "RxBuffer: 1024", "RxBuffer: 2", "Module.RxBuffer must be an even number"},
		{"security", `Security: "mixed"`, `Security: "wpa3"`, "Network.Security"},
		{"protocol", `Protocol: "tcp"`, `Protocol: "sctp"`, "Server.Protocol"},
		{"port", "Port: 6666", "Port: 70000", "Server.Port must be between 1 and 65535"},
		{"server address", `Address: "47.108.170.207"`, `Address: "example.org"`, "Server.Address must be an IPv4 address"},
		{"ipv6 server address", `Address: "47.108.170.207"`, `Address: "2001:db8::1"`, "Server.Address must be an IPv4 address"},
		{"backend", `Backend: "sim"`, `Backend: "arduino"`, "Hardware.Backend must be one of"},
		{"static without addresses", "DHCP: true", "DHCP: false", "Network.IP must be an IPv4 address"},
		{"log level", `Level: "WARN"`, `Level: "LOUD"`, "Logging.Headless.Level"},
		{"unknown key", "Position:", "Altitude:", "field Altitude not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configData := strings.Replace(getBaseConfig(), tt.from, tt.to, 1)
			require.NotEqual(t, getBaseConfig(), configData, "replacement must apply")

			_, err := ReadConfig(createConfigFile(t, configData))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestReadConfig_ScaleMustBePositive(t *testing.T) {
	for _, scale := range []string{"0", "-4000"} {
		_, err := ReadConfig(createConfigFile(t, getBaseConfig()+"Inference:\n  Scale: "+scale+"\n"))
		assert.ErrorContains(t, err, "Inference.Scale must be positive", "scale %s", scale)
	}
}

func TestReadConfig_TaskPeriodMustFitMinorCycle(t *testing.T) {
	configData := getBaseConfig() + `
Tasks:
  MinorCycle: 10ms
  Environment: 85ms
`
	_, err := ReadConfig(createConfigFile(t, configData))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Tasks.Environment must be a positive multiple of the minor cycle")
}

func TestReadConfig_MissingFile(t *testing.T) {
	_, err := ReadConfig(filepath.Join(t.TempDir(), "nope.yml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestSessionHandle(t *testing.T) {
	configData := strings.Replace(getBaseConfig(), "DHCP: true", `DHCP: false
  IP: "192.168.0.20"
  Mask: "255.255.255.0"
  Gateway: "192.168.0.1"
  DNS: "192.168.0.1"`, 1)
	conf, err := ReadConfig(createConfigFile(t, configData))
	require.NoError(t, err)

	h, err := conf.SessionHandle()
	require.NoError(t, err)
	assert.Equal(t, session.Mixed, h.Security)
	assert.Equal(t, session.TCP, h.Protocol)
	assert.False(t, h.DHCP)
	assert.Equal(t, "192.168.0.20", h.IP.String())

	addr, err := conf.ServerAddr()
	require.NoError(t, err)
	assert.Equal(t, "47.108.170.207:6666", addr.String())
}

func TestWatch_ReportsValidChanges(t *testing.T) {
	configFile := createConfigFile(t, getBaseConfig())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan *Config, 4)
	require.NoError(t, Watch(ctx, configFile, func(c *Config) { changes <- c }))

	// An invalid intermediate version is skipped.
	require.NoError(t, os.WriteFile(configFile, []byte("Module: [broken"), 0o644))
	updated := strings.Replace(getBaseConfig(), `Level: "WARN"`, `Level: "ERROR"`, 1)
	require.NoError(t, os.WriteFile(configFile, []byte(updated), 0o644))

	// A write may be observed half done, so wait for the final version.
	timeout := time.After(5 * time.Second)
	for {
		select {
		case c := <-changes:
			if c.Logging.Headless.Level == "ERROR" {
				return
			}
		case <-timeout:
			t.Fatal("no change reported")
		}
	}
}
