package config

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
	"lautenbacher.net/wifinode/session"
)

const CONFILE = "wifinode.yml"

const (
	BackendPeriph = "periph"
	BackendRPIO   = "rpio"
	BackendSim    = "sim"
)

type Config struct {
	Node      NodeConfig      `yaml:"Node"`
	Network   NetworkConfig   `yaml:"Network"`
	Server    ServerConfig    `yaml:"Server"`
	Module    ModuleConfig    `yaml:"Module"`
	Hardware  HardwareConfig  `yaml:"Hardware"`
	Tasks     TasksConfig     `yaml:"Tasks"`
	Inference InferenceConfig `yaml:"Inference"`
	Logging   LoggingConfig   `yaml:"Logging"`
}

// NodeConfig is what the node announces about itself after connecting.
type NodeConfig struct {
	Name     string `yaml:"Name"`
	Type     string `yaml:"Type"`
	Position string `yaml:"Position"`
}

type NetworkConfig struct {
	SSID       string `yaml:"SSID"`
	Passphrase string `yaml:"Passphrase"`
	Security   string `yaml:"Security"`
	DHCP       bool   `yaml:"DHCP"`
	IP         string `yaml:"IP"`
	Mask       string `yaml:"Mask"`
	Gateway    string `yaml:"Gateway"`
	DNS        string `yaml:"DNS"`
}

type ServerConfig struct {
	Address  string `yaml:"Address"`
	Port     int    `yaml:"Port"`
	Protocol string `yaml:"Protocol"`
}

type ModuleConfig struct {
	Timeout      time.Duration `yaml:"Timeout"`
	PollInterval time.Duration `yaml:"PollInterval"`
	ResetPulse   time.Duration `yaml:"ResetPulse"`
	BootDelay    time.Duration `yaml:"BootDelay"`
	TxBuffer     int           `yaml:"TxBuffer"`
	RxBuffer     int           `yaml:"RxBuffer"`
	Banner       string        `yaml:"Banner"`
}

type HardwareConfig struct {
	Backend      string `yaml:"Backend"`
	SPIDevice    string `yaml:"SPIDevice"`
	SPIFrequency int    `yaml:"SPIFrequency"`
	ReadyGPIO    int    `yaml:"ReadyGPIO"`
	SelectGPIO   int    `yaml:"SelectGPIO"`
	ResetGPIO    int    `yaml:"ResetGPIO"`
}

// TasksConfig holds the cyclic executive timing. Every period must be a
// whole multiple of MinorCycle.
type TasksConfig struct {
	MinorCycle    time.Duration `yaml:"MinorCycle"`
	Accelerometer time.Duration `yaml:"Accelerometer"`
	Environment   time.Duration `yaml:"Environment"`
	Motion        time.Duration `yaml:"Motion"`
	Send          time.Duration `yaml:"Send"`
	Clock         time.Duration `yaml:"Clock"`
}

type InferenceConfig struct {
	WindowSize int      `yaml:"WindowSize"`
	Scale      float64  `yaml:"Scale"`
	Labels     []string `yaml:"Labels"`
}

type LoggingConfig struct {
	Monitor  LogConfig    `yaml:"Monitor"`
	Headless LogConfig    `yaml:"Headless"`
	Serial   SerialConfig `yaml:"Serial"`
}

type LogConfig struct {
	Level  string `yaml:"Level"`
	Format string `yaml:"Format"`
	File   string `yaml:"File"`
}

// SerialConfig names a UART that receives a copy of every log line. An
// empty Port disables it.
type SerialConfig struct {
	Port string `yaml:"Port"`
	Baud int    `yaml:"Baud"`
}

// ReadConfig decodes and validates the file at cfile.
func ReadConfig(cfile string) (*Config, error) {
	f, err := os.Open(cfile)
	if err != nil {
		return nil, fmt.Errorf("can't open config file %s: %w", cfile, err)
	}
	defer f.Close()

	conf := Default()
	decoder := yaml.NewDecoder(f)
	decoder.KnownFields(true)
	if err := decoder.Decode(conf); err != nil {
		return nil, fmt.Errorf("can't decode config file %s: %w", cfile, err)
	}
	if err := conf.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", cfile, err)
	}
	return conf, nil
}

// Default returns the settings used for keys missing from the file.
func Default() *Config {
	return &Config{
		Node: NodeConfig{Name: "wifinode", Type: "B-L475E-IOT01A"},
		Network: NetworkConfig{
			Security: "mixed",
			DHCP:     true,
		},
		Server: ServerConfig{Port: 6666, Protocol: "tcp"},
		Module: ModuleConfig{
			Timeout:      5 * time.Second,
			PollInterval: 100 * time.Microsecond,
			ResetPulse:   10 * time.Millisecond,
			BootDelay:    500 * time.Millisecond,
			TxBuffer:     1024,
			RxBuffer:     1024,
			Banner:       "\r\n> ",
		},
		Hardware: HardwareConfig{
			Backend:      BackendPeriph,
			SPIDevice:    "/dev/spidev0.0",
			SPIFrequency: 2_000_000,
			ReadyGPIO:    25,
			SelectGPIO:   8,
			ResetGPIO:    24,
		},
		Tasks: TasksConfig{
			MinorCycle:    10 * time.Millisecond,
			Accelerometer: 10 * time.Millisecond,
			Environment:   80 * time.Millisecond,
			Motion:        400 * time.Millisecond,
			Send:          1 * time.Second,
			Clock:         3 * time.Second,
		},
		Inference: InferenceConfig{
			WindowSize: 128,
			Scale:      4000,
			Labels:     []string{"idle", "walking", "running"},
		},
		Logging: LoggingConfig{
			Monitor:  LogConfig{Level: "DEBUG", Format: "text"},
			Headless: LogConfig{Level: "INFO", Format: "text"},
			Serial:   SerialConfig{Baud: 115200},
		},
	}
}

// Validate checks the whole configuration and reports every problem found.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if c.Network.SSID == "" {
		add("Network.SSID must be set")
	}
	if _, err := session.ParseSecurity(c.Network.Security); err != nil {
		add("Network.Security: %w", err)
	}
	if !c.Network.DHCP {
		for name, v := range map[string]string{
			"IP": c.Network.IP, "Mask": c.Network.Mask, "Gateway": c.Network.Gateway, "DNS": c.Network.DNS,
		} {
			if a, err := netip.ParseAddr(v); err != nil || !a.Is4() {
				add("Network.%s must be an IPv4 address when DHCP is off, got %q", name, v)
			}
		}
	}

	if a, err := netip.ParseAddr(c.Server.Address); err != nil || !a.Is4() {
		add("Server.Address must be an IPv4 address, got %q", c.Server.Address)
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		add("Server.Port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if _, err := session.ParseProtocol(c.Server.Protocol); err != nil {
		add("Server.Protocol: %w", err)
	}

	for name, size := range map[string]int{"TxBuffer": c.Module.TxBuffer, "RxBuffer": c.Module.RxBuffer} {
		if size < 4 || size%2 != 0 {
			add("Module.%s must be an even number of at least 4 bytes, got %d", name, size)
		}
	}
	if c.Module.Timeout <= 0 {
		add("Module.Timeout must be positive")
	}

	switch strings.ToLower(c.Hardware.Backend) {
	case BackendPeriph, BackendRPIO, BackendSim:
	default:
		add("Hardware.Backend must be one of %s, %s or %s, got %q", BackendPeriph, BackendRPIO, BackendSim, c.Hardware.Backend)
	}

	if c.Tasks.MinorCycle <= 0 {
		add("Tasks.MinorCycle must be positive")
	} else {
		for name, p := range c.Tasks.Periods() {
			if p <= 0 || p%c.Tasks.MinorCycle != 0 {
				add("Tasks.%s must be a positive multiple of the minor cycle %s, got %s", name, c.Tasks.MinorCycle, p)
			}
		}
	}

	if c.Inference.WindowSize < 1 {
		add("Inference.WindowSize must be positive")
	}
	if c.Inference.Scale <= 0 {
		add("Inference.Scale must be positive, got %v", c.Inference.Scale)
	}
	if len(c.Inference.Labels) < 2 {
		add("Inference.Labels needs at least two labels")
	}

	for name, lc := range map[string]LogConfig{"Monitor": c.Logging.Monitor, "Headless": c.Logging.Headless} {
		switch strings.ToUpper(lc.Level) {
		case "DEBUG", "INFO", "WARN", "ERROR":
		default:
			add("Logging.%s.Level must be DEBUG, INFO, WARN or ERROR, got %q", name, lc.Level)
		}
		switch strings.ToLower(lc.Format) {
		case "text", "json":
		default:
			add("Logging.%s.Format must be text or json, got %q", name, lc.Format)
		}
	}
	if c.Logging.Serial.Port != "" && c.Logging.Serial.Baud <= 0 {
		add("Logging.Serial.Baud must be positive")
	}

	return errors.Join(errs...)
}

// Periods returns the task periods by name.
func (t TasksConfig) Periods() map[string]time.Duration {
	return map[string]time.Duration{
		"Accelerometer": t.Accelerometer,
		"Environment":   t.Environment,
		"Motion":        t.Motion,
		"Send":          t.Send,
		"Clock":         t.Clock,
	}
}

// SessionHandle converts the network section for the session controller.
func (c *Config) SessionHandle() (session.Handle, error) {
	sec, err := session.ParseSecurity(c.Network.Security)
	if err != nil {
		return session.Handle{}, err
	}
	proto, err := session.ParseProtocol(c.Server.Protocol)
	if err != nil {
		return session.Handle{}, err
	}
	h := session.Handle{
		SSID:       c.Network.SSID,
		Passphrase: c.Network.Passphrase,
		Security:   sec,
		DHCP:       c.Network.DHCP,
		Protocol:   proto,
	}
	if !h.DHCP {
		// validated by ReadConfig
		h.IP, _ = netip.ParseAddr(c.Network.IP)
		h.Mask, _ = netip.ParseAddr(c.Network.Mask)
		h.Gateway, _ = netip.ParseAddr(c.Network.Gateway)
		h.DNS, _ = netip.ParseAddr(c.Network.DNS)
	}
	return h, nil
}

// ServerAddr returns the server to connect to.
func (c *Config) ServerAddr() (netip.AddrPort, error) {
	addr, err := netip.ParseAddr(c.Server.Address)
	if err != nil {
		return netip.AddrPort{}, err
	}
	return netip.AddrPortFrom(addr, uint16(c.Server.Port)), nil
}
