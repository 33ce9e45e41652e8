// internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Security SecurityConfig `mapstructure:"security"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Screen   ScreenConfig   `mapstructure:"screen"`
	WiFi     WiFiConfig     `mapstructure:"wifi"`
	App      AppConfig      `mapstructure:"app"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	MetricsEnabled bool          `mapstructure:"metrics_enabled"`
	Host           string        `mapstructure:"host" validate:"required"`
	Port           string        `mapstructure:"port" validate:"required"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
}

// SecurityConfig represents security configuration
type SecurityConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level" validate:"required"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// ScreenConfig represents USB and serial screen configuration
type ScreenConfig struct {
	Enabled           bool             `mapstructure:"enabled"`
	DiscoveryInterval time.Duration    `mapstructure:"discovery_interval"`
	RenderInterval    time.Duration    `mapstructure:"render_interval"`
	SerialPrefix      string           `mapstructure:"serial_prefix"`
	Serial            SerialPortConfig `mapstructure:"serial"`
	USB               USBPortConfig    `mapstructure:"usb"`
	Probe             ProbeConfig      `mapstructure:"probe"`
}

// SerialPortConfig represents serial port configuration
type SerialPortConfig struct {
	BaudRate     int           `mapstructure:"baud_rate"`
	WiFiBaudRate int           `mapstructure:"wifi_baud_rate"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

// USBPortConfig represents raw USB bulk configuration
type USBPortConfig struct {
	Endpoint        int           `mapstructure:"endpoint"`
	TransferTimeout time.Duration `mapstructure:"transfer_timeout"`
}

// ProbeConfig represents the serial ReadInfo probe configuration
type ProbeConfig struct {
	BaudRate     int           `mapstructure:"baud_rate"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	TotalTimeout time.Duration `mapstructure:"total_timeout"`
}

// WiFiConfig represents WiFi screen streaming configuration
type WiFiConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	Endpoint       string        `mapstructure:"endpoint"`
	KeyInterval    uint32        `mapstructure:"key_interval"`
	AckTimeout     time.Duration `mapstructure:"ack_timeout"`
	ConfigTimeout  time.Duration `mapstructure:"config_timeout"`
	ConnectRetry   time.Duration `mapstructure:"connect_retry"`
	ReconnectDelay time.Duration `mapstructure:"reconnect_delay"`
	FrameDelay     time.Duration `mapstructure:"frame_delay"`
	FrameInterval  time.Duration `mapstructure:"frame_interval"`
}

// AppConfig represents application metadata
type AppConfig struct {
	Name        string `mapstructure:"name" validate:"required"`
	Version     string `mapstructure:"version" validate:"required"`
	Environment string `mapstructure:"environment" validate:"required"`
	Debug       bool   `mapstructure:"debug"`
}

// LoadFrom loads configuration from file and environment variables. An
// empty path searches the default locations; a missing file is not an error.
func LoadFrom(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/screen-streamer")
	}

	// Environment variable support
	v.SetEnvPrefix("SCREEN_STREAMER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.enabled", true)
	v.SetDefault("server.metrics_enabled", true)
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", "8085")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")

	v.SetDefault("security.allowed_origins", []string{"*"})

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.max_size", 100)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age", 28)
	v.SetDefault("logging.compress", true)

	// Screen defaults
	v.SetDefault("screen.enabled", true)
	v.SetDefault("screen.discovery_interval", "5s")
	v.SetDefault("screen.render_interval", "1s")
	v.SetDefault("screen.serial_prefix", "USBSCR")
	v.SetDefault("screen.serial.baud_rate", 115200)
	v.SetDefault("screen.serial.wifi_baud_rate", 2000000)
	v.SetDefault("screen.serial.timeout", "100ms")
	v.SetDefault("screen.usb.endpoint", 1)
	v.SetDefault("screen.usb.transfer_timeout", "100ms")
	v.SetDefault("screen.probe.baud_rate", 115200)
	v.SetDefault("screen.probe.read_timeout", "200ms")
	v.SetDefault("screen.probe.total_timeout", "800ms")

	// WiFi defaults
	v.SetDefault("wifi.enabled", false)
	v.SetDefault("wifi.endpoint", "")
	v.SetDefault("wifi.key_interval", 60)
	v.SetDefault("wifi.ack_timeout", "3s")
	v.SetDefault("wifi.config_timeout", "2s")
	v.SetDefault("wifi.connect_retry", "2s")
	v.SetDefault("wifi.reconnect_delay", "3s")
	v.SetDefault("wifi.frame_delay", "1ms")
	v.SetDefault("wifi.frame_interval", "100ms")

	// App defaults
	v.SetDefault("app.name", "screen-streamer")
	v.SetDefault("app.version", "1.0.0")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.debug", false)
}

// validate validates the configuration
func validate(config *Config) error {
	if config.Server.Enabled {
		if config.Server.Host == "" {
			return fmt.Errorf("server.host is required")
		}
		if config.Server.Port == "" {
			return fmt.Errorf("server.port is required")
		}
	}

	// Validate environment
	validEnvs := []string{"development", "staging", "production", "test"}
	isValidEnv := false
	for _, env := range validEnvs {
		if config.App.Environment == env {
			isValidEnv = true
			break
		}
	}
	if !isValidEnv {
		return fmt.Errorf("app.environment must be one of: %v", validEnvs)
	}

	// Validate logging level
	validLevels := []string{"debug", "info", "warn", "error", "fatal"}
	isValidLevel := false
	for _, level := range validLevels {
		if config.Logging.Level == level {
			isValidLevel = true
			break
		}
	}
	if !isValidLevel {
		return fmt.Errorf("logging.level must be one of: %v", validLevels)
	}

	if config.Screen.Serial.BaudRate <= 0 || config.Screen.Serial.WiFiBaudRate <= 0 {
		return fmt.Errorf("screen.serial baud rates must be positive")
	}
	if config.Screen.RenderInterval <= 0 {
		return fmt.Errorf("screen.render_interval must be positive")
	}
	if config.Screen.Probe.BaudRate <= 0 {
		return fmt.Errorf("screen.probe.baud_rate must be positive")
	}
	if config.Screen.USB.Endpoint <= 0 || config.Screen.USB.Endpoint > 15 {
		return fmt.Errorf("screen.usb.endpoint must be between 1 and 15")
	}
	if config.WiFi.KeyInterval == 0 {
		return fmt.Errorf("wifi.key_interval must be greater than zero")
	}
	if config.WiFi.AckTimeout <= 0 {
		return fmt.Errorf("wifi.ack_timeout must be positive")
	}
	if config.WiFi.FrameInterval <= 0 {
		return fmt.Errorf("wifi.frame_interval must be positive")
	}
	if config.WiFi.Enabled && config.WiFi.Endpoint == "" {
		return fmt.Errorf("wifi.endpoint is required when wifi is enabled")
	}

	return nil
}

// GetServerAddr returns the server address
func (c *Config) GetServerAddr() string {
	return fmt.Sprintf("%s:%s", c.Server.Host, c.Server.Port)
}

// IsProduction checks if the environment is production
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// IsDevelopment checks if the environment is development
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

// IsDebugEnabled checks if debug mode is enabled
func (c *Config) IsDebugEnabled() bool {
	return c.App.Debug || c.IsDevelopment()
}
