package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config aggregates settings for every process in the system. Each binary
// loads the whole thing and picks the sections it needs.
type Config struct {
	Hub       HubConfig
	Device    DeviceConfig
	Collector CollectorConfig
	Influx    InfluxConfig
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	hub, err := loadHubConfig()
	if err != nil {
		return nil, err
	}

	device, err := loadDeviceConfig()
	if err != nil {
		return nil, err
	}

	collector, err := loadCollectorConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Hub:       hub,
		Device:    device,
		Collector: collector,
		Influx:    loadInfluxConfig(),
	}, nil
}

// HubConfig describes the event hub's HTTP/WebSocket listener.
type HubConfig struct {
	Addr string
}

func loadHubConfig() (HubConfig, error) {
	addr, err := parseAddrEnv("HUB_PORT", "3000")
	if err != nil {
		return HubConfig{}, err
	}
	return HubConfig{Addr: addr}, nil
}

// DeviceConfig describes the device-side controller process.
type DeviceConfig struct {
	Name              string
	HubWSURL          string
	ReconnectInterval time.Duration
	Mode              string
	TreatWindow       time.Duration
	TreatCooldown     time.Duration
	TreatAngle        float64
	RestAngle         float64
	RecordingsDir     string
	AudioEnabled      bool
}

func loadDeviceConfig() (DeviceConfig, error) {
	reconnect, err := parseSecondsEnv("WS_RECONNECT_INTERVAL", 5*time.Second)
	if err != nil {
		return DeviceConfig{}, err
	}

	window, err := parseSecondsEnv("TREAT_WINDOW", 5*time.Second)
	if err != nil {
		return DeviceConfig{}, err
	}

	cooldown, err := parseSecondsEnv("TREAT_COOLDOWN", 5*time.Minute)
	if err != nil {
		return DeviceConfig{}, err
	}

	treatAngle, err := parseFloatEnv("TREAT_ANGLE", 60)
	if err != nil {
		return DeviceConfig{}, err
	}

	restAngle, err := parseFloatEnv("REST_ANGLE", 0)
	if err != nil {
		return DeviceConfig{}, err
	}

	audioEnabled, err := parseBoolEnv("AUDIO_ENABLED", true)
	if err != nil {
		return DeviceConfig{}, err
	}

	mode := getEnvOrDefault("MODE", "auto")
	if mode != "auto" && mode != "manual" {
		return DeviceConfig{}, fmt.Errorf("invalid MODE value %q: want auto or manual", mode)
	}

	return DeviceConfig{
		Name:              getEnvOrDefault("DEVICE_NAME", "trainer"),
		HubWSURL:          getEnvOrDefault("HUB_WS_URL", "ws://localhost:3000/ws"),
		ReconnectInterval: reconnect,
		Mode:              mode,
		TreatWindow:       window,
		TreatCooldown:     cooldown,
		TreatAngle:        treatAngle,
		RestAngle:         restAngle,
		RecordingsDir:     getEnvOrDefault("RECORDINGS_DIR", "recordings"),
		AudioEnabled:      audioEnabled,
	}, nil
}

// CollectorConfig describes the correlation collector process.
type CollectorConfig struct {
	HubWSURL          string
	ReconnectInterval time.Duration
	APIAddr           string
}

func loadCollectorConfig() (CollectorConfig, error) {
	reconnect, err := parseSecondsEnv("WS_RECONNECT_INTERVAL", 5*time.Second)
	if err != nil {
		return CollectorConfig{}, err
	}

	apiAddr, err := parseAddrEnv("COLLECTOR_API_PORT", "4000")
	if err != nil {
		return CollectorConfig{}, err
	}

	return CollectorConfig{
		HubWSURL:          getEnvOrDefault("HUB_WS_URL", "ws://localhost:3000/ws"),
		ReconnectInterval: reconnect,
		APIAddr:           apiAddr,
	}, nil
}

// InfluxConfig describes the durable event sink. Writes are skipped entirely
// when no token is configured.
type InfluxConfig struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

func loadInfluxConfig() InfluxConfig {
	return InfluxConfig{
		URL:    getEnvOrDefault("INFLUX_URL", "http://localhost:8086"),
		Token:  strings.TrimSpace(os.Getenv("INFLUX_TOKEN")),
		Org:    strings.TrimSpace(os.Getenv("INFLUX_ORG")),
		Bucket: getEnvOrDefault("INFLUX_BUCKET", "dog_training"),
	}
}

// Enabled reports whether the sink is configured.
func (c InfluxConfig) Enabled() bool {
	return c.Token != ""
}

func parseAddrEnv(key, defaultPort string) (string, error) {
	port := strings.TrimSpace(os.Getenv(key))
	if port == "" {
		port = defaultPort
	}

	if strings.Contains(port, ":") {
		// Allow passing ":3000" or "127.0.0.1:3000" directly.
		return port, nil
	}

	if strings.Contains(port, " ") {
		return "", fmt.Errorf("invalid %s value: %q", key, port)
	}

	return ":" + port, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseSecondsEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	if val <= 0 {
		return 0, fmt.Errorf("invalid %s value %q: must be positive", key, raw)
	}
	return time.Duration(val * float64(time.Second)), nil
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseFloatEnv(key string, defaultValue float64) (float64, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}
